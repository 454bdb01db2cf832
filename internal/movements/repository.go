package movements

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/custodia-wms/custodia/internal/ledger"
	"github.com/custodia-wms/custodia/internal/platform/db"
	"github.com/custodia-wms/custodia/internal/platform/httpx"
	"github.com/custodia-wms/custodia/internal/shared"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type repository struct {
	pool *pgxpool.Pool
}

type txRepository struct {
	q querier
}

// NewRepository builds the PostgreSQL-backed movement repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{q: tx})
	})
}

const movementColumns = `id, item_id, type, quantity, unit_id, doc_number,
	warehouse_id, supplier_id, employee_id, performed_by, timestamp,
	balance_after, note, unit_price, returned_quantity, return_doc_number,
	audit, last_modified_by, last_modified_at, history`

func scanMovement(row pgx.Row) (ledger.StockMovement, error) {
	var m ledger.StockMovement
	var history []byte
	err := row.Scan(&m.ID, &m.ItemID, &m.Type, &m.Quantity, &m.UnitID,
		&m.DocNumber, &m.WarehouseID, &m.SupplierID, &m.EmployeeID,
		&m.PerformedBy, &m.Timestamp, &m.BalanceAfter, &m.Note, &m.UnitPrice,
		&m.ReturnedQuantity, &m.ReturnDocNumber, &m.Audit,
		&m.LastModifiedBy, &m.LastModifiedAt, &history)
	if err != nil {
		return ledger.StockMovement{}, err
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &m.History); err != nil {
			return ledger.StockMovement{}, fmt.Errorf("movements: decode history: %w", err)
		}
	}
	return m, nil
}

func getMovement(ctx context.Context, q querier, id string) (ledger.StockMovement, error) {
	row := q.QueryRow(ctx,
		`SELECT `+movementColumns+` FROM stock_movements WHERE fiscal_year = $1 AND id = $2`,
		shared.YearFromContext(ctx), id)
	m, err := scanMovement(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.StockMovement{}, httpx.ErrNotFound
	}
	return m, err
}

func (r *repository) Get(ctx context.Context, id string) (ledger.StockMovement, error) {
	return getMovement(ctx, r.pool, id)
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]ledger.StockMovement, int, error) {
	year := shared.YearFromContext(ctx)
	base := ` FROM stock_movements m JOIN items i ON i.fiscal_year = m.fiscal_year AND i.id = m.item_id
		WHERE m.fiscal_year = $1`
	args := []any{year}

	if filter.ItemID != "" {
		args = append(args, filter.ItemID)
		base += ` AND m.item_id = $` + strconv.Itoa(len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := strconv.Itoa(len(args))
		base += ` AND (i.name ILIKE $` + n + ` OR i.code ILIKE $` + n + ` OR m.doc_number ILIKE $` + n + `)`
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		base += ` AND m.timestamp >= $` + strconv.Itoa(len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		base += ` AND m.timestamp <= $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+base, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	cols := `m.id, m.item_id, m.type, m.quantity, m.unit_id, m.doc_number,
		m.warehouse_id, m.supplier_id, m.employee_id, m.performed_by, m.timestamp,
		m.balance_after, m.note, m.unit_price, m.returned_quantity, m.return_doc_number,
		m.audit, m.last_modified_by, m.last_modified_at, m.history`
	query := `SELECT ` + cols + base + ` ORDER BY m.timestamp DESC` +
		` LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []ledger.StockMovement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, m)
	}
	return result, total, rows.Err()
}

func (t *txRepository) GetItemForUpdate(ctx context.Context, itemID string) (ledger.Item, error) {
	var it ledger.Item
	err := t.q.QueryRow(ctx,
		`SELECT id, code, name, unit_id, opening_balance, current_balance,
			min_threshold, threshold_enabled, is_custody, initial_state, price,
			shelf_number, box_number, created_at, created_by
		 FROM items WHERE fiscal_year = $1 AND id = $2 FOR UPDATE`,
		shared.YearFromContext(ctx), itemID).Scan(
		&it.ID, &it.Code, &it.Name, &it.UnitID, &it.OpeningBalance,
		&it.CurrentBalance, &it.MinThreshold, &it.ThresholdEnabled,
		&it.IsCustody, &it.InitialState, &it.Price, &it.ShelfNumber,
		&it.BoxNumber, &it.CreatedAt, &it.CreatedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Item{}, httpx.ErrNotFound
	}
	return it, err
}

func (t *txRepository) GetMovement(ctx context.Context, id string) (ledger.StockMovement, error) {
	return getMovement(ctx, t.q, id)
}

func (t *txRepository) InsertMovement(ctx context.Context, m ledger.StockMovement) error {
	history, err := json.Marshal(m.History)
	if err != nil {
		return fmt.Errorf("movements: encode history: %w", err)
	}
	_, err = t.q.Exec(ctx,
		`INSERT INTO stock_movements (fiscal_year, id, item_id, type, quantity,
			unit_id, doc_number, warehouse_id, supplier_id, employee_id,
			performed_by, timestamp, balance_after, note, unit_price,
			returned_quantity, return_doc_number, audit, last_modified_by,
			last_modified_at, history)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
		shared.YearFromContext(ctx), m.ID, m.ItemID, m.Type, m.Quantity,
		m.UnitID, m.DocNumber, m.WarehouseID, m.SupplierID, m.EmployeeID,
		m.PerformedBy, m.Timestamp, m.BalanceAfter, m.Note, m.UnitPrice,
		m.ReturnedQuantity, m.ReturnDocNumber, m.Audit, m.LastModifiedBy,
		m.LastModifiedAt, history)
	return err
}

func (t *txRepository) UpdateMovement(ctx context.Context, m ledger.StockMovement) error {
	history, err := json.Marshal(m.History)
	if err != nil {
		return fmt.Errorf("movements: encode history: %w", err)
	}
	tag, err := t.q.Exec(ctx,
		`UPDATE stock_movements SET quantity = $3, doc_number = $4, note = $5,
			unit_price = $6, balance_after = $7, returned_quantity = $8,
			return_doc_number = $9, last_modified_by = $10, last_modified_at = $11,
			history = $12
		 WHERE fiscal_year = $1 AND id = $2`,
		shared.YearFromContext(ctx), m.ID, m.Quantity, m.DocNumber, m.Note,
		m.UnitPrice, m.BalanceAfter, m.ReturnedQuantity, m.ReturnDocNumber,
		m.LastModifiedBy, m.LastModifiedAt, history)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

func (t *txRepository) DeleteMovement(ctx context.Context, id string) error {
	tag, err := t.q.Exec(ctx,
		`DELETE FROM stock_movements WHERE fiscal_year = $1 AND id = $2`,
		shared.YearFromContext(ctx), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

func (t *txRepository) UpdateItemBalance(ctx context.Context, itemID string, balance int) error {
	_, err := t.q.Exec(ctx,
		`UPDATE items SET current_balance = $3 WHERE fiscal_year = $1 AND id = $2`,
		shared.YearFromContext(ctx), itemID, balance)
	return err
}

func (t *txRepository) UpdateItemPrice(ctx context.Context, itemID string, price float64) error {
	_, err := t.q.Exec(ctx,
		`UPDATE items SET price = $3 WHERE fiscal_year = $1 AND id = $2`,
		shared.YearFromContext(ctx), itemID, price)
	return err
}

// DocNumberExists scans both event collections: document numbers are unique
// across movements and custody events alike.
func (t *txRepository) DocNumberExists(ctx context.Context, docNumber string) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM stock_movements WHERE fiscal_year = $1 AND doc_number = $2)
		   OR EXISTS(SELECT 1 FROM custody_events WHERE fiscal_year = $1 AND doc_number = $2)`,
		shared.YearFromContext(ctx), docNumber).Scan(&exists)
	return exists, err
}

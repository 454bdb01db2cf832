package custody

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

// NewRepository builds the PostgreSQL-backed custody repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{q: tx})
	})
}

const eventColumns = `id, item_id, actor, quantity, state, type, direction,
	timestamp, performed_by, doc_number, note, balance_after, audit_only`

func scanEvent(row pgx.Row) (ledger.CustodyEvent, error) {
	var c ledger.CustodyEvent
	var actor []byte
	err := row.Scan(&c.ID, &c.ItemID, &actor, &c.Quantity, &c.State, &c.Type,
		&c.Direction, &c.Timestamp, &c.PerformedBy, &c.DocNumber, &c.Note,
		&c.BalanceAfter, &c.AuditOnly)
	if err != nil {
		return ledger.CustodyEvent{}, err
	}
	if err := json.Unmarshal(actor, &c.Actor); err != nil {
		return ledger.CustodyEvent{}, fmt.Errorf("custody: decode actor: %w", err)
	}
	return c, nil
}

func listItemEvents(ctx context.Context, q querier, itemID string) ([]ledger.CustodyEvent, error) {
	rows, err := q.Query(ctx,
		`SELECT `+eventColumns+` FROM custody_events
		 WHERE fiscal_year = $1 AND item_id = $2 ORDER BY timestamp`,
		shared.YearFromContext(ctx), itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

func collectEvents(rows pgx.Rows) ([]ledger.CustodyEvent, error) {
	var events []ledger.CustodyEvent
	for rows.Next() {
		c, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, c)
	}
	return events, rows.Err()
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]ledger.CustodyEvent, int, error) {
	base := ` FROM custody_events WHERE fiscal_year = $1`
	args := []any{shared.YearFromContext(ctx)}

	if filter.ItemID != "" {
		args = append(args, filter.ItemID)
		base += ` AND item_id = $` + strconv.Itoa(len(args))
	}
	if filter.EmployeeID != "" {
		args = append(args, filter.EmployeeID)
		base += ` AND actor->>'employee_id' = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+base, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + eventColumns + base + ` ORDER BY timestamp DESC` +
		` LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	events, err := collectEvents(rows)
	return events, total, err
}

func (r *repository) AllEvents(ctx context.Context) ([]ledger.CustodyEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM custody_events WHERE fiscal_year = $1 ORDER BY timestamp`,
		shared.YearFromContext(ctx))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (r *repository) ItemRefs(ctx context.Context, ids []string) (map[string]ItemRef, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, code, name FROM items WHERE fiscal_year = $1 AND id = ANY($2)`,
		shared.YearFromContext(ctx), ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refs := make(map[string]ItemRef, len(ids))
	for rows.Next() {
		var id string
		var ref ItemRef
		if err := rows.Scan(&id, &ref.Code, &ref.Name); err != nil {
			return nil, err
		}
		refs[id] = ref
	}
	return refs, rows.Err()
}

func (r *repository) EmployeeNames(ctx context.Context, ids []string) (map[string]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name FROM employees WHERE fiscal_year = $1 AND id = ANY($2)`,
		shared.YearFromContext(ctx), ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := make(map[string]string, len(ids))
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	return names, rows.Err()
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

func (t *txRepository) ListItemMovements(ctx context.Context, itemID string) ([]ledger.StockMovement, error) {
	rows, err := t.q.Query(ctx,
		`SELECT id, item_id, type, quantity, returned_quantity FROM stock_movements
		 WHERE fiscal_year = $1 AND item_id = $2`,
		shared.YearFromContext(ctx), itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []ledger.StockMovement
	for rows.Next() {
		var m ledger.StockMovement
		if err := rows.Scan(&m.ID, &m.ItemID, &m.Type, &m.Quantity, &m.ReturnedQuantity); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (t *txRepository) ListItemEvents(ctx context.Context, itemID string) ([]ledger.CustodyEvent, error) {
	return listItemEvents(ctx, t.q, itemID)
}

func (t *txRepository) InsertEvent(ctx context.Context, event ledger.CustodyEvent) error {
	actor, err := json.Marshal(event.Actor)
	if err != nil {
		return fmt.Errorf("custody: encode actor: %w", err)
	}
	_, err = t.q.Exec(ctx,
		`INSERT INTO custody_events (fiscal_year, id, item_id, actor, quantity,
			state, type, direction, timestamp, performed_by, doc_number, note,
			balance_after, audit_only)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		shared.YearFromContext(ctx), event.ID, event.ItemID, actor,
		event.Quantity, event.State, event.Type, event.Direction,
		event.Timestamp, event.PerformedBy, event.DocNumber, event.Note,
		event.BalanceAfter, event.AuditOnly)
	return err
}

func (t *txRepository) UpdateItemBalance(ctx context.Context, itemID string, balance int) error {
	_, err := t.q.Exec(ctx,
		`UPDATE items SET current_balance = $3 WHERE fiscal_year = $1 AND id = $2`,
		shared.YearFromContext(ctx), itemID, balance)
	return err
}

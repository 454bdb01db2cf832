package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

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

// NewRepository builds the PostgreSQL-backed reconciliation repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{q: tx})
	})
}

func (r *repository) AuditMovements(ctx context.Context) ([]ledger.StockMovement, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, item_id, type, quantity, doc_number, performed_by, timestamp, balance_after
		 FROM stock_movements WHERE fiscal_year = $1 AND audit ORDER BY timestamp DESC`,
		shared.YearFromContext(ctx))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []ledger.StockMovement
	for rows.Next() {
		m := ledger.StockMovement{Audit: true}
		if err := rows.Scan(&m.ID, &m.ItemID, &m.Type, &m.Quantity, &m.DocNumber,
			&m.PerformedBy, &m.Timestamp, &m.BalanceAfter); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (r *repository) SettlementEvents(ctx context.Context) ([]ledger.CustodyEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, item_id, actor, quantity, state, type, direction, timestamp,
			performed_by, doc_number, note, balance_after, audit_only
		 FROM custody_events WHERE fiscal_year = $1 AND type = $2 ORDER BY timestamp DESC`,
		shared.YearFromContext(ctx), ledger.CustodySettlement)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []ledger.CustodyEvent
	for rows.Next() {
		var c ledger.CustodyEvent
		var actor []byte
		if err := rows.Scan(&c.ID, &c.ItemID, &actor, &c.Quantity, &c.State,
			&c.Type, &c.Direction, &c.Timestamp, &c.PerformedBy, &c.DocNumber,
			&c.Note, &c.BalanceAfter, &c.AuditOnly); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(actor, &c.Actor); err != nil {
			return nil, fmt.Errorf("reconcile: decode actor: %w", err)
		}
		events = append(events, c)
	}
	return events, rows.Err()
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
	rows, err := t.q.Query(ctx,
		`SELECT id, item_id, actor, quantity, state, type, direction, audit_only
		 FROM custody_events WHERE fiscal_year = $1 AND item_id = $2`,
		shared.YearFromContext(ctx), itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []ledger.CustodyEvent
	for rows.Next() {
		var c ledger.CustodyEvent
		var actor []byte
		if err := rows.Scan(&c.ID, &c.ItemID, &actor, &c.Quantity, &c.State,
			&c.Type, &c.Direction, &c.AuditOnly); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(actor, &c.Actor); err != nil {
			return nil, fmt.Errorf("reconcile: decode actor: %w", err)
		}
		events = append(events, c)
	}
	return events, rows.Err()
}

func (t *txRepository) InsertMovement(ctx context.Context, m ledger.StockMovement) error {
	history, err := json.Marshal(m.History)
	if err != nil {
		return fmt.Errorf("reconcile: encode history: %w", err)
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

func (t *txRepository) InsertEvent(ctx context.Context, event ledger.CustodyEvent) error {
	actor, err := json.Marshal(event.Actor)
	if err != nil {
		return fmt.Errorf("reconcile: encode actor: %w", err)
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

func (t *txRepository) DocNumberExists(ctx context.Context, docNumber string) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM stock_movements WHERE fiscal_year = $1 AND doc_number = $2)
		   OR EXISTS(SELECT 1 FROM custody_events WHERE fiscal_year = $1 AND doc_number = $2)`,
		shared.YearFromContext(ctx), docNumber).Scan(&exists)
	return exists, err
}

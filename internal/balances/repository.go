package balances

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

// NewRepository builds the PostgreSQL-backed balances repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{q: tx})
	})
}

func (r *repository) AllItems(ctx context.Context, search string) ([]ledger.Item, error) {
	query := `SELECT id, code, name, unit_id, opening_balance, current_balance,
		is_custody, initial_state FROM items WHERE fiscal_year = $1`
	args := []any{shared.YearFromContext(ctx)}
	if search != "" {
		query += ` AND (name ILIKE $2 OR code ILIKE $2)`
		args = append(args, "%"+search+"%")
	}
	query += ` ORDER BY code`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ledger.Item
	for rows.Next() {
		var it ledger.Item
		if err := rows.Scan(&it.ID, &it.Code, &it.Name, &it.UnitID,
			&it.OpeningBalance, &it.CurrentBalance, &it.IsCustody, &it.InitialState); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *repository) AllMovements(ctx context.Context) ([]ledger.StockMovement, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, item_id, type, quantity, returned_quantity FROM stock_movements
		 WHERE fiscal_year = $1`,
		shared.YearFromContext(ctx))
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

func (r *repository) AllEvents(ctx context.Context) ([]ledger.CustodyEvent, error) {
	return listEvents(ctx, r.pool, "")
}

func listEvents(ctx context.Context, q querier, itemID string) ([]ledger.CustodyEvent, error) {
	query := `SELECT id, item_id, actor, quantity, state, type, direction, audit_only
		FROM custody_events WHERE fiscal_year = $1`
	args := []any{shared.YearFromContext(ctx)}
	if itemID != "" {
		query += ` AND item_id = $2`
		args = append(args, itemID)
	}

	rows, err := q.Query(ctx, query, args...)
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
			return nil, fmt.Errorf("balances: decode actor: %w", err)
		}
		events = append(events, c)
	}
	return events, rows.Err()
}

func (t *txRepository) GetItemForUpdate(ctx context.Context, itemID string) (ledger.Item, error) {
	var it ledger.Item
	err := t.q.QueryRow(ctx,
		`SELECT id, code, name, unit_id, opening_balance, current_balance,
			is_custody, initial_state
		 FROM items WHERE fiscal_year = $1 AND id = $2 FOR UPDATE`,
		shared.YearFromContext(ctx), itemID).Scan(
		&it.ID, &it.Code, &it.Name, &it.UnitID, &it.OpeningBalance,
		&it.CurrentBalance, &it.IsCustody, &it.InitialState)
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
	return listEvents(ctx, t.q, itemID)
}

func (t *txRepository) InsertEvent(ctx context.Context, event ledger.CustodyEvent) error {
	actor, err := json.Marshal(event.Actor)
	if err != nil {
		return fmt.Errorf("balances: encode actor: %w", err)
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

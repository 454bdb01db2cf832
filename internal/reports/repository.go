package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/custodia-wms/custodia/internal/ledger"
	"github.com/custodia-wms/custodia/internal/platform/httpx"
	"github.com/custodia-wms/custodia/internal/shared"
)

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds the PostgreSQL-backed reports repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) GetItem(ctx context.Context, itemID string) (ledger.Item, error) {
	var it ledger.Item
	err := r.pool.QueryRow(ctx,
		`SELECT id, code, name, unit_id, opening_balance, current_balance,
			is_custody, initial_state, price, shelf_number, box_number
		 FROM items WHERE fiscal_year = $1 AND id = $2`,
		shared.YearFromContext(ctx), itemID).Scan(
		&it.ID, &it.Code, &it.Name, &it.UnitID, &it.OpeningBalance,
		&it.CurrentBalance, &it.IsCustody, &it.InitialState, &it.Price,
		&it.ShelfNumber, &it.BoxNumber)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Item{}, httpx.ErrNotFound
	}
	return it, err
}

func (r *repository) ListItemMovements(ctx context.Context, itemID string) ([]ledger.StockMovement, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, item_id, type, quantity, doc_number, performed_by, timestamp,
			note, returned_quantity, return_doc_number, audit
		 FROM stock_movements WHERE fiscal_year = $1 AND item_id = $2`,
		shared.YearFromContext(ctx), itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []ledger.StockMovement
	for rows.Next() {
		var m ledger.StockMovement
		if err := rows.Scan(&m.ID, &m.ItemID, &m.Type, &m.Quantity, &m.DocNumber,
			&m.PerformedBy, &m.Timestamp, &m.Note, &m.ReturnedQuantity,
			&m.ReturnDocNumber, &m.Audit); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (r *repository) ListItemEvents(ctx context.Context, itemID string) ([]ledger.CustodyEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, item_id, actor, quantity, state, type, direction, timestamp,
			performed_by, doc_number, note, audit_only
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
			&c.Type, &c.Direction, &c.Timestamp, &c.PerformedBy, &c.DocNumber,
			&c.Note, &c.AuditOnly); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(actor, &c.Actor); err != nil {
			return nil, fmt.Errorf("reports: decode actor: %w", err)
		}
		events = append(events, c)
	}
	return events, rows.Err()
}

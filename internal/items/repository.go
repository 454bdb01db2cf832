package items

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/custodia-wms/custodia/internal/ledger"
	"github.com/custodia-wms/custodia/internal/platform/httpx"
	"github.com/custodia-wms/custodia/internal/shared"
)

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds the PostgreSQL-backed item repository. All queries are
// scoped to the financial-year dataset carried in the request context.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const itemColumns = `id, code, name, unit_id, opening_balance, current_balance,
	min_threshold, threshold_enabled, is_custody, initial_state, price,
	shelf_number, box_number, created_at, created_by, history`

func scanItem(row pgx.Row) (ledger.Item, error) {
	var it ledger.Item
	var history []byte
	err := row.Scan(&it.ID, &it.Code, &it.Name, &it.UnitID, &it.OpeningBalance,
		&it.CurrentBalance, &it.MinThreshold, &it.ThresholdEnabled, &it.IsCustody,
		&it.InitialState, &it.Price, &it.ShelfNumber, &it.BoxNumber,
		&it.CreatedAt, &it.CreatedBy, &history)
	if err != nil {
		return ledger.Item{}, err
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &it.History); err != nil {
			return ledger.Item{}, fmt.Errorf("items: decode history: %w", err)
		}
	}
	return it, nil
}

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]ledger.Item, int, error) {
	year := shared.YearFromContext(ctx)
	query := `SELECT ` + itemColumns + ` FROM items WHERE fiscal_year = $1`
	countQuery := `SELECT COUNT(*) FROM items WHERE fiscal_year = $1`
	args := []any{year}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		cond := ` AND (name ILIKE $` + strconv.Itoa(len(args)) + ` OR code ILIKE $` + strconv.Itoa(len(args)) + `)`
		query += cond
		countQuery += cond
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY name ASC LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	args = append(args, filters.Limit, filters.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []ledger.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, it)
	}
	return items, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id string) (ledger.Item, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM items WHERE fiscal_year = $1 AND id = $2`,
		shared.YearFromContext(ctx), id)
	it, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Item{}, httpx.ErrNotFound
	}
	return it, err
}

func (r *repository) GetByCode(ctx context.Context, code string) (ledger.Item, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM items WHERE fiscal_year = $1 AND code = $2`,
		shared.YearFromContext(ctx), code)
	it, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Item{}, httpx.ErrNotFound
	}
	return it, err
}

func (r *repository) HasDuplicate(ctx context.Context, code, name, excludeID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM items
			WHERE fiscal_year = $1 AND (code = $2 OR name = $3) AND id <> $4
		)`,
		shared.YearFromContext(ctx), code, name, excludeID).Scan(&exists)
	return exists, err
}

func (r *repository) Create(ctx context.Context, item ledger.Item) error {
	history, err := json.Marshal(item.History)
	if err != nil {
		return fmt.Errorf("items: encode history: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO items (fiscal_year, id, code, name, unit_id, opening_balance,
			current_balance, min_threshold, threshold_enabled, is_custody,
			initial_state, price, shelf_number, box_number, created_at, created_by, history)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		shared.YearFromContext(ctx), item.ID, item.Code, item.Name, item.UnitID,
		item.OpeningBalance, item.CurrentBalance, item.MinThreshold,
		item.ThresholdEnabled, item.IsCustody, item.InitialState, item.Price,
		item.ShelfNumber, item.BoxNumber, item.CreatedAt, item.CreatedBy, history)
	return err
}

func (r *repository) Update(ctx context.Context, item ledger.Item) error {
	history, err := json.Marshal(item.History)
	if err != nil {
		return fmt.Errorf("items: encode history: %w", err)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE items SET code = $3, name = $4, unit_id = $5, min_threshold = $6,
			threshold_enabled = $7, price = $8, shelf_number = $9, box_number = $10,
			history = $11
		 WHERE fiscal_year = $1 AND id = $2`,
		shared.YearFromContext(ctx), item.ID, item.Code, item.Name, item.UnitID,
		item.MinThreshold, item.ThresholdEnabled, item.Price, item.ShelfNumber,
		item.BoxNumber, history)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM items WHERE fiscal_year = $1 AND id = $2`,
		shared.YearFromContext(ctx), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

func (r *repository) Referenced(ctx context.Context, itemID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM stock_movements WHERE fiscal_year = $1 AND item_id = $2)
		   OR EXISTS(SELECT 1 FROM custody_events WHERE fiscal_year = $1 AND item_id = $2)`,
		shared.YearFromContext(ctx), itemID).Scan(&exists)
	return exists, err
}

func (r *repository) ListLowStock(ctx context.Context) ([]ledger.Item, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+itemColumns+` FROM items
		 WHERE fiscal_year = $1 AND threshold_enabled AND current_balance <= min_threshold
		 ORDER BY current_balance ASC`,
		shared.YearFromContext(ctx))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ledger.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

package years

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/custodia-wms/custodia/internal/ledger"
	"github.com/custodia-wms/custodia/internal/platform/db"
)

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds the PostgreSQL-backed fiscal-year repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) List(ctx context.Context) ([]Year, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT year, active, created_at FROM fiscal_years ORDER BY year ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var years []Year
	for rows.Next() {
		var y Year
		if err := rows.Scan(&y.Year, &y.Active, &y.CreatedAt); err != nil {
			return nil, err
		}
		years = append(years, y)
	}
	return years, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) Exists(ctx context.Context, year string) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM fiscal_years WHERE year = $1)`, year).Scan(&exists)
	return exists, err
}

func (r *txRepository) Insert(ctx context.Context, y Year) error {
	_, err := r.tx.Exec(ctx,
		`INSERT INTO fiscal_years (year, active, created_at) VALUES ($1, false, $2)`,
		y.Year, y.CreatedAt)
	return err
}

func (r *txRepository) SetActive(ctx context.Context, year string) error {
	if _, err := r.tx.Exec(ctx, `UPDATE fiscal_years SET active = false WHERE active`); err != nil {
		return err
	}
	_, err := r.tx.Exec(ctx, `UPDATE fiscal_years SET active = true WHERE year = $1`, year)
	return err
}

func (r *txRepository) IsActive(ctx context.Context, year string) (bool, error) {
	var active bool
	err := r.tx.QueryRow(ctx,
		`SELECT active FROM fiscal_years WHERE year = $1`, year).Scan(&active)
	return active, err
}

func (r *txRepository) CarryForwardItems(ctx context.Context, from, to string, stamp time.Time) error {
	history, err := json.Marshal([]ledger.HistoryEntry{{
		UpdatedBy: "system",
		UpdatedAt: stamp,
		Changes:   fmt.Sprintf("balance carried forward from fiscal year %s", from),
	}})
	if err != nil {
		return err
	}
	// The closing balance of the source year becomes both the opening and the
	// current balance of the new year; the edit log starts over.
	_, err = r.tx.Exec(ctx, `
		INSERT INTO items (fiscal_year, id, code, name, unit_id,
			opening_balance, current_balance, min_threshold, threshold_enabled,
			is_custody, initial_state, price, shelf_number, box_number,
			created_at, created_by, history)
		SELECT $2, id, code, name, unit_id,
			current_balance, current_balance, min_threshold, threshold_enabled,
			is_custody, initial_state, price, shelf_number, box_number,
			created_at, created_by, $3
		FROM items WHERE fiscal_year = $1`,
		from, to, history)
	return err
}

func (r *txRepository) CopyMasterData(ctx context.Context, from, to string) error {
	copies := []string{
		`INSERT INTO units (fiscal_year, id, name)
			SELECT $2, id, name FROM units WHERE fiscal_year = $1`,
		`INSERT INTO warehouses (fiscal_year, id, name)
			SELECT $2, id, name FROM warehouses WHERE fiscal_year = $1`,
		`INSERT INTO suppliers (fiscal_year, id, name, phone, address)
			SELECT $2, id, name, phone, address FROM suppliers WHERE fiscal_year = $1`,
		`INSERT INTO employees (fiscal_year, id, name)
			SELECT $2, id, name FROM employees WHERE fiscal_year = $1`,
	}
	for _, q := range copies {
		if _, err := r.tx.Exec(ctx, q, from, to); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) DeleteYearData(ctx context.Context, year string) error {
	tables := []string{
		"custody_events", "stock_movements", "items",
		"units", "warehouses", "suppliers", "employees",
	}
	for _, t := range tables {
		if _, err := r.tx.Exec(ctx, `DELETE FROM `+t+` WHERE fiscal_year = $1`, year); err != nil {
			return err
		}
	}
	_, err := r.tx.Exec(ctx, `DELETE FROM fiscal_years WHERE year = $1`, year)
	return err
}

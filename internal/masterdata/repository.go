package masterdata

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/custodia-wms/custodia/internal/platform/httpx"
	"github.com/custodia-wms/custodia/internal/shared"
)

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds the PostgreSQL-backed master-data repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

var tableByKind = map[Kind]string{
	KindUnit:      "units",
	KindWarehouse: "warehouses",
	KindSupplier:  "suppliers",
	KindEmployee:  "employees",
}

func (r *repository) ListUnits(ctx context.Context) ([]Unit, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name FROM units WHERE fiscal_year = $1 ORDER BY name`,
		shared.YearFromContext(ctx))
	if err != nil {
		return nil, err
	}
	return collectNamed[Unit](rows, func(id, name string) Unit {
		return Unit{ID: id, Name: name}
	})
}

func (r *repository) ListWarehouses(ctx context.Context) ([]Warehouse, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name FROM warehouses WHERE fiscal_year = $1 ORDER BY name`,
		shared.YearFromContext(ctx))
	if err != nil {
		return nil, err
	}
	return collectNamed[Warehouse](rows, func(id, name string) Warehouse {
		return Warehouse{ID: id, Name: name}
	})
}

func (r *repository) ListEmployees(ctx context.Context) ([]Employee, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name FROM employees WHERE fiscal_year = $1 ORDER BY name`,
		shared.YearFromContext(ctx))
	if err != nil {
		return nil, err
	}
	return collectNamed[Employee](rows, func(id, name string) Employee {
		return Employee{ID: id, Name: name}
	})
}

func collectNamed[T any](rows pgx.Rows, build func(id, name string) T) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out = append(out, build(id, name))
	}
	return out, rows.Err()
}

func (r *repository) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, phone, address FROM suppliers WHERE fiscal_year = $1 ORDER BY name`,
		shared.YearFromContext(ctx))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Supplier
	for rows.Next() {
		var s Supplier
		if err := rows.Scan(&s.ID, &s.Name, &s.Phone, &s.Address); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *repository) CreateUnit(ctx context.Context, u Unit) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO units (fiscal_year, id, name) VALUES ($1, $2, $3)`,
		shared.YearFromContext(ctx), u.ID, u.Name)
	return err
}

func (r *repository) CreateWarehouse(ctx context.Context, w Warehouse) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO warehouses (fiscal_year, id, name) VALUES ($1, $2, $3)`,
		shared.YearFromContext(ctx), w.ID, w.Name)
	return err
}

func (r *repository) CreateSupplier(ctx context.Context, s Supplier) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO suppliers (fiscal_year, id, name, phone, address) VALUES ($1, $2, $3, $4, $5)`,
		shared.YearFromContext(ctx), s.ID, s.Name, s.Phone, s.Address)
	return err
}

func (r *repository) CreateEmployee(ctx context.Context, e Employee) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO employees (fiscal_year, id, name) VALUES ($1, $2, $3)`,
		shared.YearFromContext(ctx), e.ID, e.Name)
	return err
}

func (r *repository) Rename(ctx context.Context, kind Kind, id, name string) error {
	table, ok := tableByKind[kind]
	if !ok {
		return fmt.Errorf("masterdata: unknown kind %q", kind)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE `+table+` SET name = $3 WHERE fiscal_year = $1 AND id = $2`,
		shared.YearFromContext(ctx), id, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, kind Kind, id string) error {
	table, ok := tableByKind[kind]
	if !ok {
		return fmt.Errorf("masterdata: unknown kind %q", kind)
	}
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM `+table+` WHERE fiscal_year = $1 AND id = $2`,
		shared.YearFromContext(ctx), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

func (r *repository) Referenced(ctx context.Context, kind Kind, id string) (bool, error) {
	var query string
	switch kind {
	case KindUnit:
		query = `SELECT EXISTS(SELECT 1 FROM items WHERE fiscal_year = $1 AND unit_id = $2)
			OR EXISTS(SELECT 1 FROM stock_movements WHERE fiscal_year = $1 AND unit_id = $2)`
	case KindWarehouse:
		query = `SELECT EXISTS(SELECT 1 FROM stock_movements WHERE fiscal_year = $1 AND warehouse_id = $2)`
	case KindSupplier:
		query = `SELECT EXISTS(SELECT 1 FROM stock_movements WHERE fiscal_year = $1 AND supplier_id = $2)`
	case KindEmployee:
		query = `SELECT EXISTS(SELECT 1 FROM stock_movements WHERE fiscal_year = $1 AND employee_id = $2)
			OR EXISTS(SELECT 1 FROM custody_events WHERE fiscal_year = $1 AND actor->>'employee_id' = $2)`
	default:
		return false, fmt.Errorf("masterdata: unknown kind %q", kind)
	}

	var used bool
	err := r.pool.QueryRow(ctx, query, shared.YearFromContext(ctx), id).Scan(&used)
	return used, err
}

// Package masterdata manages the reference entities the event log points at:
// units, warehouses, suppliers and employees. Deletion is guarded by a scan
// over the event log so no recorded transaction ever dangles.
package masterdata

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/custodia-wms/custodia/internal/ledger"
	"github.com/custodia-wms/custodia/internal/shared"
)

// ErrNameRequired rejects blank entity names.
var ErrNameRequired = errors.New("masterdata: name is required")

// Unit is a measurement unit referenced by items and movements.
type Unit struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Warehouse is an issue destination referenced by outward movements.
type Warehouse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Supplier is a goods source referenced by inward movements.
type Supplier struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// Employee is a custody holder referenced by movements and custody events.
type Employee struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Kind enumerates the master-data entity kinds.
type Kind string

const (
	KindUnit      Kind = "UNIT"
	KindWarehouse Kind = "WAREHOUSE"
	KindSupplier  Kind = "SUPPLIER"
	KindEmployee  Kind = "EMPLOYEE"
)

// Repository abstracts master-data persistence.
type Repository interface {
	ListUnits(ctx context.Context) ([]Unit, error)
	ListWarehouses(ctx context.Context) ([]Warehouse, error)
	ListSuppliers(ctx context.Context) ([]Supplier, error)
	ListEmployees(ctx context.Context) ([]Employee, error)

	CreateUnit(ctx context.Context, u Unit) error
	CreateWarehouse(ctx context.Context, w Warehouse) error
	CreateSupplier(ctx context.Context, s Supplier) error
	CreateEmployee(ctx context.Context, e Employee) error

	Rename(ctx context.Context, kind Kind, id, name string) error
	Delete(ctx context.Context, kind Kind, id string) error

	// Referenced reports whether the event log (or, for units, the item
	// catalog) still points at the entity.
	Referenced(ctx context.Context, kind Kind, id string) (bool, error)
}

// Service coordinates master-data maintenance.
type Service struct {
	repo Repository
}

// NewService builds Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Units(ctx context.Context) ([]Unit, error) { return s.repo.ListUnits(ctx) }

func (s *Service) Warehouses(ctx context.Context) ([]Warehouse, error) {
	return s.repo.ListWarehouses(ctx)
}

func (s *Service) Suppliers(ctx context.Context) ([]Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) Employees(ctx context.Context) ([]Employee, error) {
	return s.repo.ListEmployees(ctx)
}

func (s *Service) CreateUnit(ctx context.Context, name string) (Unit, error) {
	name = shared.NormalizeText(name)
	if name == "" {
		return Unit{}, ErrNameRequired
	}
	u := Unit{ID: uuid.NewString(), Name: name}
	return u, s.repo.CreateUnit(ctx, u)
}

func (s *Service) CreateWarehouse(ctx context.Context, name string) (Warehouse, error) {
	name = shared.NormalizeText(name)
	if name == "" {
		return Warehouse{}, ErrNameRequired
	}
	w := Warehouse{ID: uuid.NewString(), Name: name}
	return w, s.repo.CreateWarehouse(ctx, w)
}

func (s *Service) CreateSupplier(ctx context.Context, name, phone, address string) (Supplier, error) {
	name = shared.NormalizeText(name)
	if name == "" {
		return Supplier{}, ErrNameRequired
	}
	sup := Supplier{ID: uuid.NewString(), Name: name, Phone: phone, Address: address}
	return sup, s.repo.CreateSupplier(ctx, sup)
}

func (s *Service) CreateEmployee(ctx context.Context, name string) (Employee, error) {
	name = shared.NormalizeText(name)
	if name == "" {
		return Employee{}, ErrNameRequired
	}
	e := Employee{ID: uuid.NewString(), Name: name}
	return e, s.repo.CreateEmployee(ctx, e)
}

// Rename updates an entity's display name. Renames are always safe: the event
// log references entities by id.
func (s *Service) Rename(ctx context.Context, kind Kind, id, name string) error {
	name = shared.NormalizeText(name)
	if name == "" {
		return ErrNameRequired
	}
	return s.repo.Rename(ctx, kind, id, name)
}

// Delete removes an entity unless any recorded transaction references it.
func (s *Service) Delete(ctx context.Context, kind Kind, id string) error {
	used, err := s.repo.Referenced(ctx, kind, id)
	if err != nil {
		return err
	}
	if used {
		return ledger.ErrEntityInUse
	}
	return s.repo.Delete(ctx, kind, id)
}

// Package years manages fiscal-year datasets: every collection is scoped to a
// year, and a year rollover carries closing balances forward into the next
// year's opening balances over empty event logs.
package years

import (
	"context"
	"errors"
	"time"

	"github.com/custodia-wms/custodia/internal/shared"
)

var (
	ErrYearExists  = errors.New("years: fiscal year already exists")
	ErrYearUnknown = errors.New("years: fiscal year does not exist")
	ErrYearActive  = errors.New("years: the active fiscal year cannot be deleted")
)

// Year is one fiscal-year dataset.
type Year struct {
	Year      string    `json:"year"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// TxRepository exposes the steps of one rollover or deletion.
type TxRepository interface {
	Exists(ctx context.Context, year string) (bool, error)
	Insert(ctx context.Context, y Year) error
	SetActive(ctx context.Context, year string) error
	// CarryForwardItems snapshots the source year's items into the target
	// year with opening balance set to the closing balance and a fresh
	// one-line history.
	CarryForwardItems(ctx context.Context, from, to string, stamp time.Time) error
	// CopyMasterData copies units, warehouses, suppliers and employees into
	// the target year unchanged.
	CopyMasterData(ctx context.Context, from, to string) error
	IsActive(ctx context.Context, year string) (bool, error)
	DeleteYearData(ctx context.Context, year string) error
}

// Repository abstracts fiscal-year persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context) ([]Year, error)
}

// Service coordinates fiscal-year management.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService builds Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// List returns all fiscal years, oldest first.
func (s *Service) List(ctx context.Context) ([]Year, error) {
	return s.repo.List(ctx)
}

// StartNewYear opens a fresh fiscal-year dataset seeded from the year in the
// request context: closing balances become opening balances, master data is
// copied as-is, and both event logs start empty. The new year becomes active.
func (s *Service) StartNewYear(ctx context.Context, newYear string) (Year, error) {
	from := shared.YearFromContext(ctx)
	now := s.now().UTC()
	year := Year{Year: newYear, Active: true, CreatedAt: now}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		exists, err := tx.Exists(ctx, newYear)
		if err != nil {
			return err
		}
		if exists {
			return ErrYearExists
		}
		if err := tx.Insert(ctx, year); err != nil {
			return err
		}
		if err := tx.CarryForwardItems(ctx, from, newYear, now); err != nil {
			return err
		}
		if err := tx.CopyMasterData(ctx, from, newYear); err != nil {
			return err
		}
		return tx.SetActive(ctx, newYear)
	})
	if err != nil {
		return Year{}, err
	}
	return year, nil
}

// Delete permanently removes a non-active fiscal year and all its data.
func (s *Service) Delete(ctx context.Context, year string) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		exists, err := tx.Exists(ctx, year)
		if err != nil {
			return err
		}
		if !exists {
			return ErrYearUnknown
		}
		active, err := tx.IsActive(ctx, year)
		if err != nil {
			return err
		}
		if active {
			return ErrYearActive
		}
		return tx.DeleteYearData(ctx, year)
	})
}

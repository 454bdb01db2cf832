// Package items implements item coding: creation, annotated edits and
// deletion of trackable stock-keeping units.
package items

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-wms/custodia/internal/ledger"
	"github.com/custodia-wms/custodia/internal/shared"
)

// ErrDuplicateItem signals a code or name collision with an existing item.
var ErrDuplicateItem = errors.New("items: code or name already registered")

// Repository abstracts item persistence for one financial-year dataset.
type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]ledger.Item, int, error)
	Get(ctx context.Context, id string) (ledger.Item, error)
	GetByCode(ctx context.Context, code string) (ledger.Item, error)
	HasDuplicate(ctx context.Context, code, name, excludeID string) (bool, error)
	Create(ctx context.Context, item ledger.Item) error
	Update(ctx context.Context, item ledger.Item) error
	Delete(ctx context.Context, id string) error
	Referenced(ctx context.Context, itemID string) (bool, error)
	ListLowStock(ctx context.Context) ([]ledger.Item, error)
}

// Service coordinates item coding operations.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService builds Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// CreateInput carries the fields entered during item coding.
type CreateInput struct {
	Code             string
	Name             string
	UnitID           string
	OpeningBalance   int
	MinThreshold     int
	ThresholdEnabled bool
	IsCustody        bool
	InitialState     ledger.CustodyState
	Price            float64
	ShelfNumber      string
	BoxNumber        string
}

// UpdateInput carries editable item fields. Balances are never edited here;
// they belong to the recorders.
type UpdateInput struct {
	Code             string
	Name             string
	UnitID           string
	MinThreshold     int
	ThresholdEnabled bool
	Price            float64
	ShelfNumber      string
	BoxNumber        string
}

// Create codes a new item. The opening balance seeds the running balance and,
// for custody items, applies to the declared initial state.
func (s *Service) Create(ctx context.Context, input CreateInput) (ledger.Item, error) {
	code := shared.NormalizeText(input.Code)
	name := shared.NormalizeText(input.Name)
	if code == "" || name == "" || strings.TrimSpace(input.UnitID) == "" {
		return ledger.Item{}, errors.New("items: code, name and unit are required")
	}
	if input.OpeningBalance < 0 || input.MinThreshold < 0 || input.Price < 0 {
		return ledger.Item{}, errors.New("items: opening balance, threshold and price must be non-negative")
	}

	initial := ledger.StateNew
	if input.IsCustody {
		switch input.InitialState {
		case "":
		case ledger.StateNew, ledger.StateUsed, ledger.StateScrap:
			initial = input.InitialState
		default:
			return ledger.Item{}, fmt.Errorf("items: unknown initial state %q", input.InitialState)
		}
	}

	dup, err := s.repo.HasDuplicate(ctx, code, name, "")
	if err != nil {
		return ledger.Item{}, err
	}
	if dup {
		return ledger.Item{}, ErrDuplicateItem
	}

	now := s.now().UTC()
	performer := shared.PerformerFromContext(ctx)
	item := ledger.Item{
		ID:               uuid.NewString(),
		Code:             code,
		Name:             name,
		UnitID:           input.UnitID,
		OpeningBalance:   input.OpeningBalance,
		CurrentBalance:   input.OpeningBalance,
		MinThreshold:     input.MinThreshold,
		ThresholdEnabled: input.ThresholdEnabled,
		IsCustody:        input.IsCustody,
		InitialState:     initial,
		Price:            input.Price,
		ShelfNumber:      input.ShelfNumber,
		BoxNumber:        input.BoxNumber,
		CreatedAt:        now,
		CreatedBy:        performer,
		History: []ledger.HistoryEntry{{
			UpdatedBy: performer,
			UpdatedAt: now,
			Changes:   "item coded",
		}},
	}
	if err := s.repo.Create(ctx, item); err != nil {
		return ledger.Item{}, err
	}
	return item, nil
}

// Update edits an item's master fields and documents every change in the
// append-only history.
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (ledger.Item, error) {
	item, err := s.repo.Get(ctx, id)
	if err != nil {
		return ledger.Item{}, err
	}

	code := shared.NormalizeText(input.Code)
	name := shared.NormalizeText(input.Name)
	if code == "" || name == "" {
		return ledger.Item{}, errors.New("items: code and name are required")
	}

	dup, err := s.repo.HasDuplicate(ctx, code, name, item.ID)
	if err != nil {
		return ledger.Item{}, err
	}
	if dup {
		return ledger.Item{}, ErrDuplicateItem
	}

	var changes []string
	record := func(field, from, to string) {
		if from != to {
			changes = append(changes, fmt.Sprintf("%s changed from [%s] to [%s]", field, from, to))
		}
	}
	record("name", item.Name, name)
	record("code", item.Code, code)
	record("price", fmt.Sprintf("%g", item.Price), fmt.Sprintf("%g", input.Price))
	record("shelf", item.ShelfNumber, input.ShelfNumber)
	record("box", item.BoxNumber, input.BoxNumber)
	record("threshold", fmt.Sprintf("%d", item.MinThreshold), fmt.Sprintf("%d", input.MinThreshold))

	item.Code = code
	item.Name = name
	if input.UnitID != "" {
		item.UnitID = input.UnitID
	}
	item.MinThreshold = input.MinThreshold
	item.ThresholdEnabled = input.ThresholdEnabled
	item.Price = input.Price
	item.ShelfNumber = input.ShelfNumber
	item.BoxNumber = input.BoxNumber

	summary := "general edit"
	if len(changes) > 0 {
		summary = strings.Join(changes, " | ")
	}
	item.History = append(item.History, ledger.HistoryEntry{
		UpdatedBy: shared.PerformerFromContext(ctx),
		UpdatedAt: s.now().UTC(),
		Changes:   summary,
	})

	if err := s.repo.Update(ctx, item); err != nil {
		return ledger.Item{}, err
	}
	return item, nil
}

// Delete removes an item unless any movement or custody event references it.
func (s *Service) Delete(ctx context.Context, id string) error {
	referenced, err := s.repo.Referenced(ctx, id)
	if err != nil {
		return err
	}
	if referenced {
		return ledger.ErrEntityInUse
	}
	return s.repo.Delete(ctx, id)
}

// List returns items matching the filters.
func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]ledger.Item, int, error) {
	return s.repo.List(ctx, filters.Normalize())
}

// Get loads a single item.
func (s *Service) Get(ctx context.Context, id string) (ledger.Item, error) {
	return s.repo.Get(ctx, id)
}

// GetByCode resolves an item by its barcode.
func (s *Service) GetByCode(ctx context.Context, code string) (ledger.Item, error) {
	return s.repo.GetByCode(ctx, shared.NormalizeText(code))
}

// LowStock lists threshold-enabled items at or below their minimum.
func (s *Service) LowStock(ctx context.Context) ([]ledger.Item, error) {
	return s.repo.ListLowStock(ctx)
}

package items

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/custodia-wms/custodia/internal/ledger"
	"github.com/custodia-wms/custodia/internal/platform/httpx"
	"github.com/custodia-wms/custodia/internal/shared"
)

type memoryItemRepo struct {
	items      map[string]ledger.Item
	referenced map[string]bool
}

func newMemoryItemRepo() *memoryItemRepo {
	return &memoryItemRepo{
		items:      make(map[string]ledger.Item),
		referenced: make(map[string]bool),
	}
}

func (r *memoryItemRepo) List(_ context.Context, filters shared.ListFilters) ([]ledger.Item, int, error) {
	var out []ledger.Item
	for _, it := range r.items {
		if filters.Search != "" &&
			!strings.Contains(it.Name, filters.Search) &&
			!strings.Contains(it.Code, filters.Search) {
			continue
		}
		out = append(out, it)
	}
	return out, len(out), nil
}

func (r *memoryItemRepo) Get(_ context.Context, id string) (ledger.Item, error) {
	it, ok := r.items[id]
	if !ok {
		return ledger.Item{}, httpx.ErrNotFound
	}
	return it, nil
}

func (r *memoryItemRepo) GetByCode(_ context.Context, code string) (ledger.Item, error) {
	for _, it := range r.items {
		if it.Code == code {
			return it, nil
		}
	}
	return ledger.Item{}, httpx.ErrNotFound
}

func (r *memoryItemRepo) HasDuplicate(_ context.Context, code, name, excludeID string) (bool, error) {
	for _, it := range r.items {
		if it.ID == excludeID {
			continue
		}
		if it.Code == code || it.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryItemRepo) Create(_ context.Context, item ledger.Item) error {
	r.items[item.ID] = item
	return nil
}

func (r *memoryItemRepo) Update(_ context.Context, item ledger.Item) error {
	r.items[item.ID] = item
	return nil
}

func (r *memoryItemRepo) Delete(_ context.Context, id string) error {
	delete(r.items, id)
	return nil
}

func (r *memoryItemRepo) Referenced(_ context.Context, itemID string) (bool, error) {
	return r.referenced[itemID], nil
}

func (r *memoryItemRepo) ListLowStock(_ context.Context) ([]ledger.Item, error) {
	var out []ledger.Item
	for _, it := range r.items {
		if it.ThresholdEnabled && it.CurrentBalance <= it.MinThreshold {
			out = append(out, it)
		}
	}
	return out, nil
}

func itemCtx() context.Context {
	ctx := shared.ContextWithPerformer(context.Background(), "storekeeper")
	return shared.ContextWithYear(ctx, "2025")
}

func TestCreateSeedsBalancesAndHistory(t *testing.T) {
	repo := newMemoryItemRepo()
	svc := NewService(repo)
	svc.now = func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) }

	item, err := svc.Create(itemCtx(), CreateInput{
		Code:           " BRG-204 ",
		Name:           "Ball Bearing 204",
		UnitID:         "unit-1",
		OpeningBalance: 40,
		Price:          12.5,
	})
	require.NoError(t, err)
	require.Equal(t, "BRG-204", item.Code)
	require.Equal(t, 40, item.OpeningBalance)
	require.Equal(t, 40, item.CurrentBalance)
	require.Equal(t, ledger.StateNew, item.InitialState)
	require.Len(t, item.History, 1)
	require.Equal(t, "storekeeper", item.History[0].UpdatedBy)
}

func TestCreateRejectsDuplicateCodeOrName(t *testing.T) {
	repo := newMemoryItemRepo()
	svc := NewService(repo)

	_, err := svc.Create(itemCtx(), CreateInput{Code: "BRG-204", Name: "Ball Bearing 204", UnitID: "unit-1"})
	require.NoError(t, err)

	_, err = svc.Create(itemCtx(), CreateInput{Code: "BRG-204", Name: "Other Name", UnitID: "unit-1"})
	require.ErrorIs(t, err, ErrDuplicateItem)

	_, err = svc.Create(itemCtx(), CreateInput{Code: "OTHER", Name: "Ball Bearing 204", UnitID: "unit-1"})
	require.ErrorIs(t, err, ErrDuplicateItem)
}

func TestCreateCustodyInitialState(t *testing.T) {
	repo := newMemoryItemRepo()
	svc := NewService(repo)

	item, err := svc.Create(itemCtx(), CreateInput{
		Code:           "DRL-11",
		Name:           "Drill",
		UnitID:         "unit-1",
		IsCustody:      true,
		InitialState:   ledger.StateUsed,
		OpeningBalance: 3,
	})
	require.NoError(t, err)
	require.Equal(t, ledger.StateUsed, item.InitialState)

	_, err = svc.Create(itemCtx(), CreateInput{
		Code:         "DRL-12",
		Name:         "Drill 12",
		UnitID:       "unit-1",
		IsCustody:    true,
		InitialState: "BROKEN",
	})
	require.Error(t, err)
}

func TestUpdateRecordsFieldDiffs(t *testing.T) {
	repo := newMemoryItemRepo()
	svc := NewService(repo)

	item, err := svc.Create(itemCtx(), CreateInput{Code: "BRG-204", Name: "Ball Bearing 204", UnitID: "unit-1", Price: 10})
	require.NoError(t, err)

	updated, err := svc.Update(itemCtx(), item.ID, UpdateInput{
		Code:  "BRG-204",
		Name:  "Ball Bearing 6204",
		Price: 12,
	})
	require.NoError(t, err)
	require.Equal(t, "Ball Bearing 6204", updated.Name)
	require.Len(t, updated.History, 2)
	require.Contains(t, updated.History[1].Changes, "name changed from [Ball Bearing 204] to [Ball Bearing 6204]")
	require.Contains(t, updated.History[1].Changes, "price changed from [10] to [12]")
}

func TestDeleteGuardsReferencedItems(t *testing.T) {
	repo := newMemoryItemRepo()
	svc := NewService(repo)

	item, err := svc.Create(itemCtx(), CreateInput{Code: "BRG-204", Name: "Ball Bearing 204", UnitID: "unit-1"})
	require.NoError(t, err)

	repo.referenced[item.ID] = true
	require.ErrorIs(t, svc.Delete(itemCtx(), item.ID), ledger.ErrEntityInUse)

	repo.referenced[item.ID] = false
	require.NoError(t, svc.Delete(itemCtx(), item.ID))
	_, err = svc.Get(itemCtx(), item.ID)
	require.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestLowStock(t *testing.T) {
	repo := newMemoryItemRepo()
	svc := NewService(repo)

	_, err := svc.Create(itemCtx(), CreateInput{
		Code: "BRG-204", Name: "Ball Bearing 204", UnitID: "unit-1",
		OpeningBalance: 2, MinThreshold: 5, ThresholdEnabled: true,
	})
	require.NoError(t, err)
	_, err = svc.Create(itemCtx(), CreateInput{
		Code: "BRG-205", Name: "Ball Bearing 205", UnitID: "unit-1",
		OpeningBalance: 50, MinThreshold: 5, ThresholdEnabled: true,
	})
	require.NoError(t, err)

	low, err := svc.LowStock(itemCtx())
	require.NoError(t, err)
	require.Len(t, low, 1)
	require.Equal(t, "BRG-204", low[0].Code)
}

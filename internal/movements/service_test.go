package movements

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/custodia-wms/custodia/internal/ledger"
	"github.com/custodia-wms/custodia/internal/platform/httpx"
	"github.com/custodia-wms/custodia/internal/shared"
)

type memoryMoveRepo struct {
	items     map[string]ledger.Item
	movements map[string]ledger.StockMovement
	docs      map[string]bool
}

type memoryMoveTx struct {
	repo *memoryMoveRepo
}

func newMemoryMoveRepo() *memoryMoveRepo {
	return &memoryMoveRepo{
		items:     make(map[string]ledger.Item),
		movements: make(map[string]ledger.StockMovement),
		docs:      make(map[string]bool),
	}
}

func (r *memoryMoveRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryMoveTx{repo: r})
}

func (r *memoryMoveRepo) List(ctx context.Context, filter ListFilter) ([]ledger.StockMovement, int, error) {
	var out []ledger.StockMovement
	for _, m := range r.movements {
		if filter.ItemID != "" && m.ItemID != filter.ItemID {
			continue
		}
		out = append(out, m)
	}
	return out, len(out), nil
}

func (r *memoryMoveRepo) Get(ctx context.Context, id string) (ledger.StockMovement, error) {
	m, ok := r.movements[id]
	if !ok {
		return ledger.StockMovement{}, httpx.ErrNotFound
	}
	return m, nil
}

func (tx *memoryMoveTx) GetItemForUpdate(ctx context.Context, itemID string) (ledger.Item, error) {
	it, ok := tx.repo.items[itemID]
	if !ok {
		return ledger.Item{}, httpx.ErrNotFound
	}
	return it, nil
}

func (tx *memoryMoveTx) GetMovement(ctx context.Context, id string) (ledger.StockMovement, error) {
	return tx.repo.Get(ctx, id)
}

func (tx *memoryMoveTx) InsertMovement(ctx context.Context, m ledger.StockMovement) error {
	tx.repo.movements[m.ID] = m
	tx.repo.docs[m.DocNumber] = true
	return nil
}

func (tx *memoryMoveTx) UpdateMovement(ctx context.Context, m ledger.StockMovement) error {
	tx.repo.movements[m.ID] = m
	tx.repo.docs[m.DocNumber] = true
	return nil
}

func (tx *memoryMoveTx) DeleteMovement(ctx context.Context, id string) error {
	delete(tx.repo.movements, id)
	return nil
}

func (tx *memoryMoveTx) UpdateItemBalance(ctx context.Context, itemID string, balance int) error {
	it := tx.repo.items[itemID]
	it.CurrentBalance = balance
	tx.repo.items[itemID] = it
	return nil
}

func (tx *memoryMoveTx) UpdateItemPrice(ctx context.Context, itemID string, price float64) error {
	it := tx.repo.items[itemID]
	it.Price = price
	tx.repo.items[itemID] = it
	return nil
}

func (tx *memoryMoveTx) DocNumberExists(ctx context.Context, docNumber string) (bool, error) {
	return tx.repo.docs[docNumber], nil
}

func seedItem(repo *memoryMoveRepo, balance int) ledger.Item {
	it := ledger.Item{
		ID:             "item-1",
		Code:           "1001",
		Name:           "printer toner",
		UnitID:         "unit-1",
		OpeningBalance: balance,
		CurrentBalance: balance,
		InitialState:   ledger.StateNew,
	}
	repo.items[it.ID] = it
	return it
}

func testCtx() context.Context {
	ctx := shared.ContextWithPerformer(context.Background(), "storekeeper")
	return shared.ContextWithYear(ctx, "2025")
}

func TestRecordInwardIncreasesBalance(t *testing.T) {
	repo := newMemoryMoveRepo()
	seedItem(repo, 100)
	svc := NewService(repo)

	result, err := svc.Record(testCtx(), RecordInput{
		ItemID:     "item-1",
		Type:       ledger.MovementInward,
		Quantity:   50,
		DocNumber:  "IN-1",
		SupplierID: "sup-1",
		UnitPrice:  12.5,
	})
	require.NoError(t, err)
	require.Equal(t, 150, result.Item.CurrentBalance)
	require.Equal(t, 150, result.Movement.BalanceAfter)
	require.Equal(t, "sup-1", result.Movement.SupplierID)
	require.Equal(t, "storekeeper", result.Movement.PerformedBy)
	// inward purchases refresh the item's last price
	require.Equal(t, 12.5, repo.items["item-1"].Price)
}

func TestRecordOutwardRejectsOverdraw(t *testing.T) {
	repo := newMemoryMoveRepo()
	seedItem(repo, 30)
	svc := NewService(repo)

	_, err := svc.Record(testCtx(), RecordInput{
		ItemID:    "item-1",
		Type:      ledger.MovementOutward,
		Quantity:  31,
		DocNumber: "OUT-1",
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)
	require.Empty(t, repo.movements)
	require.Equal(t, 30, repo.items["item-1"].CurrentBalance)
}

func TestRecordRejectsNonPositiveQuantity(t *testing.T) {
	repo := newMemoryMoveRepo()
	seedItem(repo, 30)
	svc := NewService(repo)

	for _, qty := range []int{0, -5} {
		_, err := svc.Record(testCtx(), RecordInput{
			ItemID:    "item-1",
			Type:      ledger.MovementInward,
			Quantity:  qty,
			DocNumber: "IN-1",
		})
		require.ErrorIs(t, err, ledger.ErrInvalidQuantity)
	}
}

func TestRecordRejectsDuplicateDocNumber(t *testing.T) {
	repo := newMemoryMoveRepo()
	seedItem(repo, 100)
	svc := NewService(repo)
	ctx := testCtx()

	_, err := svc.Record(ctx, RecordInput{
		ItemID: "item-1", Type: ledger.MovementInward, Quantity: 10, DocNumber: "DOC-9",
	})
	require.NoError(t, err)

	_, err = svc.Record(ctx, RecordInput{
		ItemID: "item-1", Type: ledger.MovementOutward, Quantity: 5, DocNumber: "DOC-9",
	})
	require.ErrorIs(t, err, ledger.ErrDuplicateDocumentNumber)
}

func TestEditReappliesQuantityDiff(t *testing.T) {
	repo := newMemoryMoveRepo()
	seedItem(repo, 100)
	svc := NewService(repo)
	ctx := testCtx()

	recorded, err := svc.Record(ctx, RecordInput{
		ItemID: "item-1", Type: ledger.MovementOutward, Quantity: 30, DocNumber: "OUT-1",
	})
	require.NoError(t, err)
	require.Equal(t, 70, recorded.Item.CurrentBalance)

	// 30 -> 20 puts 10 back on the shelf
	edited, err := svc.Edit(ctx, recorded.Movement.ID, EditInput{Quantity: 20})
	require.NoError(t, err)
	require.Equal(t, 80, edited.Item.CurrentBalance)
	require.Equal(t, 80, edited.Movement.BalanceAfter)
	require.NotNil(t, edited.Movement.LastModifiedAt)
	require.Len(t, edited.Movement.History, 2)
	require.Contains(t, edited.Movement.History[1].Changes, "quantity changed from [30] to [20]")
}

func TestEditOutwardIncreaseChecksStock(t *testing.T) {
	repo := newMemoryMoveRepo()
	seedItem(repo, 50)
	svc := NewService(repo)
	ctx := testCtx()

	recorded, err := svc.Record(ctx, RecordInput{
		ItemID: "item-1", Type: ledger.MovementOutward, Quantity: 40, DocNumber: "OUT-1",
	})
	require.NoError(t, err)

	// remaining stock is 10, so growing the issue by 20 must fail
	_, err = svc.Edit(ctx, recorded.Movement.ID, EditInput{Quantity: 60})
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)
}

func TestEditCannotDropBelowReturnedQuantity(t *testing.T) {
	repo := newMemoryMoveRepo()
	seedItem(repo, 100)
	svc := NewService(repo)
	ctx := testCtx()

	out, err := svc.Record(ctx, RecordInput{
		ItemID: "item-1", Type: ledger.MovementOutward, Quantity: 10, DocNumber: "OUT-1",
	})
	require.NoError(t, err)

	_, err = svc.RegisterReturn(ctx, out.Movement.ID, ReturnInput{Quantity: 5, DocNumber: "RET-1"})
	require.NoError(t, err)

	// 5 already came back, so the movement cannot shrink to 3.
	_, err = svc.Edit(ctx, out.Movement.ID, EditInput{Quantity: 3})
	require.ErrorIs(t, err, ledger.ErrReturnExceedsAvailable)

	// Shrinking to exactly the returned quantity is still a valid edit; the
	// 5-unit reduction flows back onto the shelf next to the 5 returned.
	edited, err := svc.Edit(ctx, out.Movement.ID, EditInput{Quantity: 5})
	require.NoError(t, err)
	require.Equal(t, 0, edited.Movement.Net())
	require.Equal(t, 100, edited.Item.CurrentBalance)
}

func TestRegisterReturnInverseEffect(t *testing.T) {
	repo := newMemoryMoveRepo()
	seedItem(repo, 100)
	svc := NewService(repo)
	ctx := testCtx()

	out, err := svc.Record(ctx, RecordInput{
		ItemID: "item-1", Type: ledger.MovementOutward, Quantity: 30, DocNumber: "OUT-1",
	})
	require.NoError(t, err)
	require.Equal(t, 70, out.Item.CurrentBalance)

	returned, err := svc.RegisterReturn(ctx, out.Movement.ID, ReturnInput{Quantity: 10, DocNumber: "RET-1"})
	require.NoError(t, err)
	require.Equal(t, 80, returned.Item.CurrentBalance)
	require.Equal(t, 10, returned.Movement.ReturnedQuantity)
	require.Equal(t, 20, returned.Movement.Net())
}

func TestRegisterReturnCapsAtNetQuantity(t *testing.T) {
	repo := newMemoryMoveRepo()
	seedItem(repo, 100)
	svc := NewService(repo)
	ctx := testCtx()

	out, err := svc.Record(ctx, RecordInput{
		ItemID: "item-1", Type: ledger.MovementOutward, Quantity: 30, DocNumber: "OUT-1",
	})
	require.NoError(t, err)

	_, err = svc.RegisterReturn(ctx, out.Movement.ID, ReturnInput{Quantity: 20, DocNumber: "RET-1"})
	require.NoError(t, err)

	_, err = svc.RegisterReturn(ctx, out.Movement.ID, ReturnInput{Quantity: 11, DocNumber: "RET-2"})
	require.ErrorIs(t, err, ledger.ErrReturnExceedsAvailable)
}

func TestReturnAgainstInwardDecreasesStock(t *testing.T) {
	repo := newMemoryMoveRepo()
	seedItem(repo, 100)
	svc := NewService(repo)
	ctx := testCtx()

	in, err := svc.Record(ctx, RecordInput{
		ItemID: "item-1", Type: ledger.MovementInward, Quantity: 40, DocNumber: "IN-1", SupplierID: "sup-1",
	})
	require.NoError(t, err)
	require.Equal(t, 140, in.Item.CurrentBalance)

	returned, err := svc.RegisterReturn(ctx, in.Movement.ID, ReturnInput{Quantity: 15, DocNumber: "RET-1"})
	require.NoError(t, err)
	require.Equal(t, 125, returned.Item.CurrentBalance)
}

func TestDeleteReversesNetEffect(t *testing.T) {
	repo := newMemoryMoveRepo()
	seedItem(repo, 100)
	svc := NewService(repo)
	ctx := testCtx()

	out, err := svc.Record(ctx, RecordInput{
		ItemID: "item-1", Type: ledger.MovementOutward, Quantity: 30, DocNumber: "OUT-1",
	})
	require.NoError(t, err)

	_, err = svc.RegisterReturn(ctx, out.Movement.ID, ReturnInput{Quantity: 10, DocNumber: "RET-1"})
	require.NoError(t, err)

	// 30 out, 10 already back: deleting restores only the outstanding 20
	require.NoError(t, svc.Delete(ctx, out.Movement.ID))
	require.Equal(t, 100, repo.items["item-1"].CurrentBalance)
	require.Empty(t, repo.movements)
}

func TestRecordStampsUTCTimestamp(t *testing.T) {
	repo := newMemoryMoveRepo()
	seedItem(repo, 10)
	svc := NewService(repo)
	fixed := time.Date(2025, 3, 1, 9, 30, 0, 0, time.FixedZone("EET", 2*3600))
	svc.now = func() time.Time { return fixed }

	result, err := svc.Record(testCtx(), RecordInput{
		ItemID: "item-1", Type: ledger.MovementInward, Quantity: 1, DocNumber: "IN-1",
	})
	require.NoError(t, err)
	require.Equal(t, fixed.UTC(), result.Movement.Timestamp)
}

package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/custodia-wms/custodia/internal/ledger"
	"github.com/custodia-wms/custodia/internal/platform/httpx"
	"github.com/custodia-wms/custodia/internal/shared"
)

type memoryAuditRepo struct {
	items     map[string]ledger.Item
	movements []ledger.StockMovement
	events    []ledger.CustodyEvent
	docs      map[string]bool
}

type memoryAuditTx struct {
	repo *memoryAuditRepo
}

func newMemoryAuditRepo() *memoryAuditRepo {
	return &memoryAuditRepo{
		items: make(map[string]ledger.Item),
		docs:  make(map[string]bool),
	}
}

func (r *memoryAuditRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryAuditTx{repo: r})
}

func (r *memoryAuditRepo) AuditMovements(ctx context.Context) ([]ledger.StockMovement, error) {
	var out []ledger.StockMovement
	for _, m := range r.movements {
		if m.Audit {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memoryAuditRepo) SettlementEvents(ctx context.Context) ([]ledger.CustodyEvent, error) {
	var out []ledger.CustodyEvent
	for _, c := range r.events {
		if c.Type == ledger.CustodySettlement {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memoryAuditRepo) ItemRefs(ctx context.Context, ids []string) (map[string]ItemRef, error) {
	refs := make(map[string]ItemRef)
	for _, id := range ids {
		if it, ok := r.items[id]; ok {
			refs[id] = ItemRef{Code: it.Code, Name: it.Name}
		}
	}
	return refs, nil
}

func (tx *memoryAuditTx) GetItemForUpdate(ctx context.Context, itemID string) (ledger.Item, error) {
	it, ok := tx.repo.items[itemID]
	if !ok {
		return ledger.Item{}, httpx.ErrNotFound
	}
	return it, nil
}

func (tx *memoryAuditTx) ListItemMovements(ctx context.Context, itemID string) ([]ledger.StockMovement, error) {
	var out []ledger.StockMovement
	for _, m := range tx.repo.movements {
		if m.ItemID == itemID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (tx *memoryAuditTx) ListItemEvents(ctx context.Context, itemID string) ([]ledger.CustodyEvent, error) {
	var out []ledger.CustodyEvent
	for _, c := range tx.repo.events {
		if c.ItemID == itemID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (tx *memoryAuditTx) InsertMovement(ctx context.Context, m ledger.StockMovement) error {
	tx.repo.movements = append(tx.repo.movements, m)
	tx.repo.docs[m.DocNumber] = true
	return nil
}

func (tx *memoryAuditTx) InsertEvent(ctx context.Context, event ledger.CustodyEvent) error {
	tx.repo.events = append(tx.repo.events, event)
	tx.repo.docs[event.DocNumber] = true
	return nil
}

func (tx *memoryAuditTx) UpdateItemBalance(ctx context.Context, itemID string, balance int) error {
	it := tx.repo.items[itemID]
	it.CurrentBalance = balance
	tx.repo.items[itemID] = it
	return nil
}

func (tx *memoryAuditTx) DocNumberExists(ctx context.Context, docNumber string) (bool, error) {
	return tx.repo.docs[docNumber], nil
}

func seedGeneral(repo *memoryAuditRepo, id string, balance int) {
	repo.items[id] = ledger.Item{
		ID: id, Code: "1" + id, Name: "general " + id, UnitID: "unit-1",
		OpeningBalance: balance, CurrentBalance: balance,
		InitialState: ledger.StateNew,
	}
}

func seedCustody(repo *memoryAuditRepo, id string, balance int) {
	repo.items[id] = ledger.Item{
		ID: id, Code: "2" + id, Name: "custody " + id, UnitID: "unit-1",
		OpeningBalance: balance, CurrentBalance: balance,
		IsCustody: true, InitialState: ledger.StateNew,
	}
}

func testCtx() context.Context {
	ctx := shared.ContextWithPerformer(context.Background(), "auditor")
	return shared.ContextWithYear(ctx, "2025")
}

func TestCommitDeficitEmitsOutwardMovement(t *testing.T) {
	repo := newMemoryAuditRepo()
	seedGeneral(repo, "x", 120)
	svc := NewService(repo)

	result, err := svc.Commit(testCtx(), CommitInput{
		DocNumber: "AUD-1",
		Items: []ItemCounts{
			{ItemID: "x", Counts: map[ledger.CustodyState]int{ledger.StateNew: 115}},
		},
	})
	require.NoError(t, err)
	require.Len(t, result.Movements, 1)
	require.Empty(t, result.Events)
	require.Equal(t, -5, result.TotalDiff)

	move := result.Movements[0]
	require.Equal(t, ledger.MovementOutward, move.Type)
	require.Equal(t, 5, move.Quantity)
	require.True(t, move.Audit)
	require.Equal(t, 115, repo.items["x"].CurrentBalance)
}

func TestCommitSurplusEmitsInwardMovement(t *testing.T) {
	repo := newMemoryAuditRepo()
	seedGeneral(repo, "x", 100)
	svc := NewService(repo)

	result, err := svc.Commit(testCtx(), CommitInput{
		DocNumber: "AUD-1",
		Items: []ItemCounts{
			{ItemID: "x", Counts: map[ledger.CustodyState]int{ledger.StateNew: 104}},
		},
	})
	require.NoError(t, err)
	require.Equal(t, ledger.MovementInward, result.Movements[0].Type)
	require.Equal(t, 4, result.Movements[0].Quantity)
	require.Equal(t, 104, repo.items["x"].CurrentBalance)
}

func TestCommitScrapEmitsAuditOnlySettlement(t *testing.T) {
	repo := newMemoryAuditRepo()
	seedCustody(repo, "y", 20)
	svc := NewService(repo)

	result, err := svc.Commit(testCtx(), CommitInput{
		DocNumber: "AUD-1",
		Items: []ItemCounts{
			{ItemID: "y", Counts: map[ledger.CustodyState]int{ledger.StateScrap: 3}},
		},
	})
	require.NoError(t, err)
	require.Empty(t, result.Movements)
	require.Len(t, result.Events, 1)

	event := result.Events[0]
	require.True(t, event.AuditOnly)
	require.Equal(t, ledger.CustodySettlement, event.Type)
	require.Equal(t, ledger.DirectionSurplus, event.Direction)
	require.Equal(t, ledger.ActorSystem, event.Actor.Kind)
	require.Equal(t, ledger.ReasonAudit, event.Actor.Reason)

	// the audit-only entry never feeds back into the derivation
	item := repo.items["y"]
	require.Equal(t, 0, ledger.DeriveBalance(item, ledger.StateScrap, repo.movements, repo.events))
	require.Equal(t, 20, item.CurrentBalance)
}

func TestCommitUsedEmitsRealSettlement(t *testing.T) {
	repo := newMemoryAuditRepo()
	seedCustody(repo, "y", 20)
	// 6 on the shelf in USED via an earlier return
	repo.events = append(repo.events, ledger.CustodyEvent{
		ID: "c-0", ItemID: "y", Actor: ledger.HumanActor("emp-1"),
		Quantity: 6, State: ledger.StateUsed, Type: ledger.CustodyReturn,
	})
	svc := NewService(repo)

	result, err := svc.Commit(testCtx(), CommitInput{
		DocNumber: "AUD-1",
		Items: []ItemCounts{
			{ItemID: "y", Counts: map[ledger.CustodyState]int{ledger.StateUsed: 4}},
		},
	})
	require.NoError(t, err)
	require.Len(t, result.Events, 1)

	event := result.Events[0]
	require.False(t, event.AuditOnly)
	require.Equal(t, ledger.DirectionDeficit, event.Direction)
	require.Equal(t, 2, event.Quantity)

	// real settlements participate in later derivations
	item := repo.items["y"]
	require.Equal(t, 4, ledger.DeriveBalance(item, ledger.StateUsed, repo.movements, repo.events))
}

func TestCommitSkipsZeroDiffs(t *testing.T) {
	repo := newMemoryAuditRepo()
	seedGeneral(repo, "x", 100)
	svc := NewService(repo)

	_, err := svc.Commit(testCtx(), CommitInput{
		DocNumber: "AUD-1",
		Items: []ItemCounts{
			{ItemID: "x", Counts: map[ledger.CustodyState]int{ledger.StateNew: 100}},
		},
	})
	require.ErrorIs(t, err, ledger.ErrNothingToReconcile)
	require.Empty(t, repo.movements)
}

func TestCommitRejectsDuplicateDocNumber(t *testing.T) {
	repo := newMemoryAuditRepo()
	seedGeneral(repo, "x", 100)
	repo.docs["AUD-1"] = true
	svc := NewService(repo)

	_, err := svc.Commit(testCtx(), CommitInput{
		DocNumber: "AUD-1",
		Items: []ItemCounts{
			{ItemID: "x", Counts: map[ledger.CustodyState]int{ledger.StateNew: 90}},
		},
	})
	require.ErrorIs(t, err, ledger.ErrDuplicateDocumentNumber)
}

func TestArchiveGroupsByDocNumber(t *testing.T) {
	repo := newMemoryAuditRepo()
	seedGeneral(repo, "x", 120)
	seedCustody(repo, "y", 20)
	svc := NewService(repo)
	ctx := testCtx()

	_, err := svc.Commit(ctx, CommitInput{
		DocNumber: "AUD-1",
		Items: []ItemCounts{
			{ItemID: "x", Counts: map[ledger.CustodyState]int{ledger.StateNew: 115}},
		},
	})
	require.NoError(t, err)

	_, err = svc.Commit(ctx, CommitInput{
		DocNumber: "SCRAP-1",
		Items: []ItemCounts{
			{ItemID: "y", Counts: map[ledger.CustodyState]int{ledger.StateScrap: 3}},
		},
	})
	require.NoError(t, err)

	all, err := svc.Archive(ctx, ArchiveAll)
	require.NoError(t, err)
	require.Len(t, all, 2)

	audits, err := svc.Archive(ctx, ArchiveAudit)
	require.NoError(t, err)
	require.Len(t, audits, 1)
	require.Equal(t, "AUD-1", audits[0].DocNumber)
	require.Equal(t, -5, audits[0].TotalDiff)
	require.False(t, audits[0].HasScrap)

	scraps, err := svc.Archive(ctx, ArchiveScrap)
	require.NoError(t, err)
	require.Len(t, scraps, 1)
	require.Equal(t, "SCRAP-1", scraps[0].DocNumber)
	require.True(t, scraps[0].HasScrap)
}

func TestArchiveDetailReconstructsLines(t *testing.T) {
	repo := newMemoryAuditRepo()
	seedGeneral(repo, "x", 120)
	svc := NewService(repo)
	ctx := testCtx()

	_, err := svc.Commit(ctx, CommitInput{
		DocNumber: "AUD-1",
		Items: []ItemCounts{
			{ItemID: "x", Counts: map[ledger.CustodyState]int{ledger.StateNew: 115}},
		},
	})
	require.NoError(t, err)

	lines, err := svc.ArchiveDetail(ctx, "AUD-1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.Equal(t, 120, lines[0].BookQty)
	require.Equal(t, 115, lines[0].PhysicalQty)
	require.Equal(t, -5, lines[0].Diff)
	require.Equal(t, "general x", lines[0].ItemName)
}

package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func date(day int) time.Time {
	return time.Date(2026, time.March, day, 10, 0, 0, 0, time.UTC)
}

func TestBuildStockCardRunningBalance(t *testing.T) {
	item := generalItem(100)
	item.CreatedAt = date(1)
	movements := []StockMovement{
		{ID: "m-1", ItemID: item.ID, Type: MovementInward, Quantity: 50, DocNumber: "IN-1", Timestamp: date(2)},
		{ID: "m-2", ItemID: item.ID, Type: MovementOutward, Quantity: 30, DocNumber: "OUT-1", Timestamp: date(3)},
	}

	card := BuildStockCard(item, movements, nil, StockCardFilter{})
	require.Len(t, card.Entries, 3)

	require.Equal(t, ActionOpening, card.Entries[0].Action)
	require.Equal(t, 100, card.Entries[0].Balance)
	require.Equal(t, 150, card.Entries[1].Balance)
	require.Equal(t, 120, card.Entries[2].Balance)
	require.Equal(t, LedgerTotals{In: 50, Out: 30, Final: 120}, card.Totals)

	// The final running balance always agrees with the deriver.
	require.Equal(t, DeriveBalance(item, StateNew, movements, nil), card.Totals.Final)
}

func TestBuildStockCardReturnRow(t *testing.T) {
	item := generalItem(0)
	movements := []StockMovement{
		{ID: "m-1", ItemID: item.ID, Type: MovementInward, Quantity: 20, DocNumber: "IN-1", Timestamp: date(2)},
		{ID: "m-2", ItemID: item.ID, Type: MovementOutward, Quantity: 10, ReturnedQuantity: 4, DocNumber: "OUT-1", ReturnDocNumber: "RET-9", Timestamp: date(3)},
	}

	card := BuildStockCard(item, movements, nil, StockCardFilter{})
	require.Len(t, card.Entries, 4)

	returnRow := card.Entries[3]
	require.Equal(t, ActionIssueReturn, returnRow.Action)
	require.Equal(t, "RET-9", returnRow.DocNumber)
	require.Equal(t, 4, returnRow.In)
	require.Equal(t, 14, returnRow.Balance)
	require.Equal(t, DeriveBalance(item, StateNew, movements, nil), card.Totals.Final)
}

func TestBuildStockCardCarriedForward(t *testing.T) {
	item := generalItem(100)
	movements := []StockMovement{
		{ID: "m-1", ItemID: item.ID, Type: MovementInward, Quantity: 50, DocNumber: "IN-1", Timestamp: date(2)},
		{ID: "m-2", ItemID: item.ID, Type: MovementOutward, Quantity: 30, DocNumber: "OUT-1", Timestamp: date(10)},
	}

	card := BuildStockCard(item, movements, nil, StockCardFilter{From: date(5)})
	require.Len(t, card.Entries, 2)
	require.Equal(t, ActionCarriedForward, card.Entries[0].Action)
	require.Equal(t, 150, card.Entries[0].Balance)
	require.Equal(t, 120, card.Entries[1].Balance)
	require.Equal(t, LedgerTotals{In: 0, Out: 30, Final: 120}, card.Totals)
}

func TestBuildStockCardCustodyRows(t *testing.T) {
	item := custodyItem(10, StateNew)
	item.CreatedAt = date(1)
	events := []CustodyEvent{
		{ID: "c-1", ItemID: item.ID, Actor: HumanActor("emp-1"), Quantity: 4, State: StateNew, Type: CustodyHandover, DocNumber: "H-1", Timestamp: date(2)},
		{ID: "c-2", ItemID: item.ID, Actor: HumanActor("emp-1"), Quantity: 4, State: StateUsed, Type: CustodyReturn, DocNumber: "R-1", Timestamp: date(3)},
		{ID: "c-3", ItemID: item.ID, Actor: SystemActor(ReasonScrapWriteOff), Quantity: 1, State: StateScrap, Type: CustodySettlement, Direction: DirectionDeficit, DocNumber: "SCRAP-1", Timestamp: date(4)},
	}

	card := BuildStockCard(item, nil, events, StockCardFilter{})
	require.Len(t, card.Entries, 4)
	require.Equal(t, ActionHandover, card.Entries[1].Action)
	require.Equal(t, ActionCustodyReturn, card.Entries[2].Action)
	require.Equal(t, ActionScrapWriteOff, card.Entries[3].Action)
}

func TestBuildStockCardExcludesAuditOnly(t *testing.T) {
	item := custodyItem(0, StateNew)
	events := []CustodyEvent{
		{ID: "c-1", ItemID: item.ID, Actor: SystemActor(ReasonAudit), Quantity: 3, State: StateScrap, Type: CustodySettlement, Direction: DirectionSurplus, AuditOnly: true, DocNumber: "AUD-1", Timestamp: date(2)},
	}
	card := BuildStockCard(item, nil, events, StockCardFilter{})
	require.Len(t, card.Entries, 1) // opening row only
	require.Equal(t, 0, card.Totals.Final)
}

func TestBuildStockCardStateFilter(t *testing.T) {
	item := custodyItem(10, StateNew)
	events := []CustodyEvent{
		{ID: "c-1", ItemID: item.ID, Actor: HumanActor("emp-1"), Quantity: 4, State: StateNew, Type: CustodyHandover, Timestamp: date(2)},
		{ID: "c-2", ItemID: item.ID, Actor: HumanActor("emp-1"), Quantity: 4, State: StateUsed, Type: CustodyReturn, Timestamp: date(3)},
	}

	card := BuildStockCard(item, nil, events, StockCardFilter{State: StateUsed})
	require.Len(t, card.Entries, 2)
	require.Equal(t, ActionCustodyReturn, card.Entries[1].Action)
}

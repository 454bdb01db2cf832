package ledger

import (
	"sort"
	"time"
)

// LedgerEntry is one row of the chronological stock card, annotated with the
// running balance after the row was applied.
type LedgerEntry struct {
	Timestamp   time.Time    `json:"timestamp"`
	DocNumber   string       `json:"doc_number"`
	Action      string       `json:"action"`
	State       CustodyState `json:"state"`
	In          int          `json:"in"`
	Out         int          `json:"out"`
	Balance     int          `json:"balance"`
	PerformedBy string       `json:"performed_by"`
	Note        string       `json:"note,omitempty"`
}

// LedgerTotals aggregates the card over the selected range.
type LedgerTotals struct {
	In    int `json:"in"`
	Out   int `json:"out"`
	Final int `json:"final"`
}

// StockCard is the export/report view of one item's ledger.
type StockCard struct {
	Entries []LedgerEntry `json:"entries"`
	Totals  LedgerTotals  `json:"totals"`
}

// StockCardFilter narrows the card to a date range and optionally one state.
type StockCardFilter struct {
	From  time.Time
	To    time.Time
	State CustodyState // empty means all states
}

// Ledger action labels.
const (
	ActionOpening         = "opening balance"
	ActionCarriedForward  = "carried forward"
	ActionInward          = "inward"
	ActionOutward         = "outward"
	ActionSupplierReturn  = "supplier return"
	ActionIssueReturn     = "issue return"
	ActionAuditSurplus    = "audit settlement (surplus)"
	ActionAuditDeficit    = "audit settlement (deficit)"
	ActionHandover        = "custody handover"
	ActionCustodyReturn   = "custody return"
	ActionSettleSurplus   = "custody settlement (surplus)"
	ActionSettleDeficit   = "custody settlement (deficit)"
	ActionScrapWriteOff   = "scrap write-off"
	systemPerformer       = "system"
	openingDocNumber      = "OPEN-INV"
	carriedForwardDocStub = "C/F"
)

// BuildStockCard reconstructs the ordered list of book-balance-affecting
// entries for one item with a running balance per entry, independent of the
// raw storage order. Audit-only settlements are excluded — they do not affect
// book balances and would desynchronize the running column from
// DeriveBalance.
func BuildStockCard(item Item, movements []StockMovement, events []CustodyEvent, filter StockCardFilter) StockCard {
	entries := collectEntries(item, movements, events)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	if filter.State != "" {
		filtered := entries[:0]
		for _, e := range entries {
			if e.State == filter.State {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	card := StockCard{}
	running := item.OpeningBalance

	if !filter.From.IsZero() {
		carried := item.OpeningBalance
		for _, e := range entries {
			if e.Timestamp.Before(filter.From) {
				carried += e.In - e.Out
			}
		}
		card.Entries = append(card.Entries, LedgerEntry{
			Timestamp:   filter.From,
			DocNumber:   carriedForwardDocStub,
			Action:      ActionCarriedForward,
			State:       filter.State,
			Balance:     carried,
			PerformedBy: systemPerformer,
		})
		running = carried
	} else {
		card.Entries = append(card.Entries, LedgerEntry{
			Timestamp:   item.CreatedAt,
			DocNumber:   openingDocNumber,
			Action:      ActionOpening,
			State:       openingState(item),
			In:          item.OpeningBalance,
			Balance:     item.OpeningBalance,
			PerformedBy: item.CreatedBy,
		})
	}

	for _, e := range entries {
		if !filter.From.IsZero() && e.Timestamp.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && e.Timestamp.After(filter.To) {
			continue
		}
		running += e.In - e.Out
		e.Balance = running
		card.Entries = append(card.Entries, e)
		card.Totals.In += e.In
		card.Totals.Out += e.Out
	}
	card.Totals.Final = running
	return card
}

func openingState(item Item) CustodyState {
	if item.IsCustody && item.InitialState != "" {
		return item.InitialState
	}
	return StateNew
}

func collectEntries(item Item, movements []StockMovement, events []CustodyEvent) []LedgerEntry {
	var entries []LedgerEntry

	for _, m := range movements {
		if m.ItemID != item.ID {
			continue
		}
		action := ActionInward
		in, out := m.Quantity, 0
		if m.Type == MovementOutward {
			action, in, out = ActionOutward, 0, m.Quantity
		}
		entries = append(entries, LedgerEntry{
			Timestamp:   m.Timestamp,
			DocNumber:   m.DocNumber,
			Action:      action,
			State:       StateNew,
			In:          in,
			Out:         out,
			PerformedBy: m.PerformedBy,
			Note:        m.Note,
		})

		// Partial or total returns reverse the movement in a companion row so
		// the card still shows the original gross quantity.
		if m.ReturnedQuantity > 0 {
			doc := m.ReturnDocNumber
			if doc == "" {
				doc = "RET-" + m.DocNumber
			}
			retAction := ActionSupplierReturn
			retIn, retOut := 0, m.ReturnedQuantity
			if m.Type == MovementOutward {
				retAction, retIn, retOut = ActionIssueReturn, m.ReturnedQuantity, 0
			}
			entries = append(entries, LedgerEntry{
				Timestamp:   m.Timestamp,
				DocNumber:   doc,
				Action:      retAction,
				State:       StateNew,
				In:          retIn,
				Out:         retOut,
				PerformedBy: m.PerformedBy,
				Note:        "return against document " + m.DocNumber,
			})
		}
	}

	for _, c := range events {
		if c.ItemID != item.ID || c.AuditOnly {
			continue
		}
		entry := LedgerEntry{
			Timestamp:   c.Timestamp,
			DocNumber:   c.DocNumber,
			State:       c.State,
			PerformedBy: c.PerformedBy,
			Note:        c.Note,
		}
		switch c.Type {
		case CustodyHandover:
			entry.Action = ActionHandover
			entry.Out = c.Quantity
		case CustodyReturn:
			entry.Action = ActionCustodyReturn
			entry.In = c.Quantity
		case CustodySettlement:
			switch {
			case c.Actor.Kind == ActorSystem && c.Actor.Reason == ReasonScrapWriteOff:
				entry.Action = ActionScrapWriteOff
				entry.Out = c.Quantity
			case c.Direction == DirectionSurplus:
				entry.Action = ActionSettleSurplus
				entry.In = c.Quantity
			default:
				entry.Action = ActionSettleDeficit
				entry.Out = c.Quantity
			}
		}
		entries = append(entries, entry)
	}

	return entries
}

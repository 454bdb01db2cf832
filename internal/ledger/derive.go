package ledger

// DeriveBalance computes the book quantity of an item in one state from the
// full event history: opening balance seed, stock-movement deltas (state NEW
// only) and custody-event deltas for the matching state. The result is
// signed; use DisplayBalance for user-facing figures.
//
// The derivation is recomputed on every read. It is never cached or
// incrementally maintained — every consumer agreeing on the same pure
// function is what keeps dashboards, reports and audits bit-identical.
func DeriveBalance(item Item, state CustodyState, movements []StockMovement, events []CustodyEvent) int {
	balance := 0
	if (!item.IsCustody && state == StateNew) || (item.IsCustody && item.InitialState == state) {
		balance = item.OpeningBalance
	}

	// Stock movements are the state-NEW ledger; they never touch USED/SCRAP.
	if state == StateNew {
		for _, m := range movements {
			if m.ItemID != item.ID {
				continue
			}
			if m.Type == MovementInward {
				balance += m.Net()
			} else {
				balance -= m.Net()
			}
		}
	}

	for _, c := range events {
		if c.ItemID != item.ID || c.State != state || c.AuditOnly {
			continue
		}
		switch c.Type {
		case CustodyHandover:
			balance -= c.Quantity
		case CustodyReturn:
			balance += c.Quantity
		case CustodySettlement:
			if c.Direction == DirectionSurplus {
				balance += c.Quantity
			} else {
				balance -= c.Quantity
			}
		}
	}

	return balance
}

// DisplayBalance clamps a derived balance to the non-negative floor expected
// by report rendering.
func DisplayBalance(item Item, state CustodyState, movements []StockMovement, events []CustodyEvent) int {
	if b := DeriveBalance(item, state, movements, events); b > 0 {
		return b
	}
	return 0
}

// NetBalance is the displayed "active" figure: NEW plus USED. SCRAP never
// counts toward it.
func NetBalance(item Item, movements []StockMovement, events []CustodyEvent) int {
	return DeriveBalance(item, StateNew, movements, events) +
		DeriveBalance(item, StateUsed, movements, events)
}

// DeriveEmployeeItemBalance computes what the employee still owes of an item
// in one state: handovers minus returns and settlements recorded against
// them. Audit-only entries carry a system actor and therefore never match.
func DeriveEmployeeItemBalance(employeeID, itemID string, state CustodyState, events []CustodyEvent) int {
	balance := 0
	for _, c := range events {
		if c.ItemID != itemID || c.State != state || !c.Actor.IsEmployee(employeeID) {
			continue
		}
		switch c.Type {
		case CustodyHandover:
			balance += c.Quantity
		case CustodyReturn, CustodySettlement:
			balance -= c.Quantity
		}
	}
	return balance
}

// EmployeeDebt aggregates an employee's outstanding quantity per item across
// all states. Used by the current-holders report and instant settlement.
func EmployeeDebt(employeeID string, events []CustodyEvent) map[string]int {
	debt := make(map[string]int)
	for _, c := range events {
		if !c.Actor.IsEmployee(employeeID) {
			continue
		}
		if c.Type == CustodyHandover {
			debt[c.ItemID] += c.Quantity
		} else {
			debt[c.ItemID] -= c.Quantity
		}
	}
	for itemID, qty := range debt {
		if qty <= 0 {
			delete(debt, itemID)
		}
	}
	return debt
}

// RunningBalance replays the logs to the running total the recorders keep in
// Item.CurrentBalance: opening balance plus movement nets, minus handovers,
// plus non-scrap returns. Settlements and audit-only entries move book state
// only, never physical stock, so they contribute nothing here.
func RunningBalance(item Item, movements []StockMovement, events []CustodyEvent) int {
	balance := item.OpeningBalance
	for _, m := range movements {
		if m.ItemID != item.ID {
			continue
		}
		if m.Type == MovementInward {
			balance += m.Net()
		} else {
			balance -= m.Net()
		}
	}
	for _, c := range events {
		if c.ItemID != item.ID || c.AuditOnly {
			continue
		}
		switch c.Type {
		case CustodyHandover:
			balance -= c.Quantity
		case CustodyReturn:
			if c.State != StateScrap {
				balance += c.Quantity
			}
		}
	}
	return balance
}

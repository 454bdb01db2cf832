// Package custody implements the custody transactor: handover and return of
// custody-classified items against employees, instant debt write-off and the
// current-holders report.
package custody

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-wms/custodia/internal/ledger"
	"github.com/custodia-wms/custodia/internal/shared"
)

// TxRepository exposes the event-log reads and mutations available inside one
// transaction. Validation derives balances from the event log and the append
// happens in the same transaction, so the check can never go stale.
type TxRepository interface {
	GetItemForUpdate(ctx context.Context, itemID string) (ledger.Item, error)
	ListItemMovements(ctx context.Context, itemID string) ([]ledger.StockMovement, error)
	ListItemEvents(ctx context.Context, itemID string) ([]ledger.CustodyEvent, error)
	InsertEvent(ctx context.Context, event ledger.CustodyEvent) error
	UpdateItemBalance(ctx context.Context, itemID string, balance int) error
}

// ItemRef is the lookup projection used by listings and reports.
type ItemRef struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Repository abstracts custody-event persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context, filter ListFilter) ([]ledger.CustodyEvent, int, error)
	AllEvents(ctx context.Context) ([]ledger.CustodyEvent, error)
	ItemRefs(ctx context.Context, ids []string) (map[string]ItemRef, error)
	EmployeeNames(ctx context.Context, ids []string) (map[string]string, error)
}

// ListFilter narrows custody-event listings.
type ListFilter struct {
	ItemID     string
	EmployeeID string
	Page       int
	Limit      int
}

// Service coordinates custody transactions.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService builds Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// RecordInput describes a handover or return transaction.
type RecordInput struct {
	ItemID     string
	EmployeeID string
	Type       ledger.CustodyEventType
	State      ledger.CustodyState
	Quantity   int
	DocNumber  string
	Note       string
}

// Result couples the appended event with the updated item snapshot.
type Result struct {
	Event ledger.CustodyEvent `json:"event"`
	Item  ledger.Item         `json:"item"`
}

// Record validates and appends a custody event.
//
// A HANDOVER may not exceed the book balance in the requested state. A RETURN
// may not exceed what the employee still owes: returned-as-NEW is additionally
// capped by the quantity ever taken as NEW, so goods issued used or worn down
// in service can never re-enter the shelf as new.
func (s *Service) Record(ctx context.Context, input RecordInput) (Result, error) {
	if input.Quantity <= 0 {
		return Result{}, ledger.ErrInvalidQuantity
	}
	if strings.TrimSpace(input.DocNumber) == "" {
		return Result{}, fmt.Errorf("custody: document number is required")
	}
	if input.Type != ledger.CustodyHandover && input.Type != ledger.CustodyReturn {
		return Result{}, fmt.Errorf("custody: unsupported event type %q", input.Type)
	}

	performer := shared.PerformerFromContext(ctx)
	now := s.now().UTC()
	var result Result
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemForUpdate(ctx, input.ItemID)
		if err != nil {
			return err
		}
		movements, err := tx.ListItemMovements(ctx, item.ID)
		if err != nil {
			return err
		}
		events, err := tx.ListItemEvents(ctx, item.ID)
		if err != nil {
			return err
		}

		switch input.Type {
		case ledger.CustodyHandover:
			available := ledger.DeriveBalance(item, input.State, movements, events)
			if input.Quantity > available {
				return ledger.ErrInsufficientStateBalance
			}
		case ledger.CustodyReturn:
			debtNew := ledger.DeriveEmployeeItemBalance(input.EmployeeID, item.ID, ledger.StateNew, events)
			debtUsed := ledger.DeriveEmployeeItemBalance(input.EmployeeID, item.ID, ledger.StateUsed, events)
			total := debtNew + debtUsed
			if input.State == ledger.StateNew {
				// Returns recorded against other states eat into the total,
				// so the as-new allowance is the smaller of the two figures.
				allowed := debtNew
				if total < allowed {
					allowed = total
				}
				if input.Quantity > allowed {
					return ledger.ErrStateTransitionViolation
				}
			} else if input.Quantity > total {
				return ledger.ErrInsufficientEmployeeDebt
			}
		}

		// Scrap returns close debt without re-entering usable stock.
		effect := 0
		switch {
		case input.Type == ledger.CustodyHandover:
			effect = -input.Quantity
		case input.State != ledger.StateScrap:
			effect = input.Quantity
		}
		balanceAfter := item.CurrentBalance + effect

		event := ledger.CustodyEvent{
			ID:           uuid.NewString(),
			ItemID:       item.ID,
			Actor:        ledger.HumanActor(input.EmployeeID),
			Quantity:     input.Quantity,
			State:        input.State,
			Type:         input.Type,
			Timestamp:    now,
			PerformedBy:  performer,
			DocNumber:    input.DocNumber,
			Note:         input.Note,
			BalanceAfter: balanceAfter,
		}
		if err := tx.InsertEvent(ctx, event); err != nil {
			return err
		}
		if effect != 0 {
			if err := tx.UpdateItemBalance(ctx, item.ID, balanceAfter); err != nil {
				return err
			}
			item.CurrentBalance = balanceAfter
		}
		result = Result{Event: event, Item: item}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// InstantSettle writes off an employee's entire outstanding debt of one item
// as scrap. The quantity is treated as lost: the debt closes, the item's
// running balance is untouched.
func (s *Service) InstantSettle(ctx context.Context, employeeID, itemID string) (ledger.CustodyEvent, error) {
	performer := shared.PerformerFromContext(ctx)
	now := s.now().UTC()
	var event ledger.CustodyEvent
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		events, err := tx.ListItemEvents(ctx, item.ID)
		if err != nil {
			return err
		}
		debt := ledger.DeriveEmployeeItemBalance(employeeID, item.ID, ledger.StateNew, events) +
			ledger.DeriveEmployeeItemBalance(employeeID, item.ID, ledger.StateUsed, events)
		if debt <= 0 {
			return ledger.ErrInsufficientEmployeeDebt
		}

		event = ledger.CustodyEvent{
			ID:          uuid.NewString(),
			ItemID:      item.ID,
			Actor:       ledger.HumanActor(employeeID),
			Quantity:    debt,
			State:       ledger.StateScrap,
			Type:        ledger.CustodySettlement,
			Direction:   ledger.DirectionDeficit,
			Timestamp:   now,
			PerformedBy: performer,
			DocNumber:   fmt.Sprintf("SETTLE-%d", now.UnixMilli()%10000),
			Note:        "instant settlement (debt write-off)",
		}
		return tx.InsertEvent(ctx, event)
	})
	if err != nil {
		return ledger.CustodyEvent{}, err
	}
	return event, nil
}

// HolderRow is one line of the current-holders report.
type HolderRow struct {
	EmployeeID   string `json:"employee_id"`
	EmployeeName string `json:"employee_name"`
	ItemID       string `json:"item_id"`
	ItemCode     string `json:"item_code"`
	ItemName     string `json:"item_name"`
	Quantity     int    `json:"quantity"`
}

// CurrentHolders reports every employee with outstanding custody debt,
// aggregated across states per item.
func (s *Service) CurrentHolders(ctx context.Context) ([]HolderRow, error) {
	events, err := s.repo.AllEvents(ctx)
	if err != nil {
		return nil, err
	}

	employees := make(map[string]bool)
	for _, c := range events {
		if c.Actor.Kind == ledger.ActorHuman {
			employees[c.Actor.EmployeeID] = true
		}
	}

	var rows []HolderRow
	itemIDs := make(map[string]bool)
	for employeeID := range employees {
		for itemID, qty := range ledger.EmployeeDebt(employeeID, events) {
			rows = append(rows, HolderRow{EmployeeID: employeeID, ItemID: itemID, Quantity: qty})
			itemIDs[itemID] = true
		}
	}
	if len(rows) == 0 {
		return nil, nil
	}

	refs, err := s.repo.ItemRefs(ctx, keys(itemIDs))
	if err != nil {
		return nil, err
	}
	names, err := s.repo.EmployeeNames(ctx, keys(employees))
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].EmployeeName = names[rows[i].EmployeeID]
		rows[i].ItemCode = refs[rows[i].ItemID].Code
		rows[i].ItemName = refs[rows[i].ItemID].Name
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].EmployeeName != rows[j].EmployeeName {
			return rows[i].EmployeeName < rows[j].EmployeeName
		}
		return rows[i].ItemName < rows[j].ItemName
	})
	return rows, nil
}

// List returns custody events matching the filter, newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]ledger.CustodyEvent, int, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	return s.repo.List(ctx, filter)
}

func keys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

// Package movements implements the warehouse movement recorder: inward and
// outward transactions, administrative edits, return registration and
// privileged deletion.
package movements

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-wms/custodia/internal/ledger"
	"github.com/custodia-wms/custodia/internal/shared"
)

// TxRepository exposes the event-log mutations available inside one
// transaction. The balance check and the append happen in the same
// transaction so they can never interleave.
type TxRepository interface {
	GetItemForUpdate(ctx context.Context, itemID string) (ledger.Item, error)
	GetMovement(ctx context.Context, id string) (ledger.StockMovement, error)
	InsertMovement(ctx context.Context, m ledger.StockMovement) error
	UpdateMovement(ctx context.Context, m ledger.StockMovement) error
	DeleteMovement(ctx context.Context, id string) error
	UpdateItemBalance(ctx context.Context, itemID string, balance int) error
	UpdateItemPrice(ctx context.Context, itemID string, price float64) error
	DocNumberExists(ctx context.Context, docNumber string) (bool, error)
}

// Repository abstracts movement persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context, filter ListFilter) ([]ledger.StockMovement, int, error)
	Get(ctx context.Context, id string) (ledger.StockMovement, error)
}

// ListFilter narrows movement listings.
type ListFilter struct {
	ItemID string
	Search string
	From   time.Time
	To     time.Time
	Page   int
	Limit  int
}

// Service coordinates movement recording.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService builds Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// RecordInput describes a new inward or outward transaction.
type RecordInput struct {
	ItemID      string
	Type        ledger.MovementType
	Quantity    int
	DocNumber   string
	WarehouseID string
	SupplierID  string
	EmployeeID  string
	Note        string
	UnitPrice   float64
}

// Result couples the appended movement with the updated item snapshot.
type Result struct {
	Movement ledger.StockMovement `json:"movement"`
	Item     ledger.Item          `json:"item"`
}

// Record validates and appends a stock movement. An OUTWARD that would drive
// the running balance negative is rejected before anything is written.
func (s *Service) Record(ctx context.Context, input RecordInput) (Result, error) {
	if input.Quantity <= 0 {
		return Result{}, ledger.ErrInvalidQuantity
	}
	if strings.TrimSpace(input.DocNumber) == "" {
		return Result{}, fmt.Errorf("movements: document number is required")
	}

	performer := shared.PerformerFromContext(ctx)
	now := s.now().UTC()
	var result Result
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemForUpdate(ctx, input.ItemID)
		if err != nil {
			return err
		}
		if input.Type == ledger.MovementOutward && input.Quantity > item.CurrentBalance {
			return ledger.ErrInsufficientStock
		}
		taken, err := tx.DocNumberExists(ctx, input.DocNumber)
		if err != nil {
			return err
		}
		if taken {
			return ledger.ErrDuplicateDocumentNumber
		}

		delta := input.Quantity
		if input.Type == ledger.MovementOutward {
			delta = -input.Quantity
		}
		balanceAfter := item.CurrentBalance + delta

		movement := ledger.StockMovement{
			ID:           uuid.NewString(),
			ItemID:       item.ID,
			Type:         input.Type,
			Quantity:     input.Quantity,
			UnitID:       item.UnitID,
			DocNumber:    input.DocNumber,
			PerformedBy:  performer,
			Timestamp:    now,
			BalanceAfter: balanceAfter,
			Note:         input.Note,
			History: []ledger.HistoryEntry{{
				UpdatedBy: performer,
				UpdatedAt: now,
				Changes:   fmt.Sprintf("movement recorded (%s)", strings.ToLower(string(input.Type))),
			}},
		}
		switch input.Type {
		case ledger.MovementInward:
			movement.SupplierID = input.SupplierID
		case ledger.MovementOutward:
			movement.WarehouseID = input.WarehouseID
			movement.EmployeeID = input.EmployeeID
		}
		if input.UnitPrice > 0 {
			movement.UnitPrice = input.UnitPrice
		}

		if err := tx.InsertMovement(ctx, movement); err != nil {
			return err
		}
		if err := tx.UpdateItemBalance(ctx, item.ID, balanceAfter); err != nil {
			return err
		}
		item.CurrentBalance = balanceAfter
		// Inward purchases track the last purchase price on the item.
		if input.Type == ledger.MovementInward && input.UnitPrice > 0 {
			if err := tx.UpdateItemPrice(ctx, item.ID, input.UnitPrice); err != nil {
				return err
			}
			item.Price = input.UnitPrice
		}
		result = Result{Movement: movement, Item: item}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// EditInput describes an administrative correction to a movement.
type EditInput struct {
	Quantity  int
	DocNumber string
	Note      string
	UnitPrice float64
}

// Edit re-applies the signed quantity delta to the item's running balance and
// documents every changed field in the movement's history.
func (s *Service) Edit(ctx context.Context, id string, input EditInput) (Result, error) {
	if input.Quantity <= 0 {
		return Result{}, ledger.ErrInvalidQuantity
	}

	performer := shared.PerformerFromContext(ctx)
	now := s.now().UTC()
	var result Result
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		movement, err := tx.GetMovement(ctx, id)
		if err != nil {
			return err
		}
		item, err := tx.GetItemForUpdate(ctx, movement.ItemID)
		if err != nil {
			return err
		}

		// The new quantity must still cover what has already been returned,
		// or Net() goes negative and corrupts every downstream derivation.
		if input.Quantity < movement.ReturnedQuantity {
			return ledger.ErrReturnExceedsAvailable
		}
		diff := input.Quantity - movement.Quantity
		if movement.Type == ledger.MovementOutward && diff > 0 && diff > item.CurrentBalance {
			return ledger.ErrInsufficientStock
		}
		if input.DocNumber != "" && input.DocNumber != movement.DocNumber {
			taken, err := tx.DocNumberExists(ctx, input.DocNumber)
			if err != nil {
				return err
			}
			if taken {
				return ledger.ErrDuplicateDocumentNumber
			}
		}

		adjustment := diff
		if movement.Type == ledger.MovementOutward {
			adjustment = -diff
		}

		var changes []string
		if input.Quantity != movement.Quantity {
			changes = append(changes, fmt.Sprintf("quantity changed from [%d] to [%d]", movement.Quantity, input.Quantity))
		}
		if input.DocNumber != "" && input.DocNumber != movement.DocNumber {
			changes = append(changes, fmt.Sprintf("document changed from [%s] to [%s]", movement.DocNumber, input.DocNumber))
			movement.DocNumber = input.DocNumber
		}
		if input.UnitPrice > 0 && input.UnitPrice != movement.UnitPrice {
			changes = append(changes, "unit price changed")
			movement.UnitPrice = input.UnitPrice
		}
		summary := "general edit"
		if len(changes) > 0 {
			summary = strings.Join(changes, " | ")
		}

		movement.Quantity = input.Quantity
		movement.Note = input.Note
		movement.BalanceAfter += adjustment
		movement.LastModifiedBy = performer
		movement.LastModifiedAt = &now
		movement.History = append(movement.History, ledger.HistoryEntry{
			UpdatedBy: performer,
			UpdatedAt: now,
			Changes:   summary,
		})

		newBalance := item.CurrentBalance + adjustment
		if err := tx.UpdateMovement(ctx, movement); err != nil {
			return err
		}
		if err := tx.UpdateItemBalance(ctx, item.ID, newBalance); err != nil {
			return err
		}
		item.CurrentBalance = newBalance
		result = Result{Movement: movement, Item: item}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// ReturnInput registers a partial or total return against a movement.
type ReturnInput struct {
	Quantity  int
	DocNumber string
}

// RegisterReturn applies the inverse balance effect of the movement: a return
// against an inward decreases stock, against an outward it increases stock.
// ReturnedQuantity only ever grows and never exceeds the gross quantity.
func (s *Service) RegisterReturn(ctx context.Context, id string, input ReturnInput) (Result, error) {
	if input.Quantity <= 0 {
		return Result{}, ledger.ErrInvalidQuantity
	}

	performer := shared.PerformerFromContext(ctx)
	now := s.now().UTC()
	var result Result
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		movement, err := tx.GetMovement(ctx, id)
		if err != nil {
			return err
		}
		if input.Quantity > movement.Net() {
			return ledger.ErrReturnExceedsAvailable
		}
		item, err := tx.GetItemForUpdate(ctx, movement.ItemID)
		if err != nil {
			return err
		}

		diff := input.Quantity
		if movement.Type == ledger.MovementInward {
			diff = -input.Quantity
		}

		movement.ReturnedQuantity += input.Quantity
		movement.ReturnDocNumber = input.DocNumber
		movement.BalanceAfter += diff
		movement.History = append(movement.History, ledger.HistoryEntry{
			UpdatedBy: performer,
			UpdatedAt: now,
			Changes:   fmt.Sprintf("return of [%d] registered under document [%s]", input.Quantity, input.DocNumber),
		})

		newBalance := item.CurrentBalance + diff
		if err := tx.UpdateMovement(ctx, movement); err != nil {
			return err
		}
		if err := tx.UpdateItemBalance(ctx, item.ID, newBalance); err != nil {
			return err
		}
		item.CurrentBalance = newBalance
		result = Result{Movement: movement, Item: item}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// Delete removes a movement after reversing its net balance effect; the part
// already returned has no remaining effect to reverse.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		movement, err := tx.GetMovement(ctx, id)
		if err != nil {
			return err
		}
		item, err := tx.GetItemForUpdate(ctx, movement.ItemID)
		if err != nil {
			return err
		}

		effect := -movement.Net()
		if movement.Type == ledger.MovementOutward {
			effect = movement.Net()
		}
		if err := tx.UpdateItemBalance(ctx, item.ID, item.CurrentBalance+effect); err != nil {
			return err
		}
		return tx.DeleteMovement(ctx, movement.ID)
	})
}

// List returns movements matching the filter, newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]ledger.StockMovement, int, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	return s.repo.List(ctx, filter)
}

// Get loads one movement.
func (s *Service) Get(ctx context.Context, id string) (ledger.StockMovement, error) {
	return s.repo.Get(ctx, id)
}

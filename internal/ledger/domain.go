// Package ledger holds the event-log domain types and the pure balance
// derivation functions every other module agrees with. Nothing in this
// package performs I/O; callers hand it the in-memory event collections for
// one financial-year dataset.
package ledger

import (
	"errors"
	"time"
)

// CustodyState classifies the physical condition of custody-item quantity.
// General stock items only ever occupy StateNew.
type CustodyState string

const (
	StateNew   CustodyState = "NEW"
	StateUsed  CustodyState = "USED"
	StateScrap CustodyState = "SCRAP"
)

// States returns the states applicable to an item: custody items degrade
// through all three, general items live entirely in NEW.
func (it Item) States() []CustodyState {
	if it.IsCustody {
		return []CustodyState{StateNew, StateUsed, StateScrap}
	}
	return []CustodyState{StateNew}
}

// MovementType enumerates warehouse-level stock movements.
type MovementType string

const (
	MovementInward  MovementType = "INWARD"
	MovementOutward MovementType = "OUTWARD"
)

// CustodyEventType enumerates custody-lifecycle transactions.
type CustodyEventType string

const (
	// CustodyHandover moves quantity from stock into an employee's custody.
	CustodyHandover CustodyEventType = "HANDOVER"
	// CustodyReturn moves quantity back from custody into stock, possibly in
	// a different state than issued.
	CustodyReturn CustodyEventType = "RETURN"
	// CustodySettlement is an administrative correction or write-off.
	CustodySettlement CustodyEventType = "SETTLEMENT"
)

// SettlementDirection makes the sign of a settlement explicit on the event
// instead of encoding it in note text.
type SettlementDirection string

const (
	DirectionSurplus SettlementDirection = "SURPLUS"
	DirectionDeficit SettlementDirection = "DEFICIT"
)

// ActorKind distinguishes human employees from system-generated entries.
type ActorKind string

const (
	ActorHuman  ActorKind = "HUMAN"
	ActorSystem ActorKind = "SYSTEM"
)

// System actor reasons.
const (
	ReasonAudit         = "AUDIT"
	ReasonScrapWriteOff = "SCRAP_WRITEOFF"
)

// Actor identifies who a custody event is recorded against. Settlement and
// destruction entries created by the system carry a reason instead of an
// employee ID, so they can never collide with the employee namespace.
type Actor struct {
	Kind       ActorKind `json:"kind"`
	EmployeeID string    `json:"employee_id,omitempty"`
	Reason     string    `json:"reason,omitempty"`
}

// HumanActor builds an Actor for an employee.
func HumanActor(employeeID string) Actor {
	return Actor{Kind: ActorHuman, EmployeeID: employeeID}
}

// SystemActor builds an Actor for a system-generated entry.
func SystemActor(reason string) Actor {
	return Actor{Kind: ActorSystem, Reason: reason}
}

// IsEmployee reports whether the actor is the given employee.
func (a Actor) IsEmployee(employeeID string) bool {
	return a.Kind == ActorHuman && a.EmployeeID == employeeID
}

// HistoryEntry is one human-readable line in an append-only edit log.
type HistoryEntry struct {
	UpdatedBy string    `json:"updated_by"`
	UpdatedAt time.Time `json:"updated_at"`
	Changes   string    `json:"changes"`
}

// Item is a trackable stock-keeping unit, general or custody-classified.
//
// CurrentBalance is a denormalized running total maintained by the recorders
// for quick availability checks; per-state figures are always re-derived from
// the event log via DeriveBalance.
type Item struct {
	ID               string         `json:"id"`
	Code             string         `json:"code"`
	Name             string         `json:"name"`
	UnitID           string         `json:"unit_id"`
	OpeningBalance   int            `json:"opening_balance"`
	CurrentBalance   int            `json:"current_balance"`
	MinThreshold     int            `json:"min_threshold"`
	ThresholdEnabled bool           `json:"threshold_enabled"`
	IsCustody        bool           `json:"is_custody"`
	InitialState     CustodyState   `json:"initial_state"`
	Price            float64        `json:"price"`
	ShelfNumber      string         `json:"shelf_number"`
	BoxNumber        string         `json:"box_number"`
	CreatedAt        time.Time      `json:"created_at"`
	CreatedBy        string         `json:"created_by"`
	History          []HistoryEntry `json:"history,omitempty"`
}

// StockMovement is one warehouse transaction. Movements are the state-NEW
// ledger for every item; they never carry a custody state.
type StockMovement struct {
	ID               string         `json:"id"`
	ItemID           string         `json:"item_id"`
	Type             MovementType   `json:"type"`
	Quantity         int            `json:"quantity"`
	UnitID           string         `json:"unit_id"`
	DocNumber        string         `json:"doc_number"`
	WarehouseID      string         `json:"warehouse_id,omitempty"`
	SupplierID       string         `json:"supplier_id,omitempty"`
	EmployeeID       string         `json:"employee_id,omitempty"`
	PerformedBy      string         `json:"performed_by"`
	Timestamp        time.Time      `json:"timestamp"`
	BalanceAfter     int            `json:"balance_after"`
	Note             string         `json:"note,omitempty"`
	UnitPrice        float64        `json:"unit_price,omitempty"`
	ReturnedQuantity int            `json:"returned_quantity"`
	ReturnDocNumber  string         `json:"return_doc_number,omitempty"`
	// Audit marks movements emitted by a reconciliation commit, so the
	// settlement archive can find them without parsing note text.
	Audit            bool           `json:"audit,omitempty"`
	LastModifiedBy   string         `json:"last_modified_by,omitempty"`
	LastModifiedAt   *time.Time     `json:"last_modified_at,omitempty"`
	History          []HistoryEntry `json:"history,omitempty"`
}

// Net returns the movement's effective quantity after partial returns.
func (m StockMovement) Net() int {
	return m.Quantity - m.ReturnedQuantity
}

// CustodyEvent is one custody-lifecycle transaction.
//
// AuditOnly marks a settlement kept purely for audit/report visibility; it is
// excluded from every balance derivation so the audit itself never re-appears
// as a phantom delta.
type CustodyEvent struct {
	ID           string              `json:"id"`
	ItemID       string              `json:"item_id"`
	Actor        Actor               `json:"actor"`
	Quantity     int                 `json:"quantity"`
	State        CustodyState        `json:"state"`
	Type         CustodyEventType    `json:"type"`
	Direction    SettlementDirection `json:"direction,omitempty"`
	Timestamp    time.Time           `json:"timestamp"`
	PerformedBy  string              `json:"performed_by"`
	DocNumber    string              `json:"doc_number"`
	Note         string              `json:"note,omitempty"`
	BalanceAfter int                 `json:"balance_after"`
	AuditOnly    bool                `json:"audit_only,omitempty"`
}

// Error taxonomy shared by the recorders and the reconciliation engine. All
// are recoverable: the worst outcome anywhere in the core is rejection.
var (
	ErrInvalidQuantity          = errors.New("ledger: quantity must be a positive integer")
	ErrInsufficientStock        = errors.New("ledger: outward quantity exceeds current stock")
	ErrInsufficientStateBalance = errors.New("ledger: handover quantity exceeds book balance in state")
	ErrStateTransitionViolation = errors.New("ledger: return-as-new exceeds quantity taken as new")
	ErrInsufficientEmployeeDebt = errors.New("ledger: quantity exceeds employee's outstanding debt")
	ErrReturnExceedsAvailable   = errors.New("ledger: return quantity exceeds remaining returnable quantity")
	ErrDuplicateDocumentNumber  = errors.New("ledger: document number already registered")
	ErrEntityInUse              = errors.New("ledger: entity is referenced by the event log")
	ErrNothingToReconcile       = errors.New("ledger: no differences to reconcile")
)

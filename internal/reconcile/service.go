// Package reconcile implements the reconciliation engine: committing physical
// counts against derived book balances and browsing the settlement archive.
package reconcile

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

// TxRepository exposes the reads and appends of one reconciliation commit.
type TxRepository interface {
	GetItemForUpdate(ctx context.Context, itemID string) (ledger.Item, error)
	ListItemMovements(ctx context.Context, itemID string) ([]ledger.StockMovement, error)
	ListItemEvents(ctx context.Context, itemID string) ([]ledger.CustodyEvent, error)
	InsertMovement(ctx context.Context, m ledger.StockMovement) error
	InsertEvent(ctx context.Context, event ledger.CustodyEvent) error
	UpdateItemBalance(ctx context.Context, itemID string, balance int) error
	DocNumberExists(ctx context.Context, docNumber string) (bool, error)
}

// ItemRef is the lookup projection used by archive details.
type ItemRef struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Repository abstracts reconciliation persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	AuditMovements(ctx context.Context) ([]ledger.StockMovement, error)
	SettlementEvents(ctx context.Context) ([]ledger.CustodyEvent, error)
	ItemRefs(ctx context.Context, ids []string) (map[string]ItemRef, error)
}

// Service coordinates reconciliation commits and the archive.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService builds Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// ItemCounts carries the physical counts entered for one item, keyed by
// custody state. States without an entered count are simply absent.
type ItemCounts struct {
	ItemID string
	Counts map[ledger.CustodyState]int
}

// CommitInput is one reconciliation session.
type CommitInput struct {
	DocNumber string
	Items     []ItemCounts
}

// CommitResult reports what a committed reconciliation produced.
type CommitResult struct {
	DocNumber string                `json:"doc_number"`
	Movements []ledger.StockMovement `json:"movements"`
	Events    []ledger.CustodyEvent  `json:"events"`
	TotalDiff int                    `json:"total_diff"`
}

// Commit derives the book balance for every counted (item, state) pair,
// computes the physical-minus-book diff and routes each nonzero diff to the
// matching ledger entry:
//
//   - non-custody items and state NEW: a real stock movement, applied to the
//     item's running balance like any other movement;
//   - custody SCRAP: an audit-only settlement kept for the archive, excluded
//     from every later derivation;
//   - custody USED: a real settlement participating in later derivations.
//
// The whole session shares one manually assigned document number, which must
// be unused across both event collections.
func (s *Service) Commit(ctx context.Context, input CommitInput) (CommitResult, error) {
	if strings.TrimSpace(input.DocNumber) == "" {
		return CommitResult{}, fmt.Errorf("reconcile: document number is required")
	}

	performer := shared.PerformerFromContext(ctx)
	now := s.now().UTC()
	result := CommitResult{DocNumber: input.DocNumber}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		taken, err := tx.DocNumberExists(ctx, input.DocNumber)
		if err != nil {
			return err
		}
		if taken {
			return ledger.ErrDuplicateDocumentNumber
		}

		for _, entry := range input.Items {
			item, err := tx.GetItemForUpdate(ctx, entry.ItemID)
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

			for _, state := range item.States() {
				physical, counted := entry.Counts[state]
				if !counted {
					continue
				}
				book := ledger.DeriveBalance(item, state, movements, events)
				diff := physical - book
				if diff == 0 {
					continue
				}
				result.TotalDiff += diff

				direction := ledger.DirectionDeficit
				if diff > 0 {
					direction = ledger.DirectionSurplus
				}

				if !item.IsCustody || state == ledger.StateNew {
					newBalance := item.CurrentBalance + diff
					movementType := ledger.MovementOutward
					if diff > 0 {
						movementType = ledger.MovementInward
					}
					move := ledger.StockMovement{
						ID:           uuid.NewString(),
						ItemID:       item.ID,
						Type:         movementType,
						Quantity:     abs(diff),
						UnitID:       item.UnitID,
						DocNumber:    input.DocNumber,
						PerformedBy:  performer,
						Timestamp:    now,
						BalanceAfter: newBalance,
						Note:         auditNote(input.DocNumber, direction),
						Audit:        true,
					}
					if err := tx.InsertMovement(ctx, move); err != nil {
						return err
					}
					if err := tx.UpdateItemBalance(ctx, item.ID, newBalance); err != nil {
						return err
					}
					item.CurrentBalance = newBalance
					result.Movements = append(result.Movements, move)
					continue
				}

				event := ledger.CustodyEvent{
					ID:           uuid.NewString(),
					ItemID:       item.ID,
					Actor:        ledger.SystemActor(ledger.ReasonAudit),
					Quantity:     abs(diff),
					State:        state,
					Type:         ledger.CustodySettlement,
					Direction:    direction,
					Timestamp:    now,
					PerformedBy:  performer,
					DocNumber:    input.DocNumber,
					Note:         auditNote(input.DocNumber, direction),
					BalanceAfter: physical,
					AuditOnly:    state == ledger.StateScrap,
				}
				if err := tx.InsertEvent(ctx, event); err != nil {
					return err
				}
				result.Events = append(result.Events, event)
			}
		}

		if len(result.Movements) == 0 && len(result.Events) == 0 {
			return ledger.ErrNothingToReconcile
		}
		return nil
	})
	if err != nil {
		return CommitResult{}, err
	}
	return result, nil
}

func auditNote(docNumber string, direction ledger.SettlementDirection) string {
	tag := "deficit"
	if direction == ledger.DirectionSurplus {
		tag = "surplus"
	}
	return fmt.Sprintf("audit settlement (record %s): %s", docNumber, tag)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// ArchiveFilter narrows archive listings.
type ArchiveFilter string

const (
	ArchiveAll   ArchiveFilter = "ALL"
	ArchiveAudit ArchiveFilter = "AUDIT"
	ArchiveScrap ArchiveFilter = "SCRAP"
)

// ArchiveGroup is one committed reconciliation, keyed by document number.
type ArchiveGroup struct {
	DocNumber   string    `json:"doc_number"`
	Timestamp   time.Time `json:"timestamp"`
	PerformedBy string    `json:"performed_by"`
	ItemsCount  int       `json:"items_count"`
	TotalDiff   int       `json:"total_diff"`
	HasScrap    bool      `json:"has_scrap"`
}

// ArchiveLine is one settled (item, state) pair inside a group.
type ArchiveLine struct {
	ItemID      string              `json:"item_id"`
	ItemCode    string              `json:"item_code"`
	ItemName    string              `json:"item_name"`
	State       ledger.CustodyState `json:"state"`
	BookQty     int                 `json:"book_qty"`
	PhysicalQty int                 `json:"physical_qty"`
	Diff        int                 `json:"diff"`
}

// Archive lists committed reconciliations grouped by document number, newest
// first. Groups containing any scrap-state line classify as scrap write-offs,
// the rest as inventory audits.
func (s *Service) Archive(ctx context.Context, filter ArchiveFilter) ([]ArchiveGroup, error) {
	movements, events, err := s.archiveEntries(ctx)
	if err != nil {
		return nil, err
	}

	groups := make(map[string]*ArchiveGroup)
	touch := func(docNumber, performedBy string, ts time.Time) *ArchiveGroup {
		g, ok := groups[docNumber]
		if !ok {
			g = &ArchiveGroup{DocNumber: docNumber, Timestamp: ts, PerformedBy: performedBy}
			groups[docNumber] = g
		}
		if ts.Before(g.Timestamp) {
			g.Timestamp = ts
		}
		return g
	}

	for _, m := range movements {
		g := touch(m.DocNumber, m.PerformedBy, m.Timestamp)
		g.ItemsCount++
		g.TotalDiff += movementDiff(m)
	}
	for _, c := range events {
		g := touch(c.DocNumber, c.PerformedBy, c.Timestamp)
		g.ItemsCount++
		g.TotalDiff += settlementDiff(c)
		if c.State == ledger.StateScrap {
			g.HasScrap = true
		}
	}

	out := make([]ArchiveGroup, 0, len(groups))
	for _, g := range groups {
		switch filter {
		case ArchiveAudit:
			if g.HasScrap {
				continue
			}
		case ArchiveScrap:
			if !g.HasScrap {
				continue
			}
		}
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

// ArchiveDetail reconstructs the per-item lines of one committed
// reconciliation from its appended entries.
func (s *Service) ArchiveDetail(ctx context.Context, docNumber string) ([]ArchiveLine, error) {
	movements, events, err := s.archiveEntries(ctx)
	if err != nil {
		return nil, err
	}

	var lines []ArchiveLine
	itemIDs := make(map[string]bool)
	for _, m := range movements {
		if m.DocNumber != docNumber {
			continue
		}
		diff := movementDiff(m)
		lines = append(lines, ArchiveLine{
			ItemID:      m.ItemID,
			State:       ledger.StateNew,
			BookQty:     m.BalanceAfter - diff,
			PhysicalQty: m.BalanceAfter,
			Diff:        diff,
		})
		itemIDs[m.ItemID] = true
	}
	for _, c := range events {
		if c.DocNumber != docNumber {
			continue
		}
		diff := settlementDiff(c)
		lines = append(lines, ArchiveLine{
			ItemID:      c.ItemID,
			State:       c.State,
			BookQty:     c.BalanceAfter - diff,
			PhysicalQty: c.BalanceAfter,
			Diff:        diff,
		})
		itemIDs[c.ItemID] = true
	}
	if len(lines) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(itemIDs))
	for id := range itemIDs {
		ids = append(ids, id)
	}
	refs, err := s.repo.ItemRefs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range lines {
		lines[i].ItemCode = refs[lines[i].ItemID].Code
		lines[i].ItemName = refs[lines[i].ItemID].Name
	}
	return lines, nil
}

func (s *Service) archiveEntries(ctx context.Context) ([]ledger.StockMovement, []ledger.CustodyEvent, error) {
	movements, err := s.repo.AuditMovements(ctx)
	if err != nil {
		return nil, nil, err
	}
	events, err := s.repo.SettlementEvents(ctx)
	if err != nil {
		return nil, nil, err
	}
	return movements, events, nil
}

func movementDiff(m ledger.StockMovement) int {
	if m.Type == ledger.MovementInward {
		return m.Quantity
	}
	return -m.Quantity
}

func settlementDiff(c ledger.CustodyEvent) int {
	if c.Direction == ledger.DirectionSurplus {
		return c.Quantity
	}
	return -c.Quantity
}

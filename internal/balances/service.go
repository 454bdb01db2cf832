// Package balances exposes the per-state balance dashboard and the official
// scrap destruction operation.
package balances

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-wms/custodia/internal/ledger"
	"github.com/custodia-wms/custodia/internal/shared"
)

// TxRepository exposes the reads and appends of one destruction commit.
type TxRepository interface {
	GetItemForUpdate(ctx context.Context, itemID string) (ledger.Item, error)
	ListItemMovements(ctx context.Context, itemID string) ([]ledger.StockMovement, error)
	ListItemEvents(ctx context.Context, itemID string) ([]ledger.CustodyEvent, error)
	InsertEvent(ctx context.Context, event ledger.CustodyEvent) error
}

// Repository abstracts the event-log reads behind the dashboard.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	AllItems(ctx context.Context, search string) ([]ledger.Item, error)
	AllMovements(ctx context.Context) ([]ledger.StockMovement, error)
	AllEvents(ctx context.Context) ([]ledger.CustodyEvent, error)
}

// Service derives the dashboard rows.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService builds Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Row is one dashboard line: every state balance derived fresh from the event
// log, with the net figure counting only serviceable stock.
type Row struct {
	ItemID    string `json:"item_id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	IsCustody bool   `json:"is_custody"`
	NewQty    int    `json:"new_qty"`
	UsedQty   int    `json:"used_qty"`
	ScrapQty  int    `json:"scrap_qty"`
	Net       int    `json:"net"`
}

// Overview derives the per-state balances of every item.
func (s *Service) Overview(ctx context.Context, search string) ([]Row, error) {
	items, err := s.repo.AllItems(ctx, search)
	if err != nil {
		return nil, err
	}
	movements, err := s.repo.AllMovements(ctx)
	if err != nil {
		return nil, err
	}
	events, err := s.repo.AllEvents(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(items))
	for _, item := range items {
		row := Row{
			ItemID:    item.ID,
			Code:      item.Code,
			Name:      item.Name,
			IsCustody: item.IsCustody,
			NewQty:    ledger.DisplayBalance(item, ledger.StateNew, movements, events),
			UsedQty:   ledger.DisplayBalance(item, ledger.StateUsed, movements, events),
			ScrapQty:  ledger.DisplayBalance(item, ledger.StateScrap, movements, events),
		}
		row.Net = row.NewQty + row.UsedQty
		rows = append(rows, row)
	}
	return rows, nil
}

// DestroyScrap writes off an item's entire scrap balance as officially
// destroyed. The entry is a real settlement: the derived SCRAP balance drops
// to zero, while the running balance stays untouched since scrap was never
// part of serviceable stock.
func (s *Service) DestroyScrap(ctx context.Context, itemID string) (ledger.CustodyEvent, error) {
	performer := shared.PerformerFromContext(ctx)
	now := s.now().UTC()
	var event ledger.CustodyEvent
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemForUpdate(ctx, itemID)
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
		scrapQty := ledger.DeriveBalance(item, ledger.StateScrap, movements, events)
		if scrapQty <= 0 {
			return ledger.ErrInvalidQuantity
		}

		event = ledger.CustodyEvent{
			ID:          uuid.NewString(),
			ItemID:      item.ID,
			Actor:       ledger.SystemActor(ledger.ReasonScrapWriteOff),
			Quantity:    scrapQty,
			State:       ledger.StateScrap,
			Type:        ledger.CustodySettlement,
			Direction:   ledger.DirectionDeficit,
			Timestamp:   now,
			PerformedBy: performer,
			DocNumber:   scrapDocNumber(now),
			Note:        "official scrap destruction, balance written off",
		}
		return tx.InsertEvent(ctx, event)
	})
	if err != nil {
		return ledger.CustodyEvent{}, err
	}
	return event, nil
}

func scrapDocNumber(now time.Time) string {
	ms := fmt.Sprintf("%d", now.UnixMilli())
	return "SCRAP-" + ms[len(ms)-6:]
}

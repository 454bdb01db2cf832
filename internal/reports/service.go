// Package reports serves the chronological ledger (stock card) for export.
package reports

import (
	"context"
	"time"

	"github.com/custodia-wms/custodia/internal/ledger"
)

// Repository abstracts the event-log reads behind the stock card.
type Repository interface {
	GetItem(ctx context.Context, itemID string) (ledger.Item, error)
	ListItemMovements(ctx context.Context, itemID string) ([]ledger.StockMovement, error)
	ListItemEvents(ctx context.Context, itemID string) ([]ledger.CustodyEvent, error)
}

// Service builds report views.
type Service struct {
	repo Repository
}

// NewService builds Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// StockCardView is a stock card together with its item header.
type StockCardView struct {
	Item ledger.Item      `json:"item"`
	Card ledger.StockCard `json:"card"`
}

// StockCard reconstructs the chronological ledger of one item over an optional
// date range, with an optional state filter. The underlying event collections
// are unordered; the card orders by timestamp and annotates a running balance
// per entry.
func (s *Service) StockCard(ctx context.Context, itemID string, from, to time.Time, state ledger.CustodyState) (StockCardView, error) {
	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return StockCardView{}, err
	}
	movements, err := s.repo.ListItemMovements(ctx, itemID)
	if err != nil {
		return StockCardView{}, err
	}
	events, err := s.repo.ListItemEvents(ctx, itemID)
	if err != nil {
		return StockCardView{}, err
	}

	card := ledger.BuildStockCard(item, movements, events, ledger.StockCardFilter{
		From:  from,
		To:    to,
		State: state,
	})
	return StockCardView{Item: item, Card: card}, nil
}

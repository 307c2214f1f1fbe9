package services

import (
	"context"
	"errors"
	"time"

	"github.com/sweetshop/apiserver/types"
)

// ErrForbidden is returned when a caller asks for another user's purchase.
var ErrForbidden = errors.New("forbidden")

// maxReportWindow bounds sales reports so a single query stays cheap.
const maxReportWindow = 366 * 24 * time.Hour

// PurchaseRepository defines read access to the purchase ledger.
type PurchaseRepository interface {
	ListByUser(ctx context.Context, userID int) ([]types.Purchase, error)
	Get(ctx context.Context, id int64) (types.Purchase, error)
	Stats(ctx context.Context) (types.Stats, error)
	SalesReport(ctx context.Context, from, to time.Time) (types.SalesReport, error)
}

// PurchaseService exposes purchase history and admin reporting.
type PurchaseService struct {
	repo PurchaseRepository
}

func NewPurchaseService(repo PurchaseRepository) *PurchaseService {
	return &PurchaseService{repo: repo}
}

func (s *PurchaseService) History(ctx context.Context, userID int) ([]types.Purchase, error) {
	if userID < 1 {
		return nil, ErrInvalidInput
	}
	return s.repo.ListByUser(ctx, userID)
}

// Get returns a purchase if the caller owns it or is an admin.
func (s *PurchaseService) Get(ctx context.Context, id int64, callerID int, isAdmin bool) (types.Purchase, error) {
	if id < 1 {
		return types.Purchase{}, ErrInvalidInput
	}
	purchase, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Purchase{}, err
	}
	if !isAdmin && purchase.UserID != callerID {
		return types.Purchase{}, ErrForbidden
	}
	return purchase, nil
}

func (s *PurchaseService) Stats(ctx context.Context) (types.Stats, error) {
	return s.repo.Stats(ctx)
}

// SalesReport covers [from, to). A zero to means now; a zero from means 30
// days before to.
func (s *PurchaseService) SalesReport(ctx context.Context, from, to time.Time) (types.SalesReport, error) {
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -30)
	}
	if !from.Before(to) || to.Sub(from) > maxReportWindow {
		return types.SalesReport{}, ErrInvalidInput
	}
	return s.repo.SalesReport(ctx, from, to)
}

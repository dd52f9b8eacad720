package app

import (
	"context"
	"fmt"

	"github.com/manovate/crm/internal/domain"
)

// Closure notification text.
const (
	closureWonTitle   = "Deal Won! 🎉"
	closureWonMessage = "Congratulations! You won the deal \"%s\" valued at ₹%d."
)

// ResolveClosure finalizes a pending closure. It is the only path that places
// a deal in the Status column. A Won outcome pushes exactly one success notification.
func (s *Service) ResolveClosure(ctx context.Context, dealID int64, outcome domain.Outcome) (domain.Deal, error) {
	if outcome != domain.OutcomeWon && outcome != domain.OutcomeLost {
		return domain.Deal{}, fmt.Errorf("%w: %q", domain.ErrInvalidOutcome, outcome)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	deals, err := s.loadDeals(ctx)
	if err != nil {
		return domain.Deal{}, err
	}
	idx := indexOfDeal(deals, dealID)
	if idx < 0 {
		return domain.Deal{}, fmt.Errorf("deal %d: %w", dealID, ErrNotFound)
	}
	deal := deals[idx].Clone()
	switch {
	case deal.IsClosed():
		return domain.Deal{}, domain.ErrLockedTerminal
	case deal.Stage != domain.StageRevenue:
		return domain.Deal{}, domain.ErrInvalidClosureSource
	}

	deal.Stage = domain.StageStatus
	deal.Status = outcome.Status()
	deal.StatusColor = domain.StatusColorFor(deal.Status)
	closed, err := s.replaceDeal(ctx, deals, idx, deal)
	if err != nil {
		return domain.Deal{}, err
	}

	if outcome == domain.OutcomeWon {
		_, err := s.pushNotification(ctx, domain.NotificationInput{
			Title:   closureWonTitle,
			Message: fmt.Sprintf(closureWonMessage, closed.Title, closed.Revenue),
			Type:    domain.NotificationSuccess,
			DealID:  closed.ID,
		})
		if err != nil {
			s.logger.Warn("closure notification failed", "deal", closed.ID, "err", err)
		}
	}
	s.logger.Info("deal closed", "deal", closed.ID, "outcome", outcome)
	return closed, nil
}

// CancelClosure abandons a pending closure and returns the deal unchanged.
func (s *Service) CancelClosure(ctx context.Context, dealID int64) (domain.Deal, error) {
	return s.GetDeal(ctx, dealID)
}

package app

import (
	"context"
	"fmt"

	"github.com/manovate/crm/internal/domain"
)

// MoveOutcome classifies the result of a move attempt.
type MoveOutcome string

// Move outcomes.
const (
	MoveApplied        MoveOutcome = "applied"
	MoveRejected       MoveOutcome = "rejected"
	MovePendingClosure MoveOutcome = "pending_closure"
)

// RejectReason explains a rejected move.
type RejectReason string

// Reject reasons.
const (
	ReasonLockedTerminal       RejectReason = "locked_terminal"
	ReasonInvalidClosureSource RejectReason = "invalid_closure_source"
	ReasonStaleSource          RejectReason = "stale_source"
)

// MoveResult reports what AttemptMove did. Deal is the stored deal after the
// attempt; it is zero for a same-column no-op.
type MoveResult struct {
	Outcome MoveOutcome
	Stage   domain.Stage
	Reason  RejectReason
	Deal    domain.Deal
}

// Err returns the sentinel error matching a rejection, or nil.
func (r MoveResult) Err() error {
	if r.Outcome != MoveRejected {
		return nil
	}
	switch r.Reason {
	case ReasonLockedTerminal:
		return domain.ErrLockedTerminal
	case ReasonInvalidClosureSource:
		return domain.ErrInvalidClosureSource
	case ReasonStaleSource:
		return ErrStaleSource
	default:
		return fmt.Errorf("move rejected: %s", r.Reason)
	}
}

// AttemptMove runs one drag of a deal card from one column to another.
// Rejections and pending closures never mutate the deal; only ordinary moves
// between active columns are persisted.
func (s *Service) AttemptMove(ctx context.Context, dealID int64, from, to domain.Stage) (MoveResult, error) {
	if !from.IsValid() {
		return MoveResult{}, fmt.Errorf("%w: from %q", domain.ErrInvalidStage, from)
	}
	if !to.IsValid() {
		return MoveResult{}, fmt.Errorf("%w: to %q", domain.ErrInvalidStage, to)
	}
	if from == to {
		return MoveResult{Outcome: MoveApplied, Stage: from}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	deals, err := s.loadDeals(ctx)
	if err != nil {
		return MoveResult{}, err
	}
	idx := indexOfDeal(deals, dealID)
	if idx < 0 {
		return MoveResult{}, fmt.Errorf("deal %d: %w", dealID, ErrNotFound)
	}
	deal := deals[idx]
	reject := func(reason RejectReason) (MoveResult, error) {
		s.logger.Debug("move rejected", "deal", dealID, "from", from, "to", to, "reason", reason)
		return MoveResult{Outcome: MoveRejected, Stage: deal.Stage, Reason: reason, Deal: deal.Clone()}, nil
	}

	switch {
	case deal.Stage != from:
		return reject(ReasonStaleSource)
	case from.IsTerminal():
		return reject(ReasonLockedTerminal)
	case to.IsTerminal() && from != domain.StageRevenue:
		return reject(ReasonInvalidClosureSource)
	case to.IsTerminal():
		return MoveResult{Outcome: MovePendingClosure, Stage: deal.Stage, Deal: deal.Clone()}, nil
	}

	next := deal.Clone()
	next.Stage = to
	updated, err := s.updateDeal(ctx, next, true)
	if err != nil {
		return MoveResult{}, err
	}
	return MoveResult{Outcome: MoveApplied, Stage: to, Deal: updated}, nil
}

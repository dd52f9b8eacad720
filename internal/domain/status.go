package domain

import (
	"fmt"
	"strings"
)

// Status is the free-running deal label. Closed deals carry StatusWon or StatusLost.
type Status string

// Known status labels.
const (
	StatusOpen    Status = "Open"
	StatusWon     Status = "Won"
	StatusLost    Status = "Lost"
	StatusReview  Status = "Review"
	StatusPending Status = "Pending"
)

var knownStatuses = []Status{StatusOpen, StatusWon, StatusLost, StatusReview, StatusPending}

// StatusColor is a presentation tag derived from a status.
type StatusColor string

// Status color tags.
const (
	ColorNeutral  StatusColor = "neutral"
	ColorPositive StatusColor = "positive"
	ColorNegative StatusColor = "negative"
	ColorReview   StatusColor = "review"
	ColorPending  StatusColor = "pending"
)

// StatusColorFor maps a status to its color tag.
func StatusColorFor(status Status) StatusColor {
	switch NormalizeStatus(status) {
	case StatusWon:
		return ColorPositive
	case StatusLost:
		return ColorNegative
	case StatusReview:
		return ColorReview
	case StatusPending:
		return ColorPending
	default:
		return ColorNeutral
	}
}

// NormalizeStatus trims the label, canonicalizes known labels, and defaults to StatusOpen.
func NormalizeStatus(status Status) Status {
	trimmed := strings.TrimSpace(string(status))
	if trimmed == "" {
		return StatusOpen
	}
	for _, known := range knownStatuses {
		if strings.EqualFold(trimmed, string(known)) {
			return known
		}
	}
	return Status(trimmed)
}

// IsClosed reports whether the status is a closure outcome.
func (s Status) IsClosed() bool {
	s = NormalizeStatus(s)
	return s == StatusWon || s == StatusLost
}

// Outcome is the closure decision for a deal entering the Status column.
type Outcome string

// Closure outcomes.
const (
	OutcomeWon  Outcome = Outcome(StatusWon)
	OutcomeLost Outcome = Outcome(StatusLost)
)

// ParseOutcome resolves "won" or "lost" case-insensitively.
func ParseOutcome(raw string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "won":
		return OutcomeWon, nil
	case "lost":
		return OutcomeLost, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidOutcome, raw)
	}
}

// Status returns the terminal status for the outcome.
func (o Outcome) Status() Status {
	return Status(o)
}

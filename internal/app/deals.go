package app

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/manovate/crm/internal/domain"
)

// CreateDealInput holds input values for create deal operations.
type CreateDealInput struct {
	Title       string
	Description string
	Client      string
	Revenue     int64
	Stage       domain.Stage
	Status      domain.Status
	DueDate     *time.Time
	Assignees   []domain.Assignee
	Image       string
}

// EditDealInput holds field-level edits. Nil fields keep their stored values.
type EditDealInput struct {
	DealID       int64
	Title        *string
	Description  *string
	Client       *string
	Revenue      *int64
	Status       *domain.Status
	DueDate      *time.Time
	ClearDueDate bool
	Assignees    []domain.Assignee
	Image        *string
}

// ListDeals returns every deal, normalized, newest first.
func (s *Service) ListDeals(ctx context.Context) ([]domain.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadDeals(ctx)
}

// GetDeal returns one deal by id.
func (s *Service) GetDeal(ctx context.Context, dealID int64) (domain.Deal, error) {
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
	return deals[idx], nil
}

// CreateDeal creates deal.
func (s *Service) CreateDeal(ctx context.Context, in CreateDealInput) (domain.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deals, err := s.loadDeals(ctx)
	if err != nil {
		return domain.Deal{}, err
	}
	deal, err := domain.NewDeal(domain.DealInput{
		ID:          s.nextID(maxDealID(deals)),
		Title:       in.Title,
		Description: in.Description,
		Client:      in.Client,
		Revenue:     in.Revenue,
		Stage:       in.Stage,
		Status:      in.Status,
		DueDate:     in.DueDate,
		Assignees:   in.Assignees,
		Image:       in.Image,
	}, s.clock())
	if err != nil {
		return domain.Deal{}, err
	}
	deals = append([]domain.Deal{deal}, deals...)
	if err := s.saveDeals(ctx, deals); err != nil {
		return domain.Deal{}, err
	}
	return deal.Clone(), nil
}

// UpdateDeal replaces a stored deal with a re-normalized copy of deal.
// The id and creation time are kept from the stored record, and an empty image
// keeps the stored one. Stage changes may not cross the Status column.
func (s *Service) UpdateDeal(ctx context.Context, deal domain.Deal) (domain.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateDeal(ctx, deal, true)
}

// EditDeal applies field-level edits on top of the stored deal.
func (s *Service) EditDeal(ctx context.Context, in EditDealInput) (domain.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deals, err := s.loadDeals(ctx)
	if err != nil {
		return domain.Deal{}, err
	}
	idx := indexOfDeal(deals, in.DealID)
	if idx < 0 {
		return domain.Deal{}, fmt.Errorf("deal %d: %w", in.DealID, ErrNotFound)
	}
	deal := deals[idx].Clone()
	if in.Title != nil {
		deal.Title = *in.Title
	}
	if in.Description != nil {
		deal.Description = *in.Description
	}
	if in.Client != nil {
		deal.Client = *in.Client
	}
	if in.Revenue != nil {
		deal.Revenue = *in.Revenue
	}
	if in.Status != nil {
		deal.Status = *in.Status
	}
	switch {
	case in.ClearDueDate:
		deal.DueDate = nil
	case in.DueDate != nil:
		due := *in.DueDate
		deal.DueDate = &due
	}
	if in.Assignees != nil {
		deal.Assignees = in.Assignees
	}
	keepImage := true
	if in.Image != nil {
		deal.Image = *in.Image
		keepImage = false
	}
	return s.updateDeal(ctx, deal, keepImage)
}

// DeleteDeal removes a deal. Deleting an unknown id still persists and succeeds.
func (s *Service) DeleteDeal(ctx context.Context, dealID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	deals, err := s.loadDeals(ctx)
	if err != nil {
		return err
	}
	deals = slices.DeleteFunc(deals, func(d domain.Deal) bool {
		return d.ID == dealID
	})
	return s.saveDeals(ctx, deals)
}

// updateDeal runs the generic update path. Callers hold s.mu.
func (s *Service) updateDeal(ctx context.Context, deal domain.Deal, keepImage bool) (domain.Deal, error) {
	if strings.TrimSpace(deal.Title) == "" {
		return domain.Deal{}, domain.ErrInvalidTitle
	}
	if deal.Revenue < 0 {
		return domain.Deal{}, domain.ErrInvalidRevenue
	}
	deals, err := s.loadDeals(ctx)
	if err != nil {
		return domain.Deal{}, err
	}
	idx := indexOfDeal(deals, deal.ID)
	if idx < 0 {
		return domain.Deal{}, fmt.Errorf("deal %d: %w", deal.ID, ErrNotFound)
	}
	stored := deals[idx]
	next := domain.NormalizeDeal(deal.Clone())
	next.CreatedOn = stored.CreatedOn
	if keepImage && next.Image == "" {
		next.Image = stored.Image
	}
	switch {
	case stored.IsClosed() && (!next.IsClosed() || next.Status != stored.Status):
		return domain.Deal{}, domain.ErrLockedTerminal
	case !stored.IsClosed() && (next.IsClosed() || (next.Status.IsClosed() && next.Status != stored.Status)):
		// Won and Lost are reserved for ResolveClosure.
		return domain.Deal{}, domain.ErrInvalidClosureSource
	}
	return s.replaceDeal(ctx, deals, idx, next)
}

// replaceDeal stores next at idx without transition checks. Callers hold s.mu.
func (s *Service) replaceDeal(ctx context.Context, deals []domain.Deal, idx int, next domain.Deal) (domain.Deal, error) {
	next = domain.NormalizeDeal(next)
	deals[idx] = next
	if err := s.saveDeals(ctx, deals); err != nil {
		return domain.Deal{}, err
	}
	return next.Clone(), nil
}

// loadDeals reads and normalizes the collection. Records without a usable id are dropped.
func (s *Service) loadDeals(ctx context.Context) ([]domain.Deal, error) {
	records, err := s.deals.Load(ctx)
	if err != nil {
		return nil, err
	}
	deals := make([]domain.Deal, 0, len(records))
	for _, record := range records {
		if record.ID <= 0 {
			s.logger.Warn("dropping stored deal without id", "title", record.Title)
			continue
		}
		deals = append(deals, dealFromRecord(record))
	}
	return deals, nil
}

// saveDeals persists the collection and broadcasts the change.
func (s *Service) saveDeals(ctx context.Context, deals []domain.Deal) error {
	records := make([]dealRecord, 0, len(deals))
	for _, deal := range deals {
		records = append(records, recordFromDeal(deal))
	}
	return s.deals.Save(ctx, records)
}

func indexOfDeal(deals []domain.Deal, dealID int64) int {
	return slices.IndexFunc(deals, func(d domain.Deal) bool {
		return d.ID == dealID
	})
}

func maxDealID(deals []domain.Deal) int64 {
	var out int64
	for _, d := range deals {
		out = max(out, d.ID)
	}
	return out
}

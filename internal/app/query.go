package app

import (
	"context"
	"strings"

	"github.com/manovate/crm/internal/domain"
)

// Filter views offered by the deals board.
const (
	ViewAll    = "All"
	ViewActive = "Active"
)

// DealFilter narrows a deal listing. View is All, Active, or any status or stage label.
type DealFilter struct {
	View   string
	Search string
}

// FilterDeals applies f to deals and keeps their order.
func FilterDeals(deals []domain.Deal, f DealFilter) []domain.Deal {
	query := strings.ToLower(strings.TrimSpace(f.Search))
	view := strings.TrimSpace(f.View)
	viewStage, stageErr := domain.ParseStage(view)

	out := make([]domain.Deal, 0, len(deals))
	for _, deal := range deals {
		if query != "" && !dealMatches(deal, query) {
			continue
		}
		switch {
		case view == "" || strings.EqualFold(view, ViewAll):
		case strings.EqualFold(view, ViewActive):
			if deal.IsClosed() {
				continue
			}
		default:
			byStatus := strings.EqualFold(string(pipelineStatus(deal)), view)
			byStage := stageErr == nil && deal.Stage == viewStage
			if !byStatus && !byStage {
				continue
			}
		}
		out = append(out, deal)
	}
	return out
}

// pipelineStatus is the status views and summaries count a deal under. Won and
// Lost only hold in the terminal column; elsewhere such a deal is still open.
func pipelineStatus(deal domain.Deal) domain.Status {
	if deal.Status.IsClosed() && !deal.IsClosed() {
		return domain.StatusOpen
	}
	return deal.Status
}

// dealMatches reports whether any searchable field contains the lower-cased query.
func dealMatches(deal domain.Deal, query string) bool {
	for _, field := range []string{deal.Title, deal.Client, string(deal.Status), deal.Description} {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}

// SearchDeals lists deals matching f.
func (s *Service) SearchDeals(ctx context.Context, f DealFilter) ([]domain.Deal, error) {
	deals, err := s.ListDeals(ctx)
	if err != nil {
		return nil, err
	}
	return FilterDeals(deals, f), nil
}

// BoardColumn is one pipeline column with its cards.
type BoardColumn struct {
	Stage   domain.Stage
	Deals   []domain.Deal
	Revenue int64
	Locked  bool
}

// Board groups filtered deals by column in pipeline order.
func (s *Service) Board(ctx context.Context, f DealFilter) ([]BoardColumn, error) {
	deals, err := s.SearchDeals(ctx, f)
	if err != nil {
		return nil, err
	}
	return GroupByStage(deals), nil
}

// GroupByStage buckets deals into the six pipeline columns.
func GroupByStage(deals []domain.Deal) []BoardColumn {
	stages := domain.Stages()
	columns := make([]BoardColumn, len(stages))
	for i, stage := range stages {
		columns[i] = BoardColumn{Stage: stage, Deals: []domain.Deal{}, Locked: stage.IsTerminal()}
	}
	for _, deal := range deals {
		idx := deal.Stage.Index()
		if idx < 0 {
			continue
		}
		columns[idx].Deals = append(columns[idx].Deals, deal)
		columns[idx].Revenue += deal.Revenue
	}
	return columns
}

// PipelineSummary aggregates revenue across the board.
type PipelineSummary struct {
	OpenCount   int
	OpenRevenue int64
	WonCount    int
	WonRevenue  int64
	LostCount   int
	LostRevenue int64
}

// Summarize totals deals by outcome.
func Summarize(deals []domain.Deal) PipelineSummary {
	var out PipelineSummary
	for _, deal := range deals {
		switch pipelineStatus(deal) {
		case domain.StatusWon:
			out.WonCount++
			out.WonRevenue += deal.Revenue
		case domain.StatusLost:
			out.LostCount++
			out.LostRevenue += deal.Revenue
		default:
			out.OpenCount++
			out.OpenRevenue += deal.Revenue
		}
	}
	return out
}

// Summary returns the summary for every stored deal.
func (s *Service) Summary(ctx context.Context) (PipelineSummary, error) {
	deals, err := s.ListDeals(ctx)
	if err != nil {
		return PipelineSummary{}, err
	}
	return Summarize(deals), nil
}

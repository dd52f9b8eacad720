package app

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/manovate/crm/internal/domain"
)

func demoService(t *testing.T) *Service {
	t.Helper()
	return NewService(NewRecordStore(newFakeKV(), nil, nil), counterIDs(), fixedClock(testNow), ServiceConfig{SeedDemoDeals: true})
}

func dealTitles(deals []domain.Deal) []string {
	out := make([]string, 0, len(deals))
	for _, d := range deals {
		out = append(out, d.Title)
	}
	return out
}

func TestSearchDealsViews(t *testing.T) {
	svc := demoService(t)
	ctx := context.Background()
	tests := []struct {
		name   string
		filter DealFilter
		want   []string
	}{
		{name: "won", filter: DealFilter{View: "Won"}, want: []string{"Q4 Marketing"}},
		{name: "lost", filter: DealFilter{View: "lost"}, want: []string{}},
		{name: "stage", filter: DealFilter{View: "DueDate"}, want: []string{"Mobile App Dev"}},
		{name: "search client", filter: DealFilter{Search: "umbrella"}, want: []string{"Cloud Migration"}},
		{name: "search description", filter: DealFilter{View: ViewActive, Search: "SEO"}, want: []string{"SEO Campaign"}},
		{name: "search status", filter: DealFilter{Search: "won"}, want: []string{"Q4 Marketing"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := svc.SearchDeals(ctx, tc.filter)
			if err != nil {
				t.Fatalf("SearchDeals() error = %v", err)
			}
			if diff := cmp.Diff(tc.want, dealTitles(got)); diff != "" {
				t.Fatalf("titles mismatch (-want +got):\n%s", diff)
			}
		})
	}

	active, _ := svc.SearchDeals(ctx, DealFilter{View: ViewActive})
	if len(active) != 5 {
		t.Fatalf("expected 5 active deals, got %d", len(active))
	}
	all, _ := svc.SearchDeals(ctx, DealFilter{})
	if len(all) != 6 {
		t.Fatalf("expected 6 deals, got %d", len(all))
	}
}

func TestBoardGroupsByStage(t *testing.T) {
	svc := demoService(t)
	board, err := svc.Board(context.Background(), DealFilter{})
	if err != nil {
		t.Fatalf("Board() error = %v", err)
	}
	if len(board) != 6 {
		t.Fatalf("expected 6 columns, got %d", len(board))
	}
	for i, col := range board {
		if col.Stage != domain.Stages()[i] || len(col.Deals) != 1 {
			t.Fatalf("unexpected column %d: %q with %d deals", i, col.Stage, len(col.Deals))
		}
		if col.Locked != (col.Stage == domain.StageStatus) {
			t.Fatalf("unexpected lock flag on %q", col.Stage)
		}
	}
	if board[4].Revenue != 120000 {
		t.Fatalf("unexpected revenue column total %d", board[4].Revenue)
	}
}

func TestSummarize(t *testing.T) {
	svc := demoService(t)
	summary, err := svc.Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	want := PipelineSummary{OpenCount: 5, OpenRevenue: 257000, WonCount: 1, WonRevenue: 25000}
	if diff := cmp.Diff(want, summary); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestViewsAndSummaryAgreeOnOutcome(t *testing.T) {
	deals := []domain.Deal{
		domain.NormalizeDeal(domain.Deal{ID: 1, Title: "closed won", Stage: domain.StageStatus, Status: domain.StatusWon, Revenue: 100}),
		domain.NormalizeDeal(domain.Deal{ID: 2, Title: "won outside status", Stage: domain.StageDueDate, Status: domain.StatusWon, Revenue: 40}),
		domain.NormalizeDeal(domain.Deal{ID: 3, Title: "lost outside status", Stage: domain.StageOrders, Status: domain.StatusLost, Revenue: 7}),
	}

	summary := Summarize(deals)
	want := PipelineSummary{OpenCount: 2, OpenRevenue: 47, WonCount: 1, WonRevenue: 100}
	if diff := cmp.Diff(want, summary); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}

	views := map[string][]string{
		"Won":      {"closed won"},
		"Lost":     {},
		"Open":     {"won outside status", "lost outside status"},
		ViewActive: {"won outside status", "lost outside status"},
	}
	for view, wantTitles := range views {
		got := dealTitles(FilterDeals(deals, DealFilter{View: view}))
		if diff := cmp.Diff(wantTitles, got); diff != "" {
			t.Fatalf("FilterDeals(%q) mismatch (-want +got):\n%s", view, diff)
		}
	}
	if len(FilterDeals(deals, DealFilter{View: "Won"})) != summary.WonCount {
		t.Fatal("expected the Won view to match the summary count")
	}
}

package common

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/manovate/crm/internal/adapters/storage/memory"
	"github.com/manovate/crm/internal/app"
	"github.com/manovate/crm/internal/domain"
)

// newDemoAdapter builds an adapter over the six demo deals with deterministic ids and time.
func newDemoAdapter(t *testing.T) *AppServiceAdapter {
	t.Helper()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	next := int64(100)
	svc := app.NewService(
		app.NewRecordStore(memory.New(), nil, nil),
		func() int64 { next++; return next },
		func() time.Time { return now },
		app.ServiceConfig{SeedDemoDeals: true, SeedNotifications: true},
	)
	return NewAppServiceAdapter(svc)
}

func TestAdapterListDealsFiltersAndStripsPayloads(t *testing.T) {
	ctx := context.Background()
	adapter := newDemoAdapter(t)
	if _, err := adapter.AddAttachment(ctx, AddAttachmentRequest{DealID: 1, Name: "brief.txt", MimeType: "text/plain"}, strings.NewReader("hello")); err != nil {
		t.Fatalf("AddAttachment() error = %v", err)
	}

	deals, err := adapter.ListDeals(ctx, ListDealsRequest{Search: "acme"})
	if err != nil {
		t.Fatalf("ListDeals() error = %v", err)
	}
	if len(deals) != 1 || deals[0].ID != 1 {
		t.Fatalf("unexpected search result %#v", deals)
	}
	if deals[0].AttachmentCount != 1 || deals[0].Attachments[0].Payload != "" {
		t.Fatalf("expected payload stripped from list, got %#v", deals[0].Attachments)
	}
	full, err := adapter.GetDeal(ctx, 1)
	if err != nil {
		t.Fatalf("GetDeal() error = %v", err)
	}
	if !strings.HasPrefix(full.Attachments[0].Payload, "data:text/plain;base64,") {
		t.Fatalf("expected payload on single read, got %q", full.Attachments[0].Payload)
	}

	won, err := adapter.ListDeals(ctx, ListDealsRequest{View: "Won"})
	if err != nil {
		t.Fatalf("ListDeals() error = %v", err)
	}
	if len(won) != 1 || !won[0].Locked || won[0].StatusColor != string(domain.ColorPositive) {
		t.Fatalf("unexpected won view %#v", won)
	}
}

func TestAdapterMoveDealOutcomes(t *testing.T) {
	ctx := context.Background()
	adapter := newDemoAdapter(t)

	tests := []struct {
		name    string
		req     MoveDealRequest
		outcome string
		reason  string
		stage   string
	}{
		{name: "applied", req: MoveDealRequest{DealID: 1, From: "Clients", To: "orders"}, outcome: "applied", stage: "Orders"},
		{name: "locked", req: MoveDealRequest{DealID: 6, From: "Status", To: "Clients"}, outcome: "rejected", reason: "locked_terminal", stage: "Status"},
		{name: "wrong source", req: MoveDealRequest{DealID: 3, From: "Tasks", To: "Status"}, outcome: "rejected", reason: "invalid_closure_source", stage: "Tasks"},
		{name: "pending", req: MoveDealRequest{DealID: 5, From: "Revenue", To: "Status"}, outcome: "pending_closure", stage: "Revenue"},
		{name: "stale", req: MoveDealRequest{DealID: 2, From: "Clients", To: "Tasks"}, outcome: "rejected", reason: "stale_source", stage: "Orders"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := adapter.MoveDeal(ctx, tc.req)
			if err != nil {
				t.Fatalf("MoveDeal() error = %v", err)
			}
			if res.Outcome != tc.outcome || res.Reason != tc.reason || res.Stage != tc.stage {
				t.Fatalf("MoveDeal() = %#v", res)
			}
			if tc.outcome != "applied" && res.Message == "" {
				t.Fatal("expected explanatory message")
			}
		})
	}

	if _, err := adapter.MoveDeal(ctx, MoveDealRequest{DealID: 1, From: "Archive", To: "Orders"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if _, err := adapter.MoveDeal(ctx, MoveDealRequest{DealID: 99, From: "Clients", To: "Orders"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAdapterCloseDealAndNotifications(t *testing.T) {
	ctx := context.Background()
	adapter := newDemoAdapter(t)
	before, err := adapter.ListNotifications(ctx)
	if err != nil {
		t.Fatalf("ListNotifications() error = %v", err)
	}
	if before.Unread != 2 || len(before.Items) != 3 {
		t.Fatalf("unexpected seeded feed %#v", before)
	}

	deal, err := adapter.CloseDeal(ctx, CloseDealRequest{DealID: 5, Outcome: "won"})
	if err != nil {
		t.Fatalf("CloseDeal() error = %v", err)
	}
	if deal.Stage != "Status" || deal.Status != "Won" || !deal.Locked {
		t.Fatalf("unexpected closed deal %#v", deal)
	}
	after, err := adapter.ListNotifications(ctx)
	if err != nil {
		t.Fatalf("ListNotifications() error = %v", err)
	}
	if after.Unread != 3 || after.Items[0].DealID != 5 || after.Items[0].Type != "success" {
		t.Fatalf("unexpected feed after win %#v", after.Items[0])
	}

	if _, err := adapter.CloseDeal(ctx, CloseDealRequest{DealID: 5, Outcome: "lost"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if _, err := adapter.CloseDeal(ctx, CloseDealRequest{DealID: 4, Outcome: "maybe"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}

	if _, err := adapter.MarkNotificationRead(ctx, after.Items[0].ID); err != nil {
		t.Fatalf("MarkNotificationRead() error = %v", err)
	}
	if err := adapter.MarkAllNotificationsRead(ctx); err != nil {
		t.Fatalf("MarkAllNotificationsRead() error = %v", err)
	}
	feed, _ := adapter.ListNotifications(ctx)
	if feed.Unread != 0 {
		t.Fatalf("expected all read, got %d unread", feed.Unread)
	}
	if err := adapter.ClearNotifications(ctx); err != nil {
		t.Fatalf("ClearNotifications() error = %v", err)
	}
	feed, _ = adapter.ListNotifications(ctx)
	if len(feed.Items) != 0 {
		t.Fatalf("expected empty feed, got %d", len(feed.Items))
	}
}

func TestAdapterCreateAndEditDeal(t *testing.T) {
	ctx := context.Background()
	adapter := newDemoAdapter(t)
	created, err := adapter.CreateDeal(ctx, CreateDealRequest{
		Title:     "Data Platform",
		Client:    "Hooli",
		Revenue:   30000,
		DueDate:   "2026-04-01",
		Assignees: []Assignee{{Label: "GB", Color: "purple"}},
	})
	if err != nil {
		t.Fatalf("CreateDeal() error = %v", err)
	}
	if created.Stage != "Clients" || created.DueDate != "2026-04-01" {
		t.Fatalf("unexpected created deal %#v", created)
	}
	if diff := cmp.Diff([]Assignee{{Label: "GB", Color: "purple"}}, created.Assignees); diff != "" {
		t.Fatalf("assignees mismatch (-want +got):\n%s", diff)
	}

	title := "Data Platform v2"
	clear := ""
	edited, err := adapter.EditDeal(ctx, EditDealRequest{DealID: created.ID, Title: &title, DueDate: &clear})
	if err != nil {
		t.Fatalf("EditDeal() error = %v", err)
	}
	if edited.Title != title || edited.DueDate != "" || edited.Revenue != 30000 {
		t.Fatalf("unexpected edited deal %#v", edited)
	}

	bad := "tomorrow"
	if _, err := adapter.EditDeal(ctx, EditDealRequest{DealID: created.ID, DueDate: &bad}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if _, err := adapter.CreateDeal(ctx, CreateDealRequest{Title: " "}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for blank title, got %v", err)
	}
	if _, err := adapter.CreateDeal(ctx, CreateDealRequest{Title: "x", Stage: "Archive"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for bad stage, got %v", err)
	}
}

func TestAdapterCommentsAndAttachments(t *testing.T) {
	ctx := context.Background()
	adapter := newDemoAdapter(t)
	if _, err := adapter.AddComment(ctx, AddCommentRequest{DealID: 2, Text: "   "}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected blank comment rejected, got %v", err)
	}
	deal, err := adapter.AddComment(ctx, AddCommentRequest{DealID: 2, Text: " sent proposal ", Author: "Asha Singh"})
	if err != nil {
		t.Fatalf("AddComment() error = %v", err)
	}
	if deal.CommentCount != 1 || deal.Comments[0].Text != "sent proposal" || deal.Comments[0].Initials != "AS" {
		t.Fatalf("unexpected comment %#v", deal.Comments)
	}

	big := strings.NewReader(strings.Repeat("x", domain.MaxAttachmentBytes+1))
	if _, err := adapter.AddAttachment(ctx, AddAttachmentRequest{DealID: 2, Name: "huge.bin"}, big); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	deal, err = adapter.AddAttachment(ctx, AddAttachmentRequest{DealID: 2, Name: "quote.pdf", MimeType: "application/pdf"}, strings.NewReader("%PDF"))
	if err != nil {
		t.Fatalf("AddAttachment() error = %v", err)
	}
	deal, err = adapter.DeleteAttachment(ctx, 2, deal.Attachments[0].ID)
	if err != nil {
		t.Fatalf("DeleteAttachment() error = %v", err)
	}
	if deal.AttachmentCount != 0 {
		t.Fatalf("expected attachment removed, got %d", deal.AttachmentCount)
	}
}

func TestAdapterBoardAndSubscribe(t *testing.T) {
	ctx := context.Background()
	adapter := newDemoAdapter(t)
	var events []ChangeEvent
	unsubscribe := adapter.SubscribeChanges(func(ev ChangeEvent) { events = append(events, ev) })
	defer unsubscribe()

	board, err := adapter.Board(ctx, ListDealsRequest{})
	if err != nil {
		t.Fatalf("Board() error = %v", err)
	}
	if len(board.Columns) != 6 || !board.Columns[5].Locked || board.Columns[4].Revenue != 120000 {
		t.Fatalf("unexpected board %#v", board.Columns)
	}
	if board.Summary.WonCount != 1 || board.Summary.OpenRevenue != 257000 {
		t.Fatalf("unexpected summary %#v", board.Summary)
	}
	if err := adapter.DeleteDeal(ctx, 1); err != nil {
		t.Fatalf("DeleteDeal() error = %v", err)
	}
	if len(events) != 1 || events[0].Key != app.DefaultDealsKey {
		t.Fatalf("expected one deals change event, got %#v", events)
	}
}

func TestValidateCommentText(t *testing.T) {
	if got, err := ValidateCommentText("  ok  "); err != nil || got != "ok" {
		t.Fatalf("ValidateCommentText() = %q, %v", got, err)
	}
	if _, err := ValidateCommentText(strings.Repeat("é", MaxCommentLength+1)); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected oversize rejection, got %v", err)
	}
	if _, err := ValidateCommentText(strings.Repeat("é", MaxCommentLength)); err != nil {
		t.Fatalf("expected limit to be inclusive, got %v", err)
	}
}

func TestNilAdapterFailsClosed(t *testing.T) {
	var adapter *AppServiceAdapter
	if _, err := adapter.ListDeals(context.Background(), ListDealsRequest{}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	unsubscribe := adapter.SubscribeChanges(func(ChangeEvent) {})
	unsubscribe()
}

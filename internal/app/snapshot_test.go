package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/manovate/crm/internal/domain"
)

func TestExportSnapshotIncludesExpectedData(t *testing.T) {
	svc := NewService(NewRecordStore(newFakeKV(), nil, nil), counterIDs(), fixedClock(testNow), ServiceConfig{SeedDemoDeals: true, SeedNotifications: true})
	ctx := context.Background()
	if _, err := svc.AddComment(ctx, 1, "kickoff booked", ""); err != nil {
		t.Fatalf("AddComment() error = %v", err)
	}

	snap, err := svc.ExportSnapshot(ctx)
	if err != nil {
		t.Fatalf("ExportSnapshot() error = %v", err)
	}
	if snap.Version != SnapshotVersion || !snap.ExportedAt.Equal(testNow) {
		t.Fatalf("unexpected header %q %s", snap.Version, snap.ExportedAt)
	}
	if len(snap.Deals) != 6 || len(snap.Notifications) != 3 {
		t.Fatalf("unexpected snapshot sizes deals=%d notifications=%d", len(snap.Deals), len(snap.Notifications))
	}
	if len(snap.Deals[0].Comments) != 1 || snap.Deals[0].Comments[0].Text != "kickoff booked" {
		t.Fatalf("expected comment in export, got %#v", snap.Deals[0].Comments)
	}
	if err := snap.Validate(); err != nil {
		t.Fatalf("exported snapshot should validate: %v", err)
	}
}

func TestImportSnapshotCreatesAndUpdates(t *testing.T) {
	source := demoService(t)
	ctx := context.Background()
	snap, err := source.ExportSnapshot(ctx)
	if err != nil {
		t.Fatalf("ExportSnapshot() error = %v", err)
	}
	snap.Deals[0].Title = "Website Redesign v2"

	target := newTestService(t, newFakeKV())
	existing, err := target.CreateDeal(ctx, CreateDealInput{Title: "Local only"})
	if err != nil {
		t.Fatalf("CreateDeal() error = %v", err)
	}
	if err := target.ImportSnapshot(ctx, snap); err != nil {
		t.Fatalf("ImportSnapshot() error = %v", err)
	}
	deals, err := target.ListDeals(ctx)
	if err != nil {
		t.Fatalf("ListDeals() error = %v", err)
	}
	if len(deals) != 7 {
		t.Fatalf("expected local deal plus 6 imported, got %d", len(deals))
	}
	if deals[0].ID != existing.ID {
		t.Fatalf("expected local deal kept first, got %d", deals[0].ID)
	}
	imported, err := target.GetDeal(ctx, 1)
	if err != nil {
		t.Fatalf("GetDeal() error = %v", err)
	}
	if imported.Title != "Website Redesign v2" {
		t.Fatalf("unexpected imported title %q", imported.Title)
	}

	// Re-import replaces by id instead of duplicating.
	if err := target.ImportSnapshot(ctx, snap); err != nil {
		t.Fatalf("ImportSnapshot(again) error = %v", err)
	}
	again, _ := target.ListDeals(ctx)
	if len(again) != 7 {
		t.Fatalf("expected idempotent import, got %d deals", len(again))
	}
	if diff := cmp.Diff(dealTitles(deals), dealTitles(again)); diff != "" {
		t.Fatalf("re-import changed titles (-first +second):\n%s", diff)
	}
}

func TestImportSnapshotValidateErrors(t *testing.T) {
	svc := newTestService(t, newFakeKV())
	ctx := context.Background()
	now := time.Date(2026, 2, 22, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		snap Snapshot
	}{
		{name: "version", snap: Snapshot{Version: "manovate.snapshot.v999"}},
		{name: "missing id", snap: Snapshot{Version: SnapshotVersion, Deals: []SnapshotDeal{{Title: "x", Stage: domain.StageClients, CreatedOn: now}}}},
		{name: "bad stage", snap: Snapshot{Version: SnapshotVersion, Deals: []SnapshotDeal{{ID: 1, Title: "x", Stage: "Archive"}}}},
		{name: "open in status", snap: Snapshot{Version: SnapshotVersion, Deals: []SnapshotDeal{{ID: 1, Title: "x", Stage: domain.StageStatus, Status: domain.StatusOpen}}}},
		{name: "duplicate", snap: Snapshot{Version: SnapshotVersion, Deals: []SnapshotDeal{
			{ID: 1, Title: "x", Stage: domain.StageClients},
			{ID: 1, Title: "y", Stage: domain.StageOrders},
		}}},
		{name: "notification title", snap: Snapshot{Version: SnapshotVersion, Notifications: []SnapshotNotification{{ID: 1}}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := svc.ImportSnapshot(ctx, tc.snap); !errors.Is(err, ErrInvalidSnapshot) {
				t.Fatalf("expected ErrInvalidSnapshot, got %v", err)
			}
		})
	}
}

func TestExportSnapshotPropagatesError(t *testing.T) {
	kv := newFakeKV()
	expected := errors.New("boom")
	kv.getErr = expected
	svc := newTestService(t, kv)
	if _, err := svc.ExportSnapshot(context.Background()); !errors.Is(err, expected) {
		t.Fatalf("expected error %v, got %v", expected, err)
	}
}

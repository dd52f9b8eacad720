package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/manovate/crm/internal/app"
	"github.com/manovate/crm/internal/domain"
)

func TestRepository_GetSetRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, err := Open(filepath.Join(t.TempDir(), "nested", "manovate.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})

	if _, err := repo.Get(ctx, "deals"); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := repo.Set(ctx, "deals", []byte(`[{"id":1}]`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := repo.Set(ctx, "deals", []byte(`[]`)); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}
	got, err := repo.Get(ctx, "deals")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != `[]` {
		t.Fatalf("expected overwritten payload, got %s", got)
	}
	keys, err := repo.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	if len(keys) != 1 || keys[0] != "deals" {
		t.Fatalf("unexpected keys %#v", keys)
	}
}

func TestRepository_Revisions(t *testing.T) {
	ctx := context.Background()
	repo, err := Open(filepath.Join(t.TempDir(), "manovate.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	tick := 0
	repo.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}
	for _, payload := range []string{`[1]`, `[1,2]`, `[1,2,3]`} {
		if err := repo.Set(ctx, "deals", []byte(payload)); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	}
	revs, err := repo.Revisions(ctx, "deals", 2)
	if err != nil {
		t.Fatalf("Revisions() error = %v", err)
	}
	if len(revs) != 2 {
		t.Fatalf("expected 2 revisions, got %d", len(revs))
	}
	if revs[0].SizeBytes != len(`[1,2,3]`) || !revs[0].WrittenAt.Equal(base.Add(3*time.Minute)) {
		t.Fatalf("unexpected newest revision %#v", revs[0])
	}
	if revs[0].ID <= revs[1].ID {
		t.Fatalf("expected newest-first ordering, got %#v", revs)
	}
}

func TestRepository_BacksService(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "manovate.db")
	repo, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	svc := app.NewService(app.NewRecordStore(repo, nil, nil), nil, nil, app.ServiceConfig{SeedDemoDeals: true})
	deals, err := svc.ListDeals(ctx)
	if err != nil {
		t.Fatalf("ListDeals() error = %v", err)
	}
	if len(deals) != 6 {
		t.Fatalf("expected seeded demo deals, got %d", len(deals))
	}
	res, err := svc.AttemptMove(ctx, 5, domain.StageRevenue, domain.StageStatus)
	if err != nil {
		t.Fatalf("AttemptMove() error = %v", err)
	}
	if res.Outcome != app.MovePendingClosure {
		t.Fatalf("expected pending closure, got %#v", res)
	}
	if _, err := svc.ResolveClosure(ctx, 5, domain.OutcomeWon); err != nil {
		t.Fatalf("ResolveClosure() error = %v", err)
	}
	if err := repo.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() reopen error = %v", err)
	}
	t.Cleanup(func() {
		_ = reopened.Close()
	})
	svc = app.NewService(app.NewRecordStore(reopened, nil, nil), nil, nil, app.ServiceConfig{SeedDemoDeals: true})
	deal, err := svc.GetDeal(ctx, 5)
	if err != nil {
		t.Fatalf("GetDeal() error = %v", err)
	}
	if deal.Stage != domain.StageStatus || deal.Status != domain.StatusWon {
		t.Fatalf("expected persisted won deal, got %q/%q", deal.Stage, deal.Status)
	}
	notes, err := svc.ListNotifications(ctx)
	if err != nil {
		t.Fatalf("ListNotifications() error = %v", err)
	}
	if len(notes) == 0 || notes[0].DealID != 5 {
		t.Fatalf("expected won notification first, got %#v", notes)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for blank path")
	}
}

func TestOpenInMemory(t *testing.T) {
	repo, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})
	if err := repo.Set(context.Background(), "k", nil); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err := repo.Get(context.Background(), "k")
	if err != nil || len(got) != 0 {
		t.Fatalf("Get() = %q, %v", got, err)
	}
}

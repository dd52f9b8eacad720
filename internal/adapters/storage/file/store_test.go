package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/manovate/crm/internal/app"
	"github.com/manovate/crm/internal/domain"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestStoreGetSet(t *testing.T) {
	ctx := context.Background()
	store, err := New(filepath.Join(t.TempDir(), "data"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := store.Get(ctx, "manovate_deals_v4"); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.Set(ctx, "manovate_deals_v4", []byte(`[]`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err := store.Get(ctx, "manovate_deals_v4")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != `[]` {
		t.Fatalf("unexpected payload %s", got)
	}
	if filepath.Base(store.Path("manovate_deals_v4")) != "manovate_deals_v4.json" {
		t.Fatalf("unexpected path %s", store.Path("manovate_deals_v4"))
	}
	entries, err := os.ReadDir(store.Dir())
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected temp files to be cleaned up, got %d entries", len(entries))
	}
}

func TestStoreEscapesKeys(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	key := "../escape/attempt"
	if err := store.Set(context.Background(), key, []byte(`1`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if filepath.Dir(store.Path(key)) != store.Dir() {
		t.Fatalf("expected key to stay inside store dir, got %s", store.Path(key))
	}
	got, ok := keyFromPath(store.Path(key))
	if !ok || got != key {
		t.Fatalf("keyFromPath() = %q, %v", got, ok)
	}
	if _, ok := keyFromPath(filepath.Join(store.Dir(), ".tmp-123")); ok {
		t.Fatal("expected temp files to be ignored")
	}
}

func TestStoreKeepsKeysWithLeadingDot(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for _, key := range []string{".hidden", "..", ".tmp-notes"} {
		got, ok := keyFromPath(store.Path(key))
		if !ok || got != key {
			t.Fatalf("keyFromPath(Path(%q)) = %q, %v", key, got, ok)
		}
	}
}

func TestPendingChangeDue(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	debounce, maxWait := 100*time.Millisecond, 500*time.Millisecond
	tests := []struct {
		name   string
		change pendingChange
		now    time.Time
		want   bool
	}{
		{"still busy", pendingChange{first: start, last: start.Add(250 * time.Millisecond)}, start.Add(300 * time.Millisecond), false},
		{"quiet for debounce", pendingChange{first: start, last: start}, start.Add(100 * time.Millisecond), true},
		{"busy past max wait", pendingChange{first: start, last: start.Add(480 * time.Millisecond)}, start.Add(500 * time.Millisecond), true},
	}
	for _, tt := range tests {
		if got := tt.change.due(tt.now, debounce, maxWait); got != tt.want {
			t.Fatalf("%s: due() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestStoreSetHonoursCancellation(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := store.Set(ctx, "k", []byte(`[]`)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewRequiresDir(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatal("expected error for blank dir")
	}
}

func startWatch(t *testing.T, store *Store) (<-chan app.ChangeEvent, func()) {
	t.Helper()
	events := make(chan app.ChangeEvent, 16)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- store.Watch(ctx, func(ev app.ChangeEvent) {
			select {
			case events <- ev:
			default:
			}
		})
	}()
	stop := func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Watch() error = %v", err)
		}
	}
	return events, stop
}

// writeUntilObserved keeps rewriting path until the watcher reports key, covering watcher start-up.
func writeUntilObserved(t *testing.T, events <-chan app.ChangeEvent, path, key string) app.ChangeEvent {
	t.Helper()
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case ev := <-events:
			if ev.Key == key {
				return ev
			}
		case <-tick.C:
			if err := os.WriteFile(path, []byte(`[{"id":1,"title":"edited elsewhere"}]`), 0o644); err != nil {
				t.Fatalf("WriteFile() error = %v", err)
			}
		case <-deadline:
			t.Fatalf("timed out waiting for change event on %q", key)
		}
	}
}

func drain(events <-chan app.ChangeEvent, quiet time.Duration) {
	for {
		select {
		case <-events:
		case <-time.After(quiet):
			return
		}
	}
}

func TestWatchReportsExternalWrites(t *testing.T) {
	store, err := New(t.TempDir(), WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	events, stop := startWatch(t, store)
	defer stop()

	ev := writeUntilObserved(t, events, store.Path("manovate_deals_v4"), "manovate_deals_v4")
	if !ev.External || ev.At.IsZero() {
		t.Fatalf("unexpected event %#v", ev)
	}
}

func TestWatchReportsKeyUnderSustainedWrites(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir, WithDebounce(40*time.Millisecond))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	other, err := New(dir)
	if err != nil {
		t.Fatalf("New(other) error = %v", err)
	}
	events, stop := startWatch(t, store)
	defer stop()

	// Writes arrive faster than the debounce, so the key never goes quiet.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case ev := <-events:
			if ev.Key == "crm_notifications" && ev.External {
				return
			}
		case <-tick.C:
			if err := other.Set(context.Background(), "crm_notifications", []byte(`[]`)); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
		case <-deadline:
			t.Fatal("no change event while writes kept arriving")
		}
	}
}

func TestWatchSkipsOwnWrites(t *testing.T) {
	store, err := New(t.TempDir(), WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	events, stop := startWatch(t, store)
	defer stop()

	writeUntilObserved(t, events, store.Path("warmup"), "warmup")
	drain(events, 200*time.Millisecond)

	if err := store.Set(context.Background(), "crm_notifications", []byte(`[]`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	select {
	case ev := <-events:
		t.Fatalf("expected own write to be ignored, got %#v", ev)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatchFeedsRecordStoreListeners(t *testing.T) {
	ctx := context.Background()
	store, err := New(t.TempDir(), WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	records := app.NewRecordStore(store, nil, nil)
	svc := app.NewService(records, nil, nil, app.ServiceConfig{SeedDemoDeals: true})
	if _, err := svc.ListDeals(ctx); err != nil {
		t.Fatalf("ListDeals() error = %v", err)
	}

	events := make(chan app.ChangeEvent, 16)
	unsubscribe := svc.Subscribe(func(ev app.ChangeEvent) {
		select {
		case events <- ev:
		default:
		}
	})
	defer unsubscribe()

	watchCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- store.Watch(watchCtx, records.Events().Publish) }()
	defer func() {
		cancel()
		<-done
	}()

	path := store.Path(app.DefaultDealsKey)
	ev := writeUntilObserved(t, events, path, app.DefaultDealsKey)
	if !ev.External {
		t.Fatalf("expected external event, got %#v", ev)
	}
	deal, err := svc.GetDeal(ctx, 1)
	if err != nil {
		t.Fatalf("GetDeal() error = %v", err)
	}
	if deal.Title != "edited elsewhere" || deal.Stage != domain.StageClients {
		t.Fatalf("expected externally edited deal, got %q/%q", deal.Title, deal.Stage)
	}
}

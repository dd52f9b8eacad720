package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/manovate/crm/internal/domain"
)

// seedDeals stores deals directly so tests can start from any board state.
func seedDeals(t *testing.T, kv *fakeKV, deals ...domain.Deal) {
	t.Helper()
	records := make([]dealRecord, 0, len(deals))
	for _, d := range deals {
		records = append(records, recordFromDeal(d))
	}
	payload, err := json.Marshal(records)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	kv.data[DefaultDealsKey] = payload
}

func TestAttemptMoveSameColumnIsNoop(t *testing.T) {
	kv := newFakeKV()
	svc := newTestService(t, kv)
	res, err := svc.AttemptMove(context.Background(), 12345, domain.StageTasks, domain.StageTasks)
	if err != nil {
		t.Fatalf("AttemptMove() error = %v", err)
	}
	if res.Outcome != MoveApplied || res.Stage != domain.StageTasks || res.Err() != nil {
		t.Fatalf("unexpected no-op result %#v", res)
	}
	if len(kv.data) != 0 {
		t.Fatal("expected no storage access for a same-column move")
	}
}

func TestAttemptMoveAppliesBetweenActiveColumns(t *testing.T) {
	svc := newTestService(t, newFakeKV())
	ctx := context.Background()
	deal := mustCreateAt(t, svc, "x", domain.StageOrders)

	var events int
	defer svc.Subscribe(func(ChangeEvent) { events++ })()

	res, err := svc.AttemptMove(ctx, deal.ID, domain.StageOrders, domain.StageClients)
	if err != nil {
		t.Fatalf("AttemptMove() error = %v", err)
	}
	if res.Outcome != MoveApplied || res.Stage != domain.StageClients || res.Deal.Stage != domain.StageClients {
		t.Fatalf("unexpected result %#v", res)
	}
	if events != 1 {
		t.Fatalf("expected one change event, got %d", events)
	}
	stored, _ := svc.GetDeal(ctx, deal.ID)
	if stored.Stage != domain.StageClients {
		t.Fatalf("expected stored stage Clients, got %q", stored.Stage)
	}
}

func TestAttemptMoveIntoStatusRequiresRevenue(t *testing.T) {
	for _, from := range []domain.Stage{domain.StageClients, domain.StageOrders, domain.StageTasks, domain.StageDueDate} {
		t.Run(string(from), func(t *testing.T) {
			kv := newFakeKV()
			svc := newTestService(t, kv)
			ctx := context.Background()
			deal := mustCreateAt(t, svc, "x", from)
			writes := kv.setCount(DefaultDealsKey)

			res, err := svc.AttemptMove(ctx, deal.ID, from, domain.StageStatus)
			if err != nil {
				t.Fatalf("AttemptMove() error = %v", err)
			}
			if res.Outcome != MoveRejected || res.Reason != ReasonInvalidClosureSource {
				t.Fatalf("unexpected result %#v", res)
			}
			if !errors.Is(res.Err(), domain.ErrInvalidClosureSource) {
				t.Fatalf("expected ErrInvalidClosureSource, got %v", res.Err())
			}
			if kv.setCount(DefaultDealsKey) != writes {
				t.Fatal("expected rejected move to skip persistence")
			}
			stored, _ := svc.GetDeal(ctx, deal.ID)
			if stored.Stage != from {
				t.Fatalf("expected stage %q unchanged, got %q", from, stored.Stage)
			}
		})
	}
}

func TestAttemptMoveFromRevenueToStatusIsPending(t *testing.T) {
	kv := newFakeKV()
	svc := newTestService(t, kv)
	ctx := context.Background()
	deal := mustCreateAt(t, svc, "x", domain.StageRevenue)
	writes := kv.setCount(DefaultDealsKey)

	for range 3 {
		res, err := svc.AttemptMove(ctx, deal.ID, domain.StageRevenue, domain.StageStatus)
		if err != nil {
			t.Fatalf("AttemptMove() error = %v", err)
		}
		if res.Outcome != MovePendingClosure || res.Deal.ID != deal.ID || res.Err() != nil {
			t.Fatalf("unexpected result %#v", res)
		}
		if res.Deal.Stage != domain.StageRevenue {
			t.Fatalf("expected pending deal to stay in Revenue, got %q", res.Deal.Stage)
		}
	}
	if kv.setCount(DefaultDealsKey) != writes {
		t.Fatal("expected pending closure to skip persistence")
	}
}

func TestAttemptMoveOutOfStatusIsLocked(t *testing.T) {
	kv := newFakeKV()
	svc := newTestService(t, kv)
	ctx := context.Background()
	deal := mustCreateAt(t, svc, "x", domain.StageRevenue)
	if _, err := svc.ResolveClosure(ctx, deal.ID, domain.OutcomeWon); err != nil {
		t.Fatalf("ResolveClosure() error = %v", err)
	}
	writes := kv.setCount(DefaultDealsKey)

	for _, to := range domain.Stages() {
		if to == domain.StageStatus {
			continue
		}
		res, err := svc.AttemptMove(ctx, deal.ID, domain.StageStatus, to)
		if err != nil {
			t.Fatalf("AttemptMove(%q) error = %v", to, err)
		}
		if res.Outcome != MoveRejected || res.Reason != ReasonLockedTerminal {
			t.Fatalf("AttemptMove(%q) = %#v", to, res)
		}
		if !errors.Is(res.Err(), domain.ErrLockedTerminal) {
			t.Fatalf("expected ErrLockedTerminal, got %v", res.Err())
		}
	}
	if kv.setCount(DefaultDealsKey) != writes {
		t.Fatal("expected locked deal to stay unwritten")
	}
	stored, _ := svc.GetDeal(ctx, deal.ID)
	if stored.Stage != domain.StageStatus || !stored.Status.IsClosed() {
		t.Fatalf("expected closed deal, got %q/%q", stored.Stage, stored.Status)
	}
}

func TestAttemptMoveRejectsStaleSource(t *testing.T) {
	svc := newTestService(t, newFakeKV())
	ctx := context.Background()
	deal := mustCreateAt(t, svc, "x", domain.StageTasks)
	res, err := svc.AttemptMove(ctx, deal.ID, domain.StageClients, domain.StageOrders)
	if err != nil {
		t.Fatalf("AttemptMove() error = %v", err)
	}
	if res.Outcome != MoveRejected || res.Reason != ReasonStaleSource || res.Stage != domain.StageTasks {
		t.Fatalf("unexpected result %#v", res)
	}
	if !errors.Is(res.Err(), ErrStaleSource) {
		t.Fatalf("expected ErrStaleSource, got %v", res.Err())
	}
}

func TestAttemptMoveErrors(t *testing.T) {
	svc := newTestService(t, newFakeKV())
	ctx := context.Background()
	if _, err := svc.AttemptMove(ctx, 1, domain.StageClients, domain.StageOrders); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.AttemptMove(ctx, 1, "Archive", domain.StageOrders); !errors.Is(err, domain.ErrInvalidStage) {
		t.Fatalf("expected ErrInvalidStage, got %v", err)
	}
}

func TestScenarioRevenueDealClosedWon(t *testing.T) {
	kv := newFakeKV()
	seedDeals(t, kv, domain.Deal{ID: 1, Title: "Cloud Migration", Stage: domain.StageRevenue, Status: domain.StatusOpen, Revenue: 120000})
	svc := newTestService(t, kv)
	ctx := context.Background()

	res, err := svc.AttemptMove(ctx, 1, domain.StageRevenue, domain.StageStatus)
	if err != nil {
		t.Fatalf("AttemptMove() error = %v", err)
	}
	if res.Outcome != MovePendingClosure {
		t.Fatalf("expected pending closure, got %#v", res)
	}
	closed, err := svc.ResolveClosure(ctx, res.Deal.ID, domain.OutcomeWon)
	if err != nil {
		t.Fatalf("ResolveClosure() error = %v", err)
	}
	if closed.Stage != domain.StageStatus || closed.Status != domain.StatusWon || closed.StatusColor != domain.ColorPositive {
		t.Fatalf("unexpected closed deal %q/%q/%q", closed.Stage, closed.Status, closed.StatusColor)
	}
	notes, err := svc.ListNotifications(ctx)
	if err != nil {
		t.Fatalf("ListNotifications() error = %v", err)
	}
	if len(notes) != 1 || notes[0].Type != domain.NotificationSuccess || notes[0].DealID != 1 {
		t.Fatalf("expected one success notification for deal 1, got %#v", notes)
	}
}

func TestScenarioClientsDealCannotClose(t *testing.T) {
	kv := newFakeKV()
	seedDeals(t, kv, domain.Deal{ID: 2, Title: "SEO Campaign", Stage: domain.StageClients})
	svc := newTestService(t, kv)
	ctx := context.Background()
	before, _ := svc.GetDeal(ctx, 2)

	res, err := svc.AttemptMove(ctx, 2, domain.StageClients, domain.StageStatus)
	if err != nil {
		t.Fatalf("AttemptMove() error = %v", err)
	}
	if res.Outcome != MoveRejected || res.Reason != ReasonInvalidClosureSource {
		t.Fatalf("unexpected result %#v", res)
	}
	after, _ := svc.GetDeal(ctx, 2)
	if after.Stage != before.Stage || after.Status != before.Status {
		t.Fatalf("expected deal unchanged, got %#v", after)
	}
}

func TestScenarioLostDealIsLocked(t *testing.T) {
	kv := newFakeKV()
	seedDeals(t, kv, domain.Deal{ID: 3, Title: "Enterprise License", Stage: domain.StageStatus, Status: domain.StatusLost})
	svc := newTestService(t, kv)
	ctx := context.Background()

	res, err := svc.AttemptMove(ctx, 3, domain.StageStatus, domain.StageRevenue)
	if err != nil {
		t.Fatalf("AttemptMove() error = %v", err)
	}
	if res.Outcome != MoveRejected || res.Reason != ReasonLockedTerminal {
		t.Fatalf("unexpected result %#v", res)
	}
	after, _ := svc.GetDeal(ctx, 3)
	if after.Stage != domain.StageStatus || after.Status != domain.StatusLost || after.StatusColor != domain.ColorNegative {
		t.Fatalf("expected deal unchanged, got %q/%q/%q", after.Stage, after.Status, after.StatusColor)
	}
}

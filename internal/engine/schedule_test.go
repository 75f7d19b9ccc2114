package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/chris-cpz/strategy-growth-momentum-dca/internal/broker"
	"github.com/chris-cpz/strategy-growth-momentum-dca/internal/md"
	"github.com/chris-cpz/strategy-growth-momentum-dca/internal/state"
	"github.com/rs/zerolog"
)

type countingRunner struct {
	runs int
}

func (c *countingRunner) RunCycle(context.Context) (CycleResult, error) {
	c.runs++
	return CycleResult{}, nil
}

type stubClock struct {
	clock broker.Clock
}

func (s *stubClock) Clock(context.Context) (broker.Clock, error) {
	return s.clock, nil
}

func session() (time.Time, time.Time) {
	open := time.Date(2026, 3, 2, 9, 30, 0, 0, md.Exchange)
	return open, open.Add(6*time.Hour + 30*time.Minute)
}

func TestSlotsAreEvenlySpaced(t *testing.T) {
	open, close := session()
	slots := Slots(open, close, 4)
	if len(slots) != 4 {
		t.Fatalf("expected 4 slots, got %d", len(slots))
	}
	want := open.Add(48*time.Minute + 45*time.Second)
	if !slots[0].Equal(want) {
		t.Fatalf("expected first slot at %s, got %s", want, slots[0])
	}
	gap := slots[1].Sub(slots[0])
	for i := 2; i < len(slots); i++ {
		if slots[i].Sub(slots[i-1]) != gap {
			t.Fatalf("uneven spacing at slot %d", i)
		}
	}
	if !slots[3].Before(close) {
		t.Fatalf("last slot must be before the close")
	}
}

func TestSlotsRejectEmptySession(t *testing.T) {
	open, _ := session()
	if slots := Slots(open, open, 3); slots != nil {
		t.Fatalf("expected no slots, got %v", slots)
	}
}

func TestSchedulerRunsEachSlotOnce(t *testing.T) {
	open, close := session()
	clock := &stubClock{clock: broker.Clock{IsOpen: true, NextClose: close, Now: open.Add(10 * time.Minute)}}
	runner := &countingRunner{}
	store := state.NewStore()
	scheduler := NewScheduler(runner, clock, store, "", 4, 6*time.Hour+30*time.Minute, time.Minute, zerolog.Nop())
	ctx := context.Background()

	if scheduler.Tick(ctx) {
		t.Fatalf("expected no run before the first slot")
	}

	clock.clock.Now = open.Add(time.Hour)
	if !scheduler.Tick(ctx) {
		t.Fatalf("expected first slot to run")
	}
	if scheduler.Tick(ctx) {
		t.Fatalf("expected first slot to run only once")
	}

	clock.clock.Now = open.Add(6 * time.Hour)
	if !scheduler.Tick(ctx) {
		t.Fatalf("expected catch-up run")
	}
	if scheduler.Tick(ctx) {
		t.Fatalf("expected missed slots to fold into one run")
	}
	if runner.runs != 2 {
		t.Fatalf("expected 2 runs, got %d", runner.runs)
	}
	if !store.SlotDone("2026-03-02", 3) {
		t.Fatalf("expected last slot marked done")
	}
}

func TestSchedulerSavesCheckpointAfterRun(t *testing.T) {
	open, close := session()
	clock := &stubClock{clock: broker.Clock{IsOpen: true, NextClose: close, Now: open.Add(time.Hour)}}
	path := filepath.Join(t.TempDir(), "state.json")
	scheduler := NewScheduler(&countingRunner{}, clock, state.NewStore(), path, 4, 6*time.Hour+30*time.Minute, time.Minute, zerolog.Nop())

	if !scheduler.Tick(context.Background()) {
		t.Fatalf("expected first slot to run")
	}

	restored := state.NewStore()
	if err := restored.Load(path); err != nil {
		t.Fatalf("expected checkpoint after the run: %v", err)
	}
	if !restored.SlotDone("2026-03-02", 0) {
		t.Fatalf("expected slot 0 in the checkpoint")
	}
}

func TestSchedulerSkipsClosedMarket(t *testing.T) {
	_, close := session()
	clock := &stubClock{clock: broker.Clock{IsOpen: false, NextClose: close, Now: close.Add(time.Hour)}}
	runner := &countingRunner{}
	scheduler := NewScheduler(runner, clock, state.NewStore(), "", 3, 6*time.Hour+30*time.Minute, time.Minute, zerolog.Nop())

	if scheduler.Tick(context.Background()) {
		t.Fatalf("expected no run while closed")
	}
	if runner.runs != 0 {
		t.Fatalf("expected no cycles, got %d", runner.runs)
	}
}

func TestSchedulerRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	scheduler := NewScheduler(&countingRunner{}, &stubClock{}, state.NewStore(), "", 3, time.Hour, time.Hour, zerolog.Nop())

	if err := scheduler.Run(ctx); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestReconcileUpdatesPositions(t *testing.T) {
	store := state.NewStore()
	store.AddOpenOrder(state.OpenOrder{ClientOrderID: "stale", Symbol: "NVDA"})

	Reconcile(context.Background(), &fakeBroker{buyingPower: 500}, store, []string{"NVDA", "AMD"}, zerolog.Nop())

	snapshot := store.Snapshot()
	if len(snapshot.OpenOrders) != 0 {
		t.Fatalf("expected filled orders to be cleared, got %v", snapshot.OpenOrders)
	}
	if _, ok := snapshot.Positions["AMD"]; !ok {
		t.Fatalf("expected AMD position to be tracked")
	}
}

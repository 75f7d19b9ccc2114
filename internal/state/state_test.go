package state

import (
	"path/filepath"
	"testing"
	"time"
)

func TestStoreRecordBuyAccumulates(t *testing.T) {
	store := NewStore()
	first := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	store.RecordBuy("NVDA", first, 95.5)
	store.RecordBuy("NVDA", first.Add(time.Hour), 99)

	holding := store.Holding("NVDA")
	if holding.Buys != 2 {
		t.Fatalf("expected 2 buys, got %d", holding.Buys)
	}
	if holding.Invested != 194.5 {
		t.Fatalf("expected 194.5 invested, got %.2f", holding.Invested)
	}
	if !holding.LastBuyTime.Equal(first.Add(time.Hour)) {
		t.Fatalf("unexpected last buy time %s", holding.LastBuyTime)
	}
}

func TestStoreOpenOrderCountBySymbol(t *testing.T) {
	store := NewStore()
	store.AddOpenOrder(OpenOrder{ClientOrderID: "a", Symbol: "AMD"})
	store.AddOpenOrder(OpenOrder{ClientOrderID: "b", Symbol: "AMD"})
	store.AddOpenOrder(OpenOrder{ClientOrderID: "c", Symbol: "TSLA"})

	if got := store.OpenOrderCount("AMD"); got != 2 {
		t.Fatalf("expected 2 AMD orders, got %d", got)
	}
	if got := store.OpenOrderCount("RKLB"); got != 0 {
		t.Fatalf("expected no RKLB orders, got %d", got)
	}
}

func TestStoreSlotsResetOnNewDay(t *testing.T) {
	store := NewStore()
	store.MarkSlot("2026-03-02", 0)
	store.MarkSlot("2026-03-02", 1)
	store.MarkSlot("2026-03-02", 1)

	if !store.SlotDone("2026-03-02", 1) {
		t.Fatalf("expected slot 1 done")
	}
	if got := len(store.Snapshot().RunSlots["2026-03-02"]); got != 2 {
		t.Fatalf("expected 2 slots recorded, got %d", got)
	}

	store.MarkSlot("2026-03-03", 0)
	if store.SlotDone("2026-03-02", 0) {
		t.Fatalf("expected previous day slots to be dropped")
	}
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	store := NewStore()
	store.RecordBuy("QBTS", time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC), 98)
	store.MarkSlot("2026-03-02", 2)
	if err := store.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded := NewStore()
	if err := loaded.Load(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Holding("QBTS").Buys != 1 {
		t.Fatalf("expected QBTS holding to survive reload")
	}
	if !loaded.SlotDone("2026-03-02", 2) {
		t.Fatalf("expected run slot to survive reload")
	}
	if loaded.Snapshot().OpenOrders == nil {
		t.Fatalf("expected open orders map to be initialised")
	}
}

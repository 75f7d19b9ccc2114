package state

import (
	"encoding/json"
	"os"
	"slices"
	"sync"
	"time"
)

type Position struct {
	Qty      float64
	AvgEntry float64
}

type OpenOrder struct {
	ClientOrderID string
	OrderID       string
	Symbol        string
	Status        string
}

// Holding is the DCA history of one symbol as seen by this bot.
type Holding struct {
	LastBuyTime time.Time
	Buys        int
	Invested    float64
}

type Snapshot struct {
	Holdings      map[string]Holding
	Positions     map[string]Position
	OpenOrders    map[string]OpenOrder
	RunSlots      map[string][]int
	LastCycleTime time.Time
}

type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

func NewStore() *Store {
	return &Store{snapshot: emptySnapshot()}
}

func emptySnapshot() Snapshot {
	return Snapshot{
		Holdings:   map[string]Holding{},
		Positions:  map[string]Position{},
		OpenOrders: map[string]OpenOrder{},
		RunSlots:   map[string][]int{},
	}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	copy := emptySnapshot()
	copy.LastCycleTime = s.snapshot.LastCycleTime
	for k, v := range s.snapshot.Holdings {
		copy.Holdings[k] = v
	}
	for k, v := range s.snapshot.Positions {
		copy.Positions[k] = v
	}
	for k, v := range s.snapshot.OpenOrders {
		copy.OpenOrders[k] = v
	}
	for k, v := range s.snapshot.RunSlots {
		copy.RunSlots[k] = slices.Clone(v)
	}
	return copy
}

func (s *Store) Holding(symbol string) Holding {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot.Holdings[symbol]
}

func (s *Store) RecordBuy(symbol string, at time.Time, notional float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.snapshot.Holdings[symbol]
	h.LastBuyTime = at
	h.Buys++
	h.Invested += notional
	s.snapshot.Holdings[symbol] = h
}

func (s *Store) UpdatePosition(symbol string, position Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Positions[symbol] = position
}

func (s *Store) SetOpenOrders(orders map[string]OpenOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.OpenOrders = orders
}

func (s *Store) AddOpenOrder(order OpenOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.OpenOrders[order.ClientOrderID] = order
}

func (s *Store) OpenOrderCount(symbol string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, order := range s.snapshot.OpenOrders {
		if order.Symbol == symbol {
			count++
		}
	}
	return count
}

// MarkSlot records that run slot index of trading day has executed and drops
// slots of earlier days.
func (s *Store) MarkSlot(day string, index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for d := range s.snapshot.RunSlots {
		if d != day {
			delete(s.snapshot.RunSlots, d)
		}
	}
	if !slices.Contains(s.snapshot.RunSlots[day], index) {
		s.snapshot.RunSlots[day] = append(s.snapshot.RunSlots[day], index)
	}
}

func (s *Store) SlotDone(day string, index int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Contains(s.snapshot.RunSlots[day], index)
}

func (s *Store) SetLastCycleTime(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.LastCycleTime = t
}

func (s *Store) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := json.MarshalIndent(s.snapshot, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *Store) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	snapshot := emptySnapshot()
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return err
	}
	if snapshot.Holdings == nil {
		snapshot.Holdings = map[string]Holding{}
	}
	if snapshot.Positions == nil {
		snapshot.Positions = map[string]Position{}
	}
	if snapshot.OpenOrders == nil {
		snapshot.OpenOrders = map[string]OpenOrder{}
	}
	if snapshot.RunSlots == nil {
		snapshot.RunSlots = map[string][]int{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snapshot
	return nil
}

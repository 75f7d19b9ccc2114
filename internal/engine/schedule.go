package engine

import (
	"context"
	"time"

	"github.com/chris-cpz/strategy-growth-momentum-dca/internal/broker"
	"github.com/chris-cpz/strategy-growth-momentum-dca/internal/md"
	"github.com/chris-cpz/strategy-growth-momentum-dca/internal/state"
	"github.com/rs/zerolog"
)

// Slots spreads n run times evenly across a session, each centred in its
// share of the session so no run lands on the open or the close.
func Slots(open, close time.Time, n int) []time.Time {
	if n <= 0 || !close.After(open) {
		return nil
	}
	span := close.Sub(open)
	slots := make([]time.Time, n)
	for i := range slots {
		slots[i] = open.Add(span * time.Duration(2*i+1) / time.Duration(2*n))
	}
	return slots
}

type Clock interface {
	Clock(ctx context.Context) (broker.Clock, error)
}

type CycleRunner interface {
	RunCycle(ctx context.Context) (CycleResult, error)
}

type Scheduler struct {
	runner        CycleRunner
	clock         Clock
	state         *state.Store
	checkpoint    string
	runsPerDay    int
	sessionLength time.Duration
	poll          time.Duration
	log           zerolog.Logger
}

// NewScheduler builds a Scheduler. When checkpoint is set the store is saved
// there after every cycle it runs.
func NewScheduler(runner CycleRunner, clock Clock, store *state.Store, checkpoint string, runsPerDay int, sessionLength, poll time.Duration, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		runner:        runner,
		clock:         clock,
		state:         store,
		checkpoint:    checkpoint,
		runsPerDay:    runsPerDay,
		sessionLength: sessionLength,
		poll:          poll,
		log:           log,
	}
}

// Run polls the broker clock until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		s.Tick(ctx)
		if err := broker.WaitForContext(ctx, s.poll); err != nil {
			return err
		}
	}
}

// Tick runs at most one cycle. Every slot already due is marked done, so
// slots missed while the bot was down fold into a single run instead of a
// burst.
func (s *Scheduler) Tick(ctx context.Context) bool {
	clock, err := s.clock.Clock(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("market clock unavailable")
		return false
	}
	if !clock.IsOpen {
		return false
	}

	open := clock.NextClose.Add(-s.sessionLength)
	day := md.StartOfDay(clock.Now).Format("2006-01-02")

	due := -1
	for i, slot := range Slots(open, clock.NextClose, s.runsPerDay) {
		if slot.After(clock.Now) {
			break
		}
		if !s.state.SlotDone(day, i) {
			due = i
		}
	}
	if due < 0 {
		return false
	}
	for i := 0; i <= due; i++ {
		s.state.MarkSlot(day, i)
	}

	s.log.Info().Str("day", day).Int("slot", due+1).Int("runs_per_day", s.runsPerDay).Msg("running scheduled dca cycle")
	if _, err := s.runner.RunCycle(ctx); err != nil {
		s.log.Error().Err(err).Int("slot", due+1).Msg("dca cycle finished with error")
	}
	if s.checkpoint != "" {
		if err := s.state.Save(s.checkpoint); err != nil {
			s.log.Error().Err(err).Str("path", s.checkpoint).Msg("failed to save checkpoint")
		}
	}
	return true
}

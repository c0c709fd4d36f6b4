// Package engine implements the four-phase turn pipeline of spec section
// 4.3: Conflict, Income, Command, Production, run in that fixed order
// against (store, rules, commands_for_turn_N) to produce (new_store,
// events, per_house_snapshot[]). Each phase is a pure function of its
// input plus a seeded random source keyed by (game_id, turn, phase) (spec
// section 4.3's determinism requirement); Run is the only exported entry
// point and is itself pure — all I/O (persistence, transport) belongs to
// the daemon.
package engine

import (
	"fmt"

	"github.com/greenm01/ec4x/internal/command"
	"github.com/greenm01/ec4x/internal/entity"
	"github.com/greenm01/ec4x/internal/events"
	"github.com/greenm01/ec4x/internal/fow"
	"github.com/greenm01/ec4x/internal/rng"
	"github.com/greenm01/ec4x/internal/rules"
)

// Result bundles everything one turn resolution produces, matching the
// daemon's commit shape (spec section 4.5: one new snapshot, events,
// per-house snapshots).
type Result struct {
	World        *entity.World
	Events       []events.Event
	PlayerStates map[entity.ID]fow.PlayerState
	NextTurn     int
}

// Run executes one full turn against a cloned copy of store, never
// mutating the caller's World (spec section 5: "each resolution worker
// owns a freshly deserialized copy and writes back one blob"). On any
// invariant violation it returns a non-nil error and Result is the zero
// value; the caller (daemon) must discard the clone, roll back its
// persistence transaction, and mark the game Paused (spec section 4.3.5).
func Run(gameID string, store *entity.World, rls *rules.Rules, turn int, packets []command.Packet) (Result, error) {
	w := store.Clone()
	sink := events.NewSink()

	phases := []struct {
		name string
		run  func() error
	}{
		{rng.PhaseConflict, func() error {
			return runConflict(w, rls, sink, rng.ForPhase(gameID, turn, rng.PhaseConflict), turn)
		}},
		{rng.PhaseIncome, func() error {
			runIncome(w, rls, sink, rng.ForPhase(gameID, turn, rng.PhaseIncome), turn)
			return nil
		}},
		{rng.PhaseCommand, func() error {
			runCommand(w, rls, sink, packets, turn)
			return nil
		}},
		{rng.PhaseProduction, func() error {
			runProduction(w, rls, sink, rng.ForPhase(gameID, turn, rng.PhaseProduction), turn)
			return nil
		}},
	}

	for _, p := range phases {
		if err := p.run(); err != nil {
			return Result{}, fmt.Errorf("engine: phase %s: %w", p.name, err)
		}
		w.RebuildIndices()
		if err := w.CheckInvariants(); err != nil {
			return Result{}, fmt.Errorf("engine: invariant check after phase %s: %w", p.name, err)
		}
	}

	nextTurn := turn + 1

	states := make(map[entity.ID]fow.PlayerState, w.Houses.Len())
	for id, h := range w.Houses.Iterate(nil) {
		if h.Eliminated {
			continue
		}
		states[id] = fow.Project(w, rls, gameID, nextTurn, id)
	}

	evs := sink.All()
	for i := range evs {
		evs[i].GameID = gameID
		evs[i].Turn = turn
	}

	return Result{
		World:        w,
		Events:       evs,
		PlayerStates: states,
		NextTurn:     nextTurn,
	}, nil
}

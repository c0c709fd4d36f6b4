// Package daemon implements the single-process, event-driven supervisor of
// spec section 4.8: a message/state/update core that is itself pure —
// Update(state, message) -> (state, []Effect) — driven by Loop against real
// I/O (transport, persistence, timers). Keeping Update pure is what makes
// the daemon's guarantees (serial-per-game resolution, bounded cross-game
// parallelism, three-strikes pause) checkable without touching a network or
// a database.
package daemon

import (
	"time"

	"github.com/greenm01/ec4x/internal/engine"
	"github.com/greenm01/ec4x/internal/entity"
	"github.com/greenm01/ec4x/internal/persistence"
	"github.com/greenm01/ec4x/internal/rules"
	"github.com/greenm01/ec4x/internal/transport"
)

// Phase mirrors games.phase (spec section 4.5/6).
type Phase string

const (
	PhaseActive  Phase = "active"
	PhasePaused  Phase = "paused"
	PhaseEnded   Phase = "ended"
)

// MaxConsecutiveFailures is spec section 4.8's "Three consecutive failures
// on the same game force it into Paused".
const MaxConsecutiveFailures = 3

// GameState is one game's entry in the daemon's state map (spec section
// 4.8: "Map of game id -> { deadline, resolving_flag, pending_commands,
// transport handle }").
type GameState struct {
	ID          string
	Slug        string
	Dir         string
	Deadline    time.Time
	Resolving   bool
	FailedTurns int
	Phase       Phase
	Transport   transport.Transport
	Rules       *rules.Rules
	DB          *persistence.DB

	// PendingCommands holds packets collected since the last resolution,
	// keyed by house, so a replayed submission for the same house
	// supersedes the previous one (spec section 6) before ResolveTurn reads
	// them out of persistence.
	PendingCommands map[entity.ID][]byte
}

// State is the daemon's whole world: every known game, keyed by game id.
// Whether a game is currently resolving is its GameState.Resolving flag.
type State struct {
	Games map[string]*GameState
}

// NewState returns an empty daemon State.
func NewState() State {
	return State{Games: make(map[string]*GameState)}
}

func (s State) withGame(id string, mutate func(*GameState)) State {
	g, ok := s.Games[id]
	if !ok {
		return s
	}
	cp := *g
	cp.PendingCommands = cloneCommands(g.PendingCommands)
	mutate(&cp)
	next := shallowCopyState(s)
	next.Games[id] = &cp
	return next
}

func shallowCopyState(s State) State {
	games := make(map[string]*GameState, len(s.Games))
	for k, v := range s.Games {
		games[k] = v
	}
	return State{Games: games}
}

func cloneCommands(m map[entity.ID][]byte) map[entity.ID][]byte {
	out := make(map[entity.ID][]byte, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Message is the sum type of spec section 4.8's message catalog: Tick,
// CommandReceived, ResolveTurn, TurnResolved, DeltasPublished,
// GameDiscovered, TransportError, plus TurnFailed for the failure path
// section 7 requires (invariant violation, persistence failure, resolution
// timeout all collapse to one "this attempt didn't commit" message).
type Message interface{ isDaemonMessage() }

// Tick is the periodic wake-up that drives deadline checks and the
// hot-reload directory scan.
type Tick struct{ At time.Time }

// CommandReceived is a decoded, already-authenticated inbound command
// packet handed up from a transport.
type CommandReceived struct {
	Game  string
	House entity.ID
	Data  []byte
}

// ResolveTurn requests that game's current turn be resolved now (deadline
// reached, or every non-eliminated house has submitted).
type ResolveTurn struct{ Game string }

// TurnResolved carries a completed, committed resolution back into the
// loop so Update can clear the resolving flag and schedule delta
// publication.
type TurnResolved struct {
	Game   string
	Result engine.Result
}

// TurnFailed covers every way a resolution can fail to commit: an engine
// invariant violation, a persistence error, or a hard wall-clock timeout
// (spec section 5's "Cancellation & timeouts"). All three share one
// recovery path: bump the failure counter, discard the attempt, retry or
// pause.
type TurnFailed struct {
	Game string
	Err  error
}

// DeltasPublished confirms every recipient's delta (and the public
// summary) for a resolved turn made it to the transport.
type DeltasPublished struct{ Game string }

// GameDiscovered is emitted by the hot-reload scan for a game directory
// not yet present in State.
type GameDiscovered struct {
	ID   string
	Path string
}

// TransportError reports a failed publish (or a failed encoding) of a
// delta or of the summary in Loop.publish. It is sent once per failure;
// the failed publish is not retried.
type TransportError struct {
	Game string
	Err  error
}

func (Tick) isDaemonMessage()             {}
func (CommandReceived) isDaemonMessage()  {}
func (ResolveTurn) isDaemonMessage()      {}
func (TurnResolved) isDaemonMessage()     {}
func (TurnFailed) isDaemonMessage()       {}
func (DeltasPublished) isDaemonMessage()  {}
func (GameDiscovered) isDaemonMessage()   {}
func (TransportError) isDaemonMessage()   {}

// Effect is one async task Update wants performed; Loop executes it and
// feeds the resulting Message back through Update. An Effect that has no
// follow-up message (nothing to report) returns nil.
type Effect interface {
	Kind() string
}

// ResolveEffect asks Loop to run engine.Run for Game against its currently
// pending commands, off the event-loop goroutine, under the bounded
// semaphore (spec section 5: "may dispatch it to a bounded worker pool").
type ResolveEffect struct{ Game string }

func (ResolveEffect) Kind() string { return "resolve" }

// PublishEffect asks Loop to hand a resolved turn's deltas and summary to
// the game's transport (spec section 4.8: "only then are deltas handed to
// the transport").
type PublishEffect struct {
	Game   string
	Result engine.Result
}

func (PublishEffect) Kind() string { return "publish" }

// PauseGameEffect asks Loop to persist a Paused phase transition (spec
// section 7: "the game enters Paused; moderator alert").
type PauseGameEffect struct{ Game string }

func (PauseGameEffect) Kind() string { return "pause" }

// ScanEffect asks Loop to perform one hot-reload directory scan.
type ScanEffect struct{}

func (ScanEffect) Kind() string { return "scan" }

// Update is the daemon's pure core (spec section 4.8: "Pure function
// (state, message) -> (state, effects[])"). It never touches a clock, a
// socket, or a filesystem; Loop is solely responsible for translating its
// Effect values into real work and real follow-up Messages.
func Update(state State, msg Message) (State, []Effect) {
	switch m := msg.(type) {

	case GameDiscovered:
		if _, known := state.Games[m.ID]; known {
			return state, nil
		}
		next := shallowCopyState(state)
		next.Games[m.ID] = &GameState{
			ID:              m.ID,
			Dir:             m.Path,
			Phase:           PhaseActive,
			PendingCommands: make(map[entity.ID][]byte),
		}
		return next, nil

	case CommandReceived:
		g, ok := state.Games[m.Game]
		if !ok || g.Phase != PhaseActive {
			return state, nil
		}
		next := state.withGame(m.Game, func(g *GameState) {
			g.PendingCommands[m.House] = m.Data
		})
		return next, nil

	case Tick:
		next := state
		var effects []Effect
		for id, g := range state.Games {
			if g.Phase != PhaseActive || g.Resolving {
				continue
			}
			if !m.At.Before(g.Deadline) {
				next = next.withGame(id, func(g *GameState) { g.Resolving = true })
				effects = append(effects, ResolveEffect{Game: id})
			}
		}
		effects = append(effects, ScanEffect{})
		return next, effects

	case ResolveTurn:
		g, ok := state.Games[m.Game]
		if !ok || g.Resolving || g.Phase != PhaseActive {
			return state, nil
		}
		next := state.withGame(m.Game, func(g *GameState) { g.Resolving = true })
		return next, []Effect{ResolveEffect{Game: m.Game}}

	case TurnResolved:
		next := state.withGame(m.Game, func(g *GameState) {
			g.Resolving = false
			g.FailedTurns = 0
			g.PendingCommands = make(map[entity.ID][]byte)
		})
		return next, []Effect{PublishEffect{Game: m.Game, Result: m.Result}}

	case TurnFailed:
		g, ok := state.Games[m.Game]
		if !ok {
			return state, nil
		}
		failed := g.FailedTurns + 1
		var effects []Effect
		next := state.withGame(m.Game, func(g *GameState) {
			g.Resolving = false
			g.FailedTurns = failed
			if failed >= MaxConsecutiveFailures {
				g.Phase = PhasePaused
			}
		})
		if failed >= MaxConsecutiveFailures {
			effects = append(effects, PauseGameEffect{Game: m.Game})
		}
		return next, effects

	case DeltasPublished:
		return state, nil

	case TransportError:
		// A publish failure changes no state and schedules nothing: neither
		// Update nor Loop re-enqueues the PublishEffect.
		return state, nil

	default:
		return state, nil
	}
}

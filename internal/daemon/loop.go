package daemon

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/greenm01/ec4x/internal/codec"
	"github.com/greenm01/ec4x/internal/command"
	"github.com/greenm01/ec4x/internal/engine"
	"github.com/greenm01/ec4x/internal/entity"
	"github.com/greenm01/ec4x/internal/fow"
	"github.com/greenm01/ec4x/internal/persistence"
	"github.com/rs/zerolog"
)

// ResolutionTimeout is the hard wall-clock ceiling on one turn resolution
// (spec section 5: "A turn resolution has a hard wall-clock timeout; on
// expiry it is treated as a failure").
const ResolutionTimeout = 30 * time.Second

// Loop drives Update against real effects: transport I/O, persistence I/O,
// and timers, bounding concurrent ResolveEffect execution with a
// semaphore.Weighted sized to max_concurrent_resolutions (spec section 5).
// Update itself never runs concurrently with itself — every message is
// processed on the single loop goroutine — so State never needs its own
// lock.
type Loop struct {
	log   zerolog.Logger
	sem   *semaphore.Weighted
	msgCh chan Message
	wg    sync.WaitGroup

	registryMu sync.RWMutex
	registry   map[string]*GameState

	// Scan is called on every ScanEffect to discover new game directories;
	// injected so Loop never hard-codes a filesystem layout.
	Scan func(ctx context.Context) ([]GameDiscovered, error)
}

// NewLoop builds a Loop whose worker pool allows at most
// maxConcurrentResolutions simultaneous ResolveEffect executions.
func NewLoop(log zerolog.Logger, maxConcurrentResolutions int64) *Loop {
	return &Loop{
		log:   log,
		sem:   semaphore.NewWeighted(maxConcurrentResolutions),
		msgCh: make(chan Message, 256),
	}
}

// Send enqueues a message for the loop to process on its next iteration;
// safe to call from any goroutine (transport subscriptions, the CLI's
// in-process submit path, timers).
func (l *Loop) Send(m Message) { l.msgCh <- m }

// Run drives the event loop until ctx is cancelled. On cancellation it
// stops accepting new ResolveTurn messages and waits for in-flight
// resolutions to finish (spec section 5: "A shutdown signal drains
// in-flight resolutions to completion but refuses new ResolveTurn
// messages").
func (l *Loop) Run(ctx context.Context, initial State, tick time.Duration) State {
	state := initial
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	draining := false
	for {
		select {
		case <-ctx.Done():
			if draining {
				continue
			}
			draining = true
			l.log.Info().Msg("daemon: shutdown signal received, draining in-flight resolutions")
			go func() {
				l.wg.Wait()
				close(l.msgCh)
			}()
		case now := <-ticker.C:
			if draining {
				continue
			}
			state = l.step(ctx, state, Tick{At: now})
		case m, ok := <-l.msgCh:
			if !ok {
				return state
			}
			if draining {
				if _, isResolve := m.(ResolveTurn); isResolve {
					continue
				}
			}
			state = l.step(ctx, state, m)
		}
	}
}

func (l *Loop) step(ctx context.Context, state State, m Message) State {
	next, effects := Update(state, m)
	for _, eff := range effects {
		l.dispatch(ctx, eff)
	}
	return next
}

func (l *Loop) dispatch(ctx context.Context, eff Effect) {
	switch e := eff.(type) {
	case ResolveEffect:
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			if err := l.sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer l.sem.Release(1)
			l.resolve(ctx, e.Game)
		}()
	case PublishEffect:
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.publish(ctx, e.Game, e.Result)
		}()
	case PauseGameEffect:
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.log.Error().Str("game", e.Game).Msg("daemon: three consecutive failed turns, pausing game")
			if g := l.registryGet(e.Game); g != nil {
				if err := g.DB.SetPhase(ctx, e.Game, string(PhasePaused)); err != nil {
					l.log.Error().Err(err).Str("game", e.Game).Msg("daemon: persist paused phase")
				}
			}
		}()
	case ScanEffect:
		if l.Scan == nil {
			return
		}
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			discovered, err := l.Scan(ctx)
			if err != nil {
				l.log.Error().Err(err).Msg("daemon: hot-reload scan failed")
				return
			}
			for _, d := range discovered {
				l.Send(d)
			}
		}()
	}
}

// resolve reads a registered game's current state and pending commands,
// runs the engine, and commits. It takes the game's DB handle and rules
// from the registry filled by RegisterGame, not from Update's State.
func (l *Loop) resolve(parent context.Context, gameID string) {
	ctx, cancel := context.WithTimeout(parent, ResolutionTimeout)
	defer cancel()

	g := l.registryGet(gameID)
	if g == nil {
		l.Send(TurnFailed{Game: gameID, Err: fmt.Errorf("daemon: resolve: unknown game %s", gameID)})
		return
	}

	row, err := g.DB.LoadGame(ctx, gameID)
	if err != nil {
		l.Send(TurnFailed{Game: gameID, Err: fmt.Errorf("daemon: resolve: load game: %w", err)})
		return
	}
	w, err := entity.DecodeWorld(row.StateBlob)
	if err != nil {
		l.Send(TurnFailed{Game: gameID, Err: fmt.Errorf("daemon: resolve: decode world: %w", err)})
		return
	}

	rows, err := g.DB.CommandsForTurn(ctx, gameID, row.Turn)
	if err != nil {
		l.Send(TurnFailed{Game: gameID, Err: fmt.Errorf("daemon: resolve: commands for turn: %w", err)})
		return
	}
	packets := make([]command.Packet, 0, len(rows))
	processed := make([]entity.ID, 0, len(rows))
	for _, r := range rows {
		var p command.Packet
		if err := codec.Unmarshal(r.PacketBlob, &p); err != nil {
			continue // malformed packet: dropped, not fatal to the turn
		}
		packets = append(packets, p)
		processed = append(processed, r.House)
	}
	sort.Slice(packets, func(i, j int) bool { return packets[i].House < packets[j].House })

	result, err := engine.Run(gameID, w, g.Rules, row.Turn, packets)
	if err != nil {
		l.Send(TurnFailed{Game: gameID, Err: fmt.Errorf("daemon: resolve: %w", err)})
		return
	}

	newBlob, err := entity.EncodeWorld(result.World)
	if err != nil {
		l.Send(TurnFailed{Game: gameID, Err: fmt.Errorf("daemon: resolve: encode world: %w", err)})
		return
	}
	snapshots := make(map[entity.ID][]byte, len(result.PlayerStates))
	for house, ps := range result.PlayerStates {
		blob, err := codec.Marshal(ps)
		if err != nil {
			l.Send(TurnFailed{Game: gameID, Err: fmt.Errorf("daemon: resolve: marshal player state: %w", err)})
			return
		}
		snapshots[house] = blob
	}

	commit := persistence.TurnCommit{
		GameID:          gameID,
		NewTurn:         result.NextTurn,
		NewStateBlob:    newBlob,
		Events:          result.Events,
		PlayerSnapshots: snapshots,
		ProcessedHouses: processed,
		ProcessedTurn:   row.Turn,
	}
	if err := g.DB.CommitTurn(ctx, commit); err != nil {
		l.Send(TurnFailed{Game: gameID, Err: fmt.Errorf("daemon: resolve: commit: %w", err)})
		return
	}
	if err := g.DB.ResetFailedTurns(ctx, gameID); err != nil {
		l.log.Error().Err(err).Str("game", gameID).Msg("daemon: reset failed-turn counter")
	}

	l.log.Info().Str("game", gameID).Int("turn", row.Turn).Int("events", len(result.Events)).Msg("daemon: turn resolved")
	l.Send(TurnResolved{Game: gameID, Result: result})
}

// publish hands each non-eliminated house's delta, and the public summary,
// to the game's transport — only ever called after a turn's commit
// succeeds (spec section 4.8 step 6).
func (l *Loop) publish(ctx context.Context, gameID string, result engine.Result) {
	g := l.registryGet(gameID)
	if g == nil {
		return
	}

	row, err := g.DB.LoadGame(ctx, gameID)
	if err != nil {
		l.Send(TransportError{Game: gameID, Err: err})
		return
	}

	failed := false
	for house, ps := range result.PlayerStates {
		prevBlob, _, err := g.DB.LatestPlayerSnapshot(ctx, gameID, house)
		var prev *fow.PlayerState
		if err == nil {
			var p fow.PlayerState
			if err := codec.Unmarshal(prevBlob, &p); err == nil {
				prev = &p
			}
		}
		next := ps
		delta := fow.Diff(prev, &next)
		payload, err := codec.Marshal(delta)
		if err != nil {
			l.Send(TransportError{Game: gameID, Err: err})
			failed = true
			continue
		}
		if err := g.Transport.PublishDelta(ctx, gameID, house, payload); err != nil {
			l.Send(TransportError{Game: gameID, Err: err})
			failed = true
		}
	}

	summary := struct {
		GameID string `bson:"gameId"`
		Turn   int    `bson:"turn"`
		Phase  string `bson:"phase"`
	}{GameID: gameID, Turn: row.Turn, Phase: row.Phase}
	payload, err := codec.Marshal(summary)
	if err != nil {
		l.Send(TransportError{Game: gameID, Err: err})
		return
	}
	if err := g.Transport.PublishSummary(ctx, gameID, payload); err != nil {
		l.Send(TransportError{Game: gameID, Err: err})
		return
	}
	if failed {
		return
	}
	l.Send(DeltasPublished{Game: gameID})
}

// registryGet returns the GameState (with its DB, transport and rules
// handles) that RegisterGame stored for gameID, or nil. The registry is a
// map of its own, separate from Update's State, guarded by registryMu so
// that resolve and publish can read it from their worker goroutines.
func (l *Loop) registryGet(gameID string) *GameState {
	l.registryMu.RLock()
	defer l.registryMu.RUnlock()
	return l.registry[gameID]
}

// RegisterGame installs (or replaces) the I/O handles for gameID, read by
// resolve/publish. Called once per game at daemon startup (and again on
// GameDiscovered for a hot-reloaded game) — never from inside Update,
// which stays pure.
func (l *Loop) RegisterGame(g *GameState) {
	l.registryMu.Lock()
	defer l.registryMu.Unlock()
	if l.registry == nil {
		l.registry = make(map[string]*GameState)
	}
	l.registry[g.ID] = g
}

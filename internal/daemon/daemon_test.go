package daemon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenm01/ec4x/internal/engine"
	"github.com/greenm01/ec4x/internal/entity"
)

func stateWithGame(g *GameState) State {
	s := NewState()
	s.Games[g.ID] = g
	return s
}

func TestGameDiscoveredRegistersNewGameOnce(t *testing.T) {
	s := NewState()
	s, effects := Update(s, GameDiscovered{ID: "g1", Path: "/data/games/g1"})
	assert.Nil(t, effects)
	require.Contains(t, s.Games, "g1")
	assert.Equal(t, PhaseActive, s.Games["g1"].Phase)

	s2, effects2 := Update(s, GameDiscovered{ID: "g1", Path: "/other/path"})
	assert.Nil(t, effects2)
	assert.Equal(t, "/data/games/g1", s2.Games["g1"].Dir, "a rediscovered known game is left untouched")
}

func TestCommandReceivedBuffersUntilResolve(t *testing.T) {
	s := stateWithGame(&GameState{ID: "g1", Phase: PhaseActive, PendingCommands: map[entity.ID][]byte{}})
	s, effects := Update(s, CommandReceived{Game: "g1", House: 1, Data: []byte("packet")})
	assert.Nil(t, effects)
	assert.Equal(t, []byte("packet"), s.Games["g1"].PendingCommands[entity.ID(1)])
}

func TestCommandReceivedIgnoredForPausedGame(t *testing.T) {
	s := stateWithGame(&GameState{ID: "g1", Phase: PhasePaused, PendingCommands: map[entity.ID][]byte{}})
	s, effects := Update(s, CommandReceived{Game: "g1", House: 1, Data: []byte("packet")})
	assert.Nil(t, effects)
	assert.Empty(t, s.Games["g1"].PendingCommands)
}

func TestResolveTurnSetsResolvingFlagAndEmitsResolveEffect(t *testing.T) {
	s := stateWithGame(&GameState{ID: "g1", Phase: PhaseActive})
	s, effects := Update(s, ResolveTurn{Game: "g1"})
	require.Len(t, effects, 1)
	assert.Equal(t, ResolveEffect{Game: "g1"}, effects[0])
	assert.True(t, s.Games["g1"].Resolving)
}

func TestResolveTurnIsNoOpWhileAlreadyResolving(t *testing.T) {
	s := stateWithGame(&GameState{ID: "g1", Phase: PhaseActive, Resolving: true})
	s, effects := Update(s, ResolveTurn{Game: "g1"})
	assert.Nil(t, effects, "re-entrant resolution for a game already resolving must be a no-op")
	assert.True(t, s.Games["g1"].Resolving)
}

func TestTickSchedulesResolveOnlyPastDeadline(t *testing.T) {
	now := time.Now()
	s := stateWithGame(&GameState{ID: "g1", Phase: PhaseActive, Deadline: now.Add(-time.Minute)})
	s.Games["g2"] = &GameState{ID: "g2", Phase: PhaseActive, Deadline: now.Add(time.Hour)}

	_, effects := Update(s, Tick{At: now})

	var resolved []string
	sawScan := false
	for _, e := range effects {
		switch v := e.(type) {
		case ResolveEffect:
			resolved = append(resolved, v.Game)
		case ScanEffect:
			sawScan = true
		}
	}
	assert.Equal(t, []string{"g1"}, resolved, "only the game past its deadline is scheduled")
	assert.True(t, sawScan, "Tick always emits a hot-reload scan effect")
}

func TestTurnResolvedClearsResolvingAndSchedulesPublish(t *testing.T) {
	s := stateWithGame(&GameState{ID: "g1", Phase: PhaseActive, Resolving: true, FailedTurns: 2, PendingCommands: map[entity.ID][]byte{1: []byte("x")}})
	result := engine.Result{NextTurn: 2}
	s, effects := Update(s, TurnResolved{Game: "g1", Result: result})

	require.Len(t, effects, 1)
	pub, ok := effects[0].(PublishEffect)
	require.True(t, ok)
	assert.Equal(t, "g1", pub.Game)

	g := s.Games["g1"]
	assert.False(t, g.Resolving)
	assert.Zero(t, g.FailedTurns)
	assert.Empty(t, g.PendingCommands)
}

func TestTurnFailedBelowThresholdDoesNotPause(t *testing.T) {
	s := stateWithGame(&GameState{ID: "g1", Phase: PhaseActive, Resolving: true, FailedTurns: 1})
	s, effects := Update(s, TurnFailed{Game: "g1", Err: assertErr{}})
	assert.Nil(t, effects)
	g := s.Games["g1"]
	assert.False(t, g.Resolving)
	assert.Equal(t, 2, g.FailedTurns)
	assert.Equal(t, PhaseActive, g.Phase)
}

func TestTurnFailedThreeTimesForcesPause(t *testing.T) {
	s := stateWithGame(&GameState{ID: "g1", Phase: PhaseActive, Resolving: true, FailedTurns: 2})
	s, effects := Update(s, TurnFailed{Game: "g1", Err: assertErr{}})
	require.Len(t, effects, 1)
	assert.Equal(t, PauseGameEffect{Game: "g1"}, effects[0])
	assert.Equal(t, PhasePaused, s.Games["g1"].Phase)
	assert.Equal(t, MaxConsecutiveFailures, s.Games["g1"].FailedTurns)
}

func TestUpdateNeverMutatesInputState(t *testing.T) {
	original := stateWithGame(&GameState{ID: "g1", Phase: PhaseActive})
	_, _ = Update(original, ResolveTurn{Game: "g1"})
	assert.False(t, original.Games["g1"].Resolving, "Update must return a new State, never mutate the caller's copy")
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

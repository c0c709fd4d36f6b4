package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenm01/ec4x/internal/entity"
	"github.com/greenm01/ec4x/internal/events"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ec4x.db")
	db, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCreateAndLoadGameRoundTrips(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	g := GameRow{
		ID: "game-1", Name: "Test Game", Slug: "test-game", Turn: 1, Phase: "active",
		StateBlob: []byte("blob"), ConfigHash: "abc123", CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, db.CreateGame(ctx, g))

	got, err := db.LoadGame(ctx, "game-1")
	require.NoError(t, err)
	assert.Equal(t, "test-game", got.Slug)
	assert.Equal(t, 1, got.Turn)
	assert.Equal(t, []byte("blob"), got.StateBlob)
}

func TestLoadGameNotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := db.LoadGame(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBumpAndResetFailedTurns(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, db.CreateGame(ctx, GameRow{ID: "g1", Name: "G", Slug: "g", StateBlob: []byte("x"), ConfigHash: "h", CreatedAt: now, UpdatedAt: now}))

	n, err := db.BumpFailedTurns(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = db.BumpFailedTurns(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, db.ResetFailedTurns(ctx, "g1"))
	g, err := db.LoadGame(ctx, "g1")
	require.NoError(t, err)
	assert.Zero(t, g.FailedTurns)
}

func TestSaveCommandReplaySupersedesPrevious(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveCommand(ctx, "g1", entity.ID(1), 5, []byte("first")))
	require.NoError(t, db.SaveCommand(ctx, "g1", entity.ID(1), 5, []byte("second")))

	rows, err := db.CommandsForTurn(ctx, "g1", 5)
	require.NoError(t, err)
	require.Len(t, rows, 1, "replayed packet supersedes the previous one")
	assert.Equal(t, []byte("second"), rows[0].PacketBlob)
}

func TestSubmittedHousesTracksDistinctSubmitters(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveCommand(ctx, "g1", entity.ID(1), 1, []byte("a")))
	require.NoError(t, db.SaveCommand(ctx, "g1", entity.ID(2), 1, []byte("b")))

	submitted, err := db.SubmittedHouses(ctx, "g1", 1)
	require.NoError(t, err)
	assert.True(t, submitted[entity.ID(1)])
	assert.True(t, submitted[entity.ID(2)])
	assert.False(t, submitted[entity.ID(3)])
}

func TestCommitTurnWritesEventsSnapshotsAndFlagsProcessed(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, db.CreateGame(ctx, GameRow{ID: "g1", Name: "G", Slug: "g", StateBlob: []byte("old"), ConfigHash: "h", CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, db.SaveCommand(ctx, "g1", entity.ID(1), 1, []byte("packet")))

	commit := TurnCommit{
		GameID:       "g1",
		NewTurn:      2,
		NewStateBlob: []byte("new"),
		Events: []events.Event{
			{GameID: "g1", Turn: 1, Kind: events.KindColonyEstablished, House: 1, Description: "colonized S"},
		},
		PlayerSnapshots: map[entity.ID][]byte{1: []byte("snap1")},
		ProcessedHouses: []entity.ID{1},
		ProcessedTurn:   1,
	}
	require.NoError(t, db.CommitTurn(ctx, commit))

	g, err := db.LoadGame(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 2, g.Turn)
	assert.Equal(t, []byte("new"), g.StateBlob)

	evs, err := db.Events(ctx, "g1", 1)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, events.KindColonyEstablished, evs[0].Kind)

	blob, turn, err := db.LatestPlayerSnapshot(ctx, "g1", entity.ID(1))
	require.NoError(t, err)
	assert.Equal(t, 2, turn)
	assert.Equal(t, []byte("snap1"), blob)

	rows, err := db.CommandsForTurn(ctx, "g1", 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Processed)
}

func TestLatestPlayerSnapshotNotFoundForFreshHouse(t *testing.T) {
	db := openTestDB(t)
	_, _, err := db.LatestPlayerSnapshot(context.Background(), "g1", entity.ID(99))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordInboundDeduplicatesByEventID(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first, err := db.RecordInbound(ctx, "g1", 1, "command_in", "evt-1", "inbound")
	require.NoError(t, err)
	assert.True(t, first, "first sighting of an event id is recorded")

	second, err := db.RecordInbound(ctx, "g1", 1, "command_in", "evt-1", "inbound")
	require.NoError(t, err)
	assert.False(t, second, "a replayed event id is rejected at insert time")
}

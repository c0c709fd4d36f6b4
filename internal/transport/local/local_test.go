package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenm01/ec4x/internal/entity"
	"github.com/greenm01/ec4x/internal/persistence"
)

func newTestGame(t *testing.T) (*persistence.DB, string) {
	t.Helper()
	dir := t.TempDir()
	db, err := persistence.Open(context.Background(), filepath.Join(dir, "ec4x.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	now := time.Now()
	require.NoError(t, db.CreateGame(context.Background(), persistence.GameRow{
		ID: "g1", Name: "Test", Slug: "test", Turn: 1, Phase: "active",
		StateBlob: []byte("blob"), ConfigHash: "h", CreatedAt: now, UpdatedAt: now,
	}))
	return db, dir
}

func TestSubmitCommandWritesAgainstCurrentTurn(t *testing.T) {
	db, dir := newTestGame(t)
	tr := New(db, dir)

	require.NoError(t, tr.SubmitCommand(context.Background(), "g1", entity.ID(1), []byte("packet")))

	rows, err := db.CommandsForTurn(context.Background(), "g1", 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []byte("packet"), rows[0].PacketBlob)
}

func TestCollectCommandsReadsOnlyCurrentTurn(t *testing.T) {
	db, dir := newTestGame(t)
	tr := New(db, dir)

	require.NoError(t, tr.SubmitCommand(context.Background(), "g1", entity.ID(1), []byte("a")))
	require.NoError(t, tr.SubmitCommand(context.Background(), "g1", entity.ID(2), []byte("b")))

	require.NoError(t, db.CommitTurn(context.Background(), persistence.TurnCommit{
		GameID: "g1", NewTurn: 2, NewStateBlob: []byte("new"),
		ProcessedHouses: []entity.ID{1}, ProcessedTurn: 1,
	}))

	// commands were written against turn 1, but CommitTurn advanced the
	// game to turn 2, so CollectCommands (which reads the game's current
	// turn) now sees nothing for the new turn.
	ch, err := tr.CollectCommands(context.Background(), "g1")
	require.NoError(t, err)
	var received []entity.ID
	for c := range ch {
		received = append(received, c.Packet.House)
	}
	assert.Empty(t, received, "no commands have been submitted yet for the new current turn")
}

func TestPublishDeltaWritesPerRecipientFile(t *testing.T) {
	db, dir := newTestGame(t)
	tr := New(db, dir)

	require.NoError(t, tr.PublishDelta(context.Background(), "g1", entity.ID(42), []byte("encrypted-delta")))

	path := filepath.Join(dir, "deltas", entity.ID(42).String(), "latest.bin")
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("encrypted-delta"), got)
}

func TestPublishSummaryOverwritesPreviousSummary(t *testing.T) {
	db, dir := newTestGame(t)
	tr := New(db, dir)

	require.NoError(t, tr.PublishSummary(context.Background(), "g1", []byte("first")))
	require.NoError(t, tr.PublishSummary(context.Background(), "g1", []byte("second")))

	got, err := os.ReadFile(filepath.Join(dir, "summary.bin"))
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

// Package local implements transport.Transport for a single-process
// deployment: a moderator running one daemon against a filesystem
// directory and a same-process SQLite database (spec section 1's "direct
// local one (filesystem + same-process database)"). SubmitCommand writes
// straight into the commands table; PublishDelta/PublishSummary write a
// file under the game directory for a co-located TUI to poll, since there
// is no pub/sub network to hand payloads to.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/greenm01/ec4x/internal/entity"
	"github.com/greenm01/ec4x/internal/persistence"
	"github.com/greenm01/ec4x/internal/transport"
)

// Transport is the filesystem+DB transport. One instance is constructed
// per game directory by the daemon.
type Transport struct {
	db      *persistence.DB
	gameDir string
}

// New builds a local Transport rooted at gameDir (spec section 6:
// data/games/<slug>/), backed by db for command ingestion.
func New(db *persistence.DB, gameDir string) *Transport {
	return &Transport{db: db, gameDir: gameDir}
}

var _ transport.Transport = (*Transport)(nil)

// SubmitCommand writes packet directly into the commands table, keyed by
// (game, house, current turn). The caller (daemon's CommandReceived
// handler) already knows the current turn; local transport is in-process
// so it always writes against the game's current turn rather than
// parsing one out of packet.
func (t *Transport) SubmitCommand(ctx context.Context, game string, house entity.ID, packet []byte) error {
	g, err := t.db.LoadGame(ctx, game)
	if err != nil {
		return fmt.Errorf("transport/local: submit command: %w", err)
	}
	return t.db.SaveCommand(ctx, game, house, g.Turn, packet)
}

// CollectCommands returns every currently-submitted, unprocessed packet
// for game's current turn. Local transport has no separate ingestion
// queue of its own — commands already live in the commands table the
// instant SubmitCommand runs — so this is a one-shot read, not a
// long-lived subscription; the returned channel is closed once drained.
func (t *Transport) CollectCommands(ctx context.Context, game string) (<-chan transport.CommandReceived, error) {
	g, err := t.db.LoadGame(ctx, game)
	if err != nil {
		return nil, fmt.Errorf("transport/local: collect commands: %w", err)
	}
	rows, err := t.db.CommandsForTurn(ctx, game, g.Turn)
	if err != nil {
		return nil, fmt.Errorf("transport/local: collect commands: %w", err)
	}
	out := make(chan transport.CommandReceived, len(rows))
	for _, r := range rows {
		if r.Processed {
			continue
		}
		out <- transport.CommandReceived{Packet: transport.Packet{
			Game: game, House: r.House, Turn: g.Turn, Data: r.PacketBlob,
		}}
	}
	close(out)
	return out, nil
}

// PublishDelta writes the recipient's delta payload to
// <gameDir>/deltas/<house>/latest.bin for a co-located TUI to poll,
// replacing the file written for the previous turn.
func (t *Transport) PublishDelta(ctx context.Context, game string, recipient entity.ID, payload []byte) error {
	dir := filepath.Join(t.gameDir, "deltas", recipient.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("transport/local: publish delta: %w", err)
	}
	path := filepath.Join(dir, "latest.bin")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("transport/local: publish delta: %w", err)
	}
	return nil
}

// PublishSummary writes a public, unencrypted summary payload to
// <gameDir>/summary.bin, overwriting the previous one — summaries are a
// single current-state document, not a history.
func (t *Transport) PublishSummary(ctx context.Context, game string, payload []byte) error {
	if err := os.MkdirAll(t.gameDir, 0o755); err != nil {
		return fmt.Errorf("transport/local: publish summary: %w", err)
	}
	path := filepath.Join(t.gameDir, "summary.bin")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("transport/local: publish summary: %w", err)
	}
	return nil
}

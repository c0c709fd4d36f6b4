package main

import (
	"context"
	"path/filepath"

	"github.com/greenm01/ec4x/internal/codec"
	"github.com/greenm01/ec4x/internal/persistence"
	"github.com/greenm01/ec4x/internal/transport/local"
)

// marshalSummary encodes a public, unencrypted summary payload the same
// way transport/local's PublishSummary stores it on disk — plain
// codec.Marshal, no compress/encrypt stage, since public events carry no
// secrets (spec section 6: "Public game definition... status event").
func marshalSummary(v any) ([]byte, error) {
	return codec.Marshal(v)
}

// gameDir returns data/games/<slug> (spec section 6's "Persistent state
// layout").
func gameDir(slug string) string {
	return filepath.Join(globals.DataDir, "games", slug)
}

// archiveDir returns data/archive/<slug>, used by `cancel`.
func archiveDir(slug string) string {
	return filepath.Join(globals.DataDir, "archive", slug)
}

func dbPath(slug string) string {
	return filepath.Join(gameDir(slug), "ec4x.db")
}

// archiveDBPath returns data/archive/<slug>/ec4x.db, used by `cancel`
// after the directory has already been moved there.
func archiveDBPath(slug string) string {
	return filepath.Join(archiveDir(slug), "ec4x.db")
}

// openGame opens an existing game's database by slug, normalizing the slug
// the same way `new` did when it was created.
func openGame(ctx context.Context, slug string) (*persistence.DB, string, error) {
	norm, err := persistence.NormalizeSlug(slug)
	if err != nil {
		return nil, "", err
	}
	db, err := persistence.Open(ctx, dbPath(norm))
	if err != nil {
		return nil, "", err
	}
	return db, norm, nil
}

// publishStatus emits a public status-change event (spec section 6:
// "public join error... status cancelled/removed") for a moderator CLI
// action. It uses transport/local directly rather than the daemon's
// registered handle, since CLI subcommands run out-of-process from any
// running daemon.
func publishStatus(ctx context.Context, db *persistence.DB, slug, status string) error {
	return publishStatusAt(ctx, db, gameDir(slug), slug, status)
}

// publishStatusAt is publishStatus with an explicit directory, for
// callers (cancel) that publish after the game directory has already
// moved to its archived location.
func publishStatusAt(ctx context.Context, db *persistence.DB, dir, slug, status string) error {
	tr := local.New(db, dir)
	payload, err := marshalSummary(struct {
		GameID string `bson:"gameId"`
		Status string `bson:"status"`
	}{GameID: slug, Status: status})
	if err != nil {
		return err
	}
	return tr.PublishSummary(ctx, slug, payload)
}

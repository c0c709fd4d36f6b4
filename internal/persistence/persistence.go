// Package persistence implements spec section 4.5: one SQLite database
// file per game, holding the entity store as one opaque binary blob plus
// queryable tables for commands, events, per-house snapshots, and inbound
// dedup. Backed by modernc.org/sqlite (pure Go, no cgo — see
// SPEC_FULL.md's domain-stack table), opened with WAL journal mode for
// the single-writer/concurrent-reader semantics spec section 5 requires.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/greenm01/ec4x/internal/entity"
	"github.com/greenm01/ec4x/internal/events"
)

// ErrNotFound is returned when a lookup by id finds no row.
var ErrNotFound = errors.New("persistence: not found")

// DB wraps one game's SQLite file.
type DB struct {
	sql *sql.DB
}

// Open opens (creating if absent) the database at path and applies the
// schema. WAL mode matches spec section 5's "single-writer... exclusive
// transaction during commit": readers (CLI stats/list) never block the
// daemon's writer.
func Open(ctx context.Context, path string) (*DB, error) {
	sdb, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("persistence: open %s: %w", path, err)
	}
	sdb.SetMaxOpenConns(1) // single-writer per game db (spec section 5)
	if _, err := sdb.ExecContext(ctx, schema); err != nil {
		sdb.Close()
		return nil, fmt.Errorf("persistence: apply schema: %w", err)
	}
	return &DB{sql: sdb}, nil
}

// Close releases the underlying connection.
func (db *DB) Close() error { return db.sql.Close() }

// GameRow is the one-row games table (spec section 4.5).
type GameRow struct {
	ID              string
	Name            string
	Slug            string
	Turn            int
	Phase           string
	Deadline        *time.Time
	TransportConfig []byte
	StateBlob       []byte
	ConfigHash      string
	FailedTurns     int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CreateGame inserts the one-row games record for a newly created game
// (CLI `new`, spec section 6).
func (db *DB) CreateGame(ctx context.Context, g GameRow) error {
	now := g.CreatedAt
	_, err := db.sql.ExecContext(ctx, `
		INSERT INTO games (id, name, slug, turn, phase, deadline, transport_config, state_blob, config_hash, failed_turns, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		g.ID, g.Name, g.Slug, g.Turn, g.Phase, g.Deadline, g.TransportConfig, g.StateBlob, g.ConfigHash, now, now)
	if err != nil {
		return fmt.Errorf("persistence: create game %s: %w", g.Slug, err)
	}
	return nil
}

// LoadGame reads the one-row games record.
func (db *DB) LoadGame(ctx context.Context, gameID string) (GameRow, error) {
	var g GameRow
	row := db.sql.QueryRowContext(ctx, `
		SELECT id, name, slug, turn, phase, deadline, transport_config, state_blob, config_hash, failed_turns, created_at, updated_at
		FROM games WHERE id = ?`, gameID)
	if err := row.Scan(&g.ID, &g.Name, &g.Slug, &g.Turn, &g.Phase, &g.Deadline, &g.TransportConfig, &g.StateBlob, &g.ConfigHash, &g.FailedTurns, &g.CreatedAt, &g.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return GameRow{}, ErrNotFound
		}
		return GameRow{}, fmt.Errorf("persistence: load game %s: %w", gameID, err)
	}
	return g, nil
}

// SetPhase updates the games.phase column (e.g. moving a game to Paused
// on invariant violation, spec section 4.3.5).
func (db *DB) SetPhase(ctx context.Context, gameID, phase string) error {
	_, err := db.sql.ExecContext(ctx, `UPDATE games SET phase = ?, updated_at = ? WHERE id = ?`, phase, time.Now(), gameID)
	if err != nil {
		return fmt.Errorf("persistence: set phase: %w", err)
	}
	return nil
}

// BumpFailedTurns increments the consecutive-failure counter and returns
// its new value. The daemon's three-failures pause counts in memory
// (daemon.GameState.FailedTurns), not through this counter.
func (db *DB) BumpFailedTurns(ctx context.Context, gameID string) (int, error) {
	_, err := db.sql.ExecContext(ctx, `UPDATE games SET failed_turns = failed_turns + 1, updated_at = ? WHERE id = ?`, time.Now(), gameID)
	if err != nil {
		return 0, fmt.Errorf("persistence: bump failed turns: %w", err)
	}
	g, err := db.LoadGame(ctx, gameID)
	if err != nil {
		return 0, err
	}
	return g.FailedTurns, nil
}

// ResetFailedTurns clears the counter after a turn commits successfully.
func (db *DB) ResetFailedTurns(ctx context.Context, gameID string) error {
	_, err := db.sql.ExecContext(ctx, `UPDATE games SET failed_turns = 0, updated_at = ? WHERE id = ?`, time.Now(), gameID)
	return err
}

// SaveCommand upserts one house's packet for one turn — a replayed packet
// (same game/turn/house) supersedes the previous one until the turn is
// resolved (spec section 6).
func (db *DB) SaveCommand(ctx context.Context, gameID string, house entity.ID, turn int, packetBlob []byte) error {
	_, err := db.sql.ExecContext(ctx, `
		INSERT INTO commands (game_id, house, turn, packet_blob, submitted_at, processed)
		VALUES (?, ?, ?, ?, ?, 0)
		ON CONFLICT(game_id, house, turn) DO UPDATE SET packet_blob = excluded.packet_blob, submitted_at = excluded.submitted_at, processed = 0`,
		gameID, uint64(house), turn, packetBlob, time.Now())
	if err != nil {
		return fmt.Errorf("persistence: save command: %w", err)
	}
	return nil
}

// CommandRow is one row of the commands table.
type CommandRow struct {
	House      entity.ID
	PacketBlob []byte
	Processed  bool
}

// CommandsForTurn returns every submitted packet for (gameID, turn),
// regardless of processed state — the daemon calls this once it decides
// to resolve, after which it will mark all returned rows processed in the
// same commit transaction.
func (db *DB) CommandsForTurn(ctx context.Context, gameID string, turn int) ([]CommandRow, error) {
	rows, err := db.sql.QueryContext(ctx, `SELECT house, packet_blob, processed FROM commands WHERE game_id = ? AND turn = ?`, gameID, turn)
	if err != nil {
		return nil, fmt.Errorf("persistence: commands for turn: %w", err)
	}
	defer rows.Close()
	var out []CommandRow
	for rows.Next() {
		var r CommandRow
		var house uint64
		var processed int
		if err := rows.Scan(&house, &r.PacketBlob, &processed); err != nil {
			return nil, err
		}
		r.House = entity.ID(house)
		r.Processed = processed != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// SubmittedHouses returns the set of houses that have submitted a packet
// for (gameID, turn). The daemon does not call it: it resolves a turn
// when the game's deadline passes.
func (db *DB) SubmittedHouses(ctx context.Context, gameID string, turn int) (map[entity.ID]bool, error) {
	rows, err := db.sql.QueryContext(ctx, `SELECT house FROM commands WHERE game_id = ? AND turn = ?`, gameID, turn)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[entity.ID]bool)
	for rows.Next() {
		var h uint64
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		out[entity.ID(h)] = true
	}
	return out, rows.Err()
}

// TurnCommit is everything CommitTurn writes in one transaction (spec
// section 4.5: "A turn is committed in one transaction that updates
// games.state_blob, inserts all events, inserts a new
// player_state_snapshots row per non-eliminated house, and flips the
// corresponding commands.processed flags").
type TurnCommit struct {
	GameID          string
	NewTurn         int
	NewStateBlob    []byte
	Events          []events.Event
	EventBlobs      map[int][]byte // index into Events -> encoded Data override, optional
	PlayerSnapshots map[entity.ID][]byte
	ProcessedHouses []entity.ID
	ProcessedTurn   int
}

// CommitTurn applies a TurnCommit atomically. On any error the whole
// transaction rolls back and the caller's in-memory World must be
// discarded (spec section 4.3.5, section 7's "Persistence failure").
func (db *DB) CommitTurn(ctx context.Context, c TurnCommit) error {
	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("persistence: begin commit: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	now := time.Now()
	if _, err := tx.ExecContext(ctx, `UPDATE games SET turn = ?, state_blob = ?, updated_at = ? WHERE id = ?`,
		c.NewTurn, c.NewStateBlob, now, c.GameID); err != nil {
		return fmt.Errorf("persistence: update game state: %w", err)
	}

	for _, e := range c.Events {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO game_events (game_id, turn, kind, house, fleet, system, description, data_blob)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.GameID, e.Turn, string(e.Kind), nullableID(e.House), nullableID(e.Fleet), nullableID(e.System), e.Description, e.Data,
		); err != nil {
			return fmt.Errorf("persistence: insert event: %w", err)
		}
	}

	for house, blob := range c.PlayerSnapshots {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO player_state_snapshots (game_id, house, turn, state_blob)
			VALUES (?, ?, ?, ?)`,
			c.GameID, uint64(house), c.NewTurn, blob,
		); err != nil {
			return fmt.Errorf("persistence: insert player snapshot: %w", err)
		}
	}

	for _, house := range c.ProcessedHouses {
		if _, err := tx.ExecContext(ctx, `UPDATE commands SET processed = 1 WHERE game_id = ? AND house = ? AND turn = ?`,
			c.GameID, uint64(house), c.ProcessedTurn,
		); err != nil {
			return fmt.Errorf("persistence: mark processed: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("persistence: commit: %w", err)
	}
	return nil
}

func nullableID(id entity.ID) any {
	if id == 0 {
		return nil
	}
	return uint64(id)
}

// LatestPlayerSnapshot returns the most recent player_state_snapshots
// blob for house, and the turn it was taken at, used as the "prev"
// argument to fow.Diff when computing the next delta. Returns
// ErrNotFound if the house has no snapshot yet (the diff's zero-value
// "everything is added" case, spec section 4.4).
func (db *DB) LatestPlayerSnapshot(ctx context.Context, gameID string, house entity.ID) (blob []byte, turn int, err error) {
	row := db.sql.QueryRowContext(ctx, `
		SELECT turn, state_blob FROM player_state_snapshots
		WHERE game_id = ? AND house = ? ORDER BY turn DESC LIMIT 1`, gameID, uint64(house))
	if scanErr := row.Scan(&turn, &blob); scanErr != nil {
		if errors.Is(scanErr, sql.ErrNoRows) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, fmt.Errorf("persistence: latest player snapshot: %w", scanErr)
	}
	return blob, turn, nil
}

// RecordInbound inserts a dedup row for one inbound transport event;
// returns false (no error) if the (gameID, eventID) pair was already
// seen, so callers can drop the replay without a second database write
// (spec section 5: "readers tolerate replays by rejecting at insert
// time").
func (db *DB) RecordInbound(ctx context.Context, gameID string, turn int, kind, eventID, direction string) (bool, error) {
	res, err := db.sql.ExecContext(ctx, `
		INSERT OR IGNORE INTO inbound_event_log (game_id, turn, kind, event_id, direction, seen_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		gameID, turn, kind, eventID, direction, time.Now())
	if err != nil {
		return false, fmt.Errorf("persistence: record inbound: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Events returns every game_events row for a turn, in insertion (emission)
// order, for the CLI's `stats` subcommand.
func (db *DB) Events(ctx context.Context, gameID string, turn int) ([]events.Event, error) {
	rows, err := db.sql.QueryContext(ctx, `
		SELECT turn, kind, house, fleet, system, description, data_blob
		FROM game_events WHERE game_id = ? AND turn = ? ORDER BY id ASC`, gameID, turn)
	if err != nil {
		return nil, fmt.Errorf("persistence: events: %w", err)
	}
	defer rows.Close()
	var result []events.Event
	for rows.Next() {
		var e events.Event
		var house, fleet, system sql.NullInt64
		e.GameID = gameID
		if err := rows.Scan(&e.Turn, &e.Kind, &house, &fleet, &system, &e.Description, &e.Data); err != nil {
			return nil, err
		}
		e.House = entity.ID(house.Int64)
		e.Fleet = entity.ID(fleet.Int64)
		e.System = entity.ID(system.Int64)
		result = append(result, e)
	}
	return result, rows.Err()
}

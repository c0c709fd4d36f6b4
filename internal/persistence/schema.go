package persistence

// schema is applied, statement by statement, every time a game database
// is opened (spec section 4.5's five tables). There is no migration
// framework: the schema is small, owned entirely by this repo, and never
// needs to migrate data shaped by an earlier release in place (see
// DESIGN.md for why a migration library would be unjustified here).
const schema = `
CREATE TABLE IF NOT EXISTS games (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	slug             TEXT NOT NULL UNIQUE,
	turn             INTEGER NOT NULL DEFAULT 1,
	phase            TEXT NOT NULL DEFAULT 'active',
	deadline         DATETIME,
	transport_config BLOB,
	state_blob       BLOB NOT NULL,
	config_hash      TEXT NOT NULL,
	failed_turns     INTEGER NOT NULL DEFAULT 0,
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS commands (
	game_id      TEXT NOT NULL,
	house        INTEGER NOT NULL,
	turn         INTEGER NOT NULL,
	packet_blob  BLOB NOT NULL,
	submitted_at DATETIME NOT NULL,
	processed    INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (game_id, house, turn)
);

CREATE TABLE IF NOT EXISTS game_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	game_id     TEXT NOT NULL,
	turn        INTEGER NOT NULL,
	kind        TEXT NOT NULL,
	house       INTEGER,
	fleet       INTEGER,
	system      INTEGER,
	description TEXT NOT NULL,
	data_blob   BLOB
);
CREATE INDEX IF NOT EXISTS idx_game_events_game_turn ON game_events(game_id, turn);

CREATE TABLE IF NOT EXISTS player_state_snapshots (
	game_id    TEXT NOT NULL,
	house      INTEGER NOT NULL,
	turn       INTEGER NOT NULL,
	state_blob BLOB NOT NULL,
	PRIMARY KEY (game_id, house, turn)
);

CREATE TABLE IF NOT EXISTS inbound_event_log (
	game_id   TEXT NOT NULL,
	turn      INTEGER NOT NULL,
	kind      TEXT NOT NULL,
	event_id  TEXT NOT NULL,
	direction TEXT NOT NULL,
	seen_at   DATETIME NOT NULL,
	PRIMARY KEY (game_id, event_id)
);
`

// Package relay implements transport.Transport against an abstract
// pub/sub Bus (spec section 4.6's "relay-based one (events over a
// pub/sub system)"). The concrete network library is injected by the
// caller via Bus — relay never imports a concrete pubsub client, mirroring
// AKJUS-bsc-erigon's sentry/p2p boundary around github.com/libp2p/go-libp2p-pubsub
// (see SPEC_FULL.md §6.6), just with a much smaller surface since this
// package only ever needs Publish/Subscribe on byte topics.
//
// The relay transport must, per spec section 4.6: verify a signature per
// event, deduplicate by event id, decrypt the payload with the
// recipient's private key, and reject events for unknown games or turns.
package relay

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"golang.org/x/crypto/nacl/box"

	"github.com/greenm01/ec4x/internal/codec"
	"github.com/greenm01/ec4x/internal/entity"
	"github.com/greenm01/ec4x/internal/persistence"
	"github.com/greenm01/ec4x/internal/transport"
)

// Bus is the minimal pub/sub port relay depends on; a concrete network
// (nostr relays, libp2p gossipsub, ...) is injected by the caller.
type Bus interface {
	Publish(ctx context.Context, topic string, data []byte) error
	Subscribe(ctx context.Context, topic string) (<-chan []byte, error)
}

// Envelope is the wire shape of one relay event: a signed, asymmetrically
// encrypted packet addressed to one recipient. Signature covers
// (EventID || Game || Turn || Ciphertext) so a forged envelope with a
// swapped ciphertext fails verification even if the signature itself is
// copied from a legitimate prior event.
type Envelope struct {
	EventID    string            `bson:"eventId"`
	Game       string            `bson:"game"`
	Turn       int               `bson:"turn"`
	Sender     ed25519.PublicKey `bson:"sender"`
	Recipient  [32]byte          `bson:"recipient"` // box public key, not ed25519
	Nonce      [24]byte          `bson:"nonce"`
	Ciphertext []byte            `bson:"ciphertext"`
	Signature  []byte            `bson:"signature"`
}

func signedPayload(e Envelope) []byte {
	out := make([]byte, 0, len(e.EventID)+len(e.Game)+8+len(e.Ciphertext))
	out = append(out, e.EventID...)
	out = append(out, e.Game...)
	out = fmt.Appendf(out, "%d", e.Turn)
	out = append(out, e.Ciphertext...)
	return out
}

// Verify checks e's ed25519 signature; ErrAuthFailure wraps a mismatch so
// callers can treat it as spec section 7's Auth failure ("drop with a
// logged reason; no database write").
func Verify(e Envelope) error {
	if !ed25519.Verify(e.Sender, signedPayload(e), e.Signature) {
		return fmt.Errorf("relay: signature: %w", ErrAuthFailure)
	}
	return nil
}

// ErrAuthFailure is relay's Auth-failure sentinel (spec section 7).
var ErrAuthFailure = fmt.Errorf("relay: authentication failed")

// KeyPair is the daemon's own box keypair, used to decrypt envelopes
// addressed to it (Recipient == KeyPair.Public).
type KeyPair struct {
	Public  [32]byte
	Private [32]byte
}

// Decrypt opens e's ciphertext with nacl/box using priv and senderBoxKey,
// the sender's curve25519 box public key. e.Sender holds the sender's
// ed25519 key, which only Verify uses; the caller supplies the matching
// box key (Transport looks it up through identify).
func Decrypt(e Envelope, priv [32]byte, senderBoxKey [32]byte) ([]byte, error) {
	out, ok := box.Open(nil, e.Ciphertext, &e.Nonce, &senderBoxKey, &priv)
	if !ok {
		return nil, fmt.Errorf("relay: decrypt: %w", ErrAuthFailure)
	}
	return out, nil
}

// Transport implements transport.Transport over a Bus. One instance
// handles every game using the daemon's single keypair; known-game and
// known-turn checks come from the persistence handle passed to New.
type Transport struct {
	bus  Bus
	db   *persistence.DB
	keys KeyPair
	// identify resolves a submitting envelope's ed25519 sender key to
	// (house id, box public key): Envelope.Sender carries the ed25519
	// identity used for Verify, but Decrypt needs the sender's matching
	// box (curve25519) key, and the daemon is the only party that knows
	// the game's house roster, so both are resolved through one injected
	// lookup rather than relay reading entity.House directly.
	identify func(game string, sender ed25519.PublicKey) (house entity.ID, boxKey [32]byte, ok bool)
}

// New builds a relay Transport. identify resolves an envelope's ed25519
// sender key to the submitting house and its box public key; it is
// injected rather than read from persistence directly so relay never
// needs to know the entity.House schema.
func New(bus Bus, db *persistence.DB, keys KeyPair, identify func(game string, sender ed25519.PublicKey) (entity.ID, [32]byte, bool)) *Transport {
	return &Transport{bus: bus, db: db, keys: keys, identify: identify}
}

var _ transport.Transport = (*Transport)(nil)

func commandTopic(game string) string { return "ec4x/" + game + "/commands" }
func deltaTopic(game string, house entity.ID) string {
	return fmt.Sprintf("ec4x/%s/deltas/%s", game, house.String())
}
func summaryTopic(game string) string { return "ec4x/" + game + "/summary" }

// SubmitCommand checks that the game exists and publishes packet
// unchanged onto the game's command topic; relay transport is the
// publishing side for a player's own client, which encrypted and signed
// upstream — the bytes are expected to already be one complete Envelope,
// matching spec section 6's "addressed to a (game_id, turn, house_id)
// triple".
func (t *Transport) SubmitCommand(ctx context.Context, game string, house entity.ID, packet []byte) error {
	if _, err := t.db.LoadGame(ctx, game); err != nil {
		return fmt.Errorf("relay: submit command: unknown game %s: %w", game, err)
	}
	return t.bus.Publish(ctx, commandTopic(game), packet)
}

// CollectCommands subscribes to the command topic and decodes, verifies,
// deduplicates, and decrypts each envelope before handing it to the
// daemon — any envelope that fails a check is dropped silently (spec
// section 7: Auth failures never surface to players) except for the
// reject-unknown-game/turn case, which this loop also treats as a silent
// drop per the same Auth-failure taxonomy.
func (t *Transport) CollectCommands(ctx context.Context, game string) (<-chan transport.CommandReceived, error) {
	raw, err := t.bus.Subscribe(ctx, commandTopic(game))
	if err != nil {
		return nil, fmt.Errorf("relay: collect commands: %w", err)
	}
	out := make(chan transport.CommandReceived)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case data, ok := <-raw:
				if !ok {
					return
				}
				cmd, ok := t.ingestEnvelope(ctx, game, data)
				if !ok {
					continue
				}
				select {
				case out <- cmd:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (t *Transport) ingestEnvelope(ctx context.Context, game string, data []byte) (transport.CommandReceived, bool) {
	var env Envelope
	if err := codec.Unmarshal(data, &env); err != nil {
		return transport.CommandReceived{}, false
	}
	if env.Game != game {
		return transport.CommandReceived{}, false
	}
	g, err := t.db.LoadGame(ctx, env.Game)
	if err != nil {
		return transport.CommandReceived{}, false // unknown game
	}
	if env.Turn != g.Turn {
		return transport.CommandReceived{}, false // unknown/stale turn
	}
	if err := Verify(env); err != nil {
		return transport.CommandReceived{}, false
	}
	isNew, err := t.db.RecordInbound(ctx, env.Game, env.Turn, "command", env.EventID, "in")
	if err != nil || !isNew {
		return transport.CommandReceived{}, false
	}
	house, boxKey, ok := t.identify(env.Game, env.Sender)
	if !ok {
		return transport.CommandReceived{}, false
	}
	plain, err := Decrypt(env, t.keys.Private, boxKey)
	if err != nil {
		return transport.CommandReceived{}, false
	}
	return transport.CommandReceived{Packet: transport.Packet{
		Game: env.Game, House: house, Turn: env.Turn, Data: plain,
	}}, true
}

// PublishDelta publishes payload unchanged on the recipient's delta topic;
// it neither encrypts nor signs it.
func (t *Transport) PublishDelta(ctx context.Context, game string, recipient entity.ID, payload []byte) error {
	return t.bus.Publish(ctx, deltaTopic(game, recipient), payload)
}

// PublishSummary publishes an unencrypted summary payload to the game's
// public summary topic.
func (t *Transport) PublishSummary(ctx context.Context, game string, payload []byte) error {
	return t.bus.Publish(ctx, summaryTopic(game), payload)
}

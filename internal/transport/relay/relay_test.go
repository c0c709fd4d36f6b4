package relay

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/nacl/box"

	"github.com/greenm01/ec4x/internal/codec"
	"github.com/greenm01/ec4x/internal/entity"
	"github.com/greenm01/ec4x/internal/persistence"
)

// fakeBus is an in-process Bus good enough to drive Transport's
// Publish/Subscribe contract without a real network dependency.
type fakeBus struct {
	mu   sync.Mutex
	subs map[string][]chan []byte
}

func newFakeBus() *fakeBus { return &fakeBus{subs: make(map[string][]chan []byte)} }

func (b *fakeBus) Publish(ctx context.Context, topic string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[topic] {
		ch <- data
	}
	return nil
}

func (b *fakeBus) Subscribe(ctx context.Context, topic string) (<-chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan []byte, 8)
	b.subs[topic] = append(b.subs[topic], ch)
	return ch, nil
}

func newTestRelayGame(t *testing.T) *persistence.DB {
	t.Helper()
	db, err := persistence.Open(context.Background(), filepath.Join(t.TempDir(), "ec4x.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	now := time.Now()
	require.NoError(t, db.CreateGame(context.Background(), persistence.GameRow{
		ID: "g1", Name: "Test", Slug: "test", Turn: 3, Phase: "active",
		StateBlob: []byte("blob"), ConfigHash: "h", CreatedAt: now, UpdatedAt: now,
	}))
	return db
}

func sealEnvelope(t *testing.T, senderSign ed25519.PrivateKey, senderBox, recipientBox *[32]byte, game string, turn int, eventID string, plaintext []byte) Envelope {
	t.Helper()
	var nonce [24]byte
	_, err := rand.Read(nonce[:])
	require.NoError(t, err)
	ciphertext := box.Seal(nil, plaintext, &nonce, recipientBox, senderBox)

	env := Envelope{
		EventID:    eventID,
		Game:       game,
		Turn:       turn,
		Sender:     senderSign.Public().(ed25519.PublicKey),
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}
	copy(env.Recipient[:], recipientBox[:])
	env.Signature = ed25519.Sign(senderSign, signedPayload(env))
	return env
}

func TestRelayRoundTripDecryptsAndDeliversCommand(t *testing.T) {
	db := newTestRelayGame(t)
	bus := newFakeBus()

	senderSignPub, senderSignPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	senderBoxPub, senderBoxPriv, err := box.GenerateKey(rand.Reader)
	require.NoError(t, err)
	daemonBoxPub, daemonBoxPriv, err := box.GenerateKey(rand.Reader)
	require.NoError(t, err)

	house := entity.ID(7)
	identify := func(game string, sender ed25519.PublicKey) (entity.ID, [32]byte, bool) {
		if game == "g1" && string(sender) == string(senderSignPub) {
			return house, *senderBoxPub, true
		}
		return 0, [32]byte{}, false
	}

	tr := New(bus, db, KeyPair{Public: *daemonBoxPub, Private: *daemonBoxPriv}, identify)

	env := sealEnvelope(t, senderSignPriv, senderBoxPriv, daemonBoxPub, "g1", 3, "evt-1", []byte("move fleet 1"))
	envBlob, err := codec.Marshal(env)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ch, err := tr.CollectCommands(ctx, "g1")
	require.NoError(t, err)

	require.NoError(t, tr.SubmitCommand(ctx, "g1", house, envBlob))

	select {
	case cmd := <-ch:
		assert.Equal(t, house, cmd.Packet.House)
		assert.Equal(t, 3, cmd.Packet.Turn)
		assert.Equal(t, []byte("move fleet 1"), cmd.Packet.Data)
	case <-ctx.Done():
		t.Fatal("timed out waiting for decrypted command")
	}
}

func TestRelayDropsEnvelopeForStaleTurn(t *testing.T) {
	db := newTestRelayGame(t)
	bus := newFakeBus()

	senderSignPub, senderSignPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	senderBoxPub, senderBoxPriv, err := box.GenerateKey(rand.Reader)
	require.NoError(t, err)
	daemonBoxPub, daemonBoxPriv, err := box.GenerateKey(rand.Reader)
	require.NoError(t, err)

	identify := func(game string, sender ed25519.PublicKey) (entity.ID, [32]byte, bool) {
		if string(sender) == string(senderSignPub) {
			return entity.ID(1), *senderBoxPub, true
		}
		return 0, [32]byte{}, false
	}
	tr := New(bus, db, KeyPair{Public: *daemonBoxPub, Private: *daemonBoxPriv}, identify)

	// game is at turn 3; this envelope claims turn 1 (stale).
	env := sealEnvelope(t, senderSignPriv, senderBoxPriv, daemonBoxPub, "g1", 1, "evt-stale", []byte("ignored"))
	envBlob, err := codec.Marshal(env)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	ch, err := tr.CollectCommands(ctx, "g1")
	require.NoError(t, err)
	require.NoError(t, tr.SubmitCommand(ctx, "g1", entity.ID(1), envBlob))

	select {
	case cmd, ok := <-ch:
		t.Fatalf("expected no delivered command for a stale-turn envelope, got %+v (open=%v)", cmd, ok)
	case <-ctx.Done():
		// expected: nothing was delivered before the context deadline.
	}
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	pub := priv.Public().(ed25519.PublicKey)

	env := Envelope{EventID: "e1", Game: "g1", Turn: 1, Sender: pub, Ciphertext: []byte("original")}
	env.Signature = ed25519.Sign(priv, signedPayload(env))

	env.Ciphertext = []byte("tampered")
	err = Verify(env)
	assert.ErrorIs(t, err, ErrAuthFailure)
}

func TestDecryptFailsWithWrongKey(t *testing.T) {
	_, senderPriv, err := box.GenerateKey(rand.Reader)
	require.NoError(t, err)
	recipientPub, recipientPriv, err := box.GenerateKey(rand.Reader)
	require.NoError(t, err)
	wrongPub, _, err := box.GenerateKey(rand.Reader)
	require.NoError(t, err)

	var nonce [24]byte
	ciphertext := box.Seal(nil, []byte("secret"), &nonce, recipientPub, senderPriv)
	env := Envelope{Ciphertext: ciphertext, Nonce: nonce}

	_, err = Decrypt(env, *recipientPriv, *wrongPub)
	assert.ErrorIs(t, err, ErrAuthFailure)
}

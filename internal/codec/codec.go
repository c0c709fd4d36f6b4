// Package codec implements the wire codec of spec section 4.7: a
// symmetric pipeline serialize -> compress -> authenticated-encrypt ->
// base64, used both for on-wire delta/command packets and for at-rest
// blobs (games.state_blob, player_state_snapshots.state_blob). Decryption
// is the exact inverse and rejects any payload that fails authentication.
package codec

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/crypto/nacl/secretbox"
)

// ErrAuthFailed is returned by Decrypt/Decode when the authenticated
// encryption tag does not verify; callers must treat this as an Auth
// failure (spec section 7): drop with a logged reason, no database write.
var ErrAuthFailed = errors.New("codec: authentication failed")

// Compression selects which compressor the pipeline's compress stage
// uses. At-rest blobs (large, written every turn, decompression speed
// matters more than ratio) use Snappy; on-wire deltas (small, ratio
// matters more since they cross a relay with a size ceiling) use zstd.
type Compression int

const (
	CompressSnappy Compression = iota
	CompressZstd
)

// Marshal is the pipeline's serialize stage alone, exposed separately
// because rules.Load and the fog-of-war hash both need a canonical
// encoding without the rest of the pipeline.
func Marshal(v any) ([]byte, error) {
	return bson.Marshal(v)
}

// Unmarshal is the inverse of Marshal.
func Unmarshal(data []byte, v any) error {
	return bson.Unmarshal(data, v)
}

func compress(data []byte, mode Compression) ([]byte, error) {
	switch mode {
	case CompressSnappy:
		return snappy.Encode(nil, data), nil
	case CompressZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("codec: zstd writer: %w", err)
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), nil
	default:
		return nil, fmt.Errorf("codec: unknown compression mode %d", mode)
	}
}

func decompress(data []byte, mode Compression) ([]byte, error) {
	switch mode {
	case CompressSnappy:
		return snappy.Decode(nil, data)
	case CompressZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("codec: zstd reader: %w", err)
		}
		defer dec.Close()
		return dec.DecodeAll(data, nil)
	default:
		return nil, fmt.Errorf("codec: unknown compression mode %d", mode)
	}
}

// SharedKey is a 32-byte key precomputed (by the caller, typically via
// nacl/box.Precompute between the daemon's keypair and a recipient's
// public key) for use with secretbox in Encode/Decode.
type SharedKey [32]byte

// Encode runs the full pipeline: serialize -> compress -> authenticated
// encrypt -> base64. It is deterministic on every stage except the
// secretbox nonce, which is drawn from crypto/rand per spec section 4.7's
// requirement that the sender side be otherwise deterministic (replaying
// the same logical payload twice produces two different ciphertexts, as
// required for an authenticated-encryption scheme, but the same
// plaintext bytes every time given the same input value).
func Encode(v any, mode Compression, key SharedKey) (string, error) {
	raw, err := Marshal(v)
	if err != nil {
		return "", fmt.Errorf("codec: marshal: %w", err)
	}
	packed, err := compress(raw, mode)
	if err != nil {
		return "", err
	}
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("codec: nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], packed, &nonce, (*[32]byte)(&key))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decode is the exact inverse of Encode. It returns ErrAuthFailed if the
// authenticated encryption tag does not verify, wrapping it so callers
// can errors.Is against it without inspecting the message.
func Decode(payload string, mode Compression, key SharedKey, out any) error {
	sealed, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return fmt.Errorf("codec: base64: %w", err)
	}
	if len(sealed) < 24 {
		return fmt.Errorf("codec: payload too short: %w", ErrAuthFailed)
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	packed, ok := secretbox.Open(nil, sealed[24:], &nonce, (*[32]byte)(&key))
	if !ok {
		return ErrAuthFailed
	}
	raw, err := decompress(packed, mode)
	if err != nil {
		return fmt.Errorf("codec: decompress: %w", err)
	}
	return Unmarshal(raw, out)
}

// Fragment is one numbered piece of a chunked oversized payload (spec
// section 4.7): "Payloads above the configured relay ceiling are chunked
// into numbered fragments sharing a plaintext hash; the receiver
// reassembles, verifies the hash, and then decodes."
type Fragment struct {
	PlaintextHash [32]byte `bson:"plaintextHash"`
	Index         int      `bson:"index"`
	Total         int      `bson:"total"`
	Data          []byte   `bson:"data"`
}

// Chunk splits already-encoded ciphertext bytes into fragments no larger
// than maxSize, each tagged with the SHA-256 of the *plaintext* ciphertext
// blob they reassemble into (not of the original uncompressed value —
// chunking happens after Encode, so the receiver verifies against exactly
// the bytes it will reassemble before ever calling Decode on them).
func Chunk(ciphertext []byte, maxSize int) []Fragment {
	sum := sha256.Sum256(ciphertext)
	total := (len(ciphertext) + maxSize - 1) / maxSize
	if total == 0 {
		total = 1
	}
	frags := make([]Fragment, 0, total)
	for i := 0; i < total; i++ {
		start := i * maxSize
		end := start + maxSize
		if end > len(ciphertext) {
			end = len(ciphertext)
		}
		frags = append(frags, Fragment{
			PlaintextHash: sum,
			Index:         i,
			Total:         total,
			Data:          append([]byte(nil), ciphertext[start:end]...),
		})
	}
	return frags
}

// Reassemble concatenates fragments in index order and verifies the
// result against the shared plaintext hash before returning it.
func Reassemble(frags []Fragment) ([]byte, error) {
	if len(frags) == 0 {
		return nil, errors.New("codec: no fragments")
	}
	total := frags[0].Total
	byIndex := make([][]byte, total)
	for _, f := range frags {
		if f.PlaintextHash != frags[0].PlaintextHash {
			return nil, errors.New("codec: fragment hash mismatch")
		}
		if f.Index < 0 || f.Index >= total {
			return nil, fmt.Errorf("codec: fragment index %d out of range [0,%d)", f.Index, total)
		}
		byIndex[f.Index] = f.Data
	}
	var out []byte
	for i, part := range byIndex {
		if part == nil {
			return nil, fmt.Errorf("codec: missing fragment %d of %d", i, total)
		}
		out = append(out, part...)
	}
	sum := sha256.Sum256(out)
	if sum != frags[0].PlaintextHash {
		return nil, fmt.Errorf("codec: reassembled hash mismatch: %w", ErrAuthFailed)
	}
	return out, nil
}

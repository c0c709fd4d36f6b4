// Package rng provides the deterministic, phase-scoped random source
// required by spec section 4.3: "each phase is a pure function of its
// input state plus a seeded random source keyed by (game_id, turn,
// phase)". Given the same triple, every call returns bit-for-bit
// identical draws, which is what spec section 8's determinism property
// requires.
package rng

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
)

// ForPhase derives an independent, reproducible *rand.Rand for one
// (gameID, turn, phase) triple. Two different phases of the same turn
// never share a stream, so retrying Income in isolation (e.g. after a
// rollback) cannot perturb Conflict's draws from the same turn.
func ForPhase(gameID string, turn int, phase string) *rand.Rand {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s", gameID, turn, phase)))
	seed1 := binary.LittleEndian.Uint64(h[0:8])
	seed2 := binary.LittleEndian.Uint64(h[8:16])
	seed3 := binary.LittleEndian.Uint64(h[16:24])
	seed4 := binary.LittleEndian.Uint64(h[24:32])
	return rand.New(rand.NewChaCha8(expand(seed1, seed2, seed3, seed4)))
}

// expand packs the four 64-bit words of the SHA-256 digest into the
// 32-byte key ChaCha8 requires, so the whole 256 bits of the digest feed
// the generator rather than just the first 16 bytes.
func expand(a, b, c, d uint64) [32]byte {
	var out [32]byte
	binary.LittleEndian.PutUint64(out[0:8], a)
	binary.LittleEndian.PutUint64(out[8:16], b)
	binary.LittleEndian.PutUint64(out[16:24], c)
	binary.LittleEndian.PutUint64(out[24:32], d)
	return out
}

const (
	PhaseConflict   = "conflict"
	PhaseIncome     = "income"
	PhaseCommand    = "command"
	PhaseProduction = "production"
)

package codec

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type samplePayload struct {
	GameID string `bson:"gameId"`
	Turn   int    `bson:"turn"`
	Notes  []string `bson:"notes"`
}

func randomKey(t *testing.T) SharedKey {
	t.Helper()
	var k SharedKey
	_, err := rand.Read(k[:])
	require.NoError(t, err)
	return k
}

func TestMarshalUnmarshalRoundTrips(t *testing.T) {
	v := samplePayload{GameID: "sol-invasion", Turn: 12, Notes: []string{"a", "b"}}

	raw, err := Marshal(v)
	require.NoError(t, err)

	var out samplePayload
	require.NoError(t, Unmarshal(raw, &out))
	assert.Equal(t, v, out)
}

func TestEncodeDecodeRoundTripsBothCompressionModes(t *testing.T) {
	key := randomKey(t)
	v := samplePayload{GameID: "sol-invasion", Turn: 42, Notes: []string{"first contact"}}

	for _, mode := range []Compression{CompressSnappy, CompressZstd} {
		payload, err := Encode(v, mode, key)
		require.NoError(t, err)
		require.NotEmpty(t, payload)

		var out samplePayload
		require.NoError(t, Decode(payload, mode, key, &out))
		assert.Equal(t, v, out)
	}
}

func TestEncodeIsNondeterministicButDecodesIdentically(t *testing.T) {
	key := randomKey(t)
	v := samplePayload{GameID: "x", Turn: 1}

	a, err := Encode(v, CompressSnappy, key)
	require.NoError(t, err)
	b, err := Encode(v, CompressSnappy, key)
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "two encodes of the same value must use distinct nonces")

	var outA, outB samplePayload
	require.NoError(t, Decode(a, CompressSnappy, key, &outA))
	require.NoError(t, Decode(b, CompressSnappy, key, &outB))
	assert.Equal(t, outA, outB)
}

func TestDecodeWithWrongKeyFailsAuthentication(t *testing.T) {
	key := randomKey(t)
	wrongKey := randomKey(t)
	v := samplePayload{GameID: "x", Turn: 1}

	payload, err := Encode(v, CompressSnappy, key)
	require.NoError(t, err)

	var out samplePayload
	err = Decode(payload, CompressSnappy, wrongKey, &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestDecodeRejectsTruncatedPayload(t *testing.T) {
	key := randomKey(t)
	var out samplePayload
	err := Decode("dG9vc2hvcnQ=", CompressSnappy, key, &out) // valid base64, too short to hold a nonce
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestChunkReassembleRoundTrips(t *testing.T) {
	data := make([]byte, 10000)
	_, err := rand.Read(data)
	require.NoError(t, err)

	frags := Chunk(data, 777)
	assert.Greater(t, len(frags), 1, "data larger than maxSize must split into multiple fragments")

	got, err := Reassemble(frags)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestChunkSingleFragmentWhenUnderLimit(t *testing.T) {
	data := []byte("small payload")
	frags := Chunk(data, 4096)
	require.Len(t, frags, 1)

	got, err := Reassemble(frags)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestReassembleDetectsMissingFragment(t *testing.T) {
	data := make([]byte, 5000)
	_, err := rand.Read(data)
	require.NoError(t, err)
	frags := Chunk(data, 1000)
	require.Greater(t, len(frags), 2)

	incomplete := append([]Fragment{}, frags[:len(frags)-1]...)
	_, err = Reassemble(incomplete)
	assert.Error(t, err)
}

func TestReassembleDetectsHashMismatch(t *testing.T) {
	frags := Chunk([]byte("hello world"), 1000)
	require.Len(t, frags, 1)

	other := Chunk([]byte("goodbye world"), 1000)
	tampered := []Fragment{{
		PlaintextHash: other[0].PlaintextHash,
		Index:         frags[0].Index,
		Total:         frags[0].Total,
		Data:          frags[0].Data,
	}}

	_, err := Reassemble(tampered)
	assert.Error(t, err)
}

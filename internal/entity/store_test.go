package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreInsertAssignsMonotonicIDs(t *testing.T) {
	s := NewStore[System]()

	first := s.Insert(System{Name: "Sol"})
	second := s.Insert(System{Name: "Altair"})

	assert.Equal(t, ID(1), first)
	assert.Equal(t, ID(2), second)
	assert.Equal(t, 2, s.Len())
}

func TestStoreInsertAtAdvancesCounterPastExplicitID(t *testing.T) {
	s := NewStore[System]()
	s.InsertAt(ID(10), System{Name: "Vega"})

	next := s.Insert(System{Name: "Rigel"})
	assert.Equal(t, ID(11), next)
}

func TestStoreGetMissingReturnsNotOK(t *testing.T) {
	s := NewStore[System]()
	_, ok := s.Get(ID(999))
	assert.False(t, ok)
}

func TestStoreUpdateMissingReturnsErrNotFound(t *testing.T) {
	s := NewStore[System]()
	err := s.Update(ID(1), System{Name: "ghost"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreUpdateReplacesValue(t *testing.T) {
	s := NewStore[System]()
	id := s.Insert(System{Name: "Sol", ResourceRating: 3})

	require.NoError(t, s.Update(id, System{Name: "Sol", ResourceRating: 7}))

	got, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, 7, got.ResourceRating)
}

func TestStoreRemoveIsIdempotent(t *testing.T) {
	s := NewStore[System]()
	id := s.Insert(System{Name: "Sol"})

	s.Remove(id)
	assert.Equal(t, 0, s.Len())

	// removing again must not panic or error
	s.Remove(id)
	assert.Equal(t, 0, s.Len())
}

func TestStoreCloneIsIndependent(t *testing.T) {
	s := NewStore[System]()
	id := s.Insert(System{Name: "Sol"})

	clone := s.Clone()
	clone.Remove(id)

	_, okOriginal := s.Get(id)
	_, okClone := clone.Get(id)
	assert.True(t, okOriginal, "mutating the clone must not affect the original")
	assert.False(t, okClone)
}

func TestStoreIterateFilter(t *testing.T) {
	s := NewStore[System]()
	s.Insert(System{Name: "Sol", ResourceRating: 1})
	s.Insert(System{Name: "Vega", ResourceRating: 9})
	s.Insert(System{Name: "Altair", ResourceRating: 9})

	rich := s.Iterate(func(_ ID, sys System) bool { return sys.ResourceRating == 9 })
	assert.Len(t, rich, 2)
}

func TestIDStringRendersHashPrefix(t *testing.T) {
	assert.Equal(t, "#42", ID(42).String())
}

package entity

import (
	"sort"

	"github.com/greenm01/ec4x/internal/codec"
)

// storeDoc is a Store[T]'s encoded shape: BSON's driver only natively
// supports string-keyed maps, and Store's id keys are uint64-backed, so
// each store round-trips as an explicit (next id, entries) pair instead of
// a bare map (spec section 8's "decode(encode(x)) = x ... for the whole
// store" property).
type storeDoc[T any] struct {
	NextID  ID           `bson:"nextId"`
	Entries []storeEntry[T] `bson:"entries"`
}

type storeEntry[T any] struct {
	ID    ID `bson:"id"`
	Value T  `bson:"value"`
}

// MarshalBSON implements bson.Marshaler so a Store[T] embedded in a World
// encodes deterministically despite its fields being unexported.
func (s *Store[T]) MarshalBSON() ([]byte, error) {
	doc := storeDoc[T]{NextID: s.nextID, Entries: make([]storeEntry[T], 0, len(s.byID))}
	for id, v := range s.byID {
		doc.Entries = append(doc.Entries, storeEntry[T]{ID: id, Value: v})
	}
	sort.Slice(doc.Entries, func(i, j int) bool { return doc.Entries[i].ID < doc.Entries[j].ID })
	return codec.Marshal(doc)
}

// UnmarshalBSON implements bson.Unmarshaler, the exact inverse of
// MarshalBSON.
func (s *Store[T]) UnmarshalBSON(data []byte) error {
	var doc storeDoc[T]
	if err := codec.Unmarshal(data, &doc); err != nil {
		return err
	}
	s.nextID = doc.NextID
	s.byID = make(map[ID]T, len(doc.Entries))
	for _, e := range doc.Entries {
		s.byID[e.ID] = e.Value
	}
	return nil
}

// worldDoc mirrors World's fields for encoding; Index is never persisted
// (spec section 3 invariant: indices are derived, never authoritative) and
// is rebuilt by RebuildIndices immediately after decode.
type worldDoc struct {
	Houses      *Store[House]                `bson:"houses"`
	Systems     *Store[System]               `bson:"systems"`
	Lanes       *Store[Lane]                 `bson:"lanes"`
	Colonies    *Store[Colony]                `bson:"colonies"`
	Fleets      *Store[Fleet]                 `bson:"fleets"`
	Squadrons   *Store[Squadron]              `bson:"squadrons"`
	Ships       *Store[Ship]                  `bson:"ships"`
	GroundUnits *Store[GroundUnit]            `bson:"groundUnits"`
	Facilities  *Store[Facility]              `bson:"facilities"`
	Projects    *Store[ConstructionProject]   `bson:"projects"`
	SpyMissions *Store[SpyMission]            `bson:"spyMissions"`
}

// EncodeWorld serializes a World to its canonical at-rest/wire form (the
// games.state_blob column, spec section 4.5), deferring to the same
// codec.Marshal every other persisted value uses.
func EncodeWorld(w *World) ([]byte, error) {
	return codec.Marshal(worldDoc{
		Houses: w.Houses, Systems: w.Systems, Lanes: w.Lanes,
		Colonies: w.Colonies, Fleets: w.Fleets, Squadrons: w.Squadrons,
		Ships: w.Ships, GroundUnits: w.GroundUnits, Facilities: w.Facilities,
		Projects: w.Projects, SpyMissions: w.SpyMissions,
	})
}

// DecodeWorld is EncodeWorld's inverse; it rebuilds the derived indices
// immediately since worldDoc never carries them.
func DecodeWorld(data []byte) (*World, error) {
	var doc worldDoc
	if err := codec.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	w := &World{
		Houses: doc.Houses, Systems: doc.Systems, Lanes: doc.Lanes,
		Colonies: doc.Colonies, Fleets: doc.Fleets, Squadrons: doc.Squadrons,
		Ships: doc.Ships, GroundUnits: doc.GroundUnits, Facilities: doc.Facilities,
		Projects: doc.Projects, SpyMissions: doc.SpyMissions,
	}
	w.RebuildIndices()
	return w, nil
}

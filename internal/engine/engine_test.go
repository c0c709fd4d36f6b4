package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenm01/ec4x/internal/command"
	"github.com/greenm01/ec4x/internal/entity"
	"github.com/greenm01/ec4x/internal/rules"
)

func twoSystemWorld() (*entity.World, entity.ID, entity.ID, entity.ID) {
	w := entity.NewWorld()
	owner := w.Houses.Insert(entity.House{Name: "Atreides"})
	a := w.Systems.Insert(entity.System{Name: "Caladan"})
	b := w.Systems.Insert(entity.System{Name: "Arrakis"})
	w.Lanes.Insert(entity.Lane{A: a, B: b, Class: entity.LaneMinor})
	w.RebuildIndices()
	return w, owner, a, b
}

func TestRunIsDeterministicForSameInputs(t *testing.T) {
	w, owner, a, b := twoSystemWorld()
	fleetID := w.CreateFleet(entity.Fleet{Owner: owner, Location: a})
	sqID := w.Squadrons.Insert(entity.Squadron{Owner: owner, Type: entity.SquadronCombat})
	require.NoError(t, w.AttachSquadron(fleetID, sqID))
	shipID := w.Ships.Insert(entity.Ship{Owner: owner, FleetID: fleetID, SquadronID: sqID, Class: entity.ShipFrigate, AttackStrength: 2})
	sq, _ := w.Squadrons.Get(sqID)
	sq.MemberIDs = append(sq.MemberIDs, shipID)
	sq.FlagshipID = shipID
	w.Squadrons.Update(sqID, sq)

	rls, err := rules.Load(rules.Default())
	require.NoError(t, err)

	packets := []command.Packet{
		{
			GameID: "g1", Turn: 1, House: owner,
			Commands: []command.Command{
				{Category: command.CategoryFleet, Verb: command.VerbMove, FleetID: fleetID, SystemID: b},
			},
		},
	}

	r1, err1 := Run("g1", w, rls, 1, packets)
	r2, err2 := Run("g1", w, rls, 1, packets)
	require.NoError(t, err1)
	require.NoError(t, err2)

	blob1, err := entity.EncodeWorld(r1.World)
	require.NoError(t, err)
	blob2, err := entity.EncodeWorld(r2.World)
	require.NoError(t, err)
	assert.Equal(t, blob1, blob2, "same (store, rules, commands, seed) must produce byte-identical stores")
	assert.Equal(t, len(r1.Events), len(r2.Events))
	assert.Equal(t, r1.NextTurn, r2.NextTurn)
}

func TestRunDoesNotMutateCallerWorld(t *testing.T) {
	w, owner, a, _ := twoSystemWorld()
	fleetID := w.CreateFleet(entity.Fleet{Owner: owner, Location: a})
	sqID := w.Squadrons.Insert(entity.Squadron{Owner: owner, Type: entity.SquadronCombat})
	require.NoError(t, w.AttachSquadron(fleetID, sqID))
	shipID := w.Ships.Insert(entity.Ship{Owner: owner, FleetID: fleetID, SquadronID: sqID, Class: entity.ShipFrigate, AttackStrength: 2})
	sq, _ := w.Squadrons.Get(sqID)
	sq.MemberIDs = append(sq.MemberIDs, shipID)
	sq.FlagshipID = shipID
	w.Squadrons.Update(sqID, sq)

	rls, err := rules.Load(rules.Default())
	require.NoError(t, err)

	beforeBlob, err := entity.EncodeWorld(w)
	require.NoError(t, err)

	_, err = Run("g1", w, rls, 1, nil)
	require.NoError(t, err)

	afterBlob, err := entity.EncodeWorld(w)
	require.NoError(t, err)
	assert.Equal(t, beforeBlob, afterBlob, "Run must operate on a clone, never the caller's World")

	// fleet still exists untouched in the caller's copy
	_, ok := w.Fleets.Get(fleetID)
	assert.True(t, ok)
}

func TestMoveCommandAdvancesFleetTowardTarget(t *testing.T) {
	w, owner, a, b := twoSystemWorld()
	fleetID := w.CreateFleet(entity.Fleet{Owner: owner, Location: a})
	sqID := w.Squadrons.Insert(entity.Squadron{Owner: owner, Type: entity.SquadronCombat})
	require.NoError(t, w.AttachSquadron(fleetID, sqID))
	shipID := w.Ships.Insert(entity.Ship{Owner: owner, FleetID: fleetID, SquadronID: sqID, Class: entity.ShipFrigate, AttackStrength: 2})
	sq, _ := w.Squadrons.Get(sqID)
	sq.MemberIDs = append(sq.MemberIDs, shipID)
	w.Squadrons.Update(sqID, sq)

	rls, err := rules.Load(rules.Default())
	require.NoError(t, err)

	packets := []command.Packet{
		{
			GameID: "g1", Turn: 1, House: owner,
			Commands: []command.Command{
				{Category: command.CategoryFleet, Verb: command.VerbMove, FleetID: fleetID, SystemID: b},
			},
		},
	}

	res, err := Run("g1", w, rls, 1, packets)
	require.NoError(t, err)

	gotFleet, ok := res.World.Fleets.Get(fleetID)
	require.True(t, ok)
	assert.Equal(t, b, gotFleet.Location, "a minor lane hop moves the fleet one system per turn")
	assert.Equal(t, entity.MissionExecuting, gotFleet.MissionState, "arrival at the target switches mission state to Executing")
}

func TestRunRejectsCommandForUnknownFleet(t *testing.T) {
	w, owner, _, b := twoSystemWorld()
	rls, err := rules.Load(rules.Default())
	require.NoError(t, err)

	packets := []command.Packet{
		{
			GameID: "g1", Turn: 1, House: owner,
			Commands: []command.Command{
				{Category: command.CategoryFleet, Verb: command.VerbMove, FleetID: entity.ID(99999), SystemID: b},
			},
		},
	}

	res, err := Run("g1", w, rls, 1, packets)
	require.NoError(t, err, "an invalid command rejects with an event, it does not abort the turn")

	found := false
	for _, e := range res.Events {
		if string(e.Kind) == "CommandRejected" {
			found = true
		}
	}
	assert.True(t, found, "unknown fleet target must be rejected with a CommandRejected event")
}

package combat

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenm01/ec4x/internal/entity"
	"github.com/greenm01/ec4x/internal/rules"
)

func newCombatSquadron(w *entity.World, owner, loc entity.ID, attack int, n int) (fleetID, squadronID entity.ID) {
	fleetID = w.CreateFleet(entity.Fleet{Owner: owner, Location: loc})
	squadronID = w.Squadrons.Insert(entity.Squadron{Owner: owner, Type: entity.SquadronCombat})
	if err := w.AttachSquadron(fleetID, squadronID); err != nil {
		panic(err)
	}
	sq, _ := w.Squadrons.Get(squadronID)
	for i := 0; i < n; i++ {
		shipID := w.Ships.Insert(entity.Ship{
			Owner: owner, FleetID: fleetID, SquadronID: squadronID,
			Class: entity.ShipCruiser, AttackStrength: attack, CombatState: entity.ShipUndamaged,
		})
		sq.MemberIDs = append(sq.MemberIDs, shipID)
		if sq.FlagshipID == 0 {
			sq.FlagshipID = shipID
		}
	}
	w.Squadrons.Update(squadronID, sq)
	return fleetID, squadronID
}

func testRules() *rules.Rules {
	r := rules.Default()
	r.Combat = rules.CombatEffectivenessRoll{Min: 1.0, Max: 1.0}
	return r
}

func TestResolveDestroysWeakerSideEventually(t *testing.T) {
	w := entity.NewWorld()
	attacker := w.Houses.Insert(entity.House{Name: "Atreides"})
	defender := w.Houses.Insert(entity.House{Name: "Harkonnen"})
	sys := w.Systems.Insert(entity.System{Name: "Arrakis"})

	_, atkSq := newCombatSquadron(w, attacker, sys, 100, 5)
	_, defSq := newCombatSquadron(w, defender, sys, 1, 1)

	sides := []*Side{
		{House: attacker, Squadrons: []entity.ID{atkSq}, RulesOfEngagement: 0, NoRetreat: true},
		{House: defender, Squadrons: []entity.ID{defSq}, RulesOfEngagement: 0, NoRetreat: true},
	}

	rng := rand.New(rand.NewPCG(1, 2))
	out := Resolve(w, rng, testRules(), sides, nil)

	require.NotZero(t, out.Rounds)
	_, stillExists := w.Squadrons.Get(defSq)
	assert.False(t, stillExists, "heavily outgunned squadron should be destroyed")
}

func TestResolveStopsWhenOneSideRemains(t *testing.T) {
	w := entity.NewWorld()
	attacker := w.Houses.Insert(entity.House{Name: "Atreides"})
	defender := w.Houses.Insert(entity.House{Name: "Harkonnen"})
	sys := w.Systems.Insert(entity.System{Name: "Arrakis"})

	_, atkSq := newCombatSquadron(w, attacker, sys, 5, 1)
	sides := []*Side{
		{House: attacker, Squadrons: []entity.ID{atkSq}, RulesOfEngagement: 0, NoRetreat: true},
	}

	rng := rand.New(rand.NewPCG(1, 2))
	out := Resolve(w, rng, testRules(), sides, nil)
	assert.Zero(t, out.Rounds, "a task force with under two active sides never enters a round")
}

func TestRunDetectionAppliesSurpriseBonusOnlyWhenUndetected(t *testing.T) {
	r := rules.Default()
	r.Detection = []rules.DetectionEntry{
		{ObserverElectronics: 1, TargetElectronics: 5, DetectChance: 0.0, SurpriseBonus: 0.5, AmbushBonus: 0.25},
	}
	sides := []*Side{{House: 1, Cloaked: true, Moving: true}}
	observer := map[entity.ID]int{1: 1}
	target := map[entity.ID]int{1: 5}

	rng := rand.New(rand.NewPCG(1, 2))
	results := RunDetection(rng, r, sides, observer, target)

	require.Len(t, results, 1)
	assert.False(t, results[0].Detected)
	assert.Equal(t, 0.5, results[0].BonusUsed, "moving cloaked side gets the surprise bonus, not ambush")
}

func TestRunDetectionGuaranteedDetectionYieldsNoBonus(t *testing.T) {
	r := rules.Default()
	r.Detection = []rules.DetectionEntry{
		{ObserverElectronics: 1, TargetElectronics: 5, DetectChance: 1.0, SurpriseBonus: 0.5, AmbushBonus: 0.25},
	}
	sides := []*Side{{House: 1, Cloaked: true, Moving: false}}
	observer := map[entity.ID]int{1: 1}
	target := map[entity.ID]int{1: 5}

	rng := rand.New(rand.NewPCG(1, 2))
	results := RunDetection(rng, r, sides, observer, target)

	require.Len(t, results, 1)
	assert.True(t, results[0].Detected)
	assert.Zero(t, results[0].BonusUsed)
}

func TestNoRetreatSideNeverBreaksOff(t *testing.T) {
	w := entity.NewWorld()
	fighterHouse := w.Houses.Insert(entity.House{Name: "Fighters"})
	enemyHouse := w.Houses.Insert(entity.House{Name: "Enemy"})
	sys := w.Systems.Insert(entity.System{Name: "Arrakis"})

	_, fighterSq := newCombatSquadron(w, fighterHouse, sys, 1, 3)
	_, enemySq := newCombatSquadron(w, enemyHouse, sys, 50, 3)

	sides := []*Side{
		{House: fighterHouse, Squadrons: []entity.ID{fighterSq}, RulesOfEngagement: 10, NoRetreat: true},
		{House: enemyHouse, Squadrons: []entity.ID{enemySq}, RulesOfEngagement: 0, NoRetreat: true},
	}

	rng := rand.New(rand.NewPCG(7, 9))
	out := Resolve(w, rng, testRules(), sides, nil)

	assert.NotContains(t, out.Retreated, fighterHouse, "fighters/starbases never retreat regardless of RoE")
}

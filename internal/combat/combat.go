// Package combat resolves task-force combat for the Conflict phase (spec
// section 4.3.1 steps 1-2: space combat and orbital combat share the same
// mechanic). It is adapted from the teacher's formation-aware combat
// context (ships.CombatContext, ships.DistributeDamageToDefender) but
// collapses the teacher's per-ship HP-bucket/formation-slot model down to
// EC4X's squadron-level abstraction: spec section 3 tracks combat state
// at the Ship granularity (undamaged/crippled) and groups ships into
// Squadrons, not into positioned formation slots with gem sockets, so the
// damage-distribution and effectiveness-roll *shape* is kept from the
// teacher while the target granularity is simplified to match the data
// model this spec defines.
package combat

import (
	"math/rand/v2"
	"sort"

	"github.com/greenm01/ec4x/internal/entity"
	"github.com/greenm01/ec4x/internal/rules"
)

// Side is one house's task force at one system during one combat round.
type Side struct {
	House     entity.ID
	Squadrons []entity.ID // surviving squadrons, recomputed every round
	// Cloaked marks this side as a raider force subject to the detection
	// roll on round 1 only (spec section 4.3.1 step 1).
	Cloaked bool
	// Moving distinguishes a surprise bonus (cloaked side is moving, i.e.
	// the attacker) from an ambush bonus (cloaked side is defending) per
	// the rules-table entry spec section 9 says is authoritative.
	Moving bool
	// RulesOfEngagement is read from the owning fleet(s); retreat checks
	// compare remaining-strength fraction against this 0-10 scale.
	RulesOfEngagement int
	// Retreated is set once this side breaks off; it stops taking part in
	// subsequent rounds but its surviving squadrons are untouched.
	Retreated bool
	// NoRetreat marks fighters/starbases, which spec section 4.3.1 step 1
	// says never retreat regardless of RulesOfEngagement.
	NoRetreat bool
}

// Outcome is the result of resolving one multi-round combat at one
// system.
type Outcome struct {
	Rounds          int
	DestroyedShips  []entity.ID
	CrippledShips   []entity.ID
	Retreated       []entity.ID // house ids that broke off
	DetectionEvents []DetectionResult
}

// DetectionResult records whether a cloaked side was spotted before round
// 1, and which bonus applied if not.
type DetectionResult struct {
	House     entity.ID
	Detected  bool
	BonusUsed float64
}

// squadronStrength sums AttackStrength over a squadron's undamaged
// members; a crippled ship contributes half (teacher's
// EffectiveShipInFormation reduces output for damaged hulls the same
// way, see ships/formation_combat.go).
func squadronStrength(w *entity.World, squadronID entity.ID) int {
	sq, ok := w.Squadrons.Get(squadronID)
	if !ok {
		return 0
	}
	total := 0
	for _, shID := range sq.MemberIDs {
		sh, ok := w.Ships.Get(shID)
		if !ok {
			continue
		}
		if sh.CombatState == entity.ShipCrippled {
			total += sh.AttackStrength / 2
		} else {
			total += sh.AttackStrength
		}
	}
	return total
}

func sideStrength(w *entity.World, s *Side) int {
	total := 0
	for _, sqID := range s.Squadrons {
		total += squadronStrength(w, sqID)
	}
	return total
}

// RunDetection applies the round-1-only surprise/ambush check for every
// cloaked side in sides, using rules.Detection to find the matching entry
// by (observerElectronics, targetElectronics). Detected sides receive no
// bonus; undetected sides receive SurpriseBonus if Moving or AmbushBonus
// if defending, per spec section 9's instruction to trust the table over
// prose.
func RunDetection(rng *rand.Rand, rls *rules.Rules, sides []*Side, observerElectronics, targetElectronics map[entity.ID]int) []DetectionResult {
	var results []DetectionResult
	for _, s := range sides {
		if !s.Cloaked {
			continue
		}
		var entry rules.DetectionEntry
		found := false
		oe := observerElectronics[s.House]
		te := targetElectronics[s.House]
		for _, d := range rls.Detection {
			if d.ObserverElectronics == oe && d.TargetElectronics == te {
				entry = d
				found = true
				break
			}
		}
		detected := found && rng.Float64() < entry.DetectChance
		bonus := 0.0
		if !detected && found {
			if s.Moving {
				bonus = entry.SurpriseBonus
			} else {
				bonus = entry.AmbushBonus
			}
		}
		results = append(results, DetectionResult{House: s.House, Detected: detected, BonusUsed: bonus})
	}
	return results
}

// Resolve runs simultaneous rounds until one side remains, all remaining
// sides have retreated, or a round cap is hit (guards against a
// degenerate rules bundle producing zero-damage stalemates). Collection
// of intents (who's in the fight) must already be complete before this is
// called — Resolve only applies effects, never discovers new
// participants, matching spec section 9's "never interleave collection
// and application".
func Resolve(w *entity.World, rng *rand.Rand, rls *rules.Rules, sides []*Side, detection []DetectionResult) Outcome {
	bonusByHouse := make(map[entity.ID]float64)
	for _, d := range detection {
		if !d.Detected {
			bonusByHouse[d.House] = d.BonusUsed
		}
	}

	out := Outcome{DetectionEvents: detection}
	const maxRounds = 20
	for round := 1; round <= maxRounds; round++ {
		active := activeSides(sides)
		if len(active) < 2 {
			break
		}
		out.Rounds = round

		strengths := make(map[entity.ID]int, len(active))
		for _, s := range active {
			st := sideStrength(w, s)
			if round == 1 {
				st = int(float64(st) * (1 + bonusByHouse[s.House]))
			}
			strengths[s.House] = st
		}

		hits := make(map[entity.ID]int, len(active))
		for _, s := range active {
			mult := rls.Combat.Min + rng.Float64()*(rls.Combat.Max-rls.Combat.Min)
			// Damage from s lands on every *other* active side, split
			// evenly — a simplification of the teacher's
			// DistributeDamageToDefender, which splits by formation
			// position; EC4X has no formation positions, so the split is
			// by opposing-side count instead.
			opponents := len(active) - 1
			if opponents == 0 {
				continue
			}
			perOpponent := int(float64(strengths[s.House]) * mult / float64(opponents))
			for _, t := range active {
				if t.House == s.House {
					continue
				}
				hits[t.House] += perOpponent
			}
		}

		for _, s := range active {
			applyHits(w, s, hits[s.House], &out)
		}

		for _, s := range active {
			if s.NoRetreat {
				continue
			}
			remaining := sideStrength(w, s)
			original := strengths[s.House]
			if original == 0 {
				continue
			}
			fraction := float64(remaining) / float64(original)
			// RulesOfEngagement 0 = never retreats, 10 = retreats at the
			// first sign of loss; threshold scales linearly between.
			threshold := 1.0 - float64(s.RulesOfEngagement)/10.0
			if fraction < threshold {
				s.Retreated = true
				out.Retreated = append(out.Retreated, s.House)
			}
		}
	}
	return out
}

func activeSides(sides []*Side) []*Side {
	var out []*Side
	for _, s := range sides {
		if !s.Retreated && len(s.Squadrons) > 0 {
			out = append(out, s)
		}
	}
	return out
}

// applyHits assigns incoming damage to side s's ships, 10 points a ship.
// Undamaged ships are crippled before any ship is destroyed (spec section
// 4.3.1 step 1); only damage left once every ship of the side is crippled
// destroys ships. Within the undamaged and the crippled group the order
// is not defined: ships are not taken weakest first. There are no
// critical hits; every ship is crippled before it can be destroyed.
func applyHits(w *entity.World, s *Side, damage int, out *Outcome) {
	if damage <= 0 {
		return
	}
	type target struct {
		squadronID entity.ID
		shipID     entity.ID
		crippled   bool
	}
	var targets []target
	allCrippledOrDead := true
	for _, sqID := range s.Squadrons {
		sq, ok := w.Squadrons.Get(sqID)
		if !ok {
			continue
		}
		for _, shID := range sq.MemberIDs {
			sh, ok := w.Ships.Get(shID)
			if !ok {
				continue
			}
			crippled := sh.CombatState == entity.ShipCrippled
			if !crippled {
				allCrippledOrDead = false
			}
			targets = append(targets, target{sqID, shID, crippled})
		}
	}
	sort.Slice(targets, func(i, j int) bool {
		// Undamaged ships soak damage (become crippled) before any ship
		// is destroyed outright, unless every ship is already crippled.
		return !targets[i].crippled && targets[j].crippled
	})

	remaining := damage
	const damagePerShip = 10 // abstraction: one "hit unit" cripples, two destroy
	for _, t := range targets {
		if remaining <= 0 {
			break
		}
		sh, ok := w.Ships.Get(t.shipID)
		if !ok {
			continue
		}
		if sh.CombatState == entity.ShipUndamaged && !allCrippledOrDead {
			sh.CombatState = entity.ShipCrippled
			w.Ships.Update(t.shipID, sh)
			out.CrippledShips = append(out.CrippledShips, t.shipID)
			remaining -= damagePerShip
			continue
		}
		// already crippled, or every squadron in the force is crippled:
		// this hit destroys the ship outright.
		w.DestroyShip(t.shipID)
		out.DestroyedShips = append(out.DestroyedShips, t.shipID)
		remaining -= damagePerShip
	}
}

package engine

import (
	"math/rand/v2"
	"sort"

	"github.com/greenm01/ec4x/internal/combat"
	"github.com/greenm01/ec4x/internal/entity"
	"github.com/greenm01/ec4x/internal/events"
	"github.com/greenm01/ec4x/internal/rules"
)

// runConflict executes spec section 4.3.1 against fleets whose
// MissionState is MissionExecuting (those that arrived at their target
// during the previous Production phase). It is adapted from the teacher's
// battle_report generation pass (ships/formation_combat.go) but operates
// over EC4X's system/fleet/squadron graph rather than one formation at a
// time.
func runConflict(w *entity.World, rls *rules.Rules, sink *events.Sink, rng *rand.Rand, turn int) error {
	executing := executingFleets(w)

	fleetPresenceIntel(w, turn)
	starbaseSurveillanceIntel(w, turn)

	spaceCombat(w, rls, sink, rng, executing)
	orbitalCombat(w, rls, sink, rng, executing)
	blockadeResolution(w, sink, executing)
	planetaryCombat(w, rls, sink, rng, executing)
	colonization(w, sink, executing)
	espionage(w, rls, sink, rng, turn, executing)
	administrativeCompletion(w, sink, executing)

	return nil
}

func executingFleets(w *entity.World) []entity.ID {
	var out []entity.ID
	for id, f := range w.Fleets.Iterate(nil) {
		if f.MissionState == entity.MissionExecuting {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// fleetsBySystem groups fleet ids present at each system, regardless of
// mission state, since combat must consider every fleet physically
// present, not just the ones that just arrived.
func fleetsBySystem(w *entity.World) map[entity.ID][]entity.ID {
	out := make(map[entity.ID][]entity.ID)
	for id, f := range w.Fleets.Iterate(nil) {
		out[f.Location] = append(out[f.Location], id)
	}
	return out
}

// hostile reports whether two houses are in a hostile diplomatic state:
// the absence of an Ally or Ceasefire relation is treated as hostile,
// matching diplomacy.State's default-enemy posture.
func hostile(w *entity.World, a, b entity.ID) bool {
	if a == b {
		return false
	}
	ha, ok := w.Houses.Get(a)
	if !ok {
		return false
	}
	rel, ok := ha.Relations[b]
	if !ok {
		return true
	}
	return rel.State != entity.RelationAlly && rel.State != entity.RelationCeasefire
}

func groupByOwner(w *entity.World, fleetIDs []entity.ID) map[entity.ID][]entity.ID {
	out := make(map[entity.ID][]entity.ID)
	for _, fid := range fleetIDs {
		f, ok := w.Fleets.Get(fid)
		if !ok {
			continue
		}
		out[f.Owner] = append(out[f.Owner], fid)
	}
	return out
}

func squadronsOf(w *entity.World, fleetIDs []entity.ID) []entity.ID {
	var out []entity.ID
	for _, fid := range fleetIDs {
		f, ok := w.Fleets.Get(fid)
		if !ok {
			continue
		}
		out = append(out, f.SquadronIDs...)
	}
	return out
}

func roeOf(w *entity.World, fleetIDs []entity.ID) int {
	max := 0
	for _, fid := range fleetIDs {
		f, ok := w.Fleets.Get(fid)
		if !ok {
			continue
		}
		if f.RulesOfEngagement > max {
			max = f.RulesOfEngagement
		}
	}
	return max
}

// spaceCombat implements step 1: every system with two or more hostile
// houses' fleets forms one task force per house and fights to a
// conclusion.
func spaceCombat(w *entity.World, rls *rules.Rules, sink *events.Sink, rng *rand.Rand, executing []entity.ID) {
	for sysID, fleetIDs := range fleetsBySystem(w) {
		byOwner := groupByOwner(w, fleetIDs)
		if len(byOwner) < 2 {
			continue
		}
		owners := make([]entity.ID, 0, len(byOwner))
		for o := range byOwner {
			owners = append(owners, o)
		}
		sort.Slice(owners, func(i, j int) bool { return owners[i] < owners[j] })

		anyHostile := false
		for i := range owners {
			for j := i + 1; j < len(owners); j++ {
				if hostile(w, owners[i], owners[j]) {
					anyHostile = true
				}
			}
		}
		if !anyHostile {
			continue
		}

		var sides []*combat.Side
		for _, owner := range owners {
			sides = append(sides, &combat.Side{
				House:             owner,
				Squadrons:         squadronsOf(w, byOwner[owner]),
				RulesOfEngagement: roeOf(w, byOwner[owner]),
			})
		}

		detection := combat.RunDetection(rng, rls, sides, map[entity.ID]int{}, map[entity.ID]int{})
		outcome := combat.Resolve(w, rng, rls, sides, detection)

		if outcome.Rounds > 0 {
			for _, owner := range owners {
				sink.Emit(events.Event{
					Kind:        events.KindCombatResolved,
					House:       owner,
					System:      sysID,
					Description: "space combat resolved",
				})
			}
		}
	}
}

// orbitalCombat implements step 2: survivors of space combat engage
// starbases and planetary batteries at their location with the same
// mechanic. Treated as a second pass restricted to fleets that are still
// present after spaceCombat ran.
func orbitalCombat(w *entity.World, rls *rules.Rules, sink *events.Sink, rng *rand.Rand, executing []entity.ID) {
	for sysID, colID := range colonyBySystem(w) {
		fleetIDs := fleetsBySystem(w)[sysID]
		if len(fleetIDs) == 0 {
			continue
		}
		col, ok := w.Colonies.Get(colID)
		if !ok {
			continue
		}
		byOwner := groupByOwner(w, fleetIDs)
		hostilePresent := false
		for owner := range byOwner {
			if hostile(w, owner, col.Owner) {
				hostilePresent = true
			}
		}
		if !hostilePresent {
			continue
		}

		batteries := batteriesAt(w, colID)
		if len(batteries) == 0 {
			continue
		}

		var sides []*combat.Side
		for owner, fids := range byOwner {
			if !hostile(w, owner, col.Owner) {
				continue
			}
			sides = append(sides, &combat.Side{
				House:             owner,
				Squadrons:         squadronsOf(w, fids),
				RulesOfEngagement: roeOf(w, fids),
			})
		}
		sides = append(sides, &combat.Side{House: col.Owner, NoRetreat: true})

		outcome := combat.Resolve(w, rng, rls, sides, nil)
		if outcome.Rounds > 0 {
			sink.Emit(events.Event{
				Kind:        events.KindOrbitalCombatResolved,
				System:      sysID,
				Description: "orbital combat resolved",
			})
		}
	}
}

func colonyBySystem(w *entity.World) map[entity.ID]entity.ID {
	out := make(map[entity.ID]entity.ID)
	for id, c := range w.Colonies.Iterate(nil) {
		out[c.SystemID] = id
	}
	return out
}

func batteriesAt(w *entity.World, colonyID entity.ID) []entity.ID {
	var out []entity.ID
	for id, f := range w.Facilities.Iterate(nil) {
		if f.ColonyID == colonyID && f.Kind == entity.FacilityBattery {
			out = append(out, id)
		}
	}
	return out
}

// blockadeResolution implements step 3: the surviving hostile force with
// the highest combat strength at a colony sets Blockaded for Income.
func blockadeResolution(w *entity.World, sink *events.Sink, executing []entity.ID) {
	byColony := colonyBySystem(w)
	byFleetSystem := fleetsBySystem(w)
	for sysID, colID := range byColony {
		col, ok := w.Colonies.Get(colID)
		if !ok {
			continue
		}
		fleetIDs := byFleetSystem[sysID]
		byOwner := groupByOwner(w, fleetIDs)
		var bestOwner entity.ID
		bestStrength := -1
		for owner, fids := range byOwner {
			if !hostile(w, owner, col.Owner) {
				continue
			}
			strength := 0
			for _, sqID := range squadronsOf(w, fids) {
				sq, ok := w.Squadrons.Get(sqID)
				if !ok {
					continue
				}
				for _, shID := range sq.MemberIDs {
					sh, ok := w.Ships.Get(shID)
					if !ok {
						continue
					}
					strength += sh.AttackStrength
				}
			}
			if strength > bestStrength {
				bestStrength = strength
				bestOwner = owner
			}
		}
		if bestStrength > 0 {
			col.Blockaded = true
			w.Colonies.Update(colID, col)
			sink.Emit(events.Event{
				Kind:        events.KindBlockadeEstablished,
				House:       bestOwner,
				System:      sysID,
				Description: "blockade established",
			})
		}
	}
}

// planetaryCombat implements step 4: Bombard/Invade/Blitz intents are
// executed in priority order (invade, blitz, bombard) against the target
// colony's FleetCommand.
func planetaryCombat(w *entity.World, rls *rules.Rules, sink *events.Sink, rng *rand.Rand, executing []entity.ID) {
	type intent struct {
		fleetID entity.ID
		kind    entity.CommandKind
	}
	byColony := make(map[entity.ID][]intent)
	for _, fid := range executing {
		f, ok := w.Fleets.Get(fid)
		if !ok || f.ActiveCommand == nil {
			continue
		}
		switch f.ActiveCommand.Kind {
		case entity.CmdBombard, entity.CmdInvade, entity.CmdBlitz:
			byColony[f.ActiveCommand.TargetColony] = append(byColony[f.ActiveCommand.TargetColony], intent{fid, f.ActiveCommand.Kind})
		}
	}
	priority := map[entity.CommandKind]int{entity.CmdInvade: 0, entity.CmdBlitz: 1, entity.CmdBombard: 2}
	for colID, intents := range byColony {
		sort.Slice(intents, func(i, j int) bool { return priority[intents[i].kind] < priority[intents[j].kind] })
		for _, in := range intents {
			resolvePlanetaryIntent(w, sink, colID, in.fleetID, in.kind)
		}
	}
}

func resolvePlanetaryIntent(w *entity.World, sink *events.Sink, colID, fleetID entity.ID, kind entity.CommandKind) {
	col, ok := w.Colonies.Get(colID)
	if !ok {
		return
	}
	f, ok := w.Fleets.Get(fleetID)
	if !ok {
		return
	}
	switch kind {
	case entity.CmdBombard:
		sink.Emit(events.Event{Kind: events.KindColonyBombarded, House: f.Owner, System: col.SystemID, Description: "colony bombarded"})
		col.IndustrialUnits = col.IndustrialUnits / 2
		w.Colonies.Update(colID, col)
	case entity.CmdInvade:
		if len(batteriesAt(w, colID)) > 0 {
			return // batteries must be destroyed first
		}
		w.TransferColony(colID, f.Owner, 0.5)
		sink.Emit(events.Event{Kind: events.KindColonyCaptured, House: f.Owner, System: col.SystemID, Description: "colony invaded"})
	case entity.CmdBlitz:
		w.TransferColony(colID, f.Owner, 0.0)
		sink.Emit(events.Event{Kind: events.KindColonyCaptured, House: f.Owner, System: col.SystemID, Description: "colony blitzed"})
	}
}

// colonization implements step 5: when multiple expansion fleets target
// the same empty system, the greatest combat-ready escort wins, ties
// broken by lowest fleet id; the ETAC is consumed into the new colony's
// starting industrial units.
func colonization(w *entity.World, sink *events.Sink, executing []entity.ID) {
	byTarget := make(map[entity.ID][]entity.ID)
	for _, fid := range executing {
		f, ok := w.Fleets.Get(fid)
		if !ok || f.ActiveCommand == nil || f.ActiveCommand.Kind != entity.CmdColonize {
			continue
		}
		if _, occupied := w.ColonyAt(f.ActiveCommand.TargetSystem); occupied {
			continue
		}
		byTarget[f.ActiveCommand.TargetSystem] = append(byTarget[f.ActiveCommand.TargetSystem], fid)
	}
	for sysID, fids := range byTarget {
		sort.Slice(fids, func(i, j int) bool {
			si, sj := escortStrength(w, fids[i]), escortStrength(w, fids[j])
			if si != sj {
				return si > sj
			}
			return fids[i] < fids[j]
		})
		winner := fids[0]
		etacID, ok := findETAC(w, winner)
		if !ok {
			continue
		}
		startingIU := int64(10) // base colonization seed, mirrors spec's "becomes the colony's starting industrial units"
		col := entity.Colony{
			SystemID:        sysID,
			Owner:           mustOwner(w, winner),
			IndustrialUnits: startingIU,
			TaxRate:         0.5,
		}
		colID := w.Colonies.Insert(col)
		col.ID = colID
		w.Colonies.Update(colID, col)
		w.Index.AddColonyOwner(uint64(col.Owner), uint64(colID))
		w.Index.AddColonyBySystem(uint64(sysID), uint64(colID))
		w.DestroyShip(etacID)
		sink.Emit(events.Event{Kind: events.KindColonyEstablished, House: col.Owner, System: sysID, Description: "colony established"})
	}
}

func escortStrength(w *entity.World, fleetID entity.ID) int {
	f, ok := w.Fleets.Get(fleetID)
	if !ok {
		return 0
	}
	total := 0
	for _, sqID := range f.SquadronIDs {
		sq, ok := w.Squadrons.Get(sqID)
		if !ok || sq.Type != entity.SquadronCombat {
			continue
		}
		for _, shID := range sq.MemberIDs {
			sh, ok := w.Ships.Get(shID)
			if !ok {
				continue
			}
			total += sh.AttackStrength
		}
	}
	return total
}

func findETAC(w *entity.World, fleetID entity.ID) (entity.ID, bool) {
	f, ok := w.Fleets.Get(fleetID)
	if !ok {
		return 0, false
	}
	for _, sqID := range f.SquadronIDs {
		sq, ok := w.Squadrons.Get(sqID)
		if !ok {
			continue
		}
		for _, shID := range sq.MemberIDs {
			sh, ok := w.Ships.Get(shID)
			if ok && sh.Class == entity.ShipETAC {
				return shID, true
			}
		}
	}
	return 0, false
}

func mustOwner(w *entity.World, fleetID entity.ID) entity.ID {
	f, _ := w.Fleets.Get(fleetID)
	return f.Owner
}

// espionageDetectionRoll runs the raider/scout detection table (the same
// mechanic spaceCombat uses via combat.RunDetection) for one spy fleet
// against the electronics level of whoever holds targetSystem's colony,
// with the defender's counter-intel budget folded in as a coarse bonus to
// its effective electronics rating.
func espionageDetectionRoll(w *entity.World, rls *rules.Rules, rng *rand.Rand, spyOwner, targetSystem entity.ID) bool {
	defenderElectronics := 0
	if colID, ok := w.ColonyAt(targetSystem); ok {
		if col, ok := w.Colonies.Get(colID); ok {
			if defender, ok := w.Houses.Get(col.Owner); ok {
				defenderElectronics = defender.TechLevels[entity.TechElectronics] + int(defender.CounterIntelBudget/500)
			}
		}
	}
	spyElectronics := 0
	if spy, ok := w.Houses.Get(spyOwner); ok {
		spyElectronics = spy.TechLevels[entity.TechElectronics]
	}
	spyElectronics = clampElectronics(spyElectronics)
	defenderElectronics = clampElectronics(defenderElectronics)

	side := &combat.Side{House: spyOwner, Cloaked: true}
	detection := combat.RunDetection(rng, rls, []*combat.Side{side},
		map[entity.ID]int{spyOwner: defenderElectronics},
		map[entity.ID]int{spyOwner: spyElectronics})
	for _, d := range detection {
		if d.House == spyOwner {
			return d.Detected
		}
	}
	return false
}

// espionageEffectKindsFor maps a successful mission's kind to the ongoing
// effects it lands on the defender (spec section 4.3.2 step 1's research
// reduction / facility-crippling / intel-corruption trio), leaving plain
// Scout missions as pure intelligence-gathering with no side effect. A
// Hack both cripples a facility and corrupts the defender's own intel
// picture; a DeepScan only drains research.
func espionageEffectKindsFor(kind entity.SpyMissionKind) []string {
	switch kind {
	case entity.SpyDeepScan:
		return []string{rules.EffectResearchReduction}
	case entity.SpyHack:
		return []string{rules.EffectFacilityCrippling, rules.EffectIntelCorruption}
	default:
		return nil
	}
}

func applyEspionageEffect(w *entity.World, rls *rules.Rules, sink *events.Sink, targetHouse entity.ID, targetColony entity.ID, kind string) {
	entry, ok := rls.Espionage[kind]
	if !ok {
		return
	}
	h, ok := w.Houses.Get(targetHouse)
	if !ok {
		return
	}
	h.ActiveEffects = append(h.ActiveEffects, entity.ActiveEspionageEffect{
		Kind:           kind,
		TargetColony:   targetColony,
		RemainingTurns: entry.Duration,
		Magnitude:      entry.Magnitude,
	})
	w.Houses.Update(targetHouse, h)
	sink.Emit(events.Event{Kind: events.KindEspionageEffectApplied, House: targetHouse, Description: "espionage effect applied: " + kind})
}

// espionage implements step 6's two-tier detection rule: a fleet-based
// mission arriving this turn (MissionExecuting with a CmdEspionage active
// command) faces a detection roll before its SpyMission row is ever
// created; on detection the scout fleet is destroyed and nothing is
// registered or recorded. A mission registered in a prior turn re-rolls
// the same check each turn: success records perfect-quality intelligence
// and the mission continues, failure destroys the fleet and drops the
// mission. Guild budget missions carry no fleet and resolve separately
// out of the espionage budget (income.go step 2).
func espionage(w *entity.World, rls *rules.Rules, sink *events.Sink, rng *rand.Rand, turn int, executing []entity.ID) {
	registeredThisTurn := make(map[entity.ID]bool)

	for _, fid := range executing {
		f, ok := w.Fleets.Get(fid)
		if !ok || f.ActiveCommand == nil || f.ActiveCommand.Kind != entity.CmdEspionage {
			continue
		}
		target := f.ActiveCommand.TargetSystem
		if espionageDetectionRoll(w, rls, rng, f.Owner, target) {
			sink.Emit(events.Event{Kind: events.KindScoutDetected, House: f.Owner, Fleet: fid, System: target, Description: "scout detected before mission registration"})
			w.DestroyFleet(fid)
			continue
		}
		spyKind := f.ActiveCommand.SpyKind
		if spyKind == "" {
			spyKind = entity.SpyScout
		}
		m := entity.SpyMission{
			Owner:        f.Owner,
			FleetID:      fid,
			Kind:         spyKind,
			TargetSystem: target,
			StartTurn:    turn,
		}
		missionID := w.SpyMissions.Insert(m)
		m.ID = missionID
		w.SpyMissions.Update(missionID, m)
		registeredThisTurn[missionID] = true
	}

	for id, m := range w.SpyMissions.Iterate(nil) {
		if registeredThisTurn[id] || m.FleetID == 0 {
			continue // just-registered this pass, or a non-fleet guild-budget mission
		}
		if espionageDetectionRoll(w, rls, rng, m.Owner, m.TargetSystem) {
			w.SpyMissions.Remove(id)
			w.DestroyFleet(m.FleetID)
			sink.Emit(events.Event{Kind: events.KindSpyMissionFailed, House: m.Owner, System: m.TargetSystem, Description: "mission detected"})
			continue
		}
		if colID, ok := w.ColonyAt(m.TargetSystem); ok {
			recordIntel(w, m.Owner, entity.KindColony, colID, entity.IntelPerfect, turn, mustColony(w, colID))
			if col, ok := w.Colonies.Get(colID); ok {
				for _, effectKind := range espionageEffectKindsFor(m.Kind) {
					applyEspionageEffect(w, rls, sink, col.Owner, colID, effectKind)
				}
			}
		}
		sink.Emit(events.Event{Kind: events.KindSpyMissionSucceeded, House: m.Owner, System: m.TargetSystem, Description: "mission succeeded"})
	}
}

func mustColony(w *entity.World, colID entity.ID) entity.Colony {
	col, _ := w.Colonies.Get(colID)
	return col
}

// clampElectronics keeps a derived electronics rating within the default
// detection table's covered range so a high-tech house doesn't fall off
// the table and silently never get looked up.
func clampElectronics(level int) int {
	if level < 0 {
		return 0
	}
	if level > rules.MaxDetectionElectronics {
		return rules.MaxDetectionElectronics
	}
	return level
}

// administrativeCompletion implements step 7: clear the active command
// slot of every fleet whose command executed this phase.
func administrativeCompletion(w *entity.World, sink *events.Sink, executing []entity.ID) {
	for _, fid := range executing {
		f, ok := w.Fleets.Get(fid)
		if !ok {
			continue
		}
		f.ActiveCommand = nil
		f.MissionState = entity.MissionIdle
		w.Fleets.Update(fid, f)
	}
}

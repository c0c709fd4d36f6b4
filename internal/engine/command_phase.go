package engine

import (
	"github.com/greenm01/ec4x/internal/command"
	"github.com/greenm01/ec4x/internal/entity"
	"github.com/greenm01/ec4x/internal/events"
	"github.com/greenm01/ec4x/internal/rules"
)

// runCommand executes spec section 4.3.3's six steps. It is adapted from
// the teacher's maps/queue.go command-queue processing, generalized from
// one queue of move orders to the full command catalog.
func runCommand(w *entity.World, rls *rules.Rules, sink *events.Sink, packets []command.Packet, turn int) {
	cleanupCompletedCommands(w)
	commissionShips(w, sink)
	colonyAutomation(w)
	for _, pkt := range packets {
		applyAdministrative(w, sink, pkt)
		validateAndQueue(w, sink, pkt)
		registerSpyMissions(w, sink, pkt, turn)
		allocateResearch(w, rls, sink, pkt)
	}
}

// registerSpyMissions handles the espionage command category. Space Guild
// missions carry no fleet: they are funded straight out of the budget and
// registered immediately, resolving later out of income.go step 2's
// queued intents. Fleet-based missions are not registered here at all —
// spec section 3's data model says a SpyMission is "created on arrival" —
// this only arms the issuing fleet with a CmdEspionage active command so
// it travels the normal Production-phase route; Conflict phase step 6
// (engine.espionage) creates the SpyMission row once the fleet actually
// arrives and clears its pre-registration detection check.
func registerSpyMissions(w *entity.World, sink *events.Sink, pkt command.Packet, turn int) {
	for _, c := range pkt.Commands {
		if c.Category != command.CategoryEspionage {
			continue
		}
		switch c.Verb {
		case command.VerbGuildBudgetBuy:
			h, ok := w.Houses.Get(pkt.House)
			if !ok || h.Treasury < c.Budget {
				sink.Emit(events.Event{Kind: events.KindCommandRejected, House: pkt.House, Description: "insufficient treasury for guild budget buy"})
				continue
			}
			h.Treasury -= c.Budget
			h.EspionageBudget += c.Budget
			w.Houses.Update(pkt.House, h)
			m := entity.SpyMission{
				Owner:        pkt.House,
				Kind:         entity.SpyGuildBudget,
				TargetSystem: c.SystemID,
				StartTurn:    turn,
			}
			missionID := w.SpyMissions.Insert(m)
			m.ID = missionID
			w.SpyMissions.Update(missionID, m)
		case command.VerbSpyMission:
			f, ok := w.Fleets.Get(c.FleetID)
			if !ok || f.Owner != pkt.House {
				sink.Emit(events.Event{Kind: events.KindCommandRejected, House: pkt.House, Fleet: c.FleetID, Description: "unknown fleet"})
				continue
			}
			f.ActiveCommand = &entity.FleetCommand{
				Kind:         entity.CmdEspionage,
				TargetSystem: c.SystemID,
				SpyKind:      c.SpyKind,
			}
			w.Fleets.Update(c.FleetID, f)
		}
	}
}

// cleanupCompletedCommands implements step 1: drop any active command
// left over from the prior Conflict phase whose target no longer exists
// (the target fleet/colony/system was destroyed after the command was
// issued but before administrativeCompletion ran against it).
func cleanupCompletedCommands(w *entity.World) {
	for id, f := range w.Fleets.Iterate(nil) {
		if f.ActiveCommand == nil {
			continue
		}
		c := f.ActiveCommand
		stale := false
		if c.TargetFleet != 0 {
			if _, ok := w.Fleets.Get(c.TargetFleet); !ok {
				stale = true
			}
		}
		if c.TargetColony != 0 {
			if _, ok := w.Colonies.Get(c.TargetColony); !ok {
				stale = true
			}
		}
		if stale {
			f.ActiveCommand = nil
			w.Fleets.Update(id, f)
		}
	}
}

// commissionShips implements step 2: ship-class construction projects
// that completed in the previous Production phase commission now because
// their docks survived a Conflict phase. Auto-forms squadrons: scouts go
// into scout-only squadrons, ETACs and transports into an expansion
// squadron. No cargo is loaded onto a commissioned ETAC.
func commissionShips(w *entity.World, sink *events.Sink) {
	for id, p := range w.Projects.Iterate(nil) {
		if p.Progress < p.Cost || !p.Target.IsShip() {
			continue
		}
		col, ok := w.Colonies.Get(p.ColonyID)
		if !ok {
			w.Projects.Remove(id)
			continue
		}
		ship := entity.Ship{
			Owner:         col.Owner,
			Class:         p.Target.ShipClass,
			CombatState:   entity.ShipUndamaged,
			AttackStrength: baseAttack(p.Target.ShipClass),
			CommandRating: baseCommandRating(p.Target.ShipClass),
		}
		shipID := w.Ships.Insert(ship)

		fleetID := homeFleetAt(w, col.SystemID, col.Owner)
		sqID := homeSquadronFor(w, fleetID, p.Target.ShipClass)
		sq, _ := w.Squadrons.Get(sqID)
		sq.MemberIDs = append(sq.MemberIDs, shipID)
		if sq.FlagshipID == 0 {
			sq.FlagshipID = shipID
		}
		w.Squadrons.Update(sqID, sq)

		ship.ID = shipID
		ship.FleetID = fleetID
		ship.SquadronID = sqID
		w.Ships.Update(shipID, ship)

		sink.Emit(events.Event{Kind: events.KindShipCommissioned, House: col.Owner, System: col.SystemID, Description: "ship commissioned: " + string(p.Target.ShipClass)})
		w.Projects.Remove(id)
	}
	w.RebuildIndices()
}

func baseAttack(class entity.ShipClass) int {
	switch class {
	case entity.ShipFrigate:
		return 2
	case entity.ShipDestroyer:
		return 4
	case entity.ShipCruiser:
		return 8
	case entity.ShipBattleship:
		return 16
	case entity.ShipCarrier:
		return 6
	case entity.ShipPlanetBreaker:
		return 40
	default:
		return 1
	}
}

func baseCommandRating(class entity.ShipClass) int {
	switch class {
	case entity.ShipBattleship, entity.ShipPlanetBreaker:
		return 10
	case entity.ShipCruiser, entity.ShipCarrier:
		return 6
	default:
		return 2
	}
}

func homeFleetAt(w *entity.World, systemID, owner entity.ID) entity.ID {
	for _, fid := range w.FleetsAt(systemID) {
		f, ok := w.Fleets.Get(fid)
		if ok && f.Owner == owner {
			return fid
		}
	}
	return w.CreateFleet(entity.Fleet{Owner: owner, Location: systemID})
}

func homeSquadronFor(w *entity.World, fleetID entity.ID, class entity.ShipClass) entity.ID {
	f, _ := w.Fleets.Get(fleetID)
	sqType := entity.SquadronCombat
	if class == entity.ShipScout {
		sqType = entity.SquadronAuxiliary
	}
	if class == entity.ShipETAC || class == entity.ShipTransport {
		sqType = entity.SquadronExpansion
	}
	for _, sqID := range f.SquadronIDs {
		sq, ok := w.Squadrons.Get(sqID)
		if ok && sq.Type == sqType {
			if sqType != entity.SquadronAuxiliary {
				return sqID
			}
			// scout-only squadrons must not mix with other auxiliary craft
			if onlyScouts(w, sq) {
				return sqID
			}
		}
	}
	sq := entity.Squadron{Owner: f.Owner, Type: sqType, ParentFleetID: fleetID}
	sqID := w.Squadrons.Insert(sq)
	sq.ID = sqID
	w.Squadrons.Update(sqID, sq)
	w.AttachSquadron(fleetID, sqID)
	return sqID
}

func onlyScouts(w *entity.World, sq entity.Squadron) bool {
	for _, shID := range sq.MemberIDs {
		sh, ok := w.Ships.Get(shID)
		if ok && sh.Class != entity.ShipScout {
			return false
		}
	}
	return true
}

// colonyAutomation implements step 3 for repairs only: a crippled fleet
// whose standing command is AutoRepair and which has no active command is
// sent home (SeekHome). No repair is queued here, and squadrons are not
// auto-balanced, whatever a fleet's AutoBalance flag says.
func colonyAutomation(w *entity.World) {
	for id, f := range w.Fleets.Iterate(nil) {
		if f.CrippledSinceTurn == 0 || f.StandingCommand == nil {
			continue
		}
		if f.StandingCommand.Kind == entity.CmdAutoRepair && f.ActiveCommand == nil {
			f.ActiveCommand = &entity.FleetCommand{Kind: entity.CmdSeekHome}
			w.Fleets.Update(id, f)
		}
	}
}

// applyAdministrative implements step 4's zero-turn commands: they
// execute immediately under the store's invariants.
func applyAdministrative(w *entity.World, sink *events.Sink, pkt command.Packet) {
	for _, c := range pkt.Commands {
		if c.Category != command.CategoryAdministrative {
			continue
		}
		switch c.Verb {
		case command.VerbMergeFleets:
			w.MergeFleets(c.FleetID, c.Target)
		case command.VerbReorganizeSquadrons:
			reorganizeSquadron(w, c)
		case command.VerbTransferCargo:
			// accepted but changes nothing: no cargo moves between ships.
		}
	}
}

func reorganizeSquadron(w *entity.World, c command.Command) {
	sq, ok := w.Squadrons.Get(c.Target)
	if !ok {
		return
	}
	// Membership reshuffling beyond moving the issuing fleet's squadron
	// list order is not representable without a ship-level target in the
	// command payload; this stores the squadron under the new fleet when
	// FleetID differs, matching the common "detach and reattach" use.
	if sq.ParentFleetID != c.FleetID {
		w.AttachSquadron(c.FleetID, c.Target)
	}
}

// validateAndQueue implements step 5: persistent commands are validated
// against the current store and either stored in the active slot or
// fail with an event carrying the reason.
func validateAndQueue(w *entity.World, sink *events.Sink, pkt command.Packet) {
	for _, c := range pkt.Commands {
		if c.Category != command.CategoryFleet {
			continue
		}
		f, ok := w.Fleets.Get(c.FleetID)
		if !ok {
			sink.Emit(events.Event{Kind: events.KindCommandRejected, House: pkt.House, Description: "unknown fleet"})
			continue
		}
		if f.Owner != pkt.House {
			sink.Emit(events.Event{Kind: events.KindCommandRejected, House: pkt.House, Fleet: c.FleetID, Description: "not your fleet"})
			continue
		}
		kind, ok := verbToCommandKind(c.Verb)
		if !ok {
			sink.Emit(events.Event{Kind: events.KindCommandRejected, House: pkt.House, Fleet: c.FleetID, Description: "unknown verb"})
			continue
		}
		f.ActiveCommand = &entity.FleetCommand{
			Kind:         kind,
			TargetSystem: c.SystemID,
			TargetColony: c.ColonyID,
			TargetFleet:  c.Target,
		}
		if c.RulesOfEngagement > 0 {
			f.RulesOfEngagement = c.RulesOfEngagement
		}
		w.Fleets.Update(c.FleetID, f)
	}
}

func verbToCommandKind(v command.Verb) (entity.CommandKind, bool) {
	m := map[command.Verb]entity.CommandKind{
		command.VerbMove:       entity.CmdMove,
		command.VerbHold:       entity.CmdHold,
		command.VerbPatrol:     entity.CmdPatrol,
		command.VerbSeekHome:   entity.CmdSeekHome,
		command.VerbJoinFleet:  entity.CmdJoinFleet,
		command.VerbRendezvous: entity.CmdRendezvous,
		command.VerbReserve:    entity.CmdReserve,
		command.VerbMothball:   entity.CmdMothball,
		command.VerbReactivate: entity.CmdReactivate,
		command.VerbView:       entity.CmdView,
		command.VerbBombard:    entity.CmdBombard,
		command.VerbInvade:     entity.CmdInvade,
		command.VerbBlitz:      entity.CmdBlitz,
		command.VerbColonize:   entity.CmdColonize,
		command.VerbSalvage:    entity.CmdSalvage,
		command.VerbBlockade:   entity.CmdBlockade,
	}
	k, ok := m[v]
	return k, ok
}

// allocateResearch implements step 6: production points are distributed
// across fields, scaled down if they exceed the treasury, cancelled if
// the treasury is non-positive.
func allocateResearch(w *entity.World, rls *rules.Rules, sink *events.Sink, pkt command.Packet) {
	for _, c := range pkt.Commands {
		if c.Verb != command.VerbAllocateResearch {
			continue
		}
		h, ok := w.Houses.Get(pkt.House)
		if !ok || h.Treasury <= 0 {
			continue
		}
		var total int64
		for _, v := range c.ResearchAllocation {
			total += v
		}
		if total == 0 {
			continue
		}
		scale := 1.0
		if total > h.Treasury {
			scale = float64(h.Treasury) / float64(total)
		}
		if h.ResearchPoints == nil {
			h.ResearchPoints = make(map[entity.TechField]float64)
		}
		grossOutput := float64(h.Treasury)
		scienceLevel := float64(h.TechLevels[entity.TechScience])
		for field, pts := range c.ResearchAllocation {
			allocated := float64(pts) * scale
			h.Treasury -= int64(allocated)
			gained := allocated * (1 + scienceLevel*0.1) * (grossOutput / (grossOutput + 1))
			h.ResearchPoints[field] += gained
		}
		w.Houses.Update(pkt.House, h)
	}
}

// Package transport defines the abstract boundary of spec section 4.6
// that the core consumes to ingest signed/encrypted command packets and
// publish signed/encrypted delta packets. The core never touches the
// network directly; it calls this interface, and the daemon wires a
// concrete implementation (transport/local or transport/relay) in.
package transport

import (
	"context"

	"github.com/greenm01/ec4x/internal/entity"
)

// Packet is an opaque byte sequence the core neither parses nor
// verifies — spec section 4.6: "Packets and payloads are opaque byte
// sequences". Concrete transports interpret the bytes as an
// entity-addressed, codec-encoded command.Packet or fow.PlayerStateDelta.
type Packet struct {
	Game  string
	House entity.ID
	Turn  int
	Data  []byte
}

// CommandReceived is what CollectCommands yields: one inbound packet
// ready for the daemon to hand to persistence.SaveCommand once verified.
type CommandReceived struct {
	Packet
}

// Transport is the interface spec section 4.6 specifies:
//
//	fn submit_command(game, house, packet) -> Result
//	fn collect_commands(game) -> Stream<CommandPacket>
//	fn publish_delta(game, recipient_house, payload) -> Result
//	fn publish_summary(game, payload) -> Result
type Transport interface {
	// SubmitCommand accepts one house's inbound packet for a game. Used
	// by transport/local's same-process ingestion path; transport/relay
	// instead drives this from its own Subscribe loop.
	SubmitCommand(ctx context.Context, game string, house entity.ID, packet []byte) error

	// CollectCommands streams every packet currently queued for game that
	// the daemon has not yet consumed. transport/local closes the returned
	// channel once the queued rows have been sent; transport/relay closes
	// it when the context is cancelled or the bus subscription ends.
	CollectCommands(ctx context.Context, game string) (<-chan CommandReceived, error)

	// PublishDelta hands one house's encrypted PlayerStateDelta payload to
	// the transport for delivery (spec section 4.8 step 6: "deltas are
	// published only after the commit of turn N").
	PublishDelta(ctx context.Context, game string, recipient entity.ID, payload []byte) error

	// PublishSummary hands a public (unencrypted) summary payload to the
	// transport — used for the public game-definition, slot-claim, and
	// status-change events of spec section 6.
	PublishSummary(ctx context.Context, game string, payload []byte) error
}

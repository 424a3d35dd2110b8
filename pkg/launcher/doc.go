/*
Package launcher implements the supervisor side of the Launcher Client
protocol (§4.E): a small length-delimited, protobuf-wire-encoded RPC
client that asks a privileged sibling process to spawn, restart, and
terminate packaged services, and that reacts to an unsolicited Shutdown
message by failing every pending and future call.

The privileged launcher process itself is an out-of-scope external
collaborator (§1); this package only implements the client half of the
wire contract, plus FakeLauncher, an in-memory test double that speaks
the same framing over a net.Pipe so pkg/service and pkg/manager tests
can exercise spawn/restart/terminate/shutdown without a real privileged
process.

# Wire format

Every frame is:

	[4 bytes, little-endian length][16 bytes, space-padded ASCII message id][protobuf-wire payload]

matching the teacher's protobuf dependency being reused for envelope
encoding (google.golang.org/protobuf/encoding/protowire) rather than a
generated .proto schema, since the message set here is small and fixed.
*/
package launcher

/*
Package rumor implements Sentinel's rumor store: a sharded, durable,
monotonic key/value store holding gossiped entities (membership,
service presence, elections, configuration, files) and exposing the
per-store update counters the gossip engine and the census ring use as
a monotonic witness of change.

# Architecture

One bolt.DB environment backs every rumor kind, one bucket per kind,
mirroring the teacher's BoltStore (one bucket per entity kind) but keyed
by the gossip-native composite key "{key}:::{id}" instead of a bare id:

	┌──────────────────── RUMOR STORE ──────────────────────┐
	│                                                          │
	│   bolt.DB (single file, one process)                    │
	│     ├── bucket "member"           Store[Member]         │
	│     ├── bucket "service"          Store[ServicePresence]│
	│     ├── bucket "service_config"   Store[ServiceConfig]  │
	│     ├── bucket "service_file"     Store[ServiceFile]    │
	│     ├── bucket "election"         Store[Election]       │
	│     ├── bucket "election_update"  Store[Election]       │
	│     └── bucket "departure"        Store[Departure]      │
	│                                                          │
	│   Each Store[T] carries its own atomic update_counter.  │
	└──────────────────────────────────────────────────────────┘

# Merge semantics

Every rumor kind supplies a mergeFunc[T] implementing the ordering rules
from the data model: incarnation first, then a kind-specific tiebreak
(health priority for membership, suitability then member id for
elections), falling back to StopSharing when the incoming rumor cannot
possibly improve on what is stored. When no record exists yet for a
(key, id) pair, insertion always succeeds as ShareNew without consulting
the merge function — there is nothing to compare against.

# Failure handling

Read errors are logged and treated as not-found; write errors abort the
transaction without bumping the counter. A bucket is never left
half-written: every insert runs inside a single bolt.DB.Update call.
*/
package rumor

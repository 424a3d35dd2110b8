/*
Package types defines the core data structures shared across Sentinel's
supervisor components: the rumor store, the census ring, the
configuration compiler, the hook table, and the service runtime.

# Architecture

Sentinel's domain model sits below every other package:

	┌─────────────── DATA MODEL ───────────────┐
	│                                            │
	│  MemberId, ServiceGroup, PackageIdent      │
	│           │                                │
	│           ▼                                │
	│  rumor payloads: Member, ServicePresence,  │
	│  ServiceConfigRumor, ServiceFileRumor,     │
	│  ElectionRumor, DepartureRumor             │
	│           │                                │
	│           ▼                                │
	│  CensusMember, Pkg, ServiceSpec            │
	└────────────────────────────────────────────┘

All types here are plain data; behavior (merge, projection, rendering)
lives in the packages that consume them (pkg/rumor, pkg/census,
pkg/config, pkg/service). CensusGroup and the Ring live in pkg/census,
Cfg in pkg/config, and the runtime service state (Unit) in pkg/service.

# Thread safety

Types in this package carry no internal locking. Callers that share
them across goroutines provide their own synchronization; pkg/census,
for one, guards its CensusGroup projections with the Ring's RWMutex.
*/
package types

package rumor

import (
	"github.com/cuemby/sentinel/pkg/types"
)

// NewMemberStore ranks membership rumors by incarnation, then by health
// priority (Alive < Suspect < Confirmed < Departed): a higher-priority
// health always wins at equal incarnation, matching the SWIM rule that
// Confirmed/Departed verdicts at the same incarnation take precedence
// over a stale Alive.
func NewMemberStore(d *Database) *Store[types.Member] {
	return newStore(d, bucketMember, mergeMember,
		func(m types.Member) string { return "member" },
		func(m types.Member) types.MemberId { return m.Id },
	)
}

func healthPriority(h types.MemberHealth) int {
	switch h {
	case types.HealthDeparted:
		return 3
	case types.HealthConfirmed:
		return 2
	case types.HealthSuspect:
		return 1
	default:
		return 0
	}
}

func mergeMember(existing, incoming types.Member) types.MergeResult[types.Member] {
	if incoming.Incarnation > existing.Incarnation {
		return types.ShareNewResult(incoming)
	}
	if incoming.Incarnation < existing.Incarnation {
		return types.StopSharingResult[types.Member]()
	}
	ip, ep := healthPriority(incoming.Health), healthPriority(existing.Health)
	if ip > ep {
		return types.ShareNewResult(incoming)
	}
	if ip == ep && incoming.Health == existing.Health && incoming.Address == existing.Address &&
		incoming.SwimPort == existing.SwimPort && incoming.GossipPort == existing.GossipPort &&
		incoming.Persistent == existing.Persistent {
		return types.ShareExistingResult[types.Member]()
	}
	return types.StopSharingResult[types.Member]()
}

// NewServiceStore tracks which members are running which service
// groups. Presence rumors have no meaningful "ShareExisting" tier: at
// equal incarnation the record is either byte-identical (a true
// duplicate, stopped) or a conflicting write that loses to whichever
// was inserted first.
func NewServiceStore(d *Database) *Store[types.ServicePresence] {
	return newStore(d, bucketService, mergePresence(servicePresenceEqual),
		func(s types.ServicePresence) string { return s.Group.String() },
		func(s types.ServicePresence) types.MemberId { return s.MemberId },
	)
}

func servicePresenceEqual(a, b types.ServicePresence) bool {
	return a.Pkg == b.Pkg
}

func mergePresence[T any](equal func(a, b T) bool) func(existing, incoming T) types.MergeResult[T] {
	return func(existing, incoming T) types.MergeResult[T] {
		ei, ii := incarnationOf(existing), incarnationOf(incoming)
		if ii > ei {
			return types.ShareNewResult(incoming)
		}
		if ii == ei && equal(existing, incoming) {
			return types.ShareExistingResult[T]()
		}
		return types.StopSharingResult[T]()
	}
}

func incarnationOf(v any) uint64 {
	switch t := v.(type) {
	case types.ServicePresence:
		return t.Incarnation
	case types.ServiceConfigRumor:
		return t.Incarnation
	case types.ServiceFileRumor:
		return t.Incarnation
	case types.ElectionRumor:
		return t.Incarnation
	}
	return 0
}

// NewServiceConfigStore holds the per-service-group gossip configuration
// tier (the highest-priority tier in the configuration layer's merge
// order).
func NewServiceConfigStore(d *Database) *Store[types.ServiceConfigRumor] {
	return newStore(d, bucketServiceConfig, mergePresence(serviceConfigEqual),
		func(s types.ServiceConfigRumor) string { return s.Group.String() },
		func(s types.ServiceConfigRumor) types.MemberId { return s.MemberId },
	)
}

func serviceConfigEqual(a, b types.ServiceConfigRumor) bool {
	return a.Encrypted == b.Encrypted && string(a.Toml) == string(b.Toml)
}

// NewServiceFileStore holds gossiped files dropped into a service's
// files directory.
func NewServiceFileStore(d *Database) *Store[types.ServiceFileRumor] {
	return newStore(d, bucketServiceFile, mergeServiceFile,
		func(s types.ServiceFileRumor) string { return s.Group.String() + "/" + s.Filename },
		func(s types.ServiceFileRumor) types.MemberId { return s.MemberId },
	)
}

func mergeServiceFile(existing, incoming types.ServiceFileRumor) types.MergeResult[types.ServiceFileRumor] {
	if incoming.Incarnation > existing.Incarnation {
		return types.ShareNewResult(incoming)
	}
	if incoming.Incarnation == existing.Incarnation &&
		incoming.Encrypted == existing.Encrypted &&
		string(incoming.Body) == string(existing.Body) {
		return types.ShareExistingResult[types.ServiceFileRumor]()
	}
	return types.StopSharingResult[types.ServiceFileRumor]()
}

// electionRank orders election rumors by incarnation, then suitability
// (higher wins the seat), then lexicographically highest member id as
// the final, deterministic tiebreak every member computes identically.
func electionRank(r types.ElectionRumor) (uint64, uint64, types.MemberId) {
	return r.Incarnation, r.Suitability, r.MemberId
}

func mergeElection(existing, incoming types.ElectionRumor) types.MergeResult[types.ElectionRumor] {
	ei, es, em := electionRank(existing)
	ii, is, im := electionRank(incoming)

	if ii > ei {
		return types.ShareNewResult(incoming)
	}
	if ii < ei {
		return types.StopSharingResult[types.ElectionRumor]()
	}
	if is > es {
		return types.ShareNewResult(incoming)
	}
	if is < es {
		return types.StopSharingResult[types.ElectionRumor]()
	}
	if im > em {
		return types.ShareNewResult(incoming)
	}
	if im == em && incoming.Status == existing.Status && incoming.Winner == existing.Winner {
		return types.ShareExistingResult[types.ElectionRumor]()
	}
	return types.StopSharingResult[types.ElectionRumor]()
}

// NewElectionStore tracks the in-progress leader election per service
// group.
func NewElectionStore(d *Database) *Store[types.ElectionRumor] {
	return newStore(d, bucketElection, mergeElection,
		func(e types.ElectionRumor) string { return e.Group.String() },
		func(e types.ElectionRumor) types.MemberId { return e.MemberId },
	)
}

// NewElectionUpdateStore tracks the follow-up rumor kind used to update
// an already-finished election (e.g. to cope with a later-joining
// member not having witnessed the original election rumor).
func NewElectionUpdateStore(d *Database) *Store[types.ElectionRumor] {
	return newStore(d, bucketElectionUpdate, mergeElection,
		func(e types.ElectionRumor) string { return e.Group.String() },
		func(e types.ElectionRumor) types.MemberId { return e.MemberId },
	)
}

// NewDepartureStore tracks members that have been permanently marked
// departed. Departure is one-shot: the merge function always refuses a
// second write, so the only way a departure rumor is ever stored is the
// very first insert (Store.Insert skips merge entirely when nothing is
// stored yet).
func NewDepartureStore(d *Database) *Store[types.DepartureRumor] {
	return newStore(d, bucketDeparture, mergeDeparture,
		func(d types.DepartureRumor) string { return "departure" },
		func(d types.DepartureRumor) types.MemberId { return d.MemberId },
	)
}

func mergeDeparture(existing, incoming types.DepartureRumor) types.MergeResult[types.DepartureRumor] {
	return types.StopSharingResult[types.DepartureRumor]()
}

// Stores bundles one Store per rumor kind backed by a shared Database,
// the unit the census ring and gossip engine are handed at startup.
type Stores struct {
	Members         *Store[types.Member]
	Services        *Store[types.ServicePresence]
	ServiceConfigs  *Store[types.ServiceConfigRumor]
	ServiceFiles    *Store[types.ServiceFileRumor]
	Elections       *Store[types.ElectionRumor]
	ElectionUpdates *Store[types.ElectionRumor]
	Departures      *Store[types.DepartureRumor]
}

// NewStores wires every per-kind store against one shared Database.
func NewStores(d *Database) *Stores {
	return &Stores{
		Members:         NewMemberStore(d),
		Services:        NewServiceStore(d),
		ServiceConfigs:  NewServiceConfigStore(d),
		ServiceFiles:    NewServiceFileStore(d),
		Elections:       NewElectionStore(d),
		ElectionUpdates: NewElectionUpdateStore(d),
		Departures:      NewDepartureStore(d),
	}
}

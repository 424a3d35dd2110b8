package census

import (
	"crypto/sha256"
	"sync"

	"github.com/cuemby/sentinel/pkg/events"
	"github.com/cuemby/sentinel/pkg/log"
	"github.com/cuemby/sentinel/pkg/rumor"
	"github.com/cuemby/sentinel/pkg/types"
)

// CensusGroup is the projection for one service group.
type CensusGroup struct {
	Members             map[types.MemberId]types.CensusMember
	LeaderId            *types.MemberId
	ServiceConfig       *types.ServiceConfigRumor
	ChangedServiceFiles []string
	ElectionStatus      types.ElectionStatus
	UpdateLeaderId      *types.MemberId
}

func newCensusGroup() *CensusGroup {
	return &CensusGroup{
		Members:        make(map[types.MemberId]types.CensusMember),
		ElectionStatus: types.ElectionNone,
	}
}

// fileDigest is a content hash of a file rumor's body, used only to
// decide whether it changed since the previous tick; the actual bytes
// live in the rumor store, the ring only tracks "did this change this
// tick".
type fileDigest [sha256.Size]byte

// Ring is the CensusRing: the full materialized view plus the counters
// it last observed from each rumor store.
type Ring struct {
	mu sync.RWMutex

	groups map[types.ServiceGroup]*CensusGroup
	files  map[types.ServiceGroup]map[string]fileDigest

	broker     *events.Broker
	lastHealth map[types.MemberId]types.MemberHealth

	lastServiceCounter uint64
	lastElectionCounter uint64
	lastUpdateCounter   uint64
	lastMemberCounter   uint64
	lastConfigCounter   uint64
	lastFileCounter     uint64

	changed bool
}

// NewRing returns an empty ring; every last-seen counter starts at zero,
// so the first UpdateFromRumors call reports changed as soon as any store
// has been written to (and not changed while every store is still empty).
func NewRing() *Ring {
	return &Ring{
		groups:     make(map[types.ServiceGroup]*CensusGroup),
		files:      make(map[types.ServiceGroup]map[string]fileDigest),
		lastHealth: make(map[types.MemberId]types.MemberHealth),
	}
}

// SetBroker wires an event broker so membership and election
// transitions the ring observes are published for subscribers (the
// out-of-scope HTTP gateway collaborator, tests). Optional: a nil or
// never-set broker just means the ring stays silent.
func (r *Ring) SetBroker(b *events.Broker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broker = b
}

func (r *Ring) groupFor(sg types.ServiceGroup) *CensusGroup {
	g, ok := r.groups[sg]
	if !ok {
		g = newCensusGroup()
		r.groups[sg] = g
	}
	return g
}

// UpdateFromRumors advances the ring: for each store whose update
// counter has moved since the last call, the corresponding projection
// is rebuilt from that store's current contents. Sets Changed() true
// iff any of the six counters advanced.
func (r *Ring) UpdateFromRumors(
	serviceStore *rumor.Store[types.ServicePresence],
	electionStore *rumor.Store[types.ElectionRumor],
	updateStore *rumor.Store[types.ElectionRumor],
	memberStore *rumor.Store[types.Member],
	serviceConfigStore *rumor.Store[types.ServiceConfigRumor],
	serviceFileStore *rumor.Store[types.ServiceFileRumor],
) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.changed = false
	for _, g := range r.groups {
		g.ChangedServiceFiles = nil
	}

	memberHealth := make(map[types.MemberId]types.Member)
	memberStore.WithAllRumors(func(m types.Member) { memberHealth[m.Id] = m })

	if c := serviceStore.GetUpdateCounter(); c != r.lastServiceCounter {
		r.lastServiceCounter = c
		r.changed = true
		r.rebuildMembership(serviceStore, memberHealth)
	}

	if c := memberStore.GetUpdateCounter(); c != r.lastMemberCounter {
		r.lastMemberCounter = c
		r.changed = true
		r.refreshHealth(memberHealth)
	}

	if c := electionStore.GetUpdateCounter(); c != r.lastElectionCounter {
		r.lastElectionCounter = c
		r.changed = true
		r.applyElections(electionStore, false)
	}

	if c := updateStore.GetUpdateCounter(); c != r.lastUpdateCounter {
		r.lastUpdateCounter = c
		r.changed = true
		r.applyElections(updateStore, true)
	}

	if c := serviceConfigStore.GetUpdateCounter(); c != r.lastConfigCounter {
		r.lastConfigCounter = c
		r.changed = true
		r.applyServiceConfig(serviceConfigStore)
	}

	if c := serviceFileStore.GetUpdateCounter(); c != r.lastFileCounter {
		r.lastFileCounter = c
		r.changed = true
		r.applyServiceFiles(serviceFileStore)
	}

	if r.changed {
		log.WithComponent("census").Debug().Msg("census ring updated")
	}
}

// rebuildMembership rebuilds every group's Members map from scratch off
// the current contents of the service-presence store. A full rebuild is
// simplest and correct: presence rumors are never individually deleted
// from outside (only the whole store clears on departure cleanup), so
// there is no incremental-diff bookkeeping to get wrong here.
func (r *Ring) rebuildMembership(serviceStore *rumor.Store[types.ServicePresence], healthByMember map[types.MemberId]types.Member) {
	prevMembers := make(map[types.ServiceGroup]map[types.MemberId]bool, len(r.groups))
	for sg, g := range r.groups {
		ids := make(map[types.MemberId]bool, len(g.Members))
		for id := range g.Members {
			ids[id] = true
		}
		prevMembers[sg] = ids
	}

	for _, g := range r.groups {
		g.Members = make(map[types.MemberId]types.CensusMember)
	}
	serviceStore.WithAllRumors(func(p types.ServicePresence) {
		g := r.groupFor(p.Group)
		mh, known := healthByMember[p.MemberId]
		cm := types.CensusMember{
			Id:  p.MemberId,
			Pkg: p.Pkg,
		}
		if known {
			cm.Address = mh.Address
			cm.Alive = mh.Health == types.HealthAlive || mh.Health == types.HealthSuspect
		}
		if g.LeaderId != nil && *g.LeaderId == p.MemberId {
			cm.Leader = true
		}
		if r.broker != nil && !prevMembers[p.Group][p.MemberId] {
			r.broker.Publish(&events.Event{Type: events.EventMemberJoined, ServiceGroup: p.Group.String(), Message: string(p.MemberId)})
		}
		g.Members[p.MemberId] = cm
	})

	if r.broker != nil {
		for sg, ids := range prevMembers {
			g, ok := r.groups[sg]
			if !ok {
				continue
			}
			for id := range ids {
				if _, stillThere := g.Members[id]; !stillThere {
					r.broker.Publish(&events.Event{Type: events.EventMemberDeparted, ServiceGroup: sg.String(), Message: string(id)})
				}
			}
		}
	}
}

// refreshHealth updates the Alive/Address fields of already-projected
// members without touching group membership itself, and publishes
// member.suspect on the edge where a member's health first becomes
// HealthSuspect.
func (r *Ring) refreshHealth(healthByMember map[types.MemberId]types.Member) {
	for _, g := range r.groups {
		for id, cm := range g.Members {
			mh, ok := healthByMember[id]
			if !ok {
				continue
			}
			cm.Address = mh.Address
			cm.Alive = mh.Health == types.HealthAlive || mh.Health == types.HealthSuspect
			g.Members[id] = cm
		}
	}

	for id, mh := range healthByMember {
		prev, known := r.lastHealth[id]
		r.lastHealth[id] = mh.Health
		if r.broker != nil && mh.Health == types.HealthSuspect && (!known || prev != types.HealthSuspect) {
			r.broker.Publish(&events.Event{Type: events.EventMemberSuspect, Message: string(id)})
		}
	}
}

// applyElections walks every election rumor and sets the group's
// ElectionStatus/LeaderId (or UpdateLeaderId, for the update store)
// from the highest-ranked candidate per group. A CensusGroup.LeaderId is
// set only once that group's election has reached Finished.
func (r *Ring) applyElections(store *rumor.Store[types.ElectionRumor], isUpdate bool) {
	best := make(map[types.ServiceGroup]types.ElectionRumor)
	store.WithAllRumors(func(e types.ElectionRumor) {
		cur, ok := best[e.Group]
		if !ok || e.Incarnation > cur.Incarnation ||
			(e.Incarnation == cur.Incarnation && e.Suitability > cur.Suitability) ||
			(e.Incarnation == cur.Incarnation && e.Suitability == cur.Suitability && e.MemberId > cur.MemberId) {
			best[e.Group] = e
		}
	})

	for sg, e := range best {
		g := r.groupFor(sg)
		if isUpdate {
			if e.Status == types.ElectionFinished {
				winner := e.Winner
				g.UpdateLeaderId = &winner
			}
			continue
		}
		prevStatus := g.ElectionStatus
		g.ElectionStatus = e.Status
		if e.Status == types.ElectionFinished {
			winner := e.Winner
			g.LeaderId = &winner
			for id, cm := range g.Members {
				cm.Leader = id == winner
				g.Members[id] = cm
			}
			if r.broker != nil && prevStatus != types.ElectionFinished {
				r.broker.Publish(&events.Event{Type: events.EventElectionFinished, ServiceGroup: sg.String(), Message: string(winner)})
			}
		} else {
			g.LeaderId = nil
			for id, cm := range g.Members {
				cm.Leader = false
				g.Members[id] = cm
			}
		}
	}
}

func (r *Ring) applyServiceConfig(store *rumor.Store[types.ServiceConfigRumor]) {
	latest := make(map[types.ServiceGroup]types.ServiceConfigRumor)
	store.WithAllRumors(func(c types.ServiceConfigRumor) {
		cur, ok := latest[c.Group]
		if !ok || c.Incarnation > cur.Incarnation {
			latest[c.Group] = c
		}
	})
	for sg, c := range latest {
		g := r.groupFor(sg)
		cp := c
		g.ServiceConfig = &cp
	}
}

// applyServiceFiles records, per group, which filenames changed content
// since the last tick that observed the file store. UpdateFromRumors
// clears every group's ChangedServiceFiles at the start of each call, so
// the list only ever holds the current tick's deltas and is empty on a
// tick where the file counter did not advance.
func (r *Ring) applyServiceFiles(store *rumor.Store[types.ServiceFileRumor]) {
	seenDigest := make(map[types.ServiceGroup]map[string]fileDigest)
	changedByGroup := make(map[types.ServiceGroup][]string)

	store.WithAllRumors(func(f types.ServiceFileRumor) {
		prevForGroup, ok := r.files[f.Group]
		digest := sha256.Sum256(f.Body)

		if cur, ok := seenDigest[f.Group]; ok {
			cur[f.Filename] = digest
		} else {
			seenDigest[f.Group] = map[string]fileDigest{f.Filename: digest}
		}

		if !ok || prevForGroup[f.Filename] != digest {
			changedByGroup[f.Group] = append(changedByGroup[f.Group], f.Filename)
		}
	})

	r.files = seenDigest
	for sg, names := range changedByGroup {
		g := r.groupFor(sg)
		g.ChangedServiceFiles = names
	}
}

// CensusGroupFor returns the projection for sg, if any rumor has ever
// been observed for it.
func (r *Ring) CensusGroupFor(sg types.ServiceGroup) (*CensusGroup, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[sg]
	return g, ok
}

// Changed reports whether the most recent UpdateFromRumors call
// observed any counter advance.
func (r *Ring) Changed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.changed
}

// Prune drops groups with no members and no service config, matching
// the data-model lifecycle rule that a CensusGroup is deleted once it
// has no service rumors and no members.
func (r *Ring) Prune() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for sg, g := range r.groups {
		if len(g.Members) == 0 && g.ServiceConfig == nil {
			delete(r.groups, sg)
			delete(r.files, sg)
		}
	}
}

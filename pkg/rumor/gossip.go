package rumor

import "github.com/cuemby/sentinel/pkg/types"

// GossipSink is the boundary a real epidemic gossip engine (Butterfly
// or similar) would push inbound rumors through, and the boundary the
// Manager reads accumulated rumors back across for retransmission. The
// gossip engine itself is an external collaborator (spec non-goal);
// this interface only fixes the shape so one can be wired in without
// touching pkg/rumor or pkg/census.
type GossipSink interface {
	IngestMember(types.Member) bool
	IngestService(types.ServicePresence) bool
	IngestServiceConfig(types.ServiceConfigRumor) bool
	IngestServiceFile(types.ServiceFileRumor) bool
	IngestElection(types.ElectionRumor) bool
	IngestElectionUpdate(types.ElectionRumor) bool
	IngestDeparture(types.DepartureRumor) bool
}

// IngestMember implements GossipSink by inserting into the Members store.
func (s *Stores) IngestMember(m types.Member) bool { return s.Members.Insert(m) }

// IngestService implements GossipSink by inserting into the Services store.
func (s *Stores) IngestService(v types.ServicePresence) bool { return s.Services.Insert(v) }

// IngestServiceConfig implements GossipSink by inserting into the ServiceConfigs store.
func (s *Stores) IngestServiceConfig(v types.ServiceConfigRumor) bool {
	return s.ServiceConfigs.Insert(v)
}

// IngestServiceFile implements GossipSink by inserting into the ServiceFiles store.
func (s *Stores) IngestServiceFile(v types.ServiceFileRumor) bool {
	return s.ServiceFiles.Insert(v)
}

// IngestElection implements GossipSink by inserting into the Elections store.
func (s *Stores) IngestElection(v types.ElectionRumor) bool { return s.Elections.Insert(v) }

// IngestElectionUpdate implements GossipSink by inserting into the ElectionUpdates store.
func (s *Stores) IngestElectionUpdate(v types.ElectionRumor) bool {
	return s.ElectionUpdates.Insert(v)
}

// IngestDeparture implements GossipSink by inserting into the Departures store.
func (s *Stores) IngestDeparture(v types.DepartureRumor) bool { return s.Departures.Insert(v) }

var _ GossipSink = (*Stores)(nil)

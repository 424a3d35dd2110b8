package manager

import (
	"context"
	"strconv"
	"time"

	"github.com/cuemby/sentinel/pkg/census"
	"github.com/cuemby/sentinel/pkg/events"
	"github.com/cuemby/sentinel/pkg/hooks"
	"github.com/cuemby/sentinel/pkg/log"
	"github.com/cuemby/sentinel/pkg/service"
	"github.com/cuemby/sentinel/pkg/types"
)

// electionTimeout bounds how long a group may sit InProgress (or have
// never started one) before the run-loop starts a fresh election, per
// §4.G's "no Finished election and no InProgress election within the
// election timeout".
const electionTimeout = 10 * time.Second

// restartStalledElections implements §4.G's election restart policy:
// for every Leader-topology service whose census group has neither a
// Finished nor a recently-started InProgress election, insert a new
// ElectionRumor carrying this member's suitability score.
func (m *Manager) restartStalledElections(ctx context.Context) {
	now := time.Now()
	for sg, unit := range m.units {
		if unit.Spec.Topology != types.TopologyLeader {
			continue
		}

		group, hasGroup := m.ring.CensusGroupFor(sg)
		if hasGroup && group.ElectionStatus == types.ElectionFinished {
			continue
		}
		if hasGroup && group.ElectionStatus == types.ElectionInProgress {
			if last, ok := m.electionStarted[sg]; ok && now.Sub(last) < electionTimeout {
				continue
			}
		}

		m.startElection(ctx, sg, unit, group)
	}
}

func (m *Manager) startElection(ctx context.Context, sg types.ServiceGroup, unit *service.Unit, group *census.CensusGroup) {
	_ = group
	suitability := uint64(0)
	if unit.Hooks.Has(hooks.KindSuitability) {
		suitability = unit.Hooks.Run(ctx, hooks.KindSuitability).Suitability()
	}

	m.electionIncarnation[sg]++
	rumorVal := types.ElectionRumor{
		Group:       sg,
		MemberId:    m.memberID,
		Incarnation: m.electionIncarnation[sg],
		Term:        m.electionIncarnation[sg],
		Suitability: suitability,
		Status:      types.ElectionInProgress,
	}

	if m.stores.Elections.Insert(rumorVal) {
		m.electionStarted[sg] = time.Now()
		log.WithServiceGroup(sg).Info("election: started (suitability " + strconv.FormatUint(suitability, 10) + ")")
		m.broker.Publish(&events.Event{Type: events.EventElectionStarted, ServiceGroup: sg.String(), Message: string(m.memberID)})
	}
}

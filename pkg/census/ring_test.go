package census

import (
	"testing"

	"github.com/cuemby/sentinel/pkg/events"
	"github.com/cuemby/sentinel/pkg/rumor"
	"github.com/cuemby/sentinel/pkg/types"
	"github.com/stretchr/testify/require"
)

func openTestStores(t *testing.T) *rumor.Stores {
	t.Helper()
	db, err := rumor.OpenDatabase(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return rumor.NewStores(db)
}

func TestRing_NoChangesMeansNotChanged(t *testing.T) {
	stores := openTestStores(t)
	ring := NewRing()

	ring.UpdateFromRumors(stores.Services, stores.Elections, stores.ElectionUpdates,
		stores.Members, stores.ServiceConfigs, stores.ServiceFiles)
	require.False(t, ring.Changed(), "no rumors were ever inserted, so no counter has advanced")

	stores.Members.Insert(types.Member{Id: "m1", Incarnation: 1, Health: types.HealthAlive})
	ring.UpdateFromRumors(stores.Services, stores.Elections, stores.ElectionUpdates,
		stores.Members, stores.ServiceConfigs, stores.ServiceFiles)
	require.True(t, ring.Changed())

	ring.UpdateFromRumors(stores.Services, stores.Elections, stores.ElectionUpdates,
		stores.Members, stores.ServiceConfigs, stores.ServiceFiles)
	require.False(t, ring.Changed())
}

func TestRing_ProjectsMembership(t *testing.T) {
	stores := openTestStores(t)
	ring := NewRing()
	sg := types.NewServiceGroup("redis", "default", "", "")

	stores.Members.Insert(types.Member{Id: "m1", Incarnation: 1, Health: types.HealthAlive, Address: "10.0.0.1"})
	stores.Services.Insert(types.ServicePresence{Group: sg, MemberId: "m1", Incarnation: 1})

	ring.UpdateFromRumors(stores.Services, stores.Elections, stores.ElectionUpdates,
		stores.Members, stores.ServiceConfigs, stores.ServiceFiles)

	g, ok := ring.CensusGroupFor(sg)
	require.True(t, ok)
	require.Contains(t, g.Members, types.MemberId("m1"))
	require.Equal(t, "10.0.0.1", g.Members["m1"].Address)
	require.True(t, g.Members["m1"].Alive)
}

func TestRing_LeaderSetOnlyWhenElectionFinished(t *testing.T) {
	stores := openTestStores(t)
	ring := NewRing()
	sg := types.NewServiceGroup("redis", "default", "", "")

	stores.Services.Insert(types.ServicePresence{Group: sg, MemberId: "m1", Incarnation: 1})
	stores.Elections.Insert(types.ElectionRumor{Group: sg, MemberId: "m1", Incarnation: 1, Status: types.ElectionInProgress})

	ring.UpdateFromRumors(stores.Services, stores.Elections, stores.ElectionUpdates,
		stores.Members, stores.ServiceConfigs, stores.ServiceFiles)
	g, _ := ring.CensusGroupFor(sg)
	require.Nil(t, g.LeaderId)
	require.Equal(t, types.ElectionInProgress, g.ElectionStatus)

	stores.Elections.Insert(types.ElectionRumor{Group: sg, MemberId: "m1", Incarnation: 2, Status: types.ElectionFinished, Winner: "m1"})
	ring.UpdateFromRumors(stores.Services, stores.Elections, stores.ElectionUpdates,
		stores.Members, stores.ServiceConfigs, stores.ServiceFiles)

	g, _ = ring.CensusGroupFor(sg)
	require.NotNil(t, g.LeaderId)
	require.Equal(t, types.MemberId("m1"), *g.LeaderId)
	require.True(t, g.Members["m1"].Leader)
}

func TestRing_ChangedServiceFilesOnlyReflectsLatestTick(t *testing.T) {
	stores := openTestStores(t)
	ring := NewRing()
	sg := types.NewServiceGroup("redis", "default", "", "")

	stores.ServiceFiles.Insert(types.ServiceFileRumor{Group: sg, MemberId: "m1", Incarnation: 1, Filename: "a.conf", Body: []byte("one")})
	ring.UpdateFromRumors(stores.Services, stores.Elections, stores.ElectionUpdates,
		stores.Members, stores.ServiceConfigs, stores.ServiceFiles)
	g, _ := ring.CensusGroupFor(sg)
	require.Equal(t, []string{"a.conf"}, g.ChangedServiceFiles)

	// Re-running with no further file changes must not re-report a.conf,
	// since the file counter has not advanced.
	ring.UpdateFromRumors(stores.Services, stores.Elections, stores.ElectionUpdates,
		stores.Members, stores.ServiceConfigs, stores.ServiceFiles)
	g, _ = ring.CensusGroupFor(sg)
	require.Empty(t, g.ChangedServiceFiles)
}

func TestRing_PublishesMembershipAndElectionEvents(t *testing.T) {
	stores := openTestStores(t)
	ring := NewRing()
	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)
	ring.SetBroker(broker)
	sub := broker.Subscribe()

	sg := types.NewServiceGroup("redis", "default", "", "")
	stores.Services.Insert(types.ServicePresence{Group: sg, MemberId: "m1", Incarnation: 1})
	stores.Elections.Insert(types.ElectionRumor{Group: sg, MemberId: "m1", Incarnation: 1, Status: types.ElectionFinished, Winner: "m1"})
	ring.UpdateFromRumors(stores.Services, stores.Elections, stores.ElectionUpdates,
		stores.Members, stores.ServiceConfigs, stores.ServiceFiles)

	seen := map[events.EventType]bool{}
	for i := 0; i < 2; i++ {
		seen[(<-sub).Type] = true
	}
	require.True(t, seen[events.EventMemberJoined])
	require.True(t, seen[events.EventElectionFinished])
}

func TestRing_PruneDropsEmptyGroups(t *testing.T) {
	stores := openTestStores(t)
	ring := NewRing()
	sg := types.NewServiceGroup("redis", "default", "", "")

	stores.Services.Insert(types.ServicePresence{Group: sg, MemberId: "m1", Incarnation: 1})
	ring.UpdateFromRumors(stores.Services, stores.Elections, stores.ElectionUpdates,
		stores.Members, stores.ServiceConfigs, stores.ServiceFiles)
	_, ok := ring.CensusGroupFor(sg)
	require.True(t, ok)

	ring.groups[sg].Members = map[types.MemberId]types.CensusMember{}
	ring.Prune()

	_, ok = ring.CensusGroupFor(sg)
	require.False(t, ok)
}

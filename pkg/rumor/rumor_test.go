package rumor

import (
	"testing"

	"github.com/cuemby/sentinel/pkg/types"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	d, err := OpenDatabase(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestMemberStore_FirstInsertIsShareNew(t *testing.T) {
	s := NewMemberStore(openTestDB(t))
	m := types.Member{Id: "member-a", Incarnation: 1, Health: types.HealthAlive}

	bumped := s.Insert(m)

	require.True(t, bumped)
	require.Equal(t, uint64(1), s.GetUpdateCounter())
	require.True(t, s.Contains("member", "member-a"))
}

// insert(r); insert(r) must leave the store bit-identical and advance
// the counter by exactly one.
func TestMemberStore_DuplicateInsertIsIdempotent(t *testing.T) {
	s := NewMemberStore(openTestDB(t))
	m := types.Member{Id: "member-a", Incarnation: 1, Health: types.HealthAlive, Address: "10.0.0.1"}

	require.True(t, s.Insert(m))
	require.True(t, s.Insert(m))

	require.Equal(t, uint64(2), s.GetUpdateCounter())
	found := s.WithRumor("member", "member-a", func(got types.Member) {
		require.Equal(t, m, got)
	})
	require.True(t, found)
}

func TestMemberStore_LowerIncarnationIsDiscarded(t *testing.T) {
	s := NewMemberStore(openTestDB(t))
	require.True(t, s.Insert(types.Member{Id: "member-a", Incarnation: 5, Health: types.HealthAlive}))

	bumped := s.Insert(types.Member{Id: "member-a", Incarnation: 4, Health: types.HealthConfirmed})

	require.False(t, bumped)
	require.Equal(t, uint64(1), s.GetUpdateCounter())
	s.WithRumor("member", "member-a", func(got types.Member) {
		require.Equal(t, uint64(5), got.Incarnation)
	})
}

func TestMemberStore_HealthPriorityWinsAtEqualIncarnation(t *testing.T) {
	s := NewMemberStore(openTestDB(t))
	require.True(t, s.Insert(types.Member{Id: "member-a", Incarnation: 5, Health: types.HealthAlive}))

	bumped := s.Insert(types.Member{Id: "member-a", Incarnation: 5, Health: types.HealthConfirmed})

	require.True(t, bumped)
	s.WithRumor("member", "member-a", func(got types.Member) {
		require.Equal(t, types.HealthConfirmed, got.Health)
	})
}

func TestServiceStore_WithRumorsScansByKeyPrefix(t *testing.T) {
	s := NewServiceStore(openTestDB(t))
	sg := types.NewServiceGroup("redis", "default", "", "")
	other := types.NewServiceGroup("redis", "cache", "", "")

	require.True(t, s.Insert(types.ServicePresence{Group: sg, MemberId: "m1", Incarnation: 1}))
	require.True(t, s.Insert(types.ServicePresence{Group: sg, MemberId: "m2", Incarnation: 1}))
	require.True(t, s.Insert(types.ServicePresence{Group: other, MemberId: "m3", Incarnation: 1}))

	var seen []types.MemberId
	s.WithRumors(sg.String(), func(p types.ServicePresence) {
		seen = append(seen, p.MemberId)
	})

	require.ElementsMatch(t, []types.MemberId{"m1", "m2"}, seen)
}

func TestDepartureStore_IsOneShot(t *testing.T) {
	s := NewDepartureStore(openTestDB(t))
	id := types.MemberId("member-a")

	require.True(t, s.Insert(types.DepartureRumor{MemberId: id}))
	require.Equal(t, uint64(1), s.GetUpdateCounter())

	require.False(t, s.Insert(types.DepartureRumor{MemberId: id}))
	require.Equal(t, uint64(1), s.GetUpdateCounter())
}

func TestElectionStore_HigherSuitabilityWinsAtEqualIncarnation(t *testing.T) {
	s := NewElectionStore(openTestDB(t))
	sg := types.NewServiceGroup("redis", "default", "", "")

	require.True(t, s.Insert(types.ElectionRumor{Group: sg, MemberId: "m1", Incarnation: 1, Suitability: 10}))
	require.True(t, s.Insert(types.ElectionRumor{Group: sg, MemberId: "m1", Incarnation: 1, Suitability: 20}))

	s.WithRumor(sg.String(), "m1", func(got types.ElectionRumor) {
		require.Equal(t, uint64(20), got.Suitability)
	})
}

func TestElectionStore_LowerSuitabilityIsDiscarded(t *testing.T) {
	s := NewElectionStore(openTestDB(t))
	sg := types.NewServiceGroup("redis", "default", "", "")

	require.True(t, s.Insert(types.ElectionRumor{Group: sg, MemberId: "m1", Incarnation: 1, Suitability: 20}))

	bumped := s.Insert(types.ElectionRumor{Group: sg, MemberId: "m1", Incarnation: 1, Suitability: 10})

	require.False(t, bumped)
	require.Equal(t, uint64(1), s.GetUpdateCounter())
}

func TestStore_EncodeIsByteIdenticalAcrossReEncoding(t *testing.T) {
	s := NewMemberStore(openTestDB(t))
	m := types.Member{Id: "member-a", Incarnation: 1, Health: types.HealthAlive}
	require.True(t, s.Insert(m))

	first, ok := s.Encode("member", "member-a")
	require.True(t, ok)
	second, ok := s.Encode("member", "member-a")
	require.True(t, ok)

	require.Equal(t, first, second)
}

func TestStore_RemoveDeletesEntry(t *testing.T) {
	s := NewMemberStore(openTestDB(t))
	require.True(t, s.Insert(types.Member{Id: "member-a", Incarnation: 1}))

	s.Remove("member", "member-a")

	require.False(t, s.Contains("member", "member-a"))
}

func TestStore_ClearResetsCounterAndData(t *testing.T) {
	s := NewMemberStore(openTestDB(t))
	require.True(t, s.Insert(types.Member{Id: "member-a", Incarnation: 1}))

	prior := s.Clear()

	require.Equal(t, uint64(1), prior)
	require.Equal(t, uint64(0), s.GetUpdateCounter())
	require.False(t, s.Contains("member", "member-a"))
}

func TestNewStores_AllKindsIndependentlyCounted(t *testing.T) {
	stores := NewStores(openTestDB(t))
	sg := types.NewServiceGroup("redis", "default", "", "")

	stores.Members.Insert(types.Member{Id: "m1", Incarnation: 1})
	stores.Services.Insert(types.ServicePresence{Group: sg, MemberId: "m1", Incarnation: 1})

	require.Equal(t, uint64(1), stores.Members.GetUpdateCounter())
	require.Equal(t, uint64(1), stores.Services.GetUpdateCounter())
	require.Equal(t, uint64(0), stores.Elections.GetUpdateCounter())
}

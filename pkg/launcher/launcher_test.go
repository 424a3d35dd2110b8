package launcher

import (
	"net"
	"testing"
	"time"

	"github.com/cuemby/sentinel/pkg/superr"
	"github.com/stretchr/testify/require"
)

func newPair(t *testing.T) (*Client, *FakeLauncher) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	t.Cleanup(func() { clientConn.Close(); serverConn.Close() })
	fake := NewFakeLauncher(serverConn)
	client := NewClient(clientConn)
	return client, fake
}

func TestClient_RegisterSucceeds(t *testing.T) {
	client, fake := newPair(t)
	require.NoError(t, client.Register("/tmp/sup.sock"))
	require.Equal(t, []string{"/tmp/sup.sock"}, fake.Registrations())
}

func TestClient_SpawnReturnsPid(t *testing.T) {
	client, fake := newPair(t)
	pid, err := client.Spawn(SpawnRequest{ID: "svc", Binary: "/bin/svc", SvcUser: "hab"})
	require.NoError(t, err)
	require.True(t, fake.Spawned(pid))
}

func TestClient_RestartReplacesPid(t *testing.T) {
	client, _ := newPair(t)
	pid, err := client.Spawn(SpawnRequest{ID: "svc", Binary: "/bin/svc"})
	require.NoError(t, err)
	newPid, err := client.Restart(pid)
	require.NoError(t, err)
	require.NotEqual(t, pid, newPid)
}

func TestClient_TerminateReturnsExitCode(t *testing.T) {
	client, fake := newPair(t)
	pid, err := client.Spawn(SpawnRequest{ID: "svc", Binary: "/bin/svc"})
	require.NoError(t, err)
	code, err := client.Terminate(pid)
	require.NoError(t, err)
	require.Equal(t, 0, code)
	require.False(t, fake.Spawned(pid))
}

func TestClient_NetErrSurfacesAsLauncherError(t *testing.T) {
	client, fake := newPair(t)
	fake.FailNext(idSpawnReq)
	_, err := client.Spawn(SpawnRequest{ID: "svc", Binary: "/bin/svc"})
	require.Error(t, err)
	var launcherErr *superr.LauncherError
	require.ErrorAs(t, err, &launcherErr)
}

func TestClient_ShutdownStopsFutureCalls(t *testing.T) {
	client, fake := newPair(t)
	require.NoError(t, fake.SendShutdown())

	require.Eventually(t, client.IsStopping, time.Second, 5*time.Millisecond)

	_, err := client.Spawn(SpawnRequest{ID: "svc", Binary: "/bin/svc"})
	require.Error(t, err)
}

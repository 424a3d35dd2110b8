package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cuemby/sentinel/pkg/census"
	"github.com/cuemby/sentinel/pkg/config"
	"github.com/cuemby/sentinel/pkg/hooks"
	"github.com/cuemby/sentinel/pkg/launcher"
	"github.com/cuemby/sentinel/pkg/rumor"
	"github.com/cuemby/sentinel/pkg/types"
	"github.com/stretchr/testify/require"
)

type fakeLauncher struct {
	nextPid     int
	spawnCalls  int
	restartCalls int
	failSpawn   bool
}

func (f *fakeLauncher) Spawn(req launcher.SpawnRequest) (int, error) {
	f.spawnCalls++
	if f.failSpawn {
		return 0, os.ErrClosed
	}
	f.nextPid++
	return f.nextPid, nil
}

func (f *fakeLauncher) Restart(pid int) (int, error) {
	f.restartCalls++
	f.nextPid++
	return f.nextPid, nil
}

func newTestUnit(t *testing.T, sg types.ServiceGroup, spec types.ServiceSpec, withRunHook bool) (*Unit, *fakeLauncher) {
	t.Helper()
	dir := t.TempDir()
	hooksDir := filepath.Join(dir, "hooks")
	require.NoError(t, os.MkdirAll(hooksDir, 0750))
	if withRunHook {
		require.NoError(t, os.WriteFile(filepath.Join(hooksDir, string(hooks.KindRun)), []byte("#!/bin/sh\nexec sleep 30\n"), 0750))
	}

	pkg := types.Pkg{
		Ident:         types.PackageIdent{Origin: "core", Name: sg.Service, Version: "1.0.0", Release: "20260101000000"},
		InstallPath:   dir,
		SvcPath:       dir,
		SvcConfigPath: filepath.Join(dir, "config"),
		SvcFilesPath:  filepath.Join(dir, "files"),
		SvcHooksPath:  hooksDir,
	}

	cfg, err := config.NewCfg(pkg, "")
	require.NoError(t, err)
	hookRenderer, err := config.NewCfgRenderer(filepath.Join(dir, "no-hook-templates"))
	require.NoError(t, err)
	hookTable, err := hooks.LoadTable(pkg, hookRenderer, &config.RenderContext{ServiceGroup: sg.String(), Pkg: pkg})
	require.NoError(t, err)
	renderer, err := config.NewCfgRenderer(filepath.Join(dir, "templates"))
	require.NoError(t, err)

	fl := &fakeLauncher{}
	u := NewUnit(pkg, spec, sg, cfg, hookTable, renderer, fl, filepath.Join(dir, "run.pid"))
	return u, fl
}

func TestUnit_UninitializedWithNoBindsInitializesImmediately(t *testing.T) {
	sg := types.NewServiceGroup("web", "default", "", "")
	spec := types.ServiceSpec{DesiredState: types.DesiredUp, BindingMode: types.BindingRelaxed}
	u, _ := newTestUnit(t, sg, spec, true)

	changed, err := u.Tick(context.Background(), census.NewRing())
	require.NoError(t, err)
	require.True(t, changed)
	require.True(t, u.Initialized)
}

func TestUnit_StrictBindingBlocksUntilSatisfied(t *testing.T) {
	sg := types.NewServiceGroup("web", "default", "", "")
	backend := types.NewServiceGroup("backend", "default", "", "")
	spec := types.ServiceSpec{
		DesiredState: types.DesiredUp,
		BindingMode:  types.BindingStrict,
		Binds:        []types.Bind{{Name: "backend", ServiceGroup: backend}},
	}
	u, _ := newTestUnit(t, sg, spec, true)

	ring := census.NewRing()
	changed, err := u.Tick(context.Background(), ring)
	require.NoError(t, err)
	require.False(t, changed)
	require.False(t, u.Initialized)
}

func TestUnit_RelaxedBindingProceedsWithoutBind(t *testing.T) {
	sg := types.NewServiceGroup("web", "default", "", "")
	backend := types.NewServiceGroup("backend", "default", "", "")
	spec := types.ServiceSpec{
		DesiredState: types.DesiredUp,
		BindingMode:  types.BindingRelaxed,
		Binds:        []types.Bind{{Name: "backend", ServiceGroup: backend}},
	}
	u, _ := newTestUnit(t, sg, spec, true)

	changed, err := u.Tick(context.Background(), census.NewRing())
	require.NoError(t, err)
	require.True(t, changed)
	require.True(t, u.Initialized)
}

func TestUnit_StartsProcessOnceInitialized(t *testing.T) {
	sg := types.NewServiceGroup("web", "default", "", "")
	spec := types.ServiceSpec{DesiredState: types.DesiredUp, BindingMode: types.BindingRelaxed}
	u, fl := newTestUnit(t, sg, spec, true)

	_, err := u.Tick(context.Background(), census.NewRing())
	require.NoError(t, err)
	require.Equal(t, types.ProcessUp, u.Process)
	require.Equal(t, 1, fl.spawnCalls)
	require.NotZero(t, u.Pid)

	raw, err := os.ReadFile(u.PidFilePath)
	require.NoError(t, err)
	require.NotEmpty(t, raw)
}

func TestUnit_DesiredDownNeverStarts(t *testing.T) {
	sg := types.NewServiceGroup("web", "default", "", "")
	spec := types.ServiceSpec{DesiredState: types.DesiredDown, BindingMode: types.BindingRelaxed}
	u, fl := newTestUnit(t, sg, spec, true)

	_, err := u.Tick(context.Background(), census.NewRing())
	require.NoError(t, err)
	require.Equal(t, types.ProcessDown, u.Process)
	require.Zero(t, fl.spawnCalls)
}

func TestUnit_MissingRunHookNeverStarts(t *testing.T) {
	sg := types.NewServiceGroup("web", "default", "", "")
	spec := types.ServiceSpec{DesiredState: types.DesiredUp, BindingMode: types.BindingRelaxed}
	u, fl := newTestUnit(t, sg, spec, false)

	_, err := u.Tick(context.Background(), census.NewRing())
	require.NoError(t, err)
	require.Equal(t, types.ProcessDown, u.Process)
	require.Zero(t, fl.spawnCalls)
}

func TestUnit_WritesGossipedServiceFiles(t *testing.T) {
	dir := t.TempDir()
	dbDir := filepath.Join(dir, "db")
	require.NoError(t, os.MkdirAll(dbDir, 0750))
	db, err := rumor.OpenDatabase(dbDir)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	stores := rumor.NewStores(db)

	sg := types.NewServiceGroup("web", "default", "", "")
	spec := types.ServiceSpec{DesiredState: types.DesiredUp, BindingMode: types.BindingRelaxed}
	u, _ := newTestUnit(t, sg, spec, true)
	u.ServiceFiles = stores.ServiceFiles

	stores.Services.Insert(types.ServicePresence{Group: sg, MemberId: "member-a", Incarnation: 1})
	stores.ServiceFiles.Insert(types.ServiceFileRumor{
		Group: sg, MemberId: "member-a", Filename: "app.conf",
		Body: []byte("key=value"), Incarnation: 1,
	})

	ring := census.NewRing()
	ring.UpdateFromRumors(stores.Services, stores.Elections, stores.ElectionUpdates, stores.Members, stores.ServiceConfigs, stores.ServiceFiles)

	_, err = u.Tick(context.Background(), ring)
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(u.Pkg.SvcFilesPath, "app.conf"))
	require.NoError(t, err)
	require.Equal(t, "key=value", string(raw))
}

func TestUnit_LeaderTopologyGatesRunAndHealthCheckUntilElectionFinished(t *testing.T) {
	dir := t.TempDir()
	dbDir := filepath.Join(dir, "db")
	require.NoError(t, os.MkdirAll(dbDir, 0750))
	db, err := rumor.OpenDatabase(dbDir)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	stores := rumor.NewStores(db)

	sg := types.NewServiceGroup("web", "default", "", "")
	spec := types.ServiceSpec{DesiredState: types.DesiredUp, BindingMode: types.BindingRelaxed, Topology: types.TopologyLeader}
	u, fl := newTestUnit(t, sg, spec, true)

	stores.Elections.Insert(types.ElectionRumor{Group: sg, MemberId: "member-a", Incarnation: 1, Status: types.ElectionInProgress})

	ring := census.NewRing()
	ring.UpdateFromRumors(stores.Services, stores.Elections, stores.ElectionUpdates, stores.Members, stores.ServiceConfigs, stores.ServiceFiles)

	_, err = u.Tick(context.Background(), ring)
	require.NoError(t, err)
	require.Equal(t, types.ProcessDown, u.Process)
	require.Zero(t, fl.spawnCalls)
	require.True(t, u.LastHealthCheck.IsZero())

	stores.Elections.Insert(types.ElectionRumor{Group: sg, MemberId: "member-a", Incarnation: 2, Status: types.ElectionFinished, Winner: "member-a"})
	ring.UpdateFromRumors(stores.Services, stores.Elections, stores.ElectionUpdates, stores.Members, stores.ServiceConfigs, stores.ServiceFiles)

	_, err = u.Tick(context.Background(), ring)
	require.NoError(t, err)
	require.Equal(t, types.ProcessUp, u.Process)
	require.Equal(t, 1, fl.spawnCalls)

	require.False(t, u.LastHealthCheck.IsZero())
}

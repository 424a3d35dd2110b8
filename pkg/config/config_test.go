package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cuemby/sentinel/pkg/census"
	"github.com/cuemby/sentinel/pkg/types"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0640))
}

func TestCfg_RenderMergesTiersInPriorityOrder(t *testing.T) {
	dir := t.TempDir()
	pkgRoot := filepath.Join(dir, "pkg")
	svcPath := filepath.Join(dir, "svc")

	writeFile(t, filepath.Join(pkgRoot, "default.toml"), "port = 8080\nname = \"redis\"\n")
	writeFile(t, filepath.Join(svcPath, "user.toml"), "port = 9090\n")

	pkg := types.Pkg{Ident: types.PackageIdent{Name: "redis"}, InstallPath: pkgRoot, SvcPath: svcPath}
	cfg, err := NewCfg(pkg, "")
	require.NoError(t, err)

	rendered, err := cfg.Render()
	require.NoError(t, err)
	require.Equal(t, int64(9090), rendered["port"])
	require.Equal(t, "redis", rendered["name"])
}

func TestCfg_NestedTablesMergeRecursively(t *testing.T) {
	dir := t.TempDir()
	pkgRoot := filepath.Join(dir, "pkg")
	svcPath := filepath.Join(dir, "svc")

	writeFile(t, filepath.Join(pkgRoot, "default.toml"), "[network]\nport = 8080\nhost = \"0.0.0.0\"\n")
	writeFile(t, filepath.Join(svcPath, "user.toml"), "[network]\nport = 9090\n")

	pkg := types.Pkg{Ident: types.PackageIdent{Name: "redis"}, InstallPath: pkgRoot, SvcPath: svcPath}
	cfg, err := NewCfg(pkg, "")
	require.NoError(t, err)

	rendered, err := cfg.Render()
	require.NoError(t, err)
	network := rendered["network"].(Table)
	require.Equal(t, int64(9090), network["port"])
	require.Equal(t, "0.0.0.0", network["host"])
}

func TestCfg_GossipUpdateRespectsIncarnation(t *testing.T) {
	cfg := &Cfg{}
	sg := types.NewServiceGroup("redis", "default", "", "")
	group := &census.CensusGroup{
		ServiceConfig: &types.ServiceConfigRumor{Group: sg, Incarnation: 1, Toml: []byte("port = 1234\n")},
	}

	require.True(t, cfg.Update(group))
	require.Equal(t, uint64(1), cfg.GossipIncarnation)

	stale := &census.CensusGroup{
		ServiceConfig: &types.ServiceConfigRumor{Group: sg, Incarnation: 1, Toml: []byte("port = 9999\n")},
	}
	require.False(t, cfg.Update(stale))

	rendered, err := cfg.Render()
	require.NoError(t, err)
	require.Equal(t, int64(1234), rendered["port"])
}

func TestCfg_ToExportedWhitelistsByDottedPath(t *testing.T) {
	cfg := &Cfg{Default: Table{"network": Table{"port": int64(8080)}}}
	pkg := types.Pkg{Exports: map[string]string{"port": "network.port"}}

	exported, err := cfg.ToExported(pkg)
	require.NoError(t, err)
	require.Equal(t, int64(8080), exported["port"])
	require.NotContains(t, exported, "network")
}

func TestCfgRenderer_SkipsUnchangedFiles(t *testing.T) {
	templatesDir := t.TempDir()
	destDir := t.TempDir()
	writeFile(t, filepath.Join(templatesDir, "app.conf"), "port={{ .Cfg.port }}\n")

	r, err := NewCfgRenderer(templatesDir)
	require.NoError(t, err)

	ctx := &RenderContext{ServiceGroup: "redis.default", Cfg: Table{"port": int64(8080)}}

	changed, err := r.Compile(destDir, ctx)
	require.NoError(t, err)
	require.True(t, changed)

	info1, err := os.Stat(filepath.Join(destDir, "app.conf"))
	require.NoError(t, err)

	changed, err = r.Compile(destDir, ctx)
	require.NoError(t, err)
	require.False(t, changed)

	info2, err := os.Stat(filepath.Join(destDir, "app.conf"))
	require.NoError(t, err)
	require.Equal(t, info1.ModTime(), info2.ModTime())
}

func TestServiceSpec_SaveAndLoadRoundTrip(t *testing.T) {
	stateDir := t.TempDir()
	spec := &types.ServiceSpec{
		Ident:          types.PackageIdent{Origin: "core", Name: "redis", Version: "6.2.6", Release: "20220101000000"},
		Group:          "default",
		Topology:       types.TopologyLeader,
		UpdateStrategy: types.UpdateStrategyRolling,
		BindingMode:    types.BindingStrict,
		DesiredState:   types.DesiredUp,
		Binds: []types.Bind{
			{Name: "db", ServiceGroup: types.NewServiceGroup("database", "default", "", "")},
		},
	}

	require.NoError(t, SaveServiceSpec(stateDir, spec))

	loaded, err := LoadServiceSpec(SpecPath(stateDir, spec.Ident))
	require.NoError(t, err)
	require.Equal(t, spec.Ident, loaded.Ident)
	require.Equal(t, spec.Topology, loaded.Topology)
	require.Equal(t, spec.UpdateStrategy, loaded.UpdateStrategy)
	require.Len(t, loaded.Binds, 1)
	require.Equal(t, "db", loaded.Binds[0].Name)
	require.Equal(t, "database.default", loaded.Binds[0].ServiceGroup.String())
}

func TestLoadAllServiceSpecs_EmptyDirReturnsNil(t *testing.T) {
	stateDir := t.TempDir()
	specs, err := LoadAllServiceSpecs(stateDir)
	require.NoError(t, err)
	require.Nil(t, specs)
}

func TestParseFlags_Defaults(t *testing.T) {
	cfg, err := ParseFlags(nil)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9638", cfg.ListenGossip)
	require.Equal(t, "info", cfg.LogLevel)
}

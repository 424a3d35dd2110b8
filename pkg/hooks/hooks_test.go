package hooks

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cuemby/sentinel/pkg/config"
	"github.com/cuemby/sentinel/pkg/types"
	"github.com/stretchr/testify/require"
)

func writeHook(t *testing.T, dir string, kind Kind, script string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0750))
	path := filepath.Join(dir, string(kind))
	require.NoError(t, os.WriteFile(path, []byte(script), 0640))
}

func TestLoadTable_ForcesExecuteBit(t *testing.T) {
	dir := t.TempDir()
	hooksDir := filepath.Join(dir, "hooks")
	writeHook(t, hooksDir, KindHealthCheck, "#!/bin/sh\nexit 0\n")
	require.NoError(t, os.Chmod(filepath.Join(hooksDir, string(KindHealthCheck)), 0640))

	pkg := types.Pkg{SvcHooksPath: hooksDir, SvcPath: dir}
	table, err := LoadTable(pkg, nil, nil)
	require.NoError(t, err)

	require.True(t, table.Has(KindHealthCheck))
	path, _ := table.Path(KindHealthCheck)
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NotZero(t, info.Mode()&0100)
}

func TestTable_RunHealthCheckDecodesExitCode(t *testing.T) {
	dir := t.TempDir()
	hooksDir := filepath.Join(dir, "hooks")
	writeHook(t, hooksDir, KindHealthCheck, "#!/bin/sh\nexit 2\n")
	require.NoError(t, os.Chmod(filepath.Join(hooksDir, string(KindHealthCheck)), 0750))

	pkg := types.Pkg{SvcHooksPath: hooksDir, SvcPath: dir}
	table, err := LoadTable(pkg, nil, nil)
	require.NoError(t, err)

	result := table.Run(context.Background(), KindHealthCheck)
	require.Equal(t, types.HealthCritical, result.HealthResult())
}

func TestTable_RunSuitabilityParsesStdout(t *testing.T) {
	dir := t.TempDir()
	hooksDir := filepath.Join(dir, "hooks")
	writeHook(t, hooksDir, KindSuitability, "#!/bin/sh\necho 42\n")
	require.NoError(t, os.Chmod(filepath.Join(hooksDir, string(KindSuitability)), 0750))

	pkg := types.Pkg{SvcHooksPath: hooksDir, SvcPath: dir}
	table, err := LoadTable(pkg, nil, nil)
	require.NoError(t, err)

	result := table.Run(context.Background(), KindSuitability)
	require.Equal(t, uint64(42), result.Suitability())
}

func TestTable_MissingHookFallsBackToRunAtPackageRoot(t *testing.T) {
	dir := t.TempDir()
	hooksDir := filepath.Join(dir, "hooks")
	require.NoError(t, os.MkdirAll(hooksDir, 0750))
	runFile := filepath.Join(dir, "run")
	require.NoError(t, os.WriteFile(runFile, []byte("#!/bin/sh\nexec sleep 1\n"), 0640))

	pkg := types.Pkg{SvcHooksPath: hooksDir, SvcPath: dir, InstallPath: dir}
	table, err := LoadTable(pkg, nil, nil)
	require.NoError(t, err)

	require.True(t, table.Has(KindRun))
	path, _ := table.Path(KindRun)
	require.Equal(t, runFile, path)
}

func TestTable_MissingHookRunReturnsError(t *testing.T) {
	dir := t.TempDir()
	pkg := types.Pkg{SvcHooksPath: filepath.Join(dir, "hooks"), SvcPath: dir}
	table, err := LoadTable(pkg, nil, nil)
	require.NoError(t, err)

	result := table.Run(context.Background(), KindReload)
	require.False(t, result.Ok())
	require.Equal(t, types.HealthUnknown, result.HealthResult())
}

func TestLoadTable_CompilesHookTemplatesBeforeForcingExecuteBit(t *testing.T) {
	dir := t.TempDir()
	templatesDir := filepath.Join(dir, "hooks")
	hooksDir := filepath.Join(dir, "svc-hooks")
	writeHook(t, templatesDir, KindRun, "#!/bin/sh\nexec myapp --port={{ .Cfg.port }}\n")

	renderer, err := config.NewCfgRenderer(templatesDir)
	require.NoError(t, err)

	pkg := types.Pkg{SvcHooksPath: hooksDir, SvcPath: dir, InstallPath: dir}
	ctx := &config.RenderContext{ServiceGroup: "web.default", Cfg: config.Table{"port": int64(8080)}}
	table, err := LoadTable(pkg, renderer, ctx)
	require.NoError(t, err)

	require.True(t, table.Has(KindRun))
	path, _ := table.Path(KindRun)
	require.Equal(t, filepath.Join(hooksDir, string(KindRun)), path)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(body), "myapp --port=8080")

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NotZero(t, info.Mode()&0100)
}

package hooks

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/sentinel/pkg/config"
	"github.com/cuemby/sentinel/pkg/types"
)

// Kind names one of the eight recognized hooks.
type Kind string

const (
	KindInit         Kind = "init"
	KindRun          Kind = "run"
	KindPostRun      Kind = "post-run"
	KindReload       Kind = "reload"
	KindReconfigure  Kind = "reconfigure"
	KindFileUpdated  Kind = "file-updated"
	KindHealthCheck  Kind = "health-check"
	KindSuitability  Kind = "suitability"
)

// orderedKinds is the hook execution order within one service:
// init < run < post-run < health-check < {reload, reconfigure,
// file-updated}. Across services no ordering is promised, so this only
// constrains a single Table's own invocations.
var orderedKinds = []Kind{KindInit, KindRun, KindPostRun, KindHealthCheck, KindReload, KindReconfigure, KindFileUpdated}

// Result is the outcome of running a hook.
type Result struct {
	Kind     Kind
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	Err      error
}

// Ok reports whether the hook's process exited zero and launched
// cleanly.
func (r Result) Ok() bool {
	return r.Err == nil && r.ExitCode == 0
}

// HealthResult decodes a health-check hook's exit code per the
// {Ok=0, Warning=1, Critical=2, Unknown=3} contract. A non-hook error
// (e.g. the hook file is missing) decodes as Unknown.
func (r Result) HealthResult() types.HealthCheckResult {
	if r.Err != nil {
		return types.HealthUnknown
	}
	switch r.ExitCode {
	case 0:
		return types.HealthOk
	case 1:
		return types.HealthWarning
	case 2:
		return types.HealthCritical
	default:
		return types.HealthUnknown
	}
}

// Suitability parses a suitability hook's stdout as a non-negative
// integer tiebreaker. Any parse failure or non-zero exit yields 0, the
// lowest possible suitability.
func (r Result) Suitability() uint64 {
	if !r.Ok() {
		return 0
	}
	v, err := strconv.ParseUint(strings.TrimSpace(r.Stdout), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// Table holds the resolved, on-disk path of every hook a package ships,
// and runs them with the package's environment and declared service
// user/group.
type Table struct {
	paths map[Kind]string
	pkg   types.Pkg
}

// LoadTable compiles every hook template under pkg.InstallPath/hooks
// into pkg.SvcHooksPath through renderer (the same mechanism config
// files go through), then resolves every hook under pkg.SvcHooksPath,
// forcing the execute bit on each as required by the contract ("have
// their file permissions forced to the platform's execute bit on
// compile"). A package that ships no hook templates leaves renderer
// with nothing to compile, and LoadTable falls back to whatever is
// already present under pkg.SvcHooksPath. A hook that isn't present
// either way is simply absent from the table; callers decide the
// fallback (bare `run` file at package root, restart instead of
// reload, reload instead of reconfigure, process-liveness instead of
// health-check).
func LoadTable(pkg types.Pkg, renderer *config.CfgRenderer, ctx *config.RenderContext) (*Table, error) {
	if renderer != nil {
		if err := os.MkdirAll(pkg.SvcHooksPath, 0750); err != nil {
			return nil, fmt.Errorf("create hooks dir: %w", err)
		}
		if _, err := renderer.Compile(pkg.SvcHooksPath, ctx); err != nil {
			return nil, err
		}
	}

	t := &Table{paths: make(map[Kind]string), pkg: pkg}
	for _, kind := range append([]Kind{KindSuitability}, orderedKinds...) {
		path := filepath.Join(pkg.SvcHooksPath, string(kind))
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.Mode()&0111 == 0 {
			if err := os.Chmod(path, info.Mode()|0111); err != nil {
				return nil, fmt.Errorf("force execute bit on hook %s: %w", kind, err)
			}
		}
		t.paths[kind] = path
	}

	if _, ok := t.paths[KindRun]; !ok {
		runFile := filepath.Join(pkg.InstallPath, "run")
		if info, err := os.Stat(runFile); err == nil {
			if info.Mode()&0111 == 0 {
				_ = os.Chmod(runFile, info.Mode()|0111)
			}
			t.paths[KindRun] = runFile
		}
	}

	return t, nil
}

// Has reports whether kind is present in the table.
func (t *Table) Has(kind Kind) bool {
	_, ok := t.paths[kind]
	return ok
}

// Path returns the resolved path for kind, if present.
func (t *Table) Path(kind Kind) (string, bool) {
	p, ok := t.paths[kind]
	return p, ok
}

// Run executes the named hook against the package environment,
// returning a fully-populated Result even on failure so callers can
// inspect stdout/stderr/exit code.
func (t *Table) Run(ctx context.Context, kind Kind) Result {
	start := time.Now()
	path, ok := t.paths[kind]
	if !ok {
		return Result{Kind: kind, Err: fmt.Errorf("hook %s not present", kind), Duration: time.Since(start)}
	}

	cmd := exec.CommandContext(ctx, path)
	cmd.Env = envSlice(t.pkg.Env)
	cmd.Dir = t.pkg.SvcPath
	applyServiceIdentity(cmd, t.pkg.SvcUser, t.pkg.SvcGroup)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := Result{
		Kind:     kind,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		result.ExitCode = exitErr.ExitCode()
	} else if err != nil {
		result.Err = err
	}
	return result
}

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

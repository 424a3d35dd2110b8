package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cuemby/sentinel/pkg/census"
	"github.com/cuemby/sentinel/pkg/config"
	"github.com/cuemby/sentinel/pkg/events"
	"github.com/cuemby/sentinel/pkg/hooks"
	"github.com/cuemby/sentinel/pkg/launcher"
	"github.com/cuemby/sentinel/pkg/log"
	"github.com/cuemby/sentinel/pkg/rumor"
	"github.com/cuemby/sentinel/pkg/superr"
	"github.com/cuemby/sentinel/pkg/terminator"
	"github.com/cuemby/sentinel/pkg/types"
)

// healthCheckInterval matches spec §4.D's "every 30 seconds".
const healthCheckInterval = 30 * time.Second

// LauncherClient is the subset of *launcher.Client a Unit needs; tests
// substitute an in-process fake that counts calls and hands out pids.
type LauncherClient interface {
	Spawn(req launcher.SpawnRequest) (int, error)
	Restart(pid int) (int, error)
}

// Unit owns one running (or not-yet-running) service and drives it
// through the §4.D state machine, one tick at a time.
type Unit struct {
	Pkg          types.Pkg
	Spec         types.ServiceSpec
	ServiceGroup types.ServiceGroup
	Sys          config.SystemInfo

	Cfg          *config.Cfg
	Hooks        *hooks.Table
	Renderer     *config.CfgRenderer
	Launcher     LauncherClient
	ServiceFiles *rumor.Store[types.ServiceFileRumor]
	Broker       *events.Broker

	Initialized      bool
	Process          types.ProcessState
	Pid              int
	StateEntered     time.Time
	History          []types.StateTransition
	NeedsReload      bool
	NeedsReconfigure bool

	LastHealthCheck  time.Time
	LastHealthResult types.HealthCheckResult

	PidFilePath string
}

// NewUnit wires a Unit from its resolved package, spec, and ambient
// collaborators. The caller (pkg/manager) resolves Pkg/Cfg/Hooks/Renderer
// once per package version and reuses them across ticks.
func NewUnit(pkg types.Pkg, spec types.ServiceSpec, sg types.ServiceGroup, cfg *config.Cfg, hookTable *hooks.Table, renderer *config.CfgRenderer, lc LauncherClient, pidFilePath string) *Unit {
	return &Unit{
		Pkg: pkg, Spec: spec, ServiceGroup: sg,
		Cfg: cfg, Hooks: hookTable, Renderer: renderer, Launcher: lc,
		Process: types.ProcessDown, StateEntered: time.Now(), PidFilePath: pidFilePath,
	}
}

func (u *Unit) publish(typ events.EventType, message string) {
	if u.Broker == nil {
		return
	}
	u.Broker.Publish(&events.Event{Type: typ, ServiceGroup: u.ServiceGroup.String(), Message: message})
}

func (u *Unit) transitionProcess(state types.ProcessState) {
	u.Process = state
	u.StateEntered = time.Now()
	u.History = append(u.History, types.StateTransition{State: state, Entered: u.StateEntered})
}

// Tick drives the state machine forward once and reports whether
// anything observable changed, per §4.F's tick(census) -> changed contract.
func (u *Unit) Tick(ctx context.Context, ring *census.Ring) (bool, error) {
	logger := log.WithServiceGroup(u.ServiceGroup)
	changed := false

	group, hasGroup := ring.CensusGroupFor(u.ServiceGroup)

	if !u.Initialized {
		if !u.bindsSatisfied(ring) {
			return false, nil
		}
		if u.Hooks.Has(hooks.KindInit) {
			result := u.Hooks.Run(ctx, hooks.KindInit)
			if !result.Ok() {
				return false, nil
			}
		}
		u.Initialized = true
		changed = true
	}

	if hasGroup {
		cfgChanged := u.Cfg.Update(group)
		if cfgChanged {
			if u.Hooks.Has(hooks.KindReconfigure) {
				u.NeedsReconfigure = true
			} else {
				u.NeedsReload = true
			}
			changed = true
		}
	}

	rendered, err := u.Cfg.Render()
	if err != nil {
		return changed, err
	}
	renderCtx := &config.RenderContext{
		ServiceGroup: u.ServiceGroup.String(),
		Sys:          u.Sys,
		Cfg:          rendered,
		Pkg:          u.Pkg,
		Binds:        u.resolveBinds(ring),
	}
	templatesChanged, err := u.Renderer.Compile(u.Pkg.SvcConfigPath, renderCtx)
	if err != nil {
		return changed, err
	}
	if templatesChanged {
		u.NeedsReload = true
		changed = true
	}

	if hasGroup && len(group.ChangedServiceFiles) > 0 {
		if err := u.writeServiceFiles(group); err != nil {
			return changed, err
		}
		if u.Initialized && u.Hooks.Has(hooks.KindFileUpdated) {
			u.Hooks.Run(ctx, hooks.KindFileUpdated)
		}
		changed = true
	}

	if stateChanged, err := u.runSchedule(ctx, logger, group, hasGroup); err != nil {
		return changed, err
	} else if stateChanged {
		changed = true
	}

	if u.runHealthCheck(ctx, group, hasGroup) {
		changed = true
	}

	return changed, nil
}

// bindsSatisfied applies §4.D's binding-mode rule: Strict requires
// every declared bind to resolve to a group with a live member;
// Relaxed logs and proceeds regardless.
func (u *Unit) bindsSatisfied(ring *census.Ring) bool {
	if len(u.Spec.Binds) == 0 {
		return true
	}
	var unsatisfied []string
	for _, b := range u.Spec.Binds {
		target, ok := ring.CensusGroupFor(b.ServiceGroup)
		if !ok || !hasLiveMember(target) {
			unsatisfied = append(unsatisfied, b.Name)
		}
	}
	if len(unsatisfied) == 0 {
		return true
	}
	if u.Spec.BindingMode == types.BindingRelaxed {
		log.WithServiceGroup(u.ServiceGroup).Warn("missing binds: " + joinNames(unsatisfied) + ", proceeding (relaxed)")
		return true
	}
	return false
}

func hasLiveMember(g *census.CensusGroup) bool {
	for _, m := range g.Members {
		if m.Alive {
			return true
		}
	}
	return false
}

func joinNames(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}

func (u *Unit) resolveBinds(ring *census.Ring) map[string]config.BindContext {
	out := make(map[string]config.BindContext, len(u.Spec.Binds))
	for _, b := range u.Spec.Binds {
		members := []types.CensusMember{}
		if g, ok := ring.CensusGroupFor(b.ServiceGroup); ok {
			for _, m := range g.Members {
				members = append(members, m)
			}
		}
		out[b.Name] = config.BindContext{
			Name:    b.Name,
			Group:   b.ServiceGroup.String(),
			Members: members,
		}
	}
	return out
}

func (u *Unit) writeServiceFiles(group *census.CensusGroup) error {
	if err := os.MkdirAll(u.Pkg.SvcFilesPath, 0750); err != nil {
		return err
	}
	for _, name := range group.ChangedServiceFiles {
		path := filepath.Join(u.Pkg.SvcFilesPath, name)
		if u.ServiceFiles == nil {
			continue
		}
		var latest types.ServiceFileRumor
		found := false
		u.ServiceFiles.WithRumors(u.ServiceGroup.String()+"/"+name, func(r types.ServiceFileRumor) {
			latest = r
			found = true
		})
		if !found {
			continue
		}
		if err := os.WriteFile(path, latest.Body, 0640); err != nil {
			return err
		}
	}
	return nil
}

// leaderElectionGateOpen applies §4.D's leader-topology gate: a service
// with topology=Leader runs neither `run` nor `health-check` while its
// group's election is anything but Finished, so `run` executes exactly
// once and only after a leader has been decided. Standalone services
// are never gated.
func (u *Unit) leaderElectionGateOpen(group *census.CensusGroup, hasGroup bool) bool {
	if u.Spec.Topology != types.TopologyLeader {
		return true
	}
	return hasGroup && group.ElectionStatus == types.ElectionFinished
}

// runSchedule executes the run/reload/reconfigure/restart hook
// schedule per §4.D's transition rules.
func (u *Unit) runSchedule(ctx context.Context, logger log.ServiceLogger, group *census.CensusGroup, hasGroup bool) (bool, error) {
	if !u.Initialized {
		return false, nil
	}

	if u.Process == types.ProcessUp && !terminator.ProcessAlive(u.Pid) {
		u.transitionProcess(types.ProcessDown)
		u.publish(events.EventServiceStopped, "process exited")
		return true, nil
	}

	if u.Process == types.ProcessDown {
		if u.Spec.DesiredState != types.DesiredUp {
			return false, nil
		}
		if !u.leaderElectionGateOpen(group, hasGroup) {
			return false, nil
		}
		return u.start(ctx, logger)
	}

	// Process is up: apply reconfigure/reload in priority order, per
	// §5's total order init < run < post-run < health-check <
	// {reload, reconfigure, file-updated}.
	if u.NeedsReconfigure {
		if u.Hooks.Has(hooks.KindReconfigure) {
			u.Hooks.Run(ctx, hooks.KindReconfigure)
		} else {
			u.NeedsReload = true
		}
		u.NeedsReconfigure = false
		return true, nil
	}
	if u.NeedsReload {
		changed, err := u.reload(ctx)
		u.NeedsReload = false
		return changed, err
	}
	return false, nil
}

func (u *Unit) start(ctx context.Context, logger log.ServiceLogger) (bool, error) {
	binary, ok := u.Hooks.Path(hooks.KindRun)
	if !ok {
		return false, nil
	}
	pid, err := u.Launcher.Spawn(launcher.SpawnRequest{
		ID: u.ServiceGroup.String(), Binary: binary,
		SvcUser: u.Pkg.SvcUser, SvcGroup: u.Pkg.SvcGroup, Env: u.Pkg.Env,
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", superr.ErrLauncher, err)
	}
	u.Pid = pid
	u.transitionProcess(types.ProcessUp)
	if err := u.writePidFile(); err != nil {
		return true, err
	}
	if u.Hooks.Has(hooks.KindPostRun) {
		go u.Hooks.Run(context.Background(), hooks.KindPostRun)
	}
	logger.Info("started")
	u.publish(events.EventServiceStarted, "started")
	return true, nil
}

// reload replaces a restart when the reload hook exists; otherwise it
// restarts the process via the Launcher, per §4.D.
func (u *Unit) reload(ctx context.Context) (bool, error) {
	if u.Hooks.Has(hooks.KindReload) {
		u.Hooks.Run(ctx, hooks.KindReload)
		u.publish(events.EventServiceReloaded, "reloaded")
		return true, nil
	}
	changed, err := u.restart()
	if err == nil {
		u.publish(events.EventServiceReloaded, "restarted (no reload hook)")
	}
	return changed, err
}

// restart issues Launcher Restart; on success the new PID replaces the
// old and the PID file is rewritten, on failure state drops to Down,
// per §4.F's restart policy.
func (u *Unit) restart() (bool, error) {
	newPid, err := u.Launcher.Restart(u.Pid)
	if err != nil {
		u.transitionProcess(types.ProcessDown)
		return true, fmt.Errorf("%w: %v", superr.ErrLauncher, err)
	}
	u.Pid = newPid
	u.transitionProcess(types.ProcessUp)
	if err := u.writePidFile(); err != nil {
		return true, err
	}
	return true, nil
}

func (u *Unit) writePidFile() error {
	if u.PidFilePath == "" {
		return nil
	}
	return os.WriteFile(u.PidFilePath, []byte(strconv.Itoa(u.Pid)), 0640)
}

func (u *Unit) runHealthCheck(ctx context.Context, group *census.CensusGroup, hasGroup bool) bool {
	if u.Process != types.ProcessUp {
		return false
	}
	if !u.leaderElectionGateOpen(group, hasGroup) {
		return false
	}
	if !u.LastHealthCheck.IsZero() && time.Since(u.LastHealthCheck) < healthCheckInterval {
		return false
	}
	u.LastHealthCheck = time.Now()
	if u.Hooks.Has(hooks.KindHealthCheck) {
		u.LastHealthResult = u.Hooks.Run(ctx, hooks.KindHealthCheck).HealthResult()
	} else if terminator.ProcessAlive(u.Pid) {
		u.LastHealthResult = types.HealthOk
	} else {
		u.LastHealthResult = types.HealthCritical
	}
	u.publish(events.EventServiceHealth, u.LastHealthResult.String())
	return true
}

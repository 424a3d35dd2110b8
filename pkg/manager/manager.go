package manager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/cuemby/sentinel/pkg/census"
	"github.com/cuemby/sentinel/pkg/config"
	"github.com/cuemby/sentinel/pkg/events"
	"github.com/cuemby/sentinel/pkg/hooks"
	"github.com/cuemby/sentinel/pkg/launcher"
	"github.com/cuemby/sentinel/pkg/log"
	"github.com/cuemby/sentinel/pkg/rumor"
	"github.com/cuemby/sentinel/pkg/service"
	"github.com/cuemby/sentinel/pkg/superr"
	"github.com/cuemby/sentinel/pkg/terminator"
	"github.com/cuemby/sentinel/pkg/types"
)

// defaultTickInterval matches §4.G's "one iteration ≈ 1 s".
const defaultTickInterval = time.Second

// Manager is the supervisor's singleton run-loop: it owns the rumor
// database, the census ring, and the set of running service units, and
// drives them forward one cooperative tick at a time.
type Manager struct {
	stateDir string
	memberID types.MemberId
	sys      config.SystemInfo

	db       *rumor.Database
	stores   *rumor.Stores
	ring     *census.Ring
	units    map[types.ServiceGroup]*service.Unit
	launcher *launcher.Client
	broker   *events.Broker
	ownsBroker bool

	lock  *processLock
	peers *peerWatcher

	controlTokens *ControlTokenManager

	packages    config.PackageSource
	selfIdent   types.PackageIdent
	selfChannel string

	lastSelfUpdateCheck time.Time
	electionIncarnation map[types.ServiceGroup]uint64
	electionStarted     map[types.ServiceGroup]time.Time

	tickInterval time.Duration
	stopping     atomic.Bool
}

// Config holds the collaborators and startup parameters for NewManager.
type Config struct {
	StateDir      string
	MemberID      string
	Sys           config.SystemInfo
	Launcher      *launcher.Client
	Broker        *events.Broker
	PeerWatchFile string
	Packages      config.PackageSource
	SelfIdent     types.PackageIdent
	SelfChannel   string
	TickInterval  time.Duration
}

// NewManager acquires the process lock, opens the rumor database, and
// wires the census ring and peer-file watcher, per §4.G and §6.
func NewManager(cfg Config) (*Manager, error) {
	lock, err := acquireProcessLock(cfg.StateDir)
	if err != nil {
		return nil, err
	}

	memberID, err := loadOrCreateMemberID(cfg.StateDir, cfg.MemberID)
	if err != nil {
		_ = lock.release()
		return nil, err
	}

	if err := cleanTransientHealthFiles(cfg.StateDir); err != nil {
		_ = lock.release()
		return nil, err
	}

	db, err := rumor.OpenDatabase(cfg.StateDir)
	if err != nil {
		_ = lock.release()
		return nil, err
	}

	peers, err := newPeerWatcher(cfg.PeerWatchFile)
	if err != nil {
		_ = db.Close()
		_ = lock.release()
		return nil, fmt.Errorf("peer watch file: %w", err)
	}

	tick := cfg.TickInterval
	if tick <= 0 {
		tick = defaultTickInterval
	}

	broker := cfg.Broker
	ownsBroker := false
	if broker == nil {
		broker = events.NewBroker()
		broker.Start()
		ownsBroker = true
	}

	ring := census.NewRing()
	ring.SetBroker(broker)

	return &Manager{
		stateDir:            cfg.StateDir,
		memberID:            memberID,
		sys:                 cfg.Sys,
		db:                  db,
		stores:              rumor.NewStores(db),
		ring:                ring,
		units:               make(map[types.ServiceGroup]*service.Unit),
		launcher:            cfg.Launcher,
		broker:              broker,
		ownsBroker:          ownsBroker,
		lock:                lock,
		peers:               peers,
		controlTokens:       NewControlTokenManager(),
		packages:            cfg.Packages,
		selfIdent:           cfg.SelfIdent,
		selfChannel:         cfg.SelfChannel,
		electionIncarnation: make(map[types.ServiceGroup]uint64),
		electionStarted:     make(map[types.ServiceGroup]time.Time),
		tickInterval:        tick,
	}, nil
}

// MemberID returns this supervisor's stable member id.
func (m *Manager) MemberID() types.MemberId { return m.memberID }

// IssueControlToken mints a bearer token for the control gateway
// collaborator named in §6, valid for duration.
func (m *Manager) IssueControlToken(duration time.Duration) (*ControlToken, error) {
	return m.controlTokens.Issue(duration)
}

// Authorize validates a control-gateway bearer token, per §7's
// NoAuthTokenError.
func (m *Manager) Authorize(token string) error {
	return m.controlTokens.Authorize(token)
}

// Stores exposes the rumor stores so an external gossip engine
// (pkg/rumor.GossipSink) can feed inbound rumors in, and a
// retransmission loop can read accumulated rumors back out.
func (m *Manager) Stores() *rumor.Stores { return m.stores }

// AddService registers a service under the run-loop, resolving its
// configuration layer, hook table, and template renderer once. If
// spec.Composite is set, sg is also materialized into that composite's
// membership file under {state}/composites/, per the DATA MODEL
// expansion.
func (m *Manager) AddService(pkg types.Pkg, spec types.ServiceSpec, environment, organization string) (types.ServiceGroup, error) {
	sg := spec.ServiceGroupOf(environment, organization)

	cfg, err := config.NewCfg(pkg, "")
	if err != nil {
		return sg, err
	}

	hookRenderer, err := config.NewCfgRenderer(filepath.Join(pkg.InstallPath, "hooks"))
	if err != nil {
		return sg, err
	}
	rendered, err := cfg.Render()
	if err != nil {
		return sg, err
	}
	hookTable, err := hooks.LoadTable(pkg, hookRenderer, &config.RenderContext{
		ServiceGroup: sg.String(), Sys: m.sys, Cfg: rendered, Pkg: pkg,
	})
	if err != nil {
		return sg, err
	}

	renderer, err := config.NewCfgRenderer(filepath.Join(pkg.InstallPath, "templates"))
	if err != nil {
		return sg, err
	}

	pidFilePath := filepath.Join(pkg.SvcPath, "PIDFILE")
	unit := service.NewUnit(pkg, spec, sg, cfg, hookTable, renderer, m.launcher, pidFilePath)
	unit.Sys = m.sys
	unit.ServiceFiles = m.stores.ServiceFiles
	unit.Broker = m.broker

	m.units[sg] = unit

	if spec.Composite != nil {
		if err := recordComposite(m.stateDir, *spec.Composite, sg); err != nil {
			return sg, err
		}
	}

	m.broker.Publish(&events.Event{Type: events.EventServiceInitialized, ServiceGroup: sg.String(), Message: "registered"})
	return sg, nil
}

// UnitFor returns the live Unit for a registered service group, for
// callers (tests, the HTTP gateway collaborator) inspecting state
// between ticks.
func (m *Manager) UnitFor(sg types.ServiceGroup) (*service.Unit, bool) {
	u, ok := m.units[sg]
	return u, ok
}

// Stop requests a graceful shutdown: the next tick departs and the run
// loop returns, per §4.G's is_stopping() check.
func (m *Manager) Stop() { m.stopping.Store(true) }

// Run drives the cooperative run-loop described in §4.G until the
// context is canceled, the supervisor is asked to stop, a departure
// rumor for this member is observed, or a newer supervisor package is
// found.
func (m *Manager) Run(ctx context.Context) error {
	defer m.shutdown()

	ticker := time.NewTicker(m.tickInterval)
	defer ticker.Stop()

	for {
		if m.stopping.Load() {
			m.depart()
			return nil
		}
		if m.isDeparted() {
			m.depart()
			return superr.ErrDeparted
		}
		if _, found := m.checkSelfUpdate(); found {
			log.WithComponent("manager").Info().Msg("newer supervisor package found, departing for relaunch")
			m.depart()
			return nil
		}

		m.peers.pollNewPeers()
		m.restartStalledElections(ctx)

		m.ring.UpdateFromRumors(
			m.stores.Services,
			m.stores.Elections,
			m.stores.ElectionUpdates,
			m.stores.Members,
			m.stores.ServiceConfigs,
			m.stores.ServiceFiles,
		)

		if m.ring.Changed() {
			for sg, unit := range m.units {
				if _, err := unit.Tick(ctx, m.ring); err != nil {
					log.WithServiceGroup(sg).Error(err, "tick failed")
				}
			}
			m.ring.Prune()
		}

		select {
		case <-ctx.Done():
			m.depart()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// isDeparted reports whether a departure rumor for this member has been
// observed, e.g. a peer gossiped a forced departure.
func (m *Manager) isDeparted() bool {
	return m.stores.Departures.Contains("departure", m.memberID)
}

// depart inserts this member's own departure rumor (idempotent: the
// departure store's merge rule refuses every write after the first)
// and terminates every still-running service, each on its own
// Terminator worker goroutine per §5's concurrency model, waiting for
// all of them before returning.
func (m *Manager) depart() {
	m.stores.Departures.Insert(types.DepartureRumor{MemberId: m.memberID})

	done := make(chan struct{})
	pending := 0
	for sg, unit := range m.units {
		if unit.Process != types.ProcessUp {
			continue
		}
		pending++
		go func(sg types.ServiceGroup, pid int, pidPath string) {
			terminator.Run(context.Background(), terminator.Config{
				Pid:          pid,
				ServiceGroup: sg,
				PidFilePath:  pidPath,
			})
			done <- struct{}{}
		}(sg, unit.Pid, unit.PidFilePath)
	}
	for i := 0; i < pending; i++ {
		<-done
	}
}

// cleanTransientHealthFiles removes leftover "*.health" files under
// {state}/data/, per §6's "transient *.health files (cleaned on
// boot)". A missing data directory is not an error; it is created by
// rumor.OpenDatabase immediately afterward.
func cleanTransientHealthFiles(stateDir string) error {
	matches, err := filepath.Glob(filepath.Join(stateDir, "data", "*.health"))
	if err != nil {
		return fmt.Errorf("%w: %v", superr.ErrBadDataPath, err)
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: %v", superr.ErrBadDataPath, err)
		}
	}
	return nil
}

// shutdown closes the peer watcher, the broker (when this Manager
// created it) and the rumor database, then releases the process lock.
func (m *Manager) shutdown() {
	_ = m.peers.close()
	if m.ownsBroker {
		m.broker.Stop()
	}
	_ = m.db.Close()
	_ = m.lock.release()
}

// Command sentinel is the supervisor process: it parses its own
// startup flags, wires the Manager run-loop to a Launcher connection
// inherited from the privileged parent process, loads any service
// specs already recorded in its state directory, and runs until asked
// to stop.
package main

import (
	"context"
	"fmt"
	"errors"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/cuemby/sentinel/pkg/config"
	"github.com/cuemby/sentinel/pkg/events"
	"github.com/cuemby/sentinel/pkg/launcher"
	"github.com/cuemby/sentinel/pkg/log"
	"github.com/cuemby/sentinel/pkg/manager"
	"github.com/cuemby/sentinel/pkg/superr"
	"github.com/cuemby/sentinel/pkg/types"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.ParseFlags(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sentinel: %v\n", err)
		return 1
	}

	log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.JSONLogs})
	logger := log.WithComponent("main")

	if err := os.MkdirAll(cfg.StateDir, 0750); err != nil {
		logger.Error().Err(err).Msg("create state directory")
		return 1
	}

	lc, closeLauncher, err := connectLauncher()
	if err != nil {
		logger.Error().Err(err).Msg("connect to launcher")
		return 1
	}
	defer closeLauncher()

	sys, err := localSystemInfo(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("determine system info")
		return 1
	}

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	packages := config.NewFilesystemPackageSource(filepath.Join(cfg.StateDir, "pkgs-root"))

	mgr, err := manager.NewManager(manager.Config{
		StateDir:      cfg.StateDir,
		MemberID:      cfg.MemberID,
		Sys:           sys,
		Launcher:      lc,
		Broker:        broker,
		PeerWatchFile: cfg.PeerWatchFile,
		Packages:      packages,
		SelfIdent:     types.PackageIdent{Origin: "core", Name: "sentinel"},
		SelfChannel:   "stable",
	})
	if err != nil {
		logger.Error().Err(err).Msg("create manager")
		return 1
	}
	logger.Info().Str("member_id", string(mgr.MemberID())).Msg("supervisor starting")

	if err := loadPersistedServices(mgr, packages, cfg.StateDir); err != nil {
		logger.Error().Err(err).Msg("load persisted service specs")
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("signal received, stopping")
		mgr.Stop()
	}()

	err = mgr.Run(ctx)
	switch {
	case err == nil:
		logger.Info().Msg("supervisor stopped")
		return 0
	case errors.Is(err, context.Canceled):
		return 0
	default:
		logger.Error().Err(err).Msg("supervisor exited")
		if errors.Is(err, superr.ErrDeparted) {
			return 0
		}
		return 1
	}
}

// connectLauncher wraps the inherited IPC channel to the privileged
// launcher process. Habitat's own launcher talks to the supervisor
// over an inherited pipe set up at fork time; this module has no
// zeromq dependency available, so the channel here is the
// length-prefixed framed connection pkg/launcher already speaks,
// carried over the file descriptor the launcher leaves open at a
// fixed number (3) when it execs the supervisor.
func connectLauncher() (*launcher.Client, func(), error) {
	const launcherFd = 3
	f := os.NewFile(uintptr(launcherFd), "launcher")
	if f == nil {
		return nil, nil, fmt.Errorf("no launcher channel inherited on fd %d", launcherFd)
	}
	conn, err := net.FileConn(f)
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("%w: %v", superr.ErrLauncher, err)
	}
	_ = f.Close()
	client := launcher.NewClient(conn)
	return client, func() { client.Close() }, nil
}

func localSystemInfo(cfg *config.SupervisorConfig) (config.SystemInfo, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return config.SystemInfo{}, err
	}
	ip := localIP()
	_, gossipPortStr, err := net.SplitHostPort(cfg.ListenGossip)
	if err != nil {
		return config.SystemInfo{}, fmt.Errorf("parse listen-gossip: %w", err)
	}
	gossipPort, err := strconv.Atoi(gossipPortStr)
	if err != nil {
		return config.SystemInfo{}, fmt.Errorf("parse listen-gossip port: %w", err)
	}

	return config.SystemInfo{
		IP:         ip,
		Hostname:   hostname,
		SwimPort:   gossipPort,
		GossipPort: gossipPort,
	}, nil
}

func localIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() || ipNet.IP.To4() == nil {
			continue
		}
		return ipNet.IP.String()
	}
	return "127.0.0.1"
}

func loadPersistedServices(mgr *manager.Manager, packages *config.FilesystemPackageSource, stateDir string) error {
	specs, err := config.LoadAllServiceSpecs(stateDir)
	if err != nil {
		return err
	}
	for _, spec := range specs {
		pkg, err := packages.Resolve(spec.Ident)
		if err != nil {
			log.WithComponent("main").Warn().Err(err).Str("pkg", spec.Ident.String()).Msg("skipping unresolved persisted service")
			continue
		}
		if _, err := mgr.AddService(pkg, *spec, "", ""); err != nil {
			return fmt.Errorf("add service %s: %w", spec.Ident.String(), err)
		}
	}
	return nil
}

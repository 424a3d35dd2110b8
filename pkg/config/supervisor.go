package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
)

// SupervisorConfig is the supervisor process's own startup
// configuration, parsed from command-line flags. The CLI argument
// parser itself (subcommands, shell completion, help text generation)
// is an out-of-scope external collaborator per the design's
// non-goals, so this wraps the standard library's flag package rather
// than adopting a full command-tree library — there is nothing here
// beyond a flat list of process options to parse.
type SupervisorConfig struct {
	StateDir      string
	MemberID      string
	ListenGossip  string
	ListenHTTP    string
	PeerWatchFile string
	LogLevel      string
	JSONLogs      bool
}

// ParseFlags parses args (typically os.Args[1:]) into a
// SupervisorConfig, applying the same defaults the original supervisor
// uses for an unconfigured standalone run.
func ParseFlags(args []string) (*SupervisorConfig, error) {
	fs := flag.NewFlagSet("sentinel", flag.ContinueOnError)

	home, _ := os.UserHomeDir()
	defaultState := filepath.Join(home, ".sentinel", "sup")

	cfg := &SupervisorConfig{}
	fs.StringVar(&cfg.StateDir, "state-dir", defaultState, "supervisor state directory")
	fs.StringVar(&cfg.MemberID, "member-id", "", "stable member id; generated on first run if empty")
	fs.StringVar(&cfg.ListenGossip, "listen-gossip", "0.0.0.0:9638", "gossip listen address")
	fs.StringVar(&cfg.ListenHTTP, "listen-http", "0.0.0.0:9631", "read-only HTTP gateway listen address")
	fs.StringVar(&cfg.PeerWatchFile, "peer-watch-file", "", "file to watch for peer list updates")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "log level: debug, info, warn, error")
	fs.BoolVar(&cfg.JSONLogs, "json-logs", false, "emit logs as JSON instead of console-formatted")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}
	return cfg, nil
}

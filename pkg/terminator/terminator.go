package terminator

import (
	"context"
	"os"
	"time"

	"github.com/cuemby/sentinel/pkg/log"
	"github.com/cuemby/sentinel/pkg/types"
)

// Outcome reports how a terminated process actually went down, per
// §4.H's {AlreadyExited, GracefulTermination, Killed} contract.
type Outcome string

const (
	AlreadyExited       Outcome = "AlreadyExited"
	GracefulTermination Outcome = "GracefulTermination"
	Killed              Outcome = "Killed"
)

// defaultGraceWindow is the poll window between the graceful signal
// and the forceful kill, per §4.H.
const defaultGraceWindow = 8 * time.Second

const pollInterval = 100 * time.Millisecond

// Config describes one shutdown request.
type Config struct {
	Pid           int
	ServiceGroup  types.ServiceGroup
	PidFilePath   string
	GraceWindow   time.Duration // zero means defaultGraceWindow
	WalkDescendants bool        // Open Question 1: off by default, pgid kill is primary
}

// Run signals pid's process group and blocks until pid itself has
// exited, escalating to a forceful kill of the group if pid outlives the
// grace window (or as soon as ctx is canceled), then removes the pid
// file. Callers run it on its own goroutine, one per shutdown.
func Run(ctx context.Context, cfg Config) Outcome {
	logger := log.WithServiceGroup(cfg.ServiceGroup)
	grace := cfg.GraceWindow
	if grace <= 0 {
		grace = defaultGraceWindow
	}

	if !ProcessAlive(cfg.Pid) {
		logger.Info("Already exited")
		cleanupPidFile(cfg.PidFilePath, logger)
		return AlreadyExited
	}

	signalGroup(cfg.Pid)
	if cfg.WalkDescendants {
		for _, child := range descendantsOf(cfg.Pid) {
			signalProcess(child)
		}
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !ProcessAlive(cfg.Pid) {
			logger.Info("Gracefully terminated")
			cleanupPidFile(cfg.PidFilePath, logger)
			return GracefulTermination
		}
		select {
		case <-ctx.Done():
			killGroup(cfg.Pid)
			cleanupPidFile(cfg.PidFilePath, logger)
			return Killed
		case <-time.After(pollInterval):
		}
	}

	killGroup(cfg.Pid)
	if cfg.WalkDescendants {
		for _, child := range descendantsOf(cfg.Pid) {
			killProcess(child)
		}
	}
	logger.Info("Had to kill")
	cleanupPidFile(cfg.PidFilePath, logger)
	return Killed
}

func cleanupPidFile(path string, logger log.ServiceLogger) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Debug("Error removing pidfile: " + err.Error() + ", continuing")
	}
}

package manager

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cuemby/sentinel/pkg/superr"
	"github.com/cuemby/sentinel/pkg/terminator"
)

// lockFileName is the process lockfile under the state directory, per
// §6's persisted state layout.
const lockFileName = "LOCK"

// processLock is the held exclusive lock on a state directory. Release
// removes the lockfile; it is a no-op if already released.
type processLock struct {
	path     string
	released bool
}

// acquireProcessLock implements §4.G's "create-new exclusive semantics"
// process lock: the lockfile is created exclusively containing this
// process's PID. If one already exists, its PID is checked for
// liveness — a live holder means ProcessLockedError, a dead or corrupt
// one is removed and the acquisition is retried once.
func acquireProcessLock(stateDir string) (*processLock, error) {
	path := filepath.Join(stateDir, lockFileName)

	for attempt := 0; attempt < 2; attempt++ {
		if err := writeLockExclusive(path); err == nil {
			return &processLock{path: path}, nil
		} else if !os.IsExist(err) {
			return nil, fmt.Errorf("%w: %v", superr.ErrProcessLockIO, err)
		}

		pid, err := readLockPid(path)
		if err != nil {
			if removeErr := os.Remove(path); removeErr != nil {
				return nil, fmt.Errorf("%w: %v", superr.ErrProcessLockIO, removeErr)
			}
			continue
		}

		if terminator.ProcessAlive(pid) {
			return nil, &superr.ProcessLockedError{Pid: pid}
		}

		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("%w: %v", superr.ErrProcessLockIO, err)
		}
	}

	return nil, fmt.Errorf("%w: could not acquire lock at %s", superr.ErrProcessLockIO, path)
}

func writeLockExclusive(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0640)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(strconv.Itoa(os.Getpid()))
	return err
}

func readLockPid(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", superr.ErrProcessLockIO, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", superr.ErrProcessLockCorrupt, err)
	}
	return pid, nil
}

// release removes the lockfile, allowing a future supervisor to
// acquire it.
func (l *processLock) release() error {
	if l == nil || l.released {
		return nil
	}
	l.released = true
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", superr.ErrProcessLockIO, err)
	}
	return nil
}

/*
Package manager implements the supervisor's run-loop: the singleton,
single-threaded cooperative loop that ties the rumor store, census
ring, and per-service units together into one running process
supervisor, per §4.G.

# Architecture

	┌──────────────────── MANAGER RUN-LOOP ─────────────────────┐
	│  each ~1s tick:                                            │
	│    is_stopping?        -> depart, return                   │
	│    departed?           -> depart, return ErrDeparted       │
	│    self update ready?  -> depart, return                    │
	│    refresh peer-watch file -> seed new members              │
	│    restart stalled elections                                │
	│    ring.UpdateFromRumors(...)                                │
	│    if ring.Changed(): for each unit: unit.Tick(ring)         │
	│    sleep until next tick                                     │
	└────────────────────────────────────────────────────────────┘

Auxiliary workers run on their own goroutines, per §5: the Launcher
Client's connection manager (pkg/launcher), the peer-file watcher
(this package, via fsnotify), and one Terminator worker per shutdown
(pkg/terminator). The run-loop reads their results through channels
or lock-protected state and does not wait on them while ticking; on
departure it waits for every Terminator worker to finish before
returning.

A process lockfile in the state directory prevents two supervisors
from sharing one state directory; a stale lockfile (dead pid) or a
corrupt one is removed and retried rather than treated as fatal, per
§4.G and §6's persisted-state layout.
*/
package manager

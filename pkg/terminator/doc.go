/*
Package terminator implements the asynchronous graceful-then-forceful
process-tree shutdown worker (§4.H): send a platform-graceful signal to
the process group, poll for liveness, escalate to a forceful kill after
a grace window, then remove the service's pid file.

The Manager starts one Terminator worker per shutdown on its own
goroutine (§5's "one Terminator worker per shutdown"); this package
exposes a blocking Run so the caller controls that goroutine's
lifetime, matching the worker-per-task style already used for the
Launcher Client's connection-owning goroutine.
*/
package terminator

//go:build !unix

package terminator

import "os"

func ProcessAlive(pid int) bool {
	// os.FindProcess opens a handle to the process on Windows and
	// fails if it no longer exists, unlike its Unix no-op counterpart.
	_, err := os.FindProcess(pid)
	return err == nil
}

func signalGroup(pid int) {
	if proc, err := os.FindProcess(pid); err == nil {
		_ = proc.Signal(os.Interrupt)
	}
}

func signalProcess(pid int) { signalGroup(pid) }

func killGroup(pid int) {
	if proc, err := os.FindProcess(pid); err == nil {
		_ = proc.Kill()
	}
}

func killProcess(pid int) { killGroup(pid) }

func descendantsOf(pid int) []int { return nil }

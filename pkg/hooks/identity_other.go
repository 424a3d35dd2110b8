//go:build !unix

package hooks

import "os/exec"

// applyServiceIdentity is a no-op on non-Unix platforms; the launcher's
// privileged-spawn contract is itself a Unix-first design (process
// groups, setuid), matching spec §4.E.
func applyServiceIdentity(cmd *exec.Cmd, svcUser, svcGroup string) {}

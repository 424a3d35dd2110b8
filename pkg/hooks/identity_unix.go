//go:build unix

package hooks

import (
	"os"
	"os/exec"
	"os/user"
	"strconv"
	"syscall"

	"github.com/cuemby/sentinel/pkg/log"
)

// applyServiceIdentity sets the child process's uid/gid to the
// package's declared service user/group, when running as root makes
// that possible. A non-root supervisor simply inherits its own
// identity; this is not treated as an error since standalone/dev runs
// commonly aren't root.
func applyServiceIdentity(cmd *exec.Cmd, svcUser, svcGroup string) {
	if svcUser == "" || os.Geteuid() != 0 {
		return
	}
	u, err := user.Lookup(svcUser)
	if err != nil {
		log.WithComponent("hooks").Warn().Err(err).Str("user", svcUser).Msg("service user not found, running as current user")
		return
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return
	}
	if svcGroup != "" {
		if g, err := user.LookupGroup(svcGroup); err == nil {
			if parsed, err := strconv.Atoi(g.Gid); err == nil {
				gid = parsed
			}
		}
	}
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Credential = &syscall.Credential{Uid: uint32(uid), Gid: uint32(gid)}
	cmd.SysProcAttr.Setpgid = true
}

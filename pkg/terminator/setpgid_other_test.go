//go:build !unix

package terminator

import "syscall"

func setpgid() *syscall.SysProcAttr {
	return nil
}

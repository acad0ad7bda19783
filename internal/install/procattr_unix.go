//go:build unix

package install

import (
	"os/exec"
	"syscall"
)

// setDetachedProcAttr puts the relaunched application in its own session.
func setDetachedProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}
}

//go:build !unix && !windows

package install

import "os/exec"

func setDetachedProcAttr(*exec.Cmd) {}

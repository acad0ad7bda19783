package install

import (
	"fmt"
	"os"
	"os/exec"

	log "github.com/sirupsen/logrus"
)

// Restarter launches the newly activated application.
type Restarter interface {
	Restart(exe string, args []string, env []string) error
}

// RestarterFunc adapts a function to the Restarter interface.
type RestarterFunc func(exe string, args []string, env []string) error

// Restart calls f.
func (f RestarterFunc) Restart(exe string, args []string, env []string) error {
	return f(exe, args, env)
}

// ProcessRestarter starts the executable as a detached process so it
// outlives the process that applied the update.
type ProcessRestarter struct{}

// Restart starts exe with args, appending env to the current environment.
func (ProcessRestarter) Restart(exe string, args []string, env []string) error {
	if _, err := os.Stat(exe); err != nil {
		return fmt.Errorf("main executable not found: %w", err)
	}

	cmd := exec.Command(exe, args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	setDetachedProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", exe, err)
	}

	log.Infof("relaunched %s with PID %d", exe, cmd.Process.Pid)

	if err := cmd.Process.Release(); err != nil {
		log.Warnf("failed to release relaunched process: %v", err)
	}
	return nil
}

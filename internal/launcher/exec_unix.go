//go:build unix

package launcher

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// killProcessGroup starts the target in its own process group and makes
// cancellation kill the whole group, so children of the target die with it.
func killProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		if errors.Is(err, syscall.ESRCH) {
			return os.ErrProcessDone
		}
		return err
	}
}

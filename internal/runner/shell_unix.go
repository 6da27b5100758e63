//go:build !windows

package runner

import (
	"context"
	"os/exec"
	"syscall"
	"time"
)

const defaultShell = "/bin/sh"

// shellCommand starts the shell in a new process group so a timeout kills
// everything the command spawned, not only the shell.
func shellCommand(ctx context.Context, shell, command string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, shell, "-c", command)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 2 * time.Second
	return cmd
}

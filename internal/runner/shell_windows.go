//go:build windows

package runner

import (
	"context"
	"os/exec"
	"syscall"
	"time"
)

const defaultShell = "cmd"

func shellCommand(ctx context.Context, shell, command string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, shell, "/c", command)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
	cmd.WaitDelay = 2 * time.Second
	return cmd
}

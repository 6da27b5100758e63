//go:build linux

package keychain

import (
	"context"
	"errors"
	"os/exec"
	"strings"
)

var ErrUnavailable = errors.New("Secret Service unavailable (secret-tool not found or failed)")

func set(ctx context.Context, service, account, value string) error {
	cmd := exec.CommandContext(ctx, "secret-tool", "store", "--label=aicli "+account, "service", service, "account", account)
	cmd.Stdin = strings.NewReader(value)
	if out, err := cmd.CombinedOutput(); err != nil {
		return errors.Join(ErrUnavailable, err, errOutput(out))
	}
	return nil
}

func get(ctx context.Context, service, account string) (string, error) {
	cmd := exec.CommandContext(ctx, "secret-tool", "lookup", "service", service, "account", account)
	out, err := cmd.CombinedOutput()
	if err != nil {
		// lookup exits 1 with no output when nothing matches.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 &&
			(len(strings.TrimSpace(string(out))) == 0 || strings.Contains(string(out), "No matching secret")) {
			return "", nil
		}
		return "", errors.Join(ErrUnavailable, err, errOutput(out))
	}
	return strings.TrimSuffix(string(out), "\n"), nil
}

func remove(ctx context.Context, service, account string) error {
	_ = exec.CommandContext(ctx, "secret-tool", "clear", "service", service, "account", account).Run()
	return nil
}

func available() bool { return lookPath("secret-tool") }

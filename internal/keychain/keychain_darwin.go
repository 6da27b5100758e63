//go:build darwin

package keychain

import (
	"context"
	"errors"
	"os/exec"
	"strings"
)

var ErrUnavailable = errors.New("macOS Keychain unavailable (security(1) not found or failed)")

func set(ctx context.Context, service, account, value string) error {
	out, err := exec.CommandContext(ctx, "security", "add-generic-password",
		"-s", service,
		"-a", account,
		"-w", value,
		"-U",
	).CombinedOutput()
	if err != nil {
		return errors.Join(ErrUnavailable, err, errOutput(out))
	}
	return nil
}

func get(ctx context.Context, service, account string) (string, error) {
	out, err := exec.CommandContext(ctx, "security", "find-generic-password",
		"-s", service,
		"-a", account,
		"-w",
	).CombinedOutput()
	if err != nil {
		if strings.Contains(string(out), "could not be found") {
			return "", nil
		}
		return "", errors.Join(ErrUnavailable, err, errOutput(out))
	}
	return strings.TrimSuffix(string(out), "\n"), nil
}

func remove(ctx context.Context, service, account string) error {
	// Missing items make security(1) exit non-zero; that is not a failure here.
	_ = exec.CommandContext(ctx, "security", "delete-generic-password", "-s", service, "-a", account).Run()
	return nil
}

func available() bool { return lookPath("security") }

//go:build !darwin && !linux

package keychain

import (
	"context"
	"errors"
)

var ErrUnavailable = errors.New("keychain not available on this platform")

func set(context.Context, string, string, string) error { return ErrUnavailable }

func get(context.Context, string, string) (string, error) { return "", ErrUnavailable }

func remove(context.Context, string, string) error { return ErrUnavailable }

func available() bool { return false }

// Package keychain stores the model credential in the OS secret store:
// the macOS Keychain via security(1), or Secret Service via secret-tool(1)
// on Linux. Other platforms report ErrUnavailable.
package keychain

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

const Service = "aicli"

// lookupTimeout bounds each helper process; secret-tool can block on an
// unlock prompt.
const lookupTimeout = 5 * time.Second

// Store reads and writes secrets by account name.
type Store interface {
	Get(account string) (string, error)
	Set(account, value string) error
	Delete(account string) error
}

// System is the OS keychain scoped to one service name.
type System struct {
	Service string
}

func New() *System { return &System{Service: Service} }

// Get returns "" with a nil error when no secret is stored for account.
func (s *System) Get(account string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()
	return get(ctx, s.service(), account)
}

func (s *System) Set(account, value string) error {
	if strings.TrimSpace(value) == "" {
		return errors.New("refusing to store an empty secret")
	}
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()
	return set(ctx, s.service(), account, value)
}

// Delete is idempotent.
func (s *System) Delete(account string) error {
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()
	return remove(ctx, s.service(), account)
}

func (s *System) service() string {
	if s == nil || strings.TrimSpace(s.Service) == "" {
		return Service
	}
	return s.Service
}

// Available reports whether the platform helper is installed.
func Available() bool {
	return available()
}

// Account is the keychain account holding provider's API key.
func Account(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider)) + ".api_key"
}

func lookPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func errOutput(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return errors.New(strings.TrimSpace(string(b)))
}

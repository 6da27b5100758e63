// Package ai talks to a language model to interpret requests, suggest
// recovery steps for failed commands and explain command output.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

var (
	ErrDisabled = errors.New("ai integration disabled")
	ErrTimeout  = errors.New("ai request timed out")
)

type Client struct {
	provider Provider
	cfg      Config
	initErr  error
	log      *zap.Logger
}

func New(cfg Config, log *zap.Logger) *Client {
	cfg = cfg.normalized()
	if log == nil {
		log = zap.NewNop()
	}
	provider, err := NewProvider(cfg)
	return &Client{provider: provider, cfg: cfg, initErr: err, log: log}
}

// NewWithProvider wraps an already-built provider.
func NewWithProvider(p Provider, cfg Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{provider: p, cfg: cfg.normalized(), log: log}
}

func (c *Client) Enabled() bool {
	return c != nil && c.provider != nil && c.initErr == nil
}

// Err reports why the client cannot serve requests, or nil when it can.
func (c *Client) Err() error {
	switch {
	case c == nil:
		return ErrDisabled
	case c.initErr != nil:
		return c.initErr
	case c.provider == nil:
		return ErrDisabled
	}
	return nil
}

func (c *Client) ProviderName() string {
	if c == nil || c.provider == nil {
		return "disabled"
	}
	return c.provider.Name()
}

// Interpret translates free text into a single command line.
func (c *Client) Interpret(ctx context.Context, input string, cluster *ClusterContext) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("nothing to interpret")
	}
	reply, err := c.complete(ctx, "interpret", InterpretPrompt(input, cluster))
	if err != nil {
		return "", err
	}
	cmd := CleanCommand(reply)
	if cmd == "" {
		return "", fmt.Errorf("%s returned no command", c.ProviderName())
	}
	return cmd, nil
}

// Suggest asks for troubleshooting steps for a failed command.
func (c *Client) Suggest(ctx context.Context, command, errText string) (string, error) {
	return c.complete(ctx, "suggest", SuggestPrompt(command, errText))
}

// Explain describes command output in plain language.
func (c *Client) Explain(ctx context.Context, output string) (string, error) {
	return c.complete(ctx, "explain", ExplainPrompt(output))
}

func (c *Client) complete(ctx context.Context, action string, p Prompt) (string, error) {
	if c == nil || c.provider == nil {
		return "", ErrDisabled
	}
	if c.initErr != nil {
		return "", c.initErr
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	c.log.Debug("ai request", zap.String("provider", c.provider.Name()), zap.String("action", action), zap.Int("prompt_bytes", len(p.User)))
	res, err := c.provider.Complete(ctx, p.System, p.User)
	if err != nil {
		if isTimeout(ctx, err) {
			return "", fmt.Errorf("%w after %s", ErrTimeout, c.cfg.Timeout)
		}
		return "", err
	}
	res = strings.TrimSpace(res)
	if res == "" {
		return "", fmt.Errorf("%s returned an empty reply", c.provider.Name())
	}
	return res, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

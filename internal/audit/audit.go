// Package audit appends one JSON line per operation invocation recording
// who asked for what, whether it was allowed and how it ended.
package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Decision string

const (
	DecisionGranted Decision = "granted"
	DecisionDenied  Decision = "denied"
)

// Event describes a finished invocation.
type Event struct {
	InvocationID string
	User         string
	Role         string
	Operation    string
	Decision     Decision
	Command      string
	// State is the terminal dispatch state (denied, build_failed, clean, advised).
	State    string
	Status   string
	ExitCode int
	Duration time.Duration
	Error    string
}

func NewEvent(operation string) *Event {
	return &Event{InvocationID: uuid.NewString(), Operation: operation}
}

func (e *Event) WithActor(user, role string) *Event {
	e.User = user
	e.Role = role
	return e
}

func (e *Event) WithDecision(d Decision) *Event {
	e.Decision = d
	return e
}

func (e *Event) WithCommand(cmd string) *Event {
	e.Command = cmd
	return e
}

func (e *Event) WithResult(state, status string, exitCode int, d time.Duration) *Event {
	e.State = state
	e.Status = status
	e.ExitCode = exitCode
	e.Duration = d
	return e
}

func (e *Event) WithError(err error) *Event {
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

type Recorder interface {
	Record(e *Event)
	Close() error
}

type Config struct {
	// Path of the audit file. Empty disables auditing.
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New returns a file-backed recorder, or a no-op recorder when cfg.Path is
// empty.
func New(cfg Config) (Recorder, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return Nop{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    orDefault(cfg.MaxSizeMB, 10),
		MaxBackups: orDefault(cfg.MaxBackups, 5),
		MaxAge:     orDefault(cfg.MaxAgeDays, 90),
	}
	enc := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		MessageKey:     "event",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(rotator), zapcore.InfoLevel)
	return &fileRecorder{log: zap.New(core), rotator: rotator}, nil
}

type fileRecorder struct {
	log     *zap.Logger
	rotator *lumberjack.Logger
}

func (r *fileRecorder) Record(e *Event) {
	if e == nil {
		return
	}
	fields := []zap.Field{
		zap.String("invocation_id", e.InvocationID),
		zap.String("user", e.User),
		zap.String("role", e.Role),
		zap.String("operation", e.Operation),
		zap.String("decision", string(e.Decision)),
		zap.String("state", e.State),
	}
	if e.Command != "" {
		fields = append(fields, zap.String("command", e.Command))
	}
	if e.Status != "" {
		fields = append(fields, zap.String("status", e.Status), zap.Int("exit_code", e.ExitCode))
	}
	if e.Duration > 0 {
		fields = append(fields, zap.Duration("duration", e.Duration))
	}
	if e.Error != "" {
		fields = append(fields, zap.String("error", e.Error))
	}
	r.log.Info("operation", fields...)
}

func (r *fileRecorder) Close() error {
	_ = r.log.Sync()
	return r.rotator.Close()
}

type Nop struct{}

func (Nop) Record(*Event) {}
func (Nop) Close() error  { return nil }

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

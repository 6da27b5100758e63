package dispatch

import (
	"strings"

	"github.com/kubilitics/aicli/internal/runner"
)

// State is the terminal state of one invocation.
type State int

const (
	StateDenied State = iota
	StateBuildFailed
	StateClean
	StateAdvised
)

func (s State) String() string {
	switch s {
	case StateDenied:
		return "denied"
	case StateBuildFailed:
		return "build_failed"
	case StateClean:
		return "clean"
	case StateAdvised:
		return "advised"
	default:
		return "unknown"
	}
}

type MessageKind int

const (
	KindInfo MessageKind = iota
	KindOutput
	KindDenied
	KindError
	KindSuggestion
	KindNotice
	// KindExplanation is model-written prose about command output.
	KindExplanation
)

func (k MessageKind) String() string {
	switch k {
	case KindInfo:
		return "info"
	case KindOutput:
		return "output"
	case KindDenied:
		return "denied"
	case KindError:
		return "error"
	case KindSuggestion:
		return "suggestion"
	case KindNotice:
		return "notice"
	case KindExplanation:
		return "explanation"
	default:
		return "unknown"
	}
}

type Message struct {
	Kind MessageKind
	Text string
}

// Outcome is everything one invocation produced, in display order.
type Outcome struct {
	Operation string
	User      string
	Role      string
	State     State
	// Command is the constructed command string, empty if none was built.
	Command string
	// Result is nil unless the executor ran.
	Result   *runner.Result
	Messages []Message
	// Err is the cause of a BuildFailed outcome.
	Err error
}

func (o *Outcome) add(kind MessageKind, text string) {
	o.Messages = append(o.Messages, Message{Kind: kind, Text: text})
}

// Texts returns the text of every message of kind, in order.
func (o *Outcome) Texts(kind MessageKind) []string {
	var out []string
	for _, m := range o.Messages {
		if m.Kind == kind {
			out = append(out, m.Text)
		}
	}
	return out
}

// String renders all messages one per line.
func (o *Outcome) String() string {
	lines := make([]string, 0, len(o.Messages))
	for _, m := range o.Messages {
		lines = append(lines, m.Text)
	}
	return strings.Join(lines, "\n")
}

// ErrorDetected applies the textual error rule: a failed result, or a
// successful one whose output mentions "error" in any case. A successful
// command that merely prints the word still counts.
func ErrorDetected(res *runner.Result) bool {
	if res == nil {
		return false
	}
	return res.Failed() || strings.Contains(strings.ToLower(res.Output()), "error")
}

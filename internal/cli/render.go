package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/mitchellh/go-wordwrap"

	"github.com/kubilitics/aicli/internal/dispatch"
)

type styles struct {
	enabled    bool
	info       lipgloss.Style
	denied     lipgloss.Style
	errText    lipgloss.Style
	suggestion lipgloss.Style
	notice     lipgloss.Style
}

func newStyles(r *lipgloss.Renderer, color bool) styles {
	return styles{
		enabled:    color,
		info:       r.NewStyle().Foreground(lipgloss.ANSIColor(8)),
		denied:     r.NewStyle().Foreground(lipgloss.ANSIColor(1)).Bold(true),
		errText:    r.NewStyle().Foreground(lipgloss.ANSIColor(1)),
		suggestion: r.NewStyle().Foreground(lipgloss.ANSIColor(2)),
		notice:     r.NewStyle().Foreground(lipgloss.ANSIColor(3)),
	}
}

// paint leaves text untouched when colour is off; lipgloss would otherwise
// pad multi-line blocks to a common width.
func (s styles) paint(st lipgloss.Style, text string) string {
	if !s.enabled {
		return text
	}
	return st.Render(text)
}

// renderer prints outcome messages in order. Command output is printed
// verbatim; model-written text is wrapped to the terminal width.
type renderer struct {
	w      io.Writer
	width  uint
	styles styles
}

func newRenderer(w io.Writer) *renderer {
	return &renderer{
		w:      w,
		width:  wrapWidth(w),
		styles: newStyles(lipgloss.NewRenderer(w), !colorDisabled()),
	}
}

func (r *renderer) Render(o *dispatch.Outcome) {
	if o == nil {
		return
	}
	for _, m := range o.Messages {
		if m.Text == "" {
			continue
		}
		fmt.Fprintln(r.w, r.format(m))
	}
}

func (r *renderer) format(m dispatch.Message) string {
	s := r.styles
	switch m.Kind {
	case dispatch.KindInfo:
		return s.paint(s.info, m.Text)
	case dispatch.KindDenied:
		return s.paint(s.denied, m.Text)
	case dispatch.KindError:
		return s.paint(s.errText, m.Text)
	case dispatch.KindSuggestion:
		return s.paint(s.suggestion, r.wrap(m.Text))
	case dispatch.KindNotice:
		return s.paint(s.notice, r.wrap(m.Text))
	case dispatch.KindExplanation:
		return r.wrap(m.Text)
	default:
		return m.Text
	}
}

func (r *renderer) wrap(text string) string {
	return wordwrap.WrapString(text, r.width)
}

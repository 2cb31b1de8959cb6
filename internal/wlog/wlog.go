// Package wlog is the operator-facing structured logger for the upper-MAC
// core. It replaces the teacher's hand-rolled severity/color scheme
// (textcolor.go's DW_COLOR_* constants and dw_printf) with
// github.com/charmbracelet/log, keeping the same severity taxonomy: INFO,
// ERROR, REC (received-frame trace), XMIT (transmitted-frame trace), DEBUG.
package wlog

import (
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
)

const timestampPattern = "%Y-%m-%d %H:%M:%S.%f"

// Severity mirrors the teacher's dw_color_e enum; REC and XMIT are traced
// at Debug level by the underlying logger but kept as distinct call sites
// so component code reads the same way the teacher's did.
type Severity int

const (
	SevInfo Severity = iota
	SevError
	SevRec
	SevXmit
	SevDebug
)

// Logger wraps a component-scoped charmbracelet/log.Logger.
type Logger struct {
	l *log.Logger
}

// New builds a Logger writing to w, tagged with component (e.g. "txqueue",
// "role.ap"). component appears on every line the way the teacher's
// dw_printf output was always preceded by a channel/module prefix.
func New(w io.Writer, component string) *Logger {
	l := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Prefix:          component,
	})
	return &Logger{l: l}
}

// Default writes to stderr, tagged with component. Most call sites use
// this rather than threading a Logger through every constructor.
func Default(component string) *Logger {
	return New(os.Stderr, component)
}

func (lg *Logger) Info(msg string, kv ...any)  { lg.l.Info(msg, kv...) }
func (lg *Logger) Error(msg string, kv ...any) { lg.l.Error(msg, kv...) }
func (lg *Logger) Debug(msg string, kv ...any) { lg.l.Debug(msg, kv...) }
func (lg *Logger) Warn(msg string, kv ...any)  { lg.l.Warn(msg, kv...) }

// Rec traces a received frame. Split out from Debug so call sites read
// analogously to the teacher's text_color_set(DW_COLOR_REC).
func (lg *Logger) Rec(msg string, kv ...any) { lg.l.Debug(msg, append([]any{"trace", "rec"}, kv...)...) }

// Xmit traces a transmitted frame.
func (lg *Logger) Xmit(msg string, kv ...any) { lg.l.Debug(msg, append([]any{"trace", "xmit"}, kv...)...) }

// FormatTimestamp renders t the way the teacher's tq.go formats transmit
// log timestamps with lestrrat-go/strftime, falling back to RFC3339 if the
// pattern fails to format.
func FormatTimestamp(t time.Time) string {
	s, err := strftime.Format(timestampPattern, t)
	if err != nil {
		return t.Format(time.RFC3339)
	}
	return s
}

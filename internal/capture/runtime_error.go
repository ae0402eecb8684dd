package capture

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/LordSimal/gin-sentry/internal/infrastructure/tracing"
)

// RawFrame is a stack frame as printed by runtime/debug.Stack. Line is kept
// as text.
type RawFrame struct {
	Function string
	File     string
	Line     string
}

// RuntimeError is a recovered panic or any other error reported with a
// message, a severity and the stack it happened on.
type RuntimeError struct {
	Message string
	Level   tracing.Level
	File    string
	Line    int
	Trace   []RawFrame
	// Recovered is the value passed to panic, if any.
	Recovered any
}

func (e *RuntimeError) Error() string {
	if e.File == "" {
		return e.Message
	}
	return fmt.Sprintf("%s in %s:%d", e.Message, e.File, e.Line)
}

// NewRuntimeError builds a RuntimeError from a recovered value and the output
// of debug.Stack taken in the recovering function.
func NewRuntimeError(recovered any, stack []byte) *RuntimeError {
	var msg string
	switch v := recovered.(type) {
	case error:
		msg = v.Error()
	case string:
		msg = v
	default:
		msg = fmt.Sprint(v)
	}

	rerr := &RuntimeError{
		Message:   msg,
		Level:     tracing.LevelFatal,
		Trace:     panicSite(ParseStack(stack)),
		Recovered: recovered,
	}
	if len(rerr.Trace) > 0 {
		rerr.File = rerr.Trace[0].File
		rerr.Line, _ = strconv.Atoi(rerr.Trace[0].Line)
	}
	return rerr
}

// ParseStack parses the text of a goroutine stack, innermost frame first.
func ParseStack(stack []byte) []RawFrame {
	lines := strings.Split(strings.TrimSpace(string(stack)), "\n")
	var frames []RawFrame

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if line == "" || strings.HasPrefix(line, "goroutine ") || strings.HasPrefix(line, "\t") {
			continue
		}

		fn := strings.TrimPrefix(line, "created by ")
		if idx := strings.Index(fn, " in goroutine "); idx >= 0 {
			fn = fn[:idx]
		} else if idx := strings.LastIndex(fn, "("); idx > 0 && strings.HasSuffix(fn, ")") {
			fn = fn[:idx]
		}

		frame := RawFrame{Function: fn}
		if i+1 < len(lines) && strings.HasPrefix(lines[i+1], "\t") {
			i++
			loc := strings.TrimPrefix(lines[i], "\t")
			if idx := strings.LastIndex(loc, " +0x"); idx >= 0 {
				loc = loc[:idx]
			}
			if idx := strings.LastIndex(loc, ":"); idx >= 0 {
				frame.File, frame.Line = loc[:idx], loc[idx+1:]
			} else {
				frame.File = loc
			}
		}
		frames = append(frames, frame)
	}
	return frames
}

// panicSite drops the frames of the panic machinery and of the stack
// capture itself.
func panicSite(frames []RawFrame) []RawFrame {
	for i := len(frames) - 1; i >= 0; i-- {
		if frames[i].Function == "panic" || frames[i].Function == "runtime.gopanic" {
			return frames[i+1:]
		}
	}
	for len(frames) > 0 && strings.HasPrefix(frames[0].Function, "runtime/debug.") {
		frames = frames[1:]
	}
	return frames
}

// CleanTrace converts raw frames. A line that is not a number becomes 0.
func CleanTrace(frames []RawFrame) []tracing.Frame {
	out := make([]tracing.Frame, 0, len(frames))
	for _, f := range frames {
		line, err := strconv.Atoi(f.Line)
		if err != nil {
			line = 0
		}
		module, function := splitFunction(f.Function)
		out = append(out, tracing.Frame{
			Function: function,
			Module:   module,
			File:     f.File,
			Line:     line,
		})
	}
	return out
}

// splitFunction splits "github.com/a/b.(*T).M" into its package path and
// the rest.
func splitFunction(name string) (module, function string) {
	slash := strings.LastIndex(name, "/")
	dot := strings.Index(name[slash+1:], ".")
	if dot < 0 {
		return "", name
	}
	dot += slash + 1
	return name[:dot], name[dot+1:]
}

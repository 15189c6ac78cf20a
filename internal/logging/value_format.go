package logging

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// consoleValueLimit caps one console field. The JSON handler keeps full values.
const consoleValueLimit = 240

// attrString renders the header fields (component, run, stage) unquoted.
func attrString(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return oneLine(v.String())
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return oneLine(err.Error())
		}
		return oneLine(fmt.Sprint(v.Any()))
	default:
		return formatValue(v)
	}
}

// formatValue renders a field value for the console handler.
func formatValue(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindDuration:
		return formatDuration(v.Duration())
	case slog.KindTime:
		return v.Time().In(time.Local).Format(logTimestampLayout)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return consoleText(err.Error())
		}
		return consoleText(fmt.Sprint(v.Any()))
	default:
		return consoleText(v.String())
	}
}

// formatDuration keeps stage timings readable: millisecond precision from
// one second up, microsecond precision below.
func formatDuration(d time.Duration) string {
	abs := d
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= time.Second:
		return d.Round(time.Millisecond).String()
	case abs >= time.Millisecond:
		return d.Round(time.Microsecond).String()
	default:
		return d.String()
	}
}

// consoleText folds multi-line text such as ffmpeg stderr tails onto one
// line, shortens it to consoleValueLimit and quotes it when needed.
func consoleText(s string) string {
	return quoteIfNeeded(truncateMiddle(oneLine(s), consoleValueLimit))
}

func oneLine(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	lines := strings.FieldsFunc(s, func(r rune) bool { return r == '\n' || r == '\r' })
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, " | ")
}

// truncateMiddle keeps the head and tail of s; for ffmpeg command lines the
// tail holds the output path.
func truncateMiddle(s string, limit int) string {
	runes := []rune(s)
	if limit <= 0 || len(runes) <= limit {
		return s
	}
	head := limit * 2 / 3
	tail := limit - head
	omitted := len(runes) - limit
	return string(runes[:head]) + fmt.Sprintf(" ...(%d chars)... ", omitted) + string(runes[len(runes)-tail:])
}

func quoteIfNeeded(s string) string {
	if needsQuotes(s) {
		return strconv.Quote(s)
	}
	return s
}

func needsQuotes(s string) bool {
	if s == "" || strings.TrimSpace(s) != s {
		return true
	}
	for _, r := range s {
		if r < ' ' || r == '"' {
			return true
		}
	}
	return false
}

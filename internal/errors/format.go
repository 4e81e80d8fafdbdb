package errors

import (
	"fmt"
	"os"
	"strings"
)

const (
	ansiReset = "\033[0m"
	ansiRed   = "\033[31m"
	ansiCyan  = "\033[36m"
	ansiWhite = "\033[37m"
	ansiGray  = "\033[90m"
	ansiBold  = "\033[1m"
)

// Respect NO_COLOR (https://no-color.org) out of the box.
var colorEnabled = os.Getenv("NO_COLOR") == ""

// DisableColors turns ANSI styling off, for tests and dumb terminals.
func DisableColors() { colorEnabled = false }

// EnableColors turns ANSI styling back on.
func EnableColors() { colorEnabled = true }

func tint(code, s string) string {
	if !colorEnabled {
		return s
	}
	return code + s + ansiReset
}

func red(s string) string   { return tint(ansiRed, s) }
func cyan(s string) string  { return tint(ansiCyan, s) }
func white(s string) string { return tint(ansiWhite, s) }
func gray(s string) string  { return tint(ansiGray, s) }
func bold(s string) string  { return tint(ansiBold, s) }

// Format renders the error as a multi-line terminal block: a header with
// the code, the wrapped detail, the cause chain, then the hint.
func (e *Error) Format() string {
	var b strings.Builder

	b.WriteString("\n")
	header := red(bold("ERROR: ")) + white(e.Message)
	if e.Code != "" {
		header = red(bold("ERROR ")) + white(bold(e.Code+": ")) + white(e.Message)
	}
	b.WriteString(header)
	b.WriteString("\n\n")

	if e.Detail != "" {
		for _, line := range wrapText(e.Detail, 70) {
			fmt.Fprintf(&b, "  %s\n", line)
		}
		b.WriteString("\n")
	}

	if e.Wrapped != nil {
		fmt.Fprintf(&b, "  %s%s\n\n", gray("Caused by: "), e.Wrapped.Error())
	}

	if e.Suggestion != "" {
		fmt.Fprintf(&b, "  %s%s\n", cyan("Hint: "), e.Suggestion)
	}

	return b.String()
}

// FormatCompact renders a one-line "code: message" form for log lines.
func (e *Error) FormatCompact() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

// Format renders any error for terminal display. Structured errors get the
// full block, anything else a bare header line, nil renders empty.
func Format(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := err.(*Error); ok {
		return e.Format()
	}
	return "\n" + red(bold("ERROR: ")) + white(err.Error()) + "\n"
}

// wrapText greedily packs words into lines no wider than width. Words
// longer than width get a line of their own.
func wrapText(text string, width int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	lines := make([]string, 0, 1+len(text)/width)
	line := words[0]
	for _, w := range words[1:] {
		if len(line)+1+len(w) > width {
			lines = append(lines, line)
			line = w
			continue
		}
		line += " " + w
	}
	return append(lines, line)
}

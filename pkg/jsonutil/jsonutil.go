// Package jsonutil parses package-manager CLI output that is expected to be JSON
// but frequently is not: banners, progress lines, plugin-missing errors and
// truncated output all show up on stdout. Parsing never fails loudly; callers
// get a nil/false result and branch on it.
package jsonutil

import (
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/fulmenhq/pkgscout/pkg/logger"
)

// SnippetWidth caps the width of the context snippet attached to diagnostics.
const SnippetWidth = 80

// Diagnostic describes where a parse failed.
type Diagnostic struct {
	Message string
	// Offset is the byte offset of the failure, or -1 when unknown
	Offset  int
	Line    int
	Column  int
	Snippet string
}

var (
	positionPattern   = regexp.MustCompile(`position (\d+)`)
	lineColumnPattern = regexp.MustCompile(`line (\d+) column (\d+)`)
)

// Parse decodes text into a generic value. It returns nil when text is not
// valid JSON.
func Parse(text string) any {
	v, ok := Decode[any](text)
	if !ok {
		return nil
	}
	return v
}

// Decode decodes text into T. The boolean is false when text is not valid
// JSON or does not fit T; a diagnostic is logged in that case.
func Decode[T any](text string) (T, bool) {
	var out T
	if strings.TrimSpace(text) == "" {
		logger.Debug("Empty JSON input")
		return out, false
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		d := Diagnose(text, err)
		logger.Warn("Failed to parse JSON output",
			logger.String("reason", d.Message),
			logger.Int("line", d.Line),
			logger.Int("column", d.Column),
			logger.String("near", d.Snippet))
		var zero T
		return zero, false
	}
	return out, true
}

// Diagnose locates err inside text. Offsets come from the decoder's typed
// errors when available, otherwise they are recovered from the message text.
func Diagnose(text string, err error) Diagnostic {
	d := Diagnostic{Offset: -1}
	if err == nil {
		return d
	}
	d.Message = err.Error()

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		d.Offset = int(syntaxErr.Offset)
	case errors.As(err, &typeErr):
		d.Offset = int(typeErr.Offset)
	default:
		if m := positionPattern.FindStringSubmatch(d.Message); m != nil {
			d.Offset, _ = strconv.Atoi(m[1])
		} else if m := lineColumnPattern.FindStringSubmatch(d.Message); m != nil {
			line, _ := strconv.Atoi(m[1])
			col, _ := strconv.Atoi(m[2])
			d.Offset = offsetOf(text, line, col)
		}
	}

	if d.Offset < 0 {
		return d
	}
	if d.Offset > len(text) {
		d.Offset = len(text)
	}
	d.Line, d.Column = lineColumnOf(text, d.Offset)
	d.Snippet = snippet(text, d.Offset, SnippetWidth)
	return d
}

// offsetOf converts a 1-based line/column into a byte offset.
func offsetOf(text string, line, col int) int {
	if line < 1 || col < 1 {
		return -1
	}
	offset := 0
	for i := 1; i < line; i++ {
		idx := strings.IndexByte(text[offset:], '\n')
		if idx < 0 {
			return len(text)
		}
		offset += idx + 1
	}
	offset += col - 1
	if offset > len(text) {
		offset = len(text)
	}
	return offset
}

func lineColumnOf(text string, offset int) (int, int) {
	before := text[:offset]
	line := strings.Count(before, "\n") + 1
	col := offset - strings.LastIndexByte(before, '\n')
	return line, col
}

// snippet returns at most width bytes of text centered on offset, with line
// breaks flattened so it fits on one log line.
func snippet(text string, offset, width int) string {
	start := offset - width/2
	if start < 0 {
		start = 0
	}
	end := start + width
	if end > len(text) {
		end = len(text)
		start = end - width
		if start < 0 {
			start = 0
		}
	}
	s := text[start:end]
	s = strings.ReplaceAll(s, "\r", "")
	return strings.ReplaceAll(s, "\n", "\\n")
}

// SplitLines splits newline-delimited output into non-blank lines.
func SplitLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

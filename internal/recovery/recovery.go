// Package recovery salvages JSON objects from free-text language model replies.
package recovery

import (
	"encoding/json"
	"regexp"
	"strings"
)

// fenceRe matches runs of three or more backticks.
var fenceRe = regexp.MustCompile("`{3,}")

// Options tunes the fallback scan.
type Options struct {
	// StringAware makes the brace-counting pass skip braces inside JSON
	// string literals. Off by default: the plain counter splits on any brace.
	StringAware bool
}

// Recoverer extracts JSON objects from text. The zero value is ready to use.
type Recoverer struct {
	opts Options
}

// New returns a Recoverer with the given options.
func New(opts Options) *Recoverer {
	return &Recoverer{opts: opts}
}

// Recover extracts JSON objects from text using default options.
func Recover(text string) []map[string]any {
	return (&Recoverer{}).Recover(text)
}

// RecoverAll joins texts with newlines and recovers objects from the result.
func RecoverAll(texts ...string) []map[string]any {
	return (&Recoverer{}).RecoverAll(texts...)
}

// RecoverAll joins texts with newlines and recovers objects from the result.
func (r *Recoverer) RecoverAll(texts ...string) []map[string]any {
	return r.Recover(strings.Join(texts, "\n"))
}

// Recover returns the JSON objects found in text, in discovery order.
// Fenced blocks are tried first; only if none of them parse is the whole
// text scanned for balanced brace spans. Unparsable candidates are skipped,
// so the result may be empty but never nil-panics.
func (r *Recoverer) Recover(text string) []map[string]any {
	objects := fencedObjects(text)
	if len(objects) > 0 {
		return objects
	}
	if r.opts.StringAware {
		return scanObjectsStringAware(text)
	}
	return scanObjects(text)
}

// fencedObjects splits text on backtick fences and parses the first-brace
// to last-brace span of each segment.
func fencedObjects(text string) []map[string]any {
	var out []map[string]any
	for _, segment := range fenceRe.Split(text, -1) {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}

		lines := strings.Split(segment, "\n")
		if !strings.HasPrefix(strings.TrimSpace(lines[0]), "{") {
			// Language tag such as "json".
			segment = strings.Join(lines[1:], "\n")
		}
		segment = strings.TrimSpace(segment)

		start := strings.Index(segment, "{")
		end := strings.LastIndex(segment, "}")
		if start < 0 || end <= start {
			continue
		}

		if obj, ok := parseObject(segment[start : end+1]); ok {
			out = append(out, obj)
		}
	}
	return out
}

// scanObjects walks text counting brace depth. Every span that returns to
// depth zero is a candidate. Braces inside string literals are counted too.
func scanObjects(text string) []map[string]any {
	var out []map[string]any
	depth := 0
	start := -1
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				if obj, ok := parseObject(text[start : i+1]); ok {
					out = append(out, obj)
				}
				start = -1
			}
		}
	}
	return out
}

// scanObjectsStringAware is scanObjects with quote and escape tracking, so
// a "}" inside a string value does not close the object.
func scanObjectsStringAware(text string) []map[string]any {
	var out []map[string]any
	depth := 0
	start := -1
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				if obj, ok := parseObject(text[start : i+1]); ok {
					out = append(out, obj)
				}
				start = -1
			}
		}
	}
	return out
}

func parseObject(s string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

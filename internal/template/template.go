// Package template parses marker-delimited message templates and fills
// their <FIELD> placeholders.
package template

import (
	"strings"
)

const (
	beginMarker = "=== TEMPLATE: "
	nameClose   = " ==="
	endMarker   = "=== END TEMPLATE ==="
)

// Set maps template names to their trimmed bodies. It is built once per
// blast and never modified afterwards.
type Set map[string]string

func (s Set) Lookup(name string) (string, bool) {
	body, ok := s[name]
	return body, ok
}

// Parse scans raw for blocks of the form
//
//	=== TEMPLATE: <name> ===
//	body
//	=== END TEMPLATE ===
//
// A block without an end marker (or interrupted by another header) is
// dropped. When a name repeats, the last block wins.
func Parse(raw string) Set {
	set := Set{}
	rest := raw
	for {
		name, afterHeader, ok := nextHeader(rest)
		if !ok {
			return set
		}

		end := strings.Index(afterHeader, endMarker)
		if end < 0 {
			return set
		}
		// A new header before the end marker means this block was never closed.
		if next := strings.Index(afterHeader[:end], beginMarker); next >= 0 {
			rest = afterHeader[next:]
			continue
		}

		set[name] = strings.TrimSpace(afterHeader[:end])
		rest = afterHeader[end+len(endMarker):]
	}
}

// nextHeader finds the next "=== TEMPLATE: name ===" line fragment and
// returns the name and the text following it. Names cannot span lines.
func nextHeader(s string) (name, rest string, ok bool) {
	for {
		start := strings.Index(s, beginMarker)
		if start < 0 {
			return "", "", false
		}
		s = s[start+len(beginMarker):]

		// The name needs at least one character before the closing marker.
		closeAt := -1
		if len(s) > 0 {
			if i := strings.Index(s[1:], nameClose); i >= 0 {
				closeAt = i + 1
			}
		}
		if closeAt < 0 {
			return "", "", false
		}
		candidate := s[:closeAt]
		if strings.ContainsAny(candidate, "\r\n") {
			continue
		}
		return candidate, s[closeAt+len(nameClose):], true
	}
}

// Package jsonx pulls JSON objects out of LLM replies.
//
// Models often wrap the requested document in a markdown fence or surround
// it with commentary even when asked not to. Extract tolerates both.
package jsonx

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON is returned when no JSON object can be found in the text.
var ErrNoJSON = errors.New("no JSON object found in response")

// Extract returns the first complete JSON object in text. It tries, in
// order: the whole text, the text with a markdown fence stripped, and each
// balanced {...} span found by scanning the text with string and escape
// awareness.
func Extract(text string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(text)
	if isObject(trimmed) {
		return json.RawMessage(trimmed), nil
	}

	unfenced := stripFence(trimmed)
	if isObject(unfenced) {
		return json.RawMessage(unfenced), nil
	}

	for start := strings.IndexByte(unfenced, '{'); start >= 0; {
		end := matchBrace(unfenced, start)
		if end < 0 {
			break
		}
		candidate := unfenced[start : end+1]
		if isObject(candidate) {
			return json.RawMessage(candidate), nil
		}
		next := strings.IndexByte(unfenced[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}

	return nil, fmt.Errorf("%w: %q", ErrNoJSON, preview(text, 100))
}

// Decode extracts the first JSON object in text and unmarshals it into T.
func Decode[T any](text string) (T, error) {
	var v T
	raw, err := Extract(text)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return v, nil
}

func isObject(s string) bool {
	if !strings.HasPrefix(s, "{") {
		return false
	}
	var m map[string]json.RawMessage
	return json.Unmarshal([]byte(s), &m) == nil
}

// stripFence removes a leading ```lang line and a trailing ``` marker.
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		if i := strings.Index(s, "```"); i >= 0 {
			s = s[i:]
		} else {
			return s
		}
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.HasPrefix(strings.TrimSpace(s[:nl]), "{") {
		s = s[nl+1:]
	}
	if end := strings.Index(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}

// matchBrace returns the index of the brace closing the one at start, or -1.
func matchBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
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
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Package jsonview provides a read-only, dot-path view over a JSON document
// without requiring the caller to unmarshal into a concrete struct — used by
// the batch I/O facade to pull a handful of fields (room ID, event type, depth)
// out of a federation response body the caller otherwise treats as an opaque
// buffer.
//
// No ecosystem JSON-path library appears in the retrieved example corpus, so
// this stays on encoding/json; see DESIGN.md for the standard-library
// justification.
package jsonview

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// View wraps a parsed JSON document for repeated field lookups without
// re-parsing.
type View struct {
	raw any
}

// Parse parses b as JSON and returns a View over it.
func Parse(b []byte) (View, error) {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return View{}, fmt.Errorf("jsonview: %w", err)
	}
	return View{raw: raw}, nil
}

// Get resolves a dot-separated path ("content.room_id", "events.0.type")
// against the document, returning the leaf value and whether it was found.
func (v View) Get(path string) (any, bool) {
	cur := v.raw
	if path == "" {
		return cur, true
	}
	for _, segment := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// String resolves path and type-asserts the result to a string.
func (v View) String(path string) (string, bool) {
	val, ok := v.Get(path)
	if !ok {
		return "", false
	}
	s, ok := val.(string)
	return s, ok
}

// Int resolves path and type-asserts the result to an int (JSON numbers
// decode as float64 via encoding/json's any-typed Unmarshal).
func (v View) Int(path string) (int, bool) {
	val, ok := v.Get(path)
	if !ok {
		return 0, false
	}
	f, ok := val.(float64)
	if !ok {
		return 0, false
	}
	return int(f), true
}

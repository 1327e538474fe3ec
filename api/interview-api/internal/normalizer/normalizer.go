// Copyright (c) 2025 PrepOrbit
//
// Licensed under GPL-2.0 with PrepOrbit Additional Terms.
// See LICENSE.md for details.
package internal_normalizer

import (
	"reflect"
	"regexp"
	"sort"
	"strings"
)

// =============================================================================
// Event Text Normalizer
// =============================================================================
//
// The voice-call service does not commit to a stable event payload shape:
// the text of an utterance has been observed as a bare string, under "text",
// under "content", as a content array of typed blocks, and buried in nested
// update objects. Normalize is the single sanctioned boundary that converts
// that untyped data into a plain string. It is pure, never errors, and
// returns "" for payloads with no plausible text. Callers treat "" as
// "ignore this event".

var textishKey = regexp.MustCompile(`(?i)text|content|transcript|message`)

// maxDepth bounds the fallback traversal so a pathological payload cannot
// stall event processing.
const maxDepth = 6

// Normalize extracts human-readable text from an arbitrary event payload.
// Priority order, stopping at the first non-empty result:
//
//  1. the event itself is a string
//  2. a string "text" field
//  3. a string "content" field
//  4. an array "content" field, elements flattened one level
//  5. a bounded depth-first scan for the longest string under a text-like key
func Normalize(event interface{}) string {
	if s, ok := event.(string); ok {
		return strings.TrimSpace(s)
	}

	obj := asMap(event)
	if obj == nil {
		return ""
	}

	if s, ok := obj["text"].(string); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	if s, ok := obj["content"].(string); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	if parts := asSlice(obj["content"]); parts != nil {
		if s := joinContentParts(parts); s != "" {
			return s
		}
	}

	visited := map[uintptr]bool{}
	best := ""
	scan(event, 0, visited, &best)
	return strings.TrimSpace(best)
}

// joinContentParts flattens a content array: string elements pass through,
// object elements contribute their own text/content string (one recursion
// level only).
func joinContentParts(parts []interface{}) string {
	collected := make([]string, 0, len(parts))
	for _, part := range parts {
		switch p := part.(type) {
		case string:
			if strings.TrimSpace(p) != "" {
				collected = append(collected, strings.TrimSpace(p))
			}
		default:
			if inner := asMap(p); inner != nil {
				if s, ok := inner["text"].(string); ok && strings.TrimSpace(s) != "" {
					collected = append(collected, strings.TrimSpace(s))
					continue
				}
				if s, ok := inner["content"].(string); ok && strings.TrimSpace(s) != "" {
					collected = append(collected, strings.TrimSpace(s))
				}
			}
		}
	}
	return strings.TrimSpace(strings.Join(collected, " "))
}

// scan walks object/array values depth-first, collecting the longest string
// found under a text-like key. Ties keep the earlier find; key order is
// sorted so the result is deterministic.
func scan(v interface{}, depth int, visited map[uintptr]bool, best *string) {
	if depth > maxDepth || v == nil {
		return
	}

	switch val := v.(type) {
	case map[string]interface{}:
		ptr := reflect.ValueOf(val).Pointer()
		if visited[ptr] {
			return
		}
		visited[ptr] = true

		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			child := val[k]
			if s, ok := child.(string); ok {
				if textishKey.MatchString(k) && len(strings.TrimSpace(s)) > len(*best) {
					*best = strings.TrimSpace(s)
				}
				continue
			}
			scan(child, depth+1, visited, best)
		}

	case []interface{}:
		if len(val) == 0 {
			return
		}
		ptr := reflect.ValueOf(val).Pointer()
		if visited[ptr] {
			return
		}
		visited[ptr] = true
		for _, child := range val {
			scan(child, depth+1, visited, best)
		}
	}
}

func asMap(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	return m
}

func asSlice(v interface{}) []interface{} {
	s, _ := v.([]interface{})
	return s
}

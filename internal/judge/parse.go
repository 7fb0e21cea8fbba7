package judge

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrUnparseable is returned when model output has no recognisable shape.
var ErrUnparseable = errors.New("unparseable judge output")

var (
	fencePattern   = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	integerPattern = regexp.MustCompile(`-?\d+`)
)

var noMatchPhrases = []string{"none", "no matches", "no match", "no relevant", "null", "[]"}

// selectionKeys are the object keys judges have been seen to use for a list
// of selected documents, checked in order.
var selectionKeys = []string{"selected_ids", "selectedIds", "ids", "selected", "documents", "urls", "matches"}

// singleKeys hold a single chosen document.
var singleKeys = []string{"id", "selected_id", "selectedId", "url", "choice"}

// ParseSelection reads a judge's answer into a Verdict. It accepts a bare
// JSON array, an object holding an array or a single id under a known key,
// JSON wrapped in a code fence or prose, and the plain-text "none" family.
func ParseSelection(output string) Verdict {
	text := strings.TrimSpace(output)
	if text == "" {
		return Failed("empty response")
	}

	payload, ok := extractJSON(text)
	if !ok {
		if isNoMatchPhrase(text) {
			return NoMatches()
		}
		return Failed(fmt.Sprintf("%v: %q", ErrUnparseable, truncate(text, 120)))
	}

	var decoded any
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return Failed(fmt.Sprintf("%v: %v", ErrUnparseable, err))
	}

	ids, ok := idsFrom(decoded)
	if !ok {
		return Failed(fmt.Sprintf("%v: no selection field in %q", ErrUnparseable, truncate(payload, 120)))
	}
	return Success(ids)
}

// ParseIndices reads a list of integer indices from model output. Out of range
// values are dropped by the caller, not here.
func ParseIndices(output string) ([]int, error) {
	text := strings.TrimSpace(output)
	if text == "" {
		return nil, fmt.Errorf("%w: empty response", ErrUnparseable)
	}

	if payload, ok := extractJSON(text); ok {
		var decoded any
		if err := json.Unmarshal([]byte(payload), &decoded); err == nil {
			if vals, found := idsFrom(decoded); found {
				return toInts(vals), nil
			}
		}
	}

	if isNoMatchPhrase(text) {
		return nil, nil
	}
	matches := integerPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnparseable, truncate(text, 120))
	}
	return toInts(matches), nil
}

func extractJSON(text string) (string, bool) {
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}

	start := strings.IndexAny(text, "[{")
	if start < 0 {
		return "", false
	}
	open := text[start]
	closing := byte('}')
	if open == '[' {
		closing = ']'
	}
	end := strings.LastIndexByte(text, closing)
	if end <= start {
		return "", false
	}
	return text[start : end+1], true
}

func idsFrom(decoded any) ([]string, bool) {
	switch v := decoded.(type) {
	case []any:
		return stringsFrom(v), true
	case map[string]any:
		for _, key := range selectionKeys {
			if list, ok := v[key].([]any); ok {
				return stringsFrom(list), true
			}
		}
		for _, key := range singleKeys {
			raw, ok := v[key]
			if !ok {
				continue
			}
			if raw == nil {
				return nil, true
			}
			if s := scalarString(raw); s != "" {
				return []string{s}, true
			}
			return nil, true
		}
		return nil, false
	default:
		return nil, false
	}
}

func stringsFrom(list []any) []string {
	out := make([]string, 0, len(list))
	for _, item := range list {
		if obj, ok := item.(map[string]any); ok {
			for _, key := range singleKeys {
				if s := scalarString(obj[key]); s != "" {
					out = append(out, s)
					break
				}
			}
			continue
		}
		if s := scalarString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func toInts(vals []string) []int {
	out := make([]int, 0, len(vals))
	for _, v := range vals {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			out = append(out, n)
		}
	}
	return out
}

func isNoMatchPhrase(text string) bool {
	lower := strings.ToLower(strings.Trim(strings.TrimSpace(text), ".!\"'`"))
	for _, phrase := range noMatchPhrases {
		if lower == phrase || strings.HasPrefix(lower, phrase+" ") {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

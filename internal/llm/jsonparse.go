package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var (
	codeFenceRegex         = regexp.MustCompile("(?s)`{3}(?:json|javascript|js)?\\s*\\n?(.*?)\\n?`{3}")
	trailingCommaRegex     = regexp.MustCompile(`,(\s*[}\]])`)
	singleLineCommentRegex = regexp.MustCompile(`(?m)^\s*//.*$`)

	arrayRegex  = regexp.MustCompile(`(?s)\[.*\]`)
	objectRegex = regexp.MustCompile(`(?s)\{.*\}`)
)

var (
	ErrNoJSON         = errors.New("no JSON found in completion output")
	ErrAmbiguousArray = errors.New("completion output object holds more than one array")
)

// statementsKey is the wrapper field models most often put around the array.
const statementsKey = "statements"

// ParseJSON decodes model output that is supposed to be JSON. It tries, in
// order: the raw text, the text with code fences removed, the text with
// trailing commas and line comments removed, and finally the first JSON
// array or object embedded in surrounding prose.
func ParseJSON[T any](text string) (T, error) {
	var zero T
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return zero, ErrNoJSON
	}

	out, err := decode[T](trimmed)
	if err == nil {
		return out, nil
	}
	firstErr := err

	unfenced := removeCodeFences(trimmed)
	if out, err := decode[T](unfenced); err == nil {
		return out, nil
	}

	cleaned := cleanupJSON(unfenced)
	if out, err := decode[T](cleaned); err == nil {
		return out, nil
	}

	if extracted := extractJSON(cleaned); extracted != "" {
		if out, err := decode[T](extracted); err == nil {
			return out, nil
		}
	}
	return zero, firstErr
}

// ParseArray extracts a JSON array of raw entries. An object is unwrapped
// through its "statements" field, or through its only array field when it
// has exactly one.
func ParseArray(text string) ([]json.RawMessage, error) {
	if arr, err := ParseJSON[[]json.RawMessage](text); err == nil {
		return arr, nil
	}
	obj, err := ParseJSON[map[string]json.RawMessage](text)
	if err != nil {
		return nil, err
	}
	if v, ok := obj[statementsKey]; ok {
		var arr []json.RawMessage
		if json.Unmarshal(v, &arr) == nil {
			return arr, nil
		}
	}

	var found []json.RawMessage
	n := 0
	for _, v := range obj {
		var arr []json.RawMessage
		if json.Unmarshal(v, &arr) == nil {
			found = arr
			n++
		}
	}
	switch n {
	case 0:
		return nil, ErrNoJSON
	case 1:
		return found, nil
	default:
		return nil, ErrAmbiguousArray
	}
}

func decode[T any](text string) (T, error) {
	var out T
	err := json.Unmarshal([]byte(text), &out)
	return out, err
}

func removeCodeFences(text string) string {
	if m := codeFenceRegex.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.Trim(text, "`")
}

func cleanupJSON(text string) string {
	cleaned := trailingCommaRegex.ReplaceAllString(text, "$1")
	cleaned = singleLineCommentRegex.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

// extractJSON looks at the first bracket to decide between array and object,
// so that an array of objects is not cut down to its first element.
func extractJSON(text string) string {
	ai := strings.IndexByte(text, '[')
	oi := strings.IndexByte(text, '{')
	if ai >= 0 && (oi < 0 || ai < oi) {
		if m := arrayRegex.FindString(text); m != "" {
			return m
		}
	}
	return objectRegex.FindString(text)
}

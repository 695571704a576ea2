package generation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON is returned when the completion text contains no JSON value.
var ErrNoJSON = errors.New("no JSON found in completion")

// extractJSON returns the outermost JSON array or object in content,
// ignoring markdown code fences and any prose around it.
func extractJSON(content string) (string, error) {
	s := strings.TrimSpace(content)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		// Skip the language tag line
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		s = strings.TrimSpace(rest)
	}

	start := strings.IndexAny(s, "[{")
	if start < 0 {
		return "", ErrNoJSON
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return "", ErrNoJSON
	}
	return s[start : end+1], nil
}

// decodeList decodes either a JSON array of T or an object wrapping that
// array under key.
func decodeList[T any](content, key string) ([]T, error) {
	raw, err := extractJSON(content)
	if err != nil {
		return nil, err
	}

	var list []T
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			return nil, fmt.Errorf("malformed %s list: %w", key, err)
		}
		return list, nil
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &wrapped); err != nil {
		return nil, fmt.Errorf("malformed %s object: %w", key, err)
	}
	if inner, ok := wrapped[key]; ok {
		if err := json.Unmarshal(inner, &list); err != nil {
			return nil, fmt.Errorf("malformed %s list: %w", key, err)
		}
		return list, nil
	}

	// A single record
	var one T
	if err := json.Unmarshal([]byte(raw), &one); err != nil {
		return nil, fmt.Errorf("malformed %s record: %w", key, err)
	}
	return []T{one}, nil
}

// decodeObject decodes a single JSON object, unwrapping it from key if the
// model nested it.
func decodeObject[T any](content, key string) (T, error) {
	var out T
	raw, err := extractJSON(content)
	if err != nil {
		return out, err
	}
	if strings.HasPrefix(raw, "[") {
		var list []T
		if err := json.Unmarshal([]byte(raw), &list); err != nil || len(list) == 0 {
			return out, fmt.Errorf("expected a %s object", key)
		}
		return list[0], nil
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &wrapped); err != nil {
		return out, fmt.Errorf("malformed %s object: %w", key, err)
	}
	if inner, ok := wrapped[key]; ok && len(wrapped) == 1 {
		raw = string(inner)
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return out, fmt.Errorf("malformed %s object: %w", key, err)
	}
	return out, nil
}

// briefBlock renders the brief the way every prompt embeds it.
func briefBlock(title, description string, requirements []string) string {
	reqs := "none"
	if len(requirements) > 0 {
		reqs = strings.Join(requirements, ", ")
	}
	return fmt.Sprintf("Title: %s\nDescription: %s\nRequirements: %s", title, description, reqs)
}

func nonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

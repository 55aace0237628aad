package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseError reports model output that did not decode as the expected JSON.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("decoding model output as JSON: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StripFence removes at most one leading markdown code fence (with an
// optional language tag such as "json") and at most one trailing fence.
func StripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = s[3:]
		nl := strings.IndexByte(s, '\n')
		if nl >= 0 && isFenceTag(s[:nl]) {
			s = s[nl+1:]
		} else if nl < 0 && isFenceTag(s) {
			s = ""
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func isFenceTag(s string) bool {
	s = strings.TrimSpace(s)
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}

// DecodeJSON strips a code fence from raw and decodes the remainder into v.
// Any failure is returned as a *ParseError.
func DecodeJSON(raw string, v any) error {
	body := StripFence(raw)
	if body == "" {
		return &ParseError{Raw: raw, Err: fmt.Errorf("empty output")}
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return &ParseError{Raw: raw, Err: err}
	}
	return nil
}

package generation

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSONArray returns the elements of the first well-formed JSON array in raw.
// Models often wrap the array in prose or code fences, so every '[' is tried in turn.
func ExtractJSONArray(raw string) ([]json.RawMessage, error) {
	for start := strings.IndexByte(raw, '['); start != -1; {
		if end, ok := matchBracket(raw, start); ok {
			var elems []json.RawMessage
			if err := json.Unmarshal([]byte(raw[start:end+1]), &elems); err == nil {
				return elems, nil
			}
		}
		next := strings.IndexByte(raw[start+1:], '[')
		if next == -1 {
			break
		}
		start += next + 1
	}
	return nil, fmt.Errorf("%w: no JSON array in model output", ErrParse)
}

// matchBracket finds the ']' closing the '[' at start, skipping brackets inside strings
func matchBracket(s string, start int) (int, bool) {
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
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				return i, c == ']'
			}
		}
	}
	return 0, false
}

package contentgen

import (
	"encoding/json"
	"strings"
)

// Repair normalizes near-valid JSON text produced by a model into text a
// strict parser can accept. It is a pure function: it never fails, and
// input that is already valid JSON comes back as the same value.
//
// Fixes applied, in order:
//   - markdown code fences and prose around the first JSON object or array
//   - single-quoted strings, bare object keys, Python-style literals
//   - raw control characters inside strings
//   - trailing commas before a closing bracket
//   - unterminated strings and unclosed brackets at end of input
//
// Output that is still not valid JSON fails the subsequent parse, which the
// caller treats like any other parse failure.
func Repair(text string) string {
	s := strings.TrimSpace(text)
	if json.Valid([]byte(s)) {
		return s
	}

	s = stripFences(s)
	s = extractValue(s)
	return normalize(s)
}

// stripFences returns the body of the first ``` fenced block, if any.
func stripFences(s string) string {
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	body := s[start+3:]
	// Drop the info string ("json", "JSON5", ...).
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		if !strings.ContainsAny(body[:nl], "{[") {
			body = body[nl+1:]
		}
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// extractValue cuts s down to the first top-level object or array. If the
// value never closes, everything from its opening bracket is kept.
func extractValue(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}

	depth := 0
	var quote byte
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return s[start:]
}

// normalize rewrites JSON-like text token by token.
func normalize(s string) string {
	out := make([]byte, 0, len(s)+8)
	var stack []byte

	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '"' || c == '\'':
			var str []byte
			str, i = readString(s, i)
			out = append(out, str...)

		case c == '{' || c == '[':
			stack = append(stack, c)
			out = append(out, c)
			i++

		case c == '}' || c == ']':
			open := byte('{')
			if c == ']' {
				open = '['
			}
			idx := lastIndexByte(stack, open)
			if idx < 0 {
				// Stray closer with nothing to close.
				i++
				continue
			}
			for len(stack) > idx {
				out = closeContainer(out, stack[len(stack)-1])
				stack = stack[:len(stack)-1]
			}
			i++

		case isIdentStart(c):
			j := i + 1
			for j < len(s) && isIdentPart(s[j]) {
				j++
			}
			word := s[i:j]
			if inObject(stack) && nextNonSpace(s, j) == ':' {
				out = append(out, '"')
				out = append(out, word...)
				out = append(out, '"')
			} else {
				out = append(out, literal(word)...)
			}
			i = j

		default:
			out = append(out, c)
			i++
		}
	}

	for len(stack) > 0 {
		out = closeContainer(out, stack[len(stack)-1])
		stack = stack[:len(stack)-1]
	}
	return strings.TrimSpace(string(out))
}

// readString reads a quoted string starting at s[i] and returns it as a
// double-quoted JSON string along with the index after it. Unterminated
// strings are closed at end of input.
func readString(s string, i int) ([]byte, int) {
	quote := s[i]
	out := []byte{'"'}
	i++
	for i < len(s) {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			next := s[i+1]
			if quote == '\'' && next == '\'' {
				out = append(out, '\'')
			} else {
				out = append(out, c, next)
			}
			i += 2
			continue
		case c == '\\':
			// Dangling backslash at end of input.
			i++
			continue
		case c == quote:
			out = append(out, '"')
			return out, i + 1
		case c == '"':
			// Only reachable inside a single-quoted string.
			out = append(out, '\\', '"')
		case c == '\n':
			out = append(out, '\\', 'n')
		case c == '\r':
			out = append(out, '\\', 'r')
		case c == '\t':
			out = append(out, '\\', 't')
		default:
			out = append(out, c)
		}
		i++
	}
	out = append(out, '"')
	return out, i
}

// closeContainer drops a trailing comma (and a dangling key separator) and
// appends the closer for open.
func closeContainer(out []byte, open byte) []byte {
	out = trimRightSpace(out)
	if n := len(out); n > 0 && out[n-1] == ',' {
		out = trimRightSpace(out[:n-1])
	}
	if n := len(out); n > 0 && out[n-1] == ':' {
		out = append(out, "null"...)
	}
	if open == '{' {
		return append(out, '}')
	}
	return append(out, ']')
}

func literal(word string) string {
	switch word {
	case "True":
		return "true"
	case "False":
		return "false"
	case "None", "undefined":
		return "null"
	}
	return word
}

func inObject(stack []byte) bool {
	return len(stack) > 0 && stack[len(stack)-1] == '{'
}

func nextNonSpace(s string, i int) byte {
	for ; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return s[i]
	}
	return 0
}

func trimRightSpace(b []byte) []byte {
	for len(b) > 0 {
		switch b[len(b)-1] {
		case ' ', '\t', '\n', '\r':
			b = b[:len(b)-1]
			continue
		}
		break
	}
	return b
}

func lastIndexByte(b []byte, c byte) int {
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] == c {
			return i
		}
	}
	return -1
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9') || c == '-'
}

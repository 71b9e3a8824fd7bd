package oracle

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ParseError is returned when an oracle response cannot be decoded even
// after repair. Raw keeps the original text for diagnostics.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	raw := e.Raw
	if len(raw) > 200 {
		raw = raw[:200] + "..."
	}
	return fmt.Sprintf("oracle: unparseable response: %v (raw: %q)", e.Err, raw)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ExtractJSON strips markdown fences and any text around the first
// top-level JSON object or array.
func ExtractJSON(content string) string {
	s := strings.TrimSpace(content)

	if strings.HasPrefix(s, "```") {
		lines := strings.Split(s, "\n")
		lines = lines[1:]
		if n := len(lines); n > 0 && strings.TrimSpace(lines[n-1]) == "```" {
			lines = lines[:n-1]
		}
		s = strings.TrimSpace(strings.Join(lines, "\n"))
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	s = s[start:]

	open, close := s[0], byte('}')
	if open == '[' {
		close = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
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
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return s
}

var repairs = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`'([^']*)'\s*:`), `"$1":`},
	{regexp.MustCompile(`:\s*'([^']*)'`), `: "$1"`},
	{regexp.MustCompile(`([{,]\s*)([a-zA-Z_][a-zA-Z0-9_]*)\s*:`), `$1"$2":`},
	{regexp.MustCompile(`,(\s*[}\]])`), `$1`},
	{regexp.MustCompile(`-Infinity\b`), `null`},
	{regexp.MustCompile(`\bInfinity\b`), `null`},
	{regexp.MustCompile(`\bNaN\b`), `null`},
	{regexp.MustCompile(`\bTrue\b`), `true`},
	{regexp.MustCompile(`\bFalse\b`), `false`},
	{regexp.MustCompile(`\bNone\b`), `null`},
}

// RepairJSON fixes the syntax slips vision models commonly make: single
// quotes, unquoted keys, trailing commas, NaN/Infinity and Python literals.
func RepairJSON(content string) string {
	for _, r := range repairs {
		content = r.re.ReplaceAllString(content, r.repl)
	}
	return content
}

// Decode parses an oracle response into v. It tries the extracted text
// first and the repaired text second. On failure it returns *ParseError.
func Decode(content string, v any) error {
	extracted := ExtractJSON(content)
	if extracted == "" {
		return &ParseError{Raw: content, Err: fmt.Errorf("empty response")}
	}

	err := json.Unmarshal([]byte(extracted), v)
	if err == nil {
		return nil
	}

	if rerr := json.Unmarshal([]byte(RepairJSON(extracted)), v); rerr == nil {
		return nil
	}
	return &ParseError{Raw: content, Err: err}
}

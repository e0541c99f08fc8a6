package extract

import (
	"regexp"
	"strings"
)

var (
	thinkRe  = regexp.MustCompile(`(?is)<think>.*?</think>`)
	outputRe = regexp.MustCompile(`(?is)<output>(.*?)</output>`)
	openRe   = regexp.MustCompile(`<(\w+)>`)
)

// Result maps a field key to its extracted value.
type Result map[string]string

// StripThinking removes every <think>…</think> region.
func StripThinking(text string) string {
	return thinkRe.ReplaceAllString(text, "")
}

// TagBlock extracts the first <output>…</output> block (case-insensitive)
// and collects every <name>value</name> pair inside it. Values are trimmed;
// a later duplicate overwrites an earlier one. Text outside tag pairs is
// ignored, as is an open tag without a matching close tag.
func TagBlock(text string) (Result, error) {
	stripped := StripThinking(text)

	m := outputRe.FindStringSubmatch(stripped)
	if m == nil {
		return nil, &ExtractionError{Reason: "no output block", Raw: text, Processed: stripped}
	}

	return pairs(m[1]), nil
}

// pairs scans body for <name>value</name>. RE2 has no backreferences, so the
// matching close tag is located with a plain search after each open tag.
func pairs(body string) Result {
	res := Result{}

	pos := 0
	for pos < len(body) {
		loc := openRe.FindStringSubmatchIndex(body[pos:])
		if loc == nil {
			break
		}

		name := body[pos+loc[2] : pos+loc[3]]
		start := pos + loc[1]

		end := strings.Index(body[start:], "</"+name+">")
		if end < 0 {
			pos = start
			continue
		}

		res[name] = strings.TrimSpace(body[start : start+end])
		pos = start + end + len(name) + 3
	}

	return res
}

// Element returns the trimmed content of the first <name>…</name> element
// anywhere in text (thinking regions excluded). The bool is false when no
// such element exists.
func Element(text, name string) (string, bool) {
	stripped := StripThinking(text)

	open := "<" + name + ">"
	i := strings.Index(stripped, open)
	if i < 0 {
		return "", false
	}

	rest := stripped[i+len(open):]
	j := strings.Index(rest, "</"+name+">")
	if j < 0 {
		return "", false
	}

	return strings.TrimSpace(rest[:j]), true
}

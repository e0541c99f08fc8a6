package storybound

import (
	"regexp"
	"strings"
)

// speakerWindow bounds how far into a reply a "Speaker:" prefix may end.
const speakerWindow = 50

// PostProcess cleans an in-character reply: a short speaker tag such as
// "Holmes:" before the first colon is dropped, then a leading restatement of
// the character's name (or the literal "{character_name}:"), and finally
// blank lines at the start and end.
//
// Only a single-line prefix without sentence punctuation, not ending in a
// digit, counts as a speaker tag. "I was there. Listen: ..." and "At 10:30 we
// left" are kept whole.
func PostProcess(text, characterName string) string {
	return newReplyCleaner(characterName).clean(text)
}

// replyCleaner holds the name pattern of one character. A Conversation builds
// it once and reuses it for every reply.
type replyCleaner struct {
	nameRe *regexp.Regexp
}

func newReplyCleaner(characterName string) *replyCleaner {
	return &replyCleaner{
		nameRe: regexp.MustCompile(`(?i)^\s*(` + regexp.QuoteMeta(characterName) + `|\{character_name\}):\s*`),
	}
}

func (r *replyCleaner) clean(text string) string {
	out := text

	if i := strings.Index(out, ":"); i >= 0 && i < speakerWindow && isSpeakerTag(out[:i]) {
		out = out[i+1:]
	}
	out = r.nameRe.ReplaceAllString(out, "")

	return trimBlankLines(out)
}

func isSpeakerTag(prefix string) bool {
	p := strings.TrimSpace(prefix)
	if p == "" || strings.ContainsAny(p, "\n.!?") {
		return false
	}
	last := p[len(p)-1]
	return last < '0' || last > '9'
}

func trimBlankLines(s string) string {
	lines := strings.Split(s, "\n")

	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}

	lines = lines[start:end]
	if len(lines) > 0 {
		lines[0] = strings.TrimLeft(lines[0], " \t")
		lines[len(lines)-1] = strings.TrimRight(lines[len(lines)-1], " \t\r")
	}
	return strings.Join(lines, "\n")
}

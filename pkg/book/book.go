// Package book holds the read-only story documents characters are played
// from: book metadata, summaries, character profiles and chapter digests.
package book

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Book is one story document.
type Book struct {
	ID         string      `json:"-"` // File stem the book was loaded from.
	Basic      Basic       `json:"basic"`
	Summary    Summary     `json:"summary"`
	Characters []Character `json:"characters"`
	Chapters   []Chapter   `json:"chapters"`
}

// Basic identifies the book.
type Basic struct {
	Title  string `json:"title"`
	Author string `json:"author"`
}

// Summary carries the short pitch and the long overview. The overview is kept
// verbatim because documents use either a string or a structured object.
type Summary struct {
	ElevatorPitch    string          `json:"elevator_pitch"`
	ExpandedOverview json.RawMessage `json:"expanded_overview,omitempty"`
}

// Character is one character record; it is sent to the model as indented JSON.
type Character struct {
	Name            string  `json:"name"`
	PrimaryRole     string  `json:"primary_role"`
	RealLifeSummary string  `json:"real_life_summary"`
	StoryImpact     string  `json:"story_impact"`
	Profile         Profile `json:"character_profile"`
}

// Profile describes how a character looks, behaves and talks.
type Profile struct {
	Appearance  string `json:"appearance"`
	Personality string `json:"personality"`
	VoiceStyle  string `json:"voice_style"`
}

// Chapter summarises one chapter. Number is as written in the document;
// relevance answers refer to chapters by position instead.
type Chapter struct {
	Number        Number         `json:"chapter_num"`
	Title         string         `json:"chapter_title"`
	Summary       string         `json:"chapter_summary"`
	KeyCharacters []KeyCharacter `json:"key_characters,omitempty"`
	MajorThemes   []string       `json:"major_themes,omitempty"`
	PivotalEvents []string       `json:"pivotal_events,omitempty"`
	NotableQuotes []Quote        `json:"notable_quotes,omitempty"`
}

// KeyCharacter is a character's part in a single chapter.
type KeyCharacter struct {
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
	Arc  string `json:"arc,omitempty"`
}

// Quote is a notable line from a chapter.
type Quote struct {
	Quote        string `json:"quote"`
	Speaker      string `json:"speaker,omitempty"`
	Significance string `json:"significance,omitempty"`
}

// Number is a chapter number that decodes from either a JSON number or a
// numeric string ("3"). Anything else decodes to zero.
type Number int

func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*n = Number(f)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("book: chapter number: %w", err)
	}

	s = strings.TrimSpace(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "chapter"))
	v, err := strconv.Atoi(s)
	if err != nil {
		*n = 0
		return nil
	}
	*n = Number(v)
	return nil
}

// Parse decodes a book document and checks the fields every conversation
// relies on.
func Parse(data []byte) (*Book, error) {
	var b Book
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("book: decode: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Validate requires a title and at least one uniquely named character.
func (b *Book) Validate() error {
	if strings.TrimSpace(b.Basic.Title) == "" {
		return fmt.Errorf("book: basic.title is required")
	}
	if len(b.Characters) == 0 {
		return fmt.Errorf("book %q: at least one character is required", b.Basic.Title)
	}

	seen := make(map[string]struct{}, len(b.Characters))
	for i, c := range b.Characters {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" {
			return fmt.Errorf("book %q: character %d: name is required", b.Basic.Title, i+1)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("book %q: duplicate character %q", b.Basic.Title, c.Name)
		}
		seen[name] = struct{}{}
	}

	return nil
}

// Character finds a character by name, ignoring case and surrounding space.
func (b *Book) Character(name string) (*Character, bool) {
	want := strings.TrimSpace(name)
	for i := range b.Characters {
		if strings.EqualFold(b.Characters[i].Name, want) {
			return &b.Characters[i], true
		}
	}
	return nil, false
}

// CharacterNames lists character names in document order.
func (b *Book) CharacterNames() []string {
	names := make([]string, len(b.Characters))
	for i, c := range b.Characters {
		names[i] = c.Name
	}
	return names
}

// ChaptersAt maps 1-indexed positions to chapters. Positions outside
// [1, len(Chapters)] are dropped; order and repeats are preserved.
func (b *Book) ChaptersAt(positions []int) []Chapter {
	var out []Chapter
	for _, p := range positions {
		if p < 1 || p > len(b.Chapters) {
			continue
		}
		out = append(out, b.Chapters[p-1])
	}
	return out
}

// Overview returns the expanded overview as indented JSON, or "" if absent.
func (s Summary) Overview() string {
	if len(bytes.TrimSpace(s.ExpandedOverview)) == 0 {
		return ""
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, s.ExpandedOverview, "", "  "); err != nil {
		return string(s.ExpandedOverview)
	}
	return buf.String()
}

// Indent renders v as two-space indented JSON, the form context is handed
// to the model in.
func Indent(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("book: encode: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

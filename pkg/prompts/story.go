package prompts

import (
	"github.com/germanamz/taskbot/pkg/book"
)

// BuildIntentPrompt renders the intent classification prompt for query.
func (s Set) BuildIntentPrompt(query string, b *book.Book, c *book.Character) string {
	return Render(s[Intent], map[string]string{
		"query":             query,
		"character_name":    c.Name,
		"character_summary": c.RealLifeSummary,
		"book_title":        b.Basic.Title,
		"book_summary":      b.Summary.ElevatorPitch,
	})
}

// BuildChapterRelevancePrompt renders the chapter ranking prompt with every
// chapter serialized as indented JSON.
func (s Set) BuildChapterRelevancePrompt(query string, chapters []book.Chapter) (string, error) {
	data, err := book.Indent(chapters)
	if err != nil {
		return "", err
	}

	return Render(s[Relevance], map[string]string{
		"user_query":   query,
		"chapter_data": data,
	}), nil
}

// BuildCharacterSystemPrompt renders the role-play system instruction.
func (s Set) BuildCharacterSystemPrompt(b *book.Book, c *book.Character) string {
	return Render(s[CharacterSystem], map[string]string{
		"character_name":         c.Name,
		"character_primary_role": c.PrimaryRole,
		"story_title":            b.Basic.Title,
		"character_story_impact": c.StoryImpact,
		"character_appearance":   c.Profile.Appearance,
		"character_personality":  c.Profile.Personality,
		"character_voice_style":  c.Profile.VoiceStyle,
	})
}

// BuildCharacterPrompt renders the per-turn in-character prompt.
func (s Set) BuildCharacterPrompt(c *book.Character, query, contextData string) string {
	return Render(s[Character], map[string]string{
		"context_data":   contextData,
		"character_name": c.Name,
		"query":          query,
	})
}

package storybound

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/germanamz/taskbot/pkg/book"
	"github.com/germanamz/taskbot/pkg/chats/chat"
	"github.com/germanamz/taskbot/pkg/chats/message"
	"github.com/germanamz/taskbot/pkg/extract"
	"github.com/germanamz/taskbot/pkg/modeladapter"
	"github.com/germanamz/taskbot/pkg/prompts"
	"github.com/germanamz/taskbot/pkg/retry"
)

// Intent labels the classifier is asked to choose from. The model may answer
// with any other label; such turns get no extra context.
const (
	IntentNonStory     = "non_story_related"
	IntentStoryGeneral = "story_general"
	IntentChapter      = "story_specific_chapter"
	IntentCharacter    = "character_related"
	IntentAmbiguous    = "ambiguous"
	IntentUnknown      = "n/a" // Classification failed or came back empty.
)

// noRelevantChapters is the context of a chapter question no chapter matched.
const noRelevantChapters = "n/a"

// ErrEmptyQuery is returned by Send for a blank query.
var ErrEmptyQuery = errors.New("storybound: query is empty")

// LogEntry records how one turn was routed.
type LogEntry struct {
	Intent     string
	Chapters   []int    // Resolved chapter numbers for chapter questions.
	Characters []string // Character records given as context.
}

// Reply is the outcome of one turn.
type Reply struct {
	Text string // Post-processed text, as appended to History.
	Raw  string // Model text as received.
	Log  LogEntry
}

// Conversation is the state of one chat with one character. History holds
// the raw user queries and the post-processed replies.
type Conversation struct {
	ID        string
	Book      *book.Book
	Character *book.Character
	History   *chat.Chat
	Log       []LogEntry

	completer modeladapter.Completer
	cleaner   *replyCleaner
	opts      Options
	log       *slog.Logger
}

// Send answers query in character. Intent and relevance failures only
// degrade the context. The reply call itself is not retried: on failure the
// user message stays in History, no reply is appended and the error is
// returned.
func (c *Conversation) Send(ctx context.Context, query string) (Reply, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Reply{}, ErrEmptyQuery
	}

	entry := LogEntry{Intent: c.classify(ctx, query)}
	if c.opts.Intents != nil {
		c.opts.Intents.ObserveIntent(entry.Intent)
	}

	extra := c.extraContext(ctx, query, &entry)

	prior := c.History.Messages()
	c.History.Append(message.User(query))

	prompt := c.opts.Prompts.BuildCharacterPrompt(c.Character, query, extra)
	raw, err := c.completer.Complete(ctx, modeladapter.Request{
		System:      c.opts.Prompts.BuildCharacterSystemPrompt(c.Book, c.Character),
		Messages:    append(prior, message.User(prompt)),
		Temperature: c.opts.Character.Temperature,
		MaxTokens:   c.opts.Character.MaxTokens,
	})
	if err != nil {
		c.log.ErrorContext(ctx, "storybound: reply failed", "intent", entry.Intent, "error", err)
		return Reply{Log: entry}, err
	}

	text := c.cleaner.clean(raw)
	c.History.Append(message.Assistant(text))
	c.Log = append(c.Log, entry)

	c.log.InfoContext(ctx, "storybound: turn completed",
		"turn", c.History.Turns(),
		"history", c.History.Len(),
		"intent", entry.Intent,
		"chapters", entry.Chapters,
		"context_chars", len(extra),
	)

	return Reply{Text: text, Raw: raw, Log: entry}, nil
}

func (c *Conversation) policy(name string) retry.Policy {
	return retry.Policy{
		Name:        name,
		MaxAttempts: c.opts.JSONAttempts,
		Logger:      c.log,
		Observer:    c.opts.Observer,
	}
}

// call issues a single-message request for the JSON side calls.
func (c *Conversation) call(system, prompt string, s Sampling) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		return c.completer.Complete(ctx, modeladapter.Request{
			System:      system,
			Messages:    []message.Message{message.User(prompt)},
			Temperature: s.Temperature,
			MaxTokens:   s.MaxTokens,
		})
	}
}

type intentReply struct {
	Intent string `json:"intent"`
}

func (c *Conversation) classify(ctx context.Context, query string) string {
	prompt := c.opts.Prompts.BuildIntentPrompt(query, c.Book, c.Character)

	got, _ := retry.Reparse(ctx, c.policy("intent"),
		c.call(c.opts.Prompts[prompts.IntentSystem], prompt, c.opts.Intent),
		func(text string) (intentReply, error) {
			var r intentReply
			return r, extract.JSONBlock(text, &r)
		},
	)

	intent := strings.TrimSpace(got.Intent)
	if intent == "" {
		return IntentUnknown
	}
	return intent
}

// extraContext builds the story material handed to the character prompt.
func (c *Conversation) extraContext(ctx context.Context, query string, entry *LogEntry) string {
	switch strings.ToLower(entry.Intent) {
	case IntentCharacter:
		var b strings.Builder
		b.WriteString(c.Book.Summary.Overview())
		b.WriteString("\n\nCharacters:\n")
		for _, ch := range c.Book.Characters {
			data, err := book.Indent(ch)
			if err != nil {
				c.log.WarnContext(ctx, "storybound: encode character", "character", ch.Name, "error", err)
				continue
			}
			b.WriteString(data)
			b.WriteString("\n\n")
			entry.Characters = append(entry.Characters, ch.Name)
		}
		return b.String()

	case IntentStoryGeneral:
		data, err := book.Indent(c.Book.Summary)
		if err != nil {
			c.log.WarnContext(ctx, "storybound: encode summary", "error", err)
			return ""
		}
		return data

	case IntentChapter:
		chapters := c.relevantChapters(ctx, query)
		if len(chapters) == 0 {
			return noRelevantChapters
		}
		for _, ch := range chapters {
			entry.Chapters = append(entry.Chapters, int(ch.Number))
		}
		data, err := book.Indent(chapters)
		if err != nil {
			c.log.WarnContext(ctx, "storybound: encode chapters", "error", err)
			return noRelevantChapters
		}
		return data
	}

	return ""
}

type relevanceReply struct {
	RelevantChapters []struct {
		ChapterNum book.Number `json:"chapter_num"`
	} `json:"relevant_chapters"`
}

// relevantChapters asks which chapters bear on query. The numbers the model
// returns are positions in the chapter list, counted from 1.
func (c *Conversation) relevantChapters(ctx context.Context, query string) []book.Chapter {
	if len(c.Book.Chapters) == 0 {
		return nil
	}

	prompt, err := c.opts.Prompts.BuildChapterRelevancePrompt(query, c.Book.Chapters)
	if err != nil {
		c.log.WarnContext(ctx, "storybound: build relevance prompt", "error", err)
		return nil
	}

	got, _ := retry.Reparse(ctx, c.policy("relevance"),
		c.call(c.opts.Prompts[prompts.RelevanceSystem], prompt, c.opts.Relevance),
		func(text string) (relevanceReply, error) {
			var r relevanceReply
			return r, extract.JSONBlock(text, &r)
		},
	)

	positions := make([]int, len(got.RelevantChapters))
	for i, rc := range got.RelevantChapters {
		positions[i] = int(rc.ChapterNum)
	}
	return c.Book.ChaptersAt(positions)
}

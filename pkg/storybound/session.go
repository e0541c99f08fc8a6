// Package storybound runs in-character conversations about a book. A Session
// walks the selection steps (book, then character) and owns the active
// Conversation, which answers each user query in three model calls at most:
// intent classification, chapter relevance (only for chapter questions) and
// the in-character reply.
package storybound

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/germanamz/taskbot/pkg/book"
	"github.com/germanamz/taskbot/pkg/chats/chat"
	"github.com/germanamz/taskbot/pkg/modeladapter"
	"github.com/germanamz/taskbot/pkg/prompts"
	"github.com/germanamz/taskbot/pkg/retry"
)

// State is a step of the selection flow.
type State int

const (
	SelectingBook State = iota
	SelectingCharacter
	Chatting
)

func (s State) String() string {
	switch s {
	case SelectingBook:
		return "selecting_book"
	case SelectingCharacter:
		return "selecting_character"
	case Chatting:
		return "chatting"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	// ErrWrongState is returned when an operation does not apply to the
	// current step.
	ErrWrongState = errors.New("storybound: operation not allowed in current state")

	ErrUnknownBook      = errors.New("storybound: unknown book")
	ErrUnknownCharacter = errors.New("storybound: unknown character")
)

// Sampling holds the generation parameters of one kind of call.
type Sampling struct {
	Temperature float64
	MaxTokens   int
}

// IntentObserver is told the intent of every turn. *metrics.Recorder
// satisfies it.
type IntentObserver interface {
	ObserveIntent(intent string)
}

// Options configures a Session.
type Options struct {
	Prompts      prompts.Set // Required; see prompts.LoadSet.
	Intent       Sampling
	Relevance    Sampling
	Character    Sampling
	JSONAttempts int // Cap for intent and relevance parsing; 0 uses retry.DefaultMaxAttempts.
	Logger       *slog.Logger
	Observer     retry.Observer
	Intents      IntentObserver
}

// DefaultOptions returns options with the conversation sampling defaults.
func DefaultOptions(set prompts.Set) Options {
	s := Sampling{Temperature: 0.6, MaxTokens: 2048}
	return Options{
		Prompts:      set,
		Intent:       s,
		Relevance:    s,
		Character:    s,
		JSONAttempts: retry.DefaultMaxAttempts,
	}
}

// Session is the selection state machine. It is not safe for concurrent use.
type Session struct {
	lib       *book.Library
	completer modeladapter.Completer
	opts      Options

	state State
	book  *book.Book
	conv  *Conversation
}

// NewSession starts a session in SelectingBook.
func NewSession(lib *book.Library, c modeladapter.Completer, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Session{lib: lib, completer: c, opts: opts}
}

// State returns the current step.
func (s *Session) State() State { return s.state }

// Books lists the IDs of the selectable books.
func (s *Session) Books() []string { return s.lib.IDs() }

// Book returns the selected book, or nil before SelectBook.
func (s *Session) Book() *book.Book { return s.book }

// Conversation returns the active conversation, or nil outside Chatting.
func (s *Session) Conversation() *Conversation { return s.conv }

// SelectBook picks a book and moves to SelectingCharacter.
func (s *Session) SelectBook(id string) error {
	if s.state != SelectingBook {
		return ErrWrongState
	}

	b, ok := s.lib.Get(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownBook, id)
	}

	s.book = b
	s.state = SelectingCharacter
	s.opts.Logger.Info("storybound: book selected", "book", id)

	return nil
}

// Characters lists the selected book's character names.
func (s *Session) Characters() ([]string, error) {
	if s.book == nil {
		return nil, ErrWrongState
	}
	return s.book.CharacterNames(), nil
}

// SelectCharacter completes the selection and starts a fresh conversation.
func (s *Session) SelectCharacter(name string) (*Conversation, error) {
	if s.state != SelectingCharacter {
		return nil, ErrWrongState
	}

	c, ok := s.book.Character(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCharacter, name)
	}

	id := uuid.NewString()
	s.conv = &Conversation{
		ID:        id,
		Book:      s.book,
		Character: c,
		History:   chat.New(),
		completer: s.completer,
		cleaner:   newReplyCleaner(c.Name),
		opts:      s.opts,
		log:       s.opts.Logger.With("conversation", id, "character", c.Name),
	}
	s.state = Chatting

	s.conv.log.Info("storybound: conversation started", "book", s.book.ID)

	return s.conv, nil
}

// Back discards the conversation and the book choice and returns to
// SelectingBook. It is valid in every state.
func (s *Session) Back() {
	if s.conv != nil {
		s.conv.log.Info("storybound: conversation discarded", "turns", len(s.conv.Log))
	}
	s.conv = nil
	s.book = nil
	s.state = SelectingBook
}

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/huh/spinner"
	"github.com/spf13/cobra"

	"github.com/germanamz/taskbot/pkg/book"
	"github.com/germanamz/taskbot/pkg/storybound"
)

const chatHelp = "Type a question and press enter. /back picks another book, /log shows how turns were routed, /quit exits."

func newChatCommand(ctx *commandContext) *cobra.Command {
	var bookID, character string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to a character from one of your books",
		Long: "Talk to a character from one of the book documents in books_dir.\n\n" + chatHelp,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			lib, err := ctx.library()
			if err != nil {
				return err
			}
			set, err := ctx.promptSet()
			if err != nil {
				return err
			}
			comp, _, err := ctx.completer()
			if err != nil {
				return err
			}

			opts := storybound.DefaultOptions(set)
			opts.Intent = storybound.Sampling(cfg.Generation.Intent)
			opts.Relevance = storybound.Sampling(cfg.Generation.Relevance)
			opts.Character = storybound.Sampling(cfg.Generation.Character)
			opts.JSONAttempts = cfg.Retry.JSONAttempts
			opts.Logger = ctx.logger
			opts.Observer = ctx.recorder
			opts.Intents = ctx.recorder

			r := &chatREPL{
				ctx:         ctx,
				session:     storybound.NewSession(lib, comp, opts),
				in:          bufio.NewScanner(cmd.InOrStdin()),
				out:         cmd.OutOrStdout(),
				bookID:      bookID,
				character:   character,
				interactive: ctx.interactive(),
			}
			if r.interactive {
				initMarkdownRenderer(100)
			}
			return r.run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&bookID, "book", "b", "", "book ID (file name without .json); prompts when empty")
	cmd.Flags().StringVar(&character, "character", "", "character name; prompts when empty")

	return cmd
}

type chatREPL struct {
	ctx         *commandContext
	session     *storybound.Session
	in          *bufio.Scanner
	out         io.Writer
	interactive bool

	// Preselected by flags; consumed by the first selection.
	bookID    string
	character string
}

func (r *chatREPL) run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var err error
		switch r.session.State() {
		case storybound.SelectingBook:
			err = r.selectBook()
		case storybound.SelectingCharacter:
			err = r.selectCharacter()
		case storybound.Chatting:
			var done bool
			done, err = r.turn(ctx)
			if done {
				return err
			}
		}
		if err != nil {
			return err
		}
	}
}

func (r *chatREPL) selectBook() error {
	id := r.bookID
	r.bookID = ""

	if id == "" {
		if !r.interactive {
			return errors.New("chat: --book is required when not running in a terminal")
		}

		ids := r.session.Books()
		opts := make([]huh.Option[string], len(ids))
		for i, id := range ids {
			opts[i] = huh.NewOption(book.DisplayName(id), id)
		}
		if err := huh.NewForm(huh.NewGroup(
			huh.NewSelect[string]().Title("Choose a book").Options(opts...).Value(&id),
		)).Run(); err != nil {
			return err
		}
	}

	return r.session.SelectBook(id)
}

func (r *chatREPL) selectCharacter() error {
	name := r.character
	r.character = ""

	if name == "" {
		if !r.interactive {
			return errors.New("chat: --character is required when not running in a terminal")
		}

		names, err := r.session.Characters()
		if err != nil {
			return err
		}
		if err := huh.NewForm(huh.NewGroup(
			huh.NewSelect[string]().
				Title("Who would you like to talk to?").
				Options(huh.NewOptions(names...)...).
				Value(&name),
		)).Run(); err != nil {
			return err
		}
	}

	conv, err := r.session.SelectCharacter(name)
	if err != nil {
		return err
	}

	fmt.Fprintln(r.out, titleStyle.Render(fmt.Sprintf("%s · %s", conv.Book.Basic.Title, conv.Character.Name)))
	fmt.Fprintln(r.out, dimStyle.Render(chatHelp))
	return nil
}

// turn reads one line and handles it. done reports the end of the session.
func (r *chatREPL) turn(ctx context.Context) (done bool, err error) {
	fmt.Fprint(r.out, userPrefixStyle.Render("You > "))

	if !r.in.Scan() {
		fmt.Fprintln(r.out)
		return true, r.in.Err()
	}
	line := strings.TrimSpace(r.in.Text())

	switch line {
	case "":
		return false, nil
	case "/quit", "/exit":
		return true, nil
	case "/back":
		r.session.Back()
		return false, nil
	case "/log":
		r.printLog()
		return false, nil
	case "/help":
		fmt.Fprintln(r.out, dimStyle.Render(chatHelp))
		return false, nil
	}

	conv := r.session.Conversation()

	var reply storybound.Reply
	var sendErr error
	send := func() { reply, sendErr = conv.Send(ctx, line) }

	if r.interactive {
		if err := spinner.New().Title(randomThinkingMessage()).Context(ctx).Action(send).Run(); err != nil {
			return true, err
		}
	} else {
		send()
	}

	if sendErr != nil {
		if errors.Is(sendErr, context.Canceled) {
			return true, sendErr
		}
		fmt.Fprintln(r.out, errorBlockStyle.Render("error: "+sendErr.Error()))
		return false, nil
	}

	text := reply.Text
	if r.interactive {
		text = renderMarkdown(text)
	}
	fmt.Fprintln(r.out, answerPrefixStyle.Render(conv.Character.Name+" > "))
	fmt.Fprintln(r.out, answerBlockStyle.Render(text))

	return false, nil
}

func (r *chatREPL) printLog() {
	conv := r.session.Conversation()
	if len(conv.Log) == 0 {
		fmt.Fprintln(r.out, dimStyle.Render("no turns yet"))
		return
	}

	rows := make([][]string, len(conv.Log))
	for i, e := range conv.Log {
		chapters := make([]string, len(e.Chapters))
		for j, n := range e.Chapters {
			chapters[j] = fmt.Sprint(n)
		}
		rows[i] = []string{
			fmt.Sprint(i + 1),
			e.Intent,
			strings.Join(chapters, ", "),
			truncate(strings.Join(e.Characters, ", "), 60),
		}
	}
	fmt.Fprintln(r.out, renderTable([]string{"#", "Intent", "Chapters", "Characters"}, rows, []columnAlignment{alignRight}))
}

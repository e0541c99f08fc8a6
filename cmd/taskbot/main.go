// Command taskbot sends structured tasks, CSV batches and in-character chats
// to a configurable LLM provider.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := newRootCommand().ExecuteContext(ctx)
	cancel()

	if err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, errorBlockStyle.Render("error: "+err.Error()))
		}
		os.Exit(1)
	}
}

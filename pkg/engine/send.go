package engine

import (
	"context"

	"github.com/germanamz/taskbot/pkg/chats/message"
	"github.com/germanamz/taskbot/pkg/modeladapter"
)

// SendChat builds a completer for cfg and issues a single request. It is the
// one-shot form of BuildCompleter followed by Complete; callers that make
// many calls should build the completer once.
func SendChat(
	ctx context.Context,
	cfg ProviderConfig,
	messages []message.Message,
	systemInstruction string,
	temperature float64,
	maxTokens int,
) (string, error) {
	c, err := BuildCompleter(cfg, BuildOptions{})
	if err != nil {
		return "", err
	}

	return c.Complete(ctx, modeladapter.Request{
		System:      systemInstruction,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
}

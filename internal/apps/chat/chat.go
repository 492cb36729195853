// Package chat keeps a conversation and answers through a completion
// backend.
package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/bobmcallan/toolhost/internal/backend"
	"github.com/bobmcallan/toolhost/internal/codec"
	"github.com/bobmcallan/toolhost/internal/tool"
)

const Name = "chat"

type state struct {
	Conversation []string `cbor:"conversation"`
}

type Chat struct {
	st        state
	completer backend.Completer
}

func New(completer backend.Completer) *Chat {
	return &Chat{completer: completer}
}

func (c *Chat) Name() string { return Name }

func (c *Chat) RegisterTools(r *tool.Registrar) {
	r.Tool("chat").
		Describe("Send a message and get the assistant's reply.").
		Param("message", tool.String()).
		Returns(tool.String()).
		Handle(c.chat)

	r.Tool("conversation").
		Describe("The conversation so far, one line per turn.").
		Returns(tool.Sequence(tool.String())).
		ReadOnly().
		Handle(func(_ context.Context, _ tool.Args) (any, error) {
			return append([]string(nil), c.st.Conversation...), nil
		})
}

// chat records the user turn only once the backend has answered, so a
// failed completion leaves the conversation as it was.
func (c *Chat) chat(ctx context.Context, args tool.Args) (any, error) {
	user := "User: " + args.String("message")
	prompt := strings.Join(append(append([]string(nil), c.st.Conversation...), user), "\n") + "\nAssistant:"

	reply, err := c.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	reply = strings.TrimSpace(reply)
	c.st.Conversation = append(c.st.Conversation, user, "Assistant: "+reply)
	return reply, nil
}

func (c *Chat) Snapshot() any { return c.st }

func (c *Chat) Restore(raw codec.RawMessage) error {
	var st state
	if err := codec.Unmarshal(raw, &st); err != nil {
		return fmt.Errorf("decode chat state: %w", err)
	}
	c.st = st
	return nil
}

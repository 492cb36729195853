// Package ragchat is a retrieval-augmented chat: knowledge is embedded on
// insert and the best matches for each message are added to the prompt.
package ragchat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bobmcallan/toolhost/internal/backend"
	"github.com/bobmcallan/toolhost/internal/codec"
	"github.com/bobmcallan/toolhost/internal/tool"
)

const (
	Name        = "ragchat"
	DefaultTopK = 3
)

// Turn is one message of the conversation.
type Turn struct {
	Role    string `json:"role" cbor:"role"`
	Message string `json:"message" cbor:"message"`
}

// Document is a knowledge base entry.
type Document struct {
	Text      string    `cbor:"text"`
	Embedding []float64 `cbor:"embedding"`
}

// Backend is what RAGChat needs from the model service.
type Backend interface {
	backend.Completer
	backend.Embedder
}

type state struct {
	Conversation []Turn     `cbor:"conversation"`
	Knowledge    []Document `cbor:"knowledge"`
}

type RAGChat struct {
	st      state
	backend Backend
}

func New(b Backend) *RAGChat {
	return &RAGChat{backend: b}
}

func (c *RAGChat) Name() string { return Name }

var turnType = tool.Composite("Turn", tool.F("role", tool.String()), tool.F("message", tool.String()))

func (c *RAGChat) RegisterTools(r *tool.Registrar) {
	r.Tool("add_knowledge").
		Describe("Embed text and add it to the knowledge base.").
		Param("text", tool.String()).
		Returns(tool.String()).
		Handle(func(ctx context.Context, args tool.Args) (any, error) {
			text := args.String("text")
			vec, err := c.backend.Embed(ctx, text)
			if err != nil {
				return nil, err
			}
			c.st.Knowledge = append(c.st.Knowledge, Document{Text: text, Embedding: vec})
			return "Added to knowledge base: " + text, nil
		})

	r.Tool("retrieve").
		Describe("The knowledge base entries most similar to query.").
		Param("query", tool.String()).
		Param("top_k", tool.Optional(tool.Int(), tool.Null())).
		Returns(tool.Sequence(tool.String())).
		ReadOnly().
		Handle(func(ctx context.Context, args tool.Args) (any, error) {
			topK := int64(DefaultTopK)
			if args.Has("top_k") {
				topK = args.Int("top_k")
			}
			if topK < 0 {
				return nil, errors.New("top_k must not be negative")
			}
			return c.retrieve(ctx, args.String("query"), int(topK))
		})

	r.Tool("chat").
		Describe("Answer a message using the conversation and retrieved knowledge.").
		Param("message", tool.String()).
		Returns(tool.String()).
		Handle(c.chat)

	r.Tool("conversation").
		Describe("The conversation so far.").
		Returns(tool.Sequence(turnType)).
		ReadOnly().
		Handle(func(_ context.Context, _ tool.Args) (any, error) {
			return append([]Turn(nil), c.st.Conversation...), nil
		})
}

type scored struct {
	score float64
	text  string
}

// retrieve ranks documents by dot product with the query embedding.
func (c *RAGChat) retrieve(ctx context.Context, query string, topK int) ([]string, error) {
	if len(c.st.Knowledge) == 0 || topK == 0 {
		return []string{}, nil
	}
	q, err := c.backend.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	ranked := make([]scored, len(c.st.Knowledge))
	for i, doc := range c.st.Knowledge {
		ranked[i] = scored{score: dot(q, doc.Embedding), text: doc.Text}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if topK > len(ranked) {
		topK = len(ranked)
	}
	out := make([]string, topK)
	for i := range out {
		out[i] = ranked[i].text
	}
	return out, nil
}

func (c *RAGChat) chat(ctx context.Context, args tool.Args) (any, error) {
	message := args.String("message")
	docs, err := c.retrieve(ctx, message, DefaultTopK)
	if err != nil {
		return nil, err
	}

	turns := append(append([]Turn(nil), c.st.Conversation...), Turn{Role: "user", Message: message})
	var prompt strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&prompt, "%s: %s\n", capitalize(t.Role), t.Message)
	}
	prompt.WriteString("\nRelevant Information:\n")
	for _, d := range docs {
		fmt.Fprintf(&prompt, "- %s\n", d)
	}
	prompt.WriteString("\nAssistant:")

	reply, err := c.backend.Complete(ctx, prompt.String())
	if err != nil {
		return nil, err
	}
	reply = strings.TrimSpace(reply)
	c.st.Conversation = append(turns, Turn{Role: "assistant", Message: reply})
	return reply, nil
}

// dot truncates to the shorter vector.
func dot(a, b []float64) float64 {
	n := min(len(a), len(b))
	var sum float64
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (c *RAGChat) Snapshot() any { return c.st }

func (c *RAGChat) Restore(raw codec.RawMessage) error {
	var st state
	if err := codec.Unmarshal(raw, &st); err != nil {
		return fmt.Errorf("decode ragchat state: %w", err)
	}
	for i, d := range st.Knowledge {
		if len(d.Embedding) == 0 {
			return fmt.Errorf("knowledge entry %d has no embedding", i)
		}
	}
	for i, t := range st.Conversation {
		if t.Role != "user" && t.Role != "assistant" {
			return fmt.Errorf("conversation turn %d has unknown role %q", i, t.Role)
		}
	}
	c.st = st
	return nil
}

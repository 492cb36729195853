// Package echo is the smallest application: it returns what it is sent.
package echo

import (
	"context"
	"errors"
	"fmt"

	"github.com/bobmcallan/toolhost/internal/codec"
	"github.com/bobmcallan/toolhost/internal/tool"
)

const Name = "echo"

type state struct {
	Count int64 `cbor:"count"`
}

// Echo counts the messages it has echoed so snapshots carry some state.
type Echo struct {
	st state
}

func New() *Echo { return &Echo{} }

func (e *Echo) Name() string { return Name }

func (e *Echo) RegisterTools(r *tool.Registrar) {
	r.Tool("echo").
		Describe("Return the message unchanged.").
		Param("message", tool.String()).
		Returns(tool.String()).
		Handle(func(_ context.Context, args tool.Args) (any, error) {
			e.st.Count++
			return args.String("message"), nil
		})

	r.Tool("echo_ping").
		Describe("Liveness check; returns pong.").
		Returns(tool.String()).
		ReadOnly().
		Handle(func(_ context.Context, _ tool.Args) (any, error) {
			return "pong", nil
		})

	r.Tool("echo_count").
		Describe("Number of messages echoed so far.").
		Returns(tool.Int()).
		ReadOnly().
		Handle(func(_ context.Context, _ tool.Args) (any, error) {
			return e.st.Count, nil
		})
}

func (e *Echo) Snapshot() any { return e.st }

func (e *Echo) Restore(raw codec.RawMessage) error {
	var st state
	if err := codec.Unmarshal(raw, &st); err != nil {
		return fmt.Errorf("decode echo state: %w", err)
	}
	if st.Count < 0 {
		return errors.New("count must not be negative")
	}
	e.st = st
	return nil
}

// Package calculator is an integer calculator with an undoable operation
// history.
package calculator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/bobmcallan/toolhost/internal/codec"
	"github.com/bobmcallan/toolhost/internal/tool"
)

const Name = "calculator"

var (
	ErrDivideByZero = errors.New("cannot divide by zero")
	ErrModuloByZero = errors.New("cannot compute modulo with zero")
	ErrOverflow     = errors.New("result overflows int64")
	ErrNegativePow  = errors.New("exponent must not be negative")
)

// Operation is one entry of the history.
type Operation struct {
	Kind        string  `json:"kind" cbor:"kind"`
	Operands    []int64 `json:"operands" cbor:"operands"`
	Result      float64 `json:"result" cbor:"result"`
	Description string  `json:"description" cbor:"description"`
	Timestamp   string  `json:"timestamp" cbor:"timestamp"`
}

// OperationType describes Operation to the schema generator.
var OperationType = tool.Composite("Operation",
	tool.F("kind", tool.String()),
	tool.F("operands", tool.Sequence(tool.Int())),
	tool.F("result", tool.Float()),
	tool.F("description", tool.String()),
	tool.F("timestamp", tool.String()),
)

type state struct {
	Memory  float64     `cbor:"memory"`
	History []Operation `cbor:"history"`
	// Cursor indexes the current operation; -1 means none.
	Cursor int `cbor:"cursor"`
}

// Calculator holds the memory and history. It is not safe for concurrent
// use; the dispatch guard serializes access.
type Calculator struct {
	st  state
	now func() time.Time
}

func New() *Calculator {
	return &Calculator{st: state{Cursor: -1}, now: time.Now}
}

func (c *Calculator) Name() string { return Name }

func (c *Calculator) RegisterTools(r *tool.Registrar) {
	binary := func(member, symbol, doc string, fn func(a, b int64) (int64, error)) {
		r.Tool(member).
			Describe(doc).
			Param("a", tool.Int()).
			Param("b", tool.Int()).
			Returns(tool.Int()).
			Handle(func(_ context.Context, args tool.Args) (any, error) {
				a, b := args.Int("a"), args.Int("b")
				v, err := fn(a, b)
				if err != nil {
					return nil, err
				}
				c.record(member, fmt.Sprintf("%d %s %d = %d", a, symbol, b, v), float64(v), a, b)
				return v, nil
			})
	}

	binary("add", "+", "Add two integers.", checked((*big.Int).Add))
	binary("subtract", "-", "Subtract b from a.", checked((*big.Int).Sub))
	binary("multiply", "*", "Multiply two integers.", checked((*big.Int).Mul))
	binary("modulo", "%", "Remainder of a divided by b, with the sign of b.", Mod)
	binary("floor_divide", "//", "Divide a by b rounding toward negative infinity.", FloorDiv)

	r.Tool("divide").
		Describe("Divide a by b.").
		Param("a", tool.Int()).
		Param("b", tool.Int()).
		Returns(tool.Float()).
		Handle(func(_ context.Context, args tool.Args) (any, error) {
			a, b := args.Int("a"), args.Int("b")
			if b == 0 {
				return nil, ErrDivideByZero
			}
			v := float64(a) / float64(b)
			c.record("divide", fmt.Sprintf("%d / %d = %s", a, b, formatResult(v)), v, a, b)
			return v, nil
		})

	r.Tool("power").
		Describe("Raise base to a non-negative integer exponent.").
		Param("base", tool.Int()).
		Param("exponent", tool.Int()).
		Returns(tool.Int()).
		Handle(func(_ context.Context, args tool.Args) (any, error) {
			base, exp := args.Int("base"), args.Int("exponent")
			v, err := Pow(base, exp)
			if err != nil {
				return nil, err
			}
			c.record("power", fmt.Sprintf("%d ^ %d = %d", base, exp, v), float64(v), base, exp)
			return v, nil
		})

	r.Tool("absolute").
		Describe("Absolute value of x.").
		Param("x", tool.Int()).
		Returns(tool.Int()).
		Handle(func(_ context.Context, args tool.Args) (any, error) {
			x := args.Int("x")
			v, err := checked((*big.Int).Sub)(0, x)
			if err != nil {
				return nil, err
			}
			if x >= 0 {
				v = x
			}
			c.record("absolute", fmt.Sprintf("|%d| = %d", x, v), float64(v), x)
			return v, nil
		})

	r.Tool("undo_operation").
		Describe("Step back one operation in the history.").
		Returns(tool.String()).
		Handle(func(_ context.Context, _ tool.Args) (any, error) {
			if !c.undo() {
				return "No operation to undo.", nil
			}
			return "Undo successful. Current result: " + formatResult(c.current()), nil
		})

	r.Tool("redo_operation").
		Describe("Re-apply the next undone operation.").
		Returns(tool.String()).
		Handle(func(_ context.Context, _ tool.Args) (any, error) {
			if !c.redo() {
				return "No operation to redo.", nil
			}
			return "Redo successful. Current result: " + formatResult(c.current()), nil
		})

	r.Tool("current").
		Describe("The current result.").
		Returns(tool.Float()).
		ReadOnly().
		Handle(func(_ context.Context, _ tool.Args) (any, error) {
			return c.current(), nil
		})

	r.Tool("history").
		Describe("Operations up to and including the current one.").
		Returns(tool.Sequence(OperationType)).
		ReadOnly().
		Handle(func(_ context.Context, _ tool.Args) (any, error) {
			out := make([]Operation, c.st.Cursor+1)
			copy(out, c.st.History)
			return out, nil
		})
}

func (c *Calculator) current() float64 {
	if c.st.Cursor >= 0 && c.st.Cursor < len(c.st.History) {
		return c.st.History[c.st.Cursor].Result
	}
	return c.st.Memory
}

// record appends an operation, discarding any undone operations after the
// cursor.
func (c *Calculator) record(kind, description string, result float64, operands ...int64) {
	c.st.History = append(c.st.History[:c.st.Cursor+1], Operation{
		Kind:        kind,
		Operands:    operands,
		Result:      result,
		Description: description,
		Timestamp:   c.now().UTC().Format(time.RFC3339),
	})
	c.st.Cursor++
	c.st.Memory = result
}

func (c *Calculator) undo() bool {
	if c.st.Cursor < 0 {
		return false
	}
	c.st.Cursor--
	if c.st.Cursor >= 0 {
		c.st.Memory = c.st.History[c.st.Cursor].Result
	} else {
		c.st.Memory = 0
	}
	return true
}

func (c *Calculator) redo() bool {
	if c.st.Cursor >= len(c.st.History)-1 {
		return false
	}
	c.st.Cursor++
	c.st.Memory = c.st.History[c.st.Cursor].Result
	return true
}

func (c *Calculator) Snapshot() any { return c.st }

func (c *Calculator) Restore(raw codec.RawMessage) error {
	var st state
	if err := codec.Unmarshal(raw, &st); err != nil {
		return fmt.Errorf("decode calculator state: %w", err)
	}
	if st.Cursor < -1 || st.Cursor >= len(st.History) {
		return fmt.Errorf("cursor %d out of range for %d operations", st.Cursor, len(st.History))
	}
	c.st = st
	return nil
}

func checked(op func(z, x, y *big.Int) *big.Int) func(a, b int64) (int64, error) {
	return func(a, b int64) (int64, error) {
		z := op(new(big.Int), big.NewInt(a), big.NewInt(b))
		if !z.IsInt64() {
			return 0, ErrOverflow
		}
		return z.Int64(), nil
	}
}

// FloorDiv divides rounding toward negative infinity.
func FloorDiv(a, b int64) (int64, error) {
	if b == 0 {
		return 0, ErrDivideByZero
	}
	q, m := new(big.Int).DivMod(big.NewInt(a), big.NewInt(b), new(big.Int))
	// DivMod is Euclidean; shift to floor semantics for negative divisors.
	if m.Sign() != 0 && b < 0 {
		q.Sub(q, big.NewInt(1))
	}
	if !q.IsInt64() {
		return 0, ErrOverflow
	}
	return q.Int64(), nil
}

// Mod returns the remainder with the sign of b.
func Mod(a, b int64) (int64, error) {
	if b == 0 {
		return 0, ErrModuloByZero
	}
	r := a % b
	if r != 0 && (r < 0) != (b < 0) {
		r += b
	}
	return r, nil
}

// Pow raises base to a non-negative exponent.
func Pow(base, exp int64) (int64, error) {
	if exp < 0 {
		return 0, ErrNegativePow
	}
	z := new(big.Int).Exp(big.NewInt(base), big.NewInt(exp), nil)
	if !z.IsInt64() {
		return 0, ErrOverflow
	}
	return z.Int64(), nil
}

func formatResult(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

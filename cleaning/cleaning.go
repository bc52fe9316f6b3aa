// Package cleaning provides text-cleaning collaborators that normalise a
// definition before it is scored.
package cleaning

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Cleaner normalises definition text.
type Cleaner interface {
	Clean(ctx context.Context, text, begrip string) (string, error)
}

// Func adapts a function into a Cleaner.
type Func func(ctx context.Context, text, begrip string) (string, error)

// Clean implements Cleaner.
func (f Func) Clean(ctx context.Context, text, begrip string) (string, error) {
	return f(ctx, text, begrip)
}

// Chain runs cleaners in order, feeding each the previous output.
type Chain []Cleaner

// Clean implements Cleaner.
func (c Chain) Clean(ctx context.Context, text, begrip string) (string, error) {
	for i, cl := range c {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		out, err := cl.Clean(ctx, text, begrip)
		if err != nil {
			return "", fmt.Errorf("cleaner %d: %w", i, err)
		}
		text = out
	}
	return text, nil
}

// ErrEmptyResult is returned when cleaning removed all text.
var ErrEmptyResult = errors.New("cleaning produced empty text")

// Whitespace collapses runs of whitespace and trims the text.
var Whitespace = Func(func(ctx context.Context, text, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	out := strings.Join(strings.Fields(text), " ")
	if out == "" {
		return "", ErrEmptyResult
	}
	return out, nil
})

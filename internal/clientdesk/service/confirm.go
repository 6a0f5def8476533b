package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ResetWarning is shown before any destructive step of the admin reset.
const ResetWarning = "WARNING: This will DELETE ALL users and create a new admin user. Are you absolutely sure?"

// Confirmer asks the operator to approve a destructive action. Any error
// counts as a refusal.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

var (
	// AlwaysConfirm approves without asking, for scripted runs.
	AlwaysConfirm Confirmer = ConfirmFunc(func(context.Context, string) (bool, error) { return true, nil })

	// NeverConfirm refuses without asking.
	NeverConfirm Confirmer = ConfirmFunc(func(context.Context, string) (bool, error) { return false, nil })
)

// DefaultAcceptWords approve a PromptConfirmer that sets no Accept list.
var DefaultAcceptWords = []string{"yes", "y"}

// PromptConfirmer writes the prompt to Out and reads one line from In. Only
// a word in Accept (case-insensitive, DefaultAcceptWords when empty)
// approves. The first word is the one suggested to the operator.
type PromptConfirmer struct {
	In     io.Reader
	Out    io.Writer
	Accept []string
}

func (p PromptConfirmer) Confirm(ctx context.Context, prompt string) (bool, error) {
	accept := p.Accept
	if len(accept) == 0 {
		accept = DefaultAcceptWords
	}

	if p.Out != nil {
		if _, err := fmt.Fprintf(p.Out, "%s\nType %q to continue: ", prompt, accept[0]); err != nil {
			return false, err
		}
	}

	type answer struct {
		line string
		err  error
	}
	answers := make(chan answer, 1)

	// Share the caller's buffer when there is one so earlier reads from the
	// same input are not lost.
	reader, ok := p.In.(*bufio.Reader)
	if !ok {
		reader = bufio.NewReader(p.In)
	}

	// Reading blocks without a way to interrupt it, so the read runs on its
	// own goroutine and ctx decides how long we wait.
	go func() {
		line, err := reader.ReadString('\n')
		answers <- answer{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case a := <-answers:
		if a.err != nil && (!errors.Is(a.err, io.EOF) || a.line == "") {
			return false, a.err
		}
		return accepted(strings.TrimSpace(a.line), accept), nil
	}
}

func accepted(answer string, words []string) bool {
	for _, w := range words {
		if strings.EqualFold(answer, w) {
			return true
		}
	}
	return false
}

// Package prompt asks the operator whether to continue after a failure.
package prompt

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/forgearch/forge/pkg/engine"
	"github.com/forgearch/forge/pkg/ui"
)

// Question is the text shown before reading an answer.
const Question = "Continue anyway? [y/N]: "

// Config configures a Terminal.
type Config struct {
	// In is read for answers. Defaults to os.Stdin.
	In io.Reader

	// Out receives the question. Defaults to os.Stdout.
	Out io.Writer

	// Interactive overrides terminal detection on In when set.
	Interactive *bool

	Logger zerolog.Logger
}

// Terminal is an engine.ContinuationDecision that reads one line per
// question. Only "y" (any case, surrounding space ignored) continues. When In
// is not a terminal, or reading fails, the answer is no.
type Terminal struct {
	mu          sync.Mutex
	in          *bufio.Reader
	out         io.Writer
	interactive bool
	logger      zerolog.Logger

	// pending is the read left running by a cancelled Ask. The next Ask
	// takes its line instead of starting a second reader.
	pending chan readResult
}

var _ engine.ContinuationDecision = (*Terminal)(nil)

// NewTerminal creates a Terminal.
func NewTerminal(cfg Config) *Terminal {
	in := cfg.In
	if in == nil {
		in = os.Stdin
	}
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	interactive := isTerminalReader(in)
	if cfg.Interactive != nil {
		interactive = *cfg.Interactive
	}
	return &Terminal{
		in:          bufio.NewReader(in),
		out:         out,
		interactive: interactive,
		logger:      cfg.Logger.With().Str("component", "prompt").Logger(),
	}
}

// Ask implements engine.ContinuationDecision.
func (t *Terminal) Ask(ctx context.Context, stage, reason string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	logger := t.logger.With().Str("stage", stage).Str("reason", reason).Logger()
	_, _ = fmt.Fprint(t.out, "\n"+ui.Decorate(ui.StyleWarning, "⚠️  "+Question))

	if !t.interactive {
		_, _ = fmt.Fprintln(t.out, "n")
		logger.Warn().Msg("No terminal to ask, not continuing")
		return false
	}

	answer, err := t.readLine(ctx)
	if err != nil {
		_, _ = fmt.Fprintln(t.out)
		logger.Warn().Err(err).Msg("Failed to read answer, not continuing")
		return false
	}

	cont := strings.EqualFold(strings.TrimSpace(answer), "y")
	logger.Debug().Bool("continue", cont).Msg("Operator answered")
	return cont
}

type readResult struct {
	line string
	err  error
}

// readLine must be called with t.mu held.
func (t *Terminal) readLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if t.pending == nil {
		ch := make(chan readResult, 1)
		go func() {
			line, err := t.in.ReadString('\n')
			if err == io.EOF && line != "" {
				err = nil
			}
			ch <- readResult{line: line, err: err}
		}()
		t.pending = ch
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-t.pending:
		t.pending = nil
		return r.line, r.err
	}
}

func isTerminalReader(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

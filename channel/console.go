package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
)

type lineReader interface {
	Readline() (string, error)
	Close() error
}

// ConsoleOptions configures a Console.
type ConsoleOptions struct {
	Prompt      string
	HistoryFile string
	Stdin       io.ReadCloser
	Stdout      io.Writer
}

// Console is an interactive terminal channel backed by readline.
// Typing "exit" or "quit", Ctrl+C or Ctrl+D disconnects.
type Console struct {
	rl  lineReader
	out io.Writer
}

// NewConsole creates a Console.
func NewConsole(optFns ...func(o *ConsoleOptions)) (*Console, error) {
	opts := ConsoleOptions{
		Prompt:      "You: ",
		HistoryFile: filepath.Join(os.TempDir(), ".concierge_history"),
		Stdout:      os.Stdout,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          opts.Prompt,
		HistoryFile:     opts.HistoryFile,
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdin:           opts.Stdin,
		Stdout:          opts.Stdout,
	})
	if err != nil {
		return nil, fmt.Errorf("init readline: %w", err)
	}
	return &Console{rl: rl, out: opts.Stdout}, nil
}

// Receive reads the next non-empty line.
func (c *Console) Receive(ctx context.Context) (string, error) {
	type result struct {
		line string
		err  error
	}
	for {
		ch := make(chan result, 1)
		go func() {
			line, err := c.rl.Readline()
			ch <- result{line, err}
		}()

		var r result
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case r = <-ch:
		}

		if r.err != nil {
			if errors.Is(r.err, readline.ErrInterrupt) || errors.Is(r.err, io.EOF) {
				return "", io.EOF
			}
			return "", r.err
		}
		input := strings.TrimSpace(r.line)
		switch input {
		case "":
			continue
		case "exit", "quit":
			return "", io.EOF
		}
		return input, nil
	}
}

// Send prints u prefixed with the speaking persona.
func (c *Console) Send(_ context.Context, u Utterance) error {
	_, err := fmt.Fprintln(c.out, Format(u))
	return err
}

// Close releases the terminal.
func (c *Console) Close() error { return c.rl.Close() }

// Format renders an utterance as "<persona> (<voice>): <text>".
func Format(u Utterance) string {
	name := u.Persona
	if name == "" {
		name = u.AgentID
	}
	if u.Voice != "" {
		return fmt.Sprintf("%s (%s): %s", name, u.Voice, u.Text)
	}
	return fmt.Sprintf("%s: %s", name, u.Text)
}

var _ Channel = (*Console)(nil)

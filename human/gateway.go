// Package human provides the Human Input Gateway: the single channel through
// which a human operator answers prompts. The core assumes a prompt may block
// for unbounded time, so every implementation honors context cancellation.
package human

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// ErrClosed is returned once the input stream is exhausted.
var ErrClosed = errors.New("human: input closed")

// Gateway asks a human a question and returns the raw textual answer.
type Gateway interface {
	Prompt(ctx context.Context, message string) (string, error)
}

// GatewayFunc adapts a function to Gateway.
type GatewayFunc func(ctx context.Context, message string) (string, error)

// Prompt implements Gateway.
func (f GatewayFunc) Prompt(ctx context.Context, message string) (string, error) {
	return f(ctx, message)
}

// ConsoleOptions configures a Console.
type ConsoleOptions struct {
	// Label prefixes each question. Defaults to "Agent".
	Label string
	// Marker is printed after the question when the output is a terminal.
	// Defaults to "User: ".
	Marker string
	// ForceMarker prints the marker even when the output is not a terminal.
	ForceMarker bool
}

// Console reads answers line by line from a reader and writes questions to a
// writer. A single background goroutine owns the reader so a cancelled prompt
// never leaves two readers competing for the same line.
type Console struct {
	mu      sync.Mutex // serializes reads
	wmu     sync.Mutex // serializes writes
	out     io.Writer
	opts    ConsoleOptions
	marker  bool
	lines   chan lineResult
	start   sync.Once
	scanner *bufio.Reader
}

type lineResult struct {
	text string
	err  error
}

// NewConsole creates a console gateway. Nil in/out default to stdin/stdout.
func NewConsole(in io.Reader, out io.Writer, optFns ...func(o *ConsoleOptions)) *Console {
	opts := ConsoleOptions{Label: "Agent", Marker: "User: "}
	for _, fn := range optFns {
		fn(&opts)
	}

	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}

	marker := opts.ForceMarker
	if f, ok := out.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		marker = true
	}

	return &Console{
		out:     out,
		opts:    opts,
		marker:  marker,
		lines:   make(chan lineResult),
		scanner: bufio.NewReader(in),
	}
}

// Prompt writes the question and waits for one line of input. Only one
// prompt is served at a time; concurrent callers wait their turn.
func (c *Console) Prompt(ctx context.Context, message string) (string, error) {
	return c.read(ctx, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "%s: %s\n", c.opts.Label, message)
		return err
	})
}

// ReadLine waits for one line of input without asking a question.
func (c *Console) ReadLine(ctx context.Context) (string, error) {
	return c.read(ctx, nil)
}

// Write prints a prefixed line. Writes never wait for a pending prompt.
func (c *Console) Write(prefix, text string) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, _ = fmt.Fprintf(c.out, "%s%s\n", prefix, text)
}

func (c *Console) read(ctx context.Context, ask func(w io.Writer) error) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.start.Do(func() { go c.readLoop() })

	c.wmu.Lock()
	var err error
	if ask != nil {
		err = ask(c.out)
	}
	if err == nil && c.marker {
		_, _ = io.WriteString(c.out, c.opts.Marker)
	}
	c.wmu.Unlock()
	if err != nil {
		return "", fmt.Errorf("write prompt: %w", err)
	}

	select {
	case res, ok := <-c.lines:
		if !ok {
			return "", ErrClosed
		}
		return res.text, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Console) readLoop() {
	defer close(c.lines)
	for {
		line, err := c.scanner.ReadString('\n')
		if line != "" {
			c.lines <- lineResult{text: strings.TrimRight(line, "\r\n")}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.lines <- lineResult{err: fmt.Errorf("read answer: %w", err)}
			}
			return
		}
	}
}

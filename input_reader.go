package smokerlog

import (
	"bufio"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

const DefaultPrompt = "smokerlog> "

// InputReader collects console lines on its own goroutine so that waiting for
// the user never blocks the event loop. It reads exactly one line per
// Prompt() call; the loop asks for the next line only after it has finished
// the previous command, which keeps command output and the prompt in order.
type InputReader struct {
	prompt   string
	scanner  *bufio.Scanner
	out      io.Writer
	requests chan struct{}
	lines    chan string
	alive    chan struct{}

	logger logrus.FieldLogger
}

func NewInputReader(in io.Reader, out io.Writer, prompt string) *InputReader {
	return &InputReader{
		prompt:   prompt,
		scanner:  bufio.NewScanner(in),
		out:      out,
		requests: make(chan struct{}, 1),
		lines:    make(chan string),
		alive:    make(chan struct{}),
		logger:   logrus.WithField("tag", "InputReader"),
	}
}

// Start launches the worker. Lines() is closed when the input ends.
func (r *InputReader) Start() {
	go func() {
		defer close(r.alive)
		defer close(r.lines)

		for range r.requests {
			fmt.Fprint(r.out, r.prompt)
			if !r.scanner.Scan() {
				if err := r.scanner.Err(); err != nil {
					r.logger.WithError(err).Error("unable to read input")
				} else {
					r.logger.Info("input closed")
				}
				return
			}
			r.logger.Debug("read input from user")
			r.lines <- r.scanner.Text()
		}
	}()
}

// Prompt asks the worker for the next line. Extra requests while one is
// pending are ignored.
func (r *InputReader) Prompt() {
	select {
	case r.requests <- struct{}{}:
	default:
	}
}

func (r *InputReader) Lines() <-chan string {
	return r.lines
}

// Alive reports whether the worker goroutine is still running.
func (r *InputReader) Alive() bool {
	select {
	case <-r.alive:
		return false
	default:
		return true
	}
}

package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/muesli/cancelreader"

	"github.com/sonemaro/tella/internal/types"
)

type lineResult struct {
	text string
	err  error
}

// Prompter reads answers line by line. Input is consumed only while a
// ReadLine is pending and never past the end of the answer, so whatever
// follows stays on stdin for the command that runs next.
type Prompter struct {
	in  io.Reader
	out io.Writer
	eof bool
}

// NewPrompter creates a prompter reading from in and printing prompts to out
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: in, out: out}
}

// ReadLine prints prompt and waits for one line of input. It returns
// types.ErrUserAborted when ctx is cancelled first and io.EOF once the
// input is exhausted.
func (p *Prompter) ReadLine(ctx context.Context, prompt string) (string, error) {
	if p.eof {
		return "", io.EOF
	}
	fmt.Fprint(p.out, prompt)

	src := p.in
	cancel := func() bool { return false }
	// regular files cannot be polled; they never block either
	if cr, err := cancelreader.NewReader(p.in); err == nil {
		defer cr.Close()
		src, cancel = cr, cr.Cancel
	}

	done := make(chan lineResult, 1)
	go func() {
		text, err := readLine(src)
		done <- lineResult{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		// a reader that cannot be cancelled is left to finish on its own
		if cancel() {
			<-done
		}
		return "", types.ErrUserAborted
	case res := <-done:
		if errors.Is(res.err, io.EOF) {
			p.eof = true
		}
		return res.text, res.err
	}
}

// readLine reads a byte at a time up to and including the newline.
func readLine(r io.Reader) (string, error) {
	var sb strings.Builder
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		if n == 1 {
			if buf[0] == '\n' {
				return strings.TrimRight(sb.String(), "\r"), nil
			}
			sb.WriteByte(buf[0])
		}
		if err != nil {
			if errors.Is(err, io.EOF) && sb.Len() > 0 {
				return strings.TrimRight(sb.String(), "\r"), nil
			}
			return "", err
		}
	}
}

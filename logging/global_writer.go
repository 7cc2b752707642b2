package logging

import (
	"io"
	"os"
	"sync"
)

// stderrSink is the stderr destination shared by every component logger.
// Entries are written one at a time, so lines from the session monitor, the
// relay and concurrent network actions never interleave.
type stderrSink struct {
	mu  sync.Mutex
	out io.Writer
}

func (s *stderrSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out == nil {
		return len(p), nil
	}
	return s.out.Write(p)
}

func (s *stderrSink) redirect(w io.Writer) io.Writer {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.out
	s.out = w
	return prev
}

var stderr = &stderrSink{out: os.Stderr}

// RedirectStderr sends the stderr output of every logger to w and returns
// the previous destination. A nil w drops the output.
func RedirectStderr(w io.Writer) io.Writer {
	return stderr.redirect(w)
}

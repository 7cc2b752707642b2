// Package profiling records a tree of timed spans for the --timing flag.
//
// Spans nest through the context, so concurrent fetches started from the
// same parent show up as siblings.
package profiling

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// Span is one timed operation. A nil *Span is valid and does nothing.
type Span struct {
	name     string
	start    time.Time
	duration time.Duration

	mu       sync.Mutex
	children []*Span
}

type spanKey struct{}

var (
	mu   sync.Mutex
	root *Span
)

// Enable starts recording. Spans started before Enable are not recorded.
func Enable() {
	mu.Lock()
	defer mu.Unlock()
	if root == nil {
		root = &Span{name: "root", start: time.Now()}
	}
}

// Enabled reports whether spans are being recorded.
func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return root != nil
}

// Start begins a span under the span carried by ctx, or under the root. The
// returned context carries the new span.
func Start(ctx context.Context, name string) (context.Context, *Span) {
	mu.Lock()
	r := root
	mu.Unlock()
	if r == nil {
		return ctx, nil
	}

	parent, ok := ctx.Value(spanKey{}).(*Span)
	if !ok || parent == nil {
		parent = r
	}
	s := &Span{name: name, start: time.Now()}
	parent.mu.Lock()
	parent.children = append(parent.children, s)
	parent.mu.Unlock()
	return context.WithValue(ctx, spanKey{}, s), s
}

// Stop records the span's duration. Only the first call counts.
func (s *Span) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.duration == 0 {
		s.duration = time.Since(s.start)
	}
}

// Summarize writes the span tree to w. Unfinished spans are shown as running.
func Summarize(w io.Writer) {
	mu.Lock()
	r := root
	mu.Unlock()
	if r == nil {
		return
	}

	total := time.Since(r.start)
	fmt.Fprintln(w, "\n--- Timing Profile ---")
	r.mu.Lock()
	children := append([]*Span(nil), r.children...)
	r.mu.Unlock()
	for _, c := range sortByStart(children) {
		printSpan(w, c, 0, total)
	}
	fmt.Fprintln(w, "--------------------")
}

func printSpan(w io.Writer, s *Span, depth int, total time.Duration) {
	s.mu.Lock()
	d := s.duration
	children := append([]*Span(nil), s.children...)
	s.mu.Unlock()

	indent := strings.Repeat("  ", depth)
	if d == 0 {
		fmt.Fprintf(w, "%s- %s (running)\n", indent, s.name)
	} else {
		pct := 0.0
		if total > 0 {
			pct = float64(d) / float64(total) * 100
		}
		fmt.Fprintf(w, "%s- %s (%v, %.1f%%)\n", indent, s.name, d.Round(100*time.Microsecond), pct)
	}
	for _, c := range sortByStart(children) {
		printSpan(w, c, depth+1, total)
	}
}

func sortByStart(spans []*Span) []*Span {
	sort.Slice(spans, func(i, j int) bool { return spans[i].start.Before(spans[j].start) })
	return spans
}

// reset stops recording and drops all spans.
func reset() {
	mu.Lock()
	defer mu.Unlock()
	root = nil
}

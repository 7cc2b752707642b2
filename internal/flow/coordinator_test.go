package flow

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/chordsync/errors"
	"github.com/grovetools/chordsync/internal/store"
)

func recordStep(name string, log *[]string, err error) Step {
	return Step{
		Name: name,
		Run: func(context.Context) error {
			*log = append(*log, "run:"+name)
			return err
		},
		Compensate: func(context.Context) error {
			*log = append(*log, "undo:"+name)
			return nil
		},
	}
}

func TestRunEndsAfterAllSteps(t *testing.T) {
	s := store.New()
	c := NewCoordinator(s, nil)

	var log []string
	err := c.Run(context.Background(), "add_dataset",
		recordStep("a", &log, nil),
		recordStep("b", &log, nil),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"run:a", "run:b"}, log)

	f := s.Flow("add_dataset")
	assert.Equal(t, store.PhaseEnded, f.Phase())
	assert.NotEmpty(t, f.RunID)
}

func TestRunTerminatesAndCompensatesInReverse(t *testing.T) {
	s := store.New()
	c := NewCoordinator(s, nil)

	var log []string
	err := c.Run(context.Background(), "add_dataset",
		recordStep("a", &log, nil),
		recordStep("b", &log, nil),
		recordStep("c", &log, fmt.Errorf("project registration failed")),
		recordStep("d", &log, nil),
	)

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeFlowTerminated))
	step, _ := errors.Detail(err, "step")
	assert.Equal(t, "c", step)
	assert.Equal(t, []string{"run:a", "run:b", "run:c", "undo:b", "undo:a"}, log)

	f := s.Flow("add_dataset")
	assert.Equal(t, store.PhaseTerminated, f.Phase())
	assert.Equal(t, err, f.Err)
}

func TestRunRejectsConcurrentInvocation(t *testing.T) {
	s := store.New()
	c := NewCoordinator(s, nil)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- c.Run(context.Background(), "ingest", Step{Name: "wait", Run: func(context.Context) error {
			close(started)
			<-release
			return nil
		}})
	}()
	<-started

	err := c.Run(context.Background(), "ingest", Step{Name: "noop"})
	assert.True(t, errors.Is(err, errors.ErrCodeFlowActive))
	assert.Equal(t, store.PhaseActive, s.Flow("ingest").Phase())

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, store.PhaseEnded, s.Flow("ingest").Phase())
}

func TestRunRecoversPanics(t *testing.T) {
	s := store.New()
	c := NewCoordinator(s, nil)

	var log []string
	err := c.Run(context.Background(), "boom",
		recordStep("a", &log, nil),
		Step{Name: "panics", Run: func(context.Context) error { panic("nil map") }},
	)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInternal))
	assert.Equal(t, []string{"run:a", "undo:a"}, log)
	assert.Equal(t, store.PhaseTerminated, s.Flow("boom").Phase())
}

func TestRunStopsOnContextExpiry(t *testing.T) {
	s := store.New()
	c := NewCoordinator(s, nil)

	ctx, cancel := context.WithCancel(context.Background())
	var log []string
	err := c.Run(ctx, "cancelled",
		Step{Name: "cancel", Run: func(context.Context) error { cancel(); return nil }, Compensate: func(ctx context.Context) error {
			assert.NoError(t, ctx.Err(), "compensation runs with a live context")
			log = append(log, "undo:cancel")
			return nil
		}},
		recordStep("never", &log, nil),
	)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"undo:cancel"}, log)
}

func TestCompensationErrorsAreAttached(t *testing.T) {
	s := store.New()
	c := NewCoordinator(s, nil)

	err := c.Run(context.Background(), "flaky",
		Step{Name: "create", Run: func(context.Context) error { return nil }, Compensate: func(context.Context) error {
			return fmt.Errorf("delete refused")
		}},
		Step{Name: "register", Run: func(context.Context) error { return fmt.Errorf("offline") }},
	)

	details, ok := errors.Detail(err, "compensation_errors")
	require.True(t, ok)
	assert.Equal(t, []string{"create: delete refused"}, details)
}

func TestRunCanRestartAfterTermination(t *testing.T) {
	s := store.New()
	c := NewCoordinator(s, nil)
	c.newID = func() string { return "fixed" }

	require.Error(t, c.Run(context.Background(), "retry", Step{Name: "fail", Run: func(context.Context) error {
		return fmt.Errorf("x")
	}}))
	require.NoError(t, c.Run(context.Background(), "retry", Step{Name: "ok"}))

	f := s.Flow("retry")
	assert.Equal(t, store.PhaseEnded, f.Phase())
	assert.Nil(t, f.Err)
	assert.Equal(t, "fixed", f.RunID)
	assert.WithinDuration(t, time.Now(), f.FinishedAt, time.Minute)
}

// Package flow composes network actions into named multi-step operations
// with all-or-nothing END/TERMINATE semantics.
package flow

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/chordsync/errors"
	"github.com/grovetools/chordsync/internal/metrics"
	"github.com/grovetools/chordsync/internal/store"
	"github.com/grovetools/chordsync/logging"
	"github.com/grovetools/chordsync/pkg/profiling"
)

// Step is one unit of a flow.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
	// Compensate undoes a completed Run when a later step fails. Optional.
	Compensate func(ctx context.Context) error
}

// Coordinator runs flows against the store.
type Coordinator struct {
	store   *store.Store
	metrics *metrics.Metrics
	logger  *logrus.Entry
	newID   func() string
}

// NewCoordinator creates a Coordinator. m may be nil.
func NewCoordinator(s *store.Store, m *metrics.Metrics) *Coordinator {
	return &Coordinator{
		store:   s,
		metrics: m,
		logger:  logging.NewLogger("flow"),
		newID:   func() string { return uuid.New().String() },
	}
}

// Run executes steps in order under the flow name. It returns FLOW_ACTIVE if
// the flow is already running. When a step fails (error, panic or context
// expiry), compensators of the completed steps run in reverse order and the
// flow terminates with a FLOW_TERMINATED error wrapping the step's error.
func (c *Coordinator) Run(ctx context.Context, name string, steps ...Step) error {
	runID := c.newID()
	if !c.store.Apply(store.FlowBegan{Name: name, RunID: runID, At: time.Now()}) {
		if c.store.Disposed() {
			return errors.New(errors.ErrCodeDisposed, "store has been disposed")
		}
		c.metrics.IncFlow(name, "rejected")
		return errors.FlowActive(name)
	}

	log := c.logger.WithFields(logrus.Fields{"flow": name, "run_id": runID})
	log.Debug("Flow started")

	var completed []Step
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return c.terminate(ctx, log, name, step.Name, err, completed)
		}
		if err := runStep(ctx, step); err != nil {
			return c.terminate(ctx, log, name, step.Name, err, completed)
		}
		completed = append(completed, step)
		log.WithField("step", step.Name).Debug("Step completed")
	}

	c.store.Apply(store.FlowEnded{Name: name, At: time.Now()})
	c.metrics.IncFlow(name, "ended")
	log.Debug("Flow ended")
	return nil
}

func (c *Coordinator) terminate(ctx context.Context, log *logrus.Entry, name, step string, cause error, completed []Step) error {
	flowErr := errors.FlowTerminated(name, step, cause)

	// Compensation must run even if ctx is what failed the step.
	compCtx := context.WithoutCancel(ctx)
	var compErrs []string
	for i := len(completed) - 1; i >= 0; i-- {
		s := completed[i]
		if s.Compensate == nil {
			continue
		}
		if err := runCompensation(compCtx, s); err != nil {
			log.WithError(err).WithField("step", s.Name).Warn("Compensation failed")
			compErrs = append(compErrs, fmt.Sprintf("%s: %v", s.Name, err))
			continue
		}
		log.WithField("step", s.Name).Debug("Step compensated")
	}
	if len(compErrs) > 0 {
		flowErr = flowErr.WithDetail("compensation_errors", compErrs)
	}

	c.store.Apply(store.FlowTerminated{Name: name, Err: flowErr, At: time.Now()})
	c.metrics.IncFlow(name, "terminated")
	log.WithError(cause).WithField("step", step).Warn("Flow terminated")
	return flowErr
}

func runStep(ctx context.Context, step Step) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New(errors.ErrCodeInternal, fmt.Sprintf("step panicked: %v", r)).
				WithDetail("stack", string(debug.Stack()))
		}
	}()
	if step.Run == nil {
		return nil
	}
	ctx, span := profiling.Start(ctx, step.Name)
	defer span.Stop()
	return step.Run(ctx)
}

func runCompensation(ctx context.Context, step Step) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("compensation panicked: %v", r)
		}
	}()
	return step.Compensate(ctx)
}

package cli

import (
	"fmt"
	"io"

	"github.com/grovetools/chordsync/errors"
)

// ErrorHandler provides user-friendly error messages
type ErrorHandler struct {
	Verbose bool
	Out     io.Writer
}

// NewErrorHandler creates a new error handler writing to out
func NewErrorHandler(out io.Writer, verbose bool) *ErrorHandler {
	return &ErrorHandler{
		Verbose: verbose,
		Out:     out,
	}
}

// Handle prints err with a hint based on its code and returns it unchanged.
func (h *ErrorHandler) Handle(err error) error {
	if err == nil {
		return nil
	}

	fail := func(format string, args ...interface{}) {
		fmt.Fprintf(h.Out, "%s %s\n", ErrorStyle.Render("Error:"), fmt.Sprintf(format, args...))
	}
	hint := func(format string, args ...interface{}) {
		fmt.Fprintln(h.Out, MutedStyle.Render(fmt.Sprintf(format, args...)))
	}

	switch errors.GetCode(err) {
	case errors.ErrCodeConfigNotFound:
		fail("configuration not found")
		hint("Create chordsync.yml with at least 'base_url', or pass --config.")

	case errors.ErrCodeConfigInvalid:
		fail("%v", err)
		hint("Check chordsync.yml against schema/chordsync.schema.json.")

	case errors.ErrCodeUnauthenticated:
		fail("not signed in to the node")
		hint("Set auth.token or auth.cookie in chordsync.yml.")

	case errors.ErrCodeTransport, errors.ErrCodeMalformedResponse:
		fail("%v", err)
		if status, ok := errors.Detail(err, "status"); ok {
			hint("The node answered with HTTP %v.", status)
		}

	case errors.ErrCodeInFlight:
		fail("%v", err)
		hint("Wait for the running request to finish and try again.")

	case errors.ErrCodeFlowActive:
		fail("%v", err)

	case errors.ErrCodeFlowTerminated:
		fail("%v", err)
		if compErrs, ok := errors.Detail(err, "compensation_errors"); ok {
			hint("Rollback did not complete: %v", compErrs)
		}

	case errors.ErrCodeNotFound:
		fail("%v", err)
		hint("Run the matching list command to see what exists.")

	case errors.ErrCodeRelayUnavailable:
		fail("%v", err)
		hint("Set event_relay.url or register an event-relay service on the node.")

	default:
		fail("%v", err)
	}

	if h.Verbose {
		if e, ok := err.(*errors.Error); ok {
			fmt.Fprintf(h.Out, "\nError details:\n%s\n", e.ToJSON())
		}
	}
	return err
}

package errors

import (
	"fmt"
	"testing"
)

func TestError(t *testing.T) {
	// Test basic error creation
	err := New(ErrCodeNotFound, "project not found")
	if err.Code != ErrCodeNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeNotFound, err.Code)
	}

	// Test error wrapping
	cause := fmt.Errorf("underlying error")
	wrapped := Wrap(cause, ErrCodeTransport, "request failed")

	if wrapped.Unwrap() != cause {
		t.Error("Unwrap should return the cause")
	}

	// Test Is function
	if !Is(wrapped, ErrCodeTransport) {
		t.Error("Is should return true for matching code")
	}

	if Is(wrapped, ErrCodeNotFound) {
		t.Error("Is should return false for non-matching code")
	}

	// Test WithDetail
	detailed := err.WithDetail("kind", "project").WithDetail("attempt", 2)
	if detailed.Details["kind"] != "project" {
		t.Error("WithDetail should add details")
	}
}

func TestIsFindsNestedCodes(t *testing.T) {
	inner := HTTPStatus("POST", "/api/wes/runs", 500, "")
	outer := FlowTerminated("ingestion_run_submission", "submit", inner)
	wrapped := fmt.Errorf("cli: %w", outer)

	if !Is(wrapped, ErrCodeFlowTerminated) {
		t.Error("Is should find the flow code through fmt wrapping")
	}
	if !Is(wrapped, ErrCodeTransport) {
		t.Error("Is should find the transport code in the cause chain")
	}
	if got := GetCode(wrapped); got != ErrCodeFlowTerminated {
		t.Errorf("GetCode should return the outermost code, got %s", got)
	}

	step, ok := Detail(wrapped, "step")
	if !ok || step != "submit" {
		t.Errorf("expected step detail 'submit', got %v", step)
	}
}

func TestErrorConstructors(t *testing.T) {
	err := HTTPStatus("GET", "/api/project/projects", 502, "bad gateway")
	if err.Code != ErrCodeTransport {
		t.Errorf("expected code %s, got %s", ErrCodeTransport, err.Code)
	}
	if err.Details["status"] != 502 {
		t.Error("HTTPStatus should include status detail")
	}

	err = InFlight("projects")
	if err.Code != ErrCodeInFlight {
		t.Errorf("expected code %s, got %s", ErrCodeInFlight, err.Code)
	}
	if err.Details["resource"] != "projects" {
		t.Error("InFlight should include resource detail")
	}
}

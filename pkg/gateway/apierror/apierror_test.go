package apierror

import (
	"context"
	"errors"
	"testing"

	"github.com/englify-app/englify/pkg/core"
)

func TestFromError_ContextCanceled_Is408Cancelled(t *testing.T) {
	ce, status := FromError(context.Canceled, "req_test")
	if status != 408 {
		t.Fatalf("status=%d", status)
	}
	if ce.Type != core.ErrAPI {
		t.Fatalf("type=%q", ce.Type)
	}
	if ce.Code != "cancelled" {
		t.Fatalf("code=%q", ce.Code)
	}
	if ce.RequestID != "req_test" {
		t.Fatalf("request_id=%q", ce.RequestID)
	}
}

func TestFromError_CanonicalGetsRequestID(t *testing.T) {
	ce, status := FromError(core.NewNotFoundError("conversation not found"), "req_1")
	if status != 404 {
		t.Fatalf("status=%d", status)
	}
	if ce.RequestID != "req_1" {
		t.Fatalf("request_id=%q", ce.RequestID)
	}
}

func TestFromError_UnknownErrorIsOpaque(t *testing.T) {
	ce, status := FromError(errors.New("pgx: connection refused"), "req_2")
	if status != 500 {
		t.Fatalf("status=%d", status)
	}
	if ce.Message != "internal error" {
		t.Fatalf("message=%q leaked details", ce.Message)
	}
}

func TestStatusFromType_RealtimeErrors(t *testing.T) {
	if got := StatusFromType(core.ErrCredential); got != 502 {
		t.Fatalf("credential status=%d", got)
	}
	if got := StatusFromType(core.ErrNegotiation); got != 502 {
		t.Fatalf("negotiation status=%d", got)
	}
	if got := StatusFromType(core.ErrRateLimit); got != 429 {
		t.Fatalf("rate limit status=%d", got)
	}
}

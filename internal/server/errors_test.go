package server

import (
	"errors"
	"net/http"
	"testing"

	apikeydomain "github.com/metergate/metergate/internal/apikey/domain"
	customerdomain "github.com/metergate/metergate/internal/customer/domain"
	invoicedomain "github.com/metergate/metergate/internal/invoice/domain"
	"github.com/metergate/metergate/internal/proxy"
	tierdomain "github.com/metergate/metergate/internal/tier/domain"
)

func TestMapErrorStatusAndType(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		typ    string
	}{
		{"invalid key", apikeydomain.ErrKeyInvalid, http.StatusUnauthorized, "unauthorized"},
		{"expired key", apikeydomain.ErrKeyExpired, http.StatusUnauthorized, "unauthorized"},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{"duplicate invoice", invoicedomain.ErrDuplicateInvoice, http.StatusBadRequest, "duplicate_invoice"},
		{"unknown customer", customerdomain.ErrNotFound, http.StatusNotFound, "not_found"},
		{"email taken", customerdomain.ErrEmailTaken, http.StatusConflict, "conflict"},
		{"tier name taken", tierdomain.ErrNameTaken, http.StatusConflict, "conflict"},
		{"upstream down", proxy.ErrUpstreamUnavailable, http.StatusBadGateway, "upstream_unavailable"},
		{"billing down", ErrServiceUnavailable, http.StatusServiceUnavailable, "service_unavailable"},
		{"bad transition", invoicedomain.ErrInvalidTransition, http.StatusBadRequest, "validation_error"},
		{"surprise", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, payload := mapError(tc.err)
			if status != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, status)
			}
			if payload.Type != tc.typ {
				t.Fatalf("expected type %q, got %q", tc.typ, payload.Type)
			}
		})
	}
}

func TestMapErrorValidationPayload(t *testing.T) {
	status, payload := mapError(newValidationError("tier", "invalid_tier", "tier is required"))
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	if len(payload.Errors) != 1 || payload.Errors[0].Field != "tier" || payload.Errors[0].Code != "invalid_tier" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestMapErrorDomainSentinelsBecomeFieldErrors(t *testing.T) {
	status, payload := mapError(customerdomain.ErrInvalidEmail)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	if len(payload.Errors) != 1 {
		t.Fatalf("expected one field error, got %+v", payload)
	}
	if payload.Errors[0].Code != "invalid_email" || payload.Errors[0].Field != "email" {
		t.Fatalf("unexpected field error: %+v", payload.Errors[0])
	}
}

func TestClassifyErrorForLog(t *testing.T) {
	typ, code := classifyErrorForLog(customerdomain.ErrInvalidEmail)
	if typ != "validation_error" || code != "invalid_email" {
		t.Fatalf("expected validation_error/invalid_email, got %s/%s", typ, code)
	}

	typ, code = classifyErrorForLog(proxy.ErrUpstreamUnavailable)
	if typ != "upstream_unavailable" || code != "upstream_unavailable" {
		t.Fatalf("expected upstream_unavailable, got %s/%s", typ, code)
	}
}

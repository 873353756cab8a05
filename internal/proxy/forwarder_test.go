package proxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apikeydomain "github.com/metergate/metergate/internal/apikey/domain"
	"github.com/metergate/metergate/internal/config"
	"go.uber.org/zap"
)

func newTestForwarder(t *testing.T) *Forwarder {
	t.Helper()
	holder, err := config.NewRuntimeConfigHolder()
	if err != nil {
		t.Fatalf("runtime config: %v", err)
	}
	return NewForwarder(Params{
		Log:     zap.NewNop(),
		Cfg:     config.Config{DefaultUpstreamURL: "http://fallback.invalid"},
		Runtime: holder,
	})
}

func TestForwardStripsIdentityHeaders(t *testing.T) {
	var seen http.Header
	var seenURL string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Clone()
		seenURL = r.URL.String()
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()

	f := newTestForwarder(t)
	kc := &apikeydomain.KeyContext{UpstreamBaseURL: upstream.URL}

	inbound := httptest.NewRequest(http.MethodGet, "/api/get?x=1&y=2", nil)
	inbound.Header.Set("X-Api-Key", "mg_live_secret")
	inbound.Header.Set("X-Forwarded-For", "1.2.3.4")
	inbound.Header.Set("X-Real-Ip", "1.2.3.4")
	inbound.Header.Set("Accept", "application/json")
	inbound.Header.Set("X-Custom", "kept")

	res, err := f.Forward(context.Background(), kc, inbound, StripAPIPrefix(inbound.URL.Path))
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	if seenURL != "/get?x=1&y=2" {
		t.Fatalf("unexpected upstream url %q", seenURL)
	}
	if seen.Get("X-Api-Key") != "" || seen.Get("X-Forwarded-For") != "" || seen.Get("X-Real-Ip") != "" {
		t.Fatalf("identity headers leaked upstream: %v", seen)
	}
	if seen.Get("Accept") != "application/json" || seen.Get("X-Custom") != "kept" {
		t.Fatalf("pass-through headers missing: %v", seen)
	}
	if res.Header.Get("X-Upstream") != "yes" {
		t.Fatalf("upstream response header not relayed")
	}
	if string(res.Body) != `{"ok":true}` {
		t.Fatalf("unexpected body %q", res.Body)
	}
}

func TestForwardRelaysUpstreamErrorsVerbatim(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))
	defer upstream.Close()

	f := newTestForwarder(t)
	kc := &apikeydomain.KeyContext{UpstreamBaseURL: upstream.URL}

	inbound := httptest.NewRequest(http.MethodGet, "/api/teapot", nil)
	res, err := f.Forward(context.Background(), kc, inbound, StripAPIPrefix(inbound.URL.Path))
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if res.StatusCode != http.StatusTeapot {
		t.Fatalf("expected 418 relay, got %d", res.StatusCode)
	}
	if string(res.Body) != "short and stout" {
		t.Fatalf("body not relayed verbatim: %q", res.Body)
	}
}

func TestForwardTransportErrorIsUpstreamUnavailable(t *testing.T) {
	f := newTestForwarder(t)
	kc := &apikeydomain.KeyContext{UpstreamBaseURL: "http://127.0.0.1:1"}

	inbound := httptest.NewRequest(http.MethodGet, "/api/get", nil)
	_, err := f.Forward(context.Background(), kc, inbound, StripAPIPrefix(inbound.URL.Path))
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestForwardPostBody(t *testing.T) {
	var method, contentType, body string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		contentType = r.Header.Get("Content-Type")
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		body = string(raw)
		w.WriteHeader(http.StatusCreated)
	}))
	defer upstream.Close()

	f := newTestForwarder(t)
	kc := &apikeydomain.KeyContext{UpstreamBaseURL: upstream.URL}

	inbound := httptest.NewRequest(http.MethodPost, "/api/things", strings.NewReader(`{"name":"x"}`))
	inbound.Header.Set("Content-Type", "application/json")

	res, err := f.Forward(context.Background(), kc, inbound, StripAPIPrefix(inbound.URL.Path))
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", res.StatusCode)
	}
	if method != http.MethodPost || body != `{"name":"x"}` {
		t.Fatalf("body not forwarded: method=%s body=%q", method, body)
	}
	if contentType != "application/json" {
		t.Fatalf("content type not re-set: %q", contentType)
	}
}

func TestStripAPIPrefix(t *testing.T) {
	cases := map[string]string{
		"/api/get":       "/get",
		"/api":           "/",
		"/api/":          "/",
		"/api/a/b/c":     "/a/b/c",
		"/other/path":    "/other/path",
		"/api/get/extra": "/get/extra",
	}
	for in, want := range cases {
		if got := StripAPIPrefix(in); got != want {
			t.Fatalf("StripAPIPrefix(%q) = %q, want %q", in, got, want)
		}
	}
}

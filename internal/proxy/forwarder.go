// Package proxy forwards authorized requests to the owning developer's
// upstream API.
package proxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	apikeydomain "github.com/metergate/metergate/internal/apikey/domain"
	"github.com/metergate/metergate/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ErrUpstreamUnavailable covers transport failures and timeouts: the
// upstream produced no HTTP response at all. Anything it did produce, error
// status included, is relayed verbatim instead.
var ErrUpstreamUnavailable = errors.New("upstream_unavailable")

// Identity and transport headers never forwarded upstream. Content-Type and
// Content-Length are recomputed by the HTTP client from the actual body.
var strippedRequestHeaders = map[string]struct{}{
	"host":            {},
	"x-api-key":       {},
	"x-forwarded-for": {},
	"x-real-ip":       {},
	"connection":      {},
	"content-length":  {},
	"content-type":    {},
}

var strippedResponseHeaders = map[string]struct{}{
	"connection":        {},
	"keep-alive":        {},
	"transfer-encoding": {},
	"content-length":    {},
}

type Params struct {
	fx.In

	Log     *zap.Logger
	Cfg     config.Config
	Runtime *config.RuntimeConfigHolder
}

// Forwarder relays a request to the resolved developer upstream and returns
// whatever the upstream answered. The deadline comes from the hot-reload
// proxy timeout, applied per request.
type Forwarder struct {
	client  *http.Client
	log     *zap.Logger
	cfg     config.Config
	runtime *config.RuntimeConfigHolder
}

func NewForwarder(p Params) *Forwarder {
	return &Forwarder{
		client:  &http.Client{},
		log:     p.Log.Named("proxy.forwarder"),
		cfg:     p.Cfg,
		runtime: p.Runtime,
	}
}

// Result is the upstream's answer, relayed to the caller as-is.
type Result struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Forward sends the inbound request to the upstream for kc's developer.
// path must already have the /api prefix stripped.
func (f *Forwarder) Forward(ctx context.Context, kc *apikeydomain.KeyContext, inbound *http.Request, path string) (*Result, error) {
	target := f.targetURL(kc, path, inbound.URL.RawQuery)

	ctx, cancel := context.WithTimeout(ctx, f.runtime.Get().ProxyTimeout())
	defer cancel()

	outbound, err := http.NewRequestWithContext(ctx, inbound.Method, target, inbound.Body)
	if err != nil {
		return nil, err
	}
	copyRequestHeaders(outbound.Header, inbound.Header)
	if ct := inbound.Header.Get("Content-Type"); ct != "" && inbound.Body != nil {
		outbound.Header.Set("Content-Type", ct)
	}

	resp, err := f.client.Do(outbound)
	if err != nil {
		f.log.Warn("upstream request failed",
			zap.String("target", target),
			zap.String("method", inbound.Method),
			zap.Error(err),
		)
		return nil, ErrUpstreamUnavailable
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		f.log.Warn("upstream body read failed",
			zap.String("target", target),
			zap.Error(err),
		)
		return nil, ErrUpstreamUnavailable
	}

	header := make(http.Header, len(resp.Header))
	for name, values := range resp.Header {
		if _, drop := strippedResponseHeaders[strings.ToLower(name)]; drop {
			continue
		}
		header[name] = values
	}

	return &Result{
		StatusCode: resp.StatusCode,
		Header:     header,
		Body:       body,
	}, nil
}

// targetURL joins the developer upstream with the stripped path and query.
// Developers without a configured upstream fall back to the deployment
// default.
func (f *Forwarder) targetURL(kc *apikeydomain.KeyContext, path, rawQuery string) string {
	base := strings.TrimRight(kc.UpstreamBaseURL, "/")
	if base == "" {
		base = f.cfg.DefaultUpstreamURL
	}
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	target := base + path
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	return target
}

func copyRequestHeaders(dst, src http.Header) {
	for name, values := range src {
		if _, drop := strippedRequestHeaders[strings.ToLower(name)]; drop {
			continue
		}
		for _, value := range values {
			dst.Add(name, value)
		}
	}
}

// StripAPIPrefix removes the gateway mount prefix from an inbound path. An
// empty remainder maps to the upstream root.
func StripAPIPrefix(path string) string {
	stripped := strings.TrimPrefix(path, "/api")
	if stripped == "" {
		return "/"
	}
	return stripped
}

var Module = fx.Module("proxy",
	fx.Provide(NewForwarder),
)

package server

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-resty/resty/v2"
	"github.com/metergate/metergate/internal/observability/logger"
	"go.uber.org/zap"
)

const relayTimeout = 10 * time.Second

// RelayClient forwards gateway requests to the billing plane. The gateway
// never answers billing questions itself; it authenticates the caller, pins
// the customer identity into a header and relays verbatim.
type RelayClient struct {
	client *resty.Client
	log    *zap.Logger
}

func NewRelayClient(baseURL string, log *zap.Logger) *RelayClient {
	client := resty.New().
		SetBaseURL(strings.TrimRight(strings.TrimSpace(baseURL), "/")).
		SetTimeout(relayTimeout)
	return &RelayClient{
		client: client,
		log:    log.Named("relay"),
	}
}

// Do relays one request downstream. A transport failure returns an error;
// any HTTP response, error status included, is handed back for verbatim
// relay.
func (rc *RelayClient) Do(ctx context.Context, method, path, rawQuery string, body io.Reader, header http.Header) (*resty.Response, error) {
	req := rc.client.R().SetContext(ctx)
	if rawQuery != "" {
		req.SetQueryString(rawQuery)
	}
	if ct := header.Get("Content-Type"); ct != "" {
		req.SetHeader("Content-Type", ct)
	}
	if requestID := header.Get("X-Request-Id"); requestID != "" {
		req.SetHeader("X-Request-Id", requestID)
	}
	if customerID := header.Get(HeaderCustomerID); customerID != "" {
		req.SetHeader(HeaderCustomerID, customerID)
	}
	if body != nil {
		payload, err := io.ReadAll(body)
		if err != nil {
			return nil, err
		}
		if len(payload) > 0 {
			req.SetBody(payload)
		}
	}
	return req.Execute(method, path)
}

// RelayBilling relays /billing/* for the authenticated customer.
func (g *Gateway) RelayBilling(c *gin.Context) {
	g.relayAuthenticated(c, g.billing)
}

// RelayAnalytics relays /analytics/* for the authenticated customer.
func (g *Gateway) RelayAnalytics(c *gin.Context) {
	g.relayAuthenticated(c, g.analytics)
}

// relayAdmin builds a handler that relays an operator action to a fixed
// internal path on the billing plane.
func (g *Gateway) relayAdmin(client *RelayClient, path string) gin.HandlerFunc {
	return func(c *gin.Context) {
		g.relay(c, client, path, "")
	}
}

func (g *Gateway) relayAuthenticated(c *gin.Context, client *RelayClient) {
	kc := keyContextFrom(c)
	if kc == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	g.relay(c, client, c.Request.URL.Path, kc.CustomerID.String())
}

func (g *Gateway) relay(c *gin.Context, client *RelayClient, path, customerID string) {
	header := make(http.Header, 4)
	if ct := c.GetHeader("Content-Type"); ct != "" {
		header.Set("Content-Type", ct)
	}
	if requestID := c.GetString("request_id"); requestID != "" {
		header.Set("X-Request-Id", requestID)
	}
	if customerID != "" {
		header.Set(HeaderCustomerID, customerID)
	}

	ctx := c.Request.Context()
	resp, err := client.Do(ctx, c.Request.Method, path, c.Request.URL.RawQuery, c.Request.Body, header)
	if err != nil {
		logger.FromContext(ctx).Warn("billing relay failed",
			zap.String("path", path),
			zap.Error(err),
		)
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	contentType := resp.Header().Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(resp.StatusCode(), contentType, resp.Body())
}

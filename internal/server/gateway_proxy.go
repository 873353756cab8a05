package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/metergate/metergate/internal/proxy"
	usagedomain "github.com/metergate/metergate/internal/usage/domain"
)

// Proxy forwards an admitted request upstream and records it. The usage
// record is written on every completed attempt, transport failures included;
// only requests rejected before forwarding leave no trace.
func (g *Gateway) Proxy(c *gin.Context) {
	kc := keyContextFrom(c)
	if kc == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	ctx := c.Request.Context()
	path := proxy.StripAPIPrefix(c.Request.URL.Path)

	started := g.clock.Now()
	result, err := g.forwarder.Forward(ctx, kc, c.Request, path)
	elapsed := g.clock.Now().Sub(started).Milliseconds()

	status := http.StatusBadGateway
	if err == nil {
		status = result.StatusCode
	}

	keyID := kc.KeyID
	g.buffer.Enqueue(ctx, usagedomain.UsageRecord{
		CustomerID:     kc.CustomerID,
		APIKeyID:       &keyID,
		Endpoint:       path,
		Method:         c.Request.Method,
		StatusCode:     status,
		ResponseTimeMs: elapsed,
		Timestamp:      g.clock.Now().UTC(),
	})
	g.metrics.RecordProxyRequest(ctx, kc.TierName, status)

	if err != nil {
		AbortWithError(c, err)
		return
	}

	for name, values := range result.Header {
		for _, value := range values {
			c.Writer.Header().Add(name, value)
		}
	}
	c.Status(result.StatusCode)
	if len(result.Body) > 0 {
		_, _ = c.Writer.Write(result.Body)
	}
}

package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

const (
	// ScopeProxy grants access to the proxied upstream API.
	ScopeProxy = "proxy"
)

// KeyContext is everything the gateway needs to admit a request: the key,
// its customer, the customer's tier and the upstream to forward to. It is
// what the resolver caches in Redis.
type KeyContext struct {
	KeyID           snowflake.ID    `json:"key_id"`
	KeyActive       bool            `json:"key_active"`
	ExpiresAt       *time.Time      `json:"expires_at,omitempty"`
	Scopes          []string        `json:"scopes,omitempty"`
	CustomerID      snowflake.ID    `json:"customer_id"`
	CustomerName    string          `json:"customer_name"`
	CustomerActive  bool            `json:"customer_active"`
	TierName        string          `json:"tier_name"`
	DailyQuota      int64           `json:"daily_quota"`
	PriceMonthly    decimal.Decimal `json:"price_monthly"`
	DeveloperID     snowflake.ID    `json:"developer_id,omitempty"`
	UpstreamBaseURL string          `json:"upstream_base_url,omitempty"`
}

// Unlimited reports whether the resolved tier has no daily quota.
func (c KeyContext) Unlimited() bool { return c.DailyQuota <= 0 }

// Resolver turns a raw API key secret into a KeyContext, consulting the
// cache before the database. Resolution errors distinguish unknown,
// deactivated and expired keys so the gateway can answer precisely.
type Resolver interface {
	Resolve(ctx context.Context, secret string) (*KeyContext, error)
	Invalidate(ctx context.Context, secret string) error
	InvalidateHash(ctx context.Context, keyHash string) error
}

type CreateKeyRequest struct {
	CustomerID string   `json:"customer_id"`
	Name       string   `json:"name"`
	Scopes     []string `json:"scopes"`
}

type Response struct {
	ID            string     `json:"id"`
	CustomerID    string     `json:"customer_id"`
	Prefix        string     `json:"prefix"`
	Name          *string    `json:"name,omitempty"`
	Scopes        []string   `json:"scopes"`
	IsActive      bool       `json:"is_active"`
	CreatedAt     time.Time  `json:"created_at"`
	LastUsedAt    *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	RotatedFromID *string    `json:"rotated_from_id,omitempty"`
}

// SecretResponse carries the raw key exactly once, at creation or rotation.
type SecretResponse struct {
	ID     string `json:"id"`
	Prefix string `json:"prefix"`
	APIKey string `json:"api_key"`
}

type Service interface {
	Create(ctx context.Context, req CreateKeyRequest) (*SecretResponse, error)
	ListByCustomer(ctx context.Context, customerID string) ([]Response, error)
	Rotate(ctx context.Context, id string) (*SecretResponse, error)
	Revoke(ctx context.Context, id string) error
	TouchLastUsed(ctx context.Context, ids []snowflake.ID, at time.Time) error
}

var (
	ErrInvalidCustomer = errors.New("invalid_customer")
	ErrInvalidID       = errors.New("invalid_id")
	ErrNotFound        = errors.New("not_found")

	ErrKeyInvalid  = errors.New("invalid_api_key")
	ErrKeyInactive = errors.New("inactive_api_key")
	ErrKeyExpired  = errors.New("expired_api_key")
)

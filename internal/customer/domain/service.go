package domain

import (
	"context"
	"errors"
	"time"

	"github.com/metergate/metergate/pkg/db/pagination"
)

type ListCustomerRequest struct {
	PageToken   string
	PageSize    int32
	Name        string
	Email       string
	IsActive    *bool
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

type ListCustomerFilter struct {
	Name        string
	Email       string
	IsActive    *bool
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

type ListCustomerResponse struct {
	pagination.PageInfo
	Customers []Customer `json:"customers"`
}

type CreateCustomerRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Tier        string `json:"tier"`
	DeveloperID string `json:"developer_id"`
}

type SetActiveRequest struct {
	ID       string `json:"-"`
	IsActive bool   `json:"is_active"`
}

type ChangeTierRequest struct {
	ID   string `json:"-"`
	Tier string `json:"tier"`
}

type Service interface {
	Create(ctx context.Context, req CreateCustomerRequest) (Customer, error)
	List(ctx context.Context, req ListCustomerRequest) (ListCustomerResponse, error)
	GetByID(ctx context.Context, id string) (Customer, error)
	GetByEmail(ctx context.Context, email string) (Customer, error)
	ListActive(ctx context.Context) ([]Customer, error)
	SetActive(ctx context.Context, req SetActiveRequest) (Customer, error)
	ChangeTier(ctx context.Context, req ChangeTierRequest) (Customer, error)
}

var (
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidEmail     = errors.New("invalid_email")
	ErrEmailTaken       = errors.New("email_taken")
	ErrInvalidID        = errors.New("invalid_id")
	ErrInvalidTier      = errors.New("invalid_tier")
	ErrInvalidDeveloper = errors.New("invalid_developer")
	ErrNotFound         = errors.New("not_found")
)

package domain

import (
	"context"
	"errors"
)

type CreateDeveloperRequest struct {
	Name            string `json:"name"`
	UpstreamBaseURL string `json:"upstream_base_url"`
}

type UpdateDeveloperRequest struct {
	ID              string  `json:"-"`
	Name            *string `json:"name"`
	UpstreamBaseURL *string `json:"upstream_base_url"`
}

type Service interface {
	Create(ctx context.Context, req CreateDeveloperRequest) (Developer, error)
	Update(ctx context.Context, req UpdateDeveloperRequest) (Developer, error)
	List(ctx context.Context) ([]Developer, error)
	GetByID(ctx context.Context, id string) (Developer, error)
}

var (
	ErrInvalidName        = errors.New("invalid_name")
	ErrInvalidUpstreamURL = errors.New("invalid_upstream_url")
	ErrInvalidID          = errors.New("invalid_id")
	ErrSlugTaken          = errors.New("slug_taken")
	ErrNotFound           = errors.New("not_found")
)

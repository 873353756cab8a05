package service

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	developerdomain "github.com/metergate/metergate/internal/developer/domain"
	pkgdb "github.com/metergate/metergate/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  developerdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  developerdomain.Repository
}

func New(p Params) developerdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("developer.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req developerdomain.CreateDeveloperRequest) (developerdomain.Developer, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return developerdomain.Developer{}, developerdomain.ErrInvalidName
	}

	upstream, err := normalizeUpstreamURL(req.UpstreamBaseURL)
	if err != nil {
		return developerdomain.Developer{}, err
	}

	now := time.Now().UTC()
	developer := developerdomain.Developer{
		ID:              s.genID.Generate(),
		Name:            name,
		Slug:            slug.Make(name),
		UpstreamBaseURL: upstream,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Insert(ctx, s.db, &developer); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return developerdomain.Developer{}, developerdomain.ErrSlugTaken
		}
		return developerdomain.Developer{}, err
	}

	return developer, nil
}

func (s *Service) Update(ctx context.Context, req developerdomain.UpdateDeveloperRequest) (developerdomain.Developer, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(req.ID))
	if err != nil || parsed == 0 {
		return developerdomain.Developer{}, developerdomain.ErrInvalidID
	}

	developer, err := s.repo.FindByID(ctx, s.db, parsed)
	if err != nil {
		return developerdomain.Developer{}, err
	}
	if developer == nil {
		return developerdomain.Developer{}, developerdomain.ErrNotFound
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return developerdomain.Developer{}, developerdomain.ErrInvalidName
		}
		developer.Name = name
		developer.Slug = slug.Make(name)
	}
	if req.UpstreamBaseURL != nil {
		upstream, err := normalizeUpstreamURL(*req.UpstreamBaseURL)
		if err != nil {
			return developerdomain.Developer{}, err
		}
		developer.UpstreamBaseURL = upstream
	}

	developer.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, s.db, developer); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return developerdomain.Developer{}, developerdomain.ErrSlugTaken
		}
		return developerdomain.Developer{}, err
	}

	return *developer, nil
}

func (s *Service) List(ctx context.Context) ([]developerdomain.Developer, error) {
	return s.repo.List(ctx, s.db)
}

func (s *Service) GetByID(ctx context.Context, id string) (developerdomain.Developer, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || parsed == 0 {
		return developerdomain.Developer{}, developerdomain.ErrInvalidID
	}

	developer, err := s.repo.FindByID(ctx, s.db, parsed)
	if err != nil {
		return developerdomain.Developer{}, err
	}
	if developer == nil {
		return developerdomain.Developer{}, developerdomain.ErrNotFound
	}
	return *developer, nil
}

// normalizeUpstreamURL validates the base URL and strips a trailing slash.
// Empty is allowed; such developers proxy to the configured default upstream.
func normalizeUpstreamURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", nil
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", developerdomain.ErrInvalidUpstreamURL
	}
	return strings.TrimRight(trimmed, "/"), nil
}

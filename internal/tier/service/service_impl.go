package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	tierdomain "github.com/metergate/metergate/internal/tier/domain"
	pkgdb "github.com/metergate/metergate/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  tierdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  tierdomain.Repository
}

func New(p Params) tierdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("tier.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) List(ctx context.Context) ([]tierdomain.Tier, error) {
	return s.repo.List(ctx, s.db)
}

func (s *Service) GetByID(ctx context.Context, id string) (tierdomain.Tier, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || parsed == 0 {
		return tierdomain.Tier{}, tierdomain.ErrInvalidID
	}

	tier, err := s.repo.FindByID(ctx, s.db, parsed)
	if err != nil {
		return tierdomain.Tier{}, err
	}
	if tier == nil {
		return tierdomain.Tier{}, tierdomain.ErrNotFound
	}
	return *tier, nil
}

// GetByName resolves a tier by display name, falling back to the slug code
// so "Pro" and "pro" both match.
func (s *Service) GetByName(ctx context.Context, name string) (tierdomain.Tier, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return tierdomain.Tier{}, tierdomain.ErrInvalidName
	}

	tier, err := s.repo.FindByName(ctx, s.db, trimmed)
	if err != nil {
		return tierdomain.Tier{}, err
	}
	if tier == nil {
		tier, err = s.repo.FindByCode(ctx, s.db, slug.Make(trimmed))
		if err != nil {
			return tierdomain.Tier{}, err
		}
	}
	if tier == nil {
		return tierdomain.Tier{}, tierdomain.ErrNotFound
	}
	return *tier, nil
}

func (s *Service) Create(ctx context.Context, req tierdomain.CreateTierRequest) (tierdomain.Tier, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return tierdomain.Tier{}, tierdomain.ErrInvalidName
	}
	if req.PriceMonthly.IsNegative() {
		return tierdomain.Tier{}, tierdomain.ErrInvalidPrice
	}
	if req.DailyQuota < 0 {
		return tierdomain.Tier{}, tierdomain.ErrInvalidQuota
	}

	features := datatypes.JSONMap(req.Features)
	if features == nil {
		features = datatypes.JSONMap{}
	}

	now := time.Now().UTC()
	tier := tierdomain.Tier{
		ID:           s.genID.Generate(),
		Name:         name,
		Code:         slug.Make(name),
		PriceMonthly: req.PriceMonthly,
		DailyQuota:   req.DailyQuota,
		Features:     features,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Insert(ctx, s.db, &tier); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return tierdomain.Tier{}, tierdomain.ErrNameTaken
		}
		return tierdomain.Tier{}, err
	}

	return tier, nil
}

func (s *Service) Update(ctx context.Context, req tierdomain.UpdateTierRequest) (tierdomain.Tier, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(req.ID))
	if err != nil || parsed == 0 {
		return tierdomain.Tier{}, tierdomain.ErrInvalidID
	}

	tier, err := s.repo.FindByID(ctx, s.db, parsed)
	if err != nil {
		return tierdomain.Tier{}, err
	}
	if tier == nil {
		return tierdomain.Tier{}, tierdomain.ErrNotFound
	}

	if req.PriceMonthly != nil {
		if req.PriceMonthly.IsNegative() {
			return tierdomain.Tier{}, tierdomain.ErrInvalidPrice
		}
		tier.PriceMonthly = *req.PriceMonthly
	}
	if req.DailyQuota != nil {
		if *req.DailyQuota < 0 {
			return tierdomain.Tier{}, tierdomain.ErrInvalidQuota
		}
		tier.DailyQuota = *req.DailyQuota
	}
	if req.Features != nil {
		tier.Features = datatypes.JSONMap(req.Features)
	}

	tier.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, s.db, tier); err != nil {
		return tierdomain.Tier{}, err
	}

	return *tier, nil
}

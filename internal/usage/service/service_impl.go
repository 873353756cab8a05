package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/metergate/metergate/internal/usage/buffer"
	usagedomain "github.com/metergate/metergate/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Repo   usagedomain.Repository
	Buffer *buffer.Buffer `optional:"true"`
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	repo   usagedomain.Repository
	buffer *buffer.Buffer
}

func New(p Params) usagedomain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("usage.service"),
		repo:   p.Repo,
		buffer: p.Buffer,
	}
}

func (s *Service) CountForPeriod(ctx context.Context, customerID string, start, end time.Time) (int64, error) {
	id, err := parseCustomerID(customerID)
	if err != nil {
		return 0, err
	}
	if !end.After(start) {
		return 0, usagedomain.ErrInvalidPeriod
	}
	return s.repo.CountInRange(ctx, s.db, id, start, end)
}

func (s *Service) ListRecent(ctx context.Context, customerID string, limit int) ([]usagedomain.UsageRecord, error) {
	id, err := parseCustomerID(customerID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListRecent(ctx, s.db, id, limit)
}

func (s *Service) RecentBuffered(ctx context.Context, limit int) ([]usagedomain.UsageRecord, error) {
	if s.buffer == nil {
		return nil, nil
	}
	return s.buffer.Recent(ctx, limit)
}

func (s *Service) RecentBufferedForCustomer(ctx context.Context, customerID string, limit int) ([]usagedomain.UsageRecord, error) {
	id, err := parseCustomerID(customerID)
	if err != nil {
		return nil, err
	}
	if s.buffer == nil {
		return nil, nil
	}
	return s.buffer.RecentForCustomer(ctx, id.String(), limit)
}

func (s *Service) StatsByCustomer(ctx context.Context) ([]usagedomain.CustomerUsageStats, error) {
	return s.repo.StatsByCustomer(ctx, s.db)
}

func parseCustomerID(raw string) (snowflake.ID, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || parsed == 0 {
		return 0, usagedomain.ErrInvalidCustomer
	}
	return parsed, nil
}

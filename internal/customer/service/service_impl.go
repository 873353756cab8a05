package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/metergate/metergate/internal/customer/domain"
	developerdomain "github.com/metergate/metergate/internal/developer/domain"
	tierdomain "github.com/metergate/metergate/internal/tier/domain"
	pkgdb "github.com/metergate/metergate/pkg/db"
	"github.com/metergate/metergate/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultTierName = "Free"

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Tiers      tierdomain.Service
	Developers developerdomain.Service
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	tiers      tierdomain.Service
	developers developerdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("customer.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		tiers:      p.Tiers,
		developers: p.Developers,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateCustomerRequest) (domain.Customer, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Customer{}, domain.ErrInvalidName
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return domain.Customer{}, domain.ErrInvalidEmail
	}

	tierName := strings.TrimSpace(req.Tier)
	if tierName == "" {
		tierName = defaultTierName
	}
	tier, err := s.tiers.GetByName(ctx, tierName)
	if err != nil {
		if errors.Is(err, tierdomain.ErrNotFound) || errors.Is(err, tierdomain.ErrInvalidName) {
			return domain.Customer{}, domain.ErrInvalidTier
		}
		return domain.Customer{}, err
	}

	var developerID snowflake.ID
	if trimmed := strings.TrimSpace(req.DeveloperID); trimmed != "" {
		developer, err := s.developers.GetByID(ctx, trimmed)
		if err != nil {
			if errors.Is(err, developerdomain.ErrNotFound) || errors.Is(err, developerdomain.ErrInvalidID) {
				return domain.Customer{}, domain.ErrInvalidDeveloper
			}
			return domain.Customer{}, err
		}
		developerID = developer.ID
	}

	now := time.Now().UTC()
	customer := domain.Customer{
		ID:          s.genID.Generate(),
		Email:       email,
		Name:        name,
		TierID:      tier.ID,
		DeveloperID: developerID,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Insert(ctx, s.db, &customer); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return domain.Customer{}, domain.ErrEmailTaken
		}
		return domain.Customer{}, err
	}

	return customer, nil
}

func (s *Service) List(ctx context.Context, req domain.ListCustomerRequest) (domain.ListCustomerResponse, error) {
	filter := domain.ListCustomerFilter{
		Name:        strings.TrimSpace(req.Name),
		Email:       strings.ToLower(strings.TrimSpace(req.Email)),
		IsActive:    req.IsActive,
		CreatedFrom: req.CreatedFrom,
		CreatedTo:   req.CreatedTo,
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.List(ctx, s.db, filter, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListCustomerResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(customer *domain.Customer) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        customer.ID.String(),
			CreatedAt: customer.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	customers := make([]domain.Customer, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		customers = append(customers, *item)
	}

	resp := domain.ListCustomerResponse{Customers: customers}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}

	return resp, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Customer, error) {
	parsed, err := s.parseID(id)
	if err != nil {
		return domain.Customer{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, parsed)
	if err != nil {
		return domain.Customer{}, err
	}
	if item == nil {
		return domain.Customer{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) GetByEmail(ctx context.Context, email string) (domain.Customer, error) {
	trimmed := strings.ToLower(strings.TrimSpace(email))
	if trimmed == "" {
		return domain.Customer{}, domain.ErrInvalidEmail
	}

	item, err := s.repo.FindByEmail(ctx, s.db, trimmed)
	if err != nil {
		return domain.Customer{}, err
	}
	if item == nil {
		return domain.Customer{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) ListActive(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListActive(ctx, s.db)
}

func (s *Service) SetActive(ctx context.Context, req domain.SetActiveRequest) (domain.Customer, error) {
	parsed, err := s.parseID(req.ID)
	if err != nil {
		return domain.Customer{}, err
	}

	customer, err := s.repo.FindByID(ctx, s.db, parsed)
	if err != nil {
		return domain.Customer{}, err
	}
	if customer == nil {
		return domain.Customer{}, domain.ErrNotFound
	}

	customer.IsActive = req.IsActive
	customer.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, s.db, customer); err != nil {
		return domain.Customer{}, err
	}

	return *customer, nil
}

// ChangeTier moves the customer to a new tier. Cached key contexts age out
// within the resolver TTL, so the new quota applies within minutes.
func (s *Service) ChangeTier(ctx context.Context, req domain.ChangeTierRequest) (domain.Customer, error) {
	parsed, err := s.parseID(req.ID)
	if err != nil {
		return domain.Customer{}, err
	}

	tier, err := s.tiers.GetByName(ctx, req.Tier)
	if err != nil {
		if errors.Is(err, tierdomain.ErrNotFound) || errors.Is(err, tierdomain.ErrInvalidName) {
			return domain.Customer{}, domain.ErrInvalidTier
		}
		return domain.Customer{}, err
	}

	customer, err := s.repo.FindByID(ctx, s.db, parsed)
	if err != nil {
		return domain.Customer{}, err
	}
	if customer == nil {
		return domain.Customer{}, domain.ErrNotFound
	}

	customer.TierID = tier.ID
	customer.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, s.db, customer); err != nil {
		return domain.Customer{}, err
	}

	return *customer, nil
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

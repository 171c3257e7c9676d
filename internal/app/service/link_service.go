package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gatekeylabs/gatekey/internal/app/model"
	"github.com/gatekeylabs/gatekey/internal/app/repository"
	"github.com/gatekeylabs/gatekey/internal/codegen"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrLinkDeleted guards operations that cannot apply to a soft-deleted
	// link. Deletion is permanent.
	ErrLinkDeleted = errors.New("link has been deleted")
)

// LinkService defines the admin-facing operations on access links.
type LinkService interface {
	CreateLink(ctx context.Context, input CreateLinkInput) (*model.AccessLink, error)
	GetLink(ctx context.Context, code string) (*model.AccessLink, error)
	GetLinkByID(ctx context.Context, id string) (*model.AccessLink, error)
	ListLinks(ctx context.Context, limit, offset int) ([]model.AccessLink, error)
	UpdateLink(ctx context.Context, id string, input UpdateLinkInput) (*model.AccessLink, error)
	Disable(ctx context.Context, id string) (*model.AccessLink, error)
	Enable(ctx context.Context, id string) (*model.AccessLink, error)
	Delete(ctx context.Context, id string) error
	RegenerateCode(ctx context.Context, id string) (*model.AccessLink, error)
}

// LinkServiceConfig carries the link-issuing policy.
type LinkServiceConfig struct {
	CodeLength        int
	DefaultExpiration time.Duration
}

type linkService struct {
	repo      repository.LinkRepository
	providers repository.ProviderRepository
	filter    *CodeFilter
	cfg       LinkServiceConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewLinkService returns a service implementation backed by the given
// repositories. The code filter is optional.
func NewLinkService(repo repository.LinkRepository, providers repository.ProviderRepository, filter *CodeFilter, cfg LinkServiceConfig, logger *zap.Logger) LinkService {
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = codegen.DefaultLength
	}
	if cfg.DefaultExpiration <= 0 {
		cfg.DefaultExpiration = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &linkService{
		repo:      repo,
		providers: providers,
		filter:    filter,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateLinkInput captures data required to create a link.
type CreateLinkInput struct {
	Name        string
	Notes       string
	Purpose     model.LinkPurpose
	ActiveOn    *time.Time
	Expiration  *time.Time
	MaxUses     *int
	AutoOpen    bool
	ProviderIDs []string
}

// UpdateLinkInput captures fields that can be changed on an existing link.
type UpdateLinkInput struct {
	Name        *string
	Notes       *string
	Purpose     *model.LinkPurpose
	ActiveOn    *time.Time
	Expiration  *time.Time
	MaxUses     *int
	AutoOpen    *bool
	ProviderIDs *[]string
}

func (s *linkService) CreateLink(ctx context.Context, input CreateLinkInput) (*model.AccessLink, error) {
	code, err := s.generateUniqueCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("create link: %w", err)
	}

	now := s.now()

	link := &model.AccessLink{
		ID:         uuid.New().String(),
		Code:       code,
		Name:       input.Name,
		Notes:      input.Notes,
		Purpose:    input.Purpose,
		ActiveOn:   input.ActiveOn,
		Expiration: input.Expiration,
		MaxUses:    input.MaxUses,
		AutoOpen:   input.AutoOpen,
	}
	if link.Purpose == "" {
		link.Purpose = model.PurposeOther
	}
	if link.Expiration == nil {
		exp := now.Add(s.cfg.DefaultExpiration)
		link.Expiration = &exp
	}

	// A link can be born inactive, e.g. with an active_on in the future.
	link.Status = Resolve(link, now)

	if err := s.repo.Create(ctx, link); err != nil {
		return nil, fmt.Errorf("create link: %w", err)
	}
	if s.filter != nil {
		s.filter.Add(link.Code)
	}

	if len(input.ProviderIDs) > 0 {
		if err := s.providers.ReplaceForLink(ctx, link.ID, input.ProviderIDs); err != nil {
			return nil, fmt.Errorf("attach providers: %w", err)
		}
	}

	s.logger.Info("created access link",
		zap.String("link_id", link.ID),
		zap.String("code", link.Code),
		zap.String("name", link.Name),
		zap.String("status", string(link.Status)),
	)

	return link, nil
}

func (s *linkService) GetLink(ctx context.Context, code string) (*model.AccessLink, error) {
	link, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("get link: %w", err)
	}
	return link, nil
}

func (s *linkService) GetLinkByID(ctx context.Context, id string) (*model.AccessLink, error) {
	link, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get link: %w", err)
	}
	return link, nil
}

func (s *linkService) ListLinks(ctx context.Context, limit, offset int) ([]model.AccessLink, error) {
	links, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	return links, nil
}

func (s *linkService) UpdateLink(ctx context.Context, id string, input UpdateLinkInput) (*model.AccessLink, error) {
	link, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load link: %w", err)
	}
	if link.IsDeleted {
		return nil, ErrLinkDeleted
	}

	if input.Name != nil {
		link.Name = *input.Name
	}
	if input.Notes != nil {
		link.Notes = *input.Notes
	}
	if input.Purpose != nil {
		link.Purpose = *input.Purpose
	}
	if input.ActiveOn != nil {
		link.ActiveOn = input.ActiveOn
	}
	if input.Expiration != nil {
		link.Expiration = input.Expiration
	}
	if input.MaxUses != nil {
		link.MaxUses = input.MaxUses
	}
	if input.AutoOpen != nil {
		link.AutoOpen = *input.AutoOpen
	}

	// Edits to the bounds can flip the status either way; the manual
	// disable override survives edits untouched.
	link.Status = Resolve(link, s.now())

	if err := s.repo.Update(ctx, link); err != nil {
		return nil, fmt.Errorf("update link: %w", err)
	}

	if input.ProviderIDs != nil {
		if err := s.providers.ReplaceForLink(ctx, link.ID, *input.ProviderIDs); err != nil {
			return nil, fmt.Errorf("attach providers: %w", err)
		}
	}

	return link, nil
}

func (s *linkService) Disable(ctx context.Context, id string) (*model.AccessLink, error) {
	link, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load link: %w", err)
	}
	if link.IsDeleted {
		return nil, ErrLinkDeleted
	}

	link.Disabled = true
	link.Status = model.StatusDisabled
	if err := s.repo.Update(ctx, link); err != nil {
		return nil, fmt.Errorf("disable link: %w", err)
	}

	s.logger.Info("link disabled", zap.String("link_id", id), zap.String("code", link.Code))
	return link, nil
}

func (s *linkService) Enable(ctx context.Context, id string) (*model.AccessLink, error) {
	link, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load link: %w", err)
	}
	if link.IsDeleted {
		return nil, ErrLinkDeleted
	}

	// Clearing the override is the only way back from DISABLED; the status
	// is then recomputed, which may well land on INACTIVE (e.g. the link
	// expired while it sat disabled).
	link.Disabled = false
	link.Status = Resolve(link, s.now())
	if err := s.repo.Update(ctx, link); err != nil {
		return nil, fmt.Errorf("enable link: %w", err)
	}

	s.logger.Info("link enabled",
		zap.String("link_id", id),
		zap.String("code", link.Code),
		zap.String("status", string(link.Status)),
	)
	return link, nil
}

func (s *linkService) Delete(ctx context.Context, id string) error {
	link, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load link: %w", err)
	}
	if link.IsDeleted {
		return nil
	}

	now := s.now()
	link.IsDeleted = true
	link.DeletedAt = &now
	link.Status = model.StatusInactive
	if err := s.repo.Update(ctx, link); err != nil {
		return fmt.Errorf("delete link: %w", err)
	}

	s.logger.Info("link deleted", zap.String("link_id", id), zap.String("code", link.Code))
	return nil
}

func (s *linkService) RegenerateCode(ctx context.Context, id string) (*model.AccessLink, error) {
	link, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load link: %w", err)
	}
	if link.IsDeleted {
		return nil, ErrLinkDeleted
	}

	oldCode := link.Code
	code, err := s.generateUniqueCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("regenerate code: %w", err)
	}

	link.Code = code
	if err := s.repo.Update(ctx, link); err != nil {
		return nil, fmt.Errorf("regenerate code: %w", err)
	}
	if s.filter != nil {
		s.filter.Add(code)
	}

	s.logger.Info("regenerated link code",
		zap.String("link_id", id),
		zap.String("old_code", oldCode),
		zap.String("new_code", code),
	)
	return link, nil
}

const maxCodeAttempts = 10

func (s *linkService) generateUniqueCode(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := codegen.New(s.cfg.CodeLength)
		if err != nil {
			return "", err
		}

		_, err = s.repo.GetByCode(ctx, code)
		if errors.Is(err, repository.ErrLinkNotFound) {
			return code, nil
		}
		if err != nil {
			return "", err
		}

		s.logger.Warn("generated duplicate link code, retrying",
			zap.Int("attempt", attempt),
			zap.String("code", code),
		)
	}
	return "", fmt.Errorf("failed to generate unique code after %d attempts", maxCodeAttempts)
}

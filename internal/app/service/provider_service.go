package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gatekeylabs/gatekey/internal/app/model"
	"github.com/gatekeylabs/gatekey/internal/app/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProviderService defines the admin-facing operations on notification
// providers.
type ProviderService interface {
	CreateProvider(ctx context.Context, input CreateProviderInput) (*model.NotificationProvider, error)
	GetProvider(ctx context.Context, id string) (*model.NotificationProvider, error)
	ListProviders(ctx context.Context) ([]model.NotificationProvider, error)
	UpdateProvider(ctx context.Context, id string, input UpdateProviderInput) (*model.NotificationProvider, error)
	DeleteProvider(ctx context.Context, id string) error
}

type providerServiceImpl struct {
	repo   repository.ProviderRepository
	logger *zap.Logger
}

// NewProviderService returns a service implementation backed by the given
// repository.
func NewProviderService(repo repository.ProviderRepository, logger *zap.Logger) ProviderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &providerServiceImpl{repo: repo, logger: logger}
}

// CreateProviderInput captures data required to create a provider.
type CreateProviderInput struct {
	Name    string
	Type    model.ProviderType
	Config  json.RawMessage
	Enabled bool
}

// UpdateProviderInput captures fields that can be changed on a provider.
type UpdateProviderInput struct {
	Name    *string
	Config  json.RawMessage
	Enabled *bool
}

func (s *providerServiceImpl) CreateProvider(ctx context.Context, input CreateProviderInput) (*model.NotificationProvider, error) {
	if err := validateProviderConfig(input.Type, input.Config); err != nil {
		return nil, err
	}

	provider := &model.NotificationProvider{
		ID:      uuid.New().String(),
		Name:    input.Name,
		Type:    input.Type,
		Config:  input.Config,
		Enabled: input.Enabled,
	}

	if err := s.repo.Create(ctx, provider); err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}

	s.logger.Info("notification provider created",
		zap.String("provider_id", provider.ID),
		zap.String("name", provider.Name),
		zap.String("type", string(provider.Type)),
	)
	return provider, nil
}

func (s *providerServiceImpl) GetProvider(ctx context.Context, id string) (*model.NotificationProvider, error) {
	provider, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get provider: %w", err)
	}
	return provider, nil
}

func (s *providerServiceImpl) ListProviders(ctx context.Context) ([]model.NotificationProvider, error) {
	providers, err := s.repo.List(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	return providers, nil
}

func (s *providerServiceImpl) UpdateProvider(ctx context.Context, id string, input UpdateProviderInput) (*model.NotificationProvider, error) {
	provider, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	}

	if input.Name != nil {
		provider.Name = *input.Name
	}
	if input.Config != nil {
		if err := validateProviderConfig(provider.Type, input.Config); err != nil {
			return nil, err
		}
		provider.Config = input.Config
	}
	if input.Enabled != nil {
		provider.Enabled = *input.Enabled
	}

	if err := s.repo.Update(ctx, provider); err != nil {
		return nil, fmt.Errorf("update provider: %w", err)
	}

	s.logger.Info("notification provider updated",
		zap.String("provider_id", provider.ID),
		zap.String("name", provider.Name),
	)
	return provider, nil
}

func (s *providerServiceImpl) DeleteProvider(ctx context.Context, id string) error {
	provider, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load provider: %w", err)
	}

	now := time.Now().UTC()
	provider.IsDeleted = true
	provider.DeletedAt = &now
	provider.Enabled = false

	if err := s.repo.Update(ctx, provider); err != nil {
		return fmt.Errorf("delete provider: %w", err)
	}

	s.logger.Info("notification provider deleted",
		zap.String("provider_id", provider.ID),
		zap.String("name", provider.Name),
	)
	return nil
}

// validateProviderConfig rejects configs that the dispatcher could never
// deliver with, so broken providers fail at save time instead of send time.
func validateProviderConfig(t model.ProviderType, raw json.RawMessage) error {
	switch t {
	case model.ProviderPushover:
		var cfg model.PushoverConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return fmt.Errorf("invalid pushover config: %w", err)
		}
		if cfg.UserKey == "" || cfg.APIToken == "" {
			return fmt.Errorf("pushover config requires user_key and api_token")
		}
	case model.ProviderWebhook:
		var cfg model.WebhookConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return fmt.Errorf("invalid webhook config: %w", err)
		}
		if cfg.URL == "" {
			return fmt.Errorf("webhook config requires url")
		}
	default:
		return fmt.Errorf("unknown provider type %q", t)
	}
	return nil
}

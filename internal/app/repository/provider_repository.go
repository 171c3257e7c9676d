package repository

import (
	"context"
	"errors"

	"github.com/gatekeylabs/gatekey/internal/app/model"
	"gorm.io/gorm"
)

var (
	// ErrProviderNotFound signals that the notification provider does not
	// exist or has been deleted.
	ErrProviderNotFound = errors.New("notification provider not found")
)

// ProviderRepository defines the data access contract for notification
// providers.
type ProviderRepository interface {
	Create(ctx context.Context, provider *model.NotificationProvider) error
	GetByID(ctx context.Context, id string) (*model.NotificationProvider, error)
	List(ctx context.Context, enabledOnly bool) ([]model.NotificationProvider, error)
	Update(ctx context.Context, provider *model.NotificationProvider) error

	// ListForLink returns the enabled, non-deleted providers attached to a
	// link. Missing or disabled providers are silently dropped, which is
	// what lets links hold weak references by id.
	ListForLink(ctx context.Context, linkID string) ([]model.NotificationProvider, error)

	// ReplaceForLink rewrites the link/provider association set.
	ReplaceForLink(ctx context.Context, linkID string, providerIDs []string) error
}

type providerRepository struct {
	db *gorm.DB
}

// NewProviderRepository returns a GORM-backed ProviderRepository.
func NewProviderRepository(db *gorm.DB) ProviderRepository {
	return &providerRepository{db: db}
}

func (r *providerRepository) Create(ctx context.Context, provider *model.NotificationProvider) error {
	return r.db.WithContext(ctx).Create(provider).Error
}

func (r *providerRepository) GetByID(ctx context.Context, id string) (*model.NotificationProvider, error) {
	var provider model.NotificationProvider
	err := r.db.WithContext(ctx).
		Where("id = ? AND is_deleted = ?", id, false).
		First(&provider).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}
	return &provider, nil
}

func (r *providerRepository) List(ctx context.Context, enabledOnly bool) ([]model.NotificationProvider, error) {
	q := r.db.WithContext(ctx).Where("is_deleted = ?", false)
	if enabledOnly {
		q = q.Where("enabled = ?", true)
	}

	var result []model.NotificationProvider
	if err := q.Order("created_at DESC").Find(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}

func (r *providerRepository) Update(ctx context.Context, provider *model.NotificationProvider) error {
	result := r.db.WithContext(ctx).
		Model(&model.NotificationProvider{}).
		Where("id = ?", provider.ID).
		Updates(map[string]interface{}{
			"name":       provider.Name,
			"config":     provider.Config,
			"enabled":    provider.Enabled,
			"is_deleted": provider.IsDeleted,
			"deleted_at": provider.DeletedAt,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrProviderNotFound
	}

	return r.db.WithContext(ctx).Where("id = ?", provider.ID).First(provider).Error
}

func (r *providerRepository) ListForLink(ctx context.Context, linkID string) ([]model.NotificationProvider, error) {
	var result []model.NotificationProvider
	err := r.db.WithContext(ctx).
		Joins("JOIN link_notification_providers lnp ON lnp.notification_provider_id = notification_providers.id").
		Where("lnp.access_link_id = ?", linkID).
		Where("notification_providers.enabled = ?", true).
		Where("notification_providers.is_deleted = ?", false).
		Find(&result).Error
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *providerRepository) ReplaceForLink(ctx context.Context, linkID string, providerIDs []string) error {
	link := model.AccessLink{ID: linkID}

	var providers []model.NotificationProvider
	if len(providerIDs) > 0 {
		if err := r.db.WithContext(ctx).
			Where("id IN ?", providerIDs).
			Find(&providers).Error; err != nil {
			return err
		}
	}

	return r.db.WithContext(ctx).Model(&link).Association("Providers").Replace(providers)
}

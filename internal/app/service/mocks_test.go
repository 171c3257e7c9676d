package service

import (
	"context"
	"time"

	"github.com/gatekeylabs/gatekey/internal/app/model"
	"github.com/gatekeylabs/gatekey/internal/app/repository"
)

type mockLinkRepository struct {
	createFn          func(ctx context.Context, link *model.AccessLink) error
	getByCodeFn       func(ctx context.Context, code string) (*model.AccessLink, error)
	getByIDFn         func(ctx context.Context, id string) (*model.AccessLink, error)
	listFn            func(ctx context.Context, limit, offset int) ([]model.AccessLink, error)
	updateFn          func(ctx context.Context, link *model.AccessLink) error
	listCodesFn       func(ctx context.Context) ([]string, error)
	tryGrantFn        func(ctx context.Context, code string, now time.Time, cooldown time.Duration) (*model.AccessLink, error)
	incrementDeniedFn func(ctx context.Context, id string, now time.Time) error
	expireDueFn       func(ctx context.Context, now time.Time) (int64, error)
}

func (m *mockLinkRepository) Create(ctx context.Context, link *model.AccessLink) error {
	if m.createFn != nil {
		return m.createFn(ctx, link)
	}
	return nil
}

func (m *mockLinkRepository) GetByCode(ctx context.Context, code string) (*model.AccessLink, error) {
	if m.getByCodeFn != nil {
		return m.getByCodeFn(ctx, code)
	}
	return nil, repository.ErrLinkNotFound
}

func (m *mockLinkRepository) GetByID(ctx context.Context, id string) (*model.AccessLink, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, repository.ErrLinkNotFound
}

func (m *mockLinkRepository) List(ctx context.Context, limit, offset int) ([]model.AccessLink, error) {
	if m.listFn != nil {
		return m.listFn(ctx, limit, offset)
	}
	return nil, nil
}

func (m *mockLinkRepository) Update(ctx context.Context, link *model.AccessLink) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, link)
	}
	return nil
}

func (m *mockLinkRepository) ListCodes(ctx context.Context) ([]string, error) {
	if m.listCodesFn != nil {
		return m.listCodesFn(ctx)
	}
	return nil, nil
}

func (m *mockLinkRepository) TryGrant(ctx context.Context, code string, now time.Time, cooldown time.Duration) (*model.AccessLink, error) {
	if m.tryGrantFn != nil {
		return m.tryGrantFn(ctx, code, now, cooldown)
	}
	return nil, nil
}

func (m *mockLinkRepository) IncrementDenied(ctx context.Context, id string, now time.Time) error {
	if m.incrementDeniedFn != nil {
		return m.incrementDeniedFn(ctx, id, now)
	}
	return nil
}

func (m *mockLinkRepository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	if m.expireDueFn != nil {
		return m.expireDueFn(ctx, now)
	}
	return 0, nil
}

type mockProviderRepository struct {
	createFn         func(ctx context.Context, provider *model.NotificationProvider) error
	getByIDFn        func(ctx context.Context, id string) (*model.NotificationProvider, error)
	listFn           func(ctx context.Context, enabledOnly bool) ([]model.NotificationProvider, error)
	updateFn         func(ctx context.Context, provider *model.NotificationProvider) error
	listForLinkFn    func(ctx context.Context, linkID string) ([]model.NotificationProvider, error)
	replaceForLinkFn func(ctx context.Context, linkID string, providerIDs []string) error
}

func (m *mockProviderRepository) Create(ctx context.Context, provider *model.NotificationProvider) error {
	if m.createFn != nil {
		return m.createFn(ctx, provider)
	}
	return nil
}

func (m *mockProviderRepository) GetByID(ctx context.Context, id string) (*model.NotificationProvider, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, repository.ErrProviderNotFound
}

func (m *mockProviderRepository) List(ctx context.Context, enabledOnly bool) ([]model.NotificationProvider, error) {
	if m.listFn != nil {
		return m.listFn(ctx, enabledOnly)
	}
	return nil, nil
}

func (m *mockProviderRepository) Update(ctx context.Context, provider *model.NotificationProvider) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, provider)
	}
	return nil
}

func (m *mockProviderRepository) ListForLink(ctx context.Context, linkID string) ([]model.NotificationProvider, error) {
	if m.listForLinkFn != nil {
		return m.listForLinkFn(ctx, linkID)
	}
	return nil, nil
}

func (m *mockProviderRepository) ReplaceForLink(ctx context.Context, linkID string, providerIDs []string) error {
	if m.replaceForLinkFn != nil {
		return m.replaceForLinkFn(ctx, linkID, providerIDs)
	}
	return nil
}

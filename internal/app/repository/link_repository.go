package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gatekeylabs/gatekey/internal/app/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/gorm"
)

var (
	// ErrLinkNotFound signals that the requested access link does not exist.
	ErrLinkNotFound = errors.New("access link not found")
)

// LinkRepository defines the data access contract for access links. The
// CRUD operations run through GORM; the grant-path operations are single
// conditional statements executed on the pgx pool so that concurrent
// attempts against the same link serialize on the row lock.
type LinkRepository interface {
	Create(ctx context.Context, link *model.AccessLink) error
	GetByCode(ctx context.Context, code string) (*model.AccessLink, error)
	GetByID(ctx context.Context, id string) (*model.AccessLink, error)
	List(ctx context.Context, limit, offset int) ([]model.AccessLink, error)
	Update(ctx context.Context, link *model.AccessLink) error
	ListCodes(ctx context.Context) ([]string, error)

	// TryGrant performs the atomic grant: a guarded UPDATE whose WHERE
	// clause re-derives the link's status from its attributes (never the
	// cached status column) and enforces the cooldown window. It returns
	// the post-grant link when the guard passed, or nil when it did not.
	TryGrant(ctx context.Context, code string, now time.Time, cooldown time.Duration) (*model.AccessLink, error)

	// IncrementDenied bumps the denial counter outside the grant guard.
	IncrementDenied(ctx context.Context, id string, now time.Time) error

	// ExpireDue flips active links whose expiration has passed to inactive
	// and reports how many changed. Used by the periodic status sweep.
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}

type linkRepository struct {
	db   *gorm.DB
	pool *pgxpool.Pool
}

// NewLinkRepository returns a LinkRepository backed by GORM for CRUD and
// the pgx pool for the conditional grant path.
func NewLinkRepository(db *gorm.DB, pool *pgxpool.Pool) LinkRepository {
	return &linkRepository{db: db, pool: pool}
}

func (r *linkRepository) Create(ctx context.Context, link *model.AccessLink) error {
	link.Code = strings.ToUpper(strings.TrimSpace(link.Code))
	return r.db.WithContext(ctx).Create(link).Error
}

func (r *linkRepository) GetByCode(ctx context.Context, code string) (*model.AccessLink, error) {
	var link model.AccessLink
	err := r.db.WithContext(ctx).
		Preload("Providers").
		Where("upper(code) = upper(?)", strings.TrimSpace(code)).
		First(&link).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	return &link, nil
}

func (r *linkRepository) GetByID(ctx context.Context, id string) (*model.AccessLink, error) {
	var link model.AccessLink
	err := r.db.WithContext(ctx).
		Preload("Providers").
		Where("id = ?", id).
		First(&link).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	return &link, nil
}

func (r *linkRepository) List(ctx context.Context, limit, offset int) ([]model.AccessLink, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var result []model.AccessLink
	if err := r.db.WithContext(ctx).
		Where("is_deleted = ?", false).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&result).Error; err != nil {
		return nil, err
	}

	return result, nil
}

func (r *linkRepository) Update(ctx context.Context, link *model.AccessLink) error {
	result := r.db.WithContext(ctx).
		Model(&model.AccessLink{}).
		Where("id = ?", link.ID).
		Updates(map[string]interface{}{
			"name":       link.Name,
			"notes":      link.Notes,
			"purpose":    link.Purpose,
			"code":       link.Code,
			"disabled":   link.Disabled,
			"status":     link.Status,
			"active_on":  link.ActiveOn,
			"expiration": link.Expiration,
			"max_uses":   link.MaxUses,
			"auto_open":  link.AutoOpen,
			"is_deleted": link.IsDeleted,
			"deleted_at": link.DeletedAt,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrLinkNotFound
	}

	return r.db.WithContext(ctx).Where("id = ?", link.ID).First(link).Error
}

func (r *linkRepository) ListCodes(ctx context.Context) ([]string, error) {
	var codes []string
	if err := r.db.WithContext(ctx).
		Model(&model.AccessLink{}).
		Pluck("code", &codes).Error; err != nil {
		return nil, err
	}
	return codes, nil
}

// tryGrantSQL re-encodes the status resolver in SQL. Each predicate mirrors
// one resolver rule, plus the cooldown guard; the statement commits the
// counter bump, the new last-accessed timestamp and the refreshed cached
// status in one shot, so two racing attempts can never both pass.
const tryGrantSQL = `
UPDATE access_links SET
    granted_count    = granted_count + 1,
    last_accessed_at = $2,
    updated_at       = $2,
    status           = CASE
        WHEN max_uses IS NOT NULL AND granted_count + 1 >= max_uses THEN 'inactive'
        ELSE 'active'
    END
WHERE upper(code) = upper($1)
  AND NOT disabled
  AND NOT is_deleted
  AND (active_on IS NULL OR active_on <= $2)
  AND (expiration IS NULL OR expiration >= $2)
  AND (max_uses IS NULL OR granted_count < max_uses)
  AND (last_accessed_at IS NULL OR last_accessed_at <= $2 - make_interval(secs => $3))
RETURNING id, code, name, notes, status, granted_count, denied_count, max_uses, last_accessed_at, auto_open`

func (r *linkRepository) TryGrant(ctx context.Context, code string, now time.Time, cooldown time.Duration) (*model.AccessLink, error) {
	row := r.pool.QueryRow(ctx, tryGrantSQL,
		strings.TrimSpace(code), now.UTC(), cooldown.Seconds())

	var link model.AccessLink
	err := row.Scan(
		&link.ID,
		&link.Code,
		&link.Name,
		&link.Notes,
		&link.Status,
		&link.GrantedCount,
		&link.DeniedCount,
		&link.MaxUses,
		&link.LastAccessedAt,
		&link.AutoOpen,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Guard failed: the link is missing, not currently grantable,
			// or inside its cooldown window. The caller classifies which.
			return nil, nil
		}
		return nil, err
	}
	return &link, nil
}

func (r *linkRepository) IncrementDenied(ctx context.Context, id string, now time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE access_links SET denied_count = denied_count + 1, updated_at = $2 WHERE id = $1`,
		id, now.UTC())
	return err
}

func (r *linkRepository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
UPDATE access_links SET status = 'inactive', updated_at = $1
WHERE status = 'active'
  AND NOT disabled
  AND NOT is_deleted
  AND expiration IS NOT NULL
  AND expiration <= $1`, now.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

package repository

import (
	"context"
	"errors"
	"time"

	"picshare/internal/domain"

	"gorm.io/gorm"
)

// ErrRefreshTokenConsumed is returned by Rotate when the presented record was
// deleted concurrently (already rotated or logged out).
var ErrRefreshTokenConsumed = errors.New("refresh token already consumed")

// RefreshTokenRepository is the credential store: one row per issued
// refresh token.
type RefreshTokenRepository struct {
	db *gorm.DB
}

func NewRefreshTokenRepository(db *gorm.DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

func (r *RefreshTokenRepository) Create(ctx context.Context, t *domain.RefreshToken) error {
	t.ExpiresAt = t.ExpiresAt.UTC()
	return r.db.WithContext(ctx).Create(t).Error
}

// Find returns the record matching both hash and owner.
func (r *RefreshTokenRepository) Find(ctx context.Context, hash string, userID int64) (*domain.RefreshToken, error) {
	var t domain.RefreshToken
	err := r.db.WithContext(ctx).
		Where("token_hash = ? AND user_id = ?", hash, userID).
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *RefreshTokenRepository) Exists(ctx context.Context, hash string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.RefreshToken{}).
		Where("token_hash = ?", hash).
		Count(&count).Error
	return count > 0, err
}

// Delete removes the record matching hash and owner. Missing rows are not an error.
func (r *RefreshTokenRepository) Delete(ctx context.Context, hash string, userID int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("token_hash = ? AND user_id = ?", hash, userID).
		Delete(&domain.RefreshToken{})
	return res.RowsAffected > 0, res.Error
}

func (r *RefreshTokenRepository) DeleteAllForUser(ctx context.Context, userID int64) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&domain.RefreshToken{})
	return res.RowsAffected, res.Error
}

func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at <= ?", now.UTC()).
		Delete(&domain.RefreshToken{})
	return res.RowsAffected, res.Error
}

func (r *RefreshTokenRepository) CountForUser(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.RefreshToken{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}

// Rotate deletes the record oldID and stores next in one transaction. Only
// one of several concurrent rotations of the same record can win; the others
// get ErrRefreshTokenConsumed.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, oldID int64, next *domain.RefreshToken) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", oldID).Delete(&domain.RefreshToken{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrRefreshTokenConsumed
		}
		next.ExpiresAt = next.ExpiresAt.UTC()
		return tx.Create(next).Error
	})
}

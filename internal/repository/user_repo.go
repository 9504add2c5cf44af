package repository

import (
	"context"
	"strings"
	"time"

	"picshare/internal/domain"

	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) DB() *gorm.DB { return r.db }

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	u.Email = normalizeEmail(u.Email)
	if u.Role == "" {
		u.Role = domain.RoleUser
	}
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	var u domain.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.User{}).
		Where("email = ?", normalizeEmail(email)).
		Count(&count).Error
	return count > 0, err
}

func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.User{}).
		Where("username = ?", username).
		Count(&count).Error
	return count > 0, err
}

// UpdateProfile persists username, email and photo.
func (r *UserRepository) UpdateProfile(ctx context.Context, u *domain.User) error {
	u.Email = normalizeEmail(u.Email)
	return r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", u.ID).
		Updates(map[string]any{
			"username":   u.Username,
			"email":      u.Email,
			"photo":      u.Photo,
			"updated_at": time.Now().UTC(),
		}).Error
}

// SetResetToken stores the hash of a freshly issued reset token, replacing
// any earlier one.
func (r *UserRepository) SetResetToken(ctx context.Context, userID int64, hash string, expiresAt time.Time) error {
	res := r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"reset_password_token_hash": hash,
			"reset_password_expires_at": expiresAt.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetByResetHash finds the user holding the given reset token hash. Expiry
// is checked by the caller.
func (r *UserRepository) GetByResetHash(ctx context.Context, hash string) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).
		Where("reset_password_token_hash = ?", hash).
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CompletePasswordReset sets the new password hash, clears the reset fields
// and deletes every refresh token of the user in one transaction. It only
// succeeds while the reset identified by resetHash is still pending.
func (r *UserRepository) CompletePasswordReset(ctx context.Context, userID int64, resetHash, passwordHash string) (int64, error) {
	var revoked int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.User{}).
			Where("id = ? AND reset_password_token_hash = ?", userID, resetHash).
			Updates(map[string]any{
				"password_hash":             passwordHash,
				"reset_password_token_hash": nil,
				"reset_password_expires_at": nil,
				"updated_at":                time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		del := tx.Where("user_id = ?", userID).Delete(&domain.RefreshToken{})
		if del.Error != nil {
			return del.Error
		}
		revoked = del.RowsAffected
		return nil
	})
	return revoked, err
}

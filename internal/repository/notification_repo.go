package repository

import (
	"context"
	"time"

	"picshare/internal/domain"

	"gorm.io/gorm"
)

type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

// ListByUser returns the newest notifications first.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]domain.Notification, error) {
	var out []domain.Notification
	q := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&count).Error
	return count, err
}

// MarkRead flags one notification of userID as read and returns it.
// gorm.ErrRecordNotFound means absent or owned by someone else.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID int64) (*domain.Notification, error) {
	var n domain.Notification
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&n).Error; err != nil {
			return err
		}
		if n.Read {
			return nil
		}
		n.Read = true
		return tx.Model(&domain.Notification{}).Where("id = ?", n.ID).Update("read", true).Error
	})
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Update("read", true)
	return res.RowsAffected, res.Error
}

// Delete removes one notification of userID and returns what was deleted.
func (r *NotificationRepository) Delete(ctx context.Context, id, userID int64) (*domain.Notification, error) {
	var n domain.Notification
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&n).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.Notification{}, n.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *NotificationRepository) DeleteAll(ctx context.Context, userID int64) (int64, error) {
	res := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&domain.Notification{})
	return res.RowsAffected, res.Error
}

func (r *NotificationRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", cutoff.UTC()).Delete(&domain.Notification{})
	return res.RowsAffected, res.Error
}

package repository

import (
	"context"

	"picshare/internal/domain"

	"gorm.io/gorm"
)

type PostRepository struct {
	db *gorm.DB
}

func NewPostRepository(db *gorm.DB) *PostRepository {
	return &PostRepository{db: db}
}

func (r *PostRepository) withRelations(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Author").
		Preload("Likes", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") })
}

func (r *PostRepository) Create(ctx context.Context, p *domain.Post) error {
	return r.db.WithContext(ctx).Omit("Author", "Likes").Create(p).Error
}

func (r *PostRepository) GetByID(ctx context.Context, id int64) (*domain.Post, error) {
	var p domain.Post
	if err := r.withRelations(ctx).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostRepository) List(ctx context.Context) ([]domain.Post, error) {
	var posts []domain.Post
	err := r.withRelations(ctx).Order("created_at DESC").Order("id DESC").Find(&posts).Error
	return posts, err
}

func (r *PostRepository) ListByUser(ctx context.Context, userID int64) ([]domain.Post, error) {
	var posts []domain.Post
	err := r.withRelations(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Find(&posts).Error
	return posts, err
}

// AddLike records userID's like. It reports false when the like already existed.
func (r *PostRepository) AddLike(ctx context.Context, postID, userID int64) (bool, error) {
	err := r.db.WithContext(ctx).Create(&domain.PostLike{PostID: postID, UserID: userID}).Error
	if err != nil {
		if IsUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *PostRepository) RemoveLike(ctx context.Context, postID, userID int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Delete(&domain.PostLike{})
	return res.RowsAffected > 0, res.Error
}

// Delete removes the post together with its likes and every notification
// that references it.
func (r *PostRepository) Delete(ctx context.Context, postID int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", postID).Delete(&domain.PostLike{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", postID).Delete(&domain.Notification{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&domain.Post{}, postID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

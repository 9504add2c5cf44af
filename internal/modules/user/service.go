package user

import (
	"context"
	"errors"
	"strings"

	"picshare/internal/domain"
	"picshare/internal/pkg/apperr"
	"picshare/internal/pkg/logger"
	"picshare/internal/repository"
	"picshare/internal/storage"

	"gorm.io/gorm"
)

const photoPrefix = "users"

var (
	ErrUserNotFound  = apperr.NotFound("USER_NOT_FOUND", "User not found")
	ErrUsernameTaken = apperr.Conflict("USERNAME_TAKEN", "Username already taken")
	ErrEmailTaken    = apperr.Conflict("EMAIL_TAKEN", "Email already taken")
)

type Store interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	UpdateProfile(ctx context.Context, u *domain.User) error
}

// EditInput carries the fields to change; empty means unchanged.
type EditInput struct {
	Username string
	Email    string
	Photo    string
}

type Service struct {
	users  Store
	images storage.ImageStore
}

func NewService(users Store, images storage.ImageStore) *Service {
	return &Service{users: users, images: images}
}

func (s *Service) Current(ctx context.Context, id int64) (*domain.Profile, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	p := u.Profile()
	return &p, nil
}

func (s *Service) ByUsername(ctx context.Context, username string) (*domain.Profile, error) {
	u, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, notFound(err)
	}
	p := u.Profile()
	return &p, nil
}

func (s *Service) Edit(ctx context.Context, id int64, in EditInput) (*domain.Profile, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}

	if name := strings.TrimSpace(in.Username); name != "" && name != u.Username {
		taken, err := s.users.ExistsByUsername(ctx, name)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrUsernameTaken
		}
		u.Username = name
	}

	if email := strings.ToLower(strings.TrimSpace(in.Email)); email != "" && email != u.Email {
		taken, err := s.users.ExistsByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrEmailTaken
		}
		u.Email = email
	}

	if in.Photo != "" {
		url, err := s.images.Put(ctx, photoPrefix, in.Photo)
		if err != nil {
			return nil, err
		}
		u.Photo = url
	}

	if err := s.users.UpdateProfile(ctx, u); err != nil {
		if repository.IsUniqueViolation(err) {
			if strings.Contains(repository.UniqueViolationColumn(err), "email") {
				return nil, ErrEmailTaken
			}
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	logger.FromContext(ctx).Info("profile updated", "user_id", u.ID)

	p := u.Profile()
	return &p, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrUserNotFound
	}
	return err
}

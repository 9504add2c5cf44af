package post

import (
	"context"
	"errors"
	"strings"

	"picshare/internal/domain"
	"picshare/internal/modules/notification"
	"picshare/internal/pkg/apperr"
	"picshare/internal/pkg/logger"
	"picshare/internal/storage"

	"gorm.io/gorm"
)

const photoPrefix = "posts"

var (
	ErrPostNotFound = apperr.NotFound("POST_NOT_FOUND", "Post not found")
	ErrNotOwner     = apperr.Forbidden("NOT_POST_OWNER", "Unauthorized to delete this post")
)

type Store interface {
	Create(ctx context.Context, p *domain.Post) error
	GetByID(ctx context.Context, id int64) (*domain.Post, error)
	List(ctx context.Context) ([]domain.Post, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Post, error)
	AddLike(ctx context.Context, postID, userID int64) (bool, error)
	RemoveLike(ctx context.Context, postID, userID int64) (bool, error)
	Delete(ctx context.Context, postID int64) error
}

type Notifier interface {
	Notify(ctx context.Context, ev notification.Event) (*domain.Notification, error)
}

type Service struct {
	posts    Store
	images   storage.ImageStore
	notifier Notifier
}

func NewService(posts Store, images storage.ImageStore, notifier Notifier) *Service {
	return &Service{posts: posts, images: images, notifier: notifier}
}

func (s *Service) Create(ctx context.Context, author domain.Profile, prompt, photo string) (*domain.PostView, error) {
	url, err := s.images.Put(ctx, photoPrefix, photo)
	if err != nil {
		return nil, err
	}

	p := &domain.Post{UserID: author.ID, Prompt: strings.TrimSpace(prompt), Photo: url}
	if err := s.posts.Create(ctx, p); err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("post created", "post_id", p.ID)
	return s.view(ctx, p.ID)
}

func (s *Service) List(ctx context.Context) ([]domain.PostView, error) {
	posts, err := s.posts.List(ctx)
	if err != nil {
		return nil, err
	}
	return views(posts), nil
}

func (s *Service) ListByUser(ctx context.Context, userID int64) ([]domain.PostView, error) {
	posts, err := s.posts.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return views(posts), nil
}

// ToggleLike likes the post for actor, or takes the like back when it is
// already there. A fresh like on someone else's post notifies the owner;
// that notification never fails the like.
func (s *Service) ToggleLike(ctx context.Context, actor domain.Profile, postID int64) (*domain.PostView, error) {
	p, err := s.get(ctx, postID)
	if err != nil {
		return nil, err
	}

	if p.LikedBy(actor.ID) {
		if _, err := s.posts.RemoveLike(ctx, p.ID, actor.ID); err != nil {
			return nil, err
		}
		return s.view(ctx, p.ID)
	}

	added, err := s.posts.AddLike(ctx, p.ID, actor.ID)
	if err != nil {
		return nil, err
	}
	if added && p.UserID != actor.ID {
		s.notifyLike(ctx, actor, p)
	}
	return s.view(ctx, p.ID)
}

func (s *Service) notifyLike(ctx context.Context, actor domain.Profile, p *domain.Post) {
	_, err := s.notifier.Notify(ctx, notification.Event{
		RecipientID:   p.UserID,
		ActorID:       actor.ID,
		ActorUsername: actor.Username,
		ActorPhoto:    actor.Photo,
		Type:          domain.NotificationLike,
		PostID:        p.ID,
		PostPhoto:     p.Photo,
	})
	if err != nil {
		logger.FromContext(ctx).Error("like notification failed", "post_id", p.ID, "err", err)
	}
}

// Delete removes a post owned by actorID along with its likes and
// notifications.
func (s *Service) Delete(ctx context.Context, actorID, postID int64) error {
	p, err := s.get(ctx, postID)
	if err != nil {
		return err
	}
	if p.UserID != actorID {
		return ErrNotOwner
	}
	if err := s.posts.Delete(ctx, p.ID); err != nil {
		return notFound(err)
	}
	logger.FromContext(ctx).Info("post deleted", "post_id", p.ID)
	return nil
}

func (s *Service) get(ctx context.Context, id int64) (*domain.Post, error) {
	p, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (s *Service) view(ctx context.Context, id int64) (*domain.PostView, error) {
	p, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	v := p.View()
	return &v, nil
}

func views(posts []domain.Post) []domain.PostView {
	out := make([]domain.PostView, 0, len(posts))
	for i := range posts {
		out = append(out, posts[i].View())
	}
	return out
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrPostNotFound
	}
	return err
}

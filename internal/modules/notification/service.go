package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"picshare/internal/domain"
	"picshare/internal/pkg/apperr"
	"picshare/internal/pkg/logger"

	"gorm.io/gorm"
)

const FeedLimit = 50

var (
	ErrNotFound    = apperr.NotFound("NOTIFICATION_NOT_FOUND", "Notification not found")
	ErrInvalidType = apperr.Validation("INVALID_NOTIFICATION_TYPE", "Unknown notification type")
)

type Store interface {
	Create(ctx context.Context, n *domain.Notification) error
	ListByUser(ctx context.Context, userID int64, limit int) ([]domain.Notification, error)
	CountUnread(ctx context.Context, userID int64) (int64, error)
	MarkRead(ctx context.Context, id, userID int64) (*domain.Notification, error)
	MarkAllRead(ctx context.Context, userID int64) (int64, error)
	Delete(ctx context.Context, id, userID int64) (*domain.Notification, error)
	DeleteAll(ctx context.Context, userID int64) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Pusher delivers a payload to the open connections of a user.
type Pusher interface {
	Push(ownerID int64, payload any) int
}

// Event describes something ActorID did that RecipientID should hear about.
type Event struct {
	RecipientID   int64
	ActorID       int64
	ActorUsername string
	ActorPhoto    string
	Type          domain.NotificationType
	PostID        int64
	PostPhoto     string
}

// Dispatcher persists notifications and pushes them to connected clients.
type Dispatcher struct {
	store  Store
	pusher Pusher
}

func NewDispatcher(store Store, pusher Pusher) *Dispatcher {
	return &Dispatcher{store: store, pusher: pusher}
}

// Notify stores the notification and then pushes it. Only the store error is
// returned; delivery is best effort and a client that is offline picks the
// notification up from the feed.
func (d *Dispatcher) Notify(ctx context.Context, ev Event) (*domain.Notification, error) {
	if !ev.Type.Valid() {
		return nil, ErrInvalidType
	}

	n := &domain.Notification{
		UserID:        ev.RecipientID,
		ActorID:       ev.ActorID,
		ActorUsername: ev.ActorUsername,
		ActorPhoto:    ev.ActorPhoto,
		Type:          ev.Type,
		PostID:        ev.PostID,
		PostPhoto:     ev.PostPhoto,
	}
	log := logger.FromContext(ctx)
	if err := d.store.Create(ctx, n); err != nil {
		log.Error("persist notification", "recipient_id", ev.RecipientID, "type", ev.Type, "err", err)
		return nil, fmt.Errorf("persist notification: %w", err)
	}

	delivered := d.pusher.Push(n.UserID, n)
	log.Debug("notification dispatched", "notification_id", n.ID, "recipient_id", n.UserID, "connections", delivered)
	return n, nil
}

// Service is the recipient's view of their notifications.
type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

func (s *Service) List(ctx context.Context, userID int64) ([]domain.Notification, error) {
	out, err := s.store.ListByUser(ctx, userID, FeedLimit)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.Notification{}
	}
	return out, nil
}

func (s *Service) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	return s.store.CountUnread(ctx, userID)
}

func (s *Service) MarkRead(ctx context.Context, id, userID int64) (*domain.Notification, error) {
	n, err := s.store.MarkRead(ctx, id, userID)
	return n, notFound(err)
}

func (s *Service) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	return s.store.MarkAllRead(ctx, userID)
}

func (s *Service) Delete(ctx context.Context, id, userID int64) (*domain.Notification, error) {
	n, err := s.store.Delete(ctx, id, userID)
	return n, notFound(err)
}

func (s *Service) DeleteAll(ctx context.Context, userID int64) (int64, error) {
	return s.store.DeleteAll(ctx, userID)
}

// Purge removes notifications older than maxAge.
func (s *Service) Purge(ctx context.Context, maxAge time.Duration) (int64, error) {
	return s.store.DeleteOlderThan(ctx, s.now().Add(-maxAge))
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

package post

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"

	"picshare/internal/database"
	"picshare/internal/domain"
	"picshare/internal/modules/notification"
	"picshare/internal/repository"
	"picshare/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var photo = "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"))

type countingPusher struct {
	mu sync.Mutex
	n  map[int64]int
}

func (p *countingPusher) Push(ownerID int64, _ any) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.n == nil {
		p.n = map[int64]int{}
	}
	p.n[ownerID]++
	return 1
}

func (p *countingPusher) pushes(ownerID int64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.n[ownerID]
}

type failingNotifier struct{ calls int }

func (f *failingNotifier) Notify(context.Context, notification.Event) (*domain.Notification, error) {
	f.calls++
	return nil, errors.New("notifications table gone")
}

type fixture struct {
	db            *gorm.DB
	svc           *Service
	posts         *repository.PostRepository
	notifications *repository.NotificationRepository
	pusher        *countingPusher
	alice, bob    domain.Profile
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Connect(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	users := repository.NewUserRepository(db)
	mk := func(name string) domain.Profile {
		u := &domain.User{Username: name, Email: name + "@x.com", PasswordHash: "h", Photo: "https://img/" + name}
		require.NoError(t, users.Create(context.Background(), u))
		return u.Profile()
	}

	f := &fixture{
		db:            db,
		posts:         repository.NewPostRepository(db),
		notifications: repository.NewNotificationRepository(db),
		pusher:        &countingPusher{},
	}
	f.alice, f.bob = mk("alice"), mk("bob")
	f.svc = NewService(f.posts, storage.InlineStore{}, notification.NewDispatcher(f.notifications, f.pusher))
	return f
}

func TestCreateAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, f.alice, "  a red fox in snow  ", photo)
	require.NoError(t, err)
	assert.Equal(t, "a red fox in snow", first.Prompt)
	assert.Equal(t, photo, first.Photo)
	assert.Equal(t, "alice", first.User.Username)
	assert.Empty(t, first.Likes)

	_, err = f.svc.Create(ctx, f.bob, "city at night", photo)
	require.NoError(t, err)

	all, err := f.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "bob", all[0].User.Username)

	mine, err := f.svc.ListByUser(ctx, f.alice.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, first.ID, mine[0].ID)

	_, err = f.svc.Create(ctx, f.alice, "broken photo", "data:image/png;base64,aGVsbG8=")
	assert.ErrorIs(t, err, storage.ErrInvalidImage)
}

func TestToggleLike_NotifiesOwnerOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.Create(ctx, f.alice, "mountain lake", photo)
	require.NoError(t, err)

	liked, err := f.svc.ToggleLike(ctx, f.bob, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{f.bob.ID}, liked.Likes)
	assert.Equal(t, 1, f.pusher.pushes(f.alice.ID))

	feed, err := f.notifications.ListByUser(ctx, f.alice.ID, 10)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, f.bob.ID, feed[0].ActorID)
	assert.Equal(t, "bob", feed[0].ActorUsername)
	assert.Equal(t, p.ID, feed[0].PostID)
	assert.Equal(t, domain.NotificationLike, feed[0].Type)

	unliked, err := f.svc.ToggleLike(ctx, f.bob, p.ID)
	require.NoError(t, err)
	assert.Empty(t, unliked.Likes)
	assert.Equal(t, 1, f.pusher.pushes(f.alice.ID))
}

func TestToggleLike_OwnPostDoesNotNotify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.Create(ctx, f.alice, "self portrait", photo)
	require.NoError(t, err)

	liked, err := f.svc.ToggleLike(ctx, f.alice, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{f.alice.ID}, liked.Likes)
	assert.Zero(t, f.pusher.pushes(f.alice.ID))

	count, err := f.notifications.CountUnread(ctx, f.alice.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestToggleLike_NotificationFailureDoesNotFailLike(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	notifier := &failingNotifier{}
	svc := NewService(f.posts, storage.InlineStore{}, notifier)

	p, err := svc.Create(ctx, f.alice, "desert dunes", photo)
	require.NoError(t, err)

	liked, err := svc.ToggleLike(ctx, f.bob, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{f.bob.ID}, liked.Likes)
	assert.Equal(t, 1, notifier.calls)
}

func TestToggleLike_MissingPost(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ToggleLike(context.Background(), f.bob, 999)
	assert.ErrorIs(t, err, ErrPostNotFound)
}

func TestDelete_OwnerOnlyAndCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.Create(ctx, f.alice, "old ruins", photo)
	require.NoError(t, err)
	_, err = f.svc.ToggleLike(ctx, f.bob, p.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Delete(ctx, f.bob.ID, p.ID), ErrNotOwner)
	require.NoError(t, f.svc.Delete(ctx, f.alice.ID, p.ID))
	assert.ErrorIs(t, f.svc.Delete(ctx, f.alice.ID, p.ID), ErrPostNotFound)

	feed, err := f.notifications.ListByUser(ctx, f.alice.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, feed)

	var likes int64
	require.NoError(t, f.db.Model(&domain.PostLike{}).Where("post_id = ?", p.ID).Count(&likes).Error)
	assert.Zero(t, likes)
}

package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"picshare/internal/domain"
	"picshare/internal/pkg/jwt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Mock user store implementing UserStore
type mockUserStore struct {
	mock.Mock
}

func (m *mockUserStore) Create(ctx context.Context, u *domain.User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *mockUserStore) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

func (m *mockUserStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	args := m.Called(ctx, username)
	return args.Bool(0), args.Error(1)
}

func (m *mockUserStore) SetResetToken(ctx context.Context, userID int64, hash string, expiresAt time.Time) error {
	args := m.Called(ctx, userID, hash, expiresAt)
	return args.Error(0)
}

func (m *mockUserStore) GetByResetHash(ctx context.Context, hash string) (*domain.User, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserStore) CompletePasswordReset(ctx context.Context, userID int64, resetHash, passwordHash string) (int64, error) {
	args := m.Called(ctx, userID, resetHash, passwordHash)
	return args.Get(0).(int64), args.Error(1)
}

// Mock credential store implementing CredentialStore
type mockCredentialStore struct {
	mock.Mock
}

func (m *mockCredentialStore) Create(ctx context.Context, t *domain.RefreshToken) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *mockCredentialStore) Find(ctx context.Context, hash string, userID int64) (*domain.RefreshToken, error) {
	args := m.Called(ctx, hash, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RefreshToken), args.Error(1)
}

func (m *mockCredentialStore) Delete(ctx context.Context, hash string, userID int64) (bool, error) {
	args := m.Called(ctx, hash, userID)
	return args.Bool(0), args.Error(1)
}

func (m *mockCredentialStore) DeleteAllForUser(ctx context.Context, userID int64) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockCredentialStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockCredentialStore) Rotate(ctx context.Context, oldID int64, next *domain.RefreshToken) error {
	args := m.Called(ctx, oldID, next)
	return args.Error(0)
}

func newMockedService(t *testing.T, users *mockUserStore, tokens *mockCredentialStore) *Service {
	t.Helper()
	codec, err := jwt.NewCodec(jwt.Secrets{Access: "a", Refresh: "r", Reset: "p"})
	require.NoError(t, err)
	hasher, err := NewPasswordHasher(bcrypt.MinCost, 1)
	require.NoError(t, err)
	return NewService(users, tokens, codec, hasher, nil, nil, Options{
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
		ResetTTL:   time.Minute,
	})
}

func TestService_Register_UsernameTakenSkipsCreate(t *testing.T) {
	users := new(mockUserStore)
	tokens := new(mockCredentialStore)
	svc := newMockedService(t, users, tokens)

	users.On("ExistsByUsername", mock.Anything, "alice").Return(true, nil)

	_, err := svc.Register(context.Background(), RegisterInput{Username: " alice ", Email: "a@x.com", Password: testPassword}, "")

	assert.ErrorIs(t, err, ErrUsernameTaken)
	users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	tokens.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestService_Register_LostRaceOnEmail(t *testing.T) {
	users := new(mockUserStore)
	tokens := new(mockCredentialStore)
	svc := newMockedService(t, users, tokens)

	users.On("ExistsByUsername", mock.Anything, "alice").Return(false, nil)
	users.On("ExistsByEmail", mock.Anything, "a@x.com").Return(false, nil)
	users.On("Create", mock.Anything, mock.Anything).
		Return(&pgconn.PgError{Code: "23505", ConstraintName: "idx_users_email"})

	_, err := svc.Register(context.Background(), RegisterInput{Username: "alice", Email: "a@x.com", Password: testPassword}, "")

	assert.ErrorIs(t, err, ErrEmailTaken)
	tokens.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestService_Login_StoresFingerprintNotToken(t *testing.T) {
	users := new(mockUserStore)
	tokens := new(mockCredentialStore)
	svc := newMockedService(t, users, tokens)

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	users.On("GetByEmail", mock.Anything, "a@x.com").
		Return(&domain.User{ID: 7, Username: "alice", Email: "a@x.com", PasswordHash: string(hash)}, nil)

	var stored *domain.RefreshToken
	tokens.On("Create", mock.Anything, mock.AnythingOfType("*domain.RefreshToken")).
		Run(func(args mock.Arguments) { stored = args.Get(1).(*domain.RefreshToken) }).
		Return(nil)

	s, err := svc.Login(context.Background(), "a@x.com", testPassword, "firefox")
	require.NoError(t, err)

	require.NotNil(t, stored)
	assert.Equal(t, int64(7), stored.UserID)
	assert.Equal(t, "firefox", stored.DeviceInfo)
	assert.Len(t, stored.TokenHash, 64)
	assert.NotEqual(t, s.RefreshToken, stored.TokenHash)
	assert.Equal(t, svc.fingerprint(s.RefreshToken), stored.TokenHash)
	assert.WithinDuration(t, s.RefreshExpiresAt, stored.ExpiresAt, time.Second)
}

func TestService_Refresh_StorageErrorIsNotAuthFailure(t *testing.T) {
	users := new(mockUserStore)
	tokens := new(mockCredentialStore)
	svc := newMockedService(t, users, tokens)

	token, _, err := svc.codec.Issue(7, jwt.PurposeRefresh, time.Hour)
	require.NoError(t, err)
	boom := errors.New("connection reset")
	tokens.On("Find", mock.Anything, svc.fingerprint(token), int64(7)).Return(nil, boom)

	_, err = svc.Refresh(context.Background(), token, "")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrSessionInvalid)
}

func TestService_RequestPasswordReset_StoreErrorLooksLikeSuccess(t *testing.T) {
	users := new(mockUserStore)
	tokens := new(mockCredentialStore)
	svc := newMockedService(t, users, tokens)

	users.On("GetByEmail", mock.Anything, "a@x.com").
		Return(&domain.User{ID: 7, Username: "alice", Email: "a@x.com"}, nil)
	users.On("SetResetToken", mock.Anything, int64(7), mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).
		Return(errors.New("connection reset"))
	users.On("GetByEmail", mock.Anything, "ghost@x.com").Return(nil, gorm.ErrRecordNotFound)

	known := svc.RequestPasswordReset(context.Background(), "a@x.com")
	unknown := svc.RequestPasswordReset(context.Background(), "ghost@x.com")

	assert.NoError(t, known)
	assert.Equal(t, unknown, known)
	users.AssertExpectations(t)
}

package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"picshare/internal/database"
	"picshare/internal/domain"
	"picshare/internal/pkg/apperr"
	"picshare/internal/pkg/jwt"
	"picshare/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const testPassword = "Secur3!Pass"

type recordingMailer struct {
	mu   sync.Mutex
	sent []Email
}

func (m *recordingMailer) Send(_ context.Context, msg Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) messages() []Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Email(nil), m.sent...)
}

type fakeGoogle struct {
	identity *GoogleIdentity
	err      error
}

func (f *fakeGoogle) Verify(context.Context, string) (*GoogleIdentity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.identity, nil
}

type fixture struct {
	db     *gorm.DB
	svc    *Service
	users  *repository.UserRepository
	tokens *repository.RefreshTokenRepository
	codec  *jwt.Codec
	mailer *recordingMailer
	google *fakeGoogle
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

	codec, err := jwt.NewCodec(jwt.Secrets{Access: "access-secret", Refresh: "refresh-secret", Reset: "reset-secret"})
	require.NoError(t, err)
	hasher, err := NewPasswordHasher(bcrypt.MinCost, 4)
	require.NoError(t, err)

	f := &fixture{
		db:     db,
		users:  repository.NewUserRepository(db),
		tokens: repository.NewRefreshTokenRepository(db),
		codec:  codec,
		mailer: &recordingMailer{},
		google: &fakeGoogle{},
	}
	f.svc = NewService(f.users, f.tokens, codec, hasher, f.google, f.mailer, Options{
		AccessTTL:          5 * time.Minute,
		RefreshTTL:         24 * time.Hour,
		ResetTTL:           15 * time.Minute,
		RefreshTokenPepper: "pepper",
		FrontendURL:        "http://app.test",
	})
	return f
}

func (f *fixture) register(t *testing.T, username, email string) *Session {
	t.Helper()
	s, err := f.svc.Register(context.Background(), RegisterInput{Username: username, Email: email, Password: testPassword}, "test-agent")
	require.NoError(t, err)
	return s
}

func TestRegister_CreatesUserAndSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := f.register(t, "alice", "a@x.com")
	assert.Equal(t, "alice", s.User.Username)
	assert.Equal(t, "a@x.com", s.User.Email)
	assert.NotEmpty(t, s.AccessToken)
	assert.NotEmpty(t, s.RefreshToken)

	user, err := f.users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.NotEqual(t, testPassword, user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(testPassword)))

	count, err := f.tokens.CountForUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// the raw token is never stored
	exists, err := f.tokens.Exists(ctx, s.RefreshToken)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRegister_Conflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "a@x.com")

	_, err := f.svc.Register(ctx, RegisterInput{Username: "alice", Email: "other@x.com", Password: testPassword}, "")
	assert.ErrorIs(t, err, ErrUsernameTaken)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	_, err = f.svc.Register(ctx, RegisterInput{Username: "alice2", Email: "A@X.com", Password: testPassword}, "")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestLogin_UniformFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "a@x.com")

	_, errUnknown := f.svc.Login(ctx, "nobody@x.com", testPassword, "")
	_, errWrong := f.svc.Login(ctx, "a@x.com", "Wr0ng!Pass", "")

	assert.ErrorIs(t, errUnknown, ErrInvalidCredentials)
	assert.ErrorIs(t, errWrong, ErrInvalidCredentials)
	assert.Equal(t, errUnknown.Error(), errWrong.Error())
}

func TestLogin_ThenRefresh_RotatesTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "a@x.com")

	login, err := f.svc.Login(ctx, "a@x.com", testPassword, "")
	require.NoError(t, err)

	refreshed, err := f.svc.Refresh(ctx, login.RefreshToken, "")
	require.NoError(t, err)
	assert.NotEqual(t, login.AccessToken, refreshed.AccessToken)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)
	assert.Equal(t, login.User.ID, refreshed.User.ID)

	claims, err := f.codec.Verify(refreshed.AccessToken, jwt.PurposeAccess)
	require.NoError(t, err)
	assert.Equal(t, login.User.ID, claims.UserID)

	// the presented token was consumed
	_, err = f.svc.Refresh(ctx, login.RefreshToken, "")
	assert.ErrorIs(t, err, ErrSessionInvalid)
	assert.ErrorIs(t, err, ErrRefreshTokenNotFound)

	_, err = f.svc.Refresh(ctx, refreshed.RefreshToken, "")
	assert.NoError(t, err)
}

func TestRefresh_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.register(t, "alice", "a@x.com")

	_, err := f.svc.Refresh(ctx, "  ", "")
	assert.ErrorIs(t, err, ErrMissingRefreshToken)

	_, err = f.svc.Refresh(ctx, "not-a-token", "")
	assert.ErrorIs(t, err, ErrSessionInvalid)
	assert.ErrorIs(t, err, ErrRefreshTokenInvalid)

	// an access token is not a refresh token
	_, err = f.svc.Refresh(ctx, s.AccessToken, "")
	assert.ErrorIs(t, err, ErrRefreshTokenInvalid)

	// well signed but never stored
	neverIssued, _, err := f.codec.Issue(s.User.ID, jwt.PurposeRefresh, time.Hour)
	require.NoError(t, err)
	_, err = f.svc.Refresh(ctx, neverIssued, "")
	assert.ErrorIs(t, err, ErrRefreshTokenNotFound)
	assert.Equal(t, apperr.KindAuthentication, apperr.KindOf(err))
}

func TestRefresh_ExpiredTokenDeletesRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.register(t, "alice", "a@x.com")

	expired, _, err := f.codec.Issue(s.User.ID, jwt.PurposeRefresh, -time.Minute)
	require.NoError(t, err)
	require.NoError(t, f.tokens.Create(ctx, &domain.RefreshToken{
		UserID: s.User.ID, TokenHash: f.svc.fingerprint(expired), ExpiresAt: time.Now().Add(-time.Minute),
	}))

	_, err = f.svc.Refresh(ctx, expired, "")
	assert.ErrorIs(t, err, ErrRefreshTokenExpired)

	exists, err := f.tokens.Exists(ctx, f.svc.fingerprint(expired))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRefresh_ExpiredRecordIsDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.register(t, "alice", "a@x.com")

	f.svc.now = func() time.Time { return time.Now().Add(48 * time.Hour) }

	_, err := f.svc.Refresh(ctx, s.RefreshToken, "")
	assert.ErrorIs(t, err, ErrRefreshTokenExpired)

	count, err := f.tokens.CountForUser(ctx, s.User.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRefresh_DeletedUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.register(t, "alice", "a@x.com")

	require.NoError(t, f.db.Delete(&domain.User{}, s.User.ID).Error)

	_, err := f.svc.Refresh(ctx, s.RefreshToken, "")
	assert.ErrorIs(t, err, ErrSessionUserNotFound)
	assert.ErrorIs(t, err, ErrSessionInvalid)
}

func TestRefresh_ConcurrentUseHasOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.register(t, "alice", "a@x.com")

	const n = 4
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Refresh(ctx, s.RefreshToken, "")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, ErrSessionInvalid)
	}
	assert.Equal(t, 1, wins)
}

func TestLogout_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.register(t, "alice", "a@x.com")

	require.NoError(t, f.svc.Logout(ctx, s.RefreshToken, s.User.ID))
	_, err := f.svc.Refresh(ctx, s.RefreshToken, "")
	assert.ErrorIs(t, err, ErrRefreshTokenNotFound)

	assert.NoError(t, f.svc.Logout(ctx, s.RefreshToken, s.User.ID))
	assert.NoError(t, f.svc.Logout(ctx, "", s.User.ID))
}

func TestLogout_OnlyOwnerCanRevoke(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice", "a@x.com")
	bob := f.register(t, "bob", "b@x.com")

	require.NoError(t, f.svc.Logout(ctx, alice.RefreshToken, bob.User.ID))

	_, err := f.svc.Refresh(ctx, alice.RefreshToken, "")
	assert.NoError(t, err)
}

func TestLogoutAll_RevokesEveryDevice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.register(t, "alice", "a@x.com")
	second, err := f.svc.Login(ctx, "a@x.com", testPassword, "phone")
	require.NoError(t, err)
	other := f.register(t, "bob", "b@x.com")

	n, err := f.svc.LogoutAll(ctx, first.User.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	for _, tok := range []string{first.RefreshToken, second.RefreshToken} {
		_, err := f.svc.Refresh(ctx, tok, "")
		assert.ErrorIs(t, err, ErrSessionInvalid)
	}

	_, err = f.svc.Refresh(ctx, other.RefreshToken, "")
	assert.NoError(t, err)
}

func resetTokenFrom(t *testing.T, msg Email) string {
	t.Helper()
	const marker = "/reset-password/"
	i := strings.Index(msg.HTML, marker)
	require.GreaterOrEqual(t, i, 0, "reset link missing from e-mail")
	rest := msg.HTML[i+len(marker):]
	end := strings.IndexByte(rest, '"')
	require.Greater(t, end, 0)
	return rest[:end]
}

func TestRequestPasswordReset_SameOutcomeForUnknownEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "a@x.com")

	assert.NoError(t, f.svc.RequestPasswordReset(ctx, "a@x.com"))
	assert.NoError(t, f.svc.RequestPasswordReset(ctx, "ghost@x.com"))
	f.svc.WaitMail()

	sent := f.mailer.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "a@x.com", sent[0].To)
	assert.Contains(t, sent[0].HTML, "http://app.test/reset-password/")

	user, err := f.users.GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, user.ResetPasswordTokenHash)
	assert.NotEqual(t, resetTokenFrom(t, sent[0]), *user.ResetPasswordTokenHash)
}

func TestResetPassword_RevokesSessionsAndOldPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.register(t, "alice", "a@x.com")

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "a@x.com"))
	f.svc.WaitMail()
	token := resetTokenFrom(t, f.mailer.messages()[0])

	require.NoError(t, f.svc.ResetPassword(ctx, token, "N3w!Passw0rd"))

	_, err := f.svc.Refresh(ctx, s.RefreshToken, "")
	assert.ErrorIs(t, err, ErrSessionInvalid)

	_, err = f.svc.Login(ctx, "a@x.com", testPassword, "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "a@x.com", "N3w!Passw0rd", "")
	assert.NoError(t, err)

	// single use
	err = f.svc.ResetPassword(ctx, token, "An0ther!Pass")
	assert.ErrorIs(t, err, ErrInvalidResetToken)
}

func TestResetPassword_FailuresLookTheSame(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "a@x.com")

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "a@x.com"))
	require.NoError(t, f.svc.RequestPasswordReset(ctx, "a@x.com"))
	f.svc.WaitMail()
	sent := f.mailer.messages()
	require.Len(t, sent, 2)
	tokens := []string{resetTokenFrom(t, sent[0]), resetTokenFrom(t, sent[1])}
	// which mail went out first is up to the scheduler; exactly one token is current
	user, err := f.users.GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	current, stale := tokens[0], tokens[1]
	if hashResetToken(current) != *user.ResetPasswordTokenHash {
		current, stale = stale, current
	}

	var errs []error
	errs = append(errs, f.svc.ResetPassword(ctx, "garbage", "N3w!Passw0rd"))
	errs = append(errs, f.svc.ResetPassword(ctx, stale, "N3w!Passw0rd"))

	f.svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	errs = append(errs, f.svc.ResetPassword(ctx, current, "N3w!Passw0rd"))

	for _, err := range errs {
		assert.ErrorIs(t, err, ErrInvalidResetToken)
		var ae *apperr.Error
		require.True(t, errors.As(err, &ae))
		assert.Equal(t, ErrInvalidResetToken.Message, ae.Message)
	}
}

func TestLoginWithGoogle_ProvisionsUniqueUsername(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "bobsmith", "other-bob@x.com")

	f.google.identity = &GoogleIdentity{Email: "bob@x.com", EmailVerified: true, Name: "Bob Smith", Picture: "https://img/bob.png"}

	s, err := f.svc.LoginWithGoogle(ctx, "credential", "")
	require.NoError(t, err)
	assert.Equal(t, "bobsmith1", s.User.Username)
	assert.Equal(t, "https://img/bob.png", s.User.Photo)

	again, err := f.svc.LoginWithGoogle(ctx, "credential", "")
	require.NoError(t, err)
	assert.Equal(t, s.User.ID, again.User.ID)

	// the generated password is unknown to everyone
	_, err = f.svc.Login(ctx, "bob@x.com", "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginWithGoogle_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.google.err = ErrInvalidGoogleCredential
	_, err := f.svc.LoginWithGoogle(ctx, "credential", "")
	assert.ErrorIs(t, err, ErrInvalidGoogleCredential)

	f.svc.google = nil
	_, err = f.svc.LoginWithGoogle(ctx, "credential", "")
	assert.ErrorIs(t, err, ErrGoogleNotConfigured)
	assert.Equal(t, apperr.KindConfiguration, apperr.KindOf(err))
}

func TestDeleteExpiredSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.register(t, "alice", "a@x.com")

	n, err := f.svc.DeleteExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.svc.now = func() time.Time { return s.RefreshExpiresAt.Add(time.Second) }
	n, err = f.svc.DeleteExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

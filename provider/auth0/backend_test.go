package auth0

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/auth0/go-auth0/authentication/database"
	"github.com/auth0/go-auth0/authentication/oauth"
	"github.com/auth0/go-auth0/management"
	"github.com/keysai/go-auth"
	"github.com/keysai/go-auth/tokenstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockIdentityAPI struct {
	mock.Mock
}

func (m *mockIdentityAPI) Signup(ctx context.Context, req database.SignupRequest) (*database.SignupResponse, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*database.SignupResponse)
	return res, args.Error(1)
}

func (m *mockIdentityAPI) ChangePassword(ctx context.Context, req database.ChangePasswordRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockIdentityAPI) LoginWithPassword(ctx context.Context, req oauth.LoginWithPasswordRequest) (*oauth.TokenSet, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*oauth.TokenSet)
	return res, args.Error(1)
}

func (m *mockIdentityAPI) RefreshToken(ctx context.Context, req oauth.RefreshTokenRequest) (*oauth.TokenSet, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*oauth.TokenSet)
	return res, args.Error(1)
}

func (m *mockIdentityAPI) RevokeRefreshToken(ctx context.Context, req oauth.RevokeRefreshTokenRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

// fakeVerifier accepts the tokens it was told about.
type fakeVerifier struct {
	mu     sync.Mutex
	claims map[string]*Claims
	errs   map[string]error
}

func newFakeVerifier() *fakeVerifier {
	return &fakeVerifier{claims: map[string]*Claims{}, errs: map[string]error{}}
}

func (f *fakeVerifier) accept(token string, c *Claims) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims[token] = c
}

func (f *fakeVerifier) reject(token string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[token] = err
}

func (f *fakeVerifier) Verify(_ context.Context, token string) (*Claims, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[token]; ok {
		return nil, err
	}
	if c, ok := f.claims[token]; ok {
		return c, nil
	}
	return nil, auth.ErrTokenMalformed
}

type statusErr struct {
	code int
	msg  string
}

func (e statusErr) Error() string { return e.msg }
func (e statusErr) Status() int   { return e.code }

func newTestBackend(t *testing.T) (*Backend, *mockIdentityAPI, *fakeVerifier, *tokenstore.Memory) {
	t.Helper()

	api := &mockIdentityAPI{}
	verifier := newFakeVerifier()
	tokens := tokenstore.NewMemory()

	b, err := New(context.Background(), DefaultConfig("tenant.auth0.test", []string{"https://api.test"}),
		WithIdentityAPI(api),
		WithVerifier(verifier),
		WithTokenStore(tokens),
	)
	require.NoError(t, err)

	return b, api, verifier, tokens
}

func TestBackend_SignInStoresSessionAndPublishes(t *testing.T) {
	b, api, verifier, tokens := newTestBackend(t)
	ctx := context.Background()

	api.On("LoginWithPassword", mock.Anything, mock.MatchedBy(func(req oauth.LoginWithPasswordRequest) bool {
		return req.Username == "user@example.com" && req.Realm == DefaultConnection && req.Audience == "https://api.test"
	})).Return(&oauth.TokenSet{AccessToken: "at-1", RefreshToken: "rt-1", ExpiresIn: 3600}, nil)
	verifier.accept("at-1", &Claims{Subject: "auth0|1", Email: "user@example.com", EmailVerified: true})

	var events []auth.SessionEvent
	sub := b.OnSessionChange(func(evt auth.SessionEvent) { events = append(events, evt) })
	defer sub.Unsubscribe()

	require.NoError(t, b.SignInWithPassword(ctx, " user@example.com ", "secret"))

	require.Len(t, events, 1)
	assert.Equal(t, auth.EventSignedIn, events[0].Type)
	assert.Equal(t, "auth0|1", events[0].Session.UserID)

	raw, err := tokens.Load(ctx)
	require.NoError(t, err)
	assert.Contains(t, raw, "rt-1")

	session, err := b.CurrentSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "user@example.com", session.Email)
	api.AssertExpectations(t)
}

func TestBackend_SignInErrors(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"wrong password", errors.New("403 Forbidden: invalid_grant: Wrong email or password."), auth.IsInvalidCredentials},
		{"unverified", errors.New("401 Unauthorized: Please verify your email before logging in."), auth.IsUnverifiedEmail},
		{"rate limited", statusErr{code: 429, msg: "slow down"}, auth.IsTooManyAttempts},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, api, _, _ := newTestBackend(t)
			api.On("LoginWithPassword", mock.Anything, mock.Anything).Return(nil, tc.err)

			err := b.SignInWithPassword(context.Background(), "user@example.com", "x")
			require.Error(t, err)
			assert.True(t, tc.check(err))
		})
	}
}

func TestBackend_UnknownLoginErrorPassesThrough(t *testing.T) {
	b, api, _, _ := newTestBackend(t)
	boom := errors.New("connection reset")
	api.On("LoginWithPassword", mock.Anything, mock.Anything).Return(nil, boom)

	err := b.SignInWithPassword(context.Background(), "user@example.com", "x")
	assert.ErrorIs(t, err, boom)
}

func TestBackend_SignUp(t *testing.T) {
	b, api, _, _ := newTestBackend(t)
	api.On("Signup", mock.Anything, database.SignupRequest{
		Connection: DefaultConnection,
		Email:      "new@example.com",
		Password:   "Passw0rdX",
	}).Return(&database.SignupResponse{ID: "abc"}, nil)

	res, err := b.SignUp(context.Background(), "new@example.com", "Passw0rdX", auth.SignUpOptions{VerificationRedirect: "https://app/verify"})
	require.NoError(t, err)
	assert.Equal(t, "abc", res.UserID)
	assert.True(t, res.ConfirmationRequired)
}

func TestBackend_SignUpExistingUser(t *testing.T) {
	b, api, _, _ := newTestBackend(t)
	api.On("Signup", mock.Anything, mock.Anything).
		Return(nil, errors.New("400 Bad Request: invalid_signup: Invalid sign up"))

	_, err := b.SignUp(context.Background(), "taken@example.com", "Passw0rdX", auth.SignUpOptions{})
	require.Error(t, err)
	assert.True(t, auth.IsEmailTaken(err))
}

func TestBackend_SignOutRevokesAndClears(t *testing.T) {
	b, api, verifier, tokens := newTestBackend(t)
	ctx := context.Background()

	api.On("LoginWithPassword", mock.Anything, mock.Anything).
		Return(&oauth.TokenSet{AccessToken: "at-1", RefreshToken: "rt-1", ExpiresIn: 60}, nil)
	api.On("RevokeRefreshToken", mock.Anything, oauth.RevokeRefreshTokenRequest{RefreshToken: "rt-1"}).Return(nil).Once()
	verifier.accept("at-1", &Claims{Subject: "auth0|1"})

	require.NoError(t, b.SignInWithPassword(ctx, "user@example.com", "x"))

	var signedOut int
	sub := b.OnSessionChange(func(evt auth.SessionEvent) {
		if evt.Type == auth.EventSignedOut {
			signedOut++
		}
	})
	defer sub.Unsubscribe()

	require.NoError(t, b.SignOut(ctx))
	require.NoError(t, b.SignOut(ctx))

	raw, _ := tokens.Load(ctx)
	assert.Empty(t, raw)
	assert.Equal(t, 1, signedOut)
	api.AssertExpectations(t)
}

func TestBackend_CurrentSessionRefreshesExpiredToken(t *testing.T) {
	b, api, verifier, tokens := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, tokens.Save(ctx, `{"access_token":"old","refresh_token":"rt-1","email":"user@example.com"}`))
	verifier.reject("old", auth.WrapError(auth.ErrTokenExpired, nil, nil))
	verifier.accept("new", &Claims{Subject: "auth0|1"})
	api.On("RefreshToken", mock.Anything, mock.MatchedBy(func(req oauth.RefreshTokenRequest) bool {
		return req.RefreshToken == "rt-1"
	})).Return(&oauth.TokenSet{AccessToken: "new", ExpiresIn: 60}, nil)

	var kinds []auth.SessionEventType
	sub := b.OnSessionChange(func(evt auth.SessionEvent) { kinds = append(kinds, evt.Type) })
	defer sub.Unsubscribe()

	session, err := b.CurrentSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "new", session.AccessToken)
	assert.Equal(t, []auth.SessionEventType{auth.EventTokenRefreshed}, kinds)

	raw, _ := tokens.Load(ctx)
	assert.Contains(t, raw, "rt-1")
}

func TestBackend_CurrentSessionClearsInvalidToken(t *testing.T) {
	b, _, _, tokens := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, tokens.Save(ctx, `{"access_token":"junk"}`))

	session, err := b.CurrentSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, session)

	raw, _ := tokens.Load(ctx)
	assert.Empty(t, raw)
}

func TestBackend_EmailConfirmationStatus(t *testing.T) {
	b, api, verifier, _ := newTestBackend(t)
	ctx := context.Background()

	_, err := b.EmailConfirmationStatus(ctx, "user@example.com")
	assert.True(t, auth.IsAccessDenied(err))

	api.On("LoginWithPassword", mock.Anything, mock.Anything).
		Return(&oauth.TokenSet{AccessToken: "at-1", ExpiresIn: 60}, nil)
	verifier.accept("at-1", &Claims{Subject: "auth0|1", Email: "user@example.com", EmailVerified: true})
	require.NoError(t, b.SignInWithPassword(ctx, "user@example.com", "x"))

	ok, err := b.EmailConfirmationStatus(ctx, "USER@example.com")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = b.EmailConfirmationStatus(ctx, "other@example.com")
	assert.True(t, auth.IsAccessDenied(err))
}

func TestBackend_SendPasswordReset(t *testing.T) {
	b, api, _, _ := newTestBackend(t)
	api.On("ChangePassword", mock.Anything, database.ChangePasswordRequest{
		Connection: DefaultConnection,
		Email:      "user@example.com",
	}).Return("We've just sent you an email to reset your password.", nil)

	err := b.SendPasswordReset(context.Background(), "user@example.com", auth.PasswordResetOptions{RedirectTo: "https://app/reset"})
	require.NoError(t, err)
	api.AssertExpectations(t)
}

type listerFunc func(ctx context.Context, email string) ([]*management.User, error)

func (f listerFunc) ListByEmail(ctx context.Context, email string) ([]*management.User, error) {
	return f(ctx, email)
}

func TestDirectory_LookupEmailConfirmation(t *testing.T) {
	verified := true
	unverified := false

	dir := NewDirectoryWithLister(listerFunc(func(_ context.Context, email string) ([]*management.User, error) {
		switch email {
		case "verified@example.com":
			return []*management.User{{EmailVerified: &unverified}, {EmailVerified: &verified}}, nil
		case "pending@example.com":
			return []*management.User{{EmailVerified: &unverified}}, nil
		default:
			return nil, nil
		}
	}))

	ok, err := dir.LookupEmailConfirmation(context.Background(), "verified@example.com")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = dir.LookupEmailConfirmation(context.Background(), "pending@example.com")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = dir.LookupEmailConfirmation(context.Background(), "ghost@example.com")
	assert.True(t, auth.IsIdentityNotFound(err))
}

func TestConfig_IssuerURL(t *testing.T) {
	cases := map[string]Config{
		"https://tenant.auth0.test/": {Domain: "tenant.auth0.test"},
		"https://custom.test/":       {Domain: "tenant.auth0.test", Issuer: "https://custom.test"},
		"http://localhost:3000/":     {Domain: "http://localhost:3000"},
		"":                           {},
	}
	for want, cfg := range cases {
		assert.Equal(t, want, cfg.issuerURL())
	}
}

func TestSession_PrefersTokenExpiry(t *testing.T) {
	b, _, _, _ := newTestBackend(t)
	exp := time.Now().Add(time.Minute).Truncate(time.Second)

	s := b.session(&tokenRecord{AccessToken: "a", ExpiresAt: time.Now().Add(time.Hour)}, &Claims{Subject: "x", ExpiresAt: &exp})
	require.NotNil(t, s.ExpiresAt)
	assert.True(t, exp.Equal(*s.ExpiresAt))
}

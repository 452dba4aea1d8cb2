package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/keysai/go-auth"
	"github.com/keysai/go-auth/provider/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackend_SignUpAndConfirm(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	res, err := b.SignUp(ctx, "Ada@Example.com", "Passw0rdX", auth.SignUpOptions{VerificationRedirect: "https://app/verify"})
	require.NoError(t, err)
	assert.True(t, res.ConfirmationRequired)
	assert.NotEmpty(t, res.UserID)

	ok, err := b.EmailConfirmationStatus(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.False(t, ok)

	err = b.SignInWithPassword(ctx, "ada@example.com", "Passw0rdX")
	assert.True(t, auth.IsUnverifiedEmail(err))

	require.NoError(t, b.Confirm("ada@example.com"))
	ok, err = b.EmailConfirmationStatus(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = b.SignUp(ctx, "ada@example.com", "Passw0rdX", auth.SignUpOptions{})
	assert.True(t, auth.IsEmailTaken(err))
	assert.Len(t, b.SignUps(), 2)
}

func TestBackend_SignInPublishesSession(t *testing.T) {
	b := memory.New()
	b.Seed("ada@example.com", "secret", true)
	ctx := context.Background()

	var events []auth.SessionEvent
	sub := b.OnSessionChange(func(evt auth.SessionEvent) { events = append(events, evt) })

	require.NoError(t, b.SignInWithPassword(ctx, "ada@example.com", "secret"))
	session, err := b.CurrentSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "ada@example.com", session.Email)

	require.NoError(t, b.SignOut(ctx))
	require.NoError(t, b.SignOut(ctx))

	require.Len(t, events, 2)
	assert.Equal(t, auth.EventSignedIn, events[0].Type)
	assert.Equal(t, auth.EventSignedOut, events[1].Type)
	assert.Nil(t, events[1].Session)

	sub.Unsubscribe()
	assert.Zero(t, b.Listeners())
}

func TestBackend_WrongPassword(t *testing.T) {
	b := memory.New()
	b.Seed("ada@example.com", "secret", true)

	err := b.SignInWithPassword(context.Background(), "ada@example.com", "nope")
	assert.True(t, auth.IsInvalidCredentials(err))

	err = b.SignInWithPassword(context.Background(), "ghost@example.com", "secret")
	assert.True(t, auth.IsInvalidCredentials(err))
}

func TestBackend_FailAndCalls(t *testing.T) {
	b := memory.New()
	boom := errors.New("boom")

	b.Fail(memory.OpPasswordReset, boom)
	err := b.SendPasswordReset(context.Background(), "ada@example.com", auth.PasswordResetOptions{})
	assert.ErrorIs(t, err, boom)

	b.Fail(memory.OpPasswordReset, nil)
	require.NoError(t, b.SendPasswordReset(context.Background(), "ada@example.com", auth.PasswordResetOptions{RedirectTo: "/reset"}))

	assert.Equal(t, 2, b.Calls(memory.OpPasswordReset))
	resets := b.Resets()
	require.Len(t, resets, 1)
	assert.False(t, resets[0].Known)
	assert.Equal(t, "/reset", resets[0].RedirectTo)
}

func TestBackend_DeniedLookupsAndDirectory(t *testing.T) {
	b := memory.New(memory.WithDeniedLookups())
	b.Seed("ada@example.com", "secret", true)
	ctx := context.Background()

	_, err := b.EmailConfirmationStatus(ctx, "ada@example.com")
	assert.True(t, auth.IsAccessDenied(err))

	ok, err := b.Directory().LookupEmailConfirmation(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = b.Directory().LookupEmailConfirmation(ctx, "ghost@example.com")
	assert.True(t, auth.IsIdentityNotFound(err))
	assert.Equal(t, 2, b.Calls(memory.OpDirectoryLookup))
}

func TestBackend_AutoConfirmSignsIn(t *testing.T) {
	b := memory.New(memory.WithConfirmationRequired(false))
	var got *auth.Session
	b.OnSessionChange(func(evt auth.SessionEvent) { got = evt.Session })

	res, err := b.SignUp(context.Background(), "ada@example.com", "secret", auth.SignUpOptions{})
	require.NoError(t, err)
	assert.False(t, res.ConfirmationRequired)
	require.NotNil(t, got)
	assert.Equal(t, res.UserID, got.UserID)
}

func TestBackend_CurrentSessionHonoursContext(t *testing.T) {
	b := memory.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.CurrentSession(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

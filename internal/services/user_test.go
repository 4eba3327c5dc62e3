package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/homefinder/apiserver/internal/services"
	"github.com/homefinder/apiserver/internal/services/servicestest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newUserService(env *servicestest.Env) *services.UserService {
	svc := services.NewUserService(env.Users, env.Notifier, quietLogger())
	svc.SetHashCost(bcrypt.MinCost)
	return svc
}

func registerInput(email string) services.RegisterInput {
	return services.RegisterInput{
		Name:           "Lucía",
		Email:          email,
		Password:       "hunter22",
		RepeatPassword: "hunter22",
	}
}

func registerConfirmed(t *testing.T, env *servicestest.Env, svc *services.UserService, email string) {
	t.Helper()
	ctx := context.Background()
	_, err := svc.Register(ctx, registerInput(email))
	require.NoError(t, err)
	_, err = svc.Confirm(ctx, env.Notifier.LastToken())
	require.NoError(t, err)
}

func TestRegisterCreatesUnconfirmedUser(t *testing.T) {
	env := servicestest.NewEnv()
	svc := newUserService(env)

	user, err := svc.Register(context.Background(), registerInput("lucia@example.com"))
	require.NoError(t, err)

	assert.False(t, user.Confirmed)
	require.NotNil(t, user.Token)
	assert.NotEqual(t, "hunter22", user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("hunter22")))
	require.Len(t, env.Notifier.Confirmations, 1)
	assert.Equal(t, *user.Token, env.Notifier.LastToken())
}

func TestRegisterValidation(t *testing.T) {
	env := servicestest.NewEnv()
	svc := newUserService(env)

	_, err := svc.Register(context.Background(), services.RegisterInput{
		Email:          "not-an-email",
		Password:       "short",
		RepeatPassword: "different",
	})

	var verr *services.ValidationError
	require.True(t, errors.As(err, &verr))
	for _, field := range []string{"name", "email", "password", "repeat_password"} {
		assert.True(t, verr.Has(field), field)
	}
	assert.Empty(t, env.Notifier.Confirmations)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	env := servicestest.NewEnv()
	svc := newUserService(env)
	ctx := context.Background()
	_, err := svc.Register(ctx, registerInput("dup@example.com"))
	require.NoError(t, err)

	_, err = svc.Register(ctx, registerInput("DUP@example.com"))
	var verr *services.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Has("email"))
}

func TestConfirmConsumesToken(t *testing.T) {
	env := servicestest.NewEnv()
	svc := newUserService(env)
	ctx := context.Background()
	_, err := svc.Register(ctx, registerInput("confirm@example.com"))
	require.NoError(t, err)
	token := env.Notifier.LastToken()

	user, err := svc.Confirm(ctx, token)
	require.NoError(t, err)
	assert.True(t, user.Confirmed)
	assert.Nil(t, user.Token)

	_, err = svc.Confirm(ctx, token)
	assert.ErrorIs(t, err, services.ErrInvalidToken)
	_, err = svc.Confirm(ctx, "")
	assert.ErrorIs(t, err, services.ErrInvalidToken)
}

func TestAuthenticateOutcomes(t *testing.T) {
	env := servicestest.NewEnv()
	svc := newUserService(env)
	ctx := context.Background()
	_, err := svc.Register(ctx, registerInput("pending@example.com"))
	require.NoError(t, err)
	registerConfirmed(t, env, svc, "ready@example.com")

	_, err = svc.Authenticate(ctx, services.LoginInput{Email: "ghost@example.com", Password: "whatever"})
	assert.ErrorIs(t, err, services.ErrUnknownUser)

	_, err = svc.Authenticate(ctx, services.LoginInput{Email: "pending@example.com", Password: "hunter22"})
	assert.ErrorIs(t, err, services.ErrUnconfirmed)

	_, err = svc.Authenticate(ctx, services.LoginInput{Email: "ready@example.com", Password: "wrong-one"})
	assert.ErrorIs(t, err, services.ErrWrongPassword)

	user, err := svc.Authenticate(ctx, services.LoginInput{Email: " Ready@Example.com ", Password: "hunter22"})
	require.NoError(t, err)
	assert.Equal(t, "ready@example.com", user.Email)

	_, err = svc.Authenticate(ctx, services.LoginInput{})
	var verr *services.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Has("email"))
	assert.True(t, verr.Has("password"))
}

func TestPasswordResetFlow(t *testing.T) {
	env := servicestest.NewEnv()
	svc := newUserService(env)
	ctx := context.Background()
	registerConfirmed(t, env, svc, "reset@example.com")

	require.NoError(t, svc.RequestPasswordReset(ctx, "reset@example.com"))
	require.Len(t, env.Notifier.Resets, 1)
	token := env.Notifier.LastToken()
	require.NotEmpty(t, token)
	require.NoError(t, svc.CheckResetToken(ctx, token))

	err := svc.ResetPassword(ctx, token, "123")
	var verr *services.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Has("password"))

	require.NoError(t, svc.ResetPassword(ctx, token, "brand-new-secret"))
	assert.ErrorIs(t, svc.CheckResetToken(ctx, token), services.ErrInvalidToken)

	_, err = svc.Authenticate(ctx, services.LoginInput{Email: "reset@example.com", Password: "hunter22"})
	assert.ErrorIs(t, err, services.ErrWrongPassword)
	_, err = svc.Authenticate(ctx, services.LoginInput{Email: "reset@example.com", Password: "brand-new-secret"})
	assert.NoError(t, err)
}

func TestPasswordResetRequiresConfirmedAccount(t *testing.T) {
	env := servicestest.NewEnv()
	svc := newUserService(env)
	ctx := context.Background()
	_, err := svc.Register(ctx, registerInput("pending@example.com"))
	require.NoError(t, err)
	confirmToken := env.Notifier.LastToken()

	assert.ErrorIs(t, svc.RequestPasswordReset(ctx, "pending@example.com"), services.ErrUnconfirmed)
	assert.ErrorIs(t, svc.RequestPasswordReset(ctx, "nobody@example.com"), services.ErrUnknownUser)
	assert.ErrorIs(t, svc.CheckResetToken(ctx, confirmToken), services.ErrInvalidToken)
	assert.Empty(t, env.Notifier.Resets)
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/homefinder/apiserver/internal/store"
	"github.com/homefinder/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	GetByToken(ctx context.Context, token string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
}

// Notifier delivers account emails. Delivery is fire-and-forget.
type Notifier interface {
	SendAccountConfirmation(ctx context.Context, user types.User)
	SendPasswordReset(ctx context.Context, user types.User)
}

// UserService encapsulates user use-cases.
type UserService struct {
	repo     UserRepository
	notifier Notifier
	logger   *slog.Logger
	cost     int
}

func NewUserService(repo UserRepository, notifier Notifier, logger *slog.Logger) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{repo: repo, notifier: notifier, logger: logger, cost: bcrypt.DefaultCost}
}

// SetHashCost changes the bcrypt cost, mainly to keep tests fast.
func (s *UserService) SetHashCost(cost int) {
	if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
		s.cost = cost
	}
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return types.User{}, ErrUnknownUser
	}
	return user, err
}

// Register creates an unconfirmed account and sends its confirmation link.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (types.User, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = strings.TrimSpace(input.Email)
	if violations := validateStruct(input, registerMessages); len(violations) > 0 {
		return types.User{}, &ValidationError{Fields: violations}
	}

	if _, err := s.repo.GetByEmail(ctx, input.Email); err == nil {
		return types.User{}, invalid("email", "That email is already registered")
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.cost)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	token := uuid.NewString()
	user, err := s.repo.Create(ctx, types.User{
		Name:         input.Name,
		Email:        input.Email,
		PasswordHash: string(hashed),
		Token:        &token,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.User{}, invalid("email", "That email is already registered")
		}
		return types.User{}, err
	}

	s.logger.Info("user registered", "user_id", user.ID)
	s.notifier.SendAccountConfirmation(ctx, user)
	return user, nil
}

// Confirm activates the account holding the token.
func (s *UserService) Confirm(ctx context.Context, token string) (types.User, error) {
	user, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrInvalidToken
		}
		return types.User{}, err
	}
	if user.Confirmed {
		return types.User{}, ErrInvalidToken
	}

	user.Confirmed = true
	user.Token = nil
	return s.repo.Update(ctx, user)
}

// Authenticate checks credentials. Unknown, unconfirmed and wrong-password
// outcomes are distinct errors.
func (s *UserService) Authenticate(ctx context.Context, input LoginInput) (types.User, error) {
	input.Email = strings.TrimSpace(input.Email)
	if violations := validateStruct(input, loginMessages); len(violations) > 0 {
		return types.User{}, &ValidationError{Fields: violations}
	}

	user, err := s.repo.GetByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrUnknownUser
		}
		return types.User{}, err
	}
	if !user.Confirmed {
		return types.User{}, ErrUnconfirmed
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return types.User{}, ErrWrongPassword
	}
	return user, nil
}

// RequestPasswordReset issues a fresh token to a confirmed account and
// sends the reset link.
func (s *UserService) RequestPasswordReset(ctx context.Context, email string) error {
	in := emailInput{Email: strings.TrimSpace(email)}
	if violations := validateStruct(in, loginMessages); len(violations) > 0 {
		return &ValidationError{Fields: violations}
	}

	user, err := s.repo.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUnknownUser
		}
		return err
	}
	if !user.Confirmed {
		return ErrUnconfirmed
	}

	token := uuid.NewString()
	user.Token = &token
	user, err = s.repo.Update(ctx, user)
	if err != nil {
		return err
	}

	s.notifier.SendPasswordReset(ctx, user)
	return nil
}

// CheckResetToken reports whether the token is a live password reset token.
func (s *UserService) CheckResetToken(ctx context.Context, token string) error {
	_, err := s.resetHolder(ctx, token)
	return err
}

// ResetPassword stores a new password and consumes the token.
func (s *UserService) ResetPassword(ctx context.Context, token, password string) error {
	user, err := s.resetHolder(ctx, token)
	if err != nil {
		return err
	}

	if violations := validateStruct(passwordInput{Password: password}, registerMessages); len(violations) > 0 {
		return &ValidationError{Fields: violations}
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = string(hashed)
	user.Token = nil
	if _, err := s.repo.Update(ctx, user); err != nil {
		return err
	}

	s.logger.Info("password reset", "user_id", user.ID)
	return nil
}

// Reset tokens are only handed to confirmed accounts, so an unconfirmed
// holder means the token is a pending confirmation.
func (s *UserService) resetHolder(ctx context.Context, token string) (types.User, error) {
	user, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrInvalidToken
		}
		return types.User{}, err
	}
	if !user.Confirmed {
		return types.User{}, ErrInvalidToken
	}
	return user, nil
}

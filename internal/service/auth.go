package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/apse-storefront/internal/model"
	"github.com/mmeshcher/apse-storefront/internal/repository"
)

const (
	purposePasswordReset = "password_reset"
	purposeEmailVerify   = "email_verify"

	passwordResetTTL = 30 * time.Minute
	emailVerifyTTL   = 24 * time.Hour
)

// Registration содержит данные для регистрации пользователя.
type Registration struct {
	Email     string
	Password  string
	FirstName *string
	LastName  *string
}

// RegisterUser регистрирует нового пользователя и отправляет ссылку подтверждения email.
func (s *Service) RegisterUser(ctx context.Context, reg Registration) (*model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.repo.CreateUser(ctx, model.User{
		Email:        normalizeEmail(reg.Email),
		PasswordHash: hash,
		FirstName:    reg.FirstName,
		LastName:     reg.LastName,
		Role:         model.RoleUser,
	})
	if err != nil {
		return nil, err
	}

	s.sendToken(ctx, u, purposeEmailVerify, emailVerifyTTL, "Verify your email")
	return u, nil
}

// AuthenticateUser проверяет email и пароль пользователя.
func (s *Service) AuthenticateUser(ctx context.Context, email, password string) (*model.User, error) {
	u, err := s.repo.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// GetUser возвращает пользователя по идентификатору.
func (s *Service) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.repo.GetUserByID(ctx, id)
}

// RequestPasswordReset отправляет токен сброса пароля. Отсутствие пользователя не раскрывается.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	u, err := s.repo.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}

	s.sendToken(ctx, u, purposePasswordReset, passwordResetTTL, "Reset your password")
	return nil
}

// ResetPassword устанавливает новый пароль по токену сброса.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	userID, err := s.parseToken(token, purposePasswordReset)
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.repo.UpdateUserPassword(ctx, userID, hash)
}

// VerifyEmail подтверждает email по токену.
func (s *Service) VerifyEmail(ctx context.Context, token string) (*model.User, error) {
	userID, err := s.parseToken(token, purposeEmailVerify)
	if err != nil {
		return nil, err
	}
	return s.repo.SetUserVerified(ctx, userID, true)
}

// ResendVerification повторно отправляет ссылку подтверждения, если email ещё не подтверждён.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	u, err := s.repo.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}
	if u.IsVerified {
		return nil
	}

	s.sendToken(ctx, u, purposeEmailVerify, emailVerifyTTL, "Verify your email")
	return nil
}

func (s *Service) sendToken(ctx context.Context, u *model.User, purpose string, ttl time.Duration, subject string) {
	if s.tokens == nil {
		return
	}

	token, err := s.tokens.IssuePurpose(u.ID, purpose, ttl)
	if err != nil {
		s.logger.Error("issue token error", zap.Error(err), zap.String("userID", u.ID), zap.String("purpose", purpose))
		return
	}

	if err := s.notifier.Notify(ctx, u.Email, subject, token); err != nil {
		s.logger.Error("notify error", zap.Error(err), zap.String("userID", u.ID))
	}
}

func (s *Service) parseToken(token, purpose string) (string, error) {
	if s.tokens == nil {
		return "", ErrInvalidToken
	}
	userID, err := s.tokens.ParsePurpose(token, purpose)
	if err != nil {
		return "", ErrInvalidToken
	}
	return userID, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

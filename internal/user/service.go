package user

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrEmailTaken is returned when a new Google identity presents an email
// already owned by another account.
var ErrEmailTaken = errors.New("email already in use by another account")

// Service owns the login-time user lifecycle: accounts are created on first
// successful Google login and refreshed on every later one.
type Service struct {
	repo *Repository
	log  *zap.Logger
}

// NewService creates a service backed by a repository.
func NewService(repo *Repository, log *zap.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// LoginWithGoogle upserts the account for a verified Google profile and
// records the login. isNew reports first-time registration.
func (s *Service) LoginWithGoogle(ctx context.Context, p GoogleProfile) (u *User, isNew bool, err error) {
	_, err = s.repo.FindByGoogleID(ctx, p.GoogleID)
	switch {
	case err == nil:
		if err := s.repo.UpdateProfile(ctx, p); err != nil {
			return nil, false, err
		}
		if err := s.repo.TouchLogin(ctx, p.GoogleID); err != nil {
			return nil, false, err
		}
		u, err = s.repo.FindByGoogleID(ctx, p.GoogleID)
		if err != nil {
			return nil, false, err
		}
		s.log.Info("returning user logged in",
			zap.Int64("user_id", u.ID), zap.Int("login_count", u.LoginCount))
		return u, false, nil

	case errors.Is(err, ErrNotFound):
		if _, emailErr := s.repo.FindByEmail(ctx, p.Email); emailErr == nil {
			return nil, false, ErrEmailTaken
		} else if !errors.Is(emailErr, ErrNotFound) {
			return nil, false, emailErr
		}
		u, err = s.repo.Create(ctx, p)
		if err != nil {
			return nil, false, fmt.Errorf("create user on first login: %w", err)
		}
		s.log.Info("new user registered", zap.Int64("user_id", u.ID), zap.String("email", u.Email))
		return u, true, nil

	default:
		return nil, false, err
	}
}

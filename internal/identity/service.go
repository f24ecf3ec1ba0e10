package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/consent-app/consent_api/internal/store"
)

const minPasswordLen = 8

// Service manages user registration and password checks.
type Service struct {
	repo Repository
	cost int
}

// NewService creates a new identity service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, cost: bcrypt.DefaultCost}
}

// Register creates a user with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, creds Credentials) (Profile, error) {
	email := normalizeEmail(creds.Email)
	if email == "" {
		return Profile{}, errors.New("email is required")
	}
	if len(creds.Password) < minPasswordLen {
		return Profile{}, fmt.Errorf("password must be at least %d characters", minPasswordLen)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), s.cost)
	if err != nil {
		return Profile{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.repo.CreateUser(ctx, store.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(creds.FirstName),
		LastName:     strings.TrimSpace(creds.LastName),
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return Profile{}, ErrEmailTaken
		}
		return Profile{}, err
	}
	return profileOf(user), nil
}

// Authenticate verifies an email and password pair.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Profile, error) {
	user, err := s.repo.FindUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Profile{}, ErrInvalidCredentials
		}
		return Profile{}, err
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return Profile{}, ErrInvalidCredentials
	}
	return profileOf(user), nil
}

// Profile returns the public view of a user.
func (s *Service) Profile(ctx context.Context, userID int64) (Profile, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	return profileOf(user), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

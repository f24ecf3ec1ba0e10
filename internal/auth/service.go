package auth

import (
	"context"
	"time"

	"github.com/consent-app/consent_api/internal/identity"
)

// Session is returned after a successful signup or login.
type Session struct {
	User        identity.Profile `json:"user"`
	AccessToken string           `json:"access_token"`
	ExpiresIn   int64            `json:"expires_in"`
}

// Service couples identity checks with token issuance.
type Service struct {
	ids    *identity.Service
	tokens *Tokens
}

// NewService constructs the auth service.
func NewService(ids *identity.Service, tokens *Tokens) *Service {
	return &Service{ids: ids, tokens: tokens}
}

// Signup registers the user and logs them in.
func (s *Service) Signup(ctx context.Context, creds identity.Credentials) (Session, error) {
	user, err := s.ids.Register(ctx, creds)
	if err != nil {
		return Session{}, err
	}
	return s.session(user)
}

// Login validates credentials and issues a token.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.ids.Authenticate(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	return s.session(user)
}

func (s *Service) session(user identity.Profile) (Session, error) {
	token, exp, err := s.tokens.Issue(user.ID)
	if err != nil {
		return Session{}, err
	}
	return Session{
		User:        user,
		AccessToken: token,
		ExpiresIn:   int64(time.Until(exp).Seconds()),
	}, nil
}

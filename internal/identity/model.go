package identity

import (
	"context"
	"errors"
	"time"

	"github.com/consent-app/consent_api/internal/store"
)

var (
	// ErrEmailTaken is returned when registering an email that already exists.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidCredentials hides whether the email or the password was wrong.
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// Repository persists users. store.Store satisfies it.
type Repository interface {
	CreateUser(ctx context.Context, user store.User) (store.User, error)
	GetUser(ctx context.Context, id int64) (store.User, error)
	FindUserByEmail(ctx context.Context, email string) (store.User, error)
}

// Credentials is the signup and login input.
type Credentials struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Profile is the public view of a user.
type Profile struct {
	ID                  int64      `json:"id"`
	Email               string     `json:"email"`
	FirstName           string     `json:"first_name"`
	LastName            string     `json:"last_name"`
	IsSubscribed        bool       `json:"is_subscribed"`
	SubscriptionEndDate *time.Time `json:"subscription_end_date,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

func profileOf(u store.User) Profile {
	return Profile{
		ID:                  u.ID,
		Email:               u.Email,
		FirstName:           u.FirstName,
		LastName:            u.LastName,
		IsSubscribed:        u.IsSubscribed,
		SubscriptionEndDate: u.SubscriptionEndDate,
		CreatedAt:           u.CreatedAt,
	}
}

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TestDatabaseURLEnv names the variable that opts tests into running against
// a real PostgreSQL database.
const TestDatabaseURLEnv = "TEST_DATABASE_URL"

// OpenTestPostgres connects to url and applies the schema. Tests create
// their own uniquely named users, so the database may be shared across runs.
func OpenTestPostgres(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect test postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping test postgres: %w", err)
	}
	if err := Migrate(ctx, pool, nil); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// SeedBalance is a test helper that sets a user's credit quantity when using
// the in-memory store.
func SeedBalance(s Store, userID int64, quantity int) {
	if mem, ok := s.(*memoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		b := mem.data.balances[userID]
		b.UserID = userID
		b.Quantity = quantity
		mem.data.balances[userID] = b
	}
}

// SetSubscription is a test helper that updates a user's subscription fields
// when using the in-memory store.
func SetSubscription(s Store, userID int64, subscribed bool, endDate *time.Time) {
	if mem, ok := s.(*memoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		u, ok := mem.data.users[userID]
		if !ok {
			return
		}
		u.IsSubscribed = subscribed
		u.SubscriptionEndDate = endDate
		mem.data.users[userID] = u
	}
}

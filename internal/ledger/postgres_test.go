package ledger

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/consent-app/consent_api/internal/logging"
	"github.com/consent-app/consent_api/internal/store"
)

func setupPostgres(t *testing.T) (*Service, store.Store, store.User) {
	t.Helper()
	url := os.Getenv(store.TestDatabaseURLEnv)
	if url == "" {
		t.Skipf("%s not set", store.TestDatabaseURLEnv)
	}
	pool, err := store.OpenTestPostgres(context.Background(), url)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(pool.Close)

	st := store.NewPostgresStore(pool, store.TxLimits{LockTimeout: 2 * time.Second, Timeout: 10 * time.Second})
	user, err := st.CreateUser(context.Background(), store.User{
		Email:        "ledger-" + uuid.NewString() + "@example.com",
		PasswordHash: []byte("x"),
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return NewService(st, testRetry, logging.Discard()), st, user
}

func TestPostgres_GrantCreditsAppliesOnce(t *testing.T) {
	svc, st, user := setupPostgres(t)
	ctx := context.Background()
	paymentID := "pi_" + uuid.NewString()

	const deliveries = 8
	var granted int32
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			g, err := svc.GrantCredits(ctx, GrantInput{UserID: user.ID, Quantity: 10, PaymentID: paymentID, EventID: uuid.NewString()})
			if err != nil {
				t.Errorf("delivery %d: %v", i, err)
				return
			}
			if g.Outcome == Granted {
				atomic.AddInt32(&granted, 1)
			}
		}(i)
	}
	wg.Wait()

	if granted != 1 {
		t.Fatalf("expected exactly one grant, got %d", granted)
	}
	b, err := st.GetBalance(ctx, user.ID)
	if err != nil || b.Quantity != 10 {
		t.Fatalf("expected balance 10, got %+v err=%v", b, err)
	}
}

func TestPostgres_ReserveCreditNeverOverdraws(t *testing.T) {
	svc, st, user := setupPostgres(t)
	ctx := context.Background()
	if _, err := svc.GrantCredits(ctx, GrantInput{UserID: user.ID, Quantity: 3, PaymentID: "pi_" + uuid.NewString()}); err != nil {
		t.Fatalf("grant: %v", err)
	}

	const workers = 10
	var ok int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := reserve(svc, st, user.ID); err == nil {
				atomic.AddInt32(&ok, 1)
			}
		}()
	}
	wg.Wait()

	if ok != 3 {
		t.Fatalf("expected 3 reservations, got %d", ok)
	}
	b, _ := st.GetBalance(ctx, user.ID)
	if b.Quantity != 0 {
		t.Fatalf("expected balance 0, got %d", b.Quantity)
	}
}

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQL error codes that are safe to retry or that map onto sentinels.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgQueryCanceled        = "57014"
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
)

// TxLimits bounds how long a transaction may wait for a row lock and how long
// it may run in total.
type TxLimits struct {
	LockTimeout time.Duration
	Timeout     time.Duration
}

// PostgresStore persists users, balances, payment events and consents in
// PostgreSQL.
type PostgresStore struct {
	db     *pgxpool.Pool
	limits TxLimits
}

// NewPostgresStore constructs a Postgres-backed store.
func NewPostgresStore(db *pgxpool.Pool, limits TxLimits) *PostgresStore {
	return &PostgresStore{db: db, limits: limits}
}

const userColumns = `id, email, password_hash, first_name, last_name, is_subscribed, subscription_end_date, COALESCE(stripe_customer_id, ''), created_at`

const consentColumns = `id, initiator_id, partner_id, payload, status, payment_status, initiator_confirmed,
        partner_confirmed, biometric_validated, biometric_validated_at, deleted_by_initiator, created_at`

// InTx runs fn in a read-committed transaction with lock and statement
// timeouts applied through SET LOCAL.
func (s *PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if s.limits.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.limits.Timeout)
		defer cancel()
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if s.limits.LockTimeout > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = %d", s.limits.LockTimeout.Milliseconds())); err != nil {
			return classify(err)
		}
	}
	if s.limits.Timeout > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", s.limits.Timeout.Milliseconds())); err != nil {
			return classify(err)
		}
	}

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return classify(err)
	}
	return nil
}

// CreateUser inserts a user and returns it with its assigned id.
func (s *PostgresStore) CreateUser(ctx context.Context, user User) (User, error) {
	const query = `INSERT INTO users (email, password_hash, first_name, last_name, created_at)
        VALUES ($1, $2, $3, $4, $5) RETURNING id`
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if err := s.db.QueryRow(ctx, query, user.Email, user.PasswordHash, user.FirstName, user.LastName, user.CreatedAt.UTC()).Scan(&user.ID); err != nil {
		return User{}, classify(err)
	}
	return user, nil
}

// GetUser fetches a user by id.
func (s *PostgresStore) GetUser(ctx context.Context, id int64) (User, error) {
	return scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// FindUserByEmail fetches a user by email.
func (s *PostgresStore) FindUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// SetStripeCustomerID stores the provider customer reference unless one is
// already present.
func (s *PostgresStore) SetStripeCustomerID(ctx context.Context, userID int64, customerID string) (string, error) {
	const query = `UPDATE users SET stripe_customer_id = $2
        WHERE id = $1 AND stripe_customer_id IS NULL`
	cmd, err := s.db.Exec(ctx, query, userID, customerID)
	if err != nil {
		return "", classify(err)
	}
	if cmd.RowsAffected() == 1 {
		return customerID, nil
	}
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.StripeCustomerID, nil
}

// GetBalance returns the stored balance or a zero balance.
func (s *PostgresStore) GetBalance(ctx context.Context, userID int64) (CreditBalance, error) {
	const query = `SELECT quantity, last_purchased_at FROM credit_balances WHERE user_id = $1`
	balance := CreditBalance{UserID: userID}
	if err := s.db.QueryRow(ctx, query, userID).Scan(&balance.Quantity, &balance.LastPurchasedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return balance, nil
		}
		return CreditBalance{}, classify(err)
	}
	return balance, nil
}

// GetConsent fetches a consent by id.
func (s *PostgresStore) GetConsent(ctx context.Context, id uuid.UUID) (Consent, error) {
	return scanConsent(s.db.QueryRow(ctx, `SELECT `+consentColumns+` FROM consents WHERE id = $1`, id))
}

// ListConsents returns the user's consents that the initiator has not
// hidden, newest first.
func (s *PostgresStore) ListConsents(ctx context.Context, userID int64) ([]Consent, error) {
	query := `SELECT ` + consentColumns + ` FROM consents
        WHERE (initiator_id = $1 OR partner_id = $1) AND NOT deleted_by_initiator
        ORDER BY created_at DESC, id`
	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var consents []Consent
	for rows.Next() {
		c, err := scanConsent(rows)
		if err != nil {
			return nil, err
		}
		consents = append(consents, c)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return consents, nil
}

// Ping verifies database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) GetUser(ctx context.Context, id int64) (User, error) {
	return scanUser(t.tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (t *pgTx) FindUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(t.tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (t *pgTx) GetBalance(ctx context.Context, userID int64) (CreditBalance, error) {
	const query = `SELECT quantity, last_purchased_at FROM credit_balances WHERE user_id = $1`
	balance := CreditBalance{UserID: userID}
	if err := t.tx.QueryRow(ctx, query, userID).Scan(&balance.Quantity, &balance.LastPurchasedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return balance, nil
		}
		return CreditBalance{}, classify(err)
	}
	return balance, nil
}

func (t *pgTx) LockBalance(ctx context.Context, userID int64) (CreditBalance, error) {
	if _, err := t.tx.Exec(ctx, `INSERT INTO credit_balances (user_id, quantity) VALUES ($1, 0)
        ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
		return CreditBalance{}, classify(err)
	}

	const query = `SELECT quantity, last_purchased_at FROM credit_balances WHERE user_id = $1 FOR UPDATE`
	balance := CreditBalance{UserID: userID}
	if err := t.tx.QueryRow(ctx, query, userID).Scan(&balance.Quantity, &balance.LastPurchasedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CreditBalance{}, ErrNotFound
		}
		return CreditBalance{}, classify(err)
	}
	return balance, nil
}

func (t *pgTx) SaveBalance(ctx context.Context, balance CreditBalance) error {
	cmd, err := t.tx.Exec(ctx, `UPDATE credit_balances SET quantity = $2, last_purchased_at = $3 WHERE user_id = $1`,
		balance.UserID, balance.Quantity, balance.LastPurchasedAt)
	if err != nil {
		return classify(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) InsertPaymentEvent(ctx context.Context, ev PaymentEvent) (bool, error) {
	cmd, err := t.tx.Exec(ctx, `INSERT INTO processed_payment_events (payment_id, event_id, user_id, quantity, applied_at)
        VALUES ($1, $2, $3, $4, $5) ON CONFLICT (payment_id) DO NOTHING`,
		ev.PaymentID, ev.EventID, ev.UserID, ev.Quantity, ev.AppliedAt.UTC())
	if err != nil {
		return false, classify(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (t *pgTx) InsertConsent(ctx context.Context, c Consent) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO consents (id, initiator_id, partner_id, payload, status, payment_status,
        initiator_confirmed, partner_confirmed, biometric_validated, biometric_validated_at, deleted_by_initiator, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		c.ID, c.InitiatorID, c.PartnerID, c.Payload, string(c.Status), string(c.PaymentStatus),
		c.InitiatorConfirmed, c.PartnerConfirmed, c.BiometricValidated, c.BiometricValidatedAt,
		c.DeletedByInitiator, c.CreatedAt.UTC())
	return classify(err)
}

func (t *pgTx) LockConsent(ctx context.Context, id uuid.UUID) (Consent, error) {
	return scanConsent(t.tx.QueryRow(ctx, `SELECT `+consentColumns+` FROM consents WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) UpdateConsent(ctx context.Context, c Consent) error {
	cmd, err := t.tx.Exec(ctx, `UPDATE consents SET status = $2, initiator_confirmed = $3, partner_confirmed = $4,
        biometric_validated = $5, biometric_validated_at = $6, deleted_by_initiator = $7
        WHERE id = $1`,
		c.ID, string(c.Status), c.InitiatorConfirmed, c.PartnerConfirmed, c.BiometricValidated,
		c.BiometricValidatedAt, c.DeletedByInitiator)
	if err != nil {
		return classify(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.IsSubscribed,
		&u.SubscriptionEndDate, &u.StripeCustomerID, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, classify(err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

func scanConsent(row pgx.Row) (Consent, error) {
	var (
		c             Consent
		status        string
		paymentStatus string
	)
	if err := row.Scan(&c.ID, &c.InitiatorID, &c.PartnerID, &c.Payload, &status, &paymentStatus,
		&c.InitiatorConfirmed, &c.PartnerConfirmed, &c.BiometricValidated, &c.BiometricValidatedAt,
		&c.DeletedByInitiator, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Consent{}, ErrNotFound
		}
		return Consent{}, classify(err)
	}
	c.Status = ConsentStatus(status)
	c.PaymentStatus = PaymentStatus(paymentStatus)
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}

// classify maps driver errors onto the store sentinels while keeping the
// original error in the chain.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable, pgQueryCanceled:
			return fmt.Errorf("%w: %w", ErrTransient, err)
		case pgUniqueViolation:
			return fmt.Errorf("%w: %w", ErrConflict, err)
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	return err
}

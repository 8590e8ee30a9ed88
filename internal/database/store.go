package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// Errors reported by the account store.
var (
	// ErrConnection indicates the database is unreachable.
	ErrConnection = errors.New("account store unreachable")
	// ErrSchema indicates the account table or an expected column is absent.
	ErrSchema = errors.New("account table schema mismatch")
)

// AccountStore defines read-only access to the account table.
// Methods accept context.Context for cancellation and timeouts.
type AccountStore interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// ListActiveAccounts retrieves all accounts whose expiry is in the
	// future, ordered by creation time.
	ListActiveAccounts(ctx context.Context) ([]Account, error)
}

// sqlxStore provides an implementation of the AccountStore interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new AccountStore implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) AccountStore {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "account_store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return nil
}

const listActiveAccountsQuery = `
    SELECT id, api_key, system_prompt, expires_at, created_at, updated_at, user_id, llm
    FROM fanvue_accounts
    WHERE expires_at > ?
    ORDER BY created_at ASC;
`

// ListActiveAccounts retrieves all non-expired accounts.
func (s *sqlxStore) ListActiveAccounts(ctx context.Context) ([]Account, error) {
	now := time.Now().UTC()

	var accounts []Account
	if err := s.db.SelectContext(ctx, &accounts, listActiveAccountsQuery, now); err != nil {
		if isSchemaError(err) {
			s.logger.ErrorContext(ctx, "Account table schema mismatch", "error", err)
			return nil, fmt.Errorf("%w: %v", ErrSchema, err)
		}
		s.logger.ErrorContext(ctx, "Error listing active accounts", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	s.logger.DebugContext(ctx, "Listed active accounts", "count", len(accounts))
	return accounts, nil
}

// isSchemaError reports whether err indicates a missing table or column.
// The sqlite driver only exposes this condition through the error text.
func isSchemaError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "no such table") || strings.Contains(msg, "no such column")
}

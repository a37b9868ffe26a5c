package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"topup-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an existing connection
func NewStoreWithDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection, used by the readiness probe
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates missing tables and indexes
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// GetUserByTelegramID retrieves a user by Telegram user id
func (s *Store) GetUserByTelegramID(ctx context.Context, telegramID string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user,
		"SELECT id, user_id, first_name, username, photo_url, balance, created_at FROM users WHERE user_id = $1",
		telegramID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, telegramID)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpsertUser creates the user on first contact and refreshes the profile
// fields afterwards. Balance is never touched here.
func (s *Store) UpsertUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (user_id, first_name, username, photo_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET first_name = EXCLUDED.first_name,
			username = EXCLUDED.username,
			photo_url = EXCLUDED.photo_url
		RETURNING id, balance, created_at`

	err := s.db.QueryRowxContext(ctx, query,
		user.TelegramID, user.FirstName, user.Username, user.PhotoURL,
	).Scan(&user.ID, &user.Balance, &user.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// CreditUser adds amount to the user's balance and returns the new balance
func (s *Store) CreditUser(ctx context.Context, telegramID string, amount int64) (int64, error) {
	var balance int64
	err := s.db.GetContext(ctx, &balance,
		"UPDATE users SET balance = balance + $1 WHERE user_id = $2 RETURNING balance",
		amount, telegramID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrUserNotFound, telegramID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to credit user: %w", err)
	}
	return balance, nil
}

// GetMerchandiseByIDs retrieves enabled merchandise by ids
func (s *Store) GetMerchandiseByIDs(ctx context.Context, ids []int64) ([]models.Merchandise, error) {
	if len(ids) == 0 {
		return []models.Merchandise{}, nil
	}

	query, args, err := sqlx.In(
		"SELECT id, name, price, reseller_id, reseller_category, enabled FROM merchandise WHERE enabled = TRUE AND id IN (?)",
		ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var items []models.Merchandise
	err = s.db.SelectContext(ctx, &items, query, args...)
	return items, err
}

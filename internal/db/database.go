package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

// Store groups the repositories that must be able to share one transaction.
type Store interface {
	Users() UserRepository
	Conversations() ConversationRepository
	Messages() MessageRepository

	// WithTx runs fn with a Store bound to a single transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	// Calling WithTx on a transaction-bound Store reuses that transaction.
	WithTx(ctx context.Context, fn func(tx Store) error) error
}

// Database is the sqlite-backed Store.
type Database struct {
	db *sqlx.DB
}

func NewDatabase(dsn string) (*Database, error) {
	if dsn == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	// sqlite allows a single writer; one connection also keeps ":memory:"
	// databases alive and shared for the lifetime of the pool.
	db.SetMaxOpenConns(1)

	// Verify we can actually connect to the database
	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("ping failed: %w, close failed: %v", err, closeErr)
		}
		return nil, err
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("enable foreign keys failed: %w, close failed: %v", err, closeErr)
		}
		return nil, err
	}

	// Try to create tables - if this fails, the database is not usable
	if err := createTables(db); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("create tables failed: %w, close failed: %v", err, closeErr)
		}
		return nil, err
	}

	return &Database{db: db}, nil
}

func createTables(db *sqlx.DB) error {
	_, err := db.Exec(schema)
	return err
}

const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		phone_number TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		contact_phone TEXT NOT NULL,
		contact_name TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		is_archived BOOLEAN NOT NULL DEFAULT 0,
		UNIQUE (user_id, contact_phone),
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id INTEGER NOT NULL,
		sender_phone TEXT NOT NULL,
		recipient_phone TEXT NOT NULL,
		body TEXT NOT NULL,
		sent_at INTEGER NOT NULL,
		is_sent BOOLEAN NOT NULL DEFAULT 0,
		is_received BOOLEAN NOT NULL DEFAULT 0,
		is_read BOOLEAN NOT NULL DEFAULT 0,
		carrier_message_id TEXT,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS message_status (
		message_id INTEGER PRIMARY KEY,
		status TEXT NOT NULL CHECK (status IN ('pending', 'sent', 'delivered', 'read', 'failed')),
		updated_at INTEGER NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS oauth_credentials (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		access_token TEXT NOT NULL,
		refresh_token TEXT NOT NULL DEFAULT '',
		expires_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_carrier_id
		ON messages(carrier_message_id, is_received) WHERE carrier_message_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_messages_conversation_sent
		ON messages(conversation_id, sent_at);
	CREATE INDEX IF NOT EXISTS idx_conversations_user_updated
		ON conversations(user_id, updated_at);
`

// GetDB returns the underlying pool
func (d *Database) GetDB() *sqlx.DB {
	return d.db
}

func (d *Database) Close() error {
	if d == nil {
		return errors.New("database is nil")
	}

	if d.db == nil {
		return errors.New("database already closed")
	}

	err := d.db.Close()
	d.db = nil
	return err
}

func (d *Database) Users() UserRepository {
	return NewUserRepository(d.db)
}

func (d *Database) Conversations() ConversationRepository {
	return NewConversationRepository(d.db)
}

func (d *Database) Messages() MessageRepository {
	return NewMessageRepository(d.db)
}

func (d *Database) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if d == nil || d.db == nil {
		return errors.New("database is closed")
	}
	return inTx(ctx, d.db, func(tx sqlx.ExtContext) error {
		return fn(&txStore{tx: tx})
	})
}

// txStore binds every repository to one open transaction.
type txStore struct {
	tx sqlx.ExtContext
}

func (s *txStore) Users() UserRepository {
	return NewUserRepository(s.tx)
}

func (s *txStore) Conversations() ConversationRepository {
	return NewConversationRepository(s.tx)
}

func (s *txStore) Messages() MessageRepository {
	return NewMessageRepository(s.tx)
}

func (s *txStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	return fn(s)
}

// inTx runs fn inside a transaction. When q already is a transaction fn
// joins it instead of nesting.
func inTx(ctx context.Context, q sqlx.ExtContext, fn func(tx sqlx.ExtContext) error) error {
	db, ok := q.(*sqlx.DB)
	if !ok {
		return fn(q)
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// IsUniqueViolation reports whether err was caused by a UNIQUE constraint.
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sms-relay-server/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByPhone(ctx context.Context, phone string) (*models.User, error)
}

// userRepository implements UserRepository interface
type userRepository struct {
	q sqlx.ExtContext
}

// NewUserRepository creates a new UserRepository on a pool or a transaction
func NewUserRepository(q sqlx.ExtContext) UserRepository {
	return &userRepository{q: q}
}

const userColumns = `id, username, email, phone_number, password_hash, active, created_at, updated_at`

// Create creates a new user in the database
func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if user == nil {
		return fmt.Errorf("user cannot be nil")
	}
	if user.PhoneNumber == "" {
		return fmt.Errorf("user phone number cannot be empty")
	}

	// Generate UUID if not provided
	if user.ID == "" {
		user.ID = uuid.New().String()
	}

	now := time.Now().Unix()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := sqlx.NamedExecContext(ctx, r.q, `
		INSERT INTO users (`+userColumns+`)
		VALUES (:id, :username, :email, :phone_number, :password_hash, :active, :created_at, :updated_at)
	`, user)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by ID
func (r *userRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if id == "" {
		return nil, fmt.Errorf("user ID cannot be empty")
	}
	return r.getOne(ctx, "id", id)
}

// GetByUsername retrieves a user by username
func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	if username == "" {
		return nil, fmt.Errorf("username cannot be empty")
	}
	return r.getOne(ctx, "username", username)
}

// GetByPhone retrieves the user registered with a canonical phone number
func (r *userRepository) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	if phone == "" {
		return nil, fmt.Errorf("phone number cannot be empty")
	}
	return r.getOne(ctx, "phone_number", phone)
}

// getOne looks a user up by a unique column; column is never user input.
func (r *userRepository) getOne(ctx context.Context, column, value string) (*models.User, error) {
	user := &models.User{}
	err := sqlx.GetContext(ctx, r.q, user,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by %s: %w", column, err)
	}
	return user, nil
}

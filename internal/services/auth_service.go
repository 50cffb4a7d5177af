package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"golang.org/x/crypto/bcrypt"

	"sms-relay-server/internal/db"
	"sms-relay-server/internal/models"
	"sms-relay-server/internal/phone"
	"sms-relay-server/pkg/logger"

	"go.uber.org/zap"
)

const (
	// BcryptCost is the cost parameter for bcrypt password hashing
	BcryptCost = 12

	// MinPasswordLength is the minimum length for passwords
	MinPasswordLength = 8

	// MinUsernameLength is the minimum length for usernames
	MinUsernameLength = 3

	// MaxUsernameLength is the maximum length for usernames
	MaxUsernameLength = 50
)

var (
	// ErrInvalidCredentials indicates authentication failure
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrAccountInactive indicates the account may not log in
	ErrAccountInactive = errors.New("user account is inactive")

	// ErrInvalidUsername indicates username validation failure
	ErrInvalidUsername = errors.New("username must be 3-50 characters and contain only alphanumeric characters and underscores")

	// ErrInvalidPassword indicates password validation failure
	ErrInvalidPassword = errors.New("password must be at least 8 characters")

	// ErrInvalidPhone indicates the registered number is not a valid mobile number
	ErrInvalidPhone = errors.New("invalid phone number")
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// AuthService authenticates platform users against the user directory
type AuthService struct {
	repo db.UserRepository
	cost int
}

// NewAuthService creates a new AuthService instance
func NewAuthService(repo db.UserRepository) *AuthService {
	return &AuthService{repo: repo, cost: BcryptCost}
}

// Authenticate verifies username and password
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		logger.Error("Database error during authentication",
			zap.String("username", username),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		logger.Warn("Authentication failed - user not found",
			zap.String("username", username),
			zap.String("event_type", "invalid_credentials"),
		)
		return nil, ErrInvalidCredentials
	}

	if !user.Active {
		logger.Warn("Authentication failed - account inactive",
			zap.String("user_id", user.ID),
			zap.String("username", user.Username),
			zap.String("event_type", "inactive_account"),
		)
		return nil, ErrAccountInactive
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		logger.Warn("Authentication failed - invalid password",
			zap.String("user_id", user.ID),
			zap.String("username", user.Username),
			zap.String("event_type", "failed_login"),
		)
		return nil, ErrInvalidCredentials
	}

	logger.Info("User authenticated successfully",
		zap.String("user_id", user.ID),
		zap.String("username", user.Username),
		zap.String("event_type", "successful_login"),
	)
	return user, nil
}

// SeedOperator creates the operator account unless the username is taken.
// created reports whether a new account was inserted.
func (s *AuthService) SeedOperator(ctx context.Context, username, password, phoneNumber, email string) (*models.User, bool, error) {
	if err := validateUsername(username); err != nil {
		return nil, false, err
	}
	if err := validatePassword(password); err != nil {
		return nil, false, err
	}
	canonical, ok := phone.Normalize(phoneNumber)
	if !ok || !phone.Validate(canonical) {
		return nil, false, ErrInvalidPhone
	}

	existing, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return nil, false, fmt.Errorf("failed to check username: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, false, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.NewUser(username, email, canonical, string(hash))
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, false, err
	}

	logger.Info("Operator account seeded",
		zap.String("user_id", user.ID),
		zap.String("username", user.Username),
		zap.String("phone_number", user.PhoneNumber),
	)
	return user, true, nil
}

func validateUsername(username string) error {
	if len(username) < MinUsernameLength || len(username) > MaxUsernameLength {
		return ErrInvalidUsername
	}
	if !usernamePattern.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return ErrInvalidPassword
	}
	return nil
}

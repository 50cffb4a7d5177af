package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a platform account. PhoneNumber is the registered number (canonical form)
// that outbound SMS are sent as and inbound SMS are routed to.
type User struct {
	ID           string `json:"id" db:"id"`                     // UUID
	Username     string `json:"username" db:"username"`         // Unique username
	Email        string `json:"email" db:"email"`               // Contact email, may be empty
	PhoneNumber  string `json:"phone_number" db:"phone_number"` // Unique registered number
	PasswordHash string `json:"-" db:"password_hash"`           // EXCLUDED from JSON - bcrypt hash
	Active       bool   `json:"active" db:"active"`             // Whether the account may log in
	CreatedAt    int64  `json:"created_at" db:"created_at"`     // Unix timestamp of account creation
	UpdatedAt    int64  `json:"updated_at" db:"updated_at"`     // Unix timestamp of last update
}

// UserResponse represents a safe user representation for API responses
type UserResponse struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Active      bool   `json:"active"`
	CreatedAt   int64  `json:"created_at"`
}

// NewUser creates a new active User with generated UUID and timestamps.
// The password should already be hashed and the phone number normalized.
func NewUser(username, email, phoneNumber, passwordHash string) *User {
	now := time.Now().Unix()
	return &User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PhoneNumber:  phoneNumber,
		PasswordHash: passwordHash,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// ToResponse converts User to UserResponse, excluding the password hash
func (u *User) ToResponse() *UserResponse {
	return &UserResponse{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		PhoneNumber: u.PhoneNumber,
		Active:      u.Active,
		CreatedAt:   u.CreatedAt,
	}
}

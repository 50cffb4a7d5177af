package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUser(t *testing.T) {
	user := NewUser("testuser", "test@example.com", "+221780000000", "hashed_password")

	assert.NotEmpty(t, user.ID, "ID should be generated")
	assert.Equal(t, "testuser", user.Username)
	assert.Equal(t, "test@example.com", user.Email)
	assert.Equal(t, "+221780000000", user.PhoneNumber)
	assert.Equal(t, "hashed_password", user.PasswordHash)
	assert.True(t, user.Active, "New user should be active by default")
	assert.Greater(t, user.CreatedAt, int64(0), "CreatedAt should be set")
	assert.Equal(t, user.CreatedAt, user.UpdatedAt)
}

func TestUser_JSONExcludesPasswordHash(t *testing.T) {
	user := NewUser("testuser", "", "+221780000000", "secret-hash")

	data, err := json.Marshal(user)
	require.NoError(t, err)

	assert.NotContains(t, string(data), "secret-hash")
	assert.NotContains(t, string(data), "password")
}

func TestUser_ToResponse(t *testing.T) {
	user := NewUser("testuser", "test@example.com", "+221780000000", "hash")
	resp := user.ToResponse()

	assert.Equal(t, user.ID, resp.ID)
	assert.Equal(t, user.Username, resp.Username)
	assert.Equal(t, user.PhoneNumber, resp.PhoneNumber)
	assert.True(t, resp.Active)
}

package db

import (
	"context"
	"testing"

	"sms-relay-server/internal/models"
)

// setupTestDB creates an in-memory SQLite database for testing
func setupTestDB(t *testing.T) *Database {
	t.Helper()

	database, err := NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})
	return database
}

// createTestUser inserts an active user registered with phone.
func createTestUser(t *testing.T, database *Database, username, phone string) *models.User {
	t.Helper()

	user := models.NewUser(username, username+"@example.com", phone, "hashed")
	if err := database.Users().Create(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// createTestConversation resolves a conversation between user and contact.
func createTestConversation(t *testing.T, database *Database, user *models.User, contact string) *models.Conversation {
	t.Helper()

	conv, _, err := database.Conversations().ResolveOrCreate(context.Background(), user.ID, contact, "")
	if err != nil {
		t.Fatalf("failed to create test conversation: %v", err)
	}
	return conv
}

package services

import (
	"context"
	"errors"
	"testing"

	"sms-relay-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// MockUserRepository is a mock implementation of db.UserRepository for testing
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func newTestAuthService(repo *MockUserRepository) *AuthService {
	s := NewAuthService(repo)
	s.cost = bcrypt.MinCost
	return s
}

func hashedUser(t *testing.T, password string, active bool) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user := models.NewUser("operator", "", ownerPhone, string(hash))
	user.Active = active
	return user
}

func TestAuthService_Authenticate(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		setupMock func(*MockUserRepository)
		password  string
		wantErr   error
	}{
		{
			name: "valid credentials",
			setupMock: func(m *MockUserRepository) {
				m.On("GetByUsername", mock.Anything, "operator").Return(hashedUser(t, "password123", true), nil)
			},
			password: "password123",
		},
		{
			name: "wrong password",
			setupMock: func(m *MockUserRepository) {
				m.On("GetByUsername", mock.Anything, "operator").Return(hashedUser(t, "password123", true), nil)
			},
			password: "nope",
			wantErr:  ErrInvalidCredentials,
		},
		{
			name: "unknown user",
			setupMock: func(m *MockUserRepository) {
				m.On("GetByUsername", mock.Anything, "operator").Return(nil, nil)
			},
			password: "password123",
			wantErr:  ErrInvalidCredentials,
		},
		{
			name: "inactive account",
			setupMock: func(m *MockUserRepository) {
				m.On("GetByUsername", mock.Anything, "operator").Return(hashedUser(t, "password123", false), nil)
			},
			password: "password123",
			wantErr:  ErrAccountInactive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &MockUserRepository{}
			tt.setupMock(repo)
			svc := newTestAuthService(repo)

			user, err := svc.Authenticate(ctx, "operator", tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, user)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "operator", user.Username)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestAuthService_AuthenticateRepositoryError(t *testing.T) {
	repo := &MockUserRepository{}
	repo.On("GetByUsername", mock.Anything, "operator").Return(nil, errors.New("db down"))

	_, err := newTestAuthService(repo).Authenticate(context.Background(), "operator", "password123")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthService_SeedOperator(t *testing.T) {
	ctx := context.Background()

	t.Run("creates account with canonical phone", func(t *testing.T) {
		repo := &MockUserRepository{}
		repo.On("GetByUsername", mock.Anything, "operator").Return(nil, nil)
		repo.On("Create", mock.Anything, mock.MatchedBy(func(u *models.User) bool {
			return u.PhoneNumber == ownerPhone &&
				bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("password123")) == nil
		})).Return(nil)

		user, created, err := newTestAuthService(repo).SeedOperator(ctx, "operator", "password123", "78 000 00 00", "ops@example.com")
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, ownerPhone, user.PhoneNumber)
		repo.AssertExpectations(t)
	})

	t.Run("keeps existing account", func(t *testing.T) {
		existing := hashedUser(t, "password123", true)
		repo := &MockUserRepository{}
		repo.On("GetByUsername", mock.Anything, "operator").Return(existing, nil)

		user, created, err := newTestAuthService(repo).SeedOperator(ctx, "operator", "password123", ownerPhone, "")
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, existing.ID, user.ID)
		repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		svc := newTestAuthService(&MockUserRepository{})

		_, _, err := svc.SeedOperator(ctx, "op", "password123", ownerPhone, "")
		assert.ErrorIs(t, err, ErrInvalidUsername)

		_, _, err = svc.SeedOperator(ctx, "operator", "short", ownerPhone, "")
		assert.ErrorIs(t, err, ErrInvalidPassword)

		_, _, err = svc.SeedOperator(ctx, "operator", "password123", "+221531234567", "")
		assert.ErrorIs(t, err, ErrInvalidPhone)
	})
}

package auth

import (
	"context"
	"testing"

	"tally/internal/core"
	"tally/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("s3cret", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hash == "s3cret" {
		t.Fatal("hash must not equal the raw password")
	}
	if !CheckPassword("s3cret", hash) {
		t.Fatal("correct password should verify")
	}
	if CheckPassword("wrong", hash) {
		t.Fatal("wrong password must not verify")
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Alice@Example.COM "); got != "alice@example.com" {
		t.Fatalf("expected alice@example.com, got %q", got)
	}
}

type ServiceTestSuite struct {
	suite.Suite
	repo *storage.Repository
	svc  *Service
	ctx  context.Context
}

func (s *ServiceTestSuite) SetupTest() {
	repo, err := storage.NewRepository(":memory:")
	require.NoError(s.T(), err)
	s.repo = repo
	s.svc = NewService(repo, bcrypt.MinCost) // MinCost keeps the suite fast
	s.ctx = context.Background()
}

func (s *ServiceTestSuite) TearDownTest() {
	if s.repo != nil {
		s.repo.Close()
	}
}

func (s *ServiceTestSuite) TestRegisterAndAuthenticate() {
	id, err := s.svc.Register(s.ctx, "Alice", "alice@example.com", "hunter2")
	require.NoError(s.T(), err)
	require.Positive(s.T(), id)

	user, err := s.svc.Authenticate(s.ctx, "alice@example.com", "hunter2")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), id, user.ID)
	assert.Equal(s.T(), "Alice", user.Name)
	assert.Equal(s.T(), "alice@example.com", user.Email)
	assert.Empty(s.T(), user.PasswordHash, "hash must never leave the credential store")
}

func (s *ServiceTestSuite) TestRegisterDuplicateEmail() {
	_, err := s.svc.Register(s.ctx, "Alice", "alice@example.com", "hunter2")
	require.NoError(s.T(), err)

	_, err = s.svc.Register(s.ctx, "Impostor", "alice@example.com", "other")
	assert.ErrorIs(s.T(), err, core.ErrDuplicateEmail)

	// Case-insensitive uniqueness by normalization.
	_, err = s.svc.Register(s.ctx, "Impostor", "ALICE@example.com", "other")
	assert.ErrorIs(s.T(), err, core.ErrDuplicateEmail)
}

func (s *ServiceTestSuite) TestRegisterValidation() {
	cases := []struct {
		name, email, password string
	}{
		{"", "a@example.com", "pw"},
		{"Alice", "", "pw"},
		{"Alice", "not-an-email", "pw"},
		{"Alice", "a@example.com", ""},
	}
	for _, tc := range cases {
		_, err := s.svc.Register(s.ctx, tc.name, tc.email, tc.password)
		assert.Error(s.T(), err, "expected rejection for %+v", tc)
	}
}

func (s *ServiceTestSuite) TestAuthenticateUnknownEmail() {
	_, err := s.svc.Authenticate(s.ctx, "ghost@example.com", "pw")
	assert.ErrorIs(s.T(), err, core.ErrUserNotFound)
}

func (s *ServiceTestSuite) TestAuthenticateWrongPassword() {
	_, err := s.svc.Register(s.ctx, "Alice", "alice@example.com", "hunter2")
	require.NoError(s.T(), err)

	_, err = s.svc.Authenticate(s.ctx, "alice@example.com", "wrong")
	assert.ErrorIs(s.T(), err, core.ErrInvalidCredentials)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}

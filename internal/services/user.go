package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/itemsrv/apiserver/internal/auth"
	"github.com/itemsrv/apiserver/internal/store"
	"github.com/itemsrv/apiserver/types"
)

const (
	MaxEmailLength    = 255
	MaxUsernameLength = 64
	MaxFullNameLength = 255

	dummyPassword = "itemsrv-login-timing-guard"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByUsername(ctx context.Context, username string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
}

// TokenService issues and validates bearer tokens.
type TokenService interface {
	IssueDefault(subject string) (string, error)
	Validate(token string) (auth.Claims, error)
}

// RegisterInput is the data accepted when creating an account.
type RegisterInput struct {
	Email    string
	Username string
	Password string
	FullName *string
}

// UserService encapsulates registration, login and token authentication.
type UserService struct {
	repo        UserRepository
	hasher      PasswordHasher
	tokens      TokenService
	timeout     time.Duration
	dummyDigest string
}

func NewUserService(repo UserRepository, hasher PasswordHasher, tokens TokenService, timeout time.Duration) (*UserService, error) {
	// Compared against when the username is unknown so that a failed login
	// costs one bcrypt comparison either way.
	dummyDigest, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("hash dummy password: %w", err)
	}

	return &UserService{
		repo:        repo,
		hasher:      hasher,
		tokens:      tokens,
		timeout:     timeout,
		dummyDigest: dummyDigest,
	}, nil
}

func errBadCredentials() error {
	return newError(ErrUnauthorized, "Incorrect username or password")
}

func errBadToken() error {
	return newError(ErrUnauthorized, "Could not validate credentials")
}

// Register validates input, hashes the password and stores the user.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (types.User, error) {
	user, err := validateRegistration(in)
	if err != nil {
		return types.User{}, err
	}

	user.PasswordHash, err = s.hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return types.User{}, Validation("password must be at most %d bytes", auth.MaxPasswordBytes)
		}
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	created, err := s.repo.Create(ctx, user)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.User{}, newError(ErrConflict, "Email or username already registered")
		}
		return types.User{}, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

func validateRegistration(in RegisterInput) (types.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		return types.User{}, Validation("email is required")
	}
	if utf8.RuneCountInString(email) > MaxEmailLength {
		return types.User{}, Validation("email must be at most %d characters", MaxEmailLength)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return types.User{}, Validation("email is not a valid email address")
	}

	username := strings.TrimSpace(in.Username)
	if username == "" {
		return types.User{}, Validation("username is required")
	}
	if utf8.RuneCountInString(username) > MaxUsernameLength {
		return types.User{}, Validation("username must be at most %d characters", MaxUsernameLength)
	}

	if in.Password == "" {
		return types.User{}, Validation("password is required")
	}
	if len(in.Password) > auth.MaxPasswordBytes {
		return types.User{}, Validation("password must be at most %d bytes", auth.MaxPasswordBytes)
	}

	user := types.User{Email: email, Username: username}
	if in.FullName != nil {
		fullName := strings.TrimSpace(*in.FullName)
		if utf8.RuneCountInString(fullName) > MaxFullNameLength {
			return types.User{}, Validation("full_name must be at most %d characters", MaxFullNameLength)
		}
		if fullName != "" {
			user.FullName = &fullName
		}
	}
	return user, nil
}

// Login verifies credentials and returns a bearer token whose subject is the
// username. Unknown users and wrong passwords fail identically.
func (s *UserService) Login(ctx context.Context, username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", errBadCredentials()
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.hasher.Verify(password, s.dummyDigest)
			return "", errBadCredentials()
		}
		return "", fmt.Errorf("load user: %w", err)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return "", errBadCredentials()
	}

	token, err := s.tokens.IssueDefault(user.Username)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}

// Authenticate resolves a bearer token to the user it names.
func (s *UserService) Authenticate(ctx context.Context, token string) (types.User, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return types.User{}, errBadToken()
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.repo.GetByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, errBadToken()
		}
		return types.User{}, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

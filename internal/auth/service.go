// Package auth implements username/password authentication with bcrypt
// hashing and signed bearer tokens.
package auth

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"alrt/internal/types"
)

// bcryptCost is the bcrypt cost factor used for password hashing.
const bcryptCost = 12

const minPasswordLength = 8

// UserRepo defines the data access methods the auth service needs.
type UserRepo interface {
	Create(ctx context.Context, username, hashedPassword string, plan types.PlanTier) (*types.User, error)
	GetByUsername(ctx context.Context, username string) (*types.User, error)
	GetByID(ctx context.Context, id string) (*types.User, error)
}

// PasswordHasher abstracts bcrypt operations for testability.
type PasswordHasher interface {
	CompareHashAndPassword(hashedPassword, password string) error
	GenerateFromPassword(password string) (string, error)
}

// bcryptHasher is the production implementation of PasswordHasher.
type bcryptHasher struct{}

func (b *bcryptHasher) CompareHashAndPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

func (b *bcryptHasher) GenerateFromPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Service handles registration, login, and bearer token verification.
type Service struct {
	users  UserRepo
	tokens *TokenIssuer
	hasher PasswordHasher
	logger *slog.Logger
}

// ServiceConfig holds the dependencies for creating a Service.
type ServiceConfig struct {
	Users  UserRepo
	Tokens *TokenIssuer
	Hasher PasswordHasher
	Logger *slog.Logger
}

// NewService creates a Service.
// If Hasher is nil, the production bcryptHasher is used.
// If Logger is nil, slog.Default() is used.
func NewService(cfg ServiceConfig) *Service {
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = &bcryptHasher{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:  cfg.Users,
		tokens: cfg.Tokens,
		hasher: hasher,
		logger: logger,
	}
}

// Register creates a user with a bcrypt-hashed password. New users start on
// the bronze plan; tier changes are an operator action, not an API call.
func (s *Service) Register(ctx context.Context, username, password string) (*types.User, error) {
	if username == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "username is required", nil)
	}
	if len(password) < minPasswordLength {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField,
			"password must be at least 8 characters", nil)
	}

	hash, err := s.hasher.GenerateFromPassword(password)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to hash password", err)
	}

	user, err := s.users.Create(ctx, username, hash, types.PlanBronze)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user registered",
		"user_id", user.ID,
		"username", username,
	)
	return user, nil
}

// Login verifies credentials and issues a bearer token.
//
// Enumeration protection: unknown username and wrong password both return the
// same generic invalid-credentials error so the response does not reveal which
// usernames exist.
func (s *Service) Login(ctx context.Context, username, password string) (string, *types.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundUser {
			return "", nil, types.NewAppError(types.ErrCodeAuthInvalidCreds, "invalid username or password", nil)
		}
		return "", nil, err
	}

	if err := s.hasher.CompareHashAndPassword(user.HashedPassword, password); err != nil {
		return "", nil, types.NewAppError(types.ErrCodeAuthInvalidCreds, "invalid username or password", nil)
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return "", nil, err
	}

	s.logger.InfoContext(ctx, "user logged in", "user_id", user.ID)
	return token, user, nil
}

// Authenticate verifies a bearer token and loads the user it names.
func (s *Service) Authenticate(ctx context.Context, token string) (*types.User, error) {
	userID, err := s.tokens.Verify(token)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundUser {
			return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "token subject no longer exists", nil)
		}
		return nil, err
	}
	return user, nil
}

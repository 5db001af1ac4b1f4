package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"magiclink/internal/config"
	"magiclink/internal/database"
	"magiclink/internal/models"
)

// Authentication errors.
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserInactive       = errors.New("user account is inactive")
	ErrUserExists         = errors.New("username or email already exists")
	ErrInvalidPassword    = errors.New("password does not meet requirements")
	ErrInvalidUsername    = errors.New("username does not meet requirements")
	ErrInvalidEmail       = errors.New("invalid email address")
)

// AuthService handles admin user authentication.
type AuthService struct {
	db         *database.DB
	cfg        *config.Config
	bcryptCost int
}

// NewAuthService creates a new authentication service.
func NewAuthService(db *database.DB, cfg *config.Config) *AuthService {
	return &AuthService{
		db:         db,
		cfg:        cfg,
		bcryptCost: cfg.Security.BcryptCost,
	}
}

// Authenticate verifies user credentials and returns the user if valid.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)

	user, err := s.db.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("authentication error: %w", err)
	}

	if user == nil {
		// Hash a dummy password to prevent timing attacks
		bcrypt.CompareHashAndPassword([]byte("$2a$12$dummy.hash.to.prevent.timing.attacks"), []byte(password))
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, ErrUserInactive
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := s.db.UpdateUserLastLogin(ctx, user.ID); err != nil {
		// Log but don't fail authentication
		fmt.Printf("Warning: failed to update last login: %v\n", err)
	}

	return user, nil
}

// CreateUser creates a new user with validated input.
func (s *AuthService) CreateUser(ctx context.Context, input models.UserCreate) (*models.User, error) {
	if err := s.ValidateUsername(input.Username); err != nil {
		return nil, err
	}
	if err := s.ValidateEmail(input.Email); err != nil {
		return nil, err
	}
	if err := s.ValidatePassword(input.Password); err != nil {
		return nil, err
	}
	if !input.Role.IsValid() {
		input.Role = models.RoleViewer
	}

	existing, _ := s.db.GetUserByUsername(ctx, input.Username)
	if existing != nil {
		return nil, ErrUserExists
	}

	return s.createUserInternal(ctx, input)
}

// ValidateUsername checks if a username meets requirements.
func (s *AuthService) ValidateUsername(username string) error {
	username = strings.TrimSpace(username)

	if len(username) < 3 {
		return fmt.Errorf("%w: username must be at least 3 characters", ErrInvalidUsername)
	}
	if len(username) > 32 {
		return fmt.Errorf("%w: username must be at most 32 characters", ErrInvalidUsername)
	}

	validUsername := regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)
	if !validUsername.MatchString(username) {
		return fmt.Errorf("%w: username must start with a letter and contain only letters, numbers, underscores, and hyphens", ErrInvalidUsername)
	}

	return nil
}

// ValidateEmail checks if an email is valid.
func (s *AuthService) ValidateEmail(email string) error {
	email = strings.TrimSpace(email)

	if len(email) < 5 || len(email) > 254 {
		return ErrInvalidEmail
	}

	emailRegex := regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	if !emailRegex.MatchString(email) {
		return ErrInvalidEmail
	}

	return nil
}

// ValidatePassword checks if a password meets security requirements.
func (s *AuthService) ValidatePassword(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidPassword)
	}
	if len(password) > 72 {
		// bcrypt has a maximum length of 72 bytes
		return fmt.Errorf("%w: password must be at most 72 characters", ErrInvalidPassword)
	}
	return nil
}

// GetUserByID retrieves a user by ID.
func (s *AuthService) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return s.db.GetUserByID(ctx, id)
}

// HasAnyUsers checks if any users exist in the database.
func (s *AuthService) HasAnyUsers(ctx context.Context) (bool, error) {
	count, err := s.db.CountUsers(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// EnsureInitialAdmin seeds the admin account from configuration when the
// user table is empty. A partially configured admin is skipped.
func (s *AuthService) EnsureInitialAdmin(ctx context.Context) (*models.User, error) {
	admin := s.cfg.Admin
	if admin.Username == "" || admin.Email == "" || admin.Password == "" {
		return nil, nil
	}

	hasUsers, err := s.HasAnyUsers(ctx)
	if err != nil {
		return nil, err
	}
	if hasUsers {
		return nil, nil
	}

	return s.createUserInternal(ctx, models.UserCreate{
		Username: admin.Username,
		Email:    admin.Email,
		Password: admin.Password,
		Role:     models.RoleAdmin,
	})
}

// createUserInternal creates a user without username validation (for initial admin).
func (s *AuthService) createUserInternal(ctx context.Context, input models.UserCreate) (*models.User, error) {
	if err := s.ValidateEmail(input.Email); err != nil {
		return nil, err
	}
	if err := s.ValidatePassword(input.Password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	role := input.Role
	if role == "" {
		role = models.RoleViewer
	}

	now := time.Now().UTC()
	user := &models.User{
		Username:     strings.TrimSpace(input.Username),
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		PasswordHash: string(hash),
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.db.CreateUser(ctx, user); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

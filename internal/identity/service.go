// Package identity manages application users and their redis-backed login
// sessions. It stamps the acting user onto request contexts; the inventory
// core itself never authenticates anyone.
package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/custodia-wms/custodia/internal/shared"
)

var (
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	ErrUsernameTaken      = errors.New("identity: username already taken")
	ErrSelfDelete         = errors.New("identity: cannot delete own account")
	ErrUserNotFound       = errors.New("identity: user not found")
)

// Role is the coarse access level of a user.
type Role string

const (
	RoleAdmin       Role = "ADMIN"
	RoleManager     Role = "MANAGER"
	RoleStorekeeper Role = "STOREKEEPER"
)

// Valid reports whether the role is one of the known levels.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleStorekeeper:
		return true
	}
	return false
}

// User is an application login. PasswordHash is bcrypt and never leaves the
// server.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Repository abstracts user persistence. Users are global, not scoped to a
// fiscal year.
type Repository interface {
	List(ctx context.Context) ([]User, error)
	Get(ctx context.Context, id string) (User, error)
	GetByUsername(ctx context.Context, username string) (User, error)
	UsernameExists(ctx context.Context, username, excludeID string) (bool, error)
	Insert(ctx context.Context, u User) error
	Update(ctx context.Context, u User) error
	Delete(ctx context.Context, id string) error
}

// Service wraps user management and credential checks.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService builds Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Authenticate validates username/password credentials. Failures are
// indistinguishable on purpose.
func (s *Service) Authenticate(ctx context.Context, username, password string) (User, error) {
	user, err := s.repo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

// CreateInput carries the fields of a new user.
type CreateInput struct {
	Username string
	Name     string
	Password string
	Role     Role
}

// Create registers a new user with a bcrypt-hashed password.
func (s *Service) Create(ctx context.Context, in CreateInput) (User, error) {
	username := strings.TrimSpace(in.Username)
	taken, err := s.repo.UsernameExists(ctx, username, "")
	if err != nil {
		return User{}, err
	}
	if taken {
		return User{}, ErrUsernameTaken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	user := User{
		ID:           uuid.NewString(),
		Username:     username,
		Name:         shared.NormalizeText(in.Name),
		Role:         in.Role,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.Insert(ctx, user); err != nil {
		return User{}, err
	}
	return user, nil
}

// UpdateInput carries editable user fields. An empty Password keeps the
// current hash.
type UpdateInput struct {
	Name     string
	Password string
	Role     Role
}

// Update edits a user's display name, role and optionally password.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (User, error) {
	user, err := s.repo.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	user.Name = shared.NormalizeText(in.Name)
	user.Role = in.Role
	if in.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return User{}, err
		}
		user.PasswordHash = string(hash)
	}
	if err := s.repo.Update(ctx, user); err != nil {
		return User{}, err
	}
	return user, nil
}

// Delete removes a user. Deleting the account behind the current session is
// rejected so an admin cannot lock themselves out mid-session.
func (s *Service) Delete(ctx context.Context, id, actingUserID string) error {
	if id == actingUserID {
		return ErrSelfDelete
	}
	return s.repo.Delete(ctx, id)
}

// List returns all users, hashes stripped by the JSON encoding.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

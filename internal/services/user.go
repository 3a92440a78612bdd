package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/tecnokaijin/storefront/internal/metrics"
	"github.com/tecnokaijin/storefront/internal/models"
	"github.com/tecnokaijin/storefront/internal/repository"
)

// UserService is the user directory: accounts, credentials and roles
type UserService struct {
	repo         repository.UserRepository
	metrics      *metrics.AppMetrics
	cost         int
	primaryEmail string
	// compared against when the email is unknown so both failures cost one bcrypt check
	dummyHash []byte
}

// NewUserService creates a new user service. primaryEmail names the account
// that can never be deleted or demoted.
func NewUserService(repo repository.UserRepository, m *metrics.AppMetrics, bcryptCost int, primaryEmail string) (*UserService, error) {
	dummy, err := bcrypt.GenerateFromPassword([]byte("tecnokaijin-dummy-password"), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare password hashing: %w", err)
	}
	return &UserService{
		repo:         repo,
		metrics:      m,
		cost:         bcryptCost,
		primaryEmail: models.NormalizeEmail(primaryEmail),
		dummyHash:    dummy,
	}, nil
}

func (s *UserService) hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(h), nil
}

// Register creates a customer account
func (s *UserService) Register(ctx context.Context, in models.RegisterInput) (*models.User, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	hash, err := s.hash(in.Password)
	if err != nil {
		return nil, err
	}
	u := &models.User{
		Email:        in.Email,
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: hash,
		Role:         models.RoleUser,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, models.ErrDuplicateEmail) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	log.Printf("[AUTH] User registered: user_id=%d", u.ID)
	return u, nil
}

// Authenticate checks an email and password pair. Unknown emails and wrong
// passwords produce the same error.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	if err := (models.LoginInput{Email: email, Password: password}).Validate(); err != nil {
		return nil, err
	}
	u, err := s.repo.GetByEmail(ctx, email)
	if errors.Is(err, models.ErrUserNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, models.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, models.ErrInvalidCredentials
	}
	return u, nil
}

// FindByID returns a user by ID
func (s *UserService) FindByID(ctx context.Context, id int64) (*models.User, error) {
	return s.repo.Get(ctx, id)
}

// FindByEmail returns a user by email, ignoring case
func (s *UserService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.repo.GetByEmail(ctx, email)
}

// ListAll returns every account ordered by ID
func (s *UserService) ListAll(ctx context.Context) ([]models.User, error) {
	return s.repo.List(ctx)
}

// IsPrimary reports whether u is the protected administrator
func (s *UserService) IsPrimary(u *models.User) bool {
	return u != nil && s.primaryEmail != "" && u.Email == s.primaryEmail
}

// Update changes name, password or role of an account
func (s *UserService) Update(ctx context.Context, id int64, in models.UpdateUserInput) (*models.User, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	u, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Role != nil && *in.Role != models.RoleAdmin && s.IsPrimary(u) {
		return nil, models.ErrPrimaryAdmin
	}

	if in.Name != nil {
		u.Name = strings.TrimSpace(*in.Name)
	}
	if in.Password != nil {
		if u.PasswordHash, err = s.hash(*in.Password); err != nil {
			return nil, err
		}
	}
	if in.Role != nil {
		u.Role = *in.Role
	}
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, err
	}
	log.Printf("[AUTH] User updated: user_id=%d, role=%s", u.ID, u.Role)
	return u, nil
}

// Delete removes an account. The primary administrator is refused.
func (s *UserService) Delete(ctx context.Context, id int64) error {
	u, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if s.IsPrimary(u) {
		return models.ErrPrimaryAdmin
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	log.Printf("[AUTH] User deleted: user_id=%d", id)
	return nil
}

// EnsurePrimaryAdmin creates the primary administrator if it is missing and
// restores its admin role if it was changed outside the service.
func (s *UserService) EnsurePrimaryAdmin(ctx context.Context, name, password string) (*models.User, error) {
	u, err := s.repo.GetByEmail(ctx, s.primaryEmail)
	switch {
	case err == nil:
		if u.Role != models.RoleAdmin {
			u.Role = models.RoleAdmin
			if err := s.repo.Update(ctx, u); err != nil {
				return nil, fmt.Errorf("failed to restore primary admin role: %w", err)
			}
		}
		return u, nil
	case !errors.Is(err, models.ErrUserNotFound):
		return nil, err
	}

	hash, err := s.hash(password)
	if err != nil {
		return nil, err
	}
	u = &models.User{
		Email:        s.primaryEmail,
		Name:         name,
		PasswordHash: hash,
		Role:         models.RoleAdmin,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("failed to create primary admin: %w", err)
	}
	log.Printf("[AUTH] Primary admin created: user_id=%d, email=%s", u.ID, u.Email)
	return u, nil
}

// CreateUser stores an account with an explicit role, used for seeding
func (s *UserService) CreateUser(ctx context.Context, name, email, password string, role models.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, models.Invalid("role", "unknown role %q", role)
	}
	hash, err := s.hash(password)
	if err != nil {
		return nil, err
	}
	u := &models.User{Email: email, Name: name, PasswordHash: hash, Role: role}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Count returns the number of accounts
func (s *UserService) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

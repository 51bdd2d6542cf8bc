package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helpdeskhq/support-desk/internal/auth"
	"github.com/helpdeskhq/support-desk/internal/domain"
	"github.com/helpdeskhq/support-desk/internal/repository"
	apperrors "github.com/helpdeskhq/support-desk/pkg/util"
)

// UserService manages accounts on behalf of administrators.
type UserService struct {
	users      repository.UserRepository
	tickets    repository.TicketRepository
	bcryptCost int
	logger     *zap.Logger
	now        Clock
}

// UserDependencies encapsulates repositories required for account management.
type UserDependencies struct {
	UserRepo   repository.UserRepository
	TicketRepo repository.TicketRepository
	BcryptCost int
	Logger     *zap.Logger
	Clock      Clock
}

// UserListFilters define listing parameters.
type UserListFilters struct {
	Role   *domain.Role
	Active *bool
	Limit  int
	Offset int
}

// UserCreateInput describes an account created by an administrator.
type UserCreateInput struct {
	Name     string
	Email    string
	Password string
	Role     string
}

// UserUpdateInput carries the account fields to change; nil means untouched.
type UserUpdateInput struct {
	Name     *string
	Email    *string
	Role     *string
	Password *string
	Active   *bool
}

// NewUserService constructs the service.
func NewUserService(deps UserDependencies) *UserService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{
		users:      deps.UserRepo,
		tickets:    deps.TicketRepo,
		bcryptCost: deps.BcryptCost,
		logger:     logger,
		now:        clockOrDefault(deps.Clock),
	}
}

// ListUsers returns accounts ordered by name.
func (s *UserService) ListUsers(ctx context.Context, actor *domain.User, filters UserListFilters) ([]domain.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	users, err := s.users.List(ctx, repository.UserFilter{
		Role:   filters.Role,
		Active: filters.Active,
		Limit:  filters.Limit,
		Offset: filters.Offset,
	})
	if err != nil {
		return nil, repoError(err, "users", nil)
	}
	return users, nil
}

// ListTechnicians returns active technicians. Staff use it to pick assignees.
func (s *UserService) ListTechnicians(ctx context.Context, actor *domain.User) ([]domain.User, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	role := domain.RoleTechnician
	users, err := s.users.List(ctx, repository.UserFilter{Role: &role, Active: ptrBool(true), Limit: 200})
	if err != nil {
		return nil, repoError(err, "users", nil)
	}
	return users, nil
}

// GetUser fetches a single account.
func (s *UserService) GetUser(ctx context.Context, actor *domain.User, id string) (*domain.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, repoError(err, "user", map[string]any{"user_id": id})
	}
	return user, nil
}

// CreateUser provisions an account with any role.
func (s *UserService) CreateUser(ctx context.Context, actor *domain.User, input UserCreateInput) (*domain.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	details := map[string]any{}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		details["name"] = "required"
	}
	email, err := normalizeEmail(input.Email)
	if err != nil {
		details["email"] = err.Error()
	}
	role := domain.RoleUser
	if raw := strings.TrimSpace(input.Role); raw != "" {
		parsed, ok := domain.ParseRole(raw)
		if !ok {
			details["role"] = "unknown"
		}
		role = parsed
	}
	if len(input.Password) < auth.MinPasswordLength {
		details["password"] = "must be at least 8 characters"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid user", details)
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	now := s.now()
	user := &domain.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflict("email already registered", map[string]any{"email": email})
		}
		return nil, repoError(err, "user", nil)
	}
	s.logger.Info("user created", zap.String("user_id", user.ID), zap.String("role", string(user.Role)), zap.String("actor_id", actor.ID))
	return user, nil
}

// UpdateUser changes profile, role, password or activation. Administrators cannot demote or
// deactivate themselves so the desk always keeps at least the caller as admin.
func (s *UserService) UpdateUser(ctx context.Context, actor *domain.User, id string, input UserUpdateInput) (*domain.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, repoError(err, "user", map[string]any{"user_id": id})
	}

	details := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			details["name"] = "required"
		}
		user.Name = name
	}
	if input.Email != nil {
		email, err := normalizeEmail(*input.Email)
		if err != nil {
			details["email"] = err.Error()
		}
		user.Email = email
	}
	if input.Role != nil {
		role, ok := domain.ParseRole(strings.TrimSpace(*input.Role))
		if !ok {
			details["role"] = "unknown"
		}
		user.Role = role
	}
	if input.Password != nil && len(*input.Password) < auth.MinPasswordLength {
		details["password"] = "must be at least 8 characters"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid user", details)
	}
	if input.Active != nil {
		user.Active = *input.Active
	}

	if user.ID == actor.ID && (user.Role != domain.RoleAdmin || !user.Active) {
		return nil, apperrors.NewConflict("administrators cannot demote or deactivate themselves", nil)
	}

	if input.Password != nil {
		hash, err := auth.HashPassword(*input.Password, s.bcryptCost)
		if err != nil {
			return nil, apperrors.NewInternalError(err)
		}
		user.PasswordHash = hash
	}
	user.UpdatedAt = s.now()
	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflict("email already registered", map[string]any{"email": user.Email})
		}
		return nil, repoError(err, "user", map[string]any{"user_id": id})
	}
	return user, nil
}

// DeleteUser removes an account that neither created tickets nor holds active assignments.
func (s *UserService) DeleteUser(ctx context.Context, actor *domain.User, id string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if id == actor.ID {
		return apperrors.NewConflict("administrators cannot delete themselves", nil)
	}
	if _, err := s.users.GetByID(ctx, id); err != nil {
		return repoError(err, "user", map[string]any{"user_id": id})
	}

	load, err := s.tickets.CountActiveByAssignee(ctx)
	if err != nil {
		return repoError(err, "tickets", nil)
	}
	if n := load[id]; n > 0 {
		return apperrors.NewConflict("user still has active assignments", map[string]any{"active_tickets": n})
	}
	if err := s.users.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrReferenced) {
			return apperrors.NewConflict("user still owns tickets", map[string]any{"user_id": id})
		}
		return repoError(err, "user", map[string]any{"user_id": id})
	}
	s.logger.Info("user deleted", zap.String("user_id", id), zap.String("actor_id", actor.ID))
	return nil
}

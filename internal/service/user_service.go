package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"yield/internal/domain"
	"yield/internal/policy"
	"yield/internal/repository"
)

// MinPasswordLength applies to temporary passwords set at creation.
const MinPasswordLength = 8

// AccountCreator creates identities at the hosted identity provider.
type AccountCreator interface {
	CreateAccount(ctx context.Context, email, password string) (string, error)
}

// UserService manages admin-created users.
type UserService interface {
	// ResolveActor loads the caller's active profile.
	ResolveActor(ctx context.Context, userID, email string) (domain.Actor, error)
	Me(ctx context.Context, actor domain.Actor) (*UserDTO, error)
	CreateUser(ctx context.Context, actor domain.Actor, req CreateUserRequest) (*UserDTO, error)
	DeactivateUser(ctx context.Context, actor domain.Actor, userID string) (*DeactivateUserResponse, error)
	ListUsers(ctx context.Context, actor domain.Actor) ([]*UserDTO, error)
}

type userService struct {
	profiles  repository.ProfilesRepository
	locations repository.LocationsRepository
	accounts  AccountCreator
	audit     *auditor
	logger    *zap.Logger
}

func NewUserService(
	profiles repository.ProfilesRepository,
	locations repository.LocationsRepository,
	accounts AccountCreator,
	audit repository.AuditRepository,
	decisions DecisionObserver,
	logger *zap.Logger,
) UserService {
	return &userService{
		profiles:  profiles,
		locations: locations,
		accounts:  accounts,
		audit:     newAuditor(audit, decisions, logger),
		logger:    logger,
	}
}

// ============================================
// Request/Response DTOs
// ============================================

type CreateUserRequest struct {
	Email      string
	Password   string
	FullName   string
	Role       string // defaults to employee
	LocationID string
	RegionID   string
}

type UserDTO struct {
	UserID     string      `json:"user_id"`
	Email      string      `json:"email,omitempty"`
	FullName   string      `json:"full_name,omitempty"`
	Role       domain.Role `json:"role"`
	LocationID *string     `json:"location_id"`
	RegionID   *string     `json:"region_id"`
	IsActive   bool        `json:"is_active"`
	CreatedAt  time.Time   `json:"created_at"`
}

type DeactivateUserResponse struct {
	UserID string `json:"user_id"`
	// AlreadyInactive is set when nothing changed.
	AlreadyInactive bool `json:"already_inactive"`
}

func toUserDTO(p *domain.Profile) *UserDTO {
	return &UserDTO{
		UserID:     p.UserID,
		Email:      p.Email.String,
		FullName:   p.FullName.String,
		Role:       p.Role,
		LocationID: strPtr(p.LocationID),
		RegionID:   strPtr(p.RegionID),
		IsActive:   p.IsActive,
		CreatedAt:  p.CreatedAt,
	}
}

// ============================================
// Operations
// ============================================

func (s *userService) ResolveActor(ctx context.Context, userID, email string) (domain.Actor, error) {
	p, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Actor{}, ErrNoProfile
		}
		return domain.Actor{}, err
	}
	if !p.IsActive {
		return domain.Actor{}, ErrNoProfile
	}
	actor := p.Actor()
	if actor.Email == "" {
		actor.Email = email
	}
	return actor, nil
}

func (s *userService) Me(ctx context.Context, actor domain.Actor) (*UserDTO, error) {
	p, err := s.profiles.GetProfile(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	return toUserDTO(p), nil
}

func (s *userService) CreateUser(ctx context.Context, actor domain.Actor, req CreateUserRequest) (_ *UserDTO, err error) {
	entry := s.audit.begin(actor, "user.create", domain.AuditInsert)
	defer func() { s.audit.finish(ctx, entry, err) }()

	email := strings.ToLower(strings.TrimSpace(req.Email))
	entry.meta["email"] = email
	if email == "" {
		return nil, invalid("Email required")
	}
	if len(req.Password) < MinPasswordLength {
		return nil, invalid("Password required, %d chars minimum", MinPasswordLength)
	}
	roleName := req.Role
	if strings.TrimSpace(roleName) == "" {
		roleName = string(domain.RoleEmployee)
	}
	role, perr := domain.ParseRole(roleName)
	if perr != nil {
		return nil, invalid("Invalid role")
	}
	entry.meta["target_role"] = string(role)

	in := policy.CreateUserInput{
		TargetRole:       role,
		TargetLocationID: strings.TrimSpace(req.LocationID),
		TargetRegionID:   strings.TrimSpace(req.RegionID),
	}
	if in.TargetLocationID != "" {
		loc, lerr := s.locations.GetLocation(ctx, in.TargetLocationID)
		switch {
		case lerr == nil:
			ref := loc.Ref()
			in.TargetLocation = &ref
		case !errors.Is(lerr, repository.ErrNotFound):
			return nil, lerr
		}
	}

	grant, err := policy.AuthorizeCreateUser(actor, in)
	if err != nil {
		return nil, err
	}
	entry.locationID = grant.LocationID

	userID, err := s.accounts.CreateAccount(ctx, email, req.Password)
	if err != nil {
		return nil, err
	}
	entry.targetID = userID

	p := &domain.Profile{
		UserID:     userID,
		Email:      nullString(email),
		FullName:   nullString(strings.TrimSpace(req.FullName)),
		Role:       grant.Role,
		LocationID: nullString(grant.LocationID),
		RegionID:   nullString(grant.RegionID),
		IsActive:   true,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.profiles.UpsertProfile(ctx, p); err != nil {
		s.logger.Error("account created but profile upsert failed",
			zap.String("user_id", userID),
			zap.String("email", email),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("user created",
		zap.String("actor_id", actor.ID),
		zap.String("user_id", userID),
		zap.String("role", string(grant.Role)),
	)
	return toUserDTO(p), nil
}

func (s *userService) DeactivateUser(ctx context.Context, actor domain.Actor, userID string) (_ *DeactivateUserResponse, err error) {
	entry := s.audit.begin(actor, "user.deactivate", domain.AuditUpdate)
	entry.targetID = userID
	defer func() { s.audit.finish(ctx, entry, err) }()

	target, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	t := target.Target()
	entry.locationID = t.LocationID
	if t.RegionID == "" && t.LocationID != "" {
		loc, lerr := s.locations.GetLocation(ctx, t.LocationID)
		if lerr != nil && !errors.Is(lerr, repository.ErrNotFound) {
			return nil, lerr
		}
		if loc != nil {
			t.RegionID = loc.Ref().RegionID
		}
	}

	if err := policy.AuthorizeDeactivateUser(actor, t); err != nil {
		return nil, err
	}

	changed, err := s.profiles.DeactivateProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	entry.meta["changed"] = changed
	return &DeactivateUserResponse{UserID: userID, AlreadyInactive: !changed}, nil
}

func (s *userService) ListUsers(ctx context.Context, actor domain.Actor) ([]*UserDTO, error) {
	sc, err := policy.UserListScope(actor)
	s.audit.decide("user.list", err)
	if err != nil {
		return nil, err
	}
	profiles, err := s.profiles.ListProfiles(ctx, repository.ProfileFilter{
		All:        sc.All,
		LocationID: sc.LocationID,
		RegionID:   sc.RegionID,
	}, repository.MaxUserListLimit)
	if err != nil {
		return nil, err
	}
	out := make([]*UserDTO, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, toUserDTO(p))
	}
	return out, nil
}

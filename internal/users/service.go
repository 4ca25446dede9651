package users

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/partyshop-backend/pkg/db"
	"github.com/angelmondragon/partyshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/partyshop-backend/pkg/errors"
	"github.com/angelmondragon/partyshop-backend/pkg/logger"
	"github.com/angelmondragon/partyshop-backend/pkg/pagination"
)

const (
	ReasonUserNotFound  = "USER_NOT_FOUND"
	ReasonSelfAction    = "SELF_ACTION_FORBIDDEN"
	ReasonInvalidFields = "INVALID_PROFILE"
	ReasonRoleChanged   = "ROLE_CHANGED"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service covers the caller's own profile and the admin user directory.
type Service interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*UserDTO, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, input UpdateProfileInput) (*UserDTO, error)
	DeleteAccount(ctx context.Context, userID uuid.UUID) error

	List(ctx context.Context, params pagination.Params) (*ListResult, error)
	ToggleAdmin(ctx context.Context, actorID, targetID uuid.UUID) (*RoleChange, error)
	Delete(ctx context.Context, actorID, targetID uuid.UUID) error
}

type service struct {
	repo *Repository
	tx   txRunner
	logg *logger.Logger
}

func NewService(repo *Repository, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, errors.New("users repository required")
	}
	if tx == nil {
		return nil, errors.New("transaction runner required")
	}
	return &service{repo: repo, tx: tx, logg: logg}, nil
}

func (s *service) GetProfile(ctx context.Context, userID uuid.UUID) (*UserDTO, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, mapLookup(err)
	}
	return FromModel(user), nil
}

func (s *service) UpdateProfile(ctx context.Context, userID uuid.UUID, input UpdateProfileInput) (*UserDTO, error) {
	updates := map[string]any{}
	if input.FirstName != nil {
		name := strings.TrimSpace(*input.FirstName)
		if name == "" {
			return nil, pkgerrors.NewReason(pkgerrors.CodeValidation, ReasonInvalidFields, "first name cannot be empty")
		}
		updates["first_name"] = name
	}
	if input.LastName != nil {
		name := strings.TrimSpace(*input.LastName)
		if name == "" {
			return nil, pkgerrors.NewReason(pkgerrors.CodeValidation, ReasonInvalidFields, "last name cannot be empty")
		}
		updates["last_name"] = name
	}
	if input.Phone != nil {
		if phone := strings.TrimSpace(*input.Phone); phone == "" {
			updates["phone"] = nil
		} else {
			updates["phone"] = phone
		}
	}

	found, err := s.repo.UpdateProfile(ctx, userID, updates)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update profile")
	}
	if !found {
		return nil, userNotFound()
	}
	return s.GetProfile(ctx, userID)
}

func (s *service) DeleteAccount(ctx context.Context, userID uuid.UUID) error {
	return s.delete(ctx, userID)
}

func (s *service) List(ctx context.Context, params pagination.Params) (*ListResult, error) {
	params = params.Normalize()
	rows, total, err := s.repo.List(ctx, params.Offset(), params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list users")
	}
	out := make([]UserDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return &ListResult{Users: out, Count: len(out), Pagination: pagination.NewPage(params, total)}, nil
}

func (s *service) ToggleAdmin(ctx context.Context, actorID, targetID uuid.UUID) (*RoleChange, error) {
	if err := forbidSelf(actorID, targetID); err != nil {
		return nil, err
	}
	var change *RoleChange
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		user, err := repo.FindByID(ctx, targetID)
		if err != nil {
			return mapLookup(err)
		}
		next := enums.UserRoleAdmin
		if user.IsAdmin() {
			next = enums.UserRoleCustomer
		}
		ok, err := repo.SetRole(ctx, targetID, user.Role, next)
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.NewReason(pkgerrors.CodeConflict, ReasonRoleChanged, "user role changed concurrently, retry")
		}
		user.Role = next
		change = &RoleChange{User: *FromModel(user), Promoted: next == enums.UserRoleAdmin}
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "toggle admin")
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"target_user_id": targetID.String(),
			"role":           change.User.Role,
		})
		s.logg.Info(logCtx, "user role changed")
	}
	return change, nil
}

func (s *service) Delete(ctx context.Context, actorID, targetID uuid.UUID) error {
	if err := forbidSelf(actorID, targetID); err != nil {
		return err
	}
	return s.delete(ctx, targetID)
}

func (s *service) delete(ctx context.Context, userID uuid.UUID) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		found, err := s.repo.WithTx(tx).Delete(ctx, userID)
		if err != nil {
			return err
		}
		if !found {
			return userNotFound()
		}
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return err
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete user")
	}
	return nil
}

// forbidSelf keeps an admin from demoting or deleting themselves through the
// directory endpoints.
func forbidSelf(actorID, targetID uuid.UUID) error {
	if actorID == targetID {
		return pkgerrors.NewReason(pkgerrors.CodeForbidden, ReasonSelfAction, "cannot change your own account here")
	}
	return nil
}

func mapLookup(err error) error {
	if db.IsNotFound(err) {
		return userNotFound()
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
}

func userNotFound() error {
	return pkgerrors.NewReason(pkgerrors.CodeNotFound, ReasonUserNotFound, "user not found")
}

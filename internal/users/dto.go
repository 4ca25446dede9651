package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/partyshop-backend/pkg/db/models"
	"github.com/angelmondragon/partyshop-backend/pkg/enums"
	"github.com/angelmondragon/partyshop-backend/pkg/pagination"
)

// UserDTO is the transport shape that omits sensitive credentials.
type UserDTO struct {
	ID          uuid.UUID      `json:"id"`
	Email       string         `json:"email"`
	FirstName   string         `json:"firstName"`
	LastName    string         `json:"lastName"`
	Phone       *string        `json:"phone,omitempty"`
	Role        enums.UserRole `json:"role"`
	IsAdmin     bool           `json:"isAdmin"`
	LastLoginAt *time.Time     `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// CreateUserDTO holds the data required by the repo to persist a new user.
type CreateUserDTO struct {
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Phone        *string
	Role         enums.UserRole
}

// UpdateProfileInput is a partial profile update. Nil fields are untouched;
// an empty phone clears it.
type UpdateProfileInput struct {
	FirstName *string `json:"firstName" validate:"omitempty,min=1,max=80"`
	LastName  *string `json:"lastName" validate:"omitempty,min=1,max=80"`
	Phone     *string `json:"phone" validate:"omitempty,max=32"`
}

type ListResult struct {
	Users      []UserDTO       `json:"users"`
	Count      int             `json:"count"`
	Pagination pagination.Page `json:"pagination"`
}

// RoleChange reports the outcome of an admin toggle.
type RoleChange struct {
	User     UserDTO `json:"user"`
	Promoted bool    `json:"promoted"`
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:          u.ID,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Phone:       u.Phone,
		Role:        u.Role,
		IsAdmin:     u.IsAdmin(),
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func (c CreateUserDTO) ToModel() *models.User {
	role := c.Role
	if role == "" {
		role = enums.UserRoleCustomer
	}
	return &models.User{
		Email:        c.Email,
		PasswordHash: c.PasswordHash,
		FirstName:    c.FirstName,
		LastName:     c.LastName,
		Phone:        c.Phone,
		Role:         role,
	}
}

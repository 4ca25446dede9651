package auth

import (
	"github.com/angelmondragon/partyshop-backend/internal/users"
)

// LoginRequest captures the user credentials sent to the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest contains the payload required to open a customer account.
type RegisterRequest struct {
	FirstName string  `json:"firstName" validate:"required,max=80"`
	LastName  string  `json:"lastName" validate:"required,max=80"`
	Email     string  `json:"email" validate:"required,email"`
	Password  string  `json:"password" validate:"required,min=6"`
	Phone     *string `json:"phone,omitempty" validate:"omitempty,max=32"`
}

// AuthResponse contains the access token and user produced by register or login.
type AuthResponse struct {
	Token string         `json:"token"`
	User  *users.UserDTO `json:"user"`
}

// GuestTokenResponse hands out an opaque guest identity.
type GuestTokenResponse struct {
	GuestToken string `json:"guestToken"`
}

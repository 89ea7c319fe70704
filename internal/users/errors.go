package users

import "errors"

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrProfileNotFound    = errors.New("user profile not found")
	ErrEmailRegistered    = errors.New("email is already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountInactive    = errors.New("account is not activated")
	ErrPasswordMismatch   = errors.New("password does not match")
	ErrInvalidToken       = errors.New("token is invalid or has expired")
	ErrRoleNotFound       = errors.New("role not found")
	ErrRoleCodeTaken      = errors.New("role code is already taken")
)

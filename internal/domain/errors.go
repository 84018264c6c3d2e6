package domain

import "errors"

// Expected business outcomes. Handlers map these to 4xx responses;
// anything else is treated as an upstream failure.
var (
	ErrOTPNotFound     = errors.New("verification code not found")
	ErrOTPExpired      = errors.New("verification code expired")
	ErrOTPMismatch     = errors.New("verification code does not match")
	ErrOTPAlreadyUsed  = errors.New("verification code already used")
	ErrTooManyAttempts = errors.New("too many verification attempts")

	ErrAccountNotFound  = errors.New("account not found")
	ErrAccountExists    = errors.New("account already exists")
	ErrIdentityNotFound = errors.New("user not found")
)

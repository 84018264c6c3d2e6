package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Wire types for the auth endpoints. Field names follow the public API
// contract consumed by the mobile clients.

type SendOTPRequest struct {
	Phone    string `json:"phone"`
	IsSignup bool   `json:"isSignup"`
}

type VerifyOTPRequest struct {
	Phone    string `json:"phone"`
	OTP      string `json:"otp"`
	IsSignup bool   `json:"isSignup"`
}

type ValidateSessionRequest struct {
	Token string `json:"token"`
}

type SessionInfo struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SendOTPResult reports where the code went; the code itself never
// leaves the service.
type SendOTPResult struct {
	Demo      bool
	ExpiresAt time.Time
}

// VerifyOTPResult carries the resolved identity, the authoritative
// bearer session, and the optional backing provider session token.
type VerifyOTPResult struct {
	Identity        *Identity
	Session         *SessionInfo
	ProviderSession string
	NewAccount      bool
}

var otpRegex = regexp.MustCompile(`^\d{6}$`)

// Validation methods
func (r *SendOTPRequest) Validate() error {
	if r.Phone == "" {
		return fmt.Errorf("phone number is required")
	}
	return nil
}

func (r *VerifyOTPRequest) Validate() error {
	if r.Phone == "" {
		return fmt.Errorf("phone number is required")
	}
	if r.OTP == "" {
		return fmt.Errorf("verification code is required")
	}
	if !otpRegex.MatchString(r.OTP) {
		return fmt.Errorf("verification code must be %d digits", OTPLength)
	}
	return nil
}

func (r *ValidateSessionRequest) Validate() error {
	if r.Token == "" {
		return fmt.Errorf("token is required")
	}
	return nil
}

// Normalize methods
func (r *SendOTPRequest) Normalize() {
	r.Phone = strings.TrimSpace(r.Phone)
}

func (r *VerifyOTPRequest) Normalize() {
	r.Phone = strings.TrimSpace(r.Phone)
	r.OTP = strings.TrimSpace(r.OTP)
}

func (r *ValidateSessionRequest) Normalize() {
	r.Token = strings.TrimSpace(r.Token)
}

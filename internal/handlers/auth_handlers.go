package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/heylo/heylo-auth/internal/domain"
	"github.com/heylo/heylo-auth/pkg/auth"
	"github.com/heylo/heylo-auth/pkg/logger"
	"github.com/heylo/heylo-auth/pkg/phone"
)

// SendOTP handles POST /auth/send-otp
func (h *Handlers) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req domain.SendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}

	if strings.TrimSpace(req.Phone) == "" {
		writeError(w, http.StatusBadRequest, "Phone number is required")
		return
	}

	if !h.allowPhone(r, req.Phone) {
		writeError(w, http.StatusTooManyRequests, "Too many requests for this number. Please try again later.")
		return
	}

	result, err := h.authService.SendOTP(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, phone.ErrInvalidFormat):
			writeError(w, http.StatusBadRequest, "Invalid phone number format")
		case errors.Is(err, domain.ErrAccountNotFound):
			writeError(w, http.StatusNotFound, "No account found with this phone number. Please sign up first.")
		case errors.Is(err, domain.ErrAccountExists):
			writeError(w, http.StatusConflict, "Account already exists with this phone number. Please log in instead.")
		default:
			logger.ErrorContext(r.Context(), "Failed to send verification code", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to send verification code")
		}
		return
	}

	response := map[string]interface{}{
		"success": true,
		"message": "Verification code sent",
	}
	if result.Demo {
		response["message"] = "Demo account: use the demo verification code"
		response["isDemo"] = true
	}

	writeJSON(w, http.StatusOK, response)
}

// VerifyOTP handles POST /auth/verify-otp
func (h *Handlers) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}

	req.Normalize()
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.authService.VerifyOTP(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, phone.ErrInvalidFormat):
			writeError(w, http.StatusBadRequest, "Invalid phone number format")
		case errors.Is(err, domain.ErrOTPNotFound),
			errors.Is(err, domain.ErrOTPExpired),
			errors.Is(err, domain.ErrOTPMismatch),
			errors.Is(err, domain.ErrOTPAlreadyUsed),
			errors.Is(err, domain.ErrTooManyAttempts):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrAccountNotFound):
			writeError(w, http.StatusNotFound, "Account not found. Please sign up first.")
		case errors.Is(err, domain.ErrAccountExists):
			writeError(w, http.StatusConflict, "Account already exists with this phone number. Please log in instead.")
		default:
			logger.ErrorContext(r.Context(), "Failed to verify code", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to verify code")
		}
		return
	}

	message := "Login successful"
	if result.NewAccount {
		message = "Account created successfully"
	}

	response := map[string]interface{}{
		"success": true,
		"message": message,
		"user":    result.Identity.ToUserInfo(),
		"session": result.Session,
	}
	if result.ProviderSession != "" {
		response["providerSession"] = result.ProviderSession
	}

	writeJSON(w, http.StatusOK, response)
}

// ValidateSession handles POST /auth/validate-session
func (h *Handlers) ValidateSession(w http.ResponseWriter, r *http.Request) {
	var req domain.ValidateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeSessionError(w, http.StatusUnauthorized, "Invalid JSON format")
		return
	}

	req.Normalize()
	if err := req.Validate(); err != nil {
		writeSessionError(w, http.StatusUnauthorized, err.Error())
		return
	}

	identity, err := h.authService.ValidateSession(r.Context(), req.Token)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrExpired):
			writeSessionError(w, http.StatusUnauthorized, "Session expired")
		case errors.Is(err, auth.ErrMalformed):
			writeSessionError(w, http.StatusUnauthorized, "Invalid session token")
		case errors.Is(err, domain.ErrIdentityNotFound):
			writeSessionError(w, http.StatusNotFound, "User not found")
		default:
			logger.ErrorContext(r.Context(), "Failed to validate session", "error", err)
			writeSessionError(w, http.StatusInternalServerError, "Failed to validate session")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid": true,
		"user":  identity.ToUserInfo(),
	})
}

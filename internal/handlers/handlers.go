package handlers

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/heylo/heylo-auth/internal/repository"
	"github.com/heylo/heylo-auth/internal/service"
	"github.com/heylo/heylo-auth/pkg/config"
	"github.com/heylo/heylo-auth/pkg/logger"
	"github.com/heylo/heylo-auth/pkg/phone"
)

type Handlers struct {
	authService   service.AuthService
	rateLimitRepo repository.RateLimitRepository
	config        *config.Config
}

func New(
	authService service.AuthService,
	rateLimitRepo repository.RateLimitRepository,
	config *config.Config,
) *Handlers {
	return &Handlers{
		authService:   authService,
		rateLimitRepo: rateLimitRepo,
		config:        config,
	}
}

// SendOTPRateLimit throttles code requests per client IP.
func (h *Handlers) SendOTPRateLimit() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "send_otp:" + getClientIP(r)

			allowed, err := h.rateLimitRepo.Allow(r.Context(), key, h.config.Auth.RateLimitRequests, h.config.Auth.RateLimitWindow)
			if err != nil {
				logger.ErrorContext(r.Context(), "Rate limit check failed", "error", err)
				// Allow request on error (fail open)
			} else if !allowed {
				writeError(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// allowPhone throttles code requests per phone number. Formatting
// variants of the same number share a window via normalization.
func (h *Handlers) allowPhone(r *http.Request, rawPhone string) bool {
	key := rawPhone
	if normalized, err := phone.Normalize(rawPhone, h.config.Auth.DefaultCountryCode); err == nil {
		key = normalized
	}

	allowed, err := h.rateLimitRepo.Allow(r.Context(), "send_otp_phone:"+key, h.config.Auth.RateLimitRequests, h.config.Auth.RateLimitWindow)
	if err != nil {
		logger.ErrorContext(r.Context(), "Rate limit check failed", "error", err)
		return true
	}
	return allowed
}

// Helper functions
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// writeSessionError matches the validate-session contract, which
// reports valid:false instead of success:false.
func writeSessionError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]interface{}{
		"valid": false,
		"error": message,
	})
}

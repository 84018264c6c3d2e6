package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/heylo/heylo-auth/internal/domain"
	"github.com/heylo/heylo-auth/internal/provider"
	"github.com/heylo/heylo-auth/internal/repository"
	"github.com/heylo/heylo-auth/internal/sms"
	"github.com/heylo/heylo-auth/pkg/auth"
	"github.com/heylo/heylo-auth/pkg/config"
	"github.com/heylo/heylo-auth/pkg/events"
	"github.com/heylo/heylo-auth/pkg/logger"
	"github.com/heylo/heylo-auth/pkg/phone"
)

type AuthService interface {
	SendOTP(ctx context.Context, req *domain.SendOTPRequest) (*domain.SendOTPResult, error)
	VerifyOTP(ctx context.Context, req *domain.VerifyOTPRequest) (*domain.VerifyOTPResult, error)
	ValidateSession(ctx context.Context, token string) (*domain.Identity, error)
}

type authService struct {
	otpRepo      repository.OTPRepository
	identityRepo repository.IdentityRepository
	sender       sms.Sender
	sessions     provider.Sessions
	eventBus     events.Publisher
	config       *config.Config
}

func NewAuthService(
	otpRepo repository.OTPRepository,
	identityRepo repository.IdentityRepository,
	sender sms.Sender,
	sessions provider.Sessions,
	eventBus events.Publisher,
	config *config.Config,
) AuthService {
	return &authService{
		otpRepo:      otpRepo,
		identityRepo: identityRepo,
		sender:       sender,
		sessions:     sessions,
		eventBus:     eventBus,
		config:       config,
	}
}

// generateCode returns a uniform random zero-padded 6-digit code.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("failed to generate verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func (s *authService) SendOTP(ctx context.Context, req *domain.SendOTPRequest) (*domain.SendOTPResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	canonical, err := phone.Normalize(req.Phone, s.config.Auth.DefaultCountryCode)
	if err != nil {
		return nil, err
	}

	demo := canonical == s.config.Auth.DemoPhone

	// Signup/login eligibility is checked here and again at verify time;
	// the two requests are not atomic with respect to each other.
	if err := s.checkEligibility(ctx, canonical, req.IsSignup, demo); err != nil {
		return nil, err
	}

	code := s.config.Auth.DemoCode
	if !demo {
		code, err = generateCode()
		if err != nil {
			return nil, err
		}
	}

	codeHash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash verification code: %w", err)
	}

	expiresAt := time.Now().Add(s.config.Auth.OTPTTL)
	if err := s.otpRepo.Replace(ctx, canonical, string(codeHash), expiresAt); err != nil {
		return nil, fmt.Errorf("failed to store verification code: %w", err)
	}

	// The demo number never hits the SMS gateway; its fixed code is
	// a deliberate reviewer convenience, not a fallback path.
	if !demo {
		if err := s.sender.SendVerificationCode(ctx, canonical, code); err != nil {
			return nil, fmt.Errorf("failed to send verification code: %w", err)
		}
	}

	s.publish(ctx, events.OTPSent, events.OTPSentEvent{
		Phone:    phone.Mask(canonical),
		IsSignup: req.IsSignup,
		Demo:     demo,
		SentAt:   time.Now(),
	})

	return &domain.SendOTPResult{Demo: demo, ExpiresAt: expiresAt}, nil
}

func (s *authService) VerifyOTP(ctx context.Context, req *domain.VerifyOTPRequest) (*domain.VerifyOTPResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	canonical, err := phone.Normalize(req.Phone, s.config.Auth.DefaultCountryCode)
	if err != nil {
		return nil, err
	}

	demo := canonical == s.config.Auth.DemoPhone

	if err := s.checkEligibility(ctx, canonical, req.IsSignup, demo); err != nil {
		return nil, err
	}

	if err := s.consumeCode(ctx, canonical, req.OTP); err != nil {
		return nil, err
	}

	identity, newAccount, err := s.resolveIdentity(ctx, canonical, req.IsSignup, demo)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := auth.NewSessionToken(
		identity.ID.String(),
		canonical,
		s.config.Auth.JWTSecret,
		s.config.Auth.SessionTTL,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session token: %w", err)
	}

	// Best-effort secondary session: its failure never affects the
	// client-visible outcome, the bearer token above is authoritative.
	providerToken := ""
	if backing, err := s.sessions.CreateSession(ctx, identity); err != nil {
		if !errors.Is(err, provider.ErrDisabled) {
			logger.WarnContext(ctx, "Backing provider session failed, continuing with bearer token only",
				"error", err, "user_id", identity.ID)
		}
	} else {
		providerToken = backing.AccessToken
	}

	if newAccount {
		s.publish(ctx, events.UserRegistered, events.UserRegisteredEvent{
			UserID:       identity.ID.String(),
			Phone:        phone.Mask(canonical),
			RegisteredAt: time.Now(),
		})
	} else {
		s.publish(ctx, events.UserLoggedIn, events.UserLoggedInEvent{
			UserID:     identity.ID.String(),
			LoggedInAt: time.Now(),
		})
	}

	return &domain.VerifyOTPResult{
		Identity:        identity,
		Session:         &domain.SessionInfo{Token: token, ExpiresAt: expiresAt},
		ProviderSession: providerToken,
		NewAccount:      newAccount,
	}, nil
}

func (s *authService) ValidateSession(ctx context.Context, token string) (*domain.Identity, error) {
	claims, err := auth.ParseSessionToken(token, s.config.Auth.JWTSecret)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(claims.Sub)
	if err != nil {
		return nil, auth.ErrMalformed
	}

	identity, err := s.identityRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to look up session identity: %w", err)
	}
	if identity == nil {
		return nil, domain.ErrIdentityNotFound
	}

	return identity, nil
}

// checkEligibility enforces signup/login mutual exclusivity for a
// canonical phone. The demo number is exempt from the login-must-exist
// rule so demos work without seeding an account.
func (s *authService) checkEligibility(ctx context.Context, canonical string, isSignup, demo bool) error {
	identity, err := s.identityRepo.FindByPhone(ctx, canonical)
	if err != nil {
		return fmt.Errorf("failed to check existing account: %w", err)
	}

	if isSignup && identity != nil {
		return domain.ErrAccountExists
	}
	if !isSignup && identity == nil && !demo {
		return domain.ErrAccountNotFound
	}
	return nil
}

// consumeCode validates the submitted code against the stored record
// and marks it used, exactly once.
func (s *authService) consumeCode(ctx context.Context, canonical, submitted string) error {
	record, err := s.otpRepo.FindByPhone(ctx, canonical)
	if err != nil {
		return fmt.Errorf("failed to look up verification code: %w", err)
	}
	if record == nil {
		return domain.ErrOTPNotFound
	}
	if record.Verified {
		return domain.ErrOTPAlreadyUsed
	}
	if record.IsExpired() {
		return domain.ErrOTPExpired
	}
	if record.Attempts >= domain.MaxVerifyAttempts {
		return domain.ErrTooManyAttempts
	}

	if err := bcrypt.CompareHashAndPassword([]byte(record.CodeHash), []byte(submitted)); err != nil {
		if err := s.otpRepo.IncrementAttempts(ctx, record.ID); err != nil {
			logger.WarnContext(ctx, "Failed to record verification attempt", "error", err)
		}
		return domain.ErrOTPMismatch
	}

	consumed, err := s.otpRepo.Consume(ctx, record.ID)
	if err != nil {
		return fmt.Errorf("failed to consume verification code: %w", err)
	}
	if !consumed {
		// Lost the race with a concurrent verify, or expired in between.
		return domain.ErrOTPAlreadyUsed
	}
	return nil
}

// resolveIdentity fetches or creates the identity for a verified phone.
func (s *authService) resolveIdentity(ctx context.Context, canonical string, isSignup, demo bool) (*domain.Identity, bool, error) {
	identity, err := s.identityRepo.FindByPhone(ctx, canonical)
	if err != nil {
		return nil, false, fmt.Errorf("failed to find account: %w", err)
	}

	if identity != nil {
		if isSignup {
			// Created concurrently between send and verify.
			return nil, false, domain.ErrAccountExists
		}
		return identity, false, nil
	}

	if !isSignup && !demo {
		return nil, false, domain.ErrAccountNotFound
	}

	name := domain.DefaultDisplayName(canonical)
	identity, err = s.identityRepo.Create(ctx, canonical, name, name)
	if err != nil {
		if errors.Is(err, domain.ErrAccountExists) && !isSignup {
			// Demo login raced a concurrent signup; use the winner's row.
			if existing, findErr := s.identityRepo.FindByPhone(ctx, canonical); findErr == nil && existing != nil {
				return existing, false, nil
			}
		}
		if errors.Is(err, domain.ErrAccountExists) {
			return nil, false, err
		}
		return nil, false, fmt.Errorf("failed to create account: %w", err)
	}

	return identity, true, nil
}

func (s *authService) publish(ctx context.Context, subject string, payload interface{}) {
	if err := s.eventBus.Publish(ctx, subject, payload); err != nil {
		logger.WarnContext(ctx, "Failed to publish event", "subject", subject, "error", err)
	}
}

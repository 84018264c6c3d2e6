package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/heylo/heylo-auth/internal/domain"
	"github.com/heylo/heylo-auth/internal/provider"
	"github.com/heylo/heylo-auth/internal/service"
	"github.com/heylo/heylo-auth/pkg/auth"
	"github.com/heylo/heylo-auth/pkg/config"
	"github.com/heylo/heylo-auth/pkg/phone"
)

// ---------- Mocks ----------

type mockOTPRepo struct {
	records    map[string]*domain.OTPCode
	nextID     int64
	replaceErr error
}

func newMockOTPRepo() *mockOTPRepo {
	return &mockOTPRepo{records: make(map[string]*domain.OTPCode)}
}

func (m *mockOTPRepo) Replace(_ context.Context, phoneNumber, codeHash string, expiresAt time.Time) error {
	if m.replaceErr != nil {
		return m.replaceErr
	}
	m.nextID++
	m.records[phoneNumber] = &domain.OTPCode{
		ID:        m.nextID,
		Phone:     phoneNumber,
		CodeHash:  codeHash,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	return nil
}

func (m *mockOTPRepo) FindByPhone(_ context.Context, phoneNumber string) (*domain.OTPCode, error) {
	return m.records[phoneNumber], nil
}

func (m *mockOTPRepo) Consume(_ context.Context, id int64) (bool, error) {
	for _, rec := range m.records {
		if rec.ID == id {
			if rec.Verified || rec.IsExpired() {
				return false, nil
			}
			rec.Verified = true
			return true, nil
		}
	}
	return false, nil
}

func (m *mockOTPRepo) IncrementAttempts(_ context.Context, id int64) error {
	for _, rec := range m.records {
		if rec.ID == id {
			rec.Attempts++
		}
	}
	return nil
}

func (m *mockOTPRepo) DeleteExpired(_ context.Context) (int64, error) {
	var deleted int64
	for key, rec := range m.records {
		if rec.IsExpired() {
			delete(m.records, key)
			deleted++
		}
	}
	return deleted, nil
}

type mockIdentityRepo struct {
	byPhone   map[string]*domain.Identity
	createErr error
}

func newMockIdentityRepo() *mockIdentityRepo {
	return &mockIdentityRepo{byPhone: make(map[string]*domain.Identity)}
}

func (m *mockIdentityRepo) Create(_ context.Context, phoneNumber, displayName, fullName string) (*domain.Identity, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	if _, ok := m.byPhone[phoneNumber]; ok {
		return nil, domain.ErrAccountExists
	}
	identity := &domain.Identity{
		ID:          uuid.New(),
		Phone:       phoneNumber,
		DisplayName: displayName,
		FullName:    fullName,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	m.byPhone[phoneNumber] = identity
	return identity, nil
}

func (m *mockIdentityRepo) FindByPhone(_ context.Context, phoneNumber string) (*domain.Identity, error) {
	return m.byPhone[phoneNumber], nil
}

func (m *mockIdentityRepo) FindByID(_ context.Context, id uuid.UUID) (*domain.Identity, error) {
	for _, identity := range m.byPhone {
		if identity.ID == id {
			return identity, nil
		}
	}
	return nil, nil
}

type sentSMS struct {
	to   string
	code string
}

type mockSender struct {
	sent    []sentSMS
	sendErr error
}

func (m *mockSender) SendVerificationCode(_ context.Context, toPhone, code string) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, sentSMS{to: toPhone, code: code})
	return nil
}

type mockSessions struct {
	session   *provider.BackingSession
	createErr error
	calls     int
}

func (m *mockSessions) CreateSession(_ context.Context, _ *domain.Identity) (*provider.BackingSession, error) {
	m.calls++
	if m.createErr != nil {
		return nil, m.createErr
	}
	return m.session, nil
}

type mockBus struct {
	subjects []string
}

func (m *mockBus) Publish(_ context.Context, subject string, _ interface{}) error {
	m.subjects = append(m.subjects, subject)
	return nil
}

func (m *mockBus) Close() error { return nil }

// ---------- Fixture ----------

const (
	testPhone     = "+15551230000"
	demoPhone     = "+15555550100"
	demoCode      = "123456"
	existingPhone = "+15559990000"
)

type fixture struct {
	otpRepo      *mockOTPRepo
	identityRepo *mockIdentityRepo
	sender       *mockSender
	sessions     *mockSessions
	bus          *mockBus
	svc          service.AuthService
	cfg          *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:          "test-secret",
			SessionTTL:         24 * time.Hour,
			OTPTTL:             5 * time.Minute,
			DefaultCountryCode: "+1",
			DemoPhone:          demoPhone,
			DemoCode:           demoCode,
		},
	}

	f := &fixture{
		otpRepo:      newMockOTPRepo(),
		identityRepo: newMockIdentityRepo(),
		sender:       &mockSender{},
		sessions:     &mockSessions{createErr: provider.ErrDisabled},
		bus:          &mockBus{},
		cfg:          cfg,
	}
	f.svc = service.NewAuthService(f.otpRepo, f.identityRepo, f.sender, f.sessions, f.bus, cfg)
	return f
}

func (f *fixture) seedIdentity(t *testing.T, phoneNumber string) *domain.Identity {
	t.Helper()
	identity, err := f.identityRepo.Create(context.Background(), phoneNumber, "Existing User", "Existing User")
	if err != nil {
		t.Fatalf("failed to seed identity: %v", err)
	}
	return identity
}

func (f *fixture) lastSentCode(t *testing.T) string {
	t.Helper()
	if len(f.sender.sent) == 0 {
		t.Fatal("no SMS was sent")
	}
	return f.sender.sent[len(f.sender.sent)-1].code
}

// ---------- Send OTP ----------

func TestSendOTPSignupStoresCodeAndSendsSMS(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.SendOTP(context.Background(), &domain.SendOTPRequest{Phone: testPhone, IsSignup: true})
	if err != nil {
		t.Fatalf("SendOTP returned error: %v", err)
	}
	if result.Demo {
		t.Error("regular number reported as demo")
	}

	if len(f.sender.sent) != 1 {
		t.Fatalf("sent %d SMS, want 1", len(f.sender.sent))
	}
	if f.sender.sent[0].to != testPhone {
		t.Errorf("SMS sent to %q, want %q", f.sender.sent[0].to, testPhone)
	}
	if code := f.sender.sent[0].code; len(code) != domain.OTPLength {
		t.Errorf("code %q is not %d digits", code, domain.OTPLength)
	}

	if f.otpRepo.records[testPhone] == nil {
		t.Error("no OTP record stored")
	}
}

func TestSendOTPNormalizesPhoneVariants(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.SendOTP(context.Background(), &domain.SendOTPRequest{Phone: "(555) 123-0000", IsSignup: true}); err != nil {
		t.Fatalf("SendOTP returned error: %v", err)
	}

	if f.otpRepo.records[testPhone] == nil {
		t.Errorf("OTP record not stored under canonical phone %q", testPhone)
	}
}

func TestSendOTPInvalidPhone(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SendOTP(context.Background(), &domain.SendOTPRequest{Phone: "junk", IsSignup: true})
	if !errors.Is(err, phone.ErrInvalidFormat) {
		t.Errorf("error = %v, want ErrInvalidFormat", err)
	}
}

func TestSendOTPLoginWithoutAccount(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SendOTP(context.Background(), &domain.SendOTPRequest{Phone: testPhone, IsSignup: false})
	if !errors.Is(err, domain.ErrAccountNotFound) {
		t.Errorf("error = %v, want ErrAccountNotFound", err)
	}
	if len(f.sender.sent) != 0 {
		t.Error("SMS sent despite failed eligibility check")
	}
}

func TestSendOTPSignupWithExistingAccount(t *testing.T) {
	f := newFixture(t)
	f.seedIdentity(t, existingPhone)

	_, err := f.svc.SendOTP(context.Background(), &domain.SendOTPRequest{Phone: existingPhone, IsSignup: true})
	if !errors.Is(err, domain.ErrAccountExists) {
		t.Errorf("error = %v, want ErrAccountExists", err)
	}
}

func TestSendOTPDemoBypassesSMS(t *testing.T) {
	f := newFixture(t)

	// Works for login even without a seeded account, repeatedly.
	for i := 0; i < 2; i++ {
		result, err := f.svc.SendOTP(context.Background(), &domain.SendOTPRequest{Phone: demoPhone, IsSignup: false})
		if err != nil {
			t.Fatalf("SendOTP demo attempt %d returned error: %v", i, err)
		}
		if !result.Demo {
			t.Error("demo number not flagged as demo")
		}
	}

	if len(f.sender.sent) != 0 {
		t.Errorf("demo number triggered %d SMS sends", len(f.sender.sent))
	}
}

func TestSendOTPReplacesPriorCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.SendOTP(ctx, &domain.SendOTPRequest{Phone: testPhone, IsSignup: true}); err != nil {
		t.Fatalf("first SendOTP returned error: %v", err)
	}
	code1 := f.lastSentCode(t)

	if _, err := f.svc.SendOTP(ctx, &domain.SendOTPRequest{Phone: testPhone, IsSignup: true}); err != nil {
		t.Fatalf("second SendOTP returned error: %v", err)
	}
	code2 := f.lastSentCode(t)

	if code1 == code2 {
		t.Skip("codes collided; re-run")
	}

	_, err := f.svc.VerifyOTP(ctx, &domain.VerifyOTPRequest{Phone: testPhone, OTP: code1, IsSignup: true})
	if !errors.Is(err, domain.ErrOTPMismatch) {
		t.Errorf("verifying superseded code: error = %v, want ErrOTPMismatch", err)
	}

	if _, err := f.svc.VerifyOTP(ctx, &domain.VerifyOTPRequest{Phone: testPhone, OTP: code2, IsSignup: true}); err != nil {
		t.Errorf("verifying current code failed: %v", err)
	}
}

func TestSendOTPSMSFailure(t *testing.T) {
	f := newFixture(t)
	f.sender.sendErr = fmt.Errorf("gateway unreachable")

	_, err := f.svc.SendOTP(context.Background(), &domain.SendOTPRequest{Phone: testPhone, IsSignup: true})
	if err == nil {
		t.Fatal("SendOTP succeeded despite SMS failure")
	}
}

// ---------- Verify OTP ----------

func TestVerifyOTPHappyPathSignup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.SendOTP(ctx, &domain.SendOTPRequest{Phone: testPhone, IsSignup: true}); err != nil {
		t.Fatalf("SendOTP returned error: %v", err)
	}
	code := f.lastSentCode(t)

	result, err := f.svc.VerifyOTP(ctx, &domain.VerifyOTPRequest{Phone: testPhone, OTP: code, IsSignup: true})
	if err != nil {
		t.Fatalf("VerifyOTP returned error: %v", err)
	}
	if !result.NewAccount {
		t.Error("signup verify did not create a new account")
	}
	if result.Identity.Phone != testPhone {
		t.Errorf("identity phone = %q, want %q", result.Identity.Phone, testPhone)
	}
	if want := "User 0000"; result.Identity.DisplayName != want {
		t.Errorf("display name = %q, want %q", result.Identity.DisplayName, want)
	}

	// The issued session must validate and resolve the same identity.
	validated, err := f.svc.ValidateSession(ctx, result.Session.Token)
	if err != nil {
		t.Fatalf("ValidateSession returned error: %v", err)
	}
	if validated.ID != result.Identity.ID {
		t.Errorf("validated identity %s, want %s", validated.ID, result.Identity.ID)
	}
}

func TestVerifyOTPHappyPathLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	existing := f.seedIdentity(t, testPhone)

	if _, err := f.svc.SendOTP(ctx, &domain.SendOTPRequest{Phone: testPhone, IsSignup: false}); err != nil {
		t.Fatalf("SendOTP returned error: %v", err)
	}
	code := f.lastSentCode(t)

	// Resubmit under a different formatting variant.
	result, err := f.svc.VerifyOTP(ctx, &domain.VerifyOTPRequest{Phone: "(555) 123-0000", OTP: code, IsSignup: false})
	if err != nil {
		t.Fatalf("VerifyOTP returned error: %v", err)
	}
	if result.NewAccount {
		t.Error("login verify reported a new account")
	}
	if result.Identity.ID != existing.ID {
		t.Errorf("login returned identity %s, want %s", result.Identity.ID, existing.ID)
	}
}

func TestVerifyOTPNoRecord(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.VerifyOTP(context.Background(), &domain.VerifyOTPRequest{Phone: testPhone, OTP: "000000", IsSignup: true})
	if !errors.Is(err, domain.ErrOTPNotFound) {
		t.Errorf("error = %v, want ErrOTPNotFound", err)
	}
}

func TestVerifyOTPExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.SendOTP(ctx, &domain.SendOTPRequest{Phone: testPhone, IsSignup: true}); err != nil {
		t.Fatalf("SendOTP returned error: %v", err)
	}
	code := f.lastSentCode(t)
	f.otpRepo.records[testPhone].ExpiresAt = time.Now().Add(-time.Second)

	_, err := f.svc.VerifyOTP(ctx, &domain.VerifyOTPRequest{Phone: testPhone, OTP: code, IsSignup: true})
	if !errors.Is(err, domain.ErrOTPExpired) {
		t.Errorf("error = %v, want ErrOTPExpired", err)
	}
}

func TestVerifyOTPSingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.SendOTP(ctx, &domain.SendOTPRequest{Phone: testPhone, IsSignup: true}); err != nil {
		t.Fatalf("SendOTP returned error: %v", err)
	}
	code := f.lastSentCode(t)

	if _, err := f.svc.VerifyOTP(ctx, &domain.VerifyOTPRequest{Phone: testPhone, OTP: code, IsSignup: true}); err != nil {
		t.Fatalf("first VerifyOTP returned error: %v", err)
	}

	_, err := f.svc.VerifyOTP(ctx, &domain.VerifyOTPRequest{Phone: testPhone, OTP: code, IsSignup: false})
	if !errors.Is(err, domain.ErrOTPAlreadyUsed) {
		t.Errorf("second verify: error = %v, want ErrOTPAlreadyUsed", err)
	}
}

func TestVerifyOTPWrongCodeCountsAttempts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.SendOTP(ctx, &domain.SendOTPRequest{Phone: testPhone, IsSignup: true}); err != nil {
		t.Fatalf("SendOTP returned error: %v", err)
	}
	code := f.lastSentCode(t)

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	for i := 0; i < domain.MaxVerifyAttempts; i++ {
		_, err := f.svc.VerifyOTP(ctx, &domain.VerifyOTPRequest{Phone: testPhone, OTP: wrong, IsSignup: true})
		if !errors.Is(err, domain.ErrOTPMismatch) {
			t.Fatalf("attempt %d: error = %v, want ErrOTPMismatch", i, err)
		}
	}

	// Even the right code is rejected once the attempt budget is spent.
	_, err := f.svc.VerifyOTP(ctx, &domain.VerifyOTPRequest{Phone: testPhone, OTP: code, IsSignup: true})
	if !errors.Is(err, domain.ErrTooManyAttempts) {
		t.Errorf("error = %v, want ErrTooManyAttempts", err)
	}
}

func TestVerifyOTPSignupRacedByConcurrentSignup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.SendOTP(ctx, &domain.SendOTPRequest{Phone: testPhone, IsSignup: true}); err != nil {
		t.Fatalf("SendOTP returned error: %v", err)
	}
	code := f.lastSentCode(t)

	// Another request created the account between send and verify.
	f.seedIdentity(t, testPhone)

	_, err := f.svc.VerifyOTP(ctx, &domain.VerifyOTPRequest{Phone: testPhone, OTP: code, IsSignup: true})
	if !errors.Is(err, domain.ErrAccountExists) {
		t.Errorf("error = %v, want ErrAccountExists", err)
	}
}

func TestVerifyOTPDemoLoginCreatesIdentityOnDemand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.SendOTP(ctx, &domain.SendOTPRequest{Phone: demoPhone, IsSignup: false}); err != nil {
		t.Fatalf("SendOTP returned error: %v", err)
	}

	result, err := f.svc.VerifyOTP(ctx, &domain.VerifyOTPRequest{Phone: demoPhone, OTP: demoCode, IsSignup: false})
	if err != nil {
		t.Fatalf("VerifyOTP returned error: %v", err)
	}
	if result.Identity.Phone != demoPhone {
		t.Errorf("identity phone = %q, want %q", result.Identity.Phone, demoPhone)
	}
}

func TestVerifyOTPProviderFailureTolerated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sessions.createErr = fmt.Errorf("provider down")

	if _, err := f.svc.SendOTP(ctx, &domain.SendOTPRequest{Phone: testPhone, IsSignup: true}); err != nil {
		t.Fatalf("SendOTP returned error: %v", err)
	}
	code := f.lastSentCode(t)

	result, err := f.svc.VerifyOTP(ctx, &domain.VerifyOTPRequest{Phone: testPhone, OTP: code, IsSignup: true})
	if err != nil {
		t.Fatalf("VerifyOTP failed because of provider error: %v", err)
	}
	if f.sessions.calls != 1 {
		t.Errorf("provider called %d times, want 1", f.sessions.calls)
	}
	if result.ProviderSession != "" {
		t.Errorf("provider session = %q, want empty", result.ProviderSession)
	}
	if result.Session == nil || result.Session.Token == "" {
		t.Error("bearer token missing despite being authoritative")
	}
}

func TestVerifyOTPProviderSessionAttached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sessions.createErr = nil
	f.sessions.session = &provider.BackingSession{
		AccessToken: "provider-token",
		ExpiresAt:   time.Now().Add(time.Hour),
	}

	if _, err := f.svc.SendOTP(ctx, &domain.SendOTPRequest{Phone: testPhone, IsSignup: true}); err != nil {
		t.Fatalf("SendOTP returned error: %v", err)
	}
	code := f.lastSentCode(t)

	result, err := f.svc.VerifyOTP(ctx, &domain.VerifyOTPRequest{Phone: testPhone, OTP: code, IsSignup: true})
	if err != nil {
		t.Fatalf("VerifyOTP returned error: %v", err)
	}
	if result.ProviderSession != "provider-token" {
		t.Errorf("provider session = %q, want %q", result.ProviderSession, "provider-token")
	}
}

// ---------- Validate session ----------

func TestValidateSessionExpiredToken(t *testing.T) {
	f := newFixture(t)
	identity := f.seedIdentity(t, testPhone)

	token, _, err := auth.NewSessionToken(identity.ID.String(), testPhone, f.cfg.Auth.JWTSecret, -time.Second)
	if err != nil {
		t.Fatalf("NewSessionToken returned error: %v", err)
	}

	_, err = f.svc.ValidateSession(context.Background(), token)
	if !errors.Is(err, auth.ErrExpired) {
		t.Errorf("error = %v, want ErrExpired", err)
	}
}

func TestValidateSessionMalformedToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ValidateSession(context.Background(), "not-a-token")
	if !errors.Is(err, auth.ErrMalformed) {
		t.Errorf("error = %v, want ErrMalformed", err)
	}
}

func TestValidateSessionIdentityGone(t *testing.T) {
	f := newFixture(t)

	token, _, err := auth.NewSessionToken(uuid.NewString(), testPhone, f.cfg.Auth.JWTSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewSessionToken returned error: %v", err)
	}

	_, err = f.svc.ValidateSession(context.Background(), token)
	if !errors.Is(err, domain.ErrIdentityNotFound) {
		t.Errorf("error = %v, want ErrIdentityNotFound", err)
	}
}

package domain

import "time"

const (
	OTPLength         = 6
	MaxVerifyAttempts = 5
)

// OTPCode is a single-use verification code for one phone number. The
// code itself is stored as a bcrypt hash; a unique constraint on phone
// guarantees at most one live code per number.
type OTPCode struct {
	ID        int64     `json:"id"`
	Phone     string    `json:"phone"`
	CodeHash  string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	Verified  bool      `json:"verified"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
}

func (o *OTPCode) IsExpired() bool {
	return time.Now().After(o.ExpiresAt)
}

func (o *OTPCode) CanAttempt() bool {
	return o.Attempts < MaxVerifyAttempts && !o.IsExpired() && !o.Verified
}

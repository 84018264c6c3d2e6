package sms

import "context"

// Sender delivers a verification code to a phone number.
type Sender interface {
	SendVerificationCode(ctx context.Context, toPhone, code string) error
}

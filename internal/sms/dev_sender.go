package sms

import (
	"context"

	"github.com/heylo/heylo-auth/pkg/logger"
	"github.com/heylo/heylo-auth/pkg/phone"
)

// DevSender logs codes instead of sending them. Used in local
// development and tests where no gateway is configured.
type DevSender struct{}

func NewDevSender() *DevSender {
	return &DevSender{}
}

func (s *DevSender) SendVerificationCode(ctx context.Context, toPhone, code string) error {
	logger.InfoContext(ctx, "DEV SMS (not sent)",
		"to", phone.Mask(toPhone),
		"code", code,
	)
	return nil
}

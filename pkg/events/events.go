package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/heylo/heylo-auth/pkg/logger"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject)

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Close() error {
	n.conn.Close()
	return nil
}

// Auth event subjects
const (
	OTPSent        = "auth.otp.sent"
	UserRegistered = "auth.user.registered"
	UserLoggedIn   = "auth.user.login"
)

// Event payloads. Phone numbers are masked before publishing.
type OTPSentEvent struct {
	Phone    string    `json:"phone"`
	IsSignup bool      `json:"is_signup"`
	Demo     bool      `json:"demo"`
	SentAt   time.Time `json:"sent_at"`
}

type UserRegisteredEvent struct {
	UserID       string    `json:"user_id"`
	Phone        string    `json:"phone"`
	RegisteredAt time.Time `json:"registered_at"`
}

type UserLoggedInEvent struct {
	UserID     string    `json:"user_id"`
	LoggedInAt time.Time `json:"logged_in_at"`
}

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/heylo/heylo-auth/internal/domain"
	"github.com/heylo/heylo-auth/pkg/config"
)

// HTTPSessions talks to the provider's admin API with the service key.
type HTTPSessions struct {
	cfg    config.ProviderConfig
	client *http.Client
}

func NewHTTPSessions(cfg config.ProviderConfig) *HTTPSessions {
	return &HTTPSessions{
		cfg: cfg,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type createSessionRequest struct {
	UserID string `json:"user_id"`
	Phone  string `json:"phone"`
}

type createSessionResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (p *HTTPSessions) CreateSession(ctx context.Context, identity *domain.Identity) (*BackingSession, error) {
	payload, err := json.Marshal(createSessionRequest{
		UserID: identity.ID.String(),
		Phone:  identity.Phone,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal provider session request: %w", err)
	}

	url := strings.TrimRight(p.cfg.URL, "/") + "/admin/sessions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build provider session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.ServiceKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider session request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(detail))
	}

	var out createSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode provider session response: %w", err)
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("provider returned empty access token")
	}

	return &BackingSession{
		AccessToken: out.AccessToken,
		ExpiresAt:   time.Now().Add(time.Duration(out.ExpiresIn) * time.Second),
	}, nil
}

package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/heylo/heylo-auth/pkg/phone"
)

// Identity is the persisted user record, keyed by canonical phone
// number. At most one identity exists per phone.
type Identity struct {
	ID          uuid.UUID `json:"id"`
	Phone       string    `json:"phone"`
	DisplayName string    `json:"display_name"`
	FullName    string    `json:"full_name"`
	Email       string    `json:"email"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UserInfo is the client-facing projection of an Identity.
type UserInfo struct {
	ID    string `json:"id"`
	Phone string `json:"phone"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (i *Identity) ToUserInfo() *UserInfo {
	return &UserInfo{
		ID:    i.ID.String(),
		Phone: i.Phone,
		Name:  i.DisplayName,
		Email: i.Email,
	}
}

// DefaultDisplayName derives the signup default from the last four
// digits of the canonical phone number.
func DefaultDisplayName(canonicalPhone string) string {
	return fmt.Sprintf("User %s", phone.Last4(canonicalPhone))
}

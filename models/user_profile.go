package models

import (
	"time"
)

// UserProfile is the local profile row every team row hangs off.
// ID is the identity provider's user id (forwarded by the gateway as X-User-ID).
type UserProfile struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Email     string    `json:"email,omitempty"`
	Username  string    `gorm:"index;not null" json:"username"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (UserProfile) TableName() string {
	return "user_profiles"
}

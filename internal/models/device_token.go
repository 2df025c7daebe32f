package models

import (
	"encoding/base64"
	"time"
)

// DeviceToken is one push-capable browser registration. A user may hold
// several, one per device, capped by the registry.
type DeviceToken struct {
	Token     string    `json:"token"`
	DeviceID  string    `json:"deviceId"`
	Origin    string    `json:"origin"`
	UpdatedAt time.Time `json:"updatedAt"`
	UserAgent string    `json:"userAgent,omitempty"`
}

// TokenKey derives the storage key for a token value: a deterministic
// URL-safe encoding of the token bytes, collision-free for distinct tokens.
func TokenKey(token string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(token))
}

// TokenPath addresses one registry entry: tokens/{userID}/{key}.
type TokenPath struct {
	UserID string
	Key    string
}

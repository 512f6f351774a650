package models

import "time"

// RateLimitRecord is one sliding-window counter row, keyed by identity hash.
type RateLimitRecord struct {
	IdentityHash string    `json:"identity_hash" db:"identity_hash"`
	Count        int       `json:"count" db:"count"`
	WindowStart  time.Time `json:"window_start" db:"window_start"`
	ExpiresAt    time.Time `json:"expires_at" db:"expires_at"`
}

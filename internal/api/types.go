package api

import (
	"errors"
	"time"
)

// ErrSessionStartLimitExhausted means no identify may be sent until the
// limit resets.
var ErrSessionStartLimitExhausted = errors.New("session start limit exhausted")

// Gateway is the response of GET /gateway.
type Gateway struct {
	URL string `json:"url"`
}

// GatewayBot is the response of GET /gateway/bot.
type GatewayBot struct {
	URL               string            `json:"url"`
	Shards            int               `json:"shards"`
	SessionStartLimit SessionStartLimit `json:"session_start_limit"`
}

// SessionStartLimit is the identify budget of the bot.
type SessionStartLimit struct {
	Total          int `json:"total"`
	Remaining      int `json:"remaining"`
	ResetAfter     int `json:"reset_after"` // Milliseconds
	MaxConcurrency int `json:"max_concurrency"`
}

// ResetIn returns ResetAfter as a duration.
func (l SessionStartLimit) ResetIn() time.Duration {
	return time.Duration(l.ResetAfter) * time.Millisecond
}

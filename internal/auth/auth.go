// Package auth loads the bot token used for discovery and identify.
package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNoToken is returned when neither a token nor a token file is configured.
var ErrNoToken = errors.New("bot token is required")

// Scheme is the Authorization scheme for bot tokens.
const Scheme = "Bot"

// Credentials holds the bot token.
type Credentials struct {
	Token string // Raw token, without the scheme prefix
}

// LoadCredentials returns credentials from a literal token, or from the
// file at tokenPath when the literal is empty.
func LoadCredentials(token, tokenPath string) (*Credentials, error) {
	token = normalize(token)
	if token != "" {
		return &Credentials{Token: token}, nil
	}
	if tokenPath == "" {
		return nil, ErrNoToken
	}

	token, err := LoadToken(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	return &Credentials{Token: token}, nil
}

// LoadToken reads a token from a file. Surrounding whitespace and a
// leading "Bot " prefix are stripped.
func LoadToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}

	token := normalize(string(data))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", path)
	}
	return token, nil
}

// Header returns the Authorization header value.
func (c *Credentials) Header() string {
	return Header(c.Token)
}

// Redacted returns the token with all but its last four characters masked.
func (c *Credentials) Redacted() string {
	if len(c.Token) <= 4 {
		return strings.Repeat("*", len(c.Token))
	}
	return strings.Repeat("*", len(c.Token)-4) + c.Token[len(c.Token)-4:]
}

// Header returns the Authorization header value for token.
func Header(token string) string {
	if token == "" {
		return ""
	}
	return Scheme + " " + normalize(token)
}

func normalize(token string) string {
	token = strings.TrimSpace(token)
	token = strings.TrimPrefix(token, Scheme+" ")
	return strings.TrimSpace(token)
}

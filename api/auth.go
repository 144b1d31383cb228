package api

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"os"
	"sync"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// Authentication errors
var (
	ErrAuthRequired      = errors.New("authentication required")
	ErrAuthFailed        = errors.New("authentication failed")
	ErrAuthTokenInvalid  = errors.New("invalid auth message")
	ErrAuthTokenMismatch = errors.New("auth token mismatch")
)

// AuthTokenEnv overrides the configured token when set.
const AuthTokenEnv = "ARROWROW_AUTH_TOKEN"

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Token   string `yaml:"token" toml:"token"`
}

// Authenticator validates the handshake of ingest connections.
type Authenticator struct {
	config AuthConfig
	mu     sync.RWMutex
}

func NewAuthenticator(config AuthConfig) *Authenticator {
	return &Authenticator{config: config}
}

// NewAuthenticatorFromEnv applies ARROWROW_AUTH_TOKEN on top of config. If auth
// is enabled and no token is configured anywhere, a random token is generated.
func NewAuthenticatorFromEnv(config AuthConfig) *Authenticator {
	if token := os.Getenv(AuthTokenEnv); token != "" {
		config.Token = token
	}
	if config.Enabled && config.Token == "" {
		config.Token = GenerateToken()
		logger.Warn("auth enabled without token, generated a random one")
	}
	return NewAuthenticator(config)
}

func (a *Authenticator) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.config.Enabled
}

// GetToken returns the current auth token.
func (a *Authenticator) GetToken() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.config.Token
}

// ValidateToken checks providedToken in constant time.
func (a *Authenticator) ValidateToken(providedToken string) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.config.Enabled {
		return nil
	}

	if providedToken == "" {
		return ErrAuthRequired
	}

	if subtle.ConstantTimeCompare([]byte(a.config.Token), []byte(providedToken)) != 1 {
		return ErrAuthTokenMismatch
	}

	return nil
}

// ValidateMessage parses a handshake frame and validates its token.
func (a *Authenticator) ValidateMessage(frame []byte) error {
	var msg AuthMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		return errors.Wrap(ErrAuthTokenInvalid, err.Error())
	}
	if msg.Type != AuthMessageType {
		return errors.Wrapf(ErrAuthTokenInvalid, "unexpected message type %q", msg.Type)
	}
	return a.ValidateToken(msg.Token)
}

// GenerateToken generates a random 256-bit hex token.
func GenerateToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(errors.Wrap(err, "crypto/rand unavailable"))
	}
	return hex.EncodeToString(b)
}

const AuthMessageType = "auth"

// AuthMessage is the first frame a client sends when auth is enabled.
type AuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// NewAuthMessage encodes a handshake frame for token.
func NewAuthMessage(token string) ([]byte, error) {
	return json.Marshal(AuthMessage{Type: AuthMessageType, Token: token})
}

// AuthResponse is sent back to the client after the handshake.
type AuthResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

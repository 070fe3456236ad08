package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// Environment variables holding secrets. Secrets are never read from or
// written to the config file.
const (
	EnvWebhookSecret    = "WEBHOOK_SECRET"
	EnvDatabaseURL      = "WEBHOOK_DATABASE_URL"
	EnvForwardToken     = "FORWARD_TOKEN"
	EnvOperatorPassword = "OPERATOR_PASSWORD"
	EnvLiveKitAPIKey    = "LIVEKIT_API_KEY"
	EnvLiveKitAPISecret = "LIVEKIT_API_SECRET"
)

// Secret is a string type that masks its value when printed or logged.
// Use Value() to get the actual string value.
type Secret string

// String returns a masked value for logging safety.
func (s Secret) String() string {
	return "[REDACTED]"
}

// GoString returns a masked value for %#v formatting.
func (s Secret) GoString() string {
	return "[REDACTED]"
}

// MarshalText masks the value in JSON and other text encodings.
func (s Secret) MarshalText() ([]byte, error) {
	return []byte("[REDACTED]"), nil
}

// Value returns the actual secret value.
// Use this only when the actual value is needed (e.g., HTTP headers, HMAC keys).
func (s Secret) Value() string {
	return string(s)
}

// IsEmpty returns true if the secret is empty.
func (s Secret) IsEmpty() bool {
	return s == ""
}

// Secrets holds sensitive application configuration.
type Secrets struct {
	WebhookSecret    Secret
	DatabaseURL      Secret
	ForwardToken     Secret
	OperatorPassword Secret
	LiveKitAPIKey    Secret
	LiveKitAPISecret Secret
}

// SecretsFromEnv reads every secret from the environment. Surrounding
// whitespace is trimmed.
func SecretsFromEnv() Secrets {
	get := func(key string) Secret {
		return Secret(strings.TrimSpace(os.Getenv(key)))
	}
	return Secrets{
		WebhookSecret:    get(EnvWebhookSecret),
		DatabaseURL:      get(EnvDatabaseURL),
		ForwardToken:     get(EnvForwardToken),
		OperatorPassword: get(EnvOperatorPassword),
		LiveKitAPIKey:    get(EnvLiveKitAPIKey),
		LiveKitAPISecret: get(EnvLiveKitAPISecret),
	}
}

// GenerateSecret returns n random bytes hex-encoded, suitable for WEBHOOK_SECRET.
func GenerateSecret(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("generate secret: length must be positive")
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

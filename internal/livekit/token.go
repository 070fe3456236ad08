// Package livekit mints LiveKit access tokens for joining rooms.
package livekit

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL matches the LiveKit server SDK default.
const DefaultTTL = 6 * time.Hour

var (
	ErrMissingCredentials = errors.New("livekit: api key and secret are required")
	ErrMissingIdentity    = errors.New("livekit: identity is required")
)

// VideoGrant is the "video" claim of a LiveKit token.
type VideoGrant struct {
	RoomJoin     bool   `json:"roomJoin,omitempty"`
	Room         string `json:"room,omitempty"`
	CanPublish   *bool  `json:"canPublish,omitempty"`
	CanSubscribe *bool  `json:"canSubscribe,omitempty"`
}

// Claims is the JWT payload understood by LiveKit.
type Claims struct {
	jwt.RegisteredClaims
	Name  string      `json:"name,omitempty"`
	Video *VideoGrant `json:"video,omitempty"`
}

// TokenOptions describes the participant a token admits.
type TokenOptions struct {
	Identity     string
	Name         string // defaults to Identity
	Room         string
	CanPublish   bool
	CanSubscribe bool
	TTL          time.Duration // defaults to DefaultTTL
}

// NewToken signs an HS256 room-join token with the API key pair.
func NewToken(apiKey, apiSecret string, opts TokenOptions, now time.Time) (string, error) {
	if apiKey == "" || apiSecret == "" {
		return "", ErrMissingCredentials
	}
	if opts.Identity == "" {
		return "", ErrMissingIdentity
	}
	if opts.Name == "" {
		opts.Name = opts.Identity
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    apiKey,
			Subject:   opts.Identity,
			ID:        opts.Identity,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(opts.TTL)),
		},
		Name: opts.Name,
		Video: &VideoGrant{
			RoomJoin:     true,
			Room:         opts.Room,
			CanPublish:   &opts.CanPublish,
			CanSubscribe: &opts.CanSubscribe,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(apiSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies a token signed with apiSecret and returns its claims.
func ParseToken(token, apiSecret string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(apiSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	return claims, nil
}

package app

import (
	"context"

	"github.com/graaaaa/livekit-webhook-logger/internal/config"
)

// ConfigUsecase defines the configuration inspection use case.
type ConfigUsecase interface {
	// GetConfig returns the effective configuration without secret values.
	GetConfig(ctx context.Context) ConfigResponse
}

// ConfigResponse represents the effective configuration (excludes secret values).
type ConfigResponse struct {
	Host             string  `json:"host"`
	Port             int     `json:"port"`
	Store            string  `json:"store"`
	NATSEnabled      bool    `json:"nats_enabled"`
	ForwardEnabled   bool    `json:"forward_enabled"`
	ForwardBatchSec  int     `json:"forward_batch_sec"`
	ExportPath       string  `json:"export_path,omitempty"`
	ExportS3Bucket   string  `json:"export_s3_bucket,omitempty"`
	ExportInterval   string  `json:"export_interval,omitempty"`
	RateLimit        float64 `json:"rate_limit"`
	RateBurst        int     `json:"rate_burst"`
	OperatorAuth     bool    `json:"operator_auth"`
	SecretConfigured bool    `json:"webhook_secret_configured"`
	TokenConfigured  bool    `json:"forward_token_configured"`
}

// ConfigService implements ConfigUsecase over the configuration the
// server was started with.
type ConfigService struct {
	Config  config.Config
	Secrets config.Secrets
}

// GetConfig returns the current configuration.
func (s ConfigService) GetConfig(ctx context.Context) ConfigResponse {
	cfg := s.Config
	return ConfigResponse{
		Host:             cfg.Host,
		Port:             cfg.Port,
		Store:            cfg.Store,
		NATSEnabled:      cfg.NATSURL != "",
		ForwardEnabled:   cfg.ForwardURL != "",
		ForwardBatchSec:  cfg.ForwardBatchSec,
		ExportPath:       cfg.ExportPath,
		ExportS3Bucket:   cfg.ExportS3Bucket,
		ExportInterval:   cfg.ExportInterval,
		RateLimit:        cfg.RateLimit,
		RateBurst:        cfg.RateBurst,
		OperatorAuth:     cfg.OperatorUsername != "" && !s.Secrets.OperatorPassword.IsEmpty(),
		SecretConfigured: !s.Secrets.WebhookSecret.IsEmpty(),
		TokenConfigured:  !s.Secrets.ForwardToken.IsEmpty(),
	}
}

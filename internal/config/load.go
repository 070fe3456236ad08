package config

import (
	"fmt"

	"github.com/graaaaa/livekit-webhook-logger/internal/appinfo"
)

// LoadOptions selects the files Load reads. Empty paths use the defaults:
// config.json in the data directory and .env in the working directory.
type LoadOptions struct {
	ConfigPath string
	EnvPath    string
}

// Load builds the effective configuration: defaults, then the config file,
// then the .env file, then the environment.
func Load(opts LoadOptions) (Config, Secrets, error) {
	cfgPath := opts.ConfigPath
	if cfgPath == "" {
		p, err := ConfigPath()
		if err != nil {
			return DefaultConfig(), Secrets{}, err
		}
		cfgPath = p
	}
	envPath := opts.EnvPath
	if envPath == "" {
		envPath = appinfo.EnvFileName
	}

	cfg, err := LoadConfigFrom(cfgPath)
	if err != nil {
		return cfg, Secrets{}, err
	}
	if err := LoadDotenv(envPath); err != nil {
		return cfg, Secrets{}, fmt.Errorf("load env file: %w", err)
	}
	cfg = normalizeConfig(ApplyEnvOverrides(cfg))
	return cfg, SecretsFromEnv(), nil
}

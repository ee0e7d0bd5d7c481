// Package config provides configuration infrastructure and Fx modules.
package config

import (
	"os"

	"go.uber.org/fx"
)

// Module provides the configuration loaded from the supplied path, with
// environment overrides applied.
var Module = fx.Module("config",
	fx.Provide(LoadConfigWithEnv),
)

// LoadConfigWithEnv loads filePath and then applies RTC_TRANSLATE_*
// environment overrides.
func LoadConfigWithEnv(filePath string) (*Config, error) {
	cfg, err := LoadConfig(filePath)
	if err != nil {
		return nil, err
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	return cfg, nil
}

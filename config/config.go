// Copyright (c) 2025 PrepOrbit
//
// Licensed under GPL-2.0 with PrepOrbit Additional Terms.
// See LICENSE.md for details.
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// AppConfig carries everything the interview-api service needs at startup.
// Values come from an optional yaml file plus PREPORBIT_* environment
// overrides; environment wins.
type AppConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`

	// FeedbackBaseURL is the backend that receives the stabilized transcript
	// (POST /api/interviews/{id}/feedback).
	FeedbackBaseURL string `mapstructure:"feedback_base_url"`

	// GeneratorBaseURL is the question-generation backend contacted when a
	// session starts connecting.
	GeneratorBaseURL string `mapstructure:"generator_base_url"`

	// AuthToken is forwarded as a bearer token on outbound calls.
	AuthToken string `mapstructure:"auth_token"`

	// VoiceStreamURL, when set, is the websocket endpoint of the voice-call
	// service's event feed. Empty means events arrive via the webhook route
	// only.
	VoiceStreamURL string `mapstructure:"voice_stream_url"`

	SqlitePath string `mapstructure:"sqlite_path"`

	LogLevel string `mapstructure:"log_level"`
	LogPath  string `mapstructure:"log_path"`

	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoadConfig reads configuration from the given file (may be empty) and
// from the environment.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("PREPORBIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("sqlite_path", "voice-api.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("allowed_origins", []string{"*"})

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

package config

import (
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"

	apxerrors "github.com/metacogma/meetcapture/errors"
)

// DefaultConfig is merged in first, before any file or environment
// override, so a bare binary starts with workable settings.
var DefaultConfig = []byte(`
application: "meetcapture"

cors:
  allowed_origins:
  - "http://localhost"
  - "https://localhost"
  - "http://localhost:3000"

logger:
  level: "info"

listen: ":5000"

prefix: "/meetcapture"

recordings_root: "recordings"

ffmpeg_path: "ffmpeg"

default_bot_name: "Meeting Capture Bot"

max_concurrent_sessions: 10
`)

// EngineConfig is the process-wide configuration for the capture engine and
// its HTTP surface.
type EngineConfig struct {
	Application           string `koanf:"application" json:"application"`
	Logger                Logger `koanf:"logger" json:"logger"`
	Listen                string `koanf:"listen" json:"listen"`
	Prefix                string `koanf:"prefix" json:"prefix"`
	Hostname              string `koanf:"hostname" json:"hostname"`
	Cors                  CORS   `koanf:"cors" json:"cors"`

	RecordingsRoot        string `koanf:"recordings_root" json:"recordings_root"`
	FFmpegPath            string `koanf:"ffmpeg_path" json:"ffmpeg_path"`
	AudioDevice           string `koanf:"audio_device" json:"audio_device"`
	DefaultBotName        string `koanf:"default_bot_name" json:"default_bot_name"`
	MaxConcurrentSessions int    `koanf:"max_concurrent_sessions" json:"max_concurrent_sessions"`

	// OpenAIAPIKey, when set, is passed through to a future transcript
	// post-processing pass. Unused by the live-caption scraper itself.
	OpenAIAPIKey string `koanf:"openai_api_key" json:"-"`

	// S3Bucket/S3Region enable services/artifactstore's optional upload of
	// finished artifact bundles. Empty bucket disables upload entirely.
	S3Bucket string `koanf:"s3_bucket" json:"s3_bucket"`
	S3Region string `koanf:"s3_region" json:"s3_region"`
}

type CORS struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

type Logger struct {
	Level    string `koanf:"level"`
	HostName string `koanf:"host_name"`
}

// Load builds an EngineConfig by layering, in order: DefaultConfig, an
// optional YAML file at path (skipped if path is empty or absent), then
// process environment variables prefixed MEETCAPTURE_ (double underscore
// as the nested-key separator, e.g. MEETCAPTURE_CORS__ALLOWED_ORIGINS).
func Load(path string) (*EngineConfig, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider(DefaultConfig), yaml.Parser()); err != nil {
		return nil, apxerrors.E(apxerrors.ConfigurationError, err).WithMsg("parsing embedded default config")
	}

	if path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, apxerrors.E(apxerrors.ConfigurationError, err).WithMsg("parsing config file " + path)
			}
		}
	}

	envErr := k.Load(env.Provider("MEETCAPTURE_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "MEETCAPTURE_")), "__", ".")
	}), nil)
	if envErr != nil {
		return nil, apxerrors.E(apxerrors.ConfigurationError, envErr).WithMsg("loading environment overrides")
	}

	var cfg EngineConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, apxerrors.E(apxerrors.ConfigurationError, err).WithMsg("unmarshaling merged config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate fills in derived fields and checks required ones.
func (c *EngineConfig) Validate() error {
	ve := apxerrors.ValidationErrs()

	if c.Application == "" {
		c.Application = "meetcapture"
	}
	if c.Listen == "" {
		ve.Add("listen", "cannot be empty")
	}
	if c.Logger.Level == "" {
		ve.Add("logger.level", "cannot be empty")
	}
	if c.RecordingsRoot == "" {
		ve.Add("recordings_root", "cannot be empty")
	}
	if c.FFmpegPath == "" {
		c.FFmpegPath = "ffmpeg"
	}
	if c.DefaultBotName == "" {
		c.DefaultBotName = "Meeting Capture Bot"
	}
	if c.MaxConcurrentSessions <= 0 {
		c.MaxConcurrentSessions = 10
	}
	if c.Prefix == "" {
		ve.Add("prefix", "cannot be empty")
	}

	if host, err := os.Hostname(); err != nil {
		ve.Add("hostname", "invalid")
	} else {
		c.Logger.HostName = host
	}

	return ve.Err()
}

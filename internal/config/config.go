package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// BackendConfig stores the translation backend connection settings.
type BackendConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Token          string        `yaml:"token"`
	TokenFile      string        `yaml:"token_file"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	DevReset       bool          `yaml:"dev_reset"`
	AutoConnect    bool          `yaml:"auto_connect"`
}

// WebRTCConfig stores peer connection settings.
type WebRTCConfig struct {
	ICEServers          []string      `yaml:"ice_servers"`
	ICEGatheringTimeout time.Duration `yaml:"ice_gathering_timeout"`
	DataChannelLabel    string        `yaml:"data_channel_label"`
}

// CaptureConfig stores microphone capture settings.
type CaptureConfig struct {
	Command       string        `yaml:"command"`
	InputFormat   string        `yaml:"input_format"`
	InputDevice   string        `yaml:"input_device"`
	SampleRate    int           `yaml:"sample_rate"`
	Channels      int           `yaml:"channels"`
	FrameDuration time.Duration `yaml:"frame_duration"`
	RecordDir     string        `yaml:"record_dir"`
}

// PlaybackConfig stores remote audio playback and visualization settings.
type PlaybackConfig struct {
	Command      string `yaml:"command"`
	OutputFormat string `yaml:"output_format"`
	OutputDevice string `yaml:"output_device"`
	CaptureSize  int    `yaml:"capture_size"`
	RateHz       int    `yaml:"rate_hz"`
}

// EnvelopeConfig stores envelope extraction settings.
type EnvelopeConfig struct {
	QueueCapacity int     `yaml:"queue_capacity"`
	BlockCount    int     `yaml:"block_count"`
	OutputScale   float64 `yaml:"output_scale"`
}

// TurnConfig stores turn-taking settings.
type TurnConfig struct {
	SilenceDuration time.Duration `yaml:"silence_duration"`
	SilenceEpsilon  float64       `yaml:"silence_epsilon"`
	TopLanguage     string        `yaml:"top_language"`
	BottomLanguage  string        `yaml:"bottom_language"`
	HistorySize     int           `yaml:"history_size"`
	LanguageTimeout time.Duration `yaml:"language_timeout"`
}

// BridgeConfig stores the local presentation bridge settings.
type BridgeConfig struct {
	Address string `yaml:"address"`
}

// Config stores the application configuration.
type Config struct {
	LogLevel string         `yaml:"log_level"`
	Backend  BackendConfig  `yaml:"backend"`
	WebRTC   WebRTCConfig   `yaml:"webrtc"`
	Capture  CaptureConfig  `yaml:"capture"`
	Playback PlaybackConfig `yaml:"playback"`
	Envelope EnvelopeConfig `yaml:"envelope"`
	Turn     TurnConfig     `yaml:"turn"`
	Bridge   BridgeConfig   `yaml:"bridge"`
}

// opus only accepts these input rates.
var opusSampleRates = map[int]bool{8000: true, 12000: true, 16000: true, 24000: true, 48000: true}

// LoadConfig loads the configuration from the given file path.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	return Parse(data)
}

// Parse decodes YAML bytes, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()

	return cfg
}

// ApplyDefaults fills zero values with their defaults.
func (c *Config) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = "http://localhost:8000"
	}
	if c.Backend.RequestTimeout <= 0 {
		c.Backend.RequestTimeout = 10 * time.Second
	}

	if c.WebRTC.ICEGatheringTimeout <= 0 {
		c.WebRTC.ICEGatheringTimeout = 10 * time.Second
	}
	if c.WebRTC.DataChannelLabel == "" {
		c.WebRTC.DataChannelLabel = "text"
	}

	if c.Capture.Command == "" {
		c.Capture.Command = "ffmpeg"
	}
	if c.Capture.InputFormat == "" {
		c.Capture.InputFormat = "pulse"
	}
	if c.Capture.InputDevice == "" {
		c.Capture.InputDevice = "default"
	}
	if c.Capture.SampleRate <= 0 {
		c.Capture.SampleRate = 48000
	}
	if c.Capture.Channels <= 0 {
		c.Capture.Channels = 1
	}
	if c.Capture.FrameDuration <= 0 {
		c.Capture.FrameDuration = 20 * time.Millisecond
	}

	if c.Playback.Command == "" {
		c.Playback.Command = "ffmpeg"
	}
	if c.Playback.OutputFormat == "" {
		c.Playback.OutputFormat = "pulse"
	}
	if c.Playback.OutputDevice == "" {
		c.Playback.OutputDevice = "default"
	}
	if c.Playback.CaptureSize <= 0 {
		c.Playback.CaptureSize = 1024
	}
	if c.Playback.RateHz <= 0 {
		c.Playback.RateHz = 10
	}

	if c.Envelope.QueueCapacity <= 0 {
		c.Envelope.QueueCapacity = 50
	}
	if c.Envelope.BlockCount <= 0 {
		c.Envelope.BlockCount = 8
	}
	if c.Envelope.OutputScale <= 0 {
		c.Envelope.OutputScale = 0.5
	}

	if c.Turn.SilenceDuration <= 0 {
		c.Turn.SilenceDuration = 1500 * time.Millisecond
	}
	if c.Turn.SilenceEpsilon <= 0 {
		c.Turn.SilenceEpsilon = 1e-5
	}
	if c.Turn.TopLanguage == "" {
		c.Turn.TopLanguage = "en"
	}
	if c.Turn.BottomLanguage == "" {
		c.Turn.BottomLanguage = "ko"
	}
	if c.Turn.HistorySize <= 0 {
		c.Turn.HistorySize = 32
	}
	if c.Turn.LanguageTimeout <= 0 {
		c.Turn.LanguageTimeout = 5 * time.Second
	}

	if c.Bridge.Address == "" {
		c.Bridge.Address = "127.0.0.1:8765"
	}
}

// Environment variables that override file values.
const (
	EnvBaseURL       = "RTC_TRANSLATE_BASE_URL"
	EnvToken         = "RTC_TRANSLATE_TOKEN"
	EnvLogLevel      = "RTC_TRANSLATE_LOG_LEVEL"
	EnvBridgeAddress = "RTC_TRANSLATE_BRIDGE_ADDRESS"
)

// ApplyEnv overrides file values from the environment and revalidates. A
// token from the environment replaces any configured token file.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvBaseURL); ok && v != "" {
		c.Backend.BaseURL = v
	}
	if v, ok := lookup(EnvToken); ok && v != "" {
		c.Backend.Token = v
		c.Backend.TokenFile = ""
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := lookup(EnvBridgeAddress); ok && v != "" {
		c.Bridge.Address = v
	}

	return c.Validate()
}

// Validate reports configuration values the client cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if !opusSampleRates[c.Capture.SampleRate] {
		errs = append(errs, fmt.Errorf("capture.sample_rate %d is not an opus rate", c.Capture.SampleRate))
	}
	if c.Capture.Channels > 2 {
		errs = append(errs, fmt.Errorf("capture.channels must be 1 or 2, got %d", c.Capture.Channels))
	}
	switch c.Capture.FrameDuration {
	case 10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond, 60 * time.Millisecond:
	default:
		errs = append(errs, fmt.Errorf("capture.frame_duration %s is not an opus frame size", c.Capture.FrameDuration))
	}
	if c.Backend.Token != "" && c.Backend.TokenFile != "" {
		errs = append(errs, errors.New("backend.token and backend.token_file are mutually exclusive"))
	}
	if c.Turn.TopLanguage == c.Turn.BottomLanguage {
		errs = append(errs, fmt.Errorf("turn languages must differ, both are %q", c.Turn.TopLanguage))
	}

	return errors.Join(errs...)
}

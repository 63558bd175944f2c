package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the voice session client configuration. Values come from an
// optional YAML file, overridden by flags.
type Config struct {
	// Backend is the pipeline backend base URL.
	Backend string `yaml:"backend"`

	// ListenPath and HeartbeatPath are the WebSocket endpoint paths on the
	// backend.
	ListenPath    string `yaml:"listen_path"`
	HeartbeatPath string `yaml:"heartbeat_path"`

	// WakePhrase is the fallback recognizer's trigger phrase.
	WakePhrase string `yaml:"wake_phrase"`

	// MaxRecording caps one recording cycle.
	MaxRecording time.Duration `yaml:"max_recording"`

	// ErrorRecoveryDelay is the error state duration before auto recovery.
	ErrorRecoveryDelay time.Duration `yaml:"error_recovery_delay"`

	// VersionConstraint gates startup on backend version, e.g. ">= 1.0".
	VersionConstraint string `yaml:"version_constraint"`

	// CaptureCommand records microphone audio to stdout.
	CaptureCommand []string `yaml:"capture_command"`

	// PlayerCommand plays audio from stdin.
	PlayerCommand []string `yaml:"player_command"`

	// RecognizerCommand streams local transcripts, one per line. Optional;
	// without it the fallback tier is the manual trigger only.
	RecognizerCommand []string `yaml:"recognizer_command"`

	// RedisAddr enables Redis-backed transcript history. Empty keeps
	// history in memory.
	RedisAddr string `yaml:"redis_addr"`

	// MetricsAddr serves Prometheus metrics when set, e.g. ":9102".
	MetricsAddr string `yaml:"metrics_addr"`

	// OTLPEndpoint exports traces when set.
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func defaultConfig() Config {
	var cfg Config
	cfg.Backend = "http://localhost:8000"
	cfg.ListenPath = "/api/v1/ws/listen"
	cfg.HeartbeatPath = "/api/v1/ws/heartbeat"
	cfg.CaptureCommand = []string{"arecord", "-f", "S16_LE", "-r", "16000", "-c", "1", "-t", "wav", "-"}
	cfg.PlayerCommand = []string{"mpg123", "-q", "-"}
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	return cfg
}

// loadConfig reads the YAML file at path into the defaults. A missing path
// returns plain defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

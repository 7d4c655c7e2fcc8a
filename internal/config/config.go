package config

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/steveyiyo/livetutor/internal/core/live"
)

type Config struct {
	Port          string
	APIKey        string
	LiveModel     string
	LiveTransport string
	AudioBackend  string
	LogLevel      string
	LogFile       string
	SettingsFile  string
}

func Load() Config {
	return Config{
		Port:          getenv("PORT", "8080"),
		APIKey:        getenv("GEMINI_API_KEY", os.Getenv("API_KEY")),
		LiveModel:     getenv("LIVE_MODEL", live.DefaultModel),
		LiveTransport: getenv("LIVE_TRANSPORT", "sdk"),
		AudioBackend:  getenv("AUDIO_BACKEND", "null"),
		LogLevel:      getenv("LOG_LEVEL", "info"),
		LogFile:       getenv("LOG_FILE", ""),
		SettingsFile:  getenv("SETTINGS_FILE", ""),
	}
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

// LoadSettings reads default voice settings from a YAML file. Fields the
// file leaves out keep their defaults; a missing path yields the defaults.
func LoadSettings(path string) (live.Settings, error) {
	s := live.DefaultSettings()
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, err
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return s, ValidateSettings(s)
}

// SaveSettings writes s back as YAML.
func SaveSettings(path string, s live.Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func ValidateSettings(s live.Settings) error {
	if !slices.ContainsFunc(live.Voices, func(v live.Voice) bool { return v.Name == s.VoiceName }) {
		return fmt.Errorf("config: unknown voice %q", s.VoiceName)
	}
	switch s.SpeakingRate {
	case live.RateSlow, live.RateNormal, live.RateFast:
	default:
		return fmt.Errorf("config: unknown speaking rate %q", s.SpeakingRate)
	}
	if s.DeviceID == "" {
		return errors.New("config: empty device id")
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the namespace prefix for all LinguaLive environment variables.
const EnvPrefix = "LINGUALIVE_"

// Config holds all application configuration. Secrets (API keys) are loaded
// exclusively from environment variables and never appear in the config file.
type Config struct {
	ListenAddr       string  `yaml:"listen_addr"`
	DBPath           string  `yaml:"db_path"`
	PreviewDir       string  `yaml:"preview_dir"`
	TokenEndpoint    string  `yaml:"token_endpoint"`
	LiveModel        string  `yaml:"live_model"`
	LiveBaseURL      string  `yaml:"live_base_url"`
	MicSampleRate    int     `yaml:"mic_sample_rate"`
	MicSampleRates   []int   `yaml:"mic_sample_rates"`
	BargeInThreshold float64 `yaml:"barge_in_threshold"`
	BargeInCooldown  string  `yaml:"barge_in_cooldown"`

	// Secrets — env vars only, never serialized to YAML.
	GeminiAPIKey string `yaml:"-"`
}

func defaults() Config {
	return Config{
		ListenAddr:      ":8080",
		DBPath:          "data/lingualive.db",
		PreviewDir:      "static/previews",
		MicSampleRate:   16000,
		MicSampleRates:  []int{48000, 44100, 32000, 24000},
		BargeInCooldown: "300ms",
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the result.
// It returns the config, any validation warnings, and an error if the file
// exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// ParsedBargeInCooldown returns BargeInCooldown as a time.Duration,
// falling back to 300ms if the value is invalid.
func (c *Config) ParsedBargeInCooldown() time.Duration {
	d, err := time.ParseDuration(c.BargeInCooldown)
	if err != nil {
		return 300 * time.Millisecond
	}
	return d
}

// SampleRateCandidates returns a deduplicated ordered list of sample rates
// to try: preferred rate first, then configured alternatives, then defaults.
func (c *Config) SampleRateCandidates() []int {
	hardcoded := []int{16000, 48000, 44100, 32000, 24000}

	combined := make([]int, 0, 1+len(c.MicSampleRates)+len(hardcoded))
	combined = append(combined, c.MicSampleRate)
	combined = append(combined, c.MicSampleRates...)
	combined = append(combined, hardcoded...)

	seen := make(map[int]struct{}, len(combined))
	result := make([]int, 0, len(combined))
	for _, rate := range combined {
		if rate <= 0 {
			continue
		}
		if _, ok := seen[rate]; ok {
			continue
		}
		seen[rate] = struct{}{}
		result = append(result, rate)
	}
	return result
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(EnvPrefix + "DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvPrefix + "PREVIEW_DIR"); v != "" {
		cfg.PreviewDir = v
	}
	if v := os.Getenv(EnvPrefix + "TOKEN_ENDPOINT"); v != "" {
		cfg.TokenEndpoint = v
	}
	if v := os.Getenv(EnvPrefix + "LIVE_MODEL"); v != "" {
		cfg.LiveModel = v
	}
	if v := os.Getenv(EnvPrefix + "LIVE_BASE_URL"); v != "" {
		cfg.LiveBaseURL = v
	}
	if v := os.Getenv(EnvPrefix + "MIC_SAMPLE_RATE"); v != "" {
		if rate, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && rate > 0 {
			cfg.MicSampleRate = rate
		}
	}
	if v := os.Getenv(EnvPrefix + "MIC_SAMPLE_RATES"); v != "" {
		cfg.MicSampleRates = parseSampleRates(v)
	}
	if v := os.Getenv(EnvPrefix + "BARGE_IN_THRESHOLD"); v != "" {
		if threshold, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && threshold > 0 {
			cfg.BargeInThreshold = threshold
		}
	}
	if v := os.Getenv(EnvPrefix + "BARGE_IN_COOLDOWN"); v != "" {
		cfg.BargeInCooldown = v
	}
}

func loadSecrets(cfg *Config) {
	cfg.GeminiAPIKey = os.Getenv(EnvPrefix + "GEMINI_API_KEY")
}

func validate(cfg *Config) []string {
	var warnings []string

	if cfg.TokenEndpoint == "" && cfg.GeminiAPIKey == "" {
		warnings = append(warnings, "No token endpoint or Gemini API key configured — sessions cannot start. Set "+EnvPrefix+"TOKEN_ENDPOINT or "+EnvPrefix+"GEMINI_API_KEY.")
	}
	if _, err := time.ParseDuration(cfg.BargeInCooldown); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid barge_in_cooldown %q — using default 300ms.", cfg.BargeInCooldown))
	}

	return warnings
}

func parseSampleRates(raw string) []int {
	parts := strings.Split(raw, ",")
	seen := make(map[int]struct{}, len(parts))
	result := make([]int, 0, len(parts))

	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		rate, err := strconv.Atoi(trimmed)
		if err != nil || rate <= 0 {
			continue
		}
		if _, ok := seen[rate]; ok {
			continue
		}
		seen[rate] = struct{}{}
		result = append(result, rate)
	}

	return result
}

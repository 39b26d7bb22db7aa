package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Defaults  DefaultsConfig  `yaml:"defaults" toml:"defaults"`
	Paths     PathsConfig     `yaml:"paths" toml:"paths"`
	Corrector CorrectorConfig `yaml:"corrector" toml:"corrector"`
	Retry     RetryConfig     `yaml:"retry" toml:"retry"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// DefaultsConfig holds default values
type DefaultsConfig struct {
	Model       string   `yaml:"model" toml:"model"`
	Language    string   `yaml:"language" toml:"language"`
	Formats     []string `yaml:"formats" toml:"formats"`
	Concurrency int      `yaml:"concurrency" toml:"concurrency"`
	CacheTTL    string   `yaml:"cache_ttl" toml:"cache_ttl"`
	OutputDir   string   `yaml:"output_dir" toml:"output_dir"`
}

// PathsConfig holds custom path overrides
type PathsConfig struct {
	YtDlp   string `yaml:"yt_dlp" toml:"yt_dlp"`
	Whisper string `yaml:"whisper" toml:"whisper"`
	FFmpeg  string `yaml:"ffmpeg" toml:"ffmpeg"`
	TempDir string `yaml:"temp_dir" toml:"temp_dir"`
}

// CorrectorConfig selects and tunes the language model used for correction.
type CorrectorConfig struct {
	Enabled        bool     `yaml:"enabled" toml:"enabled"`
	Provider       string   `yaml:"provider" toml:"provider"` // deepseek, openai, gemini, anthropic
	APIKey         string   `yaml:"api_key" toml:"api_key"`
	APIKeys        []string `yaml:"api_keys,omitempty" toml:"api_keys,omitempty"`
	BaseURL        string   `yaml:"base_url" toml:"base_url"`
	Model          string   `yaml:"model" toml:"model"`
	MaxTokens      int      `yaml:"max_tokens" toml:"max_tokens"`
	Temperature    float64  `yaml:"temperature" toml:"temperature"`
	TimeoutSeconds int      `yaml:"timeout_seconds" toml:"timeout_seconds"`
	Summarize      bool     `yaml:"summarize" toml:"summarize"`
	Keywords       bool     `yaml:"keywords" toml:"keywords"`
}

// RetryConfig overrides the built-in retry policies.
type RetryConfig struct {
	Download RetrySettings `yaml:"download" toml:"download"`
	Model    RetrySettings `yaml:"model" toml:"model"`
}

// RetrySettings are the user-facing knobs of one retry policy.
// Durations use Go syntax ("2s", "1m"); empty keeps the default.
type RetrySettings struct {
	MaxAttempts    int    `yaml:"max_attempts" toml:"max_attempts"`
	BaseDelay      string `yaml:"base_delay" toml:"base_delay"`
	MaxDelay       string `yaml:"max_delay" toml:"max_delay"`
	AttemptTimeout string `yaml:"attempt_timeout,omitempty" toml:"attempt_timeout,omitempty"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

const (
	ProviderDeepSeek  = "deepseek"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"

	DefaultBaseURL = "https://api.deepseek.com/v1/chat/completions"
	DefaultLLM     = "deepseek-chat"
)

// DefaultConfig returns configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Defaults: DefaultsConfig{
			Model:       "small",
			Language:    "auto",
			Formats:     []string{"md"},
			Concurrency: 1,
			CacheTTL:    "7d",
			OutputDir:   "drafts",
		},
		Corrector: CorrectorConfig{
			Provider:       ProviderDeepSeek,
			BaseURL:        DefaultBaseURL,
			Model:          DefaultLLM,
			MaxTokens:      4000,
			Temperature:    0.3,
			TimeoutSeconds: 60,
		},
		Retry: RetryConfig{
			Download: RetrySettings{MaxAttempts: 5, BaseDelay: "2s", MaxDelay: "1m", AttemptTimeout: "10m"},
			Model:    RetrySettings{MaxAttempts: 3, BaseDelay: "1s", MaxDelay: "30s"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// AppDir returns the application directory (~/.vdraft)
func AppDir() string {
	if dir := os.Getenv("VDRAFT_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vdraft"
	}
	return filepath.Join(home, ".vdraft")
}

// ModelsDir returns the models directory
func ModelsDir() string {
	return filepath.Join(AppDir(), "models")
}

// CacheDir returns the cache directory
func CacheDir() string {
	return filepath.Join(AppDir(), "cache")
}

// BinDir returns the bin directory
func BinDir() string {
	return filepath.Join(AppDir(), "bin")
}

// ProfilesDir returns the directory holding saved profiles
func ProfilesDir() string {
	return filepath.Join(AppDir(), "profiles")
}

// LogsDir returns the log directory
func LogsDir() string {
	return filepath.Join(AppDir(), "logs")
}

// HistoryPath returns the run history database path
func HistoryPath() string {
	return filepath.Join(AppDir(), "history.db")
}

// ConfigPath returns the config file path
func ConfigPath() string {
	return filepath.Join(AppDir(), "config.yaml")
}

// EnsureDirs creates all required directories
func EnsureDirs() error {
	dirs := []string{AppDir(), ModelsDir(), CacheDir(), BinDir(), ProfilesDir(), LogsDir()}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Load reads config from file, returns default if not exists.
// Environment overrides are applied on top.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, err
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// LoadDefault loads config from default path
func LoadDefault() (*Config, error) {
	return Load(ConfigPath())
}

// ApplyEnv fills the API key from the environment when the file has none.
func (c *Config) ApplyEnv() {
	if c.Corrector.APIKey != "" {
		return
	}
	vars := []string{"VDRAFT_API_KEY"}
	switch c.Corrector.Provider {
	case ProviderGemini:
		vars = append(vars, "GEMINI_API_KEY")
	case ProviderAnthropic:
		vars = append(vars, "ANTHROPIC_API_KEY")
	case ProviderOpenAI:
		vars = append(vars, "OPENAI_API_KEY")
	default:
		vars = append(vars, "DEEPSEEK_API_KEY")
	}
	for _, name := range vars {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			c.Corrector.APIKey = v
			return
		}
	}
}

// Save writes config to file
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveDefault saves config to default path
func (c *Config) SaveDefault() error {
	return c.Save(ConfigPath())
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Defaults.Concurrency < 1 {
		return fmt.Errorf("defaults.concurrency must be at least 1, got %d", c.Defaults.Concurrency)
	}
	if _, err := c.GetCacheTTL(); err != nil {
		return fmt.Errorf("defaults.cache_ttl: %w", err)
	}
	for _, f := range c.Defaults.Formats {
		if !IsSupportedFormat(f) {
			return fmt.Errorf("defaults.formats: unsupported format %q", f)
		}
	}
	switch c.Corrector.Provider {
	case ProviderDeepSeek, ProviderOpenAI, ProviderGemini, ProviderAnthropic:
	default:
		return fmt.Errorf("corrector.provider: unknown provider %q", c.Corrector.Provider)
	}
	if c.Corrector.Enabled && c.Corrector.APIKey == "" && len(c.Corrector.APIKeys) == 0 {
		return fmt.Errorf("corrector is enabled but no API key is configured")
	}
	for name, r := range map[string]RetrySettings{"download": c.Retry.Download, "model": c.Retry.Model} {
		if r.MaxAttempts < 1 {
			return fmt.Errorf("retry.%s.max_attempts must be at least 1", name)
		}
		for _, d := range []string{r.BaseDelay, r.MaxDelay, r.AttemptTimeout} {
			if d == "" {
				continue
			}
			if _, err := time.ParseDuration(d); err != nil {
				return fmt.Errorf("retry.%s: %w", name, err)
			}
		}
	}
	return nil
}

// SupportedFormats lists the output formats the formatter can write.
var SupportedFormats = []string{"md", "txt", "docx", "srt", "vtt"}

// IsSupportedFormat reports whether f names a known output format.
func IsSupportedFormat(f string) bool {
	for _, s := range SupportedFormats {
		if strings.EqualFold(s, f) {
			return true
		}
	}
	return false
}

// GetCacheTTL returns the cache TTL as a duration
func (c *Config) GetCacheTTL() (time.Duration, error) {
	return ParseDuration(c.Defaults.CacheTTL)
}

// Durations resolves a RetrySettings into concrete durations. Empty or
// invalid values fall back to the supplied defaults.
func (r RetrySettings) Durations(base, maxDelay, timeout time.Duration) (time.Duration, time.Duration, time.Duration) {
	parse := func(s string, fallback time.Duration) time.Duration {
		if d, err := time.ParseDuration(s); err == nil && s != "" {
			return d
		}
		return fallback
	}
	return parse(r.BaseDelay, base), parse(r.MaxDelay, maxDelay), parse(r.AttemptTimeout, timeout)
}

var durationPattern = regexp.MustCompile(`^(\d+)(h|d)$`)

// ParseDuration parses duration strings like "24h", "7d", "30d"
func ParseDuration(s string) (time.Duration, error) {
	matches := durationPattern.FindStringSubmatch(s)
	if len(matches) != 3 {
		return 0, fmt.Errorf("invalid duration format: %s (use format like 24h, 7d)", s)
	}

	value, _ := strconv.Atoi(matches[1])
	unit := matches[2]

	switch unit {
	case "h":
		return time.Duration(value) * time.Hour, nil
	case "d":
		return time.Duration(value) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown duration unit: %s", unit)
	}
}

// Package config builds the explicit configuration object handed to the
// translator and pipeline. Values come, in order of precedence, from
// command-line flags, DUBTRAN_* environment variables, a YAML config file
// and built-in defaults. Nothing here touches process-wide viper state.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrefix      = "DUBTRAN"
	ConfigName     = ".dubtran"
	DefaultTimeout = 2 * time.Minute
)

var (
	ErrMissingAPIKey   = errors.New("missing API key")
	ErrUnknownProvider = errors.New("unknown provider")
)

// Provider names.
const (
	ProviderGemini     = "gemini"
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
	ProviderStatic     = "static"
)

type providerInfo struct {
	model   string
	envKeys []string
	needKey bool
}

var providers = map[string]providerInfo{
	ProviderGemini:     {model: "gemini-2.0-flash", envKeys: []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}, needKey: true},
	ProviderOpenAI:     {model: "gpt-4o-mini", envKeys: []string{"OPENAI_API_KEY"}, needKey: true},
	ProviderOpenRouter: {model: "google/gemini-2.0-flash-exp:free", envKeys: []string{"OPENROUTER_API_KEY"}, needKey: true},
	ProviderOllama:     {model: "llama3.2"},
	ProviderStatic:     {},
}

// Providers lists the supported provider names.
func Providers() []string {
	return []string{ProviderGemini, ProviderOpenAI, ProviderOpenRouter, ProviderOllama, ProviderStatic}
}

type PromptConfig struct {
	Template     string `mapstructure:"template" yaml:"template,omitempty"`
	TemplatePath string `mapstructure:"template_path" yaml:"template_path,omitempty"`
}

type BreakerConfig struct {
	MaxFailures uint32        `mapstructure:"max_failures" yaml:"max_failures"`
	Cooldown    time.Duration `mapstructure:"cooldown" yaml:"cooldown"`
}

type Config struct {
	Provider       string        `mapstructure:"provider" yaml:"provider"`
	Model          string        `mapstructure:"model" yaml:"model,omitempty"`
	APIKey         string        `mapstructure:"api_key" yaml:"api_key,omitempty"`
	BaseURL        string        `mapstructure:"base_url" yaml:"base_url,omitempty"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Temperature    float32       `mapstructure:"temperature" yaml:"temperature"`
	StaticResponse string        `mapstructure:"static_response" yaml:"static_response,omitempty"`

	Prompt     PromptConfig  `mapstructure:"prompt" yaml:"prompt"`
	Reassembly string        `mapstructure:"reassembly" yaml:"reassembly"`
	Breaker    BreakerConfig `mapstructure:"breaker" yaml:"breaker"`
	// ProtectMarkup shields subtitle tags and {variables} from the model.
	ProtectMarkup bool `mapstructure:"protect_markup" yaml:"protect_markup"`

	DBPath  string `mapstructure:"db" yaml:"db"`
	NoCache bool   `mapstructure:"no_cache" yaml:"no_cache"`

	Listen   string `mapstructure:"listen" yaml:"listen"`
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		Provider:    ProviderGemini,
		Timeout:     DefaultTimeout,
		Temperature: 0.7,
		Reassembly:  "positional",
		Breaker: BreakerConfig{
			MaxFailures: 3,
			Cooldown:    30 * time.Second,
		},
		DBPath:   "./data/dubtran.db",
		Listen:   "127.0.0.1:8501",
		LogLevel: "info",
	}
}

// NewViper returns a viper instance primed with defaults and environment
// bindings. Callers bind their flags to it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()

	d := Default()
	v.SetDefault("provider", d.Provider)
	v.SetDefault("model", "")
	v.SetDefault("api_key", "")
	v.SetDefault("base_url", "")
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("temperature", d.Temperature)
	v.SetDefault("static_response", "")
	v.SetDefault("prompt.template", "")
	v.SetDefault("prompt.template_path", "")
	v.SetDefault("reassembly", d.Reassembly)
	v.SetDefault("protect_markup", false)
	v.SetDefault("breaker.max_failures", d.Breaker.MaxFailures)
	v.SetDefault("breaker.cooldown", d.Breaker.Cooldown)
	v.SetDefault("db", d.DBPath)
	v.SetDefault("no_cache", false)
	v.SetDefault("listen", d.Listen)
	v.SetDefault("log_level", d.LogLevel)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// API_KEY is the name the original .env files use.
	_ = v.BindEnv("api_key", EnvPrefix+"_API_KEY", "API_KEY")

	return v
}

// LoadDotEnv loads KEY=value pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load reads cfgFile (or searches $HOME and the working directory for
// .dubtran.yaml when cfgFile is empty) into v and returns the resolved
// configuration. It returns the path of the config file used, if any.
func Load(v *viper.Viper, cfgFile string) (*Config, string, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(ConfigName)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, "", fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.resolve()

	return &cfg, v.ConfigFileUsed(), nil
}

// resolve fills provider-specific defaults.
func (c *Config) resolve() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	info, ok := providers[c.Provider]
	if !ok {
		return
	}
	if c.Model == "" {
		c.Model = info.model
	}
	if c.APIKey == "" {
		for _, name := range info.envKeys {
			if key := os.Getenv(name); key != "" {
				c.APIKey = key
				break
			}
		}
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

// Validate reports configuration errors that must stop a run before any
// provider call is made.
func (c *Config) Validate() error {
	info, ok := providers[c.Provider]
	if !ok {
		return fmt.Errorf("%w: %q (want one of %s)", ErrUnknownProvider, c.Provider, strings.Join(Providers(), ", "))
	}
	if info.needKey && c.APIKey == "" {
		env := append([]string{EnvPrefix + "_API_KEY", "API_KEY"}, info.envKeys...)
		return fmt.Errorf("%w for provider %s: set one of %s", ErrMissingAPIKey, c.Provider, strings.Join(env, ", "))
	}
	if c.Provider == ProviderStatic && c.StaticResponse == "" {
		return fmt.Errorf("provider static requires static_response to point at a response file")
	}
	switch strings.ToLower(c.Reassembly) {
	case "", "positional", "sequential":
	default:
		return fmt.Errorf("unknown reassembly mode %q", c.Reassembly)
	}
	return nil
}

// Masked returns a copy safe for printing.
func (c Config) Masked() Config {
	if c.APIKey != "" {
		if len(c.APIKey) > 12 {
			c.APIKey = c.APIKey[:4] + strings.Repeat("*", len(c.APIKey)-8) + c.APIKey[len(c.APIKey)-4:]
		} else {
			c.APIKey = strings.Repeat("*", len(c.APIKey))
		}
	}
	return c
}

// YAML renders c as a config file.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// WriteDefault writes the default configuration to path. It refuses to
// overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	data, err := Default().YAML()
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

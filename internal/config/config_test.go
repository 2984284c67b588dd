package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

// clearKeyEnv removes every API key variable the loader looks at.
func clearKeyEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"DUBTRAN_API_KEY", "API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY",
		"OPENAI_API_KEY", "OPENROUTER_API_KEY", "DUBTRAN_PROVIDER", "DUBTRAN_MODEL",
	} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearKeyEnv(t)
	t.Setenv("HOME", t.TempDir())

	cfg, used, err := Load(NewViper(), "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if used != "" {
		t.Errorf("expected no config file, got %s", used)
	}

	if cfg.Provider != ProviderGemini {
		t.Errorf("Provider = %q, want %q", cfg.Provider, ProviderGemini)
	}
	if cfg.Model != "gemini-2.0-flash" {
		t.Errorf("Model = %q, want gemini-2.0-flash", cfg.Model)
	}
	if cfg.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", cfg.Timeout, DefaultTimeout)
	}
	if cfg.Breaker.MaxFailures != 3 {
		t.Errorf("Breaker.MaxFailures = %d, want 3", cfg.Breaker.MaxFailures)
	}
	if cfg.Reassembly != "positional" {
		t.Errorf("Reassembly = %q, want positional", cfg.Reassembly)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	clearKeyEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `provider: openai
model: gpt-4o
api_key: file-key
timeout: 45s
reassembly: sequential
prompt:
  template_path: /tmp/prompt.tmpl
breaker:
  max_failures: 5
  cooldown: 1m
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, used, err := Load(NewViper(), path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if used != path {
		t.Errorf("used = %q, want %q", used, path)
	}

	if cfg.Provider != ProviderOpenAI || cfg.Model != "gpt-4o" || cfg.APIKey != "file-key" {
		t.Errorf("unexpected provider settings: %+v", cfg)
	}
	if cfg.Timeout != 45*time.Second {
		t.Errorf("Timeout = %v, want 45s", cfg.Timeout)
	}
	if cfg.Prompt.TemplatePath != "/tmp/prompt.tmpl" {
		t.Errorf("Prompt.TemplatePath = %q", cfg.Prompt.TemplatePath)
	}
	if cfg.Breaker.MaxFailures != 5 || cfg.Breaker.Cooldown != time.Minute {
		t.Errorf("unexpected breaker settings: %+v", cfg.Breaker)
	}
	if cfg.Reassembly != "sequential" {
		t.Errorf("Reassembly = %q", cfg.Reassembly)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, _, err := Load(NewViper(), filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestLoad_EnvironmentKeys(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		provider string
		expected string
	}{
		{
			name:     "prefixed key",
			env:      map[string]string{"DUBTRAN_API_KEY": "prefixed"},
			expected: "prefixed",
		},
		{
			name:     "legacy API_KEY",
			env:      map[string]string{"API_KEY": "legacy"},
			expected: "legacy",
		},
		{
			name:     "provider specific gemini key",
			env:      map[string]string{"GEMINI_API_KEY": "gemini"},
			expected: "gemini",
		},
		{
			name:     "generic wins over provider specific",
			env:      map[string]string{"API_KEY": "generic", "GOOGLE_API_KEY": "google"},
			expected: "generic",
		},
		{
			name:     "openai provider from env",
			env:      map[string]string{"DUBTRAN_PROVIDER": "openai", "OPENAI_API_KEY": "sk-test"},
			provider: ProviderOpenAI,
			expected: "sk-test",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearKeyEnv(t)
			t.Setenv("HOME", t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, _, err := Load(NewViper(), "")
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if cfg.APIKey != tt.expected {
				t.Errorf("APIKey = %q, want %q", cfg.APIKey, tt.expected)
			}
			if tt.provider != "" && cfg.Provider != tt.provider {
				t.Errorf("Provider = %q, want %q", cfg.Provider, tt.provider)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
		errText string
	}{
		{
			name:   "gemini with key",
			mutate: func(c *Config) { c.APIKey = "k" },
		},
		{
			name:    "gemini without key",
			mutate:  func(c *Config) {},
			wantErr: ErrMissingAPIKey,
		},
		{
			name:   "ollama needs no key",
			mutate: func(c *Config) { c.Provider = ProviderOllama },
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Provider = "babelfish" },
			wantErr: ErrUnknownProvider,
		},
		{
			name:    "static without file",
			mutate:  func(c *Config) { c.Provider = ProviderStatic },
			errText: "static_response",
		},
		{
			name:    "bad reassembly",
			mutate:  func(c *Config) { c.Provider = ProviderOllama; c.Reassembly = "tail" },
			errText: "reassembly",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()

			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
				}
			case tt.errText != "":
				if err == nil || !strings.Contains(err.Error(), tt.errText) {
					t.Errorf("Validate() = %v, want error containing %q", err, tt.errText)
				}
			default:
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}
		})
	}
}

func TestMasked(t *testing.T) {
	tests := []struct {
		key      string
		expected string
	}{
		{"", ""},
		{"short", "*****"},
		{"abcdefghi", "*********"},
		{"abcdefghijkl", "************"},
		{"abcdefghijklm", "abcd*****jklm"},
		{"AIzaSyA1234567890xyz", "AIza************0xyz"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			c := Config{APIKey: tt.key}
			if got := c.Masked().APIKey; got != tt.expected {
				t.Errorf("Masked() = %q, want %q", got, tt.expected)
			}
			if c.APIKey != tt.key {
				t.Error("Masked modified the receiver")
			}
		})
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", ".dubtran.yaml")

	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	var decoded map[string]interface{}
	if err := yaml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("written config is not YAML: %v", err)
	}
	if decoded["provider"] != ProviderGemini {
		t.Errorf("provider = %v, want %s", decoded["provider"], ProviderGemini)
	}
	if decoded["timeout"] != "2m0s" {
		t.Errorf("timeout = %v, want 2m0s", decoded["timeout"])
	}

	if err := WriteDefault(path); err == nil {
		t.Error("expected error when overwriting")
	}

	// The written file must load back into the same defaults.
	clearKeyEnv(t)
	cfg, _, err := Load(NewViper(), path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Timeout != DefaultTimeout || cfg.Listen != Default().Listen {
		t.Errorf("round trip mismatch: %+v", cfg)
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearKeyEnv(t)

	if err := LoadDotEnv(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Errorf("missing .env should be ignored, got %v", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("API_KEY=from-dotenv\n"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("API_KEY") })

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv failed: %v", err)
	}
	if got := os.Getenv("API_KEY"); got != "from-dotenv" {
		t.Errorf("API_KEY = %q, want from-dotenv", got)
	}
}

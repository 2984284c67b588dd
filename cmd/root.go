/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/valpere/dubtran/internal/config"
	"github.com/valpere/dubtran/internal/logging"
)

var version = "0.1.0"

var (
	cfgFile string
	envFile string

	v       = config.NewViper()
	cfg     *config.Config
	cfgUsed string
	logger  = zerolog.Nop()
)

var rootCmd = &cobra.Command{
	Use:   "dubtran",
	Short: "English to Hinglish batch translator",
	Long: `Translate batches of short English texts into natural, conversational
Hinglish with a single request to a language model.

Supported providers: gemini (default), openai, openrouter, ollama, static

Use "dubtran translate --help" for batch options and
"dubtran serve" for the interactive web session.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// flagKeys maps persistent flag names to config keys.
var flagKeys = map[string]string{
	"log-level":       "log_level",
	"provider":        "provider",
	"model":           "model",
	"api-key":         "api_key",
	"base-url":        "base_url",
	"timeout":         "timeout",
	"temperature":     "temperature",
	"static-response": "static_response",
	"db":              "db",
	"no-cache":        "no_cache",
	"reassembly":      "reassembly",
	"protect-markup":  "protect_markup",
}

func init() {
	d := config.Default()
	pf := rootCmd.PersistentFlags()

	pf.StringVar(&cfgFile, "config", "", "Config file (default $HOME/.dubtran.yaml or ./.dubtran.yaml)")
	pf.StringVar(&envFile, "env-file", ".env", "Dotenv file loaded before reading the environment")
	pf.String("log-level", d.LogLevel, "Log level: debug, info, warn, error")
	pf.StringP("provider", "p", d.Provider, "Provider: gemini, openai, openrouter, ollama, static")
	pf.StringP("model", "m", "", "Model name (provider default if empty)")
	pf.String("api-key", "", "Provider API key (prefer DUBTRAN_API_KEY or API_KEY)")
	pf.String("base-url", "", "Provider base URL override")
	pf.Duration("timeout", d.Timeout, "Timeout for the provider call")
	pf.Float32("temperature", d.Temperature, "Sampling temperature")
	pf.String("static-response", "", "Response file replayed by the static provider")
	pf.String("db", d.DBPath, "Database path for batch history and response cache")
	pf.Bool("no-cache", false, "Always call the provider, ignoring cached responses")
	pf.String("reassembly", d.Reassembly, "Reassembly mode: positional or sequential")
	pf.Bool("protect-markup", false, "Replace tags and {variables} with [PHn] markers the model must keep")

	bindFlags(v, pf, flagKeys)
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) {
	for name, key := range keys {
		if f := fs.Lookup(name); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}
}

// loadConfig resolves the effective configuration and logger once per run.
func loadConfig(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}

	c, used, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}
	cfg, cfgUsed = c, used

	logger, err = logging.New(os.Stderr, cfg.LogLevel)
	if err != nil {
		return err
	}
	if cfgUsed != "" {
		logger.Debug().Str("file", cfgUsed).Msg("using config file")
	}
	return nil
}

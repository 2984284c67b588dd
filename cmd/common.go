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
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio"
	"github.com/rs/zerolog"

	"github.com/valpere/dubtran/internal/batch"
	"github.com/valpere/dubtran/internal/config"
	"github.com/valpere/dubtran/internal/detector"
	"github.com/valpere/dubtran/internal/parser"
	"github.com/valpere/dubtran/internal/pipeline"
	"github.com/valpere/dubtran/internal/prompt"
	"github.com/valpere/dubtran/internal/store"
	"github.com/valpere/dubtran/internal/translator"
)

// buildClient constructs the configured provider behind a circuit breaker.
// Configuration errors are reported before anything touches the network.
func buildClient(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (translator.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		client translator.Client
		err    error
	)
	switch cfg.Provider {
	case config.ProviderGemini:
		client, err = translator.NewGeminiService(ctx, cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.Temperature)
	case config.ProviderOpenAI:
		client, err = translator.NewOpenAIService(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.Temperature)
	case config.ProviderOpenRouter:
		client, err = translator.NewOpenRouterService(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.Temperature)
	case config.ProviderOllama:
		client = translator.NewOllamaTranslator(cfg.BaseURL, cfg.Model, cfg.Temperature, cfg.Timeout)
	case config.ProviderStatic:
		client, err = translator.NewStaticServiceFromFile(cfg.StaticResponse)
	default:
		return nil, fmt.Errorf("%w: %s", config.ErrUnknownProvider, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	return translator.WithBreaker(client, cfg.Breaker.MaxFailures, cfg.Breaker.Cooldown, logger), nil
}

func buildPrompt(cfg *config.Config) (*prompt.Builder, error) {
	return prompt.New(prompt.Options{
		InlineTemplate: cfg.Prompt.Template,
		TemplatePath:   cfg.Prompt.TemplatePath,
	})
}

// buildPipeline wires provider, prompt, history and the optional input
// language check. db may be nil.
func buildPipeline(ctx context.Context, cfg *config.Config, db *store.Store, checkLanguage bool, logger zerolog.Logger) (*pipeline.Pipeline, error) {
	client, err := buildClient(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	builder, err := buildPrompt(cfg)
	if err != nil {
		return nil, err
	}

	mode, err := parser.ParseMode(cfg.Reassembly)
	if err != nil {
		return nil, err
	}

	opts := pipeline.Options{
		Timeout:       cfg.Timeout,
		Mode:          mode,
		NoCache:       cfg.NoCache,
		ProtectMarkup: cfg.ProtectMarkup,
		Store:         db,
		Logger:        logger,
	}
	if checkLanguage {
		opts.Detector = detector.New()
	}

	return pipeline.New(client, builder, opts), nil
}

// openStore opens the history database, creating its directory. An empty
// path disables history.
func openStore(path string) (*store.Store, error) {
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := store.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// writeExport writes rows to path in the format named by its extension
// (.json, .csv or .xlsx). The file is replaced atomically.
func writeExport(path string, rows []batch.Row) error {
	var buf bytes.Buffer
	var write func(io.Writer, []batch.Row) error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		outputs := make([]batch.Item, len(rows))
		for i, r := range rows {
			outputs[i] = batch.Item{Text: r.Translated}
		}
		return batch.Save(path, outputs)
	case ".csv":
		write = batch.WriteCSV
	case ".xlsx":
		write = batch.WriteXLSX
	default:
		return fmt.Errorf("unsupported export format %q (want .json, .csv or .xlsx)", filepath.Ext(path))
	}

	if err := write(&buf, rows); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := renameio.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

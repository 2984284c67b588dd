// Package pipeline runs one batch end to end: prompt, provider call,
// cleanup, parse and reassembly. The CLI and the web session share it.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/valpere/dubtran/internal/batch"
	"github.com/valpere/dubtran/internal/detector"
	"github.com/valpere/dubtran/internal/parser"
	"github.com/valpere/dubtran/internal/placeholder"
	"github.com/valpere/dubtran/internal/postprocess"
	"github.com/valpere/dubtran/internal/prompt"
	"github.com/valpere/dubtran/internal/store"
	"github.com/valpere/dubtran/internal/translator"
)

// Options tunes a Pipeline. The zero value runs without history, cache or
// language check.
type Options struct {
	Timeout time.Duration
	Mode    parser.Mode
	NoCache bool

	// ProtectMarkup swaps tags and brace variables for [PHn] markers
	// before the provider call.
	ProtectMarkup bool

	// Store enables history and the response cache when non-nil.
	Store *store.Store
	// Detector enables the English input check when non-nil.
	Detector *detector.Detector
	Logger   zerolog.Logger
}

// Pipeline translates batches with one client and prompt builder. It holds
// no per-batch state.
type Pipeline struct {
	client  translator.Client
	prompts *prompt.Builder
	opts    Options
}

// New returns a pipeline. An empty Options.Mode means positional reassembly.
func New(client translator.Client, prompts *prompt.Builder, opts Options) *Pipeline {
	if opts.Mode == "" {
		opts.Mode = parser.Positional
	}
	return &Pipeline{client: client, prompts: prompts, opts: opts}
}

// Result is the outcome of one batch. Outputs always has the same length
// as Inputs.
type Result struct {
	BatchID  string
	Provider string
	Model    string
	Inputs   []batch.Item
	Outputs  []batch.Item
	Report   parser.Report
	Findings []detector.Finding

	// MarkupLost lists 1-based positions whose translation dropped a
	// protected span.
	MarkupLost []int

	Prompt    string
	Raw       string
	Cached    bool
	CreatedAt time.Time

	ProviderElapsed time.Duration
	Elapsed         time.Duration
}

// Prompt renders the request for items without calling the provider.
func (p *Pipeline) Prompt(items []batch.Item) (string, error) {
	text, _, err := p.render(batch.Texts(items))
	return text, err
}

func (p *Pipeline) render(texts []string) (string, placeholder.Set, error) {
	set := placeholder.Set{Texts: texts}
	if p.opts.ProtectMarkup {
		set = placeholder.ProtectAll(texts)
	}
	text, err := p.prompts.Build(set.Texts)
	return text, set, err
}

// Run translates items with a single provider call. A provider failure
// aborts the batch; a response that only partly matches the batch does not.
func (p *Pipeline) Run(ctx context.Context, items []batch.Item) (*Result, error) {
	start := time.Now()
	texts := batch.Texts(items)

	res := &Result{
		BatchID:   uuid.NewString(),
		Provider:  p.client.Name(),
		Model:     translator.ModelOf(p.client),
		Inputs:    items,
		CreatedAt: start,
	}

	logger := p.opts.Logger.With().
		Str("batch", res.BatchID).
		Str("provider", res.Provider).
		Str("model", res.Model).
		Int("items", len(items)).
		Logger()

	if p.opts.Detector != nil {
		res.Findings = p.opts.Detector.CheckEnglish(texts)
		for _, f := range res.Findings {
			logger.Warn().Int("position", f.Position).Str("detected", f.Detected).Str("code", f.Code).Msg("input does not look like English")
		}
	}

	promptText, shield, err := p.render(texts)
	if err != nil {
		return nil, err
	}
	res.Prompt = promptText

	if len(items) > 0 {
		raw, cached, err := p.generate(ctx, logger, res)
		if err != nil {
			logger.Error().Err(err).Msg("provider call failed")
			return nil, err
		}
		res.Raw, res.Cached = raw, cached
	}

	entries := parser.Parse(postprocess.Clean(res.Raw))
	outputs, report := parser.Reassemble(entries, texts, p.opts.Mode)
	if shield.Count() > 0 {
		outputs, res.MarkupLost = shield.RestoreAll(outputs, report.Missing)
		if len(res.MarkupLost) > 0 {
			logger.Warn().Ints("positions", res.MarkupLost).Msg("translation dropped protected markup")
		}
	}
	res.Outputs = batch.FromTexts(outputs)
	res.Report = report

	if report.Mismatch() {
		logger.Warn().
			Ints("missing", report.Missing).
			Ints("out_of_range", report.OutOfRange).
			Ints("duplicates", report.Duplicates).
			Msg(report.String())
	} else if p.cacheEnabled() && !res.Cached && len(items) > 0 {
		// Only a response that answered every item is worth replaying.
		if err := p.opts.Store.SaveResponse(ctx, res.Provider, res.Model, res.Prompt, res.Raw); err != nil {
			logger.Warn().Err(err).Msg("failed to cache response")
		}
	}

	res.Elapsed = time.Since(start)
	p.record(ctx, logger, res)

	logger.Info().
		Bool("cached", res.Cached).
		Dur("provider_elapsed", res.ProviderElapsed).
		Dur("elapsed", res.Elapsed).
		Msg("batch translated")

	return res, nil
}

func (p *Pipeline) cacheEnabled() bool {
	return p.opts.Store != nil && !p.opts.NoCache
}

func (p *Pipeline) generate(ctx context.Context, logger zerolog.Logger, res *Result) (string, bool, error) {
	if p.cacheEnabled() {
		raw, found, err := p.opts.Store.GetCachedResponse(ctx, res.Provider, res.Model, res.Prompt)
		if err != nil {
			logger.Warn().Err(err).Msg("response cache lookup failed")
		} else if found {
			logger.Debug().Msg("response cache hit")
			return raw, true, nil
		}
	}

	callCtx := ctx
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	callStart := time.Now()
	raw, err := p.client.Generate(callCtx, res.Prompt)
	res.ProviderElapsed = time.Since(callStart)
	if err != nil {
		return "", false, fmt.Errorf("batch %s: %w", res.BatchID, err)
	}
	return raw, false, nil
}

func (p *Pipeline) record(ctx context.Context, logger zerolog.Logger, res *Result) {
	if p.opts.Store == nil {
		return
	}
	err := p.opts.Store.SaveBatch(ctx, &store.Batch{
		ID:        res.BatchID,
		Provider:  res.Provider,
		Model:     res.Model,
		Inputs:    batch.Texts(res.Inputs),
		Outputs:   batch.Texts(res.Outputs),
		Raw:       res.Raw,
		Report:    res.Report.String(),
		Mismatch:  res.Report.Mismatch(),
		Cached:    res.Cached,
		ElapsedMs: res.Elapsed.Milliseconds(),
		CreatedAt: res.CreatedAt,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("failed to record batch history")
	}
}

// processor.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// errRunAborted marks URLs that were never started because the run was cancelled
var errRunAborted = errors.New("run aborted")

// Processor handles the main workflow: classify, extract, render and
// normalize every URL, then write the artifacts
type Processor struct {
	config     *Config
	fetcher    *Fetcher
	extractors Extractors
	normalizer Normalizer
	promptLog  *PromptLog
	classify   func(string) SourceType
	logger     *slog.Logger
}

// ProcessorOptions carries secrets and injectable collaborators
type ProcessorOptions struct {
	APIKey        string
	YouTubeAPIKey string
	// Generator replaces the configured generative-text backend (tests)
	Generator Generator
	Logger    *slog.Logger
}

// RunSummary reports the outcome of a run
type RunSummary struct {
	RunID      string
	Total      int
	Normalized int
	Errored    int
	Tokens     int
	CostUSD    float64
	Elapsed    time.Duration
}

// NewProcessor wires the fetcher, prompt log, generative-text clients,
// extractors and normalizer from the configuration
func NewProcessor(cfg *Config, opts ProcessorOptions) (*Processor, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := cfg.Settings

	fetcher := NewFetcher(s.HTTP.Timeout, s.HTTP.UserAgent, s.HTTP.MaxBodyMB*1024*1024, s.Concurrency, logger)

	generator := opts.Generator
	if generator == nil {
		// Generative calls are bounded by llm.timeout through the context, not the fetch timeout
		llmHTTP := &http.Client{Transport: fetcher.Client().Transport}
		var err error
		generator, err = NewGenerator(s.LLM, opts.APIKey, llmHTTP)
		if err != nil {
			return nil, fmt.Errorf("creating generative-text backend: %w", err)
		}
	}

	extractionPrompt, err := cfg.ExtractionSystemPrompt()
	if err != nil {
		return nil, err
	}
	pdfPrompt, err := cfg.PDFPrompt()
	if err != nil {
		return nil, err
	}
	websitePrompt, err := cfg.WebsitePrompt()
	if err != nil {
		return nil, err
	}

	promptLog := NewPromptLog(s.Output.PromptLog, s.LLM.CostPerMillionTokens, logger)
	limiter := newRateLimiter(s.LLM.RequestsPerMinute)

	extractionClient := NewTextClient(generator, TextClientOptions{
		Model:        s.LLM.ExtractionModel,
		SystemPrompt: extractionPrompt,
		MaxTokens:    s.LLM.MaxTokens,
		Temperature:  s.LLM.Temperature,
		Timeout:      s.LLM.Timeout,
		Limiter:      limiter,
		PromptLog:    promptLog,
		Logger:       logger,
	})

	normalizer, err := buildNormalizer(cfg, generator, limiter, promptLog, logger)
	if err != nil {
		promptLog.Close()
		return nil, err
	}

	step := &structuredStep{client: extractionClient, contentMaxTokens: s.Website.ContentMaxTokens, logger: logger}
	domain := s.ShortURLDomain

	extractors := Extractors{
		SourceYouTube: &YouTubeExtractor{
			fetcher: fetcher,
			apiURL:  s.YouTube.APIURL,
			apiKey:  opts.YouTubeAPIKey,
			limiter: newRateLimiter(s.YouTube.RequestsPerMinute),
			domain:  domain,
			logger:  logger,
		},
		SourceDOI: &DOIExtractor{
			fetcher: fetcher,
			apiURL:  s.Crossref.APIURL,
			mailto:  s.Crossref.Mailto,
			domain:  domain,
			logger:  logger,
		},
		SourcePDF: &PDFExtractor{
			fetcher:  fetcher,
			step:     step,
			prompt:   pdfPrompt,
			maxPages: s.PDF.MaxPages,
			domain:   domain,
			logger:   logger,
		},
		SourceWikipedia: &WikipediaExtractor{fetcher: fetcher, domain: domain},
		SourceWebsite: &WebsiteExtractor{
			fetcher:       fetcher,
			step:          step,
			prompt:        websitePrompt,
			contentFormat: s.Website.ContentFormat,
			converter:     md.NewConverter("", true, nil),
			domain:        domain,
			logger:        logger,
		},
	}

	return &Processor{
		config:     cfg,
		fetcher:    fetcher,
		extractors: extractors,
		normalizer: normalizer,
		promptLog:  promptLog,
		classify:   Classify,
		logger:     logger,
	}, nil
}

// buildNormalizer creates the normalizer for the configured mode; only llm
// mode needs a generative-text client
func buildNormalizer(cfg *Config, generator Generator, limiter *rate.Limiter, promptLog *PromptLog, logger *slog.Logger) (Normalizer, error) {
	s := cfg.Settings
	if s.Normalize.Mode != NormalizeLLM {
		return NewNormalizer(s.Normalize.Mode, nil, s.ShortURLDomain, logger)
	}

	systemPrompt, err := cfg.NormalizeSystemPrompt()
	if err != nil {
		return nil, err
	}
	client := NewTextClient(generator, TextClientOptions{
		Model:        s.LLM.NormalizationModel,
		SystemPrompt: systemPrompt,
		MaxTokens:    s.LLM.MaxTokens,
		Temperature:  0,
		Timeout:      s.LLM.Timeout,
		Limiter:      limiter,
		PromptLog:    promptLog,
		Logger:       logger,
	})
	return NewNormalizer(NormalizeLLM, client, s.ShortURLDomain, logger)
}

// Close flushes the prompt log
func (p *Processor) Close() error {
	return p.promptLog.Close()
}

// ProcessURL drives one URL through Pending → Classified → Extracted →
// Normalized, or to Errored. It never panics and never returns without a
// record.
func (p *Processor) ProcessURL(ctx context.Context, url string) (result ProcessingResult) {
	result = ProcessingResult{URL: url, State: StatePending}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("process.panic", "url", url, "panic", r)
			result = p.fail(url, fmt.Errorf("panic while processing: %v", r))
		}
	}()

	sourceType := p.classify(url)
	result.State = StateClassified
	p.logger.Debug("process.classified", "url", url, "source_type", sourceType)

	extractor, err := p.extractors.For(sourceType)
	if err != nil {
		return p.fail(url, err)
	}

	record, err := extractor.Extract(ctx, url)
	if err != nil {
		return p.fail(url, err)
	}
	result.Record = record
	result.State = StateExtracted

	line := renderCitation(record)
	citation, err := p.normalizer.Normalize(ctx, record.Type, line)
	if err != nil {
		p.logger.Warn("normalize.failed", "url", url, "error", err)
		citation = line
	}
	result.Citation = citation
	result.State = StateNormalized

	p.logger.Info("process.ok", "url", url, "source_type", record.Type, "title", record.Title)
	return result
}

func (p *Processor) fail(url string, err error) ProcessingResult {
	p.logger.Warn("process.failed", "url", url, "kind", KindOf(err), "error", err)
	return ProcessingResult{
		URL:    url,
		State:  StateErrored,
		Record: errorRecord(url, err),
		Error:  err,
	}
}

// ProcessURLs processes every URL with the configured number of workers.
// Results are returned in input order, exactly one per URL; URLs not yet
// started when ctx is cancelled are recorded as aborted.
func (p *Processor) ProcessURLs(ctx context.Context, urls []string) []ProcessingResult {
	results := make([]ProcessingResult, len(urls))
	if len(urls) == 0 {
		return results
	}

	workers := min(max(p.config.Settings.Concurrency, 1), len(urls))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					results[i] = p.fail(urls[i], errRunAborted)
					continue
				}
				p.logger.Info("process.start", "index", i+1, "total", len(urls), "url", urls[i])
				results[i] = p.ProcessURL(ctx, urls[i])
			}
		}()
	}

feed:
	for i := range urls {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	for i := range results {
		if results[i].State == "" {
			results[i] = p.fail(urls[i], errRunAborted)
		}
	}
	return results
}

// Run reads the URL list from source, processes it and writes every
// configured artifact. Artifacts are written even when ctx was cancelled.
func (p *Processor) Run(ctx context.Context, source string, stdin io.Reader) (*RunSummary, error) {
	start := time.Now()
	runID := uuid.New().String()

	urls, err := readURLs(ctx, source, stdin, p.fetcher)
	if err != nil {
		return nil, fmt.Errorf("loading URL list: %w", err)
	}
	p.logger.Info("run.start", "run_id", runID, "urls", len(urls), "concurrency", p.config.Settings.Concurrency)

	results := p.ProcessURLs(ctx, urls)
	if err := p.WriteOutputs(results); err != nil {
		return nil, err
	}

	summary := &RunSummary{RunID: runID, Total: len(results), Elapsed: time.Since(start)}
	for _, r := range results {
		switch r.State {
		case StateNormalized:
			summary.Normalized++
		case StateErrored:
			summary.Errored++
		}
	}
	summary.Tokens, summary.CostUSD = p.promptLog.Totals()

	p.logger.Info("run.summary",
		"run_id", runID,
		"total", summary.Total,
		"normalized", summary.Normalized,
		"errored", summary.Errored,
		"tokens", summary.Tokens,
		"cost_usd", fmt.Sprintf("%.6f", summary.CostUSD),
		"elapsed_ms", summary.Elapsed.Milliseconds(),
	)
	return summary, nil
}

// WriteOutputs writes the tabular file, the bibliography and the optional
// workbook
func (p *Processor) WriteOutputs(results []ProcessingResult) error {
	out := p.config.Settings.Output

	records := make([]*SourceRecord, 0, len(results))
	lines := make([]string, 0, len(results))
	for _, r := range results {
		records = append(records, r.Record)
		if r.State == StateNormalized && r.Citation != "" {
			lines = append(lines, r.Citation)
		}
	}

	if out.CSV != "" {
		if err := writeCSV(out.CSV, records); err != nil {
			return fmt.Errorf("writing CSV: %w", err)
		}
		p.logger.Info("output.csv.ok", "path", out.CSV, "rows", len(records))
	}
	if out.Bibliography != "" {
		if err := writeBibliography(out.Bibliography, lines); err != nil {
			return fmt.Errorf("writing bibliography: %w", err)
		}
		p.logger.Info("output.bibliography.ok", "path", out.Bibliography, "lines", len(lines))
	}
	if out.XLSX != "" {
		if err := writeXLSX(out.XLSX, records, p.logger); err != nil {
			return fmt.Errorf("writing XLSX: %w", err)
		}
	}
	return nil
}

// Reformat re-renders and re-normalizes the bibliography from an existing
// tabular file without fetching anything
func Reformat(ctx context.Context, csvPath, bibliographyPath string, normalizer Normalizer, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	records, err := readCSV(csvPath)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", csvPath, err)
	}

	lines := FormatReferences(ctx, records, normalizer, logger)
	if err := writeBibliography(bibliographyPath, lines); err != nil {
		return 0, err
	}
	logger.Info("reformat.ok", "csv", csvPath, "bibliography", bibliographyPath, "lines", len(lines))
	return len(lines), nil
}

// Package scrape implements the resilient extraction pipeline: login state
// machine, adaptive table discovery, pagination traversal, and record
// assembly. One run owns one browser session and one page; every step is
// strictly sequential because each depends causally on the previous DOM
// state.
package scrape

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"permitwatch/internal/browser"
	"permitwatch/internal/config"
	"permitwatch/internal/diag"
	"permitwatch/internal/locator"
	"permitwatch/internal/permit"
)

// Engine abstracts the browser process owner so the pipeline can be tested
// against fakes. browser.Manager is the production implementation.
type Engine interface {
	Start(ctx context.Context) error
	NewPage(ctx context.Context) (browser.Page, error)
	Shutdown() error
}

// RecordSink persists the final ordered record list. The pipeline is
// agnostic to the destination format.
type RecordSink interface {
	Persist(ctx context.Context, records []permit.Record) error
}

// Summary reports what one run produced.
type Summary struct {
	RunID      string
	QueryDate  string
	RowsSeen   int
	Records    int
	TierCounts map[string]int
	Partial    bool
	Elapsed    time.Duration
}

// Pipeline wires the extraction stages together for one run at a time.
type Pipeline struct {
	cfg    config.Config
	engine Engine
	diag   diag.Sink
	log    *zap.Logger
	sinks  []RecordSink
}

func NewPipeline(cfg config.Config, engine Engine, sink diag.Sink, log *zap.Logger, sinks ...RecordSink) *Pipeline {
	if sink == nil {
		sink = diag.NopSink{}
	}
	return &Pipeline{cfg: cfg, engine: engine, diag: sink, log: log, sinks: sinks}
}

// Run executes the full pipeline for one target issued date. The whole run
// is bounded by the configured wall-clock budget; browser teardown is
// guaranteed regardless of outcome.
func (p *Pipeline) Run(ctx context.Context, creds config.Credentials, queryDate string) (*Summary, error) {
	started := time.Now()
	runID := uuid.NewString()
	log := p.log.With(zap.String("run_id", runID), zap.String("query_date", queryDate))

	runCtx, cancel := context.WithTimeout(ctx, p.cfg.Scrape.GetRunBudget())
	defer cancel()

	if err := p.engine.Start(runCtx); err != nil {
		return nil, fmt.Errorf("start browser: %w", err)
	}
	defer func() {
		if err := p.engine.Shutdown(); err != nil {
			log.Warn("browser shutdown failed", zap.Error(err))
		}
	}()

	page, err := p.engine.NewPage(runCtx)
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}

	summary, err := p.execute(runCtx, page, log, creds, queryDate)
	if err != nil {
		// A wall-clock budget abort cuts the pipeline off wherever it
		// happens to be; snapshot the page before teardown so the abort is
		// diagnosable without re-running.
		if runCtx.Err() != nil {
			p.diag.Capture("run_aborted", page.Screenshot(), page.HTML())
		}
		return nil, err
	}

	summary.RunID = runID
	summary.QueryDate = queryDate
	summary.Elapsed = time.Since(started)
	log.Info("run complete",
		zap.Int("rows", summary.RowsSeen),
		zap.Int("records", summary.Records),
		zap.Any("tiers", summary.TierCounts),
		zap.Bool("partial", summary.Partial),
		zap.Duration("elapsed", summary.Elapsed))
	return summary, nil
}

// execute runs the extraction stages against an open page: login, search,
// discovery, pagination, normalization, persistence.
func (p *Pipeline) execute(ctx context.Context, page browser.Page, log *zap.Logger, creds config.Credentials, queryDate string) (*Summary, error) {
	controller := NewSessionController(page, p.diag, log, p.cfg)
	session, err := controller.Login(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("login (session %s): %w", session.State, err)
	}

	if err := p.issueSearch(ctx, page, queryDate); err != nil {
		return nil, err
	}

	discoverer := NewDiscoverer(p.diag, log)
	table, err := discoverer.FindResultsTable(page, p.cfg.Scrape.ExpectedTokens, p.cfg.Scrape.GetMinScore())
	if err != nil {
		return nil, err
	}

	walker := NewWalker(page, log, p.cfg, p.diag)
	rows, headers, partial, err := walker.CollectAllRows(ctx, page, table)
	if err != nil {
		return nil, err
	}

	records := p.assemble(rows, headers, queryDate, log)

	for _, sink := range p.sinks {
		if err := sink.Persist(ctx, records); err != nil {
			return nil, fmt.Errorf("persist records: %w", err)
		}
	}

	return &Summary{
		RowsSeen:   len(rows),
		Records:    len(records),
		TierCounts: tierCounts(records),
		Partial:    partial,
	}, nil
}

// issueSearch selects the issued-date search column, fills the target date,
// and activates the search.
func (p *Pipeline) issueSearch(ctx context.Context, page browser.Page, queryDate string) error {
	resolver := locator.NewResolver(page, p.diag, p.log)
	controls := p.cfg.Controls

	column, err := resolver.Resolve(locator.Descriptor{
		Control: "search_column",
		Strategies: append(
			selectorStrategies(controls.SearchColumn),
			locator.ByOption(controls.SearchColumnOption),
		),
	}, locator.Interactable)
	if err != nil {
		return err
	}
	if err := column.SelectOption(controls.SearchColumnOption); err != nil {
		p.diag.Capture("05_search_column_failed", page.Screenshot(), page.HTML())
		return fmt.Errorf("select search column %q: %w", controls.SearchColumnOption, err)
	}

	value, err := resolver.Resolve(locator.Descriptor{
		Control:    "search_value",
		Strategies: selectorStrategies(controls.SearchValue),
	}, locator.Interactable)
	if err != nil {
		return err
	}
	if err := value.Fill(queryDate); err != nil {
		return fmt.Errorf("fill search value: %w", err)
	}

	button, err := resolver.Resolve(locator.Descriptor{
		Control: "search_button",
		Strategies: append(
			selectorStrategies(controls.SearchButton),
			locator.ByLabel("", controls.SearchButtonLabel),
		),
	}, locator.Interactable)
	if err != nil {
		return err
	}
	if err := button.Click(); err != nil {
		return fmt.Errorf("click search: %w", err)
	}

	return page.WaitSettled(ctx, p.cfg.Scrape.GetSettleTimeout())
}

// assemble normalizes raw rows into canonical records, collapsing rows with
// identical identity tuples within the run: the fingerprint is the dedup
// key.
func (p *Pipeline) assemble(rows []permit.RawRow, headers []string, queryDate string, log *zap.Logger) []permit.Record {
	headerMap := permit.BuildHeaderMap(headers)
	if headerMap.Provenance() == permit.ProvenancePositional {
		log.Warn("headers unresolved, assuming positional columns")
	}

	normalizer := permit.NewNormalizer(p.cfg.Portal.Source, p.cfg.Portal.Jurisdiction)
	seen := make(map[string]bool, len(rows))
	records := make([]permit.Record, 0, len(rows))
	for _, row := range rows {
		rec := normalizer.Normalize(row, headerMap, queryDate)
		if seen[rec.Fingerprint] {
			continue
		}
		seen[rec.Fingerprint] = true
		records = append(records, rec)
	}
	return records
}

func tierCounts(records []permit.Record) map[string]int {
	counts := map[string]int{"A": 0, "B": 0, "C": 0, "D": 0}
	for _, rec := range records {
		counts[rec.Classification.Tier]++
	}
	return counts
}

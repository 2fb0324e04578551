package scrape

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"permitwatch/internal/browser"
	"permitwatch/internal/config"
	"permitwatch/internal/diag"
	"permitwatch/internal/locator"
	"permitwatch/internal/permit"
)

// Walker traverses a paginated results grid, re-discovering the table
// after every advance because ASP.NET postbacks can replace the whole DOM
// subtree.
type Walker struct {
	discoverer *Discoverer
	// pager resolution uses a silent resolver: a missing advance control is
	// the normal last-page condition, not a failure.
	probe    *locator.Resolver
	log      *zap.Logger
	controls config.ControlsConfig
	scrape   config.ScrapeConfig
}

func NewWalker(page browser.Page, log *zap.Logger, cfg config.Config, sink diag.Sink) *Walker {
	return &Walker{
		discoverer: NewDiscoverer(sink, log),
		probe:      locator.NewResolver(page, diag.NopSink{}, zap.NewNop()),
		log:        log,
		controls:   cfg.Controls,
		scrape:     cfg.Scrape,
	}
}

func (w *Walker) pagerDescriptor() locator.Descriptor {
	strategies := selectorStrategies(w.controls.NextPage)
	if w.controls.NextPageLabel != "" {
		strategies = append(strategies, locator.ByLabel("", w.controls.NextPageLabel))
	}
	if w.controls.NextPageGlyph != "" {
		strategies = append(strategies, locator.ByLabel("", w.controls.NextPageGlyph))
	}
	return locator.Descriptor{Control: "next_page", Strategies: strategies}
}

// CollectAllRows extracts every page of the grid starting from table.
// It terminates when no advance control is found, the control is disabled,
// the page cap is reached, or two consecutive extractions yield identical
// leading rows (stall). Returns the deduplicated rows, the headers from the
// first page, and whether extraction ended early as a partial success.
func (w *Walker) CollectAllRows(ctx context.Context, page browser.Page, table *TableCandidate) ([]permit.RawRow, []string, bool, error) {
	headers := ExtractHeaders(table.Table)

	var all []permit.RawRow
	partial := false
	prevFirst := ""

	for pageNum := 1; ; pageNum++ {
		if err := ctx.Err(); err != nil {
			return dedupeRows(all), headers, true, err
		}

		rows := ExtractRows(table.Table)

		if len(rows) > 0 {
			first := rowKey(rows[0])
			if pageNum > 1 && first == prevFirst {
				// Stall: the pager claims more pages but the grid is not
				// advancing. Keep what we have.
				w.log.Warn("pagination stalled, keeping rows collected so far",
					zap.Int("page", pageNum),
					zap.Int("rows", len(all)),
					zap.Error(ErrStallDetected))
				partial = true
				break
			}
			prevFirst = first
		}

		all = append(all, rows...)
		w.log.Debug("page extracted", zap.Int("page", pageNum), zap.Int("rows", len(rows)))

		if pageNum >= w.scrape.GetMaxPages() {
			w.log.Warn("page cap reached, stopping pagination",
				zap.Int("max_pages", w.scrape.GetMaxPages()))
			partial = true
			break
		}

		advance, err := w.probe.Resolve(w.pagerDescriptor(), locator.VisiblePresence)
		if err != nil {
			var notFound *locator.NotFoundError
			if errors.As(err, &notFound) {
				break // no pager: single page or last page
			}
			return dedupeRows(all), headers, partial, err
		}
		if !advance.Enabled() {
			break // pager present but disabled: last page
		}

		if err := advance.Click(); err != nil {
			return dedupeRows(all), headers, partial, err
		}
		if err := page.WaitSettled(ctx, w.scrape.GetSettleTimeout()); err != nil {
			return dedupeRows(all), headers, true, err
		}

		table, err = w.discoverer.FindResultsTable(page, w.scrape.ExpectedTokens, w.scrape.GetMinScore())
		if err != nil {
			return dedupeRows(all), headers, partial, err
		}
	}

	return dedupeRows(all), headers, partial, nil
}

// dedupeRows removes exact cell-tuple duplicates while preserving order.
// Pagination and table state can disagree transiently on the portal side
// and re-serve rows.
func dedupeRows(rows []permit.RawRow) []permit.RawRow {
	seen := make(map[string]bool, len(rows))
	out := make([]permit.RawRow, 0, len(rows))
	for _, row := range rows {
		key := rowKey(row)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, row)
	}
	return out
}

func rowKey(row permit.RawRow) string {
	return strings.Join(row, "\x1f")
}

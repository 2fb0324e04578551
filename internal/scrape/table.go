package scrape

import (
	"strings"

	"go.uber.org/zap"

	"permitwatch/internal/browser"
	"permitwatch/internal/diag"
	"permitwatch/internal/permit"
)

const previewLen = 120

// TableCandidate is a table-like structure plus its header-match score
// against the expected token set.
type TableCandidate struct {
	Table   browser.Element
	Score   int
	Preview string
}

// Discoverer locates the results grid among all tables on a page by
// scoring each candidate's text against the expected header tokens.
type Discoverer struct {
	diag diag.Sink
	log  *zap.Logger
}

func NewDiscoverer(sink diag.Sink, log *zap.Logger) *Discoverer {
	if sink == nil {
		sink = diag.NopSink{}
	}
	return &Discoverer{diag: sink, log: log}
}

// FindResultsTable returns the candidate with the strictly highest token
// score, ties broken by document order. Scoring is a heuristic, not a
// guarantee: the acceptance threshold is a tunable. A miss logs a truncated
// preview of every candidate — without that, silent layout changes are
// undebuggable.
func (d *Discoverer) FindResultsTable(page browser.Page, tokens []string, minScore int) (*TableCandidate, error) {
	tables, err := page.Elements("table")
	if err != nil {
		return nil, err
	}

	var best *TableCandidate
	candidates := make([]*TableCandidate, 0, len(tables))
	for _, table := range tables {
		text, err := table.Text()
		if err != nil {
			continue
		}
		upper := strings.ToUpper(text)
		score := 0
		for _, token := range tokens {
			if strings.Contains(upper, strings.ToUpper(token)) {
				score++
			}
		}
		candidate := &TableCandidate{Table: table, Score: score, Preview: truncate(collapseWhitespace(text), previewLen)}
		candidates = append(candidates, candidate)
		if best == nil || candidate.Score > best.Score {
			best = candidate
		}
	}

	if best == nil || best.Score < minScore {
		bestScore := 0
		if best != nil {
			bestScore = best.Score
		}
		for i, candidate := range candidates {
			d.log.Warn("table candidate rejected",
				zap.Int("index", i),
				zap.Int("score", candidate.Score),
				zap.String("preview", candidate.Preview))
		}
		d.diag.Capture("results_table_not_found", page.Screenshot(), page.HTML())
		return nil, &TableNotFoundError{BestScore: bestScore, MinScore: minScore, Candidates: len(candidates)}
	}

	d.log.Info("results table located",
		zap.Int("score", best.Score),
		zap.Int("candidates", len(candidates)))
	return best, nil
}

// ExtractHeaders reads the header labels from a table's th cells.
func ExtractHeaders(table browser.Element) []string {
	cells, err := table.Elements("th")
	if err != nil || len(cells) == 0 {
		return nil
	}
	headers := make([]string, 0, len(cells))
	for _, cell := range cells {
		text, err := cell.Text()
		if err != nil {
			headers = append(headers, "")
			continue
		}
		headers = append(headers, collapseWhitespace(text))
	}
	return headers
}

// ExtractRows reads all data rows from a table. Cell text is trimmed and
// whitespace-collapsed; rows without td cells (header rows, pager rows
// rendered as tr) are skipped.
func ExtractRows(table browser.Element) []permit.RawRow {
	trs, err := table.Elements("tr")
	if err != nil {
		return nil
	}
	var rows []permit.RawRow
	for _, tr := range trs {
		tds, err := tr.Elements("td")
		if err != nil || len(tds) == 0 {
			continue
		}
		row := make(permit.RawRow, 0, len(tds))
		for _, td := range tds {
			text, err := td.Text()
			if err != nil {
				text = ""
			}
			row = append(row, collapseWhitespace(text))
		}
		rows = append(rows, row)
	}
	return rows
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

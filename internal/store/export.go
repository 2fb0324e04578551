package store

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"permitwatch/internal/permit"
)

// exportColumns is the CSV layout consumed by the downstream review sheet.
var exportColumns = []string{
	"permit_no", "issued", "permit_type", "status", "site_apn", "site_address",
	"dumpster_score", "dumpster_tier", "dumpster_reason", "fingerprint",
}

// FileExporter writes per-run snapshots: results.json in extraction order
// and results.csv sorted by score descending so the review sheet surfaces
// the likeliest leads first.
type FileExporter struct {
	dir string
	log *zap.Logger
}

func NewFileExporter(dir string, log *zap.Logger) *FileExporter {
	return &FileExporter{dir: dir, log: log}
}

func (e *FileExporter) Persist(_ context.Context, records []permit.Record) error {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}

	if err := e.writeJSON(records); err != nil {
		return err
	}
	if err := e.writeCSV(records); err != nil {
		return err
	}
	e.log.Info("results exported", zap.String("dir", e.dir), zap.Int("records", len(records)))
	return nil
}

func (e *FileExporter) writeJSON(records []permit.Record) error {
	path := filepath.Join(e.dir, "results.json")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}

func (e *FileExporter) writeCSV(records []permit.Record) error {
	sorted := make([]permit.Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Classification.Score > sorted[j].Classification.Score
	})

	path := filepath.Join(e.dir, "results.csv")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(exportColumns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, rec := range sorted {
		row := []string{
			orEmpty(rec.PermitID),
			rec.IssuedDate,
			orEmpty(rec.Category),
			orEmpty(rec.Status),
			orEmpty(rec.ParcelID),
			orEmpty(rec.Address),
			strconv.Itoa(rec.Classification.Score),
			rec.Classification.Tier,
			rec.Classification.Reason,
			rec.Fingerprint,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func orEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

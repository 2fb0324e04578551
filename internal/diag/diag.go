// Package diag is the failure-diagnostics sink: every fatal scrape error is
// paired with a best-effort screenshot + HTML dump so a DOM change can be
// diagnosed without re-running the pipeline.
package diag

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultMaxCaptures bounds how many capture sets are kept on disk.
	DefaultMaxCaptures = 10
	// DefaultDir is used when no capture directory is configured.
	DefaultDir = "data/diagnostics"
)

// Sink receives failure snapshots. Implementations must be best-effort: a
// failing sink never aborts the pipeline.
type Sink interface {
	Capture(stem string, screenshot []byte, html string)
}

// NopSink discards all captures. Used in tests and when diagnostics are
// disabled.
type NopSink struct{}

func (NopSink) Capture(string, []byte, string) {}

// FileSink writes capture sets under a directory, rotating old sets so only
// the newest MaxCaptures remain.
type FileSink struct {
	mu  sync.Mutex
	dir string
	max int
	log *zap.Logger
}

// NewFileSink creates the capture directory and returns a sink writing into
// it.
func NewFileSink(dir string, maxCaptures int, log *zap.Logger) (*FileSink, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if maxCaptures <= 0 {
		maxCaptures = DefaultMaxCaptures
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create diagnostics dir: %w", err)
	}
	return &FileSink{dir: dir, max: maxCaptures, log: log}, nil
}

// Capture persists one failure snapshot. Errors are logged and swallowed.
func (s *FileSink) Capture(stem string, screenshot []byte, html string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.rotate(); err != nil {
		s.log.Warn("diagnostics rotation failed", zap.Error(err))
	}

	base := fmt.Sprintf("%d_%s", time.Now().UnixMilli(), sanitizeStem(stem))

	if len(screenshot) > 0 {
		path := filepath.Join(s.dir, base+".png")
		if err := os.WriteFile(path, screenshot, 0o644); err != nil {
			s.log.Warn("diagnostics screenshot write failed", zap.String("path", path), zap.Error(err))
		}
	}
	if html != "" {
		path := filepath.Join(s.dir, base+".html")
		if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
			s.log.Warn("diagnostics html write failed", zap.String("path", path), zap.Error(err))
		}
	}
	s.log.Info("diagnostics captured",
		zap.String("stem", stem),
		zap.Bool("screenshot", len(screenshot) > 0),
		zap.Bool("html", html != ""))
}

// rotate keeps only the newest max-1 capture sets to make room for the next
// one. Sets are grouped by base name so a .png/.html pair counts once.
func (s *FileSink) rotate() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}

	sets := make(map[string]time.Time)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".png" && ext != ".html" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		base := strings.TrimSuffix(e.Name(), ext)
		if prev, ok := sets[base]; !ok || info.ModTime().After(prev) {
			sets[base] = info.ModTime()
		}
	}

	if len(sets) < s.max {
		return nil
	}

	type set struct {
		base string
		time time.Time
	}
	ordered := make([]set, 0, len(sets))
	for base, ts := range sets {
		ordered = append(ordered, set{base, ts})
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].time.After(ordered[j].time)
	})

	for i := s.max - 1; i < len(ordered); i++ {
		for _, ext := range []string{".png", ".html"} {
			_ = os.Remove(filepath.Join(s.dir, ordered[i].base+ext))
		}
	}
	return nil
}

func sanitizeStem(stem string) string {
	var b strings.Builder
	for _, r := range stem {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "capture"
	}
	return b.String()
}

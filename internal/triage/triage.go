// Package triage orchestrates one full scan: the local detection
// phases, external scanner tools, dependency analysis, and the cloud
// pass run concurrently over the same quarantined tree, join, and
// feed the scorer.
package triage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nomark/sigil/internal/analyzer"
	"github.com/nomark/sigil/internal/cache"
	"github.com/nomark/sigil/internal/intel"
	apperrors "github.com/nomark/sigil/internal/pkg/errors"
	"github.com/nomark/sigil/internal/pkg/logger"
	"github.com/nomark/sigil/internal/quarantine"
	"github.com/nomark/sigil/internal/report"
	"github.com/nomark/sigil/internal/scan"
	"github.com/nomark/sigil/internal/scanners"
	"github.com/nomark/sigil/internal/scoring"
)

// Triage wires the independent scan passes together.
type Triage struct {
	store    *quarantine.Store
	engine   *scan.Engine
	external *scanners.Runner
	analyzer *analyzer.Analyzer
	cloud    *intel.Service
	cache    *cache.Cache
	reports  *report.Writer
	log      *logger.Logger
	workers  int
}

// New creates a triage orchestrator. workers bounds concurrent
// multi-item scans; zero means one per CPU.
func New(
	store *quarantine.Store,
	engine *scan.Engine,
	external *scanners.Runner,
	anlz *analyzer.Analyzer,
	cloud *intel.Service,
	scanCache *cache.Cache,
	reports *report.Writer,
	workers int,
	log *logger.Logger,
) *Triage {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Triage{
		store:    store,
		engine:   engine,
		external: external,
		analyzer: anlz,
		cloud:    cloud,
		cache:    scanCache,
		reports:  reports,
		log:      log,
		workers:  workers,
	}
}

// Outcome is the result of scanning one item.
type Outcome struct {
	Item       string
	Score      int
	Verdict    scoring.Verdict
	ExitCode   int
	Report     *report.Report
	ReportPath string
	Cached     bool
}

// Scan runs all four passes over a quarantined item, scores the
// joined findings, and persists a report. A fresh cache entry for an
// unchanged tree short-circuits the work.
func (t *Triage) Scan(ctx context.Context, id string) (*Outcome, error) {
	root, err := t.store.Path(id)
	if err != nil {
		return nil, err
	}

	items, _ := t.store.List()
	source := ""
	for _, item := range items {
		if item.ID == id {
			source = item.Source
			break
		}
	}

	return t.scanRoot(ctx, id, source, root)
}

// ScanPath runs the same passes over an arbitrary local directory
// without going through the quarantine store. The directory's base
// name labels the report.
func (t *Triage) ScanPath(ctx context.Context, path string) (*Outcome, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, apperrors.Validation(fmt.Sprintf("invalid path %q", path))
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, apperrors.NotFound(fmt.Sprintf("path %s", path))
	}
	if !info.IsDir() {
		return nil, apperrors.Validation(fmt.Sprintf("%s is not a directory", path))
	}
	return t.scanRoot(ctx, filepath.Base(abs), abs, abs)
}

func (t *Triage) scanRoot(ctx context.Context, label, source, root string) (*Outcome, error) {
	key, keyErr := cache.Key(root)
	if keyErr == nil {
		if entry, ok := t.cache.Get(key); ok {
			t.log.Debugf("cache hit for %s", label)
			verdict := scoring.Verdict(entry.Verdict)
			return &Outcome{
				Item:     label,
				Score:    entry.Score,
				Verdict:  verdict,
				ExitCode: scoring.ExitCodeFor(verdict),
				Cached:   true,
			}, nil
		}
	}

	var (
		local       *scan.Result
		extFindings []scan.Finding
		extSkips    []scan.SkipNote
		extUsed     []string
		depFindings []scan.Finding
		enrichment  intel.Enrichment
		cloudExtra  *scan.Result

		mu sync.Mutex
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := t.engine.Scan(root, nil)
		if err != nil {
			return err
		}
		mu.Lock()
		local = res
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		findings, skips, used := t.external.RunAll(gctx, root)
		mu.Lock()
		extFindings, extSkips, extUsed = findings, skips, used
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		findings, err := t.analyzer.Analyze(root)
		if err != nil {
			return err
		}
		mu.Lock()
		depFindings = findings
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		enr := t.cloud.Enrich(gctx, root)
		var extra *scan.Result
		if len(enr.Rules) > 0 {
			res, err := t.engine.ScanSignatures(root, enr.Rules)
			if err != nil {
				return err
			}
			extra = res
		}
		mu.Lock()
		enrichment = enr
		cloudExtra = extra
		mu.Unlock()
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := local
	result.Findings = append(result.Findings, extFindings...)
	result.Findings = append(result.Findings, depFindings...)
	result.Findings = append(result.Findings, enrichment.Findings...)
	result.Skipped = append(result.Skipped, extSkips...)
	result.Skipped = append(result.Skipped, enrichment.Skips...)
	if cloudExtra != nil {
		result.Findings = append(result.Findings, cloudExtra.Findings...)
		result.Skipped = append(result.Skipped, cloudExtra.Skipped...)
	}
	scan.SortFindings(result.Findings)

	score := scoring.Score(result.Findings)
	verdict := scoring.VerdictFor(score)

	rep := report.New(label, source, result, extUsed, enrichment.Status, score, verdict)
	path, err := t.reports.Write(rep)
	if err != nil {
		return nil, err
	}

	if keyErr == nil {
		if err := t.cache.Put(cache.Entry{Key: key, Item: label, Score: score, Verdict: string(verdict)}); err != nil {
			t.log.WithError(err).Warn("scan cache write failed")
		}
	}

	t.log.WithFields(map[string]interface{}{
		"item":    label,
		"score":   score,
		"verdict": verdict,
	}).Info("scan complete")

	return &Outcome{
		Item:       label,
		Score:      score,
		Verdict:    verdict,
		ExitCode:   scoring.ExitCodeFor(verdict),
		Report:     rep,
		ReportPath: path,
	}, nil
}

// ScanMany scans multiple items through a bounded worker pool and
// returns outcomes in input order. Per-item errors are reported per
// item, not joined into one failure.
func (t *Triage) ScanMany(ctx context.Context, ids []string) ([]*Outcome, []error) {
	outcomes := make([]*Outcome, len(ids))
	errs := make([]error, len(ids))

	sem := make(chan struct{}, t.workers)
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			outcomes[i], errs[i] = t.Scan(ctx, id)
		}(i, id)
	}
	wg.Wait()
	return outcomes, errs
}

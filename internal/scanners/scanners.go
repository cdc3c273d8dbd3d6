// Package scanners invokes third-party analysis tools as subprocesses
// against a quarantined tree. Each adapter degrades independently: a
// missing binary, crash, or timeout never fails the enclosing scan.
package scanners

import (
	"context"
	"time"

	"github.com/nomark/sigil/internal/pkg/logger"
	"github.com/nomark/sigil/internal/scan"
)

// Scanner is the uniform capability interface every external tool
// implements.
type Scanner interface {
	// Name is the tool identity carried on findings and skip notes.
	Name() string
	// Available reports whether the tool binary is on PATH.
	Available() bool
	// Run executes the tool against root and parses its native output
	// into findings.
	Run(ctx context.Context, root string) ([]scan.Finding, error)
}

// Runner executes every configured scanner and collects their
// findings and skip notes.
type Runner struct {
	scanners []Scanner
	timeout  time.Duration
	log      *logger.Logger
}

// NewRunner creates a runner over the default toolset.
func NewRunner(timeout time.Duration, log *logger.Logger) *Runner {
	return &Runner{
		scanners: []Scanner{
			NewSemgrep(log),
			NewGitleaks(log),
			NewOSV(log),
		},
		timeout: timeout,
		log:     log,
	}
}

// NewRunnerWith creates a runner over an explicit toolset. Used in
// tests.
func NewRunnerWith(timeout time.Duration, log *logger.Logger, scanners ...Scanner) *Runner {
	return &Runner{scanners: scanners, timeout: timeout, log: log}
}

// RunAll invokes every scanner sequentially, bounding each by the
// configured timeout. Absent tools are recorded as "not installed";
// crashes and timeouts as "failed". The third return value names the
// tools that actually completed, so a report can distinguish "ran
// and found nothing" from "never ran".
func (r *Runner) RunAll(ctx context.Context, root string) ([]scan.Finding, []scan.SkipNote, []string) {
	var findings []scan.Finding
	var skips []scan.SkipNote
	var used []string

	for _, s := range r.scanners {
		if !s.Available() {
			skips = append(skips, scan.SkipNote{Subject: s.Name(), Reason: "not installed"})
			continue
		}

		runCtx, cancel := context.WithTimeout(ctx, r.timeout)
		got, err := s.Run(runCtx, root)
		cancel()
		if err != nil {
			r.log.WithError(err).Warnf("%s failed, continuing without it", s.Name())
			skips = append(skips, scan.SkipNote{Subject: s.Name(), Reason: "failed: " + err.Error()})
			continue
		}
		used = append(used, s.Name())
		findings = append(findings, got...)
	}
	return findings, skips, used
}

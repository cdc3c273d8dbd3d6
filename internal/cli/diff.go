package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nomark/sigil/internal/report"
	"github.com/nomark/sigil/internal/triage"
)

func newDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <baseline-report.json> <id|path|report.json>",
		Short: "Compare a baseline report against a rescan",
		Long: `Loads a previously persisted report as the baseline and compares it
against the current state: a fresh scan of a quarantine item or local
directory, or another persisted report. Shows new, resolved, and
unchanged findings with the score delta.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			baseline, err := report.Load(args[0])
			if err != nil {
				return err
			}

			current, err := currentReport(args[1])
			if err != nil {
				return err
			}

			d := report.Compare(baseline, current)
			if getOutputFormat() != "table" {
				return printOutput(d)
			}
			report.RenderDiff(os.Stdout, d)
			return nil
		},
	}
}

// currentReport resolves the diff's right-hand side: a persisted
// report file, a local directory to rescan, or a quarantine item id.
func currentReport(arg string) (*report.Report, error) {
	if info, err := os.Stat(arg); err == nil {
		if !info.IsDir() && strings.HasSuffix(arg, ".json") {
			return report.Load(arg)
		}
		if info.IsDir() {
			return outcomeReport(current.triage.ScanPath(context.Background(), arg))
		}
	}
	return outcomeReport(current.triage.Scan(context.Background(), arg))
}

func outcomeReport(outcome *triage.Outcome, err error) (*report.Report, error) {
	if err != nil {
		return nil, err
	}
	if outcome.Report == nil {
		return nil, fmt.Errorf("cached scan result for %s carries no findings; run 'sigil cache clear' and retry", outcome.Item)
	}
	return outcome.Report, nil
}

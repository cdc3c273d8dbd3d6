package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newScanCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "scan [id|path...]",
		Short: "Scan quarantined items or local directories and report a verdict",
		Long: `Runs phase detection, external scanners, dependency analysis, and
the cloud intelligence pass over quarantined items. Arguments naming
an existing directory are scanned in place without quarantining.

The process exit status encodes the worst verdict: 0 clean, 1
critical, 2 high, 3 medium, 4 low. Operational errors also exit 1,
so CI gates cannot distinguish an error from a critical verdict by
status alone.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			var ids, paths []string
			for _, arg := range args {
				if info, err := os.Stat(arg); err == nil && info.IsDir() {
					paths = append(paths, arg)
				} else {
					ids = append(ids, arg)
				}
			}
			if all {
				items, err := current.store.List()
				if err != nil {
					return err
				}
				for _, item := range items {
					if item.Status == "quarantined" {
						ids = append(ids, item.ID)
					}
				}
			}
			if len(ids) == 0 && len(paths) == 0 {
				return fmt.Errorf("nothing to scan: pass item ids, paths, or --all")
			}

			worst := 0
			failed := false
			for _, path := range paths {
				outcome, err := current.triage.ScanPath(ctx, path)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error scanning %s: %v\n", path, err)
					failed = true
					continue
				}
				if err := printOutcome(outcome); err != nil {
					return err
				}
				worst = worstExit(worst, outcome.ExitCode)
			}

			outcomes, errs := current.triage.ScanMany(ctx, ids)
			for i, outcome := range outcomes {
				if errs[i] != nil {
					fmt.Fprintf(os.Stderr, "Error scanning %s: %v\n", ids[i], errs[i])
					failed = true
					continue
				}
				if err := printOutcome(outcome); err != nil {
					return err
				}
				worst = worstExit(worst, outcome.ExitCode)
			}
			if failed {
				return fmt.Errorf("one or more scans failed")
			}
			exitCode = worst
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "scan every quarantined item")
	return cmd
}

// worstExit picks the more severe of two verdict exit codes. The
// encoding is non-linear: 1 (critical) outranks 2 (high) outranks 3
// (medium) outranks 4 (low) outranks 0 (clean).
func worstExit(a, b int) int {
	rank := map[int]int{0: 0, 4: 1, 3: 2, 2: 3, 1: 4}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

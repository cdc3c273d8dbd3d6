package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nomark/sigil/internal/scoring"
)

func newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Pull untrusted code into quarantine",
	}

	cmd.AddCommand(newIngestRepoCmd())
	cmd.AddCommand(newIngestPipCmd())
	cmd.AddCommand(newIngestNpmCmd())
	return cmd
}

func newIngestRepoCmd() *cobra.Command {
	var scanAfter, approveClean bool

	cmd := &cobra.Command{
		Use:   "repo <url>",
		Short: "Clone a git repository into quarantine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			id, err := current.fetcher.CloneRepo(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Quarantined as %s\n", id)
			return maybeScan(ctx, id, scanAfter, approveClean)
		},
	}
	cmd.Flags().BoolVar(&scanAfter, "scan", false, "scan immediately after ingesting")
	cmd.Flags().BoolVar(&approveClean, "approve-clean", false, "scan and approve automatically if the verdict is clean")
	return cmd
}

func newIngestPipCmd() *cobra.Command {
	var scanAfter, approveClean bool

	cmd := &cobra.Command{
		Use:   "pip <package>",
		Short: "Download a PyPI source distribution into quarantine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			id, err := current.fetcher.FetchPip(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Quarantined as %s\n", id)
			return maybeScan(ctx, id, scanAfter, approveClean)
		},
	}
	cmd.Flags().BoolVar(&scanAfter, "scan", false, "scan immediately after ingesting")
	cmd.Flags().BoolVar(&approveClean, "approve-clean", false, "scan and approve automatically if the verdict is clean")
	return cmd
}

func newIngestNpmCmd() *cobra.Command {
	var scanAfter, approveClean bool

	cmd := &cobra.Command{
		Use:   "npm <package>",
		Short: "Download an npm tarball into quarantine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			id, err := current.fetcher.FetchNpm(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Quarantined as %s\n", id)
			return maybeScan(ctx, id, scanAfter, approveClean)
		},
	}
	cmd.Flags().BoolVar(&scanAfter, "scan", false, "scan immediately after ingesting")
	cmd.Flags().BoolVar(&approveClean, "approve-clean", false, "scan and approve automatically if the verdict is clean")
	return cmd
}

func maybeScan(ctx context.Context, id string, scanAfter, approveClean bool) error {
	if !scanAfter && !approveClean {
		return nil
	}
	outcome, err := current.triage.Scan(ctx, id)
	if err != nil {
		return err
	}
	if err := printOutcome(outcome); err != nil {
		return err
	}
	if approveClean && outcome.Verdict == scoring.VerdictClean {
		if err := current.store.Approve(id); err != nil {
			return err
		}
		fmt.Printf("Approved %s (clean)\n", id)
	}
	exitCode = outcome.ExitCode
	return nil
}

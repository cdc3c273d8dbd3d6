package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List quarantined and approved items",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := current.store.List()
			if err != nil {
				return err
			}
			if getOutputFormat() != "table" {
				return printOutput(items)
			}

			if len(items) == 0 {
				fmt.Println("Quarantine is empty.")
				return nil
			}
			table := NewTable("ID", "SOURCE", "STATUS", "SIZE", "CREATED")
			for _, item := range items {
				table.AddRow(
					item.ID,
					truncate(item.Source, 48),
					formatStatus(string(item.Status)),
					formatSize(item.SizeBytes),
					item.CreatedAt.Format(time.RFC3339),
				)
			}
			table.Render()
			return nil
		},
	}
}

func newApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <id>",
		Short: "Release a reviewed item from quarantine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.store.Approve(args[0]); err != nil {
				return err
			}
			fmt.Printf("Approved %s\n", args[0])
			return nil
		},
	}
}

func newRejectCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reject <id>",
		Short: "Delete a quarantined item permanently",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes && !confirm(fmt.Sprintf("Permanently delete %s?", args[0])) {
				fmt.Println("Aborted.")
				return nil
			}
			if err := current.store.Reject(args[0]); err != nil {
				return err
			}
			fmt.Printf("Rejected %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func formatSize(bytes int64) string {
	switch {
	case bytes >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1<<20))
	case bytes >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(bytes)/(1<<10))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

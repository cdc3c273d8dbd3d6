package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the scan result cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Drop all cached scan results",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.cache.Clear(); err != nil {
				return err
			}
			fmt.Println("Scan cache cleared.")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show scan cache usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("%d cached scan results.\n", current.cache.Len())
			return nil
		},
	})
	return cmd
}

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newSignaturesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signatures",
		Short: "Manage the community signature cache",
	}

	cmd.AddCommand(newSignaturesFetchCmd())
	cmd.AddCommand(newSignaturesShowCmd())
	return cmd
}

func newSignaturesFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Refresh the signature cache from the cloud",
		RunE: func(cmd *cobra.Command, args []string) error {
			token := current.tokens.Load()
			if token == "" {
				return fmt.Errorf("not authenticated: run 'sigil auth login' first")
			}
			current.client.SetToken(token)

			sigs, err := current.client.FetchSignatures(context.Background())
			if err != nil {
				return fmt.Errorf("signature fetch failed: %w", err)
			}
			if err := current.sigCache.Save(sigs); err != nil {
				return err
			}
			fmt.Printf("Cached %d signatures.\n", len(sigs))
			return nil
		},
	}
}

func newSignaturesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the cached signature set",
		RunE: func(cmd *cobra.Command, args []string) error {
			sigs, ok := current.sigCache.Load()
			if !ok {
				fmt.Println("No fresh signature cache. Run 'sigil signatures fetch'.")
				return nil
			}
			if getOutputFormat() != "table" {
				return printOutput(sigs)
			}

			table := NewTable("ID", "SEVERITY", "WEIGHT", "DESCRIPTION")
			for _, sig := range sigs {
				table.AddRow(sig.ID, formatSeverity(sig.Severity), fmt.Sprintf("%d", sig.Weight), truncate(sig.Description, 60))
			}
			table.Render()
			return nil
		},
	}
}

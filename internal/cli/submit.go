package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nomark/sigil/internal/intel"
)

func newSubmitCmd() *cobra.Command {
	var threatType, note string

	cmd := &cobra.Command{
		Use:   "submit <id|path>",
		Short: "Report a malicious item's fingerprint to the community feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := current.tokens.Load()
			if token == "" {
				return fmt.Errorf("not authenticated: run 'sigil auth login' first")
			}
			current.client.SetToken(token)

			root := args[0]
			if info, err := os.Stat(root); err != nil || !info.IsDir() {
				resolved, err := current.store.Path(args[0])
				if err != nil {
					return err
				}
				root = resolved
			}
			hash, err := intel.Fingerprint(root)
			if err != nil {
				return err
			}

			receipt, err := current.client.SubmitThreat(context.Background(), intel.ThreatReport{
				Hash:        hash,
				ThreatType:  threatType,
				Description: note,
			})
			if err != nil {
				return fmt.Errorf("threat submission failed: %w", err)
			}
			fmt.Printf("Threat reported (id: %s)\n", receipt.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&threatType, "type", "malware", "threat classification")
	cmd.Flags().StringVar(&note, "note", "", "free-form description")
	return cmd
}

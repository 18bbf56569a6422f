package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SUNET/fedtrust/pkg/bootstrap"
	"github.com/SUNET/fedtrust/pkg/federation"
	"github.com/SUNET/fedtrust/pkg/logging"
)

var resolveCmd = NewResolveCmd()

// NewResolveCmd builds the "resolve" command, which collects and verifies
// every trust chain from a target entity up to a configured trust anchor.
func NewResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <entity-id>",
		Short: "Resolve and verify trust chains from an entity to a configured trust anchor",
		Long: `Collect the statement tree rooted at the given entity id, verify it
against this engine's configured trust anchors, and print one line per
verified chain.

	fedctl --config fedtrust.yaml resolve https://rp.example.org
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			logger := logging.NewLogger(logging.InfoLevel)
			comp, err := bootstrap.Build(cfg, logger)
			if err != nil {
				return fmt.Errorf("building runtime components: %w", err)
			}
			defer comp.Close()

			target, err := federation.NewIdentifier(args[0])
			if err != nil {
				return fmt.Errorf("invalid entity id %q: %w", args[0], err)
			}

			root := comp.Collector.Collect(context.Background(), target)
			chains := comp.Verifier.VerifyTree(root)
			if len(chains) == 0 {
				return fmt.Errorf("no verified trust chain found for %s", target)
			}

			for i, chain := range chains {
				path := make([]string, 0, len(chain.Nodes))
				for _, n := range chain.Nodes {
					path = append(path, n.EntityID.String())
				}
				fmt.Printf("chain %d: anchor=%s\n", i+1, chain.AnchorID)
				for _, id := range path {
					fmt.Printf("  %s\n", id)
				}
			}
			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SUNET/fedtrust/pkg/bootstrap"
	"github.com/SUNET/fedtrust/pkg/logging"
)

var issueCmd = NewIssueCmd()

// NewIssueCmd builds the "issue entity-configuration" command, which signs
// and prints this entity's own entity configuration using the configured
// signing key.
func NewIssueCmd() *cobra.Command {
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue statements on behalf of the configured entity",
	}

	entityConfig := &cobra.Command{
		Use:   "entity-configuration",
		Short: "Issue and print this entity's self-signed entity configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			comp, err := bootstrap.Build(cfg, logging.NewLogger(logging.InfoLevel))
			if err != nil {
				return fmt.Errorf("building runtime components: %w", err)
			}
			defer comp.Close()
			if comp.Issuer == nil {
				return fmt.Errorf("no signing_cert_path/signing_key_path configured: cannot issue statements")
			}

			token, err := comp.Issuer.IssueEntityConfiguration()
			if err != nil {
				return fmt.Errorf("issuing entity configuration: %w", err)
			}
			fmt.Println(token)
			return nil
		},
	}

	issue.AddCommand(entityConfig)
	return issue
}

func init() {
	rootCmd.AddCommand(issueCmd)
}

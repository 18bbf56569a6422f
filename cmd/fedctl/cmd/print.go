package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/SUNET/fedtrust/pkg/jws"
)

var printCmd = NewPrintCmd()

// NewPrintCmd builds the "print" command, which decodes a compact JWS
// statement without verifying its signature. Useful for inspecting an
// entity configuration or subordinate statement fetched by other means.
func NewPrintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "print <statement-file>",
		Short: "Print a statement's header and payload without verifying its signature",
		Long: `Read a compact JWS entity statement or trust mark from a file and print
its protected header type and JSON payload.

No signature verification is performed.

	fedctl print entity-configuration.jwt
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading statement from %q: %w", args[0], err)
			}
			token := string(data)

			typ, err := jws.HeaderType(token)
			if err != nil {
				return fmt.Errorf("parsing header: %w", err)
			}
			fmt.Println("[header]")
			fmt.Printf("typ: %s\n\n", typ)

			payload, err := jws.PeekPayload(token)
			if err != nil {
				return fmt.Errorf("reading payload: %w", err)
			}
			var pretty map[string]any
			if err := json.Unmarshal(payload, &pretty); err != nil {
				return errors.New("payload is not a JSON object")
			}
			out, err := json.MarshalIndent(pretty, "", "    ")
			if err != nil {
				return fmt.Errorf("re-serializing payload: %w", err)
			}
			fmt.Println("[payload]")
			fmt.Println(string(out))
			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(printCmd)
}

// Command speclens is the operator CLI: it validates domain configurations
// and manages the database schema without starting the server.
package main

import (
	"fmt"
	"os"

	"github.com/Harshitk-cp/speclens/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "speclens",
	Short:         "Specification elicitation engine tooling",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.Load()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

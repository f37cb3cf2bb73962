package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/Harshitk-cp/speclens/internal/catalog"
	"github.com/Harshitk-cp/speclens/internal/config"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var domainsCmd = &cobra.Command{
	Use:   "domains",
	Short: "Inspect domain configurations",
}

var domainsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List discovered domains",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := openRegistry(cmd)
		if err != nil {
			return err
		}
		defer registry.Close()

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()

		ids := registry.IDs()
		if len(ids) == 0 {
			fmt.Printf("No domains under %s\n", registry.Root())
			return nil
		}
		for _, id := range ids {
			d, err := registry.Get(cmd.Context(), id)
			if err != nil {
				fmt.Printf("%s %s\n", red(id), gray("(failed to load)"))
				continue
			}
			fmt.Printf("%s %s %s\n", cyan(d.ID), d.Version, gray(d.Name))
			fmt.Printf("  questions=%d export_formats=%d conflict_rules=%d quality_analyzers=%d\n",
				d.Questions.Len(), d.ExportFormats.Len(), d.ConflictRules.Len(), d.QualityAnalyzers.Len())
		}
		return nil
	},
}

var domainsValidateCmd = &cobra.Command{
	Use:   "validate [id...]",
	Short: "Load and validate domains, reporting every problem found",
	Long: `Load each domain and run full validation.

Examples:
  # Validate every domain under DOMAINS_PATH
  speclens domains validate

  # Validate one domain from another directory
  speclens domains validate booking --path ./testdata/domains`,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := openRegistry(cmd)
		if err != nil {
			return err
		}
		defer registry.Close()

		ids := args
		if len(ids) == 0 {
			ids = registry.IDs()
		}

		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()

		failed := 0
		for _, id := range ids {
			problems := validateDomain(cmd.Context(), registry, id)
			if len(problems) == 0 {
				fmt.Printf("%s %s\n", green("✓"), id)
				continue
			}
			failed++
			fmt.Printf("%s %s\n", red("✗"), id)
			for _, p := range problems {
				fmt.Printf("    %s\n", p)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d domains invalid", failed, len(ids))
		}
		return nil
	},
}

func openRegistry(cmd *cobra.Command) (*catalog.Registry, error) {
	path, _ := cmd.Flags().GetString("path")
	if path == "" {
		path = config.DomainsPath()
	}
	registry := catalog.NewRegistry(path, zap.NewNop())
	if err := registry.Init(cmd.Context()); err != nil {
		return nil, err
	}
	return registry, nil
}

// validateDomain returns one line per problem, empty when the domain is valid.
func validateDomain(ctx context.Context, registry *catalog.Registry, id string) []string {
	_, err := registry.Get(ctx, id)
	if err == nil {
		return nil
	}
	var verrs catalog.ValidationErrors
	if errors.As(err, &verrs) {
		out := make([]string, len(verrs))
		for i, v := range verrs {
			out[i] = v.Error()
		}
		return out
	}
	return []string{err.Error()}
}

func init() {
	domainsCmd.PersistentFlags().String("path", "", "Domains root directory (defaults to DOMAINS_PATH)")
	domainsCmd.AddCommand(domainsListCmd)
	domainsCmd.AddCommand(domainsValidateCmd)
	rootCmd.AddCommand(domainsCmd)
}

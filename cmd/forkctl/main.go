// Package main provides forkctl, the forkcache command-line tool for
// validating cache configs and inspecting provider capabilities.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	forkcache "github.com/parallax-ai/forkcache"
	"github.com/parallax-ai/forkcache/capabilities"
	"github.com/parallax-ai/forkcache/internal/version"
	"github.com/parallax-ai/forkcache/providers"
	"github.com/parallax-ai/forkcache/stats"
)

func main() {
	root := &cobra.Command{
		Use:           "forkctl",
		Short:         "forkctl — provider-aware prompt cache planning tool",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(
		newValidateCmd(),
		newCapabilitiesCmd(),
		newEstimateCmd(),
		newVersionCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newValidateCmd() *cobra.Command {
	var (
		provider string
		model    string
	)

	cmd := &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a cache config file (JSON/YAML) against a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := forkcache.LoadCacheConfig(args[0])
			if err != nil {
				return err
			}

			p := providers.Parse(provider)
			caps := capabilities.Lookup(p, model)
			res := forkcache.ValidateCacheConfig(*cfg, p, model, caps)

			for _, w := range res.Warnings {
				fmt.Printf("warning: %s\n", w)
			}
			if !res.Valid {
				for _, e := range res.Errors {
					fmt.Fprintf(os.Stderr, "error: %s\n", e)
				}
				return fmt.Errorf("%s is not valid for %s/%s", args[0], p, model)
			}
			fmt.Printf("%s is valid for %s/%s\n", args[0], p, model)
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "anthropic", "target provider (anthropic, openai, gemini, bedrock)")
	cmd.Flags().StringVar(&model, "model", "", "target model identifier")

	return cmd
}

func newCapabilitiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "capabilities <provider> <model>",
		Short: "Show the resolved caching capabilities of a provider/model pair",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := providers.Parse(args[0])
			catalog, err := capabilities.LoadCatalog()
			if err != nil {
				catalog = capabilities.Catalog{}
			}
			caps := capabilities.NewResolver(catalog).Resolve(p, args[1])

			fmt.Printf("provider:        %s\n", p)
			fmt.Printf("model:           %s\n", args[1])
			fmt.Printf("supported:       %v\n", caps.Supported)
			if !caps.Supported {
				return nil
			}
			fmt.Printf("automatic:       %v\n", caps.Automatic)
			fmt.Printf("min tokens:      %d\n", caps.MinTokens)
			fmt.Printf("max breakpoints: %d\n", caps.MaxBreakpoints)
			fmt.Printf("ttl control:     %v", caps.SupportsTTL)
			if len(caps.TTLValues) > 0 {
				fmt.Printf(" %v", caps.TTLValues)
			}
			fmt.Println()
			fmt.Printf("tool caching:    %v\n", caps.SupportsToolCaching)
			fmt.Printf("strategy:        %s\n", caps.RecommendedStrategy())
			return nil
		},
	}
}

func newEstimateCmd() *cobra.Command {
	var (
		chars    int
		reuses   int
		provider string
		model    string
	)

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate cache savings for shared content before spending tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			if chars <= 0 {
				return fmt.Errorf("--chars must be positive")
			}
			rec := stats.EstimateSavings(chars, reuses, providers.Parse(provider), model)

			fmt.Printf("tier:          %s\n", rec.Tier)
			fmt.Printf("reason:        %s\n", rec.Reason)
			fmt.Printf("tokens:        %d\n", rec.EstimatedTokens)
			if rec.Tier == stats.TierRecommended {
				fmt.Printf("saved tokens:  %d\n", rec.EstimatedSavedTokens)
				fmt.Printf("saved usd:     $%.4f\n", rec.EstimatedSavingsUSD)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&chars, "chars", 0, "shared content size in characters")
	cmd.Flags().IntVar(&reuses, "reuses", 2, "expected number of reuses")
	cmd.Flags().StringVar(&provider, "provider", "anthropic", "target provider")
	cmd.Flags().StringVar(&model, "model", "", "target model identifier")

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("forkctl", version.String())
		},
	}
}

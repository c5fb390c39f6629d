// Package main provides the strand CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/richinex/strand/cli"
	"github.com/richinex/strand/config"
)

var (
	// Global flags
	provider      string
	configPath    string
	mcpServers    []string
	mcpConfigPath string
	vaultDir      string
	verbose       bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:   "strand",
		Short: "Run goals through a reason-and-act loop",
		Long: `strand drives a goal to completion by alternating between an LLM that
decides the next step and the tools, transformations, image and speech
generators that carry it out.

Every decision is validated against a JSON schema. Tool, processing and
media results are recorded in a run history the LLM can refer back to.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "", "LLM provider ("+strings.Join(config.SupportedProviders(), ", ")+")")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML settings file")
	rootCmd.PersistentFlags().StringArrayVar(&mcpServers, "mcp", nil, "MCP server command (repeatable)")
	rootCmd.PersistentFlags().StringVar(&mcpConfigPath, "mcp-config", "", "Path to MCP config file")
	rootCmd.PersistentFlags().StringVar(&vaultDir, "vault", "", "Directory exposed through the note tools")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show verbose output")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(toolsCmd())
	rootCmd.AddCommand(schemaCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func options() cli.Options {
	return cli.Options{
		Provider:      provider,
		ConfigPath:    configPath,
		MCPServers:    mcpServers,
		MCPConfigPath: mcpConfigPath,
		VaultDir:      vaultDir,
		Verbose:       verbose,
	}
}

func runCmd() *cobra.Command {
	var budget int
	var assetDir string

	cmd := &cobra.Command{
		Use:   "run [goal]",
		Short: "Execute a goal",
		Long: `Execute a goal with at most --budget reasoning steps.

The final answer is printed to stdout. Progress, metrics and logs go to
stderr. Generated images and speech are written under --assets.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := options()
			opts.Budget = budget
			opts.AssetDir = assetDir
			return cli.Run(cmd.Context(), strings.Join(args, " "), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().IntVarP(&budget, "budget", "b", 0, "Maximum reasoning steps (default from settings)")
	cmd.Flags().StringVar(&assetDir, "assets", "", "Directory for generated media")

	return cmd
}

func toolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools available to the engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ListTools(cmd.Context(), options(), cmd.OutOrStdout(), verbose)
		},
	}
}

func schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema every reasoning decision must satisfy",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.PrintSchema(cmd.OutOrStdout())
		},
	}
}

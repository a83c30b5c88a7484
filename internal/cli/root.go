// Package cli is the cobra command surface. Commands talk to the core
// through the driving ports; wiring happens once in bootstrap from the
// loaded configuration.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/quarrydocs/quarry/internal/core/ports/driving"
	"github.com/quarrydocs/quarry/internal/core/services"
	"github.com/quarrydocs/quarry/internal/logger"
)

// Services used by the commands. Set by bootstrap, or directly by
// tests.
var (
	ingestService       driving.IngestionService
	retrievalService    driving.RetrievalService
	conversationService driving.ConversationService

	// orchestrator is the concrete service behind ingestService; the
	// worker command needs its Run loop.
	orchestrator *services.Orchestrator
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "quarry",
	Short: "Document ingestion and hybrid retrieval engine",
	Long: `Quarry ingests documents through an extraction provider chain,
chunks and embeds them, and serves hybrid semantic/lexical/full-text
retrieval with reranking over the result.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		logger.SetVerbose(verbose)
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}
		return bootstrap(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "path to the config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/gazette-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "gazette-cli",
	Short: "Find OAB registrations in judicial gazette PDFs",
	Long:  "Extracts text from judicial gazette PDFs, finds mentions of OAB registrations, and ranks them by relevance. Extracted text is cached by content hash and scan history can be persisted to SQLite or Postgres.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

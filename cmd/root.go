package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/p-gag/vineyard-cli/internal/config"
	"github.com/p-gag/vineyard-cli/pkg/anthropic"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "vineyard-cli",
	Short: "Cold-climate wine producer directory pipeline",
	Long:  "Ingests Quebec and US federal permit registries, enriches producers through LLM web research, maintains a grape-variety catalogue with external passports, and merges everything into a normalized producer stream.",
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

// newAnthropicClient builds the SDK client with the configured request timeout.
func newAnthropicClient() anthropic.Client {
	var opts []anthropic.ClientOption
	if cfg.Anthropic.TimeoutSecs > 0 {
		opts = append(opts, anthropic.WithTimeout(time.Duration(cfg.Anthropic.TimeoutSecs)*time.Second))
	}
	return anthropic.NewClient(cfg.Anthropic.Key, opts...)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

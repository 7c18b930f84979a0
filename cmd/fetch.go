package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/p-gag/vineyard-cli/internal/cache"
	"github.com/p-gag/vineyard-cli/internal/source"
)

// fetchMeta is the YAML sidecar written next to the producer stream.
type fetchMeta struct {
	RunID     string         `yaml:"run_id"`
	FetchedAt time.Time      `yaml:"fetched_at"`
	Producers int            `yaml:"producers"`
	Sources   []source.Stats `yaml:"sources"`
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download permit registries and build the unified producer stream",
	Long: `Fetch the Quebec permit registry and the federal permit CSV, normalize
both to the unified producer schema, fold in manually researched producers,
and write the combined stream plus a metadata sidecar.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := os.MkdirAll(cfg.Data.Dir, 0o755); err != nil {
			return eris.Wrapf(err, "fetch: create data dir %s", cfg.Data.Dir)
		}

		timeout := time.Duration(cfg.Sources.TimeoutSecs) * time.Second
		adapters := []source.Adapter{
			source.NewQuebec(cfg.Sources.QuebecURL, filepath.Join(cfg.Data.Dir, cfg.Sources.QuebecRawFile), timeout),
		}
		if cfg.Sources.FederalCSV != "" {
			adapters = append(adapters, source.NewFederal(cfg.Sources.FederalCSV, cfg.Sources.FederalStates))
		}
		if cfg.Sources.ResearchFile != "" {
			adapters = append(adapters, source.NewResearch(cfg.Sources.ResearchFile))
		}

		producers, stats, err := source.Combine(ctx, adapters)
		if err != nil {
			return err
		}

		if err := cache.WriteLines(cfg.Data.ProducersPath(), producers); err != nil {
			return err
		}

		meta := fetchMeta{
			RunID:     uuid.NewString(),
			FetchedAt: time.Now().UTC(),
			Producers: len(producers),
			Sources:   stats,
		}
		raw, err := yaml.Marshal(meta)
		if err != nil {
			return eris.Wrap(err, "fetch: marshal metadata")
		}
		if err := os.WriteFile(cfg.Data.ProducersMetaPath(), raw, 0o644); err != nil {
			return eris.Wrap(err, "fetch: write metadata")
		}

		log := zap.L().With(zap.String("command", "fetch"))
		for _, s := range stats {
			log.Info("source fetched",
				zap.String("source", string(s.Source)),
				zap.Int("raw", s.Raw),
				zap.Int("kept", s.Kept),
			)
		}
		log.Info("producer stream written",
			zap.String("path", cfg.Data.ProducersPath()),
			zap.Int("producers", len(producers)),
		)
		return nil
	},
}

func init() { rootCmd.AddCommand(fetchCmd) }

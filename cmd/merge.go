package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/p-gag/vineyard-cli/internal/cache"
	"github.com/p-gag/vineyard-cli/internal/merge"
	"github.com/p-gag/vineyard-cli/internal/model"
	"github.com/p-gag/vineyard-cli/internal/variety"
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Assemble the final normalized producer stream",
	Long: `Join the enrichment and geolocation caches onto the producer stream,
filter to wine producers, canonicalize cépages and wine types through the
variety catalogue, and write the final stream. Running it twice over
unchanged inputs produces byte-identical output.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		producers, err := cache.ReadLines[model.Producer](cfg.Data.ProducersPath())
		if err != nil {
			return eris.Wrap(err, "merge: load producer stream (run fetch first)")
		}

		enrichment, err := cache.NewStore[model.EnrichmentRecord](cfg.Data.EnrichmentCachePath()).Load()
		if err != nil {
			return eris.Wrap(err, "merge: load enrichment cache")
		}
		geolocation, err := cache.NewStore[model.GeolocationRecord](cfg.Data.GeolocationCachePath()).Load()
		if err != nil {
			return eris.Wrap(err, "merge: load geolocation cache")
		}
		cat, err := variety.Load(cfg.Data.CataloguePath())
		if err != nil {
			return err
		}

		merger := merge.NewMerger(enrichment, geolocation, cat,
			cfg.Pipeline.VerifiedOverridesClassification)
		out, summary, err := merger.Merge(producers)
		if err != nil {
			return err
		}

		if err := cache.WriteLines(cfg.Data.FinalProducersPath(), out); err != nil {
			return err
		}
		if err := cat.Save(); err != nil {
			return err
		}

		zap.L().Info("merge finished",
			zap.Int("input", summary.Input),
			zap.Int("kept", summary.Kept),
			zap.Int("dropped_wines", summary.DroppedWines),
			zap.Int("unresolved_cepages", summary.Unresolved),
		)
		fmt.Printf("Wrote %d wine producers to %s (%d dropped wines, %d unresolved cépages).\n",
			summary.Kept, cfg.Data.FinalProducersPath(), summary.DroppedWines, summary.Unresolved)
		return nil
	},
}

func init() { rootCmd.AddCommand(mergeCmd) }

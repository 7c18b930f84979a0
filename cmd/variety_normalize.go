package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/p-gag/vineyard-cli/internal/cache"
	"github.com/p-gag/vineyard-cli/internal/model"
	"github.com/p-gag/vineyard-cli/internal/variety"
)

var varietyNormalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Expand the catalogue's alias set from observed cépages",
	Long: `Scan the enrichment cache for cépage strings the catalogue cannot resolve
and ask the model to map them: aliases onto existing varieties, new canonical
entries, or the Unknown/Fruit buckets. Each pass is strictly additive; run
repeatedly until nothing is left unmapped.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.Anthropic.Key == "" {
			return eris.New("variety normalize: anthropic API key not configured")
		}

		limit, _ := cmd.Flags().GetInt("limit")
		if !cmd.Flags().Changed("limit") && cfg.Variety.BatchLimit > 0 {
			limit = cfg.Variety.BatchLimit
		}
		iterations, _ := cmd.Flags().GetInt("iterations")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		records, err := cache.ReadLines[model.EnrichmentRecord](cfg.Data.EnrichmentCachePath())
		if err != nil {
			return eris.Wrap(err, "variety normalize: load enrichment cache (run enrich first)")
		}

		cat, err := variety.Load(cfg.Data.CataloguePath())
		if err != nil {
			return err
		}
		ensureBuckets(cat)

		normalizer := variety.NewNormalizer(
			newAnthropicClient(),
			cfg.Anthropic.EnrichModel,
			limit,
		)

		log := zap.L().With(zap.String("command", "variety.normalize"))
		for pass := 1; pass <= iterations; pass++ {
			unmapped := variety.UnmappedCepages(records, cat)
			if len(unmapped) == 0 {
				fmt.Println("Every observed cépage resolves; nothing to normalize.")
				break
			}

			applied, err := normalizer.Normalize(ctx, cat, unmapped, dryRun)
			if err != nil {
				return err
			}
			log.Info("normalize pass finished",
				zap.Int("pass", pass),
				zap.Int("unmapped", len(unmapped)),
				zap.Int("additions", len(applied)),
				zap.Bool("dry_run", dryRun),
			)
			for _, add := range applied {
				fmt.Printf("  %s <- %v\n", add.Canonical, add.Aliases)
			}
			if dryRun {
				break
			}
		}

		normalizer.Usage().LogCost(cfg.Anthropic.EnrichModel, "variety.normalize")
		if dryRun {
			return nil
		}
		return cat.Save()
	},
}

// ensureBuckets seeds the two catch-all buckets on first use.
func ensureBuckets(cat *variety.Catalogue) {
	for _, bucket := range []string{model.BucketUnknown, model.BucketFruit} {
		if _, ok := cat.Get(bucket); !ok {
			if err := cat.AddVariety(bucket, nil, false); err != nil {
				zap.L().Warn("failed to seed bucket", zap.String("bucket", bucket), zap.Error(err))
			}
		}
	}
}

func init() {
	varietyNormalizeCmd.Flags().Int("limit", 50, "unmapped strings per model call")
	varietyNormalizeCmd.Flags().Int("iterations", 1, "normalization passes to run")
	varietyNormalizeCmd.Flags().Bool("dry-run", false, "print proposals without applying them")
	varietyCmd.AddCommand(varietyNormalizeCmd)
}

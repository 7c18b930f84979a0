package main

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/p-gag/vineyard-cli/internal/cache"
	"github.com/p-gag/vineyard-cli/internal/model"
	"github.com/p-gag/vineyard-cli/internal/variety"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print cache coverage and catalogue counters",
	RunE: func(cmd *cobra.Command, _ []string) error {
		producers, err := cache.ReadLines[model.Producer](cfg.Data.ProducersPath())
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}

		enrichStore := cache.NewStore[model.EnrichmentRecord](cfg.Data.EnrichmentCachePath())
		enrichment, err := enrichStore.Load()
		if err != nil {
			return err
		}
		geolocation, err := cache.NewStore[model.GeolocationRecord](cfg.Data.GeolocationCachePath()).Load()
		if err != nil {
			return err
		}

		fmt.Printf("Producers fetched:    %d\n", len(producers))
		fmt.Printf("Enrichment records:   %d\n", len(enrichment))

		byStatus := make(map[model.RecordStatus]int)
		byClass := make(map[model.Classification]int)
		for _, rec := range enrichment {
			byStatus[rec.Status]++
			if rec.Classification != "" {
				byClass[rec.Classification]++
			}
		}
		fmt.Printf("  ok: %d  early_exit: %d  error: %d\n",
			byStatus[model.RecordOK], byStatus[model.RecordEarlyExit], byStatus[model.RecordError])

		classes := make([]string, 0, len(byClass))
		for c := range byClass {
			classes = append(classes, string(c))
		}
		sort.Strings(classes)
		for _, c := range classes {
			fmt.Printf("  %-14s %d\n", c, byClass[model.Classification(c)])
		}

		located := 0
		for _, rec := range geolocation {
			if rec.Located() {
				located++
			}
		}
		fmt.Printf("Geolocation records:  %d (%d located)\n", len(geolocation), located)

		cat, err := variety.Load(cfg.Data.CataloguePath())
		if err != nil {
			return err
		}
		byPassport := make(map[model.PassportStatus]int)
		for _, v := range cat.Varieties() {
			byPassport[v.PassportStatus]++
		}
		fmt.Printf("Catalogue varieties:  %d\n", cat.Len())
		fmt.Printf("  found: %d  not_found: %d  unassigned: %d  error: %d  skipped: %d\n",
			byPassport[model.PassportFound], byPassport[model.PassportNotFound],
			byPassport[model.PassportUnassigned], byPassport[model.PassportError],
			byPassport[model.PassportSkippedNotGrape])

		final, err := cache.ReadLines[model.Producer](cfg.Data.FinalProducersPath())
		if err == nil {
			fmt.Printf("Final producers:      %d\n", len(final))
		}
		return nil
	},
}

func init() { rootCmd.AddCommand(statusCmd) }

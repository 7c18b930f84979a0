package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/p-gag/vineyard-cli/internal/cache"
	"github.com/p-gag/vineyard-cli/internal/cost"
	"github.com/p-gag/vineyard-cli/internal/model"
	"github.com/p-gag/vineyard-cli/internal/pipeline"
	"github.com/p-gag/vineyard-cli/internal/research"
	"github.com/p-gag/vineyard-cli/pkg/geocode"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Classify, geocode, and research producers",
	Long: `Run the resumable enrichment pipeline: classify each producer, early-exit
non-wine businesses, geocode and deep-research the rest. Every result is a
durable cache record, so an interrupted run resumes where it stopped.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.Anthropic.Key == "" {
			return eris.New("enrich: anthropic API key not configured")
		}

		threads, _ := cmd.Flags().GetInt("threads")
		if !cmd.Flags().Changed("threads") && cfg.Pipeline.Threads > 0 {
			threads = cfg.Pipeline.Threads
		}
		delaySecs, _ := cmd.Flags().GetFloat64("delay")
		if !cmd.Flags().Changed("delay") {
			delaySecs = cfg.Pipeline.DelaySecs
		}
		limit, _ := cmd.Flags().GetInt("limit")
		yes, _ := cmd.Flags().GetBool("yes")
		reprocessErrors, _ := cmd.Flags().GetBool("reprocess-errors")

		producers, err := cache.ReadLines[model.Producer](cfg.Data.ProducersPath())
		if err != nil {
			return eris.Wrap(err, "enrich: load producer stream (run fetch first)")
		}

		researcher := research.NewResearcher(
			newAnthropicClient(),
			cfg.Anthropic.ClassifyModel,
			cfg.Anthropic.EnrichModel,
			research.WithMaxWebSearch(int64(cfg.Anthropic.MaxWebSearch)),
		)
		geocoder := newGeocoder()

		enrichCache := cache.NewStore[model.EnrichmentRecord](cfg.Data.EnrichmentCachePath())
		geoCache := cache.NewStore[model.GeolocationRecord](cfg.Data.GeolocationCachePath())
		if _, err := enrichCache.Rewrite(); err != nil {
			return err
		}
		if _, err := geoCache.Rewrite(); err != nil {
			return err
		}

		calc := cost.NewCalculator(cost.DefaultRates())
		tracker := cost.NewTracker(calc)

		bar := pb.New(0)
		bar.Set(pb.CleanOnFinish, true)
		opts := []pipeline.Option{
			pipeline.WithThreads(threads),
			pipeline.WithDelay(time.Duration(delaySecs * float64(time.Second))),
			pipeline.WithRunID(uuid.NewString()),
			pipeline.WithProgress(func() { bar.Increment() }),
		}
		if reprocessErrors {
			opts = append(opts, pipeline.WithReprocessErrors())
		}
		driver := pipeline.NewDriver(
			researcher, geocoder, enrichCache, geoCache, tracker,
			cfg.Anthropic.ClassifyModel, cfg.Anthropic.EnrichModel,
			opts...,
		)

		pending, err := driver.Plan(producers, limit)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			fmt.Println("Nothing to do: every producer already has a cache record.")
			return nil
		}

		estimate := calc.EstimateRun(len(pending), cfg.Pipeline.WineRatio,
			cfg.Anthropic.ClassifyModel, cfg.Anthropic.EnrichModel)
		fmt.Println(estimate.String())
		if !yes && !confirm("Proceed?") {
			fmt.Println("Aborted.")
			return nil
		}

		bar.SetTotal(int64(len(pending)))
		bar.Start()
		summary, err := driver.Run(ctx, pending)
		bar.Finish()
		if err != nil {
			return err
		}

		calls, usage, spend := tracker.Report()
		zap.L().Info("enrichment run finished",
			zap.Int("processed", summary.Processed),
			zap.Int("early_exits", summary.EarlyExits),
			zap.Int("enriched", summary.Enriched),
			zap.Int("geocoded", summary.Geocoded),
			zap.Int("errors", summary.Errors),
			zap.Int("llm_calls", calls),
			zap.Int64("input_tokens", usage.InputTokens),
			zap.Int64("output_tokens", usage.OutputTokens),
			zap.Float64("spend_usd", spend),
		)
		fmt.Printf("Processed %d producers (%d early exits, %d enriched, %d errors), $%.2f spent.\n",
			summary.Processed, summary.EarlyExits, summary.Enriched, summary.Errors, spend)
		return nil
	},
}

// newGeocoder wires the Nominatim tier plus the optional Google tier.
func newGeocoder() *geocode.Client {
	var nominatimOpts []geocode.NominatimOption
	if cfg.Geocode.MinDelaySecs > 0 {
		nominatimOpts = append(nominatimOpts,
			geocode.WithNominatimMinDelay(time.Duration(cfg.Geocode.MinDelaySecs*float64(time.Second))))
	}
	free := geocode.NewNominatim(cfg.Geocode.NominatimBaseURL, cfg.Geocode.UserAgent, nominatimOpts...)

	var opts []geocode.Option
	if cfg.Geocode.GoogleKey != "" {
		opts = append(opts, geocode.WithCommercialProvider(geocode.NewGoogle(cfg.Geocode.GoogleKey)))
	}
	return geocode.NewClient(free, opts...)
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func init() {
	enrichCmd.Flags().Int("threads", 10, "worker pool size")
	enrichCmd.Flags().Float64("delay", 1, "minimum seconds between LLM calls")
	enrichCmd.Flags().Int("limit", 0, "process at most N producers (0 = all)")
	enrichCmd.Flags().Bool("yes", false, "skip the cost confirmation prompt")
	enrichCmd.Flags().Bool("reprocess-errors", false, "retry producers whose cached record is an error")
	rootCmd.AddCommand(enrichCmd)
}

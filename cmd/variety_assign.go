package main

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/p-gag/vineyard-cli/internal/model"
	"github.com/p-gag/vineyard-cli/internal/variety"
	"github.com/p-gag/vineyard-cli/internal/vivc"
)

var varietyAssignCmd = &cobra.Command{
	Use:   "assign",
	Short: "Resolve catalogue passports for unassigned varieties",
	Long: `For every grape variety without a passport, run the search agent against
the external grape catalogue, attach the resolved passport, and walk its
parents to pull unknown ancestor varieties into the catalogue.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.Anthropic.Key == "" {
			return eris.New("variety assign: anthropic API key not configured")
		}

		limit, _ := cmd.Flags().GetInt("limit")
		reprocessNotFound, _ := cmd.Flags().GetBool("reprocess-not-found")
		reprocessErrors, _ := cmd.Flags().GetBool("reprocess-errors")

		cat, err := variety.Load(cfg.Data.CataloguePath())
		if err != nil {
			return err
		}

		var clientOpts []vivc.ClientOption
		if cfg.VIVC.BaseURL != "" {
			clientOpts = append(clientOpts, vivc.WithBaseURL(cfg.VIVC.BaseURL))
		}
		if cfg.VIVC.MinDelaySecs > 0 {
			clientOpts = append(clientOpts,
				vivc.WithMinDelay(time.Duration(cfg.VIVC.MinDelaySecs*float64(time.Second))))
		}
		if cfg.VIVC.TimeoutSecs > 0 {
			clientOpts = append(clientOpts, vivc.WithHTTPClient(
				&http.Client{Timeout: time.Duration(cfg.VIVC.TimeoutSecs) * time.Second}))
		}
		client, err := vivc.NewClient(cfg.Data.HTTPCachePath(), clientOpts...)
		if err != nil {
			return err
		}

		bar := pb.New(0)
		bar.Set(pb.CleanOnFinish, true)
		resolverOpts := []vivc.ResolverOption{
			vivc.WithMaxIterations(cfg.VIVC.MaxIterations),
			vivc.WithMaxDepth(cfg.VIVC.MaxDepth),
			vivc.WithSearchLimit(cfg.VIVC.SearchLimit),
			vivc.WithResolverProgress(func() { bar.Increment() }),
		}
		if reprocessNotFound {
			resolverOpts = append(resolverOpts, vivc.WithReprocessNotFound())
		}
		if reprocessErrors {
			resolverOpts = append(resolverOpts, vivc.WithReprocessErrors())
		}
		resolver := vivc.NewResolver(client,
			newAnthropicClient(),
			cfg.Anthropic.ResolveModel,
			resolverOpts...,
		)

		pending := 0
		for _, v := range cat.Varieties() {
			if !v.IsGrape {
				continue
			}
			switch v.PassportStatus {
			case model.PassportUnassigned:
				pending++
			case model.PassportNotFound:
				if reprocessNotFound {
					pending++
				}
			case model.PassportError:
				if reprocessErrors {
					pending++
				}
			}
		}
		if pending == 0 {
			fmt.Println("Every grape variety already has a passport outcome.")
			return nil
		}
		if limit > 0 && pending > limit {
			pending = limit
		}

		bar.SetTotal(int64(pending))
		bar.Start()
		summary, err := resolver.Assign(ctx, cat, limit)
		bar.Finish()
		if err != nil {
			return err
		}

		if saveErr := cat.Save(); saveErr != nil {
			return saveErr
		}

		summary.Usage.LogCost(cfg.Anthropic.ResolveModel, "variety.assign")
		zap.L().Info("passport assignment finished",
			zap.Int("found", summary.Found),
			zap.Int("not_found", summary.NotFound),
			zap.Int("errors", summary.Errors),
			zap.Int("ancestors_added", summary.Ancestors),
			zap.Int("cached_pages", client.CachedPages()),
		)
		fmt.Printf("Resolved %d passports (%d not found, %d errors), %d ancestors added.\n",
			summary.Found, summary.NotFound, summary.Errors, summary.Ancestors)
		return nil
	},
}

func init() {
	varietyAssignCmd.Flags().Int("limit", 0, "resolve at most N varieties (0 = all)")
	varietyAssignCmd.Flags().Bool("reprocess-not-found", false, "retry varieties previously marked not_found")
	varietyAssignCmd.Flags().Bool("reprocess-errors", false, "retry varieties whose previous resolution failed")
	varietyCmd.AddCommand(varietyAssignCmd)
}

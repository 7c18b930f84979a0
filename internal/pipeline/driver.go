// Package pipeline orchestrates the resumable enrichment run: classification,
// geolocation, and deep research across all producers, with per-record cache
// writes so a restarted run never repays for finished work.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/p-gag/vineyard-cli/internal/cache"
	"github.com/p-gag/vineyard-cli/internal/cost"
	"github.com/p-gag/vineyard-cli/internal/model"
	"github.com/p-gag/vineyard-cli/internal/research"
	"github.com/p-gag/vineyard-cli/pkg/geocode"
)

// Driver runs the enrichment pipeline over a producer stream.
type Driver struct {
	researcher    *research.Researcher
	geocoder      *geocode.Client
	enrichCache   *cache.Store[model.EnrichmentRecord]
	geoCache      *cache.Store[model.GeolocationRecord]
	tracker       *cost.Tracker
	classifyModel string
	enrichModel   string

	threads         int
	delay           time.Duration
	reprocessErrors bool
	runID           string
	onRecord        func()

	mu      sync.Mutex
	summary Summary
}

// Summary counts pipeline outcomes for one run.
type Summary struct {
	Processed  int
	EarlyExits int
	Enriched   int
	Geocoded   int
	Errors     int
}

// Option configures a Driver.
type Option func(*Driver)

// WithThreads sets the worker-pool size.
func WithThreads(n int) Option {
	return func(d *Driver) {
		if n > 0 {
			d.threads = n
		}
	}
}

// WithDelay sets the minimum interval between LLM calls across all workers.
func WithDelay(delay time.Duration) Option {
	return func(d *Driver) { d.delay = delay }
}

// WithReprocessErrors re-runs producers whose cache record is an error
// marker instead of skipping them.
func WithReprocessErrors() Option {
	return func(d *Driver) { d.reprocessErrors = true }
}

// WithRunID stamps cache records written by this run.
func WithRunID(id string) Option {
	return func(d *Driver) { d.runID = id }
}

// WithProgress installs a callback invoked once per completed producer.
func WithProgress(fn func()) Option {
	return func(d *Driver) { d.onRecord = fn }
}

// NewDriver wires the pipeline stages together.
func NewDriver(
	researcher *research.Researcher,
	geocoder *geocode.Client,
	enrichCache *cache.Store[model.EnrichmentRecord],
	geoCache *cache.Store[model.GeolocationRecord],
	tracker *cost.Tracker,
	classifyModel, enrichModel string,
	opts ...Option,
) *Driver {
	d := &Driver{
		researcher:    researcher,
		geocoder:      geocoder,
		enrichCache:   enrichCache,
		geoCache:      geoCache,
		tracker:       tracker,
		classifyModel: classifyModel,
		enrichModel:   enrichModel,
		threads:       10,
		delay:         time.Second,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Plan returns the producers this run would actually process: those without
// a cache entry, plus error-marked ones when reprocessing is on. limit <= 0
// means unlimited.
func (d *Driver) Plan(producers []model.Producer, limit int) ([]model.Producer, error) {
	cached, err := d.enrichCache.Load()
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load enrichment cache")
	}

	var pending []model.Producer
	for _, p := range producers {
		if rec, ok := cached[p.PermitID]; ok {
			if !(d.reprocessErrors && rec.Status == model.RecordError) {
				continue
			}
		}
		pending = append(pending, p)
		if limit > 0 && len(pending) >= limit {
			break
		}
	}
	return pending, nil
}

// Run processes the planned producers with a bounded worker pool. Worker
// failures are absorbed into error cache records; Run itself only fails on
// cache I/O.
func (d *Driver) Run(ctx context.Context, pending []model.Producer) (Summary, error) {
	geoCached, err := d.geoCache.Load()
	if err != nil {
		return Summary{}, eris.Wrap(err, "pipeline: load geolocation cache")
	}

	var limiter *rate.Limiter
	if d.delay > 0 {
		limiter = rate.NewLimiter(rate.Every(d.delay), 1)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.threads)

	var geoMu sync.Mutex
	hasGeo := func(permitID string) bool {
		geoMu.Lock()
		defer geoMu.Unlock()
		_, ok := geoCached[permitID]
		return ok
	}
	markGeo := func(rec model.GeolocationRecord) {
		geoMu.Lock()
		geoCached[rec.PermitID] = rec
		geoMu.Unlock()
	}

	for _, p := range pending {
		producer := p
		g.Go(func() error {
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return err
				}
			}
			err := d.process(ctx, producer, hasGeo, markGeo, limiter)
			d.count(func(s *Summary) { s.Processed++ })
			if d.onRecord != nil {
				d.onRecord()
			}
			return err
		})
	}

	err = g.Wait()
	d.mu.Lock()
	summary := d.summary
	d.mu.Unlock()
	return summary, err
}

// process runs one producer through classify → geocode → enrich and writes
// exactly one enrichment cache record.
func (d *Driver) process(
	ctx context.Context,
	p model.Producer,
	hasGeo func(string) bool,
	markGeo func(model.GeolocationRecord),
	limiter *rate.Limiter,
) error {
	log := zap.L().With(zap.String("permit_id", p.PermitID), zap.String("name", p.BusinessName))

	classified, err := d.researcher.Classify(ctx, p)
	if err != nil {
		return d.writeError(p, "", err)
	}
	d.tracker.Record(d.classifyModel, classified.Usage)

	if !classified.Classification.IsWine() {
		log.Info("early exit", zap.String("classification", string(classified.Classification)))
		d.count(func(s *Summary) { s.EarlyExits++ })
		rec := model.EnrichmentRecord{
			PermitID:       p.PermitID,
			Status:         model.RecordEarlyExit,
			Classification: classified.Classification,
			Website:        classified.Website,
			SocialMedia:    classified.SocialMedia,
			SkipReason:     "not_wine_producer",
			RunID:          d.runID,
			EnrichedAt:     time.Now().UTC(),
		}
		if err := d.enrichCache.Append(rec); err != nil {
			return eris.Wrapf(err, "pipeline: write early-exit record %s", p.PermitID)
		}
		return nil
	}

	if !hasGeo(p.PermitID) {
		if rec, err := d.geocodeProducer(ctx, p); err != nil {
			log.Warn("geocoding failed", zap.Error(err))
		} else {
			if err := d.geoCache.Append(rec); err != nil {
				return eris.Wrapf(err, "pipeline: write geolocation record %s", p.PermitID)
			}
			markGeo(rec)
			if rec.Located() {
				d.count(func(s *Summary) { s.Geocoded++ })
			}
		}
	}

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
	}

	enriched, err := d.researcher.Enrich(ctx, p)
	if err != nil {
		return d.writeError(p, classified.Classification, err)
	}
	d.tracker.Record(d.enrichModel, enriched.Usage)

	rec := model.EnrichmentRecord{
		PermitID:       p.PermitID,
		Status:         model.RecordOK,
		Classification: classified.Classification,
		Website:        firstNonEmpty(enriched.Website, classified.Website),
		SocialMedia:    mergeOrdered(classified.SocialMedia, enriched.SocialMedia),
		WineLabel:      enriched.WineLabel,
		Activities:     enriched.Activities,
		Wines:          enriched.Wines,
		Verified:       enriched.Verified,
		RunID:          d.runID,
		EnrichedAt:     time.Now().UTC(),
	}
	if err := d.enrichCache.Append(rec); err != nil {
		return eris.Wrapf(err, "pipeline: write enrichment record %s", p.PermitID)
	}
	d.count(func(s *Summary) { s.Enriched++ })
	log.Info("enriched", zap.Int("wines", len(rec.Wines)), zap.String("verified", string(rec.Verified)))
	return nil
}

// writeError converts a stage failure into an error cache record so the
// producer is not retried on the next run.
func (d *Driver) writeError(p model.Producer, class model.Classification, cause error) error {
	zap.L().Error("producer failed", zap.String("permit_id", p.PermitID), zap.Error(cause))
	d.count(func(s *Summary) { s.Errors++ })
	rec := model.EnrichmentRecord{
		PermitID:       p.PermitID,
		Status:         model.RecordError,
		Classification: class,
		Error:          cause.Error(),
		RunID:          d.runID,
		EnrichedAt:     time.Now().UTC(),
	}
	if err := d.enrichCache.Append(rec); err != nil {
		return eris.Wrapf(err, "pipeline: write error record %s", p.PermitID)
	}
	return nil
}

func (d *Driver) geocodeProducer(ctx context.Context, p model.Producer) (model.GeolocationRecord, error) {
	result, err := d.geocoder.Geocode(ctx, geocode.Request{
		Address:    p.Address,
		City:       p.City,
		State:      p.StateProvince,
		Country:    p.Country,
		PostalCode: p.PostalCode,
	})
	if err != nil {
		return model.GeolocationRecord{}, err
	}
	if result == nil {
		// Null marker suppresses future attempts.
		return model.GeolocationRecord{PermitID: p.PermitID, Method: model.GeocodeNone}, nil
	}
	return model.GeolocationRecord{
		PermitID:  p.PermitID,
		Latitude:  &result.Latitude,
		Longitude: &result.Longitude,
		Method:    model.GeocodingMethod(result.Method),
		Provider:  result.Source,
	}, nil
}

func (d *Driver) count(apply func(*Summary)) {
	d.mu.Lock()
	apply(&d.summary)
	d.mu.Unlock()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// mergeOrdered unions URL lists preserving first-seen order.
func mergeOrdered(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, v := range list {
			if v == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

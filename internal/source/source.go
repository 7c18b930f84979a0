// Package source ingests the permit registries and normalizes each one to
// the unified Producer schema. Adapters fetch their raw payload once, cache
// it to disk, and normalize from disk on later runs.
package source

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/p-gag/vineyard-cli/internal/model"
)

// Stats summarizes one adapter run for the metadata sidecar.
type Stats struct {
	Source    model.Source `yaml:"source"`
	Raw       int          `yaml:"raw"`
	Kept      int          `yaml:"kept"`
	FetchedAt time.Time    `yaml:"fetched_at"`
}

// Adapter normalizes one permit registry. Producers returned have identity
// and location fields populated and all enrichment fields empty.
type Adapter interface {
	Tag() model.Source
	Fetch(ctx context.Context) ([]model.Producer, Stats, error)
}

// Combine runs every adapter, concatenates the outputs sorted by
// (source, business_name), and verifies permit-id uniqueness across sources.
// A collision is a schema violation and aborts the run.
func Combine(ctx context.Context, adapters []Adapter) ([]model.Producer, []Stats, error) {
	var producers []model.Producer
	var stats []Stats

	for _, a := range adapters {
		ps, st, err := a.Fetch(ctx)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "source: fetch %s", a.Tag())
		}
		producers = append(producers, ps...)
		stats = append(stats, st)
	}

	sort.Slice(producers, func(i, j int) bool {
		if producers[i].Source != producers[j].Source {
			return producers[i].Source < producers[j].Source
		}
		return producers[i].BusinessName < producers[j].BusinessName
	})

	seen := make(map[string]model.Source, len(producers))
	for _, p := range producers {
		if prev, ok := seen[p.PermitID]; ok {
			return nil, nil, eris.Errorf(
				"source: duplicate permit_id %q from %s and %s", p.PermitID, prev, p.Source)
		}
		seen[p.PermitID] = p.Source
	}

	return producers, stats, nil
}

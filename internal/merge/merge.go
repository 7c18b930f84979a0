// Package merge assembles the final producer stream: enrichment and
// geolocation caches joined onto the permit stream, filtered to wine
// producers, with cépage and wine-type vocabularies normalized through the
// variety catalogue.
package merge

import (
	"strings"

	"go.uber.org/zap"

	"github.com/p-gag/vineyard-cli/internal/model"
	"github.com/p-gag/vineyard-cli/internal/variety"
)

// Merger joins the pipeline caches into the normalized producer stream.
type Merger struct {
	enrichment  map[string]model.EnrichmentRecord
	geolocation map[string]model.GeolocationRecord
	catalogue   *variety.Catalogue

	// verifiedOverrides makes verified_wine_producer=false drop a producer
	// even when its classification is in the wine subset.
	verifiedOverrides bool
}

// Summary counts merge outcomes.
type Summary struct {
	Input        int
	Kept         int
	DroppedWines int
	Unresolved   int
}

// NewMerger builds a merger over loaded cache indexes.
func NewMerger(
	enrichment map[string]model.EnrichmentRecord,
	geolocation map[string]model.GeolocationRecord,
	catalogue *variety.Catalogue,
	verifiedOverrides bool,
) *Merger {
	return &Merger{
		enrichment:        enrichment,
		geolocation:       geolocation,
		catalogue:         catalogue,
		verifiedOverrides: verifiedOverrides,
	}
}

// Merge produces the final stream in input order and refreshes the
// catalogue's no_wine flags from the surviving cépages. Running it twice over
// unchanged inputs yields identical output.
func (m *Merger) Merge(producers []model.Producer) ([]model.Producer, Summary, error) {
	summary := Summary{Input: len(producers)}
	referenced := make(map[string]bool)

	var out []model.Producer
	for _, p := range producers {
		rec, ok := m.enrichment[p.PermitID]
		if !ok {
			continue
		}

		p.Classification = rec.Classification
		p.Website = rec.Website
		p.SocialMedia = rec.SocialMedia
		p.WineLabel = rec.WineLabel
		p.Activities = rec.Activities
		p.Verified = rec.Verified
		p.Source = sourceFromCountry(p.Country, p.Source)

		if !m.isWineProducer(rec) {
			continue
		}

		if geo, ok := m.geolocation[p.PermitID]; ok && geo.Located() {
			p.Latitude = geo.Latitude
			p.Longitude = geo.Longitude
			p.GeocodingMethod = geo.Method
		}

		wines, dropped, unresolved := m.normalizeWines(rec.Wines, referenced)
		summary.DroppedWines += dropped
		summary.Unresolved += unresolved
		p.Wines = wines

		out = append(out, p)
		summary.Kept++
	}

	m.refreshNoWine(referenced)
	return out, summary, nil
}

// isWineProducer applies the verification filter: an explicit true keeps, an
// explicit false drops (always, or only for non-wine classifications when
// override is off), anything else falls back to the classification subset.
func (m *Merger) isWineProducer(rec model.EnrichmentRecord) bool {
	switch rec.Verified {
	case model.VerifiedTrue:
		return true
	case model.VerifiedFalse:
		if m.verifiedOverrides {
			return false
		}
	}
	return rec.Classification.IsWine()
}

// normalizeWines canonicalizes cépages and wine types. A wine is dropped
// when any of its cépages resolves to the non-grape bucket.
func (m *Merger) normalizeWines(wines []model.Wine, referenced map[string]bool) (out []model.Wine, dropped, unresolved int) {
	for _, wine := range wines {
		keep := true
		cepages := make([]string, 0, len(wine.Cepages))
		for _, raw := range wine.Cepages {
			canonical, ok := m.catalogue.Lookup(raw)
			if !ok {
				unresolved++
				cepages = append(cepages, raw)
				continue
			}
			if canonical == model.BucketFruit {
				keep = false
				break
			}
			cepages = append(cepages, canonical)
		}
		if !keep {
			dropped++
			continue
		}

		wine.Cepages = cepages
		wine.Type = variety.NormalizeWineType(wine.Type)
		for _, c := range cepages {
			if _, ok := m.catalogue.Lookup(c); ok {
				referenced[c] = true
			}
		}
		out = append(out, wine)
	}
	return out, dropped, unresolved
}

// refreshNoWine flags every catalogue variety not referenced by a surviving
// cépage and clears the flag on varieties back in use.
func (m *Merger) refreshNoWine(referenced map[string]bool) {
	for _, v := range m.catalogue.Varieties() {
		if err := m.catalogue.SetNoWine(v.Name, !referenced[v.Name]); err != nil {
			zap.L().Warn("failed to update no_wine flag",
				zap.String("variety", v.Name), zap.Error(err))
		}
	}
}

// sourceFromCountry recomputes the registry tag from the country; manually
// researched producers keep their tag.
func sourceFromCountry(country string, fallback model.Source) model.Source {
	if fallback == model.SourceResearch {
		return fallback
	}
	switch strings.ToLower(country) {
	case "canada":
		return model.SourceQuebec
	case "united states", "usa", "us":
		return model.SourceFederal
	default:
		return fallback
	}
}

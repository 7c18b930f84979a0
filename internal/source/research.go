package source

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/p-gag/vineyard-cli/internal/cache"
	"github.com/p-gag/vineyard-cli/internal/model"
)

// researchRow is one line of the hand-maintained provincial research file,
// covering producers without a machine-readable permit registry.
type researchRow struct {
	ProvinceCode string `json:"province_code"`
	Province     string `json:"province"`
	BusinessName string `json:"business_name"`
	City         string `json:"city,omitempty"`
	Address      string `json:"address,omitempty"`
	PostalCode   string `json:"postal_code,omitempty"`
}

// ResearchAdapter ingests the line-delimited research file.
type ResearchAdapter struct {
	path string
}

// NewResearch creates the adapter.
func NewResearch(path string) *ResearchAdapter {
	return &ResearchAdapter{path: path}
}

// Tag implements Adapter.
func (a *ResearchAdapter) Tag() model.Source { return model.SourceResearch }

// Fetch implements Adapter. Permit ids are generated as the province code
// concatenated with the uppercase-letters-only form of the business name,
// which is deterministic and cannot collide with real permit numbers.
func (a *ResearchAdapter) Fetch(ctx context.Context) ([]model.Producer, Stats, error) {
	if ctx.Err() != nil {
		return nil, Stats{}, eris.Wrap(ctx.Err(), "research: cancelled")
	}

	rows, err := cache.ReadLines[researchRow](a.path)
	if err != nil {
		return nil, Stats{}, eris.Wrap(err, "research: read file")
	}

	stats := Stats{Source: a.Tag(), FetchedAt: time.Now().UTC()}
	var producers []model.Producer
	for _, row := range rows {
		stats.Raw++
		if row.BusinessName == "" || row.ProvinceCode == "" {
			zap.L().Warn("research: skipping incomplete row",
				zap.String("business_name", row.BusinessName),
				zap.String("province_code", row.ProvinceCode),
			)
			continue
		}
		producers = append(producers, model.Producer{
			PermitID:      GeneratePermitID(row.ProvinceCode, row.BusinessName),
			Source:        a.Tag(),
			Country:       "CA",
			StateProvince: row.Province,
			City:          row.City,
			PostalCode:    row.PostalCode,
			Address:       row.Address,
			BusinessName:  row.BusinessName,
		})
		stats.Kept++
	}

	return producers, stats, nil
}

// GeneratePermitID builds a synthetic permit id from the province code and
// the uppercase-letters-only form of the business name.
func GeneratePermitID(provinceCode, businessName string) string {
	var letters strings.Builder
	for _, r := range strings.ToUpper(businessName) {
		if r >= 'A' && r <= 'Z' {
			letters.WriteRune(r)
		}
	}
	return strings.ToUpper(provinceCode) + letters.String()
}

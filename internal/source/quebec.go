package source

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/p-gag/vineyard-cli/internal/model"
)

// Wine-production permit types in the Quebec registry. The open-data export
// has shipped both French and English labels over the years.
var quebecWinePermitTypes = map[string]bool{
	"production artisanale de vin": true,
	"artisanal wine production":    true,
}

// quebecWineCategory is the permit category that marks actual wine production;
// a fabricant can also hold CID (cider) or HYD (mead) on the same permit.
const quebecWineCategory = "VIN"

// quebecDocument mirrors the nested registry export:
// permit type → fabricants → permits.
type quebecDocument struct {
	PermitTypes []struct {
		TypePermis string `json:"type_permis"`
		Fabricants []struct {
			Nom        string `json:"nom"`
			Titulaire  string `json:"titulaire"`
			Adresse    string `json:"adresse"`
			Ville      string `json:"ville"`
			CodePostal string `json:"code_postal"`
			Permis     []struct {
				Numero     string   `json:"numero"`
				Categories []string `json:"categories"`
			} `json:"permis"`
		} `json:"fabricants"`
	} `json:"types_permis"`
}

// QuebecAdapter ingests the provincial permit registry JSON.
type QuebecAdapter struct {
	url     string
	rawPath string
	http    *http.Client
}

// NewQuebec creates the adapter. rawPath is where the verbatim payload is
// cached between runs.
func NewQuebec(url, rawPath string, timeout time.Duration) *QuebecAdapter {
	return &QuebecAdapter{
		url:     url,
		rawPath: rawPath,
		http:    &http.Client{Timeout: timeout},
	}
}

// Tag implements Adapter.
func (a *QuebecAdapter) Tag() model.Source { return model.SourceQuebec }

// Fetch implements Adapter. The registry is downloaded only when the raw
// cache file is absent; normalization always runs from disk.
func (a *QuebecAdapter) Fetch(ctx context.Context) ([]model.Producer, Stats, error) {
	if _, err := os.Stat(a.rawPath); os.IsNotExist(err) {
		if err := a.download(ctx); err != nil {
			return nil, Stats{}, err
		}
	}

	raw, err := os.ReadFile(a.rawPath)
	if err != nil {
		return nil, Stats{}, eris.Wrapf(err, "quebec: read raw file %s", a.rawPath)
	}

	var doc quebecDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, Stats{}, eris.Wrap(err, "quebec: parse registry")
	}

	stats := Stats{Source: a.Tag(), FetchedAt: time.Now().UTC()}
	var producers []model.Producer
	for _, pt := range doc.PermitTypes {
		isWineType := quebecWinePermitTypes[strings.ToLower(strings.TrimSpace(pt.TypePermis))]
		for _, fab := range pt.Fabricants {
			for _, permit := range fab.Permis {
				stats.Raw++
				if !isWineType || !containsCategory(permit.Categories, quebecWineCategory) {
					continue
				}
				producers = append(producers, model.Producer{
					PermitID:         permit.Numero,
					Source:           a.Tag(),
					Country:          "CA",
					StateProvince:    "Quebec",
					City:             fab.Ville,
					PostalCode:       fab.CodePostal,
					Address:          fab.Adresse,
					BusinessName:     fab.Nom,
					PermitHolder:     fab.Titulaire,
					PermitCategories: permit.Categories,
				})
				stats.Kept++
			}
		}
	}

	zap.L().Info("quebec: normalized registry",
		zap.Int("raw_permits", stats.Raw),
		zap.Int("kept", stats.Kept),
	)
	return producers, stats, nil
}

func (a *QuebecAdapter) download(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url, nil)
	if err != nil {
		return eris.Wrap(err, "quebec: build request")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "quebec: download registry")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("quebec: registry returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "quebec: read registry body")
	}

	// Raw file kept verbatim.
	if err := os.WriteFile(a.rawPath, body, 0o644); err != nil {
		return eris.Wrapf(err, "quebec: write raw file %s", a.rawPath)
	}
	zap.L().Info("quebec: cached raw registry", zap.String("path", a.rawPath), zap.Int("bytes", len(body)))
	return nil
}

func containsCategory(categories []string, want string) bool {
	for _, c := range categories {
		if strings.EqualFold(strings.TrimSpace(c), want) {
			return true
		}
	}
	return false
}

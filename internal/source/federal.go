package source

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"

	"github.com/p-gag/vineyard-cli/internal/model"
)

// federalRow is one record of the TTB permit export. The file ships Latin-1
// encoded.
type federalRow struct {
	PermitNumber  string `csv:"PERMIT_NUMBER"`
	OwnerName     string `csv:"OWNER_NAME"`
	OperatingName string `csv:"OPERATING_NAME"`
	Street        string `csv:"STREET"`
	City          string `csv:"CITY"`
	State         string `csv:"STATE"`
	Zip           string `csv:"ZIP"`
	County        string `csv:"COUNTY"`
}

// exclusionKeywords drop permit holders that are clearly not wine producers.
// Applied to the concatenation of legal and trade names.
var exclusionKeywords = []string{
	"brewing", "brewery", "brew ",
	"distillery", "distilling", "spirits",
	"cider", "cidery",
	"mead", "meadery",
	"wholesale", "importer", "retail",
}

// stateNames maps the two-letter codes of the configured allow-list to full
// names; unknown codes pass through unchanged.
var stateNames = map[string]string{
	"CT": "Connecticut",
	"IA": "Iowa",
	"MA": "Massachusetts",
	"ME": "Maine",
	"MI": "Michigan",
	"MN": "Minnesota",
	"ND": "North Dakota",
	"NH": "New Hampshire",
	"NY": "New York",
	"SD": "South Dakota",
	"VT": "Vermont",
	"WI": "Wisconsin",
}

// FederalAdapter ingests the U.S. federal wine-producer permit export.
type FederalAdapter struct {
	csvPath string
	states  map[string]bool
}

// NewFederal creates the adapter with a state allow-list of two-letter codes.
func NewFederal(csvPath string, states []string) *FederalAdapter {
	allow := make(map[string]bool, len(states))
	for _, s := range states {
		allow[strings.ToUpper(strings.TrimSpace(s))] = true
	}
	return &FederalAdapter{csvPath: csvPath, states: allow}
}

// Tag implements Adapter.
func (a *FederalAdapter) Tag() model.Source { return model.SourceFederal }

// Fetch implements Adapter, streaming the CSV rather than loading it whole:
// the national export runs to hundreds of thousands of rows.
func (a *FederalAdapter) Fetch(ctx context.Context) ([]model.Producer, Stats, error) {
	f, err := os.Open(a.csvPath)
	if err != nil {
		return nil, Stats{}, eris.Wrapf(err, "federal: open %s", a.csvPath)
	}
	defer f.Close() //nolint:errcheck

	reader := csv.NewReader(charmap.ISO8859_1.NewDecoder().Reader(f))
	reader.FieldsPerRecord = -1
	dec, err := csvutil.NewDecoder(reader)
	if err != nil {
		return nil, Stats{}, eris.Wrap(err, "federal: read csv header")
	}

	stats := Stats{Source: a.Tag(), FetchedAt: time.Now().UTC()}
	var producers []model.Producer
	for {
		if ctx.Err() != nil {
			return nil, Stats{}, eris.Wrap(ctx.Err(), "federal: cancelled")
		}

		var row federalRow
		if err := dec.Decode(&row); err == io.EOF {
			break
		} else if err != nil {
			return nil, Stats{}, eris.Wrap(err, "federal: decode row")
		}
		stats.Raw++

		state, ok := permitState(row.PermitNumber)
		if !ok || !a.states[state] {
			continue
		}
		if excludedName(row.OwnerName + " " + row.OperatingName) {
			continue
		}

		name := strings.TrimSpace(row.OperatingName)
		if name == "" {
			name = strings.TrimSpace(row.OwnerName)
		}

		producers = append(producers, model.Producer{
			PermitID:         strings.TrimSpace(row.PermitNumber),
			Source:           a.Tag(),
			Country:          "US",
			StateProvince:    stateName(state),
			City:             strings.TrimSpace(row.City),
			PostalCode:       strings.TrimSpace(row.Zip),
			Address:          strings.TrimSpace(row.Street),
			BusinessName:     name,
			PermitHolder:     strings.TrimSpace(row.OwnerName),
			PermitCategories: []string{"WINE"},
		})
		stats.Kept++
	}

	zap.L().Info("federal: normalized export",
		zap.Int("raw_rows", stats.Raw),
		zap.Int("kept", stats.Kept),
	)
	return producers, stats, nil
}

// permitState extracts the two-letter state token from a permit number like
// "BWN-VT-15000" or "BW-NY-123".
func permitState(permitNumber string) (string, bool) {
	parts := strings.Split(strings.TrimSpace(permitNumber), "-")
	if len(parts) < 2 {
		return "", false
	}
	state := strings.ToUpper(parts[1])
	if len(state) != 2 {
		return "", false
	}
	return state, true
}

func excludedName(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range exclusionKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func stateName(code string) string {
	if name, ok := stateNames[code]; ok {
		return name
	}
	return code
}

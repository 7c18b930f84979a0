package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-gag/vineyard-cli/internal/model"
)

const quebecFixture = `{
  "types_permis": [
    {
      "type_permis": "Artisanal wine production",
      "fabricants": [
        {
          "nom": "Vignoble des Pins",
          "titulaire": "9123-4567 Quebec Inc.",
          "adresse": "136 Grand Sabrevois",
          "ville": "Sabrevois",
          "code_postal": "J0J 2G0",
          "permis": [
            {"numero": "AV-000123", "categories": ["VIN", "CID"]}
          ]
        }
      ]
    },
    {
      "type_permis": "Brasseur",
      "fabricants": [
        {
          "nom": "Brasserie du Nord",
          "adresse": "1 Rue de la Biere",
          "ville": "Montreal",
          "permis": [
            {"numero": "BR-000999", "categories": ["BIERE"]}
          ]
        }
      ]
    },
    {
      "type_permis": "Artisanal wine production",
      "fabricants": [
        {
          "nom": "Cidrerie du Verger",
          "adresse": "2 Chemin des Pommes",
          "ville": "Rougemont",
          "permis": [
            {"numero": "AV-000456", "categories": ["CID"]}
          ]
        }
      ]
    }
  ]
}`

func writeQuebecRaw(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "racj_raw.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestQuebec_KeepsWinePermitsOnly(t *testing.T) {
	a := NewQuebec("http://unused.invalid", writeQuebecRaw(t, quebecFixture), time.Second)

	producers, stats, err := a.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, producers, 1)

	p := producers[0]
	assert.Equal(t, "AV-000123", p.PermitID)
	assert.Equal(t, model.SourceQuebec, p.Source)
	assert.Equal(t, "CA", p.Country)
	assert.Equal(t, "Quebec", p.StateProvince)
	assert.Equal(t, "Sabrevois", p.City)
	assert.Equal(t, "Vignoble des Pins", p.BusinessName)
	assert.Equal(t, "9123-4567 Quebec Inc.", p.PermitHolder)
	assert.Equal(t, []string{"VIN", "CID"}, p.PermitCategories)

	// Enrichment and geolocation fields stay empty at ingest.
	assert.Empty(t, p.Classification)
	assert.Nil(t, p.Latitude)

	assert.Equal(t, 3, stats.Raw)
	assert.Equal(t, 1, stats.Kept)
}

func TestQuebec_FrenchPermitTypeAccepted(t *testing.T) {
	fixture := `{"types_permis":[{"type_permis":"Production artisanale de vin","fabricants":[{"nom":"Domaine X","ville":"Dunham","permis":[{"numero":"AV-1","categories":["VIN"]}]}]}]}`
	a := NewQuebec("http://unused.invalid", writeQuebecRaw(t, fixture), time.Second)

	producers, _, err := a.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, producers, 1)
	assert.Equal(t, "AV-1", producers[0].PermitID)
}

func TestQuebec_DownloadsWhenRawMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(quebecFixture)) //nolint:errcheck
	}))
	defer srv.Close()

	rawPath := filepath.Join(t.TempDir(), "racj_raw.json")
	a := NewQuebec(srv.URL, rawPath, time.Second)

	producers, _, err := a.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, producers, 1)

	// Raw payload kept verbatim on disk.
	raw, err := os.ReadFile(rawPath)
	require.NoError(t, err)
	assert.Equal(t, quebecFixture, string(raw))
}

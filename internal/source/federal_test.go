package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/p-gag/vineyard-cli/internal/model"
)

const federalHeader = "PERMIT_NUMBER,OWNER_NAME,OPERATING_NAME,STREET,CITY,STATE,ZIP,COUNTY\n"

func writeFederalCSV(t *testing.T, rows string) string {
	t.Helper()
	// The export is Latin-1 on the wire.
	encoded, err := charmap.ISO8859_1.NewEncoder().String(federalHeader + rows)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "ttb.csv")
	require.NoError(t, os.WriteFile(path, []byte(encoded), 0o644))
	return path
}

func TestFederal_FiltersByStatePrefix(t *testing.T) {
	csv := "BWN-VT-15000,Green Mountain Cellars LLC,Farm Winery,1 Hill Rd,Shelburne,VT,05482,Chittenden\n" +
		"BWN-CA-20000,Napa Estates Inc,Napa Estates,2 Valley Rd,Napa,CA,94558,Napa\n"
	a := NewFederal(writeFederalCSV(t, csv), []string{"VT", "NY"})

	producers, stats, err := a.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, producers, 1)

	p := producers[0]
	assert.Equal(t, "BWN-VT-15000", p.PermitID)
	assert.Equal(t, model.SourceFederal, p.Source)
	assert.Equal(t, "US", p.Country)
	assert.Equal(t, "Vermont", p.StateProvince)
	assert.Equal(t, "Farm Winery", p.BusinessName)
	assert.Equal(t, "Green Mountain Cellars LLC", p.PermitHolder)
	assert.Equal(t, 2, stats.Raw)
	assert.Equal(t, 1, stats.Kept)
}

func TestFederal_DropsExcludedKeywords(t *testing.T) {
	csv := "BWN-VT-1,North Valley Brewing Co,,1 Hop St,Burlington,VT,05401,Chittenden\n" +
		"BWN-VT-2,Maple Distilling LLC,Maple Spirits,2 Still Rd,Stowe,VT,05672,Lamoille\n" +
		"BWN-VT-3,Vermont Cider Works,,3 Apple Ln,Middlebury,VT,05753,Addison\n" +
		"BWN-VT-4,Hill Farm LLC,Hill Farm Winery,4 Hill Rd,Shelburne,VT,05482,Chittenden\n"
	a := NewFederal(writeFederalCSV(t, csv), []string{"VT"})

	producers, _, err := a.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, producers, 1)
	assert.Equal(t, "BWN-VT-4", producers[0].PermitID)
}

func TestFederal_ExclusionSeesTradeName(t *testing.T) {
	// Legal name is clean; trade name reveals a brewery.
	csv := "BWN-NY-1,Hudson Holdings LLC,Hudson Brewing,1 River Rd,Hudson,NY,12534,Columbia\n"
	a := NewFederal(writeFederalCSV(t, csv), []string{"NY"})

	producers, _, err := a.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, producers)
}

func TestFederal_FallsBackToOwnerName(t *testing.T) {
	csv := "BWN-NY-7,Finger Lakes Vines LLC,,10 Lake Rd,Geneva,NY,14456,Ontario\n"
	a := NewFederal(writeFederalCSV(t, csv), []string{"NY"})

	producers, _, err := a.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, producers, 1)
	assert.Equal(t, "Finger Lakes Vines LLC", producers[0].BusinessName)
}

func TestFederal_DecodesLatin1(t *testing.T) {
	csv := "BWN-ME-1,Ch\xe2teau Fran\xe7ois LLC,,1 Rue du Vin,Biddeford,ME,04005,York\n"
	// Bytes above are already Latin-1; write them directly.
	path := filepath.Join(t.TempDir(), "ttb.csv")
	require.NoError(t, os.WriteFile(path, []byte(federalHeader+csv), 0o644))

	a := NewFederal(path, []string{"ME"})
	producers, _, err := a.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, producers, 1)
	assert.Equal(t, "Château François LLC", producers[0].BusinessName)
}

func TestPermitState(t *testing.T) {
	state, ok := permitState("BWN-VT-15000")
	require.True(t, ok)
	assert.Equal(t, "VT", state)

	_, ok = permitState("15000")
	assert.False(t, ok)

	_, ok = permitState("BWN-VERMONT-1")
	assert.False(t, ok)
}

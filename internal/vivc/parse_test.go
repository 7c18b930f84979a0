package vivc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchFixture = `<html><body>
<table class="table">
<tr><th>Cultivar name</th><th>Color</th><th>Country</th><th>Species</th></tr>
<tr>
  <td><a href="/index.php?r=passport%2Fview&amp;id=11561">SEYVE VILLARD 5-276</a></td>
  <td>blanc</td><td>France</td><td>interspecific crossing</td>
</tr>
<tr>
  <td><a href="/index.php?r=passport%2Fview&amp;id=11558">SEYVAL</a></td>
  <td>blanc</td><td>France</td><td>interspecific crossing</td>
</tr>
<tr><td>No link in this row</td><td>-</td></tr>
</table>
</body></html>`

func TestParseSearchResults(t *testing.T) {
	hits, err := ParseSearchResults(searchFixture, 20)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "11561", hits[0].CatalogueID)
	assert.Equal(t, "SEYVE VILLARD 5-276", hits[0].Name)
	assert.Equal(t, "blanc", hits[0].Color)
	assert.Equal(t, "France", hits[0].Country)
	assert.Equal(t, "interspecific crossing", hits[0].Species)

	assert.Equal(t, "11558", hits[1].CatalogueID)
}

func TestParseSearchResultsLimit(t *testing.T) {
	hits, err := ParseSearchResults(searchFixture, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "11561", hits[0].CatalogueID)
}

func TestParseSearchResultsEmpty(t *testing.T) {
	hits, err := ParseSearchResults("<html><body><p>Nothing</p></body></html>", 20)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

const passportFixture = `<html><body>
<table>
<tr><th>Prime name</th><td>SEYVE VILLARD 5-276</td></tr>
<tr><th>Color of berry skin</th><td>blanc</td></tr>
<tr><th>Country or region of origin of the variety</th><td>France</td></tr>
<tr><th>Species</th><td>interspecific crossing</td></tr>
<tr><th>Sex of flower</th><td>hermaphrodite</td></tr>
<tr><th>Year of crossing</th><td>1921</td></tr>
<tr><th>Synonyms</th><td>SEYVAL, SEYVAL BLANC</td></tr>
<tr><th>Parent 1</th><td><a href="/index.php?r=passport%2Fview&amp;id=11559">SEIBEL 5656</a></td></tr>
<tr><th>Parent 2</th><td><a href="/index.php?r=passport%2Fview&amp;id=11560">RAYON D OR</a></td></tr>
</table>
</body></html>`

func TestParsePassport(t *testing.T) {
	p, err := ParsePassport(passportFixture)
	require.NoError(t, err)

	assert.Equal(t, "SEYVE VILLARD 5-276", p.CanonicalName)
	assert.Equal(t, "blanc", p.BerrySkinColor)
	assert.Equal(t, "France", p.CountryOfOrigin)
	assert.Equal(t, "interspecific crossing", p.Species)
	assert.Equal(t, "hermaphrodite", p.SexOfFlower)
	assert.Equal(t, "1921", p.YearOfCrossing)
	assert.Equal(t, []string{"SEYVAL", "SEYVAL BLANC"}, p.Synonyms)

	require.NotNil(t, p.Parent1)
	assert.Equal(t, "SEIBEL 5656", p.Parent1.Name)
	assert.Equal(t, "11559", p.Parent1.CatalogueID)

	require.NotNil(t, p.Parent2)
	assert.Equal(t, "RAYON D OR", p.Parent2.Name)
	assert.Equal(t, "11560", p.Parent2.CatalogueID)
}

func TestParsePassportNoData(t *testing.T) {
	_, err := ParsePassport("<html><body><p>maintenance page</p></body></html>")
	assert.Error(t, err)
}

func TestParsePassportUnlinkedParent(t *testing.T) {
	body := `<html><body><table>
	<tr><th>Prime name</th><td>MYSTERY</td></tr>
	<tr><th>Parent 1</th><td>UNKNOWN CULTIVAR</td></tr>
	</table></body></html>`

	p, err := ParsePassport(body)
	require.NoError(t, err)
	require.NotNil(t, p.Parent1)
	assert.Equal(t, "UNKNOWN CULTIVAR", p.Parent1.Name)
	assert.Empty(t, p.Parent1.CatalogueID)
}

func TestRenderHits(t *testing.T) {
	assert.Equal(t, "No matches.", RenderHits(nil))

	out := RenderHits([]SearchHit{{CatalogueID: "11561", Name: "SEYVE VILLARD 5-276", Color: "blanc", Country: "France"}})
	assert.Contains(t, out, "11561 | SEYVE VILLARD 5-276 | blanc | France")
}

func TestParseFinalAnswer(t *testing.T) {
	assert.Equal(t, "11561", parseFinalAnswer("The catalogue id is 11561."))
	assert.Equal(t, "", parseFinalAnswer("NOT_FOUND"))
	assert.Equal(t, "", parseFinalAnswer("I could not decide."))
}

package research

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-gag/vineyard-cli/internal/model"
	"github.com/p-gag/vineyard-cli/pkg/anthropic"
)

type fakeClient struct {
	response string
	err      error
	requests []anthropic.MessageRequest
}

func (f *fakeClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.Block{{Type: "text", Text: f.response}},
		Usage:   anthropic.TokenUsage{InputTokens: 200, OutputTokens: 80},
	}, nil
}

func testProducer() model.Producer {
	return model.Producer{
		PermitID:      "QC123",
		BusinessName:  "Vignoble du Ruisseau",
		City:          "Dunham",
		StateProvince: "QC",
		Country:       "Canada",
		Address:       "1073 Chemin Bruce",
	}
}

func TestClassifyParsesSchema(t *testing.T) {
	client := &fakeClient{response: "```json\n" + `{"classification": "wine_grower", "website": "https://vignobleduruisseau.com", "social_media": ["https://instagram.com/vdr"]}` + "\n```"}
	r := NewResearcher(client, "haiku-test", "sonnet-test")

	result, err := r.Classify(context.Background(), testProducer())
	require.NoError(t, err)
	assert.Equal(t, model.ClassWineGrower, result.Classification)
	assert.Equal(t, "https://vignobleduruisseau.com", result.Website)
	assert.Equal(t, int64(200), result.Usage.InputTokens)

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.Equal(t, "haiku-test", req.Model)
	require.NotNil(t, req.WebSearch)
	assert.Equal(t, int64(5), req.WebSearch.MaxUses)
	assert.Contains(t, req.Messages[0].Content[0].Text, "Vignoble du Ruisseau")
	assert.Contains(t, req.Messages[0].Content[0].Text, "Dunham, QC, Canada")
}

func TestClassifyFallsBackToHeuristic(t *testing.T) {
	client := &fakeClient{response: "I could not find structured data, sorry."}
	r := NewResearcher(client, "haiku-test", "sonnet-test")

	p := testProducer()
	p.BusinessName = "North Valley Brewing Co"
	result, err := r.Classify(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, model.ClassBrewery, result.Classification)
}

func TestClassifyRejectsUnknownEnum(t *testing.T) {
	client := &fakeClient{response: `{"classification": "wine_factory"}`}
	r := NewResearcher(client, "haiku-test", "sonnet-test")

	result, err := r.Classify(context.Background(), testProducer())
	require.NoError(t, err)
	// "Vignoble" in the name drives the heuristic.
	assert.Equal(t, model.ClassWineGrower, result.Classification)
}

func TestClassifyPropagatesAPIError(t *testing.T) {
	client := &fakeClient{err: errors.New("rate limited")}
	r := NewResearcher(client, "haiku-test", "sonnet-test")

	_, err := r.Classify(context.Background(), testProducer())
	assert.Error(t, err)
}

func TestEnrichParsesSchema(t *testing.T) {
	client := &fakeClient{response: `{
		"website": "https://vignobleduruisseau.com",
		"wine_label": "Domaine du Ruisseau",
		"activities": ["tasting room"],
		"wines": [
			{"name": "Cuvée Natashquan", "type": "Red", "vintage": "2022", "cepages": ["Frontenac Noir", "Marquette"]}
		],
		"verified_wine_producer": "true"
	}`}
	r := NewResearcher(client, "haiku-test", "sonnet-test", WithMaxWebSearch(8))

	result, err := r.Enrich(context.Background(), testProducer())
	require.NoError(t, err)
	assert.Equal(t, model.VerifiedTrue, result.Verified)
	require.Len(t, result.Wines, 1)
	assert.Equal(t, []string{"Frontenac Noir", "Marquette"}, result.Wines[0].Cepages)

	req := client.requests[0]
	assert.Equal(t, "sonnet-test", req.Model)
	assert.Equal(t, int64(8), req.WebSearch.MaxUses)
}

func TestEnrichDefaultsVerificationToUnknown(t *testing.T) {
	client := &fakeClient{response: `{"wines": []}`}
	r := NewResearcher(client, "haiku-test", "sonnet-test")

	result, err := r.Enrich(context.Background(), testProducer())
	require.NoError(t, err)
	assert.Equal(t, model.VerifiedUnknown, result.Verified)
}

func TestEnrichParseFailureIsError(t *testing.T) {
	client := &fakeClient{response: "no json here"}
	r := NewResearcher(client, "haiku-test", "sonnet-test")

	_, err := r.Enrich(context.Background(), testProducer())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse enrich response")
}

func TestHeuristicClassify(t *testing.T) {
	tests := []struct {
		name string
		want model.Classification
	}{
		{"Farm Winery LLC", model.ClassWineGrower},
		{"Vignoble de l'Orpailleur", model.ClassWineGrower},
		{"Hudson Wine Cellars", model.ClassWinemaker},
		{"North Valley Brewing Co", model.ClassBrewery},
		{"Old Mill Distillery", model.ClassDistillery},
		{"Happy Bee Meadery", model.ClassMeadery},
		{"Cidrerie du Minot", model.ClassCidery},
		{"Sunrise Orchard", model.ClassFruitWinery},
		{"Acme Holdings Inc", model.ClassUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HeuristicClassify(tt.name), tt.name)
	}
}

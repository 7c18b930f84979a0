package source

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-gag/vineyard-cli/internal/model"
)

type stubAdapter struct {
	tag       model.Source
	producers []model.Producer
}

func (s *stubAdapter) Tag() model.Source { return s.tag }

func (s *stubAdapter) Fetch(_ context.Context) ([]model.Producer, Stats, error) {
	return s.producers, Stats{Source: s.tag, Raw: len(s.producers), Kept: len(s.producers), FetchedAt: time.Now()}, nil
}

func TestCombine_SortsBySourceThenName(t *testing.T) {
	a1 := &stubAdapter{tag: model.SourceQuebec, producers: []model.Producer{
		{PermitID: "Q2", Source: model.SourceQuebec, BusinessName: "Vignoble Beta"},
		{PermitID: "Q1", Source: model.SourceQuebec, BusinessName: "Vignoble Alpha"},
	}}
	a2 := &stubAdapter{tag: model.SourceFederal, producers: []model.Producer{
		{PermitID: "BWN-VT-1", Source: model.SourceFederal, BusinessName: "Farm Winery"},
	}}

	producers, stats, err := Combine(context.Background(), []Adapter{a1, a2})
	require.NoError(t, err)
	require.Len(t, producers, 3)
	require.Len(t, stats, 2)

	// racj < ttb lexically, alpha before beta.
	assert.Equal(t, "Q1", producers[0].PermitID)
	assert.Equal(t, "Q2", producers[1].PermitID)
	assert.Equal(t, "BWN-VT-1", producers[2].PermitID)
}

func TestCombine_DuplicatePermitIDFatal(t *testing.T) {
	a1 := &stubAdapter{tag: model.SourceQuebec, producers: []model.Producer{
		{PermitID: "X1", Source: model.SourceQuebec, BusinessName: "A"},
	}}
	a2 := &stubAdapter{tag: model.SourceFederal, producers: []model.Producer{
		{PermitID: "X1", Source: model.SourceFederal, BusinessName: "B"},
	}}

	_, _, err := Combine(context.Background(), []Adapter{a1, a2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate permit_id")
	assert.Contains(t, err.Error(), "X1")
}

func TestGeneratePermitID(t *testing.T) {
	assert.Equal(t, "NSLIGHTFOOTWOLFVILLE", GeneratePermitID("NS", "Lightfoot & Wolfville"))
	assert.Equal(t, "BCQUAILSGATE", GeneratePermitID("bc", "Quails' Gate 2020"))
}

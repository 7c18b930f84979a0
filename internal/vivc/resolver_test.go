package vivc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-gag/vineyard-cli/internal/model"
	"github.com/p-gag/vineyard-cli/internal/variety"
	"github.com/p-gag/vineyard-cli/pkg/anthropic"
)

const seibelFixture = `<html><body><table>
<tr><th>Prime name</th><td>SEIBEL 5656</td></tr>
<tr><th>Color of berry skin</th><td>noir</td></tr>
</table></body></html>`

const rayonFixture = `<html><body><table>
<tr><th>Prime name</th><td>RAYON D OR</td></tr>
<tr><th>Color of berry skin</th><td>blanc</td></tr>
</table></body></html>`

func catalogueHandler(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("r") {
		case "passport/explorer":
			w.Write([]byte(searchFixture))
		case "passport/view":
			switch r.URL.Query().Get("id") {
			case "11561":
				w.Write([]byte(passportFixture))
			case "11559":
				w.Write([]byte(seibelFixture))
			case "11560":
				w.Write([]byte(rayonFixture))
			default:
				http.NotFound(w, r)
			}
		default:
			http.NotFound(w, r)
		}
	})
}

// scriptedLLM replays canned responses in order.
type scriptedLLM struct {
	responses []*anthropic.MessageResponse
	err       error
	requests  []anthropic.MessageRequest
}

func (s *scriptedLLM) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	resp := s.responses[0]
	if len(s.responses) > 1 {
		s.responses = s.responses[1:]
	}
	return resp, nil
}

func toolUseResponse(id, term string) *anthropic.MessageResponse {
	input, _ := json.Marshal(map[string]string{"term": term})
	return &anthropic.MessageResponse{
		Content: []anthropic.Block{{
			Type:      "tool_use",
			ToolUseID: id,
			ToolName:  "search_catalogue",
			Input:     input,
		}},
		StopReason: "tool_use",
		Usage:      anthropic.TokenUsage{InputTokens: 100, OutputTokens: 20},
	}
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.Block{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 100, OutputTokens: 10},
	}
}

func newResolverHarness(t *testing.T, llm anthropic.Client, opts ...ResolverOption) (*Resolver, *variety.Catalogue) {
	t.Helper()
	srv := httptest.NewServer(catalogueHandler(t))
	t.Cleanup(srv.Close)

	client, err := NewClient(filepath.Join(t.TempDir(), "http_cache.jsonl"),
		WithBaseURL(srv.URL),
		WithHTTPClient(srv.Client()),
		WithMinDelay(time.Millisecond),
	)
	require.NoError(t, err)

	cat, err := variety.Load(filepath.Join(t.TempDir(), "varieties.jsonl"))
	require.NoError(t, err)

	opts = append([]ResolverOption{WithResolverThreads(1)}, opts...)
	return NewResolver(client, llm, "resolve-m", opts...), cat
}

func TestAssignResolvesPassportAndAncestors(t *testing.T) {
	llm := &scriptedLLM{responses: []*anthropic.MessageResponse{
		toolUseResponse("tu_1", "seyve villard 5-276"),
		textResponse("The matching entry is 11561."),
	}}
	r, cat := newResolverHarness(t, llm)
	require.NoError(t, cat.AddVariety("Seyve Villard 5-276", []string{"sv 5-276"}, true))

	summary, err := r.Assign(context.Background(), cat, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Found)
	assert.Equal(t, 2, summary.Ancestors)
	assert.Equal(t, int64(200), summary.Usage.InputTokens)

	entry, ok := cat.Get("Seyve Villard 5-276")
	require.True(t, ok)
	assert.Equal(t, model.PassportFound, entry.PassportStatus)
	require.NotNil(t, entry.Passport)
	assert.Equal(t, "11561", entry.Passport.CatalogueID)
	assert.Equal(t, "1921", entry.Passport.YearOfCrossing)
	require.NotNil(t, entry.Passport.Parent1)
	assert.Equal(t, "11559", entry.Passport.Parent1.CatalogueID)

	// Ancestors land in the catalogue with their own passports.
	seibel, ok := cat.Get("Seibel 5656")
	require.True(t, ok)
	assert.Equal(t, model.PassportFound, seibel.PassportStatus)
	assert.Equal(t, "11559", seibel.Passport.CatalogueID)
	assert.Equal(t, "noir", seibel.Passport.BerrySkinColor)

	_, ok = cat.Get("Rayon D Or")
	assert.True(t, ok)

	// The tool turn carried the search tool and the rendered hit table.
	require.Len(t, llm.requests, 2)
	require.Len(t, llm.requests[0].Tools, 1)
	assert.Equal(t, "search_catalogue", llm.requests[0].Tools[0].Name)
	last := llm.requests[1].Messages
	assert.Equal(t, "tool_result", last[len(last)-1].Content[0].Type)
	assert.Contains(t, last[len(last)-1].Content[0].Text, "11561 | SEYVE VILLARD 5-276")
}

func TestAssignNotFound(t *testing.T) {
	llm := &scriptedLLM{responses: []*anthropic.MessageResponse{textResponse("NOT_FOUND")}}
	r, cat := newResolverHarness(t, llm)
	require.NoError(t, cat.AddVariety("Mystery Grape", nil, true))

	summary, err := r.Assign(context.Background(), cat, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.NotFound)

	entry, _ := cat.Get("Mystery Grape")
	assert.Equal(t, model.PassportNotFound, entry.PassportStatus)
	assert.Nil(t, entry.Passport)
}

func TestAssignLLMErrorMarksError(t *testing.T) {
	llm := &scriptedLLM{err: errors.New("overloaded")}
	r, cat := newResolverHarness(t, llm)
	require.NoError(t, cat.AddVariety("Frontenac", nil, true))

	summary, err := r.Assign(context.Background(), cat, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Errors)

	entry, _ := cat.Get("Frontenac")
	assert.Equal(t, model.PassportError, entry.PassportStatus)
}

func TestAssignSkipsNonTargets(t *testing.T) {
	llm := &scriptedLLM{responses: []*anthropic.MessageResponse{textResponse("NOT_FOUND")}}
	r, cat := newResolverHarness(t, llm)
	require.NoError(t, cat.AddVariety(model.BucketFruit, nil, false))
	require.NoError(t, cat.AddVariety("Done Grape", nil, true))
	require.NoError(t, cat.AttachPassport("Done Grape", &model.Passport{CatalogueID: "1"}, model.PassportFound))

	summary, err := r.Assign(context.Background(), cat, 0)
	require.NoError(t, err)
	assert.Equal(t, AssignSummary{}, summary)
	assert.Empty(t, llm.requests)
}

func TestAssignReprocessNotFound(t *testing.T) {
	llm := &scriptedLLM{responses: []*anthropic.MessageResponse{
		toolUseResponse("tu_1", "seyval"),
		textResponse("11561"),
	}}
	r, cat := newResolverHarness(t, llm)
	require.NoError(t, cat.AddVariety("Seyval Blanc", nil, true))
	require.NoError(t, cat.AttachPassport("Seyval Blanc", nil, model.PassportNotFound))

	summary, err := r.Assign(context.Background(), cat, 0)
	require.NoError(t, err)
	assert.Zero(t, summary.Found)
	assert.Empty(t, llm.requests)

	retry := NewResolver(r.client, llm, "resolve-m", WithResolverThreads(1), WithReprocessNotFound())
	summary, err = retry.Assign(context.Background(), cat, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Found)
}

func TestAssignReprocessErrors(t *testing.T) {
	llm := &scriptedLLM{responses: []*anthropic.MessageResponse{
		toolUseResponse("tu_1", "seyve villard 5-276"),
		textResponse("11561"),
	}}
	r, cat := newResolverHarness(t, llm)
	require.NoError(t, cat.AddVariety("Seyve Villard 5-276", nil, true))
	require.NoError(t, cat.AttachPassport("Seyve Villard 5-276", nil, model.PassportError))

	// An error marker stays settled until explicitly reprocessed.
	summary, err := r.Assign(context.Background(), cat, 0)
	require.NoError(t, err)
	assert.Equal(t, AssignSummary{}, summary)
	assert.Empty(t, llm.requests)
	entry, _ := cat.Get("Seyve Villard 5-276")
	assert.Equal(t, model.PassportError, entry.PassportStatus)

	retry := NewResolver(r.client, llm, "resolve-m", WithResolverThreads(1), WithReprocessErrors())
	summary, err = retry.Assign(context.Background(), cat, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Found)
	entry, _ = cat.Get("Seyve Villard 5-276")
	assert.Equal(t, model.PassportFound, entry.PassportStatus)
}

func TestAgentIterationCapMeansNotFound(t *testing.T) {
	llm := &scriptedLLM{responses: []*anthropic.MessageResponse{
		toolUseResponse("tu_1", "frontenac"),
	}}
	r, cat := newResolverHarness(t, llm, WithMaxIterations(2))
	require.NoError(t, cat.AddVariety("Frontenac", nil, true))

	summary, err := r.Assign(context.Background(), cat, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.NotFound)
	assert.Len(t, llm.requests, 2)
}

// Package research wraps the LLM web-research calls of the pipeline: a cheap
// classification pass and a deep enrichment pass, both with structured-output
// parsing.
package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/p-gag/vineyard-cli/internal/model"
	"github.com/p-gag/vineyard-cli/pkg/anthropic"
)

// Researcher exposes the two web-research operations used by the pipeline.
type Researcher struct {
	client        anthropic.Client
	classifyModel string
	enrichModel   string
	maxWebSearch  int64
}

// Option configures a Researcher.
type Option func(*Researcher)

// WithMaxWebSearch caps server-side web searches per call.
func WithMaxWebSearch(n int64) Option {
	return func(r *Researcher) { r.maxWebSearch = n }
}

// NewResearcher creates a researcher using separate models for the cheap
// classification pass and the deep enrichment pass.
func NewResearcher(client anthropic.Client, classifyModel, enrichModel string, opts ...Option) *Researcher {
	r := &Researcher{
		client:        client,
		classifyModel: classifyModel,
		enrichModel:   enrichModel,
		maxWebSearch:  5,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// ClassifyResult is the small schema returned by the classification pass.
type ClassifyResult struct {
	Classification model.Classification `json:"classification"`
	Website        string               `json:"website,omitempty"`
	SocialMedia    []string             `json:"social_media,omitempty"`
	Usage          anthropic.TokenUsage `json:"-"`
}

// EnrichResult is the full schema returned by the enrichment pass.
type EnrichResult struct {
	Website     string               `json:"website,omitempty"`
	SocialMedia []string             `json:"social_media,omitempty"`
	WineLabel   string               `json:"wine_label,omitempty"`
	Activities  []string             `json:"activities,omitempty"`
	Wines       []model.Wine         `json:"wines,omitempty"`
	Verified    model.Verification   `json:"verified_wine_producer,omitempty"`
	Usage       anthropic.TokenUsage `json:"-"`
}

const classifySystemPrompt = `You classify North American alcohol-permit holders by their actual business, using web search to check the business name and location.

Classifications, pick exactly one:
- wine_grower: grows grapes and makes wine from them
- winemaker: makes grape wine without growing its own grapes
- grape_grower: grows wine grapes without making wine
- meadery: honey wine
- cidery: apple or pear cider
- brewery: beer
- distillery: spirits
- fruit_winery: wine from non-grape fruit
- unknown: could not determine

Respond with JSON only:
{"classification": "...", "website": "...", "social_media": ["..."]}
Leave website empty and social_media absent when you found none.`

const enrichSystemPrompt = `You research one confirmed wine producer in depth using web search: its official website, social media, and wine catalogue.

Report every wine you can attribute to the producer. For each wine give its name, type (red, white, rosé, sparkling, etc.), vintage when stated, a short description, notable winemaking details, and the grape varieties (cépages) when listed.

Set verified_wine_producer:
- "true" when you observed actual wine products made from grapes
- "false" when the business clearly does not produce grape wine
- "unknown" when you could not confirm either way

Respond with JSON only:
{
  "website": "...",
  "social_media": ["..."],
  "wine_label": "...",
  "activities": ["tasting room", "vineyard tours"],
  "wines": [{"name": "...", "type": "...", "vintage": "...", "description": "...", "winemaking": "...", "cepages": ["..."]}],
  "verified_wine_producer": "true"
}`

// Classify runs the cheap classification pass. On schema-parse failure it
// falls back to keyword matching on the business name, so it only errors when
// the API call itself fails.
func (r *Researcher) Classify(ctx context.Context, p model.Producer) (*ClassifyResult, error) {
	resp, err := r.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     r.classifyModel,
		MaxTokens: 1024,
		System:    classifySystemPrompt,
		Messages:  []anthropic.Message{anthropic.TextMessage("user", producerPrompt(p))},
		WebSearch: &anthropic.WebSearchConfig{MaxUses: r.maxWebSearch},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "research: classify %s", p.PermitID)
	}

	var result ClassifyResult
	cleaned := anthropic.CleanJSON(resp.Text())
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil || !validClassification(result.Classification) {
		zap.L().Warn("classification parse failed, using keyword heuristic",
			zap.String("permit_id", p.PermitID),
			zap.Error(err))
		result = ClassifyResult{Classification: HeuristicClassify(p.BusinessName)}
	}
	result.Usage = resp.Usage
	return &result, nil
}

// Enrich runs the deep research pass. A schema-parse failure is returned as
// an error so the caller can write an error marker.
func (r *Researcher) Enrich(ctx context.Context, p model.Producer) (*EnrichResult, error) {
	resp, err := r.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     r.enrichModel,
		MaxTokens: 8192,
		System:    enrichSystemPrompt,
		Messages:  []anthropic.Message{anthropic.TextMessage("user", producerPrompt(p))},
		WebSearch: &anthropic.WebSearchConfig{MaxUses: r.maxWebSearch},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "research: enrich %s", p.PermitID)
	}

	var result EnrichResult
	cleaned := anthropic.CleanJSON(resp.Text())
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return nil, eris.Wrapf(err, "research: parse enrich response for %s", p.PermitID)
	}
	if result.Verified == "" {
		result.Verified = model.VerifiedUnknown
	}
	result.Usage = resp.Usage
	return &result, nil
}

// producerPrompt renders the identity block handed to both passes.
func producerPrompt(p model.Producer) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Business name: %s\n", p.BusinessName)
	if p.PermitHolder != "" && p.PermitHolder != p.BusinessName {
		fmt.Fprintf(&b, "Permit holder: %s\n", p.PermitHolder)
	}
	if p.Address != "" {
		fmt.Fprintf(&b, "Address: %s\n", p.Address)
	}
	fmt.Fprintf(&b, "Location: %s, %s, %s\n", p.City, p.StateProvince, p.Country)
	if len(p.PermitCategories) > 0 {
		fmt.Fprintf(&b, "Permit categories: %s\n", strings.Join(p.PermitCategories, ", "))
	}
	if p.Website != "" {
		fmt.Fprintf(&b, "Known website: %s\n", p.Website)
	}
	return b.String()
}

func validClassification(c model.Classification) bool {
	for _, v := range model.AllClassifications() {
		if c == v {
			return true
		}
	}
	return false
}

// heuristicKeywords maps business-name substrings onto classifications,
// checked in order so the more specific labels win.
var heuristicKeywords = []struct {
	keyword string
	class   model.Classification
}{
	{"vineyard", model.ClassWineGrower},
	{"vignoble", model.ClassWineGrower},
	{"winery", model.ClassWineGrower},
	{"wine", model.ClassWinemaker},
	{"vin ", model.ClassWinemaker},
	{"cellars", model.ClassWinemaker},
	{"mead", model.ClassMeadery},
	{"hydromel", model.ClassMeadery},
	{"cider", model.ClassCidery},
	{"cidre", model.ClassCidery},
	{"brew", model.ClassBrewery},
	{"distill", model.ClassDistillery},
	{"spirits", model.ClassDistillery},
	{"orchard", model.ClassFruitWinery},
	{"verger", model.ClassFruitWinery},
}

// HeuristicClassify is the deterministic fallback used when the model's
// answer cannot be parsed.
func HeuristicClassify(businessName string) model.Classification {
	name := strings.ToLower(businessName)
	for _, h := range heuristicKeywords {
		if strings.Contains(name, h.keyword) {
			return h.class
		}
	}
	return model.ClassUnknown
}

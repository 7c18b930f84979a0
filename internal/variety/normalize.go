package variety

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/p-gag/vineyard-cli/internal/model"
	"github.com/p-gag/vineyard-cli/pkg/anthropic"
)

// Normalizer runs LLM-assisted alias expansion over cépage strings observed
// in the enrichment cache that the catalogue cannot yet resolve.
type Normalizer struct {
	client     anthropic.Client
	model      string
	batchLimit int
	usage      anthropic.TokenUsage
}

// NewNormalizer builds a normalizer. batchLimit caps how many unmapped
// strings go into a single model call.
func NewNormalizer(client anthropic.Client, modelName string, batchLimit int) *Normalizer {
	if batchLimit <= 0 {
		batchLimit = 50
	}
	return &Normalizer{client: client, model: modelName, batchLimit: batchLimit}
}

// Usage returns the accumulated token usage across Normalize calls.
func (n *Normalizer) Usage() anthropic.TokenUsage { return n.usage }

// UnmappedCepages scans enrichment records for cépage strings the catalogue
// cannot resolve and returns them ordered by descending frequency, ties
// broken alphabetically.
func UnmappedCepages(records []model.EnrichmentRecord, cat *Catalogue) []CepageCount {
	counts := make(map[string]int)
	for _, rec := range records {
		if rec.Status != model.RecordOK {
			continue
		}
		for _, wine := range rec.Wines {
			for _, raw := range wine.Cepages {
				raw = strings.TrimSpace(raw)
				if raw == "" {
					continue
				}
				if _, ok := cat.Lookup(raw); ok {
					continue
				}
				counts[raw]++
			}
		}
	}

	out := make([]CepageCount, 0, len(counts))
	for raw, c := range counts {
		out = append(out, CepageCount{Raw: raw, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Raw < out[j].Raw
	})
	return out
}

// CepageCount is one unresolved cépage string and its observation count.
type CepageCount struct {
	Raw   string
	Count int
}

// Addition is one catalogue mutation proposed by the model: either new
// aliases on an existing canonical, or a brand-new canonical entry.
type Addition struct {
	Canonical string   `json:"canonical"`
	Aliases   []string `json:"aliases"`
	IsGrape   bool     `json:"is_grape"`
}

type normalizeResponse struct {
	Additions []Addition `json:"additions"`
}

const normalizeSystemPrompt = `You are a grape-variety catalogue curator for North American cold-climate wine regions. You receive the current catalogue and a batch of raw cépage strings observed in the wild that the catalogue cannot resolve.

For each raw string, decide whether it is:
1. A spelling, casing, accent, or formatting variant of an existing canonical variety. Propose it as an alias of that canonical.
2. A real grape variety missing from the catalogue. Propose a new canonical entry (proper accented spelling, e.g. "Frontenac Gris") with the raw string as an alias, and is_grape true.
3. Not a single grape variety: a blend, a vague mix, or marketing text. Map it as an alias of the "Unknown" bucket.
4. A non-grape fruit (apple, pear, haskap, cassis, honey). Map it as an alias of the "Fruit" bucket.

Rules:
- Never rename or remove existing canonicals or aliases. Your output is strictly additive.
- Aliases must be lowercase.
- Every raw string in the batch must appear as an alias in exactly one addition.
- Hybrid breeding-program names like "Seyve Villard 5-276" or "ES 6-16-30" are real varieties, not Unknown.

Respond with JSON only:
{"additions": [{"canonical": "...", "aliases": ["..."], "is_grape": true}]}`

// Normalize submits one batch of unmapped strings and applies the model's
// additive proposals to the catalogue. It returns the applied additions.
// When dryRun is set the proposals are returned but not applied.
func (n *Normalizer) Normalize(ctx context.Context, cat *Catalogue, unmapped []CepageCount, dryRun bool) ([]Addition, error) {
	if len(unmapped) == 0 {
		return nil, nil
	}
	if len(unmapped) > n.batchLimit {
		unmapped = unmapped[:n.batchLimit]
	}

	prompt, err := buildNormalizePrompt(cat, unmapped)
	if err != nil {
		return nil, err
	}

	resp, err := n.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     n.model,
		MaxTokens: 4096,
		System:    normalizeSystemPrompt,
		Messages:  []anthropic.Message{anthropic.TextMessage("user", prompt)},
	})
	if err != nil {
		return nil, eris.Wrap(err, "variety: normalize batch")
	}
	n.usage.Add(resp.Usage)

	var parsed normalizeResponse
	cleaned := anthropic.CleanJSON(resp.Text())
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, eris.Wrap(err, "variety: parse normalize response")
	}

	if dryRun {
		return parsed.Additions, nil
	}

	applied := make([]Addition, 0, len(parsed.Additions))
	for _, add := range parsed.Additions {
		if err := applyAddition(cat, add); err != nil {
			zap.L().Warn("skipping catalogue addition",
				zap.String("canonical", add.Canonical),
				zap.Error(err))
			continue
		}
		applied = append(applied, add)
	}
	return applied, nil
}

func applyAddition(cat *Catalogue, add Addition) error {
	add.Canonical = strings.TrimSpace(add.Canonical)
	if add.Canonical == "" {
		return eris.New("variety: addition with empty canonical")
	}
	if _, exists := cat.Get(add.Canonical); exists {
		return cat.ExtendAliases(add.Canonical, add.Aliases)
	}
	// The model may propose a "new" canonical that is already an alias of an
	// existing entry; fold the aliases into that entry instead.
	if canonical, ok := cat.Lookup(add.Canonical); ok {
		return cat.ExtendAliases(canonical, add.Aliases)
	}
	return cat.AddVariety(add.Canonical, add.Aliases, add.IsGrape)
}

// buildNormalizePrompt renders the catalogue and the unmapped batch. Bucket
// entries list only a few example aliases so a fat Unknown bucket does not
// crowd out the real varieties.
func buildNormalizePrompt(cat *Catalogue, unmapped []CepageCount) (string, error) {
	var b strings.Builder
	b.WriteString("Current catalogue:\n")
	for _, v := range cat.Varieties() {
		aliases := v.Aliases
		if (v.Name == model.BucketUnknown || v.Name == model.BucketFruit) && len(aliases) > 5 {
			aliases = append(append([]string{}, aliases[:5]...), fmt.Sprintf("… %d more", len(v.Aliases)-5))
		}
		fmt.Fprintf(&b, "- %s", v.Name)
		if !v.IsGrape {
			b.WriteString(" [not a grape]")
		}
		if len(aliases) > 0 {
			fmt.Fprintf(&b, " (aliases: %s)", strings.Join(aliases, ", "))
		}
		b.WriteString("\n")
	}

	b.WriteString("\nUnresolved cépage strings (count = occurrences in the enrichment data):\n")
	for _, u := range unmapped {
		fmt.Fprintf(&b, "- %q (count %d)\n", u.Raw, u.Count)
	}
	if b.Len() == 0 {
		return "", eris.New("variety: empty normalize prompt")
	}
	return b.String(), nil
}

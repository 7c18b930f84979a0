package vivc

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/p-gag/vineyard-cli/internal/model"
	"github.com/p-gag/vineyard-cli/internal/variety"
	"github.com/p-gag/vineyard-cli/pkg/anthropic"
)

const notFoundSentinel = "NOT_FOUND"

const resolverSystemPrompt = `You find the catalogue identifier of a grape variety in the VIVC grape database. You are given the variety's name and known aliases, and one tool: search_catalogue(term) returning up to a page of matching cultivars with their numeric ids.

Search heuristics, in order:
1. Search the exact variety name first.
2. On a miss, strip color qualifiers (noir, blanc, gris, rouge) and retry.
3. Try the known aliases.
4. Try wildcard patterns: "%" matches any characters. Use a leading wildcard for an ends-with search ("%elvin"), and wildcards between tokens for breeder codes, e.g. "seyve villard 5-276" also matches as "%5%276".
5. Never invent unrelated terms; every search must derive from the given name or aliases.

When a hit clearly matches the variety (same name or a known synonym), answer with that numeric id alone, e.g. "4625". When you have exhausted the heuristics without a convincing match, answer exactly NOT_FOUND.`

var numericToken = regexp.MustCompile(`\b(\d{2,6})\b`)

// Resolution is the outcome the resolver proposes for one variety. The main
// thread applies proposals to the catalogue.
type Resolution struct {
	Canonical string
	Status    model.PassportStatus
	Passport  *model.Passport
	Err       error
	Usage     anthropic.TokenUsage
}

// Resolver drives the tool-calling agent that assigns passports.
type Resolver struct {
	client            *Client
	llm               anthropic.Client
	model             string
	maxIterations     int
	maxDepth          int
	searchLimit       int
	threads           int
	reprocessNotFound bool
	reprocessErrors   bool
	onResolved        func()
}

// ResolverOption configures the Resolver.
type ResolverOption func(*Resolver)

// WithMaxIterations caps agent-loop turns per variety.
func WithMaxIterations(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.maxIterations = n
		}
	}
}

// WithMaxDepth bounds the ancestor walk.
func WithMaxDepth(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.maxDepth = n
		}
	}
}

// WithSearchLimit caps hits returned per search tool call.
func WithSearchLimit(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.searchLimit = n
		}
	}
}

// WithResolverThreads sets the proposal worker-pool size.
func WithResolverThreads(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.threads = n
		}
	}
}

// WithReprocessNotFound retries varieties previously marked not_found.
func WithReprocessNotFound() ResolverOption {
	return func(r *Resolver) { r.reprocessNotFound = true }
}

// WithReprocessErrors retries varieties whose previous attempt failed.
func WithReprocessErrors() ResolverOption {
	return func(r *Resolver) { r.reprocessErrors = true }
}

// WithResolverProgress installs a per-variety completion callback.
func WithResolverProgress(fn func()) ResolverOption {
	return func(r *Resolver) { r.onResolved = fn }
}

// NewResolver builds a resolver over the catalogue HTTP client and an LLM.
func NewResolver(client *Client, llm anthropic.Client, modelName string, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		client:        client,
		llm:           llm,
		model:         modelName,
		maxIterations: 10,
		maxDepth:      5,
		searchLimit:   20,
		threads:       4,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// AssignSummary counts resolver outcomes for one run.
type AssignSummary struct {
	Found     int
	NotFound  int
	Errors    int
	Ancestors int
	Usage     anthropic.TokenUsage
}

// Assign resolves passports for every unassigned grape entry, applying all
// catalogue mutations on the calling goroutine. Entries previously marked
// not_found or error stay settled unless the matching reprocess option is
// set. limit <= 0 means unlimited.
func (r *Resolver) Assign(ctx context.Context, cat *variety.Catalogue, limit int) (AssignSummary, error) {
	var targets []model.Variety
	for _, v := range cat.Varieties() {
		if !v.IsGrape || !r.wantsResolution(v.PassportStatus) {
			continue
		}
		targets = append(targets, v)
		if limit > 0 && len(targets) >= limit {
			break
		}
	}

	var summary AssignSummary
	if len(targets) == 0 {
		return summary, nil
	}

	// Workers propose, this goroutine applies. HTTP fetches inside workers
	// share the client's rate limiter; the page index is only mutated here,
	// so workers fetch through proposals carrying raw passports.
	results := make(chan Resolution, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.threads)

	go func() {
		for _, target := range targets {
			v := target
			g.Go(func() error {
				results <- r.resolveOne(gctx, v)
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	for res := range results {
		summary.Usage.Add(res.Usage)
		if r.onResolved != nil {
			r.onResolved()
		}

		switch {
		case res.Err != nil:
			zap.L().Warn("passport resolution failed",
				zap.String("variety", res.Canonical), zap.Error(res.Err))
			summary.Errors++
			if err := cat.AttachPassport(res.Canonical, nil, model.PassportError); err != nil {
				return summary, err
			}
		case res.Status == model.PassportNotFound:
			summary.NotFound++
			if err := cat.AttachPassport(res.Canonical, nil, model.PassportNotFound); err != nil {
				return summary, err
			}
		default:
			summary.Found++
			if err := cat.AttachPassport(res.Canonical, res.Passport, model.PassportFound); err != nil {
				return summary, err
			}
			added, err := r.walkAncestors(ctx, cat, res.Passport, 1, map[string]bool{res.Passport.CatalogueID: true})
			if err != nil {
				zap.L().Warn("ancestor walk failed",
					zap.String("variety", res.Canonical), zap.Error(err))
			}
			summary.Ancestors += added
		}
	}
	return summary, nil
}

// wantsResolution reports whether a passport status selects the variety for
// this run.
func (r *Resolver) wantsResolution(status model.PassportStatus) bool {
	switch status {
	case model.PassportUnassigned:
		return true
	case model.PassportNotFound:
		return r.reprocessNotFound
	case model.PassportError:
		return r.reprocessErrors
	default:
		return false
	}
}

// resolveOne runs the agent loop for a single variety and fetches the
// passport on success. It never mutates the catalogue.
func (r *Resolver) resolveOne(ctx context.Context, v model.Variety) Resolution {
	res := Resolution{Canonical: v.Name}

	id, usage, err := r.agentLoop(ctx, v)
	res.Usage = usage
	if err != nil {
		res.Err = err
		return res
	}
	if id == "" {
		res.Status = model.PassportNotFound
		return res
	}

	passport, err := r.client.Passport(ctx, id)
	if err != nil {
		res.Err = err
		return res
	}
	res.Status = model.PassportFound
	res.Passport = passport
	return res
}

// agentLoop iterates the search conversation until the model answers with a
// numeric id or the NOT_FOUND sentinel. Hitting the iteration cap counts as
// not found.
func (r *Resolver) agentLoop(ctx context.Context, v model.Variety) (string, anthropic.TokenUsage, error) {
	var usage anthropic.TokenUsage

	prompt := fmt.Sprintf("Variety: %s", v.Name)
	if len(v.Aliases) > 0 {
		prompt += fmt.Sprintf("\nKnown aliases: %s", strings.Join(v.Aliases, ", "))
	}
	messages := []anthropic.Message{anthropic.TextMessage("user", prompt)}

	searchTool := anthropic.ToolDef{
		Name:        "search_catalogue",
		Description: "Search the grape catalogue by cultivar name. % is a wildcard.",
		Properties: map[string]any{
			"term": map[string]any{
				"type":        "string",
				"description": "Search term, optionally with % wildcards.",
			},
		},
		Required: []string{"term"},
	}

	for i := 0; i < r.maxIterations; i++ {
		resp, err := r.llm.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     r.model,
			MaxTokens: 1024,
			System:    resolverSystemPrompt,
			Messages:  messages,
			Tools:     []anthropic.ToolDef{searchTool},
		})
		if err != nil {
			return "", usage, eris.Wrapf(err, "vivc: agent turn for %s", v.Name)
		}
		usage.Add(resp.Usage)

		uses := resp.ToolUses()
		if len(uses) == 0 {
			return parseFinalAnswer(resp.Text()), usage, nil
		}

		messages = append(messages, resp.AssistantMessage())
		for _, use := range uses {
			var input struct {
				Term string `json:"term"`
			}
			if err := json.Unmarshal(use.Input, &input); err != nil || input.Term == "" {
				messages = append(messages, anthropic.ToolResultMessage(use.ToolUseID, "invalid input: expected {\"term\": ...}", true))
				continue
			}

			hits, err := r.client.Search(ctx, input.Term, r.searchLimit)
			if err != nil {
				messages = append(messages, anthropic.ToolResultMessage(use.ToolUseID, err.Error(), true))
				continue
			}
			messages = append(messages, anthropic.ToolResultMessage(use.ToolUseID, RenderHits(hits), false))
		}
	}

	zap.L().Warn("agent iteration cap reached", zap.String("variety", v.Name))
	return "", usage, nil
}

// parseFinalAnswer extracts the chosen catalogue id from the model's closing
// text, or empty for NOT_FOUND and unparseable answers.
func parseFinalAnswer(text string) string {
	if strings.Contains(text, notFoundSentinel) {
		return ""
	}
	if m := numericToken.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// walkAncestors adds unknown parent varieties to the catalogue, bounded by
// depth and a visited-identifier set. Returns how many entries were added.
func (r *Resolver) walkAncestors(ctx context.Context, cat *variety.Catalogue, passport *model.Passport, depth int, visited map[string]bool) (int, error) {
	if passport == nil || depth > r.maxDepth {
		return 0, nil
	}

	added := 0
	for _, parent := range []*model.ParentRef{passport.Parent1, passport.Parent2} {
		if parent == nil || parent.CatalogueID == "" || visited[parent.CatalogueID] {
			continue
		}
		visited[parent.CatalogueID] = true

		if _, known := cat.Lookup(parent.Name); known {
			continue
		}

		parentPassport, err := r.client.Passport(ctx, parent.CatalogueID)
		if err != nil {
			zap.L().Warn("ancestor passport fetch failed",
				zap.String("catalogue_id", parent.CatalogueID), zap.Error(err))
			continue
		}

		name := canonicalFromPassport(parentPassport, parent.Name)
		if _, known := cat.Lookup(name); known {
			continue
		}
		if err := cat.AddVariety(name, []string{strings.ToLower(parent.Name)}, true); err != nil {
			return added, eris.Wrapf(err, "vivc: add ancestor %s", name)
		}
		if err := cat.AttachPassport(name, parentPassport, model.PassportFound); err != nil {
			return added, err
		}
		added++

		below, err := r.walkAncestors(ctx, cat, parentPassport, depth+1, visited)
		added += below
		if err != nil {
			return added, err
		}
	}
	return added, nil
}

// canonicalFromPassport title-cases the catalogue's all-caps prime name.
func canonicalFromPassport(p *model.Passport, fallback string) string {
	name := p.CanonicalName
	if name == "" {
		name = fallback
	}
	words := strings.Fields(strings.ToLower(name))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

package vivc

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"

	"github.com/p-gag/vineyard-cli/internal/model"
)

// SearchHit is one row of the catalogue's cultivar search table.
type SearchHit struct {
	CatalogueID string
	Name        string
	Color       string
	Country     string
	Species     string
}

var passportIDPattern = regexp.MustCompile(`[?&]id=(\d+)`)

// ParseSearchResults extracts up to limit hits from a search results page.
// Rows without a passport link are skipped.
func ParseSearchResults(body string, limit int) ([]SearchHit, error) {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "vivc: parse search html")
	}

	var hits []SearchHit
	for _, row := range findAll(doc, "tr") {
		cells := findAll(row, "td")
		if len(cells) == 0 {
			continue
		}

		id, name := passportLink(row)
		if id == "" {
			continue
		}

		hit := SearchHit{CatalogueID: id, Name: name}
		texts := make([]string, 0, len(cells))
		for _, c := range cells {
			texts = append(texts, nodeText(c))
		}
		// Columns after the name: berry color, country, species. Layout
		// varies with the search form, so fill what is there.
		for i, text := range texts {
			if strings.EqualFold(text, name) && i+1 < len(texts) {
				rest := texts[i+1:]
				if len(rest) > 0 {
					hit.Color = rest[0]
				}
				if len(rest) > 1 {
					hit.Country = rest[1]
				}
				if len(rest) > 2 {
					hit.Species = rest[2]
				}
				break
			}
		}

		hits = append(hits, hit)
		if limit > 0 && len(hits) >= limit {
			break
		}
	}
	return hits, nil
}

// passportLabels maps property-table row labels onto passport fields.
var passportLabels = map[string]func(*model.Passport, string){
	"prime name":                              func(p *model.Passport, v string) { p.CanonicalName = v },
	"color of berry skin":                     func(p *model.Passport, v string) { p.BerrySkinColor = v },
	"country or region of origin of the variety": func(p *model.Passport, v string) { p.CountryOfOrigin = v },
	"species":          func(p *model.Passport, v string) { p.Species = v },
	"sex of flower":    func(p *model.Passport, v string) { p.SexOfFlower = v },
	"year of crossing": func(p *model.Passport, v string) { p.YearOfCrossing = v },
}

// ParsePassport extracts the property table, synonyms, and parent links from
// a passport page.
func ParsePassport(body string) (*model.Passport, error) {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "vivc: parse passport html")
	}

	passport := &model.Passport{}
	found := false
	for _, row := range findAll(doc, "tr") {
		label, valueNode := rowLabelAndValue(row)
		if label == "" || valueNode == nil {
			continue
		}
		key := strings.ToLower(strings.TrimRight(label, ": "))
		value := nodeText(valueNode)

		if set, ok := passportLabels[key]; ok {
			set(passport, value)
			found = true
			continue
		}

		switch {
		case strings.HasPrefix(key, "synonym"):
			for _, s := range strings.Split(value, ",") {
				if s = strings.TrimSpace(s); s != "" {
					passport.Synonyms = append(passport.Synonyms, s)
				}
			}
			found = true
		case strings.HasPrefix(key, "parent 1"):
			passport.Parent1 = parentRef(valueNode)
			found = true
		case strings.HasPrefix(key, "parent 2"):
			passport.Parent2 = parentRef(valueNode)
			found = true
		}
	}

	if !found {
		return nil, eris.New("vivc: no passport data in page")
	}
	return passport, nil
}

// parentRef resolves a parent cell: the name is the link text, the catalogue
// id comes from the link target.
func parentRef(cell *html.Node) *model.ParentRef {
	for _, a := range findAll(cell, "a") {
		id := idFromHref(attr(a, "href"))
		name := nodeText(a)
		if id != "" && name != "" {
			return &model.ParentRef{Name: name, CatalogueID: id}
		}
	}
	if name := nodeText(cell); name != "" {
		return &model.ParentRef{Name: name}
	}
	return nil
}

// RenderHits formats hits as the compact table handed back to the agent as a
// tool result.
func RenderHits(hits []SearchHit) string {
	if len(hits) == 0 {
		return "No matches."
	}
	var b strings.Builder
	b.WriteString("id | name | berry color | country | species\n")
	for _, h := range hits {
		fmt.Fprintf(&b, "%s | %s | %s | %s | %s\n", h.CatalogueID, h.Name, h.Color, h.Country, h.Species)
	}
	return strings.TrimRight(b.String(), "\n")
}

// --- html helpers ---

func findAll(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && node.Data == tag {
			out = append(out, node)
			if tag != "a" {
				return
			}
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func idFromHref(href string) string {
	if !strings.Contains(href, "passport") {
		return ""
	}
	if m := passportIDPattern.FindStringSubmatch(href); m != nil {
		return m[1]
	}
	return ""
}

// passportLink returns the first passport-view link in a row.
func passportLink(row *html.Node) (id, name string) {
	for _, a := range findAll(row, "a") {
		if id := idFromHref(attr(a, "href")); id != "" {
			return id, nodeText(a)
		}
	}
	return "", ""
}

// rowLabelAndValue splits a two-cell property row into its label text and
// value cell. Accepts th/td and td/td layouts.
func rowLabelAndValue(row *html.Node) (string, *html.Node) {
	var cells []*html.Node
	for c := row.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.Data == "th" || c.Data == "td") {
			cells = append(cells, c)
		}
	}
	if len(cells) < 2 {
		return "", nil
	}
	return nodeText(cells[0]), cells[1]
}

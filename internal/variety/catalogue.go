// Package variety maintains the canonical grape-variety catalogue: lookup
// and mutation of canonicals and aliases, LLM-assisted alias expansion, and
// wine-type normalization.
package variety

import (
	"errors"
	"io/fs"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/p-gag/vineyard-cli/internal/cache"
	"github.com/p-gag/vineyard-cli/internal/model"
)

// Catalogue is the in-memory variety catalogue backed by a line-delimited
// file. All mutations keep the alias index disjoint: a lowercased alias
// resolves to at most one canonical name.
type Catalogue struct {
	path string

	mu      sync.RWMutex
	entries map[string]*model.Variety // canonical name → entry
	aliases map[string]string         // lowercased alias → canonical name
}

// Load reads the catalogue file. A missing file yields an empty catalogue.
func Load(path string) (*Catalogue, error) {
	c := &Catalogue{
		path:    path,
		entries: make(map[string]*model.Variety),
		aliases: make(map[string]string),
	}

	varieties, err := cache.ReadLines[model.Variety](path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return c, nil
		}
		return nil, eris.Wrap(err, "variety: load catalogue")
	}

	for _, v := range varieties {
		entry := v
		if entry.PassportStatus == "" {
			entry.PassportStatus = model.PassportUnassigned
		}
		if err := c.index(&entry); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// index registers an entry and its aliases, enforcing disjointness.
func (c *Catalogue) index(v *model.Variety) error {
	if _, exists := c.entries[v.Name]; exists {
		return eris.Errorf("variety: duplicate canonical %q", v.Name)
	}
	lowered := make([]string, 0, len(v.Aliases))
	for _, a := range v.Aliases {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" || a == strings.ToLower(v.Name) {
			continue
		}
		if owner, taken := c.aliases[a]; taken && owner != v.Name {
			return eris.Errorf("variety: alias %q maps to both %q and %q", a, owner, v.Name)
		}
		lowered = append(lowered, a)
	}
	sort.Strings(lowered)
	lowered = dedupe(lowered)
	v.Aliases = lowered

	c.entries[v.Name] = v
	for _, a := range lowered {
		c.aliases[a] = v.Name
	}
	return nil
}

// Save writes the catalogue alphabetically by canonical name.
func (c *Catalogue) Save() error {
	c.mu.RLock()
	varieties := c.sortedLocked()
	c.mu.RUnlock()
	return cache.WriteLines(c.path, varieties)
}

// Varieties returns all entries sorted by canonical name.
func (c *Catalogue) Varieties() []model.Variety {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sortedLocked()
}

func (c *Catalogue) sortedLocked() []model.Variety {
	out := make([]model.Variety, 0, len(c.entries))
	for _, v := range c.entries {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of canonical entries.
func (c *Catalogue) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Get returns a copy of the entry for a canonical name.
func (c *Catalogue) Get(canonical string) (model.Variety, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[canonical]
	if !ok {
		return model.Variety{}, false
	}
	return *v, true
}

// Lookup resolves a raw cépage string to its canonical name by lowercase
// exact match against the union of canonical names and aliases.
func (c *Catalogue) Lookup(raw string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return "", false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if canonical, ok := c.aliases[key]; ok {
		return canonical, true
	}
	// The lowercased canonical form is implicitly its own alias.
	for name := range c.entries {
		if strings.ToLower(name) == key {
			return name, true
		}
	}
	return "", false
}

// AddVariety creates a new canonical entry. It rejects an existing canonical
// and any alias already owned by another entry.
func (c *Catalogue) AddVariety(canonical string, aliases []string, isGrape bool) error {
	canonical = strings.TrimSpace(canonical)
	if canonical == "" {
		return eris.New("variety: empty canonical name")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[canonical]; exists {
		return eris.Errorf("variety: canonical %q already exists", canonical)
	}
	if owner, ok := c.aliases[strings.ToLower(canonical)]; ok {
		return eris.Errorf("variety: name %q is already an alias of %q", canonical, owner)
	}

	entry := &model.Variety{
		Name:           canonical,
		IsGrape:        isGrape,
		PassportStatus: model.PassportUnassigned,
	}
	if !isGrape {
		entry.PassportStatus = model.PassportSkippedNotGrape
	}
	if err := c.addAliasesLocked(entry, aliases); err != nil {
		return err
	}
	c.entries[canonical] = entry
	return nil
}

// ExtendAliases unions new aliases into an existing canonical. Idempotent.
func (c *Catalogue) ExtendAliases(canonical string, newAliases []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[canonical]
	if !ok {
		return eris.Errorf("variety: unknown canonical %q", canonical)
	}
	return c.addAliasesLocked(entry, newAliases)
}

func (c *Catalogue) addAliasesLocked(entry *model.Variety, aliases []string) error {
	for _, a := range aliases {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" || a == strings.ToLower(entry.Name) {
			continue
		}
		if owner, taken := c.aliases[a]; taken {
			if owner == entry.Name {
				continue
			}
			return eris.Errorf("variety: alias %q already maps to %q", a, owner)
		}
		c.aliases[a] = entry.Name
		entry.Aliases = append(entry.Aliases, a)
	}
	sort.Strings(entry.Aliases)
	entry.Aliases = dedupe(entry.Aliases)
	return nil
}

// AttachPassport replaces the passport data and status of a canonical entry.
func (c *Catalogue) AttachPassport(canonical string, passport *model.Passport, status model.PassportStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[canonical]
	if !ok {
		return eris.Errorf("variety: unknown canonical %q", canonical)
	}
	entry.Passport = passport
	entry.PassportStatus = status
	return nil
}

// SetNoWine flags or clears the no-wine marker on a canonical entry.
func (c *Catalogue) SetNoWine(canonical string, noWine bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[canonical]
	if !ok {
		return eris.Errorf("variety: unknown canonical %q", canonical)
	}
	entry.NoWine = noWine
	return nil
}

// Consolidate merges the secondary canonical into the primary: the
// secondary's aliases and its lowercased canonical name fold into the
// primary, and the secondary is dropped. Used when passport resolution
// reveals two entries sharing one catalogue identifier.
func (c *Catalogue) Consolidate(primary, secondary string) error {
	if primary == secondary {
		return eris.New("variety: consolidate requires two distinct canonicals")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.entries[primary]
	if !ok {
		return eris.Errorf("variety: unknown canonical %q", primary)
	}
	s, ok := c.entries[secondary]
	if !ok {
		return eris.Errorf("variety: unknown canonical %q", secondary)
	}

	folded := append([]string{strings.ToLower(secondary)}, s.Aliases...)
	delete(c.entries, secondary)
	for _, a := range s.Aliases {
		delete(c.aliases, a)
	}

	if err := c.addAliasesLocked(p, folded); err != nil {
		return err
	}
	return nil
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	var prev string
	for i, s := range sorted {
		if i == 0 || s != prev {
			out = append(out, s)
		}
		prev = s
	}
	return out
}

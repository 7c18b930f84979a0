package model

// PassportStatus tracks a variety's progress through catalogue resolution.
type PassportStatus string

const (
	PassportUnassigned      PassportStatus = "unassigned"
	PassportFound           PassportStatus = "found"
	PassportNotFound        PassportStatus = "not_found"
	PassportError           PassportStatus = "error"
	PassportSkippedNotGrape PassportStatus = "skipped_not_grape"
)

// Variety is one canonical entry in the grape catalogue. The canonical Name
// keys the catalogue; aliases are stored lowercased and sorted, and the
// lowercased canonical form is honored by lookup without being stored.
type Variety struct {
	Name           string         `json:"name"`
	Aliases        []string       `json:"aliases,omitempty"`
	IsGrape        bool           `json:"is_grape"`
	NoWine         bool           `json:"no_wine,omitempty"`
	Passport       *Passport      `json:"passport,omitempty"`
	PassportStatus PassportStatus `json:"passport_status,omitempty"`
}

// ParentRef points at one parent variety in the external catalogue.
type ParentRef struct {
	Name        string `json:"name"`
	CatalogueID string `json:"catalogue_id"`
}

// Passport holds the pedigree and metadata scraped from the external grape
// catalogue for one variety.
type Passport struct {
	CatalogueID     string     `json:"catalogue_id"`
	CanonicalName   string     `json:"canonical_name,omitempty"`
	BerrySkinColor  string     `json:"berry_skin_color,omitempty"`
	CountryOfOrigin string     `json:"country_of_origin,omitempty"`
	Species         string     `json:"species,omitempty"`
	SexOfFlower     string     `json:"sex_of_flower,omitempty"`
	YearOfCrossing  string     `json:"year_of_crossing,omitempty"`
	Synonyms        []string   `json:"synonyms,omitempty"`
	Parent1         *ParentRef `json:"parent1,omitempty"`
	Parent2         *ParentRef `json:"parent2,omitempty"`
}

// Catch-all bucket canonical names. Blends and unidentified mixes resolve to
// the Unknown bucket; non-grape fruit resolves to the Fruit bucket, which is
// the only bucket that disqualifies a wine during the final merge.
const (
	BucketUnknown = "Unknown"
	BucketFruit   = "Fruit"
)

// Package model defines the record types shared across the pipeline:
// producers, wines, varieties, passports, and cache entries.
package model

// Source identifies which adapter produced a record.
type Source string

const (
	SourceQuebec   Source = "racj"
	SourceFederal  Source = "ttb"
	SourceResearch Source = "research"
)

// Classification is the business-type label assigned by the classify stage.
type Classification string

const (
	ClassWineGrower  Classification = "wine_grower"
	ClassWinemaker   Classification = "winemaker"
	ClassGrapeGrower Classification = "grape_grower"
	ClassMeadery     Classification = "meadery"
	ClassCidery      Classification = "cidery"
	ClassBrewery     Classification = "brewery"
	ClassDistillery  Classification = "distillery"
	ClassFruitWinery Classification = "fruit_winery"
	ClassUnknown     Classification = "unknown"
)

// AllClassifications lists every valid classification value.
func AllClassifications() []Classification {
	return []Classification{
		ClassWineGrower, ClassWinemaker, ClassGrapeGrower,
		ClassMeadery, ClassCidery, ClassBrewery, ClassDistillery,
		ClassFruitWinery, ClassUnknown,
	}
}

// IsWine reports whether the classification belongs to the wine subset.
func (c Classification) IsWine() bool {
	switch c {
	case ClassWineGrower, ClassWinemaker, ClassGrapeGrower:
		return true
	default:
		return false
	}
}

// Verification is the tri-state verified-wine-producer flag. A nil pointer in
// Producer means the enrichment stage has not decided.
type Verification string

const (
	VerifiedTrue    Verification = "true"
	VerifiedFalse   Verification = "false"
	VerifiedUnknown Verification = "unknown"
)

// GeocodingMethod records which strategy produced the coordinates.
type GeocodingMethod string

const (
	GeocodeFullAddress  GeocodingMethod = "full_address"
	GeocodeCityFallback GeocodingMethod = "city_fallback"
	GeocodeNone         GeocodingMethod = "none"
)

// Producer is a permit-bearing entity that may produce wine. Identity and
// location fields come from the source adapter; enrichment and geolocation
// fields stay empty until the pipeline fills them.
type Producer struct {
	PermitID         string   `json:"permit_id"`
	Source           Source   `json:"source"`
	Country          string   `json:"country"`
	StateProvince    string   `json:"state_province"`
	City             string   `json:"city,omitempty"`
	PostalCode       string   `json:"postal_code,omitempty"`
	Address          string   `json:"address,omitempty"`
	BusinessName     string   `json:"business_name"`
	PermitHolder     string   `json:"permit_holder,omitempty"`
	PermitCategories []string `json:"permit_categories,omitempty"`

	Classification Classification `json:"classification,omitempty"`
	Website        string         `json:"website,omitempty"`
	SocialMedia    []string       `json:"social_media,omitempty"`
	WineLabel      string         `json:"wine_label,omitempty"`
	Activities     []string       `json:"activities,omitempty"`
	Wines          []Wine         `json:"wines,omitempty"`
	Verified       Verification   `json:"verified_wine_producer,omitempty"`

	Latitude        *float64        `json:"latitude,omitempty"`
	Longitude       *float64        `json:"longitude,omitempty"`
	GeocodingMethod GeocodingMethod `json:"geocoding_method,omitempty"`
}

// Wine is one product attributed to a producer.
type Wine struct {
	Name        string   `json:"name"`
	Type        string   `json:"type,omitempty"`
	Vintage     string   `json:"vintage,omitempty"`
	Description string   `json:"description,omitempty"`
	Winemaking  string   `json:"winemaking,omitempty"`
	Cepages     []string `json:"cepages,omitempty"`
}

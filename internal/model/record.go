package model

import "time"

// RecordStatus tags an enrichment cache entry. Every processed producer ends
// up with exactly one entry: a full record, an early-exit marker, or an error
// marker.
type RecordStatus string

const (
	RecordOK        RecordStatus = "ok"
	RecordEarlyExit RecordStatus = "early_exit"
	RecordError     RecordStatus = "error"
)

// EnrichmentRecord is one line of the producer-enrichment cache, keyed by
// permit id.
type EnrichmentRecord struct {
	PermitID       string         `json:"permit_id"`
	Status         RecordStatus   `json:"status"`
	Classification Classification `json:"classification,omitempty"`
	Website        string         `json:"website,omitempty"`
	SocialMedia    []string       `json:"social_media,omitempty"`
	WineLabel      string         `json:"wine_label,omitempty"`
	Activities     []string       `json:"activities,omitempty"`
	Wines          []Wine         `json:"wines,omitempty"`
	Verified       Verification   `json:"verified_wine_producer,omitempty"`
	SkipReason     string         `json:"skip_reason,omitempty"`
	Error          string         `json:"error,omitempty"`
	RunID          string         `json:"run_id,omitempty"`
	EnrichedAt     time.Time      `json:"enriched_at"`
}

// Key implements cache.Keyed.
func (r EnrichmentRecord) Key() string { return r.PermitID }

// GeolocationRecord is one line of the geolocation cache. A record with nil
// coordinates is an explicit null marker that suppresses future attempts.
type GeolocationRecord struct {
	PermitID  string          `json:"permit_id"`
	Latitude  *float64        `json:"latitude"`
	Longitude *float64        `json:"longitude"`
	Method    GeocodingMethod `json:"method"`
	Provider  string          `json:"provider,omitempty"`
}

// Key implements cache.Keyed.
func (r GeolocationRecord) Key() string { return r.PermitID }

// Located reports whether the record carries usable coordinates.
func (r GeolocationRecord) Located() bool {
	return r.Latitude != nil && r.Longitude != nil && r.Method != GeocodeNone
}

// PageRecord is one line of the external-catalogue HTTP cache, keyed by URL.
type PageRecord struct {
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Key implements cache.Keyed.
func (r PageRecord) Key() string { return r.URL }

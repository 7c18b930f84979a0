// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Data      DataConfig      `yaml:"data" mapstructure:"data"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Geocode   GeocodeConfig   `yaml:"geocode" mapstructure:"geocode"`
	Sources   SourcesConfig   `yaml:"sources" mapstructure:"sources"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Variety   VarietyConfig   `yaml:"variety" mapstructure:"variety"`
	VIVC      VIVCConfig      `yaml:"vivc" mapstructure:"vivc"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// DataConfig names the data directory and the files inside it.
type DataConfig struct {
	Dir              string `yaml:"dir" mapstructure:"dir"`
	Producers        string `yaml:"producers" mapstructure:"producers"`
	ProducersMeta    string `yaml:"producers_meta" mapstructure:"producers_meta"`
	EnrichmentCache  string `yaml:"enrichment_cache" mapstructure:"enrichment_cache"`
	GeolocationCache string `yaml:"geolocation_cache" mapstructure:"geolocation_cache"`
	HTTPCache        string `yaml:"http_cache" mapstructure:"http_cache"`
	Catalogue        string `yaml:"catalogue" mapstructure:"catalogue"`
	FinalProducers   string `yaml:"final_producers" mapstructure:"final_producers"`
}

// ProducersPath returns the unified producer stream path.
func (d DataConfig) ProducersPath() string { return filepath.Join(d.Dir, d.Producers) }

// ProducersMetaPath returns the fetch metadata sidecar path.
func (d DataConfig) ProducersMetaPath() string { return filepath.Join(d.Dir, d.ProducersMeta) }

// EnrichmentCachePath returns the enrichment cache path.
func (d DataConfig) EnrichmentCachePath() string { return filepath.Join(d.Dir, d.EnrichmentCache) }

// GeolocationCachePath returns the geolocation cache path.
func (d DataConfig) GeolocationCachePath() string { return filepath.Join(d.Dir, d.GeolocationCache) }

// HTTPCachePath returns the external-catalogue HTTP cache path.
func (d DataConfig) HTTPCachePath() string { return filepath.Join(d.Dir, d.HTTPCache) }

// CataloguePath returns the variety catalogue path.
func (d DataConfig) CataloguePath() string { return filepath.Join(d.Dir, d.Catalogue) }

// FinalProducersPath returns the final normalized producer stream path.
func (d DataConfig) FinalProducersPath() string { return filepath.Join(d.Dir, d.FinalProducers) }

// AnthropicConfig holds Anthropic API settings. A missing key is fatal for
// any stage that calls the model.
type AnthropicConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	ClassifyModel string `yaml:"classify_model" mapstructure:"classify_model"`
	EnrichModel   string `yaml:"enrich_model" mapstructure:"enrich_model"`
	ResolveModel  string `yaml:"resolve_model" mapstructure:"resolve_model"`
	MaxWebSearch  int    `yaml:"max_web_searches" mapstructure:"max_web_searches"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// GeocodeConfig holds geocoder settings. The Google key is optional; its
// absence only disables the commercial fallback tier.
type GeocodeConfig struct {
	GoogleKey        string  `yaml:"google_key" mapstructure:"google_key"`
	NominatimBaseURL string  `yaml:"nominatim_base_url" mapstructure:"nominatim_base_url"`
	MinDelaySecs     float64 `yaml:"min_delay_secs" mapstructure:"min_delay_secs"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent        string  `yaml:"user_agent" mapstructure:"user_agent"`
}

// SourcesConfig configures the permit-registry adapters.
type SourcesConfig struct {
	QuebecURL     string   `yaml:"quebec_url" mapstructure:"quebec_url"`
	QuebecRawFile string   `yaml:"quebec_raw_file" mapstructure:"quebec_raw_file"`
	FederalCSV    string   `yaml:"federal_csv" mapstructure:"federal_csv"`
	FederalStates []string `yaml:"federal_states" mapstructure:"federal_states"`
	ResearchFile  string   `yaml:"research_file" mapstructure:"research_file"`
	TimeoutSecs   int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// PipelineConfig configures the enrichment driver.
type PipelineConfig struct {
	Threads   int     `yaml:"threads" mapstructure:"threads"`
	DelaySecs float64 `yaml:"delay_secs" mapstructure:"delay_secs"`
	WineRatio float64 `yaml:"wine_ratio" mapstructure:"wine_ratio"`
	// VerifiedOverridesClassification makes verified_wine_producer=false drop
	// a producer during the final merge even when its classification is in
	// the wine subset.
	VerifiedOverridesClassification bool `yaml:"verified_overrides_classification" mapstructure:"verified_overrides_classification"`
}

// VarietyConfig configures the normalizer.
type VarietyConfig struct {
	BatchLimit int `yaml:"batch_limit" mapstructure:"batch_limit"`
}

// VIVCConfig configures the external grape catalogue client.
type VIVCConfig struct {
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	MinDelaySecs  float64 `yaml:"min_delay_secs" mapstructure:"min_delay_secs"`
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxIterations int     `yaml:"max_iterations" mapstructure:"max_iterations"`
	MaxDepth      int     `yaml:"max_depth" mapstructure:"max_depth"`
	SearchLimit   int     `yaml:"search_limit" mapstructure:"search_limit"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("VINEYARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("data.dir", "data")
	v.SetDefault("data.producers", "producers.jsonl")
	v.SetDefault("data.producers_meta", "producers_meta.yaml")
	v.SetDefault("data.enrichment_cache", "enrichment_cache.jsonl")
	v.SetDefault("data.geolocation_cache", "geolocation_cache.jsonl")
	v.SetDefault("data.http_cache", "vivc_http_cache.jsonl")
	v.SetDefault("data.catalogue", "varieties.jsonl")
	v.SetDefault("data.final_producers", "producers_final.jsonl")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("anthropic.classify_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.enrich_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.resolve_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_web_searches", 5)
	v.SetDefault("anthropic.timeout_secs", 120)
	v.SetDefault("geocode.nominatim_base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocode.min_delay_secs", 1.1)
	v.SetDefault("geocode.timeout_secs", 30)
	v.SetDefault("geocode.user_agent", "vineyard-cli/1.0 (producer directory)")
	v.SetDefault("sources.quebec_url", "https://www.racj.gouv.qc.ca/fileadmin/donnees_ouvertes/permis_fabricants.json")
	v.SetDefault("sources.quebec_raw_file", "racj_raw.json")
	v.SetDefault("sources.federal_csv", "ttb_permits.csv")
	v.SetDefault("sources.federal_states", []string{"CT", "MA", "ME", "MI", "MN", "NH", "NY", "VT", "WI"})
	v.SetDefault("sources.research_file", "research_producers.jsonl")
	v.SetDefault("sources.timeout_secs", 60)
	v.SetDefault("pipeline.threads", 10)
	v.SetDefault("pipeline.delay_secs", 1)
	v.SetDefault("pipeline.wine_ratio", 0.3)
	v.SetDefault("pipeline.verified_overrides_classification", true)
	v.SetDefault("variety.batch_limit", 50)
	v.SetDefault("vivc.base_url", "https://www.vivc.de")
	v.SetDefault("vivc.min_delay_secs", 1)
	v.SetDefault("vivc.timeout_secs", 60)
	v.SetDefault("vivc.max_iterations", 10)
	v.SetDefault("vivc.max_depth", 5)
	v.SetDefault("vivc.search_limit", 20)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

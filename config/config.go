// Package config loads the engine configuration from a YAML file and
// validates it.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	defaultStaticURL = "https://api.mrn.cityway.fr/dataflow/offre-tc/download?provider=ASTUCE&dataFormat=gtfs&dataProfil=ASTUCE"
	defaultTimezone  = "Europe/Paris"
)

var defaultTripUpdateURLs = []string{
	"https://api.mrn.cityway.fr/dataflow/horaire-tc-tr/download?provider=TCAR&dataFormat=gtfs-rt",
	"https://api.mrn.cityway.fr/dataflow/horaire-tc-tr/download?provider=TNI&dataFormat=gtfs-rt",
	"https://api.mrn.cityway.fr/dataflow/horaire-tc-tr/download?provider=TAE&dataFormat=gtfs-rt",
}

type CitywayConfig struct {
	TransportBaseURL string `yaml:"transportBaseUrl" validate:"omitempty,url"`
	TimetableBaseURL string `yaml:"timetableBaseUrl" validate:"omitempty,url"`

	// Networks whose stops are resolved via the external bridge
	// rather than the GTFS feeds.
	Networks []string `yaml:"networks"`
}

type StorageConfig struct {
	// Driver selects the feed archive backend: memory, sqlite or
	// postgres.
	Driver string `yaml:"driver" validate:"omitempty,oneof=memory sqlite postgres"`
	DSN    string `yaml:"dsn"`
}

type AppConfig struct {
	StaticURL        string         `yaml:"staticUrl" validate:"required,url"`
	TripUpdateURLs   []string       `yaml:"tripUpdateUrls" validate:"dive,url"`
	StaticTTLMinutes int            `yaml:"staticTtlMinutes" validate:"gte=5"`
	Timezone         string         `yaml:"timezone" validate:"required"`
	ProviderPriority map[string]int `yaml:"providerPriority"`
	Cityway          CitywayConfig  `yaml:"cityway"`
	Storage          StorageConfig  `yaml:"storage"`
}

// Default returns the configuration used when no file is given.
func Default() AppConfig {
	return AppConfig{
		StaticURL:        defaultStaticURL,
		TripUpdateURLs:   defaultTripUpdateURLs,
		StaticTTLMinutes: 720,
		Timezone:         defaultTimezone,
		Storage:          StorageConfig{Driver: "memory"},
	}
}

// Load reads a YAML config file. Omitted fields fall back to the
// defaults; the merged result is validated.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "memory"
	}

	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"buswidget.dev/transit"
	"buswidget.dev/transit/cityway"
	"buswidget.dev/transit/config"
	"buswidget.dev/transit/storage"
)

var rootCmd = &cobra.Command{
	Use:          "transit",
	Short:        "Rouen transit departures tool",
	Long:         "Looks up stops and upcoming departures from the Rouen area feeds",
	SilenceUsage: true,
}

var (
	configPath string
	verbose    bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.AddCommand(departuresCmd)
	rootCmd.AddCommand(logicalCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

func newArchive(cfg config.StorageConfig) (storage.Archive, error) {
	switch cfg.Driver {
	case "", "memory":
		return storage.NewMemoryArchive(), nil
	case "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "transit-feeds.db"
		}
		return storage.NewSQLiteArchive(dsn)
	case "postgres":
		return storage.NewPostgresArchive(cfg.DSN)
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

// NewService assembles a Service from the config file (or defaults).
func NewService() (*transit.Service, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := newLogger()
	if err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone: %w", err)
	}

	archive, err := newArchive(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("opening feed archive: %w", err)
	}

	manager := transit.NewManager(archive)
	manager.StaticTTL = time.Duration(cfg.StaticTTLMinutes) * time.Minute
	manager.ProviderPriority = cfg.ProviderPriority
	manager.Logger = logger

	client := cityway.NewClient()
	if cfg.Cityway.TransportBaseURL != "" {
		client.TransportBaseURL = cfg.Cityway.TransportBaseURL
	}
	if cfg.Cityway.TimetableBaseURL != "" {
		client.TimetableBaseURL = cfg.Cityway.TimetableBaseURL
	}

	networks := map[string]bool{}
	for _, network := range cfg.Cityway.Networks {
		networks[network] = true
	}

	return &transit.Service{
		Manager:         manager,
		Bridge:          cityway.NewBridge(client, loc),
		StaticURL:       cfg.StaticURL,
		TripUpdateURLs:  cfg.TripUpdateURLs,
		CitywayNetworks: networks,
		Location:        loc,
		Logger:          logger,
	}, nil
}

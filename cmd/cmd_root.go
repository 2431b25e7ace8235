// Copyright 2025 The GroundGame Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/duckdb/duckdb-go/v2" // register duckdb driver
	"github.com/fieldthebern/groundgame/canvass"
	"github.com/fieldthebern/groundgame/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const dbFile = "groundgame.duckdb"

var (
	v   = config.New()
	cfg *config.Config

	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "groundgame",
	Short: "door to door canvassing from the command line",
	Long: `
groundgame resolves typed street addresses near a canvasser, looks them up in
the canvass address service and applies the revisit rule before a visit is
recorded. Visited addresses can be kept in a local store for map display.
`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		if configFile != "" {
			v.SetConfigFile(configFile)
		}

		loaded, err := config.Load(v)
		if err != nil {
			return err
		}

		cfg = loaded

		return config.InitLogger(cfg.Log)
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default ./groundgame.yaml)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "json", "log format (json or console)")
	flags.String("db-path", ".", "directory of the local address store")
	flags.String("api-url", "", "address service base URL")
	flags.Bool("trace", false, "dump HTTP traffic to stderr (credentials redacted)")

	mustBindFlag(rootCmd, "log.level", "log-level")
	mustBindFlag(rootCmd, "log.format", "log-format")
	mustBindFlag(rootCmd, "db.path", "db-path")
	mustBindFlag(rootCmd, "api.base_url", "api-url")
	mustBindFlag(rootCmd, "api.trace", "trace")
}

// mustBindFlag binds a local or persistent flag of cmd to a config key.
func mustBindFlag(cmd *cobra.Command, key, flag string) {
	f := cmd.Flags().Lookup(flag)
	if f == nil {
		f = cmd.PersistentFlags().Lookup(flag)
	}

	if err := v.BindPFlag(key, f); err != nil {
		panic(err)
	}
}

var Version = "dev"

func Execute(version string) {
	Version = version
	rootCmd.Version = version

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// newGeocoder builds the Google geocoder, fetching the key through
// Application Default Credentials when none is configured.
func newGeocoder(ctx context.Context) (*canvass.GoogleMapsGeocoder, error) {
	gc := cfg.Geocoder
	logger := zap.L().Named("geocoder")

	apiKey := gc.APIKey
	if apiKey == "" {
		key, err := canvass.APIKeyFromADC(ctx, gc.ProjectID, gc.APIKeyDisplayName, logger)
		if err != nil {
			return nil, fmt.Errorf("no geocoder.api_key set and ADC lookup failed: %w", err)
		}

		logger.Info("retrieved google maps api key via ADC")

		apiKey = key
	}

	opts := []canvass.GoogleOption{
		canvass.WithGoogleBaseURL(gc.BaseURL),
		canvass.WithGoogleRegion(gc.Region),
		canvass.WithGoogleTimeout(gc.Timeout),
		canvass.WithGoogleRateLimit(gc.RatePerSecond),
		canvass.WithGoogleLogger(logger),
	}

	if cfg.API.Trace {
		opts = append(opts, canvass.WithGoogleTrace(os.Stderr))
	}

	return canvass.NewGoogleMapsGeocoder(apiKey, opts...), nil
}

func newResolver(ctx context.Context) (*canvass.AddressResolver, error) {
	geocoder, err := newGeocoder(ctx)
	if err != nil {
		return nil, err
	}

	return canvass.NewAddressResolver(geocoder,
		canvass.WithFilterRadius(cfg.Geocoder.FilterRadiusMeters),
		canvass.WithResolverLogger(zap.L().Named("resolver")),
	), nil
}

func newAddressService() *canvass.HTTPAddressService {
	opts := []canvass.ServiceOption{
		canvass.WithServiceTimeout(cfg.API.Timeout),
		canvass.WithServiceRateLimit(cfg.API.RatePerSecond),
		canvass.WithServiceLogger(zap.L().Named("lookup")),
	}

	if cfg.API.Trace {
		opts = append(opts, canvass.WithServiceTrace(os.Stderr))
	}

	return canvass.NewHTTPAddressService(cfg.API.BaseURL, cfg.API.Token, opts...)
}

// openRepository opens the local address store, creating it if needed.
func openRepository() (*sql.DB, canvass.AddressRepository, error) {
	if err := os.MkdirAll(cfg.DB.Path, 0o750); err != nil {
		return nil, nil, fmt.Errorf("creating db directory: %w", err)
	}

	db, err := sql.Open("duckdb", filepath.Join(cfg.DB.Path, dbFile))
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}

	repo := canvass.NewAddressRepository(db)
	if err := repo.CreateSchema(); err != nil {
		db.Close()

		return nil, nil, fmt.Errorf("creating schema: %w", err)
	}

	return db, repo, nil
}

func printJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(value)
}

// printRejection shows a user-facing failure the way the canvasser would
// see it, and returns err so the command exits non-zero.
func printRejection(w io.Writer, err error) error {
	var ce *canvass.Error
	if errors.As(err, &ce) {
		fmt.Fprintf(w, "%s\n\n%s\n", ce.Title, ce.Message)
	}

	return err
}

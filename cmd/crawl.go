package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zapdeals/zapdeals/internal/brasilaberto"
	"github.com/zapdeals/zapdeals/internal/cleaning"
	"github.com/zapdeals/zapdeals/internal/config"
	"github.com/zapdeals/zapdeals/internal/crawl"
	"github.com/zapdeals/zapdeals/internal/geodata"
	"github.com/zapdeals/zapdeals/internal/listing"
	"github.com/zapdeals/zapdeals/internal/normalize"
	"github.com/zapdeals/zapdeals/internal/zapapi"
)

type crawlFlags struct {
	state         string
	city          string
	neighborhoods []string
	unitType      string
	usageType     string
	businessType  string
	minPrice      int
	maxPrice      int
	minArea       int
}

// newCrawlCmd creates and configures the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	var flags crawlFlags

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawls the listings of a city, neighborhood by neighborhood",
		Long: `Walks the paginated portal search for every requested neighborhood,
normalizes and cleans the results and commits them to the store. When no
neighborhoods are given, the city's official district registry is used.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawlCommand(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.state, "state", "", "state acronym, e.g. SP (required)")
	cmd.Flags().StringVar(&flags.city, "city", "", "city name, e.g. 'São Paulo' (required)")
	cmd.Flags().StringSliceVar(&flags.neighborhoods, "neighborhoods", nil,
		"neighborhoods to crawl (default: every district of the city)")
	cmd.Flags().StringVar(&flags.unitType, "unit-type", "APARTMENT", "unit type: APARTMENT or HOME")
	cmd.Flags().StringVar(&flags.usageType, "usage-type", "RESIDENTIAL", "usage type filter")
	cmd.Flags().StringVar(&flags.businessType, "business-type", "SALE", "business type: SALE or RENTAL")
	cmd.Flags().IntVar(&flags.minPrice, "min-price", 0, "minimum price filter")
	cmd.Flags().IntVar(&flags.maxPrice, "max-price", 0, "maximum price filter (0 = unbounded)")
	cmd.Flags().IntVar(&flags.minArea, "min-area", 0, "minimum usable area filter in m2")
	_ = cmd.MarkFlagRequired("state")
	_ = cmd.MarkFlagRequired("city")

	return cmd
}

func runCrawlCommand(cmd *cobra.Command, flags crawlFlags) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := appInstance.Config()
	logger := appInstance.Logger()

	filters, err := buildFilters(flags)
	if err != nil {
		return err
	}

	controller, err := buildController(appInstance, cfg, logger)
	if err != nil {
		return err
	}

	summaries, err := controller.CrawlCity(cmd.Context(), filters, flags.neighborhoods)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("crawl city: %w", err)
	}

	var persisted, removed int
	for _, s := range summaries {
		persisted += s.Persisted
		removed += s.Removed
	}
	logger.Info("Crawl command finished",
		zap.Int("neighborhoods", len(summaries)),
		zap.Int("persisted", persisted),
		zap.Int("removed", removed),
	)
	return nil
}

func buildFilters(flags crawlFlags) (listing.SearchFilters, error) {
	businessType := listing.BusinessType(strings.ToUpper(flags.businessType))
	if !businessType.Valid() {
		return listing.SearchFilters{}, fmt.Errorf("invalid business type %q", flags.businessType)
	}
	return listing.SearchFilters{
		State:        flags.state,
		City:         flags.city,
		UnitType:     strings.ToUpper(flags.unitType),
		UsageType:    strings.ToUpper(flags.usageType),
		BusinessType: businessType,
		MinPrice:     flags.minPrice,
		MaxPrice:     flags.maxPrice,
		MinArea:      flags.minArea,
	}, nil
}

func buildController(appInstance App, cfg config.Config, logger *zap.Logger) (*crawl.Controller, error) {
	fetcher, err := zapapi.NewClient(zapapi.ClientConfig{
		UserAgent:      cfg.Crawler.UserAgent,
		RequestTimeout: cfg.CrawlerTimeout(),
		MaxAttempts:    cfg.Crawler.MaxAttempts,
		BackoffBase:    time.Duration(cfg.Crawler.BackoffInitialMs) * time.Millisecond,
		BackoffMax:     time.Duration(cfg.Crawler.BackoffMaxMs) * time.Millisecond,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init listings client: %w", err)
	}

	zips := brasilaberto.NewClient(brasilaberto.Config{
		APIKey:         cfg.BrasilAberto.APIKey,
		RequestTimeout: time.Duration(cfg.BrasilAberto.TimeoutSeconds) * time.Second,
		MaxAttempts:    cfg.BrasilAberto.MaxAttempts,
		BaseURL:        cfg.BrasilAberto.BaseURL,
	}, logger)

	var geo normalize.GeoAnalyzer = geodata.NoOpAnalyzer{}
	if cfg.Geodata.Enabled {
		timeout := time.Duration(cfg.Geodata.TimeoutSeconds) * time.Second
		satellite := geodata.NewSatelliteClient(geodata.SatelliteConfig{
			Token:          cfg.Geodata.MapboxToken,
			RequestTimeout: timeout,
		}, logger)
		overpass := geodata.NewOverpassClient(geodata.OverpassConfig{
			RequestTimeout: timeout,
			BaseURL:        cfg.Geodata.OverpassURL,
		}, logger)
		geo = geodata.NewService(satellite, overpass)
	}

	pipeline, err := cleaning.NewPipeline(cfg.CleaningConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("init cleaning pipeline: %w", err)
	}

	return crawl.New(crawl.Params{
		Fetcher:    fetcher,
		Repo:       appInstance.Repo(),
		Geo:        geo,
		Zips:       zips,
		Districts:  zips,
		Pipeline:   pipeline,
		Archive:    appInstance.Archive(),
		Events:     appInstance.Events(),
		Logger:     logger,
		StaleAfter: cfg.StaleAfter(),
		Seed:       cfg.Crawler.Seed,
	})
}

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"

	"github.com/gfbio/abcdcrawler/internal/config"
	"github.com/gfbio/abcdcrawler/internal/fetch"
	"github.com/gfbio/abcdcrawler/internal/fields"
	"github.com/gfbio/abcdcrawler/internal/geobitmap"
	"github.com/gfbio/abcdcrawler/internal/pipeline"
	"github.com/gfbio/abcdcrawler/internal/store"
	"github.com/gfbio/abcdcrawler/internal/surrogate"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Crawl every dataset once and migrate the published schema",
	Args:  cobra.NoArgs,
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	dict, err := loadDictionary(cfg.ABCD.FieldsFile)
	if err != nil {
		return err
	}

	conn, err := pgx.Connect(ctx, connString(cfg.Database))
	if err != nil {
		return fmt.Errorf("abcdcrawler: connect to database: %w", err)
	}
	defer conn.Close(ctx)

	settings := cfg.Database.StoreSettings()
	registry := surrogate.NewRegistry()
	geo := geobitmap.New()
	manager := store.NewManager(conn, settings, dict)
	loader := store.NewLoader(conn, settings, dict, registry, geo)

	cache, err := fetch.NewCache(cfg.ABCD.StorageDir)
	if err != nil {
		return fmt.Errorf("abcdcrawler: open archive cache: %w", err)
	}
	searchIndex := fetch.NewScrollSearchIndex(nil, cfg.SearchIndex.SearchURL, cfg.SearchIndex.ScrollURL)
	downloader := fetch.NewHTTPDownloader(nil)

	orch, err := pipeline.New(
		searchIndex,
		downloader,
		cache,
		filepath.Join(cfg.ABCD.StorageDir, "tmp"),
		dict,
		cfg.ABCD.LandingPageField,
		cfg.LandingPage.BaseURL,
		manager,
		loader,
		pipeline.Debug{DatasetStart: cfg.Debug.DatasetStart, DatasetLimit: cfg.Debug.DatasetLimit},
	)
	if err != nil {
		return err
	}

	if err := orch.Run(ctx); err != nil {
		return err
	}

	log.Printf("abcdcrawler: run complete, %d datasets carry a georeferenced unit", geo.Len())
	return nil
}

func loadDictionary(path string) (*fields.Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("abcdcrawler: open field dictionary %s: %w", path, err)
	}
	defer f.Close()
	return fields.Load(f)
}

func connString(db config.Database) string {
	sslmode := "disable"
	if db.TLS {
		sslmode = "require"
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		db.Host, db.Port, db.Database, db.User, db.Password, sslmode)
}

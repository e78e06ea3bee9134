package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/gfbio/abcdcrawler/internal/abcdxml"
	"github.com/gfbio/abcdcrawler/internal/config"
	"github.com/gfbio/abcdcrawler/internal/fetch"
)

var parseFileCmd = &cobra.Command{
	Use:   "parse-file <archive.zip>",
	Short: "Parse a single local archive and print its unit rows as CSV",
	Args:  cobra.ExactArgs(1),
	RunE:  runParseFile,
}

// runParseFile parses archivePath without touching the database: the
// same path abcdxml.Parser and fetch.Archive take inside the
// pipeline, minus the store.Loader at the end. Useful for inspecting
// what a feed would load before pointing the crawler at PostgreSQL.
func runParseFile(cmd *cobra.Command, args []string) error {
	archivePath := args[0]

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	dict, err := loadDictionary(cfg.ABCD.FieldsFile)
	if err != nil {
		return err
	}

	archive, err := fetch.OpenArchive(archivePath)
	if err != nil {
		return err
	}
	defer archive.Close()

	parser := abcdxml.New(dict, cfg.ABCD.LandingPageField)

	w := csv.NewWriter(os.Stdout)
	defer w.Flush()

	header := []string{"datasetID", "datasetPath", "landingPage", "providerName"}
	for _, f := range dict.Unit {
		header = append(header, f.Path)
	}
	if err := w.Write(header); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		member, err := archive.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		result, err := parser.Parse(ctx, archivePath, archivePath, cfg.LandingPage.BaseURL, "", bytes.NewReader(member))
		if err != nil {
			fmt.Fprintf(os.Stderr, "parse-file: %v\n", err)
			continue
		}

		for _, unit := range result.Units {
			row := []string{result.DatasetID, result.DatasetPath, result.LandingPage, result.ProviderName}
			for _, f := range dict.Unit {
				if v, ok := unit[f.Path]; ok {
					row = append(row, v.String())
				} else {
					row = append(row, "")
				}
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}

	w.Flush()
	return w.Error()
}

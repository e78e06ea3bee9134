// Package config loads the crawler's HCL settings file into a typed
// Config tree.
package config

import (
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/gfbio/abcdcrawler/internal/store"
)

// General carries process-wide settings.
type General struct {
	LogLevel string `hcl:"log_level,optional"`
}

// ABCD carries field-dictionary and archive-cache settings.
type ABCD struct {
	FieldsFile       string `hcl:"fields_file"`
	LandingPageField string `hcl:"landing_page_field"`
	StorageDir       string `hcl:"storage_dir"`
}

// SearchIndex carries the scroll-search endpoints used to enumerate
// datasets.
type SearchIndex struct {
	SearchURL string `hcl:"search_url"`
	ScrollURL string `hcl:"scroll_url"`
}

// LandingPage carries the base URL used to propose a landing page for
// datasets that do not publish their own.
type LandingPage struct {
	BaseURL string `hcl:"base_url"`
}

// Database carries the published schema's table/column names and
// connection parameters.
type Database struct {
	Host     string `hcl:"host"`
	Port     int    `hcl:"port"`
	Database string `hcl:"database"`
	User     string `hcl:"user"`
	Password string `hcl:"password"`
	Schema   string `hcl:"schema"`
	TLS      bool   `hcl:"tls,optional"`

	DatasetTable             string   `hcl:"dataset_table"`
	UnitTable                string   `hcl:"unit_table"`
	ListingView              string   `hcl:"listing_view"`
	SurrogateKeyColumn       string   `hcl:"surrogate_key_column"`
	DatasetIDColumn          string   `hcl:"dataset_id_column"`
	DatasetPathColumn        string   `hcl:"dataset_path_column"`
	DatasetLandingPageColumn string   `hcl:"dataset_landing_page_column"`
	DatasetProviderColumn    string   `hcl:"dataset_provider_column"`
	UnitIndexedColumns       []string `hcl:"unit_indexed_columns,optional"`
}

// StoreSettings adapts the database configuration section into the
// store package's own Settings type.
func (d Database) StoreSettings() store.Settings {
	return store.Settings{
		Schema:                   d.Schema,
		DatasetTable:             d.DatasetTable,
		UnitTable:                d.UnitTable,
		ListingView:              d.ListingView,
		SurrogateKeyColumn:       d.SurrogateKeyColumn,
		DatasetIDColumn:          d.DatasetIDColumn,
		DatasetPathColumn:        d.DatasetPathColumn,
		DatasetLandingPageColumn: d.DatasetLandingPageColumn,
		DatasetProviderColumn:    d.DatasetProviderColumn,
		UnitIndexedColumns:       d.UnitIndexedColumns,
	}
}

// Debug carries the optional dataset-window slicing used to limit a
// run while developing or diagnosing a feed.
type Debug struct {
	DatasetStart int `hcl:"dataset_start,optional"`
	DatasetLimit int `hcl:"dataset_limit,optional"`
}

// Config is the fully decoded settings file.
type Config struct {
	General     General     `hcl:"general,block"`
	ABCD        ABCD        `hcl:"abcd,block"`
	SearchIndex SearchIndex `hcl:"search_index,block"`
	LandingPage LandingPage `hcl:"landing_page,block"`
	Database    Database    `hcl:"database,block"`
	Debug       Debug       `hcl:"debug,block"`
}

// Load parses and decodes the HCL file at path.
func Load(path string) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("config: parse %s: %w", path, diags)
	}

	var cfg Config
	if diags := gohcl.DecodeBody(file.Body, nil, &cfg); diags.HasErrors() {
		return nil, fmt.Errorf("config: decode %s: %w", path, diags)
	}
	return &cfg, nil
}

package store

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/gfbio/abcdcrawler/internal/colhash"
	"github.com/gfbio/abcdcrawler/internal/fields"
	"github.com/gfbio/abcdcrawler/internal/geobitmap"
	"github.com/gfbio/abcdcrawler/internal/surrogate"
	"github.com/gfbio/abcdcrawler/internal/value"
)

const (
	longitudePath = "/DataSets/DataSet/Units/Unit/Gathering/SiteCoordinateSets/SiteCoordinates/CoordinatesLatLong/LongitudeDecimal"
	latitudePath  = "/DataSets/DataSet/Units/Unit/Gathering/SiteCoordinateSets/SiteCoordinates/CoordinatesLatLong/LatitudeDecimal"
)

// Loader bulk-inserts dataset and unit records into the temporary
// tables a Manager has prepared, via PostgreSQL's text-format COPY
// protocol.
type Loader struct {
	conn     *pgx.Conn
	settings Settings
	dict     *fields.Dictionary
	registry *surrogate.Registry
	geo      *geobitmap.Bitmap
}

// NewLoader returns a Loader bound to conn, settings and dict, sharing
// registry and geo with the rest of the pipeline so dedup and the
// geo-reference mirror stay consistent across many InsertDataset
// calls.
func NewLoader(conn *pgx.Conn, settings Settings, dict *fields.Dictionary, registry *surrogate.Registry, geo *geobitmap.Bitmap) *Loader {
	return &Loader{conn: conn, settings: settings, dict: dict, registry: registry, geo: geo}
}

// DatasetRecord is one parsed archive member ready to be inserted.
type DatasetRecord struct {
	DatasetID    string
	DatasetPath  string
	LandingPage  string
	ProviderName string
	Dataset      value.Map
	Units        []value.Map
}

// InsertDataset inserts rec's metadata (if its external id has not
// been seen before) and all of its units, returning the surrogate key
// it was assigned and whether that key already existed.
func (l *Loader) InsertDataset(ctx context.Context, rec DatasetRecord) (key int, existing bool, err error) {
	key, existing = l.registry.For(rec.DatasetID)
	if !existing {
		if err := l.insertDatasetMetadata(ctx, rec, key); err != nil {
			return key, existing, err
		}
	}
	if err := l.insertUnits(ctx, rec, key); err != nil {
		return key, existing, err
	}
	return key, existing, nil
}

func (l *Loader) insertDatasetMetadata(ctx context.Context, rec DatasetRecord, key int) error {
	s := l.settings
	columns := []string{s.SurrogateKeyColumn, s.DatasetIDColumn, s.DatasetPathColumn, s.DatasetLandingPageColumn, s.DatasetProviderColumn}
	row := []string{fmt.Sprint(key), rec.DatasetID, rec.DatasetPath, rec.LandingPage, rec.ProviderName}

	for _, f := range l.dict.Global {
		columns = append(columns, colhash.Hash(f.Path))
		if v, ok := rec.Dataset[f.Path]; ok {
			row = append(row, v.String())
		} else {
			row = append(row, "")
		}
	}

	if err := l.copyText(ctx, pgx.Identifier{s.Schema, s.TempDatasetTable()}, columns, [][]string{row}); err != nil {
		return fmt.Errorf("store: insert dataset metadata: %w", err)
	}
	return nil
}

func (l *Loader) insertUnits(ctx context.Context, rec DatasetRecord, key int) error {
	if len(rec.Units) == 0 {
		return nil
	}

	s := l.settings
	columns := []string{s.SurrogateKeyColumn}
	for _, f := range l.dict.Unit {
		columns = append(columns, colhash.Hash(f.Path))
	}
	columns = append(columns, "geom")

	rows := make([][]string, 0, len(rec.Units))
	for _, unit := range rec.Units {
		row := []string{fmt.Sprint(key)}

		var lon, lat value.Value
		var haveLon, haveLat bool

		for _, f := range l.dict.Unit {
			v, ok := unit[f.Path]
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, v.String())

			switch f.Path {
			case longitudePath:
				lon, haveLon = v, v.IsNumeric()
			case latitudePath:
				lat, haveLat = v, v.IsNumeric()
			}
		}

		if haveLon && haveLat {
			row = append(row, fmt.Sprintf("POINT(%s %s)", lon.String(), lat.String()))
			l.geo.Set(key)
		} else {
			row = append(row, "")
		}

		rows = append(rows, row)
	}

	if err := l.copyText(ctx, pgx.Identifier{s.Schema, s.TempUnitTable()}, columns, rows); err != nil {
		return fmt.Errorf("store: insert units: %w", err)
	}
	return nil
}

// copyText streams rows into table via PostgreSQL's text-format COPY
// protocol (FORMAT csv, NULL ''), rather than the binary protocol
// pgx.CopyFrom speaks. Every field here is a string, and an absent
// dictionary field is represented as an empty, unquoted CSV field so
// Postgres treats it as SQL NULL per the NULL '' option; the binary
// protocol has neither of these properties; it would require a
// registered encode plan per destination type (double precision,
// PostGIS geometry) and cannot express "no value" other than as the
// empty string literal. Postgres applies each column's own text input
// function to every field, so a numeric field's text and the geom
// column's WKT both parse into their proper types, matching how the
// original crawler streamed CSV into COPY.
func (l *Loader) copyText(ctx context.Context, table pgx.Identifier, columns []string, rows [][]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = '\t'
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("store: encode copy row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("store: encode copy rows: %w", err)
	}

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}

	sql := fmt.Sprintf(
		`COPY %s (%s) FROM STDIN WITH (FORMAT csv, DELIMITER E'\t', NULL '', QUOTE '"', ESCAPE '"')`,
		table.Sanitize(), strings.Join(quoted, ", "),
	)

	_, err := l.conn.PgConn().CopyFrom(ctx, &buf, sql)
	return err
}

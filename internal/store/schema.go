// Package store manages the published PostgreSQL schema (dataset,
// unit and translation tables plus a listing view) and bulk-loads
// parsed ABCD records into it.
//
// A load always targets a fresh set of temporary tables; Manager.Migrate
// atomically swaps them in for the previously published ones, so a
// reader never observes a half-built schema.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/gfbio/abcdcrawler/internal/colhash"
	"github.com/gfbio/abcdcrawler/internal/fields"
)

// ErrInconsistentDatasetColumns is returned when a field the
// dictionary partitions into the dataset-level (global) set cannot be
// looked back up in the dictionary by its own path while the
// temporary dataset table's DDL is built.
var ErrInconsistentDatasetColumns = errors.New("store: inconsistent dataset columns")

// ErrInconsistentUnitColumns is the unit-table counterpart of
// ErrInconsistentDatasetColumns.
var ErrInconsistentUnitColumns = errors.New("store: inconsistent unit columns")

// Manager owns the schema lifecycle: building the temporary schema
// for a fresh load, and migrating it into the published tables.
type Manager struct {
	conn     *pgx.Conn
	settings Settings
	dict     *fields.Dictionary
}

// NewManager returns a Manager bound to conn, settings and dict.
func NewManager(conn *pgx.Conn, settings Settings, dict *fields.Dictionary) *Manager {
	return &Manager{conn: conn, settings: settings, dict: dict}
}

// InitTemporarySchema drops any leftover temporary tables from a prior
// failed run and creates fresh ones: the dataset table, the unit
// table, and the hash→path translation table. It fails before any DDL
// if two distinct field paths hash to the same column name.
func (m *Manager) InitTemporarySchema(ctx context.Context) error {
	pathByHash := make(map[string]string, len(m.dict.Global)+len(m.dict.Unit))
	for _, group := range [][]fields.Field{m.dict.Global, m.dict.Unit} {
		for _, f := range group {
			h := colhash.Hash(f.Path)
			if other, ok := pathByHash[h]; ok && other != f.Path {
				return fmt.Errorf("store: column hash collision between %s and %s", other, f.Path)
			}
			pathByHash[h] = f.Path
		}
	}

	if err := m.dropTemporaryTables(ctx); err != nil {
		return err
	}
	if err := m.createTemporaryDatasetTable(ctx); err != nil {
		return err
	}
	if err := m.createTemporaryUnitTable(ctx); err != nil {
		return err
	}
	if err := m.createAndFillTranslationTable(ctx); err != nil {
		return err
	}
	return nil
}

func (m *Manager) dropTemporaryTables(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %s.%s;", m.settings.Schema, m.settings.TempUnitTable()),
		fmt.Sprintf("DROP TABLE IF EXISTS %s.%s;", m.settings.Schema, m.settings.TempDatasetTable()),
		fmt.Sprintf("DROP TABLE IF EXISTS %s.%s_translation;", m.settings.Schema, m.settings.TempDatasetTable()),
	}
	return m.execAll(ctx, statements)
}

func (m *Manager) createTemporaryDatasetTable(ctx context.Context) error {
	columns := []string{
		fmt.Sprintf("%s int primary key", m.settings.SurrogateKeyColumn),
		fmt.Sprintf("%s text not null", m.settings.DatasetIDColumn),
		fmt.Sprintf("%s text not null", m.settings.DatasetPathColumn),
		fmt.Sprintf("%s text not null", m.settings.DatasetLandingPageColumn),
		fmt.Sprintf("%s text not null", m.settings.DatasetProviderColumn),
	}
	for _, f := range m.dict.Global {
		if _, ok := m.dict.Lookup(f.Path); !ok {
			return fmt.Errorf("%w: %s", ErrInconsistentDatasetColumns, f.Path)
		}
		columns = append(columns, fieldColumnDDL(f))
	}

	stmt := fmt.Sprintf("CREATE TABLE %s.%s ( %s );",
		m.settings.Schema, m.settings.TempDatasetTable(), strings.Join(columns, ","))
	_, err := m.conn.Exec(ctx, stmt)
	if err != nil {
		return fmt.Errorf("store: create temporary dataset table: %w", err)
	}
	return nil
}

func (m *Manager) createTemporaryUnitTable(ctx context.Context) error {
	columns := []string{
		fmt.Sprintf("%s int not null", m.settings.SurrogateKeyColumn),
		"geom geometry(Point)",
	}
	for _, f := range m.dict.Unit {
		if _, ok := m.dict.Lookup(f.Path); !ok {
			return fmt.Errorf("%w: %s", ErrInconsistentUnitColumns, f.Path)
		}
		columns = append(columns, fieldColumnDDL(f))
	}

	stmt := fmt.Sprintf("CREATE TABLE %s.%s ( %s );",
		m.settings.Schema, m.settings.TempUnitTable(), strings.Join(columns, ","))
	_, err := m.conn.Exec(ctx, stmt)
	if err != nil {
		return fmt.Errorf("store: create temporary unit table: %w", err)
	}
	return nil
}

func fieldColumnDDL(f fields.Field) string {
	dataType := "text"
	if f.Numeric {
		dataType = "double precision"
	}
	return fmt.Sprintf("%q %s", colhash.Hash(f.Path), dataType)
}

func (m *Manager) createAndFillTranslationTable(ctx context.Context) error {
	createStmt := fmt.Sprintf(
		"create table %s.%s_translation (name text not null, hash text not null);",
		m.settings.Schema, m.settings.TempDatasetTable(),
	)
	if _, err := m.conn.Exec(ctx, createStmt); err != nil {
		return fmt.Errorf("store: create translation table: %w", err)
	}

	insertStmt := fmt.Sprintf(
		"insert into %s.%s_translation(name, hash) VALUES ($1, $2);",
		m.settings.Schema, m.settings.TempDatasetTable(),
	)
	all := make([]fields.Field, 0, len(m.dict.Global)+len(m.dict.Unit))
	all = append(all, m.dict.Global...)
	all = append(all, m.dict.Unit...)
	for _, f := range all {
		if _, err := m.conn.Exec(ctx, insertStmt, f.Path, colhash.Hash(f.Path)); err != nil {
			return fmt.Errorf("store: fill translation table: %w", err)
		}
	}
	return nil
}

// Migrate builds indexes, the foreign key, clustering and statistics
// on the temporary tables, then swaps them in for the published
// tables inside one SERIALIZABLE transaction, finishing by
// (re)creating the listing view.
func (m *Manager) Migrate(ctx context.Context) error {
	if err := m.createIndexesAndStatistics(ctx); err != nil {
		return err
	}

	tx, err := m.conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("store: begin migration transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := m.dropOldTables(ctx, tx); err != nil {
		return err
	}
	if err := m.renameTemporaryTables(ctx, tx); err != nil {
		return err
	}
	if err := m.renameConstraintsAndIndexes(ctx, tx); err != nil {
		return err
	}
	if err := m.createListingView(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: commit migration transaction: %w", err)
	}
	return nil
}

func (m *Manager) createIndexesAndStatistics(ctx context.Context) error {
	s := m.settings
	fkStmt := fmt.Sprintf(
		"ALTER TABLE %s.%s ADD CONSTRAINT %s_%s_fk FOREIGN KEY (%s) REFERENCES %s.%s(%s);",
		s.Schema, s.TempUnitTable(), s.TempUnitTable(), s.SurrogateKeyColumn,
		s.SurrogateKeyColumn, s.Schema, s.TempDatasetTable(), s.SurrogateKeyColumn,
	)
	if _, err := m.conn.Exec(ctx, fkStmt); err != nil {
		return fmt.Errorf("store: add foreign key: %w", err)
	}

	indexedColumns := s.SurrogateKeyColumn
	if len(s.UnitIndexedColumns) > 0 {
		hashes := make([]string, len(s.UnitIndexedColumns))
		for i, path := range s.UnitIndexedColumns {
			hashes[i] = fmt.Sprintf("%q", colhash.Hash(path))
		}
		indexedColumns += ", " + strings.Join(hashes, ", ")
	}
	unitIdxStmt := fmt.Sprintf(
		"CREATE INDEX %s_idx ON %s.%s USING btree (%s);",
		s.TempUnitTable(), s.Schema, s.TempUnitTable(), indexedColumns,
	)
	if _, err := m.conn.Exec(ctx, unitIdxStmt); err != nil {
		return fmt.Errorf("store: create unit index: %w", err)
	}

	geomIdxStmt := fmt.Sprintf(
		"CREATE INDEX %s_geom_idx ON %s.%s USING SPGIST (geom);",
		s.TempUnitTable(), s.Schema, s.TempUnitTable(),
	)
	if _, err := m.conn.Exec(ctx, geomIdxStmt); err != nil {
		return fmt.Errorf("store: create geom index: %w", err)
	}

	clusterStmt := fmt.Sprintf("CLUSTER %s_idx ON %s.%s;", s.TempUnitTable(), s.Schema, s.TempUnitTable())
	if _, err := m.conn.Exec(ctx, clusterStmt); err != nil {
		return fmt.Errorf("store: cluster unit table: %w", err)
	}

	if _, err := m.conn.Exec(ctx, fmt.Sprintf("VACUUM ANALYZE %s.%s;", s.Schema, s.TempDatasetTable())); err != nil {
		return fmt.Errorf("store: vacuum dataset table: %w", err)
	}
	if _, err := m.conn.Exec(ctx, fmt.Sprintf("VACUUM ANALYZE %s.%s;", s.Schema, s.TempUnitTable())); err != nil {
		return fmt.Errorf("store: vacuum unit table: %w", err)
	}
	return nil
}

func (m *Manager) dropOldTables(ctx context.Context, tx pgx.Tx) error {
	s := m.settings
	statements := []string{
		fmt.Sprintf("DROP VIEW IF EXISTS %s.%s;", s.Schema, s.ListingView),
		fmt.Sprintf("DROP TABLE IF EXISTS %s.%s;", s.Schema, s.UnitTable),
		fmt.Sprintf("DROP TABLE IF EXISTS %s.%s;", s.Schema, s.DatasetTable),
		fmt.Sprintf("DROP TABLE IF EXISTS %s.%s_translation;", s.Schema, s.DatasetTable),
	}
	return m.execAllTx(ctx, tx, statements)
}

func (m *Manager) renameTemporaryTables(ctx context.Context, tx pgx.Tx) error {
	s := m.settings
	statements := []string{
		fmt.Sprintf("ALTER TABLE %s.%s RENAME TO %s;", s.Schema, s.TempUnitTable(), s.UnitTable),
		fmt.Sprintf("ALTER TABLE %s.%s RENAME TO %s;", s.Schema, s.TempDatasetTable(), s.DatasetTable),
		fmt.Sprintf("ALTER TABLE %s.%s_translation RENAME TO %s_translation;", s.Schema, s.TempDatasetTable(), s.DatasetTable),
	}
	return m.execAllTx(ctx, tx, statements)
}

func (m *Manager) renameConstraintsAndIndexes(ctx context.Context, tx pgx.Tx) error {
	s := m.settings
	statements := []string{
		fmt.Sprintf("ALTER TABLE %s.%s RENAME CONSTRAINT %s_pkey TO %s_pkey;",
			s.Schema, s.DatasetTable, s.TempDatasetTable(), s.DatasetTable),
		fmt.Sprintf("ALTER TABLE %s.%s RENAME CONSTRAINT %s_%s_fk TO %s_%s_fk;",
			s.Schema, s.UnitTable, s.TempUnitTable(), s.SurrogateKeyColumn, s.UnitTable, s.SurrogateKeyColumn),
		fmt.Sprintf("ALTER INDEX %s.%s_idx RENAME TO %s_idx;", s.Schema, s.TempUnitTable(), s.UnitTable),
		fmt.Sprintf("ALTER INDEX %s.%s_geom_idx RENAME TO %s_geom_idx;", s.Schema, s.TempUnitTable(), s.UnitTable),
	}
	return m.execAllTx(ctx, tx, statements)
}

func (m *Manager) createListingView(ctx context.Context, tx pgx.Tx) error {
	s := m.settings

	datasetTitle := `''`
	if f, ok := m.dict.Lookup("/DataSets/DataSet/Metadata/Description/Representation/Title"); ok {
		datasetTitle = fmt.Sprintf("%q", colhash.Hash(f.Path))
	}

	latitudeColumn := "NULL"
	if f, ok := m.dict.Lookup("/DataSets/DataSet/Units/Unit/Gathering/SiteCoordinateSets/SiteCoordinates/CoordinatesLatLong/LatitudeDecimal"); ok {
		latitudeColumn = fmt.Sprintf("%q", colhash.Hash(f.Path))
	}
	longitudeColumn := "NULL"
	if f, ok := m.dict.Lookup("/DataSets/DataSet/Units/Unit/Gathering/SiteCoordinateSets/SiteCoordinates/CoordinatesLatLong/LongitudeDecimal"); ok {
		longitudeColumn = fmt.Sprintf("%q", colhash.Hash(f.Path))
	}

	stmt := fmt.Sprintf(`
		CREATE VIEW %[1]s.%[2]s AS (
		select link, dataset, id, provider, isGeoReferenced as available, isGeoReferenced
		from (
			select %[3]s as link,
			       %[4]s as dataset,
			       %[5]s as id,
			       %[6]s as provider,
			       (SELECT EXISTS(
			           select * from %[1]s.%[7]s
			           where %[8]s.%[9]s = %[7]s.%[9]s
			             and %[10]s is not null
			             and %[11]s is not null
			        )) as isGeoReferenced
			from %[1]s.%[8]s
		) sub);`,
		s.Schema, s.ListingView,
		s.DatasetLandingPageColumn, datasetTitle, s.DatasetIDColumn, s.DatasetProviderColumn,
		s.UnitTable, s.DatasetTable, s.SurrogateKeyColumn,
		latitudeColumn, longitudeColumn,
	)

	if _, err := tx.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("store: create listing view: %w", err)
	}
	return nil
}

func (m *Manager) execAll(ctx context.Context, statements []string) error {
	for _, stmt := range statements {
		if _, err := m.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("store: exec %q: %w", stmt, err)
		}
	}
	return nil
}

func (m *Manager) execAllTx(ctx context.Context, tx pgx.Tx, statements []string) error {
	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("store: exec %q: %w", stmt, err)
		}
	}
	return nil
}

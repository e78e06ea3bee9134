package store

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gfbio/abcdcrawler/internal/fields"
	"github.com/gfbio/abcdcrawler/internal/geobitmap"
	"github.com/gfbio/abcdcrawler/internal/surrogate"
	"github.com/gfbio/abcdcrawler/internal/value"
)

// Tests that call testConn exercise the schema manager and loader
// against a real PostgreSQL+PostGIS instance. They are skipped unless
// ABCDCRAWLER_TEST_DATABASE_URL is set, since there is no embeddable
// PostgreSQL for unit tests to start in-process.
func testConn(t *testing.T) *pgx.Conn {
	t.Helper()
	dsn := os.Getenv("ABCDCRAWLER_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("ABCDCRAWLER_TEST_DATABASE_URL not set, skipping store integration test")
	}
	conn, err := pgx.Connect(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(context.Background()) })
	return conn
}

const testDictionaryJSON = `[
	{
		"name": "/DataSets/DataSet/Metadata/Description/Representation/Title",
		"numeric": false,
		"globalField": true
	},
	{
		"name": "/DataSets/DataSet/Units/Unit/UnitID",
		"numeric": false,
		"globalField": false
	},
	{
		"name": "/DataSets/DataSet/Units/Unit/Gathering/SiteCoordinateSets/SiteCoordinates/CoordinatesLatLong/LongitudeDecimal",
		"numeric": true,
		"globalField": false
	},
	{
		"name": "/DataSets/DataSet/Units/Unit/Gathering/SiteCoordinateSets/SiteCoordinates/CoordinatesLatLong/LatitudeDecimal",
		"numeric": true,
		"globalField": false
	}
]`

func testSettings() Settings {
	return Settings{
		Schema:                   "public",
		DatasetTable:             "abcdcrawler_test_dataset",
		UnitTable:                "abcdcrawler_test_unit",
		ListingView:              "abcdcrawler_test_listing_view",
		SurrogateKeyColumn:       "surrogate_key",
		DatasetIDColumn:          "dataset_id",
		DatasetPathColumn:        "dataset_path",
		DatasetLandingPageColumn: "dataset_landing_page",
		DatasetProviderColumn:    "dataset_provider",
	}
}

func TestCreateTemporaryDatasetTableRejectsInconsistentDictionary(t *testing.T) {
	dict, err := fields.Load(strings.NewReader(testDictionaryJSON))
	require.NoError(t, err)
	// Simulate the dictionary's partitioned slice and its lookup index
	// falling out of sync, which is exactly the situation the original
	// crawler's InconsistentDatasetColumns error kind guards against.
	dict.Global = append(dict.Global, fields.Field{Path: "/not/in/index", GlobalField: true})

	mgr := NewManager(nil, testSettings(), dict)
	err = mgr.createTemporaryDatasetTable(context.Background())
	require.ErrorIs(t, err, ErrInconsistentDatasetColumns)
}

func TestCreateTemporaryUnitTableRejectsInconsistentDictionary(t *testing.T) {
	dict, err := fields.Load(strings.NewReader(testDictionaryJSON))
	require.NoError(t, err)
	dict.Unit = append(dict.Unit, fields.Field{Path: "/not/in/index"})

	mgr := NewManager(nil, testSettings(), dict)
	err = mgr.createTemporaryUnitTable(context.Background())
	require.ErrorIs(t, err, ErrInconsistentUnitColumns)
}

func TestSchemaCreationAndMigration(t *testing.T) {
	conn := testConn(t)
	ctx := context.Background()

	dict, err := fields.Load(strings.NewReader(testDictionaryJSON))
	require.NoError(t, err)

	settings := testSettings()
	mgr := NewManager(conn, settings, dict)
	require.NoError(t, mgr.InitTemporarySchema(ctx))

	registry := surrogate.NewRegistry()
	geo := geobitmap.New()
	loader := NewLoader(conn, settings, dict, registry, geo)

	lon, _ := value.Numeric("10.911")
	lat, _ := value.Numeric("49.911")

	key, existing, err := loader.InsertDataset(ctx, DatasetRecord{
		DatasetID:    "dataset_id",
		DatasetPath:  "dataset_path",
		LandingPage:  "http://LANDING-PAGE/",
		ProviderName: "provider_id",
		Dataset: value.Map{
			"/DataSets/DataSet/Metadata/Description/Representation/Title": value.Text("DESCRIPTION TITLE"),
		},
		Units: []value.Map{
			{
				"/DataSets/DataSet/Units/Unit/UnitID": value.Text("UNIT ID"),
				"/DataSets/DataSet/Units/Unit/Gathering/SiteCoordinateSets/SiteCoordinates/CoordinatesLatLong/LongitudeDecimal": lon,
				"/DataSets/DataSet/Units/Unit/Gathering/SiteCoordinateSets/SiteCoordinates/CoordinatesLatLong/LatitudeDecimal":  lat,
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, key)
	assert.False(t, existing)
	assert.True(t, geo.Contains(key))

	// Re-inserting the same external id must reuse the surrogate key
	// and must not duplicate the dataset row.
	key2, existing2, err := loader.InsertDataset(ctx, DatasetRecord{
		DatasetID:    "dataset_id",
		DatasetPath:  "dataset_path",
		LandingPage:  "http://LANDING-PAGE/",
		ProviderName: "provider_id",
		Units: []value.Map{
			{"/DataSets/DataSet/Units/Unit/UnitID": value.Text("UNIT ID 2")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, key, key2)
	assert.True(t, existing2)

	require.NoError(t, mgr.Migrate(ctx))
}

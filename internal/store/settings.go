package store

// Settings names every published and temporary table/column the
// schema manager and bulk loader operate on. Field names mirror the
// database settings of the crawler this package's predecessor was
// modeled on, so that an operator migrating a config file does not
// have to relearn the shape.
type Settings struct {
	Schema string

	DatasetTable string
	UnitTable    string
	ListingView  string

	SurrogateKeyColumn       string
	DatasetIDColumn          string
	DatasetPathColumn        string
	DatasetLandingPageColumn string
	DatasetProviderColumn    string
	UnitIndexedColumns       []string
}

// TempDatasetTable is the scratch table a fresh load is built in,
// derived rather than configured so it can never collide with the
// published name.
func (s Settings) TempDatasetTable() string { return "tmp_" + s.DatasetTable }

// TempUnitTable is the unit-table counterpart of TempDatasetTable.
func (s Settings) TempUnitTable() string { return "tmp_" + s.UnitTable }

package localstore

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dreamware/crashmesh/internal/meshdata"
)

// seedRecord is the YAML shape of one demo fixture row; field names
// match CrashRecord loosely rather than positionally, since the demo
// seed is hand-authored rather than exported from the dataset.
type seedRecord struct {
	Date        string `yaml:"date"`
	Time        string `yaml:"time"`
	Borough     string `yaml:"borough"`
	Zip         string `yaml:"zip"`
	Lat         string `yaml:"lat"`
	Lon         string `yaml:"lon"`
	Location    string `yaml:"location"`
	OnStreet    string `yaml:"on_street"`
	CrossStreet string `yaml:"cross_street"`
	OffStreet   string `yaml:"off_street"`
	Injured     int    `yaml:"injured"`
	Killed      int    `yaml:"killed"`
	Pedestrians int    `yaml:"pedestrians"`
}

// SeedDemo loads a small hand-authored YAML fixture in place of a real
// CSV extract, for local development and tests where shipping the
// full dataset would be overkill. Rows are stored under
// the same "crash_<i>" key scheme LoadCSV uses, so query behavior is
// identical regardless of which ingestion path populated the store.
func (s *LocalStore) SeedDemo(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("localstore: read seed %s: %w", path, err)
	}

	var rows []seedRecord
	if err := yaml.Unmarshal(raw, &rows); err != nil {
		return 0, fmt.Errorf("localstore: parse seed %s: %w", path, err)
	}

	for i, row := range rows {
		s.Store(meshdata.DataEntry{
			Key: fmt.Sprintf("crash_%d", i),
			Value: meshdata.NewCrashValue(meshdata.CrashRecord{
				Date:        row.Date,
				Time:        row.Time,
				Borough:     row.Borough,
				Zip:         row.Zip,
				Lat:         row.Lat,
				Lon:         row.Lon,
				Location:    row.Location,
				OnStreet:    row.OnStreet,
				CrossStreet: row.CrossStreet,
				OffStreet:   row.OffStreet,
				Injured:     row.Injured,
				Killed:      row.Killed,
				Pedestrians: row.Pedestrians,
			}),
		})
	}

	return len(rows), nil
}

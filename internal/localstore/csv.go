package localstore

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/dreamware/crashmesh/internal/meshdata"
)

// crashColumns is the fixed 13-column layout a crash CSV row maps to
// positionally, per spec.md §4.2.
const crashColumns = 13

// LoadCSV parses a CSV file whose first row is a header and stores
// each subsequent row as a CrashRecord under the synthetic key
// "crash_<i>", i counting from 0 within this call. It returns the
// number of rows stored. Integer columns tolerate empty strings
// (stdlib encoding/csv is used here rather than a third-party parser:
// see DESIGN.md for why no pack dependency fit this narrowly-scoped,
// header-plus-fixed-columns format better than the standard library).
func (s *LocalStore) LoadCSV(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("localstore: open csv %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // tolerate ragged rows; missing columns default to zero value

	if _, err := r.Read(); err != nil { // header row, discarded
		return 0, fmt.Errorf("localstore: read csv header: %w", err)
	}

	count := 0
	for i := 0; ; i++ {
		row, err := r.Read()
		if err != nil {
			break // EOF or malformed trailing row: stop, keep what we have
		}
		record := rowToCrashRecord(row)
		s.Store(meshdata.DataEntry{
			Key:   fmt.Sprintf("crash_%d", i),
			Value: meshdata.NewCrashValue(record),
		})
		count++
	}

	return count, nil
}

func col(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func colInt(row []string, i int) int {
	v := col(row, i)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func rowToCrashRecord(row []string) meshdata.CrashRecord {
	return meshdata.CrashRecord{
		Date:        col(row, 0),
		Time:        col(row, 1),
		Borough:     col(row, 2),
		Zip:         col(row, 3),
		Lat:         col(row, 4),
		Lon:         col(row, 5),
		Location:    col(row, 6),
		OnStreet:    col(row, 7),
		CrossStreet: col(row, 8),
		OffStreet:   col(row, 9),
		Injured:     colInt(row, 10),
		Killed:      colInt(row, 11),
		Pedestrians: colInt(row, 12),
	}
}

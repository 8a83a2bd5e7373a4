package localstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dreamware/crashmesh/internal/meshdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func crash(borough, onStreet, crossStreet, offStreet, date string, injured, killed int) meshdata.DataValue {
	return meshdata.NewCrashValue(meshdata.CrashRecord{
		Borough: borough, OnStreet: onStreet, CrossStreet: crossStreet, OffStreet: offStreet,
		Date: date, Injured: injured, Killed: killed,
	})
}

func TestEvaluate_GetAllAndGetByKey(t *testing.T) {
	s := New()
	s.Store(meshdata.DataEntry{Key: "a", Value: meshdata.NewStringValue("1")})
	s.Store(meshdata.DataEntry{Key: "b", Value: meshdata.NewStringValue("2")})

	res := s.Evaluate(meshdata.Query{ID: "q1", Verb: "get_all"})
	assert.True(t, res.Success)
	assert.Len(t, res.Entries, 2)

	res = s.Evaluate(meshdata.Query{ID: "q2", Verb: "get_by_key", Params: []string{"b", "missing", "a"}})
	require.True(t, res.Success)
	require.Len(t, res.Entries, 2)
	assert.Equal(t, "b", res.Entries[0].Key)
	assert.Equal(t, "a", res.Entries[1].Key)
}

func TestEvaluate_GetByPrefix(t *testing.T) {
	s := New()
	s.Store(meshdata.DataEntry{Key: "crash_0", Value: meshdata.NewStringValue("x")})
	s.Store(meshdata.DataEntry{Key: "other_0", Value: meshdata.NewStringValue("y")})

	res := s.Evaluate(meshdata.Query{ID: "q", Verb: "get_by_prefix", Params: []string{"crash_"}})
	require.True(t, res.Success)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, "crash_0", res.Entries[0].Key)
}

func TestEvaluate_GetByBoroughCaseInsensitive(t *testing.T) {
	s := New()
	s.Store(meshdata.DataEntry{Key: "k1", Value: crash("Bronx", "", "", "", "", 0, 0)})
	s.Store(meshdata.DataEntry{Key: "k2", Value: crash("QUEENS", "", "", "", "", 0, 0)})

	res := s.Evaluate(meshdata.Query{ID: "q", Verb: "get_by_borough", Params: []string{"bronx"}})
	require.True(t, res.Success)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, "k1", res.Entries[0].Key)
}

func TestEvaluate_GetByStreetSubstring(t *testing.T) {
	s := New()
	s.Store(meshdata.DataEntry{Key: "k1", Value: crash("", "Main St", "", "", "", 0, 0)})
	s.Store(meshdata.DataEntry{Key: "k2", Value: crash("", "", "Broadway", "", "", 0, 0)})

	res := s.Evaluate(meshdata.Query{ID: "q", Verb: "get_by_street", Params: []string{"broad"}})
	require.True(t, res.Success)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, "k2", res.Entries[0].Key)
}

func TestEvaluate_GetByDateRange(t *testing.T) {
	s := New()
	s.Store(meshdata.DataEntry{Key: "k1", Value: crash("", "", "", "", "01/15/2021", 0, 0)})
	s.Store(meshdata.DataEntry{Key: "k2", Value: crash("", "", "", "", "06/01/2021", 0, 0)})

	res := s.Evaluate(meshdata.Query{ID: "q", Verb: "get_by_date_range", Params: []string{"01/01/2021", "02/01/2021"}})
	require.True(t, res.Success)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, "k1", res.Entries[0].Key)
}

func TestEvaluate_GetByDateRangeMalformed(t *testing.T) {
	s := New()
	res := s.Evaluate(meshdata.Query{ID: "q", Verb: "get_by_date_range", Params: []string{"13/40/2021", "12/31/2021"}})
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "invalid date")
}

func TestEvaluate_InjuriesAndFatalitiesDefaultThreshold(t *testing.T) {
	s := New()
	s.Store(meshdata.DataEntry{Key: "k1", Value: crash("", "", "", "", "", 1, 0)})
	s.Store(meshdata.DataEntry{Key: "k2", Value: crash("", "", "", "", "", 0, 2)})
	s.Store(meshdata.DataEntry{Key: "k3", Value: crash("", "", "", "", "", 0, 0)})

	res := s.Evaluate(meshdata.Query{ID: "q", Verb: "get_crashes_with_injuries"})
	require.True(t, res.Success)
	assert.Len(t, res.Entries, 1)

	res = s.Evaluate(meshdata.Query{ID: "q", Verb: "get_crashes_with_fatalities", Params: []string{"2"}})
	require.True(t, res.Success)
	assert.Len(t, res.Entries, 1)
}

func TestEvaluate_UnknownVerb(t *testing.T) {
	s := New()
	res := s.Evaluate(meshdata.Query{ID: "q", Verb: "get_by_moon_phase", Params: []string{"full"}})
	assert.False(t, res.Success)
	assert.Equal(t, "Unknown query: get_by_moon_phase", res.Message)
}

func TestEvaluate_Idempotent(t *testing.T) {
	s := New()
	s.Store(meshdata.DataEntry{Key: "k1", Value: crash("BRONX", "", "", "", "", 0, 0)})

	first := s.Evaluate(meshdata.Query{ID: "q1", Verb: "get_all"})
	second := s.Evaluate(meshdata.Query{ID: "q2", Verb: "get_all"})
	assert.ElementsMatch(t, first.Entries, second.Entries)
}

func TestLoadCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crashes.csv")
	content := "date,time,borough,zip,lat,lon,location,on_street,cross_street,off_street,injured,killed,pedestrians\n" +
		"01/01/2021,08:00,BROOKLYN,11201,40.6,-73.9,,MAIN ST,,,2,0,1\n" +
		"02/02/2021,09:00,QUEENS,11368,,,,,,,,,\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s := New()
	count, err := s.LoadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	entry, err := s.Get("crash_0")
	require.NoError(t, err)
	assert.Equal(t, "BROOKLYN", entry.Value.Record.Borough)
	assert.Equal(t, 2, entry.Value.Record.Injured)

	entry, err = s.Get("crash_1")
	require.NoError(t, err)
	assert.Equal(t, 0, entry.Value.Record.Injured, "empty integer columns default to zero")
}

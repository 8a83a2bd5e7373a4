package localstore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dreamware/crashmesh/internal/meshdata"
)

type verbFunc func(q meshdata.Query, all []meshdata.DataEntry) meshdata.QueryResult

// verbTable is the closed set of query verbs from spec.md §4.2. An
// entry missing from this table is, by definition, an unknown verb.
var verbTable = map[string]verbFunc{
	"get_all":                      evalGetAll,
	"get_by_key":                   evalGetByKey,
	"get_by_prefix":                evalGetByPrefix,
	"get_by_borough":               evalGetByBorough,
	"get_by_street":                evalGetByStreet,
	"get_by_date_range":            evalGetByDateRange,
	"get_crashes_with_injuries":    evalGetByInjuries,
	"get_crashes_with_fatalities":  evalGetByFatalities,
	"get_by_time":                  evalGetByTime,
}

func success(q meshdata.Query, entries []meshdata.DataEntry) meshdata.QueryResult {
	return meshdata.QueryResult{QueryID: q.ID, Success: true, Entries: entries}
}

func evalGetAll(q meshdata.Query, all []meshdata.DataEntry) meshdata.QueryResult {
	return success(q, all)
}

func evalGetByKey(q meshdata.Query, all []meshdata.DataEntry) meshdata.QueryResult {
	byKey := make(map[string]meshdata.DataEntry, len(all))
	for _, e := range all {
		byKey[e.Key] = e
	}

	entries := make([]meshdata.DataEntry, 0, len(q.Params))
	for _, k := range q.Params {
		if e, ok := byKey[k]; ok {
			entries = append(entries, e)
		}
	}
	return success(q, entries)
}

func evalGetByPrefix(q meshdata.Query, all []meshdata.DataEntry) meshdata.QueryResult {
	if len(q.Params) == 0 {
		return success(q, nil)
	}
	prefix := q.Params[0]

	var entries []meshdata.DataEntry
	for _, e := range all {
		if strings.HasPrefix(e.Key, prefix) {
			entries = append(entries, e)
		}
	}
	return success(q, entries)
}

func evalGetByBorough(q meshdata.Query, all []meshdata.DataEntry) meshdata.QueryResult {
	if len(q.Params) == 0 {
		return success(q, nil)
	}
	want := strings.ToUpper(strings.TrimSpace(q.Params[0]))

	var entries []meshdata.DataEntry
	for _, e := range all {
		if e.Value.Kind != meshdata.KindCrashRecord {
			continue
		}
		if strings.ToUpper(strings.TrimSpace(e.Value.Record.Borough)) == want {
			entries = append(entries, e)
		}
	}
	return success(q, entries)
}

func evalGetByStreet(q meshdata.Query, all []meshdata.DataEntry) meshdata.QueryResult {
	if len(q.Params) == 0 {
		return success(q, nil)
	}
	want := strings.ToUpper(q.Params[0])

	var entries []meshdata.DataEntry
	for _, e := range all {
		if e.Value.Kind != meshdata.KindCrashRecord {
			continue
		}
		r := e.Value.Record
		if strings.Contains(strings.ToUpper(r.OnStreet), want) ||
			strings.Contains(strings.ToUpper(r.CrossStreet), want) ||
			strings.Contains(strings.ToUpper(r.OffStreet), want) {
			entries = append(entries, e)
		}
	}
	return success(q, entries)
}

// dateKey converts MM/DD/YYYY to YYYY*10000+MM*100+DD for comparison,
// per spec.md §4.2.
func dateKey(date string) (int, error) {
	parts := strings.Split(date, "/")
	if len(parts) != 3 {
		return 0, fmt.Errorf("expected MM/DD/YYYY, got %q", date)
	}
	mm, err := strconv.Atoi(parts[0])
	if err != nil || mm < 1 || mm > 12 {
		return 0, fmt.Errorf("invalid month in %q", date)
	}
	dd, err := strconv.Atoi(parts[1])
	if err != nil || dd < 1 || dd > 31 {
		return 0, fmt.Errorf("invalid day in %q", date)
	}
	yyyy, err := strconv.Atoi(parts[2])
	if err != nil || yyyy < 1 {
		return 0, fmt.Errorf("invalid year in %q", date)
	}
	return yyyy*10000 + mm*100 + dd, nil
}

func evalGetByDateRange(q meshdata.Query, all []meshdata.DataEntry) meshdata.QueryResult {
	if len(q.Params) < 2 {
		return meshdata.Failure(q.ID, "get_by_date_range requires two dates")
	}

	lo, err := dateKey(q.Params[0])
	if err != nil {
		return meshdata.Failure(q.ID, fmt.Sprintf("invalid date: %v", err))
	}
	hi, err := dateKey(q.Params[1])
	if err != nil {
		return meshdata.Failure(q.ID, fmt.Sprintf("invalid date: %v", err))
	}

	var entries []meshdata.DataEntry
	for _, e := range all {
		if e.Value.Kind != meshdata.KindCrashRecord {
			continue
		}
		k, err := dateKey(e.Value.Record.Date)
		if err != nil {
			continue // malformed stored dates are skipped, not fatal
		}
		if k >= lo && k <= hi {
			entries = append(entries, e)
		}
	}
	return success(q, entries)
}

func paramOrDefault(params []string, idx, def int) int {
	if len(params) <= idx {
		return def
	}
	n, err := strconv.Atoi(params[idx])
	if err != nil {
		return def
	}
	return n
}

func evalGetByInjuries(q meshdata.Query, all []meshdata.DataEntry) meshdata.QueryResult {
	threshold := paramOrDefault(q.Params, 0, 1)

	var entries []meshdata.DataEntry
	for _, e := range all {
		if e.Value.Kind == meshdata.KindCrashRecord && e.Value.Record.Injured >= threshold {
			entries = append(entries, e)
		}
	}
	return success(q, entries)
}

func evalGetByFatalities(q meshdata.Query, all []meshdata.DataEntry) meshdata.QueryResult {
	threshold := paramOrDefault(q.Params, 0, 1)

	var entries []meshdata.DataEntry
	for _, e := range all {
		if e.Value.Kind == meshdata.KindCrashRecord && e.Value.Record.Killed >= threshold {
			entries = append(entries, e)
		}
	}
	return success(q, entries)
}

// evalGetByTime is reserved: spec.md §4.2/§9 declares it forwardable
// but with no local evaluator implementation, so it answers empty
// success unconditionally until a local policy is specified.
func evalGetByTime(q meshdata.Query, _ []meshdata.DataEntry) meshdata.QueryResult {
	return success(q, nil)
}

package resultcache

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dreamware/crashmesh/internal/meshdata"
)

// SerializeEntries renders entries using the plain per-line cache
// format from spec.md §6: "<key>,<type>,<value>\n" per entry. This is
// the format intermediate (non-portal) nodes store under a cache key;
// success/message are not part of it because CacheLookup always
// rewrites them to "From cache"/true on a hit (spec.md §4.5).
func SerializeEntries(entries []meshdata.DataEntry) []byte {
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s,%s,%s\n", e.Key, e.Value.CacheTypeTag(), e.Value.CacheValueString(e.Key))
	}
	return []byte(b.String())
}

// DeserializeEntries parses the plain per-line format back into
// entries. CrashRecord-typed values were replaced by a placeholder at
// serialization time and come back as opaque strings, per spec.md §6
// ("clients must not rely on recovering the record from cache").
func DeserializeEntries(payload []byte) []meshdata.DataEntry {
	lines := strings.Split(strings.TrimRight(string(payload), "\n"), "\n")
	entries := make([]meshdata.DataEntry, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ",", 3)
		if len(parts) != 3 {
			continue
		}
		key, typ, val := parts[0], parts[1], parts[2]
		entries = append(entries, meshdata.DataEntry{Key: key, Value: decodeTyped(typ, val)})
	}
	return entries
}

// SerializePortal renders a full QueryResult using the portal's
// header-prefixed encoding from spec.md §6:
// "<success>,<message>,<count>[,<key>,<type>,<value>]*".
func SerializePortal(result meshdata.QueryResult) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "%t,%s,%d", result.Success, result.Message, len(result.Entries))
	for _, e := range result.Entries {
		fmt.Fprintf(&b, ",%s,%s,%s", e.Key, e.Value.CacheTypeTag(), e.Value.CacheValueString(e.Key))
	}
	return []byte(b.String())
}

// DeserializePortal parses the portal's header-prefixed format back
// into a QueryResult (QueryID and TimingBlob are not part of the
// encoding and are left zero; CacheLookup fills them in).
func DeserializePortal(payload []byte) (meshdata.QueryResult, error) {
	fields := strings.Split(string(payload), ",")
	if len(fields) < 3 {
		return meshdata.QueryResult{}, fmt.Errorf("resultcache: malformed portal payload")
	}

	success, err := strconv.ParseBool(fields[0])
	if err != nil {
		return meshdata.QueryResult{}, fmt.Errorf("resultcache: malformed success field: %w", err)
	}
	message := fields[1]
	count, err := strconv.Atoi(fields[2])
	if err != nil {
		return meshdata.QueryResult{}, fmt.Errorf("resultcache: malformed count field: %w", err)
	}

	rest := fields[3:]
	if len(rest) != count*3 {
		return meshdata.QueryResult{}, fmt.Errorf("resultcache: entry count mismatch: header says %d, found %d triples", count, len(rest)/3)
	}

	entries := make([]meshdata.DataEntry, 0, count)
	for i := 0; i < count; i++ {
		key, typ, val := rest[i*3], rest[i*3+1], rest[i*3+2]
		entries = append(entries, meshdata.DataEntry{Key: key, Value: decodeTyped(typ, val)})
	}

	return meshdata.QueryResult{Success: success, Message: message, Entries: entries}, nil
}

func decodeTyped(typ, val string) meshdata.DataValue {
	switch typ {
	case "int":
		n, _ := strconv.ParseInt(val, 10, 32)
		return meshdata.NewIntValue(int32(n))
	case "double":
		f, _ := strconv.ParseFloat(val, 64)
		return meshdata.NewFloatValue(f)
	case "bool":
		bv, _ := strconv.ParseBool(val)
		return meshdata.NewBoolValue(bv)
	default:
		return meshdata.NewStringValue(val)
	}
}

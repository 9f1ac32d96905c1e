package deltacheckpoint

import (
	"time"

	"github.com/dgryski/go-metro"
	"github.com/parquet-go/parquet-go"

	"github.com/polarsignals/deltacheckpoint/internal/fieldreader"
)

// StartOfModernEraEpochDay is the default modern-era cutoff: timestamp
// min/max statistics whose epoch-day lies before this are untrusted and
// silently omitted.
//
// 1900-01-01 is 25,567 days before the Unix epoch.
const StartOfModernEraEpochDay int64 = -25567

const microsPerMilli = 1000
const millisPerDay = 24 * 60 * 60 * 1000

// StatsOptions configures the statistics decoder.
type StatsOptions struct {
	// CutoffEpochDay is the modern-era cutoff. Zero means
	// StartOfModernEraEpochDay.
	CutoffEpochDay int64
	// RowStatsWriteThrough, when true, copies nested row-typed columns'
	// min/max values verbatim instead of skipping them.
	RowStatsWriteThrough bool
}

func (o StatsOptions) cutoff() int64 {
	if o.CutoffEpochDay != 0 {
		return o.CutoffEpochDay
	}
	return StartOfModernEraEpochDay
}

// floorDiv performs floor division, unlike Go's truncating / for
// negative operands (needed since epoch millis before 1970 are
// negative).
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// decodeTimestampMicros converts microseconds-since-epoch to
// milliseconds, rejecting any sub-millisecond remainder, and reports
// whether the value's epoch day clears the modern-era cutoff.
func decodeTimestampMicros(micros int64, cutoffEpochDay int64) (millis int64, trusted bool, err error) {
	if micros%microsPerMilli != 0 {
		return 0, false, &TypeMismatchError{Field: "timestamp stat", Err: errRemainder}
	}
	millis = micros / microsPerMilli
	epochDay := floorDiv(millis, millisPerDay)
	if epochDay < cutoffEpochDay {
		return millis, false, nil
	}
	return millis, true, nil
}

var errRemainder = subMillisRemainderError{}

type subMillisRemainderError struct{}

func (subMillisRemainderError) Error() string {
	return "timestamp value is not a whole millisecond"
}

// statsHash returns a fast, non-cryptographic hash of the raw stats
// JSON fallback string, used to skip re-decoding parsed stats for
// consecutive add rows sharing a byte-identical stats blob (common
// immediately after a compaction rewrite).
func statsHash(raw string) uint64 {
	return metro.Hash64([]byte(raw), 0)
}

// DecodeParsedStats decodes the stats_parsed sub-row of an add action.
// columns describes the table's logical columns; filter selects which
// columns min/max values are decoded for (null count is always decoded
// for every column).
func DecodeParsedStats(row *fieldreader.Row, columns map[string]ColumnSchema, filter ColumnFilter, opts StatsOptions) (*ParsedStats, error) {
	numRecords, err := row.GetLong("numRecords")
	if err != nil {
		return nil, err
	}

	out := &ParsedStats{NumRecords: numRecords}

	anySelected := false
	for name := range columns {
		if filter == nil || filter(name) {
			anySelected = true
			break
		}
	}

	if anySelected {
		minRow, err := row.GetRow("minValues")
		if err != nil {
			return nil, err
		}
		maxRow, err := row.GetRow("maxValues")
		if err != nil {
			return nil, err
		}
		if minRow != nil {
			out.MinValues, err = decodeStatsGroup(minRow, columns, filter, opts)
			if err != nil {
				return nil, err
			}
		}
		if maxRow != nil {
			out.MaxValues, err = decodeStatsGroup(maxRow, columns, filter, opts)
			if err != nil {
				return nil, err
			}
		}
	}

	nullRow, err := row.GetRow("nullCount")
	if err != nil {
		return nil, err
	}
	if nullRow != nil {
		out.NullCount, err = decodeNullCountGroup(nullRow, columns)
		if err != nil {
			return nil, err
		}
	}

	return out, nil
}

func decodeStatsGroup(sub *fieldreader.Row, columns map[string]ColumnSchema, filter ColumnFilter, opts StatsOptions) (map[string]StatAny, error) {
	out := map[string]StatAny{}
	for name, col := range columns {
		if filter != nil && !filter(name) {
			continue
		}
		val, ok, err := decodeStatValue(sub, name, col, opts)
		if err != nil {
			return nil, err
		}
		if ok {
			out[name] = val
		}
	}
	return out, nil
}

func decodeStatValue(sub *fieldreader.Row, name string, col ColumnSchema, opts StatsOptions) (StatAny, bool, error) {
	switch col.Kind {
	case ColumnRow:
		if !opts.RowStatsWriteThrough {
			return StatAny{}, false, nil
		}
		_, vals, err := sub.Field(name)
		if err != nil {
			return StatAny{}, false, err
		}
		if len(vals) == 0 {
			return StatAny{}, false, nil
		}
		return StatAny{Raw: vals}, true, nil

	case ColumnTimestampTZ:
		micros, err := sub.GetOptionalLong(name)
		if err != nil {
			return StatAny{}, false, err
		}
		if micros == nil {
			return StatAny{}, false, nil
		}
		millis, trusted, err := decodeTimestampMicros(*micros, opts.cutoff())
		if err != nil {
			return StatAny{}, false, err
		}
		if !trusted {
			return StatAny{}, false, nil
		}
		t := time.UnixMilli(millis).UTC()
		return StatAny{Time: &t}, true, nil

	default:
		_, vals, err := sub.Field(name)
		if err != nil {
			return StatAny{}, false, err
		}
		if len(vals) == 0 || vals[0].IsNull() {
			return StatAny{}, false, nil
		}
		return StatAny{Value: vals[0]}, true, nil
	}
}

func decodeNullCountGroup(sub *fieldreader.Row, columns map[string]ColumnSchema) (map[string]StatAny, error) {
	out := map[string]StatAny{}
	for name, col := range columns {
		val, ok, err := decodeNullCount(sub, name, col)
		if err != nil {
			return nil, err
		}
		if ok {
			out[name] = val
		}
	}
	return out, nil
}

func decodeNullCount(sub *fieldreader.Row, name string, col ColumnSchema) (StatAny, bool, error) {
	if col.Kind == ColumnRow {
		child, err := sub.GetRow(name)
		if err != nil {
			return StatAny{}, false, err
		}
		if child == nil {
			return StatAny{}, false, nil
		}
		nested, err := decodeNullCountGroup(child, col.Children)
		if err != nil {
			return StatAny{}, false, err
		}
		return StatAny{Nested: nested}, true, nil
	}

	count, err := sub.GetOptionalLong(name)
	if err != nil {
		return StatAny{}, false, err
	}
	if count == nil {
		return StatAny{}, false, nil
	}
	return StatAny{Value: parquet.ValueOf(*count)}, true, nil
}

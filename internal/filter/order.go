package filter

import (
	"sort"
	"time"

	"github.com/asakaida/remotemodel/internal/entities"
)

// Sort orders records in place by the given order clauses.
// Missing values sort first; mixed types sort by type rank.
func Sort(records []entities.Record, order []string) error {
	if len(order) == 0 {
		return nil
	}
	clauses, err := entities.ParseOrder(order)
	if err != nil {
		return err
	}
	sort.SliceStable(records, func(i, j int) bool {
		for _, c := range clauses {
			cmp := compareValues(records[i][c.Property], records[j][c.Property])
			if cmp == 0 {
				continue
			}
			if c.Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	return nil
}

// Page applies skip and limit. A limit of zero means no limit.
func Page(records []entities.Record, skip, limit int) []entities.Record {
	if skip > 0 {
		if skip >= len(records) {
			return records[:0]
		}
		records = records[skip:]
	}
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	return records
}

// Project returns a copy of rec holding only the listed properties
func Project(rec entities.Record, fields []string) entities.Record {
	out := make(entities.Record, len(fields))
	for _, f := range fields {
		if v, ok := rec[f]; ok {
			out[f] = v
		}
	}
	return out
}

func compareValues(a, b interface{}) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return ra - rb
	}
	switch ra {
	case rankNumber:
		fa, fb := normalizeValue(a).(float64), normalizeValue(b).(float64)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
	case rankString:
		sa, sb := stringValue(a), stringValue(b)
		switch {
		case sa < sb:
			return -1
		case sa > sb:
			return 1
		}
	case rankBool:
		ba, bb := a.(bool), b.(bool)
		switch {
		case !ba && bb:
			return -1
		case ba && !bb:
			return 1
		}
	}
	return 0
}

const (
	rankNil = iota
	rankBool
	rankNumber
	rankString
	rankOther
)

func typeRank(v interface{}) int {
	switch v.(type) {
	case nil:
		return rankNil
	case bool:
		return rankBool
	case int, int32, int64, uint, uint32, uint64, float32, float64:
		return rankNumber
	case string, time.Time:
		return rankString
	}
	return rankOther
}

func stringValue(v interface{}) string {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return v.(string)
}

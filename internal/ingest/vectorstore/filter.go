package vectorstore

import (
	"fmt"
	"strings"
)

// scalarColumn returns the named scalar metadata column's value from r, or
// (nil, false) if the column does not exist on the fixed schema.
func scalarColumn(r Record, column string) (any, bool) {
	switch column {
	case "id":
		return r.ID, true
	case "file_path":
		return r.FilePath, true
	case "section":
		return r.Section, true
	case "chunk_index":
		return r.ChunkIndex, true
	case "total_chunks":
		return r.TotalChunks, true
	case "source":
		return r.Source, true
	case "format":
		return r.Format, true
	case "timestamp":
		return r.Timestamp, true
	default:
		return nil, false
	}
}

// matches evaluates a Where clause against r, requiring every clause key
// to match (logical AND): plain values compare equal, operator maps
// compare per their operator.
func matches(r Record, where Where) bool {
	for column, cond := range where {
		actual, ok := scalarColumn(r, column)
		if !ok {
			return false
		}
		if !matchOne(actual, cond) {
			return false
		}
	}
	return true
}

func matchOne(actual, cond any) bool {
	m, isMap := cond.(map[string]any)
	if !isMap {
		return compareEqual(actual, cond)
	}
	for op, val := range m {
		ok := false
		switch op {
		case "$eq":
			ok = compareEqual(actual, val)
		case "$ne":
			ok = !compareEqual(actual, val)
		case "$gt":
			ok = compareOrdered(actual, val) > 0
		case "$gte":
			ok = compareOrdered(actual, val) >= 0
		case "$lt":
			ok = compareOrdered(actual, val) < 0
		case "$lte":
			ok = compareOrdered(actual, val) <= 0
		default:
			ok = false
		}
		if !ok {
			return false
		}
	}
	return true
}

func compareEqual(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// compareOrdered compares a and b numerically when both convert cleanly to
// float64, falling back to a string comparison otherwise.
func compareOrdered(a, b any) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	return strings.Compare(as, bs)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

// RenderSQL renders a Where clause into a SQL WHERE expression against the
// fixed scalar columns, single-quote-escaping any string literal per
// quote doubling. No store operation calls it (the Qdrant index does not
// use payload filters); the in-process evaluator above (matches) is the
// store's actual filter semantics.
func RenderSQL(where Where) string {
	if len(where) == 0 {
		return ""
	}
	clauses := make([]string, 0, len(where))
	for column, cond := range where {
		clauses = append(clauses, renderClause(column, cond))
	}
	return strings.Join(clauses, " AND ")
}

func renderClause(column string, cond any) string {
	m, isMap := cond.(map[string]any)
	if !isMap {
		return fmt.Sprintf("%s = %s", column, sqlLiteral(cond))
	}
	parts := make([]string, 0, len(m))
	for op, val := range m {
		sym, ok := sqlOperator(op)
		if !ok {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s %s", column, sym, sqlLiteral(val)))
	}
	return strings.Join(parts, " AND ")
}

func sqlOperator(op string) (string, bool) {
	switch op {
	case "$eq":
		return "=", true
	case "$ne":
		return "!=", true
	case "$gt":
		return ">", true
	case "$gte":
		return ">=", true
	case "$lt":
		return "<", true
	case "$lte":
		return "<=", true
	default:
		return "", false
	}
}

// sqlLiteral renders a Go value as a SQL literal, doubling embedded single
// quotes in string values.
func sqlLiteral(v any) string {
	switch t := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(t, "'", "''") + "'"
	default:
		return fmt.Sprint(t)
	}
}

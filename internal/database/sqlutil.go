package database

import (
	"database/sql"
	"strings"
	"time"
)

// Placeholders returns "?, ?, ?" for n parameters
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// Value converts Go values into the column encoding used by the shop schema:
// times are unix seconds, booleans are 0/1, zero times are NULL.
func Value(v any) any {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return nil
		}
		return t.Unix()
	case *time.Time:
		if t == nil || t.IsZero() {
			return nil
		}
		return t.Unix()
	case bool:
		if t {
			return 1
		}
		return 0
	default:
		return v
	}
}

// Time converts a unix-seconds column back into a time
func Time(unix int64) time.Time {
	return time.Unix(unix, 0).UTC()
}

// NullTime converts a nullable unix-seconds column into a time pointer
func NullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := Time(v.Int64)
	return &t
}

package sqlutil

import (
	"database/sql"
	"time"
)

// Helper functions for converting between Go types and sql.Null* types

// ToNullInt64 converts a Go int pointer to sql.NullInt64
func ToNullInt64(val *int) sql.NullInt64 {
	if val == nil {
		return sql.NullInt64{Valid: false}
	}
	return sql.NullInt64{Int64: int64(*val), Valid: true}
}

// FromNullInt64 converts sql.NullInt64 to Go int pointer
func FromNullInt64(val sql.NullInt64) *int {
	if !val.Valid {
		return nil
	}
	i := int(val.Int64)
	return &i
}

// ToNullFloat64 converts a Go float pointer to sql.NullFloat64
func ToNullFloat64(val *float64) sql.NullFloat64 {
	if val == nil {
		return sql.NullFloat64{Valid: false}
	}
	return sql.NullFloat64{Float64: *val, Valid: true}
}

// FromNullFloat64 converts sql.NullFloat64 to Go float pointer
func FromNullFloat64(val sql.NullFloat64) *float64 {
	if !val.Valid {
		return nil
	}
	return &val.Float64
}

// ToUnixMilli stores a time as integer milliseconds
func ToUnixMilli(t time.Time) int64 {
	return t.UnixMilli()
}

// FromUnixMilli converts stored milliseconds back to UTC time
func FromUnixMilli(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

package observability

import "go.uber.org/zap"

// Field is a structured log field.
type Field = zap.Field

// Field constructors re-exported so callers log structured fields without importing zap.
//
//nolint:gochecknoglobals // Thin aliases over zap constructors
var (
	String   = zap.String
	Int      = zap.Int
	Int64    = zap.Int64
	Uint     = zap.Uint
	Float64  = zap.Float64
	Bool     = zap.Bool
	Duration = zap.Duration
	Time     = zap.Time
	Error    = zap.Error
	Any      = zap.Any
	Strings  = zap.Strings
)

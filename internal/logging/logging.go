package logging

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"resource-cache/internal/config"
)

// Standard field names shared by every component that logs.
const (
	FieldStore     = "store"
	FieldEntity    = "entity"
	FieldTable     = "table"
	FieldCount     = "count"
	FieldAction    = "action"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldErrorCode = "error_code"
)

// New builds the process logger: JSON production output or a console
// encoder for local runs.
func New(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, errors.Wrapf(err, "parse log level %q", cfg.Level)
	}

	var zc zap.Config
	if cfg.JSON {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zc.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	log, err := zc.Build()
	if err != nil {
		return nil, errors.Wrap(err, "build logger")
	}
	return log, nil
}

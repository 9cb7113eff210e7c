package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const timeLayout = "2006-01-02T15:04:05"

// New builds a SugaredLogger writing to stdout. level is a zap level name
// ("debug", "info", ...); isJSON switches between JSON and console encoding.
func New(level string, isJSON bool) (*zap.SugaredLogger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	var encoderCfg zapcore.EncoderConfig
	if isJSON {
		encoderCfg = zap.NewProductionEncoderConfig()
	} else {
		encoderCfg = zap.NewDevelopmentEncoderConfig()
		encoderCfg.EncodeTime = zapcore.TimeEncoderOfLayout(timeLayout)
	}

	var encoder zapcore.Encoder
	if isJSON {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), lvl)
	log := zap.New(core, zap.AddStacktrace(zap.ErrorLevel))
	return log.Sugar(), nil
}

// NewTest logs debug and above to stdout, for use in tests.
func NewTest() *zap.SugaredLogger {
	log, _ := New("debug", false)
	return log
}

package worldsim

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log is the simulator's SugaredLogger; silent until InitLogger.
var Log = zap.NewNop().Sugar()

// InitLogger sends logs to a rolling file at filePath, or to stderr when
// filePath is empty. level is a zap level name ("debug", "warn", ...);
// asJSON writes one JSON object per line instead of the console layout.
func InitLogger(filePath, level string, asJSON bool) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if asJSON {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	ws := zapcore.Lock(os.Stderr)
	if filePath != "" {
		ws = zapcore.AddSync(&lumberjack.Logger{
			Filename:   filePath,
			MaxSize:    20, // MB
			MaxBackups: 5,
			MaxAge:     14, // days
		})
	}
	Log = zap.New(zapcore.NewCore(enc, ws, lvl), zap.AddCaller()).Named("worldsim").Sugar()
	return nil
}

// SyncLogger flushes buffered entries.
func SyncLogger() { _ = Log.Sync() }

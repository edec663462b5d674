// Package obs contains observability utilities such as logging and tracing.
package obs

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the global structured logger used by the service.
//
// It is a no-op logger until InitLogger runs.
var Logger = zap.NewNop()

// InitLogger replaces Logger with a JSON logger writing to stdout.
//
// Unknown levels fall back to info.
func InitLogger(level string) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.Lock(os.Stdout), lvl)
	Logger = zap.New(core, zap.AddCaller())
}

package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/campus-loyalty/points-api/internal/config"
)

var level = zap.NewAtomicLevel()

// Init builds the global zap logger. Development uses a colored console
// encoder, everything else logs JSON. When conf.Filename is set, output is
// also written to a rotating file.
func Init(env string, conf *config.LogConfig) error {
	if conf == nil {
		conf = &config.LogConfig{Level: "info"}
	}

	if err := SetLevel(conf.Level); err != nil {
		return err
	}

	var encoder zapcore.Encoder
	if env == config.EnvDevelopment {
		encoderConfig := zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	syncers := []zapcore.WriteSyncer{zapcore.AddSync(os.Stdout)}
	if conf.Filename != "" {
		syncers = append(syncers, zapcore.AddSync(&lumberjack.Logger{
			Filename:   conf.Filename,
			MaxSize:    conf.MaxSize,
			MaxBackups: conf.MaxBackups,
			MaxAge:     conf.MaxAge,
			Compress:   conf.Compress,
		}))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(syncers...), level)
	zap.ReplaceGlobals(zap.New(core, zap.AddCaller()))

	return nil
}

// SetLevel changes the level of the global logger at runtime.
func SetLevel(text string) error {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(text)); err != nil {
		return fmt.Errorf("invalid log level %q -> %w", text, err)
	}
	level.SetLevel(l)

	return nil
}

func Level() zapcore.Level {
	return level.Level()
}

func Sync() {
	_ = zap.L().Sync()
}

package logger

import (
	"bytes"
	"fmt"
	"os"
	"time"

	conf "github.com/giwa-chain/giwa-walletd/config"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger = zap.NewNop()
var stag string

func InitLogger(cfg *conf.Config) error {
	now := time.Now()
	lPath := fmt.Sprintf("%s_%s.log", cfg.LogInfo.Path, now.Format("2006-01-02"))

	// Check -debug flag
	hasDebugFlag := false
	for _, arg := range os.Args {
		if arg == "-debug" || arg == "--debug" {
			hasDebugFlag = true
			break
		}
	}

	if hasDebugFlag {
		cfg.Common.Level = "alpha"
	}

	rotator, err := rotatelogs.New(
		lPath,
		rotatelogs.WithMaxAge(time.Duration(cfg.LogInfo.MaxAgeHour)*time.Hour),
		rotatelogs.WithRotationTime(time.Duration(cfg.LogInfo.RotateHour)*time.Hour))
	if err != nil {
		return err
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:        "date",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	w := zapcore.AddSync(rotator)
	cw := zapcore.AddSync(os.Stdout)
	var core zapcore.Core
	stag = cfg.Common.Level
	if stag == "alpha" {
		core = zapcore.NewTee(
			zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), w, zap.DebugLevel),
			zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), cw, zap.DebugLevel),
		)
	} else {
		core = zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), w, zap.InfoLevel)
	}
	logger = zap.New(core)

	logger.Info("logging init file start")
	return nil
}

func Debug(ctx ...interface{}) {
	var b bytes.Buffer
	for _, str := range ctx {
		b.WriteString(fmt.Sprintf("%v", str))
	}

	logger.Debug("debug", zap.String("Debug", b.String()))
}

// Info is a convenient alias for Root().Info
func Info(ctx ...interface{}) {
	var b bytes.Buffer
	for _, str := range ctx {
		b.WriteString(fmt.Sprintf("%v", str))
	}

	logger.Info("info", zap.String("Info", b.String()))
}

// Warn is a convenient alias for Root().Warn
func Warn(ctx ...interface{}) {
	var b bytes.Buffer
	for _, str := range ctx {
		b.WriteString(fmt.Sprintf("%v", str))
	}

	logger.Warn("warn", zap.String("Warn", b.String()))
}

// Error is a convenient alias for Root().Error
func Error(ctx ...interface{}) {
	var b bytes.Buffer
	for _, str := range ctx {
		b.WriteString(fmt.Sprintf("%v", str))
	}

	logger.Error("error", zap.String("Err", b.String()))
}

func Crit(ctx ...interface{}) {
	var b bytes.Buffer
	for _, str := range ctx {
		b.WriteString(fmt.Sprintf("%v", str))
	}

	logger.Fatal("panic", zap.String("Crit", b.String()))
}

// Zap exposes the underlying zap logger for structured sinks.
func Zap() *zap.Logger {
	return logger
}

// Error handling
func HandleErr(err error) {
	if err != nil {
		Error(err)
	}
}

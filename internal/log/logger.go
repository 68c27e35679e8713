package log

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rjm263/tradekit/internal/config"
)

// NewLogger 根据配置创建 zap.Logger。
// console 编码带彩色级别便于本地观察，json 编码保持机器可读。
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log: 解析日志级别 %q 失败: %w", cfg.Level, err)
	}

	encoding := cfg.Encoding
	if encoding == "" {
		encoding = "console"
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}
	errOutputs := cfg.ErrorOutputPaths
	if len(errOutputs) == 0 {
		errOutputs = []string{"stderr"}
	}

	zapCfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Development,
		Encoding:         encoding,
		EncoderConfig:    encoderConfig(encoding),
		OutputPaths:      outputs,
		ErrorOutputPaths: errOutputs,
		InitialFields:    map[string]interface{}{"service": "tradekit"},
	}

	logger, err := zapCfg.Build(zap.AddCaller())
	if err != nil {
		return nil, fmt.Errorf("log: 创建日志实例失败: %w", err)
	}
	return logger, nil
}

func encoderConfig(encoding string) zapcore.EncoderConfig {
	ec := zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		TimeKey:        "ts",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if encoding == "console" {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return ec
}

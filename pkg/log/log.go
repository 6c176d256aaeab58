// Package log 封装了 zap，提供全局的结构化日志函数。
package log

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 未调用 Init 时使用 Nop logger，测试中也可以安全打印。
var sugar = zap.NewNop().Sugar()

// Init 初始化 zap logger
func Init(level, format, outputPath string) {
	var zapConfig zap.Config

	// 根据配置设置日志级别
	logLevel := zap.NewAtomicLevel()
	if err := logLevel.UnmarshalText([]byte(level)); err != nil {
		logLevel.SetLevel(zap.InfoLevel)
	}

	if format == "console" {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapConfig.Encoding = "console"
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.Encoding = "json"
	}
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	zapConfig.Level = logLevel
	zapConfig.OutputPaths = []string{"stdout"}
	if outputPath != "" {
		// 同时输出到文件和 stdout
		_ = os.MkdirAll(outputPath, os.ModePerm)
		zapConfig.OutputPaths = append(zapConfig.OutputPaths, outputPath+"/app.log")
	}

	logger, err := zapConfig.Build()
	if err != nil {
		panic(err)
	}
	sugar = logger.Sugar()
}

// Info 记录一条 info 级别的日志
func Info(msg string) {
	sugar.Info(msg)
}

// Infof 使用格式化字符串记录一条 info 级别的日志
func Infof(template string, args ...interface{}) {
	sugar.Infof(template, args...)
}

// Infow 使用键值对记录一条 info 级别的结构化日志。
func Infow(msg string, keysAndValues ...interface{}) {
	sugar.Infow(msg, keysAndValues...)
}

// Debugf 使用格式化字符串记录一条 debug 级别的日志
func Debugf(template string, args ...interface{}) {
	sugar.Debugf(template, args...)
}

// Warnf 使用格式化字符串记录一条 warn 级别的日志
func Warnf(template string, args ...interface{}) {
	sugar.Warnf(template, args...)
}

// Warnw 使用键值对记录一条 warn 级别的结构化日志。
func Warnw(msg string, keysAndValues ...interface{}) {
	sugar.Warnw(msg, keysAndValues...)
}

// Error 记录一条 error 级别的日志，并附带 error 信息
func Error(msg string, err error) {
	sugar.Errorw(msg, "error", err)
}

func Errorf(template string, args ...interface{}) {
	sugar.Errorf(template, args...)
}

// Fatal 记录一条 fatal 级别的日志，并附带 error 信息，然后退出程序
func Fatal(msg string, err error) {
	sugar.Fatalw(msg, "error", err)
}

func Fatalf(template string, args ...interface{}) {
	sugar.Fatalf(template, args...)
}

// Sync 将缓冲区中的任何日志刷新到底层 Writer。
func Sync() {
	_ = sugar.Sync()
}

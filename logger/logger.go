package logger

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Log is the global logger instance, used for bootstrap logging and by
	// the context helpers below.
	Log = zap.NewNop()
)

// CorrelationKey is the key the correlation token is stored under, both in
// the gin context and in a context.Context.
const CorrelationKey = "correlation_token"

type correlationKey struct{}

// InitializeWithWriter sets up the logger with the specified environment and
// an optional second sink such as a CloudWatch Logs writer.
func InitializeWithWriter(env string, sink io.Writer) {
	l, err := New(env, sink)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	Log = l
}

// New builds a logger without touching the global one.
func New(env string, sink io.Writer) (*zap.Logger, error) {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if sink == nil {
		return config.Build()
	}

	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(config.EncoderConfig),
		zapcore.AddSync(os.Stdout),
		zap.NewAtomicLevelAt(config.Level.Level()),
	)

	// The shipped copy is always JSON and never colourised.
	sinkConfig := config.EncoderConfig
	sinkConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	sinkCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(sinkConfig),
		zapcore.AddSync(sink),
		zap.NewAtomicLevelAt(config.Level.Level()),
	)

	return zap.New(zapcore.NewTee(consoleCore, sinkCore), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// WithCorrelation returns a context carrying the correlation token.
func WithCorrelation(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, correlationKey{}, token)
}

// Correlation extracts the correlation token, "unknown" when none was set.
func Correlation(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}
	if ginCtx, ok := ctx.(*gin.Context); ok {
		if token := ginCtx.GetString(CorrelationKey); token != "" {
			return token
		}
		ctx = ginCtx.Request.Context()
	}
	if token, ok := ctx.Value(correlationKey{}).(string); ok && token != "" {
		return token
	}
	return "unknown"
}

// Error logs an error with the correlation token and additional context
func Error(ctx context.Context, msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.String(CorrelationKey, Correlation(ctx)))
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	Log.Error(msg, fields...)
}

// Info logs an info message with the correlation token and additional context
func Info(ctx context.Context, msg string, fields ...zap.Field) {
	fields = append(fields, zap.String(CorrelationKey, Correlation(ctx)))
	Log.Info(msg, fields...)
}

// Debug logs a debug message with the correlation token and additional context
func Debug(ctx context.Context, msg string, fields ...zap.Field) {
	fields = append(fields, zap.String(CorrelationKey, Correlation(ctx)))
	Log.Debug(msg, fields...)
}

// Warn logs a warning message with the correlation token and additional context
func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	fields = append(fields, zap.String(CorrelationKey, Correlation(ctx)))
	Log.Warn(msg, fields...)
}

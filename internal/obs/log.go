package obs

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig selects the encoder and level of the shared logger.
type LogConfig struct {
	// Production switches from the colored console encoder to JSON.
	Production bool
	Level      string
	Service    string
	Version    string
}

var (
	loggerMu sync.RWMutex
	logger   *zap.Logger
)

// InitLogger builds the shared logger. Later calls replace it.
func InitLogger(cfg LogConfig) *zap.Logger {
	l := buildLogger(cfg)
	loggerMu.Lock()
	logger = l
	loggerMu.Unlock()
	return l
}

// SetLogger swaps the shared logger, mainly for tests using zaptest/observer.
func SetLogger(l *zap.Logger) {
	loggerMu.Lock()
	logger = l
	loggerMu.Unlock()
}

// Logger returns the shared logger, building a development one on first use.
func Logger() *zap.Logger {
	loggerMu.RLock()
	l := logger
	loggerMu.RUnlock()
	if l != nil {
		return l
	}
	return InitLogger(LogConfig{Level: "info"})
}

type loggerKey struct{}

// WithLogger attaches a request-scoped logger to ctx.
func WithLogger(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// From returns the logger stored in ctx, or the shared one.
func From(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return Logger()
}

func buildLogger(cfg LogConfig) *zap.Logger {
	var zcfg zap.Config
	if cfg.Production {
		zcfg = zap.NewProductionConfig()
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zcfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		zcfg.DisableStacktrace = true
	}
	zcfg.Level = zap.NewAtomicLevelAt(parseLevel(cfg.Level))
	zcfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	l, err := zcfg.Build()
	if err != nil {
		l = zap.NewExample()
	}
	if cfg.Service != "" {
		l = l.With(zap.String("service", cfg.Service))
	}
	if cfg.Version != "" {
		l = l.With(zap.String("version", cfg.Version))
	}
	return l
}

func parseLevel(lvl string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Field helpers shared across packages.

func RequestID(v string) zap.Field     { return zap.String("request_id", v) }
func Op(v string) zap.Field            { return zap.String("op", v) }
func UserID(v int64) zap.Field         { return zap.Int64("user_id", v) }
func TournamentID(v int64) zap.Field   { return zap.Int64("tournament_id", v) }
func StaffMemberID(v int64) zap.Field  { return zap.Int64("staff_member_id", v) }
func NotificationID(v int64) zap.Field { return zap.Int64("notification_id", v) }

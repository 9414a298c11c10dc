package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"payuz/internal/config"

	"github.com/rs/zerolog"
)

// New creates a zerolog logger configured from config.
// Supports "trace" | "debug" | "info" | "warn" | "error" levels
// and "json" | "console" formats. Sampling can be enabled to reduce noise in prod.
func New(cfg config.LogConfig, dev bool) *zerolog.Logger {
	level, _ := zerolog.ParseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	var base zerolog.Logger
	if strings.ToLower(cfg.Format) == "console" || dev {
		out := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		base = zerolog.New(out).With().Timestamp().Logger()
	} else {
		base = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	if cfg.Sampling && !dev {
		// Keep first 100, then 1 every 100 thereafter.
		sampled := base.Sample(&zerolog.BasicSampler{N: 100})
		return &sampled
	}
	return &base
}

type ctxKey string

const (
	ctxTraceID ctxKey = "trace_id"
	ctxOrderID ctxKey = "order_id"
	ctxGateway ctxKey = "gateway"
)

// With attaches common context fields such as trace_id, order_id, gateway.
func With(ctx context.Context, base *zerolog.Logger) *zerolog.Logger {
	l := base.With()
	if v := ctx.Value(ctxTraceID); v != nil {
		l = l.Str("trace_id", v.(string))
	}
	if v := ctx.Value(ctxOrderID); v != nil {
		l = l.Int64("order_id", v.(int64))
	}
	if v := ctx.Value(ctxGateway); v != nil {
		l = l.Str("gateway", v.(string))
	}
	logger := l.Logger()
	return &logger
}

// Redact hides credentials and signatures in log output.
func Redact(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-2:]
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxTraceID, id)
}
func WithOrderID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, ctxOrderID, id)
}
func WithGateway(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ctxGateway, name)
}

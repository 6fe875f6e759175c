package logger

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var L *zap.Logger
var S *zap.SugaredLogger

func init() {
	// Never leave L nil, packages log through it before New runs
	L = zap.NewNop()
	S = L.Sugar()
}

// New builds the process logger and installs it as L/S.
// Unknown levels fall back to info.
func New(level string, isDev bool) *zap.Logger {
	var config zap.Config

	if isDev {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	config.Level = zap.NewAtomicLevelAt(ParseLevel(level))
	config.DisableStacktrace = true

	l, err := config.Build()
	if err != nil {
		l = zap.NewNop()
	}
	L = l
	S = L.Sugar()
	return L
}

func ParseLevel(level string) zapcore.Level {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return zap.InfoLevel
	}
	return zapLevel
}

// Middleware returns a chi-compatible middleware for request logging
func Middleware(l *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			t1 := time.Now()

			defer func() {
				l.Info("request completed",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("size", ww.BytesWritten()),
					zap.Duration("duration", time.Since(t1)),
					zap.String("ip", r.RemoteAddr),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

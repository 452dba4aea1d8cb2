// Package zaplog adapts a zap logger to auth.Logger.
package zaplog

import (
	"github.com/keysai/go-auth"
	"go.uber.org/zap"
)

type logger struct {
	s *zap.SugaredLogger
}

// New wraps l. A nil l yields a no-op logger.
func New(l *zap.Logger) auth.Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return logger{s: l.Named("auth").Sugar()}
}

func (l logger) Debug(msg string, args ...any) { l.s.Debugw(msg, args...) }
func (l logger) Info(msg string, args ...any)  { l.s.Infow(msg, args...) }
func (l logger) Warn(msg string, args ...any)  { l.s.Warnw(msg, args...) }
func (l logger) Error(msg string, args ...any) { l.s.Errorw(msg, args...) }

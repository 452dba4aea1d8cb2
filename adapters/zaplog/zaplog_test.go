package zaplog_test

import (
	"testing"

	"github.com/keysai/go-auth/adapters/zaplog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerWritesStructuredFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := zaplog.New(zap.New(core))

	log.Debug("probe", "phase", "initializing")
	log.Info("signed in", "user_id", "u-1")
	log.Warn("lookup failed", "email", "a@b.c")
	log.Error("sign out failed", "error", "boom")

	entries := logs.All()
	require.Len(t, entries, 4)

	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "auth", entries[1].LoggerName)
	assert.Equal(t, "u-1", entries[1].ContextMap()["user_id"])
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, "sign out failed", entries[3].Message)
}

func TestNilLoggerIsNoop(t *testing.T) {
	assert.NotPanics(t, func() {
		zaplog.New(nil).Info("nothing", "k", "v")
	})
}

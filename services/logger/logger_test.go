package logsvc

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/trezcool/darasa/core"
)

func newObserved(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	obs, logs := observer.New(level)
	base := zap.New(obs)
	return &Logger{base: base, sugar: base.Sugar(), level: zap.NewAtomicLevelAt(level)}, logs
}

func TestLogger_Fields(t *testing.T) {
	l, logs := newObserved(zap.DebugLevel)

	l.Error(
		"enroll failed",
		errors.New("boom"),
		map[string]interface{}{"class_id": "c1"},
		core.Person{ID: "u1", Email: "a@b.c", TenantID: "t1"},
		core.Person{ID: "u2"},
	)

	require.Equal(t, 1, logs.Len())
	e := logs.All()[0]
	assert.Equal(t, "enroll failed", e.Message)
	assert.Equal(t, zapcore.ErrorLevel, e.Level)
	ctx := e.ContextMap()
	assert.Equal(t, "boom", ctx["error"])
	assert.Equal(t, "c1", ctx["class_id"])
	assert.Equal(t, "u1", ctx["user_id"])
	assert.Equal(t, "t1", ctx["tenant_id"])
}

func TestLogger_Level(t *testing.T) {
	l, logs := newObserved(zap.InfoLevel)
	l.Debug("hidden")
	l.Info("shown")
	l.Warn("shown too", nil)
	assert.Equal(t, 2, logs.Len())
}

func TestNew(t *testing.T) {
	conf := core.NewTestConfig()
	conf.LogLevel = "not-a-level"
	l, err := New(conf)
	require.NoError(t, err)
	assert.Equal(t, zap.InfoLevel, l.level.Level())
	assert.False(t, l.rollbar)
	assert.False(t, l.sentry)

	require.NoError(t, l.SetLevel("warn"))
	assert.Equal(t, zap.WarnLevel, l.level.Level())
}

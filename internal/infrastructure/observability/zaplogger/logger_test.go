package zaplogger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Zhima-Mochi/minishop-inventory/app/internal/observability"
)

func TestLoggerCarriesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(core), observability.F("service", "inventory"))

	l.With(observability.F("use_case", "order.place")).
		Info("use_case_done", observability.F("outcome", "success"), observability.F("error", errors.New("late")))

	require.Equal(t, 1, logs.Len())
	ctx := logs.All()[0].ContextMap()
	assert.Equal(t, "inventory", ctx["service"])
	assert.Equal(t, "order.place", ctx["use_case"])
	assert.Equal(t, "success", ctx["outcome"])
	assert.Equal(t, "late", ctx["error"])
}

func TestNilZapLoggerIsSafe(t *testing.T) {
	l := New(nil)
	l.Error("nothing happens")
	assert.NoError(t, l.Sync())
}

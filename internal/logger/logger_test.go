package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitLogger(t *testing.T) {
	prev := Log
	t.Cleanup(func() { Log = prev })

	require.NoError(t, InitLogger("debug", "json"))
	require.True(t, Log.Core().Enabled(zap.DebugLevel))

	require.NoError(t, InitLogger("warn", "console"))
	require.False(t, Log.Core().Enabled(zap.InfoLevel))
	require.True(t, Log.Core().Enabled(zap.WarnLevel))
}

func TestInitLogger_Invalid(t *testing.T) {
	prev := Log
	t.Cleanup(func() { Log = prev })

	require.Error(t, InitLogger("loud", "json"))
	require.Error(t, InitLogger("info", "xml"))
	require.Same(t, prev, Log)
}

package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	cases := []struct {
		level      string
		production bool
		enabled    zapcore.Level
		disabled   []zapcore.Level
	}{
		{level: "debug", enabled: zapcore.DebugLevel},
		{level: "warn", production: true, enabled: zapcore.WarnLevel, disabled: []zapcore.Level{zapcore.InfoLevel}},
		{level: "info", enabled: zapcore.InfoLevel, disabled: []zapcore.Level{zapcore.DebugLevel}},
	}
	for _, tc := range cases {
		t.Run(tc.level, func(t *testing.T) {
			log, err := New(tc.level, tc.production)
			require.NoError(t, err)
			assert.True(t, log.Core().Enabled(tc.enabled))
			for _, l := range tc.disabled {
				assert.False(t, log.Core().Enabled(l))
			}
		})
	}
}

func TestNew_BadLevel(t *testing.T) {
	_, err := New("loud", false)
	assert.Error(t, err)
}

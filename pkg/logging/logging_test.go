package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workspace-team-backend/pkg/config"
)

func TestNewWithOutputProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithOutput(&config.Config{Environment: "production", LogLevel: "warn"}, &buf)

	logger.Info("dropped")
	logger.WithField("workspace_id", "w1").Warn("kept")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "w1", entry["workspace_id"])
}

func TestNewWithOutputLevels(t *testing.T) {
	var buf bytes.Buffer

	logger := NewWithOutput(&config.Config{Environment: "development", LogLevel: "nonsense"}, &buf)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())

	logger = NewWithOutput(&config.Config{Environment: "development", LogLevel: "error", Debug: true}, &buf)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
}

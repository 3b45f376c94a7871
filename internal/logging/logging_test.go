package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter("prod", "info", &buf)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("payment marked paid", zap.Int64("payment_id", 7))
	require.NoError(t, logger.Sync())

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "payment marked paid", line["msg"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, float64(7), line["payment_id"])
	assert.Equal(t, "rentals", line["service"])
	assert.Equal(t, "prod", line["environment"])
}

func TestNewWithWriter_Dev(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter("dev", "debug", &buf)
	require.NoError(t, err)
	logger.Debug("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestNew_BadLevel(t *testing.T) {
	_, err := New("prod", "loud")
	assert.Error(t, err)
}

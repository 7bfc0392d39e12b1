package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/mmsgate/internal/ports"
)

func TestNewZerolog_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewZerolog(&buf, "debug", FormatJSON)
	require.NoError(t, err)

	logger.Info("transaction finished",
		ports.String("id", "tx-1"),
		ports.Int("pending", 2),
		ports.Bool("connected", true),
		ports.Duration("took", time.Second),
		ports.Err(errors.New("boom")),
	)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "transaction finished", entry["message"])
	assert.Equal(t, "tx-1", entry["id"])
	assert.Equal(t, float64(2), entry["pending"])
	assert.Equal(t, true, entry["connected"])
	assert.Equal(t, "boom", entry["error"])
}

func TestNewZerolog_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewZerolog(&buf, "warn", FormatJSON)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("hidden")
	assert.Zero(t, buf.Len())

	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewZerolog_Invalid(t *testing.T) {
	_, err := NewZerolog(nil, "loud", FormatJSON)
	assert.Error(t, err)

	_, err = NewZerolog(nil, "info", "xml")
	assert.Error(t, err)
}

func TestZerologAdapter_With(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewZerolog(&buf, "info", FormatJSON)
	require.NoError(t, err)

	logger.With("dispatcher").Info("hello")
	assert.Contains(t, buf.String(), `"component":"dispatcher"`)
}

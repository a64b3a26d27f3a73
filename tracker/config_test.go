package tracker

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigDefaults(t *testing.T) {
	c, err := ParseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultSubKey, c.SubKey)
	assert.Equal(t, DefaultPubKey, c.PubKey)
	assert.Equal(t, DefaultMinDistance, c.Thresholds.MinDistance)
	assert.True(t, math.IsInf(c.Thresholds.MaxDistance, 1))
	assert.Equal(t, DefaultPeriod, c.Period)
	assert.NoError(t, c.Validate())
}

func TestParseConfigPartial(t *testing.T) {
	c, err := ParseConfig(json.RawMessage(`{"min_distance": 0, "max_distance": 1000, "compute_period_ms": 250}`))
	require.NoError(t, err)
	assert.Equal(t, DefaultSubKey, c.SubKey, "unset fields keep their defaults")
	assert.Equal(t, 0.0, c.Thresholds.MinDistance, "an explicit zero is not a default")
	assert.Equal(t, 1000.0, c.Thresholds.MaxDistance)
	assert.Equal(t, 250*time.Millisecond, c.Period)
	assert.NoError(t, c.Validate())
}

func TestConfigValidate(t *testing.T) {
	tables := []struct {
		description string
		raw         string
	}{
		{"negative min distance", `{"min_distance": -1}`},
		{"zero max distance", `{"max_distance": 0}`},
		{"zero period", `{"compute_period_ms": 0}`},
		{"empty sub key", `{"sub_key": ""}`},
		{"bad pub key", `{"pub_key": "demo//alerts"}`},
	}
	for _, table := range tables {
		c, err := ParseConfig(json.RawMessage(table.raw))
		require.NoError(t, err, table.description)
		assert.Error(t, c.Validate(), table.description)
	}

	_, err := ParseConfig(json.RawMessage(`{"min_distance": "close"}`))
	assert.Error(t, err)
}

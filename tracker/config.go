package tracker

import (
	"encoding/json"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/alowde/dtracker/alert"
	"github.com/alowde/dtracker/pkg/keyexpr"
)

// Defaults for the "tracker" configuration block.
const (
	DefaultSubKey      = "demo/tracker/mobs/**"
	DefaultPubKey      = "demo/tracker/alert/distance"
	DefaultMinDistance = 2.0
	DefaultPeriod      = 500 * time.Millisecond
)

// Config is the parsed "tracker" configuration block.
type Config struct {
	SubKey     string
	PubKey     string
	Thresholds alert.Thresholds
	Period     time.Duration
}

// rawConfig mirrors the configuration block with pointers, so each field can be defaulted independently.
type rawConfig struct {
	SubKey          *string  `json:"sub_key"`
	PubKey          *string  `json:"pub_key"`
	MinDistance     *float64 `json:"min_distance"`
	MaxDistance     *float64 `json:"max_distance"`
	ComputePeriodMS *int64   `json:"compute_period_ms"`
}

// DefaultConfig returns the configuration used when the block is absent. The maximum band is disabled.
func DefaultConfig() Config {
	return Config{
		SubKey: DefaultSubKey,
		PubKey: DefaultPubKey,
		Thresholds: alert.Thresholds{
			MinDistance: DefaultMinDistance,
			MaxDistance: math.Inf(1),
		},
		Period: DefaultPeriod,
	}
}

// ParseConfig reads the "tracker" block, defaulting every field it doesn't set. It doesn't validate; call Validate
// once any command line overrides have been applied.
func ParseConfig(raw json.RawMessage) (Config, error) {
	c := DefaultConfig()
	if len(raw) == 0 {
		return c, nil
	}
	var r rawConfig
	if err := json.Unmarshal(raw, &r); err != nil {
		return c, errors.Wrap(err, "could not parse tracker configuration")
	}
	if r.SubKey != nil {
		c.SubKey = *r.SubKey
	}
	if r.PubKey != nil {
		c.PubKey = *r.PubKey
	}
	if r.MinDistance != nil {
		c.Thresholds.MinDistance = *r.MinDistance
	}
	if r.MaxDistance != nil {
		c.Thresholds.MaxDistance = *r.MaxDistance
	}
	if r.ComputePeriodMS != nil {
		c.Period = time.Duration(*r.ComputePeriodMS) * time.Millisecond
	}
	return c, nil
}

// Validate checks the keys, thresholds and period are usable.
func (c Config) Validate() error {
	if _, err := keyexpr.Split(c.SubKey); err != nil {
		return errors.Wrap(err, "invalid sub_key")
	}
	if _, err := keyexpr.Split(c.PubKey); err != nil {
		return errors.Wrap(err, "invalid pub_key")
	}
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}
	if c.Period <= 0 {
		return errors.Errorf("invalid compute period %v", c.Period)
	}
	return nil
}

// Package alert defines the distance alerts produced by the evaluator and the two-band threshold table that produces
// them. It also provides a generic interface for notifying contacts of danger alerts out of band, which lets us
// write new notification methods without modifying the rest of the program.
package alert

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// Kind classifies a threshold crossing. It's serialized as its ordinal.
type Kind int

const (
	AlertMin  Kind = iota // closer than 1.5x the minimum distance
	DangerMin             // at or closer than the minimum distance
	AlertMax              // further than 0.75x the maximum distance
	DangerMax             // further than the maximum distance
)

func (k Kind) String() string {
	switch k {
	case AlertMin:
		return "AlertMin"
	case DangerMin:
		return "DangerMin"
	case AlertMax:
		return "AlertMax"
	case DangerMax:
		return "DangerMax"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// IsDanger reports whether k is one of the danger tiers.
func (k Kind) IsDanger() bool {
	return k == DangerMin || k == DangerMax
}

// Alert is published for every threshold crossing between two entities.
type Alert struct {
	IDA      string  `json:"ida"`
	IDB      string  `json:"idb"`
	Distance float64 `json:"distance"` // meters
	Kind     Kind    `json:"kind"`
}

// Band factors for the alert tier of each threshold.
const (
	MinAlertFactor = 1.5
	MaxAlertFactor = 0.75
)

// Thresholds holds both distance bands, in meters. A MaxDistance of +Inf disables the maximum band.
type Thresholds struct {
	MinDistance float64 `json:"min_distance"`
	MaxDistance float64 `json:"max_distance"`
}

// Validate checks the thresholds are usable.
func (t Thresholds) Validate() error {
	switch {
	case math.IsNaN(t.MinDistance) || t.MinDistance < 0:
		return errors.Errorf("invalid min_distance %v", t.MinDistance)
	case math.IsNaN(t.MaxDistance) || t.MaxDistance <= 0:
		return errors.Errorf("invalid max_distance %v", t.MaxDistance)
	}
	return nil
}

// Classify returns the crossings for a distance: at most one from each band, minimum band first.
func (t Thresholds) Classify(distance float64) (kinds []Kind) {
	switch {
	case distance <= t.MinDistance:
		kinds = append(kinds, DangerMin)
	case distance <= t.MinDistance*MinAlertFactor:
		kinds = append(kinds, AlertMin)
	}
	switch {
	case distance > t.MaxDistance:
		kinds = append(kinds, DangerMax)
	case distance > t.MaxDistance*MaxAlertFactor:
		kinds = append(kinds, AlertMax)
	}
	return kinds
}

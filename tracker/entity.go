// Package tracker keeps the latest known state of every reporting entity and periodically evaluates the distance
// between every pair of them, publishing an alert for each threshold crossing.
package tracker

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// EntityState is the latest report received for one entity. Reports replace the previous state wholesale.
type EntityState struct {
	ID       string   `json:"id"`
	Position Position `json:"position"`
	Speed    float64  `json:"speed"`
	Color    string   `json:"color"`
	Kind     string   `json:"kind"`
}

// wireState mirrors EntityState with pointers so missing fields can be detected.
type wireState struct {
	ID       *string `json:"id"`
	Position *struct {
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
	} `json:"position"`
	Speed *float64 `json:"speed"`
	Color *string  `json:"color"`
	Kind  *string  `json:"kind"`
}

// UnmarshalJSON decodes a position report. Every field is required; a report missing any of them is rejected as a
// whole.
func (e *EntityState) UnmarshalJSON(b []byte) error {
	var w wireState
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	var missing string
	switch {
	case w.ID == nil:
		missing = "id"
	case w.Position == nil:
		missing = "position"
	case w.Position.Lat == nil:
		missing = "position.lat"
	case w.Position.Lng == nil:
		missing = "position.lng"
	case w.Speed == nil:
		missing = "speed"
	case w.Color == nil:
		missing = "color"
	case w.Kind == nil:
		missing = "kind"
	}
	if missing != "" {
		return errors.Errorf("missing field %q", missing)
	}
	*e = EntityState{
		ID:       *w.ID,
		Position: Position{Lat: *w.Position.Lat, Lng: *w.Position.Lng},
		Speed:    *w.Speed,
		Color:    *w.Color,
		Kind:     *w.Kind,
	}
	return nil
}

// Decode parses a single inbound payload.
func Decode(payload []byte) (EntityState, error) {
	var e EntityState
	if err := json.Unmarshal(payload, &e); err != nil {
		return EntityState{}, errors.Wrap(err, "could not decode position report")
	}
	return e, nil
}

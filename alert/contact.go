package alert

import (
	"encoding/json"
	"time"
)

// DefaultInterval is the minimum time between repeat notifications for the same pair and kind, used when a contact
// doesn't specify its own.
const DefaultInterval = 5 * time.Minute

// Contact describes a generic alertable endpoint, and can be extended to include any alert mechanism.
type Contact interface {
	SendAlert(a Alert) error
	GetName() string
	// Interval is the minimum time between repeat notifications of the same alert. Zero selects DefaultInterval.
	Interval() time.Duration
}

type contactParseFunction func(message json.RawMessage) (contact Contact, err error)

// RegisterContactFunction is called as a side-effect of importing an alert mechanism. It accepts a lambda that will be
// supplied with the details of each known contact.
func RegisterContactFunction(name string, f contactParseFunction) {
	contactParseFunctions[name] = f
}

var contactParseFunctions = make(map[string]contactParseFunction)

package alert

import (
	"sync"
	"time"
)

type throttleKey struct {
	contact  string
	ida, idb string // ida <= idb
	kind     Kind
}

func newThrottleKey(contact string, a Alert) throttleKey {
	ida, idb := a.IDA, a.IDB
	if idb < ida {
		ida, idb = idb, ida
	}
	return throttleKey{contact, ida, idb, a.Kind}
}

var (
	mu        sync.Mutex
	contacts  []Contact
	notBefore = make(map[throttleKey]time.Time)
	now       = time.Now
)

// due returns the contacts that haven't been sent a for its pair and kind within their interval, and marks them as
// sent.
func due(a Alert) []Contact {
	mu.Lock()
	defer mu.Unlock()
	var out []Contact
	for _, contact := range contacts {
		key := newThrottleKey(contact.GetName(), a)
		if nb, exist := notBefore[key]; exist && now().Before(nb) {
			continue
		}
		interval := contact.Interval()
		if interval <= 0 {
			interval = DefaultInterval
		}
		notBefore[key] = now().Add(interval)
		out = append(out, contact)
	}
	return out
}

// Notify sends a danger alert to every configured contact, at most once per contact interval for the same pair and
// kind, whichever way round the pair is given. Alert-tier kinds are only published, never sent to contacts. It
// returns the number of notifications sent; failures are logged and otherwise ignored.
func Notify(a Alert) (sent int) {
	if !a.Kind.IsDanger() {
		return 0
	}
	for _, contact := range due(a) {
		if err := contact.SendAlert(a); err != nil {
			log.WithError(err).
				WithField("contact", contact.GetName()).
				Warn("Couldn't send alert message")
			continue
		}
		sent++
	}
	return sent
}

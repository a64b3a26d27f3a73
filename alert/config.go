package alert

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/alowde/dtracker/logger"
)

var log = logger.New("alert", logrus.WarnLevel)

type configParseFunction func(message json.RawMessage, ll logrus.Level) error

// RegisterConfigFunction is called as a side-effect of importing an alert mechanism. It accepts a lambda that will have
// all related configuration passed to it.
func RegisterConfigFunction(name string, f configParseFunction) {
	configParseFunctions[name] = f
}

var configParseFunctions = make(map[string]configParseFunction)

// Initialise parses the alerter and contact configuration. Both blocks are optional: without them Notify does nothing.
func Initialise(contactJson json.RawMessage, alertJson json.RawMessage, ll logrus.Level) error {

	log = logger.New("alert", ll)

	mu.Lock()
	defer mu.Unlock()
	contacts = nil
	notBefore = make(map[throttleKey]time.Time)

	if len(alertJson) > 0 {
		log.Debug("Parsing alert configurations")
		var A map[string]json.RawMessage
		if err := json.Unmarshal(alertJson, &A); err != nil {
			return errors.Wrap(err, "could not parse alert configuration collection (is it a map?)")
		}
		for k, m := range A {
			f, ok := configParseFunctions[k]
			if !ok {
				log.WithField("package", k).Warn("Found unused alerter config")
				continue
			}
			log.WithField("package", k).Debug("Configuring alert package")
			if err := f(m, ll); err != nil {
				return errors.Wrapf(err, "while processing %v alert function config", k)
			}
		}
	}

	if len(contactJson) == 0 {
		log.Info("No contacts configured")
		return nil
	}
	log.Debug("Parsing contacts")
	var C map[string][]json.RawMessage
	if err := json.Unmarshal(contactJson, &C); err != nil {
		return errors.Wrap(err, "could not parse contact configuration collection (is it a map of arrays?)")
	}
	for k, v := range C {
		f, ok := contactParseFunctions[k]
		if !ok {
			log.WithField("package", k).Warn("Found contacts for unknown alert package")
			continue
		}
		for _, c := range v {
			contact, err := f(c)
			if err != nil {
				log.WithError(err).Warn("error while trying to process a contact object, ignoring")
				continue
			}
			contacts = append(contacts, contact)
		}
	}
	log.WithField("contact count", len(contacts)).Info("Finished parsing contacts")
	return nil
}

// Package listen provides a generic interface for receiving position reports from message brokers. Each listener
// module subscribes to the configured key expression and hands every payload, undecoded, to the ingest loop.
// Listeners are also watched routines: a broken subscription is reported on the watchdog channel, which is fatal.
package listen

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/alowde/dtracker/heartbeat"
	"github.com/alowde/dtracker/logger"
)

var log = logger.New("listen", logrus.WarnLevel)

// Message is a single payload received from a broker.
type Message struct {
	Key     string // broker-specific topic the payload arrived on
	Payload []byte
}

type configParseFunction func(message json.RawMessage, key string, ll logrus.Level) (watchdog chan error, inbox chan Message, err error)

// RegisterConfigFunction is called as a side-effect of importing a listener module. It accepts a lambda that will have
// all related configuration passed to it.
func RegisterConfigFunction(name string, f configParseFunction) {
	configParseFunctions[name] = f
}

var configParseFunctions = make(map[string]configParseFunction)

// Initialise distributes configuration to the imported listener modules by calling their registered config functions,
// and fans their output into a single inbox.
func Initialise(config json.RawMessage, key string, ll logrus.Level) (watchdog chan error, inbox chan Message, err error) {

	log = logger.New("listen", ll)

	log.Debug("Parsing listen configuration")

	// Unpack JSON only one level to allow plugins to define their own schema
	var C map[string]json.RawMessage
	if err := json.Unmarshal(config, &C); err != nil {
		return nil, nil, errors.Wrap(err, "could not parse listener configuration collection")
	}

	watchdog = make(chan error, 10)
	inbox = make(chan Message)

	// Iterate over configs received and pass them to registered modules
	var hasOkListener bool
	for listenerName, rawConfig := range C {

		// If we don't have any listener plugins by this name then skip it
		f, ok := configParseFunctions[listenerName]
		if !ok {
			log.WithField("config name", listenerName).
				Warn("Found unused listener config")
			continue
		}

		// Call the provided configuration function and link the received channels to our aggregate channels
		log.WithField("name", listenerName).
			Debug("Configuring listener module")
		w, in, err := f(rawConfig, key, ll)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "could not configure %v listener", listenerName)
		}
		go func(name string, in chan error, out chan error) {
			for e := range in {
				if !heartbeat.IsNormal(e) {
					e = errors.Wrapf(e, "from %v listener", name)
				}
				heartbeat.Report(out, e)
			}
		}(listenerName, w, watchdog)
		go func(name string, in chan Message, out chan Message, w chan error) {
			for m := range in {
				out <- m
			}
			heartbeat.Report(w, fmt.Errorf("%v listener closed its channel", name))
		}(listenerName, in, inbox, watchdog)
		hasOkListener = true
	}

	if !hasOkListener {
		return nil, nil, errors.New("No configuration matched listener modules")
	}
	log.Debug("Configured listeners")
	return watchdog, inbox, nil
}

// Package publish provides a generic interface for sending distance alerts to message brokers. Every configured
// publisher receives every message; a message counts as published only if all of them succeed.
package publish

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/alowde/dtracker/logger"
)

var log = logger.New("publish", logrus.WarnLevel)

type configParseFunction func(message json.RawMessage, ll logrus.Level) error

// Function sends a single payload on the given key expression.
type Function func(ctx context.Context, key string, payload []byte) error

var configParseFunctions = make(map[string]configParseFunction)
var publishFunctions = make(map[string]Function)

var mu sync.RWMutex
var active = make(map[string]Function) // publishers that accepted their configuration

// RegisterConfigFunction is called as a side-effect of importing a publisher module. It accepts a lambda that will have
// all related configuration passed to it.
func RegisterConfigFunction(name string, f configParseFunction) {
	configParseFunctions[name] = f
}

// RegisterPublishFunction is called as a side-effect of importing a publisher module, providing the function used to
// send each message once the module is configured.
func RegisterPublishFunction(name string, f Function) {
	publishFunctions[name] = f
}

// Initialise distributes configuration to the imported publisher modules. Any module failing to accept its
// configuration is an error, as is a configuration that matches no module.
func Initialise(config json.RawMessage, ll logrus.Level) error {

	log = logger.New("publish", ll)

	log.Debug("Parsing publish configuration")

	// Unpack JSON only one level to allow plugins to define their own schema
	var C map[string]json.RawMessage
	if err := json.Unmarshal(config, &C); err != nil {
		return errors.Wrap(err, "could not parse publisher configuration collection")
	}

	configured := make(map[string]Function)
	for publisherName, rawConfig := range C {

		// If we don't have any publisher plugins by this name then skip it
		f, ok := configParseFunctions[publisherName]
		if !ok {
			log.WithField("config name", publisherName).
				Warn("Found unused publisher config")
			continue
		}
		p, ok := publishFunctions[publisherName]
		if !ok {
			return errors.Errorf("publisher module %v registered no publish function", publisherName)
		}

		log.WithField("name", publisherName).
			Debug("Configuring publisher module")
		if err := f(rawConfig, ll); err != nil {
			return errors.Wrapf(err, "could not configure %v publisher", publisherName)
		}
		configured[publisherName] = p
	}

	if len(configured) == 0 {
		return errors.New("No configuration matched known publisher modules")
	}

	mu.Lock()
	active = configured
	mu.Unlock()
	log.Debug("Configured publishers")
	return nil
}

// Publish sends the payload through every configured publisher in parallel. If ctx carries a deadline, 250ms of it
// are reserved so that results can be gathered before it expires.
func Publish(ctx context.Context, key string, payload []byte) error {

	mu.RLock()
	publishers := active
	mu.RUnlock()

	if len(publishers) == 0 {
		return errors.New("no publishers configured")
	}

	childCtx := ctx
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		childCtx, cancel = context.WithDeadline(ctx, deadline.Add(-250*time.Millisecond))
		defer cancel()
	}

	type result struct {
		name string
		err  error
	}
	// Buffered so that publishers finishing after we've given up don't leak.
	var aggResult = make(chan result, len(publishers))
	for name, f := range publishers {
		go func(name string, f Function) {
			aggResult <- result{name, f(childCtx, key, payload)}
		}(name, f)
	}

	var failed []string
	for i := 0; i < len(publishers); i++ {
		select {
		case r := <-aggResult:
			if r.err != nil {
				log.WithError(r.err).
					WithField("publisher", r.name).
					Warn("Received publish function error")
				failed = append(failed, r.name)
			}
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "not all publish functions responded before deadline expired")
		}
	}
	if len(failed) > 0 {
		return errors.Errorf("publish failed on %v", failed)
	}
	return nil
}

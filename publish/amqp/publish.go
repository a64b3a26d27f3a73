package amqp

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/alowde/dtracker/logger"
	"github.com/alowde/dtracker/publish"
)

// Broker holds the configuration and state of the AMQP broker
var Broker = &broker{}

var log = logger.New("amqpPublish", logrus.WarnLevel)

func initialise(config json.RawMessage, ll logrus.Level) error {

	log = logger.New("amqpPublish", ll)

	log.Debug("Initialising publisher")
	Broker = &broker{}
	if err := json.Unmarshal(config, Broker); err != nil {
		return errors.Wrap(err, "could not parse configuration")
	}
	if err := Broker.validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	log.Debug("Connecting to AMQP broker")
	if err := Broker.connect(); err != nil {
		return errors.Wrap(err, "error connecting to AMQP broker")
	}
	return nil
}

// send is a thin wrapper around the Broker
func send(ctx context.Context, key string, payload []byte) error {
	return Broker.send(ctx, key, payload)
}

func init() {
	publish.RegisterConfigFunction("amqp", initialise)
	publish.RegisterPublishFunction("amqp", send)
}

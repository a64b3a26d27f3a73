// Package mqtt publishes distance alerts to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/alowde/dtracker/logger"
	"github.com/alowde/dtracker/node"
	"github.com/alowde/dtracker/pkg/keyexpr"
	"github.com/alowde/dtracker/publish"
)

var log = logger.New("mqttPublish", logrus.WarnLevel)

// Config contains all data used to connect to an MQTT broker.
type Config struct {
	Broker  string `json:"broker"`
	User    string `json:"user"`
	Pass    string `json:"pass"`
	QoS     byte   `json:"qos"`
	Retain  bool   `json:"retain"`
	Timeout int    `json:"timeout"` // seconds to wait for connect and each publish
}

var (
	config Config
	client paho.Client
)

func initialise(raw json.RawMessage, ll logrus.Level) error {

	log = logger.New("mqttPublish", ll)

	config = Config{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &config); err != nil {
			return errors.Wrap(err, "could not parse configuration")
		}
	}
	if config.Broker == "" {
		config.Broker = "tcp://127.0.0.1:1883"
	}
	if config.QoS > 2 {
		return errors.Errorf("invalid qos %v", config.QoS)
	}
	if config.Timeout <= 0 {
		config.Timeout = 5
	}

	opts := paho.NewClientOptions().
		AddBroker(config.Broker).
		SetClientID(node.Self.ClientID() + "-pub").
		SetUsername(config.User).
		SetPassword(config.Pass).
		SetAutoReconnect(false).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.WithError(err).Warn("MQTT connection lost")
		})
	client = paho.NewClient(opts)

	log.WithField("broker", config.Broker).Debug("Connecting to MQTT broker")
	t := client.Connect()
	if !t.WaitTimeout(time.Duration(config.Timeout) * time.Second) {
		return errors.New("timed out connecting to MQTT broker")
	}
	if err := t.Error(); err != nil {
		return errors.Wrapf(err, "could not connect to MQTT broker at %v", config.Broker)
	}
	return nil
}

func send(ctx context.Context, key string, payload []byte) error {
	topic, err := keyexpr.MQTT(key)
	if err != nil {
		return errors.Wrap(err, "could not translate publish key")
	}
	if !client.IsConnectionOpen() {
		return errors.New("MQTT connection is not open")
	}
	t := client.Publish(topic, config.QoS, config.Retain, payload)
	select {
	case <-t.Done():
	case <-ctx.Done():
		return errors.New("deadline expired while publishing to mqtt")
	case <-time.After(time.Duration(config.Timeout) * time.Second):
		return errors.New("timed out publishing to mqtt")
	}
	if err := t.Error(); err != nil {
		return errors.Wrapf(err, "could not publish to %v", topic)
	}
	return nil
}

func init() {
	publish.RegisterConfigFunction("mqtt", initialise)
	publish.RegisterPublishFunction("mqtt", send)
}

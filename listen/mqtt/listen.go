// Package mqtt subscribes to position reports on an MQTT broker.
package mqtt

import (
	"encoding/json"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/alowde/dtracker/heartbeat"
	"github.com/alowde/dtracker/listen"
	"github.com/alowde/dtracker/logger"
	"github.com/alowde/dtracker/node"
	"github.com/alowde/dtracker/pkg/keyexpr"
)

var log = logger.New("mqttListen", logrus.WarnLevel)

// Config contains all data used to connect to an MQTT broker.
type Config struct {
	Broker  string `json:"broker"` // e.g. tcp://localhost:1883
	User    string `json:"user"`
	Pass    string `json:"pass"`
	QoS     byte   `json:"qos"`
	Timeout int    `json:"timeout"` // seconds to wait for connect and subscribe
	Buffer  int    `json:"buffer"`
}

func (c *Config) validate() error {
	if c.Broker == "" {
		c.Broker = "tcp://127.0.0.1:1883"
	}
	if c.QoS > 2 {
		return errors.Errorf("invalid qos %v", c.QoS)
	}
	if c.Timeout <= 0 {
		c.Timeout = 5
	}
	if c.Buffer <= 0 {
		c.Buffer = 1024
	}
	return nil
}

func parse(config json.RawMessage, key string) (c Config, topic string, err error) {
	if len(config) > 0 {
		if err = json.Unmarshal(config, &c); err != nil {
			return c, "", errors.Wrap(err, "unable to parse MQTT config")
		}
	}
	if err = c.validate(); err != nil {
		return c, "", errors.Wrap(err, "could not validate config")
	}
	if topic, err = keyexpr.MQTT(key); err != nil {
		return c, "", errors.Wrap(err, "could not translate subscription key")
	}
	return c, topic, nil
}

// wait blocks on a paho token for at most timeout.
func wait(t paho.Token, timeout time.Duration) error {
	if !t.WaitTimeout(timeout) {
		return errors.New("timed out waiting for MQTT broker")
	}
	return t.Error()
}

func initialise(config json.RawMessage, key string, ll logrus.Level) (result chan error, inbox chan listen.Message, err error) {

	log = logger.New("mqttListen", ll)

	log.Debug("Initialising MQTT listener")
	c, topic, err := parse(config, key)
	if err != nil {
		return nil, nil, errors.Wrap(err, "could not initialise listener")
	}

	lost := make(chan error, 1)
	msgs := make(chan paho.Message, c.Buffer)

	opts := paho.NewClientOptions().
		AddBroker(c.Broker).
		SetClientID(node.Self.ClientID() + "-sub").
		SetUsername(c.User).
		SetPassword(c.Pass).
		SetAutoReconnect(false).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			lost <- err
		})
	client := paho.NewClient(opts)
	timeout := time.Duration(c.Timeout) * time.Second
	if err := wait(client.Connect(), timeout); err != nil {
		return nil, nil, errors.Wrapf(err, "could not connect to MQTT broker at %v", c.Broker)
	}
	if err := wait(client.Subscribe(topic, c.QoS, func(_ paho.Client, m paho.Message) {
		msgs <- m
	}), timeout); err != nil {
		client.Disconnect(250)
		return nil, nil, errors.Wrapf(err, "could not subscribe to %v", topic)
	}
	log.WithField("topic", topic).Info("listening for position reports")

	result = make(chan error, 10)
	inbox = make(chan listen.Message)
	go forward(msgs, lost, result, inbox)
	return result, inbox, nil
}

// forward passes each message to the inbox, reporting RoutineNormal while idle, until the connection is lost.
func forward(msgs <-chan paho.Message, lost <-chan error, result chan error, inbox chan listen.Message) {
	normal := time.NewTicker(15 * time.Second)
	defer normal.Stop()
	for {
		select {
		case <-normal.C:
			heartbeat.Report(result, heartbeat.NewRoutineNormal("mqtt listener"))
		case err := <-lost:
			heartbeat.Report(result, errors.Wrap(err, "MQTT connection lost"))
			return
		case m := <-msgs:
			log.WithField("topic", m.Topic()).Debug("received a message")
			inbox <- listen.Message{Key: m.Topic(), Payload: m.Payload()}
		}
	}
}

func init() {
	listen.RegisterConfigFunction("mqtt", initialise)
}

package amqp

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/alowde/dtracker/listen"
	"github.com/alowde/dtracker/logger"
	"github.com/alowde/dtracker/pkg/keyexpr"
)

var log = logger.New("amqpListen", logrus.WarnLevel)

// Config contains all data used to connect to an AMQP broker.
type Config struct {
	Host     string `json:"host"`
	User     string `json:"user"`
	Pass     string `json:"pass"`
	Scheme   string `json:"scheme"`
	Port     int    `json:"port"`
	VHost    string `json:"vhost"`
	Exchange string `json:"exchange"` // exchange name
}

func (c *Config) validate() error {
	if len(c.Host) <= 0 {
		return fmt.Errorf("invalid host field")
	}
	if len(c.User) <= 0 {
		return fmt.Errorf("invalid user field")
	}
	if len(c.Pass) <= 0 {
		return fmt.Errorf("invalid pass field")
	}
	if c.Scheme == "" {
		c.Scheme = "amqp"
	}
	if c.Port == 0 {
		c.Port = 5672
	}
	if c.Exchange == "" {
		c.Exchange = "dtracker"
	}
	return nil
}

func (c Config) uri() string {
	return fmt.Sprintf("%v://%v:%v@%v:%v/%v", c.Scheme, c.User, c.Pass, c.Host, c.Port, c.VHost)
}

// initialise turns the provided config into a validated broker, connects, and spawns a routine forwarding every
// delivery bound to the key expression.
func initialise(config json.RawMessage, key string, ll logrus.Level) (result chan error, inbox chan listen.Message, err error) {

	log = logger.New("amqpListen", ll)

	log.Debug("Initialising AMQP listener")
	b, err := newBroker(config, key)
	if err != nil {
		return nil, nil, errors.Wrap(err, "could not initialise listener")
	}
	// Connecting here helps detect issues early
	if err := b.connect(); err != nil {
		return nil, nil, errors.Wrap(err, "error while connecting listener")
	}

	result = make(chan error, 10)
	inbox = make(chan listen.Message)

	if err := b.listen(result, inbox); err != nil {
		return nil, nil, errors.Wrap(err, "error while calling listen function")
	}
	log.Debug("Completed AMQP listener configuration")
	return result, inbox, nil
}

// broker is an active instance of an AMQP broker connection.
type broker struct {
	Config                      // broker configuration
	bindingKey string           // key expression translated to AMQP topic syntax
	connection *amqp.Connection // broker connection object
	achannel   *amqp.Channel    // default AMQP channel
	closed     chan *amqp.Error // connection closed notification
}

// newBroker parses and validates an AMQP listener configuration.
func newBroker(config []byte, key string) (*broker, error) {
	var b broker
	var c Config
	if err := json.Unmarshal(config, &c); err != nil {
		return nil, errors.Wrap(err, "unable to parse AMQP config")
	}
	if err := c.validate(); err != nil {
		return nil, errors.Wrap(err, "could not validate config")
	}
	bindingKey, err := keyexpr.AMQP(key)
	if err != nil {
		return nil, errors.Wrap(err, "could not translate subscription key")
	}
	b.Config = c
	b.bindingKey = bindingKey
	return &b, nil
}

func init() {
	listen.RegisterConfigFunction("amqp", initialise)
}

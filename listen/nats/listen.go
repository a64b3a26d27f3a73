// Package nats subscribes to position reports on a NATS server.
package nats

import (
	"encoding/json"
	"time"

	gonats "github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/alowde/dtracker/heartbeat"
	"github.com/alowde/dtracker/listen"
	"github.com/alowde/dtracker/logger"
	"github.com/alowde/dtracker/node"
	"github.com/alowde/dtracker/pkg/keyexpr"
)

var log = logger.New("natsListen", logrus.WarnLevel)

// Config contains all data used to connect to a NATS server.
type Config struct {
	URL           string `json:"url"`
	User          string `json:"user"`
	Pass          string `json:"pass"`
	Token         string `json:"token"`
	MaxReconnects *int   `json:"max-reconnects"` // nil keeps the client default, negative retries forever
	Buffer        int    `json:"buffer"`         // pending messages held between the client and the ingest loop
}

func (c *Config) validate() error {
	if c.URL == "" {
		c.URL = gonats.DefaultURL
	}
	if c.User != "" && c.Token != "" {
		return errors.New("user and token authentication are mutually exclusive")
	}
	if c.Buffer < 0 {
		return errors.New("invalid buffer field")
	}
	if c.Buffer == 0 {
		c.Buffer = 1024
	}
	return nil
}

func (c Config) options(closed chan struct{}) []gonats.Option {
	opts := []gonats.Option{
		gonats.Name(node.Self.ClientID()),
		gonats.ClosedHandler(func(*gonats.Conn) {
			close(closed)
		}),
		gonats.DisconnectErrHandler(func(_ *gonats.Conn, err error) {
			log.WithError(err).Warn("disconnected from NATS server")
		}),
		gonats.ReconnectHandler(func(nc *gonats.Conn) {
			log.WithField("url", nc.ConnectedUrl()).Info("reconnected to NATS server")
		}),
	}
	if c.User != "" {
		opts = append(opts, gonats.UserInfo(c.User, c.Pass))
	}
	if c.Token != "" {
		opts = append(opts, gonats.Token(c.Token))
	}
	if c.MaxReconnects != nil {
		opts = append(opts, gonats.MaxReconnects(*c.MaxReconnects))
	}
	return opts
}

func parse(config json.RawMessage, key string) (c Config, subject string, err error) {
	if len(config) > 0 {
		if err = json.Unmarshal(config, &c); err != nil {
			return c, "", errors.Wrap(err, "unable to parse NATS config")
		}
	}
	if err = c.validate(); err != nil {
		return c, "", errors.Wrap(err, "could not validate config")
	}
	if subject, err = keyexpr.NATS(key); err != nil {
		return c, "", errors.Wrap(err, "could not translate subscription key")
	}
	return c, subject, nil
}

func initialise(config json.RawMessage, key string, ll logrus.Level) (result chan error, inbox chan listen.Message, err error) {

	log = logger.New("natsListen", ll)

	log.Debug("Initialising NATS listener")
	c, subject, err := parse(config, key)
	if err != nil {
		return nil, nil, errors.Wrap(err, "could not initialise listener")
	}

	closed := make(chan struct{})
	conn, err := gonats.Connect(c.URL, c.options(closed)...)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "could not connect to NATS server at %v", c.URL)
	}

	msgs := make(chan *gonats.Msg, c.Buffer)
	if _, err := conn.ChanSubscribe(subject, msgs); err != nil {
		conn.Close()
		return nil, nil, errors.Wrapf(err, "could not subscribe to %v", subject)
	}
	log.WithField("subject", subject).Info("listening for position reports")

	result = make(chan error, 10)
	inbox = make(chan listen.Message)
	go forward(msgs, closed, result, inbox)
	return result, inbox, nil
}

// forward passes each message to the inbox, reporting RoutineNormal while idle, until the connection is closed for
// good.
func forward(msgs <-chan *gonats.Msg, closed <-chan struct{}, result chan error, inbox chan listen.Message) {
	normal := time.NewTicker(15 * time.Second)
	defer normal.Stop()
	for {
		select {
		case <-normal.C:
			heartbeat.Report(result, heartbeat.NewRoutineNormal("nats listener"))
		case <-closed:
			heartbeat.Report(result, errors.New("NATS connection closed"))
			return
		case m := <-msgs:
			log.WithField("subject", m.Subject).Debug("received a message")
			inbox <- listen.Message{Key: m.Subject, Payload: m.Data}
		}
	}
}

func init() {
	listen.RegisterConfigFunction("nats", initialise)
}

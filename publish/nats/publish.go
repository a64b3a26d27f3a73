// Package nats publishes distance alerts to a NATS server.
package nats

import (
	"context"
	"encoding/json"

	gonats "github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/alowde/dtracker/logger"
	"github.com/alowde/dtracker/node"
	"github.com/alowde/dtracker/pkg/keyexpr"
	"github.com/alowde/dtracker/publish"
)

var log = logger.New("natsPublish", logrus.WarnLevel)

// Config contains all data used to connect to a NATS server.
type Config struct {
	URL   string `json:"url"`
	User  string `json:"user"`
	Pass  string `json:"pass"`
	Token string `json:"token"`
	Flush bool   `json:"flush"` // wait for the server to acknowledge each publish
}

// conn is the subset of *gonats.Conn used for publishing.
type conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	IsClosed() bool
}

var (
	config Config
	nc     conn
)

func initialise(raw json.RawMessage, ll logrus.Level) error {

	log = logger.New("natsPublish", ll)

	config = Config{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &config); err != nil {
			return errors.Wrap(err, "could not parse configuration")
		}
	}
	if config.URL == "" {
		config.URL = gonats.DefaultURL
	}
	if config.User != "" && config.Token != "" {
		return errors.New("user and token authentication are mutually exclusive")
	}

	opts := []gonats.Option{
		gonats.Name(node.Self.ClientID()),
		gonats.DisconnectErrHandler(func(_ *gonats.Conn, err error) {
			log.WithError(err).Warn("disconnected from NATS server")
		}),
	}
	if config.User != "" {
		opts = append(opts, gonats.UserInfo(config.User, config.Pass))
	}
	if config.Token != "" {
		opts = append(opts, gonats.Token(config.Token))
	}

	log.WithField("url", config.URL).Debug("Connecting to NATS server")
	c, err := gonats.Connect(config.URL, opts...)
	if err != nil {
		return errors.Wrapf(err, "could not connect to NATS server at %v", config.URL)
	}
	nc = c
	return nil
}

func send(ctx context.Context, key string, payload []byte) error {
	subject, err := keyexpr.NATS(key)
	if err != nil {
		return errors.Wrap(err, "could not translate publish key")
	}
	if nc.IsClosed() {
		return errors.New("NATS connection closed")
	}
	if err := nc.Publish(subject, payload); err != nil {
		return errors.Wrapf(err, "could not publish to %v", subject)
	}
	if config.Flush {
		if err := nc.FlushWithContext(ctx); err != nil {
			return errors.Wrap(err, "could not flush NATS connection")
		}
	}
	return nil
}

func init() {
	publish.RegisterConfigFunction("nats", initialise)
	publish.RegisterPublishFunction("nats", send)
}

// Package node holds the identity this process presents to brokers and in its logs.
package node

import (
	"encoding/json"
	"net"
	"os"

	"github.com/ccding/go-stun/stun"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/alowde/dtracker/logger"
)

type Node struct {
	ID   string
	EIP  net.IP
	Name string
}

// ClientID is a broker-safe identifier for this node, used as MQTT client ID, AMQP consumer tag and NATS
// connection name.
func (n Node) ClientID() string {
	return "dtracker-" + n.ID
}

// Config is the optional "node" configuration block.
type Config struct {
	DiscoverIP bool `json:"discover-ip"`
}

var Self Node

var log *logrus.Entry

// discover is swapped out in tests.
var discover = func() (string, error) {
	_, host, err := stun.NewClient().Discover()
	if err != nil {
		return "", err
	}
	if host == nil {
		return "", errors.New("STUN server returned no mapped address")
	}
	return host.IP(), nil
}

// Initialise generates this node's identity. The external address is only looked up when the configuration asks for
// it, and failing to find it isn't fatal: it's informational only.
func Initialise(config json.RawMessage, ll logrus.Level) error {

	log = logger.New("node", ll)

	var c Config
	if len(config) > 0 {
		if err := json.Unmarshal(config, &c); err != nil {
			return errors.Wrap(err, "could not parse node configuration")
		}
	}

	Self.ID = uuid.NewString()
	log.WithField("nodeID", Self.ID).Debug("Setting ID")

	if name, err := os.Hostname(); err == nil {
		Self.Name = name
	} else {
		log.WithError(err).Warn("could not determine hostname")
	}

	if !c.DiscoverIP {
		return nil
	}
	log.Debug("Attempting to determine external IP address")
	addr, err := discover()
	if err != nil {
		log.WithError(err).Warn("failed to discover external IP address")
		return nil
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		log.WithField("address", addr).Warn("STUN returned unparseable address")
		return nil
	}
	log.WithField("ipAddress", ip).Debug("Determined external IP address")
	Self.EIP = ip
	return nil
}

// Fields returns the node identity as log fields.
func Fields() logrus.Fields {
	return logrus.Fields{
		"nodeID":   Self.ID,
		"nodeName": Self.Name,
		"nodeIP":   Self.EIP,
	}
}

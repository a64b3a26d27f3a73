package amqp

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/alowde/dtracker/pkg/keyexpr"
)

// channel is the subset of *amqp.Channel used for publishing.
type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// broker contains all of the information required to connect to an AMQP broker.
type broker struct {
	connection *amqp.Connection // broker connection object
	achannel   channel          // default AMQP channel
	closed     chan *amqp.Error // channel closed notification
	Host       string           `json:"host"`
	User       string           `json:"user"`
	Pass       string           `json:"pass"`
	Scheme     string           `json:"scheme"`
	Port       int              `json:"port"`
	VHost      string           `json:"vhost"`
	Exchange   string           `json:"exchange"` // exchange name
}

// connect establishes connection for AMQP broker.
func (b *broker) connect() error {
	var err error
	uri := fmt.Sprintf(
		"%v://%v:%v@%v:%v/%v",
		b.Scheme,
		b.User,
		b.Pass,
		b.Host,
		b.Port,
		b.VHost,
	)
	if b.connection, err = amqp.Dial(uri); err != nil {
		log.WithFields(logrus.Fields{
			"host":  b.Host,
			"error": err,
		}).Warn("error while dialling AMQP broker")
		return errors.Wrap(err, "while dialling AMQP broker")
	}
	ch, err := b.connection.Channel()
	if err != nil {
		return errors.Wrap(err, "could not open AMQP channel")
	}
	// Best practice for AMQP is to unconditionally declare the exchange on connection
	if err = ch.ExchangeDeclare(
		b.Exchange, // name of the exchange
		"topic",    // type is always topic
		true,       // durable
		false,      // delete when complete
		false,      // internal
		false,      // noWait
		nil,        // arguments
	); err != nil {
		return errors.Wrap(err, "could not declare AMQP exchange")
	}
	b.closed = make(chan *amqp.Error, 1)
	ch.NotifyClose(b.closed)
	b.achannel = ch

	return nil
}

func (b *broker) validate() error {
	if b.Host == "" {
		return errors.New("missing host field")
	}
	if b.User == "" {
		return errors.New("missing user field")
	}
	if b.Pass == "" {
		return errors.New("missing pass field")
	}
	if b.Scheme == "" {
		b.Scheme = "amqp"
	}
	if b.Port == 0 {
		b.Port = 5672
	}
	if b.Exchange == "" {
		b.Exchange = "dtracker"
	}
	return nil
}

// send publishes a single JSON message. There's no reconnection: once the channel has closed every send fails.
func (b *broker) send(ctx context.Context, key string, msg []byte) error {

	routingKey, err := keyexpr.AMQP(key)
	if err != nil {
		return errors.Wrap(err, "could not translate publish key")
	}

	amqpMsg := amqp.Publishing{
		DeliveryMode: amqp.Transient,
		Timestamp:    time.Now(),
		ContentType:  "application/json",
		Body:         msg,
	}

	select {
	case <-ctx.Done():
		return errors.New("deadline expired while publishing to amqp")
	case e, ok := <-b.closed:
		if ok && e != nil {
			return errors.Wrap(e, "AMQP channel closed")
		}
		return errors.New("AMQP channel closed")
	default:
	}
	// Note! The amqp Publish method is blocking and in theory could outlive ctx
	if err := b.achannel.Publish(b.Exchange, routingKey, false, false, amqpMsg); err != nil {
		log.WithError(err).
			WithField("routingKey", routingKey).
			Warn("received error while publishing message")
		return errors.Wrap(err, "could not publish to amqp")
	}
	return nil
}

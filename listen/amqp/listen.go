package amqp

import (
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/alowde/dtracker/heartbeat"
	"github.com/alowde/dtracker/listen"
	"github.com/alowde/dtracker/node"
)

// connect establishes connection for AMQP broker.
func (b *broker) connect() error {
	var err error
	if b.connection, err = amqp.Dial(b.uri()); err != nil {
		return errors.Wrap(err, "could not connect to AMQP broker")
	}

	b.closed = make(chan *amqp.Error, 1)
	b.connection.NotifyClose(b.closed)

	if b.achannel, err = b.connection.Channel(); err != nil {
		return errors.Wrap(err, "could not open AMQP channel")
	}

	// Declare the exchange now just in case it isn't present
	if err = b.achannel.ExchangeDeclare(
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
	return nil
}

// listen declares and binds a private queue and launches the forwarding routine.
func (b *broker) listen(result chan error, inbox chan listen.Message) error {
	// declare a queue on the AMQP broker
	queue, err := b.achannel.QueueDeclare(
		"",    // Ask server to generate a name
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // noWait
		nil,   // arguments
	)
	if err != nil {
		return errors.Wrap(err, "unable to declare an AMQP queue")
	}
	// bind that queue to the exchange with the subscription key
	if err = b.achannel.QueueBind(
		queue.Name,   // name of the queue
		b.bindingKey, // bindingKey
		b.Exchange,   // sourceExchange
		false,        // noWait
		nil,          // arguments
	); err != nil {
		return errors.Wrap(err, "unable to bind to AMQP queue")
	}
	// receive AMQP messages on a new Go channel
	deliveries, err := b.achannel.Consume(
		queue.Name,           // name
		node.Self.ClientID(), // consumerTag
		true,                 // auto acknowledge, a lost report is superseded by the next one
		true,                 // exclusive
		false,                // option not supported
		false,                // receive deliveries immediately
		nil,                  // arguments
	)
	if err != nil {
		return errors.Wrap(err, "unable to consume from AMQP queue")
	}
	log.WithFields(logrus.Fields{
		"queue":   queue.Name,
		"binding": b.bindingKey,
	}).Info("listening for position reports")
	go forward(deliveries, b.closed, result, inbox)
	return nil
}

// forward passes each delivery body to the inbox, reporting RoutineNormal while idle. It returns once the broker
// closes the connection, reporting the reason as an error.
func forward(deliveries <-chan amqp.Delivery, closed <-chan *amqp.Error, result chan error, inbox chan listen.Message) {
	normal := time.NewTicker(15 * time.Second)
	defer normal.Stop()
	for {
		select {
		case <-normal.C:
			heartbeat.Report(result, heartbeat.NewRoutineNormal("amqp listener"))
		case d, ok := <-deliveries:
			if !ok {
				reason := errors.New("AMQP delivery channel closed")
				select {
				case e := <-closed:
					if e != nil {
						reason = errors.Wrap(e, "AMQP connection closed")
					}
				case <-time.After(time.Second):
				}
				heartbeat.Report(result, reason)
				return
			}
			log.WithField("routingKey", d.RoutingKey).Debug("received a delivery")
			inbox <- listen.Message{Key: d.RoutingKey, Payload: d.Body}
		}
	}
}

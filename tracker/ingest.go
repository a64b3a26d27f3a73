package tracker

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/alowde/dtracker/heartbeat"
	"github.com/alowde/dtracker/listen"
	"github.com/alowde/dtracker/metrics"
)

// Ingester decodes position reports and stores them in a Table.
type Ingester struct {
	Table   *Table
	Metrics *metrics.Collector
	Log     *logrus.Entry
}

// Handle decodes one message and upserts it. A message that doesn't decode leaves the table untouched.
func (in *Ingester) Handle(m listen.Message) error {
	e, err := Decode(m.Payload)
	if err != nil {
		in.Metrics.ReportsRejected.Inc()
		return err
	}
	in.Table.Upsert(e)
	in.Metrics.ReportsReceived.Inc()
	return nil
}

// Run handles messages from inbox one at a time until ctx is done. Malformed messages are logged and skipped. A
// closed inbox means the subscription is gone, which is returned as an error. RoutineNormal is reported on status at
// least every 15 seconds while the loop is healthy.
func (in *Ingester) Run(ctx context.Context, inbox <-chan listen.Message, status chan<- error) error {
	normal := time.NewTicker(15 * time.Second)
	defer normal.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-normal.C:
			heartbeat.Report(status, heartbeat.NewRoutineNormal("ingest"))
		case m, ok := <-inbox:
			if !ok {
				return errors.New("inbox closed, no more position reports can arrive")
			}
			if err := in.Handle(m); err != nil {
				in.Log.WithError(err).
					WithFields(logrus.Fields{
						"key":     m.Key,
						"payload": string(m.Payload),
					}).Warn("failed to decode a position report, skipping")
				continue
			}
			in.Log.WithField("key", m.Key).Debug("stored a position report")
		}
	}
}

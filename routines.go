package main

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/alowde/dtracker/alert"
	"github.com/alowde/dtracker/config"
	"github.com/alowde/dtracker/heartbeat"
	"github.com/alowde/dtracker/listen"
	"github.com/alowde/dtracker/logger"
	"github.com/alowde/dtracker/metrics"
	"github.com/alowde/dtracker/pkg/flags"
	"github.com/alowde/dtracker/publish"
	"github.com/alowde/dtracker/tracker"
)

// routine holds the status of a long running concurrent routine
type routine struct {
	status      chan error
	lastCheckin time.Time
	quiet       bool // the routine only ever reports failure, so silence isn't a timeout
}

func (r *routine) check() error {
	for {
		// Iterate over all buffered messages in channel
		select {
		case statusMessage, ok := <-r.status:
			if !ok {
				return errors.New("status channel closed")
			}
			status, normal := statusMessage.(heartbeat.RoutineNormal)
			// If we receive a statusMessage and it's not "RoutineNormal" it's an error, so we return it
			if !normal {
				return statusMessage
			}
			// Otherwise it's a RoutineNormal so update the last checkin time. Because channels are FIFO we can just
			// update each time.
			r.lastCheckin = status.Timestamp
		default:
			// Once we've received all status messages then check if we've received one recently enough. If not
			// raise an error as the routine is considered to have timed out
			if !r.quiet && time.Since(r.lastCheckin) > heartbeat.TimeoutAfter {
				log.Infof("Current time %v, timestamp %v", time.Now(), r.lastCheckin)
				return heartbeat.NewTimeout(r.lastCheckin)
			}
			return nil
		}
	}
}

// newRoutine returns a new routine
func newRoutine() *routine {
	return &routine{
		status:      make(chan error, 10),
		lastCheckin: time.Now(),
	}
}

type routines map[string]*routine

func newRoutines() routines {
	r := make(map[string]*routine)
	r["listen"] = newRoutine()
	r["ingest"] = newRoutine()
	r["evaluate"] = newRoutine()
	return r
}

// start initialises the transports and contacts, then launches the ingest and evaluate loops. Every routine reports
// to its own status channel, which check drains.
func (r routines) start(ctx context.Context, conf *config.Skeleton, tc tracker.Config, collector *metrics.Collector) (err error) {

	var inbox chan listen.Message

	r["listen"].status, inbox, err = listen.Initialise(conf.Listen, tc.SubKey, flags.ListenLog.Level)
	if err != nil {
		return errors.Wrap(err, "could not initialise listen functions")
	}

	// Publish and alert provide only blocking methods and so don't need a watchdog
	if err = publish.Initialise(conf.Publish, flags.PubLog.Level); err != nil {
		return errors.Wrap(err, "could not initialise publish functions")
	}

	if err = alert.Initialise(conf.Contacts, conf.Alert, flags.AlertLog.Level); err != nil {
		return errors.Wrap(err, "could not initialise alert function")
	}

	served, err := collector.Serve(conf.Metrics, flags.MetricsLog.Level)
	if err != nil {
		return errors.Wrap(err, "could not initialise metrics endpoint")
	}
	if served != nil {
		r["metrics"] = &routine{status: served, lastCheckin: time.Now(), quiet: true}
	}

	table := tracker.NewTable()

	in := &tracker.Ingester{
		Table:   table,
		Metrics: collector,
		Log:     logger.New("ingest", flags.IngestLog.Level),
	}
	ev := &tracker.Evaluator{
		Table:      table,
		Thresholds: tc.Thresholds,
		Period:     tc.Period,
		Key:        tc.PubKey,
		Publish:    publish.Publish,
		Notify:     alert.Notify,
		Metrics:    collector,
		Log:        logger.New("evaluate", flags.EvalLog.Level),
	}

	go run(r["ingest"].status, func(status chan<- error) error { return in.Run(ctx, inbox, status) })
	go run(r["evaluate"].status, func(status chan<- error) error { return ev.Run(ctx, status) })
	return nil
}

// run executes a loop and reports its failure, if any, to the watchdog.
func run(status chan error, loop func(chan<- error) error) {
	if err := loop(status); err != nil {
		heartbeat.Report(status, err)
	}
}

func (r routines) check() error {
	for name, v := range r {
		if err := v.check(); err != nil {
			return errors.Wrapf(err, "from routine %v", name)
		}
	}
	return nil
}

// watch checks every routine each interval and returns the first failure.
func (r routines) watch(interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		if err := r.check(); err != nil {
			return err
		}
	}
	return nil
}

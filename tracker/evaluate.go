package tracker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/alowde/dtracker/alert"
	"github.com/alowde/dtracker/heartbeat"
	"github.com/alowde/dtracker/metrics"
)

// DefaultPublishTimeout bounds each alert publication when the Evaluator doesn't set one.
const DefaultPublishTimeout = 10 * time.Second

// PublishFunc sends one payload on a key expression.
type PublishFunc func(ctx context.Context, key string, payload []byte) error

// Evaluator periodically computes the distance between every pair of entities in a Table and publishes an alert for
// each threshold crossing.
type Evaluator struct {
	Table          *Table
	Thresholds     alert.Thresholds
	Period         time.Duration
	Key            string // key expression alerts are published on
	Publish        PublishFunc
	PublishTimeout time.Duration
	Notify         func(alert.Alert) int // optional out-of-band notification of published alerts, returns sends
	Metrics        *metrics.Collector
	Log            *logrus.Entry
}

// ForEachPair calls fn exactly once for every unordered pair of distinct entities in s. The order of a and b follows
// map iteration and is not stable between calls.
func ForEachPair(s Snapshot, fn func(a, b EntityState)) {
	entities := make([]EntityState, 0, len(s))
	for _, e := range s {
		entities = append(entities, e)
	}
	for i := 0; i < len(entities); i++ {
		for j := i + 1; j < len(entities); j++ {
			fn(entities[i], entities[j])
		}
	}
}

// Evaluate returns every threshold crossing in s, along with the number of pairs considered.
func Evaluate(s Snapshot, th alert.Thresholds, log *logrus.Entry) (alerts []alert.Alert, pairs int) {
	ForEachPair(s, func(a, b EntityState) {
		pairs++
		d := Distance(a.Position, b.Position)
		kinds := th.Classify(d)
		if len(kinds) == 0 {
			log.WithFields(logrus.Fields{
				"ida":      a.ID,
				"idb":      b.ID,
				"distance": d,
			}).Debug("pair within thresholds")
			return
		}
		for _, k := range kinds {
			alerts = append(alerts, alert.Alert{IDA: a.ID, IDB: b.ID, Distance: d, Kind: k})
		}
	})
	return alerts, pairs
}

// Tick runs one evaluation: detach the table, evaluate every pair, publish the alerts and merge the snapshot back.
// The first publish failure abandons the remaining alerts and is returned; the merge happens regardless so that no
// report is lost.
func (ev *Evaluator) Tick(ctx context.Context) error {
	start := time.Now()
	snapshot := ev.Table.Detach()

	alerts, pairs := Evaluate(snapshot, ev.Thresholds, ev.Log)
	ev.Metrics.PairsEvaluated.Add(float64(pairs))

	published, err := ev.publish(ctx, alerts)

	n := ev.Table.Merge(snapshot)
	ev.Metrics.TrackedEntities.Set(float64(n))
	ev.Metrics.EvalDuration.Observe(time.Since(start).Seconds())

	ev.Log.WithFields(logrus.Fields{
		"entities":  len(snapshot),
		"pairs":     pairs,
		"alerts":    len(alerts),
		"published": published,
		"merged":    n,
	}).Debug("evaluation complete")

	if ev.Notify != nil {
		notified := 0
		for _, a := range alerts[:published] {
			notified += ev.Notify(a)
		}
		if notified > 0 {
			ev.Log.WithField("notifications", notified).Debug("notified contacts")
		}
	}
	return err
}

// publish sends alerts in order, stopping at the first failure. It returns how many were sent.
func (ev *Evaluator) publish(ctx context.Context, alerts []alert.Alert) (int, error) {
	timeout := ev.PublishTimeout
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	for i, a := range alerts {
		payload, err := json.Marshal(a)
		if err != nil {
			return i, errors.Wrap(err, "could not serialise alert")
		}
		pctx, cancel := context.WithTimeout(ctx, timeout)
		err = ev.Publish(pctx, ev.Key, payload)
		cancel()
		if err != nil {
			return i, errors.Wrapf(err, "could not publish %v alert for %v and %v", a.Kind, a.IDA, a.IDB)
		}
		ev.Metrics.AlertsPublished.WithLabelValues(a.Kind.String()).Inc()
		ev.Log.WithFields(logrus.Fields{
			"ida":      a.IDA,
			"idb":      a.IDB,
			"distance": a.Distance,
			"kind":     a.Kind,
		}).Info("published distance alert")
	}
	return len(alerts), nil
}

// Run evaluates the table every Period until ctx is done or a tick fails. A tick starts no earlier than one Period
// after the previous one started; ticks missed while one runs long are skipped. RoutineNormal is reported on status
// after every successful tick.
func (ev *Evaluator) Run(ctx context.Context, status chan<- error) error {
	if ev.Period <= 0 {
		return errors.Errorf("invalid evaluation period %v", ev.Period)
	}
	ticker := time.NewTicker(ev.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := ev.Tick(ctx); err != nil {
				return errors.Wrap(err, "evaluation failed")
			}
			heartbeat.Report(status, heartbeat.NewRoutineNormal("evaluate"))
		}
	}
}

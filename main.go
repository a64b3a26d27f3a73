package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	_ "github.com/alowde/dtracker/alert/smtp"
	"github.com/alowde/dtracker/config"
	_ "github.com/alowde/dtracker/listen/amqp"
	_ "github.com/alowde/dtracker/listen/mqtt"
	_ "github.com/alowde/dtracker/listen/nats"
	"github.com/alowde/dtracker/logger"
	"github.com/alowde/dtracker/metrics"
	"github.com/alowde/dtracker/node"
	"github.com/alowde/dtracker/pkg/flags"
	_ "github.com/alowde/dtracker/publish/amqp"
	_ "github.com/alowde/dtracker/publish/mqtt"
	_ "github.com/alowde/dtracker/publish/nats"
	"github.com/alowde/dtracker/tracker"
)

// checkInterval is how often the watchdog drains the routine status channels.
const checkInterval = 5 * time.Second

var log *logrus.Entry

func init() {
	flags.Create()
}

// trackerConfig parses the tracker block and applies any command line overrides before validating the result.
func trackerConfig(raw json.RawMessage) (tracker.Config, error) {
	c, err := tracker.ParseConfig(raw)
	if err != nil {
		return c, err
	}
	if flags.SubKey.IsSet {
		c.SubKey = flags.SubKey.Value
	}
	if flags.PubKey.IsSet {
		c.PubKey = flags.PubKey.Value
	}
	if flags.MinDistance.IsSet {
		c.Thresholds.MinDistance = flags.MinDistance.Value
	}
	if flags.MaxDistance.IsSet {
		c.Thresholds.MaxDistance = flags.MaxDistance.Value
	}
	if flags.Period.IsSet {
		c.Period = flags.Period.Value
	}
	return c, errors.Wrap(c.Validate(), "invalid tracker configuration")
}

func initialise() (routines, error) {

	flag.Parse()
	flags.Fill()
	logger.JSON = flags.LogFormat == "json"

	log = logger.New("main", flags.MainLog.Level)

	// Retrieve configuration
	conf, err := config.NewSkeleton(flags.ConfigFile, flags.ConfLog.Level)
	if err != nil {
		return nil, errors.Wrap(err, "could not load config")
	}

	if flags.Encrypt {
		if err := conf.Encrypt(); err != nil {
			return nil, errors.Wrap(err, "could not encrypt config")
		}
		out, err := json.MarshalIndent(conf, "", "  ")
		if err != nil {
			return nil, errors.Wrap(err, "could not marshal encrypted config")
		}
		fmt.Println(string(out))
		return nil, nil
	}

	tc, err := trackerConfig(conf.Tracker)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"subKey":      tc.SubKey,
		"pubKey":      tc.PubKey,
		"minDistance": tc.Thresholds.MinDistance,
		"maxDistance": tc.Thresholds.MaxDistance,
		"period":      tc.Period,
	}).Info("Tracker configured")

	if err := node.Initialise(conf.Node, flags.NodeLog.Level); err != nil {
		return nil, errors.Wrap(err, "could not initialise node data")
	}
	log.WithFields(node.Fields()).Info("Node initialised")

	collector, err := metrics.NewCollector(nil)
	if err != nil {
		return nil, errors.Wrap(err, "could not create metrics collector")
	}

	r := newRoutines()
	if err := r.start(context.Background(), conf, tc, collector); err != nil {
		return nil, err
	}
	return r, nil
}

func main() {
	r, err := initialise()
	if err != nil {
		if flags.MainLog.Level == logrus.DebugLevel {
			log.Fatalf("%+v\n", err)
		}
		log.WithError(err).
			Fatal("Failed to initialise")
	}
	if r == nil {
		return
	}
	err = r.watch(checkInterval)
	if flags.MainLog.Level == logrus.DebugLevel {
		log.Fatalf("End! got result %+v", err)
	}
	log.WithError(err).Fatal("End!")
}

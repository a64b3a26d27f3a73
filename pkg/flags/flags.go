package flags

import (
	"flag"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var MainLog LogLevel
var AlertLog, ConfLog, EvalLog, IngestLog, ListenLog, MetricsLog, NodeLog, PubLog LogLevel

// Tracker overrides. Each is only applied when explicitly provided on the command line.
var SubKey, PubKey OptionalString
var MinDistance, MaxDistance OptionalFloat
var Period OptionalDuration

// ConfigFile names a single configuration file to load instead of searching the defaults.
var ConfigFile string

// Encrypt requests that the loaded configuration be printed in encrypted form.
var Encrypt bool

// LogFormat selects "text" or "json" log output.
var LogFormat string

// LogLevel is an abstraction of logrus.Level that can be configured with the flags package
type LogLevel struct {
	logrus.Level
	set bool
}

// Set parses a flag-provided value to a logrus.Level
func (ll *LogLevel) Set(value string) error {
	var err error
	ll.Level, err = logrus.ParseLevel(value)
	if err != nil {
		return errors.Wrap(err, "while setting value from flag")
	}
	ll.set = true
	return nil
}

// String safely returns a string description of the Level
func (ll *LogLevel) String() string {
	if ll == nil {
		return "undefined"
	}
	return ll.Level.String()
}

// Default sets a LogLevel level only if it hasn't already been set
func (ll *LogLevel) Default(value string) error {
	if ll.set {
		return nil
	}
	return ll.Set(value)
}

// OptionalString records whether the flag was given at all, so an explicit empty value can be told apart from
// "use the configuration file".
type OptionalString struct {
	Value string
	IsSet bool
}

func (o *OptionalString) Set(value string) error {
	o.Value = value
	o.IsSet = true
	return nil
}

func (o *OptionalString) String() string {
	if o == nil {
		return ""
	}
	return o.Value
}

// OptionalFloat is the float64 equivalent of OptionalString. "inf" is accepted.
type OptionalFloat struct {
	Value float64
	IsSet bool
}

func (o *OptionalFloat) Set(value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return errors.Wrapf(err, "could not parse %q as a distance", value)
	}
	o.Value = f
	o.IsSet = true
	return nil
}

func (o *OptionalFloat) String() string {
	if o == nil || !o.IsSet {
		return ""
	}
	return strconv.FormatFloat(o.Value, 'g', -1, 64)
}

// OptionalDuration accepts either a Go duration ("750ms") or a bare number of milliseconds.
type OptionalDuration struct {
	Value time.Duration
	IsSet bool
}

func (o *OptionalDuration) Set(value string) error {
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		o.Value = time.Duration(ms) * time.Millisecond
		o.IsSet = true
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return errors.Wrapf(err, "could not parse %q as a period", value)
	}
	o.Value = d
	o.IsSet = true
	return nil
}

func (o *OptionalDuration) String() string {
	if o == nil || !o.IsSet {
		return ""
	}
	return o.Value.String()
}

// Create configures the defined flags
func Create() {
	CreateOn(flag.CommandLine)
}

// CreateOn configures the defined flags on the given FlagSet
func CreateOn(fs *flag.FlagSet) {
	fs.Var(&MainLog, "mainLogLevel", "log level for main routine (debug/info/warn/fatal)")
	fs.Var(&AlertLog, "alertLogLevel", "log level for alert routine (debug/info/warn/fatal)")
	fs.Var(&ConfLog, "confLogLevel", "log level for config routine (debug/info/warn/fatal)")
	fs.Var(&EvalLog, "evaluateLogLevel", "log level for evaluator routine (debug/info/warn/fatal)")
	fs.Var(&IngestLog, "ingestLogLevel", "log level for ingest routine (debug/info/warn/fatal)")
	fs.Var(&ListenLog, "listenLogLevel", "log level for listen routine (debug/info/warn/fatal)")
	fs.Var(&MetricsLog, "metricsLogLevel", "log level for metrics routine (debug/info/warn/fatal)")
	fs.Var(&NodeLog, "nodeLogLevel", "log level for node routine (debug/info/warn/fatal)")
	fs.Var(&PubLog, "publishLogLevel", "log level for publish routine (debug/info/warn/fatal)")

	fs.Var(&SubKey, "subKey", "key expression to subscribe to for position reports")
	fs.Var(&PubKey, "pubKey", "key expression to publish distance alerts on")
	fs.Var(&MinDistance, "minDistance", "minimum distance in meters before a pair is reported")
	fs.Var(&MaxDistance, "maxDistance", "maximum distance in meters before a pair is reported")
	fs.Var(&Period, "period", "evaluation period, in milliseconds or as a duration")

	fs.StringVar(&ConfigFile, "config", "", "configuration file to load (default: config.json, config.yaml, config.yml)")
	fs.BoolVar(&Encrypt, "encrypt", false, "print the loaded configuration in encrypted form and exit")
	fs.StringVar(&LogFormat, "logFormat", "text", "log output format (text/json)")
}

// Fill initialises the defined flags, defaulting to the level of the Main routine
func Fill() {
	if !MainLog.set {
		MainLog.Set("warn")
	}
	for _, v := range [8]*LogLevel{&AlertLog, &ConfLog, &EvalLog, &IngestLog, &ListenLog, &MetricsLog, &NodeLog, &PubLog} {
		v.Default(MainLog.Level.String())
	}
}

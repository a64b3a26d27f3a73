// Package keyexpr translates the slash-separated key expressions used in configuration into the topic syntax of each
// supported broker.
//
// A key expression is a sequence of non-empty segments separated by '/'. The segment "*" matches exactly one segment
// and "**" matches any number of segments, e.g. "demo/tracker/mobs/**".
package keyexpr

import (
	"strings"

	"github.com/pkg/errors"
)

const (
	single = "*"
	multi  = "**"
)

type syntax struct {
	sep       string
	single    string
	multi     string
	multiLast bool // multi-segment wildcard is only valid as the final segment
}

var (
	amqpSyntax = syntax{sep: ".", single: "*", multi: "#"}
	natsSyntax = syntax{sep: ".", single: "*", multi: ">", multiLast: true}
	mqttSyntax = syntax{sep: "/", single: "+", multi: "#", multiLast: true}
)

// Split validates a key expression and returns its segments.
func Split(key string) ([]string, error) {
	if key == "" {
		return nil, errors.New("empty key expression")
	}
	segments := strings.Split(key, "/")
	for i, s := range segments {
		if s == "" {
			return nil, errors.Errorf("empty segment %d in key expression %q", i, key)
		}
		if s != single && s != multi && strings.Contains(s, "*") {
			return nil, errors.Errorf("wildcard must be a whole segment in key expression %q", key)
		}
	}
	return segments, nil
}

func (s syntax) translate(key string) (string, error) {
	segments, err := Split(key)
	if err != nil {
		return "", err
	}
	out := make([]string, len(segments))
	for i, seg := range segments {
		switch seg {
		case single:
			out[i] = s.single
		case multi:
			if s.multiLast && i != len(segments)-1 {
				return "", errors.Errorf("%q may only be the final segment of key expression %q", multi, key)
			}
			out[i] = s.multi
		default:
			if strings.Contains(seg, s.sep) || strings.ContainsAny(seg, s.single+s.multi) {
				return "", errors.Errorf("segment %q of key expression %q contains a reserved character", seg, key)
			}
			out[i] = seg
		}
	}
	return strings.Join(out, s.sep), nil
}

// AMQP returns the topic exchange routing (or binding) key for a key expression.
func AMQP(key string) (string, error) {
	return amqpSyntax.translate(key)
}

// NATS returns the subject for a key expression.
func NATS(key string) (string, error) {
	return natsSyntax.translate(key)
}

// MQTT returns the topic (or topic filter) for a key expression.
func MQTT(key string) (string, error) {
	return mqttSyntax.translate(key)
}

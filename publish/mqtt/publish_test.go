package mqtt

import (
	"context"
	"errors"
	"testing"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doneToken struct {
	paho.Token
	err error
}

func (d doneToken) Done() <-chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}

func (d doneToken) Error() error { return d.err }

// recordingClient implements the parts of paho.Client that send uses.
type recordingClient struct {
	paho.Client
	open    bool
	topic   string
	qos     byte
	payload interface{}
	err     error
}

func (r *recordingClient) IsConnectionOpen() bool { return r.open }

func (r *recordingClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	r.topic, r.qos, r.payload = topic, qos, payload
	return doneToken{err: r.err}
}

func TestSend(t *testing.T) {
	rc := &recordingClient{open: true}
	client = rc
	config = Config{QoS: 1, Timeout: 1}

	require.NoError(t, send(context.Background(), "demo/tracker/alert/distance", []byte(`{}`)))
	assert.Equal(t, "demo/tracker/alert/distance", rc.topic)
	assert.Equal(t, byte(1), rc.qos)
	assert.Equal(t, []byte(`{}`), rc.payload)
}

func TestSendFailures(t *testing.T) {
	config = Config{Timeout: 1}

	client = &recordingClient{open: false}
	assert.Error(t, send(context.Background(), "demo/alert", nil), "closed connection must fail")

	client = &recordingClient{open: true, err: errors.New("not authorised")}
	assert.Error(t, send(context.Background(), "demo/alert", nil), "publish error must be returned")

	client = &recordingClient{open: true}
	assert.Error(t, send(context.Background(), "demo/**/alert", nil), "bad key must fail")
}

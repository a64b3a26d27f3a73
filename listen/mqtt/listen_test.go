package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alowde/dtracker/heartbeat"
	"github.com/alowde/dtracker/listen"
)

// message is the minimal paho.Message needed to exercise forward.
type message struct {
	paho.Message
	topic   string
	payload []byte
}

func (m message) Topic() string   { return m.topic }
func (m message) Payload() []byte { return m.payload }

func TestParse(t *testing.T) {
	c, topic, err := parse(nil, "demo/tracker/mobs/**")
	require.NoError(t, err)
	assert.Equal(t, "tcp://127.0.0.1:1883", c.Broker)
	assert.Equal(t, "demo/tracker/mobs/#", topic)

	_, _, err = parse(json.RawMessage(`{"qos": 3}`), "demo/*")
	assert.Error(t, err)
}

func TestForward(t *testing.T) {
	msgs := make(chan paho.Message, 1)
	lost := make(chan error, 1)
	result := make(chan error, 10)
	inbox := make(chan listen.Message)

	go forward(msgs, lost, result, inbox)

	msgs <- message{topic: "demo/tracker/mobs/car1", payload: []byte(`{}`)}
	select {
	case m := <-inbox:
		assert.Equal(t, "demo/tracker/mobs/car1", m.Key)
		assert.Equal(t, []byte(`{}`), m.Payload)
	case <-time.After(time.Second):
		t.Fatal("message was not forwarded")
	}

	lost <- errors.New("EOF")
	select {
	case e := <-result:
		assert.False(t, heartbeat.IsNormal(e))
		assert.Contains(t, e.Error(), "MQTT connection lost")
	case <-time.After(time.Second):
		t.Fatal("a lost connection should report an error")
	}
}

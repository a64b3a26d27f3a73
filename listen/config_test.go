package listen

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alowde/dtracker/heartbeat"
)

// fakeListener is a listener module whose channels the test drives directly.
type fakeListener struct {
	watchdog chan error
	inbox    chan Message
	key      string
	config   string
}

func registerFake(name string) *fakeListener {
	f := &fakeListener{watchdog: make(chan error, 1), inbox: make(chan Message)}
	RegisterConfigFunction(name, func(m json.RawMessage, key string, ll logrus.Level) (chan error, chan Message, error) {
		f.key = key
		f.config = string(m)
		return f.watchdog, f.inbox, nil
	})
	return f
}

func TestInitialiseFansIn(t *testing.T) {
	one := registerFake("fake-one")
	two := registerFake("fake-two")

	watchdog, inbox, err := Initialise(json.RawMessage(`{"fake-one": {"n": 1}, "fake-two": {"n": 2}, "unknown": {}}`), "demo/**", logrus.FatalLevel)
	require.NoError(t, err)
	assert.Equal(t, "demo/**", one.key)
	assert.JSONEq(t, `{"n": 2}`, two.config)

	go func() { one.inbox <- Message{Key: "a", Payload: []byte("1")} }()
	go func() { two.inbox <- Message{Key: "b", Payload: []byte("2")} }()
	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case m := <-inbox:
			got[m.Key] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for fanned-in message")
		}
	}
	assert.Equal(t, map[string]bool{"a": true, "b": true}, got)

	one.watchdog <- errors.New("connection reset")
	select {
	case e := <-watchdog:
		assert.False(t, heartbeat.IsNormal(e))
		assert.Contains(t, e.Error(), "fake-one listener")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for watchdog error")
	}
}

func TestClosedListenerIsFatal(t *testing.T) {
	f := registerFake("fake-closing")
	watchdog, _, err := Initialise(json.RawMessage(`{"fake-closing": {}}`), "demo/**", logrus.FatalLevel)
	require.NoError(t, err)

	close(f.inbox)
	select {
	case e := <-watchdog:
		assert.Contains(t, e.Error(), "closed its channel")
	case <-time.After(time.Second):
		t.Fatal("closing a listener channel should report an error")
	}
}

func TestInitialiseNoMatchingListener(t *testing.T) {
	_, _, err := Initialise(json.RawMessage(`{"carrier-pigeon": {}}`), "demo/**", logrus.FatalLevel)
	assert.Error(t, err)
}

func TestInitialiseListenerError(t *testing.T) {
	RegisterConfigFunction("fake-broken", func(json.RawMessage, string, logrus.Level) (chan error, chan Message, error) {
		return nil, nil, errors.New("connection refused")
	})
	_, _, err := Initialise(json.RawMessage(`{"fake-broken": {}}`), "demo/**", logrus.FatalLevel)
	assert.Error(t, err)
}

package publish

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	key     string
	payload string
}

// fakePublisher records everything it's asked to send.
type fakePublisher struct {
	mu    sync.Mutex
	sent  []sent
	fail  bool
	delay time.Duration
}

func (f *fakePublisher) publish(ctx context.Context, key string, payload []byte) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.fail {
		return errors.New("broker unavailable")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{key, string(payload)})
	return nil
}

func registerFake(name string, f *fakePublisher) {
	RegisterConfigFunction(name, func(json.RawMessage, logrus.Level) error { return nil })
	RegisterPublishFunction(name, f.publish)
}

func TestPublishToAll(t *testing.T) {
	one, two, idle := &fakePublisher{}, &fakePublisher{}, &fakePublisher{}
	registerFake("fake-one", one)
	registerFake("fake-two", two)
	registerFake("fake-idle", idle)

	require.NoError(t, Initialise(json.RawMessage(`{"fake-one": {}, "fake-two": {}}`), logrus.FatalLevel))
	require.NoError(t, Publish(context.Background(), "demo/alert", []byte(`{"kind":1}`)))

	assert.Equal(t, []sent{{"demo/alert", `{"kind":1}`}}, one.sent)
	assert.Equal(t, []sent{{"demo/alert", `{"kind":1}`}}, two.sent)
	assert.Empty(t, idle.sent, "unconfigured publishers must not be used")
}

func TestPublishFailure(t *testing.T) {
	ok, broken := &fakePublisher{}, &fakePublisher{fail: true}
	registerFake("fake-ok", ok)
	registerFake("fake-broken", broken)

	require.NoError(t, Initialise(json.RawMessage(`{"fake-ok": {}, "fake-broken": {}}`), logrus.FatalLevel))
	err := Publish(context.Background(), "demo/alert", []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fake-broken")
}

func TestPublishDeadline(t *testing.T) {
	slow := &fakePublisher{delay: 5 * time.Second}
	registerFake("fake-slow", slow)

	require.NoError(t, Initialise(json.RawMessage(`{"fake-slow": {}}`), logrus.FatalLevel))
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	start := time.Now()
	assert.Error(t, Publish(ctx, "demo/alert", []byte(`{}`)))
	assert.True(t, time.Since(start) < 2*time.Second)
}

func TestInitialiseErrors(t *testing.T) {
	assert.Error(t, Initialise(json.RawMessage(`{"carrier-pigeon": {}}`), logrus.FatalLevel))
	assert.Error(t, Initialise(json.RawMessage(`[]`), logrus.FatalLevel))

	RegisterConfigFunction("fake-misconfigured", func(json.RawMessage, logrus.Level) error {
		return errors.New("missing host field")
	})
	RegisterPublishFunction("fake-misconfigured", (&fakePublisher{}).publish)
	assert.Error(t, Initialise(json.RawMessage(`{"fake-misconfigured": {}}`), logrus.FatalLevel))
}

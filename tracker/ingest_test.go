package tracker

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alowde/dtracker/listen"
	"github.com/alowde/dtracker/logger"
	"github.com/alowde/dtracker/metrics"
)

func newCollector(t *testing.T) *metrics.Collector {
	c, err := metrics.NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)
	return c
}

func report(id string, lat, lng float64) listen.Message {
	return listen.Message{
		Key:     "demo/tracker/mobs/" + id,
		Payload: []byte(`{"position":{"lat":` + ftoa(lat) + `,"lng":` + ftoa(lng) + `},"speed":1,"color":"red","id":"` + id + `","kind":"car"}`),
	}
}

func TestIngestRun(t *testing.T) {
	in := &Ingester{Table: NewTable(), Metrics: newCollector(t), Log: logger.New("ingest", logrus.FatalLevel)}
	inbox := make(chan listen.Message)
	status := make(chan error, 10)
	result := make(chan error, 1)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { result <- in.Run(ctx, inbox, status) }()

	inbox <- report("a", 1, 1)
	inbox <- listen.Message{Key: "demo/tracker/mobs/x", Payload: []byte(`{"id": "x"}`)}
	inbox <- listen.Message{Key: "demo/tracker/mobs/y", Payload: []byte(`garbage`)}
	inbox <- report("b", 2, 2)
	inbox <- report("a", 3, 3)
	// an unbuffered send only completes once the previous message has been handled
	inbox <- report("c", 4, 4)
	cancel()
	require.NoError(t, <-result)

	assert.Equal(t, 3, in.Table.Len(), "malformed messages must not alter the table")
	_, ok := in.Table.Get("x")
	assert.False(t, ok)
	a, _ := in.Table.Get("a")
	assert.Equal(t, Position{3, 3}, a.Position)
	assert.Equal(t, 2.0, testutil.ToFloat64(in.Metrics.ReportsRejected))
}

func TestIngestClosedInbox(t *testing.T) {
	in := &Ingester{Table: NewTable(), Metrics: newCollector(t), Log: logger.New("ingest", logrus.FatalLevel)}
	inbox := make(chan listen.Message)
	close(inbox)

	done := make(chan error, 1)
	go func() { done <- in.Run(context.Background(), inbox, make(chan error, 1)) }()
	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("a closed inbox should stop the loop")
	}
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

package node

import (
	"encoding/json"
	"net"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

func TestInitialiseWithoutDiscovery(t *testing.T) {
	called := false
	discover = func() (string, error) {
		called = true
		return "", nil
	}
	Self = Node{}
	if err := Initialise(nil, logrus.FatalLevel); err != nil {
		t.Fatalf("Received error %v", err)
	}
	if called {
		t.Errorf("discovery should not run unless configured")
	}
	if Self.ID == "" {
		t.Errorf("expected an ID to be generated")
	}
	if Self.ClientID() != "dtracker-"+Self.ID {
		t.Errorf("unexpected client ID %v", Self.ClientID())
	}
}

func TestInitialiseWithDiscovery(t *testing.T) {
	tables := []struct {
		description string
		addr        string
		err         error
		want        net.IP
	}{
		{"discovered address", "203.0.113.7", nil, net.IP{203, 0, 113, 7}},
		{"discovery failure is not fatal", "", errors.New("no route"), nil},
		{"garbage address is ignored", "not-an-ip", nil, nil},
	}
	for _, table := range tables {
		discover = func() (string, error) { return table.addr, table.err }
		Self = Node{}
		if err := Initialise(json.RawMessage(`{"discover-ip": true}`), logrus.FatalLevel); err != nil {
			t.Errorf("case %q: received error %v", table.description, err)
			continue
		}
		if !Self.EIP.Equal(table.want) {
			t.Errorf("case %q: EIP was %v, should be %v", table.description, Self.EIP, table.want)
		}
	}
}

func TestInitialiseBadConfig(t *testing.T) {
	if err := Initialise(json.RawMessage(`{"discover-ip": "maybe"}`), logrus.FatalLevel); err == nil {
		t.Errorf("expected an error for a malformed node block")
	}
}

package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	e, err := Decode([]byte(`{"position":{"lat":45.07,"lng":7.68},"speed":13.5,"color":"red","id":"car-1","kind":"car"}`))
	require.NoError(t, err)
	assert.Equal(t, EntityState{
		ID:       "car-1",
		Position: Position{Lat: 45.07, Lng: 7.68},
		Speed:    13.5,
		Color:    "red",
		Kind:     "car",
	}, e)
}

func TestDecodeRejects(t *testing.T) {
	tables := []struct {
		description string
		payload     string
	}{
		{"not JSON", `hello`},
		{"not an object", `[1, 2]`},
		{"missing id", `{"position":{"lat":1,"lng":2},"speed":1,"color":"red","kind":"car"}`},
		{"missing position", `{"speed":1,"color":"red","id":"a","kind":"car"}`},
		{"missing lng", `{"position":{"lat":1},"speed":1,"color":"red","id":"a","kind":"car"}`},
		{"missing speed", `{"position":{"lat":1,"lng":2},"color":"red","id":"a","kind":"car"}`},
		{"missing color", `{"position":{"lat":1,"lng":2},"speed":1,"id":"a","kind":"car"}`},
		{"missing kind", `{"position":{"lat":1,"lng":2},"speed":1,"color":"red","id":"a"}`},
		{"wrong type", `{"position":{"lat":"north","lng":2},"speed":1,"color":"red","id":"a","kind":"car"}`},
		{"null id", `{"position":{"lat":1,"lng":2},"speed":1,"color":"red","id":null,"kind":"car"}`},
	}
	for _, table := range tables {
		_, err := Decode([]byte(table.payload))
		assert.Error(t, err, table.description)
	}
}

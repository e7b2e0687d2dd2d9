package annotation

import (
	"encoding/json"
	"testing"

	"github.com/AntonyGarand/bs-map-tools/internal/coords"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkerCodec(t *testing.T) {
	markers := []Marker{
		{Name: "Bank", Category: "marker", IconID: "bank.png", FootprintWidth: 1, FootprintHeight: 1, Anchor: coords.TileCoordinate{X: 10, Y: 20}},
		{Name: "Anvil", Category: "marker", IconID: "anvil.png", FootprintWidth: 2, FootprintHeight: 1, Anchor: coords.TileCoordinate{X: -3, Y: 7}},
		{Name: "Altar", Category: "shrine", IconID: "altar.png", FootprintWidth: 3, FootprintHeight: 2, Anchor: coords.TileCoordinate{X: 0, Y: 0}},
	}

	t.Run("Round trip", func(t *testing.T) {
		data, err := EncodeMarkers(markers)
		require.NoError(t, err)
		decoded, err := DecodeMarkers(data)
		require.NoError(t, err)
		assert.Equal(t, markers, decoded)
	})

	t.Run("Unit footprint omitted", func(t *testing.T) {
		data, err := EncodeMarkers(markers[:1])
		require.NoError(t, err)
		assert.JSONEq(t, `[{"name":"Bank","type":"marker","image":"bank.png","x":10,"y":20}]`, data)
	})

	t.Run("Missing size defaults to one", func(t *testing.T) {
		decoded, err := DecodeMarkers(`[{"name":"Well","type":"marker","image":"well.png","height":2,"x":1,"y":2}]`)
		require.NoError(t, err)
		require.Len(t, decoded, 1)
		assert.Equal(t, 1, decoded[0].FootprintWidth)
		assert.Equal(t, 2, decoded[0].FootprintHeight)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := DecodeMarkers("{")
		assert.Error(t, err)
	})
}

func TestRoomCodec(t *testing.T) {
	cave, err := NewRoom("Cave", []coords.WorldPoint{{X: 0, Y: 0}, {X: 1.5, Y: 0}, {X: 1.5, Y: 2.25}})
	require.NoError(t, err)
	hall, err := NewRoom("Hall", []coords.WorldPoint{{X: 10, Y: 10}, {X: 20, Y: 10}, {X: 20, Y: 20}, {X: 10, Y: 20}})
	require.NoError(t, err)
	rooms := []Room{cave, hall}

	data, err := EncodeRooms(rooms)
	require.NoError(t, err)

	var raw []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(data), &raw))
	assert.JSONEq(t, `[{"x":0,"y":0},{"x":1.5,"y":0},{"x":1.5,"y":2.25}]`, string(raw[0]["points"]))

	decoded, err := DecodeRooms(data)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	for i := range rooms {
		assert.Equal(t, rooms[i].Name(), decoded[i].Name())
		assert.Equal(t, rooms[i].Points(), decoded[i].Points())
	}

	_, err = DecodeRooms(`[{"name":"Bad","points":[{"x":0,"y":0}]}]`)
	assert.ErrorIs(t, err, ErrInsufficientPoints)
}

package annotation

import (
	"context"
	"errors"
	"testing"

	"github.com/AntonyGarand/bs-map-tools/internal/coords"
	"github.com/AntonyGarand/bs-map-tools/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var triangle = []coords.WorldPoint{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}}

// failingKV читает из памяти, но отказывает в записи
type failingKV struct {
	*storage.MemoryKV
	fail bool
}

func (f *failingKV) Set(ctx context.Context, key, value string) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.MemoryKV.Set(ctx, key, value)
}

func newTestStore(t *testing.T) (*Store, *storage.MemoryKV) {
	t.Helper()
	kv := storage.NewMemoryKV()
	return NewStore(context.Background(), kv), kv
}

func TestCreateRoom(t *testing.T) {
	ctx := context.Background()

	t.Run("Empty name", func(t *testing.T) {
		s, _ := newTestStore(t)
		_, err := s.CreateRoom(ctx, "", triangle)
		assert.ErrorIs(t, err, ErrEmptyName)
		_, err = s.CreateRoom(ctx, "   ", triangle)
		assert.ErrorIs(t, err, ErrEmptyName)
		assert.Empty(t, s.Rooms())
	})

	t.Run("Insufficient points", func(t *testing.T) {
		s, _ := newTestStore(t)
		_, err := s.CreateRoom(ctx, "Cave", []coords.WorldPoint{{X: 0, Y: 0}, {X: 1, Y: 0}})
		assert.ErrorIs(t, err, ErrInsufficientPoints)
		assert.Empty(t, s.Rooms())
	})

	t.Run("Success appends and persists", func(t *testing.T) {
		s, kv := newTestStore(t)
		room, err := s.CreateRoom(ctx, "Cave", triangle)
		require.NoError(t, err)
		assert.Equal(t, "Cave", room.Name())
		require.Len(t, s.Rooms(), 1)

		raw, found, err := kv.Get(ctx, CollectionRooms)
		require.NoError(t, err)
		require.True(t, found)
		assert.JSONEq(t, `[{"name":"Cave","points":[{"x":0,"y":0},{"x":1,"y":0},{"x":1,"y":1}]}]`, raw)
	})

	t.Run("Name kept verbatim", func(t *testing.T) {
		s, kv := newTestStore(t)
		room, err := s.CreateRoom(ctx, "  Hall ", triangle)
		require.NoError(t, err)
		assert.Equal(t, "  Hall ", room.Name())

		raw, _, err := kv.Get(ctx, CollectionRooms)
		require.NoError(t, err)
		assert.Contains(t, raw, `"name":"  Hall "`)
	})
}

func TestCreateMarker(t *testing.T) {
	ctx := context.Background()
	s, kv := newTestStore(t)

	m, err := s.CreateMarker(ctx, MarkerSpec{
		Icon:   IconEntry{Name: "Furnace", Image: "furnace.png", Width: 2},
		Anchor: coords.TileCoordinate{X: 4, Y: 9},
	})
	require.NoError(t, err)
	assert.Equal(t, Marker{
		Name:            "Furnace",
		Category:        DefaultCategory,
		IconID:          "furnace.png",
		FootprintWidth:  2,
		FootprintHeight: 1,
		Anchor:          coords.TileCoordinate{X: 4, Y: 9},
	}, m)

	// повторная метка на том же тайле тоже добавляется
	_, err = s.CreateMarker(ctx, MarkerSpec{Name: "Second", Icon: IconEntry{Name: "Furnace", Image: "furnace.png"}, Anchor: m.Anchor})
	require.NoError(t, err)
	assert.Len(t, s.Markers(), 2)

	raw, found, err := kv.Get(ctx, CollectionMarkers)
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `[
		{"name":"Furnace","type":"marker","image":"furnace.png","width":2,"x":4,"y":9},
		{"name":"Second","type":"marker","image":"furnace.png","x":4,"y":9}
	]`, raw)
}

func TestDeleteOutOfRange(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	_, err := s.CreateRoom(ctx, "Cave", triangle)
	require.NoError(t, err)
	_, err = s.CreateMarker(ctx, MarkerSpec{Icon: IconEntry{Name: "Bank", Image: "bank.png"}})
	require.NoError(t, err)

	roomsBefore, markersBefore := s.Rooms(), s.Markers()

	for _, idx := range []int{-1, 1, 5} {
		assert.ErrorIs(t, s.DeleteRoom(ctx, idx), ErrIndexOutOfRange)
		assert.ErrorIs(t, s.DeleteMarker(ctx, idx), ErrIndexOutOfRange)
	}
	assert.Equal(t, roomsBefore, s.Rooms())
	assert.Equal(t, markersBefore, s.Markers())
}

func TestDeleteAndReplace(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	for _, name := range []string{"A", "B", "C"} {
		_, err := s.CreateRoom(ctx, name, triangle)
		require.NoError(t, err)
	}

	require.NoError(t, s.DeleteRoom(ctx, 1))
	rooms := s.Rooms()
	require.Len(t, rooms, 2)
	assert.Equal(t, "A", rooms[0].Name())
	assert.Equal(t, "C", rooms[1].Name())

	replaced, err := s.ReplaceRoom(ctx, 1, "D", triangle)
	require.NoError(t, err)
	assert.Equal(t, "D", replaced.Name())
	assert.Equal(t, "D", s.Rooms()[1].Name())

	_, err = s.ReplaceRoom(ctx, 0, "", triangle)
	assert.ErrorIs(t, err, ErrEmptyName)
	assert.Equal(t, "A", s.Rooms()[0].Name())

	_, err = s.ReplaceRoom(ctx, 7, "E", triangle)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	_, err = s.CreateMarker(ctx, MarkerSpec{Icon: IconEntry{Name: "Bank", Image: "bank.png"}})
	require.NoError(t, err)
	m, err := s.ReplaceMarker(ctx, 0, MarkerSpec{Icon: IconEntry{Name: "Shop", Image: "shop.png", Height: 3}})
	require.NoError(t, err)
	assert.Equal(t, "Shop", s.Markers()[0].Name)
	assert.Equal(t, 3, m.FootprintHeight)
	require.NoError(t, s.DeleteMarker(ctx, 0))
	assert.Empty(t, s.Markers())
}

func TestReturnedSlicesAreCopies(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	_, err := s.CreateMarker(ctx, MarkerSpec{Icon: IconEntry{Name: "Bank", Image: "bank.png"}})
	require.NoError(t, err)

	markers := s.Markers()
	markers[0].Name = "changed"
	assert.Equal(t, "Bank", s.Markers()[0].Name)
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("Persisted state survives reload", func(t *testing.T) {
		s, kv := newTestStore(t)
		_, err := s.CreateRoom(ctx, "Cave", triangle)
		require.NoError(t, err)
		_, err = s.CreateMarker(ctx, MarkerSpec{Icon: IconEntry{Name: "Bank", Image: "bank.png"}, Anchor: coords.TileCoordinate{X: 1, Y: 2}})
		require.NoError(t, err)

		reloaded := NewStore(ctx, kv)
		assert.Equal(t, s.Markers(), reloaded.Markers())
		require.Len(t, reloaded.Rooms(), 1)
		assert.Equal(t, triangle, reloaded.Rooms()[0].Points())
	})

	t.Run("Corrupt data loads empty", func(t *testing.T) {
		kv := storage.NewMemoryKV()
		require.NoError(t, kv.Set(ctx, CollectionMarkers, "not json"))
		require.NoError(t, kv.Set(ctx, CollectionRooms, `[{"name":"","points":[]}]`))

		s := NewStore(ctx, kv)
		assert.Empty(t, s.Markers())
		assert.Empty(t, s.Rooms())
	})

	t.Run("Read failure loads empty", func(t *testing.T) {
		kv := storage.NewMemoryKV()
		require.NoError(t, kv.Close())

		s := NewStore(ctx, kv)
		assert.Empty(t, s.Markers())
		assert.Empty(t, s.Rooms())
	})
}

func TestPersistenceWriteFailure(t *testing.T) {
	ctx := context.Background()
	kv := &failingKV{MemoryKV: storage.NewMemoryKV()}
	s := NewStore(ctx, kv)

	_, err := s.CreateRoom(ctx, "Saved", triangle)
	require.NoError(t, err)

	kv.fail = true
	room, err := s.CreateRoom(ctx, "Unsaved", triangle)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistenceWrite)

	var perr *PersistError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, CollectionRooms, perr.Collection)

	// изменение остаётся в памяти
	assert.Equal(t, "Unsaved", room.Name())
	assert.Len(t, s.Rooms(), 2)

	// но не в хранилище
	raw, _, _ := kv.Get(ctx, CollectionRooms)
	persisted, err := DecodeRooms(raw)
	require.NoError(t, err)
	assert.Len(t, persisted, 1)

	err = s.DeleteRoom(ctx, 0)
	assert.ErrorIs(t, err, ErrPersistenceWrite)
	assert.Len(t, s.Rooms(), 1)
}

func TestImportExport(t *testing.T) {
	ctx := context.Background()
	src, _ := newTestStore(t)
	_, err := src.CreateRoom(ctx, "Cave", triangle)
	require.NoError(t, err)
	_, err = src.CreateMarker(ctx, MarkerSpec{Icon: IconEntry{Name: "Bank", Image: "bank.png", Width: 2, Height: 2}})
	require.NoError(t, err)

	rooms, err := src.ExportRooms()
	require.NoError(t, err)
	markers, err := src.ExportMarkers()
	require.NoError(t, err)

	dst, _ := newTestStore(t)
	n, err := dst.ImportRooms(ctx, rooms)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = dst.ImportMarkers(ctx, markers)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, src.Markers(), dst.Markers())

	_, err = dst.ImportRooms(ctx, "[{")
	assert.Error(t, err)
	assert.Len(t, dst.Rooms(), 1)
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	var changes []Change
	cancel := s.Subscribe(func(c Change) { changes = append(changes, c) })

	_, err := s.CreateRoom(ctx, "Cave", triangle)
	require.NoError(t, err)
	_, err = s.CreateRoom(ctx, "", triangle)
	require.Error(t, err)
	require.NoError(t, s.DeleteRoom(ctx, 0))

	require.Len(t, changes, 2)
	assert.Equal(t, Change{Kind: ChangeCreated, Collection: CollectionRooms, Index: 0, Count: 1, Name: "Cave"}, changes[0])
	assert.Equal(t, ChangeDeleted, changes[1].Kind)

	cancel()
	_, err = s.CreateMarker(ctx, MarkerSpec{Icon: IconEntry{Name: "Bank"}})
	require.NoError(t, err)
	assert.Len(t, changes, 2)
}

func TestSubscribeOrder(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	var calls []string
	for _, name := range []string{"bridge", "metrics", "audit", "ui", "cli"} {
		name := name
		s.Subscribe(func(Change) { calls = append(calls, name) })
	}
	cancel := s.Subscribe(func(Change) { calls = append(calls, "dropped") })
	cancel()
	cancel()

	for i := 0; i < 5; i++ {
		calls = nil
		_, err := s.CreateRoom(ctx, "Cave", triangle)
		require.NoError(t, err)
		assert.Equal(t, []string{"bridge", "metrics", "audit", "ui", "cli"}, calls)
	}
}

func TestRoomGeometry(t *testing.T) {
	room, err := NewRoom("Square", []coords.WorldPoint{{X: 2, Y: 3}, {X: 6, Y: 3}, {X: 6, Y: 8}, {X: 2, Y: 8}})
	require.NoError(t, err)

	assert.True(t, room.Contains(coords.WorldPoint{X: 4, Y: 5}))
	assert.False(t, room.Contains(coords.WorldPoint{X: 7, Y: 5}))
	assert.Equal(t, coords.WorldPoint{X: 2, Y: 3}, room.LabelAnchor())

	var zero Room
	assert.False(t, zero.Contains(coords.WorldPoint{}))
}

package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/AntonyGarand/bs-map-tools/internal/annotation"
	"github.com/AntonyGarand/bs-map-tools/internal/coords"
	"github.com/AntonyGarand/bs-map-tools/internal/hittest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func square(t *testing.T, name string, x0, y0, x1, y1 float64) annotation.Room {
	t.Helper()
	r, err := annotation.NewRoom(name, []coords.WorldPoint{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}})
	require.NoError(t, err)
	return r
}

func TestBundled(t *testing.T) {
	c, err := Bundled()
	require.NoError(t, err)

	sets := c.Sets()
	require.Len(t, sets, 2)
	assert.Equal(t, "hopeforest", sets[0].Name)
	assert.Equal(t, "hopeport", sets[1].Name)
	assert.NotEmpty(t, sets[0].Rooms)
	assert.NotEmpty(t, sets[1].Markers)
	assert.Equal(t, "hopeport", sets[1].Markers[0].Category)

	icon, err := c.IconByName(DefaultIcon)
	require.NoError(t, err)
	assert.Equal(t, "item.png", icon.Image)

	icon, err = c.IconByName("Carpenter obj 5x1")
	require.NoError(t, err)
	w, h := icon.Footprint()
	assert.Equal(t, 5, w)
	assert.Equal(t, 1, h)

	_, err = c.IconByName("Dragon")
	assert.ErrorIs(t, err, ErrUnknownIcon)
	assert.Len(t, c.Icons(), 68)
}

func TestToggle(t *testing.T) {
	a := &RegionSet{Name: "a", Rooms: []annotation.Room{square(t, "A", 0, 0, 10, 10)}, Enabled: true}
	b := &RegionSet{Name: "b", Rooms: []annotation.Room{square(t, "B", 0, 0, 20, 20)}, Enabled: true}
	c, err := New(nil, a, b)
	require.NoError(t, err)

	p := coords.WorldPoint{X: 5, Y: 5}

	hit, _, ok := hittest.FindContainingRegion(p, c.ActiveRooms())
	require.True(t, ok)
	assert.Equal(t, "a", hit.Set)

	enabled, err := c.Toggle("a")
	require.NoError(t, err)
	assert.False(t, enabled)

	hit, _, ok = hittest.FindContainingRegion(p, c.ActiveRooms())
	require.True(t, ok)
	assert.Equal(t, "b", hit.Set)
	assert.Equal(t, "B", hit.Room.Name())

	require.NoError(t, c.SetEnabled("b", false))
	_, _, ok = hittest.FindContainingRegion(p, c.ActiveRooms())
	assert.False(t, ok)
	assert.Empty(t, c.ActiveMarkers())

	assert.ErrorIs(t, c.SetEnabled("nope", true), ErrUnknownSet)
	_, err = c.Toggle("nope")
	assert.ErrorIs(t, err, ErrUnknownSet)

	assert.ErrorIs(t, c.Add(&RegionSet{Name: "a"}), ErrDuplicateSet)
}

func TestSetsAreCopies(t *testing.T) {
	c, err := New(nil, &RegionSet{Name: "a", Enabled: true})
	require.NoError(t, err)

	sets := c.Sets()
	sets[0].Enabled = false
	set, err := c.Set("a")
	require.NoError(t, err)
	assert.True(t, set.Enabled)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()

	geo := `{
		"type": "FeatureCollection",
		"features": [
			{
				"type": "Feature",
				"properties": {"name": "Harbour"},
				"geometry": {"type": "Polygon", "coordinates": [[[10, 191], [20, 191], [20, 181], [10, 181], [10, 191]]]}
			},
			{
				"type": "Feature",
				"properties": {"name": "Lamp"},
				"geometry": {"type": "Point", "coordinates": [1, 2]}
			}
		]
	}`
	region := `{
		"name": "mines",
		"rooms": [{"name": "Shaft", "points": [{"x":0,"y":0},{"x":4,"y":0},{"x":4,"y":4}]}],
		"markers": [{"name": "Anvil", "image": "interactable.png", "x": 1, "y": 1}]
	}`
	rooms := `[{"name": "Cellar", "points": [{"x":0,"y":0},{"x":2,"y":0},{"x":2,"y":2}]}]`

	require.NoError(t, os.WriteFile(filepath.Join(dir, "hopeport.geojson"), []byte(geo), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mines.json"), []byte(region), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cellars.json"), []byte(rooms), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("skip"), 0644))

	sets, err := LoadDir(dir, LoadOptions{FlipHeight: 191, Disabled: []string{"mines"}})
	require.NoError(t, err)
	require.Len(t, sets, 3)

	assert.Equal(t, "cellars", sets[0].Name)
	assert.True(t, sets[0].Enabled)

	port := sets[1]
	assert.Equal(t, "hopeport", port.Name)
	require.Len(t, port.Rooms, 1)
	assert.Equal(t, "Harbour", port.Rooms[0].Name())
	// y' = 191 - y, замыкающая точка отброшена
	assert.Equal(t, []coords.WorldPoint{{X: 10, Y: 0}, {X: 20, Y: 0}, {X: 20, Y: 10}, {X: 10, Y: 10}}, port.Rooms[0].Points())

	mines := sets[2]
	assert.Equal(t, "mines", mines.Name)
	assert.False(t, mines.Enabled)
	require.Len(t, mines.Markers, 1)
	assert.Equal(t, "mines", mines.Markers[0].Category)

	c, err := New(nil)
	require.NoError(t, err)
	require.NoError(t, c.Add(sets...))
	assert.Len(t, c.ActiveRooms(), 2)
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[{"name":"Two","points":[{"x":0,"y":0},{"x":1,"y":1}]}]`), 0644))

	_, err := LoadFile(bad, 0)
	assert.ErrorIs(t, err, annotation.ErrInsufficientPoints)

	_, err = LoadDir(filepath.Join(dir, "missing"), LoadOptions{})
	assert.Error(t, err)
}

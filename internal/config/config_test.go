package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/AntonyGarand/bs-map-tools/internal/coords"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MAPTOOLS_CONFIG", "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "file", cfg.Storage.Driver)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "maptools.yaml")
	yml := `
server:
  rest_port: 9090
storage:
  driver: badger
  path: /tmp/annotations
map:
  width: 300
  height: 191
  max_zoom: 7
  flip_y: true
viewport:
  hit_point: raw
  user_rooms_first: false
catalog:
  disabled: [hopeport]
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0644))
	t.Setenv("MAPTOOLS_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.GetRESTPort())
	assert.Equal(t, "badger", cfg.Storage.Driver)
	assert.Equal(t, "raw", cfg.Viewport.HitPoint)
	assert.False(t, cfg.Viewport.UserRoomsFirst)
	assert.Equal(t, []string{"hopeport"}, cfg.Catalog.Disabled)

	// незаданные поля берутся из Default()
	assert.Equal(t, 32, cfg.Map.TilePx)
	assert.Equal(t, "jpg", cfg.Tiles.Ext)

	pyramid, err := cfg.Map.Pyramid()
	require.NoError(t, err)
	assert.Equal(t, 256, pyramid.PaddedHeight)
	assert.Equal(t, coords.AxisFlip{Enabled: true, Height: 191}, cfg.Map.Flip())
	assert.Equal(t, 7, cfg.Map.ZoomRange().Max)
}

func TestLoadInvalid(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("viewport:\n  hit_point: corner\n"), 0644))
	_, err := Load(bad)
	assert.Error(t, err)

	zero := filepath.Join(dir, "zero.yaml")
	require.NoError(t, os.WriteFile(zero, []byte("map:\n  width: 0\n"), 0644))
	_, err = Load(zero)
	assert.ErrorIs(t, err, coords.ErrInvalidDimension)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestRESTPortFallback(t *testing.T) {
	s := ServerConfig{}
	t.Setenv("MAPTOOLS_REST_PORT", "")
	assert.Equal(t, 8088, s.GetRESTPort())

	t.Setenv("MAPTOOLS_REST_PORT", "7000")
	assert.Equal(t, 7000, s.GetRESTPort())

	t.Setenv("MAPTOOLS_REST_PORT", "junk")
	assert.Equal(t, 8088, s.GetRESTPort())

	s.RESTPort = 9999
	assert.Equal(t, 9999, s.GetRESTPort())
	assert.Equal(t, ":9999", s.Addr())
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AntonyGarand/bs-map-tools/internal/annotation"
	"github.com/AntonyGarand/bs-map-tools/internal/catalog"
	"github.com/AntonyGarand/bs-map-tools/internal/coords"
	"github.com/AntonyGarand/bs-map-tools/internal/scale"
	"github.com/AntonyGarand/bs-map-tools/internal/storage"
	"github.com/AntonyGarand/bs-map-tools/internal/tiles"
	"github.com/AntonyGarand/bs-map-tools/internal/viewport"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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

type testEnv struct {
	server *RestServer
	store  *annotation.Store
	kv     *failingKV
}

func square(x0, y0, x1, y1 float64) []coords.WorldPoint {
	return []coords.WorldPoint{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithTiles(t, nil)
}

func newTestEnvWithTiles(t *testing.T, ts *tiles.Server) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	kv := &failingKV{MemoryKV: storage.NewMemoryKV()}
	store := annotation.NewStore(ctx, kv)

	town, err := annotation.NewRoom("Town", square(0, 0, 40, 40))
	require.NoError(t, err)
	cat, err := catalog.New(
		[]annotation.IconEntry{
			{Name: "Bank", Image: "bank.png", Width: 2, Height: 1},
			{Name: catalog.DefaultIcon, Image: "item.png"},
		},
		&catalog.RegionSet{Name: "forest", Rooms: []annotation.Room{town}, Enabled: true},
	)
	require.NoError(t, err)

	zoom := scale.ZoomRange{Min: 0, Max: 8}
	opts := viewport.DefaultOptions()
	opts.Zoom = zoom
	session := viewport.NewSession(store, cat, opts)

	pyramid, err := coords.NewTilePyramidConfig(300, 300)
	require.NoError(t, err)

	rs, err := NewRestServer(Config{
		Store:          store,
		Catalog:        cat,
		Session:        session,
		Pyramid:        pyramid,
		Zoom:           zoom,
		NativeWidthPx:  14400,
		NativeHeightPx: 14400,
		TilePx:         32,
		NativeMaxZoom:  6,
		Tiles:          ts,
	})
	require.NoError(t, err)
	return &testEnv{server: rs, store: store, kv: kv}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, GenericResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)

	var resp GenericResponse
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
	}
	return w, resp
}

func TestNewRestServerRequiresStore(t *testing.T) {
	_, err := NewRestServer(Config{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.store.CreateRoom(context.Background(), "Vault", square(1, 1, 3, 3))
	require.NoError(t, err)

	w, _ := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var snap HealthSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, "ok", snap.Status)
	assert.Equal(t, 1, snap.Rooms)
	assert.Equal(t, 0, snap.Markers)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestCreateRoomValidation(t *testing.T) {
	env := newTestEnv(t)

	w, resp := env.do(t, http.MethodPost, "/api/rooms", RoomRequest{Name: "  ", Points: square(0, 0, 1, 1)})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "empty_name", resp.Error)

	w, resp = env.do(t, http.MethodPost, "/api/rooms", RoomRequest{Name: "Line", Points: []coords.WorldPoint{{X: 0, Y: 0}, {X: 1, Y: 1}}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "insufficient_points", resp.Error)

	assert.Empty(t, env.store.Rooms())
}

func TestRoomLifecycle(t *testing.T) {
	env := newTestEnv(t)

	w, resp := env.do(t, http.MethodPost, "/api/rooms", RoomRequest{Name: "Vault", Points: square(1, 1, 3, 3)})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, resp.Success)
	assert.Empty(t, resp.Warning)

	w, _ = env.do(t, http.MethodPut, "/api/rooms/0", RoomRequest{Name: "Big vault", Points: square(1, 1, 5, 5)})
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, env.store.Rooms(), 1)
	assert.Equal(t, "Big vault", env.store.Rooms()[0].Name())

	w, _ = env.do(t, http.MethodGet, "/api/rooms/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	exported := w.Body.String()
	assert.Contains(t, exported, "Big vault")

	w, resp = env.do(t, http.MethodDelete, "/api/rooms/3", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "index_out_of_range", resp.Error)

	w, resp = env.do(t, http.MethodDelete, "/api/rooms/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", resp.Error)

	w, _ = env.do(t, http.MethodDelete, "/api/rooms/0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, env.store.Rooms())

	req := httptest.NewRequest(http.MethodPost, "/api/rooms/import", strings.NewReader(exported))
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, env.store.Rooms(), 1)

	req = httptest.NewRequest(http.MethodPost, "/api/rooms/import", strings.NewReader("not json"))
	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, env.store.Rooms(), 1)
}

func TestPersistFailureIsWarning(t *testing.T) {
	env := newTestEnv(t)
	env.kv.fail = true

	w, resp := env.do(t, http.MethodPost, "/api/rooms", RoomRequest{Name: "Vault", Points: square(1, 1, 3, 3)})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, resp.Success)
	assert.Contains(t, resp.Warning, "disk full")
	assert.Len(t, env.store.Rooms(), 1)

	w, _ = env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `maptools_annotation_persist_failures_total{collection="rooms"} 1`)
}

func TestMarkers(t *testing.T) {
	env := newTestEnv(t)

	w, resp := env.do(t, http.MethodPost, "/api/markers", MarkerRequest{Name: "Bank", Icon: "Bank", X: 10, Y: 10})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, resp.Success)

	markers := env.store.Markers()
	require.Len(t, markers, 1)
	assert.Equal(t, "bank.png", markers[0].IconID)
	assert.Equal(t, 2, markers[0].FootprintWidth)

	w, resp = env.do(t, http.MethodPost, "/api/markers", MarkerRequest{Name: "X", Icon: "Dragon", X: 1, Y: 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "unknown_icon", resp.Error)

	w, _ = env.do(t, http.MethodGet, "/api/markers/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"image":"bank.png"`)

	w, _ = env.do(t, http.MethodDelete, "/api/markers/0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, env.store.Markers())
}

func TestPyramidAndMapQueries(t *testing.T) {
	env := newTestEnv(t)

	w, _ := env.do(t, http.MethodGet, "/api/pyramid", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var pyr struct {
		Data PyramidInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pyr))
	assert.Equal(t, 512, pyr.Data.Config.PaddedWidth)
	assert.Equal(t, 6, pyr.Data.NativeMaxZoom)
	require.Len(t, pyr.Data.TileRanges, 7)
	assert.Equal(t, TileRange{Zoom: 3, Cols: 5, Rows: 5}, pyr.Data.TileRanges[3])

	w, _ = env.do(t, http.MethodGet, "/api/tile?x=5.7&y=2.1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var tile struct {
		Data TileInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tile))
	assert.Equal(t, coords.TileCoordinate{X: 5, Y: 2}, tile.Data.Tile)
	assert.Equal(t, coords.WorldPoint{X: 5.5, Y: 2.5}, tile.Data.Center)

	w, _ = env.do(t, http.MethodGet, "/api/icon-size?w=2&h=1&zoom=3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var size struct {
		Data map[string]int `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &size))
	assert.Equal(t, 14, size.Data["width_px"])
	assert.Equal(t, 7, size.Data["height_px"])

	w, resp := env.do(t, http.MethodGet, "/api/icon-size?w=2&h=1&zoom=12", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "zoom_out_of_range", resp.Error)
}

func TestViewportClickPrecedence(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.store.CreateRoom(context.Background(), "Vault", square(4, 4, 6, 6))
	require.NoError(t, err)

	w, _ := env.do(t, http.MethodPost, "/api/viewport/click", PointRequest{X: 5.1, Y: 5.9})
	require.Equal(t, http.StatusOK, w.Code)
	var click struct {
		Data viewport.ClickResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &click))
	assert.True(t, click.Data.Found)
	assert.Equal(t, "Vault", click.Data.Room)
	assert.Equal(t, viewport.UserSource, click.Data.RoomSource)

	w, _ = env.do(t, http.MethodPost, "/api/viewport/click", PointRequest{X: 20, Y: 20})
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &click))
	assert.Equal(t, "Town", click.Data.Room)
	assert.Equal(t, "forest", click.Data.RoomSource)
}

func TestViewportDrafts(t *testing.T) {
	env := newTestEnv(t)

	w, resp := env.do(t, http.MethodPost, "/api/viewport/room/commit", RoomCommitRequest{Name: "Nope"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "not_drafting", resp.Error)

	w, _ = env.do(t, http.MethodPost, "/api/viewport/room/begin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	for _, p := range []PointRequest{{X: 1, Y: 1}, {X: 4, Y: 1}, {X: 4, Y: 4}} {
		w, _ = env.do(t, http.MethodPost, "/api/viewport/click", p)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w, _ = env.do(t, http.MethodPost, "/api/viewport/room/commit", RoomCommitRequest{Name: "Drafted"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Len(t, env.store.Rooms(), 1)
	assert.Equal(t, []coords.WorldPoint{{X: 1, Y: 1}, {X: 4, Y: 1}, {X: 4, Y: 4}}, env.store.Rooms()[0].Points())

	w, resp = env.do(t, http.MethodPost, "/api/viewport/marker/commit", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "not_drafting", resp.Error)

	w, resp = env.do(t, http.MethodPost, "/api/viewport/marker/begin", MarkerBeginRequest{Icon: "Dragon"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "unknown_icon", resp.Error)

	w, _ = env.do(t, http.MethodPost, "/api/viewport/marker/begin", MarkerBeginRequest{Icon: "Bank", Name: "Vault bank"})
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = env.do(t, http.MethodPost, "/api/viewport/move", PointRequest{X: 7.5, Y: 8.5})
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = env.do(t, http.MethodPost, "/api/viewport/marker/commit", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Len(t, env.store.Markers(), 1)
	assert.Equal(t, coords.TileCoordinate{X: 7, Y: 8}, env.store.Markers()[0].Anchor)

	w, _ = env.do(t, http.MethodPost, "/api/viewport/zoom", ZoomRequest{Zoom: 3})
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = env.do(t, http.MethodGet, "/api/viewport/frame", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var frame struct {
		Data viewport.Frame `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &frame))
	assert.Equal(t, 3, frame.Data.Zoom)
	require.NotEmpty(t, frame.Data.Icons)
	assert.Equal(t, 14, frame.Data.Icons[0].WidthPx)
	assert.Equal(t, 7, frame.Data.Icons[0].HeightPx)
}

func TestCatalogEndpoints(t *testing.T) {
	env := newTestEnv(t)

	w, _ := env.do(t, http.MethodGet, "/api/catalog", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sets struct {
		Data []CatalogSetView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sets))
	require.Len(t, sets.Data, 1)
	assert.Equal(t, CatalogSetView{Name: "forest", Enabled: true, Rooms: 1}, sets.Data[0])

	w, _ = env.do(t, http.MethodPost, "/api/catalog/forest/toggle", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = env.do(t, http.MethodPost, "/api/viewport/click", PointRequest{X: 20, Y: 20})
	var click struct {
		Data viewport.ClickResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &click))
	assert.False(t, click.Data.Found)

	w, resp := env.do(t, http.MethodPost, "/api/catalog/mines/toggle", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "unknown_set", resp.Error)

	w, _ = env.do(t, http.MethodGet, "/api/icons", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "bank.png")
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	w, _ := env.do(t, http.MethodPost, "/api/rooms", RoomRequest{Name: "Vault", Points: square(1, 1, 3, 3)})
	require.Equal(t, http.StatusCreated, w.Code)

	w, _ = env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `maptools_annotation_mutations_total{collection="rooms",kind="created"} 1`)
	assert.Contains(t, body, `maptools_annotation_items{collection="rooms"} 1`)
}

func TestCORSOnEveryRoute(t *testing.T) {
	pyramid, err := coords.NewTilePyramidConfig(300, 300)
	require.NoError(t, err)
	ts, err := tiles.NewServer(tiles.Config{Dir: t.TempDir(), MaxNativeZoom: 6}, pyramid)
	require.NoError(t, err)
	defer ts.Close()
	env := newTestEnvWithTiles(t, ts)

	for _, path := range []string{"/metrics", "/tiles/0/0/0.jpg", "/health", "/api/pyramid"} {
		t.Run(path, func(t *testing.T) {
			w, _ := env.do(t, http.MethodGet, path, nil)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

			w, _ = env.do(t, http.MethodOptions, path, nil)
			assert.Equal(t, http.StatusNoContent, w.Code)
			assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/AntonyGarand/bs-map-tools/internal/annotation"
	"github.com/AntonyGarand/bs-map-tools/internal/catalog"
	"github.com/AntonyGarand/bs-map-tools/internal/coords"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// MarkerRequest создание или замена метки
type MarkerRequest struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Icon     string `json:"icon" binding:"required"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
}

// RoomRequest создание или замена комнаты
type RoomRequest struct {
	Name   string              `json:"name"`
	Points []coords.WorldPoint `json:"points"`
}

// MarkerView метка в ответах API
type MarkerView struct {
	Index    int                   `json:"index"`
	Name     string                `json:"name"`
	Category string                `json:"category"`
	Image    string                `json:"image"`
	Width    int                   `json:"width"`
	Height   int                   `json:"height"`
	Anchor   coords.TileCoordinate `json:"anchor"`
	Center   coords.WorldPoint     `json:"center"`
}

// RoomView комната в ответах API
type RoomView struct {
	Index  int                 `json:"index"`
	Name   string              `json:"name"`
	Points []coords.WorldPoint `json:"points"`
	Label  coords.WorldPoint   `json:"label"`
}

func markerView(i int, m annotation.Marker) MarkerView {
	return MarkerView{
		Index:    i,
		Name:     m.Name,
		Category: m.Category,
		Image:    m.IconID,
		Width:    m.FootprintWidth,
		Height:   m.FootprintHeight,
		Anchor:   m.Anchor,
		Center:   m.Center(),
	}
}

func roomView(i int, r annotation.Room) RoomView {
	return RoomView{Index: i, Name: r.Name(), Points: r.Points(), Label: r.LabelAnchor()}
}

func pathIndex(c *gin.Context) (int, error) {
	i, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return 0, badRequest("индекс %q: ожидается целое число", c.Param("index"))
	}
	return i, nil
}

// markerSpec собирает MarkerSpec по имени иконки из каталога
func (rs *RestServer) markerSpec(req MarkerRequest) (annotation.MarkerSpec, error) {
	if rs.catalog == nil {
		return annotation.MarkerSpec{}, catalog.ErrUnknownIcon
	}
	icon, err := rs.catalog.IconByName(req.Icon)
	if err != nil {
		return annotation.MarkerSpec{}, err
	}
	return annotation.MarkerSpec{
		Name:     req.Name,
		Category: req.Category,
		Icon:     icon,
		Anchor:   coords.TileCoordinate{X: req.X, Y: req.Y},
	}, nil
}

func (rs *RestServer) handleListMarkers(c *gin.Context) {
	rs.mu.Lock()
	markers := rs.store.Markers()
	rs.mu.Unlock()

	views := make([]MarkerView, len(markers))
	for i, m := range markers {
		views[i] = markerView(i, m)
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "markers", Data: views})
}

func (rs *RestServer) handleCreateMarker(c *gin.Context) {
	var req MarkerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		rs.fail(c, badRequest("неверный формат запроса: %v", err))
		return
	}
	spec, err := rs.markerSpec(req)
	if err != nil {
		rs.fail(c, err)
		return
	}

	ctx, span := startSpan(c, "annotation.CreateMarker", attribute.String("icon", req.Icon))
	defer span.End()

	rs.mu.Lock()
	m, err := rs.store.CreateMarker(ctx, spec)
	index := len(rs.store.Markers()) - 1
	rs.mu.Unlock()
	if err != nil && !isPersistErr(err) {
		rs.fail(c, err)
		return
	}
	rs.succeed(c, http.StatusCreated, "Метка создана", markerView(index, m), err)
}

func (rs *RestServer) handleReplaceMarker(c *gin.Context) {
	index, err := pathIndex(c)
	if err != nil {
		rs.fail(c, err)
		return
	}
	var req MarkerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		rs.fail(c, badRequest("неверный формат запроса: %v", err))
		return
	}
	spec, err := rs.markerSpec(req)
	if err != nil {
		rs.fail(c, err)
		return
	}

	ctx, span := startSpan(c, "annotation.ReplaceMarker", attribute.Int("index", index))
	defer span.End()

	rs.mu.Lock()
	m, err := rs.store.ReplaceMarker(ctx, index, spec)
	rs.mu.Unlock()
	if err != nil && !isPersistErr(err) {
		rs.fail(c, err)
		return
	}
	rs.succeed(c, http.StatusOK, "Метка заменена", markerView(index, m), err)
}

func (rs *RestServer) handleDeleteMarker(c *gin.Context) {
	index, err := pathIndex(c)
	if err != nil {
		rs.fail(c, err)
		return
	}

	ctx, span := startSpan(c, "annotation.DeleteMarker", attribute.Int("index", index))
	defer span.End()

	rs.mu.Lock()
	err = rs.store.DeleteMarker(ctx, index)
	rs.mu.Unlock()
	if err != nil && !isPersistErr(err) {
		rs.fail(c, err)
		return
	}
	rs.succeed(c, http.StatusOK, "Метка удалена", nil, err)
}

func (rs *RestServer) handleExportMarkers(c *gin.Context) {
	rs.mu.Lock()
	data, err := rs.store.ExportMarkers()
	rs.mu.Unlock()
	if err != nil {
		rs.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(data))
}

func (rs *RestServer) handleImportMarkers(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		rs.fail(c, badRequest("тело запроса: %v", err))
		return
	}

	ctx, span := startSpan(c, "annotation.ImportMarkers", attribute.Int("bytes", len(body)))
	defer span.End()

	rs.mu.Lock()
	n, err := rs.store.ImportMarkers(ctx, string(body))
	rs.mu.Unlock()
	if err != nil && !isPersistErr(err) {
		rs.fail(c, badRequest("%v", err))
		return
	}
	rs.succeed(c, http.StatusOK, "Метки импортированы", gin.H{"imported": n}, err)
}

func (rs *RestServer) handleListRooms(c *gin.Context) {
	rs.mu.Lock()
	rooms := rs.store.Rooms()
	rs.mu.Unlock()

	views := make([]RoomView, len(rooms))
	for i, r := range rooms {
		views[i] = roomView(i, r)
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "rooms", Data: views})
}

func (rs *RestServer) handleCreateRoom(c *gin.Context) {
	var req RoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		rs.fail(c, badRequest("неверный формат запроса: %v", err))
		return
	}

	ctx, span := startSpan(c, "annotation.CreateRoom", attribute.Int("points", len(req.Points)))
	defer span.End()

	rs.mu.Lock()
	room, err := rs.store.CreateRoom(ctx, req.Name, req.Points)
	index := len(rs.store.Rooms()) - 1
	rs.mu.Unlock()
	if err != nil && !isPersistErr(err) {
		rs.fail(c, err)
		return
	}
	rs.succeed(c, http.StatusCreated, "Комната создана", roomView(index, room), err)
}

func (rs *RestServer) handleReplaceRoom(c *gin.Context) {
	index, err := pathIndex(c)
	if err != nil {
		rs.fail(c, err)
		return
	}
	var req RoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		rs.fail(c, badRequest("неверный формат запроса: %v", err))
		return
	}

	ctx, span := startSpan(c, "annotation.ReplaceRoom", attribute.Int("index", index))
	defer span.End()

	rs.mu.Lock()
	room, err := rs.store.ReplaceRoom(ctx, index, req.Name, req.Points)
	rs.mu.Unlock()
	if err != nil && !isPersistErr(err) {
		rs.fail(c, err)
		return
	}
	rs.succeed(c, http.StatusOK, "Комната заменена", roomView(index, room), err)
}

func (rs *RestServer) handleDeleteRoom(c *gin.Context) {
	index, err := pathIndex(c)
	if err != nil {
		rs.fail(c, err)
		return
	}

	ctx, span := startSpan(c, "annotation.DeleteRoom", attribute.Int("index", index))
	defer span.End()

	rs.mu.Lock()
	err = rs.store.DeleteRoom(ctx, index)
	rs.mu.Unlock()
	if err != nil && !isPersistErr(err) {
		rs.fail(c, err)
		return
	}
	rs.succeed(c, http.StatusOK, "Комната удалена", nil, err)
}

func (rs *RestServer) handleExportRooms(c *gin.Context) {
	rs.mu.Lock()
	data, err := rs.store.ExportRooms()
	rs.mu.Unlock()
	if err != nil {
		rs.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(data))
}

func (rs *RestServer) handleImportRooms(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		rs.fail(c, badRequest("тело запроса: %v", err))
		return
	}

	ctx, span := startSpan(c, "annotation.ImportRooms", attribute.Int("bytes", len(body)))
	defer span.End()

	rs.mu.Lock()
	n, err := rs.store.ImportRooms(ctx, string(body))
	rs.mu.Unlock()
	if err != nil && !isPersistErr(err) {
		rs.fail(c, badRequest("%v", err))
		return
	}
	rs.succeed(c, http.StatusOK, "Комнаты импортированы", gin.H{"imported": n}, err)
}

// CatalogSetView набор каталога в ответах API
type CatalogSetView struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	Rooms   int    `json:"rooms"`
	Markers int    `json:"markers"`
}

func (rs *RestServer) handleCatalog(c *gin.Context) {
	views := []CatalogSetView{}
	if rs.catalog != nil {
		rs.mu.Lock()
		sets := rs.catalog.Sets()
		rs.mu.Unlock()
		for _, s := range sets {
			views = append(views, CatalogSetView{Name: s.Name, Enabled: s.Enabled, Rooms: len(s.Rooms), Markers: len(s.Markers)})
		}
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "catalog", Data: views})
}

func (rs *RestServer) handleToggleSet(c *gin.Context) {
	if rs.catalog == nil {
		rs.fail(c, catalog.ErrUnknownSet)
		return
	}
	name := c.Param("name")
	rs.mu.Lock()
	enabled, err := rs.catalog.Toggle(name)
	rs.mu.Unlock()
	if err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Набор переключён", Data: gin.H{"name": name, "enabled": enabled}})
}

func (rs *RestServer) handleIcons(c *gin.Context) {
	icons := []annotation.IconEntry{}
	if rs.catalog != nil {
		icons = rs.catalog.Icons()
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "icons", Data: icons})
}

// isPersistErr ошибка записи: изменение в памяти применено
func isPersistErr(err error) bool {
	return errors.Is(err, annotation.ErrPersistenceWrite)
}

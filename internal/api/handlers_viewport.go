package api

import (
	"net/http"

	"github.com/AntonyGarand/bs-map-tools/internal/catalog"
	"github.com/AntonyGarand/bs-map-tools/internal/coords"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// PointRequest мировая точка от виджета карты
type PointRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ZoomRequest смена зума
type ZoomRequest struct {
	Zoom int `json:"zoom"`
}

// RoomCommitRequest имя комнаты из черновика
type RoomCommitRequest struct {
	Name string `json:"name"`
}

// MarkerBeginRequest начало размещения метки
type MarkerBeginRequest struct {
	Icon string `json:"icon"`
	Name string `json:"name"`
}

func (p PointRequest) point() coords.WorldPoint {
	return coords.WorldPoint{X: p.X, Y: p.Y}
}

func (rs *RestServer) handleMove(c *gin.Context) {
	var req PointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		rs.fail(c, badRequest("неверный формат запроса: %v", err))
		return
	}
	rs.mu.Lock()
	tile := rs.session.MouseMove(req.point())
	rs.mu.Unlock()
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "hover", Data: gin.H{"tile": tile}})
}

func (rs *RestServer) handleClick(c *gin.Context) {
	var req PointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		rs.fail(c, badRequest("неверный формат запроса: %v", err))
		return
	}
	rs.mu.Lock()
	res := rs.session.Click(req.point())
	rs.mu.Unlock()
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "click", Data: res})
}

func (rs *RestServer) handleZoom(c *gin.Context) {
	var req ZoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		rs.fail(c, badRequest("неверный формат запроса: %v", err))
		return
	}
	rs.mu.Lock()
	zoom := rs.session.SetZoom(req.Zoom)
	rs.mu.Unlock()
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "zoom", Data: gin.H{"zoom": zoom}})
}

func (rs *RestServer) handleFrame(c *gin.Context) {
	rs.mu.Lock()
	frame := rs.session.Render()
	rs.mu.Unlock()
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "frame", Data: frame})
}

func (rs *RestServer) handleRoomBegin(c *gin.Context) {
	rs.mu.Lock()
	rs.session.BeginRoom()
	mode := rs.session.Mode()
	rs.mu.Unlock()
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Черновик комнаты начат", Data: gin.H{"mode": mode}})
}

func (rs *RestServer) handleRoomCommit(c *gin.Context) {
	var req RoomCommitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		rs.fail(c, badRequest("неверный формат запроса: %v", err))
		return
	}

	ctx, span := startSpan(c, "viewport.CommitRoom", attribute.String("name", req.Name))
	defer span.End()

	rs.mu.Lock()
	room, err := rs.session.CommitRoom(ctx, req.Name)
	index := len(rs.store.Rooms()) - 1
	rs.mu.Unlock()
	if err != nil && !isPersistErr(err) {
		rs.fail(c, err)
		return
	}
	rs.succeed(c, http.StatusCreated, "Комната создана", roomView(index, room), err)
}

func (rs *RestServer) handleRoomCancel(c *gin.Context) {
	rs.mu.Lock()
	err := rs.session.CancelRoom()
	rs.mu.Unlock()
	if err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Черновик комнаты отменён"})
}

func (rs *RestServer) handleMarkerBegin(c *gin.Context) {
	var req MarkerBeginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		rs.fail(c, badRequest("неверный формат запроса: %v", err))
		return
	}
	if req.Icon == "" {
		req.Icon = catalog.DefaultIcon
	}
	if rs.catalog == nil {
		rs.fail(c, catalog.ErrUnknownIcon)
		return
	}
	icon, err := rs.catalog.IconByName(req.Icon)
	if err != nil {
		rs.fail(c, err)
		return
	}

	rs.mu.Lock()
	rs.session.BeginMarker(icon, req.Name)
	mode := rs.session.Mode()
	rs.mu.Unlock()
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Размещение метки начато", Data: gin.H{"mode": mode, "icon": icon}})
}

func (rs *RestServer) handleMarkerCommit(c *gin.Context) {
	ctx, span := startSpan(c, "viewport.CommitMarker")
	defer span.End()

	rs.mu.Lock()
	m, err := rs.session.CommitMarker(ctx)
	index := len(rs.store.Markers()) - 1
	rs.mu.Unlock()
	if err != nil && !isPersistErr(err) {
		rs.fail(c, err)
		return
	}
	rs.succeed(c, http.StatusCreated, "Метка создана", markerView(index, m), err)
}

func (rs *RestServer) handleMarkerCancel(c *gin.Context) {
	rs.mu.Lock()
	err := rs.session.CancelMarker()
	rs.mu.Unlock()
	if err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Размещение метки отменено"})
}

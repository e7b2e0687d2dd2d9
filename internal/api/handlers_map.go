package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/AntonyGarand/bs-map-tools/internal/coords"
	"github.com/AntonyGarand/bs-map-tools/internal/scale"
	"github.com/gin-gonic/gin"
)

var (
	errBadRequest     = errors.New("bad request")
	errZoomOutOfRange = errors.New("zoom out of range")
)

func badRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func queryFloat(c *gin.Context, name string) (float64, error) {
	v, err := strconv.ParseFloat(c.Query(name), 64)
	if err != nil {
		return 0, badRequest("параметр %s: ожидается число", name)
	}
	return v, nil
}

func queryInt(c *gin.Context, name string) (int, error) {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return 0, badRequest("параметр %s: ожидается целое число", name)
	}
	return v, nil
}

// TileInfo ответ /api/tile
type TileInfo struct {
	Point  coords.WorldPoint     `json:"point"`
	Tile   coords.TileCoordinate `json:"tile"`
	Center coords.WorldPoint     `json:"center"`
	Min    coords.WorldPoint     `json:"min"`
	Max    coords.WorldPoint     `json:"max"`
}

// handlePyramid описание пирамиды тайлов
func (rs *RestServer) handlePyramid(c *gin.Context) {
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "pyramid", Data: rs.pyramidInfo})
}

// handleTile переводит мировую точку в тайл
func (rs *RestServer) handleTile(c *gin.Context) {
	x, err := queryFloat(c, "x")
	if err != nil {
		rs.fail(c, err)
		return
	}
	y, err := queryFloat(c, "y")
	if err != nil {
		rs.fail(c, err)
		return
	}

	p := coords.WorldPoint{X: x, Y: y}
	t := coords.WorldToTile(p)
	lo, hi := coords.TileBounds(t)
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "tile",
		Data:    TileInfo{Point: p, Tile: t, Center: coords.TileCenter(t), Min: lo, Max: hi},
	})
}

// handleIconSize размер иконки на уровне зума
func (rs *RestServer) handleIconSize(c *gin.Context) {
	w, err := queryInt(c, "w")
	if err != nil {
		rs.fail(c, err)
		return
	}
	h, err := queryInt(c, "h")
	if err != nil {
		rs.fail(c, err)
		return
	}
	zoom, err := queryInt(c, "zoom")
	if err != nil {
		rs.fail(c, err)
		return
	}
	if !rs.zoom.Contains(zoom) {
		rs.fail(c, fmt.Errorf("%w: %d не в [%d, %d]", errZoomOutOfRange, zoom, rs.zoom.Min, rs.zoom.Max))
		return
	}

	wp, hp := scale.IconSizePx(w, h, zoom)
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "icon size",
		Data:    gin.H{"width_px": wp, "height_px": hp, "zoom": zoom},
	})
}

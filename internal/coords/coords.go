// Package coords переводит координаты между мировым пространством игры,
// адресами тайлов и пирамидой тайлов.
//
// Мировые координаты: начало в левом верхнем углу, Y растёт вниз.
// Внутри движка оси никогда не переворачиваются; переворот делается один раз
// на границе рендера через AxisFlip.
package coords

import (
	"errors"

	"github.com/AntonyGarand/bs-map-tools/internal/vec"
)

// WorldPoint точка в мировых координатах
type WorldPoint = vec.Vec2Float

// TileCoordinate адрес клетки 1x1, содержащей мировую точку
type TileCoordinate = vec.Vec2

// ErrInvalidDimension возвращается для нулевых и отрицательных размеров пирамиды
var ErrInvalidDimension = errors.New("invalid dimension")

// WorldToTile возвращает тайл, содержащий точку: (floor(x), floor(y))
func WorldToTile(p WorldPoint) TileCoordinate {
	return p.Floor()
}

// TileCenter возвращает геометрический центр тайла.
// Используется для проверки вхождения, чтобы клик в любом месте тайла давал один результат.
func TileCenter(t TileCoordinate) WorldPoint {
	return WorldPoint{X: float64(t.X) + 0.5, Y: float64(t.Y) + 0.5}
}

// TileBounds возвращает углы тайла [t, t+1] (прямоугольник подсветки под курсором)
func TileBounds(t TileCoordinate) (WorldPoint, WorldPoint) {
	lo := t.ToFloat()
	return lo, lo.Add(WorldPoint{X: 1, Y: 1})
}

// MarkerCenter возвращает центр отрисовки объекта размером w x h тайлов.
// anchor - нижний левый тайл объекта: в игре позиция считывается с тайла земли.
func MarkerCenter(anchor TileCoordinate, w, h int) WorldPoint {
	return WorldPoint{
		X: float64(anchor.X) + float64(w)*0.5,
		Y: float64(anchor.Y) + 1 - float64(h)*0.5,
	}
}

// AxisFlip переворачивает ось Y для поверхностей с началом координат внизу слева.
// Применяется только к инструкциям рендера, никогда к хранимым значениям.
type AxisFlip struct {
	Enabled bool
	Height  float64
}

// Apply возвращает точку в системе координат поверхности рендера
func (f AxisFlip) Apply(p WorldPoint) WorldPoint {
	if !f.Enabled {
		return p
	}
	return WorldPoint{X: p.X, Y: f.Height - p.Y}
}

// ApplyAll переворачивает последовательность точек, не изменяя исходную
func (f AxisFlip) ApplyAll(points []WorldPoint) []WorldPoint {
	out := make([]WorldPoint, len(points))
	for i, p := range points {
		out[i] = f.Apply(p)
	}
	return out
}

// Package scale вычисляет экранный размер иконок в зависимости от зума.
package scale

// IconSizePx возвращает размер иконки в пикселях для объекта w x h тайлов.
// scale = 2^zoom - 1: на зуме 0 иконка схлопывается, дальше размер тайла удваивается
// вместе с уровнями пирамиды.
// zoom должен лежать в допустимом диапазоне, ограничение - забота вызывающего кода.
func IconSizePx(footprintWidth, footprintHeight, zoom int) (int, int) {
	s := (1 << uint(zoom)) - 1
	return footprintWidth * s, footprintHeight * s
}

// ZoomRange допустимые уровни зума [Min, Max]
type ZoomRange struct {
	Min int `yaml:"min_zoom" json:"min_zoom"`
	Max int `yaml:"max_zoom" json:"max_zoom"`
}

// Contains проверяет, что zoom в диапазоне
func (r ZoomRange) Contains(zoom int) bool {
	return zoom >= r.Min && zoom <= r.Max
}

// Clamp ограничивает zoom диапазоном
func (r ZoomRange) Clamp(zoom int) int {
	if zoom < r.Min {
		return r.Min
	}
	if zoom > r.Max {
		return r.Max
	}
	return zoom
}

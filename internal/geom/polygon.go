// Package geom содержит предвычисленные полигоны для проверки вхождения точек.
package geom

import "github.com/AntonyGarand/bs-map-tools/internal/vec"

// Polygon замкнутый полигон: последняя точка неявно соединяется с первой.
// Строится один раз из набора точек и после этого не изменяется.
// Самопересекающиеся полигоны не проверяются, результат Contains для них не определён.
type Polygon struct {
	points []vec.Vec2Float
	min    vec.Vec2Float
	max    vec.Vec2Float
}

// NewPolygon копирует точки и вычисляет ограничивающий прямоугольник
func NewPolygon(points []vec.Vec2Float) *Polygon {
	p := &Polygon{points: append([]vec.Vec2Float(nil), points...)}
	if len(points) == 0 {
		return p
	}
	p.min, p.max = points[0], points[0]
	for _, pt := range points[1:] {
		if pt.X < p.min.X {
			p.min.X = pt.X
		}
		if pt.Y < p.min.Y {
			p.min.Y = pt.Y
		}
		if pt.X > p.max.X {
			p.max.X = pt.X
		}
		if pt.Y > p.max.Y {
			p.max.Y = pt.Y
		}
	}
	return p
}

// Points возвращает копию вершин
func (p *Polygon) Points() []vec.Vec2Float {
	return append([]vec.Vec2Float(nil), p.points...)
}

// Len количество вершин
func (p *Polygon) Len() int {
	return len(p.points)
}

// Bounds возвращает ограничивающий прямоугольник (min, max)
func (p *Polygon) Bounds() (vec.Vec2Float, vec.Vec2Float) {
	return p.min, p.max
}

// SouthWest угол ограничивающего прямоугольника с минимальными X и Y.
// В нём рисуется подпись комнаты.
func (p *Polygon) SouthWest() vec.Vec2Float {
	return p.min
}

// Contains проверяет вхождение точки методом трассировки луча.
// Луч идёт из точки вправо, считаются пересечения с рёбрами.
func (p *Polygon) Contains(pt vec.Vec2Float) bool {
	if len(p.points) < 3 {
		return false
	}
	if pt.X < p.min.X || pt.X > p.max.X || pt.Y < p.min.Y || pt.Y > p.max.Y {
		return false
	}

	inside := false
	j := len(p.points) - 1
	for i := 0; i < len(p.points); i++ {
		a, b := p.points[i], p.points[j]
		if (a.Y > pt.Y) != (b.Y > pt.Y) {
			x := a.X + (pt.Y-a.Y)*(b.X-a.X)/(b.Y-a.Y)
			if pt.X < x {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// Area возвращает площадь (формула шнурования), знак зависит от обхода
func (p *Polygon) Area() float64 {
	if len(p.points) < 3 {
		return 0
	}
	sum := 0.0
	j := len(p.points) - 1
	for i := range p.points {
		sum += p.points[j].Cross(p.points[i])
		j = i
	}
	return sum / 2
}

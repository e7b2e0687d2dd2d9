package viewport

import "github.com/AntonyGarand/bs-map-tools/internal/coords"

// Rectangle прямоугольник в координатах поверхности рендера
type Rectangle struct {
	Min coords.WorldPoint `json:"min"`
	Max coords.WorldPoint `json:"max"`
}

// Polyline ломаная: контур комнаты или черновик
type Polyline struct {
	Points []coords.WorldPoint `json:"points"`
	Closed bool                `json:"closed"`
	Source string              `json:"source"`
	Draft  bool                `json:"draft,omitempty"`
}

// Icon иконка метки
type Icon struct {
	Name     string            `json:"name"`
	URL      string            `json:"url"`
	Center   coords.WorldPoint `json:"center"`
	WidthPx  int               `json:"width_px"`
	HeightPx int               `json:"height_px"`
	Source   string            `json:"source"`
	Preview  bool              `json:"preview,omitempty"`
}

// Label подпись комнаты
type Label struct {
	Text   string            `json:"text"`
	At     coords.WorldPoint `json:"at"`
	Source string            `json:"source"`
}

// Frame набор инструкций рендера для внешнего виджета карты
type Frame struct {
	Zoom      int        `json:"zoom"`
	Hover     *Rectangle `json:"hover,omitempty"`
	Polylines []Polyline `json:"polylines"`
	Icons     []Icon     `json:"icons"`
	Labels    []Label    `json:"labels"`
}

// rect строит прямоугольник по двум углам после переворота оси
func rect(flip coords.AxisFlip, a, b coords.WorldPoint) *Rectangle {
	a, b = flip.Apply(a), flip.Apply(b)
	r := &Rectangle{Min: a, Max: b}
	if r.Min.X > r.Max.X {
		r.Min.X, r.Max.X = r.Max.X, r.Min.X
	}
	if r.Min.Y > r.Max.Y {
		r.Min.Y, r.Max.Y = r.Max.Y, r.Min.Y
	}
	return r
}

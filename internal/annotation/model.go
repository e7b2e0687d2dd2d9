// Package annotation хранит пользовательские метки и комнаты карты.
//
// Store держит обе коллекции в памяти и после каждого изменения сразу
// записывает изменённую коллекцию в storage.KV.
package annotation

import (
	"errors"
	"strings"

	"github.com/AntonyGarand/bs-map-tools/internal/coords"
	"github.com/AntonyGarand/bs-map-tools/internal/geom"
)

// DefaultCategory категория меток, созданных пользователем
const DefaultCategory = "marker"

var (
	// ErrEmptyName имя комнаты пустое после обрезки пробелов
	ErrEmptyName = errors.New("empty name")
	// ErrInsufficientPoints у комнаты меньше трёх точек
	ErrInsufficientPoints = errors.New("insufficient points")
	// ErrIndexOutOfRange индекс не указывает на существующий элемент
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrPersistenceWrite изменение применено в памяти, но не сохранено
	ErrPersistenceWrite = errors.New("persistence write failed")
)

// PersistError ошибка записи коллекции в хранилище.
// Возвращается вместе с результатом операции: состояние в памяти уже изменено.
type PersistError struct {
	Collection string
	Err        error
}

func (e *PersistError) Error() string {
	return "persist " + e.Collection + ": " + e.Err.Error()
}

func (e *PersistError) Unwrap() error { return e.Err }

// Is позволяет сравнивать с ErrPersistenceWrite через errors.Is
func (e *PersistError) Is(target error) bool {
	return target == ErrPersistenceWrite
}

// IconEntry запись каталога иконок: имя, файл изображения и размер в тайлах
type IconEntry struct {
	Name   string `json:"name"`
	Image  string `json:"image"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Footprint возвращает размер объекта, нормализованный до минимума 1x1
func (e IconEntry) Footprint() (int, int) {
	return atLeastOne(e.Width), atLeastOne(e.Height)
}

// Marker объект на карте, привязанный к тайлу.
// Anchor - нижний левый тайл занимаемой области.
type Marker struct {
	Name            string
	Category        string
	IconID          string
	FootprintWidth  int
	FootprintHeight int
	Anchor          coords.TileCoordinate
}

// Center центр отрисовки иконки в мировых координатах
func (m Marker) Center() coords.WorldPoint {
	return coords.MarkerCenter(m.Anchor, m.FootprintWidth, m.FootprintHeight)
}

// MarkerSpec описание новой метки: иконка из каталога и тайл привязки
type MarkerSpec struct {
	Name     string
	Category string
	Icon     IconEntry
	Anchor   coords.TileCoordinate
}

func (s MarkerSpec) build() Marker {
	name := strings.TrimSpace(s.Name)
	if name == "" {
		name = s.Icon.Name
	}
	category := s.Category
	if category == "" {
		category = DefaultCategory
	}
	w, h := s.Icon.Footprint()
	return Marker{
		Name:            name,
		Category:        category,
		IconID:          s.Icon.Image,
		FootprintWidth:  w,
		FootprintHeight: h,
		Anchor:          s.Anchor,
	}
}

// Room именованный замкнутый полигон.
// Полигон строится один раз в NewRoom; Room не изменяется после создания.
type Room struct {
	name    string
	polygon *geom.Polygon
}

// NewRoom проверяет имя и количество точек и строит полигон.
// Пробелы по краям имени учитываются только при проверке, имя сохраняется как есть.
func NewRoom(name string, points []coords.WorldPoint) (Room, error) {
	if strings.TrimSpace(name) == "" {
		return Room{}, ErrEmptyName
	}
	if len(points) < 3 {
		return Room{}, ErrInsufficientPoints
	}
	return Room{name: name, polygon: geom.NewPolygon(points)}, nil
}

// Name имя комнаты
func (r Room) Name() string { return r.name }

// Points копия вершин
func (r Room) Points() []coords.WorldPoint {
	if r.polygon == nil {
		return nil
	}
	return r.polygon.Points()
}

// Polygon предвычисленный полигон комнаты
func (r Room) Polygon() *geom.Polygon { return r.polygon }

// Contains проверяет, лежит ли точка внутри комнаты
func (r Room) Contains(p coords.WorldPoint) bool {
	return r.polygon != nil && r.polygon.Contains(p)
}

// LabelAnchor точка подписи: юго-западный угол ограничивающего прямоугольника
func (r Room) LabelAnchor() coords.WorldPoint {
	if r.polygon == nil {
		return coords.WorldPoint{}
	}
	return r.polygon.SouthWest()
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

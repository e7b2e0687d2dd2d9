// Package viewport связывает события внешнего виджета карты с движком аннотаций.
//
// Виджет передаёт движения мыши, клики и смену зума в мировых координатах,
// а получает Frame с инструкциями рендера.
package viewport

import (
	"context"
	"errors"
	"strings"

	"github.com/AntonyGarand/bs-map-tools/internal/annotation"
	"github.com/AntonyGarand/bs-map-tools/internal/catalog"
	"github.com/AntonyGarand/bs-map-tools/internal/coords"
	"github.com/AntonyGarand/bs-map-tools/internal/hittest"
	"github.com/AntonyGarand/bs-map-tools/internal/scale"
)

// UserSource источник пользовательских комнат и меток
const UserSource = "user"

// HitPoint точка, по которой ищется комната под кликом
type HitPoint string

const (
	HitTileCenter HitPoint = "center"
	HitRaw        HitPoint = "raw"
)

// Mode режим взаимодействия
type Mode string

const (
	ModeIdle   Mode = "idle"
	ModeRoom   Mode = "room"
	ModeMarker Mode = "marker"
)

var (
	// ErrNotDrafting commit или cancel без соответствующего begin
	ErrNotDrafting = errors.New("no draft in progress")
	// ErrNoAnchor тайл для метки ещё не выбран
	ErrNoAnchor = errors.New("marker anchor not selected")
)

// Options настройки сессии
type Options struct {
	Zoom           scale.ZoomRange
	InitialZoom    int
	Flip           coords.AxisFlip
	HitPoint       HitPoint
	UserRoomsFirst bool
	IconURLPrefix  string
}

// DefaultOptions зум 0..8, проверка по центру тайла, пользовательские комнаты первыми
func DefaultOptions() Options {
	return Options{
		Zoom:           scale.ZoomRange{Min: 0, Max: 8},
		HitPoint:       HitTileCenter,
		UserRoomsFirst: true,
		IconURLPrefix:  "/icons/",
	}
}

// ClickResult результат клика: тайл и комната под ним
type ClickResult struct {
	Tile       coords.TileCoordinate `json:"tile"`
	Point      coords.WorldPoint     `json:"point"`
	Found      bool                  `json:"found"`
	Room       string                `json:"room,omitempty"`
	RoomSource string                `json:"room_source,omitempty"`
	RoomIndex  int                   `json:"room_index"`
}

// Session состояние одной интерактивной сессии.
// Не потокобезопасна.
type Session struct {
	store   *annotation.Store
	catalog *catalog.Catalog
	opts    Options

	zoom     int
	hover    coords.TileCoordinate
	hasHover bool

	mode        Mode
	draftPoints []coords.WorldPoint

	markerIcon   annotation.IconEntry
	markerName   string
	markerAnchor coords.TileCoordinate
	hasAnchor    bool
}

// NewSession создаёт сессию. catalog может быть nil.
func NewSession(store *annotation.Store, cat *catalog.Catalog, opts Options) *Session {
	if opts.HitPoint == "" {
		opts.HitPoint = HitTileCenter
	}
	return &Session{
		store:   store,
		catalog: cat,
		opts:    opts,
		zoom:    opts.Zoom.Clamp(opts.InitialZoom),
		mode:    ModeIdle,
	}
}

// Zoom текущий уровень зума
func (s *Session) Zoom() int { return s.zoom }

// SetZoom устанавливает зум, ограничивая его допустимым диапазоном
func (s *Session) SetZoom(z int) int {
	s.zoom = s.opts.Zoom.Clamp(z)
	return s.zoom
}

// Mode текущий режим
func (s *Session) Mode() Mode { return s.mode }

// MouseMove запоминает тайл под курсором
func (s *Session) MouseMove(p coords.WorldPoint) coords.TileCoordinate {
	s.hover = coords.WorldToTile(p)
	s.hasHover = true
	return s.hover
}

// Click обрабатывает клик: в режиме черновика добавляет точку или выбирает тайл метки,
// затем ищет комнату под точкой
func (s *Session) Click(p coords.WorldPoint) ClickResult {
	tile := coords.WorldToTile(p)
	s.hover, s.hasHover = tile, true

	switch s.mode {
	case ModeRoom:
		s.draftPoints = append(s.draftPoints, tile.ToFloat())
	case ModeMarker:
		s.markerAnchor, s.hasAnchor = tile, true
	}

	q := p
	if s.opts.HitPoint != HitRaw {
		q = coords.TileCenter(tile)
	}

	res := ClickResult{Tile: tile, Point: q, RoomIndex: -1}
	regions := s.regions()
	if hit, idx, ok := hittest.FindContainingRegion(q, regions); ok {
		res.Found = true
		res.Room = hit.Room.Name()
		res.RoomSource = hit.Set
		res.RoomIndex = idx
	}
	return res
}

// HitTest возвращает все комнаты под точкой в порядке приоритета
func (s *Session) HitTest(p coords.WorldPoint) []catalog.RoomRef {
	regions := s.regions()
	var out []catalog.RoomRef
	for _, i := range hittest.FindAll(p, regions) {
		out = append(out, regions[i])
	}
	return out
}

// regions комнаты в порядке приоритета проверки
func (s *Session) regions() []catalog.RoomRef {
	user := s.store.Rooms()
	userRefs := make([]catalog.RoomRef, len(user))
	for i, r := range user {
		userRefs[i] = catalog.RoomRef{Set: UserSource, Room: r}
	}

	var bundled []catalog.RoomRef
	if s.catalog != nil {
		bundled = s.catalog.ActiveRooms()
	}

	if s.opts.UserRoomsFirst {
		return append(userRefs, bundled...)
	}
	return append(bundled, userRefs...)
}

// BeginRoom начинает черновик комнаты; каждый клик добавляет тайл
func (s *Session) BeginRoom() {
	s.resetDraft()
	s.mode = ModeRoom
}

// DraftPoints точки текущего черновика
func (s *Session) DraftPoints() []coords.WorldPoint {
	return append([]coords.WorldPoint(nil), s.draftPoints...)
}

// CommitRoom сохраняет черновик как комнату.
// При ошибке проверки черновик остаётся, чтобы его можно было дополнить.
func (s *Session) CommitRoom(ctx context.Context, name string) (annotation.Room, error) {
	if s.mode != ModeRoom {
		return annotation.Room{}, ErrNotDrafting
	}
	room, err := s.store.CreateRoom(ctx, name, s.draftPoints)
	if err != nil && !errors.Is(err, annotation.ErrPersistenceWrite) {
		return room, err
	}
	s.resetDraft()
	return room, err
}

// CancelRoom отменяет черновик комнаты
func (s *Session) CancelRoom() error {
	if s.mode != ModeRoom {
		return ErrNotDrafting
	}
	s.resetDraft()
	return nil
}

// BeginMarker начинает размещение метки с выбранной иконкой
func (s *Session) BeginMarker(icon annotation.IconEntry, name string) {
	s.resetDraft()
	s.mode = ModeMarker
	s.markerIcon = icon
	s.markerName = strings.TrimSpace(name)
}

// pendingAnchor тайл метки: выбранный кликом, иначе тайл под курсором
func (s *Session) pendingAnchor() (coords.TileCoordinate, bool) {
	if s.hasAnchor {
		return s.markerAnchor, true
	}
	return s.hover, s.hasHover
}

// CommitMarker сохраняет размещаемую метку
func (s *Session) CommitMarker(ctx context.Context) (annotation.Marker, error) {
	if s.mode != ModeMarker {
		return annotation.Marker{}, ErrNotDrafting
	}
	anchor, ok := s.pendingAnchor()
	if !ok {
		return annotation.Marker{}, ErrNoAnchor
	}
	m, err := s.store.CreateMarker(ctx, annotation.MarkerSpec{
		Name:   s.markerName,
		Icon:   s.markerIcon,
		Anchor: anchor,
	})
	s.resetDraft()
	return m, err
}

// CancelMarker отменяет размещение метки
func (s *Session) CancelMarker() error {
	if s.mode != ModeMarker {
		return ErrNotDrafting
	}
	s.resetDraft()
	return nil
}

func (s *Session) resetDraft() {
	s.mode = ModeIdle
	s.draftPoints = nil
	s.markerIcon = annotation.IconEntry{}
	s.markerName = ""
	s.hasAnchor = false
}

package annotation

import (
	"context"
	"fmt"

	"github.com/AntonyGarand/bs-map-tools/internal/coords"
	"github.com/AntonyGarand/bs-map-tools/internal/logging"
	"github.com/AntonyGarand/bs-map-tools/internal/storage"
)

// Ключи коллекций в хранилище
const (
	CollectionMarkers = "markers"
	CollectionRooms   = "rooms"
)

// ChangeKind тип изменения коллекции
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "created"
	ChangeDeleted  ChangeKind = "deleted"
	ChangeReplaced ChangeKind = "replaced"
	ChangeImported ChangeKind = "imported"
)

// Change уведомление об изменении.
// Для импорта Index указывает на первый добавленный элемент, Count на их количество.
type Change struct {
	Kind       ChangeKind `json:"kind"`
	Collection string     `json:"collection"`
	Index      int        `json:"index"`
	Count      int        `json:"count"`
	Name       string     `json:"name,omitempty"`
}

// Store коллекции меток и комнат с немедленной записью в хранилище.
// Store не потокобезопасен: он принадлежит одной интерактивной сессии,
// конкурентный доступ сериализуется снаружи.
type Store struct {
	kv      storage.KV
	markers []Marker
	rooms   []Room

	observers  []observer
	observerID int

	logger *logging.Logger
}

type observer struct {
	id int
	fn func(Change)
}

// Option настраивает Store
type Option func(*Store)

// WithLogger задаёт логгер вместо логгера компонента annotation
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithObserver подписывает наблюдателя до начальной загрузки
func WithObserver(fn func(Change)) Option {
	return func(s *Store) { s.Subscribe(fn) }
}

// NewStore создаёт хранилище аннотаций и загружает сохранённые коллекции
func NewStore(ctx context.Context, kv storage.KV, opts ...Option) *Store {
	s := &Store{kv: kv}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.GetAnnotationLogger()
	}
	s.Load(ctx)
	return s
}

// Load перечитывает обе коллекции из хранилища.
// Отсутствующие, нечитаемые или повреждённые данные заменяются пустой коллекцией.
func (s *Store) Load(ctx context.Context) {
	s.markers = nil
	s.rooms = nil

	if raw, ok := s.read(ctx, CollectionMarkers); ok {
		markers, err := DecodeMarkers(raw)
		if err != nil {
			s.logger.Warn("⚠️ Сохранённые метки повреждены, начинаем с пустого списка: %v", err)
		} else {
			s.markers = markers
		}
	}

	if raw, ok := s.read(ctx, CollectionRooms); ok {
		rooms, err := DecodeRooms(raw)
		if err != nil {
			s.logger.Warn("⚠️ Сохранённые комнаты повреждены, начинаем с пустого списка: %v", err)
		} else {
			s.rooms = rooms
		}
	}

	s.logger.Info("📦 Загружено меток: %d, комнат: %d", len(s.markers), len(s.rooms))
}

func (s *Store) read(ctx context.Context, key string) (string, bool) {
	if s.kv == nil {
		return "", false
	}
	raw, found, err := s.kv.Get(ctx, key)
	if err != nil {
		s.logger.Warn("⚠️ Не удалось прочитать %s: %v", key, err)
		return "", false
	}
	return raw, found
}

// Markers возвращает копию списка меток
func (s *Store) Markers() []Marker {
	return append([]Marker(nil), s.markers...)
}

// Rooms возвращает копию списка комнат
func (s *Store) Rooms() []Room {
	return append([]Room(nil), s.rooms...)
}

// CreateMarker добавляет метку. Проверок нет: операция всегда применяется,
// ошибка возможна только при записи (*PersistError).
func (s *Store) CreateMarker(ctx context.Context, spec MarkerSpec) (Marker, error) {
	m := spec.build()
	s.markers = append(s.markers, m)
	err := s.persistMarkers(ctx)
	s.notify(Change{Kind: ChangeCreated, Collection: CollectionMarkers, Index: len(s.markers) - 1, Count: 1, Name: m.Name})
	return m, err
}

// DeleteMarker удаляет метку по индексу
func (s *Store) DeleteMarker(ctx context.Context, index int) error {
	if index < 0 || index >= len(s.markers) {
		return fmt.Errorf("%w: marker %d of %d", ErrIndexOutOfRange, index, len(s.markers))
	}
	name := s.markers[index].Name
	s.markers = append(s.markers[:index:index], s.markers[index+1:]...)
	err := s.persistMarkers(ctx)
	s.notify(Change{Kind: ChangeDeleted, Collection: CollectionMarkers, Index: index, Count: 1, Name: name})
	return err
}

// ReplaceMarker полностью заменяет метку по индексу
func (s *Store) ReplaceMarker(ctx context.Context, index int, spec MarkerSpec) (Marker, error) {
	if index < 0 || index >= len(s.markers) {
		return Marker{}, fmt.Errorf("%w: marker %d of %d", ErrIndexOutOfRange, index, len(s.markers))
	}
	m := spec.build()
	s.markers[index] = m
	err := s.persistMarkers(ctx)
	s.notify(Change{Kind: ChangeReplaced, Collection: CollectionMarkers, Index: index, Count: 1, Name: m.Name})
	return m, err
}

// CreateRoom проверяет и добавляет комнату.
// При ошибке проверки хранилище не изменяется.
func (s *Store) CreateRoom(ctx context.Context, name string, points []coords.WorldPoint) (Room, error) {
	room, err := NewRoom(name, points)
	if err != nil {
		return Room{}, err
	}
	s.rooms = append(s.rooms, room)
	err = s.persistRooms(ctx)
	s.notify(Change{Kind: ChangeCreated, Collection: CollectionRooms, Index: len(s.rooms) - 1, Count: 1, Name: room.Name()})
	return room, err
}

// DeleteRoom удаляет комнату по индексу
func (s *Store) DeleteRoom(ctx context.Context, index int) error {
	if index < 0 || index >= len(s.rooms) {
		return fmt.Errorf("%w: room %d of %d", ErrIndexOutOfRange, index, len(s.rooms))
	}
	name := s.rooms[index].Name()
	s.rooms = append(s.rooms[:index:index], s.rooms[index+1:]...)
	err := s.persistRooms(ctx)
	s.notify(Change{Kind: ChangeDeleted, Collection: CollectionRooms, Index: index, Count: 1, Name: name})
	return err
}

// ReplaceRoom полностью заменяет комнату по индексу
func (s *Store) ReplaceRoom(ctx context.Context, index int, name string, points []coords.WorldPoint) (Room, error) {
	if index < 0 || index >= len(s.rooms) {
		return Room{}, fmt.Errorf("%w: room %d of %d", ErrIndexOutOfRange, index, len(s.rooms))
	}
	room, err := NewRoom(name, points)
	if err != nil {
		return Room{}, err
	}
	s.rooms[index] = room
	err = s.persistRooms(ctx)
	s.notify(Change{Kind: ChangeReplaced, Collection: CollectionRooms, Index: index, Count: 1, Name: room.Name()})
	return room, err
}

// ExportMarkers текущие метки в формате хранения
func (s *Store) ExportMarkers() (string, error) {
	return EncodeMarkers(s.markers)
}

// ExportRooms текущие комнаты в формате хранения
func (s *Store) ExportRooms() (string, error) {
	return EncodeRooms(s.rooms)
}

// ImportMarkers добавляет метки из ранее экспортированных данных.
// Ошибка разбора оставляет хранилище без изменений.
func (s *Store) ImportMarkers(ctx context.Context, data string) (int, error) {
	markers, err := DecodeMarkers(data)
	if err != nil {
		return 0, err
	}
	if len(markers) == 0 {
		return 0, nil
	}
	start := len(s.markers)
	s.markers = append(s.markers, markers...)
	err = s.persistMarkers(ctx)
	s.notify(Change{Kind: ChangeImported, Collection: CollectionMarkers, Index: start, Count: len(markers)})
	return len(markers), err
}

// ImportRooms добавляет комнаты из ранее экспортированных данных
func (s *Store) ImportRooms(ctx context.Context, data string) (int, error) {
	rooms, err := DecodeRooms(data)
	if err != nil {
		return 0, err
	}
	if len(rooms) == 0 {
		return 0, nil
	}
	start := len(s.rooms)
	s.rooms = append(s.rooms, rooms...)
	err = s.persistRooms(ctx)
	s.notify(Change{Kind: ChangeImported, Collection: CollectionRooms, Index: start, Count: len(rooms)})
	return len(rooms), err
}

// Subscribe регистрирует наблюдателя. Наблюдатели вызываются синхронно
// после каждого изменения. Возвращает функцию отписки.
func (s *Store) Subscribe(fn func(Change)) (cancel func()) {
	s.observerID++
	id := s.observerID
	s.observers = append(s.observers, observer{id: id, fn: fn})
	return func() {
		for i, o := range s.observers {
			if o.id == id {
				s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

// notify вызывает наблюдателей в порядке подписки
func (s *Store) notify(c Change) {
	for _, o := range s.observers {
		o.fn(c)
	}
}

func (s *Store) persistMarkers(ctx context.Context) error {
	data, err := EncodeMarkers(s.markers)
	if err != nil {
		return s.persistFailed(CollectionMarkers, err)
	}
	return s.write(ctx, CollectionMarkers, data)
}

func (s *Store) persistRooms(ctx context.Context) error {
	data, err := EncodeRooms(s.rooms)
	if err != nil {
		return s.persistFailed(CollectionRooms, err)
	}
	return s.write(ctx, CollectionRooms, data)
}

func (s *Store) write(ctx context.Context, key, data string) error {
	if s.kv == nil {
		return nil
	}
	if err := s.kv.Set(ctx, key, data); err != nil {
		return s.persistFailed(key, err)
	}
	s.logger.Debug("💾 Сохранено %s (%d байт)", key, len(data))
	return nil
}

func (s *Store) persistFailed(collection string, err error) error {
	s.logger.Warn("⚠️ Изменение %s не сохранено, данные остаются в памяти: %v", collection, err)
	return &PersistError{Collection: collection, Err: err}
}

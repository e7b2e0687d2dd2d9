// Package catalog содержит встроенные справочные комнаты и метки,
// а также каталог иконок. Данные загружаются один раз и не изменяются,
// переключается только видимость наборов.
package catalog

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/AntonyGarand/bs-map-tools/internal/annotation"
	"github.com/AntonyGarand/bs-map-tools/internal/coords"
)

//go:embed data/*.json
var bundled embed.FS

// DefaultIcon иконка, выбранная по умолчанию при размещении метки
const DefaultIcon = "Item"

var (
	// ErrUnknownSet набор с таким именем не зарегистрирован
	ErrUnknownSet = errors.New("unknown region set")
	// ErrUnknownIcon иконки с таким именем нет в каталоге
	ErrUnknownIcon = errors.New("unknown icon")
	// ErrDuplicateSet набор с таким именем уже есть
	ErrDuplicateSet = errors.New("duplicate region set")
)

// RegionSet именованный набор комнат и меток
type RegionSet struct {
	Name    string
	Rooms   []annotation.Room
	Markers []annotation.Marker
	Enabled bool
}

// RoomRef комната вместе с именем набора, из которого она взята
type RoomRef struct {
	Set  string
	Room annotation.Room
}

// Contains делегирует проверку вхождения комнате
func (r RoomRef) Contains(p coords.WorldPoint) bool {
	return r.Room.Contains(p)
}

// Catalog упорядоченный список наборов и каталог иконок
type Catalog struct {
	sets  []*RegionSet
	index map[string]int

	icons     []annotation.IconEntry
	iconIndex map[string]int
}

// New создаёт каталог из иконок и наборов. Порядок наборов задаёт приоритет при проверке вхождения.
func New(icons []annotation.IconEntry, sets ...*RegionSet) (*Catalog, error) {
	c := &Catalog{
		index:     make(map[string]int),
		icons:     append([]annotation.IconEntry(nil), icons...),
		iconIndex: make(map[string]int, len(icons)),
	}
	for i, icon := range c.icons {
		c.iconIndex[icon.Name] = i
	}
	if err := c.Add(sets...); err != nil {
		return nil, err
	}
	return c, nil
}

// Bundled каталог со встроенными данными: иконки, комнаты hopeforest и метки hopeport.
// Комнаты и метки в data/ - пример заполнения, не выверенная разметка карты;
// настоящие наборы подключаются через LoadDir (catalog.dir).
func Bundled() (*Catalog, error) {
	var icons []annotation.IconEntry
	if err := readBundled("data/icons.json", &icons); err != nil {
		return nil, err
	}

	var rooms []roomFile
	if err := readBundled("data/hopeforest.json", &rooms); err != nil {
		return nil, err
	}
	forest, err := newRoomSet("hopeforest", rooms)
	if err != nil {
		return nil, err
	}

	raw, err := bundled.ReadFile("data/hopeport.json")
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения встроенного каталога: %w", err)
	}
	markers, err := annotation.DecodeMarkers(string(raw))
	if err != nil {
		return nil, fmt.Errorf("hopeport: %w", err)
	}
	port := &RegionSet{Name: "hopeport", Markers: markers, Enabled: true}
	port.defaultCategory()

	return New(icons, forest, port)
}

func readBundled(name string, v interface{}) error {
	raw, err := bundled.ReadFile(name)
	if err != nil {
		return fmt.Errorf("ошибка чтения встроенного каталога: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("ошибка разбора %s: %w", name, err)
	}
	return nil
}

// Add добавляет наборы в конец списка
func (c *Catalog) Add(sets ...*RegionSet) error {
	for _, s := range sets {
		if _, exists := c.index[s.Name]; exists {
			return fmt.Errorf("%w: %q", ErrDuplicateSet, s.Name)
		}
		c.index[s.Name] = len(c.sets)
		c.sets = append(c.sets, s)
	}
	return nil
}

// Sets возвращает копии наборов в порядке каталога
func (c *Catalog) Sets() []RegionSet {
	out := make([]RegionSet, len(c.sets))
	for i, s := range c.sets {
		out[i] = *s
	}
	return out
}

// Set возвращает набор по имени
func (c *Catalog) Set(name string) (RegionSet, error) {
	s, err := c.lookup(name)
	if err != nil {
		return RegionSet{}, err
	}
	return *s, nil
}

// SetEnabled включает или выключает набор
func (c *Catalog) SetEnabled(name string, enabled bool) error {
	s, err := c.lookup(name)
	if err != nil {
		return err
	}
	s.Enabled = enabled
	return nil
}

// Toggle переключает видимость набора и возвращает новое состояние
func (c *Catalog) Toggle(name string) (bool, error) {
	s, err := c.lookup(name)
	if err != nil {
		return false, err
	}
	s.Enabled = !s.Enabled
	return s.Enabled, nil
}

func (c *Catalog) lookup(name string) (*RegionSet, error) {
	i, ok := c.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSet, name)
	}
	return c.sets[i], nil
}

// ActiveRooms комнаты включённых наборов в порядке каталога
func (c *Catalog) ActiveRooms() []RoomRef {
	var out []RoomRef
	for _, s := range c.sets {
		if !s.Enabled {
			continue
		}
		for _, r := range s.Rooms {
			out = append(out, RoomRef{Set: s.Name, Room: r})
		}
	}
	return out
}

// ActiveMarkers метки включённых наборов в порядке каталога
func (c *Catalog) ActiveMarkers() []annotation.Marker {
	var out []annotation.Marker
	for _, s := range c.sets {
		if s.Enabled {
			out = append(out, s.Markers...)
		}
	}
	return out
}

// Icons каталог иконок
func (c *Catalog) Icons() []annotation.IconEntry {
	return append([]annotation.IconEntry(nil), c.icons...)
}

// IconByName ищет иконку по имени
func (c *Catalog) IconByName(name string) (annotation.IconEntry, error) {
	i, ok := c.iconIndex[name]
	if !ok {
		return annotation.IconEntry{}, fmt.Errorf("%w: %q", ErrUnknownIcon, name)
	}
	return c.icons[i], nil
}

func (s *RegionSet) defaultCategory() {
	for i := range s.Markers {
		if s.Markers[i].Category == "" {
			s.Markers[i].Category = s.Name
		}
	}
}

package annotation

import (
	"encoding/json"
	"fmt"

	"github.com/AntonyGarand/bs-map-tools/internal/coords"
)

// markerRecord формат сохранённой метки.
// width и height опускаются для размера 1.
type markerRecord struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Image  string `json:"image"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
}

type roomRecord struct {
	Name   string              `json:"name"`
	Points []coords.WorldPoint `json:"points"`
}

func omitOne(n int) int {
	if n == 1 {
		return 0
	}
	return n
}

// EncodeMarkers сериализует метки
func EncodeMarkers(markers []Marker) (string, error) {
	records := make([]markerRecord, len(markers))
	for i, m := range markers {
		records[i] = markerRecord{
			Name:   m.Name,
			Type:   m.Category,
			Image:  m.IconID,
			Width:  omitOne(m.FootprintWidth),
			Height: omitOne(m.FootprintHeight),
			X:      m.Anchor.X,
			Y:      m.Anchor.Y,
		}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("ошибка сериализации меток: %w", err)
	}
	return string(data), nil
}

// DecodeMarkers восстанавливает метки; отсутствующий размер считается равным 1
func DecodeMarkers(data string) ([]Marker, error) {
	var records []markerRecord
	if err := json.Unmarshal([]byte(data), &records); err != nil {
		return nil, fmt.Errorf("ошибка десериализации меток: %w", err)
	}
	markers := make([]Marker, len(records))
	for i, r := range records {
		markers[i] = Marker{
			Name:            r.Name,
			Category:        r.Type,
			IconID:          r.Image,
			FootprintWidth:  atLeastOne(r.Width),
			FootprintHeight: atLeastOne(r.Height),
			Anchor:          coords.TileCoordinate{X: r.X, Y: r.Y},
		}
	}
	return markers, nil
}

// EncodeRooms сериализует комнаты
func EncodeRooms(rooms []Room) (string, error) {
	records := make([]roomRecord, len(rooms))
	for i, r := range rooms {
		records[i] = roomRecord{Name: r.Name(), Points: r.Points()}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("ошибка сериализации комнат: %w", err)
	}
	return string(data), nil
}

// DecodeRooms восстанавливает комнаты. Комната с пустым именем
// или меньше чем тремя точками делает весь набор недействительным.
func DecodeRooms(data string) ([]Room, error) {
	var records []roomRecord
	if err := json.Unmarshal([]byte(data), &records); err != nil {
		return nil, fmt.Errorf("ошибка десериализации комнат: %w", err)
	}
	rooms := make([]Room, 0, len(records))
	for i, r := range records {
		room, err := NewRoom(r.Name, r.Points)
		if err != nil {
			return nil, fmt.Errorf("комната %d (%q): %w", i, r.Name, err)
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

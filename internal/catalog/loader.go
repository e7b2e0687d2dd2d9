package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/AntonyGarand/bs-map-tools/internal/annotation"
	"github.com/AntonyGarand/bs-map-tools/internal/coords"
	"github.com/AntonyGarand/bs-map-tools/internal/logging"
)

// roomFile комната в формате встроенного каталога
type roomFile struct {
	Name   string              `json:"name"`
	Points []coords.WorldPoint `json:"points"`
}

// regionFile файл набора: комнаты и метки без поля type
type regionFile struct {
	Name    string          `json:"name"`
	Rooms   []roomFile      `json:"rooms"`
	Markers json.RawMessage `json:"markers"`
}

type featureCollection struct {
	Type     string `json:"type"`
	Features []struct {
		Properties struct {
			Name string `json:"name"`
		} `json:"properties"`
		Geometry struct {
			Type        string         `json:"type"`
			Coordinates [][][2]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

// LoadOptions параметры загрузки наборов с диска
type LoadOptions struct {
	// FlipHeight переводит GeoJSON с осью Y вверх: y' = FlipHeight - y. 0 - без переворота.
	FlipHeight float64
	// Disabled имена наборов, выключенных после загрузки
	Disabled []string
}

// LoadDir читает все *.json и *.geojson файлы каталога в алфавитном порядке.
// Имя набора берётся из поля name, иначе из имени файла.
func LoadDir(dir string, opts LoadOptions) ([]*RegionSet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения каталога %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.IsDir() && (ext == ".json" || ext == ".geojson") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	disabled := make(map[string]bool, len(opts.Disabled))
	for _, n := range opts.Disabled {
		disabled[n] = true
	}

	logger := logging.GetComponentLogger(logging.ComponentCatalog)
	sets := make([]*RegionSet, 0, len(names))
	for _, name := range names {
		set, err := LoadFile(filepath.Join(dir, name), opts.FlipHeight)
		if err != nil {
			return nil, err
		}
		set.Enabled = !disabled[set.Name]
		logger.Info("🗺️ Загружен набор %s: комнат %d, меток %d", set.Name, len(set.Rooms), len(set.Markers))
		sets = append(sets, set)
	}
	return sets, nil
}

// LoadFile читает один файл набора: JSON в формате каталога или GeoJSON FeatureCollection
func LoadFile(path string, flipHeight float64) (*RegionSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения %s: %w", path, err)
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	var set *RegionSet
	trimmed := bytes.TrimSpace(raw)
	switch {
	case len(trimmed) > 0 && trimmed[0] == '[':
		var rooms []roomFile
		if err = json.Unmarshal(trimmed, &rooms); err == nil {
			set, err = newRoomSet(base, rooms)
		}
	default:
		var probe struct {
			Type string `json:"type"`
		}
		if err = json.Unmarshal(trimmed, &probe); err != nil {
			break
		}
		if probe.Type == "FeatureCollection" {
			set, err = decodeGeoJSON(base, trimmed, flipHeight)
		} else {
			set, err = decodeRegionFile(base, trimmed)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора %s: %w", path, err)
	}
	set.Enabled = true
	return set, nil
}

func newRoomSet(name string, rooms []roomFile) (*RegionSet, error) {
	set := &RegionSet{Name: name, Enabled: true}
	for i, r := range rooms {
		room, err := annotation.NewRoom(r.Name, r.Points)
		if err != nil {
			return nil, fmt.Errorf("%s: комната %d (%q): %w", name, i, r.Name, err)
		}
		set.Rooms = append(set.Rooms, room)
	}
	return set, nil
}

func decodeRegionFile(base string, raw []byte) (*RegionSet, error) {
	var f regionFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	name := f.Name
	if name == "" {
		name = base
	}
	set, err := newRoomSet(name, f.Rooms)
	if err != nil {
		return nil, err
	}
	if len(f.Markers) > 0 {
		if set.Markers, err = annotation.DecodeMarkers(string(f.Markers)); err != nil {
			return nil, err
		}
		set.defaultCategory()
	}
	return set, nil
}

func decodeGeoJSON(base string, raw []byte, flipHeight float64) (*RegionSet, error) {
	var fc featureCollection
	if err := json.Unmarshal(raw, &fc); err != nil {
		return nil, err
	}
	flip := coords.AxisFlip{Enabled: flipHeight != 0, Height: flipHeight}

	rooms := make([]roomFile, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f.Geometry.Type != "Polygon" || len(f.Geometry.Coordinates) == 0 {
			continue
		}
		ring := f.Geometry.Coordinates[0]
		// GeoJSON замыкает кольцо повтором первой точки
		if n := len(ring); n > 1 && ring[0] == ring[n-1] {
			ring = ring[:n-1]
		}
		points := make([]coords.WorldPoint, len(ring))
		for i, c := range ring {
			points[i] = coords.WorldPoint{X: c[0], Y: c[1]}
		}
		rooms = append(rooms, roomFile{Name: f.Properties.Name, Points: flip.ApplyAll(points)})
	}
	return newRoomSet(base, rooms)
}

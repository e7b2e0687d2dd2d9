package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/AntonyGarand/bs-map-tools/internal/coords"
	"github.com/AntonyGarand/bs-map-tools/internal/scale"
	"github.com/AntonyGarand/bs-map-tools/internal/storage"
	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации приложения.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Storage   storage.Config  `yaml:"storage"`
	Map       MapConfig       `yaml:"map"`
	Viewport  ViewportConfig  `yaml:"viewport"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Tiles     TilesConfig     `yaml:"tiles"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Host     string `yaml:"host"`
	RESTPort int    `yaml:"rest_port"`
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "MAPTOOLS_REST_PORT", 8088)
}

// Addr адрес для net/http
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.GetRESTPort())
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	FileLevel  string `yaml:"file_level"`
	Dir        string `yaml:"dir"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`

	// Components консольный уровень отдельных компонентов, например tiles: debug
	Components map[string]string `yaml:"components"`
}

// MapConfig размеры мира и пирамиды тайлов
type MapConfig struct {
	// Размер мира в тайлах
	Width  int `yaml:"width"`
	Height int `yaml:"height"`

	// Исходное изображение и размер тайла пирамиды в пикселях
	NativeWidthPx  int `yaml:"native_width_px"`
	NativeHeightPx int `yaml:"native_height_px"`
	TilePx         int `yaml:"tile_px"`

	MinZoom       int `yaml:"min_zoom"`
	MaxZoom       int `yaml:"max_zoom"`
	NativeMaxZoom int `yaml:"native_max_zoom"`

	// FlipY переворачивает ось Y в инструкциях рендера (виджет с началом внизу слева)
	FlipY bool `yaml:"flip_y"`
}

// ZoomRange допустимые уровни зума
func (m MapConfig) ZoomRange() scale.ZoomRange {
	return scale.ZoomRange{Min: m.MinZoom, Max: m.MaxZoom}
}

// Pyramid строит конфигурацию пирамиды по размеру мира
func (m MapConfig) Pyramid() (coords.TilePyramidConfig, error) {
	return coords.NewTilePyramidConfig(m.Width, m.Height)
}

// Flip переворот оси для рендера
func (m MapConfig) Flip() coords.AxisFlip {
	return coords.AxisFlip{Enabled: m.FlipY, Height: float64(m.Height)}
}

type ViewportConfig struct {
	HitPoint       string `yaml:"hit_point"` // center | raw
	UserRoomsFirst bool   `yaml:"user_rooms_first"`
	IconURLPrefix  string `yaml:"icon_url_prefix"`
	InitialZoom    int    `yaml:"initial_zoom"`
}

type CatalogConfig struct {
	Dir        string   `yaml:"dir"`
	FlipHeight float64  `yaml:"flip_height"`
	Disabled   []string `yaml:"disabled"`
}

type TilesConfig struct {
	Dir           string `yaml:"dir"`
	Ext           string `yaml:"ext"`
	Blank         string `yaml:"blank"`
	CacheMaxBytes int64  `yaml:"cache_max_bytes"`
	CacheTTLSec   int    `yaml:"cache_ttl_seconds"`
}

type EventBusConfig struct {
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// Default конфигурация, с которой сервер запускается без файла
func Default() *Config {
	return &Config{
		Server: ServerConfig{RESTPort: 0},
		Logging: LoggingConfig{
			Level:      "INFO",
			FileLevel:  "DEBUG",
			Dir:        "logs",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
		Storage: storage.DefaultConfig(),
		Map: MapConfig{
			Width:          300,
			Height:         300,
			NativeWidthPx:  14400,
			NativeHeightPx: 14400,
			TilePx:         32,
			MinZoom:        0,
			MaxZoom:        8,
			NativeMaxZoom:  6,
		},
		Viewport: ViewportConfig{
			HitPoint:       "center",
			UserRoomsFirst: true,
			IconURLPrefix:  "/icons/",
		},
		Tiles: TilesConfig{
			Dir:           "mydz",
			Ext:           "jpg",
			Blank:         "blank.png",
			CacheMaxBytes: 64 << 20,
			CacheTTLSec:   300,
		},
		EventBus: EventBusConfig{
			Stream:    "MAPTOOLS",
			Retention: 24,
		},
		Telemetry: TelemetryConfig{ServiceName: "bs-map-tools"},
	}
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	// Если порт задан в конфиге и больше 0, используем его
	if configPort > 0 {
		return configPort
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	return defaultPort
}

// Load читает YAML файл конфигурации поверх Default().
// Если path == "", берёт путь из ENV MAPTOOLS_CONFIG; без файла возвращает Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("MAPTOOLS_CONFIG")
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения конфигурации %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("ошибка разбора конфигурации %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек
func (c *Config) Validate() error {
	if c.Map.MinZoom > c.Map.MaxZoom {
		return fmt.Errorf("map: min_zoom %d > max_zoom %d", c.Map.MinZoom, c.Map.MaxZoom)
	}
	if _, err := c.Map.Pyramid(); err != nil {
		return fmt.Errorf("map: %w", err)
	}
	switch c.Viewport.HitPoint {
	case "", "center", "raw":
	default:
		return fmt.Errorf("viewport: unknown hit_point %q", c.Viewport.HitPoint)
	}
	return nil
}

// Package tiles отдаёт изображения пирамиды тайлов по адресу {z}/{y}/{x}.<ext>.
package tiles

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/AntonyGarand/bs-map-tools/internal/coords"
	"github.com/AntonyGarand/bs-map-tools/internal/logging"
	"github.com/dgraph-io/ristretto/v2"
	"github.com/gin-gonic/gin"
)

// прозрачный PNG 1x1 на случай, если blank не найден на диске
var fallbackBlank, _ = base64.StdEncoding.DecodeString(
	"iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII=")

// ErrOutOfRange адрес тайла вне пирамиды
var ErrOutOfRange = errors.New("tile out of range")

// Config настройки тайл-сервера
type Config struct {
	Dir           string
	Ext           string
	Blank         string // имя файла пустого тайла внутри Dir
	MaxNativeZoom int    // выше этого уровня тайлов на диске нет
	CacheMaxBytes int64
	CacheTTL      time.Duration
}

// Stats счётчики кеша
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Blanks uint64 `json:"blanks"`
}

// Server читает тайлы с диска и кеширует их в памяти
type Server struct {
	cfg     Config
	pyramid coords.TilePyramidConfig
	cache   *ristretto.Cache[string, []byte]
	blank   []byte
	logger  *logging.Logger

	hits, misses, blanks atomic.Uint64
}

// NewServer создаёт тайл-сервер для пирамиды
func NewServer(cfg Config, pyramid coords.TilePyramidConfig) (*Server, error) {
	if cfg.Ext == "" {
		cfg.Ext = "jpg"
	}
	cfg.Ext = strings.TrimPrefix(cfg.Ext, ".")
	if cfg.CacheMaxBytes <= 0 {
		cfg.CacheMaxBytes = 64 << 20
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		// ~10 счётчиков на ожидаемый тайл размером ~16KB
		NumCounters: cfg.CacheMaxBytes / (16 << 10) * 10,
		MaxCost:     cfg.CacheMaxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания кеша тайлов: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		pyramid: pyramid,
		cache:   cache,
		blank:   fallbackBlank,
		logger:  logging.GetTilesLogger(),
	}

	if cfg.Blank != "" {
		if data, err := os.ReadFile(filepath.Join(cfg.Dir, cfg.Blank)); err == nil {
			s.blank = data
		} else {
			s.logger.Warn("⚠️ Пустой тайл %s не найден, используется встроенный: %v", cfg.Blank, err)
		}
	}
	return s, nil
}

// Close освобождает кеш
func (s *Server) Close() {
	s.cache.Close()
}

// Stats возвращает счётчики кеша
func (s *Server) Stats() Stats {
	return Stats{Hits: s.hits.Load(), Misses: s.misses.Load(), Blanks: s.blanks.Load()}
}

// Blank содержимое пустого тайла
func (s *Server) Blank() []byte {
	return s.blank
}

func (s *Server) path(z, x, y int) string {
	return filepath.Join(s.cfg.Dir, strconv.Itoa(z), strconv.Itoa(y), strconv.Itoa(x)+"."+s.cfg.Ext)
}

// Lookup возвращает изображение тайла.
// ErrOutOfRange для адреса вне пирамиды, os.ErrNotExist для отсутствующего файла.
func (s *Server) Lookup(z, x, y int) ([]byte, error) {
	if z > s.cfg.MaxNativeZoom || !s.pyramid.ValidTile(z, x, y) {
		return nil, fmt.Errorf("%w: %d/%d/%d", ErrOutOfRange, z, y, x)
	}

	key := fmt.Sprintf("%d/%d/%d", z, y, x)
	if data, ok := s.cache.Get(key); ok {
		s.hits.Add(1)
		return data, nil
	}
	s.misses.Add(1)

	data, err := os.ReadFile(s.path(z, x, y))
	if err != nil {
		return nil, err
	}
	s.cache.SetWithTTL(key, data, int64(len(data)), s.cfg.CacheTTL)
	s.cache.Wait()
	return data, nil
}

// Register добавляет маршрут GET <prefix>/:z/:y/:file
func (s *Server) Register(r gin.IRoutes, prefix string) {
	r.GET(strings.TrimSuffix(prefix, "/")+"/:z/:y/:file", s.Handler())
}

// Handler отдаёт тайл; для неверного, отсутствующего или внепирамидного адреса
// отдаётся пустой тайл
func (s *Server) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		z, errZ := strconv.Atoi(c.Param("z"))
		y, errY := strconv.Atoi(c.Param("y"))
		file := c.Param("file")
		ext := filepath.Ext(file)
		x, errX := strconv.Atoi(strings.TrimSuffix(file, ext))

		if errZ != nil || errY != nil || errX != nil || strings.TrimPrefix(ext, ".") != s.cfg.Ext {
			s.serveBlank(c)
			return
		}

		data, err := s.Lookup(z, x, y)
		if err != nil {
			if !errors.Is(err, ErrOutOfRange) && !errors.Is(err, os.ErrNotExist) {
				s.logger.Warn("⚠️ Ошибка чтения тайла %d/%d/%d: %v", z, y, x, err)
			}
			s.serveBlank(c)
			return
		}

		c.Header("Cache-Control", "public, max-age=86400")
		c.Data(http.StatusOK, contentType("."+s.cfg.Ext), data)
	}
}

func (s *Server) serveBlank(c *gin.Context) {
	s.blanks.Add(1)
	c.Header("X-Tile-Blank", "1")
	c.Data(http.StatusOK, contentType(filepath.Ext(s.cfg.Blank)), s.blank)
}

func contentType(ext string) string {
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "image/png"
}

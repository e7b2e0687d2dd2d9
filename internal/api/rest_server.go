package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/AntonyGarand/bs-map-tools/internal/annotation"
	"github.com/AntonyGarand/bs-map-tools/internal/catalog"
	"github.com/AntonyGarand/bs-map-tools/internal/coords"
	"github.com/AntonyGarand/bs-map-tools/internal/logging"
	"github.com/AntonyGarand/bs-map-tools/internal/middleware"
	"github.com/AntonyGarand/bs-map-tools/internal/observability"
	"github.com/AntonyGarand/bs-map-tools/internal/scale"
	"github.com/AntonyGarand/bs-map-tools/internal/tiles"
	"github.com/AntonyGarand/bs-map-tools/internal/viewport"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RestServer представляет REST API сервер карты
type RestServer struct {
	router     *gin.Engine
	httpServer *http.Server
	logger     *logging.Logger

	// mu сериализует доступ к движку: хранилище и сессия однопоточные
	mu      sync.Mutex
	store   *annotation.Store
	catalog *catalog.Catalog
	session *viewport.Session

	pyramid      coords.TilePyramidConfig
	pyramidInfo  PyramidInfo
	zoom         scale.ZoomRange
	metrics      *ServerMetrics
	annMetrics   *AnnotationMetrics
	unsubscribe  func()
	tileTemplate string
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Addr        string
	ServiceName string // имя сервиса для otelgin и префикса метрик

	Store   *annotation.Store
	Catalog *catalog.Catalog // может быть nil
	Session *viewport.Session

	Pyramid coords.TilePyramidConfig
	Zoom    scale.ZoomRange

	// Исходное изображение карты для расчёта отступов пирамиды
	NativeWidthPx  int
	NativeHeightPx int
	TilePx         int
	NativeMaxZoom  int

	Tiles      *tiles.Server // может быть nil
	TilePrefix string

	// Registry для метрик; nil - новый реестр
	Registry *prometheus.Registry
}

// PyramidInfo ответ /api/pyramid
type PyramidInfo struct {
	Config        coords.TilePyramidConfig `json:"config"`
	XRatio        float64                  `json:"x_ratio"`
	YRatio        float64                  `json:"y_ratio"`
	PaddingX      float64                  `json:"padding_x"`
	PaddingY      float64                  `json:"padding_y"`
	DisplayBounds coords.WorldPoint        `json:"display_bounds"`
	MinZoom       int                      `json:"min_zoom"`
	MaxZoom       int                      `json:"max_zoom"`
	NativeMaxZoom int                      `json:"native_max_zoom"`
	TileRanges    []TileRange              `json:"tile_ranges"`
	TileTemplate  string                   `json:"tile_template,omitempty"`
}

// TileRange число столбцов и строк тайлов на уровне
type TileRange struct {
	Zoom int `json:"zoom"`
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Warning string      `json:"warning,omitempty"`
}

// NewRestServer создает новый REST API сервер
func NewRestServer(cfg Config) (*RestServer, error) {
	if cfg.Addr == "" {
		cfg.Addr = ":8088"
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "maptools"
	}
	if cfg.Store == nil || cfg.Session == nil {
		return nil, errors.New("api: store и session обязательны")
	}
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	padX, padY, err := coords.ComputePyramidPadding(cfg.NativeWidthPx, cfg.NativeHeightPx, cfg.TilePx)
	if err != nil {
		return nil, err
	}

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// CORS до регистрации любых маршрутов: gin применяет Use только к последующим
	router.Use(corsMiddleware())

	// === Observability middleware ===
	logger := logging.GetAPILogger()
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(middleware.NewRequestLogger(logger).Handler())

	promMw := middleware.NewPrometheusMiddleware(cfg.ServiceName, reg)
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router, reg)

	rs := &RestServer{
		router:     router,
		logger:     logger,
		store:      cfg.Store,
		catalog:    cfg.Catalog,
		session:    cfg.Session,
		pyramid:    cfg.Pyramid,
		zoom:       cfg.Zoom,
		metrics:    NewServerMetrics(),
		annMetrics: NewAnnotationMetrics(reg),
	}
	rs.unsubscribe = rs.annMetrics.Observe(cfg.Store)

	if cfg.Tiles != nil {
		prefix := cfg.TilePrefix
		if prefix == "" {
			prefix = "/tiles"
		}
		cfg.Tiles.Register(router, prefix)
		rs.tileTemplate = prefix + "/{z}/{y}/{x}"
	}

	rs.pyramidInfo = PyramidInfo{
		Config:        cfg.Pyramid,
		XRatio:        cfg.Pyramid.XRatio(),
		YRatio:        cfg.Pyramid.YRatio(),
		PaddingX:      padX,
		PaddingY:      padY,
		DisplayBounds: cfg.Pyramid.DisplayBounds(),
		MinZoom:       cfg.Zoom.Min,
		MaxZoom:       cfg.Zoom.Max,
		NativeMaxZoom: cfg.NativeMaxZoom,
		TileTemplate:  rs.tileTemplate,
	}
	for z := cfg.Zoom.Min; z <= cfg.NativeMaxZoom && z <= cfg.Zoom.Max; z++ {
		cols, rows := cfg.Pyramid.TileRange(z)
		rs.pyramidInfo.TileRanges = append(rs.pyramidInfo.TileRanges, TileRange{Zoom: z, Cols: cols, Rows: rows})
	}

	rs.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	rs.setupRoutes()
	return rs, nil
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	rs.router.GET("/health", rs.handleHealth)

	api := rs.router.Group("/api")

	// Координаты и пирамида
	api.GET("/pyramid", rs.handlePyramid)
	api.GET("/tile", rs.handleTile)
	api.GET("/icon-size", rs.handleIconSize)

	markers := api.Group("/markers")
	{
		markers.GET("", rs.handleListMarkers)
		markers.POST("", rs.handleCreateMarker)
		markers.GET("/export", rs.handleExportMarkers)
		markers.POST("/import", rs.handleImportMarkers)
		markers.PUT("/:index", rs.handleReplaceMarker)
		markers.DELETE("/:index", rs.handleDeleteMarker)
	}

	rooms := api.Group("/rooms")
	{
		rooms.GET("", rs.handleListRooms)
		rooms.POST("", rs.handleCreateRoom)
		rooms.GET("/export", rs.handleExportRooms)
		rooms.POST("/import", rs.handleImportRooms)
		rooms.PUT("/:index", rs.handleReplaceRoom)
		rooms.DELETE("/:index", rs.handleDeleteRoom)
	}

	api.GET("/catalog", rs.handleCatalog)
	api.POST("/catalog/:name/toggle", rs.handleToggleSet)
	api.GET("/icons", rs.handleIcons)

	vp := api.Group("/viewport")
	{
		vp.POST("/move", rs.handleMove)
		vp.POST("/click", rs.handleClick)
		vp.POST("/zoom", rs.handleZoom)
		vp.GET("/frame", rs.handleFrame)

		vp.POST("/room/begin", rs.handleRoomBegin)
		vp.POST("/room/commit", rs.handleRoomCommit)
		vp.POST("/room/cancel", rs.handleRoomCancel)

		vp.POST("/marker/begin", rs.handleMarkerBegin)
		vp.POST("/marker/commit", rs.handleMarkerCommit)
		vp.POST("/marker/cancel", rs.handleMarkerCancel)
	}
}

// corsMiddleware разрешает виджету карты с другого origin обращаться к API и тайлам
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Handler возвращает http.Handler (для тестов и встраивания)
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// Start запускает REST сервер; блокируется до Stop
func (rs *RestServer) Start() error {
	rs.logger.Info("🌐 REST API слушает %s", rs.httpServer.Addr)
	if err := rs.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop корректно останавливает REST сервер
func (rs *RestServer) Stop(ctx context.Context) error {
	if rs.unsubscribe != nil {
		rs.mu.Lock()
		rs.unsubscribe()
		rs.mu.Unlock()
	}
	return rs.httpServer.Shutdown(ctx)
}

// handleHealth проверка состояния сервера
func (rs *RestServer) handleHealth(c *gin.Context) {
	snap := rs.metrics.Snapshot()
	rs.mu.Lock()
	snap.Markers = len(rs.store.Markers())
	snap.Rooms = len(rs.store.Rooms())
	rs.mu.Unlock()
	c.JSON(http.StatusOK, snap)
}

// startSpan открывает span операции с аннотациями
func startSpan(c *gin.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return observability.Tracer().Start(c.Request.Context(), name, trace.WithAttributes(attrs...))
}

// fail переводит ошибку движка в HTTP ответ
func (rs *RestServer) fail(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, annotation.ErrEmptyName):
		status, code = http.StatusBadRequest, "empty_name"
	case errors.Is(err, annotation.ErrInsufficientPoints):
		status, code = http.StatusBadRequest, "insufficient_points"
	case errors.Is(err, catalog.ErrUnknownIcon):
		status, code = http.StatusBadRequest, "unknown_icon"
	case errors.Is(err, errBadRequest):
		status, code = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, errZoomOutOfRange):
		status, code = http.StatusBadRequest, "zoom_out_of_range"
	case errors.Is(err, annotation.ErrIndexOutOfRange):
		status, code = http.StatusNotFound, "index_out_of_range"
	case errors.Is(err, catalog.ErrUnknownSet):
		status, code = http.StatusNotFound, "unknown_set"
	case errors.Is(err, viewport.ErrNotDrafting):
		status, code = http.StatusConflict, "not_drafting"
	case errors.Is(err, viewport.ErrNoAnchor):
		status, code = http.StatusConflict, "no_anchor"
	}
	if status >= 500 {
		rs.logger.Error("❌ %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, GenericResponse{Success: false, Message: err.Error(), Error: code})
}

// succeed отвечает успехом; ошибка записи в хранилище становится предупреждением
func (rs *RestServer) succeed(c *gin.Context, status int, message string, data interface{}, persistErr error) {
	resp := GenericResponse{Success: true, Message: message, Data: data}
	var perr *annotation.PersistError
	if errors.As(persistErr, &perr) {
		rs.annMetrics.PersistFailed(perr.Collection)
		resp.Warning = "изменение не сохранено: " + perr.Err.Error()
	}
	c.JSON(status, resp)
}

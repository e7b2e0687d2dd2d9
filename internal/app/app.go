// Package app собирает сервер карты из конфигурации: хранилище, каталог,
// движок аннотаций, шину событий, тайлы и REST API.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AntonyGarand/bs-map-tools/internal/annotation"
	"github.com/AntonyGarand/bs-map-tools/internal/api"
	"github.com/AntonyGarand/bs-map-tools/internal/catalog"
	"github.com/AntonyGarand/bs-map-tools/internal/config"
	"github.com/AntonyGarand/bs-map-tools/internal/eventbus"
	"github.com/AntonyGarand/bs-map-tools/internal/logging"
	"github.com/AntonyGarand/bs-map-tools/internal/observability"
	"github.com/AntonyGarand/bs-map-tools/internal/storage"
	"github.com/AntonyGarand/bs-map-tools/internal/tiles"
	"github.com/AntonyGarand/bs-map-tools/internal/viewport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// App запущенный экземпляр сервера карты
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	kv       storage.KV
	bus      eventbus.EventBus
	busSubs  []eventbus.Subscription
	exporter *eventbus.MetricsExporter
	tiles    *tiles.Server

	Store   *annotation.Store
	Catalog *catalog.Catalog
	Session *viewport.Session
	Server  *api.RestServer

	shutdownTelemetry func(context.Context) error
	closers           []func()
}

// New строит приложение. При ошибке уже открытые ресурсы закрываются.
func New(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	a := &App{cfg: cfg, logger: logging.GetComponentLogger(logging.ComponentApp)}
	defer func() {
		if err == nil {
			return
		}
		a.close()
		if a.shutdownTelemetry != nil {
			_ = a.shutdownTelemetry(context.Background())
		}
	}()

	if cfg.Telemetry.Enabled {
		shutdown, terr := observability.InitTelemetry(ctx, cfg.Telemetry.ServiceName)
		if terr != nil {
			a.logger.Warn("⚠️ Трассировка отключена: %v", terr)
		} else {
			a.shutdownTelemetry = shutdown
		}
	}

	pyramid, err := cfg.Map.Pyramid()
	if err != nil {
		return nil, fmt.Errorf("пирамида тайлов: %w", err)
	}

	a.kv, err = storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("хранилище %s: %w", cfg.Storage.Driver, err)
	}
	a.logger.Info("💾 Хранилище аннотаций: %s", cfg.Storage.Driver)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err = a.openBus(reg); err != nil {
		return nil, err
	}

	a.Catalog, err = a.loadCatalog()
	if err != nil {
		return nil, err
	}

	bridge := eventbus.NewBridge(a.bus, cfg.Telemetry.ServiceName)
	a.Store = annotation.NewStore(ctx, a.kv,
		annotation.WithLogger(logging.GetAnnotationLogger()),
		annotation.WithObserver(bridge.Observer()),
	)

	flip := cfg.Map.Flip()
	a.Session = viewport.NewSession(a.Store, a.Catalog, viewport.Options{
		Zoom:           cfg.Map.ZoomRange(),
		InitialZoom:    cfg.Viewport.InitialZoom,
		Flip:           flip,
		HitPoint:       viewport.HitPoint(cfg.Viewport.HitPoint),
		UserRoomsFirst: cfg.Viewport.UserRoomsFirst,
		IconURLPrefix:  cfg.Viewport.IconURLPrefix,
	})

	if cfg.Tiles.Dir != "" {
		a.tiles, err = tiles.NewServer(tiles.Config{
			Dir:           cfg.Tiles.Dir,
			Ext:           cfg.Tiles.Ext,
			Blank:         cfg.Tiles.Blank,
			MaxNativeZoom: cfg.Map.NativeMaxZoom,
			CacheMaxBytes: cfg.Tiles.CacheMaxBytes,
			CacheTTL:      time.Duration(cfg.Tiles.CacheTTLSec) * time.Second,
		}, pyramid)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, a.tiles.Close)
	}

	a.Server, err = api.NewRestServer(api.Config{
		Addr:           cfg.Server.Addr(),
		ServiceName:    cfg.Telemetry.ServiceName,
		Store:          a.Store,
		Catalog:        a.Catalog,
		Session:        a.Session,
		Pyramid:        pyramid,
		Zoom:           cfg.Map.ZoomRange(),
		NativeWidthPx:  cfg.Map.NativeWidthPx,
		NativeHeightPx: cfg.Map.NativeHeightPx,
		TilePx:         cfg.Map.TilePx,
		NativeMaxZoom:  cfg.Map.NativeMaxZoom,
		Tiles:          a.tiles,
		Registry:       reg,
	})
	if err != nil {
		return nil, err
	}

	a.logger.Info("🗺️ Загружено: %d меток, %d комнат, %d наборов каталога",
		len(a.Store.Markers()), len(a.Store.Rooms()), len(a.Catalog.Sets()))
	return a, nil
}

// openBus подключает JetStream, если задан URL, иначе шину в памяти
func (a *App) openBus(reg prometheus.Registerer) error {
	if a.cfg.EventBus.URL != "" {
		js, err := eventbus.NewJetStreamBus(a.cfg.EventBus.URL, a.cfg.EventBus.Stream,
			time.Duration(a.cfg.EventBus.Retention)*time.Hour)
		if err != nil {
			return fmt.Errorf("шина событий: %w", err)
		}
		a.bus = js
		a.logger.Info("📡 Шина событий: NATS JetStream %s", a.cfg.EventBus.URL)
	} else {
		a.bus = eventbus.NewMemoryBus(1024)
		a.logger.Info("📡 Шина событий: в памяти")
	}

	sub, err := eventbus.StartLoggingListener(a.bus)
	if err != nil {
		return err
	}
	a.busSubs = append(a.busSubs, sub)

	a.exporter = eventbus.NewMetricsExporter(a.bus, reg)
	a.exporter.Start(5 * time.Second)
	return nil
}

// loadCatalog встроенные наборы плюс наборы из каталога на диске
func (a *App) loadCatalog() (*catalog.Catalog, error) {
	cat, err := catalog.Bundled()
	if err != nil {
		return nil, fmt.Errorf("встроенный каталог: %w", err)
	}

	if dir := a.cfg.Catalog.Dir; dir != "" {
		sets, err := catalog.LoadDir(dir, catalog.LoadOptions{
			FlipHeight: a.cfg.Catalog.FlipHeight,
			Disabled:   a.cfg.Catalog.Disabled,
		})
		if err != nil {
			return nil, fmt.Errorf("каталог %s: %w", dir, err)
		}
		if err := cat.Add(sets...); err != nil {
			return nil, err
		}
	}

	for _, name := range a.cfg.Catalog.Disabled {
		if err := cat.SetEnabled(name, false); err != nil {
			if errors.Is(err, catalog.ErrUnknownSet) {
				a.logger.Warn("⚠️ Набор %q из disabled не найден", name)
				continue
			}
			return nil, err
		}
	}
	return cat, nil
}

// Run запускает REST API и блокируется до остановки сервера
func (a *App) Run() error {
	return a.Server.Start()
}

// Shutdown останавливает сервер и закрывает ресурсы
func (a *App) Shutdown(ctx context.Context) error {
	err := a.Server.Stop(ctx)
	a.close()
	if a.shutdownTelemetry != nil {
		if terr := a.shutdownTelemetry(ctx); terr != nil && err == nil {
			err = terr
		}
	}
	return err
}

func (a *App) close() {
	for _, c := range a.closers {
		c()
	}
	a.closers = nil
	if a.exporter != nil {
		a.exporter.Stop()
		a.exporter = nil
	}
	for _, s := range a.busSubs {
		s.Unsubscribe()
	}
	a.busSubs = nil
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			a.logger.Warn("⚠️ Ошибка закрытия шины: %v", err)
		}
		a.bus = nil
	}
	if a.kv != nil {
		if err := a.kv.Close(); err != nil {
			a.logger.Warn("⚠️ Ошибка закрытия хранилища: %v", err)
		}
		a.kv = nil
	}
}

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/AntonyGarand/bs-map-tools/internal/annotation"
	"github.com/AntonyGarand/bs-map-tools/internal/catalog"
	"github.com/AntonyGarand/bs-map-tools/internal/config"
	"github.com/AntonyGarand/bs-map-tools/internal/coords"
	"github.com/AntonyGarand/bs-map-tools/internal/eventbus"
	"github.com/AntonyGarand/bs-map-tools/internal/scale"
	"github.com/AntonyGarand/bs-map-tools/internal/storage"
	"github.com/AntonyGarand/bs-map-tools/internal/viewport"
	"github.com/joho/godotenv"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML config (default $MAPTOOLS_CONFIG)")
		command    = flag.String("cmd", "pyramid", "Command: pyramid, tile, hit, icon-size, export, import, catalog, tail")
		x          = flag.Float64("x", 0, "World X")
		y          = flag.Float64("y", 0, "World Y")
		width      = flag.Int("w", 1, "Footprint width in tiles")
		height     = flag.Int("h", 1, "Footprint height in tiles")
		zoom       = flag.Int("zoom", 0, "Zoom level")
		collection = flag.String("collection", annotation.CollectionRooms, "Collection: markers or rooms")
		file       = flag.String("file", "-", "Import/export file, - for stdio")
		types      = flag.String("types", "", "Event types filter (comma-separated)")
	)
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}
	ctx := context.Background()

	switch *command {
	case "pyramid":
		err = showPyramid(cfg)
	case "tile":
		showTile(coords.WorldPoint{X: *x, Y: *y})
	case "icon-size":
		err = showIconSize(cfg.Map.ZoomRange(), *width, *height, *zoom)
	case "hit":
		err = hit(ctx, cfg, coords.WorldPoint{X: *x, Y: *y})
	case "export":
		err = export(ctx, cfg, *collection, *file)
	case "import":
		err = importFile(ctx, cfg, *collection, *file)
	case "catalog":
		err = showCatalog(cfg)
	case "tail":
		err = tail(cfg, parseStringList(*types))
	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: pyramid, tile, hit, icon-size, export, import, catalog, tail")
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("❌ %s failed: %v", *command, err)
	}
}

func showPyramid(cfg *config.Config) error {
	p, err := cfg.Map.Pyramid()
	if err != nil {
		return err
	}
	padX, padY, err := coords.ComputePyramidPadding(cfg.Map.NativeWidthPx, cfg.Map.NativeHeightPx, cfg.Map.TilePx)
	if err != nil {
		return err
	}

	fmt.Printf("🗺️  World %dx%d, padded %dx%d (ratio %.4f x %.4f)\n",
		p.BaseWidth, p.BaseHeight, p.PaddedWidth, p.PaddedHeight, p.XRatio(), p.YRatio())
	fmt.Printf("🖼️  Native %dx%d px, tile %d px, padding %.4f x %.4f\n",
		cfg.Map.NativeWidthPx, cfg.Map.NativeHeightPx, cfg.Map.TilePx, padX, padY)
	for z := cfg.Map.MinZoom; z <= cfg.Map.NativeMaxZoom; z++ {
		cols, rows := p.TileRange(z)
		fmt.Printf("   z=%d: %d x %d tiles\n", z, cols, rows)
	}
	return nil
}

func showTile(p coords.WorldPoint) {
	t := coords.WorldToTile(p)
	lo, hi := coords.TileBounds(t)
	c := coords.TileCenter(t)
	fmt.Printf("📍 (%g, %g) -> tile (%d, %d), center (%g, %g), bounds [%g, %g]-[%g, %g]\n",
		p.X, p.Y, t.X, t.Y, c.X, c.Y, lo.X, lo.Y, hi.X, hi.Y)
}

func showIconSize(zr scale.ZoomRange, w, h, zoom int) error {
	if !zr.Contains(zoom) {
		return fmt.Errorf("zoom %d out of range [%d, %d]", zoom, zr.Min, zr.Max)
	}
	wp, hp := scale.IconSizePx(w, h, zoom)
	fmt.Printf("🔍 %dx%d tiles at zoom %d -> %dx%d px\n", w, h, zoom, wp, hp)
	return nil
}

// openStore открывает хранилище из конфигурации; закрытие на вызывающем
func openStore(ctx context.Context, cfg *config.Config) (*annotation.Store, storage.KV, error) {
	kv, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, nil, err
	}
	return annotation.NewStore(ctx, kv), kv, nil
}

func openCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	cat, err := catalog.Bundled()
	if err != nil {
		return nil, err
	}
	if cfg.Catalog.Dir != "" {
		sets, err := catalog.LoadDir(cfg.Catalog.Dir, catalog.LoadOptions{
			FlipHeight: cfg.Catalog.FlipHeight,
			Disabled:   cfg.Catalog.Disabled,
		})
		if err != nil {
			return nil, err
		}
		if err := cat.Add(sets...); err != nil {
			return nil, err
		}
	}
	for _, name := range cfg.Catalog.Disabled {
		_ = cat.SetEnabled(name, false)
	}
	return cat, nil
}

func hit(ctx context.Context, cfg *config.Config, p coords.WorldPoint) error {
	store, kv, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer kv.Close()
	cat, err := openCatalog(cfg)
	if err != nil {
		return err
	}

	s := viewport.NewSession(store, cat, viewport.Options{
		Zoom:           cfg.Map.ZoomRange(),
		HitPoint:       viewport.HitPoint(cfg.Viewport.HitPoint),
		UserRoomsFirst: cfg.Viewport.UserRoomsFirst,
	})
	res := s.Click(p)
	if !res.Found {
		fmt.Printf("🚫 Tile (%d, %d): no room\n", res.Tile.X, res.Tile.Y)
		return nil
	}
	fmt.Printf("🏠 Tile (%d, %d): %s [%s #%d]\n", res.Tile.X, res.Tile.Y, res.Room, res.RoomSource, res.RoomIndex)
	for _, r := range s.HitTest(res.Point)[1:] {
		fmt.Printf("   also inside: %s [%s]\n", r.Room.Name(), r.Set)
	}
	return nil
}

func export(ctx context.Context, cfg *config.Config, collection, path string) error {
	store, kv, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer kv.Close()

	var data string
	switch collection {
	case annotation.CollectionMarkers:
		data, err = store.ExportMarkers()
	case annotation.CollectionRooms:
		data, err = store.ExportRooms()
	default:
		return fmt.Errorf("unknown collection %q", collection)
	}
	if err != nil {
		return err
	}

	if path == "-" {
		_, err = fmt.Println(data)
		return err
	}
	return os.WriteFile(path, []byte(data), 0o644)
}

func importFile(ctx context.Context, cfg *config.Config, collection, path string) error {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return err
	}

	store, kv, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer kv.Close()

	var n int
	switch collection {
	case annotation.CollectionMarkers:
		n, err = store.ImportMarkers(ctx, string(data))
	case annotation.CollectionRooms:
		n, err = store.ImportRooms(ctx, string(data))
	default:
		return fmt.Errorf("unknown collection %q", collection)
	}
	if err != nil {
		return err
	}
	fmt.Printf("📥 Imported %d %s\n", n, collection)
	return nil
}

func showCatalog(cfg *config.Config) error {
	cat, err := openCatalog(cfg)
	if err != nil {
		return err
	}
	for _, s := range cat.Sets() {
		state := "✅"
		if !s.Enabled {
			state = "⛔"
		}
		fmt.Printf("%s %-16s rooms=%d markers=%d\n", state, s.Name, len(s.Rooms), len(s.Markers))
	}
	fmt.Printf("\n🎨 Icons: %d\n", len(cat.Icons()))
	return nil
}

// tail выводит события аннотаций из JetStream в реальном времени
func tail(cfg *config.Config, types []string) error {
	if cfg.EventBus.URL == "" {
		return fmt.Errorf("eventbus.url is not configured")
	}
	bus, err := eventbus.NewJetStreamBus(cfg.EventBus.URL, cfg.EventBus.Stream,
		time.Duration(cfg.EventBus.Retention)*time.Hour)
	if err != nil {
		return err
	}
	defer bus.Close()

	fmt.Printf("🎬 Tailing %s on %s\n", cfg.EventBus.Stream, cfg.EventBus.URL)
	sub, err := bus.Subscribe(context.Background(), eventbus.Filter{Types: types}, func(ctx context.Context, ev *eventbus.Envelope) {
		printEvent(ev)
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	return nil
}

func printEvent(ev *eventbus.Envelope) {
	ts := ev.Timestamp.Format("15:04:05.000")
	c, err := eventbus.DecodeChange(ev)
	if err != nil {
		fmt.Printf("[%s] %s %s (undecodable: %v)\n", ts, ev.EventType, ev.ID, err)
		return
	}
	fmt.Printf("[%s] %-22s %-7s #%d x%d %q src=%s\n", ts, ev.EventType, c.Collection, c.Index, c.Count, c.Name, ev.Source)
}

// parseStringList парсит строку с разделителями-запятыми в слайс
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}

	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AntonyGarand/bs-map-tools/internal/app"
	"github.com/AntonyGarand/bs-map-tools/internal/config"
	"github.com/AntonyGarand/bs-map-tools/internal/logging"
	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (по умолчанию $MAPTOOLS_CONFIG)")
	flag.Parse()

	// .env необязателен
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("⚠️ Ошибка чтения .env: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	logging.GetLoggerManager().Configure(logging.Options{
		Dir:          cfg.Logging.Dir,
		ConsoleLevel: logging.ParseLevel(cfg.Logging.Level),
		FileLevel:    logging.ParseLevel(cfg.Logging.FileLevel),
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
	}, cfg.Logging.Components)
	if err := logging.InitDefaultLogger("server"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()
	defer logging.GetLoggerManager().CloseAll()

	logging.Info("🗺️ Запуск сервера аннотаций карты...")

	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err != nil {
		logging.Error("❌ Ошибка инициализации: %v", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Run()
	}()

	logging.Info("✅ Сервер запущен")
	logging.Info("   🌐 REST API: http://%s", cfg.Server.Addr())
	logging.Info("   ❤️  Health check: http://%s/health", cfg.Server.Addr())

	// Канал для получения сигналов ОС
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info("📡 Получен сигнал %v, завершение работы...", sig)
	case err := <-errCh:
		if err != nil {
			logging.Error("❌ REST API остановлен с ошибкой: %v", err)
		}
	}

	// === GRACEFUL SHUTDOWN ===
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		logging.Error("❌ Ошибка остановки: %v", err)
	}

	logging.Info("👋 Сервер успешно остановлен")
}

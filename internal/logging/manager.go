package logging

import (
	"fmt"
	"os"
	"sync"
)

// Компоненты сервера карты; у каждого свой файл <dir>/<component>.log
const (
	ComponentApp        = "app"
	ComponentAPI        = "api"
	ComponentAnnotation = "annotation"
	ComponentCatalog    = "catalog"
	ComponentEventBus   = "eventbus"
	ComponentStorage    = "storage"
	ComponentTiles      = "tiles"
)

// LoggerManager хранит логгеры компонентов и консольные уровни,
// переопределённые в секции logging.components
type LoggerManager struct {
	mu        sync.Mutex
	loggers   map[string]*Logger
	overrides map[string]LogLevel
}

var (
	globalManager *LoggerManager
	managerOnce   sync.Once
)

func newLoggerManager() *LoggerManager {
	return &LoggerManager{
		loggers:   make(map[string]*Logger),
		overrides: make(map[string]LogLevel),
	}
}

// GetLoggerManager возвращает глобальный менеджер логгеров
func GetLoggerManager() *LoggerManager {
	managerOnce.Do(func() {
		globalManager = newLoggerManager()
	})
	return globalManager
}

// Configure задаёт общие настройки и уровни отдельных компонентов.
// Вызывается при старте, до создания компонентов: файлы уже созданных логгеров
// не переоткрываются, у них меняется только консольный уровень.
func (lm *LoggerManager) Configure(opts Options, levels map[string]string) {
	SetOptions(opts)

	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.overrides = make(map[string]LogLevel, len(levels))
	for component, level := range levels {
		lm.overrides[component] = ParseLevel(level)
	}
	for component, logger := range lm.loggers {
		logger.minConsoleLevel = lm.consoleLevel(component)
	}
}

func (lm *LoggerManager) consoleLevel(component string) LogLevel {
	if level, ok := lm.overrides[component]; ok {
		return level
	}
	return getOptions().ConsoleLevel
}

// GetLogger возвращает логгер компонента, создавая его при первом обращении.
// Если файл логов открыть не удалось, компонент пишет только в консоль.
func (lm *LoggerManager) GetLogger(component string) *Logger {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if logger, ok := lm.loggers[component]; ok {
		return logger
	}

	logger, err := NewLogger(component)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠️ логгер %s без файла: %v\n", component, err)
		logger = newConsoleLogger(component, os.Stdout, INFO)
	}
	logger.minConsoleLevel = lm.consoleLevel(component)
	lm.loggers[component] = logger
	return logger
}

// CloseAll закрывает файлы логов всех компонентов
func (lm *LoggerManager) CloseAll() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	var lastErr error
	for component, logger := range lm.loggers {
		if err := logger.Close(); err != nil {
			lastErr = fmt.Errorf("failed to close logger for %s: %w", component, err)
		}
	}
	lm.loggers = make(map[string]*Logger)
	return lastErr
}

// GetComponentLogger возвращает логгер компонента из глобального менеджера
func GetComponentLogger(component string) *Logger {
	return GetLoggerManager().GetLogger(component)
}

func GetStorageLogger() *Logger {
	return GetComponentLogger(ComponentStorage)
}

func GetAnnotationLogger() *Logger {
	return GetComponentLogger(ComponentAnnotation)
}

func GetAPILogger() *Logger {
	return GetComponentLogger(ComponentAPI)
}

func GetTilesLogger() *Logger {
	return GetComponentLogger(ComponentTiles)
}

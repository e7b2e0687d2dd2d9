package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// KV простое синхронное строковое хранилище ключ-значение.
// На нём лежат сохранённые коллекции аннотаций (ключи "markers" и "rooms").
type KV interface {
	// Get возвращает значение и признак его наличия.
	// Отсутствие ключа - не ошибка: found == false.
	Get(ctx context.Context, key string) (value string, found bool, err error)

	// Set сохраняет значение, перезаписывая предыдущее.
	Set(ctx context.Context, key, value string) error

	// Close закрывает хранилище.
	Close() error
}

// Драйверы хранилища
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverBadger = "badger"
	DriverRedis  = "redis"
	DriverMaria  = "maria"
	DriverMongo  = "mongo"
)

var (
	// ErrUnknownDriver неизвестное имя драйвера в конфигурации
	ErrUnknownDriver = errors.New("unknown storage driver")
	// ErrClosed операция над закрытым хранилищем
	ErrClosed = errors.New("storage closed")
)

// Config выбирает драйвер и его параметры.
// Path - путь к файлу для file и каталог для badger.
// Prefix добавляется к ключам в общих хранилищах (redis).
type Config struct {
	Driver string      `yaml:"driver"`
	Path   string      `yaml:"path"`
	Gzip   bool        `yaml:"gzip"`
	Prefix string      `yaml:"prefix"`
	Redis  RedisConfig `yaml:"redis"`
	Maria  MariaConfig `yaml:"maria"`
	Mongo  MongoConfig `yaml:"mongo"`
}

// DefaultConfig хранит аннотации в JSON файле рядом с процессом
func DefaultConfig() Config {
	return Config{
		Driver: DriverFile,
		Path:   "data/annotations.json",
		Prefix: "maptools:",
	}
}

// Open открывает хранилище по конфигурации
func Open(ctx context.Context, cfg Config) (KV, error) {
	switch strings.ToLower(cfg.Driver) {
	case DriverMemory, "":
		return NewMemoryKV(), nil
	case DriverFile:
		return NewFileKV(cfg.Path, cfg.Gzip)
	case DriverBadger:
		return NewBadgerKV(cfg.Path)
	case DriverRedis:
		rc := cfg.Redis
		if rc.KeyPrefix == "" {
			rc.KeyPrefix = cfg.Prefix
		}
		return NewRedisKV(ctx, &rc)
	case DriverMaria:
		return NewMariaKV(ctx, cfg.Maria)
	case DriverMongo:
		return NewMongoKV(ctx, cfg.Mongo)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// checkContext возвращает ошибку отменённого контекста
func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

const defaultOpTimeout = 5 * time.Second

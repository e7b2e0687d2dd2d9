package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

// MariaConfig содержит настройки подключения к MariaDB
type MariaConfig struct {
	Host     string `yaml:"host"`     // например, localhost
	Port     int    `yaml:"port"`     // например, 3306
	Database string `yaml:"database"` // например, maptools
	Username string `yaml:"username"` // пользователь БД
	Password string `yaml:"password"` // пароль БД
	Table    string `yaml:"table"`    // таблица ключ-значение
}

// DSN формирует строку подключения (user:pass@tcp(host:port)/dbname)
func (c MariaConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.Username, c.Password, c.Host, c.Port, c.Database)
}

func (c MariaConfig) withDefaults() MariaConfig {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 3306
	}
	if c.Database == "" {
		c.Database = "maptools"
	}
	if c.Table == "" {
		c.Table = "annotation_kv"
	}
	return c
}

// MariaKV хранит значения в таблице MariaDB/MySQL
type MariaKV struct {
	db    *sql.DB
	table string
}

// NewMariaKV подключается к MariaDB и создаёт таблицу, если её нет
func NewMariaKV(ctx context.Context, cfg MariaConfig) (*MariaKV, error) {
	cfg = cfg.withDefaults()

	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к MariaDB: %w", err)
	}

	// Проверяем соединение
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось проверить соединение с MariaDB: %w", err)
	}

	repo := &MariaKV{db: db, table: cfg.Table}
	if err := repo.createTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось создать таблицу: %w", err)
	}
	return repo, nil
}

// createTable создает таблицу ключ-значение, если она не существует
func (r *MariaKV) createTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			k          VARCHAR(191) PRIMARY KEY,
			v          LONGTEXT     NOT NULL,
			updated_at TIMESTAMP    DEFAULT CURRENT_TIMESTAMP
			           ON UPDATE    CURRENT_TIMESTAMP
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`, r.table)

	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ошибка создания таблицы %s: %w", r.table, err)
	}
	return nil
}

// Get читает значение
func (r *MariaKV) Get(ctx context.Context, key string) (string, bool, error) {
	query := fmt.Sprintf(`SELECT v FROM %s WHERE k = ?`, r.table)

	var value string
	err := r.db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("ошибка чтения ключа %s: %w", key, err)
	}
	return value, true, nil
}

// Set сохраняет значение через INSERT ... ON DUPLICATE KEY UPDATE
func (r *MariaKV) Set(ctx context.Context, key, value string) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (k, v) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE v = VALUES(v), updated_at = CURRENT_TIMESTAMP
	`, r.table)

	if _, err := r.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("ошибка сохранения ключа %s: %w", key, err)
	}
	return nil
}

// Close закрывает пул соединений
func (r *MariaKV) Close() error {
	return r.db.Close()
}

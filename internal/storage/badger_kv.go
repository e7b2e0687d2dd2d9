package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v3"
)

// BadgerKV хранит значения во встраиваемой BadgerDB
type BadgerKV struct {
	db      *badger.DB
	dbPath  string
	mutex   sync.RWMutex
	isReady bool
}

// NewBadgerKV открывает BadgerDB в каталоге dataPath
func NewBadgerKV(dataPath string) (*BadgerKV, error) {
	if dataPath == "" {
		return nil, fmt.Errorf("не задан каталог BadgerDB")
	}

	opts := badger.DefaultOptions(dataPath)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	return &BadgerKV{
		db:      db,
		dbPath:  dataPath,
		isReady: true,
	}, nil
}

// Get читает значение
func (b *BadgerKV) Get(ctx context.Context, key string) (string, bool, error) {
	if err := checkContext(ctx); err != nil {
		return "", false, err
	}

	b.mutex.RLock()
	defer b.mutex.RUnlock()

	if !b.isReady {
		return "", false, ErrClosed
	}

	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...)
			return nil
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}
	return string(data), true, nil
}

// Set записывает значение в отдельной транзакции
func (b *BadgerKV) Set(ctx context.Context, key, value string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	b.mutex.RLock()
	defer b.mutex.RUnlock()

	if !b.isReady {
		return ErrClosed
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}
	return nil
}

// Close закрывает базу
func (b *BadgerKV) Close() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if !b.isReady {
		return nil
	}
	b.isReady = false
	return b.db.Close()
}

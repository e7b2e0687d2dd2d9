package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/AntonyGarand/bs-map-tools/internal/logging"
	"github.com/klauspost/compress/gzip"
)

// FileKV хранит все ключи одним JSON снимком в файле.
// Каждая запись переписывает файл целиком через временный файл и rename.
type FileKV struct {
	path               string
	mu                 sync.RWMutex
	data               map[string]string
	version            uint64
	compressionEnabled bool
}

var errCorruptSnapshot = errors.New("corrupt snapshot")

// fileSnapshot формат файла
type fileSnapshot struct {
	Values       map[string]string `json:"values"`
	Version      uint64            `json:"version"`
	LastModified int64             `json:"last_modified"`
}

// NewFileKV открывает (или создаёт) файловое хранилище
func NewFileKV(path string, compress bool) (*FileKV, error) {
	if path == "" {
		return nil, fmt.Errorf("не задан путь файлового хранилища")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию %s: %w", dir, err)
	}

	fkv := &FileKV{
		path:               path,
		data:               make(map[string]string),
		compressionEnabled: compress,
	}

	snap, err := fkv.readSnapshot()
	if errors.Is(err, errCorruptSnapshot) {
		// повреждённый файл откладывается в сторону, хранилище начинает с пустого снимка
		backup := path + ".corrupt"
		if rerr := os.Rename(path, backup); rerr != nil {
			backup = ""
		}
		logging.GetStorageLogger().Warn("⚠️ Файл хранилища %s повреждён, начинаем с пустого (копия: %q): %v", path, backup, err)
		snap, err = nil, nil
	}
	if err != nil {
		return nil, err
	}
	if snap != nil {
		fkv.version = snap.Version
		if snap.Values != nil {
			fkv.data = snap.Values
		}
	}
	return fkv, nil
}

// Get возвращает значение по ключу
func (f *FileKV) Get(ctx context.Context, key string) (string, bool, error) {
	if err := checkContext(ctx); err != nil {
		return "", false, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.data[key]
	return v, ok, nil
}

// Set сохраняет значение и сразу записывает снимок на диск.
// При ошибке записи значение в памяти остаётся обновлённым.
func (f *FileKV) Set(ctx context.Context, key, value string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.data[key] = value
	return f.writeSnapshot()
}

// Close ничего не держит открытым
func (f *FileKV) Close() error {
	return nil
}

// readSnapshot читает файл; отсутствующий файл - пустое хранилище
func (f *FileKV) readSnapshot() (*fileSnapshot, error) {
	raw, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла %s: %w", f.path, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	// gzip определяется по сигнатуре, поэтому флаг можно менять без миграции
	if len(raw) > 2 && raw[0] == 0x1f && raw[1] == 0x8b {
		gz, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: распаковка %s: %v", errCorruptSnapshot, f.path, err)
		}
		defer gz.Close()
		if raw, err = io.ReadAll(gz); err != nil {
			return nil, fmt.Errorf("%w: распаковка %s: %v", errCorruptSnapshot, f.path, err)
		}
	}

	var snap fileSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("%w: десериализация %s: %v", errCorruptSnapshot, f.path, err)
	}
	return &snap, nil
}

func (f *FileKV) writeSnapshot() error {
	f.version++
	data, err := json.Marshal(fileSnapshot{
		Values:       f.data,
		Version:      f.version,
		LastModified: time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("ошибка сериализации снимка: %w", err)
	}

	if f.compressionEnabled {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		if _, err := gz.Write(data); err != nil {
			return fmt.Errorf("ошибка сжатия снимка: %w", err)
		}
		if err := gz.Close(); err != nil {
			return fmt.Errorf("ошибка сжатия снимка: %w", err)
		}
		data = buf.Bytes()
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("ошибка записи файла %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("ошибка замены файла %s: %w", f.path, err)
	}
	return nil
}

package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseKV общий сценарий для всех драйверов
func exerciseKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	t.Run("Missing key", func(t *testing.T) {
		v, found, err := kv.Get(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Empty(t, v)
	})

	t.Run("Set and Get", func(t *testing.T) {
		require.NoError(t, kv.Set(ctx, "markers", `[{"name":"Bank"}]`))
		v, found, err := kv.Get(ctx, "markers")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, `[{"name":"Bank"}]`, v)
	})

	t.Run("Overwrite", func(t *testing.T) {
		require.NoError(t, kv.Set(ctx, "rooms", "[]"))
		require.NoError(t, kv.Set(ctx, "rooms", `[{"name":"Cave","points":[]}]`))
		v, found, err := kv.Get(ctx, "rooms")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, `[{"name":"Cave","points":[]}]`, v)
	})
}

func TestMemoryKV(t *testing.T) {
	kv := NewMemoryKV()
	exerciseKV(t, kv)
	assert.ElementsMatch(t, []string{"markers", "rooms"}, kv.Keys())

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, kv.Set(canceled, "k", "v"), context.Canceled)

	require.NoError(t, kv.Close())
	_, _, err := kv.Get(context.Background(), "markers")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestFileKV(t *testing.T) {
	for _, compress := range []bool{false, true} {
		path := filepath.Join(t.TempDir(), "nested", "annotations.json")

		kv, err := NewFileKV(path, compress)
		require.NoError(t, err)
		exerciseKV(t, kv)
		require.NoError(t, kv.Close())

		// значения переживают повторное открытие, в том числе со сменой флага сжатия
		reopened, err := NewFileKV(path, !compress)
		require.NoError(t, err)
		v, found, err := reopened.Get(context.Background(), "rooms")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, `[{"name":"Cave","points":[]}]`, v)
	}
}

func TestFileKVCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "annotations.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	kv, err := NewFileKV(path, false)
	require.NoError(t, err)

	ctx := context.Background()
	_, found, err := kv.Get(ctx, "rooms")
	require.NoError(t, err)
	assert.False(t, found)

	backup, err := os.ReadFile(path + ".corrupt")
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(backup))

	// следующая запись заменяет повреждённый файл
	require.NoError(t, kv.Set(ctx, "rooms", "[]"))
	reopened, err := NewFileKV(path, false)
	require.NoError(t, err)
	v, found, err := reopened.Get(ctx, "rooms")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "[]", v)
}

func TestFileKVCorruptGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "annotations.json.gz")
	require.NoError(t, os.WriteFile(path, []byte{0x1f, 0x8b, 0x00, 0x01, 0x02}, 0644))

	kv, err := Open(context.Background(), Config{Driver: DriverFile, Path: path, Gzip: true})
	require.NoError(t, err)
	_, found, err := kv.Get(context.Background(), "markers")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestBadgerKV(t *testing.T) {
	dir := t.TempDir()
	kv, err := NewBadgerKV(dir)
	require.NoError(t, err)
	exerciseKV(t, kv)
	require.NoError(t, kv.Close())
	require.NoError(t, kv.Close())

	_, _, err = kv.Get(context.Background(), "markers")
	assert.ErrorIs(t, err, ErrClosed)

	reopened, err := NewBadgerKV(dir)
	require.NoError(t, err)
	defer reopened.Close()
	v, found, err := reopened.Get(context.Background(), "markers")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `[{"name":"Bank"}]`, v)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	kv, err := Open(ctx, Config{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryKV{}, kv)

	kv, err = Open(ctx, Config{Driver: "FILE", Path: filepath.Join(t.TempDir(), "a.json")})
	require.NoError(t, err)
	assert.IsType(t, &FileKV{}, kv)

	_, err = Open(ctx, Config{Driver: "etcd"})
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestMariaDSN(t *testing.T) {
	cfg := MariaConfig{Username: "u", Password: "p"}.withDefaults()
	assert.Equal(t, "u:p@tcp(localhost:3306)/maptools?charset=utf8mb4&parseTime=True&loc=Local", cfg.DSN())
	assert.Equal(t, "annotation_kv", cfg.Table)
}

// Интеграционные тесты внешних хранилищ запускаются только при заданном адресе

func TestRedisKVIntegration(t *testing.T) {
	addr := os.Getenv("MAPTOOLS_TEST_REDIS")
	if addr == "" {
		t.Skip("MAPTOOLS_TEST_REDIS не задан")
	}
	kv, err := NewRedisKV(context.Background(), &RedisConfig{Addr: addr, KeyPrefix: "maptools-test:"})
	require.NoError(t, err)
	defer kv.Close()
	exerciseKV(t, kv)
}

func TestMongoKVIntegration(t *testing.T) {
	uri := os.Getenv("MAPTOOLS_TEST_MONGO")
	if uri == "" {
		t.Skip("MAPTOOLS_TEST_MONGO не задан")
	}
	kv, err := NewMongoKV(context.Background(), MongoConfig{URI: uri, Collection: "annotations_test"})
	require.NoError(t, err)
	defer kv.Close()
	exerciseKV(t, kv)
}

func TestMariaKVIntegration(t *testing.T) {
	host := os.Getenv("MAPTOOLS_TEST_MARIA_HOST")
	if host == "" {
		t.Skip("MAPTOOLS_TEST_MARIA_HOST не задан")
	}
	kv, err := NewMariaKV(context.Background(), MariaConfig{
		Host:     host,
		Username: os.Getenv("MAPTOOLS_TEST_MARIA_USER"),
		Password: os.Getenv("MAPTOOLS_TEST_MARIA_PASSWORD"),
		Table:    "annotation_kv_test",
	})
	require.NoError(t, err)
	defer kv.Close()
	exerciseKV(t, kv)
}

package recordstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/solarwatch-core/internal/infrastructure/config"
	"github.com/nerrad567/solarwatch-core/internal/infrastructure/database"
)

var testHeader = []string{"ts", "iso", "seq"}

// backends returns a fresh instance of every Store implementation.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	fileStore, err := NewFileStore(t.TempDir(), 5*time.Second)
	require.NoError(t, err)

	db, err := database.Open(config.DatabaseConfig{Path: database.MemoryPath, BusyTimeout: 5})
	require.NoError(t, err)
	sqliteStore, err := NewSQLiteStore(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		fileStore.Close()   //nolint:errcheck // test cleanup
		sqliteStore.Close() //nolint:errcheck // test cleanup
	})

	return map[string]Store{"file": fileStore, "sqlite": sqliteStore}
}

func mustAppend(t *testing.T, store Partitions, key string, row []string) Undo {
	t.Helper()
	undo, err := store.Append(context.Background(), key, testHeader, row)
	require.NoError(t, err)
	require.NotNil(t, undo)
	return undo
}

func TestValidateKey(t *testing.T) {
	valid := []string{"alert_recipients.json", "data/X1/latest.json", "data/X1/log/2023-11.csv", "state/X-1_a.json"}
	for _, k := range valid {
		assert.NoError(t, ValidateKey(k), k)
	}

	invalid := []string{"", "/etc/passwd", "../escape", "data/../../x", "data\\x", "data//x", "data/./x", ".", "data/x/"}
	for _, k := range invalid {
		assert.ErrorIs(t, ValidateKey(k), ErrInvalidKey, k)
	}
}

func TestAppend_HeaderOnceThenRows(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := "data/X1/log/2023-11.csv"

			mustAppend(t, store, key, []string{"1700000000", "a", "1"})
			mustAppend(t, store, key, []string{"1700000060", "b, with comma", "2"})

			lines, err := store.Read(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, [][]string{
				testHeader,
				{"1700000000", "a", "1"},
				{"1700000060", "b, with comma", "2"},
			}, lines)
		})
	}
}

func TestAppend_ConcurrentFirstWritersProduceOneHeader(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := "data/X1/log/2024-01.csv"
			const writers = 16

			var wg sync.WaitGroup
			errs := make(chan error, writers)
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, err := store.Append(ctx, key, testHeader, []string{fmt.Sprint(1704067200 + i), "", fmt.Sprint(i)})
					errs <- err
				}(i)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}

			lines, err := store.Read(ctx, key)
			require.NoError(t, err)
			require.Len(t, lines, writers+1)
			assert.Equal(t, testHeader, lines[0])

			headers := 0
			for _, line := range lines {
				require.Len(t, line, len(testHeader))
				if line[0] == "ts" {
					headers++
				}
			}
			assert.Equal(t, 1, headers)
		})
	}
}

func TestAppend_UndoLastRow(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := "data/X1/log/2023-11.csv"

			mustAppend(t, store, key, []string{"1700000000", "a", "1"})
			undo := mustAppend(t, store, key, []string{"1700000060", "b", "2"})
			require.NoError(t, undo(ctx))

			lines, err := store.Read(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, [][]string{testHeader, {"1700000000", "a", "1"}}, lines)

			assert.ErrorIs(t, undo(ctx), ErrUndoConflict, "a row can only be withdrawn once")
		})
	}
}

func TestAppend_UndoRemovesCreatedPartition(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := "data/X1/log/2023-12.csv"

			undo := mustAppend(t, store, key, []string{"1701388800", "", "1"})
			require.NoError(t, undo(ctx))

			_, err := store.Read(ctx, key)
			assert.ErrorIs(t, err, ErrNotFound)

			// The next writer starts a fresh partition with its own header.
			mustAppend(t, store, key, []string{"1701388860", "", "2"})
			lines, err := store.Read(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, [][]string{testHeader, {"1701388860", "", "2"}}, lines)
		})
	}
}

func TestAppend_UndoKeepsLaterRows(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := "data/X1/log/2024-02.csv"

			undo := mustAppend(t, store, key, []string{"1706745600", "", "1"})
			mustAppend(t, store, key, []string{"1706745660", "", "2"})
			require.NoError(t, undo(ctx))

			lines, err := store.Read(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, [][]string{testHeader, {"1706745660", "", "2"}}, lines)
		})
	}
}

func TestRecords_Delete(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := "data/X1/latest.json"

			require.NoError(t, store.Delete(ctx, key), "deleting a missing record")
			require.NoError(t, store.Put(ctx, key, []byte(`{}`)))
			require.NoError(t, store.Delete(ctx, key))

			_, err := store.Get(ctx, key)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestHealthCheck(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, store.HealthCheck(context.Background()))
		})
	}

	root := filepath.Join(t.TempDir(), "data")
	fileStore, err := NewFileStore(root, time.Second)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(root))
	assert.Error(t, fileStore.HealthCheck(context.Background()), "missing root")

	db, err := database.Open(config.DatabaseConfig{Path: database.MemoryPath, BusyTimeout: 5})
	require.NoError(t, err)
	sqliteStore, err := NewSQLiteStore(context.Background(), db)
	require.NoError(t, err)
	require.NoError(t, sqliteStore.Close())
	assert.Error(t, sqliteStore.HealthCheck(context.Background()), "closed database")
}

func TestRead_MissingPartition(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Read(context.Background(), "data/X1/log/1999-01.csv")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestRecords_PutGet(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.Get(ctx, "data/X1/latest.json")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.Put(ctx, "data/X1/latest.json", []byte(`{"seq":1}`)))
			require.NoError(t, store.Put(ctx, "data/X1/latest.json", []byte(`{"seq":2}`)))

			got, err := store.Get(ctx, "data/X1/latest.json")
			require.NoError(t, err)
			assert.JSONEq(t, `{"seq":2}`, string(got))
		})
	}
}

func TestRecords_ReadModifyWrite(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := "state/counter.json"

			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := store.ReadModifyWrite(ctx, key, func(cur []byte) ([]byte, error) {
						n := 0
						if cur != nil {
							if _, err := fmt.Sscanf(string(cur), "%d", &n); err != nil {
								return nil, err
							}
						}
						return []byte(fmt.Sprint(n + 1)), nil
					})
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			got, err := store.Get(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, "20", string(got))
		})
	}
}

func TestRecords_ReadModifyWriteAbort(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := "state/X1.json"
			require.NoError(t, store.Put(ctx, key, []byte("before")))

			boom := errors.New("boom")
			err := store.ReadModifyWrite(ctx, key, func([]byte) ([]byte, error) { return nil, boom })
			assert.ErrorIs(t, err, boom)

			got, err := store.Get(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, "before", string(got))
		})
	}
}

func TestInvalidKeyRejectedEverywhere(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			bad := "../outside.json"
			_, err := store.Append(ctx, bad, testHeader, testHeader)
			assert.ErrorIs(t, err, ErrInvalidKey)
			_, err = store.Read(ctx, bad)
			assert.ErrorIs(t, err, ErrInvalidKey)
			_, err = store.Get(ctx, bad)
			assert.ErrorIs(t, err, ErrInvalidKey)
			assert.ErrorIs(t, store.Put(ctx, bad, nil), ErrInvalidKey)
			assert.ErrorIs(t, store.Delete(ctx, bad), ErrInvalidKey)
		})
	}
}

func TestOpen_SelectsBackend(t *testing.T) {
	ctx := context.Background()

	cfg := config.Default()
	cfg.Storage.DataDir = t.TempDir()
	store, err := Open(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)
	require.NoError(t, store.Close())

	cfg.Storage.Backend = config.BackendSQLite
	cfg.Database.Path = database.MemoryPath
	store, err = Open(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)
	require.NoError(t, store.Close())

	cfg.Storage.Backend = "tape"
	_, err = Open(ctx, cfg)
	assert.Error(t, err)
}

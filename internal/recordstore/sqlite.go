package recordstore

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/solarwatch-core/internal/infrastructure/database"
	"github.com/nerrad567/solarwatch-core/migrations"
)

// SQLiteStore keeps partitions and records in an embedded SQLite database.
// Each operation is one transaction; SQLite's single writer provides the
// mutual exclusion the file backend gets from flock.
type SQLiteStore struct {
	db *database.DB
}

// NewSQLiteStore applies the embedded migrations and wraps db. The store
// takes ownership of db and closes it on Close.
func NewSQLiteStore(ctx context.Context, db *database.DB) (*SQLiteStore, error) {
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		return nil, fmt.Errorf("migrating record store: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// HealthCheck implements Store.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	return s.db.HealthCheck(ctx)
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append implements Partitions.
func (s *SQLiteStore) Append(ctx context.Context, key string, header, row []string) (Undo, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	headerLine, err := encodeCSV(header)
	if err != nil {
		return nil, err
	}
	rowLine, err := encodeCSV(row)
	if err != nil {
		return nil, err
	}

	var (
		rowID   int64
		created bool
	)
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO partitions (key, header, created_at) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO NOTHING`,
			key, string(bytes.TrimRight(headerLine, "\n")), time.Now().Unix(),
		)
		if err != nil {
			return fmt.Errorf("creating partition: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 1 {
			created = true
		}
		res, err = tx.ExecContext(ctx,
			`INSERT INTO partition_rows (key, row) VALUES (?, ?)`,
			key, string(bytes.TrimRight(rowLine, "\n")),
		)
		if err != nil {
			return fmt.Errorf("appending row: %w", err)
		}
		rowID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("reading row id: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.undoAppend(key, rowID, created), nil
}

func (s *SQLiteStore) undoAppend(key string, rowID int64, created bool) Undo {
	return func(ctx context.Context) error {
		return s.db.WithTx(ctx, func(tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx, `DELETE FROM partition_rows WHERE id = ? AND key = ?`, rowID, key)
			if err != nil {
				return fmt.Errorf("deleting row: %w", err)
			}
			if n, err := res.RowsAffected(); err != nil || n != 1 {
				return fmt.Errorf("%w: %s", ErrUndoConflict, key)
			}
			if !created {
				return nil
			}
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM partitions WHERE key = ?
				 AND NOT EXISTS (SELECT 1 FROM partition_rows WHERE key = ?)`,
				key, key,
			); err != nil {
				return fmt.Errorf("deleting partition: %w", err)
			}
			return nil
		})
	}
}

// Read implements Partitions.
func (s *SQLiteStore) Read(ctx context.Context, key string) ([][]string, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	var header string
	err := s.db.QueryRowContext(ctx, `SELECT header FROM partitions WHERE key = ?`, key).Scan(&header)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("reading partition: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT row FROM partition_rows WHERE key = ? ORDER BY id`, key)
	if err != nil {
		return nil, fmt.Errorf("reading partition rows: %w", err)
	}
	defer rows.Close()

	var buf bytes.Buffer
	buf.WriteString(header)
	buf.WriteByte('\n')
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, fmt.Errorf("scanning partition row: %w", err)
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating partition rows: %w", err)
	}

	lines, err := newCSVReader(buf.Bytes()).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing partition %s: %w", key, err)
	}
	return lines, nil
}

// Get implements Records.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM records WHERE key = ?`, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("reading record: %w", err)
	}
	return body, nil
}

// Put implements Records.
func (s *SQLiteStore) Put(ctx context.Context, key string, body []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return upsertRecord(ctx, tx, key, body)
	})
}

// Delete implements Records.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}
	return nil
}

// ReadModifyWrite implements Records.
func (s *SQLiteStore) ReadModifyWrite(ctx context.Context, key string, fn ModifyFunc) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var current []byte
		err := tx.QueryRowContext(ctx, `SELECT body FROM records WHERE key = ?`, key).Scan(&current)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("reading record: %w", err)
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		return upsertRecord(ctx, tx, key, next)
	})
}

func upsertRecord(ctx context.Context, tx *sql.Tx, key string, body []byte) error {
	if body == nil {
		body = []byte{}
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO records (key, body, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		key, body, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	return nil
}

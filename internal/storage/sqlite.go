package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/comigor/jarvis-chat/internal/logger"
)

// SQLiteStore keeps every session payload as one row of a sessions table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and makes sure the
// sessions table exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(10000)")
	if err != nil {
		return nil, &Error{Op: "open", Key: path, Err: err}
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	logger.L.Info("sqlite history store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS sessions (
        id TEXT PRIMARY KEY,
        payload BLOB NOT NULL,
        updated_at DATETIME
    );`); err != nil {
		return &Error{Op: "migrate", Err: err}
	}
	return nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM sessions ORDER BY id DESC;`)
	if err != nil {
		return nil, &Error{Op: "list", Err: err}
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &Error{Op: "list", Err: err}
		}
		keys = append(keys, id)
	}
	if err := rows.Err(); err != nil {
		return nil, &Error{Op: "list", Err: err}
	}
	return keys, nil
}

// Read implements Store.
func (s *SQLiteStore) Read(ctx context.Context, id string) ([]byte, bool, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM sessions WHERE id = ?;`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &Error{Op: "read", Key: id, Err: err}
	}
	return payload, true, nil
}

// Write implements Store.
func (s *SQLiteStore) Write(ctx context.Context, id string, payload []byte) error {
	if payload == nil {
		payload = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO sessions (id, payload, updated_at) VALUES (?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at;`,
		id, payload, time.Now().UTC())
	if err != nil {
		return &Error{Op: "write", Key: id, Err: err}
	}
	return nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?;`, id); err != nil {
		return &Error{Op: "delete", Key: id, Err: err}
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

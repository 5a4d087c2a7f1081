// Package sqlite is a local record store keeping each document as a JSON
// blob keyed by (collection, id).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
	"github.com/rumor-ml/commons.systems/strdash/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	data       TEXT NOT NULL,
	PRIMARY KEY (collection, id)
)`

// Store implements store.Store on SQLite
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (or creates) the database at path. ":memory:" gives a private
// in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One connection: SQLite serializes writers anyway and every
	// connection to ":memory:" would see its own database.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Insert(ctx context.Context, coll string, data domain.Fields) (string, error) {
	id := uuid.NewString()
	if err := s.Upsert(ctx, coll, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) Upsert(ctx context.Context, coll, id string, data domain.Fields, mergeFields ...string) error {
	if id == "" {
		return fmt.Errorf("document id cannot be empty")
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return upsert(ctx, tx, coll, id, data, mergeFields)
	})
}

func (s *Store) Get(ctx context.Context, coll, id string) (*store.Document, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`, coll, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", coll, id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", coll, id, err)
	}
	data, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", coll, id, err)
	}
	return &store.Document{ID: id, Data: data}, nil
}

// Query filters with json_extract equality, ordered by id
func (s *Store) Query(ctx context.Context, coll string, preds ...store.Predicate) ([]store.Document, error) {
	q := `SELECT id, data FROM documents WHERE collection = ?`
	args := []interface{}{coll}
	for _, p := range preds {
		q += ` AND json_extract(data, ?) = ?`
		args = append(args, jsonPath(p.Field), bindValue(p.Value))
	}
	q += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", coll, err)
	}
	defer rows.Close()

	var docs []store.Document
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", coll, err)
		}
		data, err := decode(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", coll, id, err)
		}
		docs = append(docs, store.Document{ID: id, Data: data})
	}
	return docs, rows.Err()
}

func (s *Store) Delete(ctx context.Context, coll, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`, coll, id); err != nil {
		return fmt.Errorf("delete %s/%s: %w", coll, id, err)
	}
	return nil
}

// BatchWrite applies ops in one transaction
func (s *Store) BatchWrite(ctx context.Context, coll string, ops []store.Op) error {
	if err := store.CheckBatch(ops); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for i, op := range ops {
			var err error
			switch op.Kind {
			case store.OpSet:
				err = upsert(ctx, tx, coll, op.ID, op.Data, nil)
			case store.OpMerge:
				err = upsert(ctx, tx, coll, op.ID, op.Data, []string{store.MergeAll})
			case store.OpDelete:
				_, err = tx.ExecContext(ctx,
					`DELETE FROM documents WHERE collection = ? AND id = ?`, coll, op.ID)
			default:
				err = fmt.Errorf("unknown op kind %s", op.Kind)
			}
			if err != nil {
				return fmt.Errorf("op %d (%s %s): %w", i, op.Kind, op.ID, err)
			}
		}
		return nil
	})
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func upsert(ctx context.Context, tx *sql.Tx, coll, id string, data domain.Fields, mergeFields []string) error {
	var existing domain.Fields
	if len(mergeFields) > 0 {
		var raw string
		err := tx.QueryRowContext(ctx,
			`SELECT data FROM documents WHERE collection = ? AND id = ?`, coll, id).Scan(&raw)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("read %s/%s for merge: %w", coll, id, err)
		default:
			if existing, err = decode(raw); err != nil {
				return fmt.Errorf("decode %s/%s: %w", coll, id, err)
			}
		}
	}

	encoded, err := json.Marshal(store.ApplyMerge(existing, data, mergeFields))
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", coll, id, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data) VALUES (?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data`,
		coll, id, string(encoded))
	if err != nil {
		return fmt.Errorf("write %s/%s: %w", coll, id, err)
	}
	return nil
}

func decode(raw string) (domain.Fields, error) {
	var data domain.Fields
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, err
	}
	return data, nil
}

func jsonPath(field string) string {
	return `$."` + field + `"`
}

// bindValue converts a predicate value to what json_extract yields for the
// same stored value: JSON booleans come back as 0/1 and timestamps as the
// RFC 3339 text encoding/json wrote.
func bindValue(v interface{}) interface{} {
	switch t := store.Normalize(v).(type) {
	case bool:
		if t {
			return int64(1)
		}
		return int64(0)
	case time.Time:
		return t.Format(time.RFC3339Nano)
	default:
		return t
	}
}

package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/entrhq/scout/pkg/types"
)

// SQLiteStore keeps conversations in SQLite. A message row and the
// metadata row that counts it are written in one transaction.
type SQLiteStore struct {
	db *sql.DB
	// writes serializes writers; SQLite allows one at a time anyway and
	// this avoids busy errors under concurrent appends.
	writes sync.Mutex
}

// OpenSQLite opens (or creates) the database at path with WAL enabled.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	s, err := NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore creates a store on db, running migrations on first use.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate conversations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS conversations (
			key           TEXT PRIMARY KEY,
			status        TEXT NOT NULL,
			last_updated  TEXT NOT NULL,
			message_count INTEGER NOT NULL DEFAULT 0,
			meta          TEXT NOT NULL DEFAULT '{}'
		);
		CREATE TABLE IF NOT EXISTS messages (
			key        TEXT NOT NULL,
			seq        INTEGER NOT NULL,
			id         TEXT NOT NULL,
			role       TEXT NOT NULL,
			body       TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (key, seq)
		);
	`)
	return err
}

func (s *SQLiteStore) Append(ctx context.Context, key string, msg types.Message) error {
	if err := checkAppend(key, msg); err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	s.writes.Lock()
	defer s.writes.Unlock()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		var seq int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(seq), 0) FROM messages WHERE key = ?`, key,
		).Scan(&seq); err != nil {
			return fmt.Errorf("next seq: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (key, seq, id, role, body, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			key, seq+1, msg.ID, string(msg.Role), string(body), msg.CreatedAt.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}

		m, err := metaTx(ctx, tx, key)
		if err != nil {
			return err
		}
		count, err := countTx(ctx, tx, key)
		if err != nil {
			return err
		}
		touch(&m, key, count, StatusActive, now())
		return putMetaTx(ctx, tx, m)
	})
}

func (s *SQLiteStore) Load(ctx context.Context, key string) ([]types.Message, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM messages WHERE key = ? ORDER BY seq ASC`, key)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	msgs := []types.Message{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var msg types.Message
		if err := json.Unmarshal([]byte(body), &msg); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func (s *SQLiteStore) Clear(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	s.writes.Lock()
	defer s.writes.Unlock()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE key = ?`, key); err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		m, err := metaTx(ctx, tx, key)
		if err != nil {
			return err
		}
		touch(&m, key, 0, StatusCleared, now())
		return putMetaTx(ctx, tx, m)
	})
}

func (s *SQLiteStore) Meta(ctx context.Context, key string) (Metadata, error) {
	if err := ValidateKey(key); err != nil {
		return Metadata{}, err
	}
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT meta FROM conversations WHERE key = ?`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return newMetadata(key), nil
	}
	if err != nil {
		return Metadata{}, fmt.Errorf("query metadata: %w", err)
	}
	var m Metadata
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return Metadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	return m, nil
}

func (s *SQLiteStore) UpdateMeta(ctx context.Context, key string, patch func(*Metadata)) (Metadata, error) {
	if err := ValidateKey(key); err != nil {
		return Metadata{}, err
	}
	s.writes.Lock()
	defer s.writes.Unlock()

	var out Metadata
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		m, err := metaTx(ctx, tx, key)
		if err != nil {
			return err
		}
		count, err := countTx(ctx, tx, key)
		if err != nil {
			return err
		}
		out = applyPatch(m, key, count, patch)
		return putMetaTx(ctx, tx, out)
	})
	return out, err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func metaTx(ctx context.Context, tx *sql.Tx, key string) (Metadata, error) {
	var raw string
	err := tx.QueryRowContext(ctx, `SELECT meta FROM conversations WHERE key = ?`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return newMetadata(key), nil
	}
	if err != nil {
		return Metadata{}, fmt.Errorf("query metadata: %w", err)
	}
	var m Metadata
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return Metadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	return m, nil
}

func countTx(ctx context.Context, tx *sql.Tx, key string) (int, error) {
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE key = ?`, key).Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

func putMetaTx(ctx context.Context, tx *sql.Tx, m Metadata) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (key, status, last_updated, message_count, meta)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			status = excluded.status,
			last_updated = excluded.last_updated,
			message_count = excluded.message_count,
			meta = excluded.meta`,
		m.Key, m.Status, m.LastUpdated.Format(time.RFC3339Nano), m.MessageCount, string(raw),
	)
	if err != nil {
		return fmt.Errorf("upsert metadata: %w", err)
	}
	return nil
}

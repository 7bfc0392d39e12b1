// Package sqlite implements the message store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/bft-labs/mmsgate/internal/domain"
)

//go:embed schema.sql
var schema string

// Store implements ports.MessageStore.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path. Use ":memory:" for
// a private in-memory database.
func Open(ctx context.Context, path string, busyTimeout time.Duration) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if busyTimeout > 0 {
		_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()))
	}
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Save(ctx context.Context, msg domain.Message) (string, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Status == "" {
		msg.Status = domain.StatusPending
	}
	if msg.UpdatedAt.IsZero() {
		msg.UpdatedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages(id, message_type, content_location, transaction_id, body, remote_id, status, last_error, updated_at)
		 VALUES(?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   message_type=excluded.message_type,
		   content_location=excluded.content_location,
		   transaction_id=excluded.transaction_id,
		   body=excluded.body,
		   remote_id=excluded.remote_id,
		   status=excluded.status,
		   last_error=excluded.last_error,
		   updated_at=excluded.updated_at`,
		msg.ID, msg.MessageType, nullStr(msg.ContentLocation), nullStr(msg.TransactionID), msg.Body,
		nullStr(msg.RemoteID), msg.Status, int(msg.LastError), msg.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("save message: %w", err)
	}
	return msg.ID, nil
}

func (s *Store) Load(ctx context.Context, id string) (domain.Message, error) {
	var (
		msg                      domain.Message
		location, txID, remoteID sql.NullString
		lastError                int
		updated                  int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, message_type, content_location, transaction_id, body, remote_id, status, last_error, updated_at
		 FROM messages WHERE id = ?`, id,
	).Scan(&msg.ID, &msg.MessageType, &location, &txID, &msg.Body, &remoteID, &msg.Status, &lastError, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Message{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return domain.Message{}, fmt.Errorf("load message: %w", err)
	}
	msg.ContentLocation = location.String
	msg.TransactionID = txID.String
	msg.RemoteID = remoteID.String
	msg.LastError = domain.ErrorKind(lastError)
	msg.UpdatedAt = time.Unix(0, updated)
	return msg, nil
}

// MarkFailed records the failure. Permanent failures move the message out of
// the pending set.
func (s *Store) MarkFailed(ctx context.Context, id string, kind domain.ErrorKind) error {
	query := `UPDATE messages SET last_error = ?, updated_at = ? WHERE id = ?`
	args := []any{int(kind), s.now().UnixNano(), id}
	if !kind.Transient() {
		query = `UPDATE messages SET last_error = ?, updated_at = ?, status = ? WHERE id = ?`
		args = []any{int(kind), s.now().UnixNano(), domain.StatusFailed, id}
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return nil
}

func (s *Store) PendingWork(ctx context.Context) ([]domain.PendingItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, message_type, last_error FROM messages WHERE status = ? ORDER BY updated_at, id`,
		domain.StatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}
	defer rows.Close()

	var items []domain.PendingItem
	for rows.Next() {
		var (
			item      domain.PendingItem
			lastError int
		)
		if err := rows.Scan(&item.Target, &item.MessageType, &lastError); err != nil {
			return nil, err
		}
		item.LastError = domain.ErrorKind(lastError)
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func nullStr(v string) any {
	if v == "" {
		return nil
	}
	return v
}

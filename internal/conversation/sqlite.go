package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/google/uuid"
	"github.com/haasonsaas/sentinel/pkg/models"
)

// SQLiteStore is the embedded, single-file persistence backend, opt-in
// like PostgresStore (MemoryStore is the default) — same shape as PostgresStore,
// adapted for sqlite3's positional `?` placeholders and lack of array
// parameters. Grounded on the same internal/sessions/cockroach.go
// general pattern as PostgresStore, narrowed to one file and one
// driver connection (sqlite3 does not support concurrent writers, so
// the store serializes writes itself).
type SQLiteStore struct {
	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteStore opens (and, if necessary, creates) the sqlite3
// database file at path and ensures the schema exists.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("conversation: open sqlite3: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite3 serializes writers; avoid pool contention errors

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("conversation: ping sqlite3: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS conversations (
			platform   TEXT NOT NULL,
			chat_id    TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (platform, chat_id)
		);
		CREATE TABLE IF NOT EXISTS conversation_messages (
			id         TEXT PRIMARY KEY,
			platform   TEXT NOT NULL,
			chat_id    TEXT NOT NULL,
			role       TEXT NOT NULL,
			body       BLOB NOT NULL,
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_conversation_messages_chat
			ON conversation_messages (platform, chat_id, created_at);
	`)
	if err != nil {
		return fmt.Errorf("conversation: migrate sqlite3: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ensureConversation(ctx context.Context, key models.ConversationKey) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (platform, chat_id, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (platform, chat_id) DO NOTHING
	`, key.Platform, key.ChatID, now, now)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, key models.ConversationKey) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(ctx, key)
}

func (s *SQLiteStore) getLocked(ctx context.Context, key models.ConversationKey) (*models.Conversation, error) {
	if err := s.ensureConversation(ctx, key); err != nil {
		return nil, fmt.Errorf("conversation: ensure: %w", err)
	}

	var createdAt, updatedAt time.Time
	row := s.db.QueryRowContext(ctx, `SELECT created_at, updated_at FROM conversations WHERE platform = ? AND chat_id = ?`, key.Platform, key.ChatID)
	if err := row.Scan(&createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("conversation: get: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, body, created_at FROM conversation_messages
		WHERE platform = ? AND chat_id = ?
		ORDER BY created_at ASC
	`, key.Platform, key.ChatID)
	if err != nil {
		return nil, fmt.Errorf("conversation: get messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: iterate messages: %w", err)
	}

	return &models.Conversation{Key: key, Messages: messages, CreatedAt: createdAt, UpdatedAt: updatedAt}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, key models.ConversationKey, msg *models.Message, historyCap int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureConversation(ctx, key); err != nil {
		return fmt.Errorf("conversation: ensure: %w", err)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("conversation: marshal message: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("conversation: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversation_messages (id, platform, chat_id, role, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.ID, key.Platform, key.ChatID, msg.Role, body, msg.CreatedAt); err != nil {
		return fmt.Errorf("conversation: insert message: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE platform = ? AND chat_id = ?`, time.Now(), key.Platform, key.ChatID); err != nil {
		return fmt.Errorf("conversation: update timestamp: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("conversation: commit: %w", err)
	}

	return s.trimLocked(ctx, key, historyCap)
}

func (s *SQLiteStore) trimLocked(ctx context.Context, key models.ConversationKey, historyCap int) error {
	if historyCap <= 0 {
		return nil
	}

	conv, err := s.getLocked(ctx, key)
	if err != nil {
		return err
	}
	kept := TrimMatchedPairs(conv.Messages, historyCap)
	if len(kept) == len(conv.Messages) {
		return nil
	}

	keepIDs := make([]string, 0, len(kept))
	for _, m := range kept {
		keepIDs = append(keepIDs, m.ID)
	}

	placeholders := make([]string, len(keepIDs))
	args := make([]any, 0, len(keepIDs)+2)
	args = append(args, key.Platform, key.ChatID)
	for i, id := range keepIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}

	query := fmt.Sprintf(
		`DELETE FROM conversation_messages WHERE platform = ? AND chat_id = ? AND id NOT IN (%s)`,
		strings.Join(placeholders, ","),
	)
	if len(keepIDs) == 0 {
		query = `DELETE FROM conversation_messages WHERE platform = ? AND chat_id = ?`
		args = []any{key.Platform, key.ChatID}
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("conversation: trim: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context, key models.ConversationKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureConversation(ctx, key); err != nil {
		return fmt.Errorf("conversation: ensure: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversation_messages WHERE platform = ? AND chat_id = ?`, key.Platform, key.ChatID); err != nil {
		return fmt.Errorf("conversation: clear: %w", err)
	}
	return nil
}

package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/haasonsaas/sentinel/pkg/models"
)

// PostgresStore is the durable Store backend, grounded on nexus's
// internal/sessions/cockroach.go: a lib/pq connection, prepared
// statements, and JSON-encoded message bodies. Selected via
// [persistence] configuration for deployments that want conversation
// history to survive a restart.
type PostgresStore struct {
	db *sql.DB

	stmtUpsertConversation *sql.Stmt
	stmtGetConversation    *sql.Stmt
	stmtInsertMessage      *sql.Stmt
	stmtGetMessages        *sql.Stmt
	stmtReplaceMessages    *sql.Stmt
	stmtClearMessages      *sql.Stmt
}

// NewPostgresStore opens dsn, verifies connectivity, and prepares the
// statements PostgresStore reuses across calls. The schema
// (conversations, conversation_messages tables) is expected to already
// exist — Sentinel does not run migrations itself.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("conversation: open postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("conversation: ping postgres: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) prepareStatements() error {
	var err error

	s.stmtUpsertConversation, err = s.db.Prepare(`
		INSERT INTO conversations (platform, chat_id, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (platform, chat_id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("conversation: prepare upsert: %w", err)
	}

	s.stmtGetConversation, err = s.db.Prepare(`
		SELECT created_at, updated_at FROM conversations WHERE platform = $1 AND chat_id = $2
	`)
	if err != nil {
		return fmt.Errorf("conversation: prepare get: %w", err)
	}

	s.stmtInsertMessage, err = s.db.Prepare(`
		INSERT INTO conversation_messages (id, platform, chat_id, role, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`)
	if err != nil {
		return fmt.Errorf("conversation: prepare insert message: %w", err)
	}

	s.stmtGetMessages, err = s.db.Prepare(`
		SELECT id, role, body, created_at FROM conversation_messages
		WHERE platform = $1 AND chat_id = $2
		ORDER BY created_at ASC
	`)
	if err != nil {
		return fmt.Errorf("conversation: prepare get messages: %w", err)
	}

	s.stmtReplaceMessages, err = s.db.Prepare(`
		DELETE FROM conversation_messages WHERE platform = $1 AND chat_id = $2 AND id <> ALL($3)
	`)
	if err != nil {
		return fmt.Errorf("conversation: prepare replace messages: %w", err)
	}

	s.stmtClearMessages, err = s.db.Prepare(`
		DELETE FROM conversation_messages WHERE platform = $1 AND chat_id = $2
	`)
	if err != nil {
		return fmt.Errorf("conversation: prepare clear messages: %w", err)
	}

	return nil
}

// Close releases the underlying connection pool and prepared statements.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) ensureConversation(ctx context.Context, key models.ConversationKey) error {
	now := time.Now()
	_, err := s.stmtUpsertConversation.ExecContext(ctx, key.Platform, key.ChatID, now)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, key models.ConversationKey) (*models.Conversation, error) {
	if err := s.ensureConversation(ctx, key); err != nil {
		return nil, fmt.Errorf("conversation: ensure: %w", err)
	}

	var createdAt, updatedAt time.Time
	if err := s.stmtGetConversation.QueryRowContext(ctx, key.Platform, key.ChatID).Scan(&createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("conversation: get: %w", err)
	}

	rows, err := s.stmtGetMessages.QueryContext(ctx, key.Platform, key.ChatID)
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

func (s *PostgresStore) Append(ctx context.Context, key models.ConversationKey, msg *models.Message, historyCap int) error {
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

	if _, err := tx.StmtContext(ctx, s.stmtInsertMessage).ExecContext(ctx, msg.ID, key.Platform, key.ChatID, msg.Role, body, msg.CreatedAt); err != nil {
		return fmt.Errorf("conversation: insert message: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at = $1 WHERE platform = $2 AND chat_id = $3`, time.Now(), key.Platform, key.ChatID); err != nil {
		return fmt.Errorf("conversation: update timestamp: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("conversation: commit: %w", err)
	}

	return s.trim(ctx, key, historyCap)
}

// trim re-reads the full history and deletes whatever TrimMatchedPairs
// would have evicted, keeping the table bounded the same way
// MemoryStore bounds its in-memory slice.
func (s *PostgresStore) trim(ctx context.Context, key models.ConversationKey, historyCap int) error {
	if historyCap <= 0 {
		return nil
	}

	conv, err := s.Get(ctx, key)
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

	_, err = s.stmtReplaceMessages.ExecContext(ctx, key.Platform, key.ChatID, pq.Array(keepIDs))
	if err != nil {
		return fmt.Errorf("conversation: trim: %w", err)
	}
	return nil
}

func (s *PostgresStore) Clear(ctx context.Context, key models.ConversationKey) error {
	if err := s.ensureConversation(ctx, key); err != nil {
		return fmt.Errorf("conversation: ensure: %w", err)
	}
	if _, err := s.stmtClearMessages.ExecContext(ctx, key.Platform, key.ChatID); err != nil {
		return fmt.Errorf("conversation: clear: %w", err)
	}
	return nil
}

func scanMessage(rows *sql.Rows) (*models.Message, error) {
	var id, role string
	var body []byte
	var createdAt time.Time
	if err := rows.Scan(&id, &role, &body, &createdAt); err != nil {
		return nil, fmt.Errorf("conversation: scan message: %w", err)
	}
	var msg models.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("conversation: unmarshal message: %w", err)
	}
	msg.ID = id
	msg.CreatedAt = createdAt
	return &msg, nil
}

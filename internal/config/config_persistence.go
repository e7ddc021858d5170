package config

// PersistenceConfig selects where the audit sink writes and which
// conversation.Store backend holds per-chat history. Conversation
// history is required by spec.md §4.6 to survive within a process;
// ConversationStore additionally lets it survive a restart.
type PersistenceConfig struct {
	// AuditLogPath is a file the audit sink appends to, opened
	// append-only. Empty means stderr only.
	AuditLogPath string `yaml:"audit_log_path"`

	// AuditLogStderr additionally mirrors every audit event to stderr.
	AuditLogStderr bool `yaml:"audit_log_stderr"`

	// ConversationStore selects the conversation.Store backend:
	// "memory" (default, process-lifetime only), "sqlite", or
	// "postgres".
	ConversationStore string `yaml:"conversation_store"`

	// ConversationDSN is the connection string for the "sqlite"
	// (file path) or "postgres" (libpq DSN) backend. Unused for
	// "memory".
	ConversationDSN string `yaml:"conversation_dsn"`
}

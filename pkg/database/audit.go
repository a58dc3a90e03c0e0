package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditEntry is one recorded maintenance action against a chat: a repair
// attempt, a forced release, a diagnostic run.
type AuditEntry struct {
	ID        string
	ChatID    int64
	Action    string
	Status    string
	Details   string
	CreatedAt time.Time
}

// Audit action status values.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// AuditRepository persists maintenance actions for later inspection.
type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Record inserts one audit entry and returns its generated id.
func (r *AuditRepository) Record(ctx context.Context, chatID int64, action, status, details string) (string, error) {
	id := uuid.NewString()
	const q = `INSERT INTO repair_audit (id, chat_id, action, status, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, q, id, chatID, action, status, details, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("record audit entry: %w", err)
	}
	return id, nil
}

// Recent returns the latest entries for a chat, newest first. A chatID of
// zero returns entries across all chats.
func (r *AuditRepository) Recent(ctx context.Context, chatID int64, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT id, chat_id, action, status, details, created_at
		FROM repair_audit`
	args := []any{}
	if chatID != 0 {
		q += ` WHERE chat_id = ?`
		args = append(args, chatID)
	}
	q += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.ChatID, &e.Action, &e.Status, &e.Details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

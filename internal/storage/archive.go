package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"studyguider/internal/models"
)

// Archive appends completed chat turns to a SQL table. It is a write-behind
// record of conversations and never feeds the agent.
type Archive struct {
	db *sql.DB
}

func NewArchive(db *sql.DB) *Archive {
	return &Archive{db: db}
}

// Record stores msgs for sessionID in one transaction.
func (a *Archive) Record(ctx context.Context, sessionID, requestID string, msgs ...models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chat_messages (session_id, role, content, request_id, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare archive insert: %w", err)
	}
	defer stmt.Close()

	for _, msg := range msgs {
		created := msg.CreatedAt
		if created.IsZero() {
			created = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx, sessionID, string(msg.Role), msg.Content, requestID, created); err != nil {
			return fmt.Errorf("archive message: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit archive tx: %w", err)
	}
	return nil
}

// Transcript returns every archived message of sessionID in insertion order.
func (a *Archive) Transcript(ctx context.Context, sessionID string) ([]models.Message, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT role, content, created_at FROM chat_messages WHERE session_id = ? ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()

	msgs := []models.Message{}
	for rows.Next() {
		var (
			msg  models.Message
			role string
		)
		if err := rows.Scan(&role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		msg.Role = models.Role(role)
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// DeleteSession removes the archived transcript of sessionID.
func (a *Archive) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := a.db.ExecContext(ctx, `DELETE FROM chat_messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete transcript: %w", err)
	}
	return nil
}

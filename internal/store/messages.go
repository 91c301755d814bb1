// ABOUTME: Message operations for the conversation ledger
// ABOUTME: Append with global retention trim, conversation summaries, per-number history

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AppendMessage persists one canonical message record. An empty ID and zero
// Timestamp are filled in at write time. The insert and the retention trim
// run in a single transaction so concurrent appends cannot lose records.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning append transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, phone_number, body, direction, status, timestamp, origin_backend, backend_ref)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		msg.ID,
		msg.PhoneNumber,
		msg.Body,
		string(msg.Direction),
		msg.Status,
		formatTime(msg.Timestamp),
		msg.OriginBackend,
		msg.BackendRef,
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	// Global retention: discard the oldest records past the bound, no matter
	// which conversation they belong to. A single busy conversation can push
	// older conversations out of the window entirely.
	_, err = tx.ExecContext(ctx, `
		DELETE FROM messages WHERE id IN (
			SELECT id FROM messages
			ORDER BY timestamp DESC, rowid DESC
			LIMIT -1 OFFSET ?
		)
	`, s.retentionLimit)
	if err != nil {
		return fmt.Errorf("trimming messages: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing append: %w", err)
	}

	s.logger.Debug("appended message",
		"id", msg.ID,
		"phone_number", msg.PhoneNumber,
		"direction", msg.Direction,
		"origin", msg.OriginBackend,
	)
	return nil
}

// ListConversations returns one summary per distinct phone number, sorted by
// latest message timestamp descending.
func (s *SQLiteStore) ListConversations(ctx context.Context) ([]*ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.phone_number, m.body, m.direction, m.timestamp, c.cnt
		FROM messages m
		JOIN (
			SELECT phone_number, MAX(timestamp) AS ts, COUNT(*) AS cnt
			FROM messages
			GROUP BY phone_number
		) c ON m.phone_number = c.phone_number AND m.timestamp = c.ts
		GROUP BY m.phone_number
		ORDER BY m.timestamp DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var summaries []*ConversationSummary
	for rows.Next() {
		var (
			sum       ConversationSummary
			direction string
			ts        string
		)
		if err := rows.Scan(&sum.PhoneNumber, &sum.LastBody, &direction, &ts, &sum.MessageCount); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		sum.LastDirection = Direction(direction)
		if sum.LastTimestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		summaries = append(summaries, &sum)
	}
	return summaries, rows.Err()
}

// GetMessages returns all records for a phone number in chronological order.
func (s *SQLiteStore) GetMessages(ctx context.Context, phoneNumber string) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, phone_number, body, direction, status, timestamp, origin_backend, backend_ref
		FROM messages
		WHERE phone_number = ?
		ORDER BY timestamp ASC, rowid ASC
	`, phoneNumber)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// StatsToday counts today's messages by direction and failure status.
func (s *SQLiteStore) StatsToday(ctx context.Context) (*MessageStats, error) {
	startOfDay := time.Now().UTC().Truncate(24 * time.Hour)

	row := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN direction = 'inbound' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN direction = 'outbound' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
		FROM messages
		WHERE timestamp >= ?
	`, formatTime(startOfDay))

	stats := &MessageStats{}
	if err := row.Scan(&stats.Total, &stats.Inbound, &stats.Outbound, &stats.Failed); err != nil {
		return nil, fmt.Errorf("querying stats: %w", err)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*Message, error) {
	var (
		msg       Message
		direction string
		ts        string
	)
	err := row.Scan(
		&msg.ID,
		&msg.PhoneNumber,
		&msg.Body,
		&direction,
		&msg.Status,
		&ts,
		&msg.OriginBackend,
		&msg.BackendRef,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning message: %w", err)
	}
	msg.Direction = Direction(direction)
	if msg.Timestamp, err = parseTime(ts); err != nil {
		return nil, fmt.Errorf("parsing timestamp: %w", err)
	}
	return &msg, nil
}

package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rainergb/omni-chat-app-sub001/internal/chat"
	"github.com/rainergb/omni-chat-app-sub001/internal/model"
)

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// SaveInstances replaces the cached instance list. Transient pairing codes are
// not persisted.
func (db *DB) SaveInstances(ctx context.Context, instances []model.Instance) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM instances`); err != nil {
		return fmt.Errorf("clear instances: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO instances (id, position, name, type, status, last_activity, messages_count, created_at, webhook_url, avatar)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for i, inst := range instances {
		if _, err := stmt.ExecContext(ctx,
			inst.ID, i, inst.Name, string(inst.Type), string(inst.Status),
			toMillis(inst.LastActivity), inst.MessagesCount, toMillis(inst.CreatedAt),
			inst.WebhookURL, inst.Avatar,
		); err != nil {
			return fmt.Errorf("insert instance %s: %w", inst.ID, err)
		}
	}
	return tx.Commit()
}

// LoadInstances returns the cached instance list in its saved order.
func (db *DB) LoadInstances(ctx context.Context) ([]model.Instance, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, type, status, last_activity, messages_count, created_at, webhook_url, avatar
		FROM instances ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.Instance
	for rows.Next() {
		var (
			inst                    model.Instance
			typ, status             string
			lastActivity, createdAt int64
		)
		if err := rows.Scan(&inst.ID, &inst.Name, &typ, &status, &lastActivity, &inst.MessagesCount, &createdAt, &inst.WebhookURL, &inst.Avatar); err != nil {
			return nil, err
		}
		inst.Type = model.ParsePlatform(typ)
		inst.Status = model.MapRemoteStatus(status)
		inst.LastActivity = fromMillis(lastActivity)
		inst.CreatedAt = fromMillis(createdAt)
		out = append(out, inst)
	}
	return out, rows.Err()
}

// SaveChats replaces the cached chats and message sequences with snap.
func (db *DB) SaveChats(ctx context.Context, snap chat.Snapshot) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range []string{`DELETE FROM messages`, `DELETE FROM chats`} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("clear: %w", err)
		}
	}

	chatStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chats (id, position, instance_id, platform, contact_name, contact_phone, avatar,
			last_message, last_message_time, unread_count, is_group, participants, is_pinned, is_muted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = chatStmt.Close() }()

	for i, c := range snap.Chats {
		participants, err := json.Marshal(c.Participants)
		if err != nil {
			return err
		}
		if _, err := chatStmt.ExecContext(ctx,
			c.ID, i, c.InstanceID, string(c.Platform), c.ContactName, c.ContactPhone, c.Avatar,
			c.LastMessage, toMillis(c.LastMessageTime), c.UnreadCount, c.IsGroup, string(participants),
			c.IsPinned, c.IsMuted,
		); err != nil {
			return fmt.Errorf("insert chat %s: %w", c.ID, err)
		}
	}

	msgStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (chat_id, seq, id, content, type, timestamp, sender_id, sender_name,
			sender_is_me, status, reply_to, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = msgStmt.Close() }()

	for chatID, msgs := range snap.Messages {
		for seq, m := range msgs {
			meta := ""
			if m.Metadata != nil {
				b, err := json.Marshal(m.Metadata)
				if err != nil {
					return err
				}
				meta = string(b)
			}
			if _, err := msgStmt.ExecContext(ctx,
				chatID, seq, m.ID, m.Content, string(m.Type), toMillis(m.Timestamp),
				m.Sender.ID, m.Sender.Name, m.Sender.IsMe, string(m.Status), m.ReplyTo, meta,
			); err != nil {
				return fmt.Errorf("insert message %s: %w", m.ID, err)
			}
		}
	}
	return tx.Commit()
}

// LoadChats returns the cached chats and message sequences.
func (db *DB) LoadChats(ctx context.Context) (chat.Snapshot, error) {
	snap := chat.Snapshot{Messages: make(map[string][]model.Message)}

	rows, err := db.QueryContext(ctx, `
		SELECT id, instance_id, platform, contact_name, contact_phone, avatar, last_message,
			last_message_time, unread_count, is_group, participants, is_pinned, is_muted
		FROM chats ORDER BY position`)
	if err != nil {
		return snap, err
	}
	for rows.Next() {
		var (
			c            model.Chat
			platform     string
			lastTime     int64
			participants string
		)
		if err := rows.Scan(&c.ID, &c.InstanceID, &platform, &c.ContactName, &c.ContactPhone, &c.Avatar,
			&c.LastMessage, &lastTime, &c.UnreadCount, &c.IsGroup, &participants, &c.IsPinned, &c.IsMuted); err != nil {
			_ = rows.Close()
			return snap, err
		}
		c.Platform = model.Platform(platform)
		c.LastMessageTime = fromMillis(lastTime)
		_ = json.Unmarshal([]byte(participants), &c.Participants)
		snap.Chats = append(snap.Chats, c)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return snap, err
	}
	_ = rows.Close()

	rows, err = db.QueryContext(ctx, `
		SELECT chat_id, id, content, type, timestamp, sender_id, sender_name, sender_is_me, status, reply_to, metadata
		FROM messages ORDER BY chat_id, seq`)
	if err != nil {
		return snap, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			m       model.Message
			typ, st string
			ts      int64
			meta    sql.NullString
		)
		if err := rows.Scan(&m.ChatID, &m.ID, &m.Content, &typ, &ts, &m.Sender.ID, &m.Sender.Name,
			&m.Sender.IsMe, &st, &m.ReplyTo, &meta); err != nil {
			return snap, err
		}
		m.Type = model.MessageType(typ)
		m.Status = model.MessageStatus(st)
		m.Timestamp = fromMillis(ts)
		if meta.Valid && meta.String != "" {
			var md model.MessageMetadata
			if err := json.Unmarshal([]byte(meta.String), &md); err == nil {
				m.Metadata = &md
			}
		}
		snap.Messages[m.ChatID] = append(snap.Messages[m.ChatID], m)
	}
	return snap, rows.Err()
}

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

type ThreatLog struct {
	ID             int64
	GuildID        string
	UserID         string
	ThreatType     string
	Severity       float64
	ActionTaken    string
	MessageContent string
	MessageID      string
	ChannelID      string
	Metadata       map[string]any
	CreatedAt      time.Time
}

func (s *Store) AddThreatLog(ctx context.Context, log ThreatLog) error {
	metadata := []byte("{}")
	if len(log.Metadata) > 0 {
		encoded, err := json.Marshal(log.Metadata)
		if err != nil {
			return fmt.Errorf("encode threat metadata: %w", err)
		}
		metadata = encoded
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}
	_, err := s.exec(ctx, `
		INSERT INTO threat_logs (guild_id, user_id, threat_type, severity, action_taken,
			message_content, message_id, channel_id, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, log.GuildID, log.UserID, log.ThreatType, log.Severity, log.ActionTaken,
		log.MessageContent, log.MessageID, log.ChannelID, string(metadata), log.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("add threat log: %w", err)
	}
	return nil
}

// ListThreatLogs returns the newest logs first, at most limit rows when limit
// is positive.
func (s *Store) ListThreatLogs(ctx context.Context, guildID string, since time.Time, limit int) ([]ThreatLog, error) {
	query := `
		SELECT id, guild_id, user_id, threat_type, severity, action_taken,
			message_content, message_id, channel_id, metadata, created_at
		FROM threat_logs
		WHERE guild_id = ? AND created_at >= ?
		ORDER BY created_at DESC, id DESC`
	args := []any{guildID, since.Unix()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list threat logs: %w", err)
	}
	defer rows.Close()

	var logs []ThreatLog
	for rows.Next() {
		var log ThreatLog
		var metadata string
		var created int64
		if err := rows.Scan(&log.ID, &log.GuildID, &log.UserID, &log.ThreatType, &log.Severity, &log.ActionTaken,
			&log.MessageContent, &log.MessageID, &log.ChannelID, &metadata, &created); err != nil {
			return nil, err
		}
		if metadata != "" && metadata != "{}" {
			if err := json.Unmarshal([]byte(metadata), &log.Metadata); err != nil {
				return nil, fmt.Errorf("decode threat metadata %d: %w", log.ID, err)
			}
		}
		log.CreatedAt = time.Unix(created, 0)
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

// CleanupThreatLogs deletes logs older than retentionDays and returns how
// many were removed.
func (s *Store) CleanupThreatLogs(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	res, err := s.exec(ctx, `DELETE FROM threat_logs WHERE created_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("cleanup threat logs: %w", err)
	}
	return res.RowsAffected()
}

// PurgeExpired removes threat and audit logs older than retentionDays and
// returns the number of rows deleted.
func (s *Store) PurgeExpired(ctx context.Context, retentionDays int) (int64, error) {
	threats, err := s.CleanupThreatLogs(ctx, retentionDays)
	if err != nil {
		return 0, err
	}
	audits, err := s.CleanupAuditLogs(ctx, retentionDays)
	if err != nil {
		return threats, err
	}
	return threats + audits, nil
}

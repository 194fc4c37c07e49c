package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UserInfraction counts detections per user and threat type. The count resets
// once ResetAt has passed without a new infraction.
type UserInfraction struct {
	GuildID    string
	UserID     string
	Category   string
	CountTotal int
	LastAt     time.Time
	LastAction string
	ResetAt    *time.Time
}

func (s *Store) GetInfraction(ctx context.Context, guildID, userID, category string) (UserInfraction, error) {
	row := s.queryRow(ctx, `
		SELECT guild_id, user_id, category, count_total, last_at, COALESCE(last_action, ''), reset_at
		FROM user_infractions
		WHERE guild_id = ? AND user_id = ? AND category = ?
	`, guildID, userID, category)

	var inf UserInfraction
	var lastAt int64
	var resetAt sql.NullInt64
	err := row.Scan(&inf.GuildID, &inf.UserID, &inf.Category, &inf.CountTotal, &lastAt, &inf.LastAction, &resetAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return UserInfraction{}, nil
		}
		return UserInfraction{}, fmt.Errorf("get infraction: %w", err)
	}
	inf.LastAt = time.Unix(lastAt, 0)
	if resetAt.Valid {
		value := time.Unix(resetAt.Int64, 0)
		inf.ResetAt = &value
	}
	return inf, nil
}

// IncrementInfraction records one more infraction and returns the running
// count, starting over when the previous forgiveness deadline has passed.
func (s *Store) IncrementInfraction(ctx context.Context, guildID, userID, category, lastAction string, forgiveAfter time.Duration) (count int, err error) {
	now := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var resetAt sql.NullInt64
	row := tx.QueryRowContext(ctx, s.rebind(`
		SELECT count_total, reset_at
		FROM user_infractions
		WHERE guild_id = ? AND user_id = ? AND category = ?
	`), guildID, userID, category)
	scanErr := row.Scan(&count, &resetAt)
	if scanErr != nil && !errors.Is(scanErr, sql.ErrNoRows) {
		err = fmt.Errorf("read infraction: %w", scanErr)
		return 0, err
	}
	if scanErr == nil && resetAt.Valid && now.Unix() >= resetAt.Int64 {
		count = 0
	}

	count++
	var nextReset any
	if forgiveAfter > 0 {
		nextReset = now.Add(forgiveAfter).Unix()
	}

	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO user_infractions (guild_id, user_id, category, count_total, last_at, last_action, reset_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(guild_id, user_id, category) DO UPDATE SET
			count_total = excluded.count_total,
			last_at = excluded.last_at,
			last_action = excluded.last_action,
			reset_at = excluded.reset_at
	`), guildID, userID, category, count, now.Unix(), lastAction, nextReset)
	if err != nil {
		return 0, fmt.Errorf("write infraction: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

package storage

import (
	"context"
	"database/sql"
	"time"
)

// ModLogEntry is one immutable audit row.
type ModLogEntry struct {
	ID          int64
	GuildID     string
	ActionType  string
	ModeratorID string
	TargetID    string
	Reason      string
	Details     string
	CreatedAt   time.Time
}

// RecordLog appends entry and returns its id. CreatedAt is filled from the
// store clock when zero.
func (s *Store) RecordLog(ctx context.Context, entry ModLogEntry) (int64, error) {
	created := entry.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	var id int64
	err := s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO mod_logs (guild_id, action_type, moderator_id, target_id, reason, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`),
		entry.GuildID,
		entry.ActionType,
		entry.ModeratorID,
		nullString(entry.TargetID),
		nullString(entry.Reason),
		nullString(entry.Details),
		created.Unix(),
	).Scan(&id)
	return id, err
}

func (s *Store) ListModLogs(ctx context.Context, guildID string, since time.Time) ([]ModLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, guild_id, action_type, moderator_id, target_id, reason, details, created_at
		FROM mod_logs
		WHERE guild_id = ? AND created_at >= ?
		ORDER BY created_at DESC, id DESC
	`), guildID, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []ModLogEntry
	for rows.Next() {
		var entry ModLogEntry
		var target, reason, details sql.NullString
		var created int64
		if err := rows.Scan(&entry.ID, &entry.GuildID, &entry.ActionType, &entry.ModeratorID, &target, &reason, &details, &created); err != nil {
			return nil, err
		}
		entry.TargetID = target.String
		entry.Reason = reason.String
		entry.Details = details.String
		entry.CreatedAt = time.Unix(created, 0)
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

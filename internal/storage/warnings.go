package storage

import (
	"context"
	"time"
)

type Warning struct {
	ID          int64
	GuildID     string
	UserID      string
	ModeratorID string
	Reason      string
	CreatedAt   time.Time
}

func (s *Store) AddWarning(ctx context.Context, guildID, userID, moderatorID, reason string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO warnings (guild_id, user_id, moderator_id, reason, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`), guildID, userID, moderatorID, reason, s.now().Unix()).Scan(&id)
	return id, err
}

func (s *Store) ListWarnings(ctx context.Context, guildID, userID string) ([]Warning, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, guild_id, user_id, moderator_id, reason, created_at
		FROM warnings
		WHERE guild_id = ? AND user_id = ?
		ORDER BY created_at DESC, id DESC
	`), guildID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var warnings []Warning
	for rows.Next() {
		var w Warning
		var created int64
		if err := rows.Scan(&w.ID, &w.GuildID, &w.UserID, &w.ModeratorID, &w.Reason, &created); err != nil {
			return nil, err
		}
		w.CreatedAt = time.Unix(created, 0)
		warnings = append(warnings, w)
	}
	return warnings, rows.Err()
}

func (s *Store) CountWarnings(ctx context.Context, guildID, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT COUNT(*) FROM warnings WHERE guild_id = ? AND user_id = ?
	`), guildID, userID).Scan(&count)
	return count, err
}

// ClearWarnings deletes every warning for the member and reports how many
// rows went away.
func (s *Store) ClearWarnings(ctx context.Context, guildID, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		DELETE FROM warnings WHERE guild_id = ? AND user_id = ?
	`), guildID, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

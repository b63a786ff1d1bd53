package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type Mute struct {
	ID          int64
	GuildID     string
	UserID      string
	ModeratorID string
	Reason      string
	StartTime   time.Time
	EndTime     *time.Time
	Active      bool
}

const muteColumns = `id, guild_id, user_id, moderator_id, reason, start_time, end_time, active`

// AddMute records a new active mute. A nil duration means the mute lasts
// until an explicit unmute. Any earlier active mute for the member is
// closed first so at most one row stays active.
func (s *Store) AddMute(ctx context.Context, guildID, userID, moderatorID, reason string, duration *time.Duration) (id int64, err error) {
	now := s.now()
	var endTime sql.NullInt64
	if duration != nil {
		endTime = sql.NullInt64{Int64: now.Add(*duration).Unix(), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, s.rebind(`
		UPDATE mutes SET active = 0 WHERE guild_id = ? AND user_id = ? AND active = 1
	`), guildID, userID); err != nil {
		return 0, err
	}

	err = tx.QueryRowContext(ctx, s.rebind(`
		INSERT INTO mutes (guild_id, user_id, moderator_id, reason, start_time, end_time, active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`), guildID, userID, moderatorID, reason, now.Unix(), endTime, boolToInt(true)).Scan(&id)
	if err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// DeactivateMute flips the active mute for the member to inactive. It
// returns false when nothing was active, which makes repeated calls safe.
func (s *Store) DeactivateMute(ctx context.Context, guildID, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE mutes SET active = 0 WHERE guild_id = ? AND user_id = ? AND active = 1
	`), guildID, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) GetActiveMute(ctx context.Context, guildID, userID string) (*Mute, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT `+muteColumns+`
		FROM mutes
		WHERE guild_id = ? AND user_id = ? AND active = 1
		ORDER BY start_time DESC, id DESC
		LIMIT 1
	`), guildID, userID)

	mute, err := scanMute(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &mute, nil
}

func (s *Store) ListExpiredActiveMutes(ctx context.Context) ([]Mute, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT `+muteColumns+`
		FROM mutes
		WHERE active = 1 AND end_time IS NOT NULL AND end_time <= ?
		ORDER BY end_time ASC, id ASC
	`), s.now().Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mutes []Mute
	for rows.Next() {
		mute, err := scanMute(rows)
		if err != nil {
			return nil, err
		}
		mutes = append(mutes, mute)
	}
	return mutes, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMute(row rowScanner) (Mute, error) {
	var m Mute
	var start int64
	var end sql.NullInt64
	var active int
	if err := row.Scan(&m.ID, &m.GuildID, &m.UserID, &m.ModeratorID, &m.Reason, &start, &end, &active); err != nil {
		return Mute{}, err
	}
	m.StartTime = time.Unix(start, 0)
	if end.Valid {
		value := time.Unix(end.Int64, 0)
		m.EndTime = &value
	}
	m.Active = active == 1
	return m, nil
}

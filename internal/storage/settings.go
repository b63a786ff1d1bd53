package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const (
	SettingModLogChannel = "mod_log_channel_id"
	SettingMuteRole      = "mute_role_id"
)

var ErrUnknownSetting = errors.New("unknown guild setting")

// settingColumns whitelists the keys that map onto guild_settings columns.
var settingColumns = map[string]string{
	SettingModLogChannel: "mod_log_channel_id",
	SettingMuteRole:      "mute_role_id",
}

type GuildSettings struct {
	GuildID         string
	ModLogChannelID string
	MuteRoleID      string
	SettingsJSON    string
}

func (s *Store) EnsureGuild(ctx context.Context, guildID string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO guild_settings (guild_id) VALUES (?)
		ON CONFLICT(guild_id) DO NOTHING
	`), guildID)
	return err
}

// GetGuildSettings returns the row for the guild, or an empty record with
// an "{}" blob when the guild was never configured.
func (s *Store) GetGuildSettings(ctx context.Context, guildID string) (GuildSettings, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT mod_log_channel_id, mute_role_id, settings_json
		FROM guild_settings WHERE guild_id = ?
	`), guildID)

	result := GuildSettings{GuildID: guildID, SettingsJSON: "{}"}
	var channel, role sql.NullString
	err := row.Scan(&channel, &role, &result.SettingsJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return result, nil
		}
		return GuildSettings{}, err
	}
	result.ModLogChannelID = channel.String
	result.MuteRoleID = role.String
	if result.SettingsJSON == "" {
		result.SettingsJSON = "{}"
	}
	return result, nil
}

func (s *Store) GetGuildSetting(ctx context.Context, guildID, key string) (string, error) {
	if _, ok := settingColumns[key]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
	settings, err := s.GetGuildSettings(ctx, guildID)
	if err != nil {
		return "", err
	}
	switch key {
	case SettingModLogChannel:
		return settings.ModLogChannelID, nil
	default:
		return settings.MuteRoleID, nil
	}
}

// SetGuildSetting upserts one column. An empty value clears it.
func (s *Store) SetGuildSetting(ctx context.Context, guildID, key, value string) error {
	column, ok := settingColumns[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO guild_settings (guild_id, `+column+`) VALUES (?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET `+column+` = excluded.`+column+`
	`), guildID, nullString(value))
	return err
}

func (s *Store) GetSettingsBlob(ctx context.Context, guildID string) ([]byte, error) {
	settings, err := s.GetGuildSettings(ctx, guildID)
	if err != nil {
		return nil, err
	}
	return []byte(settings.SettingsJSON), nil
}

func (s *Store) SetSettingsBlob(ctx context.Context, guildID string, blob []byte) error {
	if len(blob) == 0 {
		blob = []byte("{}")
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO guild_settings (guild_id, settings_json) VALUES (?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET settings_json = excluded.settings_json
	`), guildID, string(blob))
	return err
}

package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/goccy/go-json"
)

const lockdownBlobKey = "lockdown"

// overwriteSnapshot is the @everyone overwrite of one channel as it was
// before a mass lockdown.
type overwriteSnapshot struct {
	Allow        int64 `json:"allow"`
	Deny         int64 `json:"deny"`
	HasOverwrite bool  `json:"has_overwrite"`
}

type lockdownState struct {
	Channels map[string]overwriteSnapshot `json:"channels"`
	LockedBy string                       `json:"locked_by"`
	LockedAt time.Time                    `json:"locked_at"`
}

func everyoneOverwrite(channel *discordgo.Channel, guildID string) overwriteSnapshot {
	for _, ow := range channel.PermissionOverwrites {
		if ow.ID == guildID && ow.Type == discordgo.PermissionOverwriteTypeRole {
			return overwriteSnapshot{Allow: ow.Allow, Deny: ow.Deny, HasOverwrite: true}
		}
	}
	return overwriteSnapshot{}
}

// lockChannel denies SendMessages to @everyone, keeping the other bits.
func (b *Bot) lockChannel(guildID, channelID string, current overwriteSnapshot) error {
	allow := current.Allow &^ discordgo.PermissionSendMessages
	deny := current.Deny | discordgo.PermissionSendMessages
	return b.client.SetPermission(channelID, guildID, discordgo.PermissionOverwriteTypeRole, allow, deny)
}

// restoreChannel puts back a snapshot taken before lockChannel.
func (b *Bot) restoreChannel(guildID, channelID string, snap overwriteSnapshot) error {
	if !snap.HasOverwrite {
		return b.client.DeletePermission(channelID, guildID)
	}
	return b.client.SetPermission(channelID, guildID, discordgo.PermissionOverwriteTypeRole, snap.Allow, snap.Deny)
}

func (b *Bot) loadSettingsBlob(ctx context.Context, guildID string) (map[string]json.RawMessage, error) {
	raw, err := b.store.GetSettingsBlob(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("load settings blob: %w", err)
	}
	blob := make(map[string]json.RawMessage)
	if len(raw) == 0 {
		return blob, nil
	}
	if err := json.Unmarshal(raw, &blob); err != nil {
		return nil, fmt.Errorf("decode settings blob: %w", err)
	}
	return blob, nil
}

func (b *Bot) saveSettingsBlob(ctx context.Context, guildID string, blob map[string]json.RawMessage) error {
	raw, err := json.Marshal(blob)
	if err != nil {
		return fmt.Errorf("encode settings blob: %w", err)
	}
	if err := b.store.SetSettingsBlob(ctx, guildID, raw); err != nil {
		return fmt.Errorf("save settings blob: %w", err)
	}
	return nil
}

// loadLockdown returns the persisted mass lockdown, or nil when none is
// active.
func (b *Bot) loadLockdown(ctx context.Context, guildID string) (*lockdownState, error) {
	blob, err := b.loadSettingsBlob(ctx, guildID)
	if err != nil {
		return nil, err
	}
	raw, ok := blob[lockdownBlobKey]
	if !ok || string(raw) == "null" {
		return nil, nil
	}
	var state lockdownState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode lockdown snapshot: %w", err)
	}
	if len(state.Channels) == 0 {
		return nil, nil
	}
	return &state, nil
}

// storeLockdown persists state, or removes the snapshot when state is nil.
// Other keys in the blob are left alone.
func (b *Bot) storeLockdown(ctx context.Context, guildID string, state *lockdownState) error {
	blob, err := b.loadSettingsBlob(ctx, guildID)
	if err != nil {
		return err
	}
	if state == nil {
		delete(blob, lockdownBlobKey)
		return b.saveSettingsBlob(ctx, guildID, blob)
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode lockdown snapshot: %w", err)
	}
	blob[lockdownBlobKey] = raw
	return b.saveSettingsBlob(ctx, guildID, blob)
}

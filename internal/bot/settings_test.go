package bot

import (
	"context"
	"testing"

	"modwarden/internal/modules/audit"
	"modwarden/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModLogSetAndClear(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	resp := h.run(adminID, "modlog", opt("channel", logChannelID))
	assert.Equal(t, "Mod log channel set to <#502>", replyEmbed(t, resp).Description)
	stored, err := h.store.GetGuildSetting(ctx, guildID, storage.SettingModLogChannel)
	require.NoError(t, err)
	assert.Equal(t, logChannelID, stored)

	// the update itself is posted to the new channel
	require.Len(t, h.client.Sent, 1)
	assert.Equal(t, logChannelID, h.client.Sent[0].ChannelID)

	resp = h.run(adminID, "modlog")
	assert.Equal(t, "✅ Mod Log Cleared", replyEmbed(t, resp).Title)
	stored, err = h.store.GetGuildSetting(ctx, guildID, storage.SettingModLogChannel)
	require.NoError(t, err)
	assert.Empty(t, stored)
	assert.Equal(t, "modlog update", h.modLogs()[0].ActionType)
}

func TestConfigUpdatesGuildValue(t *testing.T) {
	h := newHarness(t)

	resp := h.run(adminID, "config", opt("key", "max_warnings"), opt("value", "5"))

	assert.Equal(t, "Set `max_warnings` to `5`.", replyEmbed(t, resp).Description)
	assert.Equal(t, 5, h.guilds.GuildSettings(guildID).MaxWarnings)
	logs := h.modLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, "config update", logs[0].ActionType)
	assert.Equal(t, "max_warnings = 5", logs[0].Details)
}

func TestConfigRejectsBadInput(t *testing.T) {
	h := newHarness(t)

	resp := h.run(adminID, "config", opt("key", "bogus"), opt("value", "1"))
	requireRefused(t, resp, "Unknown setting `bogus`")

	resp = h.run(adminID, "config", opt("key", "max_warnings"), opt("value", "zero"))
	requireRefused(t, resp, "max_warnings must be a positive integer")

	resp = h.run(adminID, "config", opt("key", "max_warnings"))
	requireRefused(t, resp, "Please provide a value")

	assert.Equal(t, 3, h.guilds.GuildSettings(guildID).MaxWarnings)
	assert.Empty(t, h.modLogs())
}

func TestConfigWithoutKeyShowsSettings(t *testing.T) {
	h := newHarness(t)

	resp := h.run(adminID, "config")

	embed := replyEmbed(t, resp)
	assert.Equal(t, "Server Configuration", embed.Title)
	require.Len(t, embed.Fields, 5)
	assert.Equal(t, "Not set", embed.Fields[0].Value)
	assert.Equal(t, "Muted", embed.Fields[1].Value)
}

func TestModStats(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	resp := h.run(modID, "modstats")
	assert.Equal(t, "No moderation actions recorded.", replyEmbed(t, resp).Description)

	for _, action := range []string{"ban", "warn", "warn"} {
		require.NoError(t, h.bot.pipeline.Record(ctx, audit.Action{
			GuildID:   guildID,
			Type:      action,
			Moderator: audit.Actor{ID: adminID},
		}))
	}

	resp = h.run(modID, "modstats", opt("days", float64(30)))

	embed := replyEmbed(t, resp)
	assert.Equal(t, "Moderation Stats (last 30 days)", embed.Title)
	assert.Equal(t, "Total actions: 3", embed.Description)
	require.Len(t, embed.Fields, 2)
	assert.Equal(t, "Warn: 2\nBan: 1\n", embed.Fields[0].Value)
	assert.Equal(t, "1. <@2> (3)\n", embed.Fields[1].Value)
}

package bot

import (
	"errors"
	"testing"

	"modwarden/internal/platform/platformtest"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const afkID = "503"

func newVoiceHarness(t *testing.T, states ...*discordgo.VoiceState) *harness {
	t.Helper()
	h := newHarness(t)
	h.client.Channels[afkID] = &discordgo.Channel{ID: afkID, GuildID: guildID, Name: "afk", Type: discordgo.ChannelTypeGuildVoice}
	h.client.Voice[guildID] = states
	return h
}

func TestMove(t *testing.T) {
	h := newVoiceHarness(t, &discordgo.VoiceState{UserID: memberID, ChannelID: voiceID})

	resp := h.run(adminID, "move", opt("user", memberID), opt("channel", afkID))

	embed := replyEmbed(t, resp)
	assert.Equal(t, "✅ User Moved", embed.Title)
	assert.Equal(t, "**user4** moved from **voice** to **afk**", embed.Description)
	assert.Equal(t, []platformtest.Move{{UserID: memberID, ChannelID: afkID}}, h.client.Moves)

	logs := h.modLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, "voice move", logs[0].ActionType)
	assert.Equal(t, "From: voice → To: afk", logs[0].Details)
}

func TestMoveRefusals(t *testing.T) {
	h := newVoiceHarness(t, &discordgo.VoiceState{UserID: memberID, ChannelID: voiceID})

	requireRefused(t, h.run(adminID, "move", opt("user", modID), opt("channel", afkID)), "This user is not in a voice channel.")
	requireRefused(t, h.run(adminID, "move", opt("user", memberID), opt("channel", voiceID)), "**user4** is already in <#501>.")
	requireRefused(t, h.run(adminID, "move", opt("user", seniorID), opt("channel", afkID)), "higher or equal role")
	assert.Empty(t, h.client.Moves)
}

func TestServerMute(t *testing.T) {
	h := newVoiceHarness(t, &discordgo.VoiceState{UserID: memberID, ChannelID: voiceID})

	requireRefused(t, h.run(adminID, "servermute", opt("user", modID)), "This user is not in a voice channel.")

	resp := h.run(adminID, "servermute", opt("user", memberID), opt("reason", "mic spam"))

	assert.Equal(t, "✅ User Server-Muted", replyEmbed(t, resp).Title)
	assert.True(t, h.client.ServerMutes[memberID])
	logs := h.modLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, "server mute", logs[0].ActionType)
	assert.Equal(t, "mic spam", logs[0].Reason)
	assert.Equal(t, "Voice channel: voice", logs[0].Details)
}

func TestVCMassMove(t *testing.T) {
	h := newVoiceHarness(t,
		&discordgo.VoiceState{UserID: memberID, ChannelID: voiceID},
		&discordgo.VoiceState{UserID: modID, ChannelID: voiceID},
		&discordgo.VoiceState{UserID: seniorID, ChannelID: afkID},
	)

	resp := h.run(adminID, "vcmassmove", opt("channel", voiceID))

	assert.Equal(t, 1, h.client.Deferrals())
	embed := replyEmbed(t, resp)
	assert.Equal(t, "✅ Voice Channel Cleared", embed.Title)
	assert.Equal(t, "Successfully disconnected 2 members from **voice**", embed.Description)
	assert.Empty(t, embed.Fields)
	assert.Equal(t, []platformtest.Move{{UserID: memberID}, {UserID: modID}}, h.client.Moves)
	assert.Equal(t, "Channel: voice\nDisconnected: 2\nFailed: 0", h.modLogs()[0].Details)
}

func TestVCMassMoveListsFailures(t *testing.T) {
	h := newVoiceHarness(t,
		&discordgo.VoiceState{UserID: memberID, ChannelID: voiceID, Member: &discordgo.Member{User: &discordgo.User{ID: memberID, Username: "user4"}}},
		&discordgo.VoiceState{UserID: modID, ChannelID: voiceID},
	)
	h.client.Fail["MoveMember"] = errors.New("missing access")

	embed := replyEmbed(t, h.run(adminID, "vcmassmove", opt("channel", voiceID)))

	require.Len(t, embed.Fields, 2)
	assert.Equal(t, "⚠️ Failed to Disconnect", embed.Fields[0].Name)
	assert.Equal(t, "2 members (insufficient permissions or hierarchy)", embed.Fields[0].Value)
	assert.Equal(t, "user4, <@3>", embed.Fields[1].Value)
	assert.Equal(t, "Channel: voice\nDisconnected: 0\nFailed: 2", h.modLogs()[0].Details)
}

func TestVCMassMoveEmptyChannel(t *testing.T) {
	h := newVoiceHarness(t, &discordgo.VoiceState{UserID: memberID, ChannelID: voiceID})

	resp := h.run(adminID, "vcmassmove", opt("channel", afkID))

	requireRefused(t, resp, "No members are currently in afk.")
	assert.Zero(t, h.client.Deferrals())
	assert.Empty(t, h.client.Moves)
}

package bot

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"modwarden/internal/config"
	"modwarden/internal/platform/platformtest"
	"modwarden/internal/storage"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBanRecordsAndNotifies(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.SetGuildSetting(ctx, guildID, storage.SettingModLogChannel, logChannelID))

	resp := h.run(adminID, "ban", opt("user", memberID), opt("reason", "spam"), opt("delete_days", float64(2)))

	embed := replyEmbed(t, resp)
	assert.Equal(t, "✅ User Banned", embed.Title)
	assert.Equal(t, "**user4** has been banned.\n**Reason:** spam", embed.Description)
	assert.Equal(t, []platformtest.Ban{{GuildID: guildID, UserID: memberID, Reason: "spam", DeleteDays: 2}}, h.client.Bans)

	logs := h.modLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, "ban", logs[0].ActionType)
	assert.Equal(t, adminID, logs[0].ModeratorID)
	assert.Equal(t, memberID, logs[0].TargetID)
	assert.Equal(t, "spam", logs[0].Reason)

	require.Len(t, h.client.Sent, 1)
	assert.Equal(t, logChannelID, h.client.Sent[0].ChannelID)
}

func TestBanDefaultsReason(t *testing.T) {
	h := newHarness(t)
	h.run(adminID, "ban", opt("user", memberID))
	require.Len(t, h.client.Bans, 1)
	assert.Equal(t, "No reason provided", h.client.Bans[0].Reason)
}

func TestBanHierarchy(t *testing.T) {
	tests := []struct {
		name   string
		actor  string
		target string
		want   string
	}{
		{"owner is immune", adminID, ownerID, "You cannot moderate the server owner."},
		{"self", adminID, adminID, "You cannot moderate yourself."},
		{"bot", adminID, botID, "I cannot moderate myself."},
		{"higher role", adminID, seniorID, "You cannot moderate someone with a higher or equal role."},
		{"above the bot", ownerID, adminID, "I cannot moderate someone with a higher or equal role than me."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			resp := h.run(tt.actor, "ban", opt("user", tt.target))
			requireRefused(t, resp, tt.want)
			assert.Empty(t, h.client.Bans)
			assert.Empty(t, h.modLogs())
		})
	}
}

func TestBanPlatformFailureIsNotLogged(t *testing.T) {
	h := newHarness(t)
	h.client.Fail["Ban"] = errors.New("403 forbidden")

	resp := h.run(adminID, "ban", opt("user", memberID))

	requireRefused(t, resp, "I couldn't complete that action.")
	assert.Empty(t, h.modLogs())
}

func TestBanOfNonMember(t *testing.T) {
	h := newHarness(t)
	h.run(adminID, "ban", opt("user", "777"))
	require.Len(t, h.client.Bans, 1)
	assert.Equal(t, "777", h.client.Bans[0].UserID)
}

func TestUnban(t *testing.T) {
	h := newHarness(t)

	resp := h.run(adminID, "unban", opt("user_id", "not-a-number"))
	requireRefused(t, resp, "Invalid user ID provided.")
	assert.Empty(t, h.client.Unbans)

	resp = h.run(adminID, "unban", opt("user_id", "123456789012345678"), opt("reason", "appeal"))
	assert.Equal(t, "✅ User Unbanned", replyEmbed(t, resp).Title)
	assert.Equal(t, []string{"123456789012345678"}, h.client.Unbans)

	logs := h.modLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, "unban", logs[0].ActionType)
	assert.Equal(t, "appeal", logs[0].Reason)
}

func TestKick(t *testing.T) {
	h := newHarness(t)

	resp := h.run(adminID, "kick", opt("user", "777"))
	requireRefused(t, resp, "is not a member of this server")

	resp = h.run(adminID, "kick", opt("user", memberID), opt("reason", "rude"))
	assert.Equal(t, "✅ User Kicked", replyEmbed(t, resp).Title)
	assert.Equal(t, []string{memberID}, h.client.Kicks)
	assert.Equal(t, "kick", h.modLogs()[0].ActionType)
}

func TestMuteBootstrapsRole(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	resp := h.run(adminID, "mute", opt("user", memberID), opt("duration", "10m"), opt("reason", "flood"))

	embed := replyEmbed(t, resp)
	assert.Equal(t, "✅ User Muted", embed.Title)
	assert.Contains(t, embed.Description, "muted for 10 minutes")

	require.Len(t, h.client.RolesCreated, 1)
	assert.Equal(t, "Muted", h.client.RolesCreated[0].Name)

	byChannel := make(map[string]platformtest.Overwrite)
	for _, ow := range h.client.Overwrites {
		byChannel[ow.ChannelID] = ow
	}
	assert.Equal(t, int64(textMuteDeny), byChannel[generalID].Deny)
	assert.Equal(t, int64(textMuteDeny), byChannel[logChannelID].Deny)
	assert.Equal(t, int64(voiceMuteDeny), byChannel[voiceID].Deny)

	roleID, err := h.store.GetGuildSetting(ctx, guildID, storage.SettingMuteRole)
	require.NoError(t, err)
	assert.Equal(t, "role-1", roleID)
	assert.Equal(t, []string{memberID + "/role-1"}, h.client.RolesAdded)

	mute, err := h.store.GetActiveMute(ctx, guildID, memberID)
	require.NoError(t, err)
	require.NotNil(t, mute)
	require.NotNil(t, mute.EndTime)
	assert.WithinDuration(t, mute.StartTime.Add(10*time.Minute), *mute.EndTime, time.Second)

	logs := h.modLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, "mute", logs[0].ActionType)
	assert.Equal(t, "Duration: 10 minutes", logs[0].Details)
}

func TestMuteOverwriteFailuresAreIgnored(t *testing.T) {
	h := newHarness(t)
	h.client.Fail["SetPermission"] = errors.New("missing access")

	resp := h.run(adminID, "mute", opt("user", memberID), opt("duration", "1h"))

	assert.Equal(t, "✅ User Muted", replyEmbed(t, resp).Title)
	assert.Len(t, h.client.RolesAdded, 1)
}

func TestMuteReusesNamedRole(t *testing.T) {
	h := newHarness(t)
	guild := h.client.Guilds[guildID]
	guild.Roles = append(guild.Roles, &discordgo.Role{ID: "14", Name: "muted", Position: 1})

	h.run(adminID, "mute", opt("user", memberID), opt("duration", "5m"))

	assert.Empty(t, h.client.RolesCreated)
	assert.Equal(t, []string{memberID + "/14"}, h.client.RolesAdded)
	roleID, err := h.store.GetGuildSetting(context.Background(), guildID, storage.SettingMuteRole)
	require.NoError(t, err)
	assert.Equal(t, "14", roleID)
}

func TestMuteRejectsBadDuration(t *testing.T) {
	for _, token := range []string{"soon", "0", "-5m"} {
		t.Run(token, func(t *testing.T) {
			h := newHarness(t)
			resp := h.run(adminID, "mute", opt("user", memberID), opt("duration", token))
			requireRefused(t, resp, "Invalid duration format. Use formats like: 10m, 1h, 2d")
			assert.Empty(t, h.client.RolesCreated)
			assert.Empty(t, h.client.RolesAdded)
		})
	}
}

func TestMuteRefusesAlreadyMuted(t *testing.T) {
	h := newHarness(t)
	_, err := h.store.AddMute(context.Background(), guildID, memberID, adminID, "earlier", nil)
	require.NoError(t, err)

	resp := h.run(adminID, "mute", opt("user", memberID), opt("duration", "10m"))

	requireRefused(t, resp, "is already muted")
	assert.Empty(t, h.client.RolesAdded)
}

func TestMuteRefusesAlreadyMutedBeforeRoleSetup(t *testing.T) {
	h := newHarness(t)
	_, err := h.store.AddMute(context.Background(), guildID, memberID, adminID, "earlier", nil)
	require.NoError(t, err)

	resp := h.run(adminID, "mute", opt("user", memberID), opt("duration", "10m"))

	requireRefused(t, resp, "is already muted")
	assert.Zero(t, h.client.Called("CreateRole"))
	assert.Zero(t, h.client.Called("SetPermission"))
	assert.Zero(t, h.client.Deferrals())
}

func TestMuteRefusesRoleHolder(t *testing.T) {
	h := newHarness(t)
	guild := h.client.Guilds[guildID]
	guild.Roles = append(guild.Roles, &discordgo.Role{ID: "14", Name: "Muted", Position: 1})
	h.member(memberID).Roles = []string{"14"}

	resp := h.run(adminID, "mute", opt("user", memberID), opt("duration", "10m"))

	requireRefused(t, resp, "is already muted")
	assert.Empty(t, h.client.RolesAdded)
}

func TestMuteDefersOnlyForRoleSetup(t *testing.T) {
	h := newHarness(t)

	h.run(adminID, "mute", opt("user", memberID), opt("duration", "10m"))
	assert.Equal(t, 1, h.client.Deferrals())
	require.Len(t, h.client.Edits, 1)

	resp := h.run(adminID, "mute", opt("user", modID), opt("duration", "10m"))
	assert.Equal(t, "✅ User Muted", replyEmbed(t, resp).Title)
	assert.Equal(t, 1, h.client.Deferrals())
	assert.Len(t, h.client.RolesCreated, 1)
}

func TestMuteRejectsOverflowingDuration(t *testing.T) {
	h := newHarness(t)
	resp := h.run(adminID, "mute", opt("user", memberID), opt("duration", "9223372036854775w"))
	requireRefused(t, resp, "Invalid duration format")
	assert.Empty(t, h.client.RolesAdded)
}

func TestUnmute(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	resp := h.run(adminID, "unmute", opt("user", memberID))
	requireRefused(t, resp, "This user is not muted.")

	h.run(adminID, "mute", opt("user", memberID), opt("duration", "10m"))
	member := h.member(memberID)
	member.Roles = append(member.Roles, "role-1")

	resp = h.run(adminID, "unmute", opt("user", memberID), opt("reason", "served"))

	assert.Equal(t, "✅ User Unmuted", replyEmbed(t, resp).Title)
	assert.Equal(t, []string{memberID + "/role-1"}, h.client.RolesRemoved)
	mute, err := h.store.GetActiveMute(ctx, guildID, memberID)
	require.NoError(t, err)
	assert.Nil(t, mute)
	assert.Equal(t, "unmute", h.modLogs()[0].ActionType)
}

func TestWarn(t *testing.T) {
	h := newHarness(t)

	resp := h.run(adminID, "warn", opt("user", memberID), opt("reason", "rude"))

	embed := replyEmbed(t, resp)
	assert.Equal(t, "⚠️ User Warned", embed.Title)
	assert.Contains(t, embed.Description, "**Total warnings:** 1")

	require.Len(t, h.client.DMs, 1)
	assert.Equal(t, memberID, h.client.DMs[0].ChannelID)
	assert.Equal(t, "⚠️ Warning Received", h.client.DMs[0].Embed.Title)
	assert.Equal(t, "You have received a warning in **Test Guild**", h.client.DMs[0].Embed.Description)

	logs := h.modLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, "warn", logs[0].ActionType)
	assert.Equal(t, "Warning #1 (ID: 1)", logs[0].Details)
	assert.Empty(t, h.client.Bans)
}

func TestWarnSurvivesClosedDMs(t *testing.T) {
	h := newHarness(t)
	h.client.Fail["SendDM"] = errors.New("cannot send messages to this user")

	resp := h.run(adminID, "warn", opt("user", memberID), opt("reason", "rude"))

	assert.Equal(t, "⚠️ User Warned", replyEmbed(t, resp).Title)
	assert.Len(t, h.modLogs(), 1)
}

func TestWarnAutoBansAtLimit(t *testing.T) {
	h := newHarness(t)
	_, err := h.guilds.SetGuildValue(guildID, config.KeyMaxWarnings, "2")
	require.NoError(t, err)
	_, err = h.guilds.SetGuildValue(guildID, config.KeyAutoBanOnMaxWarnings, "true")
	require.NoError(t, err)

	h.run(adminID, "warn", opt("user", memberID), opt("reason", "one"))
	assert.Empty(t, h.client.Bans)

	resp := h.run(adminID, "warn", opt("user", memberID), opt("reason", "two"))

	assert.Contains(t, replyEmbed(t, resp).Description, "reached the warning limit")
	require.Len(t, h.client.Bans, 1)
	assert.Equal(t, "Automatic ban: reached 2 warnings", h.client.Bans[0].Reason)

	logs := h.modLogs()
	require.Len(t, logs, 3)
	assert.Equal(t, "auto ban", logs[0].ActionType)
	assert.Equal(t, botID, logs[0].ModeratorID)
}

func TestWarningsList(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	resp := h.run(modID, "warnings", opt("user", memberID))
	assert.Equal(t, "No Warnings", replyEmbed(t, resp).Title)

	for i := 0; i < 12; i++ {
		_, err := h.store.AddWarning(ctx, guildID, memberID, adminID, fmt.Sprintf("reason %d", i))
		require.NoError(t, err)
	}

	resp = h.run(modID, "warnings", opt("user", memberID))

	embed := replyEmbed(t, resp)
	assert.Equal(t, "Warnings for user4", embed.Title)
	assert.Equal(t, "Total warnings: 12", embed.Description)
	assert.Len(t, embed.Fields, 10)
	require.NotNil(t, embed.Footer)
	assert.Equal(t, "Showing 10 of 12 warnings", embed.Footer.Text)
}

func TestClearWarnings(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	resp := h.run(adminID, "clearwarnings", opt("user", memberID))
	requireRefused(t, resp, "**user4** has no warnings to clear.")

	for i := 0; i < 2; i++ {
		_, err := h.store.AddWarning(ctx, guildID, memberID, adminID, "x")
		require.NoError(t, err)
	}

	resp = h.run(adminID, "clearwarnings", opt("user", memberID))

	assert.Equal(t, "Cleared 2 warning(s) for **user4**.", replyEmbed(t, resp).Description)
	count, err := h.store.CountWarnings(ctx, guildID, memberID)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Equal(t, "Cleared 2 warnings", h.modLogs()[0].Details)
}

func seedMessages(h *harness) {
	authors := []string{memberID, modID, memberID, modID, memberID}
	for i, author := range authors {
		h.client.Messages[generalID] = append(h.client.Messages[generalID], &discordgo.Message{
			ID:        fmt.Sprintf("60%d", i+1),
			ChannelID: generalID,
			Author:    &discordgo.User{ID: author},
		})
	}
}

func TestPurge(t *testing.T) {
	h := newHarness(t)
	seedMessages(h)

	resp := h.run(adminID, "purge", opt("amount", float64(3)))

	embed := replyEmbed(t, resp)
	assert.Equal(t, "✅ Messages Purged", embed.Title)
	assert.Equal(t, "Successfully deleted 3 messages.", embed.Description)
	assert.Equal(t, discordgo.MessageFlagsEphemeral, resp.Data.Flags)
	assert.Equal(t, []string{"601", "602", "603"}, h.client.Deleted)
	assert.Equal(t, "purge", h.modLogs()[0].ActionType)
}

func TestPurgeDefersPrivately(t *testing.T) {
	h := newHarness(t)
	seedMessages(h)

	resp := h.run(adminID, "purge", opt("amount", float64(2)))

	require.Len(t, h.client.Responses, 2)
	deferred := h.client.Responses[0]
	assert.Equal(t, discordgo.InteractionResponseDeferredChannelMessageWithSource, deferred.Type)
	require.NotNil(t, deferred.Data)
	assert.Equal(t, discordgo.MessageFlagsEphemeral, deferred.Data.Flags)
	require.Len(t, h.client.Edits, 1)
	assert.Equal(t, "✅ Messages Purged", replyEmbed(t, resp).Title)
}

func TestPurgeErrorAfterDeferEditsReply(t *testing.T) {
	h := newHarness(t)
	seedMessages(h)
	h.client.Fail["BulkDelete"] = errors.New("missing access")

	resp := h.run(adminID, "purge", opt("amount", float64(2)))

	assert.Equal(t, 1, h.client.Deferrals())
	assert.Equal(t, discordgo.InteractionResponseChannelMessageWithSource, resp.Type)
	assert.Equal(t, "❌ Error", replyEmbed(t, resp).Title)
	assert.Equal(t, discordgo.MessageFlagsEphemeral, resp.Data.Flags)
}

func TestPurgeByAuthor(t *testing.T) {
	h := newHarness(t)
	seedMessages(h)

	h.run(adminID, "purge", opt("amount", float64(10)), opt("user", memberID))

	assert.Equal(t, []string{"601", "603", "605"}, h.client.Deleted)
	assert.Equal(t, memberID, h.modLogs()[0].TargetID)
}

func TestPurgeRejectsOutOfRange(t *testing.T) {
	h := newHarness(t)
	resp := h.run(adminID, "purge", opt("amount", float64(0)))
	requireRefused(t, resp, "Amount must be between 1 and 100.")
	assert.Zero(t, h.client.Called("BulkDelete"))
}

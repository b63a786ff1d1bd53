package bot

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"modwarden/internal/config"
	"modwarden/internal/duration"
	"modwarden/internal/modules/audit"
	"modwarden/internal/platform/platformtest"
	"modwarden/internal/storage"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const (
	guildID      = "100"
	ownerID      = "1"
	adminID      = "2"
	modID        = "3"
	memberID     = "4"
	seniorID     = "5"
	botID        = "bot"
	generalID    = "500"
	voiceID      = "501"
	logChannelID = "502"

	adminRoleID  = "10"
	modRoleID    = "11"
	botRoleID    = "12"
	seniorRoleID = "13"
)

const botPerms = discordgo.PermissionBanMembers |
	discordgo.PermissionKickMembers |
	discordgo.PermissionManageRoles |
	discordgo.PermissionManageChannels |
	discordgo.PermissionManageMessages |
	discordgo.PermissionManageNicknames |
	discordgo.PermissionVoiceMoveMembers |
	discordgo.PermissionVoiceMuteMembers |
	discordgo.PermissionEmbedLinks |
	discordgo.PermissionAddReactions

type harness struct {
	t      *testing.T
	bot    *Bot
	client *platformtest.Client
	store  *storage.Store
	guilds *config.GuildStore
	logs   *observer.ObservedLogs
}

func testGuild() *discordgo.Guild {
	member := func(id string, roles ...string) *discordgo.Member {
		return &discordgo.Member{User: &discordgo.User{ID: id, Username: "user" + id}, Roles: roles}
	}
	bot := member(botID, botRoleID)
	bot.User.Username = "modwarden"
	bot.User.Bot = true

	return &discordgo.Guild{
		ID:      guildID,
		Name:    "Test Guild",
		OwnerID: ownerID,
		Roles: []*discordgo.Role{
			{ID: guildID, Name: "@everyone", Position: 0, Permissions: discordgo.PermissionSendMessages},
			{ID: modRoleID, Name: "Moderator", Position: 3, Permissions: discordgo.PermissionManageMessages | discordgo.PermissionKickMembers},
			{ID: botRoleID, Name: "modwarden", Position: 4, Permissions: botPerms},
			{ID: adminRoleID, Name: "Admin", Position: 5, Permissions: discordgo.PermissionAdministrator},
			{ID: seniorRoleID, Name: "Senior", Position: 6},
		},
		Channels: []*discordgo.Channel{
			{ID: generalID, Name: "general", Type: discordgo.ChannelTypeGuildText, Position: 0},
			{ID: voiceID, Name: "voice", Type: discordgo.ChannelTypeGuildVoice, Position: 1},
			{ID: logChannelID, Name: "mod-log", Type: discordgo.ChannelTypeGuildText, Position: 2},
		},
		Members: []*discordgo.Member{
			member(ownerID),
			member(adminID, adminRoleID),
			member(modID, modRoleID),
			member(memberID),
			member(seniorID, seniorRoleID),
			bot,
		},
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, nil, config.DefaultConfig())
}

// newHarnessWith builds a bot over store, or a fresh in-memory store when
// store is nil.
func newHarnessWith(t *testing.T, store *storage.Store, cfg config.Config) *harness {
	t.Helper()
	if store == nil {
		var err error
		store, err = storage.New(storage.DriverSQLite, ":memory:")
		require.NoError(t, err)
		t.Cleanup(store.Close)
		require.NoError(t, store.Migrate(context.Background()))
	}

	guilds, err := config.LoadGuildStore(filepath.Join(t.TempDir(), "guild_config.json"))
	require.NoError(t, err)

	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	client := platformtest.New()
	client.AddGuild(testGuild())

	cfg.OwnerID = "999"
	pipeline := audit.NewPipeline(store, logger)
	b := newBot(cfg, logger, store, guilds, pipeline, client, nil)
	return &harness{t: t, bot: b, client: client, store: store, guilds: guilds, logs: logs}
}

func opt(name string, value any) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Value: value}
}

func (h *harness) member(userID string) *discordgo.Member {
	return h.client.Members[guildID+"/"+userID]
}

func (h *harness) interaction(userID, name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:        "interaction",
		Type:      discordgo.InteractionApplicationCommand,
		GuildID:   guildID,
		ChannelID: generalID,
		Member:    h.member(userID),
		Data:      discordgo.ApplicationCommandInteractionData{Name: name, Options: opts},
	}}
}

// run invokes a slash command as userID and returns the reply.
func (h *harness) run(userID, name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionResponse {
	h.t.Helper()
	before := len(h.client.Responses)
	h.bot.onInteractionCreate(nil, h.interaction(userID, name, opts...))
	require.Greater(h.t, len(h.client.Responses), before, "command %s sent no reply", name)
	return h.client.LastResponse()
}

func (h *harness) modLogs() []storage.ModLogEntry {
	h.t.Helper()
	logs, err := h.store.ListModLogs(context.Background(), guildID, time.Time{})
	require.NoError(h.t, err)
	return logs
}

func replyEmbed(t *testing.T, resp *discordgo.InteractionResponse) *discordgo.MessageEmbed {
	t.Helper()
	require.NotNil(t, resp)
	require.NotNil(t, resp.Data)
	require.NotEmpty(t, resp.Data.Embeds)
	return resp.Data.Embeds[0]
}

// requireRefused asserts an ephemeral error reply containing text.
func requireRefused(t *testing.T, resp *discordgo.InteractionResponse, text string) {
	t.Helper()
	embed := replyEmbed(t, resp)
	assert.Equal(t, "❌ Error", embed.Title)
	assert.Contains(t, embed.Description, text)
	assert.Equal(t, discordgo.MessageFlagsEphemeral, resp.Data.Flags)
}

func TestCommandOutsideGuildIsRejected(t *testing.T) {
	h := newHarness(t)
	ic := h.interaction(adminID, "ban", opt("user", memberID))
	ic.GuildID = ""
	ic.Member = nil
	ic.User = &discordgo.User{ID: adminID}

	h.bot.onInteractionCreate(nil, ic)

	resp := h.client.LastResponse()
	require.NotNil(t, resp)
	assert.Equal(t, "This command can only be used in a server.", resp.Data.Content)
	assert.Empty(t, h.client.Bans)
}

func TestUnknownCommandIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.bot.onInteractionCreate(nil, h.interaction(adminID, "nope"))
	assert.Empty(t, h.client.Responses)
}

func TestPanickingCommandIsRecovered(t *testing.T) {
	h := newHarness(t)
	h.bot.commands["boom"] = NewCommand("boom", "panics", func(*CommandContext) error {
		panic("kaboom")
	})

	resp := h.run(adminID, "boom")

	requireRefused(t, resp, "Something went wrong")
	assert.Equal(t, 1, h.logs.FilterMessage("command panicked").Len())
}

func TestElevatedCommandRejectsModerator(t *testing.T) {
	h := newHarness(t)
	resp := h.run(modID, "ban", opt("user", memberID))

	requireRefused(t, resp, "Administrator or Manage Server")
	assert.Empty(t, h.client.Bans)
}

func TestProcessOwnerBypassesCapabilityChecks(t *testing.T) {
	h := newHarness(t)
	h.bot.cfg.OwnerID = memberID

	resp := h.run(memberID, "slowmode", opt("seconds", float64(5)))

	assert.Equal(t, "✅ Slowmode Updated", replyEmbed(t, resp).Title)
}

func TestUserPermissionsAreListed(t *testing.T) {
	h := newHarness(t)
	resp := h.run(memberID, "warnings", opt("user", modID))
	requireRefused(t, resp, "You need the following permissions: Manage Messages")
}

func TestBotPermissionsAreChecked(t *testing.T) {
	h := newHarness(t)
	for _, role := range h.client.Guilds[guildID].Roles {
		if role.ID == botRoleID {
			role.Permissions &^= discordgo.PermissionBanMembers
		}
	}

	resp := h.run(adminID, "ban", opt("user", memberID))

	requireRefused(t, resp, "I'm missing the following permissions: Ban Members")
	assert.Empty(t, h.client.Bans)
}

func TestRegisterCommandsReconciles(t *testing.T) {
	h := newHarness(t)
	h.client.AppCommands["old-ban"] = &discordgo.ApplicationCommand{ID: "old-ban", Name: "ban"}
	h.client.AppCommands["old-stale"] = &discordgo.ApplicationCommand{ID: "old-stale", Name: "stale"}

	require.NoError(t, h.bot.registerCommands())

	assert.Equal(t, 1, h.client.Called("EditCommand"))
	assert.Equal(t, len(h.bot.commandOrder)-1, h.client.Called("CreateCommand"))
	assert.Equal(t, 1, h.client.Called("DeleteCommand"))
	assert.Len(t, h.client.AppCommands, len(h.bot.commandOrder))
	assert.NotContains(t, h.client.AppCommands, "old-stale")
	assert.Equal(t, "Ban a user from the server", h.client.AppCommands["old-ban"].Description)
}

func TestApplicationCommandPermissions(t *testing.T) {
	h := newHarness(t)

	ban := h.bot.commands["ban"].ApplicationCommand()
	require.NotNil(t, ban.DefaultMemberPermissions)
	assert.Equal(t, int64(discordgo.PermissionManageServer), *ban.DefaultMemberPermissions)
	require.NotNil(t, ban.DMPermission)
	assert.False(t, *ban.DMPermission)

	warnings := h.bot.commands["warnings"].ApplicationCommand()
	require.NotNil(t, warnings.DefaultMemberPermissions)
	assert.Equal(t, int64(discordgo.PermissionManageMessages), *warnings.DefaultMemberPermissions)
}

func TestStatusProvider(t *testing.T) {
	h := newHarness(t)
	assert.False(t, h.bot.Ready())

	h.bot.onReady(nil, &discordgo.Ready{User: h.client.Self})

	assert.True(t, h.bot.Ready())
	assert.Equal(t, 1, h.bot.GuildCount())
	assert.Equal(t, "modwarden", h.bot.BotUser())
	assert.Equal(t, 42*time.Millisecond, h.bot.Latency())
	assert.Equal(t, []string{"Moderating the server | 1 servers"}, h.client.Statuses)
}

func TestPresenceSkippedUntilReady(t *testing.T) {
	h := newHarness(t)
	h.bot.updatePresence()
	assert.Empty(t, h.client.Statuses)
}

func TestRunPresenceStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, h.bot.RunPresence(ctx))
}

func TestGuildCreateEnsuresSettingsRow(t *testing.T) {
	h := newHarness(t)
	h.bot.onGuildCreate(nil, &discordgo.GuildCreate{Guild: &discordgo.Guild{ID: "200", Name: "Other"}})

	assert.Equal(t, 1, h.logs.FilterMessage("guild available").Len())
	h.bot.onGuildDelete(nil, &discordgo.GuildDelete{Guild: &discordgo.Guild{ID: "200"}})
	assert.Equal(t, 1, h.logs.FilterMessage("guild removed").Len())
}

func TestOptionAccessors(t *testing.T) {
	h := newHarness(t)
	cc := &CommandContext{
		bot: h.bot,
		options: flattenOptions([]*discordgo.ApplicationCommandInteractionDataOption{
			{Name: "sub", Options: []*discordgo.ApplicationCommandInteractionDataOption{
				opt("amount", float64(5)),
				opt("text", "  padded  "),
				opt("numeric", "12"),
				opt("user", "77"),
			}},
		}),
		resolved: &discordgo.ApplicationCommandInteractionDataResolved{
			Users: map[string]*discordgo.User{"77": {ID: "77", Username: "resolved"}},
		},
	}

	n, ok := cc.Int("amount")
	assert.True(t, ok)
	assert.Equal(t, int64(5), n)
	n, ok = cc.Int("numeric")
	assert.True(t, ok)
	assert.Equal(t, int64(12), n)
	_, ok = cc.Int("missing")
	assert.False(t, ok)
	assert.Equal(t, int64(9), cc.IntOr("missing", 9))
	assert.Equal(t, "padded", cc.String("text"))
	assert.Equal(t, "resolved", cc.UserOption("user").Username)
	assert.Nil(t, cc.UserOption("missing"))
}

func TestCapabilityErrorIs(t *testing.T) {
	err := error(&CapabilityError{Missing: []string{"Ban Members"}, Bot: true})
	assert.ErrorIs(t, err, ErrCapabilityMissing)
	assert.ErrorIs(t, ErrInvalidID, duration.ErrInvalidFormat)
	assert.Equal(t, "I'm missing the following permissions: Ban Members", err.(*CapabilityError).Message())
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "ana", displayName(&discordgo.User{ID: "1", Username: "ana", Discriminator: "0"}))
	assert.Equal(t, "ana#1234", displayName(&discordgo.User{ID: "1", Username: "ana", Discriminator: "1234"}))
	assert.Equal(t, "1", displayName(&discordgo.User{ID: "1"}))
}

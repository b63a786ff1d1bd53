package bot

import (
	"errors"

	"github.com/bwmarrin/discordgo"
)

func (b *Bot) buildCommands() []*Command {
	textChannels := []discordgo.ChannelType{discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews}
	voiceChannels := []discordgo.ChannelType{discordgo.ChannelTypeGuildVoice, discordgo.ChannelTypeGuildStageVoice}

	return []*Command{
		NewCommand("ban", "Ban a user from the server", b.cmdBan).
			Elevated().
			WithBotPermissions(discordgo.PermissionBanMembers).
			WithOptions(
				userOption("user", "The user to ban", true),
				stringOption("reason", "Reason for the ban", false),
				intOption("delete_days", "Days of messages to delete (0-7)", false, 0, 7),
			),
		NewCommand("unban", "Unban a user by id", b.cmdUnban).
			Elevated().
			WithBotPermissions(discordgo.PermissionBanMembers).
			WithOptions(
				stringOption("user_id", "The id of the user to unban", true),
				stringOption("reason", "Reason for the unban", false),
			),
		NewCommand("kick", "Kick a member from the server", b.cmdKick).
			Elevated().
			WithBotPermissions(discordgo.PermissionKickMembers).
			WithOptions(
				userOption("user", "The member to kick", true),
				stringOption("reason", "Reason for the kick", false),
			),
		NewCommand("mute", "Mute a member", b.cmdMute).
			Elevated().
			WithBotPermissions(discordgo.PermissionManageRoles|discordgo.PermissionManageChannels).
			WithOptions(
				userOption("user", "The member to mute", true),
				stringOption("duration", "How long, e.g. 10m, 1h, 2d", true),
				stringOption("reason", "Reason for the mute", false),
			),
		NewCommand("unmute", "Lift a member's mute", b.cmdUnmute).
			Elevated().
			WithBotPermissions(discordgo.PermissionManageRoles).
			WithOptions(
				userOption("user", "The member to unmute", true),
				stringOption("reason", "Reason for the unmute", false),
			),
		NewCommand("warn", "Warn a member", b.cmdWarn).
			Elevated().
			WithOptions(
				userOption("user", "The member to warn", true),
				stringOption("reason", "Reason for the warning", true),
			),
		NewCommand("warnings", "List a member's warnings", b.cmdWarnings).
			WithUserPermissions(discordgo.PermissionManageMessages).
			WithOptions(userOption("user", "The member to look up", true)),
		NewCommand("clearwarnings", "Clear every warning a member has", b.cmdClearWarnings).
			Elevated().
			WithOptions(userOption("user", "The member to clear", true)),
		NewCommand("purge", "Delete recent messages in this channel", b.cmdPurge).
			Elevated().
			WithBotPermissions(discordgo.PermissionManageMessages).
			WithOptions(
				intOption("amount", "How many messages (1-100)", true, 1, 100),
				userOption("user", "Only delete messages from this user", false),
			),
		NewCommand("slowmode", "Set the slowmode delay for a channel", b.cmdSlowmode).
			Elevated().
			WithBotPermissions(discordgo.PermissionManageChannels).
			WithOptions(
				intOption("seconds", "Delay in seconds, 0 disables (max 21600)", true, 0, maxSlowmodeSeconds),
				channelOption("channel", "Channel to update, defaults to this one", false, textChannels...),
			),
		NewCommand("lock", "Stop @everyone from sending messages in a channel", b.cmdLock).
			Elevated().
			WithBotPermissions(discordgo.PermissionManageChannels).
			WithOptions(
				channelOption("channel", "Channel to lock, defaults to this one", false, textChannels...),
				stringOption("reason", "Reason for the lock", false),
			),
		NewCommand("unlock", "Let @everyone send messages in a channel again", b.cmdUnlock).
			Elevated().
			WithBotPermissions(discordgo.PermissionManageChannels).
			WithOptions(
				channelOption("channel", "Channel to unlock, defaults to this one", false, textChannels...),
				stringOption("reason", "Reason for the unlock", false),
			),
		NewCommand("nick", "Change or reset a member's nickname", b.cmdNick).
			Elevated().
			WithBotPermissions(discordgo.PermissionManageNicknames).
			WithOptions(
				userOption("user", "The member to rename", true),
				stringOption("nickname", "New nickname, empty resets it", false),
			),
		NewCommand("masslockdown", "Lock text channels across the server", b.cmdMassLockdown).
			Elevated().
			WithBotPermissions(discordgo.PermissionManageChannels).
			WithOptions(
				stringOption("channels", "Channel mentions or ids, defaults to every text channel", false),
				stringOption("reason", "Reason for the lockdown", false),
			),
		NewCommand("massunlock", "Restore channels locked by masslockdown", b.cmdMassUnlock).
			Elevated().
			WithBotPermissions(discordgo.PermissionManageChannels).
			WithOptions(stringOption("reason", "Reason for lifting the lockdown", false)),
		NewCommand("roleadd", "Give a member a role", b.cmdRoleAdd).
			Elevated().
			WithBotPermissions(discordgo.PermissionManageRoles).
			WithOptions(
				userOption("user", "The member to give the role to", true),
				roleOption("role", "The role to add", true),
				stringOption("reason", "Reason for the change", false),
			),
		NewCommand("roleremove", "Take a role from a member", b.cmdRoleRemove).
			Elevated().
			WithBotPermissions(discordgo.PermissionManageRoles).
			WithOptions(
				userOption("user", "The member to take the role from", true),
				roleOption("role", "The role to remove", true),
				stringOption("reason", "Reason for the change", false),
			),
		NewCommand("roleall", "Give a role to every member", b.cmdRoleAll).
			Elevated().
			WithBotPermissions(discordgo.PermissionManageRoles).
			WithOptions(roleOption("role", "The role to give to everyone", true)),
		NewCommand("removeroleall", "Take a role from every member", b.cmdRemoveRoleAll).
			Elevated().
			WithBotPermissions(discordgo.PermissionManageRoles).
			WithOptions(roleOption("role", "The role to remove from everyone", true)),
		NewCommand("move", "Move a member to another voice channel", b.cmdMove).
			Elevated().
			WithBotPermissions(discordgo.PermissionVoiceMoveMembers).
			WithOptions(
				userOption("user", "The member to move", true),
				channelOption("channel", "The voice channel to move them to", true, voiceChannels...),
			),
		NewCommand("servermute", "Server-mute a member in voice", b.cmdServerMute).
			Elevated().
			WithBotPermissions(discordgo.PermissionVoiceMuteMembers).
			WithOptions(
				userOption("user", "The member to server-mute", true),
				stringOption("reason", "Reason for the mute", false),
			),
		NewCommand("vcmassmove", "Disconnect everyone from a voice channel", b.cmdVCMassMove).
			Elevated().
			WithBotPermissions(discordgo.PermissionVoiceMoveMembers).
			WithOptions(channelOption("channel", "The voice channel to clear", true, voiceChannels...)),
		NewCommand("serverinfo", "Show information about this server", b.cmdServerInfo),
		NewCommand("userinfo", "Show information about a member", b.cmdUserInfo).
			WithOptions(userOption("user", "The member to look up, defaults to you", false)),
		NewCommand("avatar", "Show a member's avatar", b.cmdAvatar).
			WithOptions(userOption("user", "Whose avatar, defaults to yours", false)),
		NewCommand("poll", "Post a poll with reaction voting", b.cmdPoll).
			Elevated().
			WithBotPermissions(discordgo.PermissionSendMessages|discordgo.PermissionEmbedLinks|discordgo.PermissionAddReactions).
			WithOptions(
				stringOption("question", "The poll question", true),
				stringOption("options", "Up to 10 options separated by commas", true),
			),
		NewCommand("announce", "Send an announcement embed to a channel", b.cmdAnnounce).
			Elevated().
			WithBotPermissions(discordgo.PermissionSendMessages|discordgo.PermissionEmbedLinks).
			WithOptions(
				channelOption("channel", "Where to post it", true, textChannels...),
				stringOption("message", "The announcement text", true),
			),
		NewCommand("echo", "Repeat a message in this channel", b.cmdEcho).
			Elevated().
			WithBotPermissions(discordgo.PermissionSendMessages).
			WithOptions(
				stringOption("message", "What to say", true),
				choiceOption("format", "Plain text or an embed", true, echoPlain, echoEmbed),
				stringOption("message_id", "A message in this channel to reply to", false),
			),
		NewCommand("modlog", "Set or clear the moderation log channel", b.cmdModLog).
			Elevated().
			WithOptions(channelOption("channel", "Log channel, empty clears it", false, textChannels...)),
		NewCommand("config", "View or change bot settings for this server", b.cmdConfig).
			Elevated().
			WithOptions(
				choiceOption("key", "Setting to change", false, configKeys...),
				stringOption("value", "New value", false),
			),
		NewCommand("modstats", "Summarise recent moderation activity", b.cmdModStats).
			WithUserPermissions(discordgo.PermissionManageMessages).
			WithOptions(intOption("days", "How many days back (1-90)", false, 1, 90)),
		NewCommand("testreport", "Post a report for a message in this channel", b.cmdTestReport).
			Elevated().
			WithOptions(stringOption("message_id", "The message to report", true)),
	}
}

// registerCommands makes the global command set match b.commands: matching
// names are edited, missing ones created and stale ones deleted, including
// leftovers registered per guild.
func (b *Bot) registerCommands() error {
	self := b.client.BotUser()
	if self == nil {
		return errors.New("bot user unknown")
	}
	appID := self.ID

	existing, err := b.client.Commands(appID, "")
	if err != nil {
		for _, cmd := range b.commandOrder {
			if err := b.client.CreateCommand(appID, "", cmd.ApplicationCommand()); err != nil {
				return err
			}
		}
		return nil
	}

	existingByName := make(map[string]*discordgo.ApplicationCommand, len(existing))
	for _, cmd := range existing {
		existingByName[cmd.Name] = cmd
	}

	for _, cmd := range b.commandOrder {
		if current, ok := existingByName[cmd.Name]; ok {
			if err := b.client.EditCommand(appID, "", current.ID, cmd.ApplicationCommand()); err != nil {
				return err
			}
			continue
		}
		if err := b.client.CreateCommand(appID, "", cmd.ApplicationCommand()); err != nil {
			return err
		}
	}

	for _, cmd := range existing {
		if _, ok := b.commands[cmd.Name]; ok {
			continue
		}
		_ = b.client.DeleteCommand(appID, "", cmd.ID)
	}

	for _, guildID := range b.client.GuildIDs() {
		guildCmds, err := b.client.Commands(appID, guildID)
		if err != nil {
			continue
		}
		for _, cmd := range guildCmds {
			if _, ok := b.commands[cmd.Name]; ok {
				continue
			}
			_ = b.client.DeleteCommand(appID, guildID, cmd.ID)
		}
	}
	return nil
}

func userOption(name, description string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionUser,
		Name:        name,
		Description: description,
		Required:    required,
	}
}

func stringOption(name, description string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        name,
		Description: description,
		Required:    required,
	}
}

func intOption(name, description string, required bool, lo, hi float64) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionInteger,
		Name:        name,
		Description: description,
		Required:    required,
		MinValue:    &lo,
		MaxValue:    hi,
	}
}

func roleOption(name, description string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionRole,
		Name:        name,
		Description: description,
		Required:    required,
	}
}

func channelOption(name, description string, required bool, types ...discordgo.ChannelType) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:         discordgo.ApplicationCommandOptionChannel,
		Name:         name,
		Description:  description,
		Required:     required,
		ChannelTypes: types,
	}
}

func choiceOption(name, description string, required bool, values ...string) *discordgo.ApplicationCommandOption {
	opt := stringOption(name, description, required)
	for _, value := range values {
		opt.Choices = append(opt.Choices, &discordgo.ApplicationCommandOptionChoice{Name: value, Value: value})
	}
	return opt
}

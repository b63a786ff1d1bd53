package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"modwarden/internal/config"
	"modwarden/internal/duration"
	"modwarden/internal/modules/audit"
	"modwarden/internal/permissions"
	"modwarden/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	defaultReason   = "No reason provided"
	maxPurge        = 100
	warningsPerPage = 10
	muteRoleColor   = 0x818386
	textMuteDeny    = discordgo.PermissionSendMessages | discordgo.PermissionAddReactions
	voiceMuteDeny   = discordgo.PermissionVoiceSpeak
)

func reasonOr(ctx *CommandContext) string {
	if reason := ctx.String("reason"); reason != "" {
		return reason
	}
	return defaultReason
}

// gateTarget loads target as a guild member and runs the hierarchy check.
// requireMember is false for bans, which may hit users outside the guild.
func (b *Bot) gateTarget(ctx *CommandContext, target *discordgo.User, requireMember bool) (*discordgo.Member, error) {
	if target == nil {
		return nil, refuse("Please specify a user.")
	}
	member, err := b.client.Member(ctx.GuildID(), target.ID)
	if err != nil {
		if requireMember {
			return nil, refuse("**%s** is not a member of this server.", displayName(target))
		}
		member = nil
	}

	subject := permissions.Member{ID: target.ID}
	if member != nil {
		subject = permissions.FromGuild(ctx.Guild, member)
		if subject.ID == "" {
			subject.ID = target.ID
		}
	}
	if err := permissions.CanActOn(ctx.Guild.OwnerID, ctx.Actor, subject, ctx.BotMember); err != nil {
		return nil, err
	}
	return member, nil
}

func (b *Bot) cmdBan(ctx *CommandContext) error {
	target := ctx.UserOption("user")
	if _, err := b.gateTarget(ctx, target, false); err != nil {
		return err
	}
	reason := reasonOr(ctx)
	days := int(ctx.IntOr("delete_days", 0))
	if days < 0 || days > 7 {
		return refuse("Delete days must be between 0 and 7.")
	}

	if err := b.client.Ban(ctx.GuildID(), target.ID, reason, days); err != nil {
		return opFailed("ban", err)
	}
	details := ""
	if days > 0 {
		details = fmt.Sprintf("Deleted %d day(s) of messages", days)
	}
	ctx.Record(audit.Action{Type: "ban", Target: targetOf(target), Reason: reason, Details: details})
	return ctx.Success("User Banned", fmt.Sprintf("**%s** has been banned.\n**Reason:** %s", displayName(target), reason))
}

func (b *Bot) cmdUnban(ctx *CommandContext) error {
	userID := ctx.String("user_id")
	if !validSnowflake(userID) {
		return ErrInvalidID
	}
	reason := reasonOr(ctx)

	if err := b.client.Unban(ctx.GuildID(), userID); err != nil {
		return opFailed("unban", err)
	}
	target := &discordgo.User{ID: userID}
	if user, err := b.client.User(userID); err == nil && user != nil {
		target = user
	}
	ctx.Record(audit.Action{Type: "unban", Target: targetOf(target), Reason: reason})
	return ctx.Success("User Unbanned", fmt.Sprintf("**%s** has been unbanned.\n**Reason:** %s", displayName(target), reason))
}

func (b *Bot) cmdKick(ctx *CommandContext) error {
	target := ctx.UserOption("user")
	if _, err := b.gateTarget(ctx, target, true); err != nil {
		return err
	}
	reason := reasonOr(ctx)

	if err := b.client.Kick(ctx.GuildID(), target.ID, reason); err != nil {
		return opFailed("kick", err)
	}
	ctx.Record(audit.Action{Type: "kick", Target: targetOf(target), Reason: reason})
	return ctx.Success("User Kicked", fmt.Sprintf("**%s** has been kicked.\n**Reason:** %s", displayName(target), reason))
}

func (b *Bot) cmdMute(ctx *CommandContext) error {
	target := ctx.UserOption("user")
	member, err := b.gateTarget(ctx, target, true)
	if err != nil {
		return err
	}
	seconds, err := duration.ParsePositive(ctx.String("duration"))
	if err != nil {
		return err
	}
	reason := reasonOr(ctx)

	active, err := b.store.GetActiveMute(ctx.Context, ctx.GuildID(), target.ID)
	if err != nil {
		return fmt.Errorf("load active mute: %w", err)
	}
	if active != nil {
		return refuse("**%s** is already muted.", displayName(target))
	}
	roleID, err := b.findMuteRole(ctx)
	if err != nil {
		return err
	}
	if hasRole(member, roleID) {
		return refuse("**%s** is already muted.", displayName(target))
	}
	if roleID == "" {
		// role setup touches every channel
		if err := ctx.Defer(false); err != nil {
			return fmt.Errorf("defer mute: %w", err)
		}
		if roleID, err = b.createMuteRole(ctx); err != nil {
			return err
		}
	}

	if err := b.client.AddRole(ctx.GuildID(), target.ID, roleID); err != nil {
		return opFailed("add mute role", err)
	}
	length := time.Duration(seconds) * time.Second
	if _, err := b.store.AddMute(ctx.Context, ctx.GuildID(), target.ID, ctx.User().ID, reason, &length); err != nil {
		b.logger.Error("mute row write failed",
			zap.String("guild_id", ctx.GuildID()),
			zap.String("user_id", target.ID),
			zap.Error(err))
	}

	formatted := duration.Format(seconds)
	ctx.Record(audit.Action{Type: "mute", Target: targetOf(target), Reason: reason, Details: "Duration: " + formatted})
	return ctx.Success("User Muted", fmt.Sprintf("**%s** has been muted for %s.\n**Reason:** %s", displayName(target), formatted, reason))
}

// findMuteRole returns the guild's existing mute role id, or "" when the
// role has yet to be created.
func (b *Bot) findMuteRole(ctx *CommandContext) (string, error) {
	stored, err := b.store.GetGuildSetting(ctx.Context, ctx.GuildID(), storage.SettingMuteRole)
	if err != nil {
		return "", fmt.Errorf("load mute role: %w", err)
	}
	if stored != "" && guildRole(ctx.Guild, stored) != nil {
		return stored, nil
	}
	name := muteRoleName(ctx)
	for _, role := range ctx.Guild.Roles {
		if strings.EqualFold(role.Name, name) {
			return role.ID, b.persistMuteRole(ctx, role.ID)
		}
	}
	return "", nil
}

func muteRoleName(ctx *CommandContext) string {
	if ctx.Settings.DefaultMuteRole == "" {
		return "Muted"
	}
	return ctx.Settings.DefaultMuteRole
}

// createMuteRole creates the mute role and denies it speech in every text
// and voice channel.
func (b *Bot) createMuteRole(ctx *CommandContext) (string, error) {
	name := muteRoleName(ctx)
	color := muteRoleColor
	var none int64
	hoist, mentionable := false, false
	role, err := b.client.CreateRole(ctx.GuildID(), &discordgo.RoleParams{
		Name:        name,
		Color:       &color,
		Hoist:       &hoist,
		Permissions: &none,
		Mentionable: &mentionable,
	})
	if err != nil {
		return "", opFailed("create mute role", err)
	}
	b.logger.Info("mute role created", zap.String("guild_id", ctx.GuildID()), zap.String("role_id", role.ID))

	channels, err := b.client.GuildChannels(ctx.GuildID())
	if err != nil {
		b.logger.Warn("list channels for mute role failed", zap.String("guild_id", ctx.GuildID()), zap.Error(err))
	}
	for _, channel := range channels {
		var deny int64
		switch channel.Type {
		case discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews:
			deny = textMuteDeny
		case discordgo.ChannelTypeGuildVoice, discordgo.ChannelTypeGuildStageVoice:
			deny = voiceMuteDeny
		default:
			continue
		}
		if err := b.client.SetPermission(channel.ID, role.ID, discordgo.PermissionOverwriteTypeRole, 0, deny); err != nil {
			b.logger.Debug("mute overwrite failed", zap.String("channel_id", channel.ID), zap.Error(err))
		}
	}
	return role.ID, b.persistMuteRole(ctx, role.ID)
}

func (b *Bot) persistMuteRole(ctx *CommandContext, roleID string) error {
	if err := b.store.SetGuildSetting(ctx.Context, ctx.GuildID(), storage.SettingMuteRole, roleID); err != nil {
		return fmt.Errorf("persist mute role: %w", err)
	}
	return nil
}

func (b *Bot) cmdUnmute(ctx *CommandContext) error {
	target := ctx.UserOption("user")
	member, err := b.gateTarget(ctx, target, true)
	if err != nil {
		return err
	}
	reason := reasonOr(ctx)

	roleID, err := b.store.GetGuildSetting(ctx.Context, ctx.GuildID(), storage.SettingMuteRole)
	if err != nil {
		return fmt.Errorf("load mute role: %w", err)
	}
	active, err := b.store.GetActiveMute(ctx.Context, ctx.GuildID(), target.ID)
	if err != nil {
		return fmt.Errorf("load active mute: %w", err)
	}
	holdsRole := hasRole(member, roleID)
	if active == nil && !holdsRole {
		return refuse("This user is not muted.")
	}

	if holdsRole {
		if err := b.client.RemoveRole(ctx.GuildID(), target.ID, roleID); err != nil {
			return opFailed("remove mute role", err)
		}
	}
	if _, err := b.store.DeactivateMute(ctx.Context, ctx.GuildID(), target.ID); err != nil {
		b.logger.Error("mute row update failed",
			zap.String("guild_id", ctx.GuildID()),
			zap.String("user_id", target.ID),
			zap.Error(err))
	}

	ctx.Record(audit.Action{Type: "unmute", Target: targetOf(target), Reason: reason})
	return ctx.Success("User Unmuted", fmt.Sprintf("**%s** has been unmuted.\n**Reason:** %s", displayName(target), reason))
}

func (b *Bot) cmdWarn(ctx *CommandContext) error {
	target := ctx.UserOption("user")
	if _, err := b.gateTarget(ctx, target, true); err != nil {
		return err
	}
	reason := reasonOr(ctx)

	id, err := b.store.AddWarning(ctx.Context, ctx.GuildID(), target.ID, ctx.User().ID, reason)
	if err != nil {
		return fmt.Errorf("add warning: %w", err)
	}
	count, err := b.store.CountWarnings(ctx.Context, ctx.GuildID(), target.ID)
	if err != nil {
		return fmt.Errorf("count warnings: %w", err)
	}
	ctx.Record(audit.Action{
		Type:    "warn",
		Target:  targetOf(target),
		Reason:  reason,
		Details: fmt.Sprintf("Warning #%d (ID: %d)", count, id),
	})

	b.sendDM(target.ID, &discordgo.MessageEmbed{
		Title:       "⚠️ Warning Received",
		Description: fmt.Sprintf("You have received a warning in **%s**", ctx.Guild.Name),
		Color:       ctx.Settings.WarningColor,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Reason", Value: reason},
			{Name: "Total Warnings", Value: fmt.Sprint(count), Inline: true},
			{Name: "Moderator", Value: displayName(ctx.User()), Inline: true},
		},
	})

	description := fmt.Sprintf("**%s** has been warned.\n**Reason:** %s\n**Total warnings:** %d", displayName(target), reason, count)
	if line := b.autoBan(ctx.Context, ctx.GuildID(), ctx.Settings, ctx.Moderator(), target, count); line != "" {
		description += "\n" + line
	}
	return ctx.Warning("User Warned", description)
}

// autoBan bans target once count reaches the guild's warning limit and
// returns the line appended to the warn reply, or "" below the limit.
func (b *Bot) autoBan(ctx context.Context, guildID string, settings config.GuildSettings, moderator audit.Actor, target *discordgo.User, count int) string {
	if !settings.AutoBanOnMaxWarnings || settings.MaxWarnings <= 0 || count < settings.MaxWarnings {
		return ""
	}
	reason := fmt.Sprintf("Automatic ban: reached %d warnings", count)
	if err := b.client.Ban(guildID, target.ID, reason, 0); err != nil {
		b.logger.Warn("auto ban failed",
			zap.String("guild_id", guildID),
			zap.String("user_id", target.ID),
			zap.Error(err))
		return "Automatic ban failed, please review manually."
	}
	_ = b.pipeline.Record(ctx, audit.Action{
		GuildID:   guildID,
		Type:      "auto ban",
		Moderator: actorOf(b.client.BotUser()),
		Target:    targetOf(target),
		Reason:    reason,
		Details:   fmt.Sprintf("Triggered by warning from %s", moderator.Mention()),
	})
	return fmt.Sprintf("**%s** reached the warning limit and was banned.", displayName(target))
}

func (b *Bot) cmdWarnings(ctx *CommandContext) error {
	target := ctx.UserOption("user")
	if target == nil {
		return refuse("Please specify a user.")
	}
	warnings, err := b.store.ListWarnings(ctx.Context, ctx.GuildID(), target.ID)
	if err != nil {
		return fmt.Errorf("list warnings: %w", err)
	}
	name := displayName(target)
	if len(warnings) == 0 {
		return ctx.ReplyEmbed(commandEmbed("No Warnings", fmt.Sprintf("**%s** has no warnings.", name), ctx.Settings.SuccessColor, nil))
	}

	shown := warnings
	if len(shown) > warningsPerPage {
		shown = shown[:warningsPerPage]
	}
	fields := make([]*discordgo.MessageEmbedField, 0, len(shown))
	for i, w := range shown {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("Warning #%d (ID: %d)", i+1, w.ID),
			Value: fmt.Sprintf("**Reason:** %s\n**Moderator:** %s\n**Date:** <t:%d:f>", w.Reason, mention(w.ModeratorID), w.CreatedAt.Unix()),
		})
	}
	embed := commandEmbed("Warnings for "+name, fmt.Sprintf("Total warnings: %d", len(warnings)), ctx.Settings.WarningColor, fields)
	if len(warnings) > warningsPerPage {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Showing %d of %d warnings", warningsPerPage, len(warnings))}
	}
	return ctx.ReplyEmbed(embed)
}

func (b *Bot) cmdClearWarnings(ctx *CommandContext) error {
	target := ctx.UserOption("user")
	if target == nil {
		return refuse("Please specify a user.")
	}
	cleared, err := b.store.ClearWarnings(ctx.Context, ctx.GuildID(), target.ID)
	if err != nil {
		return fmt.Errorf("clear warnings: %w", err)
	}
	if cleared == 0 {
		return refuse("**%s** has no warnings to clear.", displayName(target))
	}
	ctx.Record(audit.Action{
		Type:    "clear warnings",
		Target:  targetOf(target),
		Reason:  defaultReason,
		Details: fmt.Sprintf("Cleared %d warnings", cleared),
	})
	return ctx.Success("Warnings Cleared", fmt.Sprintf("Cleared %d warning(s) for **%s**.", cleared, displayName(target)))
}

func (b *Bot) cmdPurge(ctx *CommandContext) error {
	amount, ok := ctx.Int("amount")
	if !ok || amount < 1 || amount > maxPurge {
		return refuse("Amount must be between 1 and %d.", maxPurge)
	}
	if err := ctx.Defer(true); err != nil {
		return fmt.Errorf("defer purge: %w", err)
	}
	var author *discordgo.User
	if ctx.String("user") != "" {
		author = ctx.UserOption("user")
	}

	messages, err := b.client.RecentMessages(ctx.ChannelID(), maxPurge)
	if err != nil {
		return opFailed("list messages", err)
	}
	ids := make([]string, 0, amount)
	for _, msg := range messages {
		if int64(len(ids)) >= amount {
			break
		}
		if author != nil && (msg.Author == nil || msg.Author.ID != author.ID) {
			continue
		}
		ids = append(ids, msg.ID)
	}
	if len(ids) == 0 {
		return refuse("No messages found to delete.")
	}
	if err := b.client.BulkDelete(ctx.ChannelID(), ids); err != nil {
		return opFailed("bulk delete", err)
	}

	details := fmt.Sprintf("Deleted %d messages in %s", len(ids), channelMention(ctx.ChannelID()))
	var target *audit.Actor
	if author != nil {
		target = targetOf(author)
		details += " from " + displayName(author)
	}
	ctx.Record(audit.Action{Type: "purge", Target: target, Reason: defaultReason, Details: details})
	return ctx.ReplyEphemeralEmbed(commandEmbed("✅ Messages Purged",
		fmt.Sprintf("Successfully deleted %d messages.", len(ids)), ctx.Settings.SuccessColor, nil))
}

// sendDM delivers a best-effort direct message; members often have DMs
// closed.
func (b *Bot) sendDM(userID string, embed *discordgo.MessageEmbed) {
	if err := b.client.SendDM(userID, embed); err != nil {
		b.logger.Debug("direct message not delivered", zap.String("user_id", userID), zap.Error(err))
	}
}

func hasRole(member *discordgo.Member, roleID string) bool {
	if member == nil || roleID == "" {
		return false
	}
	for _, id := range member.Roles {
		if id == roleID {
			return true
		}
	}
	return false
}

func guildRole(guild *discordgo.Guild, roleID string) *discordgo.Role {
	if guild == nil {
		return nil
	}
	for _, role := range guild.Roles {
		if role.ID == roleID {
			return role
		}
	}
	return nil
}

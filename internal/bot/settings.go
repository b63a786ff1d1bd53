package bot

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"modwarden/internal/config"
	"modwarden/internal/modules/audit"
	"modwarden/internal/storage"

	"github.com/bwmarrin/discordgo"
)

var configKeys = []string{
	config.KeyMaxWarnings,
	config.KeyAutoBanOnMaxWarnings,
	config.KeyLogAllActions,
	config.KeyDefaultMuteRole,
}

func (b *Bot) cmdModLog(ctx *CommandContext) error {
	channelID := ctx.String("channel")
	if err := b.store.SetGuildSetting(ctx.Context, ctx.GuildID(), storage.SettingModLogChannel, channelID); err != nil {
		return fmt.Errorf("save mod log channel: %w", err)
	}

	if channelID == "" {
		ctx.Record(audit.Action{Type: "modlog update", Reason: defaultReason, Details: "Mod log channel cleared"})
		return ctx.Success("Mod Log Cleared", "Moderation actions will no longer be posted to a channel.")
	}
	details := "Mod log channel set to " + channelMention(channelID)
	ctx.Record(audit.Action{Type: "modlog update", Reason: defaultReason, Details: details})
	return ctx.Success("Mod Log Updated", details)
}

func (b *Bot) cmdConfig(ctx *CommandContext) error {
	key := ctx.String("key")
	if key == "" {
		return ctx.ReplyEphemeralEmbed(b.settingsEmbed(ctx))
	}
	raw := ctx.String("value")
	if raw == "" {
		return refuse("Please provide a value for `%s`.", key)
	}

	value, err := b.guilds.SetGuildValue(ctx.GuildID(), key, raw)
	if err != nil {
		if errors.Is(err, config.ErrUnknownKey) {
			return refuse("Unknown setting `%s`. Valid keys: %s", key, strings.Join(configKeys, ", "))
		}
		if value == nil {
			return refuse("%s", err.Error())
		}
		return fmt.Errorf("save guild config: %w", err)
	}

	details := fmt.Sprintf("%s = %v", key, value)
	ctx.Record(audit.Action{Type: "config update", Reason: defaultReason, Details: details})
	return ctx.Success("Configuration Updated", fmt.Sprintf("Set `%s` to `%v`.", key, value))
}

func (b *Bot) settingsEmbed(ctx *CommandContext) *discordgo.MessageEmbed {
	settings := b.guilds.GuildSettings(ctx.GuildID())
	modLog := "Not set"
	if stored, err := b.store.GetGuildSetting(ctx.Context, ctx.GuildID(), storage.SettingModLogChannel); err == nil && stored != "" {
		modLog = channelMention(stored)
	} else if settings.ModLogChannel != "" {
		modLog = channelMention(settings.ModLogChannel)
	}
	return commandEmbed("Server Configuration", "", settings.EmbedColor, []*discordgo.MessageEmbedField{
		{Name: "Mod log channel", Value: modLog, Inline: true},
		{Name: config.KeyDefaultMuteRole, Value: settings.DefaultMuteRole, Inline: true},
		{Name: config.KeyMaxWarnings, Value: fmt.Sprint(settings.MaxWarnings), Inline: true},
		{Name: config.KeyAutoBanOnMaxWarnings, Value: fmt.Sprint(settings.AutoBanOnMaxWarnings), Inline: true},
		{Name: config.KeyLogAllActions, Value: fmt.Sprint(settings.LogAllActions), Inline: true},
	})
}

func (b *Bot) cmdModStats(ctx *CommandContext) error {
	days := ctx.IntOr("days", 7)
	if days < 1 || days > 90 {
		return refuse("Days must be between 1 and 90.")
	}
	since := b.now().Add(-time.Duration(days) * 24 * time.Hour)

	report, err := b.analytics.Report(ctx.Context, ctx.GuildID(), since)
	if err != nil {
		return fmt.Errorf("build moderation report: %w", err)
	}
	title := fmt.Sprintf("Moderation Stats (last %d days)", days)
	if report.Total == 0 {
		return ctx.ReplyEmbed(commandEmbed(title, "No moderation actions recorded.", ctx.Settings.EmbedColor, nil))
	}

	var byAction strings.Builder
	for _, action := range report.Actions() {
		fmt.Fprintf(&byAction, "%s: %d\n", audit.Title(action), report.ByAction[action])
	}
	var top strings.Builder
	for i, mod := range report.TopModerators {
		fmt.Fprintf(&top, "%d. %s (%d)\n", i+1, mention(mod.ModeratorID), mod.Actions)
	}
	fields := []*discordgo.MessageEmbedField{{Name: "By action", Value: byAction.String()}}
	if top.Len() > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Top moderators", Value: top.String()})
	}
	return ctx.ReplyEmbed(commandEmbed(title, fmt.Sprintf("Total actions: %d", report.Total), ctx.Settings.EmbedColor, fields))
}

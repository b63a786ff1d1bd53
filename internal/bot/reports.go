package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"modwarden/internal/modules/audit"
	"modwarden/internal/permissions"
	"modwarden/internal/platform"
	"modwarden/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	reportButtonPrefix = "report:"
	reportColor        = 0xFF6B6B
	reportActionsColor = 0x74C0FC
	reportPreviewLen   = 100
)

var errNoReportChannel = errors.New("no report channel configured")

const (
	reportActionDelete  = "delete"
	reportActionWarn    = "warn"
	reportActionDismiss = "dismiss"
)

// reportRef is everything a report button needs, carried in its custom id
// as report:<action>:<channel>:<message>:<reported>:<reporter>.
type reportRef struct {
	Action     string
	ChannelID  string
	MessageID  string
	ReportedID string
	ReporterID string
}

func (r reportRef) customID(action string) string {
	return strings.Join([]string{"report", action, r.ChannelID, r.MessageID, r.ReportedID, r.ReporterID}, ":")
}

func parseReportRef(customID string) (reportRef, bool) {
	parts := strings.Split(customID, ":")
	if len(parts) != 6 || parts[0] != "report" {
		return reportRef{}, false
	}
	ref := reportRef{Action: parts[1], ChannelID: parts[2], MessageID: parts[3], ReportedID: parts[4], ReporterID: parts[5]}
	for _, id := range []string{ref.ChannelID, ref.MessageID, ref.ReportedID, ref.ReporterID} {
		if !validSnowflake(id) {
			return reportRef{}, false
		}
	}
	switch ref.Action {
	case reportActionDelete, reportActionWarn, reportActionDismiss:
		return ref, true
	}
	return reportRef{}, false
}

func jumpLink(guildID, channelID, messageID string) string {
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", guildID, channelID, messageID)
}

func (b *Bot) matchesReportEmoji(emoji discordgo.Emoji) bool {
	want := b.cfg.Reports.Emoji
	if want == "" {
		return false
	}
	return emoji.Name == want || (emoji.ID != "" && emoji.ID == want)
}

func (b *Bot) onMessageReactionAdd(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if !b.cfg.Reports.Enabled || r.MessageReaction == nil || r.GuildID == "" {
		return
	}
	if !b.matchesReportEmoji(r.Emoji) {
		return
	}
	if r.Member != nil && r.Member.User != nil && r.Member.User.Bot {
		return
	}
	reporter, err := b.client.User(r.UserID)
	if err != nil || reporter == nil {
		reporter = &discordgo.User{ID: r.UserID}
	}
	if reporter.Bot {
		return
	}

	message, err := b.client.Message(r.ChannelID, r.MessageID)
	if err != nil || message == nil || message.Author == nil {
		b.logger.Debug("reported message unavailable", zap.String("message_id", r.MessageID), zap.Error(err))
		return
	}

	emoji := platform.EmojiAPIName(r.Emoji)
	if err := b.client.RemoveReaction(r.ChannelID, r.MessageID, emoji, r.UserID); err != nil {
		b.logger.Debug("report reaction not removed", zap.String("message_id", r.MessageID), zap.Error(err))
	}
	if message.Author.ID == reporter.ID {
		return
	}
	if !b.reports.Allow(r.GuildID+":"+reporter.ID, b.now()) {
		b.logger.Debug("report rate limited", zap.String("guild_id", r.GuildID), zap.String("user_id", reporter.ID))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := b.postReport(ctx, r.GuildID, message, reporter); err != nil {
		b.logger.Warn("report not posted", zap.String("guild_id", r.GuildID), zap.String("message_id", message.ID), zap.Error(err))
	}
}

// reportChannel is the configured reports channel, then the mod log
// channel from the store, then the one from the guild config.
func (b *Bot) reportChannel(ctx context.Context, guildID string) string {
	if b.cfg.Reports.ChannelID != "" {
		return b.cfg.Reports.ChannelID
	}
	if stored, err := b.store.GetGuildSetting(ctx, guildID, storage.SettingModLogChannel); err == nil && stored != "" {
		return stored
	}
	return b.guilds.GuildSettings(guildID).ModLogChannel
}

func (b *Bot) postReport(ctx context.Context, guildID string, message *discordgo.Message, reporter *discordgo.User) error {
	channelID := b.reportChannel(ctx, guildID)
	if channelID == "" {
		return errNoReportChannel
	}

	ref := reportRef{ChannelID: message.ChannelID, MessageID: message.ID, ReportedID: message.Author.ID, ReporterID: reporter.ID}
	_, err := b.client.SendComplex(channelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{reportEmbed(guildID, message, reporter), reportActionsEmbed()},
		Components: reportComponents(ref),
	})
	if err != nil {
		return opFailed("send report", err)
	}
	b.logger.Info("message reported",
		zap.String("guild_id", guildID),
		zap.String("message_id", message.ID),
		zap.String("reported_id", message.Author.ID),
		zap.String("reporter_id", reporter.ID))
	return nil
}

func reportEmbed(guildID string, message *discordgo.Message, reporter *discordgo.User) *discordgo.MessageEmbed {
	preview := message.Content
	if runes := []rune(preview); len(runes) > reportPreviewLen {
		preview = string(runes[:reportPreviewLen]) + "..."
	}
	if strings.TrimSpace(preview) == "" {
		preview = "*[No text content - possibly embeds/attachments]*"
	}

	return &discordgo.MessageEmbed{
		Title:       "📢 User Report System",
		Description: "A message has been reported for review.",
		Color:       reportColor,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "👤 Reporter", Value: fmt.Sprintf("%s\n`%s`", mention(reporter.ID), reporter.ID), Inline: true},
			{Name: "⚠️ Reported User", Value: fmt.Sprintf("%s\n`%s`", mention(message.Author.ID), message.Author.ID), Inline: true},
			{
				Name: "💬 Reported Message",
				Value: fmt.Sprintf("%s\nin %s\n[Jump to message](%s)",
					preview, channelMention(message.ChannelID), jumpLink(guildID, message.ChannelID, message.ID)),
			},
			{Name: "📍 Context", Value: fmt.Sprintf("Message ID: `%s`\nChannel ID: `%s`", message.ID, message.ChannelID)},
		},
	}
}

func reportActionsEmbed() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "🔧 Moderation Actions",
		Description: "Choose an appropriate action for this report:",
		Color:       reportActionsColor,
	}
}

func reportComponents(ref reportRef) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{
				Label:    "🗑️ Delete Message",
				Style:    discordgo.DangerButton,
				CustomID: ref.customID(reportActionDelete),
			},
			discordgo.Button{
				Label:    "⚠️ Warn User",
				Style:    discordgo.SecondaryButton,
				CustomID: ref.customID(reportActionWarn),
			},
			discordgo.Button{
				Label:    "✅ No Action Needed",
				Style:    discordgo.SuccessButton,
				CustomID: ref.customID(reportActionDismiss),
			},
		}},
	}
}

func (b *Bot) handleReportButton(ic *discordgo.InteractionCreate, customID string) {
	reply := func(content string) {
		err := b.client.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{Content: content, Flags: discordgo.MessageFlagsEphemeral},
		})
		if err != nil {
			b.logger.Warn("report button reply failed", zap.Error(err))
		}
	}

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("report button panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	ref, ok := parseReportRef(customID)
	if !ok || ic.GuildID == "" || ic.Member == nil || ic.Member.User == nil {
		reply("❌ This report is no longer valid.")
		return
	}

	guild, err := b.client.Guild(ic.GuildID)
	if err != nil {
		reply("❌ I couldn't load this server.")
		return
	}
	actor := permissions.FromGuild(guild, ic.Member)
	if ic.Member.Permissions != 0 && guild.OwnerID != ic.Member.User.ID {
		actor.Permissions = ic.Member.Permissions
	}
	if !permissions.HasModerationCapability(actor, b.cfg.OwnerID) {
		reply("❌ You need moderation permissions to handle reports.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	settings := b.guilds.GuildSettings(ic.GuildID)
	moderator := actorOf(ic.Member.User)
	reported := b.lookupUser(ref.ReportedID)
	action := audit.Action{
		GuildID:   ic.GuildID,
		Moderator: moderator,
		Target:    targetOf(reported),
		Details:   fmt.Sprintf("Reported by %s, message %s", mention(ref.ReporterID), ref.MessageID),
	}

	var (
		taken    string
		warnings int
	)
	switch ref.Action {
	case reportActionDelete:
		if err := b.client.DeleteMessage(ref.ChannelID, ref.MessageID); err != nil {
			b.logger.Warn("reported message delete failed", zap.String("message_id", ref.MessageID), zap.Error(err))
			reply("❌ I couldn't delete that message. It may already be gone.")
			return
		}
		b.sendDM(ref.ReportedID, &discordgo.MessageEmbed{
			Title:       "⚠️ Message Deleted",
			Description: fmt.Sprintf("A message you sent in **%s** was removed after a report.", guild.Name),
			Color:       settings.WarningColor,
		})
		action.Type = "report delete"
		action.Reason = "Reported message removed"
		taken = "Message Deleted"

	case reportActionWarn:
		if err := b.gateReported(guild, actor, ref.ReportedID); err != nil {
			var denial *permissions.Denial
			if errors.As(err, &denial) {
				reply("❌ " + denial.Message())
				return
			}
			reply("❌ The reported user is no longer a member of this server.")
			return
		}
		id, err := b.store.AddWarning(ctx, ic.GuildID, ref.ReportedID, moderator.ID, "Reported message violation")
		if err != nil {
			b.logger.Error("report warning write failed", zap.String("user_id", ref.ReportedID), zap.Error(err))
			reply("❌ I couldn't record the warning.")
			return
		}
		count, err := b.store.CountWarnings(ctx, ic.GuildID, ref.ReportedID)
		if err != nil {
			b.logger.Error("report warning count failed", zap.String("user_id", ref.ReportedID), zap.Error(err))
			reply("❌ The warning was recorded but I couldn't count the user's warnings.")
			return
		}
		b.sendDM(ref.ReportedID, &discordgo.MessageEmbed{
			Title:       "⚠️ Official Warning",
			Description: fmt.Sprintf("You have received a warning in **%s** for a reported message.", guild.Name),
			Color:       settings.WarningColor,
			Fields: []*discordgo.MessageEmbedField{
				{Name: "Total Warnings", Value: fmt.Sprint(count), Inline: true},
			},
		})
		action.Type = "report warn"
		action.Reason = "Reported message violation"
		action.Details = fmt.Sprintf("Warning #%d (ID: %d), reported by %s", count, id, mention(ref.ReporterID))
		taken = "User Warned"
		warnings = count

	case reportActionDismiss:
		b.sendDM(ref.ReporterID, &discordgo.MessageEmbed{
			Title:       "✅ Report Reviewed",
			Description: fmt.Sprintf("Thanks for your report in **%s**. A moderator reviewed it and no action was needed.", guild.Name),
			Color:       settings.SuccessColor,
		})
		action.Type = "report dismissed"
		action.Reason = "No action needed"
		taken = "No Action Required"
	}

	_ = b.pipeline.Record(ctx, action)
	var banned string
	if ref.Action == reportActionWarn {
		banned = b.autoBan(ctx, ic.GuildID, settings, moderator, reported, warnings)
	}

	confirm := &discordgo.MessageEmbed{
		Title:       "✅ Report Action Completed",
		Description: fmt.Sprintf("%s handled this report.", moderator.Mention()),
		Color:       settings.SuccessColor,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Action Taken", Value: taken, Inline: true},
			{Name: "Reported User", Value: mention(ref.ReportedID), Inline: true},
		},
	}
	if banned != "" {
		confirm.Fields = append(confirm.Fields, &discordgo.MessageEmbedField{Name: "Automatic Ban", Value: banned})
	}
	err = b.client.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{confirm},
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.Button{
						Label: "Jump To Message",
						Style: discordgo.LinkButton,
						URL:   jumpLink(ic.GuildID, ref.ChannelID, ref.MessageID),
					},
				}},
			},
		},
	})
	if err != nil {
		b.logger.Warn("report confirmation failed", zap.Error(err))
	}
}

// gateReported runs the hierarchy check for a warn issued from a report.
func (b *Bot) gateReported(guild *discordgo.Guild, actor permissions.Member, reportedID string) error {
	member, err := b.client.Member(guild.ID, reportedID)
	if err != nil {
		return err
	}
	subject := permissions.FromGuild(guild, member)
	if subject.ID == "" {
		subject.ID = reportedID
	}
	self := permissions.Member{}
	if user := b.client.BotUser(); user != nil {
		self.ID = user.ID
		if botMember, err := b.client.Member(guild.ID, user.ID); err == nil {
			self = permissions.FromGuild(guild, botMember)
		}
	}
	return permissions.CanActOn(guild.OwnerID, actor, subject, self)
}

func (b *Bot) lookupUser(userID string) *discordgo.User {
	if user, err := b.client.User(userID); err == nil && user != nil {
		return user
	}
	return &discordgo.User{ID: userID}
}

func (b *Bot) cmdTestReport(ctx *CommandContext) error {
	messageID := ctx.String("message_id")
	if !validSnowflake(messageID) {
		return refuse("Invalid message ID provided.")
	}
	message, err := b.client.Message(ctx.ChannelID(), messageID)
	if err != nil || message == nil || message.Author == nil {
		return refuse("I couldn't find that message in this channel.")
	}
	if message.ChannelID == "" {
		message.ChannelID = ctx.ChannelID()
	}
	if err := b.postReport(ctx.Context, ctx.GuildID(), message, ctx.User()); err != nil {
		if errors.Is(err, errNoReportChannel) {
			return refuse("No report channel is configured. Set one with /modlog.")
		}
		return err
	}
	return ctx.ReplyEphemeral("✅ Test report posted.")
}

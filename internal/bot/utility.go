package bot

import (
	"fmt"
	"sort"
	"strings"

	"modwarden/internal/modules/audit"
	"modwarden/internal/permissions"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	infoColor       = 0x2F3136
	announceColor   = 0x00FF00
	maxPollOptions  = 10
	maxListedRoles  = 10
	maxKeyPerms     = 5
	maxShownFeature = 5
	logPreviewRunes = 100
)

var pollReactions = []string{"1️⃣", "2️⃣", "3️⃣", "4️⃣", "5️⃣", "6️⃣", "7️⃣", "8️⃣", "9️⃣", "🔟"}

var featureNames = map[discordgo.GuildFeature]string{
	discordgo.GuildFeatureCommunity:    "Community",
	discordgo.GuildFeatureDiscoverable: "Discoverable",
	discordgo.GuildFeaturePartnered:    "Partnered",
	discordgo.GuildFeatureVerified:     "Verified",
	discordgo.GuildFeatureVanityURL:    "Vanity URL",
	discordgo.GuildFeatureBanner:       "Banner",
	discordgo.GuildFeatureAnimatedIcon: "Animated Icon",
}

// keyPermissions is the subset userinfo reports.
var keyPermissions int64 = discordgo.PermissionManageServer |
	discordgo.PermissionManageChannels |
	discordgo.PermissionManageRoles |
	discordgo.PermissionManageMessages |
	discordgo.PermissionKickMembers |
	discordgo.PermissionBanMembers |
	discordgo.PermissionManageNicknames |
	discordgo.PermissionVoiceMuteMembers |
	discordgo.PermissionVoiceDeafenMembers |
	discordgo.PermissionVoiceMoveMembers

func requestedBy(ctx *CommandContext) *discordgo.MessageEmbedFooter {
	user := ctx.User()
	footer := &discordgo.MessageEmbedFooter{Text: "Requested by " + displayName(user)}
	if user != nil && user.Avatar != "" {
		footer.IconURL = user.AvatarURL("")
	}
	return footer
}

func snowflakeTime(id string) string {
	t, err := discordgo.SnowflakeTimestamp(id)
	if err != nil {
		return "Unknown"
	}
	return fmt.Sprintf("<t:%d:F>", t.Unix())
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= logPreviewRunes {
		return text
	}
	return string(runes[:logPreviewRunes]) + "..."
}

func (b *Bot) cmdServerInfo(ctx *CommandContext) error {
	guild := ctx.Guild
	channels := guild.Channels
	if len(channels) == 0 {
		if listed, err := b.client.GuildChannels(guild.ID); err == nil {
			channels = listed
		}
	}
	var text, voice, categories int
	for _, channel := range channels {
		switch channel.Type {
		case discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews:
			text++
		case discordgo.ChannelTypeGuildVoice, discordgo.ChannelTypeGuildStageVoice:
			voice++
		case discordgo.ChannelTypeGuildCategory:
			categories++
		}
	}

	var humans, bots int
	for _, member := range guild.Members {
		if member.User == nil {
			continue
		}
		if member.User.Bot {
			bots++
		} else {
			humans++
		}
	}
	total := guild.MemberCount
	if total == 0 {
		total = humans + bots
	}

	var highest *discordgo.Role
	for _, role := range guild.Roles {
		if role.ID != guild.ID && (highest == nil || role.Position > highest.Position) {
			highest = role
		}
	}
	highestText := "None"
	if highest != nil {
		highestText = highest.Mention()
	}

	owner := "Unknown"
	if guild.OwnerID != "" {
		owner = mention(guild.OwnerID)
	}
	embed := commandEmbed("📊 "+guild.Name+" Server Information", "", infoColor, []*discordgo.MessageEmbedField{
		{Name: "🏷️ Basic Info", Value: fmt.Sprintf("**Owner:** %s\n**Created:** %s\n**Server ID:** %s", owner, snowflakeTime(guild.ID), guild.ID)},
		{Name: fmt.Sprintf("👥 Members (%d)", total), Value: fmt.Sprintf("**Humans:** %d\n**Bots:** %d", humans, bots), Inline: true},
		{Name: fmt.Sprintf("📁 Channels (%d)", len(channels)), Value: fmt.Sprintf("**Text:** %d\n**Voice:** %d\n**Categories:** %d", text, voice, categories), Inline: true},
		{Name: "💎 Boosts", Value: fmt.Sprintf("**Level:** %d\n**Boosts:** %d", guild.PremiumTier, guild.PremiumSubscriptionCount), Inline: true},
		{Name: "🎭 Roles", Value: fmt.Sprintf("**Total:** %d\n**Highest:** %s", len(guild.Roles), highestText), Inline: true},
	})
	var features []string
	for _, feature := range guild.Features {
		if name, ok := featureNames[feature]; ok {
			features = append(features, name)
		}
	}
	if len(features) > 0 {
		if len(features) > maxShownFeature {
			features = features[:maxShownFeature]
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "✨ Features", Value: strings.Join(features, ", "), Inline: true})
	}
	if guild.Icon != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: guild.IconURL("")}
	}
	embed.Footer = requestedBy(ctx)
	return ctx.ReplyEmbed(embed)
}

// infoSubject resolves the optional user option, defaulting to the invoker.
func (b *Bot) infoSubject(ctx *CommandContext) (*discordgo.User, *discordgo.Member) {
	user := ctx.UserOption("user")
	if user == nil {
		return ctx.User(), ctx.Member
	}
	member, err := b.client.Member(ctx.GuildID(), user.ID)
	if err != nil {
		return user, nil
	}
	if member.User != nil {
		user = member.User
	}
	return user, member
}

// memberColor is the colour of the highest coloured role, or infoColor.
func memberColor(guild *discordgo.Guild, member *discordgo.Member) int {
	color, position := infoColor, -1
	if member == nil {
		return color
	}
	for _, id := range member.Roles {
		if role := guildRole(guild, id); role != nil && role.Color != 0 && role.Position > position {
			color, position = role.Color, role.Position
		}
	}
	return color
}

func (b *Bot) cmdUserInfo(ctx *CommandContext) error {
	user, member := b.infoSubject(ctx)
	if user == nil {
		return refuse("Please specify a user.")
	}
	isBot := "No"
	if user.Bot {
		isBot = "Yes"
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "🏷️ Basic Info", Value: fmt.Sprintf("**Username:** %s\n**ID:** %s\n**Bot:** %s", user.Username, user.ID, isBot)},
	}
	joined := "Unknown"
	if member != nil && !member.JoinedAt.IsZero() {
		joined = fmt.Sprintf("<t:%d:F>", member.JoinedAt.Unix())
	}
	fields = append(fields, &discordgo.MessageEmbedField{
		Name:  "📅 Dates",
		Value: fmt.Sprintf("**Account Created:** %s\n**Joined Server:** %s", snowflakeTime(user.ID), joined),
	})

	if member != nil {
		var roles []*discordgo.Role
		for _, id := range member.Roles {
			if role := guildRole(ctx.Guild, id); role != nil && role.ID != ctx.GuildID() {
				roles = append(roles, role)
			}
		}
		sort.Slice(roles, func(i, j int) bool { return roles[i].Position > roles[j].Position })
		rolesText := "None"
		if len(roles) > 0 {
			mentions := make([]string, 0, maxListedRoles)
			for i, role := range roles {
				if i == maxListedRoles {
					break
				}
				mentions = append(mentions, role.Mention())
			}
			rolesText = strings.Join(mentions, ", ")
			if len(roles) > maxListedRoles {
				rolesText += fmt.Sprintf(" and %d more...", len(roles)-maxListedRoles)
			}
		}
		fields = append(fields, &discordgo.MessageEmbedField{Name: fmt.Sprintf("🎭 Roles (%d)", len(roles)), Value: rolesText})

		perms := permissions.FromGuild(ctx.Guild, member)
		permsText := "Administrator (All Permissions)"
		if !perms.Has(discordgo.PermissionAdministrator) {
			names := permissions.Names(perms.Permissions & keyPermissions)
			switch {
			case len(names) == 0:
				permsText = "None"
			case len(names) > maxKeyPerms:
				permsText = strings.Join(names[:maxKeyPerms], ", ") + fmt.Sprintf(" and %d more...", len(names)-maxKeyPerms)
			default:
				permsText = strings.Join(names, ", ")
			}
		}
		fields = append(fields, &discordgo.MessageEmbedField{Name: "🔑 Key Permissions", Value: permsText})
	}

	if count, err := b.store.CountWarnings(ctx.Context, ctx.GuildID(), user.ID); err != nil {
		b.logger.Warn("userinfo warning count failed", zap.String("user_id", user.ID), zap.Error(err))
	} else if count > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "⚠️ Warnings", Value: fmt.Sprint(count), Inline: true})
	}

	title := displayName(user)
	if member != nil && member.Nick != "" {
		title = member.Nick
	}
	embed := commandEmbed("👤 "+title, "", memberColor(ctx.Guild, member), fields)
	if user.Avatar != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: user.AvatarURL("")}
	}
	embed.Footer = requestedBy(ctx)
	return ctx.ReplyEmbed(embed)
}

func (b *Bot) cmdAvatar(ctx *CommandContext) error {
	user, member := b.infoSubject(ctx)
	if user == nil {
		return refuse("Please specify a user.")
	}
	name := displayName(user)
	if member != nil && member.Nick != "" {
		name = member.Nick
	}
	embed := &discordgo.MessageEmbed{
		Title:  fmt.Sprintf("🖼️ %s's Avatar", name),
		Color:  memberColor(ctx.Guild, member),
		Footer: requestedBy(ctx),
	}
	url := user.AvatarURL("1024")
	embed.Image = &discordgo.MessageEmbedImage{URL: url}
	if user.Avatar == "" {
		embed.Description = "This user has no custom avatar."
	} else {
		base := user.AvatarURL("")
		embed.Fields = []*discordgo.MessageEmbedField{{
			Name:  "Download Links",
			Value: fmt.Sprintf("[PNG](%s?format=png) | [JPG](%s?format=jpg) | [WEBP](%s?format=webp)", base, base, base),
		}}
	}
	return ctx.ReplyEmbed(embed)
}

// cmdPoll posts the poll as a channel message so its reactions can be
// seeded, then confirms privately.
func (b *Bot) cmdPoll(ctx *CommandContext) error {
	question := ctx.String("question")
	if question == "" {
		return refuse("Please provide a question.")
	}
	var options []string
	for _, option := range strings.Split(ctx.String("options"), ",") {
		if option = strings.TrimSpace(option); option != "" {
			options = append(options, option)
		}
	}
	switch {
	case len(options) < 2:
		return refuse("You need at least 2 options for a poll.")
	case len(options) > maxPollOptions:
		return refuse("Maximum %d options allowed.", maxPollOptions)
	}

	var lines strings.Builder
	for i, option := range options {
		fmt.Fprintf(&lines, "%s %s\n", pollReactions[i], option)
	}
	embed := commandEmbed("📊 Poll", "**"+question+"**", infoColor, []*discordgo.MessageEmbedField{
		{Name: "Options", Value: lines.String()},
	})
	embed.Footer = &discordgo.MessageEmbedFooter{Text: "Poll created by " + displayName(ctx.User())}

	msg, err := b.client.SendEmbed(ctx.ChannelID(), embed)
	if err != nil {
		return opFailed("post poll", err)
	}
	for i := range options {
		if err := b.client.AddReaction(msg.ChannelID, msg.ID, pollReactions[i]); err != nil {
			b.logger.Debug("poll reaction failed", zap.String("message_id", msg.ID), zap.Error(err))
		}
	}
	ctx.Record(audit.Action{
		Type:    "poll created",
		Reason:  defaultReason,
		Details: fmt.Sprintf("Question: %s\nOptions: %d", preview(question), len(options)),
	})
	return ctx.ReplyEphemeralEmbed(commandEmbed("✅ Poll Created", "Your poll has been posted.", ctx.Settings.SuccessColor, nil))
}

func (b *Bot) cmdAnnounce(ctx *CommandContext) error {
	channelID := ctx.String("channel")
	message := ctx.String("message")
	if channelID == "" || message == "" {
		return refuse("Please provide a channel and a message.")
	}
	embed := commandEmbed("📢 Announcement", message, announceColor, nil)
	embed.Footer = &discordgo.MessageEmbedFooter{Text: "Announced by " + displayName(ctx.User())}
	if user := ctx.User(); user != nil && user.Avatar != "" {
		embed.Footer.IconURL = user.AvatarURL("")
	}

	if _, err := b.client.SendEmbed(channelID, embed); err != nil {
		b.logger.Warn("announcement failed", zap.String("channel_id", channelID), zap.Error(err))
		return refuse("I don't have permission to send messages in %s.", channelMention(channelID))
	}
	ctx.Record(audit.Action{
		Type:    "announcement",
		Reason:  defaultReason,
		Details: fmt.Sprintf("Channel: %s\nMessage: %s", channelMention(channelID), preview(message)),
	})
	return ctx.ReplyEphemeralEmbed(commandEmbed("✅ Announcement Sent",
		"Announcement sent to "+channelMention(channelID), ctx.Settings.SuccessColor, nil))
}

const (
	echoPlain = "Plain Text"
	echoEmbed = "Embed"
)

// cmdEcho repeats a message in the current channel, optionally as a reply.
func (b *Bot) cmdEcho(ctx *CommandContext) error {
	message := ctx.String("message")
	if message == "" {
		return refuse("Please provide a message.")
	}
	format := ctx.String("format")
	if format == "" {
		format = echoPlain
	}

	send := &discordgo.MessageSend{}
	if replyTo := ctx.String("message_id"); replyTo != "" {
		if !validSnowflake(replyTo) {
			return refuse("Invalid message ID or message not found.")
		}
		if _, err := b.client.Message(ctx.ChannelID(), replyTo); err != nil {
			return refuse("Invalid message ID or message not found.")
		}
		send.Reference = &discordgo.MessageReference{MessageID: replyTo, ChannelID: ctx.ChannelID(), GuildID: ctx.GuildID()}
	}
	if format == echoEmbed {
		embed := commandEmbed("", message, infoColor, nil)
		embed.Footer = &discordgo.MessageEmbedFooter{Text: "Echoed by " + displayName(ctx.User())}
		send.Embeds = []*discordgo.MessageEmbed{embed}
	} else {
		send.Content = message
	}

	if _, err := b.client.SendComplex(ctx.ChannelID(), send); err != nil {
		b.logger.Warn("echo failed", zap.String("channel_id", ctx.ChannelID()), zap.Error(err))
		return refuse("I don't have permission to send messages in this channel.")
	}
	details := fmt.Sprintf("Format: %s\nMessage: %s", format, preview(message))
	confirm := fmt.Sprintf("Message sent in %s format", strings.ToLower(format))
	if send.Reference != nil {
		details += "\nReplied to message ID: " + send.Reference.MessageID
		confirm += " as a reply to message " + send.Reference.MessageID
	}
	ctx.Record(audit.Action{Type: "echo", Reason: defaultReason, Details: details})
	return ctx.ReplyEphemeralEmbed(commandEmbed("✅ Message Echoed", confirm, ctx.Settings.SuccessColor, nil))
}

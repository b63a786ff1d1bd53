package bot

import (
	"fmt"
	"strings"

	"modwarden/internal/modules/audit"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const maxListedFailures = 10

// voiceChannelOf returns the voice channel userID sits in, or "".
func (b *Bot) voiceChannelOf(guildID, userID string) string {
	states, err := b.client.VoiceStates(guildID)
	if err != nil {
		b.logger.Debug("voice states unavailable", zap.String("guild_id", guildID), zap.Error(err))
		return ""
	}
	for _, state := range states {
		if state.UserID == userID {
			return state.ChannelID
		}
	}
	return ""
}

func (b *Bot) channelName(channelID string) string {
	if channel, err := b.client.Channel(channelID); err == nil && channel != nil && channel.Name != "" {
		return channel.Name
	}
	return channelID
}

func (b *Bot) cmdMove(ctx *CommandContext) error {
	target := ctx.UserOption("user")
	if _, err := b.gateTarget(ctx, target, true); err != nil {
		return err
	}
	destination := ctx.String("channel")
	if destination == "" {
		return refuse("Please specify a voice channel.")
	}
	current := b.voiceChannelOf(ctx.GuildID(), target.ID)
	if current == "" {
		return refuse("This user is not in a voice channel.")
	}
	if current == destination {
		return refuse("**%s** is already in %s.", displayName(target), channelMention(destination))
	}

	if err := b.client.MoveMember(ctx.GuildID(), target.ID, &destination); err != nil {
		return opFailed("move member", err)
	}
	from, to := b.channelName(current), b.channelName(destination)
	ctx.Record(audit.Action{Type: "voice move", Target: targetOf(target), Reason: defaultReason, Details: fmt.Sprintf("From: %s → To: %s", from, to)})
	return ctx.Success("User Moved", fmt.Sprintf("**%s** moved from **%s** to **%s**", displayName(target), from, to))
}

func (b *Bot) cmdServerMute(ctx *CommandContext) error {
	target := ctx.UserOption("user")
	if _, err := b.gateTarget(ctx, target, true); err != nil {
		return err
	}
	current := b.voiceChannelOf(ctx.GuildID(), target.ID)
	if current == "" {
		return refuse("This user is not in a voice channel.")
	}

	if err := b.client.ServerMute(ctx.GuildID(), target.ID, true); err != nil {
		return opFailed("server mute", err)
	}
	ctx.Record(audit.Action{
		Type:    "server mute",
		Target:  targetOf(target),
		Reason:  reasonOr(ctx),
		Details: "Voice channel: " + b.channelName(current),
	})
	return ctx.Success("User Server-Muted", fmt.Sprintf("**%s** has been server-muted in voice channels", displayName(target)))
}

// cmdVCMassMove disconnects everyone in a voice channel.
func (b *Bot) cmdVCMassMove(ctx *CommandContext) error {
	channelID := ctx.String("channel")
	if channelID == "" {
		return refuse("Please specify a voice channel.")
	}
	name := b.channelName(channelID)
	states, err := b.client.VoiceStates(ctx.GuildID())
	if err != nil {
		return opFailed("list voice states", err)
	}
	var inChannel []*discordgo.VoiceState
	for _, state := range states {
		if state.ChannelID == channelID {
			inChannel = append(inChannel, state)
		}
	}
	if len(inChannel) == 0 {
		return refuse("No members are currently in %s.", name)
	}
	if err := ctx.Defer(false); err != nil {
		return fmt.Errorf("defer vcmassmove: %w", err)
	}

	var (
		moved  int
		failed []string
	)
	for _, state := range inChannel {
		if err := b.client.MoveMember(ctx.GuildID(), state.UserID, nil); err != nil {
			b.logger.Debug("voice disconnect failed", zap.String("user_id", state.UserID), zap.Error(err))
			who := mention(state.UserID)
			if state.Member != nil && state.Member.User != nil {
				who = displayName(state.Member.User)
			}
			failed = append(failed, who)
			continue
		}
		moved++
	}

	ctx.Record(audit.Action{
		Type:    "voice mass move",
		Reason:  defaultReason,
		Details: fmt.Sprintf("Channel: %s\nDisconnected: %d\nFailed: %d", name, moved, len(failed)),
	})
	var fields []*discordgo.MessageEmbedField
	if len(failed) > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  "⚠️ Failed to Disconnect",
			Value: fmt.Sprintf("%d members (insufficient permissions or hierarchy)", len(failed)),
		})
		if len(failed) <= maxListedFailures {
			fields = append(fields, &discordgo.MessageEmbedField{Name: "Failed Members", Value: strings.Join(failed, ", ")})
		}
	}
	return ctx.Success("Voice Channel Cleared", fmt.Sprintf("Successfully disconnected %d members from **%s**", moved, name), fields...)
}

package bot

import (
	"fmt"
	"sort"
	"strings"

	"modwarden/internal/modules/audit"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const maxSlowmodeSeconds = 21600

func (b *Bot) cmdSlowmode(ctx *CommandContext) error {
	seconds, ok := ctx.Int("seconds")
	if !ok || seconds < 0 || seconds > maxSlowmodeSeconds {
		return refuse("Duration must be between 0 and %d seconds (6 hours).", maxSlowmodeSeconds)
	}
	channelID := ctx.ChannelOption("channel")

	if err := b.client.SetSlowmode(channelID, int(seconds)); err != nil {
		return opFailed("set slowmode", err)
	}

	var description string
	if seconds == 0 {
		description = "Slowmode disabled for " + channelMention(channelID)
	} else {
		description = fmt.Sprintf("Slowmode set to %d seconds for %s", seconds, channelMention(channelID))
	}
	ctx.Record(audit.Action{Type: "slowmode", Reason: defaultReason, Details: description})
	return ctx.Success("Slowmode Updated", description)
}

func (b *Bot) cmdLock(ctx *CommandContext) error {
	channelID := ctx.ChannelOption("channel")
	channel, err := b.client.Channel(channelID)
	if err != nil {
		return opFailed("load channel", err)
	}
	current := everyoneOverwrite(channel, ctx.GuildID())
	if current.Deny&discordgo.PermissionSendMessages != 0 {
		return refuse("%s is already locked.", channelMention(channelID))
	}
	reason := reasonOr(ctx)

	if err := b.lockChannel(ctx.GuildID(), channelID, current); err != nil {
		return opFailed("lock channel", err)
	}
	ctx.Record(audit.Action{Type: "channel lock", Reason: reason, Details: "Locked " + channelMention(channelID)})
	return ctx.Success("Channel Locked", fmt.Sprintf("🔒 %s has been locked.\n**Reason:** %s", channelMention(channelID), reason))
}

func (b *Bot) cmdUnlock(ctx *CommandContext) error {
	channelID := ctx.ChannelOption("channel")
	channel, err := b.client.Channel(channelID)
	if err != nil {
		return opFailed("load channel", err)
	}
	current := everyoneOverwrite(channel, ctx.GuildID())
	if current.Deny&discordgo.PermissionSendMessages == 0 {
		return refuse("%s is not locked.", channelMention(channelID))
	}
	reason := reasonOr(ctx)

	allow := current.Allow
	deny := current.Deny &^ discordgo.PermissionSendMessages
	if allow == 0 && deny == 0 {
		err = b.client.DeletePermission(channelID, ctx.GuildID())
	} else {
		err = b.client.SetPermission(channelID, ctx.GuildID(), discordgo.PermissionOverwriteTypeRole, allow, deny)
	}
	if err != nil {
		return opFailed("unlock channel", err)
	}
	ctx.Record(audit.Action{Type: "channel unlock", Reason: reason, Details: "Unlocked " + channelMention(channelID)})
	return ctx.Success("Channel Unlocked", fmt.Sprintf("🔓 %s has been unlocked.\n**Reason:** %s", channelMention(channelID), reason))
}

func (b *Bot) cmdNick(ctx *CommandContext) error {
	target := ctx.UserOption("user")
	member, err := b.gateTarget(ctx, target, true)
	if err != nil {
		return err
	}
	nickname := ctx.String("nickname")
	if len([]rune(nickname)) > 32 {
		return refuse("Nicknames can be at most 32 characters.")
	}

	if err := b.client.SetNickname(ctx.GuildID(), target.ID, nickname); err != nil {
		return opFailed("set nickname", err)
	}

	old := "None"
	if member != nil && member.Nick != "" {
		old = member.Nick
	}
	next := nickname
	if next == "" {
		next = "None"
	}
	details := fmt.Sprintf("Old: %s → New: %s", old, next)
	ctx.Record(audit.Action{Type: "nickname change", Target: targetOf(target), Reason: defaultReason, Details: details})

	if nickname == "" {
		return ctx.Success("Nickname Reset", fmt.Sprintf("Reset the nickname of **%s**.", displayName(target)))
	}
	return ctx.Success("Nickname Updated", fmt.Sprintf("Changed the nickname of **%s**.\n%s", displayName(target), details))
}

func (b *Bot) cmdMassLockdown(ctx *CommandContext) error {
	existing, err := b.loadLockdown(ctx.Context, ctx.GuildID())
	if err != nil {
		return err
	}
	if existing != nil {
		return refuse("A mass lockdown is already active. Use /massunlock first.")
	}

	targets, err := b.lockdownTargets(ctx)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return refuse("No text channels to lock.")
	}
	reason := reasonOr(ctx)
	if err := ctx.Defer(false); err != nil {
		return fmt.Errorf("defer lockdown: %w", err)
	}

	state := &lockdownState{
		Channels: make(map[string]overwriteSnapshot, len(targets)),
		LockedBy: ctx.User().ID,
		LockedAt: b.now().UTC(),
	}
	for _, channel := range targets {
		state.Channels[channel.ID] = everyoneOverwrite(channel, ctx.GuildID())
	}
	// persisted first so massunlock can restore a partially applied lockdown
	if err := b.storeLockdown(ctx.Context, ctx.GuildID(), state); err != nil {
		return err
	}

	locked, failed := 0, 0
	for _, channel := range targets {
		if err := b.lockChannel(ctx.GuildID(), channel.ID, state.Channels[channel.ID]); err != nil {
			failed++
			b.logger.Warn("mass lockdown channel failed", zap.String("channel_id", channel.ID), zap.Error(err))
			continue
		}
		locked++
	}

	details := fmt.Sprintf("Locked %d channels", locked)
	if failed > 0 {
		details += fmt.Sprintf(", %d failed", failed)
	}
	ctx.Record(audit.Action{Type: "mass lockdown", Reason: reason, Details: details})
	return ctx.Success("Mass Lockdown Enabled", fmt.Sprintf("🔒 %s.\n**Reason:** %s", details, reason))
}

// lockdownTargets resolves the channels option, or every text channel of
// the guild when it is empty.
func (b *Bot) lockdownTargets(ctx *CommandContext) ([]*discordgo.Channel, error) {
	channels, err := b.client.GuildChannels(ctx.GuildID())
	if err != nil {
		return nil, opFailed("list channels", err)
	}
	byID := make(map[string]*discordgo.Channel, len(channels))
	var all []*discordgo.Channel
	for _, channel := range channels {
		if channel.Type != discordgo.ChannelTypeGuildText && channel.Type != discordgo.ChannelTypeGuildNews {
			continue
		}
		byID[channel.ID] = channel
		all = append(all, channel)
	}

	raw := ctx.String("channels")
	if raw == "" {
		sort.Slice(all, func(i, j int) bool { return all[i].Position < all[j].Position })
		return all, nil
	}

	var out []*discordgo.Channel
	seen := make(map[string]struct{})
	for _, token := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' }) {
		id := strings.TrimSuffix(strings.TrimPrefix(token, "<#"), ">")
		channel, ok := byID[id]
		if !ok {
			return nil, refuse("`%s` is not a text channel in this server.", token)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, channel)
	}
	return out, nil
}

func (b *Bot) cmdMassUnlock(ctx *CommandContext) error {
	state, err := b.loadLockdown(ctx.Context, ctx.GuildID())
	if err != nil {
		return err
	}
	if state == nil {
		return refuse("No mass lockdown is active.")
	}
	reason := reasonOr(ctx)
	if err := ctx.Defer(false); err != nil {
		return fmt.Errorf("defer unlock: %w", err)
	}

	ids := make([]string, 0, len(state.Channels))
	for id := range state.Channels {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	restored, failed := 0, 0
	for _, id := range ids {
		if err := b.restoreChannel(ctx.GuildID(), id, state.Channels[id]); err != nil {
			failed++
			b.logger.Warn("mass unlock channel failed", zap.String("channel_id", id), zap.Error(err))
			continue
		}
		delete(state.Channels, id)
		restored++
	}
	// channels that failed to restore stay in the snapshot for the next run
	remaining := state
	if failed == 0 {
		remaining = nil
	}
	if err := b.storeLockdown(ctx.Context, ctx.GuildID(), remaining); err != nil {
		return err
	}

	details := fmt.Sprintf("Restored %d channels", restored)
	if failed > 0 {
		details += fmt.Sprintf(", %d failed", failed)
	}
	ctx.Record(audit.Action{Type: "mass unlock", Reason: reason, Details: details})
	if failed > 0 {
		return ctx.Warning("Mass Lockdown Partially Lifted",
			fmt.Sprintf("🔓 %s.\nRun /massunlock again to retry the remaining channels.\n**Reason:** %s", details, reason))
	}
	return ctx.Success("Mass Lockdown Lifted", fmt.Sprintf("🔓 %s.\n**Reason:** %s", details, reason))
}

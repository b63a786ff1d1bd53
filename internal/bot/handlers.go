package bot

import (
	"context"
	"errors"
	"strings"
	"time"

	"modwarden/internal/duration"
	"modwarden/internal/permissions"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const commandTimeout = 15 * time.Second

func (b *Bot) onInteractionCreate(_ *discordgo.Session, ic *discordgo.InteractionCreate) {
	if ic.Interaction == nil {
		return
	}
	switch ic.Type {
	case discordgo.InteractionApplicationCommand:
		b.handleCommand(ic)
	case discordgo.InteractionMessageComponent:
		data, ok := ic.Data.(discordgo.MessageComponentInteractionData)
		if !ok {
			return
		}
		if strings.HasPrefix(data.CustomID, reportButtonPrefix) {
			b.handleReportButton(ic, data.CustomID)
		}
	}
}

func (b *Bot) handleCommand(ic *discordgo.InteractionCreate) {
	data, ok := ic.Data.(discordgo.ApplicationCommandInteractionData)
	if !ok {
		return
	}
	cmd, ok := b.commands[data.Name]
	if !ok {
		b.logger.Warn("unknown command", zap.String("command", data.Name))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	cc := &CommandContext{
		Context:     ctx,
		Interaction: ic,
		Member:      ic.Member,
		bot:         b,
		options:     flattenOptions(data.Options),
		resolved:    data.Resolved,
	}

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("command panicked",
				zap.String("command", cmd.Name),
				zap.Any("panic", r),
				zap.Stack("stack"))
			if !cc.responded {
				_ = cc.ReplyError("Something went wrong while running this command.")
			}
		}
	}()

	if ic.GuildID == "" || ic.Member == nil {
		_ = cc.ReplyEphemeral("This command can only be used in a server.")
		return
	}
	cc.Settings = b.guilds.GuildSettings(ic.GuildID)

	if err := b.prepare(cc, cmd); err != nil {
		b.renderError(cc, cmd, err)
		return
	}

	if err := cmd.Run(cc); err != nil {
		b.renderError(cc, cmd, err)
		return
	}
	b.logger.Debug("command handled",
		zap.String("command", cmd.Name),
		zap.String("guild_id", ic.GuildID),
		zap.String("user_id", cc.User().ID))
}

// prepare resolves the guild and both members, then runs the capability
// and bot permission checks for cmd.
func (b *Bot) prepare(cc *CommandContext, cmd *Command) error {
	guild, err := b.client.Guild(cc.GuildID())
	if err != nil {
		return opFailed("load guild", err)
	}
	cc.Guild = guild
	cc.Actor = permissions.FromGuild(guild, cc.Member)
	if cc.Actor.ID == "" && cc.Member.User != nil {
		cc.Actor.ID = cc.Member.User.ID
	}
	if cc.Member.Permissions != 0 && guild.OwnerID != cc.Actor.ID {
		// the interaction payload carries channel overwrites already applied
		cc.Actor.Permissions = cc.Member.Permissions
	}

	if self := b.client.BotUser(); self != nil {
		if member, err := b.client.Member(cc.GuildID(), self.ID); err == nil {
			cc.BotMember = permissions.FromGuild(guild, member)
		} else {
			cc.BotMember = permissions.Member{ID: self.ID}
		}
	}

	if cmd.RequireElevated && !permissions.HasElevatedCapability(cc.Actor, b.cfg.OwnerID) {
		return &CapabilityError{Missing: []string{"Administrator or Manage Server"}}
	}
	if cmd.UserPermissions != 0 && cc.Actor.ID != b.cfg.OwnerID {
		if missing := permissions.Missing(cc.Actor.Permissions, cmd.UserPermissions); len(missing) > 0 {
			return &CapabilityError{Missing: missing}
		}
	}
	if cmd.BotPermissions != 0 {
		if missing := permissions.Missing(cc.BotMember.Permissions, cmd.BotPermissions); len(missing) > 0 {
			return &CapabilityError{Missing: missing, Bot: true}
		}
	}
	return nil
}

func (b *Bot) renderError(cc *CommandContext, cmd *Command, err error) {
	var (
		ref    *refusal
		denial *permissions.Denial
		capErr *CapabilityError
		msg    string
	)
	switch {
	case errors.As(err, &ref):
		msg = ref.msg
	case errors.As(err, &denial):
		msg = denial.Message()
	case errors.As(err, &capErr):
		msg = capErr.Message()
	case errors.Is(err, ErrInvalidID):
		msg = "Invalid user ID provided."
	case errors.Is(err, duration.ErrInvalidFormat):
		msg = "Invalid duration format. Use formats like: 10m, 1h, 2d"
	case errors.Is(err, ErrOperationFailed):
		b.logger.Warn("platform call failed",
			zap.String("command", cmd.Name),
			zap.String("guild_id", cc.GuildID()),
			zap.Error(err))
		msg = "I couldn't complete that action. Check my permissions and role position."
	default:
		b.logger.Error("command failed",
			zap.String("command", cmd.Name),
			zap.String("guild_id", cc.GuildID()),
			zap.Error(err))
		msg = "An unexpected error occurred."
	}

	if cc.responded {
		return
	}
	if err := cc.ReplyError(msg); err != nil {
		b.logger.Warn("error reply failed", zap.String("command", cmd.Name), zap.Error(err))
	}
}

// flattenOptions indexes options by name, descending into subcommands.
func flattenOptions(opts []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	out := make(map[string]*discordgo.ApplicationCommandInteractionDataOption)
	var walk func([]*discordgo.ApplicationCommandInteractionDataOption)
	walk = func(list []*discordgo.ApplicationCommandInteractionDataOption) {
		for _, opt := range list {
			if opt == nil {
				continue
			}
			if len(opt.Options) > 0 {
				walk(opt.Options)
				continue
			}
			out[opt.Name] = opt
		}
	}
	walk(opts)
	return out
}

package bot

import (
	"context"
	"strconv"
	"strings"
	"time"

	"modwarden/internal/config"
	"modwarden/internal/modules/audit"
	"modwarden/internal/permissions"

	"github.com/bwmarrin/discordgo"
)

type CommandRunFunc func(ctx *CommandContext) error

// Command is one slash command and the checks that gate it.
type Command struct {
	Name            string
	Description     string
	Options         []*discordgo.ApplicationCommandOption
	UserPermissions int64
	BotPermissions  int64
	RequireElevated bool
	Run             CommandRunFunc
}

func NewCommand(name, description string, run CommandRunFunc) *Command {
	return &Command{Name: name, Description: description, Run: run}
}

func (c *Command) WithOptions(opts ...*discordgo.ApplicationCommandOption) *Command {
	c.Options = opts
	return c
}

func (c *Command) WithUserPermissions(perms int64) *Command {
	c.UserPermissions = perms
	return c
}

func (c *Command) WithBotPermissions(perms int64) *Command {
	c.BotPermissions = perms
	return c
}

// Elevated restricts the command to the process owner and members with
// Administrator or Manage Server.
func (c *Command) Elevated() *Command {
	c.RequireElevated = true
	return c
}

func (c *Command) ApplicationCommand() *discordgo.ApplicationCommand {
	dm := false
	cmd := &discordgo.ApplicationCommand{
		Name:         c.Name,
		Description:  c.Description,
		Options:      c.Options,
		DMPermission: &dm,
	}
	switch {
	case c.RequireElevated:
		perms := int64(discordgo.PermissionManageServer)
		cmd.DefaultMemberPermissions = &perms
	case c.UserPermissions != 0:
		perms := c.UserPermissions
		cmd.DefaultMemberPermissions = &perms
	}
	return cmd
}

// CommandContext carries one invocation: who ran it, where, and a handle
// back to the bot for replies.
type CommandContext struct {
	Context     context.Context
	Interaction *discordgo.InteractionCreate
	Guild       *discordgo.Guild
	Member      *discordgo.Member
	Actor       permissions.Member
	BotMember   permissions.Member
	Settings    config.GuildSettings

	bot       *Bot
	options   map[string]*discordgo.ApplicationCommandInteractionDataOption
	resolved  *discordgo.ApplicationCommandInteractionDataResolved
	responded bool
	deferred  bool
}

func (ctx *CommandContext) GuildID() string {
	return ctx.Interaction.GuildID
}

func (ctx *CommandContext) ChannelID() string {
	return ctx.Interaction.ChannelID
}

func (ctx *CommandContext) User() *discordgo.User {
	if ctx.Interaction.Member != nil && ctx.Interaction.Member.User != nil {
		return ctx.Interaction.Member.User
	}
	return ctx.Interaction.User
}

// Moderator is the invoking user as the audit pipeline records it.
func (ctx *CommandContext) Moderator() audit.Actor {
	return actorOf(ctx.User())
}

func (ctx *CommandContext) option(name string) *discordgo.ApplicationCommandInteractionDataOption {
	if ctx.options == nil {
		return nil
	}
	return ctx.options[name]
}

func (ctx *CommandContext) String(name string) string {
	opt := ctx.option(name)
	if opt == nil {
		return ""
	}
	if s, ok := opt.Value.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// Int returns the option value and whether it was supplied.
func (ctx *CommandContext) Int(name string) (int64, bool) {
	opt := ctx.option(name)
	if opt == nil {
		return 0, false
	}
	switch v := opt.Value.(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	}
	return 0, false
}

func (ctx *CommandContext) IntOr(name string, fallback int64) int64 {
	if v, ok := ctx.Int(name); ok {
		return v
	}
	return fallback
}

// UserOption resolves a user option from the interaction payload, falling
// back to a REST lookup and finally to a bare id.
func (ctx *CommandContext) UserOption(name string) *discordgo.User {
	id := ctx.String(name)
	if id == "" {
		return nil
	}
	if ctx.resolved != nil {
		if user, ok := ctx.resolved.Users[id]; ok && user != nil {
			return user
		}
	}
	if user, err := ctx.bot.client.User(id); err == nil && user != nil {
		return user
	}
	return &discordgo.User{ID: id}
}

// RoleOption resolves the named role from the interaction payload, falling
// back to the guild's role list.
func (ctx *CommandContext) RoleOption(name string) *discordgo.Role {
	id := ctx.String(name)
	if id == "" {
		return nil
	}
	if ctx.resolved != nil {
		if role, ok := ctx.resolved.Roles[id]; ok && role != nil {
			return role
		}
	}
	return guildRole(ctx.Guild, id)
}

// ChannelOption returns the named channel id, or the invoking channel when
// the option was left out.
func (ctx *CommandContext) ChannelOption(name string) string {
	if id := ctx.String(name); id != "" {
		return id
	}
	return ctx.ChannelID()
}

// Defer acknowledges the interaction before slow work so the reply can
// arrive after Discord's three second window. Every later reply edits the
// deferred message, which keeps the visibility chosen here.
func (ctx *CommandContext) Defer(ephemeral bool) error {
	if ctx.responded || ctx.deferred {
		return nil
	}
	resp := &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredChannelMessageWithSource}
	if ephemeral {
		resp.Data = &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral}
	}
	if err := ctx.bot.client.InteractionRespond(ctx.Interaction.Interaction, resp); err != nil {
		return err
	}
	ctx.deferred = true
	return nil
}

func (ctx *CommandContext) respond(data *discordgo.InteractionResponseData) error {
	if ctx.deferred {
		ctx.responded = true
		edit := &discordgo.WebhookEdit{Embeds: &data.Embeds}
		if data.Content != "" {
			edit.Content = &data.Content
		}
		if len(data.Components) > 0 {
			edit.Components = &data.Components
		}
		return ctx.bot.client.InteractionEdit(ctx.Interaction.Interaction, edit)
	}
	ctx.responded = true
	return ctx.bot.client.InteractionRespond(ctx.Interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
}

func (ctx *CommandContext) Reply(content string) error {
	return ctx.respond(&discordgo.InteractionResponseData{Content: content})
}

func (ctx *CommandContext) ReplyEphemeral(content string) error {
	return ctx.respond(&discordgo.InteractionResponseData{Content: content, Flags: discordgo.MessageFlagsEphemeral})
}

func (ctx *CommandContext) ReplyEmbed(embed *discordgo.MessageEmbed) error {
	return ctx.respond(&discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{embed}})
}

func (ctx *CommandContext) ReplyEphemeralEmbed(embed *discordgo.MessageEmbed) error {
	return ctx.respond(&discordgo.InteractionResponseData{
		Embeds: []*discordgo.MessageEmbed{embed},
		Flags:  discordgo.MessageFlagsEphemeral,
	})
}

func (ctx *CommandContext) ReplyError(message string) error {
	return ctx.ReplyEphemeralEmbed(commandEmbed("❌ Error", message, ctx.Settings.ErrorColor, nil))
}

func (ctx *CommandContext) Success(title, description string, fields ...*discordgo.MessageEmbedField) error {
	return ctx.ReplyEmbed(commandEmbed("✅ "+title, description, ctx.Settings.SuccessColor, fields))
}

func (ctx *CommandContext) Warning(title, description string, fields ...*discordgo.MessageEmbedField) error {
	return ctx.ReplyEmbed(commandEmbed("⚠️ "+title, description, ctx.Settings.WarningColor, fields))
}

// Record sends action through the audit pipeline. The platform mutation has
// already happened, so a failed row write is logged and not returned.
func (ctx *CommandContext) Record(action audit.Action) {
	action.GuildID = ctx.GuildID()
	if action.Moderator.ID == "" {
		action.Moderator = ctx.Moderator()
	}
	_ = ctx.bot.pipeline.Record(ctx.Context, action)
}

func commandEmbed(title, description string, color int, fields []*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Fields:      fields,
	}
}

func actorOf(user *discordgo.User) audit.Actor {
	if user == nil {
		return audit.Actor{}
	}
	return audit.Actor{ID: user.ID, Name: displayName(user)}
}

func targetOf(user *discordgo.User) *audit.Actor {
	actor := actorOf(user)
	return &actor
}

func displayName(user *discordgo.User) string {
	if user == nil {
		return ""
	}
	if user.Username == "" {
		return user.ID
	}
	if user.Discriminator != "" && user.Discriminator != "0" {
		return user.Username + "#" + user.Discriminator
	}
	return user.Username
}

func mention(userID string) string {
	return "<@" + userID + ">"
}

func channelMention(channelID string) string {
	return "<#" + channelID + ">"
}

// validSnowflake accepts the decimal ids Discord hands out.
func validSnowflake(id string) bool {
	if id == "" || len(id) > 20 {
		return false
	}
	_, err := strconv.ParseUint(id, 10, 64)
	return err == nil
}

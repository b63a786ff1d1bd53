// Package platform is the boundary between the bot and Discord. Handlers
// depend on Client and EventSource only, so they can run against a fake in
// tests and against a discordgo session in production.
package platform

import (
	"time"

	"github.com/bwmarrin/discordgo"
)

// EventSource registers gateway event handlers. *discordgo.Session
// satisfies it directly.
type EventSource interface {
	AddHandler(handler interface{}) func()
}

type Client interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse) error
	InteractionEdit(interaction *discordgo.Interaction, edit *discordgo.WebhookEdit) error

	SendEmbed(channelID string, embed *discordgo.MessageEmbed) (*discordgo.Message, error)
	SendComplex(channelID string, data *discordgo.MessageSend) (*discordgo.Message, error)
	SendDM(userID string, embed *discordgo.MessageEmbed) error

	Guild(guildID string) (*discordgo.Guild, error)
	Member(guildID, userID string) (*discordgo.Member, error)
	User(userID string) (*discordgo.User, error)
	Channel(channelID string) (*discordgo.Channel, error)
	GuildChannels(guildID string) ([]*discordgo.Channel, error)
	GuildMembers(guildID string) ([]*discordgo.Member, error)
	VoiceStates(guildID string) ([]*discordgo.VoiceState, error)

	Message(channelID, messageID string) (*discordgo.Message, error)
	RecentMessages(channelID string, limit int) ([]*discordgo.Message, error)
	DeleteMessage(channelID, messageID string) error
	BulkDelete(channelID string, messageIDs []string) error
	RemoveReaction(channelID, messageID, emoji, userID string) error
	AddReaction(channelID, messageID, emoji string) error

	Ban(guildID, userID, reason string, deleteDays int) error
	Unban(guildID, userID string) error
	Kick(guildID, userID, reason string) error
	SetNickname(guildID, userID, nickname string) error
	MoveMember(guildID, userID string, channelID *string) error
	ServerMute(guildID, userID string, mute bool) error

	AddRole(guildID, userID, roleID string) error
	RemoveRole(guildID, userID, roleID string) error
	CreateRole(guildID string, params *discordgo.RoleParams) (*discordgo.Role, error)

	SetPermission(channelID, targetID string, targetType discordgo.PermissionOverwriteType, allow, deny int64) error
	DeletePermission(channelID, targetID string) error
	SetSlowmode(channelID string, seconds int) error

	Commands(appID, guildID string) ([]*discordgo.ApplicationCommand, error)
	CreateCommand(appID, guildID string, cmd *discordgo.ApplicationCommand) error
	EditCommand(appID, guildID, cmdID string, cmd *discordgo.ApplicationCommand) error
	DeleteCommand(appID, guildID, cmdID string) error

	UpdateStatus(status string) error
	BotUser() *discordgo.User
	Latency() time.Duration
	GuildIDs() []string
}

// EmojiAPIName is the form reaction endpoints expect: the unicode glyph, or
// name:id for custom emoji.
func EmojiAPIName(emoji discordgo.Emoji) string {
	if emoji.ID == "" {
		return emoji.Name
	}
	return emoji.Name + ":" + emoji.ID
}

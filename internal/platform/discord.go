package platform

import (
	"time"

	"github.com/bwmarrin/discordgo"
)

const memberPageSize = 1000

// Discord implements Client on top of a discordgo session. Reads try the
// state cache before falling back to REST.
type Discord struct {
	session *discordgo.Session
}

func NewDiscord(session *discordgo.Session) *Discord {
	return &Discord{session: session}
}

func (d *Discord) Session() *discordgo.Session {
	return d.session
}

func (d *Discord) InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse) error {
	return d.session.InteractionRespond(interaction, resp)
}

func (d *Discord) InteractionEdit(interaction *discordgo.Interaction, edit *discordgo.WebhookEdit) error {
	_, err := d.session.InteractionResponseEdit(interaction, edit)
	return err
}

func (d *Discord) SendEmbed(channelID string, embed *discordgo.MessageEmbed) (*discordgo.Message, error) {
	return d.session.ChannelMessageSendEmbed(channelID, embed)
}

func (d *Discord) SendComplex(channelID string, data *discordgo.MessageSend) (*discordgo.Message, error) {
	return d.session.ChannelMessageSendComplex(channelID, data)
}

func (d *Discord) SendDM(userID string, embed *discordgo.MessageEmbed) error {
	channel, err := d.session.UserChannelCreate(userID)
	if err != nil {
		return err
	}
	_, err = d.session.ChannelMessageSendEmbed(channel.ID, embed)
	return err
}

func (d *Discord) Guild(guildID string) (*discordgo.Guild, error) {
	if guild, err := d.session.State.Guild(guildID); err == nil && guild != nil {
		return guild, nil
	}
	return d.session.Guild(guildID)
}

func (d *Discord) Member(guildID, userID string) (*discordgo.Member, error) {
	if member, err := d.session.State.Member(guildID, userID); err == nil && member != nil {
		return member, nil
	}
	return d.session.GuildMember(guildID, userID)
}

func (d *Discord) User(userID string) (*discordgo.User, error) {
	return d.session.User(userID)
}

func (d *Discord) Channel(channelID string) (*discordgo.Channel, error) {
	if channel, err := d.session.State.Channel(channelID); err == nil && channel != nil {
		return channel, nil
	}
	return d.session.Channel(channelID)
}

func (d *Discord) GuildChannels(guildID string) ([]*discordgo.Channel, error) {
	return d.session.GuildChannels(guildID)
}

// GuildMembers pages through the member list. It needs the guild members
// intent for guilds beyond the initial gateway chunk.
func (d *Discord) GuildMembers(guildID string) ([]*discordgo.Member, error) {
	var (
		out   []*discordgo.Member
		after string
	)
	for {
		page, err := d.session.GuildMembers(guildID, after, memberPageSize)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < memberPageSize {
			return out, nil
		}
		after = page[len(page)-1].User.ID
	}
}

// VoiceStates reads the gateway's view of who sits in which voice channel.
// There is no REST endpoint for it.
func (d *Discord) VoiceStates(guildID string) ([]*discordgo.VoiceState, error) {
	guild, err := d.session.State.Guild(guildID)
	if err != nil {
		return nil, err
	}
	d.session.State.RLock()
	defer d.session.State.RUnlock()
	out := make([]*discordgo.VoiceState, len(guild.VoiceStates))
	copy(out, guild.VoiceStates)
	return out, nil
}

func (d *Discord) Message(channelID, messageID string) (*discordgo.Message, error) {
	return d.session.ChannelMessage(channelID, messageID)
}

func (d *Discord) RecentMessages(channelID string, limit int) ([]*discordgo.Message, error) {
	return d.session.ChannelMessages(channelID, limit, "", "", "")
}

func (d *Discord) DeleteMessage(channelID, messageID string) error {
	return d.session.ChannelMessageDelete(channelID, messageID)
}

func (d *Discord) BulkDelete(channelID string, messageIDs []string) error {
	return d.session.ChannelMessagesBulkDelete(channelID, messageIDs)
}

func (d *Discord) RemoveReaction(channelID, messageID, emoji, userID string) error {
	return d.session.MessageReactionRemove(channelID, messageID, emoji, userID)
}

func (d *Discord) AddReaction(channelID, messageID, emoji string) error {
	return d.session.MessageReactionAdd(channelID, messageID, emoji)
}

func (d *Discord) Ban(guildID, userID, reason string, deleteDays int) error {
	return d.session.GuildBanCreateWithReason(guildID, userID, reason, deleteDays)
}

func (d *Discord) Unban(guildID, userID string) error {
	return d.session.GuildBanDelete(guildID, userID)
}

func (d *Discord) Kick(guildID, userID, reason string) error {
	return d.session.GuildMemberDeleteWithReason(guildID, userID, reason)
}

func (d *Discord) SetNickname(guildID, userID, nickname string) error {
	return d.session.GuildMemberNickname(guildID, userID, nickname)
}

func (d *Discord) MoveMember(guildID, userID string, channelID *string) error {
	return d.session.GuildMemberMove(guildID, userID, channelID)
}

func (d *Discord) ServerMute(guildID, userID string, mute bool) error {
	return d.session.GuildMemberMute(guildID, userID, mute)
}

func (d *Discord) AddRole(guildID, userID, roleID string) error {
	return d.session.GuildMemberRoleAdd(guildID, userID, roleID)
}

func (d *Discord) RemoveRole(guildID, userID, roleID string) error {
	return d.session.GuildMemberRoleRemove(guildID, userID, roleID)
}

func (d *Discord) CreateRole(guildID string, params *discordgo.RoleParams) (*discordgo.Role, error) {
	return d.session.GuildRoleCreate(guildID, params)
}

func (d *Discord) SetPermission(channelID, targetID string, targetType discordgo.PermissionOverwriteType, allow, deny int64) error {
	return d.session.ChannelPermissionSet(channelID, targetID, targetType, allow, deny)
}

func (d *Discord) DeletePermission(channelID, targetID string) error {
	return d.session.ChannelPermissionDelete(channelID, targetID)
}

func (d *Discord) SetSlowmode(channelID string, seconds int) error {
	_, err := d.session.ChannelEditComplex(channelID, &discordgo.ChannelEdit{RateLimitPerUser: &seconds})
	return err
}

func (d *Discord) Commands(appID, guildID string) ([]*discordgo.ApplicationCommand, error) {
	return d.session.ApplicationCommands(appID, guildID)
}

func (d *Discord) CreateCommand(appID, guildID string, cmd *discordgo.ApplicationCommand) error {
	_, err := d.session.ApplicationCommandCreate(appID, guildID, cmd)
	return err
}

func (d *Discord) EditCommand(appID, guildID, cmdID string, cmd *discordgo.ApplicationCommand) error {
	_, err := d.session.ApplicationCommandEdit(appID, guildID, cmdID, cmd)
	return err
}

func (d *Discord) DeleteCommand(appID, guildID, cmdID string) error {
	return d.session.ApplicationCommandDelete(appID, guildID, cmdID)
}

func (d *Discord) UpdateStatus(status string) error {
	return d.session.UpdateGameStatus(0, status)
}

func (d *Discord) BotUser() *discordgo.User {
	if d.session == nil || d.session.State == nil {
		return nil
	}
	return d.session.State.User
}

func (d *Discord) Latency() time.Duration {
	return d.session.HeartbeatLatency()
}

func (d *Discord) GuildIDs() []string {
	if d.session == nil || d.session.State == nil {
		return nil
	}
	d.session.State.RLock()
	defer d.session.State.RUnlock()
	ids := make([]string, 0, len(d.session.State.Guilds))
	for _, guild := range d.session.State.Guilds {
		if guild != nil {
			ids = append(ids, guild.ID)
		}
	}
	return ids
}

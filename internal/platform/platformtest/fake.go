// Package platformtest provides an in-memory platform.Client for handler
// tests. It records every mutation and serves reads from its maps.
package platformtest

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"modwarden/internal/platform"

	"github.com/bwmarrin/discordgo"
)

var ErrNotFound = errors.New("not found")

var _ platform.Client = (*Client)(nil)

type SentMessage struct {
	ChannelID  string
	Content    string
	Embed      *discordgo.MessageEmbed
	Components []discordgo.MessageComponent
	// ReplyTo is the referenced message id, if any.
	ReplyTo string
}

type Overwrite struct {
	ChannelID string
	TargetID  string
	Allow     int64
	Deny      int64
}

type Ban struct {
	GuildID    string
	UserID     string
	Reason     string
	DeleteDays int
}

type Move struct {
	UserID    string
	ChannelID string
}

type Call struct {
	Method string
	Args   []string
}

// Client is safe for concurrent use. Set a method name in Fail to make that
// call return an error.
type Client struct {
	mu sync.Mutex

	Self     *discordgo.User
	Guilds   map[string]*discordgo.Guild
	Members  map[string]*discordgo.Member
	Users    map[string]*discordgo.User
	Channels map[string]*discordgo.Channel
	Messages map[string][]*discordgo.Message
	// Voice holds voice states keyed by guild id.
	Voice    map[string][]*discordgo.VoiceState

	Fail map[string]error

	Responses      []*discordgo.InteractionResponse
	Edits          []*discordgo.WebhookEdit
	Sent           []SentMessage
	DMs            []SentMessage
	Bans           []Ban
	Unbans         []string
	Kicks          []string
	RolesAdded     []string
	RolesRemoved   []string
	RolesCreated   []*discordgo.RoleParams
	Overwrites     []Overwrite
	Deleted        []string
	Nicknames      map[string]string
	Slowmodes      map[string]int
	Reactions      []string
	AddedReactions []string
	Moves          []Move
	ServerMutes    map[string]bool
	Statuses       []string
	Calls          []Call
	AppCommands    map[string]*discordgo.ApplicationCommand
	commandCounter int
}

func New() *Client {
	return &Client{
		Self:        &discordgo.User{ID: "bot", Username: "modwarden", Bot: true},
		Guilds:      make(map[string]*discordgo.Guild),
		Members:     make(map[string]*discordgo.Member),
		Users:       make(map[string]*discordgo.User),
		Channels:    make(map[string]*discordgo.Channel),
		Messages:    make(map[string][]*discordgo.Message),
		Voice:       make(map[string][]*discordgo.VoiceState),
		Fail:        make(map[string]error),
		Nicknames:   make(map[string]string),
		ServerMutes: make(map[string]bool),
		Slowmodes:   make(map[string]int),
		AppCommands: make(map[string]*discordgo.ApplicationCommand),
	}
}

// AddGuild registers guild and its channels and members.
func (c *Client) AddGuild(guild *discordgo.Guild) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Guilds[guild.ID] = guild
	for _, channel := range guild.Channels {
		channel.GuildID = guild.ID
		c.Channels[channel.ID] = channel
	}
	for _, member := range guild.Members {
		member.GuildID = guild.ID
		c.Members[memberKey(guild.ID, member.User.ID)] = member
		c.Users[member.User.ID] = member.User
	}
}

func (c *Client) LastResponse() *discordgo.InteractionResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.Responses) == 0 {
		return nil
	}
	return c.Responses[len(c.Responses)-1]
}

func (c *Client) Called(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.Calls {
		if call.Method == method {
			n++
		}
	}
	return n
}

func (c *Client) record(method string, args ...string) error {
	c.Calls = append(c.Calls, Call{Method: method, Args: args})
	return c.Fail[method]
}

func (c *Client) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("InteractionRespond"); err != nil {
		return err
	}
	c.Responses = append(c.Responses, resp)
	return nil
}

// InteractionEdit also appends the edited message to Responses, flagged like
// the deferral it completes, so LastResponse always shows what the user saw.
func (c *Client) InteractionEdit(_ *discordgo.Interaction, edit *discordgo.WebhookEdit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("InteractionEdit"); err != nil {
		return err
	}
	c.Edits = append(c.Edits, edit)
	data := &discordgo.InteractionResponseData{}
	for i := len(c.Responses) - 1; i >= 0; i-- {
		prev := c.Responses[i]
		if prev.Type == discordgo.InteractionResponseDeferredChannelMessageWithSource {
			if prev.Data != nil {
				data.Flags = prev.Data.Flags
			}
			break
		}
	}
	if edit.Content != nil {
		data.Content = *edit.Content
	}
	if edit.Embeds != nil {
		data.Embeds = *edit.Embeds
	}
	if edit.Components != nil {
		data.Components = *edit.Components
	}
	c.Responses = append(c.Responses, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	return nil
}

// Deferrals counts the deferred acknowledgements sent so far.
func (c *Client) Deferrals() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, resp := range c.Responses {
		if resp.Type == discordgo.InteractionResponseDeferredChannelMessageWithSource {
			n++
		}
	}
	return n
}

func (c *Client) SendEmbed(channelID string, embed *discordgo.MessageEmbed) (*discordgo.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("SendEmbed", channelID); err != nil {
		return nil, err
	}
	c.Sent = append(c.Sent, SentMessage{ChannelID: channelID, Embed: embed})
	return &discordgo.Message{ID: fmt.Sprintf("sent-%d", len(c.Sent)), ChannelID: channelID}, nil
}

func (c *Client) SendComplex(channelID string, data *discordgo.MessageSend) (*discordgo.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("SendComplex", channelID); err != nil {
		return nil, err
	}
	msg := SentMessage{ChannelID: channelID, Content: data.Content, Components: data.Components}
	if len(data.Embeds) > 0 {
		msg.Embed = data.Embeds[0]
	}
	if data.Reference != nil {
		msg.ReplyTo = data.Reference.MessageID
	}
	c.Sent = append(c.Sent, msg)
	return &discordgo.Message{ID: fmt.Sprintf("sent-%d", len(c.Sent)), ChannelID: channelID}, nil
}

func (c *Client) SendDM(userID string, embed *discordgo.MessageEmbed) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("SendDM", userID); err != nil {
		return err
	}
	c.DMs = append(c.DMs, SentMessage{ChannelID: userID, Embed: embed})
	return nil
}

func (c *Client) Guild(guildID string) (*discordgo.Guild, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("Guild", guildID); err != nil {
		return nil, err
	}
	guild, ok := c.Guilds[guildID]
	if !ok {
		return nil, ErrNotFound
	}
	return guild, nil
}

func (c *Client) Member(guildID, userID string) (*discordgo.Member, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("Member", guildID, userID); err != nil {
		return nil, err
	}
	member, ok := c.Members[memberKey(guildID, userID)]
	if !ok {
		return nil, ErrNotFound
	}
	return member, nil
}

func (c *Client) User(userID string) (*discordgo.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("User", userID); err != nil {
		return nil, err
	}
	user, ok := c.Users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return user, nil
}

func (c *Client) Channel(channelID string) (*discordgo.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("Channel", channelID); err != nil {
		return nil, err
	}
	channel, ok := c.Channels[channelID]
	if !ok {
		return nil, ErrNotFound
	}
	return channel, nil
}

func (c *Client) GuildChannels(guildID string) ([]*discordgo.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("GuildChannels", guildID); err != nil {
		return nil, err
	}
	guild, ok := c.Guilds[guildID]
	if !ok {
		return nil, ErrNotFound
	}
	return guild.Channels, nil
}

// GuildMembers returns the guild's members ordered by user id.
func (c *Client) GuildMembers(guildID string) ([]*discordgo.Member, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("GuildMembers", guildID); err != nil {
		return nil, err
	}
	var out []*discordgo.Member
	for _, member := range c.Members {
		if member.GuildID == guildID {
			out = append(out, member)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User.ID < out[j].User.ID })
	return out, nil
}

func (c *Client) VoiceStates(guildID string) ([]*discordgo.VoiceState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("VoiceStates", guildID); err != nil {
		return nil, err
	}
	return c.Voice[guildID], nil
}

func (c *Client) Message(channelID, messageID string) (*discordgo.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("Message", channelID, messageID); err != nil {
		return nil, err
	}
	for _, msg := range c.Messages[channelID] {
		if msg.ID == messageID {
			return msg, nil
		}
	}
	return nil, ErrNotFound
}

func (c *Client) RecentMessages(channelID string, limit int) ([]*discordgo.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("RecentMessages", channelID); err != nil {
		return nil, err
	}
	msgs := c.Messages[channelID]
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func (c *Client) DeleteMessage(channelID, messageID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("DeleteMessage", channelID, messageID); err != nil {
		return err
	}
	c.Deleted = append(c.Deleted, messageID)
	return nil
}

func (c *Client) BulkDelete(channelID string, messageIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("BulkDelete", channelID); err != nil {
		return err
	}
	c.Deleted = append(c.Deleted, messageIDs...)
	return nil
}

func (c *Client) RemoveReaction(channelID, messageID, emoji, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("RemoveReaction", channelID, messageID, emoji, userID); err != nil {
		return err
	}
	c.Reactions = append(c.Reactions, messageID+"/"+emoji+"/"+userID)
	return nil
}

func (c *Client) AddReaction(channelID, messageID, emoji string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("AddReaction", channelID, messageID, emoji); err != nil {
		return err
	}
	c.AddedReactions = append(c.AddedReactions, messageID+"/"+emoji)
	return nil
}

func (c *Client) Ban(guildID, userID, reason string, deleteDays int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("Ban", guildID, userID); err != nil {
		return err
	}
	c.Bans = append(c.Bans, Ban{GuildID: guildID, UserID: userID, Reason: reason, DeleteDays: deleteDays})
	return nil
}

func (c *Client) Unban(guildID, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("Unban", guildID, userID); err != nil {
		return err
	}
	c.Unbans = append(c.Unbans, userID)
	return nil
}

func (c *Client) Kick(guildID, userID, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("Kick", guildID, userID); err != nil {
		return err
	}
	c.Kicks = append(c.Kicks, userID)
	return nil
}

func (c *Client) SetNickname(guildID, userID, nickname string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("SetNickname", guildID, userID); err != nil {
		return err
	}
	c.Nicknames[userID] = nickname
	return nil
}

// MoveMember records the move. A nil channelID disconnects the user.
func (c *Client) MoveMember(guildID, userID string, channelID *string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("MoveMember", guildID, userID); err != nil {
		return err
	}
	move := Move{UserID: userID}
	if channelID != nil {
		move.ChannelID = *channelID
	}
	c.Moves = append(c.Moves, move)
	return nil
}

func (c *Client) ServerMute(guildID, userID string, mute bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("ServerMute", guildID, userID); err != nil {
		return err
	}
	c.ServerMutes[userID] = mute
	return nil
}

func (c *Client) AddRole(guildID, userID, roleID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("AddRole", guildID, userID, roleID); err != nil {
		return err
	}
	c.RolesAdded = append(c.RolesAdded, userID+"/"+roleID)
	return nil
}

func (c *Client) RemoveRole(guildID, userID, roleID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("RemoveRole", guildID, userID, roleID); err != nil {
		return err
	}
	c.RolesRemoved = append(c.RolesRemoved, userID+"/"+roleID)
	return nil
}

func (c *Client) CreateRole(guildID string, params *discordgo.RoleParams) (*discordgo.Role, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("CreateRole", guildID); err != nil {
		return nil, err
	}
	c.RolesCreated = append(c.RolesCreated, params)
	role := &discordgo.Role{ID: fmt.Sprintf("role-%d", len(c.RolesCreated)), Name: params.Name}
	if guild, ok := c.Guilds[guildID]; ok {
		guild.Roles = append(guild.Roles, role)
	}
	return role, nil
}

func (c *Client) SetPermission(channelID, targetID string, _ discordgo.PermissionOverwriteType, allow, deny int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("SetPermission", channelID, targetID); err != nil {
		return err
	}
	c.Overwrites = append(c.Overwrites, Overwrite{ChannelID: channelID, TargetID: targetID, Allow: allow, Deny: deny})
	if channel, ok := c.Channels[channelID]; ok {
		channel.PermissionOverwrites = setOverwrite(channel.PermissionOverwrites, targetID, allow, deny)
	}
	return nil
}

func (c *Client) DeletePermission(channelID, targetID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("DeletePermission", channelID, targetID); err != nil {
		return err
	}
	if channel, ok := c.Channels[channelID]; ok {
		kept := channel.PermissionOverwrites[:0]
		for _, ow := range channel.PermissionOverwrites {
			if ow.ID != targetID {
				kept = append(kept, ow)
			}
		}
		channel.PermissionOverwrites = kept
	}
	return nil
}

func (c *Client) SetSlowmode(channelID string, seconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("SetSlowmode", channelID); err != nil {
		return err
	}
	c.Slowmodes[channelID] = seconds
	return nil
}

func (c *Client) Commands(appID, guildID string) ([]*discordgo.ApplicationCommand, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("Commands", appID, guildID); err != nil {
		return nil, err
	}
	out := make([]*discordgo.ApplicationCommand, 0, len(c.AppCommands))
	for _, cmd := range c.AppCommands {
		out = append(out, cmd)
	}
	return out, nil
}

func (c *Client) CreateCommand(appID, guildID string, cmd *discordgo.ApplicationCommand) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("CreateCommand", appID, guildID, cmd.Name); err != nil {
		return err
	}
	c.commandCounter++
	stored := *cmd
	stored.ID = fmt.Sprintf("cmd-%d", c.commandCounter)
	c.AppCommands[stored.ID] = &stored
	return nil
}

func (c *Client) EditCommand(appID, guildID, cmdID string, cmd *discordgo.ApplicationCommand) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("EditCommand", appID, guildID, cmdID); err != nil {
		return err
	}
	stored := *cmd
	stored.ID = cmdID
	c.AppCommands[cmdID] = &stored
	return nil
}

func (c *Client) DeleteCommand(appID, guildID, cmdID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("DeleteCommand", appID, guildID, cmdID); err != nil {
		return err
	}
	delete(c.AppCommands, cmdID)
	return nil
}

func (c *Client) UpdateStatus(status string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("UpdateStatus", status); err != nil {
		return err
	}
	c.Statuses = append(c.Statuses, status)
	return nil
}

func (c *Client) BotUser() *discordgo.User {
	return c.Self
}

func (c *Client) Latency() time.Duration {
	return 42 * time.Millisecond
}

func (c *Client) GuildIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.Guilds))
	for id := range c.Guilds {
		ids = append(ids, id)
	}
	return ids
}

func memberKey(guildID, userID string) string {
	return guildID + "/" + userID
}

func setOverwrite(list []*discordgo.PermissionOverwrite, targetID string, allow, deny int64) []*discordgo.PermissionOverwrite {
	for _, ow := range list {
		if ow.ID == targetID {
			ow.Allow = allow
			ow.Deny = deny
			return list
		}
	}
	return append(list, &discordgo.PermissionOverwrite{ID: targetID, Type: discordgo.PermissionOverwriteTypeRole, Allow: allow, Deny: deny})
}

// Package permissions holds the pure checks that decide whether a member may
// run a moderation command and whether it may be aimed at a given target.
package permissions

import (
	"errors"
	"sort"

	"github.com/bwmarrin/discordgo"
)

var ErrPermissionDenied = errors.New("permission denied")

type Reason string

const (
	DeniedOwnerImmune         Reason = "owner_immune"
	DeniedSelfTarget          Reason = "self_target"
	DeniedBotSelfTarget       Reason = "bot_self_target"
	DeniedInsufficientRank    Reason = "insufficient_rank"
	DeniedBotInsufficientRank Reason = "bot_insufficient_rank"
	DeniedRoleAboveBot        Reason = "role_above_bot"
	DeniedRoleAboveActor      Reason = "role_above_actor"
)

var reasonMessages = map[Reason]string{
	DeniedOwnerImmune:         "You cannot moderate the server owner.",
	DeniedSelfTarget:          "You cannot moderate yourself.",
	DeniedBotSelfTarget:       "I cannot moderate myself.",
	DeniedInsufficientRank:    "You cannot moderate someone with a higher or equal role.",
	DeniedBotInsufficientRank: "I cannot moderate someone with a higher or equal role than me.",
	DeniedRoleAboveBot:        "I cannot manage a role that is equal to or higher than my highest role.",
	DeniedRoleAboveActor:      "You cannot manage a role that is equal to or higher than your highest role.",
}

type Denial struct {
	Reason Reason
}

func (d *Denial) Error() string {
	return "permission denied: " + string(d.Reason)
}

func (d *Denial) Is(target error) bool {
	return target == ErrPermissionDenied
}

// Message is the text shown to the member whose command was refused.
func (d *Denial) Message() string {
	if msg, ok := reasonMessages[d.Reason]; ok {
		return msg
	}
	return "You cannot moderate this member."
}

// Member is the slice of a guild member the gate needs. TopRank is the
// highest role position the member holds; 0 is @everyone.
type Member struct {
	ID          string
	TopRank     int
	Permissions int64
}

func (m Member) Has(perm int64) bool {
	return m.Permissions&perm == perm
}

// HasElevatedCapability reports whether actor may change bot settings.
func HasElevatedCapability(actor Member, processOwnerID string) bool {
	if processOwnerID != "" && actor.ID == processOwnerID {
		return true
	}
	return actor.Has(discordgo.PermissionAdministrator) || actor.Has(discordgo.PermissionManageServer)
}

// HasModerationCapability is the looser check used for day to day
// moderation commands and report buttons.
func HasModerationCapability(actor Member, processOwnerID string) bool {
	if HasElevatedCapability(actor, processOwnerID) {
		return true
	}
	for _, perm := range []int64{
		discordgo.PermissionManageMessages,
		discordgo.PermissionKickMembers,
		discordgo.PermissionBanMembers,
		discordgo.PermissionManageRoles,
	} {
		if actor.Has(perm) {
			return true
		}
	}
	return false
}

// CanActOn checks the role hierarchy between actor, target and the bot.
// Checks run in a fixed order and the first failure wins, so owner and
// self targeting are never reported as rank problems.
func CanActOn(guildOwnerID string, actor, target, bot Member) error {
	switch {
	case target.ID == guildOwnerID:
		return &Denial{Reason: DeniedOwnerImmune}
	case target.ID == actor.ID:
		return &Denial{Reason: DeniedSelfTarget}
	case target.ID == bot.ID:
		return &Denial{Reason: DeniedBotSelfTarget}
	case actor.ID != guildOwnerID && target.TopRank >= actor.TopRank:
		return &Denial{Reason: DeniedInsufficientRank}
	case target.TopRank >= bot.TopRank:
		return &Denial{Reason: DeniedBotInsufficientRank}
	}
	return nil
}

// CanManageRole checks that a role at rolePosition sits below the bot and,
// unless actor owns the guild, below actor.
func CanManageRole(guildOwnerID string, actor, bot Member, rolePosition int) error {
	switch {
	case rolePosition >= bot.TopRank:
		return &Denial{Reason: DeniedRoleAboveBot}
	case actor.ID != guildOwnerID && rolePosition >= actor.TopRank:
		return &Denial{Reason: DeniedRoleAboveActor}
	}
	return nil
}

var permissionNames = map[int64]string{
	discordgo.PermissionAdministrator:      "Administrator",
	discordgo.PermissionManageServer:       "Manage Server",
	discordgo.PermissionManageMessages:     "Manage Messages",
	discordgo.PermissionKickMembers:        "Kick Members",
	discordgo.PermissionBanMembers:         "Ban Members",
	discordgo.PermissionManageRoles:        "Manage Roles",
	discordgo.PermissionManageChannels:     "Manage Channels",
	discordgo.PermissionManageNicknames:    "Manage Nicknames",
	discordgo.PermissionModerateMembers:    "Moderate Members",
	discordgo.PermissionSendMessages:       "Send Messages",
	discordgo.PermissionEmbedLinks:         "Embed Links",
	discordgo.PermissionAddReactions:       "Add Reactions",
	discordgo.PermissionVoiceMoveMembers:   "Move Members",
	discordgo.PermissionVoiceMuteMembers:   "Mute Members",
	discordgo.PermissionVoiceDeafenMembers: "Deafen Members",
}

// Names lists the names of the known bits perms carries, sorted.
func Names(perms int64) []string {
	var names []string
	for bit, name := range permissionNames {
		if perms&bit != 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Missing lists the names of the bits in required that have does not carry.
// Administrator implies everything.
func Missing(have, required int64) []string {
	if have&discordgo.PermissionAdministrator != 0 {
		return nil
	}
	var missing []string
	for bit, name := range permissionNames {
		if required&bit != 0 && have&bit == 0 {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

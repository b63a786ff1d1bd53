package permissions

import "github.com/bwmarrin/discordgo"

// FromGuild folds the member's roles into a Member. Permissions are the OR
// of @everyone and every held role; the guild owner gets every bit.
func FromGuild(guild *discordgo.Guild, member *discordgo.Member) Member {
	if guild == nil || member == nil || member.User == nil {
		return Member{}
	}
	result := Member{ID: member.User.ID}

	roleMap := make(map[string]*discordgo.Role, len(guild.Roles))
	for _, role := range guild.Roles {
		roleMap[role.ID] = role
	}
	if everyone := roleMap[guild.ID]; everyone != nil {
		result.Permissions |= everyone.Permissions
	}
	for _, roleID := range member.Roles {
		role := roleMap[roleID]
		if role == nil {
			continue
		}
		result.Permissions |= role.Permissions
		if role.Position > result.TopRank {
			result.TopRank = role.Position
		}
	}
	if guild.OwnerID == result.ID {
		result.Permissions = discordgo.PermissionAll
	}
	return result
}

// TopRole returns the member's highest positioned role, or nil when they
// only hold @everyone.
func TopRole(guild *discordgo.Guild, member *discordgo.Member) *discordgo.Role {
	if guild == nil || member == nil {
		return nil
	}
	held := make(map[string]struct{}, len(member.Roles))
	for _, id := range member.Roles {
		held[id] = struct{}{}
	}
	var top *discordgo.Role
	for _, role := range guild.Roles {
		if _, ok := held[role.ID]; !ok {
			continue
		}
		if top == nil || role.Position > top.Position {
			top = role
		}
	}
	return top
}

package bot

import (
	"fmt"

	"modwarden/internal/modules/audit"
	"modwarden/internal/permissions"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// manageableRole resolves the role option and checks that both the invoker
// and the bot rank above it.
func (b *Bot) manageableRole(ctx *CommandContext) (*discordgo.Role, error) {
	role := ctx.RoleOption("role")
	switch {
	case role == nil:
		return nil, refuse("Please specify a role.")
	case role.ID == ctx.GuildID():
		return nil, refuse("The @everyone role cannot be assigned.")
	case role.Managed:
		return nil, refuse("**%s** is managed by an integration and cannot be assigned.", role.Name)
	}
	if err := permissions.CanManageRole(ctx.Guild.OwnerID, ctx.Actor, ctx.BotMember, role.Position); err != nil {
		return nil, err
	}
	return role, nil
}

func (b *Bot) cmdRoleAdd(ctx *CommandContext) error {
	target := ctx.UserOption("user")
	member, err := b.gateTarget(ctx, target, true)
	if err != nil {
		return err
	}
	role, err := b.manageableRole(ctx)
	if err != nil {
		return err
	}
	if hasRole(member, role.ID) {
		return refuse("**%s** already has the **%s** role.", displayName(target), role.Name)
	}

	if err := b.client.AddRole(ctx.GuildID(), target.ID, role.ID); err != nil {
		return opFailed("add role", err)
	}
	ctx.Record(audit.Action{Type: "role added", Target: targetOf(target), Reason: reasonOr(ctx), Details: "Role: " + role.Name})
	return ctx.Success("Role Added", fmt.Sprintf("Added **%s** role to **%s**", role.Name, displayName(target)))
}

func (b *Bot) cmdRoleRemove(ctx *CommandContext) error {
	target := ctx.UserOption("user")
	member, err := b.gateTarget(ctx, target, true)
	if err != nil {
		return err
	}
	role, err := b.manageableRole(ctx)
	if err != nil {
		return err
	}
	if !hasRole(member, role.ID) {
		return refuse("**%s** doesn't have the **%s** role.", displayName(target), role.Name)
	}

	if err := b.client.RemoveRole(ctx.GuildID(), target.ID, role.ID); err != nil {
		return opFailed("remove role", err)
	}
	ctx.Record(audit.Action{Type: "role removed", Target: targetOf(target), Reason: reasonOr(ctx), Details: "Role: " + role.Name})
	return ctx.Success("Role Removed", fmt.Sprintf("Removed **%s** role from **%s**", role.Name, displayName(target)))
}

// cmdRoleAll gives the role to every human member who lacks it.
func (b *Bot) cmdRoleAll(ctx *CommandContext) error {
	role, err := b.manageableRole(ctx)
	if err != nil {
		return err
	}
	if err := ctx.Defer(false); err != nil {
		return fmt.Errorf("defer roleall: %w", err)
	}
	members, err := b.client.GuildMembers(ctx.GuildID())
	if err != nil {
		return opFailed("list members", err)
	}

	var targets []*discordgo.Member
	for _, member := range members {
		if member.User == nil || member.User.Bot || hasRole(member, role.ID) {
			continue
		}
		targets = append(targets, member)
	}
	if len(targets) == 0 {
		return refuse("All members already have this role or there are no members to add it to.")
	}

	ok, failed := b.applyRole(ctx, targets, role, b.client.AddRole)
	ctx.Record(audit.Action{
		Type:    "mass role add",
		Reason:  defaultReason,
		Details: fmt.Sprintf("Role: %s\nSuccessful: %d\nFailed: %d", role.Name, ok, failed),
	})
	description := fmt.Sprintf("Added **%s** to %d members", role.Name, ok)
	if failed > 0 {
		description += fmt.Sprintf("\nFailed to add to %d members", failed)
	}
	return ctx.Success("Mass Role Assignment", description)
}

// cmdRemoveRoleAll takes the role from every member holding it, bots
// included.
func (b *Bot) cmdRemoveRoleAll(ctx *CommandContext) error {
	role, err := b.manageableRole(ctx)
	if err != nil {
		return err
	}
	if err := ctx.Defer(false); err != nil {
		return fmt.Errorf("defer removeroleall: %w", err)
	}
	members, err := b.client.GuildMembers(ctx.GuildID())
	if err != nil {
		return opFailed("list members", err)
	}

	var targets []*discordgo.Member
	for _, member := range members {
		if member.User != nil && hasRole(member, role.ID) {
			targets = append(targets, member)
		}
	}
	if len(targets) == 0 {
		return refuse("No members have this role.")
	}

	ok, failed := b.applyRole(ctx, targets, role, b.client.RemoveRole)
	ctx.Record(audit.Action{
		Type:    "mass role remove",
		Reason:  defaultReason,
		Details: fmt.Sprintf("Role: %s\nSuccessful: %d\nFailed: %d", role.Name, ok, failed),
	})
	description := fmt.Sprintf("Removed **%s** from %d members", role.Name, ok)
	if failed > 0 {
		description += fmt.Sprintf("\nFailed to remove from %d members", failed)
	}
	return ctx.Success("Mass Role Removal", description)
}

func (b *Bot) applyRole(ctx *CommandContext, members []*discordgo.Member, role *discordgo.Role, apply func(guildID, userID, roleID string) error) (ok, failed int) {
	for _, member := range members {
		if err := apply(ctx.GuildID(), member.User.ID, role.ID); err != nil {
			failed++
			b.logger.Debug("mass role change failed",
				zap.String("guild_id", ctx.GuildID()),
				zap.String("user_id", member.User.ID),
				zap.String("role_id", role.ID),
				zap.Error(err))
			continue
		}
		ok++
	}
	return ok, failed
}

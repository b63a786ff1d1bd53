package permissions

import (
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ownerID = "owner"

func denialReason(t *testing.T, err error) Reason {
	t.Helper()
	var denial *Denial
	require.True(t, errors.As(err, &denial), "expected *Denial, got %v", err)
	require.ErrorIs(t, err, ErrPermissionDenied)
	return denial.Reason
}

func TestCanActOnOrdering(t *testing.T) {
	bot := Member{ID: "bot", TopRank: 10}
	mod := Member{ID: "mod", TopRank: 5}

	cases := []struct {
		name   string
		actor  Member
		target Member
		want   Reason
	}{
		{"owner immune beats everything", mod, Member{ID: ownerID, TopRank: 100}, DeniedOwnerImmune},
		{"self target before rank", mod, mod, DeniedSelfTarget},
		{"bot self target before rank", mod, Member{ID: "bot", TopRank: 10}, DeniedBotSelfTarget},
		{"equal rank", mod, Member{ID: "u", TopRank: 5}, DeniedInsufficientRank},
		{"higher rank", mod, Member{ID: "u", TopRank: 7}, DeniedInsufficientRank},
		{"above the bot", Member{ID: "admin", TopRank: 20}, Member{ID: "u", TopRank: 10}, DeniedBotInsufficientRank},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := CanActOn(ownerID, tc.actor, tc.target, bot)
			assert.Equal(t, tc.want, denialReason(t, err))
		})
	}
}

func TestCanActOnAllows(t *testing.T) {
	bot := Member{ID: "bot", TopRank: 10}
	err := CanActOn(ownerID, Member{ID: "mod", TopRank: 5}, Member{ID: "u", TopRank: 1}, bot)
	assert.NoError(t, err)
}

func TestOwnerSkipsActorRankCheck(t *testing.T) {
	bot := Member{ID: "bot", TopRank: 10}
	owner := Member{ID: ownerID, TopRank: 0}

	err := CanActOn(ownerID, owner, Member{ID: "u", TopRank: 3}, bot)
	assert.NoError(t, err)

	err = CanActOn(ownerID, owner, Member{ID: "u", TopRank: 50}, bot)
	assert.Equal(t, DeniedBotInsufficientRank, denialReason(t, err))
}

func TestCanManageRole(t *testing.T) {
	bot := Member{ID: "bot", TopRank: 10}
	mod := Member{ID: "mod", TopRank: 5}
	owner := Member{ID: ownerID, TopRank: 0}

	assert.NoError(t, CanManageRole(ownerID, mod, bot, 4))
	assert.Equal(t, DeniedRoleAboveActor, denialReason(t, CanManageRole(ownerID, mod, bot, 5)))
	assert.Equal(t, DeniedRoleAboveBot, denialReason(t, CanManageRole(ownerID, mod, bot, 10)))
	// the bot check wins when the role is above both
	assert.Equal(t, DeniedRoleAboveBot, denialReason(t, CanManageRole(ownerID, mod, bot, 12)))

	assert.NoError(t, CanManageRole(ownerID, owner, bot, 9))
	assert.Equal(t, DeniedRoleAboveBot, denialReason(t, CanManageRole(ownerID, owner, bot, 10)))
}

func TestDenialMessage(t *testing.T) {
	d := &Denial{Reason: DeniedSelfTarget}
	assert.Equal(t, "You cannot moderate yourself.", d.Message())
	assert.Contains(t, d.Error(), "self_target")
}

func TestHasElevatedCapability(t *testing.T) {
	assert.True(t, HasElevatedCapability(Member{ID: "boss"}, "boss"))
	assert.True(t, HasElevatedCapability(Member{ID: "a", Permissions: discordgo.PermissionAdministrator}, ""))
	assert.True(t, HasElevatedCapability(Member{ID: "a", Permissions: discordgo.PermissionManageServer}, ""))
	assert.False(t, HasElevatedCapability(Member{ID: "a", Permissions: discordgo.PermissionBanMembers}, ""))
	assert.False(t, HasElevatedCapability(Member{ID: ""}, ""))
}

func TestHasModerationCapability(t *testing.T) {
	assert.True(t, HasModerationCapability(Member{ID: "a", Permissions: discordgo.PermissionKickMembers}, ""))
	assert.True(t, HasModerationCapability(Member{ID: "a", Permissions: discordgo.PermissionManageServer}, ""))
	assert.False(t, HasModerationCapability(Member{ID: "a", Permissions: discordgo.PermissionSendMessages}, ""))
}

func TestMissing(t *testing.T) {
	var required int64 = discordgo.PermissionBanMembers | discordgo.PermissionManageRoles
	assert.Equal(t, []string{"Ban Members", "Manage Roles"}, Missing(0, required))
	assert.Equal(t, []string{"Manage Roles"}, Missing(discordgo.PermissionBanMembers, required))
	assert.Empty(t, Missing(discordgo.PermissionAdministrator, required))
}

func TestNames(t *testing.T) {
	var perms int64 = discordgo.PermissionVoiceMoveMembers | discordgo.PermissionKickMembers | discordgo.PermissionViewChannel
	assert.Equal(t, []string{"Kick Members", "Move Members"}, Names(perms))
	assert.Empty(t, Names(0))
}

func TestFromGuild(t *testing.T) {
	guild := &discordgo.Guild{
		ID:      "g1",
		OwnerID: ownerID,
		Roles: []*discordgo.Role{
			{ID: "g1", Position: 0, Permissions: discordgo.PermissionSendMessages},
			{ID: "mods", Position: 4, Permissions: discordgo.PermissionKickMembers},
			{ID: "helpers", Position: 2, Permissions: discordgo.PermissionManageMessages},
		},
	}
	member := &discordgo.Member{User: &discordgo.User{ID: "u1"}, Roles: []string{"helpers", "mods"}}

	got := FromGuild(guild, member)
	assert.Equal(t, "u1", got.ID)
	assert.Equal(t, 4, got.TopRank)
	assert.True(t, got.Has(discordgo.PermissionSendMessages))
	assert.True(t, got.Has(discordgo.PermissionKickMembers|discordgo.PermissionManageMessages))
	assert.False(t, got.Has(discordgo.PermissionBanMembers))
	assert.Equal(t, "mods", TopRole(guild, member).ID)

	owner := FromGuild(guild, &discordgo.Member{User: &discordgo.User{ID: ownerID}})
	assert.True(t, owner.Has(discordgo.PermissionAdministrator))
	assert.Nil(t, TopRole(guild, &discordgo.Member{User: &discordgo.User{ID: ownerID}}))
}

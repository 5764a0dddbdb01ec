package discord

import (
	"slices"

	"github.com/bwmarrin/discordgo"
)

// PermissionChecker validates that a Discord user holds the recorder role
// before executing recording commands.
type PermissionChecker struct {
	recorderRoleID string
}

// NewPermissionChecker creates a PermissionChecker for the given role ID.
func NewPermissionChecker(recorderRoleID string) *PermissionChecker {
	return &PermissionChecker{recorderRoleID: recorderRoleID}
}

// CanRecord checks whether the interaction author may control recording.
// An empty role ID allows every guild member. Interactions without a Member
// (DM channels) are always denied.
func (p *PermissionChecker) CanRecord(i *discordgo.InteractionCreate) bool {
	if i.Member == nil {
		return false
	}
	if p.recorderRoleID == "" {
		return true
	}
	return slices.Contains(i.Member.Roles, p.recorderRoleID)
}

package discord

import (
	"slices"

	"github.com/bwmarrin/discordgo"
)

// guildAdmins lists the guild owner and every cached member holding a role
// with the Administrator permission.
func guildAdmins(g *discordgo.Guild) []string {
	if g == nil {
		return nil
	}
	adminRoles := make(map[string]bool, len(g.Roles))
	for _, r := range g.Roles {
		if r.Permissions&discordgo.PermissionAdministrator != 0 {
			adminRoles[r.ID] = true
		}
	}

	var out []string
	if g.OwnerID != "" {
		out = append(out, g.OwnerID)
	}
	for _, m := range g.Members {
		if m == nil || m.User == nil || m.User.ID == g.OwnerID {
			continue
		}
		if slices.ContainsFunc(m.Roles, func(id string) bool { return adminRoles[id] }) {
			out = append(out, m.User.ID)
		}
	}
	return out
}

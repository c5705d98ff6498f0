// Package middleware holds the command wrappers applied at registration.
package middleware

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// PermissionNames maps single permission bits to the label Discord shows in
// server settings.
var PermissionNames = map[int64]string{
	discordgo.PermissionKickMembers:        "Kick Members",
	discordgo.PermissionBanMembers:         "Ban Members",
	discordgo.PermissionAdministrator:      "Administrator",
	discordgo.PermissionManageChannels:     "Manage Channels",
	discordgo.PermissionManageGuild:        "Manage Server",
	discordgo.PermissionAddReactions:       "Add Reactions",
	discordgo.PermissionViewAuditLogs:      "View Audit Logs",
	discordgo.PermissionViewChannel:        "View Channel",
	discordgo.PermissionSendMessages:       "Send Messages",
	discordgo.PermissionManageMessages:     "Manage Messages",
	discordgo.PermissionReadMessageHistory: "Read Message History",
	discordgo.PermissionMentionEveryone:    "Mention Everyone",
	discordgo.PermissionManageNicknames:    "Manage Nicknames",
	discordgo.PermissionManageRoles:        "Manage Roles",
	discordgo.PermissionManageWebhooks:     "Manage Webhooks",
	discordgo.PermissionModerateMembers:    "Moderate Members",
}

// PermissionLabel renders every bit set in perms, lowest bit first.
func PermissionLabel(perms int64) string {
	var names []string
	for bit := int64(1); bit > 0 && bit <= perms; bit <<= 1 {
		if perms&bit == 0 {
			continue
		}
		name := PermissionNames[bit]
		if name == "" {
			name = fmt.Sprintf("0x%x", bit)
		}
		names = append(names, name)
	}
	return strings.Join(names, ", ")
}

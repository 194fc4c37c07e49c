package bot

import (
	"time"

	"sentinel-guard/internal/threat"

	"github.com/bwmarrin/discordgo"
)

const elevatedPermissions = discordgo.PermissionAdministrator | discordgo.PermissionManageServer

func messageFromDiscord(msg *discordgo.Message) threat.Message {
	out := threat.Message{
		ID:        msg.ID,
		GuildID:   msg.GuildID,
		ChannelID: msg.ChannelID,
		Content:   msg.Content,
		CreatedAt: msg.Timestamp,
		Mentions: threat.Mentions{
			Users:    len(msg.Mentions),
			Roles:    len(msg.MentionRoles),
			Everyone: msg.MentionEveryone,
		},
	}
	if msg.Author != nil {
		out.AuthorID = msg.Author.ID
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now()
	}
	return out
}

// memberFromDiscord snapshots a member. The account creation time is decoded
// from the user's snowflake id.
func memberFromDiscord(guild *discordgo.Guild, guildID string, user *discordgo.User, member *discordgo.Member) threat.Member {
	out := threat.Member{GuildID: guildID}
	if user == nil && member != nil {
		user = member.User
	}
	if user != nil {
		out.ID = user.ID
		out.Username = user.Username
		out.AvatarPresent = user.Avatar != ""
		if created, err := discordgo.SnowflakeTimestamp(user.ID); err == nil {
			out.AccountCreatedAt = created
		}
	}
	if member != nil {
		out.Roles = member.Roles
	}
	out.Elevated = isElevated(guild, out.ID, out.Roles)
	return out
}

// isElevated reports whether userID owns the guild or holds a role granting
// administrator or manage-server.
func isElevated(guild *discordgo.Guild, userID string, roles []string) bool {
	if guild == nil {
		return false
	}
	if guild.OwnerID != "" && guild.OwnerID == userID {
		return true
	}
	return rolePermissions(guild, roles)&elevatedPermissions != 0
}

func rolePermissions(guild *discordgo.Guild, roles []string) int64 {
	perms := int64(0)
	roleMap := make(map[string]*discordgo.Role, len(guild.Roles))
	for _, role := range guild.Roles {
		roleMap[role.ID] = role
		if role.ID == guild.ID {
			perms |= role.Permissions
		}
	}
	for _, roleID := range roles {
		if role := roleMap[roleID]; role != nil {
			perms |= role.Permissions
		}
	}
	return perms
}

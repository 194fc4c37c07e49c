package bot

import (
	"context"
	"fmt"
	"time"

	"sentinel-guard/internal/modules/audit"
	"sentinel-guard/internal/storage"
	"sentinel-guard/internal/threat"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type target struct {
	guildID   string
	userID    string
	channelID string
	messageID string
}

type enforcement int

const (
	enforceNone enforcement = iota
	enforceSimulated
	enforceDisabled
	enforceApply
)

// enforcementFor decides whether action is executed, simulated under audit
// mode, or suppressed because enforcement is disabled.
func enforcementFor(mode string, enabled bool, action threat.Action) enforcement {
	if action == "" || action == threat.Flagged {
		return enforceNone
	}
	if mode == "audit" {
		return enforceSimulated
	}
	if !enabled {
		return enforceDisabled
	}
	return enforceApply
}

func (b *Bot) enforce(ctx context.Context, settings storage.GuildSettings, res threat.Result, t target) {
	switch enforcementFor(settings.Mode, b.cfg.Actions.Enabled, res.Action) {
	case enforceNone:
		return
	case enforceSimulated:
		b.audit.Log(ctx, audit.LevelInfo, t.guildID, t.userID, "audit_mode", fmt.Sprintf("simulated %s for %s", res.Action, res.Type))
		return
	case enforceDisabled:
		b.audit.Log(ctx, audit.LevelInfo, t.guildID, t.userID, "enforcement_disabled", "actions disabled")
		return
	}

	actions := b.cfg.Actions
	reason := fmt.Sprintf("Sentinel Guard: %s (severity %.2f)", res.Type, res.Severity)

	switch res.Action {
	case threat.Deleted:
		b.deleteMessage(ctx, t)
	case threat.Warned:
		b.warnUser(t.userID, b.warningEmbed(res))
	case threat.Muted:
		b.deleteMessage(ctx, t)
		until := time.Now().Add(time.Duration(b.timeoutMinutes()) * time.Minute)
		if err := b.session.GuildMemberTimeout(t.guildID, t.userID, &until); err != nil {
			b.actionFailed(ctx, t, "timeout", err)
			return
		}
		b.warnUser(t.userID, b.warningEmbed(res))
	case threat.Kicked:
		if err := b.session.GuildMemberDeleteWithReason(t.guildID, t.userID, reason); err != nil {
			b.actionFailed(ctx, t, "kick", err)
		}
	case threat.Banned:
		if err := b.session.GuildBanCreateWithReason(t.guildID, t.userID, reason, actions.DeleteMessageDays); err != nil {
			b.actionFailed(ctx, t, "ban", err)
		}
	}
}

func (b *Bot) deleteMessage(ctx context.Context, t target) {
	if t.channelID == "" || t.messageID == "" {
		return
	}
	if err := b.session.ChannelMessageDelete(t.channelID, t.messageID); err != nil {
		b.actionFailed(ctx, t, "delete", err)
	}
}

func (b *Bot) actionFailed(ctx context.Context, t target, action string, err error) {
	b.logger.Warn("action failed", zap.String("action", action), zap.String("guild_id", t.guildID), zap.String("user_id", t.userID), zap.Error(err))
	b.audit.Log(ctx, audit.LevelWarn, t.guildID, t.userID, "action_failed", action+" failed")
}

func (b *Bot) warnUser(userID string, embed *discordgo.MessageEmbed) {
	if userID == "" || embed == nil || !b.cfg.Actions.DMWarnEnabled {
		return
	}
	channel, err := b.session.UserChannelCreate(userID)
	if err != nil {
		return
	}
	_, _ = b.session.ChannelMessageSendEmbed(channel.ID, embed)
}

func (b *Bot) warningEmbed(res threat.Result) *discordgo.MessageEmbed {
	description := "Your message was flagged by the server's security filter."
	if res.Action == threat.Muted {
		description = fmt.Sprintf("You have been timed out for %d minutes by the server's security filter.", b.timeoutMinutes())
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "Reason", Value: string(res.Type), Inline: true},
	}
	return b.commandEmbed("Security warning", description, b.cfg.Actions.SecurityEmbedColor, fields)
}

func (b *Bot) timeoutMinutes() int {
	if b.cfg.Actions.TimeoutMinutes <= 0 {
		return 10
	}
	return b.cfg.Actions.TimeoutMinutes
}

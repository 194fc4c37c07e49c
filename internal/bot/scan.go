package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"sentinel-guard/internal/modules/accountcheck"
	"sentinel-guard/internal/modules/audit"
	"sentinel-guard/internal/threat"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	scanPageSize    = 1000
	scanMemberLimit = 10000
	scanListLimit   = 10
	scanTimeout     = 2 * time.Minute
)

type scanHit struct {
	member threat.Member
	result accountcheck.Result
}

// handleScanCommand scores every current member with the account analyzer.
// The reply is deferred since listing a large guild outlives the interaction
// deadline.
func (b *Bot) handleScanCommand(session *discordgo.Session, interaction *discordgo.InteractionCreate, userID string) {
	const title = "Member scan"
	guildID := interaction.GuildID

	err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		b.logger.Warn("defer scan response failed", zap.String("guild_id", guildID), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), scanTimeout)
	defer cancel()

	members, err := b.fetchMembers(ctx, session, guildID)
	if err != nil {
		b.logger.Warn("command failed", zap.String("op", "list members"), zap.String("guild_id", guildID), zap.Error(err))
		b.editEmbed(session, interaction, b.commandEmbed(title, "Could not list members.", colorError, nil))
		return
	}

	settings := b.guildSettings(ctx, guildID)
	candidates := make([]threat.Member, 0, len(members))
	for _, member := range members {
		if !b.engine.IsExempt(member, settings.ExemptRoleIDs) {
			candidates = append(candidates, member)
		}
	}

	results, err := b.engine.AnalyzeMembers(ctx, candidates)
	if err != nil {
		b.logger.Warn("command failed", zap.String("op", "analyze members"), zap.String("guild_id", guildID), zap.Error(err))
		b.editEmbed(session, interaction, b.commandEmbed(title, "Could not analyze members.", colorError, nil))
		return
	}

	hits := flaggedMembers(candidates, results)
	b.audit.Log(ctx, audit.LevelInfo, guildID, userID, "member_scan", fmt.Sprintf("scanned=%d flagged=%d", len(candidates), len(hits)))

	color := colorAction
	if len(hits) > 0 {
		color = colorWarning
	}
	description := fmt.Sprintf("Scanned %d members, %d flagged.", len(candidates), len(hits))
	b.editEmbed(session, interaction, b.commandEmbed(title, description, color, scanFields(hits, scanListLimit)))
}

// fetchMembers pages through the guild member list, skipping bots.
func (b *Bot) fetchMembers(ctx context.Context, session *discordgo.Session, guildID string) ([]threat.Member, error) {
	guild := b.guild(guildID)
	var out []threat.Member
	after := ""
	for len(out) < scanMemberLimit {
		page, err := session.GuildMembers(guildID, after, scanPageSize, discordgo.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		for _, member := range page {
			if member.User == nil {
				continue
			}
			after = member.User.ID
			if member.User.Bot {
				continue
			}
			out = append(out, memberFromDiscord(guild, guildID, member.User, member))
		}
		if len(page) < scanPageSize {
			break
		}
	}
	return out, nil
}

// flaggedMembers pairs detected results with their members, most severe first.
func flaggedMembers(members []threat.Member, results []accountcheck.Result) []scanHit {
	var hits []scanHit
	for i, res := range results {
		if i < len(members) && res.Detected {
			hits = append(hits, scanHit{member: members[i], result: res})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].result.Severity > hits[j].result.Severity
	})
	return hits
}

func scanFields(hits []scanHit, limit int) []*discordgo.MessageEmbedField {
	if len(hits) == 0 {
		return nil
	}
	lines := make([]string, 0, limit)
	for i, hit := range hits {
		if i == limit {
			lines = append(lines, fmt.Sprintf("and %d more", len(hits)-limit))
			break
		}
		lines = append(lines, fmt.Sprintf("<@%s> %.2f %dd %s", hit.member.ID, hit.result.Severity, hit.result.AccountAgeDays, strings.Join(hit.result.Reasons, ", ")))
	}
	return []*discordgo.MessageEmbedField{{Name: "Flagged", Value: truncateField(strings.Join(lines, "\n"))}}
}

func (b *Bot) editEmbed(session *discordgo.Session, interaction *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	embeds := []*discordgo.MessageEmbed{embed}
	if _, err := session.InteractionResponseEdit(interaction.Interaction, &discordgo.WebhookEdit{Embeds: &embeds}); err != nil {
		b.logger.Warn("edit interaction response failed", zap.String("guild_id", interaction.GuildID), zap.Error(err))
	}
}

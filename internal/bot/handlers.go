package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"sentinel-guard/internal/analytics"
	"sentinel-guard/internal/config"
	"sentinel-guard/internal/modules/antihate"
	"sentinel-guard/internal/modules/antiphishing"
	"sentinel-guard/internal/modules/audit"
	"sentinel-guard/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	colorAction  = 0x2ecc71
	colorWarning = 0xf1c40f
	colorError   = 0xe74c3c

	recentThreatLimit = 10
	topOffenderCount  = 3
)

type commandOptions map[string]*discordgo.ApplicationCommandInteractionDataOption

func optionMap(options []*discordgo.ApplicationCommandInteractionDataOption) commandOptions {
	out := make(commandOptions, len(options))
	for _, opt := range options {
		out[opt.Name] = opt
	}
	return out
}

func (o commandOptions) getString(name string) string {
	if opt, ok := o[name]; ok {
		return strings.TrimSpace(opt.StringValue())
	}
	return ""
}

func (o commandOptions) getInt(name string, fallback int) int {
	if opt, ok := o[name]; ok {
		return int(opt.IntValue())
	}
	return fallback
}

// subcommand splits a command's first option into its name and arguments.
func subcommand(options []*discordgo.ApplicationCommandInteractionDataOption) (string, commandOptions) {
	if len(options) == 0 || options[0].Type != discordgo.ApplicationCommandOptionSubCommand {
		return "", optionMap(options)
	}
	return options[0].Name, optionMap(options[0].Options)
}

func (b *Bot) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	if interaction.Type != discordgo.InteractionApplicationCommand {
		return
	}

	data := interaction.ApplicationCommandData()
	if interaction.GuildID == "" {
		b.respondEmbed(session, interaction, b.commandEmbed("Sentinel Guard", "This command is only available in a server.", colorError, nil), true)
		return
	}
	if interaction.Member == nil || interaction.Member.Permissions&elevatedPermissions == 0 {
		b.respondEmbed(session, interaction, b.commandEmbed("Sentinel Guard", "You need the Manage Server permission.", colorError, nil), true)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	userID := ""
	if interaction.Member.User != nil {
		userID = interaction.Member.User.ID
	}
	name, options := subcommand(data.Options)

	switch data.Name {
	case "blocklist":
		b.handleBlocklistCommand(ctx, session, interaction, userID, name, options)
	case "scamdomain":
		b.handleScamDomainCommand(ctx, session, interaction, userID, name, options)
	case "mode":
		b.handleModeCommand(ctx, session, interaction, userID, options)
	case "logchannel":
		b.handleLogChannelCommand(ctx, session, interaction, userID, options)
	case "exemptrole":
		b.handleExemptRoleCommand(ctx, session, interaction, userID, name, options)
	case "raidmode":
		b.handleRaidModeCommand(ctx, session, interaction, userID, name)
	case "threats":
		b.handleThreatsCommand(ctx, session, interaction, options)
	case "scan":
		b.handleScanCommand(session, interaction, userID)
	default:
		b.respondEmbed(session, interaction, b.commandEmbed("Sentinel Guard", "Unknown command.", colorError, nil), true)
	}
}

func (b *Bot) handleBlocklistCommand(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, userID, action string, options commandOptions) {
	const title = "Blocklist"
	guildID := interaction.GuildID
	word := strings.ToLower(options.getString("word"))

	switch action {
	case "add":
		category := options.getString("category")
		if word == "" {
			b.respondEmbed(session, interaction, b.commandEmbed(title, "A word is required.", colorError, nil), true)
			return
		}
		if err := b.store.AddBlockedWord(ctx, storage.BlockedWord{GuildID: guildID, Word: word, Category: category}); err != nil {
			b.commandFailed(session, interaction, title, "add blocked word", err)
			return
		}
		b.engine.InvalidateBlocklist(guildID)
		b.audit.Log(ctx, audit.LevelInfo, guildID, userID, "blocklist_add", word)
		fields := []*discordgo.MessageEmbedField{
			{Name: "Word", Value: word, Inline: true},
			{Name: "Severity", Value: fmt.Sprintf("%.1f", antihate.CategorySeverity(category)), Inline: true},
		}
		b.respondEmbed(session, interaction, b.commandEmbed(title, "Word added.", colorAction, fields), true)
	case "remove":
		removed, err := b.store.RemoveBlockedWord(ctx, guildID, word)
		if err != nil {
			b.commandFailed(session, interaction, title, "remove blocked word", err)
			return
		}
		if !removed {
			b.respondEmbed(session, interaction, b.commandEmbed(title, "Word not found.", colorWarning, nil), true)
			return
		}
		b.engine.InvalidateBlocklist(guildID)
		b.audit.Log(ctx, audit.LevelInfo, guildID, userID, "blocklist_remove", word)
		b.respondEmbed(session, interaction, b.commandEmbed(title, "Word removed.", colorAction, nil), true)
	case "list":
		words, err := b.store.ListBlockedWords(ctx, guildID)
		if err != nil {
			b.commandFailed(session, interaction, title, "list blocked words", err)
			return
		}
		lines := make([]string, 0, len(words))
		for _, w := range words {
			if w.GuildID != guildID {
				continue
			}
			lines = append(lines, fmt.Sprintf("`%s` (%s)", w.Word, w.Category))
		}
		if len(lines) == 0 {
			b.respondEmbed(session, interaction, b.commandEmbed(title, "No words configured for this server.", colorWarning, nil), true)
			return
		}
		fields := []*discordgo.MessageEmbedField{{Name: "Words", Value: truncateField(strings.Join(lines, "\n"))}}
		b.respondEmbed(session, interaction, b.commandEmbed(title, fmt.Sprintf("%d words", len(lines)), colorAction, fields), true)
	default:
		b.respondEmbed(session, interaction, b.commandEmbed(title, "Unknown action.", colorError, nil), true)
	}
}

func (b *Bot) handleScamDomainCommand(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, userID, action string, options commandOptions) {
	const title = "Scam domains"
	guildID := interaction.GuildID
	domain := strings.ToLower(options.getString("domain"))

	switch action {
	case "add":
		category := options.getString("category")
		if domain == "" {
			b.respondEmbed(session, interaction, b.commandEmbed(title, "A domain is required.", colorError, nil), true)
			return
		}
		if err := b.store.AddScamDomain(ctx, storage.ScamDomain{Domain: domain, Category: category, AddedBy: userID}); err != nil {
			b.commandFailed(session, interaction, title, "add scam domain", err)
			return
		}
		b.engine.InvalidateDomain(domain)
		b.audit.Log(ctx, audit.LevelInfo, guildID, userID, "scamdomain_add", domain)
		fields := []*discordgo.MessageEmbedField{
			{Name: "Domain", Value: domain, Inline: true},
			{Name: "Severity", Value: fmt.Sprintf("%.2f", antiphishing.RegistrySeverity(category)), Inline: true},
		}
		b.respondEmbed(session, interaction, b.commandEmbed(title, "Domain added.", colorAction, fields), true)
	case "remove":
		removed, err := b.store.RemoveScamDomain(ctx, domain)
		if err != nil {
			b.commandFailed(session, interaction, title, "remove scam domain", err)
			return
		}
		if !removed {
			b.respondEmbed(session, interaction, b.commandEmbed(title, "Domain not found.", colorWarning, nil), true)
			return
		}
		b.engine.InvalidateDomain(domain)
		b.audit.Log(ctx, audit.LevelInfo, guildID, userID, "scamdomain_remove", domain)
		b.respondEmbed(session, interaction, b.commandEmbed(title, "Domain removed.", colorAction, nil), true)
	case "list":
		domains, err := b.store.ListScamDomains(ctx)
		if err != nil {
			b.commandFailed(session, interaction, title, "list scam domains", err)
			return
		}
		if len(domains) == 0 {
			b.respondEmbed(session, interaction, b.commandEmbed(title, "No domains registered.", colorWarning, nil), true)
			return
		}
		lines := make([]string, 0, len(domains))
		for _, d := range domains {
			lines = append(lines, fmt.Sprintf("`%s` (%s)", d.Domain, d.Category))
		}
		fields := []*discordgo.MessageEmbedField{{Name: "Domains", Value: truncateField(strings.Join(lines, "\n"))}}
		b.respondEmbed(session, interaction, b.commandEmbed(title, fmt.Sprintf("%d domains", len(lines)), colorAction, fields), true)
	default:
		b.respondEmbed(session, interaction, b.commandEmbed(title, "Unknown action.", colorError, nil), true)
	}
}

func (b *Bot) handleModeCommand(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, userID string, options commandOptions) {
	settings := b.guildSettings(ctx, interaction.GuildID)
	settings.Mode = config.NormalizeMode(options.getString("value"))
	if err := b.store.UpsertGuildSettings(ctx, settings); err != nil {
		b.commandFailed(session, interaction, "Mode", "update mode", err)
		return
	}
	b.audit.Log(ctx, audit.LevelInfo, interaction.GuildID, userID, "mode_change", settings.Mode)
	fields := []*discordgo.MessageEmbedField{{Name: "Mode", Value: settings.Mode, Inline: true}}
	b.respondEmbed(session, interaction, b.commandEmbed("Mode", "Mode updated.", colorAction, fields), true)
}

func (b *Bot) handleLogChannelCommand(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, userID string, options commandOptions) {
	opt, ok := options["channel"]
	if !ok {
		b.respondEmbed(session, interaction, b.commandEmbed("Log channel", "A channel is required.", colorError, nil), true)
		return
	}
	channelID := opt.ChannelValue(nil).ID

	settings := b.guildSettings(ctx, interaction.GuildID)
	settings.SecurityLogChannel = channelID
	if err := b.store.UpsertGuildSettings(ctx, settings); err != nil {
		b.commandFailed(session, interaction, "Log channel", "update log channel", err)
		return
	}
	b.audit.Log(ctx, audit.LevelInfo, interaction.GuildID, userID, "log_channel", channelID)
	fields := []*discordgo.MessageEmbedField{{Name: "Channel", Value: "<#" + channelID + ">", Inline: true}}
	b.respondEmbed(session, interaction, b.commandEmbed("Log channel", "Security log channel updated.", colorAction, fields), true)
}

func (b *Bot) handleExemptRoleCommand(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, userID, action string, options commandOptions) {
	const title = "Exempt roles"
	settings := b.guildSettings(ctx, interaction.GuildID)

	roleID := ""
	if opt, ok := options["role"]; ok {
		roleID = opt.RoleValue(nil, "").ID
	}

	switch action {
	case "add", "remove":
		if roleID == "" {
			b.respondEmbed(session, interaction, b.commandEmbed(title, "A role is required.", colorError, nil), true)
			return
		}
		if action == "add" {
			settings.ExemptRoleIDs = addRole(settings.ExemptRoleIDs, roleID)
		} else {
			settings.ExemptRoleIDs = removeRole(settings.ExemptRoleIDs, roleID)
		}
		if err := b.store.UpsertGuildSettings(ctx, settings); err != nil {
			b.commandFailed(session, interaction, title, "update exempt roles", err)
			return
		}
		b.audit.Log(ctx, audit.LevelInfo, interaction.GuildID, userID, "exempt_role_"+action, roleID)
		b.respondEmbed(session, interaction, b.commandEmbed(title, "Exempt roles updated.", colorAction, roleFields(settings.ExemptRoleIDs)), true)
	case "list":
		if len(settings.ExemptRoleIDs) == 0 {
			b.respondEmbed(session, interaction, b.commandEmbed(title, "No exempt roles for this server.", colorWarning, nil), true)
			return
		}
		b.respondEmbed(session, interaction, b.commandEmbed(title, "", colorAction, roleFields(settings.ExemptRoleIDs)), true)
	default:
		b.respondEmbed(session, interaction, b.commandEmbed(title, "Unknown action.", colorError, nil), true)
	}
}

func (b *Bot) handleRaidModeCommand(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, userID, action string) {
	const title = "Raid mode"
	guildID := interaction.GuildID

	switch action {
	case "status":
		active := b.engine.RaidModeActive(guildID)
		fields := []*discordgo.MessageEmbedField{{Name: "Active", Value: fmt.Sprintf("%t", active), Inline: true}}
		b.respondEmbed(session, interaction, b.commandEmbed(title, "", colorAction, fields), true)
	case "end":
		if !b.engine.RaidModeActive(guildID) {
			b.respondEmbed(session, interaction, b.commandEmbed(title, "Raid mode is not active.", colorWarning, nil), true)
			return
		}
		b.engine.EndRaidMode(guildID)
		b.audit.Log(ctx, audit.LevelWarn, guildID, userID, "raid_mode", "raid mode ended manually")
		b.respondEmbed(session, interaction, b.commandEmbed(title, "Raid mode ended.", colorAction, nil), true)
	default:
		b.respondEmbed(session, interaction, b.commandEmbed(title, "Unknown action.", colorError, nil), true)
	}
}

func (b *Bot) handleThreatsCommand(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options commandOptions) {
	const title = "Recent threats"
	hours := options.getInt("hours", 24)
	if hours <= 0 {
		hours = 24
	}
	since := time.Now().Add(-time.Duration(hours) * time.Hour)

	report, err := b.analytics.Report(ctx, interaction.GuildID, since, topOffenderCount)
	if err != nil {
		b.commandFailed(session, interaction, title, "build threat report", err)
		return
	}
	if report.Total == 0 {
		b.respondEmbed(session, interaction, b.commandEmbed(title, fmt.Sprintf("No threats in the last %dh.", hours), colorAction, nil), true)
		return
	}
	logs, err := b.store.ListThreatLogs(ctx, interaction.GuildID, since, recentThreatLimit)
	if err != nil {
		b.commandFailed(session, interaction, title, "list threat logs", err)
		return
	}

	fields := reportFields(report)
	lines := make([]string, 0, len(logs))
	for _, entry := range logs {
		lines = append(lines, fmt.Sprintf("<t:%d:R> %s <@%s> %.2f %s", entry.CreatedAt.Unix(), entry.ThreatType, entry.UserID, entry.Severity, entry.ActionTaken))
	}
	fields = append(fields, &discordgo.MessageEmbedField{Name: "Latest", Value: truncateField(strings.Join(lines, "\n"))})
	b.respondEmbed(session, interaction, b.commandEmbed(title, fmt.Sprintf("%d threats in the last %dh", report.Total, hours), colorAction, fields), true)
}

func reportFields(report analytics.Report) []*discordgo.MessageEmbedField {
	types := make([]string, 0, len(report.ByType))
	for kind := range report.ByType {
		types = append(types, kind)
	}
	sort.Strings(types)
	byType := make([]string, 0, len(types))
	for _, kind := range types {
		byType = append(byType, fmt.Sprintf("%s: %d", kind, report.ByType[kind]))
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "By type", Value: strings.Join(byType, "\n"), Inline: true},
		{Name: "Max severity", Value: fmt.Sprintf("%.2f", report.MaxSeverity), Inline: true},
	}
	if len(report.TopOffenders) > 0 {
		offenders := make([]string, 0, len(report.TopOffenders))
		for _, o := range report.TopOffenders {
			offenders = append(offenders, fmt.Sprintf("<@%s> (%d)", o.UserID, o.Count))
		}
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Top offenders", Value: strings.Join(offenders, "\n"), Inline: true})
	}
	return fields
}

func (b *Bot) commandFailed(session *discordgo.Session, interaction *discordgo.InteractionCreate, title, op string, err error) {
	b.logger.Warn("command failed", zap.String("op", op), zap.String("guild_id", interaction.GuildID), zap.Error(err))
	b.respondEmbed(session, interaction, b.commandEmbed(title, "Could not "+op+".", colorError, nil), true)
}

func addRole(roles []string, roleID string) []string {
	for _, id := range roles {
		if id == roleID {
			return roles
		}
	}
	return append(roles, roleID)
}

func removeRole(roles []string, roleID string) []string {
	out := make([]string, 0, len(roles))
	for _, id := range roles {
		if id != roleID {
			out = append(out, id)
		}
	}
	return out
}

func roleFields(roles []string) []*discordgo.MessageEmbedField {
	mentions := make([]string, 0, len(roles))
	for _, id := range roles {
		mentions = append(mentions, "<@&"+id+">")
	}
	if len(mentions) == 0 {
		return nil
	}
	return []*discordgo.MessageEmbedField{{Name: "Roles", Value: truncateField(strings.Join(mentions, " "))}}
}

func truncateField(value string) string {
	if len(value) <= 1024 {
		return value
	}
	cut := strings.LastIndex(value[:1020], "\n")
	if cut <= 0 {
		cut = 1020
	}
	return value[:cut] + "\n..."
}

package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"sentinel-guard/internal/analytics"
	"sentinel-guard/internal/config"
	"sentinel-guard/internal/detection"
	"sentinel-guard/internal/modules/audit"
	"sentinel-guard/internal/storage"
	"sentinel-guard/internal/threat"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const eventTimeout = 10 * time.Second

type Bot struct {
	cfg       config.Config
	logger    *zap.Logger
	store     *storage.Store
	audit     *audit.Logger
	engine    *detection.Engine
	analytics *analytics.Service
	session   *discordgo.Session
}

func New(cfg config.Config, logger *zap.Logger, store *storage.Store, auditLogger *audit.Logger, engine *detection.Engine) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsMessageContent

	b := &Bot{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		audit:     auditLogger,
		engine:    engine,
		analytics: analytics.New(store),
		session:   session,
	}
	if b.audit != nil {
		b.audit.SetNotifier(b.notifyThreat)
	}
	return b, nil
}

func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onMessageUpdate)
	b.session.AddHandler(b.onGuildMemberAdd)
	b.session.AddHandler(b.onInteractionCreate)

	if err := b.session.Open(); err != nil {
		return err
	}

	return b.registerCommands()
}

func (b *Bot) Close() {
	if b.session != nil {
		_ = b.session.Close()
	}
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("discord ready", zap.String("user", event.User.Username), zap.Int("guilds", len(event.Guilds)))
}

func (b *Bot) onMessageCreate(session *discordgo.Session, msg *discordgo.MessageCreate) {
	b.handleMessage(msg.Message, false)
}

func (b *Bot) onMessageUpdate(session *discordgo.Session, msg *discordgo.MessageUpdate) {
	if msg.Message == nil || msg.Content == "" {
		return
	}
	b.handleMessage(msg.Message, true)
}

func (b *Bot) handleMessage(msg *discordgo.Message, edited bool) {
	if msg.Author == nil || msg.Author.Bot || msg.GuildID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	settings := b.guildSettings(ctx, msg.GuildID)
	event := detection.MessageEvent{
		Message:       messageFromDiscord(msg),
		Author:        memberFromDiscord(b.guild(msg.GuildID), msg.GuildID, msg.Author, msg.Member),
		Edited:        edited,
		ExemptRoleIDs: settings.ExemptRoleIDs,
	}

	res := b.engine.EvaluateMessage(ctx, event)
	if !res.Detected {
		return
	}

	record := threatLogFor(res, event.Message.GuildID, event.Message.AuthorID)
	record.MessageID = event.Message.ID
	record.ChannelID = event.Message.ChannelID
	record.MessageContent = event.Message.Content
	b.audit.Threat(record)

	b.enforce(ctx, settings, res, target{
		guildID:   msg.GuildID,
		userID:    msg.Author.ID,
		channelID: msg.ChannelID,
		messageID: msg.ID,
	})
}

func (b *Bot) onGuildMemberAdd(session *discordgo.Session, event *discordgo.GuildMemberAdd) {
	if event.Member == nil || event.User == nil || event.GuildID == "" || event.User.Bot {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	member := memberFromDiscord(b.guild(event.GuildID), event.GuildID, event.User, event.Member)
	res := b.engine.EvaluateJoin(ctx, member)
	if !res.Detected {
		return
	}
	b.audit.Threat(threatLogFor(res, event.GuildID, member.ID))

	if res.Type == threat.Raid {
		if activated, _ := res.Details["activated"].(bool); activated {
			b.audit.Log(ctx, audit.LevelCrit, event.GuildID, "", "raid_mode", fmt.Sprintf("raid mode activated joins=%v", res.Details["join_count"]))
		}
	}

	b.enforce(ctx, b.guildSettings(ctx, event.GuildID), res, target{guildID: event.GuildID, userID: member.ID})
}

func (b *Bot) guild(guildID string) *discordgo.Guild {
	guild, err := b.session.State.Guild(guildID)
	if err == nil && guild != nil {
		return guild
	}
	guild, err = b.session.Guild(guildID)
	if err != nil {
		b.logger.Warn("guild lookup failed", zap.String("guild_id", guildID), zap.Error(err))
		return nil
	}
	return guild
}

func threatLogFor(res threat.Result, guildID, userID string) storage.ThreatLog {
	return storage.ThreatLog{
		GuildID:     guildID,
		UserID:      userID,
		ThreatType:  string(res.Type),
		Severity:    res.Severity,
		ActionTaken: string(res.Action),
		Metadata:    res.Details,
		CreatedAt:   time.Now(),
	}
}

func (b *Bot) notifyThreat(ctx context.Context, record storage.ThreatLog) {
	b.sendSecurityEmbed(ctx, record.GuildID, b.threatEmbed(record))
}

func (b *Bot) threatEmbed(record storage.ThreatLog) *discordgo.MessageEmbed {
	fields := []*discordgo.MessageEmbedField{
		{Name: "User", Value: "<@" + record.UserID + ">", Inline: true},
		{Name: "Severity", Value: fmt.Sprintf("%.2f", record.Severity), Inline: true},
		{Name: "Action", Value: record.ActionTaken, Inline: true},
	}
	if record.ChannelID != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Channel", Value: "<#" + record.ChannelID + ">", Inline: true})
	}
	if count, ok := record.Metadata["infraction_count"]; ok {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Infractions", Value: fmt.Sprint(count), Inline: true})
	}
	if details := formatDetails(record.Metadata); details != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Details", Value: details})
	}
	return b.commandEmbed("Threat detected: "+record.ThreatType, "", b.cfg.Actions.SecurityEmbedColor, fields)
}

// formatDetails renders metadata as sorted key=value lines.
func formatDetails(meta map[string]any) string {
	if len(meta) == 0 {
		return ""
	}
	keys := make([]string, 0, len(meta))
	for key := range meta {
		if key == "infraction_count" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, fmt.Sprintf("%s=%v", key, meta[key]))
	}
	return truncateField(strings.Join(lines, "\n"))
}

func (b *Bot) sendSecurityEmbed(ctx context.Context, guildID string, embed *discordgo.MessageEmbed) {
	settings := b.guildSettings(ctx, guildID)
	channelID := settings.SecurityLogChannel
	if channelID == "" {
		channelID = b.cfg.DefaultSecurityLogChannel
	}
	if channelID == "" || embed == nil {
		return
	}
	if _, err := b.session.ChannelMessageSendEmbed(channelID, embed); err != nil {
		b.logger.Warn("security embed failed", zap.String("guild_id", guildID), zap.Error(err))
	}
}

func (b *Bot) guildSettings(ctx context.Context, guildID string) storage.GuildSettings {
	defaults := storage.GuildSettings{
		GuildID:            guildID,
		SecurityLogChannel: b.cfg.DefaultSecurityLogChannel,
		Mode:               b.cfg.Mode,
	}

	settings, err := b.store.GetGuildSettings(ctx, guildID, defaults)
	if err != nil {
		b.logger.Warn("guild settings fallback", zap.Error(err))
		return defaults
	}
	return settings
}

func (b *Bot) respond(session *discordgo.Session, interaction *discordgo.InteractionCreate, content string, ephemeral bool) {
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	_ = session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   flags,
		},
	})
}

func (b *Bot) respondEmbed(session *discordgo.Session, interaction *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, ephemeral bool) {
	if embed == nil {
		b.respond(session, interaction, "No response available.", ephemeral)
		return
	}
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	_ = session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  flags,
		},
	})
}

func (b *Bot) commandEmbed(title, description string, color int, fields []*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields:      fields,
	}
}

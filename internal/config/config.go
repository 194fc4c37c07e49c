package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DiscordToken              string          `yaml:"discord_token"`
	LogLevel                  string          `yaml:"log_level"`
	DefaultSecurityLogChannel string          `yaml:"default_security_log_channel"`
	RetentionDays             int             `yaml:"retention_days"`
	RulePreset                string          `yaml:"rule_preset"`
	Mode                      string          `yaml:"mode"`
	Storage                   StorageConfig   `yaml:"storage"`
	Health                    HealthConfig    `yaml:"health"`
	Actions                   ActionConfig    `yaml:"actions"`
	Audit                     AuditConfig     `yaml:"audit"`
	Detection                 DetectionConfig `yaml:"detection"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Metrics bool   `yaml:"metrics"`
}

type ActionConfig struct {
	Enabled            bool `yaml:"enabled"`
	TimeoutMinutes     int  `yaml:"timeout_minutes"`
	DMWarnEnabled      bool `yaml:"dm_warn_enabled"`
	ForgiveAfterHours  int  `yaml:"forgive_after_hours"`
	DeleteMessageDays  int  `yaml:"delete_message_days"`
	SecurityEmbedColor int  `yaml:"security_embed_color"`
}

type AuditConfig struct {
	QueueSize    int  `yaml:"queue_size"`
	StoreContent bool `yaml:"store_content"`
}

type DetectionConfig struct {
	ExemptRoleIDs    []string      `yaml:"exempt_role_ids"`
	WindowTTLMinutes int           `yaml:"window_ttl_minutes"`
	WindowCacheSize  int           `yaml:"window_cache_size"`
	Spam             SpamConfig    `yaml:"spam"`
	Mention          MentionConfig `yaml:"mention"`
	Raid             RaidConfig    `yaml:"raid"`
	Account          AccountConfig `yaml:"account"`
	Scam             ScamConfig    `yaml:"scam"`
	Toxic            ToxicConfig   `yaml:"toxic"`
}

type SpamConfig struct {
	Enabled              bool    `yaml:"enabled"`
	MaxMessagesPerWindow int     `yaml:"max_messages_per_window"`
	WindowSeconds        int     `yaml:"window_seconds"`
	DuplicateThreshold   float64 `yaml:"duplicate_threshold"`
	MaxTracked           int     `yaml:"max_tracked"`
	Action               string  `yaml:"action"`
}

type MentionConfig struct {
	Enabled               bool   `yaml:"enabled"`
	MaxMentionsPerMessage int    `yaml:"max_mentions_per_message"`
	MaxMentionsPerWindow  int    `yaml:"max_mentions_per_window"`
	WindowSeconds         int    `yaml:"window_seconds"`
	Action                string `yaml:"action"`
}

type RaidConfig struct {
	Enabled           bool   `yaml:"enabled"`
	MaxJoinsPerWindow int    `yaml:"max_joins_per_window"`
	WindowSeconds     int    `yaml:"window_seconds"`
	NewAccountDays    int    `yaml:"new_account_days"`
	RaidModeMinutes   int    `yaml:"raid_mode_minutes"`
	Action            string `yaml:"action"`
}

type AccountConfig struct {
	MinAccountAgeDays      int      `yaml:"min_account_age_days"`
	FlagDefaultAvatar      bool     `yaml:"flag_default_avatar"`
	SuspiciousNamePatterns []string `yaml:"suspicious_name_patterns"`
}

// Enabled reports whether any account sub-check is switched on.
func (c AccountConfig) Enabled() bool {
	return c.MinAccountAgeDays > 0 || c.FlagDefaultAvatar || len(c.SuspiciousNamePatterns) > 0
}

type ScamConfig struct {
	Enabled            bool     `yaml:"enabled"`
	UseExternalAPI     bool     `yaml:"use_external_api"`
	ExternalAPIURL     string   `yaml:"external_api_url"`
	ExternalTimeoutMS  int      `yaml:"external_timeout_ms"`
	ExternalRatePerSec float64  `yaml:"external_rate_per_sec"`
	BlockShorteners    bool     `yaml:"block_shorteners"`
	ExtraSafeDomains   []string `yaml:"extra_safe_domains"`
	ExtraPatterns      []string `yaml:"extra_patterns"`
	RegistryTTLSeconds int      `yaml:"registry_ttl_seconds"`
	CheckDomainAge     bool     `yaml:"check_domain_age"`
	NewDomainDays      int      `yaml:"new_domain_days"`
	WhoisTimeoutMS     int      `yaml:"whois_timeout_ms"`
}

type ToxicConfig struct {
	Enabled         bool `yaml:"enabled"`
	DetectBypasses  bool `yaml:"detect_bypasses"`
	CacheTTLSeconds int  `yaml:"cache_ttl_seconds"`
}

func DefaultConfig() Config {
	return Config{
		LogLevel:                  "info",
		RetentionDays:             30,
		RulePreset:                "medium",
		Mode:                      "normal",
		DefaultSecurityLogChannel: "",
		Storage:                   StorageConfig{Driver: "sqlite", DSN: "/data/sentinel.db"},
		Health:                    HealthConfig{Enabled: false, Addr: ":8080", Metrics: true},
		Actions: ActionConfig{
			Enabled:            false,
			TimeoutMinutes:     10,
			DMWarnEnabled:      true,
			ForgiveAfterHours:  72,
			DeleteMessageDays:  0,
			SecurityEmbedColor: 0xEF4444,
		},
		Audit: AuditConfig{QueueSize: 1024, StoreContent: true},
		Detection: DetectionConfig{
			WindowTTLMinutes: 10,
			WindowCacheSize:  50000,
			Spam: SpamConfig{
				Enabled:              true,
				MaxMessagesPerWindow: 5,
				WindowSeconds:        5,
				DuplicateThreshold:   0.85,
				MaxTracked:           50,
				Action:               "delete",
			},
			Mention: MentionConfig{
				Enabled:               true,
				MaxMentionsPerMessage: 5,
				MaxMentionsPerWindow:  10,
				WindowSeconds:         30,
				Action:                "delete",
			},
			Raid: RaidConfig{
				Enabled:           true,
				MaxJoinsPerWindow: 10,
				WindowSeconds:     10,
				NewAccountDays:    7,
				RaidModeMinutes:   10,
				Action:            "alert",
			},
			Account: AccountConfig{
				MinAccountAgeDays: 7,
				FlagDefaultAvatar: true,
				SuspiciousNamePatterns: []string{
					`^[a-z]+[0-9]{4,}$`,
					`(free|nitro|gift).*(nitro|steam|giveaway)`,
					`^[a-z0-9]{20,}$`,
					`d[i1l]sc[o0]rd[\s._-]*(mod|admin|staff|support)`,
				},
			},
			Scam: ScamConfig{
				Enabled:            true,
				UseExternalAPI:     false,
				ExternalTimeoutMS:  3000,
				ExternalRatePerSec: 5,
				BlockShorteners:    false,
				RegistryTTLSeconds: 300,
				CheckDomainAge:     false,
				NewDomainDays:      14,
				WhoisTimeoutMS:     5000,
			},
			Toxic: ToxicConfig{
				Enabled:         true,
				DetectBypasses:  true,
				CacheTTLSeconds: 60,
			},
		},
	}
}

func Load() (Config, error) {
	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	if cfg.DiscordToken == "" {
		return Config{}, errors.New("DISCORD_TOKEN is required")
	}

	cfg.Mode = NormalizeMode(cfg.Mode)
	cfg.RulePreset = normalizePreset(cfg.RulePreset)
	cfg.Storage.Driver = normalizeDriver(cfg.Storage.Driver)
	applyPreset(&cfg)

	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.DefaultSecurityLogChannel = envString("DEFAULT_SECURITY_LOG_CHANNEL", cfg.DefaultSecurityLogChannel)
	cfg.RetentionDays = envInt("RETENTION_DAYS", cfg.RetentionDays)
	cfg.RulePreset = envString("RULE_PRESET", cfg.RulePreset)
	cfg.Mode = envString("MODE", cfg.Mode)
	cfg.Storage.Driver = envString("STORAGE_DRIVER", cfg.Storage.Driver)
	cfg.Storage.DSN = envString("DATABASE_DSN", envString("DATABASE_PATH", cfg.Storage.DSN))
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Addr = envString("HEALTH_ADDR", cfg.Health.Addr)
	cfg.Health.Metrics = envBool("METRICS_ENABLED", cfg.Health.Metrics)
	cfg.Actions.Enabled = envBool("ACTIONS_ENABLED", cfg.Actions.Enabled)
	cfg.Actions.TimeoutMinutes = envInt("ACTIONS_TIMEOUT_MINUTES", cfg.Actions.TimeoutMinutes)
	cfg.Actions.DMWarnEnabled = envBool("DM_WARN_ENABLED", cfg.Actions.DMWarnEnabled)
	cfg.Detection.ExemptRoleIDs = envList("EXEMPT_ROLE_IDS", cfg.Detection.ExemptRoleIDs)
	cfg.Detection.Spam.MaxMessagesPerWindow = envInt("SPAM_MESSAGES", cfg.Detection.Spam.MaxMessagesPerWindow)
	cfg.Detection.Spam.WindowSeconds = envInt("SPAM_WINDOW_SECONDS", cfg.Detection.Spam.WindowSeconds)
	cfg.Detection.Spam.DuplicateThreshold = envFloat("SPAM_DUPLICATE_THRESHOLD", cfg.Detection.Spam.DuplicateThreshold)
	cfg.Detection.Mention.MaxMentionsPerMessage = envInt("MENTION_MAX_PER_MESSAGE", cfg.Detection.Mention.MaxMentionsPerMessage)
	cfg.Detection.Mention.MaxMentionsPerWindow = envInt("MENTION_MAX_PER_WINDOW", cfg.Detection.Mention.MaxMentionsPerWindow)
	cfg.Detection.Raid.MaxJoinsPerWindow = envInt("RAID_JOINS", cfg.Detection.Raid.MaxJoinsPerWindow)
	cfg.Detection.Raid.WindowSeconds = envInt("RAID_WINDOW_SECONDS", cfg.Detection.Raid.WindowSeconds)
	cfg.Detection.Raid.RaidModeMinutes = envInt("RAID_MODE_MINUTES", cfg.Detection.Raid.RaidModeMinutes)
	cfg.Detection.Raid.Action = envString("RAID_ACTION", cfg.Detection.Raid.Action)
	cfg.Detection.Scam.UseExternalAPI = envBool("SCAM_EXTERNAL_API", cfg.Detection.Scam.UseExternalAPI)
	cfg.Detection.Scam.ExternalAPIURL = envString("SCAM_EXTERNAL_API_URL", cfg.Detection.Scam.ExternalAPIURL)
	cfg.Detection.Scam.BlockShorteners = envBool("SCAM_BLOCK_SHORTENERS", cfg.Detection.Scam.BlockShorteners)
	cfg.Detection.Scam.CheckDomainAge = envBool("SCAM_CHECK_DOMAIN_AGE", cfg.Detection.Scam.CheckDomainAge)
	cfg.Detection.Scam.NewDomainDays = envInt("SCAM_NEW_DOMAIN_DAYS", cfg.Detection.Scam.NewDomainDays)
	cfg.Detection.Toxic.DetectBypasses = envBool("TOXIC_DETECT_BYPASSES", cfg.Detection.Toxic.DetectBypasses)
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(strings.ToLower(level)))

	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// NormalizeMode maps any value other than "audit" to "normal".
func NormalizeMode(value string) string {
	switch strings.ToLower(value) {
	case "audit":
		return "audit"
	default:
		return "normal"
	}
}

func normalizePreset(value string) string {
	switch strings.ToLower(value) {
	case "low", "medium", "high":
		return strings.ToLower(value)
	default:
		return "medium"
	}
}

func normalizeDriver(value string) string {
	switch strings.ToLower(value) {
	case "postgres", "postgresql", "pgx":
		return "postgres"
	default:
		return "sqlite"
	}
}

// applyPreset tightens or loosens the rate thresholds. Explicit per-detector
// settings that differ from the defaults are left alone.
func applyPreset(cfg *Config) {
	defaults := DefaultConfig().Detection
	det := &cfg.Detection

	switch cfg.RulePreset {
	case "low":
		if det.Spam.MaxMessagesPerWindow == defaults.Spam.MaxMessagesPerWindow {
			det.Spam.MaxMessagesPerWindow = 8
		}
		if det.Mention.MaxMentionsPerMessage == defaults.Mention.MaxMentionsPerMessage {
			det.Mention.MaxMentionsPerMessage = 8
		}
		if det.Raid.MaxJoinsPerWindow == defaults.Raid.MaxJoinsPerWindow {
			det.Raid.MaxJoinsPerWindow = 15
		}
		if det.Spam.DuplicateThreshold == defaults.Spam.DuplicateThreshold {
			det.Spam.DuplicateThreshold = 0.95
		}
	case "high":
		if det.Spam.MaxMessagesPerWindow == defaults.Spam.MaxMessagesPerWindow {
			det.Spam.MaxMessagesPerWindow = 4
		}
		if det.Mention.MaxMentionsPerMessage == defaults.Mention.MaxMentionsPerMessage {
			det.Mention.MaxMentionsPerMessage = 3
		}
		if det.Raid.MaxJoinsPerWindow == defaults.Raid.MaxJoinsPerWindow {
			det.Raid.MaxJoinsPerWindow = 6
		}
		if det.Spam.DuplicateThreshold == defaults.Spam.DuplicateThreshold {
			det.Spam.DuplicateThreshold = 0.75
		}
		det.Scam.BlockShorteners = true
	}
}

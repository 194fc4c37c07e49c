package bot

import (
	"strings"
	"testing"

	"sentinel-guard/internal/analytics"
	"sentinel-guard/internal/config"
	"sentinel-guard/internal/storage"
	"sentinel-guard/internal/threat"

	"github.com/bwmarrin/discordgo"
)

func TestEnforcementFor(t *testing.T) {
	cases := []struct {
		name    string
		mode    string
		enabled bool
		action  threat.Action
		want    enforcement
	}{
		{"flagged never acts", "normal", true, threat.Flagged, enforceNone},
		{"audit mode simulates", "audit", true, threat.Deleted, enforceSimulated},
		{"audit mode wins over disabled", "audit", false, threat.Banned, enforceSimulated},
		{"disabled", "normal", false, threat.Muted, enforceDisabled},
		{"applied", "normal", true, threat.Kicked, enforceApply},
	}
	for _, tc := range cases {
		if got := enforcementFor(tc.mode, tc.enabled, tc.action); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestThreatLogFor(t *testing.T) {
	res := threat.Result{
		Detected: true,
		Type:     threat.ScamLink,
		Severity: 0.9,
		Action:   threat.Deleted,
		Details:  map[string]any{"match_reason": "pattern"},
	}
	record := threatLogFor(res, "g1", "u1")
	if record.ThreatType != "SCAM_LINK" || record.ActionTaken != "DELETED" || record.Severity != 0.9 {
		t.Fatalf("unexpected record %+v", record)
	}
	if record.Metadata["match_reason"] != "pattern" || record.CreatedAt.IsZero() {
		t.Fatalf("expected details and timestamp, got %+v", record)
	}
}

func TestThreatEmbed(t *testing.T) {
	b := &Bot{cfg: config.DefaultConfig()}
	embed := b.threatEmbed(storage.ThreatLog{
		GuildID:     "g1",
		UserID:      "u1",
		ChannelID:   "c1",
		ThreatType:  "SPAM",
		Severity:    0.75,
		ActionTaken: "DELETED",
		Metadata:    map[string]any{"message_count": 6, "infraction_count": 3},
	})

	if embed.Title != "Threat detected: SPAM" {
		t.Fatalf("unexpected title %q", embed.Title)
	}
	values := map[string]string{}
	for _, field := range embed.Fields {
		values[field.Name] = field.Value
	}
	if values["User"] != "<@u1>" || values["Channel"] != "<#c1>" || values["Severity"] != "0.75" {
		t.Fatalf("unexpected fields %+v", values)
	}
	if values["Infractions"] != "3" {
		t.Fatalf("expected infraction count field, got %+v", values)
	}
	if values["Details"] != "message_count=6" {
		t.Fatalf("expected details without infraction count, got %q", values["Details"])
	}
}

func TestFormatDetailsSortedAndTruncated(t *testing.T) {
	got := formatDetails(map[string]any{"b": 2, "a": 1})
	if got != "a=1\nb=2" {
		t.Fatalf("unexpected details %q", got)
	}
	if formatDetails(nil) != "" {
		t.Fatalf("expected empty details")
	}

	long := formatDetails(map[string]any{"text": strings.Repeat("x", 2000)})
	if len(long) > 1024 {
		t.Fatalf("expected truncation, got %d bytes", len(long))
	}
}

func TestSubcommand(t *testing.T) {
	options := []*discordgo.ApplicationCommandInteractionDataOption{
		{
			Name: "add",
			Type: discordgo.ApplicationCommandOptionSubCommand,
			Options: []*discordgo.ApplicationCommandInteractionDataOption{
				{Name: "word", Type: discordgo.ApplicationCommandOptionString, Value: "  Spam "},
			},
		},
	}
	name, opts := subcommand(options)
	if name != "add" {
		t.Fatalf("expected add, got %q", name)
	}
	if opts.getString("word") != "Spam" {
		t.Fatalf("expected trimmed word, got %q", opts.getString("word"))
	}
	if opts.getString("category") != "" {
		t.Fatalf("missing option must be empty")
	}

	flat := []*discordgo.ApplicationCommandInteractionDataOption{
		{Name: "hours", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(6)},
	}
	name, opts = subcommand(flat)
	if name != "" || opts.getInt("hours", 24) != 6 || opts.getInt("missing", 24) != 24 {
		t.Fatalf("unexpected flat options %q %+v", name, opts)
	}
}

func TestRoleHelpers(t *testing.T) {
	roles := addRole(nil, "r1")
	roles = addRole(roles, "r2")
	roles = addRole(roles, "r1")
	if len(roles) != 2 {
		t.Fatalf("expected no duplicates, got %v", roles)
	}
	roles = removeRole(roles, "r1")
	if len(roles) != 1 || roles[0] != "r2" {
		t.Fatalf("unexpected roles %v", roles)
	}
	if roleFields(nil) != nil {
		t.Fatalf("expected no fields for empty roles")
	}
}

func TestCommandDefinitions(t *testing.T) {
	seen := map[string]bool{}
	for _, cmd := range commandDefinitions() {
		if seen[cmd.Name] {
			t.Fatalf("duplicate command %s", cmd.Name)
		}
		seen[cmd.Name] = true
		if cmd.DefaultMemberPermissions == nil || *cmd.DefaultMemberPermissions != int64(discordgo.PermissionManageServer) {
			t.Fatalf("command %s must require manage server", cmd.Name)
		}
	}
	for _, name := range []string{"blocklist", "scamdomain", "mode", "logchannel", "exemptrole", "raidmode", "threats", "scan"} {
		if !seen[name] {
			t.Fatalf("missing command %s", name)
		}
	}
}

func TestReportFields(t *testing.T) {
	fields := reportFields(analytics.Report{
		Total:        3,
		ByType:       map[string]int{"SPAM": 2, "RAID": 1},
		MaxSeverity:  0.9,
		TopOffenders: []analytics.Offender{{UserID: "u1", Count: 2}},
	})
	if len(fields) != 3 {
		t.Fatalf("expected 3 fields, got %d", len(fields))
	}
	if fields[0].Value != "RAID: 1\nSPAM: 2" {
		t.Fatalf("unexpected type breakdown %q", fields[0].Value)
	}
	if fields[2].Value != "<@u1> (2)" {
		t.Fatalf("unexpected offenders %q", fields[2].Value)
	}
}

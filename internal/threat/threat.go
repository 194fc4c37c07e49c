// Package threat holds the values exchanged between detectors, the
// orchestrator and the bot: platform-neutral events and detection results.
package threat

import (
	"math"
	"time"
)

type Type string

const (
	Spam              Type = "SPAM"
	Raid              Type = "RAID"
	MentionSpam       Type = "MENTION_SPAM"
	ScamLink          Type = "SCAM_LINK"
	ToxicContent      Type = "TOXIC_CONTENT"
	SuspiciousAccount Type = "SUSPICIOUS_ACCOUNT"
)

type Action string

const (
	Flagged Action = "FLAGGED"
	Deleted Action = "DELETED"
	Warned  Action = "WARNED"
	Muted   Action = "MUTED"
	Kicked  Action = "KICKED"
	Banned  Action = "BANNED"
)

// Result is the verdict of one detector for one event. Details carries
// detector-specific facts (matched words, urls, counts) for the audit trail.
type Result struct {
	Detected bool
	Type     Type
	Severity float64
	Action   Action
	Details  map[string]any
}

// None is the zero verdict returned when nothing was detected.
func None(kind Type) Result {
	return Result{Type: kind, Action: Flagged}
}

// ClampSeverity bounds v to [0,1]; NaN becomes 0.
func ClampSeverity(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

type Mentions struct {
	Users    int
	Roles    int
	Everyone bool
}

// Count returns users + roles, with @everyone/@here counted as one unit.
func (m Mentions) Count() int {
	count := m.Users + m.Roles
	if m.Everyone {
		count++
	}
	return count
}

type Message struct {
	ID        string
	GuildID   string
	ChannelID string
	AuthorID  string
	Content   string
	CreatedAt time.Time
	Mentions  Mentions
}

// Member is a snapshot of a guild member. Elevated is set by the platform
// adapter when the member holds moderator-level permissions.
type Member struct {
	ID               string
	GuildID          string
	Username         string
	AccountCreatedAt time.Time
	AvatarPresent    bool
	Roles            []string
	Elevated         bool
}

package antiphishing

// safeDomains are never flagged, including their subdomains.
var safeDomains = []string{
	"discord.com",
	"discord.gg",
	"discord.gift",
	"discord.media",
	"discord.new",
	"discordapp.com",
	"discordapp.net",
	"discordstatus.com",
	"discord.dev",
	"discord.js.org",
	"discordjs.guide",
	"discordpy.readthedocs.io",
	"discord-api-types.dev",
	"discordbotlist.com",
	"top.gg",
	"github.com",
	"githubusercontent.com",
	"gitlab.com",
	"google.com",
	"youtube.com",
	"youtu.be",
	"twitch.tv",
	"twitter.com",
	"x.com",
	"reddit.com",
	"wikipedia.org",
	"stackoverflow.com",
	"steamcommunity.com",
	"steampowered.com",
	"tenor.com",
	"giphy.com",
	"imgur.com",
	"spotify.com",
	"pkg.go.dev",
	"go.dev",
}

var shortenerDomains = []string{
	"bit.ly",
	"tinyurl.com",
	"t.co",
	"goo.gl",
	"ow.ly",
	"is.gd",
	"buff.ly",
	"cutt.ly",
	"rebrand.ly",
	"shorturl.at",
	"rb.gy",
	"tiny.cc",
	"s.id",
}

// textPatterns are brand-impersonation phrases matched against message text
// with links removed.
var textPatterns = []string{
	`discord[\s._-]*nitro[\s._-]*(giveaway|gift|free|claim)`,
	`free[\s._-]*(discord[\s._-]*)?nitro`,
	`nitro[\s._-]*(giveaway|gift)`,
	`steam[\s._-]*(gift|giveaway)`,
	`(claim|get)[\s._-]*your[\s._-]*(free[\s._-]*)?(nitro|gift|reward)`,
	`\bairdrop\b`,
}

// urlPatterns are scam keywords matched against the full normalized URL.
var urlPatterns = []string{
	`(free|gift|claim)[._/-]*(discord[._-]*)?nitro`,
	`nitro[._/-]*(gift|giveaway|free|claim)`,
	`steam[._/-]*(gift|giveaway|free)`,
	`(airdrop|giveaway)[._/-]*(claim|reward|free)`,
}

// fakeDomainPatterns match typosquats of platform domains. Genuine domains are
// allowlisted and never reach these.
var fakeDomainPatterns = []string{
	`d[il1!|]+[sz]+[ck]+[o0]+r+[dcl]+`,
	`st[e3]+a+m+c+[o0]+m+u+n+[il1!]+t+y`,
	`st[e3]+a+m+p+[o0]+w+[e3]+r+[e3]+d`,
	`(nitro|steam|discord)[a-z0-9-]*\.(gift|gifts|click|xyz|ru|top|icu|shop|site|online|link)$`,
}

// brandSpellings are correct spellings the typosquat patterns also match; a
// host is only fake when the matched text differs from them.
var brandSpellings = map[string]struct{}{
	"discord":        {},
	"steamcommunity": {},
	"steampowered":   {},
}

// platformDomains are impersonated by hosts such as discord.com.verify.ru.
var platformDomains = []string{
	"discord.com",
	"discord.gg",
	"discord.gift",
	"discordapp.com",
	"steamcommunity.com",
	"steampowered.com",
}

var registrySeverity = map[string]float64{
	"phishing": 1.0,
	"malware":  0.95,
	"scam":     0.9,
	"other":    0.7,
}

const (
	patternSeverity    = 0.9
	fakeDomainSeverity = 0.95
	shortenerSeverity  = 0.5
	newDomainSeverity  = 0.6
	externalSeverity   = 0.85
)

// RegistrySeverity weighs a registry category; phishing ranks highest.
func RegistrySeverity(category string) float64 {
	if severity, ok := registrySeverity[category]; ok {
		return severity
	}
	return registrySeverity["other"]
}

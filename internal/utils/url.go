package utils

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/idna"
)

var urlRegex = regexp.MustCompile(`(?i)https?://[^\s<>"'` + "`" + `]+`)

var trackingParams = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "fbclid", "gclid"}

// ExtractURLs returns every http(s) URL in content, in order of appearance, with
// trailing sentence punctuation removed.
func ExtractURLs(content string) []string {
	matches := urlRegex.FindAllString(content, -1)
	out := matches[:0]
	for _, match := range matches {
		match = strings.TrimRight(match, ".,;:!?)]}>*_~|")
		if match != "" {
			out = append(out, match)
		}
	}
	return out
}

// StripURLs removes every http(s) URL from content.
func StripURLs(content string) string {
	return urlRegex.ReplaceAllString(content, " ")
}

func NormalizeURL(raw string) (string, string, error) {
	if !strings.HasPrefix(strings.ToLower(raw), "http://") && !strings.HasPrefix(strings.ToLower(raw), "https://") {
		raw = "https://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}

	host := strings.TrimSuffix(strings.ToLower(parsed.Hostname()), ".")
	asciiHost, err := idna.ToASCII(host)
	if err == nil {
		host = asciiHost
	}

	parsed.Host = host
	parsed.Fragment = ""
	parsed.User = nil

	query := parsed.Query()
	for _, key := range trackingParams {
		query.Del(key)
	}
	parsed.RawQuery = normalizeQuery(query)

	return parsed.String(), host, nil
}

func normalizeQuery(values url.Values) string {
	if len(values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	clean := url.Values{}
	for _, key := range keys {
		clean[key] = values[key]
	}
	return clean.Encode()
}

// DomainSet builds a lookup set of lowercased domains.
func DomainSet(domains ...[]string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, list := range domains {
		for _, domain := range list {
			domain = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
			if domain != "" {
				set[domain] = struct{}{}
			}
		}
	}
	return set
}

// DomainMatch reports whether host equals a domain in set or is a subdomain of one.
func DomainMatch(host string, set map[string]struct{}) bool {
	host = strings.ToLower(host)
	for _, candidate := range ParentDomains(host) {
		if _, ok := set[candidate]; ok {
			return true
		}
	}
	return false
}

// ParentDomains lists host followed by each parent domain down to two labels,
// e.g. a.b.example.com -> [a.b.example.com b.example.com example.com].
func ParentDomains(host string) []string {
	host = strings.Trim(host, ".")
	if host == "" {
		return nil
	}
	out := []string{host}
	for {
		idx := strings.IndexByte(host, '.')
		if idx < 0 {
			break
		}
		rest := host[idx+1:]
		if !strings.Contains(rest, ".") {
			break
		}
		out = append(out, rest)
		host = rest
	}
	return out
}

package utils

import (
	"reflect"
	"testing"
)

func TestNormalizeURL(t *testing.T) {
	normalized, domain, err := NormalizeURL("https://Example.com/path?utm_source=test&x=1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if domain != "example.com" {
		t.Fatalf("unexpected domain: %s", domain)
	}
	if normalized != "https://example.com/path?x=1" {
		t.Fatalf("unexpected normalized url: %s", normalized)
	}
}

func TestNormalizeURLPunycode(t *testing.T) {
	_, domain, err := NormalizeURL("https://dіscord.com/gift")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if domain == "discord.com" {
		t.Fatalf("homoglyph host must not collapse to the real domain")
	}
	if domain[:4] != "xn--" {
		t.Fatalf("expected punycode host, got %s", domain)
	}
}

func TestExtractURLs(t *testing.T) {
	urls := ExtractURLs("see https://a.com/x, and (http://b.org/y). also ftp://c.net")
	want := []string{"https://a.com/x", "http://b.org/y"}
	if !reflect.DeepEqual(urls, want) {
		t.Fatalf("unexpected urls: %v", urls)
	}
}

func TestDomainMatch(t *testing.T) {
	set := DomainSet([]string{"discord.com", "GitHub.com"})
	if !DomainMatch("discord.com", set) {
		t.Fatalf("expected exact match")
	}
	if !DomainMatch("cdn.discord.com", set) {
		t.Fatalf("expected subdomain match")
	}
	if !DomainMatch("github.com", set) {
		t.Fatalf("expected case-insensitive match")
	}
	if DomainMatch("discord.com.evil.net", set) {
		t.Fatalf("suffix trick must not match")
	}
	if DomainMatch("notdiscord.com", set) {
		t.Fatalf("label prefix must not match")
	}
}

func TestParentDomains(t *testing.T) {
	got := ParentDomains("a.b.example.com")
	want := []string{"a.b.example.com", "b.example.com", "example.com"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected parents: %v", got)
	}
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// GlobalGuild is the guild id under which entries apply to every guild.
const GlobalGuild = ""

type BlockedWord struct {
	GuildID   string
	Word      string
	Category  string
	CreatedAt time.Time
}

type ScamDomain struct {
	Domain    string
	Category  string
	AddedBy   string
	CreatedAt time.Time
}

func (s *Store) AddBlockedWord(ctx context.Context, word BlockedWord) error {
	value := strings.ToLower(strings.TrimSpace(word.Word))
	if value == "" {
		return errors.New("blocked word is empty")
	}
	category := strings.ToLower(strings.TrimSpace(word.Category))
	if category == "" {
		category = "other"
	}
	_, err := s.exec(ctx, `
		INSERT INTO blocked_words (guild_id, word, category, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(guild_id, word) DO UPDATE SET category = excluded.category
	`, word.GuildID, value, category, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("add blocked word: %w", err)
	}
	return nil
}

// RemoveBlockedWord reports whether a row was deleted.
func (s *Store) RemoveBlockedWord(ctx context.Context, guildID, word string) (bool, error) {
	res, err := s.exec(ctx, `DELETE FROM blocked_words WHERE guild_id = ? AND word = ?`, guildID, strings.ToLower(strings.TrimSpace(word)))
	if err != nil {
		return false, fmt.Errorf("remove blocked word: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListBlockedWords returns the guild's words followed by the global ones.
func (s *Store) ListBlockedWords(ctx context.Context, guildID string) ([]BlockedWord, error) {
	rows, err := s.query(ctx, `
		SELECT guild_id, word, category, created_at
		FROM blocked_words
		WHERE guild_id = ? OR guild_id = ?
		ORDER BY guild_id DESC, word
	`, guildID, GlobalGuild)
	if err != nil {
		return nil, fmt.Errorf("list blocked words: %w", err)
	}
	defer rows.Close()

	var words []BlockedWord
	for rows.Next() {
		var word BlockedWord
		var created int64
		if err := rows.Scan(&word.GuildID, &word.Word, &word.Category, &created); err != nil {
			return nil, err
		}
		word.CreatedAt = time.Unix(created, 0)
		words = append(words, word)
	}
	return words, rows.Err()
}

func (s *Store) AddScamDomain(ctx context.Context, domain ScamDomain) error {
	value := normalizeDomain(domain.Domain)
	if value == "" {
		return errors.New("scam domain is empty")
	}
	category := strings.ToLower(strings.TrimSpace(domain.Category))
	if category == "" {
		category = "other"
	}
	_, err := s.exec(ctx, `
		INSERT INTO scam_domains (domain, category, added_by, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(domain) DO UPDATE SET category = excluded.category, added_by = excluded.added_by
	`, value, category, domain.AddedBy, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("add scam domain: %w", err)
	}
	return nil
}

func (s *Store) RemoveScamDomain(ctx context.Context, domain string) (bool, error) {
	res, err := s.exec(ctx, `DELETE FROM scam_domains WHERE domain = ?`, normalizeDomain(domain))
	if err != nil {
		return false, fmt.Errorf("remove scam domain: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// FindScamDomain looks up an exact domain. The bool is false when the domain
// is not registered.
func (s *Store) FindScamDomain(ctx context.Context, domain string) (ScamDomain, bool, error) {
	row := s.queryRow(ctx, `
		SELECT domain, category, added_by, created_at
		FROM scam_domains WHERE domain = ?`, normalizeDomain(domain))

	var found ScamDomain
	var created int64
	if err := row.Scan(&found.Domain, &found.Category, &found.AddedBy, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ScamDomain{}, false, nil
		}
		return ScamDomain{}, false, fmt.Errorf("find scam domain: %w", err)
	}
	found.CreatedAt = time.Unix(created, 0)
	return found, true, nil
}

func (s *Store) ListScamDomains(ctx context.Context) ([]ScamDomain, error) {
	rows, err := s.query(ctx, `SELECT domain, category, added_by, created_at FROM scam_domains ORDER BY domain`)
	if err != nil {
		return nil, fmt.Errorf("list scam domains: %w", err)
	}
	defer rows.Close()

	var domains []ScamDomain
	for rows.Next() {
		var domain ScamDomain
		var created int64
		if err := rows.Scan(&domain.Domain, &domain.Category, &domain.AddedBy, &created); err != nil {
			return nil, err
		}
		domain.CreatedAt = time.Unix(created, 0)
		domains = append(domains, domain)
	}
	return domains, rows.Err()
}

func normalizeDomain(domain string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
}

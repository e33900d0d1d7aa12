package feed

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

const DateLayout = "2006-01-02"

// dateLayouts are tried in order when a comparison date is parsed. Layouts
// without a zone are read in time.Local.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	DateLayout,
	time.RFC1123Z,
	time.RFC1123,
}

// Resolver turns raw feed records into display-ready articles.
type Resolver struct{}

func NewResolver() *Resolver {
	return &Resolver{}
}

// Run resolves every record and orders the result newest first. The output
// always has the same length as the input. Records whose comparison date
// cannot be parsed are placed after all dated records, in input order.
func (r *Resolver) Run(raw []RawArticle, fallbackDate string) []ResolvedArticle {
	type keyed struct {
		article ResolvedArticle
		at      time.Time
		dated   bool
	}

	entries := make([]keyed, 0, len(raw))
	for _, record := range raw {
		article := r.resolveArticle(record, fallbackDate)
		at, dated := ParseCalendarDate(article.SortDate)
		entries = append(entries, keyed{article: article, at: at, dated: dated})
	}

	slices.SortStableFunc(entries, func(a, b keyed) int {
		switch {
		case a.dated && b.dated:
			return b.at.Compare(a.at)
		case a.dated:
			return -1
		case b.dated:
			return 1
		default:
			return 0
		}
	})

	resolved := make([]ResolvedArticle, 0, len(entries))
	for _, entry := range entries {
		resolved = append(resolved, entry.article)
	}
	return resolved
}

// Partition splits a resolved sequence into articles dated today or
// yesterday (in now's location) and everything else. Each bucket keeps the
// sequence order and is cut to its limit; a negative limit means no limit.
func (r *Resolver) Partition(articles []ResolvedArticle, now time.Time, recentLimit, olderLimit int) Partition {
	today := now.Format(DateLayout)
	yesterday := now.AddDate(0, 0, -1).Format(DateLayout)

	partition := Partition{
		Recent: []ResolvedArticle{},
		Older:  []ResolvedArticle{},
	}

	for _, article := range articles {
		if article.DisplayDate == today || article.DisplayDate == yesterday {
			if recentLimit < 0 || len(partition.Recent) < recentLimit {
				partition.Recent = append(partition.Recent, article)
			}
		} else if olderLimit < 0 || len(partition.Older) < olderLimit {
			partition.Older = append(partition.Older, article)
		}
	}

	return partition
}

func (r *Resolver) resolveArticle(record RawArticle, fallbackDate string) ResolvedArticle {
	return ResolvedArticle{
		ID:          cmp.Or(record.ID.String(), record.ArticleID.String(), r.synthesizeID(record)),
		Title:       record.Title.String(),
		Summary:     record.Summary.String(),
		DisplayDate: DisplayDate(record, fallbackDate),
		Keywords:    NormalizeKeywords(record.Keywords),
		SourceURL:   record.URL.String(),
		SortDate:    cmp.Or(record.ArticleDate.String(), record.Date.String()),
	}
}

// synthesizeID derives a stable identifier for feed records that carry none,
// so the same record keeps its asset paths across refreshes.
func (r *Resolver) synthesizeID(record RawArticle) string {
	content := fmt.Sprintf("%s|%s|%s", record.Title, record.URL, record.ArticleDate)
	hash := sha256.Sum256([]byte(content))
	return "article-" + hex.EncodeToString(hash[:8])
}

// DisplayDate picks the date folder of an article: asset_date, then
// article_date (both cut to their first 10 characters), then date, then the
// feed-level fallback.
func DisplayDate(record RawArticle, fallbackDate string) string {
	if date := truncateDate(record.AssetDate.String()); date != "" {
		return date
	}
	if date := truncateDate(record.ArticleDate.String()); date != "" {
		return date
	}
	return cmp.Or(record.Date.String(), fallbackDate)
}

// truncateDate keeps the first 10 characters of a trimmed value. Shorter
// values are treated as missing. The result is not validated.
func truncateDate(value string) string {
	runes := []rune(strings.TrimSpace(value))
	if len(runes) < len(DateLayout) {
		return ""
	}
	return string(runes[:len(DateLayout)])
}

// NormalizeKeywords returns trimmed, non-empty keywords in input order.
func NormalizeKeywords(raw RawKeywords) []string {
	parts := raw.List
	if !raw.IsList {
		if raw.Joined == "" {
			return []string{}
		}
		parts = strings.Split(raw.Joined, ",")
	}

	keywords := make([]string, 0, len(parts))
	for _, part := range parts {
		keyword := norm.NFC.String(strings.TrimSpace(part))
		if keyword != "" {
			keywords = append(keywords, keyword)
		}
	}
	return keywords
}

// ParseCalendarDate parses the date forms seen in feeds and search results.
func ParseCalendarDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}

	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

package feed

import (
	"bytes"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"
)

var ErrUnsupportedSearchResponse = errors.New("unsupported search response shape")

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

// Run decodes a daily feed document. The gallery's own JSON shape
// ({date, articles}) is tried first; anything else is handed to gofeed so
// RSS, Atom and JSON Feed sources can back a gallery too.
func (p *Parser) Run(data []byte) (*RawFeed, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("feed document is empty")
	}

	if trimmed[0] == '{' && !isJSONFeed(trimmed) {
		var raw RawFeed
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, fmt.Errorf("failed to decode feed: %w", err)
		}
		if raw.Articles == nil {
			raw.Articles = []RawArticle{}
		}
		return &raw, nil
	}

	syndicated, err := p.gofeedParser.Parse(bytes.NewReader(trimmed))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	return p.fromSyndication(syndicated), nil
}

// RunSearch decodes a search response, which is either a bare array of
// records or an object carrying them under "results".
func (p *Parser) RunSearch(data []byte) ([]RawArticle, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, ErrUnsupportedSearchResponse
	}

	var records []RawArticle
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("failed to decode search results: %w", err)
		}
	case '{':
		var envelope struct {
			Results json.RawMessage `json:"results"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, fmt.Errorf("failed to decode search response: %w", err)
		}
		results := bytes.TrimSpace(envelope.Results)
		if len(results) == 0 || results[0] != '[' {
			return []RawArticle{}, nil
		}
		if err := json.Unmarshal(results, &records); err != nil {
			return nil, fmt.Errorf("failed to decode search results: %w", err)
		}
	default:
		return nil, ErrUnsupportedSearchResponse
	}

	normalized := make([]RawArticle, 0, len(records))
	for _, record := range records {
		normalized = append(normalized, p.normalizeSearchRecord(record))
	}
	return normalized, nil
}

// normalizeSearchRecord maps the search API's columns onto the feed record
// shape so both go through the same resolver.
func (p *Parser) normalizeSearchRecord(record RawArticle) RawArticle {
	id := cmp.Or(record.ID, record.ArticleID)
	if id == "" {
		id = Text("search-" + uuid.NewString())
	}

	record.ID = id
	record.ArticleDate = cmp.Or(record.ArticleDate, record.Date, record.PublishedAt, record.CreatedAt)
	return record
}

func isJSONFeed(data []byte) bool {
	var probe struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	return strings.Contains(probe.Version, "jsonfeed.org")
}

func (p *Parser) fromSyndication(syndicated *gofeed.Feed) *RawFeed {
	raw := &RawFeed{
		Articles: make([]RawArticle, 0, len(syndicated.Items)),
	}

	var newest *time.Time
	for _, item := range syndicated.Items {
		if item == nil {
			continue
		}

		record := RawArticle{
			ID:       Text(cmp.Or(item.GUID, item.Link)),
			Title:    Text(item.Title),
			Summary:  Text(cmp.Or(item.Description, item.Content)),
			URL:      Text(item.Link),
			Keywords: KeywordList(item.Categories...),
		}

		published := item.PublishedParsed
		if published == nil {
			published = item.UpdatedParsed
		}
		if published != nil {
			record.ArticleDate = Text(published.In(time.Local).Format(time.RFC3339))
			if newest == nil || published.After(*newest) {
				newest = published
			}
		}

		raw.Articles = append(raw.Articles, record)
	}

	if newest != nil {
		raw.Date = Text(newest.In(time.Local).Format(DateLayout))
	}

	return raw
}

package feed

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Loosely typed input

// Text is a scalar JSON field that may arrive as a string, a number, a
// boolean or null. Anything else decodes to the empty string.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*t = ""
			return nil
		}
		*t = Text(s)
	case 't', 'f':
		*t = Text(string(data))
	case '{', '[':
		*t = ""
	default:
		if _, err := strconv.ParseFloat(string(data), 64); err == nil {
			*t = Text(string(data))
		} else {
			*t = ""
		}
	}
	return nil
}

func (t Text) String() string {
	return string(t)
}

// RawKeywords accepts a JSON array of scalars, a comma-joined string or null.
// The decoded form keeps every entry untouched; normalization happens in the
// resolver.
type RawKeywords struct {
	List   []string
	Joined string
	IsList bool
}

func (k *RawKeywords) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*k = RawKeywords{}
	if len(data) == 0 {
		return nil
	}

	switch data[0] {
	case '[':
		var entries []Text
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil
		}
		k.IsList = true
		k.List = make([]string, 0, len(entries))
		for _, entry := range entries {
			k.List = append(k.List, entry.String())
		}
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		k.Joined = s
	}
	return nil
}

func (k RawKeywords) MarshalJSON() ([]byte, error) {
	if k.IsList {
		return json.Marshal(k.List)
	}
	if k.Joined != "" {
		return json.Marshal(k.Joined)
	}
	return []byte("null"), nil
}

// KeywordList builds RawKeywords from an already split sequence.
func KeywordList(keywords ...string) RawKeywords {
	return RawKeywords{List: keywords, IsList: true}
}

// KeywordString builds RawKeywords from a delimiter-joined string.
func KeywordString(joined string) RawKeywords {
	return RawKeywords{Joined: joined}
}

type RawArticle struct {
	ID          Text        `json:"id"`
	ArticleID   Text        `json:"article_id"`
	Title       Text        `json:"title"`
	Summary     Text        `json:"summary"`
	ArticleDate Text        `json:"article_date"`
	AssetDate   Text        `json:"asset_date"`
	Date        Text        `json:"date"`
	PublishedAt Text        `json:"published_at"`
	CreatedAt   Text        `json:"created_at"`
	Keywords    RawKeywords `json:"keywords"`
	URL         Text        `json:"url"`
}

// UnmarshalJSON turns anything that is not an object into the zero record,
// so one malformed entry never rejects the array around it.
func (a *RawArticle) UnmarshalJSON(data []byte) error {
	*a = RawArticle{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil
	}

	type plain RawArticle
	var record plain
	if err := json.Unmarshal(data, &record); err != nil {
		return nil
	}
	*a = RawArticle(record)
	return nil
}

type RawFeed struct {
	Date     Text         `json:"date"`
	Articles []RawArticle `json:"articles"`
}

// UnmarshalJSON accepts an articles value of any type; anything but an array
// decodes as no articles.
func (f *RawFeed) UnmarshalJSON(data []byte) error {
	var envelope struct {
		Date     Text            `json:"date"`
		Articles json.RawMessage `json:"articles"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}

	*f = RawFeed{Date: envelope.Date, Articles: []RawArticle{}}
	articles := bytes.TrimSpace(envelope.Articles)
	if len(articles) == 0 || articles[0] != '[' {
		return nil
	}
	return json.Unmarshal(articles, &f.Articles)
}

// Normalized output

type ResolvedArticle struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Summary     string   `json:"summary"`
	DisplayDate string   `json:"displayDate"`
	Keywords    []string `json:"keywords"`
	SourceURL   string   `json:"sourceUrl,omitempty"`

	// SortDate is the comparison date the sequence was ordered by.
	SortDate string `json:"-"`
}

type Partition struct {
	Recent []ResolvedArticle
	Older  []ResolvedArticle
}

// Configuration types

type Config struct {
	Name      string         // Derived from filename (without .yml extension)
	FeedURL   string         `yaml:"feed_url"`
	SearchURL string         `yaml:"search_url"`
	Assets    ConfigAssets   `yaml:"assets"`
	Settings  ConfigSettings `yaml:"settings"`
	Filters   []ConfigFilter `yaml:"filters"`
}

type ConfigAssets struct {
	BaseURL     string `yaml:"base_url"`
	ImagePrefix string `yaml:"image_prefix"`
	AudioPrefix string `yaml:"audio_prefix"`
}

type ConfigSettings struct {
	Enabled          bool `yaml:"enabled"`
	RefreshInterval  int  `yaml:"refresh_interval"` // seconds
	Timeout          int  `yaml:"timeout"`          // seconds
	RecentLimit      int  `yaml:"recent_limit"`
	OlderLimit       int  `yaml:"older_limit"`
	ExtractSummaries bool `yaml:"extract_summaries"`
}

type ConfigFilter struct {
	Field    string   `yaml:"field"`
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

func joinKeywords(keywords []string) string {
	return strings.Join(keywords, " ")
}

package feed

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestResolverDisplayDatePriority(t *testing.T) {
	tests := []struct {
		name     string
		record   RawArticle
		fallback string
		expected string
	}{
		{
			name:     "asset date wins",
			record:   RawArticle{AssetDate: "2025-06-02T01:00:00", ArticleDate: "2025-06-01T09:00:00", Date: "2025-05-31"},
			fallback: "2025-05-30",
			expected: "2025-06-02",
		},
		{
			name:     "article date when asset date is missing",
			record:   RawArticle{ArticleDate: "2025-06-01T09:00:00", Date: "2025-05-31"},
			fallback: "2025-05-30",
			expected: "2025-06-01",
		},
		{
			name:     "date is used as is",
			record:   RawArticle{Date: "2025-05-31"},
			fallback: "2025-05-30",
			expected: "2025-05-31",
		},
		{
			name:     "feed fallback",
			record:   RawArticle{Title: "no dates"},
			fallback: "2025-05-30",
			expected: "2025-05-30",
		},
		{
			name:     "no date anywhere",
			record:   RawArticle{Title: "no dates"},
			fallback: "",
			expected: "",
		},
		{
			name:     "short asset date counts as missing",
			record:   RawArticle{AssetDate: "2025-6-1", ArticleDate: "2025-06-01T09:00:00"},
			expected: "2025-06-01",
		},
		{
			name:     "malformed value is truncated without validation",
			record:   RawArticle{ArticleDate: "not-a-date-at-all"},
			expected: "not-a-date",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DisplayDate(tt.record, tt.fallback); got != tt.expected {
				t.Errorf("Expected display date %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestResolverEndToEnd(t *testing.T) {
	var raw RawFeed
	data := `{"date":"2025-06-01","articles":[{"id":"7","title":"X","article_date":"2025-06-01T09:00:00"}]}`
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	resolved := NewResolver().Run(raw.Articles, raw.Date.String())

	if len(resolved) != 1 {
		t.Fatalf("Expected 1 article, got %d", len(resolved))
	}

	article := resolved[0]
	if article.ID != "7" {
		t.Errorf("Expected id '7', got %q", article.ID)
	}
	if article.Title != "X" {
		t.Errorf("Expected title 'X', got %q", article.Title)
	}
	if article.Summary != "" {
		t.Errorf("Expected empty summary, got %q", article.Summary)
	}
	if article.DisplayDate != "2025-06-01" {
		t.Errorf("Expected display date '2025-06-01', got %q", article.DisplayDate)
	}
	if article.Keywords == nil || len(article.Keywords) != 0 {
		t.Errorf("Expected empty non-nil keywords, got %#v", article.Keywords)
	}
}

func TestResolverMissingFieldsDegrade(t *testing.T) {
	var raw []RawArticle
	data := `[{"title":null,"summary":42,"keywords":{"bad":true},"id":{"x":1}}, {}]`
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	resolved := NewResolver().Run(raw, "")

	if len(resolved) != 2 {
		t.Fatalf("Expected 2 articles, got %d", len(resolved))
	}
	if resolved[0].Title != "" {
		t.Errorf("Expected empty title, got %q", resolved[0].Title)
	}
	if resolved[0].Summary != "42" {
		t.Errorf("Expected numeric summary to be kept as text, got %q", resolved[0].Summary)
	}
	for i, article := range resolved {
		if article.ID == "" {
			t.Errorf("Article %d: expected synthesized id", i)
		}
		if article.Keywords == nil {
			t.Errorf("Article %d: expected non-nil keywords", i)
		}
	}
}

func TestResolverPreservesLength(t *testing.T) {
	raw := []RawArticle{
		{ID: "1", ArticleDate: "2025-06-01"},
		{ID: "2"},
		{ID: "3", ArticleDate: "garbage"},
		{ID: "4", Date: "2025-05-30"},
	}

	resolved := NewResolver().Run(raw, "2025-06-01")

	if len(resolved) != len(raw) {
		t.Errorf("Expected %d articles, got %d", len(raw), len(resolved))
	}

	if got := NewResolver().Run(nil, ""); len(got) != 0 {
		t.Errorf("Expected empty output for empty input, got %d", len(got))
	}
}

func TestResolverSortIsStableAndDescending(t *testing.T) {
	raw := []RawArticle{
		{ID: "a", ArticleDate: "2025-05-30T08:00:00"},
		{ID: "b", ArticleDate: "2025-06-01T09:00:00"},
		{ID: "c", Date: "2025-05-31"},
		{ID: "d", ArticleDate: "2025-06-01T09:00:00"},
		{ID: "e", ArticleDate: "2025-05-30T08:00:00"},
	}

	resolved := NewResolver().Run(raw, "")

	expected := []string{"b", "d", "c", "a", "e"}
	if got := ids(resolved); !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected order %v, got %v", expected, got)
	}
}

func TestResolverUnparseableDatesSortLast(t *testing.T) {
	raw := []RawArticle{
		{ID: "bad-1", ArticleDate: "yesterday-ish"},
		{ID: "old", ArticleDate: "2025-05-01"},
		{ID: "none"},
		{ID: "new", ArticleDate: "2025-06-01T10:00:00+09:00"},
		{ID: "bad-2", Date: "31/05/2025"},
	}

	resolved := NewResolver().Run(raw, "2025-06-01")

	expected := []string{"new", "old", "bad-1", "none", "bad-2"}
	if got := ids(resolved); !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected order %v, got %v", expected, got)
	}

	again := NewResolver().Run(raw, "2025-06-01")
	if !reflect.DeepEqual(ids(again), ids(resolved)) {
		t.Error("Expected identical input to produce identical order")
	}
}

func TestResolverSynthesizedIDIsStable(t *testing.T) {
	raw := []RawArticle{{Title: "Same", URL: "https://example.com/a", ArticleDate: "2025-06-01"}}

	first := NewResolver().Run(raw, "")[0].ID
	second := NewResolver().Run(raw, "")[0].ID

	if first != second {
		t.Errorf("Expected stable synthesized id, got %q and %q", first, second)
	}
	if len(first) != len("article-")+16 {
		t.Errorf("Expected article-<16 hex>, got %q", first)
	}
}

func TestResolverArticleIDFallback(t *testing.T) {
	resolved := NewResolver().Run([]RawArticle{{ArticleID: "55"}}, "")
	if resolved[0].ID != "55" {
		t.Errorf("Expected id from article_id, got %q", resolved[0].ID)
	}
}

func TestNormalizeKeywordsStringAndListAgree(t *testing.T) {
	fromString := NormalizeKeywords(KeywordString("a, b ,c"))
	fromList := NormalizeKeywords(KeywordList("a", "b", "c"))

	expected := []string{"a", "b", "c"}
	if !reflect.DeepEqual(fromString, expected) {
		t.Errorf("Expected %v from string, got %v", expected, fromString)
	}
	if !reflect.DeepEqual(fromList, expected) {
		t.Errorf("Expected %v from list, got %v", expected, fromList)
	}
}

func TestNormalizeKeywordsDropsEmptyEntries(t *testing.T) {
	tests := []struct {
		name     string
		input    RawKeywords
		expected []string
	}{
		{"absent", RawKeywords{}, []string{}},
		{"blank string", KeywordString("  "), []string{}},
		{"empty entries", KeywordString("x,, ,y,"), []string{"x", "y"}},
		{"list with blanks", KeywordList(" x ", "", "y"), []string{"x", "y"}},
		{"order preserved", KeywordList("z", "a", "m"), []string{"z", "a", "m"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeKeywords(tt.input)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestNormalizeKeywordsComposesUnicode(t *testing.T) {
	got := NormalizeKeywords(KeywordList("Cafe\u0301", "\u1100\u1167\u11bc\u110c\u1166"))

	expected := []string{"Caf\u00e9", "\uacbd\uc81c"}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected composed keywords %q, got %q", expected, got)
	}
}

func TestRawKeywordsDecoding(t *testing.T) {
	var record RawArticle
	if err := json.Unmarshal([]byte(`{"keywords":["a", 1, true]}`), &record); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	got := NormalizeKeywords(record.Keywords)
	expected := []string{"a", "1", "true"}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}
}

func TestResolverPartition(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	articles := []ResolvedArticle{
		{ID: "1", DisplayDate: "2025-06-01"},
		{ID: "2", DisplayDate: "2025-05-31"},
		{ID: "3", DisplayDate: "2025-05-30"},
		{ID: "4", DisplayDate: "2025-06-01"},
		{ID: "5", DisplayDate: ""},
		{ID: "6", DisplayDate: "2025-05-29"},
	}

	partition := NewResolver().Partition(articles, now, 2, -1)

	if got := ids(partition.Recent); !reflect.DeepEqual(got, []string{"1", "2"}) {
		t.Errorf("Expected recent [1 2], got %v", got)
	}
	if got := ids(partition.Older); !reflect.DeepEqual(got, []string{"3", "5", "6"}) {
		t.Errorf("Expected older [3 5 6], got %v", got)
	}
}

func TestResolverPartitionLimitsAreIndependent(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 30, 0, 0, time.UTC)
	articles := []ResolvedArticle{
		{ID: "1", DisplayDate: "2025-02-28"},
		{ID: "2", DisplayDate: "2025-02-27"},
		{ID: "3", DisplayDate: "2025-02-26"},
	}

	partition := NewResolver().Partition(articles, now, 0, 1)

	if len(partition.Recent) != 0 {
		t.Errorf("Expected no recent articles, got %v", ids(partition.Recent))
	}
	if got := ids(partition.Older); !reflect.DeepEqual(got, []string{"2"}) {
		t.Errorf("Expected older [2], got %v", got)
	}
}

func TestResolverPartitionUsesCallerCalendar(t *testing.T) {
	seoul := time.FixedZone("KST", 9*60*60)
	// 2025-06-01 20:00 UTC is already 2025-06-02 in Seoul.
	now := time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC).In(seoul)
	articles := []ResolvedArticle{
		{ID: "1", DisplayDate: "2025-06-02"},
		{ID: "2", DisplayDate: "2025-05-31"},
	}

	partition := NewResolver().Partition(articles, now, -1, -1)

	if got := ids(partition.Recent); !reflect.DeepEqual(got, []string{"1"}) {
		t.Errorf("Expected recent [1], got %v", got)
	}
}

func TestParseCalendarDate(t *testing.T) {
	tests := []struct {
		input string
		ok    bool
	}{
		{"2025-06-01", true},
		{"2025-06-01T09:00:00", true},
		{"2025-06-01T09:00:00Z", true},
		{"2025-06-01T09:00:00.123+09:00", true},
		{"2025-06-01 09:00:00", true},
		{"Sun, 01 Jun 2025 09:00:00 +0900", true},
		{"", false},
		{"garbage", false},
		{"2025-13-01", false},
	}

	for _, tt := range tests {
		if _, ok := ParseCalendarDate(tt.input); ok != tt.ok {
			t.Errorf("For input %q, expected ok=%v, got %v", tt.input, tt.ok, ok)
		}
	}
}

func ids(articles []ResolvedArticle) []string {
	out := make([]string, 0, len(articles))
	for _, article := range articles {
		out = append(out, article.ID)
	}
	return out
}

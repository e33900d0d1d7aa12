package feed

import (
	"fmt"
	"strings"
)

type Filterer struct{}

func NewFilterer() *Filterer {
	return &Filterer{}
}

// Run drops the articles excluded by the source's filters and keeps the
// order of the rest.
func (f *Filterer) Run(articles []ResolvedArticle, sourceConfig *Config) []ResolvedArticle {
	if len(sourceConfig.Filters) == 0 {
		return articles
	}

	kept := make([]ResolvedArticle, 0, len(articles))
	for _, article := range articles {
		if excluded, _ := f.Check(article, sourceConfig.Filters); !excluded {
			kept = append(kept, article)
		}
	}

	return kept
}

// Check reports whether an article is excluded and why.
func (f *Filterer) Check(article ResolvedArticle, filters []ConfigFilter) (bool, string) {
	for _, filter := range filters {
		value := f.getFieldValue(article, filter.Field)

		for _, exclude := range filter.Excludes {
			if f.matchesFilter(value, exclude) {
				return true, fmt.Sprintf("Excluded by %s filter: contains '%s'", filter.Field, exclude)
			}
		}

		if len(filter.Includes) > 0 {
			matched := false
			for _, include := range filter.Includes {
				if f.matchesFilter(value, include) {
					matched = true
					break
				}
			}
			if !matched {
				return true, fmt.Sprintf("Excluded by %s filter: does not contain any of %v", filter.Field, filter.Includes)
			}
		}
	}

	return false, ""
}

func (f *Filterer) matchesFilter(value, pattern string) bool {
	return strings.Contains(strings.ToLower(value), strings.ToLower(pattern))
}

func (f *Filterer) getFieldValue(article ResolvedArticle, field string) string {
	switch field {
	case "title":
		return article.Title
	case "summary":
		return article.Summary
	case "keywords":
		return joinKeywords(article.Keywords)
	default:
		return ""
	}
}

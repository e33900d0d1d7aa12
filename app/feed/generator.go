package feed

import (
	"bytes"
	"cmp"
	"encoding/xml"
	"fmt"
	"html"
	"net/url"
	"time"

	"github.com/lysyi3m/newsreel/app/cfg"
)

// GalleryItem is one article of a gallery snapshot together with the asset
// URLs that resolved for it. Empty URLs mean the asset is unavailable.
type GalleryItem struct {
	Article  ResolvedArticle
	ImageURL string
	AudioURL string
}

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Run renders a gallery as RSS 2.0. The narration of each article becomes
// the item's audio enclosure so podcast clients can play it.
func (g *Generator) Run(sourceConfig *Config, feedDate string, items []GalleryItem) (string, error) {
	if sourceConfig == nil {
		return "", fmt.Errorf("source config is nil")
	}

	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	galleryLink := g.galleryURL(sourceConfig.Name)

	g.writeElement(&buf, "title", fmt.Sprintf("%s news", sourceConfig.Name), 4)
	g.writeElement(&buf, "link", galleryLink, 4)
	g.writeElement(&buf, "description", fmt.Sprintf("Daily news gallery from %s", sourceConfig.FeedURL), 4)

	buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
		html.EscapeString(galleryLink+"/feed.xml")))

	if published, ok := ParseCalendarDate(feedDate); ok {
		g.writeElement(&buf, "pubDate", published.Format(time.RFC1123Z), 4)
	}

	lastBuildDate := time.Now().In(time.Local)
	if len(items) > 0 {
		if newest, ok := g.itemDate(items[0].Article); ok {
			lastBuildDate = newest
		}
	}

	g.writeElement(&buf, "lastBuildDate", lastBuildDate.Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("Newsreel/%s", cfg.Get().Version), 4)

	for _, item := range items {
		g.writeItem(&buf, item)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *Generator) writeItem(buf *bytes.Buffer, item GalleryItem) {
	article := item.Article

	buf.WriteString("    <item>\n")

	buf.WriteString(fmt.Sprintf("      <guid isPermaLink=\"%t\">", g.isURL(article.ID)))
	xml.EscapeText(buf, []byte(article.ID))
	buf.WriteString("</guid>\n")

	g.writeElement(buf, "title", article.Title, 6)
	g.writeElement(buf, "link", article.SourceURL, 6)
	g.writeElement(buf, "description", cmp.Or(article.Summary, "No description available"), 6)

	if item.ImageURL != "" {
		buf.WriteString("      <content:encoded><![CDATA[")
		buf.WriteString(fmt.Sprintf("<img src=\"%s\" alt=\"%s\" />", html.EscapeString(item.ImageURL), html.EscapeString(article.Title)))
		if article.Summary != "" {
			buf.WriteString("<p>")
			buf.WriteString(html.EscapeString(article.Summary))
			buf.WriteString("</p>")
		}
		buf.WriteString("]]></content:encoded>\n")
	}

	if published, ok := g.itemDate(article); ok {
		g.writeElement(buf, "pubDate", published.Format(time.RFC1123Z), 6)
	}

	for _, keyword := range article.Keywords {
		g.writeElement(buf, "category", keyword, 6)
	}

	// RSS 2.0 requires url, length and type; the length is unknown without a GET.
	if item.AudioURL != "" {
		buf.WriteString(fmt.Sprintf("      <enclosure url=\"%s\" length=\"0\" type=\"audio/mpeg\" />\n",
			html.EscapeString(item.AudioURL)))
	}

	buf.WriteString("    </item>\n")
}

func (g *Generator) itemDate(article ResolvedArticle) (time.Time, bool) {
	if t, ok := ParseCalendarDate(article.SortDate); ok {
		return t, true
	}
	return ParseCalendarDate(article.DisplayDate)
}

func (g *Generator) galleryURL(name string) string {
	base := cfg.Get().BaseUrl
	if base == "" {
		base = fmt.Sprintf("http://localhost:%s", cfg.Get().Port)
	}
	return fmt.Sprintf("%s/galleries/%s", base, url.PathEscape(name))
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}

func (g *Generator) isURL(s string) bool {
	return (len(s) > 7 && s[:7] == "http://") || (len(s) > 8 && s[:8] == "https://")
}

// Package feeds builds the Atom documents served under /atom/ and the
// per-tag, per-series and per-guide feeds.
package feeds

import (
	"encoding/xml"
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"

	"weblog/internal/models"
)

const (
	atomNS      = "http://www.w3.org/2005/Atom"
	ContentType = "application/xml; charset=utf-8"
	AuthorName  = "Simon Willison"
)

type Link struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr,omitempty"`
}

type Text struct {
	Type string `xml:"type,attr,omitempty"`
	Body string `xml:",chardata"`
}

type Category struct {
	Term string `xml:"term,attr"`
}

type Person struct {
	Name string `xml:"name"`
}

type Entry struct {
	Title      string     `xml:"title"`
	Links      []Link     `xml:"link"`
	Published  string     `xml:"published"`
	Updated    string     `xml:"updated"`
	ID         string     `xml:"id"`
	Summary    *Text      `xml:"summary,omitempty"`
	Categories []Category `xml:"category"`
}

type Feed struct {
	XMLName xml.Name `xml:"feed"`
	NS      string   `xml:"xmlns,attr"`
	Lang    string   `xml:"xml:lang,attr"`
	Title   string   `xml:"title"`
	Links   []Link   `xml:"link"`
	ID      string   `xml:"id"`
	Updated string   `xml:"updated"`
	Author  Person   `xml:"author"`
	Entries []Entry  `xml:"entry"`
}

// Marshal renders the document with an XML declaration.
func (f *Feed) Marshal() ([]byte, error) {
	body, err := xml.Marshal(f)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

func rfc3339(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// TagURI builds tag:host,YYYY-MM-DD:/path/fragment identifiers.
func TagURI(link string, t time.Time) string {
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	return fmt.Sprintf("tag:%s,%s:%s/%s", u.Hostname(), t.UTC().Format("2006-01-02"), u.Path, u.Fragment)
}

// Item is what a feed entry is made from.
type Item struct {
	Title       string
	Path        string
	Created     time.Time
	Description string
	Tags        []string
}

// Builder turns items into feeds for one site.
type Builder struct {
	SiteURL   string
	SiteTitle string
}

// Build assembles a feed. source is the #atom-<source> fragment appended to
// every item link.
func (b Builder) Build(title, selfPath, source string, items []Item) *Feed {
	site := strings.TrimRight(b.SiteURL, "/")
	f := &Feed{
		NS:    atomNS,
		Lang:  "en-us",
		Title: title,
		Links: []Link{
			{Href: site + "/", Rel: "alternate"},
			{Href: site + selfPath, Rel: "self"},
		},
		ID:     site + "/",
		Author: Person{Name: AuthorName},
	}
	var latest time.Time
	for _, it := range items {
		link := site + it.Path + "#atom-" + source
		e := Entry{
			Title:     it.Title,
			Links:     []Link{{Href: link, Rel: "alternate"}},
			Published: rfc3339(it.Created),
			Updated:   rfc3339(it.Created),
			ID:        TagURI(link, it.Created),
		}
		if it.Description != "" {
			e.Summary = &Text{Type: "html", Body: it.Description}
		}
		for _, t := range it.Tags {
			e.Categories = append(e.Categories, Category{Term: t})
		}
		if it.Created.After(latest) {
			latest = it.Created
		}
		f.Entries = append(f.Entries, e)
	}
	if latest.IsZero() {
		latest = time.Now()
	}
	f.Updated = rfc3339(latest)
	return f
}

// EntriesNote is appended to items in the long-form-only feed.
func EntriesNote(siteURL string) string {
	site := strings.TrimRight(siteURL, "/")
	return `<p><em>You are only seeing the long-form articles from my blog. ` +
		`Subscribe to <a href="` + site + `/atom/everything/">/atom/everything/</a> ` +
		`to get all of my posts, or take a look at my <a href="` + site + `/about/#subscribe">other subscription options</a>.</em></p>`
}

// Title is the per-kind entry title used by the mixed feeds.
func Title(item models.Item) string {
	switch it := item.(type) {
	case *models.Blogmark:
		return it.LinkTitle
	case *models.Quotation:
		return "Quoting " + it.Source
	case *models.Beat:
		return it.TypeLabel() + ": " + it.Title
	}
	return item.DisplayTitle()
}

// Description renders the HTML summary of an item.
func Description(item models.Item) string {
	esc := html.EscapeString
	switch it := item.(type) {
	case *models.Entry:
		return string(it.BodyHTML())
	case *models.Blogmark:
		var sb strings.Builder
		sb.WriteString(`<p><strong><a href="` + esc(it.LinkURL) + `">` + esc(it.LinkTitle) + `</a></strong></p>`)
		sb.WriteString(string(it.CommentaryHTML()))
		if it.ViaURL != "" {
			sb.WriteString(`<p><small>Via <a href="` + esc(it.ViaURL) + `">` + esc(it.ViaTitle) + `</a></small></p>`)
		}
		return sb.String()
	case *models.Quotation:
		cite := esc(it.Source)
		if it.SourceURL != "" {
			cite = `<a href="` + esc(it.SourceURL) + `">` + cite + `</a>`
		}
		return `<blockquote cite="` + esc(it.SourceURL) + `">` + string(it.QuotationHTML()) +
			`</blockquote><p class="cite">&mdash; ` + cite + `</p>`
	case *models.Note:
		return string(it.BodyHTML())
	case *models.Beat:
		out := `<p><a href="` + esc(it.URL) + `">` + esc(it.Title) + `</a></p>`
		if it.Commentary != "" {
			out += "<p>" + esc(it.Commentary) + "</p>"
		}
		return out
	case *models.Chapter:
		return string(it.BodyHTML())
	}
	return ""
}

func tagNames(item models.Item) []string {
	tags := item.TagList()
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = t.Tag
	}
	return out
}

// FromItem converts content into a feed item.
func FromItem(item models.Item) Item {
	return Item{
		Title:       Title(item),
		Path:        item.AbsoluteURL(),
		Created:     item.Timestamp(),
		Description: Description(item),
		Tags:        tagNames(item),
	}
}

func FromItems(items []models.Item) []Item {
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = FromItem(it)
	}
	return out
}

// ChapterItem is a guide feed entry: a chapter, or a notable change to one.
func ChapterItem(ch *models.Chapter, created time.Time, changeNote string) Item {
	it := FromItem(ch)
	it.Created = created
	if changeNote != "" {
		it.Title = ch.Title + " - " + changeNote
		it.Description = "<p><em>" + html.EscapeString(changeNote) + "</em></p>" + it.Description
	}
	return it
}

package models

import (
	"html/template"
	"net/url"
	"strings"
	"time"

	"weblog/internal/utils"
)

type Entry struct {
	Base
	Title          string  `gorm:"size:255;not null" json:"title"`
	Body           string  `gorm:"type:text" json:"body"` // HTML
	TweetHTML      string  `gorm:"type:text" json:"tweet_html,omitempty"`
	ExtraHeadHTML  string  `gorm:"type:text" json:"extra_head_html,omitempty"`
	CustomTemplate string  `gorm:"size:100" json:"custom_template,omitempty"`
	LiveTimezone   string  `gorm:"size:100" json:"live_timezone,omitempty"`
	Series         *Series `gorm:"constraint:OnDelete:SET NULL;" json:"-"`
	Tags           []Tag   `gorm:"many2many:entry_tags;" json:"tags"`
}

func (e *Entry) Kind() string         { return KindEntry }
func (e *Entry) DisplayTitle() string { return e.Title }
func (e *Entry) TagList() []Tag       { return e.Tags }

func (e *Entry) BodyHTML() template.HTML {
	return template.HTML(e.Body)
}

// PreviouslyHosted is true for entries that predate the current platform.
func (e *Entry) PreviouslyHosted() bool {
	return e.Created.Before(time.Date(2006, 12, 1, 0, 0, 0, 0, time.UTC))
}

func (e *Entry) IndexComponents() map[string]string {
	return map[string]string{
		"A": e.Title,
		"C": utils.StripTags(e.Body),
		"B": tagNames(e.Tags),
	}
}

type Blogmark struct {
	Base
	LinkURL     string `gorm:"size:1000;not null" json:"link_url"`
	LinkTitle   string `gorm:"size:255;not null" json:"link_title"`
	Title       string `gorm:"size:255" json:"title,omitempty"`
	ViaURL      string `gorm:"size:1000" json:"via_url,omitempty"`
	ViaTitle    string `gorm:"size:255" json:"via_title,omitempty"`
	Commentary  string `gorm:"type:text" json:"commentary"`
	UseMarkdown bool   `gorm:"not null;default:false" json:"use_markdown"`
	Tags        []Tag  `gorm:"many2many:blogmark_tags;" json:"tags"`
}

func (b *Blogmark) Kind() string   { return KindBlogmark }
func (b *Blogmark) TagList() []Tag { return b.Tags }

func (b *Blogmark) DisplayTitle() string {
	if b.Title != "" {
		return b.Title
	}
	return b.LinkTitle
}

func (b *Blogmark) LinkDomain() string {
	if u, err := url.Parse(b.LinkURL); err == nil && u.Host != "" {
		return u.Host
	}
	parts := strings.Split(b.LinkURL, "/")
	if len(parts) > 2 {
		return parts[2]
	}
	return ""
}

func (b *Blogmark) CommentaryHTML() template.HTML {
	if b.UseMarkdown {
		return utils.RenderMarkdown(b.Commentary)
	}
	return template.HTML(b.Commentary)
}

func (b *Blogmark) WordCount() int {
	return len(strings.Fields(utils.StripTags(string(b.CommentaryHTML()))))
}

func (b *Blogmark) IndexComponents() map[string]string {
	return map[string]string{
		"A": b.LinkTitle,
		"B": tagNames(b.Tags),
		"C": strings.Join([]string{b.Commentary, b.LinkDomain(), b.ViaTitle}, " "),
	}
}

type Quotation struct {
	Base
	Quotation string `gorm:"type:text;not null" json:"quotation"` // markdown
	Source    string `gorm:"size:255;not null" json:"source"`
	SourceURL string `gorm:"size:1000" json:"source_url,omitempty"`
	Context   string `gorm:"size:255" json:"context,omitempty"`
	Tags      []Tag  `gorm:"many2many:quotation_tags;" json:"tags"`
}

func (q *Quotation) Kind() string         { return KindQuotation }
func (q *Quotation) TagList() []Tag       { return q.Tags }
func (q *Quotation) DisplayTitle() string { return "A quote from " + q.Source }

func (q *Quotation) QuotationHTML() template.HTML {
	return utils.RenderMarkdown(q.Quotation)
}

func (q *Quotation) IndexComponents() map[string]string {
	return map[string]string{
		"A": q.Quotation,
		"B": tagNames(q.Tags),
		"C": q.Source,
	}
}

type Note struct {
	Base
	Body  string `gorm:"type:text;not null" json:"body"` // markdown
	Title string `gorm:"size:255" json:"title,omitempty"`
	Tags  []Tag  `gorm:"many2many:note_tags;" json:"tags"`
}

func (n *Note) Kind() string   { return KindNote }
func (n *Note) TagList() []Tag { return n.Tags }

func (n *Note) DisplayTitle() string {
	if n.Title != "" {
		return n.Title
	}
	return "Note on " + LongDate(n.Created)
}

func (n *Note) BodyHTML() template.HTML {
	return utils.RenderMarkdown(n.Body)
}

func (n *Note) IndexComponents() map[string]string {
	return map[string]string{
		"A": n.Title,
		"C": n.Body,
		"B": tagNames(n.Tags),
	}
}

// Beat types.
const (
	BeatRelease   = "release"
	BeatTIL       = "til"
	BeatTILUpdate = "til_update"
	BeatResearch  = "research"
	BeatTool      = "tool"
	BeatMuseum    = "museum"
)

var beatLabels = map[string]string{
	BeatRelease:   "Release",
	BeatTIL:       "TIL",
	BeatTILUpdate: "TIL updated",
	BeatResearch:  "Research",
	BeatTool:      "Tool",
	BeatMuseum:    "Museum",
}

type Beat struct {
	Base
	BeatType   string `gorm:"size:20;not null;index" json:"beat_type"`
	Title      string `gorm:"size:255;not null" json:"title"`
	URL        string `gorm:"size:1000;not null" json:"url"`
	Commentary string `gorm:"type:text" json:"commentary"`
	ImageURL   string `gorm:"size:1000" json:"image_url,omitempty"`
	ImageAlt   string `gorm:"type:text" json:"image_alt,omitempty"`
	Tags       []Tag  `gorm:"many2many:beat_tags;" json:"tags"`
}

func (b *Beat) Kind() string         { return KindBeat }
func (b *Beat) TagList() []Tag       { return b.Tags }
func (b *Beat) DisplayTitle() string { return b.Title }

func (b *Beat) TypeLabel() string {
	if l, ok := beatLabels[b.BeatType]; ok {
		return l
	}
	return b.BeatType
}

func (b *Beat) IndexComponents() map[string]string {
	return map[string]string{
		"A": b.Title,
		"B": tagNames(b.Tags),
		"C": b.Commentary,
	}
}

// ValidBeatType reports whether t is a known beat type.
func ValidBeatType(t string) bool {
	_, ok := beatLabels[t]
	return ok
}

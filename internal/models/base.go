package models

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Content kinds, used as the "type" discriminator in search, feeds and the staff API.
const (
	KindEntry     = "entry"
	KindBlogmark  = "blogmark"
	KindQuotation = "quotation"
	KindNote      = "note"
	KindBeat      = "beat"
	KindChapter   = "chapter"
)

// Item is implemented by every dated, taggable piece of content.
type Item interface {
	Kind() string
	GetID() uint
	Timestamp() time.Time
	DisplayTitle() string
	AbsoluteURL() string
	TagList() []Tag
	Draft() bool
	IndexComponents() map[string]string
}

// Base holds the columns shared by every content table.
type Base struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	Created        time.Time         `gorm:"not null;index" json:"created"`
	Slug           string            `gorm:"size:64;not null;index" json:"slug"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	SearchDocument string            `gorm:"type:tsvector;index:,type:gin;->:false;<-:false" json:"-"` // maintained by search.Indexer
	ImportRef      *string           `gorm:"size:100;uniqueIndex" json:"import_ref,omitempty"`
	CardImage      string            `gorm:"size:128" json:"card_image,omitempty"`
	SeriesID       *uint             `gorm:"index" json:"series_id,omitempty"`
	IsDraft        bool              `gorm:"not null;default:false;index" json:"is_draft"`
}

func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.Created.IsZero() {
		b.Created = time.Now().UTC()
	}
	return nil
}

func (b *Base) GetID() uint          { return b.ID }
func (b *Base) Timestamp() time.Time { return b.Created }
func (b *Base) Draft() bool          { return b.IsDraft }

// AbsoluteURL returns /2024/Mar/5/slug/ style paths.
func (b *Base) AbsoluteURL() string {
	return DatePath(b.Created) + b.Slug + "/"
}

// DatePath returns the /YYYY/Mon/D/ prefix used by day archives.
func DatePath(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("/%d/%s/%d/", t.Year(), t.Format("Jan"), t.Day())
}

// ParseMonth maps "jan".."dec" (any case) to a month.
func ParseMonth(s string) (time.Month, bool) {
	if len(s) != 3 {
		return 0, false
	}
	for m := time.January; m <= time.December; m++ {
		if strings.EqualFold(m.String()[:3], s) {
			return m, true
		}
	}
	return 0, false
}

func tagNames(tags []Tag) string {
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.Tag
	}
	return strings.Join(names, " ")
}

// ordinal renders 1st, 2nd, 3rd, 11th...
func ordinal(n int) string {
	suffix := "th"
	switch n % 10 {
	case 1:
		suffix = "st"
	case 2:
		suffix = "nd"
	case 3:
		suffix = "rd"
	}
	if n%100 >= 11 && n%100 <= 13 {
		suffix = "th"
	}
	return fmt.Sprintf("%d%s", n, suffix)
}

// LongDate formats a date as "5th March 2024".
func LongDate(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s %s %d", ordinal(t.Day()), t.Month(), t.Year())
}

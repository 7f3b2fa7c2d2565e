package models

import (
	"html/template"
	"time"

	"gorm.io/gorm"

	"weblog/internal/utils"
)

type Guide struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Slug        string    `gorm:"size:64;uniqueIndex;not null" json:"slug"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	IsDraft     bool      `gorm:"not null;default:false" json:"is_draft"`
	Created     time.Time `gorm:"autoCreateTime" json:"created"`
	Updated     time.Time `gorm:"autoUpdateTime" json:"updated"`

	ChapterCount int `gorm:"-" json:"chapter_count"`
}

func (g Guide) URL() string {
	return "/guides/" + g.Slug + "/"
}

func (g Guide) DescriptionRendered() template.HTML {
	return utils.RenderMarkdown(g.Description)
}

type GuideSection struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	GuideID uint   `gorm:"not null;index" json:"guide_id"`
	Guide   *Guide `gorm:"constraint:OnDelete:CASCADE;" json:"-"`
	Title   string `gorm:"size:255;not null" json:"title"`
	Slug    string `gorm:"size:64;not null" json:"slug"`
	Order   int    `gorm:"not null;default:0" json:"order"`
}

type Chapter struct {
	Base
	GuideID    uint          `gorm:"not null;index" json:"guide_id"`
	Guide      *Guide        `gorm:"constraint:OnDelete:CASCADE;" json:"-"`
	SectionID  *uint         `gorm:"index" json:"section_id,omitempty"`
	Section    *GuideSection `gorm:"constraint:OnDelete:SET NULL;" json:"-"`
	Title      string        `gorm:"size:255;not null" json:"title"`
	Body       string        `gorm:"type:text" json:"body"` // markdown
	Order      int           `gorm:"not null;default:0" json:"order"`
	IsUnlisted bool          `gorm:"not null;default:false" json:"is_unlisted"`
	Updated    time.Time     `gorm:"autoUpdateTime" json:"updated"`
	Tags       []Tag         `gorm:"many2many:chapter_tags;" json:"tags"`

	changed bool
}

func (c *Chapter) Kind() string         { return KindChapter }
func (c *Chapter) TagList() []Tag       { return c.Tags }
func (c *Chapter) DisplayTitle() string { return c.Title }

func (c *Chapter) AbsoluteURL() string {
	if c.Guide == nil {
		return ""
	}
	return "/guides/" + c.Guide.Slug + "/" + c.Slug + "/"
}

func (c *Chapter) BodyHTML() template.HTML {
	return utils.RenderMarkdown(c.Body)
}

func (c *Chapter) IndexComponents() map[string]string {
	return map[string]string{
		"A": c.Title,
		"C": c.Body,
		"B": tagNames(c.Tags),
	}
}

func (c *Chapter) AfterCreate(tx *gorm.DB) error {
	return tx.Session(&gorm.Session{NewDB: true}).Create(&ChapterChange{
		ChapterID: c.ID,
		Created:   c.Created,
		Title:     c.Title,
		Body:      c.Body,
		IsDraft:   c.IsDraft,
	}).Error
}

// BeforeUpdate compares against the stored row; only title, body and draft
// state changes produce a ChapterChange.
func (c *Chapter) BeforeUpdate(tx *gorm.DB) error {
	c.changed = false
	if c.ID == 0 {
		return nil
	}
	var old Chapter
	err := tx.Session(&gorm.Session{NewDB: true}).
		Select("id", "title", "body", "is_draft").
		First(&old, c.ID).Error
	if err != nil {
		return err
	}
	c.changed = old.Title != c.Title || old.Body != c.Body || old.IsDraft != c.IsDraft
	return nil
}

func (c *Chapter) AfterUpdate(tx *gorm.DB) error {
	if !c.changed {
		return nil
	}
	c.changed = false
	return tx.Session(&gorm.Session{NewDB: true}).Create(&ChapterChange{
		ChapterID: c.ID,
		Created:   time.Now().UTC(),
		Title:     c.Title,
		Body:      c.Body,
		IsDraft:   c.IsDraft,
	}).Error
}

// ChapterChange is one revision in a chapter's history.
type ChapterChange struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ChapterID  uint      `gorm:"not null;index" json:"chapter_id"`
	Chapter    *Chapter  `gorm:"constraint:OnDelete:CASCADE;" json:"-"`
	Created    time.Time `gorm:"not null;index" json:"created"`
	Title      string    `gorm:"size:255" json:"title"`
	Body       string    `gorm:"type:text" json:"body"`
	IsDraft    bool      `gorm:"not null;default:false" json:"is_draft"`
	IsNotable  bool      `gorm:"not null;default:false" json:"is_notable"`
	ChangeNote string    `gorm:"type:text" json:"change_note"`
}

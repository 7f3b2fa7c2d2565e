package models

import (
	"html/template"
	"time"

	"gorm.io/datatypes"

	"weblog/internal/utils"
)

type Tag struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Tag         string `gorm:"size:255;uniqueIndex;not null" json:"tag"`
	Description string `gorm:"type:text" json:"description"`
}

func (t Tag) URL() string {
	return "/tags/" + t.Tag + "/"
}

func (t Tag) DescriptionRendered() template.HTML {
	return utils.RenderMarkdown(t.Description)
}

// PreviousTagName keeps old names resolvable after a merge or rename.
type PreviousTagName struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	TagID        uint   `gorm:"not null;index" json:"tag_id"`
	Tag          Tag    `gorm:"constraint:OnDelete:CASCADE;" json:"-"`
	PreviousName string `gorm:"size:255;not null;index" json:"previous_name"`
}

// TagMerge is the audit record written by a merge.
type TagMerge struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	Created            time.Time      `gorm:"autoCreateTime" json:"created"`
	SourceTagName      string         `gorm:"size:255;not null" json:"source_tag_name"`
	DestinationTagID   *uint          `gorm:"index" json:"destination_tag_id"`
	DestinationTag     *Tag           `gorm:"constraint:OnDelete:SET NULL;" json:"-"`
	DestinationTagName string         `gorm:"size:255;not null" json:"destination_tag_name"`
	Details            datatypes.JSON `gorm:"type:jsonb" json:"details"`
}

type Series struct {
	ID      uint      `gorm:"primaryKey" json:"id"`
	Created time.Time `gorm:"autoCreateTime" json:"created"`
	Slug    string    `gorm:"size:64;uniqueIndex;not null" json:"slug"`
	Title   string    `gorm:"size:255;not null" json:"title"`
	Summary string    `gorm:"type:text" json:"summary"`
}

func (s Series) URL() string {
	return "/series/" + s.Slug + "/"
}

func (s Series) SummaryRendered() template.HTML {
	return utils.RenderMarkdown(s.Summary)
}

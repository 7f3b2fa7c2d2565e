package models

import (
	"html/template"
	"time"

	"weblog/internal/utils"
)

var ColorSchemes = []string{"gold", "warm", "ocean", "lavender", "sage", "sand"}

type SponsorMessage struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"size:255;not null" json:"name"`
	Message      string    `gorm:"type:text;not null" json:"message"` // markdown
	LearnMoreURL string    `gorm:"size:1000" json:"learn_more_url"`
	DisplayFrom  time.Time `gorm:"not null" json:"display_from"`
	DisplayUntil time.Time `gorm:"not null" json:"display_until"`
	IsActive     bool      `gorm:"not null;default:true" json:"is_active"`
	Notes        string    `gorm:"type:text" json:"notes"`
	ColorScheme  string    `gorm:"size:20;not null;default:'gold'" json:"color_scheme"`
}

func (s SponsorMessage) MessageHTML() template.HTML {
	return utils.RenderMarkdown(s.Message)
}

// Redirect maps a (domain, path) pair to a target. Path "*" matches
// everything on the domain and appends the requested path.
type Redirect struct {
	ID      uint      `gorm:"primaryKey" json:"id"`
	Domain  string    `gorm:"size:255;not null;uniqueIndex:idx_redirect_domain_path" json:"domain"`
	Path    string    `gorm:"size:255;not null;uniqueIndex:idx_redirect_domain_path" json:"path"`
	Target  string    `gorm:"size:1000;not null" json:"target"`
	Created time.Time `gorm:"autoCreateTime" json:"created"`
}

// SubscriberCount is a daily sample of a feed reader's reported subscribers.
type SubscriberCount struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Path      string    `gorm:"size:255;not null;index" json:"path"`
	Count     int       `gorm:"not null" json:"count"`
	UserAgent string    `gorm:"size:500;not null" json:"user_agent"`
	Created   time.Time `gorm:"type:date;not null;index" json:"created"`
}

type Newsletter struct {
	ID      uint       `gorm:"primaryKey" json:"id"`
	Subject string     `gorm:"size:255;not null" json:"subject"`
	Body    string     `gorm:"type:text" json:"body"` // markdown
	SentAt  *time.Time `gorm:"index" json:"sent_at"`
}

func (n Newsletter) BodyHTML() template.HTML {
	return utils.RenderMarkdown(n.Body)
}

func (n Newsletter) URL() string {
	if n.SentAt == nil {
		return ""
	}
	return "/monthly/" + n.SentAt.UTC().Format("2006-01") + "/"
}

package services

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"weblog/internal/models"
)

const maxSlug = 64

// Truncate shortens text to fewer than max characters, preferring to end on a
// sentence in the second half, otherwise on a word with an ellipsis.
func Truncate(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	cut := string(runes[:max-1])
	if i := strings.LastIndex(cut, ". "); i >= 0 && len([]rune(cut[:i])) > max/2 {
		return cut[:i+1]
	}
	if i := strings.LastIndex(cut, " "); i >= 0 {
		cut = cut[:i]
	}
	return cut + "…"
}

// UniqueSlug returns slug, or slug-2, slug-3... so that no other beat on the
// same day uses it. The beat holding importRef is ignored so re-imports keep
// their slug.
func UniqueSlug(tx *gorm.DB, slug string, created time.Time, importRef string) (string, error) {
	base := truncateRunes(slug, maxSlug)
	day := created.UTC().Truncate(24 * time.Hour)
	next := day.Add(24 * time.Hour)
	candidate := base
	for suffix := 2; ; suffix++ {
		var n int64
		err := tx.Model(&models.Beat{}).
			Where("slug = ? AND created >= ? AND created < ?", candidate, day, next).
			Where("import_ref IS NULL OR import_ref <> ?", importRef).
			Count(&n).Error
		if err != nil {
			return "", err
		}
		if n == 0 {
			return candidate, nil
		}
		tail := fmt.Sprintf("-%d", suffix)
		candidate = truncateRunes(base, maxSlug-len(tail)) + tail
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

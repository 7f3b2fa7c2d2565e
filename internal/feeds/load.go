package feeds

import (
	"sort"

	"gorm.io/gorm"

	"weblog/internal/content"
	"weblog/internal/models"
)

// EntryItems is the long-form feed: the latest 15 entries, each followed by
// a pointer to the full feed.
func EntryItems(tx *gorm.DB, siteURL string) ([]Item, error) {
	items, err := content.Latest(tx, 15, models.KindEntry)
	if err != nil {
		return nil, err
	}
	out := FromItems(items)
	note := EntriesNote(siteURL)
	for i := range out {
		out[i].Description += note
	}
	return out, nil
}

func BlogmarkItems(tx *gorm.DB) ([]Item, error) {
	items, err := content.Latest(tx, 15, models.KindBlogmark)
	if err != nil {
		return nil, err
	}
	return FromItems(items), nil
}

// EverythingItems is the 30 newest entries, blogmarks, quotations and notes.
func EverythingItems(tx *gorm.DB) ([]Item, error) {
	items, err := content.Latest(tx, 30, models.KindEntry, models.KindBlogmark, models.KindQuotation, models.KindNote)
	if err != nil {
		return nil, err
	}
	return FromItems(items), nil
}

// SeriesItems lists every public entry in a series, newest first.
func SeriesItems(tx *gorm.DB, series *models.Series) ([]Item, error) {
	var entries []models.Entry
	err := tx.Preload("Tags", func(db *gorm.DB) *gorm.DB { return db.Order("tags.tag") }).
		Where("series_id = ? AND is_draft = false", series.ID).
		Order("created DESC").Find(&entries).Error
	if err != nil {
		return nil, err
	}
	out := make([]Item, len(entries))
	for i := range entries {
		out[i] = FromItem(&entries[i])
	}
	return out, nil
}

// GuideItems merges published chapters and notable changes, newest 15.
func GuideItems(tx *gorm.DB, guide *models.Guide) ([]Item, error) {
	var chapters []models.Chapter
	err := tx.Preload("Tags", func(db *gorm.DB) *gorm.DB { return db.Order("tags.tag") }).
		Where("guide_id = ? AND is_draft = false AND is_unlisted = false", guide.ID).Find(&chapters).Error
	if err != nil {
		return nil, err
	}
	byID := map[uint]*models.Chapter{}
	var out []Item
	for i := range chapters {
		chapters[i].Guide = guide
		byID[chapters[i].ID] = &chapters[i]
		out = append(out, ChapterItem(&chapters[i], chapters[i].Created, ""))
	}
	if len(byID) > 0 {
		ids := make([]uint, 0, len(byID))
		for id := range byID {
			ids = append(ids, id)
		}
		var changes []models.ChapterChange
		if err := tx.Where("chapter_id IN ? AND is_notable = true", ids).Find(&changes).Error; err != nil {
			return nil, err
		}
		for _, ch := range changes {
			out = append(out, ChapterItem(byID[ch.ChapterID], ch.Created, ch.ChangeNote))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Created.After(out[j].Created) })
	if len(out) > 15 {
		out = out[:15]
	}
	return out, nil
}

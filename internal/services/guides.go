package services

import (
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"gorm.io/gorm"

	"weblog/internal/models"
)

// TOCItem is either a standalone chapter or a section with its chapters.
type TOCItem struct {
	Order    int
	Chapter  *models.Chapter
	Section  *models.GuideSection
	Chapters []models.Chapter
}

func (t TOCItem) IsSection() bool { return t.Section != nil }

// BuildTOC groups a guide's chapters. Draft and unlisted chapters are left
// out unless includeDrafts; sections with no visible chapters are dropped.
func BuildTOC(tx *gorm.DB, guide *models.Guide, includeDrafts bool) ([]TOCItem, error) {
	q := tx.Where("guide_id = ?", guide.ID)
	if !includeDrafts {
		q = q.Where("is_draft = false AND is_unlisted = false")
	}
	var chapters []models.Chapter
	if err := q.Order(`"order", created`).Find(&chapters).Error; err != nil {
		return nil, err
	}
	var sections []models.GuideSection
	if err := tx.Where("guide_id = ?", guide.ID).Order(`"order"`).Find(&sections).Error; err != nil {
		return nil, err
	}
	for i := range chapters {
		chapters[i].Guide = guide
	}
	return ArrangeTOC(chapters, sections), nil
}

// ArrangeTOC expects chapters already ordered by (order, created).
func ArrangeTOC(chapters []models.Chapter, sections []models.GuideSection) []TOCItem {
	var toc []TOCItem
	bySection := map[uint][]models.Chapter{}
	for i := range chapters {
		ch := chapters[i]
		if ch.SectionID == nil {
			toc = append(toc, TOCItem{Order: ch.Order, Chapter: &chapters[i]})
			continue
		}
		bySection[*ch.SectionID] = append(bySection[*ch.SectionID], ch)
	}
	for i := range sections {
		chs := bySection[sections[i].ID]
		if len(chs) == 0 {
			continue
		}
		toc = append(toc, TOCItem{Order: sections[i].Order, Section: &sections[i], Chapters: chs})
	}
	sort.SliceStable(toc, func(i, j int) bool { return toc[i].Order < toc[j].Order })
	return toc
}

func FlattenTOC(toc []TOCItem) []models.Chapter {
	var flat []models.Chapter
	for _, item := range toc {
		if item.IsSection() {
			flat = append(flat, item.Chapters...)
		} else {
			flat = append(flat, *item.Chapter)
		}
	}
	return flat
}

// Neighbours finds the chapters either side of id in reading order.
func Neighbours(flat []models.Chapter, id uint) (prev, next *models.Chapter) {
	for i := range flat {
		if flat[i].ID != id {
			continue
		}
		if i > 0 {
			prev = &flat[i-1]
		}
		if i < len(flat)-1 {
			next = &flat[i+1]
		}
		return prev, next
	}
	return nil, nil
}

// ChangeDiff describes one revision relative to the one before it.
type ChangeDiff struct {
	Change       models.ChapterChange
	IsFirst      bool
	TitleDiff    []string
	BodyDiff     []string
	DraftChanged bool
	PrevWasDraft bool
}

// UnifiedDiff returns diff lines without trailing newlines, or nil when a
// and b are equal.
func UnifiedDiff(a, b string) ([]string, error) {
	if a == b {
		return nil, nil
	}
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:       diffLines(a),
		B:       diffLines(b),
		Context: 3,
	})
	if err != nil {
		return nil, err
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n"), nil
}

// diffLines splits s into newline-terminated lines.
func diffLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(strings.TrimSuffix(s, "\n"), "\n")
	for i := range lines {
		lines[i] += "\n"
	}
	return lines
}

// DiffChanges pairs each change with the one before it. Input is oldest
// first; the result is newest first.
func DiffChanges(changes []models.ChapterChange) ([]ChangeDiff, error) {
	out := make([]ChangeDiff, len(changes))
	for i, change := range changes {
		d := ChangeDiff{Change: change, IsFirst: i == 0}
		if i > 0 {
			prev := changes[i-1]
			var err error
			if d.TitleDiff, err = UnifiedDiff(prev.Title, change.Title); err != nil {
				return nil, err
			}
			if d.BodyDiff, err = UnifiedDiff(prev.Body, change.Body); err != nil {
				return nil, err
			}
			d.DraftChanged = prev.IsDraft != change.IsDraft
			d.PrevWasDraft = prev.IsDraft
		}
		out[len(changes)-1-i] = d
	}
	return out, nil
}

// ChapterHistory returns a chapter's changes, oldest first.
func ChapterHistory(tx *gorm.DB, chapterID uint) ([]models.ChapterChange, error) {
	var changes []models.ChapterChange
	err := tx.Where("chapter_id = ?", chapterID).Order("created, id").Find(&changes).Error
	return changes, err
}

// GuidesWithCounts lists guides by title with their public chapter counts.
func GuidesWithCounts(tx *gorm.DB, includeDrafts bool) ([]models.Guide, error) {
	q := tx.Model(&models.Guide{})
	if !includeDrafts {
		q = q.Where("is_draft = false")
	}
	var guides []models.Guide
	if err := q.Order("title").Find(&guides).Error; err != nil {
		return nil, err
	}
	if len(guides) == 0 {
		return guides, nil
	}
	type row struct {
		GuideID uint
		N       int
	}
	var rows []row
	err := tx.Model(&models.Chapter{}).Select("guide_id, count(*) AS n").
		Where("is_draft = false AND is_unlisted = false").Group("guide_id").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := map[uint]int{}
	for _, r := range rows {
		counts[r.GuideID] = r.N
	}
	for i := range guides {
		guides[i].ChapterCount = counts[guides[i].ID]
	}
	return guides, nil
}

package content

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"gorm.io/gorm"

	"weblog/internal/models"
	"weblog/internal/utils"
)

var ErrUnknownKind = errors.New("unknown content type")

func tagsOrdered(db *gorm.DB) *gorm.DB {
	return db.Order("tags.tag")
}

// loadKind fetches rows of one kind by id, with tags (and guides for chapters).
func loadKind(tx *gorm.DB, kind string, ids []uint) (map[uint]models.Item, error) {
	out := make(map[uint]models.Item, len(ids))
	q := tx.Preload("Tags", tagsOrdered)
	switch kind {
	case models.KindEntry:
		var rows []models.Entry
		if err := q.Preload("Series").Find(&rows, ids).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			out[rows[i].ID] = &rows[i]
		}
	case models.KindBlogmark:
		var rows []models.Blogmark
		if err := q.Find(&rows, ids).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			out[rows[i].ID] = &rows[i]
		}
	case models.KindQuotation:
		var rows []models.Quotation
		if err := q.Find(&rows, ids).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			out[rows[i].ID] = &rows[i]
		}
	case models.KindNote:
		var rows []models.Note
		if err := q.Find(&rows, ids).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			out[rows[i].ID] = &rows[i]
		}
	case models.KindBeat:
		var rows []models.Beat
		if err := q.Find(&rows, ids).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			out[rows[i].ID] = &rows[i]
		}
	case models.KindChapter:
		var rows []models.Chapter
		if err := q.Preload("Guide").Find(&rows, ids).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			out[rows[i].ID] = &rows[i]
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return out, nil
}

// LoadMixed loads the referenced items, preserving ref order. Refs whose row
// has disappeared are skipped.
func LoadMixed(tx *gorm.DB, refs []Ref) ([]models.Item, error) {
	byKind := map[string][]uint{}
	for _, r := range refs {
		byKind[r.Type] = append(byKind[r.Type], r.ID)
	}
	loaded := map[string]map[uint]models.Item{}
	for kind, ids := range byKind {
		m, err := loadKind(tx, kind, ids)
		if err != nil {
			return nil, err
		}
		loaded[kind] = m
	}
	items := make([]models.Item, 0, len(refs))
	for _, r := range refs {
		if it, ok := loaded[r.Type][r.ID]; ok {
			items = append(items, it)
		}
	}
	return items, nil
}

// Load fetches one item of kind by id.
func Load(tx *gorm.DB, kind string, id uint) (models.Item, error) {
	m, err := loadKind(tx, kind, []uint{id})
	if err != nil {
		return nil, err
	}
	it, ok := m[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return it, nil
}

// Recent returns the newest n public items across every kind.
func Recent(tx *gorm.DB, n int) ([]models.Item, error) {
	refs, err := Refs(tx, Selector{}, "created DESC", n, 0)
	if err != nil {
		return nil, err
	}
	return LoadMixed(tx, refs)
}

// Latest returns the newest n public items of the given kinds.
func Latest(tx *gorm.DB, n int, kinds ...string) ([]models.Item, error) {
	refs, err := Refs(tx, Selector{Kinds: KindsNamed(kinds...)}, "created DESC", n, 0)
	if err != nil {
		return nil, err
	}
	return LoadMixed(tx, refs)
}

// InRange returns public items created in [from, to), oldest first.
func InRange(tx *gorm.DB, from, to time.Time, kinds ...string) ([]models.Item, error) {
	refs, err := Refs(tx, Selector{Kinds: KindsNamed(kinds...), Where: Between(from, to)}, "created ASC", 0, 0)
	if err != nil {
		return nil, err
	}
	return LoadMixed(tx, refs)
}

// FindByDateSlug resolves /YYYY/Mon/D/slug/ across the dated kinds. Drafts
// are returned too; callers decide how to serve them.
func FindByDateSlug(tx *gorm.DB, day time.Time, slug string) (models.Item, error) {
	next := day.AddDate(0, 0, 1)
	for _, name := range Dated {
		k, _ := KindByName(name)
		var id uint
		err := tx.Table(k.Table).Select("id").
			Where("slug = ? AND created >= ? AND created < ?", slug, day, next).
			Order("id").Limit(1).Scan(&id).Error
		if err != nil {
			return nil, err
		}
		if id != 0 {
			return Load(tx, name, id)
		}
	}
	return nil, gorm.ErrRecordNotFound
}

// YearsWithContent lists years that have at least one public item.
func YearsWithContent(tx *gorm.DB) ([]int, error) {
	counts, err := YearCounts(tx, Selector{})
	if err != nil {
		return nil, err
	}
	years := make([]int, len(counts))
	for i, c := range counts {
		years[i] = c.Year
	}
	return years, nil
}

// TagTotal counts public items carrying tag across all kinds.
func TagTotal(tx *gorm.DB, tag string) (int64, error) {
	return Count(tx, Selector{Where: WithAllTags([]string{tag})})
}

// RelatedTags returns the ten tags most often used alongside tag.
func RelatedTags(tx *gorm.DB, tag string) ([]utils.TagCount, error) {
	counts, err := TagCounts(tx, Selector{Where: WithAllTags([]string{tag})}, 11)
	if err != nil {
		return nil, err
	}
	out := make([]utils.TagCount, 0, 10)
	for _, c := range counts {
		if c.Tag != tag && len(out) < 10 {
			out = append(out, c)
		}
	}
	return out, nil
}

var BlacklistedTags = map[string]bool{
	"quora":     true,
	"flash":     true,
	"resolved":  true,
	"recovered": true,
}

// CurrentTags picks num random tags from the 30 most used across the last
// 400 taggings.
func CurrentTags(tx *gorm.DB, num int) ([]models.Tag, error) {
	sql, args := Selector{}.TagsSQL()
	var recent []string
	err := tx.Raw("SELECT tag FROM ("+sql+") AS t ORDER BY created DESC LIMIT 400", args...).
		Scan(&recent).Error
	if err != nil {
		return nil, err
	}
	counter := map[string]int{}
	var order []string
	for _, t := range recent {
		if BlacklistedTags[t] {
			continue
		}
		if counter[t] == 0 {
			order = append(order, t)
		}
		counter[t]++
	}
	candidates := mostCommon(order, counter, 30)
	rand.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
	if len(candidates) > num {
		candidates = candidates[:num]
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	var tags []models.Tag
	if err := tx.Where("tag IN ?", candidates).Find(&tags).Error; err != nil {
		return nil, err
	}
	byName := map[string]models.Tag{}
	for _, t := range tags {
		byName[t.Tag] = t
	}
	out := make([]models.Tag, 0, len(candidates))
	for _, c := range candidates {
		if t, ok := byName[c]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

// mostCommon orders by count, keeping first-seen order for ties.
func mostCommon(order []string, counter map[string]int, n int) []string {
	out := append([]string(nil), order...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && counter[out[j]] > counter[out[j-1]]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// SeriesItem is one row of an entry's series navigation.
type SeriesItem struct {
	Entry   models.Entry
	Current bool
}

// SeriesInfo is the window shown at the top of entries in a series.
// Start is the 1-based position of the first item shown.
type SeriesInfo struct {
	Series  models.Series
	Start   int
	Items   []SeriesItem
	HasNext bool
}

// LoadSeriesInfo lists the series entries around e: all of them when there
// are seven or fewer, otherwise three either side.
func LoadSeriesInfo(tx *gorm.DB, e *models.Entry) (*SeriesInfo, error) {
	if e.SeriesID == nil {
		return nil, nil
	}
	var series models.Series
	if err := tx.First(&series, *e.SeriesID).Error; err != nil {
		return nil, err
	}
	var entries []models.Entry
	err := tx.Select("id", "title", "slug", "created").
		Where("series_id = ? AND is_draft = false", series.ID).
		Order("created").Find(&entries).Error
	if err != nil {
		return nil, err
	}
	ids := make([]uint, len(entries))
	for i, other := range entries {
		ids[i] = other.ID
	}
	start, end, hasNext := seriesWindow(ids, e.ID)
	info := &SeriesInfo{Series: series, Start: start + 1, HasNext: hasNext}
	for i := start; i < end; i++ {
		info.Items = append(info.Items, SeriesItem{Entry: entries[i], Current: entries[i].ID == e.ID})
	}
	return info, nil
}

// seriesWindow returns the [start, end) slice bounds of the entries to show.
func seriesWindow(ids []uint, current uint) (int, int, bool) {
	total := len(ids)
	if total <= 7 {
		return 0, total, false
	}
	idx := total
	for i, id := range ids {
		if id == current {
			idx = i
			break
		}
	}
	start, end := 0, 7
	if idx >= 4 {
		start, end = idx-3, idx+4
		if end > total {
			end = total
		}
		if start > total {
			start = total
		}
	}
	return start, end, total > end
}

// TagUsage is a tag with its total tagging count across every kind,
// drafts included.
type TagUsage struct {
	ID    uint   `json:"id"`
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// TagUsageMatching returns usage counts for tags whose name contains q.
func TagUsageMatching(tx *gorm.DB, q string) ([]TagUsage, error) {
	var parts []string
	for _, k := range Kinds {
		parts = append(parts, "SELECT tag_id FROM "+k.TagTable)
	}
	sql := "SELECT tags.id, tags.tag, count(u.tag_id) AS count FROM tags" +
		" LEFT JOIN (" + strings.Join(parts, " UNION ALL ") + ") AS u ON u.tag_id = tags.id" +
		" WHERE tags.tag LIKE ? GROUP BY tags.id, tags.tag"
	var out []TagUsage
	err := tx.Raw(sql, "%"+escapeLike(q)+"%").Scan(&out).Error
	return out, err
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

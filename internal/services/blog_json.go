package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"weblog/internal/content"
	"weblog/internal/db"
	"weblog/internal/models"
	"weblog/internal/search"
)

// BlogItem is one record of a blog JSON export. Fields not used by the
// item's type are ignored; the full record is kept as metadata.
type BlogItem map[string]interface{}

func (it BlogItem) str(key string) string {
	if v, ok := it[key].(string); ok {
		return v
	}
	return ""
}

func (it BlogItem) has(key string) bool {
	_, ok := it[key]
	return ok
}

func (it BlogItem) boolean(key string) bool {
	v, _ := it[key].(bool)
	return v
}

func (it BlogItem) integer(key string) int {
	switch v := it[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// date parses key, returning the zero time when the key is absent.
func (it BlogItem) date(key string) (time.Time, error) {
	s := it.str(key)
	if s == "" {
		return time.Time{}, nil
	}
	return parseTime(s)
}

func (it BlogItem) tags() []string {
	raw, _ := it["tags"].([]interface{})
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		if s, ok := t.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// ReadBlogJSON loads items from an http(s) URL or a local path.
func ReadBlogJSON(ctx context.Context, src string) ([]BlogItem, error) {
	var data []byte
	var err error
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		data, err = GetBeatImporter().fetch(ctx, src)
	} else {
		data, err = os.ReadFile(src)
	}
	if err != nil {
		return nil, err
	}
	var items []BlogItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", src, err)
	}
	return items, nil
}

// BlogImportResult mirrors ImportResult for mixed content types.
type BlogImportResult struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	URLs    []string `json:"urls"`
}

// ImportBlogJSON upserts the records of a blog export in order. Content
// types (entry, quotation, blogmark, note) are keyed by import_ref; the
// site records (series, guide, guide_section, chapter, newsletter, sponsor,
// redirect) by their natural keys, so records a later one refers to must
// come first. tagWith, when set, is added to every tagged item.
func ImportBlogJSON(items []BlogItem, tagWith string) (*BlogImportResult, error) {
	res := &BlogImportResult{}
	for i, item := range items {
		url, created, err := importRecord(item, tagWith)
		if err != nil {
			return res, fmt.Errorf("item %d: %w", i, err)
		}
		if created {
			res.Created++
		} else {
			res.Updated++
		}
		if url != "" {
			res.URLs = append(res.URLs, url)
		}
		log.Info().Str("type", item.str("type")).Bool("created", created).Str("url", url).Msg("imported item")
	}
	return res, nil
}

func importRecord(item BlogItem, tagWith string) (string, bool, error) {
	switch typ := item.str("type"); typ {
	case models.KindEntry, models.KindQuotation, models.KindBlogmark, models.KindNote:
		return importContent(item, tagWith)
	case "series":
		return importSeries(item)
	case "guide":
		return importGuide(item)
	case "guide_section":
		return importGuideSection(item)
	case models.KindChapter:
		return importChapter(item, tagWith)
	case "newsletter":
		return importNewsletter(item)
	case "sponsor":
		return importSponsor(item)
	case "redirect":
		return importRedirect(item)
	default:
		return "", false, fmt.Errorf("unknown type %q", typ)
	}
}

// Columns written for each content type, on top of the base columns. A
// re-import touches only these, so drafts and other local edits survive.
var importedColumns = map[string][]string{
	models.KindEntry:     {"title", "body"},
	models.KindQuotation: {"quotation", "source", "source_url"},
	models.KindBlogmark:  {"link_url", "link_title", "via_url", "via_title", "commentary"},
	models.KindNote:      {"title", "body"},
}

func importContent(item BlogItem, tagWith string) (string, bool, error) {
	created, err := parseTime(item.str("datetime"))
	if err != nil {
		return "", false, err
	}
	base := models.Base{
		Created:  created,
		Slug:     strings.Trim(truncateRunes(item.str("slug"), maxSlug), "-"),
		Metadata: datatypes.JSONMap(item),
	}
	cols := []string{"created", "slug", "metadata"}
	if ref := item.str("import_ref"); ref != "" {
		base.ImportRef = &ref
	}
	if item.has("is_draft") {
		base.IsDraft = item.boolean("is_draft")
		cols = append(cols, "is_draft")
	}
	if item.has("card_image") {
		base.CardImage = item.str("card_image")
		cols = append(cols, "card_image")
	}
	if slug := item.str("series"); slug != "" {
		var series models.Series
		if err := db.DB.Where("slug = ?", slug).First(&series).Error; err != nil {
			return "", false, fmt.Errorf("series %q: %w", slug, err)
		}
		base.SeriesID = &series.ID
		cols = append(cols, "series_id")
	}

	var obj models.Item
	switch typ := item.str("type"); typ {
	case models.KindEntry:
		e := &models.Entry{Base: base, Title: item.str("title"), Body: item.str("body")}
		if item.has("custom_template") {
			e.CustomTemplate = item.str("custom_template")
			cols = append(cols, "custom_template")
		}
		obj = e
	case models.KindQuotation:
		obj = &models.Quotation{Base: base, Quotation: item.str("quotation"),
			Source: item.str("source"), SourceURL: item.str("source_url")}
	case models.KindBlogmark:
		obj = &models.Blogmark{Base: base, LinkURL: item.str("link_url"), LinkTitle: item.str("link_title"),
			ViaURL: item.str("via_url"), ViaTitle: item.str("via_title"), Commentary: item.str("commentary")}
	case models.KindNote:
		obj = &models.Note{Base: base, Title: item.str("title"), Body: item.str("body")}
	}
	cols = append(cols, importedColumns[obj.Kind()]...)

	tags := item.tags()
	if tagWith != "" {
		tags = append(tags, tagWith)
	}
	wasCreated, err := upsertItem(obj, base.ImportRef, cols, tags)
	if err != nil {
		return "", false, err
	}
	return obj.AbsoluteURL(), wasCreated, nil
}

// upsertItem creates obj, or, when a row already carries ref, updates only
// cols on that row.
func upsertItem(obj models.Item, ref *string, cols []string, tags []string) (bool, error) {
	created := true
	err := db.DB.Transaction(func(tx *gorm.DB) error {
		if ref != nil {
			var existing struct{ ID uint }
			k, _ := content.KindByName(obj.Kind())
			res := tx.Table(k.Table).Select("id").Where("import_ref = ?", *ref).Limit(1).Scan(&existing)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				created = false
				setID(obj, existing.ID)
				if err := tx.Model(obj).Select(cols).Updates(obj).Error; err != nil {
					return err
				}
				return SetTags(tx, obj, tags)
			}
		}
		if err := tx.Omit("Tags").Create(obj).Error; err != nil {
			return err
		}
		return SetTags(tx, obj, tags)
	})
	if err != nil {
		return false, err
	}
	search.GetIndexer().Schedule(obj.Kind(), obj.GetID())
	return created, nil
}

func setID(obj models.Item, id uint) {
	switch o := obj.(type) {
	case *models.Entry:
		o.ID = id
	case *models.Blogmark:
		o.ID = id
	case *models.Quotation:
		o.ID = id
	case *models.Note:
		o.ID = id
	}
}

// findOrNew loads the row matching where into dest and reports whether it
// is new. Only the fields an import sets are assigned afterwards, so Save
// writes the other columns back unchanged.
func findOrNew(tx *gorm.DB, dest interface{}, where string, args ...interface{}) (bool, error) {
	err := tx.Where(where, args...).First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true, nil
	}
	return false, err
}

func requireKey(item BlogItem, keys ...string) error {
	for _, k := range keys {
		if strings.TrimSpace(item.str(k)) == "" {
			return fmt.Errorf("%s: %q is required", item.str("type"), k)
		}
	}
	return nil
}

func importSeries(item BlogItem) (string, bool, error) {
	if err := requireKey(item, "slug", "title"); err != nil {
		return "", false, err
	}
	var s models.Series
	isNew, err := findOrNew(db.DB, &s, "slug = ?", item.str("slug"))
	if err != nil {
		return "", false, err
	}
	s.Slug = item.str("slug")
	s.Title = item.str("title")
	s.Summary = item.str("summary")
	if err := db.DB.Save(&s).Error; err != nil {
		return "", false, err
	}
	return s.URL(), isNew, nil
}

func importGuide(item BlogItem) (string, bool, error) {
	if err := requireKey(item, "slug", "title"); err != nil {
		return "", false, err
	}
	var g models.Guide
	isNew, err := findOrNew(db.DB, &g, "slug = ?", item.str("slug"))
	if err != nil {
		return "", false, err
	}
	g.Slug = item.str("slug")
	g.Title = item.str("title")
	g.Description = item.str("description")
	if item.has("is_draft") {
		g.IsDraft = item.boolean("is_draft")
	}
	if err := db.DB.Save(&g).Error; err != nil {
		return "", false, err
	}
	return g.URL(), isNew, nil
}

func guideBySlug(tx *gorm.DB, slug string) (*models.Guide, error) {
	var g models.Guide
	if err := tx.Where("slug = ?", slug).First(&g).Error; err != nil {
		return nil, fmt.Errorf("guide %q: %w", slug, err)
	}
	return &g, nil
}

func importGuideSection(item BlogItem) (string, bool, error) {
	if err := requireKey(item, "guide", "slug", "title"); err != nil {
		return "", false, err
	}
	guide, err := guideBySlug(db.DB, item.str("guide"))
	if err != nil {
		return "", false, err
	}
	var s models.GuideSection
	isNew, err := findOrNew(db.DB, &s, "guide_id = ? AND slug = ?", guide.ID, item.str("slug"))
	if err != nil {
		return "", false, err
	}
	s.GuideID = guide.ID
	s.Slug = item.str("slug")
	s.Title = item.str("title")
	s.Order = item.integer("order")
	if err := db.DB.Omit("Guide").Save(&s).Error; err != nil {
		return "", false, err
	}
	return "", isNew, nil
}

// importChapter saves through the model hooks, so every change to the
// title, body or draft state adds a ChapterChange. change_note and
// is_notable annotate the change this import produced.
func importChapter(item BlogItem, tagWith string) (string, bool, error) {
	if err := requireKey(item, "guide", "slug", "title"); err != nil {
		return "", false, err
	}
	created, err := item.date("datetime")
	if err != nil {
		return "", false, err
	}
	var ch models.Chapter
	var isNew bool
	var guide *models.Guide
	err = db.DB.Transaction(func(tx *gorm.DB) error {
		guide, err = guideBySlug(tx, item.str("guide"))
		if err != nil {
			return err
		}
		isNew, err = findOrNew(tx, &ch, "guide_id = ? AND slug = ?", guide.ID, item.str("slug"))
		if err != nil {
			return err
		}
		var before int64
		if !isNew {
			if err := tx.Model(&models.ChapterChange{}).Where("chapter_id = ?", ch.ID).Count(&before).Error; err != nil {
				return err
			}
		}

		ch.GuideID = guide.ID
		ch.Slug = item.str("slug")
		ch.Title = item.str("title")
		ch.Body = item.str("body")
		ch.Order = item.integer("order")
		if isNew && !created.IsZero() {
			ch.Created = created
		}
		if item.has("is_draft") {
			ch.IsDraft = item.boolean("is_draft")
		}
		if item.has("is_unlisted") {
			ch.IsUnlisted = item.boolean("is_unlisted")
		}
		ch.SectionID = nil
		if slug := item.str("section"); slug != "" {
			var s models.GuideSection
			if err := tx.Where("guide_id = ? AND slug = ?", guide.ID, slug).First(&s).Error; err != nil {
				return fmt.Errorf("section %q: %w", slug, err)
			}
			ch.SectionID = &s.ID
		}

		q := tx.Omit("Guide", "Section", "Tags")
		if isNew {
			err = q.Create(&ch).Error
		} else {
			err = q.Save(&ch).Error
		}
		if err != nil {
			return err
		}

		tags := item.tags()
		if tagWith != "" {
			tags = append(tags, tagWith)
		}
		if err := SetTags(tx, &ch, tags); err != nil {
			return err
		}
		return annotateChange(tx, ch.ID, before, item)
	})
	if err != nil {
		return "", false, err
	}
	search.GetIndexer().Schedule(models.KindChapter, ch.ID)
	ch.Guide = guide
	return ch.AbsoluteURL(), isNew, nil
}

func annotateChange(tx *gorm.DB, chapterID uint, before int64, item BlogItem) error {
	if !item.has("change_note") && !item.has("is_notable") {
		return nil
	}
	var changes []models.ChapterChange
	err := tx.Where("chapter_id = ?", chapterID).Order("created DESC, id DESC").Find(&changes).Error
	if err != nil || int64(len(changes)) <= before {
		return err
	}
	return tx.Model(&changes[0]).Updates(map[string]interface{}{
		"change_note": item.str("change_note"),
		"is_notable":  item.boolean("is_notable"),
	}).Error
}

func importNewsletter(item BlogItem) (string, bool, error) {
	if err := requireKey(item, "subject"); err != nil {
		return "", false, err
	}
	sent, err := item.date("sent_at")
	if err != nil {
		return "", false, err
	}
	var n models.Newsletter
	isNew, err := findOrNew(db.DB, &n, "subject = ?", item.str("subject"))
	if err != nil {
		return "", false, err
	}
	n.Subject = item.str("subject")
	n.Body = item.str("body")
	if !sent.IsZero() {
		n.SentAt = &sent
	}
	if err := db.DB.Save(&n).Error; err != nil {
		return "", false, err
	}
	return n.URL(), isNew, nil
}

func importSponsor(item BlogItem) (string, bool, error) {
	if err := requireKey(item, "name", "message", "display_from", "display_until"); err != nil {
		return "", false, err
	}
	from, err := item.date("display_from")
	if err != nil {
		return "", false, err
	}
	until, err := item.date("display_until")
	if err != nil {
		return "", false, err
	}
	if !until.After(from) {
		return "", false, errors.New("sponsor: display_until must be after display_from")
	}
	var s models.SponsorMessage
	isNew, err := findOrNew(db.DB, &s, "name = ?", item.str("name"))
	if err != nil {
		return "", false, err
	}
	s.Name = item.str("name")
	s.Message = item.str("message")
	s.LearnMoreURL = item.str("learn_more_url")
	s.Notes = item.str("notes")
	s.DisplayFrom = from
	s.DisplayUntil = until
	if isNew {
		s.IsActive = true
		s.ColorScheme = models.ColorSchemes[0]
	}
	if item.has("is_active") {
		s.IsActive = item.boolean("is_active")
	}
	if scheme := item.str("color_scheme"); scheme != "" {
		if !validColorScheme(scheme) {
			return "", false, fmt.Errorf("sponsor: unknown color_scheme %q", scheme)
		}
		s.ColorScheme = scheme
	}
	if err := db.DB.Save(&s).Error; err != nil {
		return "", false, err
	}
	return "", isNew, nil
}

func validColorScheme(s string) bool {
	for _, c := range models.ColorSchemes {
		if c == s {
			return true
		}
	}
	return false
}

// importRedirect keys on (domain, path). Paths are stored without the
// leading slash.
func importRedirect(item BlogItem) (string, bool, error) {
	if err := requireKey(item, "domain", "path", "target"); err != nil {
		return "", false, err
	}
	domain := strings.ToLower(strings.TrimSpace(item.str("domain")))
	path := strings.TrimLeft(strings.TrimSpace(item.str("path")), "/")
	var r models.Redirect
	isNew, err := findOrNew(db.DB, &r, "domain = ? AND path = ?", domain, path)
	if err != nil {
		return "", false, err
	}
	r.Domain = domain
	r.Path = path
	r.Target = item.str("target")
	if err := db.DB.Save(&r).Error; err != nil {
		return "", false, err
	}
	return "", isNew, nil
}

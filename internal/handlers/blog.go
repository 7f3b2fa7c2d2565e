package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"weblog/internal/content"
	"weblog/internal/db"
	"weblog/internal/middleware"
	"weblog/internal/models"
	"weblog/internal/services"
	"weblog/internal/utils"
)

const homeCacheTTL = time.Minute

type BlogHandler struct {
	cache *utils.PageCache
}

func NewBlogHandler() *BlogHandler {
	return &BlogHandler{cache: utils.GetCache()}
}

// activeSponsor returns the sponsor message showing at now, if any.
func activeSponsor(tx *gorm.DB, now time.Time) (*models.SponsorMessage, error) {
	var s models.SponsorMessage
	err := tx.Where("is_active = ? AND display_from <= ? AND display_until > ?", true, now, now).
		Order("display_from DESC").First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Index is the homepage: the 30 newest items of every kind.
func (h *BlogHandler) Index(c *gin.Context) {
	items, err := utils.Remember(h.cache, "home:recent", homeCacheTTL, func() ([]models.Item, error) {
		return content.Recent(db.DB, 30)
	})
	if err != nil {
		serverError(c, err)
		return
	}
	tags, err := content.CurrentTags(db.DB, 5)
	if err != nil {
		serverError(c, err)
		return
	}
	sponsor, err := activeSponsor(db.DB, time.Now().UTC())
	if err != nil {
		serverError(c, err)
		return
	}
	c.Header("Cache-Control", "s-maxage=200")
	Render(c, http.StatusOK, "index.html", gin.H{
		"Items":       items,
		"CurrentTags": tags,
		"Sponsor":     sponsor,
	})
}

// KindCount is one "3 entries" style figure in the year archive.
type KindCount struct {
	Kind  string
	Count int
	Label string
}

// MonthSummary is one row of the year archive.
type MonthSummary struct {
	Date    time.Time
	Total   int
	Counts  []KindCount
	Entries []models.Entry
}

func (m MonthSummary) URL() string {
	return fmt.Sprintf("/%d/%s/", m.Date.Year(), m.Date.Format("Jan"))
}

// summariseYear groups refs into months that have content, oldest first.
func summariseYear(year int, refs []content.Ref, entries []models.Entry) []MonthSummary {
	counts := map[time.Month]map[string]int{}
	for _, r := range refs {
		m := r.Created.UTC().Month()
		if counts[m] == nil {
			counts[m] = map[string]int{}
		}
		counts[m][r.Type]++
	}
	var out []MonthSummary
	for m := time.January; m <= time.December; m++ {
		byKind, ok := counts[m]
		if !ok {
			continue
		}
		s := MonthSummary{Date: time.Date(year, m, 1, 0, 0, 0, 0, time.UTC)}
		for _, k := range content.Kinds {
			n := byKind[k.Name]
			if n == 0 {
				continue
			}
			s.Total += n
			s.Counts = append(s.Counts, KindCount{Kind: k.Name, Count: n, Label: utils.Pluralize(n, k.Singular, k.Plural)})
		}
		for _, e := range entries {
			if e.Created.UTC().Month() == m {
				s.Entries = append(s.Entries, e)
			}
		}
		out = append(out, s)
	}
	return out
}

func (h *BlogHandler) Year(c *gin.Context) {
	year, ok := parseYear(c.Param("year"))
	if !ok {
		notFound(c)
		return
	}
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(1, 0, 0)
	refs, err := content.Refs(db.DB, content.Selector{Where: content.Between(from, to)}, "created", 0, 0)
	if err != nil {
		serverError(c, err)
		return
	}
	if len(refs) == 0 {
		notFound(c)
		return
	}
	var entries []models.Entry
	err = db.DB.Select("id", "title", "slug", "created").
		Where("is_draft = false AND created >= ? AND created < ?", from, to).
		Order("created").Find(&entries).Error
	if err != nil {
		serverError(c, err)
		return
	}
	Render(c, http.StatusOK, "archive_year.html", gin.H{
		"Year":   year,
		"Months": summariseYear(year, refs, entries),
		"Total":  len(refs),
	})
}

func (h *BlogHandler) Month(c *gin.Context) {
	from, ok := parseMonth(c.Param("year"), c.Param("month"))
	if !ok {
		notFound(c)
		return
	}
	to := from.AddDate(0, 1, 0)
	items, err := content.InRange(db.DB, from, to)
	if err != nil {
		serverError(c, err)
		return
	}
	if len(items) == 0 {
		notFound(c)
		return
	}
	counts, err := content.TagCounts(db.DB, content.Selector{Where: content.Between(from, to)}, 0)
	if err != nil {
		serverError(c, err)
		return
	}
	cal, err := services.BuildCalendar(db.DB, from)
	if err != nil {
		serverError(c, err)
		return
	}
	Render(c, http.StatusOK, "archive_month.html", gin.H{
		"Title":    monthTitle(from),
		"Month":    from,
		"Items":    items,
		"TagCloud": utils.RenderTagCloud(utils.TagCloud(counts)),
		"Calendar": cal,
	})
}

func (h *BlogHandler) Day(c *gin.Context) {
	day, ok := parseDay(c.Param("year"), c.Param("month"), c.Param("day"))
	if !ok {
		notFound(c)
		return
	}
	if utils.HasZeroPadding(c.Param("day")) {
		c.Redirect(http.StatusMovedPermanently, models.DatePath(day))
		return
	}
	items, err := content.InRange(db.DB, day, day.AddDate(0, 0, 1))
	if err != nil {
		serverError(c, err)
		return
	}
	if len(items) == 0 {
		notFound(c)
		return
	}
	cal, err := services.BuildCalendar(db.DB, day)
	if err != nil {
		serverError(c, err)
		return
	}
	Render(c, http.StatusOK, "archive_day.html", gin.H{
		"Title":    models.LongDate(day),
		"Day":      day,
		"Items":    items,
		"Calendar": cal,
	})
}

// previouslyHostedURL is where entries from the old platform used to live.
func previouslyHostedURL(e *models.Entry) string {
	return "http://simon.incutio.com/archive/" + e.Created.UTC().Format("2006/01/02/") + e.Slug
}

// Item serves one entry, blogmark, quotation, note or beat. Drafts are
// reachable by URL but never cached or indexed.
func (h *BlogHandler) Item(c *gin.Context) {
	day, ok := parseDay(c.Param("year"), c.Param("month"), c.Param("day"))
	if !ok {
		notFound(c)
		return
	}
	slug := c.Param("slug")
	if utils.HasZeroPadding(c.Param("day")) {
		c.Redirect(http.StatusMovedPermanently, models.DatePath(day)+slug+"/")
		return
	}
	item, err := content.FindByDateSlug(db.DB, day, slug)
	if err != nil {
		lookupFailed(c, err)
		return
	}
	if item.Draft() {
		middleware.NoCache(c)
	}
	data := gin.H{
		"Item":  item,
		"Kind":  item.Kind(),
		"Title": item.DisplayTitle(),
	}
	if e, ok := item.(*models.Entry); ok {
		series, err := content.LoadSeriesInfo(db.DB, e)
		if err != nil {
			serverError(c, err)
			return
		}
		data["Series"] = series
		if e.PreviouslyHosted() {
			data["PreviouslyHosted"] = previouslyHostedURL(e)
		}
	}
	recent, err := content.Latest(db.DB, recentLimit(item.Kind()), models.KindEntry)
	if err != nil {
		serverError(c, err)
		return
	}
	data["RecentArticles"] = recent
	Render(c, http.StatusOK, itemView(item), data)
}

// recentLimit is how many recent articles a permalink page lists.
func recentLimit(kind string) int {
	if kind == models.KindEntry {
		return 10
	}
	return 6
}

// itemView is the entry's custom template when the renderer has one by
// that name, otherwise item.html.
func itemView(item models.Item) string {
	if e, ok := item.(*models.Entry); ok && e.CustomTemplate != "" && views[e.CustomTemplate] {
		return e.CustomTemplate
	}
	return "item.html"
}

// legacyDate parses the numeric /archive/YYYY/MM/DD/ form.
func legacyDate(c *gin.Context) (time.Time, bool) {
	y, err1 := strconv.Atoi(c.Param("yyyy"))
	m, err2 := strconv.Atoi(c.Param("mm"))
	d, err3 := strconv.Atoi(c.Param("dd"))
	if err1 != nil || err2 != nil || err3 != nil || m < 1 || m > 12 || d < 1 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

func (h *BlogHandler) LegacyDay(c *gin.Context) {
	t, ok := legacyDate(c)
	if !ok {
		notFound(c)
		return
	}
	c.Redirect(http.StatusMovedPermanently, models.DatePath(t))
}

func (h *BlogHandler) LegacyItem(c *gin.Context) {
	t, ok := legacyDate(c)
	if !ok {
		notFound(c)
		return
	}
	slug := strings.TrimSuffix(c.Param("slug"), "/")
	c.Redirect(http.StatusMovedPermanently, models.DatePath(t)+slug+"/")
}

// ByID returns a handler redirecting /e/:id style short links for kind.
func (h *BlogHandler) ByID(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			notFound(c)
			return
		}
		item, err := content.Load(db.DB, kind, uint(id))
		if err != nil {
			lookupFailed(c, err)
			return
		}
		c.Redirect(http.StatusMovedPermanently, item.AbsoluteURL())
	}
}

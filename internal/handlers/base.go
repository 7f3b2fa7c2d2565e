package handlers

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"weblog/internal/config"
	"weblog/internal/feeds"
	"weblog/internal/logger"
	"weblog/internal/middleware"
	"weblog/internal/models"
)

// Site holds the settings every page and feed needs.
type Site struct {
	URL         string
	Title       string
	AnalyticsID string
}

var site = Site{URL: config.DefaultSiteURL, Title: config.DefaultSiteTitle}

// Configure installs the site settings used by Render and the feeds.
func Configure(cfg *config.Config) {
	site = Site{URL: cfg.SiteURL, Title: cfg.SiteTitle, AnalyticsID: cfg.GoogleAnalyticsID}
}

var views = map[string]bool{}

// RegisterViews records the template names the renderer can serve.
func RegisterViews(names ...string) {
	for _, n := range names {
		views[n] = true
	}
}

func feedBuilder() feeds.Builder {
	return feeds.Builder{SiteURL: site.URL, SiteTitle: site.Title}
}

// Render injects the current user, path and site settings into every template.
func Render(c *gin.Context, code int, name string, obj gin.H) {
	if obj == nil {
		obj = gin.H{}
	}
	if user := middleware.CurrentUser(c); user != nil {
		obj["CurrentUser"] = user
	}
	obj["IsStaff"] = middleware.IsStaff(c)
	obj["CurrentPath"] = c.Request.URL.Path
	obj["Site"] = site
	c.HTML(code, name, obj)
}

func RenderError(c *gin.Context, code int, message string) {
	Render(c, code, "error.html", gin.H{"Error": message, "Status": code})
}

func notFound(c *gin.Context) {
	RenderError(c, http.StatusNotFound, "Page not found")
}

func serverError(c *gin.Context, err error) {
	logger.L().Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	RenderError(c, http.StatusInternalServerError, "Something went wrong")
}

// lookupFailed maps record-not-found to a 404 and everything else to a 500.
func lookupFailed(c *gin.Context, err error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		notFound(c)
		return
	}
	serverError(c, err)
}

// writeFeed serves an Atom document with the CDN cache header feeds use.
func writeFeed(c *gin.Context, feed *feeds.Feed) {
	body, err := feed.Marshal()
	if err != nil {
		serverError(c, err)
		return
	}
	c.Header("Cache-Control", "s-maxage=120")
	c.Data(http.StatusOK, feeds.ContentType, body)
}

// parseYear accepts four digit years only.
func parseYear(s string) (int, bool) {
	if len(s) != 4 {
		return 0, false
	}
	y, err := strconv.Atoi(s)
	if err != nil || y < 1000 {
		return 0, false
	}
	return y, true
}

// parseMonth resolves /YYYY/Mon/ path segments to the first of that month.
func parseMonth(year, mon string) (time.Time, bool) {
	y, ok := parseYear(year)
	if !ok {
		return time.Time{}, false
	}
	m, ok := models.ParseMonth(mon)
	if !ok {
		return time.Time{}, false
	}
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC), true
}

// parseDay resolves /YYYY/Mon/D/, rejecting days the month does not have.
func parseDay(year, mon, day string) (time.Time, bool) {
	first, ok := parseMonth(year, mon)
	if !ok {
		return time.Time{}, false
	}
	d, err := strconv.Atoi(day)
	if err != nil || d < 1 {
		return time.Time{}, false
	}
	t := first.AddDate(0, 0, d-1)
	if t.Month() != first.Month() {
		return time.Time{}, false
	}
	return t, true
}

// Pager is the pagination block shared by tag archives and listings.
type Pager struct {
	Page     int
	NumPages int
	Total    int64
	Prev     string
	Next     string
}

func numPages(total int64, size int) int {
	n := int(math.Ceil(float64(total) / float64(size)))
	if n < 1 {
		n = 1
	}
	return n
}

// pageURL keeps the current query string and swaps in page n.
func pageURL(u *url.URL, n int) string {
	q := u.Query()
	if n <= 1 {
		q.Del("page")
	} else {
		q.Set("page", strconv.Itoa(n))
	}
	if len(q) == 0 {
		return u.Path
	}
	return u.Path + "?" + q.Encode()
}

func newPager(u *url.URL, page, pages int, total int64) Pager {
	p := Pager{Page: page, NumPages: pages, Total: total}
	if page > 1 {
		p.Prev = pageURL(u, page-1)
	}
	if page < pages {
		p.Next = pageURL(u, page+1)
	}
	return p
}

func monthTitle(t time.Time) string {
	return fmt.Sprintf("%s %d", t.Month(), t.Year())
}

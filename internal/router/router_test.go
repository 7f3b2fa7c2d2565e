package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"weblog/internal/config"
	"weblog/internal/models"
	"weblog/internal/search"
	"weblog/internal/testenv"
	"weblog/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setup(t *testing.T) (*gin.Engine, *gorm.DB) {
	conn := testenv.DB(t)
	utils.GetCache().Purge()
	search.GetIndexer().SetSynchronous(true)
	cfg := config.FromEnv()
	cfg.SecretKey = "test-secret-key"
	cfg.SiteURL = "https://example.com"
	cfg.SiteTitle = "Test Blog"
	cfg.Staging = false
	cfg.ImportSources = map[string]string{}
	r, err := Setup(cfg)
	require.NoError(t, err)
	return r, conn
}

func do(r http.Handler, method, target string, body url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(body.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.Host = "example.com"
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func get(r http.Handler, target string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	return do(r, http.MethodGet, target, nil, cookies...)
}

var march5 = time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC)

func mustTag(t *testing.T, conn *gorm.DB, name string) models.Tag {
	tag := models.Tag{Tag: name}
	require.NoError(t, conn.Create(&tag).Error)
	return tag
}

func mustEntry(t *testing.T, conn *gorm.DB, slug, title string, created time.Time, draft bool, tags ...models.Tag) *models.Entry {
	e := &models.Entry{
		Base:  models.Base{Slug: slug, Created: created, IsDraft: draft},
		Title: title,
		Body:  "<p>" + title + " body</p>",
		Tags:  tags,
	}
	require.NoError(t, conn.Create(e).Error)
	return e
}

func login(t *testing.T, r http.Handler, conn *gorm.DB) []*http.Cookie {
	u := models.User{Username: "simon", IsStaff: true}
	require.NoError(t, u.SetPassword("hunter2"))
	require.NoError(t, conn.Create(&u).Error)
	w := do(r, http.MethodPost, "/login/", url.Values{"username": {"simon"}, "password": {"hunter2"}, "next": {"/admin/"}})
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/admin/", w.Header().Get("Location"))
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies
}

func TestHomepage(t *testing.T) {
	r, conn := setup(t)
	mustEntry(t, conn, "hello", "Hello world", march5, false)
	mustEntry(t, conn, "secret", "Secret draft", march5, true)
	require.NoError(t, conn.Create(&models.Quotation{Base: models.Base{Slug: "q", Created: march5}, Quotation: "Quoted words", Source: "Ada"}).Error)

	w := get(r, "/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "s-maxage=200", w.Header().Get("Cache-Control"))
	assert.Contains(t, w.Body.String(), "Hello world")
	assert.Contains(t, w.Body.String(), "Quoted words")
	assert.NotContains(t, w.Body.String(), "Secret draft")
}

func TestItemPages(t *testing.T) {
	r, conn := setup(t)
	mustEntry(t, conn, "hello", "Hello world", march5, false)
	mustEntry(t, conn, "secret", "Secret draft", march5, true)

	w := get(r, "/2024/Mar/5/hello/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Hello world body")

	w = get(r, "/2024/Mar/05/hello/")
	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, "/2024/Mar/5/hello/", w.Header().Get("Location"))

	w = get(r, "/2024/Mar/5/secret/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Cache-Control"), "private")
	assert.Equal(t, "noindex", w.Header().Get("X-Robots-Tag"))

	assert.Equal(t, http.StatusNotFound, get(r, "/2024/Mar/6/hello/").Code)
	assert.Equal(t, http.StatusNotFound, get(r, "/2024/Feb/30/hello/").Code)
}

func TestPreviouslyHostedEntry(t *testing.T) {
	r, conn := setup(t)
	mustEntry(t, conn, "old", "Old entry", time.Date(2003, 6, 9, 10, 0, 0, 0, time.UTC), false)
	w := get(r, "/2003/Jun/9/old/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http://simon.incutio.com/archive/2003/06/09/old")
}

func TestDateArchives(t *testing.T) {
	r, conn := setup(t)
	python := mustTag(t, conn, "python")
	mustEntry(t, conn, "hello", "Hello world", march5, false, python)

	w := get(r, "/2024/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "March 2024")

	w = get(r, "/2024/Mar/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `href="/tags/python/"`)
	assert.Contains(t, w.Body.String(), "calendar")

	w = get(r, "/2024/Mar/05/")
	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, "/2024/Mar/5/", w.Header().Get("Location"))

	assert.Equal(t, http.StatusOK, get(r, "/2024/Mar/5/").Code)
	assert.Equal(t, http.StatusNotFound, get(r, "/2024/Mar/6/").Code)
	assert.Equal(t, http.StatusNotFound, get(r, "/2023/").Code)
	assert.Equal(t, http.StatusNotFound, get(r, "/notayear/").Code)
}

func TestTagArchive(t *testing.T) {
	r, conn := setup(t)
	python := mustTag(t, conn, "python")
	django := mustTag(t, conn, "django")
	mustEntry(t, conn, "one", "Entry one", march5, false, python, django)
	mustEntry(t, conn, "two", "Entry two", march5.Add(time.Hour), false, python)
	mustEntry(t, conn, "three", "Entry three", march5.Add(2*time.Hour), false, python)
	require.NoError(t, conn.Create(&models.PreviousTagName{TagID: python.ID, PreviousName: "py"}).Error)

	w := get(r, "/tags/python+django/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Entry one")
	assert.NotContains(t, w.Body.String(), "Entry two")

	w = get(r, "/tags/py/?size=2")
	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, "/tags/python/?size=2", w.Header().Get("Location"))

	assert.Equal(t, http.StatusNotFound, get(r, "/tags/nothing/").Code)
	assert.Equal(t, http.StatusOK, get(r, "/tags/python/?size=2&page=last").Code)
	assert.Equal(t, http.StatusNotFound, get(r, "/tags/python/?size=2&page=3").Code)
	assert.Equal(t, http.StatusNotFound, get(r, "/tags/python/?page=abc").Code)

	w = get(r, "/tags/python.atom?size=2")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `<https://example.com/tags/python.atom?page=2&size=2>; rel="next"`, w.Header().Get("Link"))
	feed, err := gofeed.NewParser().ParseString(w.Body.String())
	require.NoError(t, err)
	assert.Equal(t, "Test Blog: python", feed.Title)
	require.Len(t, feed.Items, 2)
	assert.Equal(t, "Entry three", feed.Items[0].Title)

	w = get(r, "/tags/")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestFeeds(t *testing.T) {
	r, conn := setup(t)
	mustEntry(t, conn, "hello", "Hello world", march5, false)

	req := httptest.NewRequest(http.MethodGet, "/atom/everything/", nil)
	req.Host = "example.com"
	req.Header.Set("Origin", "https://reader.example")
	req.Header.Set("User-Agent", "Feedbin feed-id:1 - 42 subscribers")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "s-maxage=120", w.Header().Get("Cache-Control"))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	feed, err := gofeed.NewParser().ParseString(w.Body.String())
	require.NoError(t, err)
	require.Len(t, feed.Items, 1)
	assert.Equal(t, "https://example.com/2024/Mar/5/hello/#atom-everything", feed.Items[0].Link)

	var stats []models.SubscriberCount
	require.NoError(t, conn.Find(&stats).Error)
	require.Len(t, stats, 1)
	assert.Equal(t, 42, stats[0].Count)
	assert.Equal(t, "/atom/everything/", stats[0].Path)

	w = get(r, "/atom/entries/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "long-form articles")
}

func TestTagAndGuideFeedsAreOpenAndCounted(t *testing.T) {
	r, conn := setup(t)
	python := mustTag(t, conn, "python")
	mustEntry(t, conn, "hello", "Hello world", march5, false, python)
	guide := models.Guide{Slug: "llms", Title: "Using LLMs"}
	require.NoError(t, conn.Create(&guide).Error)

	for _, target := range []string{"/tags/python.atom", "/guides/llms.atom"} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.Host = "example.com"
		req.Header.Set("Origin", "https://reader.example")
		req.Header.Set("User-Agent", "Feedly/1.0 (+http://www.feedly.com/fetcher.html; 7 subscribers)")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code, target)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"), target)
	}

	var paths []string
	require.NoError(t, conn.Model(&models.SubscriberCount{}).Order("path").Pluck("path", &paths).Error)
	assert.Equal(t, []string{"/guides/llms.atom", "/tags/python.atom"}, paths)

	req := httptest.NewRequest(http.MethodOptions, "/series/none.atom", nil)
	req.Host = "example.com"
	req.Header.Set("Origin", "https://reader.example")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSearchRejectsTooManyTags(t *testing.T) {
	r, _ := setup(t)
	w := get(r, "/search/?tag=a&tag=b&tag=c")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Too many tags", w.Body.String())

	assert.Equal(t, http.StatusOK, get(r, "/search/").Code)
	assert.Equal(t, http.StatusNotFound, get(r, "/search/?page=9").Code)
}

func TestAmpersandRedirect(t *testing.T) {
	r, _ := setup(t)
	w := get(r, "/search/?q=a&amp;tag=b")
	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, "/search/?q=a&tag=b", w.Header().Get("Location"))
}

func TestLegacyRedirects(t *testing.T) {
	r, conn := setup(t)
	e := mustEntry(t, conn, "hello", "Hello world", march5, false)

	w := get(r, "/archive/2024/03/05/")
	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, "/2024/Mar/5/", w.Header().Get("Location"))

	w = get(r, "/archive/2024/03/05/hello")
	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, "/2024/Mar/5/hello/", w.Header().Get("Location"))

	w = get(r, "/e/"+strconv.Itoa(int(e.ID)))
	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, "/2024/Mar/5/hello/", w.Header().Get("Location"))

	assert.Equal(t, http.StatusNotFound, get(r, "/b/999").Code)
}

func TestDomainRedirects(t *testing.T) {
	r, conn := setup(t)
	require.NoError(t, conn.Create(&models.Redirect{Domain: "example.com", Path: "about", Target: "https://example.com/about-me/"}).Error)
	w := get(r, "/about")
	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, "https://example.com/about-me/", w.Header().Get("Location"))
}

func TestSitemapAndRobots(t *testing.T) {
	r, conn := setup(t)
	mustEntry(t, conn, "hello", "Hello world", march5, false)
	mustEntry(t, conn, "secret", "Secret draft", march5, true)

	w := get(r, "/sitemap.xml")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<url><loc>https://example.com/2024/Mar/5/hello/</loc></url>")
	assert.NotContains(t, w.Body.String(), "secret")

	w = get(r, "/robots.txt")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Sitemap: https://example.com/sitemap.xml")
}

func TestGuides(t *testing.T) {
	r, conn := setup(t)
	guide := models.Guide{Slug: "llms", Title: "Using LLMs"}
	require.NoError(t, conn.Create(&guide).Error)
	draftGuide := models.Guide{Slug: "wip", Title: "Work in progress", IsDraft: true}
	require.NoError(t, conn.Create(&draftGuide).Error)
	first := models.Chapter{Base: models.Base{Slug: "intro", Created: march5}, GuideID: guide.ID, Title: "Intro", Body: "Hello", Order: 1}
	second := models.Chapter{Base: models.Base{Slug: "next", Created: march5}, GuideID: guide.ID, Title: "Next steps", Body: "More", Order: 2}
	require.NoError(t, conn.Create(&first).Error)
	require.NoError(t, conn.Create(&second).Error)
	first.Body = "Hello again"
	require.NoError(t, conn.Save(&first).Error)

	w := get(r, "/guides/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "2 chapters")
	assert.NotContains(t, w.Body.String(), "Work in progress")

	assert.Equal(t, http.StatusNotFound, get(r, "/guides/wip/").Code)

	w = get(r, "/guides/llms/intro/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `href="/guides/llms/next/" rel="next"`)

	w = get(r, "/guides/llms/intro/changes/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "+Hello again")

	w = get(r, "/guides/llms.atom")
	require.Equal(t, http.StatusOK, w.Code)
	feed, err := gofeed.NewParser().ParseString(w.Body.String())
	require.NoError(t, err)
	assert.Len(t, feed.Items, 2)
}

func TestMonthly(t *testing.T) {
	r, conn := setup(t)
	sent := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, conn.Create(&models.Newsletter{Subject: "March news", Body: "Things happened", SentAt: &sent}).Error)

	w := get(r, "/monthly/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `href="/monthly/2024-03/"`)

	w = get(r, "/monthly/2024-03/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Things happened")

	assert.Equal(t, http.StatusNotFound, get(r, "/monthly/2024-04/").Code)
	assert.Equal(t, http.StatusNotFound, get(r, "/monthly/march/").Code)
}

func TestStaffRoutes(t *testing.T) {
	r, conn := setup(t)
	python := mustTag(t, conn, "python")
	py := mustTag(t, conn, "py")
	e := mustEntry(t, conn, "hello", "Hello world", march5, false, py)

	w := get(r, "/admin/merge-tags/")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login/?next=%2Fadmin%2Fmerge-tags%2F", w.Header().Get("Location"))

	w = do(r, http.MethodPost, "/login/", url.Values{"username": {"simon"}, "password": {"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	cookies := login(t, r, conn)

	w = get(r, "/admin/merge-tags/?q=py", cookies...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Cache-Control"), "no-cache")

	w = do(r, http.MethodPost, "/api/add-tag/", url.Values{
		"content_type": {"entry"}, "object_id": {strconv.Itoa(int(e.ID))}, "tag": {"Django"},
	}, cookies...)
	require.Equal(t, http.StatusOK, w.Code)
	var added map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &added))
	assert.Equal(t, true, added["success"])
	assert.Equal(t, "django", added["tag"])

	w = do(r, http.MethodPost, "/api/add-tag/", url.Values{
		"content_type": {"entry"}, "object_id": {"999"}, "tag": {"django"},
	}, cookies...)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodPost, "/admin/merge-tags/", url.Values{"winner": {"python"}, "loser": {"python"}}, cookies...)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/admin/merge-tags/", url.Values{"winner": {"python"}, "loser": {"py"}}, cookies...)
	require.Equal(t, http.StatusFound, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Location"), "/admin/merge-tags/?msg="))
	var n int64
	conn.Model(&models.Tag{}).Where("id = ?", py.ID).Count(&n)
	assert.Zero(t, n)

	w = get(r, "/tags/py/", cookies...)
	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, python.URL(), w.Header().Get("Location"))

	w = do(r, http.MethodPost, "/admin/import/nope", url.Values{}, cookies...)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = get(r, "/tools/extract-title/", cookies...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{}`, w.Body.String())

	w = get(r, "/tools/search-tags/?q=pyth", cookies...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"tags":["python"]}`, w.Body.String())

	w = do(r, http.MethodPost, "/admin/purge-cache/", url.Values{}, cookies...)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.True(t, bytes.Contains(w.Body.Bytes(), []byte("not configured")))
}

func TestAutocomplete(t *testing.T) {
	r, conn := setup(t)
	python := mustTag(t, conn, "python")
	mustTag(t, conn, "python3")
	mustEntry(t, conn, "hello", "Hello world", march5, false, python)

	w := get(r, "/tags-autocomplete/?q=python")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Tags []struct {
			Tag   string `json:"tag"`
			Count int    `json:"count"`
		} `json:"tags"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Tags, 2)
	assert.Equal(t, "python", body.Tags[0].Tag)
	assert.Equal(t, 1, body.Tags[0].Count)
}

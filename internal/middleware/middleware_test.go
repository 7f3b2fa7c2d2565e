package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weblog/internal/db"
	"weblog/internal/models"
	"weblog/internal/testenv"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func engine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/*path", func(c *gin.Context) {
		c.String(http.StatusOK, c.ClientIP())
	})
	return r
}

func get(r http.Handler, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMatchRedirect(t *testing.T) {
	candidates := []models.Redirect{
		{Path: "*", Target: "https://new.example.com/"},
		{Path: "about", Target: "https://example.com/about-me/"},
	}
	target, ok := MatchRedirect(candidates, "about", "")
	require.True(t, ok)
	assert.Equal(t, "https://example.com/about-me/", target)

	target, ok = MatchRedirect(candidates, "2024/Mar/5/x/", "q=1")
	require.True(t, ok)
	assert.Equal(t, "https://new.example.com/2024/Mar/5/x/?q=1", target)

	_, ok = MatchRedirect(candidates[1:], "other", "")
	assert.False(t, ok)
}

func TestFixAmpersands(t *testing.T) {
	got, ok := FixAmpersands("a=1&amp;b=2")
	require.True(t, ok)
	assert.Equal(t, "a=1&b=2", got)

	got, ok = FixAmpersands("a=1&amp%3Bb=2")
	require.True(t, ok)
	assert.Equal(t, "a=1&b=2", got)

	_, ok = FixAmpersands("a=1&b=2")
	assert.False(t, ok)
}

func TestAmpersandRedirect(t *testing.T) {
	w := get(engine(AmpersandRedirect()), "/search/?q=x&amp;tag=y", nil)
	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, "/search/?q=x&tag=y", w.Header().Get("Location"))

	w = get(engine(AmpersandRedirect()), "/search/?q=x", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestParseSubscribers(t *testing.T) {
	n, ua, ok := ParseSubscribers("Feedly/1.0 (+http://www.feedly.com/fetcher.html; 1234 subscribers)")
	require.True(t, ok)
	assert.Equal(t, 1234, n)
	assert.Equal(t, "Feedly/1.0 (+http://www.feedly.com/fetcher.html; X subscribers)", ua)

	n, _, ok = ParseSubscribers("Reader; 1 subscriber")
	require.True(t, ok)
	assert.Equal(t, 1, n)

	_, _, ok = ParseSubscribers("Mozilla/5.0")
	assert.False(t, ok)
}

type fakeRanges map[string]bool

func (f fakeRanges) Contains(ip string) bool { return f[ip] }

func TestCloudflareIP(t *testing.T) {
	r := engine(CloudflareIP(fakeRanges{"192.0.2.1": true}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:4444"
	req.Header.Set(CFConnectingIP, "203.0.113.9")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "203.0.113.9", w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.7:4444"
	req.Header.Set(CFConnectingIP, "203.0.113.9")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "198.51.100.7", w.Body.String())
}

func TestStagingAndCache(t *testing.T) {
	w := get(engine(Staging(true), CacheFor(120)), "/", nil)
	assert.Equal(t, "noindex", w.Header().Get("X-Robots-Tag"))
	assert.Equal(t, "s-maxage=120", w.Header().Get("Cache-Control"))

	w = get(engine(Staging(false)), "/", nil)
	assert.Empty(t, w.Header().Get("X-Robots-Tag"))
}

func TestFeedCORS(t *testing.T) {
	r := engine(FeedCORS())
	w := get(r, "/atom/everything/", map[string]string{"Origin": "https://reader.example"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	req := httptest.NewRequest(http.MethodOptions, "/atom/everything/", nil)
	req.Header.Set("Origin", "https://reader.example")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "1000", rec.Header().Get("Access-Control-Max-Age"))
}

func TestRedirectsFromDatabase(t *testing.T) {
	testenv.DB(t)
	require.NoError(t, db.DB.Create(&models.Redirect{Domain: "old.example.com", Path: "*", Target: "https://example.com/"}).Error)

	req := httptest.NewRequest(http.MethodGet, "http://old.example.com/tags/python/?page=2", nil)
	w := httptest.NewRecorder()
	engine(Redirects()).ServeHTTP(w, req)
	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, "https://example.com/tags/python/?page=2", w.Header().Get("Location"))

	w = get(engine(Redirects()), "/tags/python/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestFeedStatsOneRowPerDay(t *testing.T) {
	testenv.DB(t)
	r := engine(FeedStats())
	ua := map[string]string{"User-Agent": "Feedbin feed-id:1 - 42 subscribers"}
	get(r, "/atom/everything/", ua)
	get(r, "/atom/everything/", ua)

	var rows []models.SubscriberCount
	require.NoError(t, db.DB.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, 42, rows[0].Count)
	assert.Equal(t, "Feedbin feed-id:1 - X subscribers", rows[0].UserAgent)
	assert.Equal(t, time.Now().UTC().Format("2006-01-02"), rows[0].Created.UTC().Format("2006-01-02"))
}

func TestFeedStatsKeepsZeroCountsApart(t *testing.T) {
	testenv.DB(t)
	r := engine(FeedStats())
	get(r, "/atom/everything/", map[string]string{"User-Agent": "Reader - 3 subscribers"})
	get(r, "/atom/everything/", map[string]string{"User-Agent": "Reader - 0 subscribers"})

	var counts []int
	require.NoError(t, db.DB.Model(&models.SubscriberCount{}).Order("count").Pluck("count", &counts).Error)
	assert.Equal(t, []int{0, 3}, counts)
}

func TestFeedStatsSkipsFailedResponses(t *testing.T) {
	testenv.DB(t)
	r := gin.New()
	r.Use(FeedStats())
	r.GET("/tags/:tags", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	get(r, "/tags/missing.atom", map[string]string{"User-Agent": "Reader - 3 subscribers"})

	var n int64
	require.NoError(t, db.DB.Model(&models.SubscriberCount{}).Count(&n).Error)
	assert.Zero(t, n)
}

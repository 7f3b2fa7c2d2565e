package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weblog/internal/feeds"
	"weblog/internal/models"
	"weblog/internal/search"
	"weblog/internal/services"
	"weblog/internal/testenv"
)

func atomServer(t *testing.T, items []feeds.Item) *httptest.Server {
	b := feeds.Builder{SiteURL: "https://example.com", SiteTitle: "Test Blog"}
	body, err := b.Build("Test Blog", "/atom/everything/", "everything", items).Marshal()
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", feeds.ContentType)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestValidateFeed(t *testing.T) {
	at := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	srv := atomServer(t, []feeds.Item{
		{Title: "Hello", Path: "/2024/Mar/5/hello/", Created: at},
		{Title: "Second", Path: "/2024/Mar/5/second/", Created: at},
	})
	n, err := validateFeed(context.Background(), gofeed.NewParser(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestValidateFeedRejectsUntitledItems(t *testing.T) {
	srv := atomServer(t, []feeds.Item{{Path: "/2024/Mar/5/x/", Created: time.Now()}})
	_, err := validateFeed(context.Background(), gofeed.NewParser(), srv.URL)
	assert.ErrorContains(t, err, "item 0")
}

func TestValidateFeedRejectsRSS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<?xml version="1.0"?><rss version="2.0"><channel><title>x</title></channel></rss>`))
	}))
	defer srv.Close()
	_, err := validateFeed(context.Background(), gofeed.NewParser(), srv.URL)
	assert.ErrorContains(t, err, "expected atom")
}

func TestWriteRangesRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ips.txt")
	ranges := []string{"173.245.48.0/20", "2400:cb00::/32"}
	require.NoError(t, writeRanges(path, ranges))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, ranges, services.ParseRangeList(data))
}

func TestUpsertStaff(t *testing.T) {
	conn := testenv.DB(t)

	created, err := upsertStaff(conn, "simon", "first")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = upsertStaff(conn, "simon", "second")
	require.NoError(t, err)
	assert.False(t, created)

	var u models.User
	require.NoError(t, conn.Where("username = ?", "simon").First(&u).Error)
	assert.True(t, u.IsStaff)
	assert.True(t, u.CheckPassword("second"))
	assert.False(t, u.CheckPassword("first"))

	_, err = upsertStaff(conn, " ", "x")
	assert.Error(t, err)
}

func TestRootCommandListsSubcommands(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--help"})
	require.NoError(t, root.Execute())
	for _, name := range []string{"migrate", "import", "import-json", "import-feed", "reindex", "createstaff", "fetch-cloudflare-ips", "validate-feeds"} {
		assert.Contains(t, out.String(), name)
	}
}

func TestImportJSONCommandIndexesBeforeExit(t *testing.T) {
	conn := testenv.DB(t)
	search.GetIndexer().SetSynchronous(false)
	t.Cleanup(func() { search.GetIndexer().SetSynchronous(true) })

	path := filepath.Join(t.TempDir(), "items.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"type": "entry", "datetime": "2024-03-05T10:00:00", "slug": "pelicans",
		 "title": "Pelicans on bicycles", "body": "<p>Generating SVGs</p>", "import_ref": "wp:42"}
	]`), 0o644))

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"import-json", path})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "1 created, 0 updated")

	var indexed bool
	require.NoError(t, conn.Raw(
		`SELECT COALESCE(search_document @@ websearch_to_tsquery('english', 'pelicans'), false) FROM entries WHERE import_ref = ?`,
		"wp:42").Scan(&indexed).Error)
	assert.True(t, indexed, "search document is written before the command returns")
}

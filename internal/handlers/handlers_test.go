package handlers

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weblog/internal/content"
	"weblog/internal/models"
	"weblog/internal/search"
	"weblog/internal/utils"
)

func TestParseDay(t *testing.T) {
	d, ok := parseDay("2024", "Mar", "5")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), d)

	d, ok = parseDay("2024", "feb", "29")
	require.True(t, ok)
	assert.Equal(t, time.February, d.Month())

	for _, bad := range [][3]string{
		{"2023", "Feb", "29"},
		{"2024", "Foo", "1"},
		{"24", "Mar", "1"},
		{"2024", "Mar", "0"},
		{"2024", "Mar", "x"},
	} {
		_, ok := parseDay(bad[0], bad[1], bad[2])
		assert.False(t, ok, "%v", bad)
	}
}

func TestResolvePage(t *testing.T) {
	page, ok := resolvePage("", 4)
	assert.True(t, ok)
	assert.Equal(t, 1, page)

	page, ok = resolvePage("last", 4)
	assert.True(t, ok)
	assert.Equal(t, 4, page)

	for _, bad := range []string{"0", "5", "abc", "-1"} {
		_, ok := resolvePage(bad, 4)
		assert.False(t, ok, bad)
	}
}

func TestSplitTags(t *testing.T) {
	assert.Equal(t, []string{"python", "django"}, splitTags("python+django+python+"))
	assert.Nil(t, splitTags("+"))
}

func TestPager(t *testing.T) {
	u, _ := url.Parse("/tags/python/?size=10&page=2")
	p := newPager(u, 2, 3, 25)
	assert.Equal(t, "/tags/python/?size=10", p.Prev)
	assert.Equal(t, "/tags/python/?page=3&size=10", p.Next)

	u, _ = url.Parse("/tags/python/")
	p = newPager(u, 1, 1, 5)
	assert.Empty(t, p.Prev)
	assert.Empty(t, p.Next)
	assert.Equal(t, 1, numPages(0, 30))
	assert.Equal(t, 2, numPages(31, 30))
}

func TestSafeNext(t *testing.T) {
	assert.Equal(t, "/admin/", safeNext("/admin/"))
	assert.Equal(t, "/", safeNext("https://evil.example/"))
	assert.Equal(t, "/", safeNext("//evil.example/"))
	assert.Equal(t, "/", safeNext(""))
}

func TestSummariseYear(t *testing.T) {
	at := func(m time.Month, d int) time.Time { return time.Date(2024, m, d, 9, 0, 0, 0, time.UTC) }
	refs := []content.Ref{
		{Type: models.KindEntry, Created: at(time.January, 3)},
		{Type: models.KindBlogmark, Created: at(time.January, 4)},
		{Type: models.KindBlogmark, Created: at(time.January, 5)},
		{Type: models.KindNote, Created: at(time.March, 1)},
	}
	entries := []models.Entry{{Base: models.Base{Created: at(time.January, 3), Slug: "a"}, Title: "A"}}
	months := summariseYear(2024, refs, entries)
	require.Len(t, months, 2)
	assert.Equal(t, "/2024/Jan/", months[0].URL())
	assert.Equal(t, 3, months[0].Total)
	assert.Equal(t, "1 entry", months[0].Counts[0].Label)
	assert.Equal(t, "2 blogmarks", months[0].Counts[1].Label)
	assert.Len(t, months[0].Entries, 1)
	assert.Equal(t, time.March, months[1].Date.Month())
	assert.Empty(t, months[1].Entries)
}

func TestSearchFacetsKeepOtherParams(t *testing.T) {
	q := url.Values{"q": {"llm"}, "tag": {"python"}, "page": {"2"}}
	res := &search.Results{
		Params:     search.Params{Q: "llm", Tags: []string{"python"}, Page: 2},
		TypeCounts: []utils.TagCount{{Tag: "entry", Count: 3}},
		TagCounts:  []utils.TagCount{{Tag: "python", Count: 3}, {Tag: "ai", Count: 2}},
		YearCounts: []content.YearCount{{Year: 2024, Count: 3}},
	}
	f := searchFacets(q, res)

	types := f["Types"].([]Facet)
	require.Len(t, types, 1)
	assert.Equal(t, "/search/?q=llm&tag=python&type=entry", types[0].URL)

	tags := f["Tags"].([]Facet)
	require.Len(t, tags, 1, "selected tags are not offered again")
	assert.Equal(t, "/search/?q=llm&tag=python&tag=ai", tags[0].URL)

	selected := f["Selected"].([]Facet)
	require.Len(t, selected, 1)
	assert.Equal(t, "/search/?q=llm", selected[0].URL)
}

func TestPreviouslyHostedURL(t *testing.T) {
	e := &models.Entry{Base: models.Base{Created: time.Date(2003, 6, 9, 10, 0, 0, 0, time.UTC), Slug: "hello"}}
	assert.Equal(t, "http://simon.incutio.com/archive/2003/06/09/hello", previouslyHostedURL(e))
}

func TestRecentLimit(t *testing.T) {
	assert.Equal(t, 10, recentLimit(models.KindEntry))
	assert.Equal(t, 6, recentLimit(models.KindBlogmark))
	assert.Equal(t, 6, recentLimit(models.KindQuotation))
}

func TestItemViewUsesKnownCustomTemplate(t *testing.T) {
	RegisterViews("item.html", "longform.html")

	assert.Equal(t, "longform.html", itemView(&models.Entry{CustomTemplate: "longform.html"}))
	assert.Equal(t, "item.html", itemView(&models.Entry{CustomTemplate: "missing.html"}))
	assert.Equal(t, "item.html", itemView(&models.Entry{}))
	assert.Equal(t, "item.html", itemView(&models.Blogmark{}))
}

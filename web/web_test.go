package web

import (
	"bytes"
	"html/template"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weblog/internal/models"
	"weblog/internal/services"
)

type site struct {
	URL, Title, AnalyticsID string
}

func TestRendererParsesEveryView(t *testing.T) {
	r, err := Renderer()
	require.NoError(t, err)
	for _, name := range []string{"index.html", "item.html", "tag.html", "search.html", "error.html", "chapter_changes.html"} {
		assert.Contains(t, r, name)
	}
}

func TestErrorPageRenders(t *testing.T) {
	r, err := Renderer()
	require.NoError(t, err)
	var buf bytes.Buffer
	err = r["error.html"].Execute(&buf, map[string]interface{}{
		"Site":   site{Title: "Test Blog"},
		"Error":  "Page not found",
		"Status": 404,
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "<title>Test Blog</title>")
	assert.Contains(t, buf.String(), "Page not found")
}

func TestItemListRendersEachKind(t *testing.T) {
	r, err := Renderer()
	require.NoError(t, err)
	created := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	items := []models.Item{
		&models.Entry{Base: models.Base{Slug: "hello", Created: created}, Title: "Hello", Body: "<p>Body text</p>"},
		&models.Blogmark{Base: models.Base{Slug: "link", Created: created}, LinkURL: "https://example.com/", LinkTitle: "Example"},
		&models.Quotation{Base: models.Base{Slug: "quote", Created: created}, Quotation: "Words", Source: "Someone"},
		&models.Beat{Base: models.Base{Slug: "beat", Created: created}, BeatType: models.BeatTool, Title: "A tool", URL: "https://tools.example/"},
	}
	var buf bytes.Buffer
	err = r["index.html"].Execute(&buf, map[string]interface{}{
		"Site":  site{Title: "Test Blog"},
		"Items": items,
	})
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, `<a href="/2024/Mar/5/hello/">Hello</a>`)
	assert.Contains(t, out, "Example")
	assert.Contains(t, out, "Someone")
	assert.Contains(t, out, "Tool</span>")
	assert.Contains(t, out, "5th March 2024")
}

func TestCalendarColoursAreNotFiltered(t *testing.T) {
	r, err := Renderer()
	require.NoError(t, err)
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	cal := &services.Calendar{
		Date:  date,
		Weeks: [][]services.CalendarDay{{{Day: date, Display: true, Populated: true, Colour: "rgb(163, 143, 183)", Description: "1 entry"}}},
	}
	var buf bytes.Buffer
	err = r["archive_day.html"].Execute(&buf, map[string]interface{}{
		"Site":     site{Title: "Test Blog"},
		"Title":    "1st March 2024",
		"Calendar": cal,
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "background-color: rgb(163, 143, 183)")
	assert.NotContains(t, buf.String(), "ZgotmplZ")
}

func TestFuncMapHelpers(t *testing.T) {
	fm := FuncMap()
	dict := fm["dict"].(func(...interface{}) (map[string]interface{}, error))
	m, err := dict("a", 1, "b", "two")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"a": 1, "b": "two"}, m)
	_, err = dict("odd")
	assert.Error(t, err)

	month := fm["monthURL"].(func(time.Time) string)
	assert.Equal(t, "/2024/Mar/", month(time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, template.CSS("rgb(1, 2, 3)"), fm["css"].(func(string) template.CSS)("rgb(1, 2, 3)"))
}

package search

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weblog/internal/content"
	"weblog/internal/models"
	"weblog/internal/testenv"
)

func parse(t *testing.T, raw string) Params {
	t.Helper()
	v, err := url.ParseQuery(raw)
	require.NoError(t, err)
	p, err := ParseParams(v)
	require.NoError(t, err)
	return p
}

func TestParseParamsSortDefaults(t *testing.T) {
	assert.Equal(t, "date", parse(t, "").Sort)
	assert.Equal(t, "relevance", parse(t, "q=llm").Sort)
	assert.Equal(t, "date", parse(t, "q=llm&sort=date").Sort)
	assert.Equal(t, "date", parse(t, "sort=relevance").Sort)
	assert.Equal(t, "relevance", parse(t, "q=llm&sort=bogus").Sort)
}

func TestParseParamsValidation(t *testing.T) {
	_, err := ParseParams(url.Values{"tag": {"a", "b", "c"}})
	assert.ErrorIs(t, err, ErrTooManyTags)

	_, err = ParseParams(url.Values{"page": {"x"}})
	assert.ErrorIs(t, err, ErrPageInvalid)

	_, err = ParseParams(url.Values{"page": {"0"}})
	assert.ErrorIs(t, err, ErrPageInvalid)

	p := parse(t, "year=1999&month=13&type=photo")
	assert.Zero(t, p.Year)
	assert.Zero(t, p.Month)
	assert.Empty(t, p.Type)
	assert.Equal(t, 1, p.Page)
}

func TestMonthFiltersWithoutYear(t *testing.T) {
	entries, ok := content.KindByName(models.KindEntry)
	require.True(t, ok)
	clauses := parse(t, "month=3").Selector().Where(entries)
	require.Len(t, clauses, 1)
	assert.Equal(t, "EXTRACT(MONTH FROM entries.created) = ?", clauses[0].SQL)
	assert.Equal(t, []interface{}{3}, clauses[0].Args)
}

func TestTitle(t *testing.T) {
	cases := map[string]string{
		"":                                 "Search",
		"q=datasette":                      "“datasette” in items",
		"q=datasette&type=entry":           "“datasette” in entries",
		"type=blogmark":                    "Blogmarks",
		"tag=python&tag=sqlite":            "Items tagged python, sqlite",
		"type=quotation&year=2024&month=3": "Quotations in Mar, 2024",
		"q=x&type=note&tag=ai&year=2023":   "“x” in notes tagged ai in 2023",
		"exclude.tag=ai":                   "Search",
	}
	for raw, want := range cases {
		assert.Equal(t, want, parse(t, raw).Title(), raw)
	}
}

func TestSelectorFilters(t *testing.T) {
	p := parse(t, "q=sql&tag=a&exclude.tag=b&type=entry&year=2020&month=2")
	sql, args := p.Selector().ItemsSQL()
	assert.Contains(t, sql, "FROM entries")
	assert.NotContains(t, sql, "UNION ALL")
	assert.Contains(t, sql, "websearch_to_tsquery('english', ?)")
	assert.Contains(t, sql, "NOT entries.id IN")
	assert.Equal(t, []interface{}{2020, 2, "sql", "a", "b"}, args)
}

func TestDocumentSQL(t *testing.T) {
	sql, args := DocumentSQL(map[string]string{"C": "body", "A": "title", "B": "tags"})
	assert.Equal(t, "setweight(to_tsvector('english', ?), 'A') || "+
		"setweight(to_tsvector('english', ?), 'B') || "+
		"setweight(to_tsvector('english', ?), 'C')", sql)
	assert.Equal(t, []interface{}{"title", "tags", "body"}, args)

	sql, args = DocumentSQL(nil)
	assert.Equal(t, "''::tsvector", sql)
	assert.Empty(t, args)
}

func TestRunAgainstDatabase(t *testing.T) {
	tx := testenv.DB(t)
	ctx := context.Background()
	tag := models.Tag{Tag: "sqlite"}
	require.NoError(t, tx.Create(&tag).Error)

	when := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	entry := models.Entry{Base: models.Base{Created: when, Slug: "one"}, Title: "Exploring pelicans", Body: "<p>A post about pelicans</p>", Tags: []models.Tag{tag}}
	draft := models.Entry{Base: models.Base{Created: when, Slug: "two", IsDraft: true}, Title: "Draft pelicans", Body: "<p>hidden</p>"}
	note := models.Note{Base: models.Base{Created: when.Add(time.Hour), Slug: "n"}, Body: "Pelicans again"}
	require.NoError(t, tx.Create(&entry).Error)
	require.NoError(t, tx.Create(&draft).Error)
	require.NoError(t, tx.Create(&note).Error)
	require.NoError(t, Reindex(ctx, tx, models.KindEntry, entry.ID))
	require.NoError(t, Reindex(ctx, tx, models.KindEntry, draft.ID))
	require.NoError(t, Reindex(ctx, tx, models.KindNote, note.ID))

	res, err := Run(ctx, tx, parse(t, "q=pelicans"))
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Total)
	require.Len(t, res.Results, 2)
	assert.Equal(t, "entry", res.Results[0].Type, "title match ranks first")
	assert.Len(t, res.TypeCounts, 2)
	require.Len(t, res.TagCounts, 1)
	assert.Equal(t, "sqlite", res.TagCounts[0].Tag)

	res, err = Run(ctx, tx, parse(t, "tag=sqlite"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Total)

	res, err = Run(ctx, tx, parse(t, "q=pelicans&exclude.tag=sqlite&year=2024"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Total)
	require.Len(t, res.MonthCounts, 1)
	assert.Equal(t, 3, res.MonthCounts[0].Month)

	_, err = Run(ctx, tx, parse(t, "q=pelicans&page=2"))
	assert.ErrorIs(t, err, ErrPageInvalid)

	res, err = Run(ctx, tx, parse(t, "q=sqli"))
	require.NoError(t, err)
	assert.Zero(t, res.Total)
	assert.Equal(t, "sqlite", res.Suggestion)
}

func TestSearchTags(t *testing.T) {
	tx := testenv.DB(t)
	for _, name := range []string{"javascript", "java", "datasette"} {
		require.NoError(t, tx.Create(&models.Tag{Tag: name}).Error)
	}
	got, err := SearchTags(tx, "JAV")
	require.NoError(t, err)
	assert.Equal(t, []string{"java", "javascript"}, got)

	got, err = SearchTags(tx, " ")
	require.NoError(t, err)
	assert.Empty(t, got)
}

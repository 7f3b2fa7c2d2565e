package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"weblog/internal/content"
	"weblog/internal/db"
	"weblog/internal/models"
	"weblog/internal/search"
	"weblog/internal/testenv"
)

func mkTag(t *testing.T, name string) models.Tag {
	t.Helper()
	tag := models.Tag{Tag: name}
	require.NoError(t, db.DB.Create(&tag).Error)
	return tag
}

func TestNormalizeTag(t *testing.T) {
	got, err := NormalizeTag("  Python-3 ")
	require.NoError(t, err)
	assert.Equal(t, "python-3", got)

	for _, bad := range []string{"", "two words", "semi;colon"} {
		_, err := NormalizeTag(bad)
		assert.ErrorIs(t, err, ErrInvalidTag, bad)
	}
}

func TestMergeTags(t *testing.T) {
	testenv.DB(t)
	search.GetIndexer().SetSynchronous(true)

	python := mkTag(t, "python")
	py := mkTag(t, "py")
	require.NoError(t, db.DB.Create(&models.PreviousTagName{TagID: py.ID, PreviousName: "python-lang"}).Error)

	entry := models.Entry{Base: models.Base{Slug: "both"}, Title: "Both", Tags: []models.Tag{py, python}}
	require.NoError(t, db.DB.Create(&entry).Error)
	bm := models.Blogmark{Base: models.Base{Slug: "link"}, LinkURL: "https://example.com/", LinkTitle: "Ex", Tags: []models.Tag{py}}
	require.NoError(t, db.DB.Create(&bm).Error)

	merge, err := MergeTags(python.ID, py.ID)
	require.NoError(t, err)
	assert.Equal(t, "py", merge.SourceTagName)
	assert.Equal(t, "python", merge.DestinationTagName)

	var n int64
	db.DB.Model(&models.Tag{}).Where("tag = ?", "py").Count(&n)
	assert.Zero(t, n)

	db.DB.Table("entry_tags").Where("entry_id = ?", entry.ID).Count(&n)
	assert.Equal(t, int64(1), n)
	db.DB.Table("blogmark_tags").Where("blogmark_id = ? AND tag_id = ?", bm.ID, python.ID).Count(&n)
	assert.Equal(t, int64(1), n)

	for _, old := range []string{"py", "python-lang"} {
		tag, err := ResolvePreviousName(old)
		require.NoError(t, err, old)
		assert.Equal(t, "python", tag.Tag)
	}

	_, err = MergeTags(python.ID, python.ID)
	assert.ErrorIs(t, err, ErrSameTag)
	_, err = MergeTags(python.ID, 9999)
	assert.ErrorIs(t, err, ErrTagNotFound)
}

func TestAutocompleteOrdering(t *testing.T) {
	testenv.DB(t)
	search.GetIndexer().SetSynchronous(true)

	sql := mkTag(t, "sql")
	sqlite := mkTag(t, "sqlite")
	utils := mkTag(t, "sqlite-utils")
	mkTag(t, "python")

	for i := 0; i < 5; i++ {
		tags := []models.Tag{utils}
		if i < 3 {
			tags = append(tags, sqlite)
		}
		if i == 0 {
			tags = append(tags, sql)
		}
		note := models.Note{Base: models.Base{Slug: "n"}, Body: "body", Tags: tags}
		require.NoError(t, db.DB.Create(&note).Error)
	}

	got, err := Autocomplete("SQL")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, content.TagUsage{ID: sql.ID, Tag: "sql", Count: 1}, got[0])
	assert.Equal(t, "sqlite-utils", got[1].Tag)
	assert.Equal(t, 5, got[1].Count)
	assert.Equal(t, "sqlite", got[2].Tag)
}

func TestAddTag(t *testing.T) {
	testenv.DB(t)
	search.GetIndexer().SetSynchronous(true)

	note := models.Note{Base: models.Base{Slug: "n"}, Body: "body"}
	require.NoError(t, db.DB.Create(&note).Error)

	tag, err := AddTag(models.KindNote, note.ID, "New-Tag")
	require.NoError(t, err)
	assert.Equal(t, "new-tag", tag.Tag)

	_, err = AddTag(models.KindNote, note.ID, "new-tag")
	require.NoError(t, err)

	var loaded models.Note
	require.NoError(t, db.DB.Preload("Tags").First(&loaded, note.ID).Error)
	require.Len(t, loaded.Tags, 1)

	_, err = AddTag(models.KindNote, 9999, "x")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	_, err = AddTag("photo", note.ID, "x")
	assert.ErrorIs(t, err, content.ErrUnknownKind)
}

func TestImportBlogJSON(t *testing.T) {
	testenv.DB(t)
	search.GetIndexer().SetSynchronous(true)

	items := []BlogItem{
		{"type": "entry", "datetime": "2024-03-05T10:00:00", "slug": "hello", "title": "Hello", "body": "<p>Hi</p>",
			"tags": []interface{}{"greetings"}, "import_ref": "wp:1"},
		{"type": "quotation", "datetime": "2024-03-06T10:00:00", "slug": "q", "quotation": "Words", "source": "Someone",
			"source_url": "https://example.com/", "tags": []interface{}{}},
	}
	res, err := ImportBlogJSON(items, "imported")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, "/2024/Mar/5/hello/", res.URLs[0])

	items[0]["title"] = "Hello again"
	res, err = ImportBlogJSON(items[:1], "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)

	var entry models.Entry
	require.NoError(t, db.DB.Preload("Tags").Where("import_ref = ?", "wp:1").First(&entry).Error)
	assert.Equal(t, "Hello again", entry.Title)
	require.Len(t, entry.Tags, 1)
	assert.Equal(t, "greetings", entry.Tags[0].Tag)

	_, err = ImportBlogJSON([]BlogItem{{"type": "photo", "datetime": "2024-01-01"}}, "")
	assert.Error(t, err)
}

// Package content aggregates the heterogeneous content tables (entries,
// blogmarks, quotations, notes, beats, chapters) behind one registry so
// listings, archives, search and feeds can treat them uniformly.
package content

import (
	"weblog/internal/models"
)

type Kind struct {
	Name     string
	Table    string
	TagTable string
	FK       string
	Singular string
	Plural   string
	// Calendar weight of one item of this kind.
	Score int
}

var Kinds = []Kind{
	{Name: models.KindEntry, Table: "entries", TagTable: "entry_tags", FK: "entry_id", Singular: "entry", Plural: "entries", Score: 4},
	{Name: models.KindBlogmark, Table: "blogmarks", TagTable: "blogmark_tags", FK: "blogmark_id", Singular: "blogmark", Plural: "blogmarks", Score: 2},
	{Name: models.KindQuotation, Table: "quotations", TagTable: "quotation_tags", FK: "quotation_id", Singular: "quotation", Plural: "quotations", Score: 2},
	{Name: models.KindNote, Table: "notes", TagTable: "note_tags", FK: "note_id", Singular: "note", Plural: "notes", Score: 2},
	{Name: models.KindBeat, Table: "beats", TagTable: "beat_tags", FK: "beat_id", Singular: "beat", Plural: "beats", Score: 1},
	{Name: models.KindChapter, Table: "chapters", TagTable: "chapter_tags", FK: "chapter_id", Singular: "chapter", Plural: "chapters", Score: 4},
}

// Dated kinds are the ones addressed by /YYYY/Mon/D/slug/ URLs.
var Dated = []string{models.KindEntry, models.KindBlogmark, models.KindQuotation, models.KindNote, models.KindBeat}

func KindByName(name string) (Kind, bool) {
	for _, k := range Kinds {
		if k.Name == name {
			return k, true
		}
	}
	return Kind{}, false
}

// KindsNamed returns the kinds for names, or every kind when names is empty.
func KindsNamed(names ...string) []Kind {
	if len(names) == 0 {
		return Kinds
	}
	out := make([]Kind, 0, len(names))
	for _, n := range names {
		if k, ok := KindByName(n); ok {
			out = append(out, k)
		}
	}
	return out
}

// Public is the SQL predicate for items visible to anonymous readers.
// Chapters are also hidden when unlisted or when their guide is a draft.
func (k Kind) Public() string {
	if k.Name == models.KindChapter {
		return "chapters.is_draft = false AND chapters.is_unlisted = false AND " +
			"chapters.guide_id IN (SELECT id FROM guides WHERE is_draft = false)"
	}
	return k.Table + ".is_draft = false"
}

// HasTag is the SQL predicate "item carries tag ?".
func (k Kind) HasTag() string {
	return k.Table + ".id IN (SELECT " + k.TagTable + "." + k.FK + " FROM " + k.TagTable +
		" JOIN tags ON tags.id = " + k.TagTable + ".tag_id WHERE tags.tag = ?)"
}

// Col qualifies a column with the kind's table name.
func (k Kind) Col(name string) string {
	return k.Table + "." + name
}

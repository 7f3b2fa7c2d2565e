package content

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"weblog/internal/models"
	"weblog/internal/utils"
)

// Ref identifies one row of one kind. Rank is only set by search.
type Ref struct {
	Type    string    `json:"type"`
	ID      uint      `json:"id"`
	Created time.Time `json:"created"`
	Rank    float64   `json:"rank,omitempty"`
}

// Clause is a SQL fragment and its bind arguments.
type Clause struct {
	SQL  string
	Args []interface{}
}

// Selector describes the same filter applied to several kinds. Where returns
// extra predicates per kind; Column returns an optional extra column (for
// example a rank expression).
type Selector struct {
	Kinds      []Kind
	AllowDraft bool
	Where      func(k Kind) []Clause
	Column     func(k Kind) Clause
}

func (s Selector) kinds() []Kind {
	if len(s.Kinds) == 0 {
		return Kinds
	}
	return s.Kinds
}

func (s Selector) where(k Kind) (string, []interface{}) {
	var parts []string
	var args []interface{}
	if !s.AllowDraft {
		parts = append(parts, k.Public())
	}
	if s.Where != nil {
		for _, c := range s.Where(k) {
			parts = append(parts, "("+c.SQL+")")
			args = append(args, c.Args...)
		}
	}
	if len(parts) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(parts, " AND "), args
}

// ItemsSQL is the UNION ALL of (type, id, created[, rank]) across kinds.
func (s Selector) ItemsSQL() (string, []interface{}) {
	var selects []string
	var args []interface{}
	for _, k := range s.kinds() {
		cols := "SELECT '" + k.Name + "' AS type, " + k.Col("id") + " AS id, " + k.Col("created") + " AS created"
		if s.Column != nil {
			c := s.Column(k)
			cols += ", " + c.SQL
			args = append(args, c.Args...)
		}
		w, wargs := s.where(k)
		args = append(args, wargs...)
		selects = append(selects, cols+" FROM "+k.Table+w)
	}
	return strings.Join(selects, " UNION ALL "), args
}

// TagsSQL is the UNION ALL of tag names attached to matching items, one row
// per tagging.
func (s Selector) TagsSQL() (string, []interface{}) {
	var selects []string
	var args []interface{}
	for _, k := range s.kinds() {
		w, wargs := s.where(k)
		args = append(args, wargs...)
		selects = append(selects, "SELECT tags.tag AS tag, "+k.Col("created")+" AS created FROM tags"+
			" JOIN "+k.TagTable+" ON "+k.TagTable+".tag_id = tags.id"+
			" JOIN "+k.Table+" ON "+k.Table+".id = "+k.TagTable+"."+k.FK+w)
	}
	return strings.Join(selects, " UNION ALL "), args
}

// Refs runs the item union with an ORDER BY and optional paging.
func Refs(tx *gorm.DB, s Selector, order string, limit, offset int) ([]Ref, error) {
	sql, args := s.ItemsSQL()
	sql = "SELECT * FROM (" + sql + ") AS u ORDER BY " + order
	if limit > 0 {
		sql += " LIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	}
	var refs []Ref
	err := tx.Raw(sql, args...).Scan(&refs).Error
	return refs, err
}

func Count(tx *gorm.DB, s Selector) (int64, error) {
	sql, args := s.ItemsSQL()
	var n int64
	err := tx.Raw("SELECT count(*) FROM ("+sql+") AS u", args...).Scan(&n).Error
	return n, err
}

// TypeCounts returns item counts per kind, largest first.
func TypeCounts(tx *gorm.DB, s Selector) ([]utils.TagCount, error) {
	sql, args := s.ItemsSQL()
	var out []utils.TagCount
	err := tx.Raw("SELECT type AS tag, count(*) AS count FROM ("+sql+") AS u GROUP BY type ORDER BY count DESC, type", args...).
		Scan(&out).Error
	return out, err
}

// TagCounts returns the most used tags among matching items. limit <= 0 means all.
func TagCounts(tx *gorm.DB, s Selector, limit int) ([]utils.TagCount, error) {
	sql, args := s.TagsSQL()
	q := "SELECT tag, count(*) AS count FROM (" + sql + ") AS t GROUP BY tag ORDER BY count DESC, tag"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	var out []utils.TagCount
	err := tx.Raw(q, args...).Scan(&out).Error
	return out, err
}

// YearCount and MonthCount are archive facets.
type YearCount struct {
	Year  int `json:"year"`
	Count int `json:"count"`
}

type MonthCount struct {
	Month int `json:"month"`
	Count int `json:"count"`
}

func YearCounts(tx *gorm.DB, s Selector) ([]YearCount, error) {
	sql, args := s.ItemsSQL()
	var out []YearCount
	err := tx.Raw("SELECT EXTRACT(YEAR FROM created)::int AS year, count(*) AS count FROM ("+sql+") AS u GROUP BY 1 ORDER BY 1", args...).
		Scan(&out).Error
	return out, err
}

func MonthCounts(tx *gorm.DB, s Selector) ([]MonthCount, error) {
	sql, args := s.ItemsSQL()
	var out []MonthCount
	err := tx.Raw("SELECT EXTRACT(MONTH FROM created)::int AS month, count(*) AS count FROM ("+sql+") AS u GROUP BY 1 ORDER BY 1", args...).
		Scan(&out).Error
	return out, err
}

// Between restricts items to [from, to).
func Between(from, to time.Time) func(k Kind) []Clause {
	return func(k Kind) []Clause {
		return []Clause{{SQL: k.Col("created") + " >= ? AND " + k.Col("created") + " < ?", Args: []interface{}{from, to}}}
	}
}

// WithAllTags restricts items to those carrying every tag.
func WithAllTags(tags []string) func(k Kind) []Clause {
	return func(k Kind) []Clause {
		out := make([]Clause, 0, len(tags))
		for _, t := range tags {
			out = append(out, Clause{SQL: k.HasTag(), Args: []interface{}{t}})
		}
		return out
	}
}

// Combine merges several Where builders.
func Combine(fns ...func(k Kind) []Clause) func(k Kind) []Clause {
	return func(k Kind) []Clause {
		var out []Clause
		for _, fn := range fns {
			if fn != nil {
				out = append(out, fn(k)...)
			}
		}
		return out
	}
}

// Visible reports whether an item should appear to anonymous readers.
func Visible(item models.Item) bool {
	if item.Draft() {
		return false
	}
	if ch, ok := item.(*models.Chapter); ok {
		return !ch.IsUnlisted && ch.Guide != nil && !ch.Guide.IsDraft
	}
	return true
}

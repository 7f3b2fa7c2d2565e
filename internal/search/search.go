// Package search implements full-text search over every content kind using
// PostgreSQL tsvector columns, plus the facets shown beside the results.
package search

import (
	"context"
	"errors"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"weblog/internal/content"
	"weblog/internal/models"
	"weblog/internal/utils"
)

const PageSize = 30

var (
	ErrTooManyTags = errors.New("Too many tags")
	ErrPageInvalid = errors.New("invalid page")
)

var nouns = map[string]string{
	models.KindEntry:     "Entries",
	models.KindBlogmark:  "Blogmarks",
	models.KindQuotation: "Quotations",
	models.KindNote:      "Notes",
	models.KindBeat:      "Beats",
	models.KindChapter:   "Chapters",
}

type Params struct {
	Q           string
	Tags        []string
	ExcludeTags []string
	Type        string
	Year        int
	Month       int
	Sort        string
	Page        int
}

// ParseParams validates query-string input. Unknown types and out of range
// years or months are ignored rather than rejected.
func ParseParams(v url.Values) (Params, error) {
	p := Params{
		Q:           strings.TrimSpace(v.Get("q")),
		Tags:        nonEmpty(v["tag"]),
		ExcludeTags: nonEmpty(v["exclude.tag"]),
	}
	if len(p.Tags) > 2 {
		return p, ErrTooManyTags
	}
	if _, ok := nouns[v.Get("type")]; ok {
		p.Type = v.Get("type")
	}
	if y, err := strconv.Atoi(v.Get("year")); err == nil && y >= 2000 {
		p.Year = y
	}
	if m, err := strconv.Atoi(v.Get("month")); err == nil && m >= 1 && m <= 12 {
		p.Month = m
	}

	p.Sort = v.Get("sort")
	if p.Sort != "relevance" && p.Sort != "date" {
		p.Sort = ""
	}
	if p.Sort == "" {
		p.Sort = "date"
		if p.Q != "" {
			p.Sort = "relevance"
		}
	}
	if p.Sort == "relevance" && p.Q == "" {
		p.Sort = "date"
	}

	page := v.Get("page")
	if page == "" {
		page = "1"
	}
	n, err := strconv.Atoi(page)
	if err != nil || n < 1 {
		return p, ErrPageInvalid
	}
	p.Page = n
	return p, nil
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Selected reports whether any facet filter is active.
func (p Params) Selected() bool {
	return len(p.Tags) > 0 || p.Type != "" || p.Year != 0 || p.Month != 0
}

func (p Params) MonthName() string {
	if p.Month == 0 {
		return ""
	}
	return time.Month(p.Month).String()[:3]
}

// Title builds headings such as `“datasette” in entries tagged python in Jan, 2024`.
func (p Params) Title() string {
	if p.Q == "" && !p.Selected() {
		return "Search"
	}
	title := "Items"
	if n, ok := nouns[p.Type]; ok {
		title = n
	}
	if p.Q != "" {
		title = "“" + p.Q + "” in " + strings.ToLower(title)
	}
	if len(p.Tags) > 0 {
		title += " tagged " + strings.Join(p.Tags, ", ")
	}
	var datebits []string
	if p.Month != 0 {
		datebits = append(datebits, p.MonthName())
	}
	if p.Year != 0 {
		datebits = append(datebits, strconv.Itoa(p.Year))
	}
	if len(datebits) > 0 {
		title += " in " + strings.Join(datebits, ", ")
	}
	return title
}

const tsquery = "websearch_to_tsquery('english', ?)"

// Selector turns the parameters into a per-kind content selector.
func (p Params) Selector() content.Selector {
	s := content.Selector{
		Where: func(k content.Kind) []content.Clause {
			var out []content.Clause
			if p.Year != 0 {
				out = append(out, content.Clause{SQL: "EXTRACT(YEAR FROM " + k.Col("created") + ") = ?", Args: []interface{}{p.Year}})
			}
			if p.Month != 0 {
				out = append(out, content.Clause{SQL: "EXTRACT(MONTH FROM " + k.Col("created") + ") = ?", Args: []interface{}{p.Month}})
			}
			if p.Q != "" {
				out = append(out, content.Clause{SQL: k.Col("search_document") + " @@ " + tsquery, Args: []interface{}{p.Q}})
			}
			for _, t := range p.Tags {
				out = append(out, content.Clause{SQL: k.HasTag(), Args: []interface{}{t}})
			}
			for _, t := range p.ExcludeTags {
				out = append(out, content.Clause{SQL: "NOT " + k.HasTag(), Args: []interface{}{t}})
			}
			return out
		},
	}
	if p.Type != "" {
		s.Kinds = content.KindsNamed(p.Type)
	}
	return s
}

func (p Params) rankedSelector() content.Selector {
	s := p.Selector()
	if p.Q != "" {
		s.Column = func(k content.Kind) content.Clause {
			return content.Clause{SQL: "ts_rank(" + k.Col("search_document") + ", " + tsquery + ") AS rank", Args: []interface{}{p.Q}}
		}
	} else {
		s.Column = func(k content.Kind) content.Clause {
			return content.Clause{SQL: "0::float8 AS rank"}
		}
	}
	return s
}

type Result struct {
	Type string
	Rank float64
	Item models.Item
}

type Results struct {
	Params      Params
	Title       string
	Results     []Result
	Total       int64
	NumPages    int
	TypeCounts  []utils.TagCount
	TagCounts   []utils.TagCount
	YearCounts  []content.YearCount
	MonthCounts []content.MonthCount
	Suggestion  string
	Duration    time.Duration
}

func (r *Results) HasPrevious() bool { return r.Params.Page > 1 }
func (r *Results) HasNext() bool     { return r.Params.Page < r.NumPages }

// Run executes the search and its facet queries concurrently. A page beyond
// the last one yields ErrPageInvalid; page 1 is always valid.
func Run(ctx context.Context, tx *gorm.DB, p Params) (*Results, error) {
	start := time.Now()
	tx = tx.WithContext(ctx)
	sel := p.Selector()
	res := &Results{Params: p, Title: p.Title()}

	g, gctx := errgroup.WithContext(ctx)
	gtx := tx.WithContext(gctx)
	g.Go(func() (err error) {
		res.Total, err = content.Count(gtx, sel)
		return err
	})
	g.Go(func() (err error) {
		res.TypeCounts, err = content.TypeCounts(gtx, sel)
		return err
	})
	g.Go(func() (err error) {
		res.TagCounts, err = content.TagCounts(gtx, sel, 40)
		return err
	})
	g.Go(func() (err error) {
		res.YearCounts, err = content.YearCounts(gtx, sel)
		return err
	})
	if p.Year != 0 {
		g.Go(func() (err error) {
			res.MonthCounts, err = content.MonthCounts(gtx, sel)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res.NumPages = int(math.Ceil(float64(res.Total) / float64(PageSize)))
	if res.NumPages < 1 {
		res.NumPages = 1
	}
	if p.Page > res.NumPages {
		return nil, ErrPageInvalid
	}

	order := "created DESC"
	if p.Sort == "relevance" {
		order = "rank DESC, created DESC"
	}
	refs, err := content.Refs(tx, p.rankedSelector(), order, PageSize, (p.Page-1)*PageSize)
	if err != nil {
		return nil, err
	}
	items, err := content.LoadMixed(tx, refs)
	if err != nil {
		return nil, err
	}
	ranks := make(map[content.Ref]float64, len(refs))
	for _, r := range refs {
		ranks[content.Ref{Type: r.Type, ID: r.ID}] = r.Rank
	}
	for _, it := range items {
		res.Results = append(res.Results, Result{
			Type: it.Kind(),
			Rank: ranks[content.Ref{Type: it.Kind(), ID: it.GetID()}],
			Item: it,
		})
	}

	if res.Total == 0 && p.Q != "" {
		res.Suggestion, err = Suggest(tx, p.Q)
		if err != nil {
			return nil, err
		}
	}
	res.Duration = time.Since(start)
	return res, nil
}

// Suggest proposes an alternative query when nothing matched, replacing each
// term with the shortest tag that starts with it.
func Suggest(tx *gorm.DB, q string) (string, error) {
	terms := strings.Fields(q)
	changed := false
	for i, term := range terms {
		clean := strings.ToLower(strings.Trim(term, `"'-`))
		if len(clean) < 3 {
			continue
		}
		var tag string
		err := tx.Model(&models.Tag{}).Select("tag").
			Where("tag ILIKE ?", escapeLike(clean)+"%").
			Order("length(tag), tag").Limit(1).Scan(&tag).Error
		if err != nil {
			return "", err
		}
		if tag != "" && tag != clean {
			terms[i] = tag
			changed = true
		}
	}
	if !changed {
		return "", nil
	}
	return strings.Join(terms, " "), nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// SearchTags backs the staff tag picker: case-insensitive substring match,
// shortest first.
func SearchTags(tx *gorm.DB, q string) ([]string, error) {
	q = strings.TrimSpace(q)
	tags := []string{}
	if q == "" {
		return tags, nil
	}
	err := tx.Model(&models.Tag{}).
		Where("tag ILIKE ?", "%"+escapeLike(q)+"%").
		Order("length(tag), tag").Limit(100).
		Pluck("tag", &tags).Error
	return tags, err
}

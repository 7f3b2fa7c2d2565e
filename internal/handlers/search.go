package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"weblog/internal/content"
	"weblog/internal/db"
	"weblog/internal/search"
)

type SearchHandler struct{}

func NewSearchHandler() *SearchHandler {
	return &SearchHandler{}
}

// Facet is one clickable filter beside the search results.
type Facet struct {
	Label    string
	Count    int
	URL      string
	Selected bool
}

// withParam copies q, applies fn and resets paging.
func withParam(q url.Values, fn func(url.Values)) string {
	out := url.Values{}
	for k, v := range q {
		out[k] = append([]string(nil), v...)
	}
	out.Del("page")
	fn(out)
	return "/search/?" + out.Encode()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func searchFacets(q url.Values, res *search.Results) gin.H {
	p := res.Params
	var types, tags, years, months []Facet
	for _, t := range res.TypeCounts {
		name := t.Tag
		types = append(types, Facet{
			Label: name, Count: t.Count, Selected: p.Type == name,
			URL: withParam(q, func(v url.Values) { v.Set("type", name) }),
		})
	}
	for _, t := range res.TagCounts {
		name := t.Tag
		if contains(p.Tags, name) {
			continue
		}
		tags = append(tags, Facet{
			Label: name, Count: t.Count,
			URL: withParam(q, func(v url.Values) { v.Add("tag", name) }),
		})
	}
	for _, y := range res.YearCounts {
		year := strconv.Itoa(y.Year)
		years = append(years, Facet{
			Label: year, Count: y.Count, Selected: p.Year == y.Year,
			URL: withParam(q, func(v url.Values) { v.Set("year", year) }),
		})
	}
	for _, m := range res.MonthCounts {
		month := strconv.Itoa(m.Month)
		months = append(months, Facet{
			Label: time.Month(m.Month).String()[:3], Count: m.Count, Selected: p.Month == m.Month,
			URL: withParam(q, func(v url.Values) { v.Set("month", month) }),
		})
	}

	// Links that drop one active filter.
	var selected []Facet
	if p.Type != "" {
		selected = append(selected, Facet{Label: "type: " + p.Type, URL: withParam(q, func(v url.Values) { v.Del("type") })})
	}
	for _, t := range p.Tags {
		name := t
		selected = append(selected, Facet{Label: "tag: " + name, URL: withParam(q, func(v url.Values) {
			var keep []string
			for _, x := range v["tag"] {
				if x != name {
					keep = append(keep, x)
				}
			}
			v["tag"] = keep
		})})
	}
	if p.Year != 0 {
		selected = append(selected, Facet{Label: "year: " + strconv.Itoa(p.Year), URL: withParam(q, func(v url.Values) {
			v.Del("year")
			v.Del("month")
		})})
	}
	if p.Month != 0 {
		selected = append(selected, Facet{Label: "month: " + p.MonthName(), URL: withParam(q, func(v url.Values) { v.Del("month") })})
	}
	return gin.H{"Types": types, "Tags": tags, "Years": years, "Months": months, "Selected": selected}
}

func (h *SearchHandler) Search(c *gin.Context) {
	q := c.Request.URL.Query()
	params, err := search.ParseParams(q)
	if errors.Is(err, search.ErrTooManyTags) {
		c.String(http.StatusBadRequest, "Too many tags")
		return
	}
	if err != nil {
		notFound(c)
		return
	}
	res, err := search.Run(c.Request.Context(), db.DB, params)
	if errors.Is(err, search.ErrPageInvalid) {
		notFound(c)
		return
	}
	if err != nil {
		serverError(c, err)
		return
	}
	data := gin.H{
		"Title":   res.Title,
		"Query":   params.Q,
		"Results": res,
		"Facets":  searchFacets(q, res),
		"Pager":   newPager(c.Request.URL, params.Page, res.NumPages, res.Total),
	}
	if res.Suggestion != "" {
		data["SuggestionURL"] = withParam(q, func(v url.Values) { v.Set("q", res.Suggestion) })
	}
	if params.Q == "" && !params.Selected() {
		years, err := content.YearsWithContent(db.DB)
		if err != nil {
			serverError(c, err)
			return
		}
		data["Years"] = years
	}
	Render(c, http.StatusOK, "search.html", data)
}

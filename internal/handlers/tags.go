package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"weblog/internal/content"
	"weblog/internal/db"
	"weblog/internal/feeds"
	"weblog/internal/models"
	"weblog/internal/search"
	"weblog/internal/services"
	"weblog/internal/utils"
)

const (
	maxTagsPerArchive = 3
	defaultPageSize   = 30
	maxPageSize       = 1000
	tagCloudTTL       = 5 * time.Minute
)

type TagHandler struct {
	cache *utils.PageCache
}

func NewTagHandler() *TagHandler {
	return &TagHandler{cache: utils.GetCache()}
}

// Index renders the cloud of every tag in use.
func (h *TagHandler) Index(c *gin.Context) {
	counts, err := utils.Remember(h.cache, "tags:cloud", tagCloudTTL, func() ([]utils.TagCount, error) {
		return content.TagCounts(db.DB, content.Selector{}, 0)
	})
	if err != nil {
		serverError(c, err)
		return
	}
	Render(c, http.StatusOK, "tags.html", gin.H{
		"Title":    "Tags",
		"TagCloud": utils.RenderTagCloud(utils.TagCloud(counts)),
	})
}

// splitTags turns "a+b+a" into ["a", "b"].
func splitTags(raw string) []string {
	var out []string
	seen := map[string]bool{}
	for _, t := range strings.Split(raw, "+") {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// existingTags keeps the requested names that exist, in request order, at
// most three of them.
func existingTags(names []string) ([]models.Tag, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var found []models.Tag
	if err := db.DB.Where("tag IN ?", names).Find(&found).Error; err != nil {
		return nil, err
	}
	byName := make(map[string]models.Tag, len(found))
	for _, t := range found {
		byName[t.Tag] = t
	}
	var out []models.Tag
	for _, n := range names {
		if t, ok := byName[n]; ok && len(out) < maxTagsPerArchive {
			out = append(out, t)
		}
	}
	return out, nil
}

// pageSize reads ?size=, capped at 1000.
func pageSize(c *gin.Context) int {
	size := defaultPageSize
	if n, err := strconv.Atoi(c.Query("size")); err == nil && n > 0 {
		size = n
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return size
}

// resolvePage reads ?page=, accepting "last". ok is false for pages that
// do not exist.
func resolvePage(raw string, pages int) (int, bool) {
	if raw == "" {
		return 1, true
	}
	if raw == "last" {
		return pages, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > pages {
		return 0, false
	}
	return n, true
}

// Archive serves /tags/a+b+c/.
func (h *TagHandler) Archive(c *gin.Context) {
	h.archive(c, c.Param("tags"), false)
}

// Atom serves /tags/a+b.atom; /tags/a+b without a slash is redirected.
func (h *TagHandler) Atom(c *gin.Context) {
	raw := c.Param("tags")
	names, ok := strings.CutSuffix(raw, ".atom")
	if !ok {
		c.Redirect(http.StatusMovedPermanently, "/tags/"+raw+"/")
		return
	}
	h.archive(c, names, true)
}

func (h *TagHandler) archive(c *gin.Context, raw string, atom bool) {
	requested := splitTags(raw)
	tags, err := existingTags(requested)
	if err != nil {
		serverError(c, err)
		return
	}
	if len(tags) == 0 {
		if len(requested) == 1 {
			if current, err := services.ResolvePreviousName(requested[0]); err == nil {
				target := "/tags/" + current.Tag + "/"
				if atom {
					target = "/tags/" + current.Tag + ".atom"
				}
				if q := c.Request.URL.RawQuery; q != "" {
					target += "?" + q
				}
				c.Redirect(http.StatusMovedPermanently, target)
				return
			}
		}
		notFound(c)
		return
	}
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.Tag
	}

	sel := content.Selector{Where: content.WithAllTags(names)}
	total, err := content.Count(db.DB, sel)
	if err != nil {
		serverError(c, err)
		return
	}
	if total == 0 {
		notFound(c)
		return
	}
	size := pageSize(c)
	pages := numPages(total, size)
	page, ok := resolvePage(c.Query("page"), pages)
	if !ok {
		notFound(c)
		return
	}
	refs, err := content.Refs(db.DB, sel, "created DESC", size, (page-1)*size)
	if err != nil {
		serverError(c, err)
		return
	}
	items, err := content.LoadMixed(db.DB, refs)
	if err != nil {
		serverError(c, err)
		return
	}
	pager := newPager(c.Request.URL, page, pages, total)

	if atom {
		if pager.Next != "" {
			c.Header("Link", "<"+site.URL+pager.Next+`>; rel="next"`)
		}
		title := site.Title + ": " + strings.Join(names, ", ")
		writeFeed(c, feedBuilder().Build(title, c.Request.URL.Path, "everything", feeds.FromItems(items)))
		return
	}

	data := gin.H{
		"Title":      strings.Join(names, " + "),
		"Tags":       tags,
		"TagNames":   names,
		"OnlyOneTag": len(tags) == 1,
		"Items":      items,
		"Pager":      pager,
		"AtomURL":    "/tags/" + strings.Join(names, "+") + ".atom",
	}
	if len(tags) == 1 {
		related, err := content.RelatedTags(db.DB, names[0])
		if err != nil {
			serverError(c, err)
			return
		}
		data["Tag"] = tags[0]
		data["Related"] = related
	}
	Render(c, http.StatusOK, "tag.html", data)
}

// Autocomplete backs the tag picker: {"tags": [{tag, count}]}.
func (h *TagHandler) Autocomplete(c *gin.Context) {
	tags, err := services.Autocomplete(c.Query("q"))
	if err != nil {
		serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}

// SearchTags answers /tools/search-tags/?q= with matching tag names.
func (h *TagHandler) SearchTags(c *gin.Context) {
	tags, err := search.SearchTags(db.DB, c.Query("q"))
	if err != nil {
		serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}

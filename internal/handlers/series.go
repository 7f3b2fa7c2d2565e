package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"weblog/internal/db"
	"weblog/internal/feeds"
	"weblog/internal/models"
)

type SeriesHandler struct{}

func NewSeriesHandler() *SeriesHandler {
	return &SeriesHandler{}
}

// SeriesCount is a series with its number of published entries.
type SeriesCount struct {
	models.Series
	Count int
}

func (h *SeriesHandler) Index(c *gin.Context) {
	var series []models.Series
	if err := db.DB.Order("created DESC").Find(&series).Error; err != nil {
		serverError(c, err)
		return
	}
	type row struct {
		SeriesID uint
		Count    int
	}
	var rows []row
	err := db.DB.Model(&models.Entry{}).
		Select("series_id, count(*) AS count").
		Where("series_id IS NOT NULL AND is_draft = false").
		Group("series_id").Scan(&rows).Error
	if err != nil {
		serverError(c, err)
		return
	}
	counts := make(map[uint]int, len(rows))
	for _, r := range rows {
		counts[r.SeriesID] = r.Count
	}
	out := make([]SeriesCount, len(series))
	for i, s := range series {
		out[i] = SeriesCount{Series: s, Count: counts[s.ID]}
	}
	Render(c, http.StatusOK, "series_index.html", gin.H{"Title": "Series", "Series": out})
}

func (h *SeriesHandler) Detail(c *gin.Context) {
	var series models.Series
	if err := db.DB.Where("slug = ?", c.Param("slug")).First(&series).Error; err != nil {
		lookupFailed(c, err)
		return
	}
	var entries []models.Entry
	err := db.DB.Preload("Tags", func(tx *gorm.DB) *gorm.DB { return tx.Order("tags.tag") }).
		Where("series_id = ? AND is_draft = false", series.ID).
		Order("created").Find(&entries).Error
	if err != nil {
		serverError(c, err)
		return
	}
	Render(c, http.StatusOK, "series.html", gin.H{
		"Title":   series.Title,
		"Series":  series,
		"Entries": entries,
	})
}

// Atom serves /series/<slug>.atom; a bare /series/<slug> gains its slash.
func (h *SeriesHandler) Atom(c *gin.Context) {
	raw := c.Param("slug")
	slug, ok := strings.CutSuffix(raw, ".atom")
	if !ok {
		c.Redirect(http.StatusMovedPermanently, "/series/"+raw+"/")
		return
	}
	var series models.Series
	if err := db.DB.Where("slug = ?", slug).First(&series).Error; err != nil {
		lookupFailed(c, err)
		return
	}
	items, err := feeds.SeriesItems(db.DB, &series)
	if err != nil {
		serverError(c, err)
		return
	}
	writeFeed(c, feedBuilder().Build(site.Title+": "+series.Title, c.Request.URL.Path, "series-"+series.Slug, items))
}

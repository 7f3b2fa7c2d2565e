package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"weblog/internal/db"
	"weblog/internal/feeds"
	"weblog/internal/middleware"
	"weblog/internal/models"
	"weblog/internal/services"
)

type GuideHandler struct{}

func NewGuideHandler() *GuideHandler {
	return &GuideHandler{}
}

// loadGuide finds a guide by slug; drafts are only visible to staff.
func loadGuide(c *gin.Context, slug string) (*models.Guide, bool) {
	var guide models.Guide
	if err := db.DB.Where("slug = ?", slug).First(&guide).Error; err != nil {
		lookupFailed(c, err)
		return nil, false
	}
	if guide.IsDraft && !middleware.IsStaff(c) {
		notFound(c)
		return nil, false
	}
	if guide.IsDraft {
		middleware.NoCache(c)
	}
	return &guide, true
}

// loadChapter finds a chapter of guide; draft chapters 404 unless staff.
func loadChapter(c *gin.Context, guide *models.Guide, slug string) (*models.Chapter, bool) {
	var ch models.Chapter
	err := db.DB.Preload("Tags", func(tx *gorm.DB) *gorm.DB { return tx.Order("tags.tag") }).
		Where("guide_id = ? AND slug = ?", guide.ID, slug).First(&ch).Error
	if err != nil {
		lookupFailed(c, err)
		return nil, false
	}
	if ch.IsDraft && !middleware.IsStaff(c) {
		notFound(c)
		return nil, false
	}
	if ch.IsDraft || ch.IsUnlisted {
		middleware.NoCache(c)
	}
	ch.Guide = guide
	return &ch, true
}

func (h *GuideHandler) Index(c *gin.Context) {
	staff := middleware.IsStaff(c)
	guides, err := services.GuidesWithCounts(db.DB, staff)
	if err != nil {
		serverError(c, err)
		return
	}
	if staff {
		middleware.NoCache(c)
	}
	Render(c, http.StatusOK, "guides.html", gin.H{"Title": "Guides", "Guides": guides})
}

func (h *GuideHandler) Detail(c *gin.Context) {
	guide, ok := loadGuide(c, c.Param("guide"))
	if !ok {
		return
	}
	toc, err := services.BuildTOC(db.DB, guide, middleware.IsStaff(c))
	if err != nil {
		serverError(c, err)
		return
	}
	Render(c, http.StatusOK, "guide.html", gin.H{
		"Title": guide.Title,
		"Guide": guide,
		"TOC":   toc,
	})
}

func (h *GuideHandler) Chapter(c *gin.Context) {
	guide, ok := loadGuide(c, c.Param("guide"))
	if !ok {
		return
	}
	ch, ok := loadChapter(c, guide, c.Param("chapter"))
	if !ok {
		return
	}
	toc, err := services.BuildTOC(db.DB, guide, middleware.IsStaff(c))
	if err != nil {
		serverError(c, err)
		return
	}
	prev, next := services.Neighbours(services.FlattenTOC(toc), ch.ID)
	var changes int64
	if err := db.DB.Model(&models.ChapterChange{}).Where("chapter_id = ?", ch.ID).Count(&changes).Error; err != nil {
		serverError(c, err)
		return
	}
	Render(c, http.StatusOK, "chapter.html", gin.H{
		"Title":       ch.Title,
		"Guide":       guide,
		"Chapter":     ch,
		"TOC":         toc,
		"Prev":        prev,
		"Next":        next,
		"HasChanges":  changes > 1,
		"ChangeCount": changes,
	})
}

func (h *GuideHandler) Changes(c *gin.Context) {
	guide, ok := loadGuide(c, c.Param("guide"))
	if !ok {
		return
	}
	ch, ok := loadChapter(c, guide, c.Param("chapter"))
	if !ok {
		return
	}
	history, err := services.ChapterHistory(db.DB, ch.ID)
	if err != nil {
		serverError(c, err)
		return
	}
	diffs, err := services.DiffChanges(history)
	if err != nil {
		serverError(c, err)
		return
	}
	Render(c, http.StatusOK, "chapter_changes.html", gin.H{
		"Title":   "Changes to " + ch.Title,
		"Guide":   guide,
		"Chapter": ch,
		"Diffs":   diffs,
	})
}

// Atom serves /guides/<slug>.atom and adds the slash to /guides/<slug>.
func (h *GuideHandler) Atom(c *gin.Context) {
	raw := c.Param("guide")
	slug, ok := strings.CutSuffix(raw, ".atom")
	if !ok {
		c.Redirect(http.StatusMovedPermanently, "/guides/"+raw+"/")
		return
	}
	var guide models.Guide
	if err := db.DB.Where("slug = ? AND is_draft = false", slug).First(&guide).Error; err != nil {
		lookupFailed(c, err)
		return
	}
	items, err := feeds.GuideItems(db.DB, &guide)
	if err != nil {
		serverError(c, err)
		return
	}
	writeFeed(c, feedBuilder().Build(site.Title+": "+guide.Title, c.Request.URL.Path, "guide-"+guide.Slug, items))
}

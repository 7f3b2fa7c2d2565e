package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"weblog/internal/config"
	"weblog/internal/content"
	"weblog/internal/db"
	"weblog/internal/models"
	"weblog/internal/services"
	"weblog/internal/utils"
)

// AdminHandler serves the staff-only tools. Every route is behind
// middleware.StaffRequired.
type AdminHandler struct {
	sources    map[string]string
	importer   *services.BeatImporter
	crawler    *services.CrawlerService
	cloudflare *services.CloudflareClient
}

func NewAdminHandler(cfg *config.Config) *AdminHandler {
	return &AdminHandler{
		sources:    cfg.ImportSources,
		importer:   services.GetBeatImporter(),
		crawler:    services.GetCrawlerService(),
		cloudflare: services.NewCloudflareClient(cfg.CloudflareEmail, cfg.CloudflareToken, cfg.CloudflareZoneID),
	}
}

// Dashboard links to the tools and lists the configured importers.
func (h *AdminHandler) Dashboard(c *gin.Context) {
	Render(c, http.StatusOK, "admin.html", gin.H{
		"Title":     "Staff tools",
		"Importers": h.importer.Names(),
		"Sources":   h.sources,
	})
}

func (h *AdminHandler) renderMerge(c *gin.Context, code int, data gin.H) {
	q := strings.TrimSpace(c.Query("q"))
	var matches []content.TagUsage
	if q != "" {
		var err error
		if matches, err = content.TagUsageMatching(db.DB, strings.ToLower(q)); err != nil {
			serverError(c, err)
			return
		}
	}
	var recent []models.TagMerge
	if err := db.DB.Order("created DESC").Limit(20).Find(&recent).Error; err != nil {
		serverError(c, err)
		return
	}
	data["Title"] = "Merge tags"
	data["Query"] = q
	data["Matches"] = matches
	data["Recent"] = recent
	Render(c, code, "merge_tags.html", data)
}

func (h *AdminHandler) ShowMergeTags(c *gin.Context) {
	h.renderMerge(c, http.StatusOK, gin.H{"Msg": c.Query("msg")})
}

// tagByName resolves a form value to a tag.
func tagByName(name string) (*models.Tag, error) {
	var t models.Tag
	if err := db.DB.Where("tag = ?", strings.TrimSpace(name)).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, services.ErrTagNotFound
		}
		return nil, err
	}
	return &t, nil
}

// MergeTags folds the "loser" tag into the "winner" tag.
func (h *AdminHandler) MergeTags(c *gin.Context) {
	fail := func(err error) {
		if errors.Is(err, services.ErrSameTag) || errors.Is(err, services.ErrTagNotFound) {
			h.renderMerge(c, http.StatusBadRequest, gin.H{
				"Error":  err.Error(),
				"Winner": c.PostForm("winner"),
				"Loser":  c.PostForm("loser"),
			})
			return
		}
		serverError(c, err)
	}
	winner, err := tagByName(c.PostForm("winner"))
	if err != nil {
		fail(err)
		return
	}
	loser, err := tagByName(c.PostForm("loser"))
	if err != nil {
		fail(err)
		return
	}
	merge, err := services.MergeTags(winner.ID, loser.ID)
	if err != nil {
		fail(err)
		return
	}
	utils.GetCache().Purge()
	msg := "Merged " + merge.SourceTagName + " into " + merge.DestinationTagName
	c.Redirect(http.StatusFound, "/admin/merge-tags/?msg="+url.QueryEscape(msg))
}

// Import runs one beat importer against its configured source.
func (h *AdminHandler) Import(c *gin.Context) {
	name := c.Param("name")
	res, err := h.importer.Run(c.Request.Context(), name, h.sources[name])
	if errors.Is(err, services.ErrUnknownImporter) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	utils.GetCache().Purge()
	c.JSON(http.StatusOK, res)
}

func (h *AdminHandler) ShowPurgeCache(c *gin.Context) {
	Render(c, http.StatusOK, "purge_cache.html", gin.H{
		"Title":      "Purge cache",
		"Msg":        c.Query("msg"),
		"Configured": h.cloudflare.Token != "" && h.cloudflare.ZoneID != "",
	})
}

// PurgeCache empties the local page cache and the Cloudflare zone.
func (h *AdminHandler) PurgeCache(c *gin.Context) {
	utils.GetCache().Purge()
	if err := h.cloudflare.PurgeEverything(c.Request.Context()); err != nil {
		code := http.StatusBadGateway
		if errors.Is(err, services.ErrCloudflareNotConfigured) {
			code = http.StatusBadRequest
		}
		Render(c, code, "purge_cache.html", gin.H{"Title": "Purge cache", "Error": err.Error()})
		return
	}
	c.Redirect(http.StatusFound, "/admin/purge-cache/?msg=Cache+purged")
}

// ExtractTitle answers {"title": ...} for ?url=, or {} without one.
func (h *AdminHandler) ExtractTitle(c *gin.Context) {
	target := strings.TrimSpace(c.Query("url"))
	if target == "" {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	title, err := h.crawler.ExtractTitle(c.Request.Context(), target)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"title": title})
}

// AddTag attaches a tag to one item: content_type, object_id and tag.
func (h *AdminHandler) AddTag(c *gin.Context) {
	kind := c.PostForm("content_type")
	id, err := strconv.ParseUint(c.PostForm("object_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid object_id"})
		return
	}
	tag, err := services.AddTag(kind, uint(id), c.PostForm("tag"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"success": true, "tag": tag.Tag})
	case errors.Is(err, services.ErrInvalidTag), errors.Is(err, content.ErrUnknownKind):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "object not found"})
	default:
		serverError(c, err)
	}
}

package handlers

import (
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"weblog/internal/content"
	"weblog/internal/db"
	"weblog/internal/models"
)

type SEOHandler struct{}

func NewSEOHandler() *SEOHandler {
	return &SEOHandler{}
}

func (h *SEOHandler) RobotsTxt(c *gin.Context) {
	body := fmt.Sprintf(`User-agent: *
Disallow: /admin/
Disallow: /login/
Disallow: /tools/
Disallow: /api/

Sitemap: %s/sitemap.xml
`, site.URL)
	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.String(http.StatusOK, body)
}

// sitemapPaths lists the URL of every public dated item and chapter.
func sitemapPaths() ([]string, error) {
	var paths []string
	for _, name := range content.Dated {
		k, _ := content.KindByName(name)
		var rows []struct {
			Created time.Time
			Slug    string
		}
		err := db.DB.Table(k.Table).Select("created, slug").
			Where(k.Public()).Order("created DESC").Scan(&rows).Error
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			paths = append(paths, models.DatePath(r.Created)+r.Slug+"/")
		}
	}
	k, _ := content.KindByName(models.KindChapter)
	var chapters []struct {
		Guide string
		Slug  string
	}
	err := db.DB.Table("chapters").
		Select("guides.slug AS guide, chapters.slug AS slug").
		Joins("JOIN guides ON guides.id = chapters.guide_id").
		Where(k.Public()).Order("guides.slug, chapters.\"order\"").Scan(&chapters).Error
	if err != nil {
		return nil, err
	}
	for _, ch := range chapters {
		paths = append(paths, "/guides/"+ch.Guide+"/"+ch.Slug+"/")
	}
	return paths, nil
}

func (h *SEOHandler) SitemapXML(c *gin.Context) {
	paths, err := sitemapPaths()
	if err != nil {
		serverError(c, err)
		return
	}
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">` + "\n")
	for _, p := range paths {
		fmt.Fprintf(&b, "<url><loc>%s</loc></url>\n", html.EscapeString(site.URL+p))
	}
	b.WriteString("</urlset>\n")
	c.Header("Cache-Control", "s-maxage=3600")
	c.Data(http.StatusOK, "application/xml; charset=utf-8", []byte(b.String()))
}

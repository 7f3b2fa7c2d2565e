package router

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"weblog/internal/config"
	"weblog/internal/handlers"
	"weblog/internal/logger"
	"weblog/internal/middleware"
	"weblog/internal/models"
	"weblog/internal/services"
	"weblog/web"
)

const sessionName = "weblog_session"

// Setup builds the engine: sessions, templates, static files, the global
// middleware chain and every route.
func Setup(cfg *config.Config) (*gin.Engine, error) {
	handlers.Configure(cfg)

	r := gin.New()
	if err := r.SetTrustedProxies(nil); err != nil {
		return nil, err
	}
	r.Use(gin.Recovery())
	r.Use(middleware.CloudflareIP(services.GetCloudflareRanges()))
	r.Use(logger.GinLogger())

	store := cookie.NewStore([]byte(cfg.SecretKey))
	store.Options(sessions.Options{Path: "/", MaxAge: 86400 * 14, HttpOnly: true, Secure: !cfg.Debug})
	r.Use(sessions.Sessions(sessionName, store))

	renderer, err := web.Renderer()
	if err != nil {
		return nil, err
	}
	r.HTMLRender = renderer
	for name := range renderer {
		handlers.RegisterViews(name)
	}
	r.StaticFS("/static", web.Static())

	r.Use(middleware.AmpersandRedirect())
	r.Use(middleware.Redirects())
	r.Use(middleware.Staging(cfg.Staging))
	r.Use(middleware.LoadUser())

	RegisterRoutes(r, cfg)
	r.NoRoute(func(c *gin.Context) {
		handlers.RenderError(c, 404, "Page not found")
	})
	return r, nil
}

func RegisterRoutes(r *gin.Engine, cfg *config.Config) {
	// Handlers
	blogHandler := handlers.NewBlogHandler()
	tagHandler := handlers.NewTagHandler()
	seriesHandler := handlers.NewSeriesHandler()
	searchHandler := handlers.NewSearchHandler()
	guideHandler := handlers.NewGuideHandler()
	monthlyHandler := handlers.NewMonthlyHandler()
	feedHandler := handlers.NewFeedHandler()
	seoHandler := handlers.NewSEOHandler()
	authHandler := handlers.NewAuthHandler()
	adminHandler := handlers.NewAdminHandler(cfg)

	// Public pages
	r.GET("/", blogHandler.Index)
	r.GET("/:year/", blogHandler.Year)
	r.GET("/:year/:month/", blogHandler.Month)
	r.GET("/:year/:month/:day/", blogHandler.Day)
	r.GET("/:year/:month/:day/:slug/", blogHandler.Item)

	r.GET("/tags/", tagHandler.Index)
	r.GET("/tags/:tags/", tagHandler.Archive)
	r.GET("/tags/:tags", feed(tagHandler.Atom)...)
	r.OPTIONS("/tags/:tags", feed(tagHandler.Atom)...)
	r.GET("/tags-autocomplete/", tagHandler.Autocomplete)

	r.GET("/series/", seriesHandler.Index)
	r.GET("/series/:slug/", seriesHandler.Detail)
	r.GET("/series/:slug", feed(seriesHandler.Atom)...)
	r.OPTIONS("/series/:slug", feed(seriesHandler.Atom)...)

	r.GET("/search/", searchHandler.Search)

	r.GET("/guides/", guideHandler.Index)
	r.GET("/guides/:guide/", guideHandler.Detail)
	r.GET("/guides/:guide", feed(guideHandler.Atom)...)
	r.OPTIONS("/guides/:guide", feed(guideHandler.Atom)...)
	r.GET("/guides/:guide/:chapter/", guideHandler.Chapter)
	r.GET("/guides/:guide/:chapter/changes/", guideHandler.Changes)

	r.GET("/monthly/", monthlyHandler.Index)
	r.GET("/monthly/:month/", monthlyHandler.Detail)

	r.GET("/sitemap.xml", seoHandler.SitemapXML)
	r.GET("/robots.txt", seoHandler.RobotsTxt)

	// Legacy URLs
	r.GET("/archive/:yyyy/:mm/:dd/", blogHandler.LegacyDay)
	r.GET("/archive/:yyyy/:mm/:dd/:slug", blogHandler.LegacyItem)
	r.GET("/e/:id", blogHandler.ByID(models.KindEntry))
	r.GET("/b/:id", blogHandler.ByID(models.KindBlogmark))
	r.GET("/q/:id", blogHandler.ByID(models.KindQuotation))

	// Feeds
	atom := r.Group("/atom")
	atom.Use(feedMiddleware()...)
	{
		atom.GET("/entries/", feedHandler.Entries)
		atom.GET("/links/", feedHandler.Links)
		atom.GET("/everything/", feedHandler.Everything)
		atom.OPTIONS("/entries/", feedHandler.Entries)
		atom.OPTIONS("/links/", feedHandler.Links)
		atom.OPTIONS("/everything/", feedHandler.Everything)
	}

	// Staff login
	r.GET("/login/", authHandler.ShowLogin)
	r.POST("/login/", authHandler.Login)
	r.GET("/logout/", authHandler.Logout)

	// Staff-only routes
	staff := r.Group("/")
	staff.Use(middleware.StaffRequired())
	{
		staff.GET("/admin/", adminHandler.Dashboard)
		staff.GET("/admin/merge-tags/", adminHandler.ShowMergeTags)
		staff.POST("/admin/merge-tags/", adminHandler.MergeTags)
		staff.POST("/admin/import/:name", adminHandler.Import)
		staff.GET("/admin/purge-cache/", adminHandler.ShowPurgeCache)
		staff.POST("/admin/purge-cache/", adminHandler.PurgeCache)
		staff.GET("/tools/extract-title/", adminHandler.ExtractTitle)
		staff.GET("/tools/search-tags/", tagHandler.SearchTags)
		staff.POST("/api/add-tag/", adminHandler.AddTag)
	}
}

// feedMiddleware is shared by every Atom route: open CORS and subscriber stats.
func feedMiddleware() []gin.HandlerFunc {
	return []gin.HandlerFunc{middleware.FeedCORS(), middleware.FeedStats()}
}

func feed(h gin.HandlerFunc) []gin.HandlerFunc {
	return append(feedMiddleware(), h)
}

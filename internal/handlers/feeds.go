package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"weblog/internal/db"
	"weblog/internal/feeds"
	"weblog/internal/utils"
)

const feedCacheTTL = 2 * time.Minute

type FeedHandler struct {
	cache *utils.PageCache
}

func NewFeedHandler() *FeedHandler {
	return &FeedHandler{cache: utils.GetCache()}
}

func (h *FeedHandler) serve(c *gin.Context, key, title, source string, load func() ([]feeds.Item, error)) {
	path := c.Request.URL.Path
	feed, err := utils.Remember(h.cache, "feed:"+key, feedCacheTTL, func() (*feeds.Feed, error) {
		items, err := load()
		if err != nil {
			return nil, err
		}
		return feedBuilder().Build(title, path, source, items), nil
	})
	if err != nil {
		serverError(c, err)
		return
	}
	writeFeed(c, feed)
}

func (h *FeedHandler) Entries(c *gin.Context) {
	h.serve(c, "entries", site.Title+": Entries", "entries", func() ([]feeds.Item, error) {
		return feeds.EntryItems(db.DB, site.URL)
	})
}

func (h *FeedHandler) Links(c *gin.Context) {
	h.serve(c, "links", site.Title+": Blogmarks", "blogmarks", func() ([]feeds.Item, error) {
		return feeds.BlogmarkItems(db.DB)
	})
}

func (h *FeedHandler) Everything(c *gin.Context) {
	h.serve(c, "everything", site.Title, "everything", func() ([]feeds.Item, error) {
		return feeds.EverythingItems(db.DB)
	})
}

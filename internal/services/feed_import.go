package services

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"weblog/internal/db"
	"weblog/internal/models"
	"weblog/internal/search"
	"weblog/internal/utils"
)

// FeedImporter turns items of an external RSS/Atom feed into draft
// blogmarks, for staff to edit and publish.
type FeedImporter struct {
	parser *gofeed.Parser
}

func NewFeedImporter() *FeedImporter {
	parser := gofeed.NewParser()
	parser.Client = &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			IdleConnTimeout:     30 * time.Second,
			MaxIdleConnsPerHost: 2,
		},
	}
	return &FeedImporter{parser: parser}
}

var (
	feedImporter     *FeedImporter
	feedImporterOnce sync.Once
)

func GetFeedImporter() *FeedImporter {
	feedImporterOnce.Do(func() {
		feedImporter = NewFeedImporter()
	})
	return feedImporter
}

// feedRef keys a feed item by GUID (or link), hashed when too long for the column.
func feedRef(item *gofeed.Item) string {
	guid := item.GUID
	if guid == "" {
		guid = item.Link
	}
	ref := "feed:" + guid
	if len(ref) > 100 {
		sum := sha1.Sum([]byte(guid))
		ref = "feed:" + hex.EncodeToString(sum[:])
	}
	return ref
}

// Import fetches url and creates a draft blogmark per unseen item.
func (f *FeedImporter) Import(ctx context.Context, url string) (*ImportResult, error) {
	feed, err := f.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		var httpErr gofeed.HTTPError
		if errors.As(err, &httpErr) {
			return nil, &HTTPStatusError{URL: url, StatusCode: httpErr.StatusCode}
		}
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	res := &ImportResult{}
	for _, item := range feed.Items {
		if item.Link == "" {
			res.Skipped++
			continue
		}
		ref := feedRef(item)
		var existing models.Blogmark
		err := db.DB.Where("import_ref = ?", ref).First(&existing).Error
		if err == nil {
			res.Skipped++
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}

		created := time.Now().UTC()
		if item.PublishedParsed != nil {
			created = item.PublishedParsed.UTC()
		} else if item.UpdatedParsed != nil {
			created = item.UpdatedParsed.UTC()
		}
		commentary := item.Description
		if commentary == "" {
			commentary = item.Content
		}
		bm := models.Blogmark{
			Base: models.Base{
				Created:   created,
				Slug:      truncateRunes(utils.Slugify(item.Title), maxSlug),
				ImportRef: &ref,
				IsDraft:   true,
			},
			LinkURL:    item.Link,
			LinkTitle:  item.Title,
			ViaURL:     feed.Link,
			ViaTitle:   feed.Title,
			Commentary: utils.Summary(commentary, 80),
		}
		if bm.Slug == "" {
			bm.Slug = "link"
		}
		if err := db.DB.Create(&bm).Error; err != nil {
			log.Error().Err(err).Str("ref", ref).Msg("store feed item failed")
			continue
		}
		search.GetIndexer().Schedule(models.KindBlogmark, bm.ID)
		res.Created++
	}
	log.Info().Str("feed", url).Int("created", res.Created).Int("skipped", res.Skipped).Msg("feed import finished")
	return res, nil
}

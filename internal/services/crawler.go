package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"weblog/internal/utils"
)

// maxPageBytes caps how much of a page is read when looking for a title.
const maxPageBytes = 5 << 20

// CrawlerService fetches third-party pages for staff tools.
type CrawlerService struct {
	client *http.Client
}

func NewCrawlerService() *CrawlerService {
	return &CrawlerService{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

var (
	crawlerService *CrawlerService
	crawlerOnce    sync.Once
)

func GetCrawlerService() *CrawlerService {
	crawlerOnce.Do(func() {
		crawlerService = NewCrawlerService()
	})
	return crawlerService
}

func (s *CrawlerService) fetch(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; weblog-extract-title)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPStatusError{URL: pageURL, StatusCode: resp.StatusCode}
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
}

// ExtractTitle returns the page's <title>. Pages without one fall back to
// the title readability detects in the article body.
func (s *CrawlerService) ExtractTitle(ctx context.Context, pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("invalid url %q", pageURL)
	}
	body, err := s.fetch(ctx, pageURL)
	if err != nil {
		return "", err
	}
	return TitleFromHTML(body, u), nil
}

// TitleFromHTML is the parsing half of ExtractTitle.
func TitleFromHTML(body []byte, u *url.URL) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err == nil {
		if title := utils.ExtractTitle(doc); title != "" {
			return title
		}
		if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
			return title
		}
	}
	article, err := readability.FromReader(bytes.NewReader(body), u)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(article.Title)
}

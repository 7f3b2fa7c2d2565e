package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/araddon/dateparse"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"weblog/internal/db"
	"weblog/internal/models"
	"weblog/internal/search"
	"weblog/internal/utils"
)

var ErrUnknownImporter = errors.New("unknown importer")

// HTTPStatusError is returned when an import source answers with a non-2xx status.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
}

const (
	statusCreated = "created"
	statusUpdated = "updated"
	statusSkipped = "skipped"
)

// ImportResult counts what an import did. Items holds created and updated beats.
type ImportResult struct {
	Created int            `json:"created"`
	Updated int            `json:"updated"`
	Skipped int            `json:"skipped"`
	Items   []*models.Beat `json:"-"`
}

func (r *ImportResult) record(beat *models.Beat, status string) {
	switch status {
	case statusCreated:
		r.Created++
		r.Items = append(r.Items, beat)
	case statusUpdated:
		r.Updated++
		r.Items = append(r.Items, beat)
	default:
		r.Skipped++
	}
}

type ImportFunc func(ctx context.Context, url string) (*ImportResult, error)

// BeatImporter pulls releases, research projects, TILs, tools and museums
// from their JSON/markdown sources and upserts them as beats keyed by import_ref.
type BeatImporter struct {
	client *http.Client
}

func NewBeatImporter() *BeatImporter {
	return &BeatImporter{
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: 2,
			},
		},
	}
}

var (
	beatImporter     *BeatImporter
	beatImporterOnce sync.Once
)

func GetBeatImporter() *BeatImporter {
	beatImporterOnce.Do(func() {
		beatImporter = NewBeatImporter()
	})
	return beatImporter
}

func (b *BeatImporter) Importers() map[string]ImportFunc {
	return map[string]ImportFunc{
		"releases": b.ImportReleases,
		"research": b.ImportResearch,
		"tils":     b.ImportTILs,
		"tools":    b.ImportTools,
		"museums":  b.ImportMuseums,
	}
}

// Names lists importer names in a stable order.
func (b *BeatImporter) Names() []string {
	names := make([]string, 0, 5)
	for name := range b.Importers() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (b *BeatImporter) Run(ctx context.Context, name, url string) (*ImportResult, error) {
	fn, ok := b.Importers()[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownImporter, name)
	}
	if url == "" {
		return nil, fmt.Errorf("no source URL configured for %s", name)
	}
	res, err := fn(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", name, err)
	}
	log.Info().Str("importer", name).Int("created", res.Created).Int("updated", res.Updated).
		Int("skipped", res.Skipped).Msg("beat import finished")
	return res, nil
}

// RunAll runs every importer that has a source, concurrently.
func (b *BeatImporter) RunAll(ctx context.Context, sources map[string]string) (map[string]*ImportResult, error) {
	var mu sync.Mutex
	out := map[string]*ImportResult{}
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range b.Names() {
		name, url := name, sources[name]
		if url == "" {
			continue
		}
		g.Go(func() error {
			res, err := b.Run(gctx, name, url)
			if err != nil {
				return err
			}
			mu.Lock()
			out[name] = res
			mu.Unlock()
			return nil
		})
	}
	return out, g.Wait()
}

// StartScheduledImports runs every configured importer once at start-up and
// then on every tick.
func (b *BeatImporter) StartScheduledImports(interval time.Duration, sources map[string]string) {
	if interval <= 0 || len(sources) == 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		run := func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()
			if _, err := b.RunAll(ctx, sources); err != nil {
				log.Error().Err(err).Msg("scheduled beat import failed")
			}
		}
		run()
		for range ticker.C {
			run()
		}
	}()
}

func (b *BeatImporter) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "weblog-importer/1.0")
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPStatusError{URL: url, StatusCode: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

func (b *BeatImporter) fetchJSON(ctx context.Context, url string, v interface{}) error {
	body, err := b.fetch(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

func parseTime(s string) (time.Time, error) {
	t, err := dateparse.ParseIn(strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// ImportReleases: {"repo": {"description": "...", "releases": [{"release", "published_at", "url"}]}}.
// Existing releases are never updated.
func (b *BeatImporter) ImportReleases(ctx context.Context, url string) (*ImportResult, error) {
	var repos map[string]struct {
		Description string `json:"description"`
		Releases    []struct {
			Release     string `json:"release"`
			PublishedAt string `json:"published_at"`
			URL         string `json:"url"`
		} `json:"releases"`
	}
	if err := b.fetchJSON(ctx, url, &repos); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(repos))
	for name := range repos {
		names = append(names, name)
	}
	sort.Strings(names)

	res := &ImportResult{}
	for _, repo := range names {
		info := repos[repo]
		for _, rel := range info.Releases {
			ref := fmt.Sprintf("release:%s:%s", repo, rel.Release)
			var n int64
			if err := db.DB.Model(&models.Beat{}).Where("import_ref = ?", ref).Count(&n).Error; err != nil {
				return nil, err
			}
			if n > 0 {
				res.Skipped++
				continue
			}
			created, err := parseTime(rel.PublishedAt)
			if err != nil {
				return nil, fmt.Errorf("release %s: %w", ref, err)
			}
			slug, err := UniqueSlug(db.DB, repo, created, ref)
			if err != nil {
				return nil, err
			}
			beat := &models.Beat{
				Base:       models.Base{Created: created, Slug: slug, ImportRef: &ref},
				BeatType:   models.BeatRelease,
				Title:      repo + " " + rel.Release,
				URL:        rel.URL,
				Commentary: info.Description,
			}
			if err := db.DB.Create(beat).Error; err != nil {
				return nil, err
			}
			search.GetIndexer().Schedule(models.KindBeat, beat.ID)
			res.record(beat, statusCreated)
		}
	}
	return res, nil
}

var (
	researchHeading = regexp.MustCompile(`(?m)^### \[([^\]]+)\]\(([^)]+)\) \((\d{4}-\d{2}-\d{2})\)`)
	markdownLink    = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
)

// ResearchProject is one heading parsed from the research README.
type ResearchProject struct {
	Title      string
	URL        string
	Created    time.Time
	Commentary string
}

// ParseResearch extracts `### [title](url) (YYYY-MM-DD)` sections.
func ParseResearch(text string) ([]ResearchProject, error) {
	matches := researchHeading.FindAllStringSubmatchIndex(text, -1)
	out := make([]ResearchProject, 0, len(matches))
	for i, m := range matches {
		title := text[m[2]:m[3]]
		projectURL := text[m[4]:m[5]]
		if !strings.HasSuffix(projectURL, "#readme") {
			projectURL += "#readme"
		}
		created, err := time.Parse("2006-01-02", text[m[6]:m[7]])
		if err != nil {
			return nil, err
		}
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		body := strings.TrimSpace(text[m[1]:end])
		firstPara := strings.TrimSpace(strings.SplitN(body, "\n\n", 2)[0])
		firstPara = markdownLink.ReplaceAllString(firstPara, "$1")
		out = append(out, ResearchProject{
			Title:      title,
			URL:        projectURL,
			Created:    created.UTC(),
			Commentary: Truncate(firstPara, 500),
		})
	}
	return out, nil
}

func (b *BeatImporter) ImportResearch(ctx context.Context, url string) (*ImportResult, error) {
	body, err := b.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	projects, err := ParseResearch(string(body))
	if err != nil {
		return nil, err
	}
	res := &ImportResult{}
	for _, p := range projects {
		ref := "research:" + p.Title
		slug, err := UniqueSlug(db.DB, utils.Slugify(p.Title), p.Created, ref)
		if err != nil {
			return nil, err
		}
		beat, status, err := createOrUpdateBeat(ref, models.Beat{
			Base:       models.Base{Created: p.Created, Slug: slug},
			BeatType:   models.BeatResearch,
			Title:      p.Title,
			URL:        p.URL,
			Commentary: p.Commentary,
		})
		if err != nil {
			return nil, err
		}
		res.record(beat, status)
	}
	return res, nil
}

// TILCommentary returns the first meaningful line of a TIL body, skipping a
// leading "# " heading.
func TILCommentary(body string) string {
	body = strings.TrimSpace(body)
	lines := strings.Split(body, "\n")
	first := strings.TrimSpace(lines[0])
	if strings.HasPrefix(first, "# ") {
		first = ""
		for _, l := range lines[1:] {
			if l = strings.TrimSpace(l); l != "" {
				first = l
				break
			}
		}
	}
	return Truncate(first, 500)
}

func (b *BeatImporter) ImportTILs(ctx context.Context, url string) (*ImportResult, error) {
	var tils []struct {
		Topic      string `json:"topic"`
		Slug       string `json:"slug"`
		Title      string `json:"title"`
		Body       string `json:"body"`
		CreatedUTC string `json:"created_utc"`
	}
	if err := b.fetchJSON(ctx, url, &tils); err != nil {
		return nil, err
	}
	res := &ImportResult{}
	for _, til := range tils {
		ref := fmt.Sprintf("til:%s/%s", til.Topic, til.Slug)
		created, err := parseTime(til.CreatedUTC)
		if err != nil {
			return nil, fmt.Errorf("til %s: %w", ref, err)
		}
		slug, err := UniqueSlug(db.DB, til.Slug, created, ref)
		if err != nil {
			return nil, err
		}
		beat, status, err := createOrUpdateBeat(ref, models.Beat{
			Base:       models.Base{Created: created, Slug: slug},
			BeatType:   models.BeatTIL,
			Title:      til.Title,
			URL:        fmt.Sprintf("https://til.simonwillison.net/%s/%s", til.Topic, til.Slug),
			Commentary: TILCommentary(til.Body),
		})
		if err != nil {
			return nil, err
		}
		res.record(beat, status)
	}
	return res, nil
}

func (b *BeatImporter) ImportTools(ctx context.Context, url string) (*ImportResult, error) {
	var tools []struct {
		Filename    string `json:"filename"`
		Slug        string `json:"slug"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Created     string `json:"created"`
	}
	if err := b.fetchJSON(ctx, url, &tools); err != nil {
		return nil, err
	}
	res := &ImportResult{}
	for _, tool := range tools {
		ref := "tool:" + tool.Filename
		created, err := parseTime(tool.Created)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", ref, err)
		}
		base := tool.Slug
		if base == "" {
			base = strings.TrimSuffix(tool.Filename, ".html")
		}
		slug, err := UniqueSlug(db.DB, base, created, ref)
		if err != nil {
			return nil, err
		}
		beat, status, err := createOrUpdateBeat(ref, models.Beat{
			Base:       models.Base{Created: created, Slug: slug},
			BeatType:   models.BeatTool,
			Title:      tool.Title,
			URL:        "https://tools.simonwillison.net/colophon#" + tool.Filename,
			Commentary: Truncate(tool.Description, 500),
		})
		if err != nil {
			return nil, err
		}
		res.record(beat, status)
	}
	return res, nil
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func (b *BeatImporter) ImportMuseums(ctx context.Context, url string) (*ImportResult, error) {
	var museums []struct {
		Name     string `json:"name"`
		URL      string `json:"url"`
		Address  string `json:"address"`
		PhotoURL string `json:"photo_url"`
		PhotoAlt string `json:"photo_alt"`
		Created  string `json:"created"`
	}
	if err := b.fetchJSON(ctx, url, &museums); err != nil {
		return nil, err
	}
	res := &ImportResult{}
	for _, m := range museums {
		if m.URL == "" {
			continue
		}
		parts := strings.Split(strings.TrimRight(m.URL, "/"), "/")
		ref := "museum:" + parts[len(parts)-1]
		created, err := parseTime(m.Created)
		if err != nil {
			return nil, fmt.Errorf("museum %s: %w", ref, err)
		}
		slug, err := UniqueSlug(db.DB, strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(m.Name), "-"), "-"), created, ref)
		if err != nil {
			return nil, err
		}
		image := ""
		if m.PhotoURL != "" {
			image = m.PhotoURL + "?h=200"
		}
		beat, status, err := createOrUpdateBeat(ref, models.Beat{
			Base:       models.Base{Created: created, Slug: slug},
			BeatType:   models.BeatMuseum,
			Title:      m.Name,
			URL:        m.URL,
			Commentary: m.Address,
			ImageURL:   image,
			ImageAlt:   m.PhotoAlt,
		})
		if err != nil {
			return nil, err
		}
		res.record(beat, status)
	}
	return res, nil
}

// createOrUpdateBeat upserts by import_ref. A row only counts as updated when
// one of the imported fields actually changed.
func createOrUpdateBeat(ref string, fields models.Beat) (*models.Beat, string, error) {
	var existing models.Beat
	err := db.DB.Where("import_ref = ?", ref).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		fields.ImportRef = &ref
		if err := db.DB.Create(&fields).Error; err != nil {
			return nil, "", err
		}
		search.GetIndexer().Schedule(models.KindBeat, fields.ID)
		return &fields, statusCreated, nil
	}
	if err != nil {
		return nil, "", err
	}

	changed := existing.BeatType != fields.BeatType ||
		existing.Title != fields.Title ||
		existing.URL != fields.URL ||
		existing.Slug != fields.Slug ||
		!existing.Created.Equal(fields.Created) ||
		existing.Commentary != fields.Commentary ||
		existing.ImageURL != fields.ImageURL ||
		existing.ImageAlt != fields.ImageAlt
	if !changed {
		return &existing, statusSkipped, nil
	}
	existing.BeatType = fields.BeatType
	existing.Title = fields.Title
	existing.URL = fields.URL
	existing.Slug = fields.Slug
	existing.Created = fields.Created
	existing.Commentary = fields.Commentary
	existing.ImageURL = fields.ImageURL
	existing.ImageAlt = fields.ImageAlt
	if err := db.DB.Save(&existing).Error; err != nil {
		return nil, "", err
	}
	search.GetIndexer().Schedule(models.KindBeat, existing.ID)
	return &existing, statusUpdated, nil
}

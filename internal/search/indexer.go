package search

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"weblog/internal/content"
	"weblog/internal/db"
)

type job struct {
	kind string
	id   uint
}

// Indexer recomputes search_document columns in the background. Writers call
// Schedule after their transaction has committed; duplicate requests for an
// item already queued are dropped.
type Indexer struct {
	queue   chan job
	pending map[job]bool
	mu      sync.Mutex
	sync    bool
}

var (
	indexer *Indexer
	once    sync.Once
)

// GetIndexer returns the singleton indexer, starting its worker on first use.
func GetIndexer() *Indexer {
	once.Do(func() {
		indexer = &Indexer{
			queue:   make(chan job, 1000),
			pending: make(map[job]bool),
		}
		go indexer.worker()
	})
	return indexer
}

// SetSynchronous makes Schedule reindex inline. blogctl and tests use it.
func (s *Indexer) SetSynchronous(on bool) {
	s.mu.Lock()
	s.sync = on
	s.mu.Unlock()
}

func (s *Indexer) Schedule(kind string, id uint) {
	j := job{kind: kind, id: id}
	s.mu.Lock()
	if s.sync {
		s.mu.Unlock()
		s.process(j)
		return
	}
	if s.pending[j] {
		s.mu.Unlock()
		return
	}
	s.pending[j] = true
	s.mu.Unlock()

	select {
	case s.queue <- j:
	default:
		s.mu.Lock()
		delete(s.pending, j)
		s.mu.Unlock()
		log.Warn().Str("kind", kind).Uint("id", id).Msg("search index queue full, dropping update")
	}
}

func (s *Indexer) worker() {
	batch := make([]job, 0, 50)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case j := <-s.queue:
			batch = append(batch, j)
			if len(batch) >= 50 {
				s.processBatch(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.processBatch(batch)
				batch = batch[:0]
			}
		}
	}
}

func (s *Indexer) processBatch(jobs []job) {
	for _, j := range jobs {
		s.process(j)
		s.mu.Lock()
		delete(s.pending, j)
		s.mu.Unlock()
	}
}

func (s *Indexer) process(j job) {
	if err := Reindex(context.Background(), db.DB, j.kind, j.id); err != nil {
		log.Error().Err(err).Str("kind", j.kind).Uint("id", j.id).Msg("reindex failed")
	}
}

// DocumentSQL builds the weighted tsvector expression for components keyed
// by weight letter (A-D).
func DocumentSQL(components map[string]string) (string, []interface{}) {
	weights := make([]string, 0, len(components))
	for w := range components {
		weights = append(weights, w)
	}
	sort.Strings(weights)
	parts := make([]string, 0, len(weights))
	args := make([]interface{}, 0, len(weights))
	for _, w := range weights {
		parts = append(parts, "setweight(to_tsvector('english', ?), '"+w+"')")
		args = append(args, components[w])
	}
	if len(parts) == 0 {
		return "''::tsvector", nil
	}
	return strings.Join(parts, " || "), args
}

// Reindex synchronously recomputes one item's search document.
func Reindex(ctx context.Context, tx *gorm.DB, kind string, id uint) error {
	k, ok := content.KindByName(kind)
	if !ok {
		return content.ErrUnknownKind
	}
	tx = tx.WithContext(ctx)
	item, err := content.Load(tx, kind, id)
	if err != nil {
		return err
	}
	expr, args := DocumentSQL(item.IndexComponents())
	return tx.Table(k.Table).Where("id = ?", id).
		UpdateColumn("search_document", gorm.Expr(expr, args...)).Error
}

// ReindexAll rebuilds every search document and returns how many rows were touched.
func ReindexAll(ctx context.Context, tx *gorm.DB) (int, error) {
	n := 0
	for _, k := range content.Kinds {
		var ids []uint
		if err := tx.WithContext(ctx).Table(k.Table).Order("id").Pluck("id", &ids).Error; err != nil {
			return n, err
		}
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return n, err
			}
			if err := Reindex(ctx, tx, k.Name, id); err != nil {
				return n, err
			}
			n++
		}
		log.Info().Str("kind", k.Name).Int("count", len(ids)).Msg("reindexed")
	}
	return n, nil
}

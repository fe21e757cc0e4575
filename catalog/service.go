// Package catalog composes the loader, validator and cache into the query
// surface used by the HTTP layer and offline consumers.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-books-catalog/cache"
	"github.com/aluiziolira/go-books-catalog/config"
	"github.com/aluiziolira/go-books-catalog/insights"
	"github.com/aluiziolira/go-books-catalog/loader"
	"github.com/aluiziolira/go-books-catalog/models"
	"github.com/aluiziolira/go-books-catalog/validator"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// Health is the liveness view of the service.
type Health struct {
	Healthy     bool      `json:"healthy"`
	Initialized bool      `json:"initialized"`
	CacheEmpty  bool      `json:"cache_empty"`
	FileExists  bool      `json:"file_exists"`
	Books       int       `json:"books"`
	Generation  string    `json:"generation,omitempty"`
	LastRefresh time.Time `json:"last_refresh"`
	LastError   string    `json:"last_error,omitempty"`
}

// Diagnostics gathers the internal state of every component.
type Diagnostics struct {
	Cache      cache.Statistics `json:"cache"`
	Loader     loader.Stats     `json:"loader"`
	Validation validator.Stats  `json:"validation"`
	Health     Health           `json:"health"`
}

// Service is the catalog façade. Queries run concurrently against the cache;
// refreshes are serialised and never interleave.
type Service struct {
	cfg       *config.Config
	loader    *loader.Loader
	validator *validator.Validator
	cache     *cache.Cache
	queries   *lru.Cache[queryKey, []models.Book]
	metrics   *Metrics

	group     singleflight.Group
	refreshMu sync.Mutex

	mu          sync.Mutex
	initialized bool
	generation  string
	lastRefresh time.Time
	lastErr     error
	lastReport  *validator.Report
}

// Option customises a Service.
type Option func(*Service)

// WithMetrics records refresh and query metrics on m.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New builds the service and attempts one refresh. A failed first refresh is
// logged and leaves the service empty but usable.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	s := &Service{
		cfg:       cfg,
		loader:    loader.New(cfg.DataFile),
		validator: validator.New(validator.WithLargeFileThreshold(cfg.LargeFileThreshold)),
		cache:     cache.New(),
	}
	if cfg.QueryCacheSize > 0 {
		queries, err := lru.New[queryKey, []models.Book](cfg.QueryCacheSize)
		if err != nil {
			return nil, fmt.Errorf("creating query cache: %w", err)
		}
		s.queries = queries
	}
	for _, opt := range opts {
		opt(s)
	}

	if !s.Refresh(cfg.ValidateOnRefresh) {
		slog.Warn("initial refresh failed, starting with an empty catalog",
			slog.String("path", cfg.DataFile),
		)
	}
	return s, nil
}

// Refresh re-reads the source file and republishes the cache. Concurrent
// callers share one in-flight refresh. It returns false when the refresh
// failed; the previous generation then stays in place.
func (s *Service) Refresh(validate bool) bool {
	ok, _, _ := s.group.Do("refresh", func() (any, error) {
		return s.refresh(validate), nil
	})
	return ok.(bool)
}

func (s *Service) refresh(validate bool) bool {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	return s.refreshLocked(validate)
}

// refreshLocked runs one timed reload. Callers hold refreshMu.
func (s *Service) refreshLocked(validate bool) bool {
	start := time.Now()
	err := s.reload(validate)
	s.metrics.ObserveRefresh(time.Since(start), err)

	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		slog.Error("refresh failed",
			slog.String("path", s.cfg.DataFile),
			slog.String("reason", failureReason(err)),
			slog.Any("error", err),
		)
		return false
	}
	return true
}

// reload runs one read, check and publish sequence. Callers hold refreshMu.
func (s *Service) reload(validate bool) error {
	s.recordReport(nil)

	rows, err := s.loader.LoadRawRows(true)
	if err != nil {
		return err
	}

	exists := s.loader.Exists()
	if !exists && validate {
		report := s.validator.CheckFile(s.cfg.DataFile)
		s.recordReport(&report)
	}
	if exists {
		if validate {
			report := s.validator.CheckIntegrity(rows)
			s.recordReport(&report)
			for _, w := range report.Warnings {
				slog.Debug("validation warning", slog.String("detail", w))
			}
			if len(report.Errors) > 0 {
				slog.Warn("validation reported errors", slog.Int("errors", len(report.Errors)))
			}
		}
		if structure := s.validator.CheckStructure(rows); !structure.Valid() {
			return StructureError{Problems: structure.Errors}
		}
	}

	gen := s.loader.Generation()
	if gen == nil {
		return errors.New("loader published no generation")
	}

	s.cache.Replace(gen.Books)
	if s.queries != nil {
		s.queries.Purge()
	}

	stats := s.cache.Statistics()
	s.metrics.SetContents(stats.TotalBooks, stats.TotalCategories)

	s.mu.Lock()
	s.initialized = true
	s.generation = gen.ID
	s.lastRefresh = gen.BuiltAt
	s.mu.Unlock()

	slog.Info("catalog refreshed",
		slog.String("generation", gen.ID),
		slog.Int("books", stats.TotalBooks),
		slog.Int("categories", stats.TotalCategories),
	)
	return nil
}

// recordReport stores the report of the current attempt. nil clears it.
func (s *Service) recordReport(report *validator.Report) {
	if report != nil {
		s.metrics.SetValidation(report.ValidRows, report.CorrectedRows, report.RejectedRows)
	}
	s.mu.Lock()
	s.lastReport = report.Clone()
	s.mu.Unlock()
}

// MaybeRefresh refreshes only when the source file changed since the last
// read. It reports whether a refresh ran and succeeded.
func (s *Service) MaybeRefresh() (bool, error) {
	refreshed, err, _ := s.group.Do("refresh-if-stale", func() (any, error) {
		return s.refreshIfStale()
	})
	return refreshed.(bool), err
}

// refreshIfStale checks the fingerprint under refreshMu so a caller that
// queued behind a finished refresh sees the new fingerprint and skips.
func (s *Service) refreshIfStale() (bool, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	stale, err := s.loader.NeedsReload()
	if err != nil {
		return false, err
	}
	if !stale {
		return false, nil
	}
	if !s.refreshLocked(s.cfg.ValidateOnRefresh) {
		return false, s.LastError()
	}
	return true, nil
}

// Run checks the source file every interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("refresh interval must be positive, got %s", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("periodic refresh started", slog.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			slog.Info("periodic refresh stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.MaybeRefresh(); err != nil {
				slog.Warn("periodic refresh failed", slog.Any("error", err))
			}
		}
	}
}

// Books filters, sorts and pages the catalog.
func (s *Service) Books(q Query) Page {
	limit := q.Limit
	if limit <= 0 {
		limit = s.cfg.DefaultPageLimit
	}
	if limit > s.cfg.MaxPageLimit {
		limit = s.cfg.MaxPageLimit
	}
	return paginate(s.sorted(q), q.Page, limit)
}

// sorted returns the filtered and ordered result for q, from the query cache
// when the cache version still matches.
func (s *Service) sorted(q Query) []models.Book {
	if s.queries == nil {
		books := s.cache.Search(q.filter())
		sortBooks(books, q.Sort, descending(q.Order))
		return books
	}

	if books, ok := s.queries.Get(q.cacheKey(s.cache.Version())); ok {
		s.metrics.IncQueryCache(true)
		return books
	}
	s.metrics.IncQueryCache(false)

	books, version := s.cache.SearchAt(q.filter())
	sortBooks(books, q.Sort, descending(q.Order))
	s.queries.Add(q.cacheKey(version), books)
	return books
}

// Book returns the book with id.
func (s *Service) Book(id int) (models.Book, bool) {
	return s.cache.ByID(id)
}

// BooksByCategory returns every book whose category equals name exactly.
func (s *Service) BooksByCategory(name string) []models.Book {
	return s.cache.ByCategory(name)
}

// TopRated returns up to limit of the best-rated books.
func (s *Service) TopRated(limit int) []models.Book {
	return s.cache.TopRated(limit)
}

// ByPriceRange returns the books priced within [min, max].
func (s *Service) ByPriceRange(min, max float64) []models.Book {
	return s.cache.ByPriceRange(min, max)
}

// Categories returns the distinct categories, sorted.
func (s *Service) Categories() []string {
	return s.cache.Categories()
}

// AllBooks returns every book in the published generation.
func (s *Service) AllBooks() []models.Book {
	return s.cache.All()
}

// Statistics returns the cache statistics.
func (s *Service) Statistics() cache.Statistics {
	return s.cache.Statistics()
}

// Overview returns the catalog-wide aggregates.
func (s *Service) Overview() insights.Overview {
	return s.cache.Overview()
}

// CategoryStats returns the per-category aggregates.
func (s *Service) CategoryStats() []insights.CategoryStats {
	return s.cache.CategoryStats()
}

// LastReport returns the most recent validation report, or nil.
func (s *Service) LastReport() *validator.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReport.Clone()
}

// LastError returns the error of the most recent refresh, or nil.
func (s *Service) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// CheckFile runs the file integrity check against the source file.
func (s *Service) CheckFile() validator.Report {
	return s.validator.CheckFile(s.cfg.DataFile)
}

// Health reports the service healthy when a refresh has succeeded, the cache
// holds books and the source file is present.
func (s *Service) Health() Health {
	s.mu.Lock()
	h := Health{
		Initialized: s.initialized,
		Generation:  s.generation,
		LastRefresh: s.lastRefresh,
	}
	if s.lastErr != nil {
		h.LastError = s.lastErr.Error()
	}
	s.mu.Unlock()

	h.Books = s.cache.Size()
	h.CacheEmpty = h.Books == 0
	h.FileExists = s.loader.Exists()
	h.Healthy = h.Initialized && !h.CacheEmpty && h.FileExists
	return h
}

// Diagnostics returns a combined snapshot of every component.
func (s *Service) Diagnostics() Diagnostics {
	return Diagnostics{
		Cache:      s.cache.Statistics(),
		Loader:     s.loader.Stats(),
		Validation: s.validator.Stats(),
		Health:     s.Health(),
	}
}

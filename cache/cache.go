// Package cache holds the current set of books together with its indexes and
// precomputed aggregates.
package cache

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aluiziolira/go-books-catalog/insights"
	"github.com/aluiziolira/go-books-catalog/models"
)

// Filter narrows a search. Zero values mean "no constraint".
type Filter struct {
	// Category is matched exactly and case-sensitively.
	Category     string
	MinPrice     *float64
	MaxPrice     *float64
	MinRating    *int
	Availability string
}

// Statistics describes the cache contents and its hit ratio.
type Statistics struct {
	TotalBooks      int       `json:"total_books"`
	TotalCategories int       `json:"total_categories"`
	Categories      []string  `json:"categories"`
	LastUpdated     time.Time `json:"last_updated"`
	Hits            int64     `json:"cache_hits"`
	Misses          int64     `json:"cache_misses"`
	HitRatio        float64   `json:"cache_hit_ratio"`
	Populated       bool      `json:"is_populated"`
}

// Cache is safe for concurrent use. One mutex serialises readers and the
// single writer so no reader ever sees a half-built index.
type Cache struct {
	now func() time.Time

	mu          sync.Mutex
	books       []models.Book
	byID        map[int]int
	byCategory  map[string][]int
	categories  []string
	overview    insights.Overview
	perCategory []insights.CategoryStats
	lastUpdated time.Time
	version     uint64
	hits        int64
	misses      int64
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{
		now:        time.Now,
		byID:       make(map[int]int),
		byCategory: make(map[string][]int),
	}
}

// Replace discards every derived structure and rebuilds them from books.
// It is the only mutator.
func (c *Cache) Replace(books []models.Book) {
	list := make([]models.Book, len(books))
	for i := range books {
		list[i] = books[i].Clone()
	}

	byID := make(map[int]int, len(list))
	byCategory := make(map[string][]int)
	for i, b := range list {
		byID[b.ID] = i
		byCategory[b.Category] = append(byCategory[b.Category], i)
	}
	categories := make([]string, 0, len(byCategory))
	for name := range byCategory {
		categories = append(categories, name)
	}
	sort.Strings(categories)

	overview := insights.Summarize(list)
	perCategory := insights.ByCategory(list)

	c.mu.Lock()
	c.books = list
	c.byID = byID
	c.byCategory = byCategory
	c.categories = categories
	c.overview = overview
	c.perCategory = perCategory
	c.lastUpdated = c.now().UTC()
	c.version++
	c.mu.Unlock()

	slog.Info("cache updated",
		slog.Int("books", len(list)),
		slog.Int("categories", len(categories)),
	)
}

// Clear empties the cache. Hit and miss counters are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.books = nil
	c.byID = make(map[int]int)
	c.byCategory = make(map[string][]int)
	c.categories = nil
	c.overview = insights.Overview{}
	c.perCategory = nil
	c.lastUpdated = time.Time{}
	c.version++
	slog.Info("cache cleared")
}

// Version changes every time the contents change.
func (c *Cache) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// All returns a copy of every cached book.
func (c *Cache) All() []models.Book {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.hits++
	return cloneAll(c.books)
}

// ByID returns the book with id. A missing id counts as a miss.
func (c *Cache) ByID(id int) (models.Book, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.byID[id]
	if !ok {
		c.misses++
		return models.Book{}, false
	}
	c.hits++
	return c.books[i].Clone(), true
}

// ByCategory returns the books whose category equals name exactly.
func (c *Cache) ByCategory(name string) []models.Book {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.hits++
	return c.pick(c.byCategory[name])
}

// Categories returns the distinct categories, sorted.
func (c *Cache) Categories() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.hits++
	return append([]string(nil), c.categories...)
}

// Search applies each set constraint of f in turn.
func (c *Cache) Search(f Filter) []models.Book {
	books, _ := c.SearchAt(f)
	return books
}

// SearchAt is Search plus the version the result was computed from.
func (c *Cache) SearchAt(f Filter) ([]models.Book, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.hits++

	var out []models.Book
	if f.Category != "" {
		out = c.pick(c.byCategory[f.Category])
	} else {
		out = cloneAll(c.books)
	}

	if f.MinPrice != nil {
		out = keep(out, func(b models.Book) bool { return b.Price >= *f.MinPrice })
	}
	if f.MaxPrice != nil {
		out = keep(out, func(b models.Book) bool { return b.Price <= *f.MaxPrice })
	}
	if f.MinRating != nil {
		out = keep(out, func(b models.Book) bool { return b.RatingNumeric >= *f.MinRating })
	}
	if f.Availability != "" {
		needle := strings.ToLower(f.Availability)
		out = keep(out, func(b models.Book) bool {
			return strings.Contains(strings.ToLower(b.Availability), needle)
		})
	}
	return out, c.version
}

// TopRated returns up to limit rated books, highest rating first, ties broken
// by title ignoring case.
func (c *Cache) TopRated(limit int) []models.Book {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.hits++
	if limit <= 0 {
		return []models.Book{}
	}

	rated := make([]models.Book, 0, len(c.books))
	for _, b := range c.books {
		if b.Rated() {
			rated = append(rated, b.Clone())
		}
	}
	sort.SliceStable(rated, func(i, j int) bool {
		if rated[i].RatingNumeric != rated[j].RatingNumeric {
			return rated[i].RatingNumeric > rated[j].RatingNumeric
		}
		return strings.ToLower(rated[i].Title) < strings.ToLower(rated[j].Title)
	})
	if len(rated) > limit {
		rated = rated[:limit]
	}
	return rated
}

// ByPriceRange returns the books priced within [min, max].
func (c *Cache) ByPriceRange(min, max float64) []models.Book {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.hits++
	out := make([]models.Book, 0)
	for _, b := range c.books {
		if b.Price >= min && b.Price <= max {
			out = append(out, b.Clone())
		}
	}
	return out
}

// Overview returns the precomputed catalog summary.
func (c *Cache) Overview() insights.Overview {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.hits++
	return c.overview
}

// CategoryStats returns the precomputed per-category summaries.
func (c *Cache) CategoryStats() []insights.CategoryStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.hits++
	out := make([]insights.CategoryStats, len(c.perCategory))
	for i := range c.perCategory {
		out[i] = c.perCategory[i].Clone()
	}
	return out
}

// Statistics reports the cache contents and counters. It does not count as a
// read.
func (c *Cache) Statistics() Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()

	ratio := 0.0
	if total := c.hits + c.misses; total > 0 {
		ratio = float64(c.hits) / float64(total)
	}
	return Statistics{
		TotalBooks:      len(c.books),
		TotalCategories: len(c.categories),
		Categories:      append([]string{}, c.categories...),
		LastUpdated:     c.lastUpdated,
		Hits:            c.hits,
		Misses:          c.misses,
		HitRatio:        ratio,
		Populated:       len(c.books) > 0,
	}
}

// IsEmpty reports whether the cache holds no books.
func (c *Cache) IsEmpty() bool {
	return c.Size() == 0
}

// Size returns the number of cached books.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.books)
}

func (c *Cache) pick(idx []int) []models.Book {
	out := make([]models.Book, len(idx))
	for i, j := range idx {
		out[i] = c.books[j].Clone()
	}
	return out
}

func cloneAll(books []models.Book) []models.Book {
	out := make([]models.Book, len(books))
	for i := range books {
		out[i] = books[i].Clone()
	}
	return out
}

func keep(books []models.Book, pred func(models.Book) bool) []models.Book {
	out := books[:0]
	for _, b := range books {
		if pred(b) {
			out = append(out, b)
		}
	}
	return out
}

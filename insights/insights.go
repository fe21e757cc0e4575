// Package insights computes catalog aggregates: price statistics, rating
// distribution buckets, availability counts and per-category summaries.
package insights

import (
	"slices"
	"sort"
	"strings"

	"github.com/aluiziolira/go-books-catalog/models"
	"github.com/shopspring/decimal"
)

// PriceStats summarises the priced books of a set.
type PriceStats struct {
	Average float64 `json:"average"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Median  float64 `json:"median"`
}

// PriceRange is the cheapest and most expensive price of a set.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// RatingDistribution counts rated books per star bucket.
type RatingDistribution struct {
	One   int `json:"one"`
	Two   int `json:"two"`
	Three int `json:"three"`
	Four  int `json:"four"`
	Five  int `json:"five"`
}

// Total returns the number of rated books.
func (d RatingDistribution) Total() int {
	return d.One + d.Two + d.Three + d.Four + d.Five
}

func (d *RatingDistribution) add(rating int) {
	switch rating {
	case 1:
		d.One++
	case 2:
		d.Two++
	case 3:
		d.Three++
	case 4:
		d.Four++
	case 5:
		d.Five++
	}
}

// Availability splits a set into in-stock and out-of-stock books.
type Availability struct {
	InStock    int `json:"in_stock"`
	OutOfStock int `json:"out_of_stock"`
}

// Overview is the catalog-wide summary.
type Overview struct {
	TotalBooks   int                `json:"total_books"`
	Price        PriceStats         `json:"price_stats"`
	Ratings      RatingDistribution `json:"rating_distribution"`
	Availability Availability       `json:"availability"`
	Categories   int                `json:"categories"`
}

// CategoryStats summarises one category. Pointer fields are nil when the
// category has no priced or rated books.
type CategoryStats struct {
	Name          string              `json:"name"`
	Slug          string              `json:"slug"`
	BookCount     int                 `json:"book_count"`
	AveragePrice  *float64            `json:"avg_price,omitempty"`
	PriceRange    *PriceRange         `json:"price_range,omitempty"`
	AverageRating *float64            `json:"avg_rating,omitempty"`
	Ratings       *RatingDistribution `json:"rating_distribution,omitempty"`
	Availability  Availability        `json:"availability"`
}

// Clone returns a copy that shares no pointers with c.
func (c CategoryStats) Clone() CategoryStats {
	if c.AveragePrice != nil {
		v := *c.AveragePrice
		c.AveragePrice = &v
	}
	if c.PriceRange != nil {
		v := *c.PriceRange
		c.PriceRange = &v
	}
	if c.AverageRating != nil {
		v := *c.AverageRating
		c.AverageRating = &v
	}
	if c.Ratings != nil {
		v := *c.Ratings
		c.Ratings = &v
	}
	return c
}

// InStock reports whether an availability text means the book can be bought.
func InStock(availability string) bool {
	return strings.Contains(strings.ToLower(availability), "in stock")
}

// Slug builds a URL-friendly category identifier.
func Slug(name string) string {
	return strings.NewReplacer(" ", "-", "&", "and").Replace(strings.ToLower(name))
}

// Summarize computes the overview of books. Unpriced books (price 0) are left
// out of price statistics and unrated books out of the distribution.
func Summarize(books []models.Book) Overview {
	overview := Overview{TotalBooks: len(books)}

	prices := make([]float64, 0, len(books))
	categories := make(map[string]struct{})
	for _, b := range books {
		if b.Price > 0 {
			prices = append(prices, b.Price)
		}
		overview.Ratings.add(b.RatingNumeric)
		if strings.TrimSpace(b.Availability) != "" {
			if InStock(b.Availability) {
				overview.Availability.InStock++
			} else {
				overview.Availability.OutOfStock++
			}
		}
		if b.Category != "" {
			categories[b.Category] = struct{}{}
		}
	}

	overview.Price = priceStats(prices)
	overview.Categories = len(categories)
	return overview
}

// ByCategory computes one summary per category, ordered by name.
func ByCategory(books []models.Book) []CategoryStats {
	grouped := make(map[string][]models.Book)
	for _, b := range books {
		grouped[b.Category] = append(grouped[b.Category], b)
	}

	names := make([]string, 0, len(grouped))
	for name := range grouped {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]CategoryStats, 0, len(names))
	for _, name := range names {
		out = append(out, categoryStats(name, grouped[name]))
	}
	return out
}

func categoryStats(name string, books []models.Book) CategoryStats {
	stats := CategoryStats{
		Name:      name,
		Slug:      Slug(name),
		BookCount: len(books),
	}

	var prices []float64
	var ratings RatingDistribution
	ratingSum := 0
	for _, b := range books {
		if b.Price > 0 {
			prices = append(prices, b.Price)
		}
		if b.Rated() {
			ratings.add(b.RatingNumeric)
			ratingSum += b.RatingNumeric
		}
		if InStock(b.Availability) {
			stats.Availability.InStock++
		} else {
			stats.Availability.OutOfStock++
		}
	}

	if len(prices) > 0 {
		ps := priceStats(prices)
		avg := ps.Average
		stats.AveragePrice = &avg
		stats.PriceRange = &PriceRange{Min: ps.Min, Max: ps.Max}
	}
	if n := ratings.Total(); n > 0 {
		avg := round(float64(ratingSum)/float64(n), 1)
		stats.AverageRating = &avg
		stats.Ratings = &ratings
	}
	return stats
}

func priceStats(prices []float64) PriceStats {
	if len(prices) == 0 {
		return PriceStats{}
	}

	sorted := slices.Clone(prices)
	slices.Sort(sorted)

	sum := decimal.Zero
	for _, p := range sorted {
		sum = sum.Add(decimal.NewFromFloat(p))
	}
	mean := sum.Div(decimal.NewFromInt(int64(len(sorted))))

	mid := len(sorted) / 2
	median := decimal.NewFromFloat(sorted[mid])
	if len(sorted)%2 == 0 {
		median = median.Add(decimal.NewFromFloat(sorted[mid-1])).Div(decimal.NewFromInt(2))
	}

	return PriceStats{
		Average: mean.Round(2).InexactFloat64(),
		Min:     round(sorted[0], 2),
		Max:     round(sorted[len(sorted)-1], 2),
		Median:  median.Round(2).InexactFloat64(),
	}
}

func round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

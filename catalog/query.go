package catalog

import (
	"sort"
	"strings"

	"github.com/aluiziolira/go-books-catalog/cache"
	"github.com/aluiziolira/go-books-catalog/models"
)

// Sort keys accepted by Query.Sort. Anything else sorts by title.
const (
	SortTitle        = "title"
	SortPrice        = "price"
	SortRating       = "rating"
	SortAvailability = "availability"
	SortCategory     = "category"
)

// Query selects, orders and pages books. Zero-valued filters are ignored.
type Query struct {
	Page         int
	Limit        int
	Category     string
	Sort         string
	Order        string // asc or desc
	MinPrice     *float64
	MaxPrice     *float64
	MinRating    *int
	Availability string
}

// Page is one page of a query result.
type Page struct {
	Books      []models.Book `json:"data"`
	Total      int           `json:"total"`
	Page       int           `json:"page"`
	Limit      int           `json:"limit"`
	TotalPages int           `json:"total_pages"`
	HasNext    bool          `json:"has_next"`
	HasPrev    bool          `json:"has_prev"`
}

func (q Query) filter() cache.Filter {
	return cache.Filter{
		Category:     q.Category,
		MinPrice:     q.MinPrice,
		MaxPrice:     q.MaxPrice,
		MinRating:    q.MinRating,
		Availability: q.Availability,
	}
}

func normalizeSort(key string) string {
	switch key = strings.ToLower(strings.TrimSpace(key)); key {
	case SortTitle, SortPrice, SortRating, SortAvailability, SortCategory:
		return key
	default:
		return SortTitle
	}
}

func descending(order string) bool {
	return strings.EqualFold(strings.TrimSpace(order), "desc")
}

// queryKey identifies a filtered and sorted result within one cache version.
type queryKey struct {
	version      uint64
	category     string
	sort         string
	desc         bool
	hasMinPrice  bool
	minPrice     float64
	hasMaxPrice  bool
	maxPrice     float64
	hasMinRating bool
	minRating    int
	availability string
}

func (q Query) cacheKey(version uint64) queryKey {
	key := queryKey{
		version:      version,
		category:     q.Category,
		sort:         normalizeSort(q.Sort),
		desc:         descending(q.Order),
		availability: strings.ToLower(q.Availability),
	}
	if q.MinPrice != nil {
		key.hasMinPrice, key.minPrice = true, *q.MinPrice
	}
	if q.MaxPrice != nil {
		key.hasMaxPrice, key.maxPrice = true, *q.MaxPrice
	}
	if q.MinRating != nil {
		key.hasMinRating, key.minRating = true, *q.MinRating
	}
	return key
}

// sortBooks orders books in place by key. String keys compare ignoring case;
// equal keys keep their input order in both directions.
func sortBooks(books []models.Book, key string, desc bool) {
	var cmp func(a, b *models.Book) int
	switch normalizeSort(key) {
	case SortPrice:
		cmp = func(a, b *models.Book) int { return compareFloat(a.Price, b.Price) }
	case SortRating:
		cmp = func(a, b *models.Book) int { return a.RatingNumeric - b.RatingNumeric }
	case SortAvailability:
		cmp = func(a, b *models.Book) int { return compareFold(a.Availability, b.Availability) }
	case SortCategory:
		cmp = func(a, b *models.Book) int { return compareFold(a.Category, b.Category) }
	default:
		cmp = func(a, b *models.Book) int { return compareFold(a.Title, b.Title) }
	}

	sort.SliceStable(books, func(i, j int) bool {
		c := cmp(&books[i], &books[j])
		if desc {
			return c > 0
		}
		return c < 0
	})
}

func compareFold(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// paginate slices books into the requested page. page < 1 becomes 1 and a
// page past the end becomes the last page when at least one page exists.
func paginate(books []models.Book, page, limit int) Page {
	total := len(books)
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	if page < 1 {
		page = 1
	}
	if pages > 0 && page > pages {
		page = pages
	}

	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	out := make([]models.Book, end-start)
	for i := range out {
		out[i] = books[start+i].Clone()
	}
	return Page{
		Books:      out,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: pages,
		HasNext:    page < pages,
		HasPrev:    page > 1,
	}
}

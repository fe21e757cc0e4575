package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-books-catalog/models"
	"github.com/shopspring/decimal"
)

const (
	// DefaultPriceDisplay is shown for books whose price cell was absent.
	DefaultPriceDisplay = "£0.00"
	// UnknownCategory replaces a missing or blank category.
	UnknownCategory = "Unknown"
	// DefaultCategory replaces the crawler artifact category.
	DefaultCategory = "Default"
	// ArtifactCategory is scraped from the review widget instead of the
	// breadcrumb on some product pages.
	ArtifactCategory = "Add a comment"
)

var (
	// ErrMissingTitle is returned for rows that cannot be kept without a title.
	ErrMissingTitle = errors.New("missing title")

	priceReplacer = strings.NewReplacer(
		"Â£", "",
		"£", "",
		"$", "",
		"€", "",
		"¥", "",
		",", "",
		" ", "",
	)
)

// NormalizePrice removes currency symbols, thousands separators and spacing.
func NormalizePrice(price string) string {
	return priceReplacer.Replace(strings.TrimSpace(price))
}

// ParsePrice converts a display price such as "£1,234.50" to a float. The
// second return is false when the text is blank, unparseable or negative.
func ParsePrice(price string) (float64, bool) {
	cleaned := NormalizePrice(price)
	if cleaned == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil || d.IsNegative() {
		return 0, false
	}
	return d.InexactFloat64(), true
}

// ParseID parses an identifier cell. Blank cells fall back to position; a
// non-integer value is an error.
func ParseID(text string, position int) (int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return position, nil
	}
	id, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", text, err)
	}
	return id, nil
}

// ParseRating parses a rating_numeric cell. Blank cells and values outside
// 1..5 become 0; a non-integer value is an error.
func ParseRating(text string) (int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, nil
	}
	rating, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("invalid rating %q: %w", text, err)
	}
	return ClampRating(rating), nil
}

// ClampRating maps anything outside 1..5 to 0.
func ClampRating(rating int) int {
	if rating < 1 || rating > 5 {
		return 0
	}
	return rating
}

// NormalizeCategory trims the category and substitutes the sentinels.
func NormalizeCategory(category string) string {
	category = strings.TrimSpace(category)
	switch category {
	case "":
		return UnknownCategory
	case ArtifactCategory:
		return DefaultCategory
	default:
		return category
	}
}

// NormalizeAvailability trims spacing from the availability text.
func NormalizeAvailability(text string) string {
	return strings.TrimSpace(text)
}

// ToBook coerces a raw row into a Book. position is the 1-based row number in
// the file. An error means the row must be dropped.
func ToBook(row *models.RawRow, position int) (models.Book, error) {
	id, err := ParseID(row.Get(models.ColumnID), position)
	if err != nil {
		return models.Book{}, err
	}
	rating, err := ParseRating(row.Get(models.ColumnRatingNumeric))
	if err != nil {
		return models.Book{}, err
	}

	title := strings.TrimSpace(row.Get(models.ColumnTitle))
	if title == "" {
		return models.Book{}, ErrMissingTitle
	}

	display := DefaultPriceDisplay
	if row.Price != nil {
		display = *row.Price
	}
	price, _ := ParsePrice(display)

	return models.Book{
		ID:            id,
		Title:         title,
		Price:         price,
		PriceDisplay:  display,
		RatingText:    strings.TrimSpace(row.Get(models.ColumnRatingText)),
		RatingNumeric: rating,
		Availability:  NormalizeAvailability(row.Get(models.ColumnAvailability)),
		Category:      NormalizeCategory(row.Get(models.ColumnCategory)),
		ImageURL:      strings.TrimSpace(row.Get(models.ColumnImageURL)),
		Description:   optional(row.Description),
		UPC:           optional(row.UPC),
		Reviews:       optional(row.Reviews),
	}, nil
}

func optional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// Package models defines data structures for the catalog.
package models

import "time"

// Book represents one coerced catalog entry loaded from the source file.
type Book struct {
	ID            int     `csv:"id" json:"id"`
	Title         string  `csv:"title" json:"title"`
	Price         float64 `csv:"-" json:"price"`
	PriceDisplay  string  `csv:"price" json:"price_display"`
	RatingText    string  `csv:"rating_text" json:"rating_text"`
	RatingNumeric int     `csv:"rating_numeric" json:"rating_numeric"`
	Availability  string  `csv:"availability" json:"availability"`
	Category      string  `csv:"category" json:"category"`
	ImageURL      string  `csv:"image_url" json:"image_url"`
	Description   *string `csv:"description" json:"description,omitempty"`
	UPC           *string `csv:"upc" json:"upc,omitempty"`
	Reviews       *string `csv:"reviews" json:"reviews,omitempty"`
}

// Rated reports whether the book carries a rating in 1..5.
func (b Book) Rated() bool {
	return b.RatingNumeric > 0
}

// Clone returns a copy that shares no pointers with b.
func (b Book) Clone() Book {
	b.Description = cloneString(b.Description)
	b.UPC = cloneString(b.UPC)
	b.Reviews = cloneString(b.Reviews)
	return b
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// Fingerprint identifies one version of the source file.
type Fingerprint struct {
	ModTime time.Time
	Size    int64
}

// Equal reports whether two fingerprints describe the same file version.
func (f Fingerprint) Equal(other Fingerprint) bool {
	return f.Size == other.Size && f.ModTime.Equal(other.ModTime)
}

// IsZero reports whether the fingerprint was never recorded.
func (f Fingerprint) IsZero() bool {
	return f.Size == 0 && f.ModTime.IsZero()
}

// Generation is an immutable snapshot of the valid books of one load.
// Nothing mutates a Generation after it is published.
type Generation struct {
	ID          string
	Books       []Book
	Fingerprint Fingerprint
	BuiltAt     time.Time
}

// Len returns the number of books in the generation.
func (g *Generation) Len() int {
	if g == nil {
		return 0
	}
	return len(g.Books)
}

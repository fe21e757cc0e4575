package parser

import (
	"errors"
	"testing"

	"github.com/aluiziolira/go-books-catalog/models"
)

func rawRow(values map[string]string) *models.RawRow {
	row := &models.RawRow{}
	for k, v := range values {
		row.Set(k, v)
	}
	return row
}

func validRow() map[string]string {
	return map[string]string{
		"id":             "7",
		"title":          "Sample",
		"price":          "£12.50",
		"rating_text":    "Four",
		"rating_numeric": "4",
		"availability":   "In stock",
		"category":       "Fiction",
		"image_url":      "http://example.test/img.jpg",
	}
}

func TestToBookRoundTrip(t *testing.T) {
	book, err := ToBook(rawRow(validRow()), 1)
	if err != nil {
		t.Fatalf("ToBook() error = %v", err)
	}
	if book.ID != 7 {
		t.Errorf("id = %d, want 7", book.ID)
	}
	if book.Price != 12.50 {
		t.Errorf("price = %v, want 12.50", book.Price)
	}
	if book.PriceDisplay != "£12.50" {
		t.Errorf("price display = %q, want £12.50", book.PriceDisplay)
	}
	if book.RatingNumeric != 4 {
		t.Errorf("rating = %d, want 4", book.RatingNumeric)
	}
	if book.Category != "Fiction" {
		t.Errorf("category = %q, want Fiction", book.Category)
	}
	if book.Description != nil || book.UPC != nil || book.Reviews != nil {
		t.Errorf("optional fields should be absent")
	}
}

func TestToBookDefaults(t *testing.T) {
	tests := []struct {
		name  string
		patch map[string]string
		check func(t *testing.T, b models.Book)
	}{
		{
			name:  "rating out of range",
			patch: map[string]string{"rating_numeric": "9"},
			check: func(t *testing.T, b models.Book) {
				if b.RatingNumeric != 0 {
					t.Errorf("rating = %d, want 0", b.RatingNumeric)
				}
			},
		},
		{
			name:  "garbage price",
			patch: map[string]string{"price": "garbage"},
			check: func(t *testing.T, b models.Book) {
				if b.Price != 0 || b.PriceDisplay != "garbage" {
					t.Errorf("price = %v/%q, want 0/garbage", b.Price, b.PriceDisplay)
				}
			},
		},
		{
			name:  "negative price",
			patch: map[string]string{"price": "-3.00"},
			check: func(t *testing.T, b models.Book) {
				if b.Price != 0 {
					t.Errorf("price = %v, want 0", b.Price)
				}
			},
		},
		{
			name:  "blank id falls back to position",
			patch: map[string]string{"id": "  "},
			check: func(t *testing.T, b models.Book) {
				if b.ID != 3 {
					t.Errorf("id = %d, want 3", b.ID)
				}
			},
		},
		{
			name:  "blank category",
			patch: map[string]string{"category": ""},
			check: func(t *testing.T, b models.Book) {
				if b.Category != UnknownCategory {
					t.Errorf("category = %q, want %q", b.Category, UnknownCategory)
				}
			},
		},
		{
			name:  "artifact category",
			patch: map[string]string{"category": "Add a comment"},
			check: func(t *testing.T, b models.Book) {
				if b.Category != DefaultCategory {
					t.Errorf("category = %q, want %q", b.Category, DefaultCategory)
				}
			},
		},
		{
			name:  "optional fields trimmed",
			patch: map[string]string{"description": "  A story  ", "upc": " ", "reviews": "0"},
			check: func(t *testing.T, b models.Book) {
				if b.Description == nil || *b.Description != "A story" {
					t.Errorf("description = %v, want A story", b.Description)
				}
				if b.UPC != nil {
					t.Errorf("upc should be absent, got %q", *b.UPC)
				}
				if b.Reviews == nil || *b.Reviews != "0" {
					t.Errorf("reviews = %v, want 0", b.Reviews)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := validRow()
			for k, v := range tt.patch {
				values[k] = v
			}
			book, err := ToBook(rawRow(values), 3)
			if err != nil {
				t.Fatalf("ToBook() error = %v", err)
			}
			tt.check(t, book)
		})
	}
}

func TestToBookRejects(t *testing.T) {
	tests := []struct {
		name    string
		patch   map[string]string
		wantErr error
	}{
		{name: "empty title", patch: map[string]string{"title": "   "}, wantErr: ErrMissingTitle},
		{name: "non-integer id", patch: map[string]string{"id": "abc"}},
		{name: "non-integer rating", patch: map[string]string{"rating_numeric": "four"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := validRow()
			for k, v := range tt.patch {
				values[k] = v
			}
			_, err := ToBook(rawRow(values), 1)
			if err == nil {
				t.Fatalf("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestToBookMissingPriceColumn(t *testing.T) {
	values := validRow()
	delete(values, "price")
	book, err := ToBook(rawRow(values), 1)
	if err != nil {
		t.Fatalf("ToBook() error = %v", err)
	}
	if book.PriceDisplay != DefaultPriceDisplay || book.Price != 0 {
		t.Fatalf("price = %v/%q, want 0/%q", book.Price, book.PriceDisplay, DefaultPriceDisplay)
	}
}

func TestNormalizePrice(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "with currency symbol", input: "£51.77", expected: "51.77"},
		{name: "with whitespace", input: "  £10.50  ", expected: "10.50"},
		{name: "already clean", input: "25.99", expected: "25.99"},
		{name: "mojibake pound", input: "Â£13.99", expected: "13.99"},
		{name: "thousands separator", input: "£1,234.56", expected: "1234.56"},
		{name: "dollar", input: "$ 9.99", expected: "9.99"},
		{name: "empty string", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizePrice(tt.input)
			if result != tt.expected {
				t.Errorf("NormalizePrice(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		input  string
		want   float64
		wantOK bool
	}{
		{input: "£12.99", want: 12.99, wantOK: true},
		{input: "£1,234.56", want: 1234.56, wantOK: true},
		{input: "£0.00", want: 0, wantOK: true},
		{input: "invalid", want: 0, wantOK: false},
		{input: "NaN", want: 0, wantOK: false},
		{input: "-1", want: 0, wantOK: false},
		{input: "", want: 0, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParsePrice(tt.input)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParsePrice(%q) = %v, %v; want %v, %v", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestParseRating(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int
		wantErr  bool
	}{
		{name: "one", input: "1", expected: 1},
		{name: "five", input: "5", expected: 5},
		{name: "padded", input: " 3 ", expected: 3},
		{name: "zero", input: "0", expected: 0},
		{name: "too high", input: "9", expected: 0},
		{name: "negative", input: "-2", expected: 0},
		{name: "blank", input: "", expected: 0},
		{name: "word", input: "Three", wantErr: true},
		{name: "decimal", input: "4.5", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseRating(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRating(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && result != tt.expected {
				t.Errorf("ParseRating(%q) = %d, want %d", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNormalizeAvailability(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "with whitespace", input: "  In stock (22 available)  ", expected: "In stock (22 available)"},
		{name: "no whitespace", input: "In stock", expected: "In stock"},
		{name: "empty string", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizeAvailability(tt.input)
			if result != tt.expected {
				t.Errorf("NormalizeAvailability(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

package models

// Source column names.
const (
	ColumnID            = "id"
	ColumnTitle         = "title"
	ColumnPrice         = "price"
	ColumnRatingText    = "rating_text"
	ColumnRatingNumeric = "rating_numeric"
	ColumnAvailability  = "availability"
	ColumnCategory      = "category"
	ColumnImageURL      = "image_url"
	ColumnDescription   = "description"
	ColumnUPC           = "upc"
	ColumnReviews       = "reviews"
)

// RequiredColumns must all be present in a non-empty source file.
var RequiredColumns = []string{
	ColumnID,
	ColumnTitle,
	ColumnPrice,
	ColumnRatingText,
	ColumnRatingNumeric,
	ColumnAvailability,
	ColumnCategory,
	ColumnImageURL,
}

// OptionalColumns may be absent from the source file.
var OptionalColumns = []string{ColumnDescription, ColumnUPC, ColumnReviews}

// RawRow is one uncoerced source row. A nil field means the column was not
// present in the header; a pointer to "" means the cell was empty.
type RawRow struct {
	ID            *string
	Title         *string
	Price         *string
	RatingText    *string
	RatingNumeric *string
	Availability  *string
	Category      *string
	ImageURL      *string
	Description   *string
	UPC           *string
	Reviews       *string

	// Extra holds cells under columns the catalog does not recognise.
	Extra map[string]string
}

// Field returns a pointer to the field that stores column, or nil for an
// unknown column.
func (r *RawRow) Field(column string) **string {
	switch column {
	case ColumnID:
		return &r.ID
	case ColumnTitle:
		return &r.Title
	case ColumnPrice:
		return &r.Price
	case ColumnRatingText:
		return &r.RatingText
	case ColumnRatingNumeric:
		return &r.RatingNumeric
	case ColumnAvailability:
		return &r.Availability
	case ColumnCategory:
		return &r.Category
	case ColumnImageURL:
		return &r.ImageURL
	case ColumnDescription:
		return &r.Description
	case ColumnUPC:
		return &r.UPC
	case ColumnReviews:
		return &r.Reviews
	default:
		return nil
	}
}

// Set stores value under column, routing unknown columns to Extra.
func (r *RawRow) Set(column, value string) {
	if field := r.Field(column); field != nil {
		v := value
		*field = &v
		return
	}
	if r.Extra == nil {
		r.Extra = make(map[string]string)
	}
	r.Extra[column] = value
}

// Has reports whether column was present for this row.
func (r *RawRow) Has(column string) bool {
	if field := r.Field(column); field != nil {
		return *field != nil
	}
	_, ok := r.Extra[column]
	return ok
}

// Get returns the cell for column, or "" if absent.
func (r *RawRow) Get(column string) string {
	if field := r.Field(column); field != nil {
		if *field == nil {
			return ""
		}
		return **field
	}
	return r.Extra[column]
}

// Columns lists the known columns present on the row, in source order,
// followed by the extra columns in no particular order.
func (r *RawRow) Columns() []string {
	cols := make([]string, 0, len(RequiredColumns)+len(OptionalColumns)+len(r.Extra))
	for _, c := range RequiredColumns {
		if r.Has(c) {
			cols = append(cols, c)
		}
	}
	for _, c := range OptionalColumns {
		if r.Has(c) {
			cols = append(cols, c)
		}
	}
	for c := range r.Extra {
		cols = append(cols, c)
	}
	return cols
}

// Clone returns a deep copy of the row.
func (r *RawRow) Clone() RawRow {
	out := RawRow{}
	for _, c := range RequiredColumns {
		if r.Has(c) {
			out.Set(c, r.Get(c))
		}
	}
	for _, c := range OptionalColumns {
		if r.Has(c) {
			out.Set(c, r.Get(c))
		}
	}
	for k, v := range r.Extra {
		out.Set(k, v)
	}
	return out
}

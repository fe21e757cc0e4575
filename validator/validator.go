// Package validator checks raw source rows for structural completeness and
// per-field correctness, repairing what it can.
package validator

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aluiziolira/go-books-catalog/models"
	"github.com/aluiziolira/go-books-catalog/parser"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

// DefaultLargeFileThreshold is the size above which CheckFile warns.
const DefaultLargeFileThreshold int64 = 100 * 1024 * 1024

// Stats accumulates counts across every CheckIntegrity call.
type Stats struct {
	TotalValidated int            `json:"total_validated"`
	ValidRecords   int            `json:"valid_records"`
	InvalidRecords int            `json:"invalid_records"`
	Corrected      int            `json:"corrected_records"`
	CommonErrors   map[string]int `json:"common_errors"`
}

// Validator inspects raw rows and files. The zero value is not usable; call New.
type Validator struct {
	largeFile int64
	now       func() time.Time

	mu    sync.Mutex
	stats Stats
}

// Option customises a Validator.
type Option func(*Validator)

// WithLargeFileThreshold sets the size above which CheckFile warns.
func WithLargeFileThreshold(n int64) Option {
	return func(v *Validator) {
		if n > 0 {
			v.largeFile = n
		}
	}
}

// WithClock overrides the report timestamp source.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		if now != nil {
			v.now = now
		}
	}
}

// New returns a Validator.
func New(opts ...Option) *Validator {
	v := &Validator{
		largeFile: DefaultLargeFileThreshold,
		now:       time.Now,
		stats:     Stats{CommonErrors: make(map[string]int)},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Validator) newReport(total int) Report {
	return Report{TotalRows: total, CheckedAt: v.now().UTC()}
}

// CheckStructure verifies the row set is non-empty and carries every
// required column. Unknown columns produce a warning.
func (v *Validator) CheckStructure(rows []models.RawRow) Report {
	report := v.newReport(len(rows))
	if len(rows) == 0 {
		report.AddError("no data: source contains no rows")
		return report
	}

	first := rows[0]
	var missing []string
	for _, col := range models.RequiredColumns {
		if !first.Has(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		report.AddError(fmt.Sprintf("missing required columns: %s", strings.Join(missing, ", ")))
	}

	if len(first.Extra) > 0 {
		extra := slices.Sorted(maps.Keys(first.Extra))
		report.AddWarning(fmt.Sprintf("unexpected columns found: %s", strings.Join(extra, ", ")))
	}
	return report
}

// CheckRow validates and repairs one row. position is the 1-based row number.
// A nil row means the row cannot be kept; the returned messages describe
// every repair or the reason for rejection.
func (v *Validator) CheckRow(row models.RawRow, position int) (*models.RawRow, []string) {
	var problems []string
	note := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf("Row %d: %s", position, fmt.Sprintf(format, args...)))
	}
	fixed := row.Clone()

	if id := strings.TrimSpace(row.Get(models.ColumnID)); id == "" {
		fixed.Set(models.ColumnID, strconv.Itoa(position))
		note("missing id, using row index")
	} else if _, err := strconv.Atoi(id); err != nil {
		fixed.Set(models.ColumnID, strconv.Itoa(position))
		note("invalid id format, using row index")
	}

	title := strings.TrimSpace(row.Get(models.ColumnTitle))
	if title == "" {
		note("missing or empty title")
		return nil, problems
	}
	fixed.Set(models.ColumnTitle, title)

	if price := row.Get(models.ColumnPrice); strings.TrimSpace(price) == "" {
		fixed.Set(models.ColumnPrice, parser.DefaultPriceDisplay)
		note("missing price, defaulting to %s", parser.DefaultPriceDisplay)
	} else if _, ok := parser.ParsePrice(price); !ok {
		fixed.Set(models.ColumnPrice, parser.DefaultPriceDisplay)
		note("invalid price format %q, defaulting to %s", price, parser.DefaultPriceDisplay)
	}

	if rating := strings.TrimSpace(row.Get(models.ColumnRatingNumeric)); rating == "" {
		fixed.Set(models.ColumnRatingNumeric, "0")
		note("missing rating_numeric, defaulting to 0")
	} else if n, err := strconv.Atoi(rating); err != nil {
		fixed.Set(models.ColumnRatingNumeric, "0")
		note("invalid rating format, defaulting to 0")
	} else if n < 1 || n > 5 {
		fixed.Set(models.ColumnRatingNumeric, "0")
		note("rating %d out of valid range, defaulting to 0", n)
	}

	if strings.TrimSpace(row.Get(models.ColumnRatingText)) == "" {
		fixed.Set(models.ColumnRatingText, "")
		note("missing rating_text")
	}

	switch category := strings.TrimSpace(row.Get(models.ColumnCategory)); category {
	case "":
		fixed.Set(models.ColumnCategory, parser.UnknownCategory)
		note("missing category, defaulting to %q", parser.UnknownCategory)
	case parser.ArtifactCategory:
		fixed.Set(models.ColumnCategory, parser.DefaultCategory)
		note("invalid category %q changed to %q", parser.ArtifactCategory, parser.DefaultCategory)
	default:
		fixed.Set(models.ColumnCategory, category)
	}

	if strings.TrimSpace(row.Get(models.ColumnAvailability)) == "" {
		fixed.Set(models.ColumnAvailability, "Unknown")
		note("missing availability, defaulting to %q", "Unknown")
	}

	if strings.TrimSpace(row.Get(models.ColumnImageURL)) == "" {
		fixed.Set(models.ColumnImageURL, "")
		note("missing image_url")
	}

	for _, col := range models.OptionalColumns {
		if fixed.Has(col) {
			fixed.Set(col, strings.TrimSpace(fixed.Get(col)))
		}
	}

	return &fixed, problems
}

// CheckIntegrity runs the structural check and then every row check,
// classifying rows as valid, corrected or rejected.
func (v *Validator) CheckIntegrity(rows []models.RawRow) Report {
	report := v.newReport(len(rows))

	structure := v.CheckStructure(rows)
	report.Warnings = append(report.Warnings, structure.Warnings...)
	if !structure.Valid() {
		report.Errors = append(report.Errors, structure.Errors...)
		v.record(len(rows), 0, 0, 0, nil)
		return report
	}

	errorCounts := make(map[string]int)
	for i, row := range rows {
		position := i + 1
		fixed, problems := v.CheckRow(row, position)
		if fixed == nil {
			report.RejectedRows++
			report.AddError(fmt.Sprintf("Row %d is too corrupted to process", position))
			continue
		}
		if len(problems) == 0 {
			report.ValidRows++
			continue
		}
		report.CorrectedRows++
		for _, p := range problems {
			errorCounts[problemKind(p)]++
			report.AddWarning(p)
		}
	}

	if report.RejectedRows > 0 {
		report.AddError(fmt.Sprintf("found %d corrupted rows that cannot be processed", report.RejectedRows))
	}
	if report.CorrectedRows > 0 {
		report.AddWarning(fmt.Sprintf("corrected %d rows with data issues", report.CorrectedRows))
	}

	v.record(len(rows), report.ValidRows, report.RejectedRows, report.CorrectedRows, errorCounts)

	slog.Info("validation complete",
		slog.Int("valid", report.ValidRows),
		slog.Int("corrected", report.CorrectedRows),
		slog.Int("rejected", report.RejectedRows),
	)
	return report
}

// CheckFile verifies the file exists, is a non-empty readable regular file and
// decodes as UTF-8. Files above the large-file threshold produce a warning.
func (v *Validator) CheckFile(path string) Report {
	report := v.newReport(0)

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		report.AddError(fmt.Sprintf("file does not exist: %s", path))
		return report
	}
	if err != nil {
		report.AddError(fmt.Sprintf("error validating file: %v", err))
		return report
	}
	if !info.Mode().IsRegular() {
		report.AddError(fmt.Sprintf("path is not a file: %s", path))
		return report
	}
	if info.Size() == 0 {
		report.AddError("file is empty")
		return report
	}
	if info.Size() > v.largeFile {
		report.AddWarning(fmt.Sprintf("large file detected: %.1fMB", float64(info.Size())/(1024*1024)))
	}

	f, err := os.Open(path)
	if err != nil {
		report.AddError("file is not readable")
		return report
	}
	defer f.Close()

	if _, err := io.Copy(io.Discard, transform.NewReader(f, encoding.UTF8Validator)); err != nil {
		if errors.Is(err, encoding.ErrInvalidUTF8) {
			report.AddError("file encoding is not UTF-8")
		} else {
			report.AddError(fmt.Sprintf("error reading file: %v", err))
		}
	}
	return report
}

// Stats returns the cumulative counters.
func (v *Validator) Stats() Stats {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := v.stats
	out.CommonErrors = maps.Clone(v.stats.CommonErrors)
	return out
}

// ResetStats zeroes the cumulative counters.
func (v *Validator) ResetStats() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stats = Stats{CommonErrors: make(map[string]int)}
}

func (v *Validator) record(total, valid, invalid, corrected int, counts map[string]int) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.stats.TotalValidated += total
	v.stats.ValidRecords += valid
	v.stats.InvalidRecords += invalid
	v.stats.Corrected += corrected
	for k, n := range counts {
		v.stats.CommonErrors[k] += n
	}
}

// problemKind strips the "Row N:" prefix so messages group by kind.
func problemKind(msg string) string {
	if _, rest, ok := strings.Cut(msg, ":"); ok {
		return strings.TrimSpace(rest)
	}
	return msg
}

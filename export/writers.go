// Package export writes catalog snapshots to disk: the source CSV format, so
// a snapshot can be served again, and newline-delimited JSON feature records
// for offline analysis. Output lands in a temporary file next to the target
// and is renamed into place on Close, so a loader watching the target never
// reads a partial snapshot.
package export

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/aluiziolira/go-books-catalog/insights"
	"github.com/aluiziolira/go-books-catalog/models"
)

// Formats accepted by New.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatDual = "dual"
)

// Writer receives batches of books. Nothing is visible at the target path
// until Close succeeds; Abort discards the output.
type Writer interface {
	Write(books []models.Book) error
	Close() error
	Abort() error
	Validate() error
}

// New opens a writer for format at filename. The dual format writes the CSV
// to filename and the JSONL next to it with a .jsonl extension.
func New(format, filename string) (Writer, error) {
	switch strings.ToLower(format) {
	case FormatJSON:
		return NewJSONWriter(filename)
	case FormatCSV:
		return NewCSVWriter(filename)
	case FormatDual:
		csvWriter, err := NewCSVWriter(filename)
		if err != nil {
			return nil, err
		}
		jsonWriter, err := NewJSONWriter(strings.TrimSuffix(filename, filepath.Ext(filename)) + ".jsonl")
		if err != nil {
			csvWriter.Abort()
			return nil, err
		}
		return Multi(csvWriter, jsonWriter), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// Snapshot writes books through w, publishes the output and checks it.
// A failed write leaves the target untouched.
func Snapshot(w Writer, books []models.Book) error {
	if err := w.Write(books); err != nil {
		return errors.Join(err, w.Abort())
	}
	if err := w.Close(); err != nil {
		return err
	}
	return w.Validate()
}

// Header is the source file column order.
var Header = []string{
	models.ColumnID,
	models.ColumnTitle,
	models.ColumnPrice,
	models.ColumnRatingText,
	models.ColumnRatingNumeric,
	models.ColumnAvailability,
	models.ColumnCategory,
	models.ColumnImageURL,
	models.ColumnDescription,
	models.ColumnUPC,
	models.ColumnReviews,
}

// atomicFile is a temporary file that replaces target on commit.
type atomicFile struct {
	*os.File
	target string
	done   bool
}

func createAtomic(target string) (*atomicFile, error) {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %q: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create temp file for %s: %w", target, err)
	}
	return &atomicFile{File: f, target: target}, nil
}

func (a *atomicFile) commit() error {
	if a.done {
		return nil
	}
	a.done = true
	if err := a.File.Sync(); err != nil {
		a.File.Close()
		os.Remove(a.Name())
		return fmt.Errorf("sync %s: %w", a.target, err)
	}
	if err := a.File.Close(); err != nil {
		os.Remove(a.Name())
		return fmt.Errorf("close %s: %w", a.target, err)
	}
	if err := os.Chmod(a.Name(), 0o644); err != nil {
		os.Remove(a.Name())
		return fmt.Errorf("chmod %s: %w", a.target, err)
	}
	if err := os.Rename(a.Name(), a.target); err != nil {
		os.Remove(a.Name())
		return fmt.Errorf("publish %s: %w", a.target, err)
	}
	return nil
}

func (a *atomicFile) abort() error {
	if a.done {
		return nil
	}
	a.done = true
	a.File.Close()
	if err := os.Remove(a.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove temp file: %w", err)
	}
	return nil
}

func validateTarget(target string) error {
	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("stat %s: %w", target, err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("%s is empty", target)
	}
	return nil
}

// CSVWriter writes books in the source file format so the output can be
// loaded again.
type CSVWriter struct {
	file   *atomicFile
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter opens a pending CSV snapshot and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	f, err := createAtomic(filename)
	if err != nil {
		return nil, err
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(Header); err != nil {
		f.abort()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	return &CSVWriter{file: f, writer: writer}, nil
}

// Write appends books to the pending CSV output.
func (cw *CSVWriter) Write(books []models.Book) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, book := range books {
		if err := cw.writer.Write(record(book)); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

func record(book models.Book) []string {
	price := book.PriceDisplay
	if price == "" {
		price = fmt.Sprintf("£%.2f", book.Price)
	}
	return []string{
		strconv.Itoa(book.ID),
		book.Title,
		price,
		book.RatingText,
		strconv.Itoa(book.RatingNumeric),
		book.Availability,
		book.Category,
		book.ImageURL,
		deref(book.Description),
		deref(book.UPC),
		deref(book.Reviews),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Close flushes the CSV and renames it over the target.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		cw.file.abort()
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.commit()
}

// Abort discards the pending CSV.
func (cw *CSVWriter) Abort() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.file.abort()
}

// Validate ensures the published CSV has content.
func (cw *CSVWriter) Validate() error {
	return validateTarget(cw.file.target)
}

// Features is one JSONL record: the book plus the derived fields the
// insights layer computes, so consumers need not re-derive them.
type Features struct {
	models.Book
	InStock      bool   `json:"in_stock"`
	CategorySlug string `json:"category_slug"`
	Rated        bool   `json:"rated"`
}

// FeaturesOf derives the feature record of book.
func FeaturesOf(book models.Book) Features {
	return Features{
		Book:         book,
		InStock:      insights.InStock(book.Availability),
		CategorySlug: insights.Slug(book.Category),
		Rated:        book.Rated(),
	}
}

// JSONWriter writes newline-delimited feature records.
type JSONWriter struct {
	file    *atomicFile
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter opens a pending JSONL snapshot.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	f, err := createAtomic(filename)
	if err != nil {
		return nil, err
	}

	buffer := bufio.NewWriter(f)
	return &JSONWriter{
		file:    f,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}, nil
}

// Write appends one feature record per book.
func (jw *JSONWriter) Write(books []models.Book) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, book := range books {
		if err := jw.encoder.Encode(FeaturesOf(book)); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}
	return nil
}

// Close flushes the buffer and renames the file over the target.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		jw.file.abort()
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.commit()
}

// Abort discards the pending JSONL.
func (jw *JSONWriter) Abort() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	return jw.file.abort()
}

// Validate ensures the published JSONL has content.
func (jw *JSONWriter) Validate() error {
	return validateTarget(jw.file.target)
}

type multiWriter []Writer

// Multi fans every call out to each writer and joins their errors.
func Multi(writers ...Writer) Writer {
	return multiWriter(writers)
}

func (m multiWriter) Write(books []models.Book) error {
	for _, w := range m {
		if err := w.Write(books); err != nil {
			return err
		}
	}
	return nil
}

func (m multiWriter) Close() error {
	var errs []error
	for _, w := range m {
		errs = append(errs, w.Close())
	}
	return errors.Join(errs...)
}

func (m multiWriter) Abort() error {
	var errs []error
	for _, w := range m {
		errs = append(errs, w.Abort())
	}
	return errors.Join(errs...)
}

func (m multiWriter) Validate() error {
	var errs []error
	for _, w := range m {
		errs = append(errs, w.Validate())
	}
	return errors.Join(errs...)
}

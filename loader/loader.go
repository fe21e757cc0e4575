// Package loader reads the catalog source file and keeps the last parsed
// generation until the file's fingerprint changes.
package loader

import (
	"encoding/csv"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aluiziolira/go-books-catalog/models"
	"github.com/aluiziolira/go-books-catalog/parser"
	"github.com/google/uuid"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Loader parses the source file into raw rows and books. It is safe for
// concurrent use, but callers that need check-then-read to be atomic with
// other work (the catalog service) hold their own lock around it.
type Loader struct {
	path string
	now  func() time.Time

	mu          sync.Mutex
	rows        []models.RawRow
	generation  *models.Generation
	fingerprint models.Fingerprint
	reads       int64
}

// Option customises a Loader.
type Option func(*Loader)

// WithClock overrides the clock used to stamp generations.
func WithClock(now func() time.Time) Option {
	return func(l *Loader) {
		if now != nil {
			l.now = now
		}
	}
}

// Stats describes the loader's cached state.
type Stats struct {
	CachedBooks   int       `json:"cached_books_count"`
	CachedRawRows int       `json:"cached_raw_rows_count"`
	LastModified  time.Time `json:"last_modified"`
	FileSize      int64     `json:"file_size_bytes"`
	Path          string    `json:"data_file_path"`
	FileExists    bool      `json:"file_exists"`
}

// New returns a loader for the file at path. No I/O happens until the first
// load.
func New(path string, opts ...Option) *Loader {
	l := &Loader{
		path: path,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the watched file path.
func (l *Loader) Path() string {
	return l.path
}

// LoadBooks returns the books of the current generation, re-reading the file
// first when force is set, when nothing was loaded yet, or when the file's
// fingerprint changed.
func (l *Loader) LoadBooks(force bool) ([]models.Book, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ensureLocked(force); err != nil {
		return nil, err
	}
	return cloneBooks(l.generation.Books), nil
}

// LoadRawRows returns the uncoerced rows of the current generation, with the
// same reload rules as LoadBooks.
func (l *Loader) LoadRawRows(force bool) ([]models.RawRow, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ensureLocked(force); err != nil {
		return nil, err
	}
	out := make([]models.RawRow, len(l.rows))
	for i := range l.rows {
		out[i] = l.rows[i].Clone()
	}
	return out, nil
}

// Generation returns the last published generation, or nil if none.
func (l *Loader) Generation() *models.Generation {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.generation
}

// NeedsReload reports whether the next non-forced load would read the file.
func (l *Loader) NeedsReload() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, _, err := l.statLocked()
	if err != nil {
		return false, err
	}
	return l.generation == nil || !current.Equal(l.fingerprint), nil
}

// Reads returns how many times the file was actually read.
func (l *Loader) Reads() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reads
}

// Stats returns a snapshot of the cached state.
func (l *Loader) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, exists, _ := l.statLocked()
	stats := Stats{
		CachedRawRows: len(l.rows),
		LastModified:  l.fingerprint.ModTime,
		FileSize:      l.fingerprint.Size,
		Path:          l.path,
		FileExists:    exists,
	}
	if l.generation != nil {
		stats.CachedBooks = len(l.generation.Books)
	}
	return stats
}

// Exists reports whether the source file is currently present.
func (l *Loader) Exists() bool {
	info, err := os.Stat(l.path)
	return err == nil && info.Mode().IsRegular()
}

// Clear drops the cached generation so the next load reads the file.
func (l *Loader) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rows = nil
	l.generation = nil
	l.fingerprint = models.Fingerprint{}
	slog.Info("loader cache cleared", slog.String("path", l.path))
}

func (l *Loader) ensureLocked(force bool) error {
	current, _, err := l.statLocked()
	if err != nil {
		return err
	}
	if !force && l.generation != nil && current.Equal(l.fingerprint) {
		return nil
	}

	slog.Info("reloading source file", slog.String("path", l.path), slog.Bool("forced", force))
	rows, err := l.readRows()
	if err != nil {
		return err
	}
	l.reads++

	books := make([]models.Book, 0, len(rows))
	skipped := 0
	for i := range rows {
		book, err := parser.ToBook(&rows[i], i+1)
		if err != nil {
			skipped++
			slog.Warn("skipping source row", slog.Int("row", i+1), slog.Any("error", err))
			continue
		}
		books = append(books, book)
	}

	// The fingerprint is taken before the read so a rewrite that lands
	// mid-read still differs on the next check.
	l.rows = rows
	l.fingerprint = current
	l.generation = &models.Generation{
		ID:          uuid.NewString(),
		Books:       books,
		Fingerprint: current,
		BuiltAt:     l.now().UTC(),
	}

	slog.Info("source file loaded",
		slog.Int("rows", len(rows)),
		slog.Int("books", len(books)),
		slog.Int("skipped", skipped),
	)
	return nil
}

// statLocked returns the current fingerprint. A missing file has the zero
// fingerprint and is not an error.
func (l *Loader) statLocked() (models.Fingerprint, bool, error) {
	info, err := os.Stat(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return models.Fingerprint{}, false, nil
	}
	if err != nil {
		return models.Fingerprint{}, false, ErrRead{Path: l.path, Err: err}
	}
	return models.Fingerprint{ModTime: info.ModTime().UTC(), Size: info.Size()}, true, nil
}

func (l *Loader) readRows() ([]models.RawRow, error) {
	f, err := os.Open(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("source file not found", slog.String("path", l.path))
		return []models.RawRow{}, nil
	}
	if err != nil {
		return nil, ErrRead{Path: l.path, Err: err}
	}
	defer f.Close()

	return parseRows(l.path, f)
}

// utf8Reader strips a leading BOM and fails on invalid UTF-8.
func utf8Reader(r io.Reader) io.Reader {
	return transform.NewReader(r, transform.Chain(
		unicode.BOMOverride(transform.Nop),
		encoding.UTF8Validator,
	))
}

func parseRows(path string, r io.Reader) ([]models.RawRow, error) {
	reader := csv.NewReader(utf8Reader(r))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return []models.RawRow{}, nil
	}
	if err != nil {
		return nil, classifyReadError(path, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	rows := make([]models.RawRow, 0, 1024)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, classifyReadError(path, err)
		}

		// Short records still carry every header column so a truncated
		// row is repaired per row instead of hiding a column.
		var row models.RawRow
		for i, column := range header {
			cell := ""
			if i < len(record) {
				cell = record[i]
			}
			row.Set(column, cell)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func classifyReadError(path string, err error) error {
	if errors.Is(err, encoding.ErrInvalidUTF8) {
		return ErrEncoding{Path: path, Err: err}
	}
	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) {
		if errors.Is(parseErr.Err, encoding.ErrInvalidUTF8) {
			return ErrEncoding{Path: path, Err: err}
		}
		return ErrFormat{Path: path, Line: parseErr.Line, Err: err}
	}
	return ErrRead{Path: path, Err: err}
}

func cloneBooks(books []models.Book) []models.Book {
	out := make([]models.Book, len(books))
	for i := range books {
		out[i] = books[i].Clone()
	}
	return out
}

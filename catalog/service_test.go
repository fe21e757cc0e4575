package catalog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aluiziolira/go-books-catalog/config"
	"github.com/aluiziolira/go-books-catalog/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const header = "id,title,price,rating_text,rating_numeric,availability,category,image_url"

var fourBooks = []string{
	"1,zebra tales,£30.00,Three,3,In stock,Poetry,http://img/1.jpg",
	"2,Alpha Song,£10.00,Five,5,Out of stock,poetry,http://img/2.jpg",
	"3,Middle Road,£20.00,Four,4,In stock (2 available),Travel,http://img/3.jpg",
	"4,beta Notes,£20.00,Nine,9,In stock,Travel,http://img/4.jpg",
}

func writeCSV(t *testing.T, path string, head string, rows ...string) {
	t.Helper()
	body := head + "\n" + strings.Join(rows, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func newService(t *testing.T, rows ...string) (*Service, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "books.csv")
	if rows != nil {
		writeCSV(t, path, header, rows...)
	}
	cfg := config.DefaultConfig()
	cfg.DataFile = path
	svc, err := New(cfg)
	require.NoError(t, err)
	return svc, path
}

func titles(books []models.Book) []string {
	out := make([]string, len(books))
	for i, b := range books {
		out[i] = b.Title
	}
	return out
}

func TestNewLoadsCatalog(t *testing.T) {
	svc, _ := newService(t, fourBooks...)

	assert.Len(t, svc.AllBooks(), 4)
	assert.Equal(t, []string{"Poetry", "Travel", "poetry"}, svc.Categories())

	h := svc.Health()
	assert.True(t, h.Healthy)
	assert.NotEmpty(t, h.Generation)

	b, ok := svc.Book(4)
	require.True(t, ok)
	assert.Equal(t, 0, b.RatingNumeric)

	report := svc.LastReport()
	require.NotNil(t, report)
	assert.Equal(t, 3, report.ValidRows)
	assert.Equal(t, 1, report.CorrectedRows)
}

func TestNewWithMissingFile(t *testing.T) {
	svc, path := newService(t)

	assert.Empty(t, svc.AllBooks())
	assert.Empty(t, svc.Books(Query{}).Books)
	h := svc.Health()
	assert.False(t, h.Healthy)
	assert.False(t, h.FileExists)

	writeCSV(t, path, header, fourBooks...)
	require.True(t, svc.Refresh(true))
	assert.True(t, svc.Health().Healthy)
}

func TestNewWithBrokenFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "books.csv")
	writeCSV(t, path, "id,title", "1,Only Title")
	cfg := config.DefaultConfig()
	cfg.DataFile = path

	svc, err := New(cfg)
	require.NoError(t, err)
	assert.Empty(t, svc.AllBooks())
	assert.False(t, svc.Health().Initialized)
	assert.ErrorIs(t, svc.LastError(), ErrStructure)
}

func TestFailedRefreshPreservesPriorState(t *testing.T) {
	svc, path := newService(t, fourBooks...)
	before := svc.AllBooks()
	generation := svc.Health().Generation

	writeCSV(t, path, "id,title,rating_text,rating_numeric,availability,category,image_url",
		"9,No Price,One,1,In stock,X,http://img/9.jpg")

	assert.False(t, svc.Refresh(true))
	assert.Equal(t, before, svc.AllBooks())
	assert.Equal(t, generation, svc.Health().Generation)
	assert.ErrorIs(t, svc.LastError(), ErrStructure)

	require.NoError(t, os.WriteFile(path, []byte(header+"\n"), 0o644))
	assert.False(t, svc.Refresh(false))
	assert.Equal(t, before, svc.AllBooks())
}

func TestRefreshWithoutValidation(t *testing.T) {
	svc, path := newService(t, fourBooks...)
	writeCSV(t, path, header, fourBooks[:2]...)

	require.True(t, svc.Refresh(false))
	assert.Len(t, svc.AllBooks(), 2)
}

func TestBooksPaginationClamp(t *testing.T) {
	svc, _ := newService(t, fourBooks...)

	page := svc.Books(Query{Page: 100, Limit: 20})
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 1, page.TotalPages)
	assert.Len(t, page.Books, 4)
	assert.False(t, page.HasNext)

	page = svc.Books(Query{Page: 0, Limit: 3})
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 2, page.TotalPages)
	assert.True(t, page.HasNext)

	page = svc.Books(Query{Page: 2, Limit: 3})
	assert.Len(t, page.Books, 1)
	assert.True(t, page.HasPrev)

	page = svc.Books(Query{Limit: 1000})
	assert.Equal(t, 100, page.Limit)
}

func TestBooksSorting(t *testing.T) {
	svc, _ := newService(t, fourBooks...)

	tests := []struct {
		name  string
		query Query
		want  []string
	}{
		{name: "default title", query: Query{}, want: []string{"Alpha Song", "beta Notes", "Middle Road", "zebra tales"}},
		{name: "unknown key", query: Query{Sort: "isbn"}, want: []string{"Alpha Song", "beta Notes", "Middle Road", "zebra tales"}},
		{name: "title desc", query: Query{Sort: "title", Order: "desc"}, want: []string{"zebra tales", "Middle Road", "beta Notes", "Alpha Song"}},
		{name: "price stable", query: Query{Sort: "price"}, want: []string{"Alpha Song", "Middle Road", "beta Notes", "zebra tales"}},
		{name: "price desc stable", query: Query{Sort: "price", Order: "DESC"}, want: []string{"zebra tales", "Middle Road", "beta Notes", "Alpha Song"}},
		{name: "rating desc", query: Query{Sort: "rating", Order: "desc"}, want: []string{"Alpha Song", "Middle Road", "zebra tales", "beta Notes"}},
		{name: "category", query: Query{Sort: "category"}, want: []string{"zebra tales", "Alpha Song", "Middle Road", "beta Notes"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, titles(svc.Books(tt.query).Books))
		})
	}
}

func TestBooksFilters(t *testing.T) {
	svc, _ := newService(t, fourBooks...)

	min := 15.0
	rating := 4
	assert.Equal(t, []string{"zebra tales"}, titles(svc.Books(Query{Category: "Poetry"}).Books))
	assert.Equal(t, []string{"beta Notes", "Middle Road", "zebra tales"}, titles(svc.Books(Query{MinPrice: &min}).Books))
	assert.Equal(t, []string{"Alpha Song", "Middle Road"}, titles(svc.Books(Query{MinRating: &rating}).Books))
	assert.Equal(t, []string{"Alpha Song"}, titles(svc.Books(Query{Availability: "out"}).Books))
}

func TestQueryCacheFollowsGenerations(t *testing.T) {
	metrics := NewMetrics()
	path := filepath.Join(t.TempDir(), "books.csv")
	writeCSV(t, path, header, fourBooks...)
	cfg := config.DefaultConfig()
	cfg.DataFile = path

	svc, err := New(cfg, WithMetrics(metrics))
	require.NoError(t, err)

	q := Query{Sort: "price"}
	first := svc.Books(q)
	again := svc.Books(q)
	assert.Equal(t, first, again)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.QueryCache.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.QueryCache.WithLabelValues("miss")))

	writeCSV(t, path, header, "7,Sample,£12.50,Four,4,In stock,Fiction,http://img/7.jpg")
	require.True(t, svc.Refresh(false))

	page := svc.Books(q)
	assert.Equal(t, []string{"Sample"}, titles(page.Books))
	assert.Equal(t, 12.5, page.Books[0].Price)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.QueryCache.WithLabelValues("miss")))
}

func TestPagesAreCopies(t *testing.T) {
	svc, _ := newService(t, fourBooks...)

	page := svc.Books(Query{})
	page.Books[0].Title = "mutated"
	assert.Equal(t, "Alpha Song", svc.Books(Query{}).Books[0].Title)
}

func TestRefreshMetrics(t *testing.T) {
	metrics := NewMetrics()
	path := filepath.Join(t.TempDir(), "books.csv")
	writeCSV(t, path, header, fourBooks...)
	cfg := config.DefaultConfig()
	cfg.DataFile = path

	svc, err := New(cfg, WithMetrics(metrics))
	require.NoError(t, err)
	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.Books))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ValidationRows.WithLabelValues("corrected")))

	writeCSV(t, path, "id,title", "1,x")
	assert.False(t, svc.Refresh(true))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RefreshTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RefreshFailures.WithLabelValues("structure")))
}

func TestConcurrentRefreshAndQueries(t *testing.T) {
	svc, path := newService(t, fourBooks...)
	writeCSV(t, path, header, fourBooks[:3]...)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.True(t, svc.Refresh(true))
		}()
		go func() {
			defer wg.Done()
			n := len(svc.AllBooks())
			assert.Contains(t, []int{3, 4}, n)
			page := svc.Books(Query{Limit: 10})
			assert.Contains(t, []int{3, 4}, page.Total)
		}()
	}
	wg.Wait()

	assert.Len(t, svc.AllBooks(), 3)
}

func TestMaybeRefresh(t *testing.T) {
	svc, path := newService(t, fourBooks...)

	refreshed, err := svc.MaybeRefresh()
	require.NoError(t, err)
	assert.False(t, refreshed)

	writeCSV(t, path, header, fourBooks[:1]...)
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, future, future))

	refreshed, err = svc.MaybeRefresh()
	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.Len(t, svc.AllBooks(), 1)
}

func TestRunStopsOnCancel(t *testing.T) {
	svc, _ := newService(t, fourBooks...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx, 10*time.Millisecond) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	assert.Error(t, svc.Run(context.Background(), 0))
}

func TestDiagnosticsAndCheckFile(t *testing.T) {
	svc, _ := newService(t, fourBooks...)

	d := svc.Diagnostics()
	assert.Equal(t, 4, d.Cache.TotalBooks)
	assert.Equal(t, 4, d.Loader.CachedBooks)
	assert.True(t, d.Loader.FileExists)
	assert.Equal(t, 4, d.Validation.TotalValidated)

	assert.True(t, svc.CheckFile().Valid())
	assert.Equal(t, 4, svc.Overview().TotalBooks)
	assert.Len(t, svc.CategoryStats(), 3)
	assert.Len(t, svc.TopRated(2), 2)
	assert.Len(t, svc.ByPriceRange(20, 20), 2)
	assert.Len(t, svc.BooksByCategory("Travel"), 2)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataFile = ""
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestShortFirstRowIsRepairedNotFatal(t *testing.T) {
	svc, _ := newService(t,
		"1,Short Row,£5.00,One,1,In stock,Poetry",
		"2,Full Row,£6.00,Two,2,In stock,Poetry,http://img/2.jpg",
	)

	require.NoError(t, svc.LastError())
	assert.Equal(t, []string{"Full Row", "Short Row"}, titles(svc.Books(Query{}).Books))

	report := svc.LastReport()
	require.NotNil(t, report)
	assert.Equal(t, 1, report.CorrectedRows)
	assert.Equal(t, 1, report.ValidRows)
}

func TestMaybeRefreshReadsOncePerChange(t *testing.T) {
	svc, path := newService(t, fourBooks...)
	before := svc.loader.Reads()

	writeCSV(t, path, header, fourBooks[:2]...)
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, future, future))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.MaybeRefresh()
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, before+1, svc.loader.Reads())
	assert.Len(t, svc.AllBooks(), 2)
}

func TestQueryKeysDoNotCollide(t *testing.T) {
	a := Query{Category: "Travel", Availability: "x|title|false|-|-|-|in stock"}
	b := Query{Category: "Travel|title|false|-|-|-|x", Availability: "in stock"}
	assert.NotEqual(t, a.cacheKey(1), b.cacheKey(1))

	min := 0.0
	assert.NotEqual(t, Query{}.cacheKey(1), Query{MinPrice: &min}.cacheKey(1))
	assert.Equal(t, Query{Sort: "bogus"}.cacheKey(1), Query{Sort: "title"}.cacheKey(1))
	assert.NotEqual(t, Query{}.cacheKey(1), Query{}.cacheKey(2))
}

func TestLastReportFollowsEachRefresh(t *testing.T) {
	svc, path := newService(t, fourBooks...)
	require.NotNil(t, svc.LastReport())

	require.True(t, svc.Refresh(false))
	assert.Nil(t, svc.LastReport())

	require.NoError(t, os.Remove(path))
	require.True(t, svc.Refresh(true))
	report := svc.LastReport()
	require.NotNil(t, report)
	require.NotEmpty(t, report.Errors)
	assert.Contains(t, report.Errors[0], "does not exist")
}

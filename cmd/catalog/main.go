package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/go-books-catalog/catalog"
	"github.com/aluiziolira/go-books-catalog/config"
	"github.com/aluiziolira/go-books-catalog/export"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "loading .env: %v\n", err)
		os.Exit(1)
	}

	configPath := flag.String("config", os.Getenv("CATALOG_CONFIG"), "Optional YAML config file")
	dataFile := flag.String("data", "", "Source CSV file (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "Ops listen address for /metrics, /healthz and /stats (overrides config)")
	interval := flag.Duration("interval", 0, "Refresh check interval (overrides config)")
	noValidate := flag.Bool("no-validate", false, "Skip row validation on refresh")
	exportFile := flag.String("export", "", "Write a snapshot of the catalog to this file and exit")
	exportFormat := flag.String("format", export.FormatCSV, "Snapshot format: csv, json, or dual")
	checkOnly := flag.Bool("check", false, "Run the file integrity check and exit")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg, *dataFile, *metricsAddr, *interval, *noValidate, *verbose)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, _ := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	metrics := catalog.NewMetrics()
	svc, err := catalog.New(cfg, catalog.WithMetrics(metrics))
	if err != nil {
		slog.Error("initialising catalog", slog.Any("error", err))
		os.Exit(1)
	}

	if *checkOnly {
		os.Exit(runCheck(svc))
	}
	if *exportFile != "" {
		if err := runExport(svc, *exportFormat, *exportFile); err != nil {
			slog.Error("export failed", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opsServer *http.Server
	if cfg.MetricsAddr != "" {
		opsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           newOpsRouter(svc, metrics),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("ops server failed", slog.Any("error", err))
			}
		}()
		slog.Info("ops server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	slog.Info("catalog ready",
		slog.String("data_file", cfg.DataFile),
		slog.Int("books", svc.Statistics().TotalBooks),
		slog.Duration("interval", cfg.RefreshInterval),
	)

	if cfg.RefreshInterval > 0 {
		if err := svc.Run(ctx, cfg.RefreshInterval); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("refresher stopped", slog.Any("error", err))
		}
	} else {
		<-ctx.Done()
	}
	slog.Info("shutdown signal received")

	if opsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := opsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("ops server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}
}

func applyFlags(cfg *config.Config, dataFile, metricsAddr string, interval time.Duration, noValidate, verbose bool) {
	if dataFile != "" {
		cfg.DataFile = dataFile
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}
	if interval > 0 {
		cfg.RefreshInterval = interval
	}
	if noValidate {
		cfg.ValidateOnRefresh = false
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
}

func runCheck(svc *catalog.Service) int {
	report := svc.CheckFile()
	for _, w := range report.Warnings {
		slog.Warn("file check", slog.String("detail", w))
	}
	for _, e := range report.Errors {
		slog.Error("file check", slog.String("detail", e))
	}
	if !report.Valid() {
		return 1
	}
	printSummary(svc)
	return 0
}

func runExport(svc *catalog.Service, format, filename string) error {
	writer, err := export.New(format, filename)
	if err != nil {
		return err
	}
	books := svc.AllBooks()
	if err := export.Snapshot(writer, books); err != nil {
		return err
	}
	slog.Info("snapshot written",
		slog.String("file", filename),
		slog.String("format", format),
		slog.Int("books", len(books)),
	)
	return nil
}

func printSummary(svc *catalog.Service) {
	separator := "--------------------------------------------------"
	stats := svc.Statistics()
	overview := svc.Overview()

	fmt.Println("\n" + separator)
	fmt.Println("Catalog summary")
	fmt.Printf("  Books:         %d\n", stats.TotalBooks)
	fmt.Printf("  Categories:    %d\n", stats.TotalCategories)
	fmt.Printf("  Avg price:     %.2f\n", overview.Price.Average)
	fmt.Printf("  Median price:  %.2f\n", overview.Price.Median)
	fmt.Printf("  In stock:      %d\n", overview.Availability.InStock)
	if report := svc.LastReport(); report != nil {
		fmt.Printf("  Validation:    %d valid, %d corrected, %d rejected\n",
			report.ValidRows, report.CorrectedRows, report.RejectedRows)
	}
	fmt.Println(separator)
}

func newLogger(levelName, format string) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	switch strings.ToLower(levelName) {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		if isTerminal(os.Stdout) {
			handler = slog.NewTextHandler(os.Stdout, opts)
		} else {
			handler = slog.NewJSONHandler(os.Stdout, opts)
		}
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

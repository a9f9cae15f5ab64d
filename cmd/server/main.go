// Package main runs the analytics portal: spreadsheet uploads, the pivot
// workbench API, the contracts dashboard and the remote refresh hook.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"cpor-analytics/internal/contracts"
	"cpor-analytics/internal/dashboard"
	"cpor-analytics/internal/dataset"
	"cpor-analytics/internal/export"
	"cpor-analytics/internal/httpapi"
	"cpor-analytics/internal/loader"
	"cpor-analytics/internal/observability"
	"cpor-analytics/internal/pivot"
	"cpor-analytics/internal/remote"
)

const shutdownGrace = 15 * time.Second

// config holds everything the server needs, resolved from flags with
// environment defaults.
type config struct {
	port             int
	driveFileID      string
	driveBootSync    bool
	driveSyncToken   string
	expiryWindowDays int
	projectionPath   string
}

func main() {
	// Values from .env never override real environment variables.
	godotenv.Load()

	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags)

	if err := run(cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("server error: %v", err)
	}
	logger.Println("shutdown complete")
}

func parseConfig(args []string) (*config, error) {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)

	port := fs.String("port", envDefault("PORT", "8050"), "HTTP listen port")
	driveFileID := fs.String("drive-file-id", os.Getenv("CPOR_DRIVE_FILE_ID"), "Google Drive spreadsheet id for the contracts workbook")
	bootSync := fs.String("drive-boot-sync", envDefault("CPOR_DRIVE_BOOT_SYNC", "true"), "Fetch the remote workbook on startup")
	syncToken := fs.String("drive-sync-token", os.Getenv("CPOR_DRIVE_SYNC_TOKEN"), "Token required by the refresh endpoint")
	expiryWindow := fs.String("expiry-window-days", envDefault("CPOR_EXPIRY_WINDOW_DAYS", "60"), "Days ahead a contract counts as expiring")
	dataFile := fs.String("data-file", envDefault("CPOR_DATA_FILE", "dashboard_data.json"), "Dashboard projection file path")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := &config{
		driveFileID:    *driveFileID,
		driveSyncToken: *syncToken,
		projectionPath: *dataFile,
	}

	var err error
	if cfg.port, err = strconv.Atoi(*port); err != nil || cfg.port <= 0 || cfg.port > 65535 {
		return nil, fmt.Errorf("invalid port %q", *port)
	}
	if cfg.expiryWindowDays, err = strconv.Atoi(*expiryWindow); err != nil || cfg.expiryWindowDays <= 0 {
		return nil, fmt.Errorf("invalid expiry window %q", *expiryWindow)
	}
	cfg.driveBootSync = parseBool(*bootSync)
	return cfg, nil
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "0", "false", "no", "off", "":
		return false
	}
	return true
}

func run(cfg *config, logger *log.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metrics := observability.NewMetrics("")
	hub := httpapi.NewHub(logger)

	normalizer := contracts.NewNormalizer(contracts.WithExpiryWindow(cfg.expiryWindowDays))
	manager := dashboard.NewManager(dashboard.Options{
		Normalizer:     normalizer,
		ProjectionPath: cfg.projectionPath,
		OnReplace:      hub.DatasetReplaced,
		Logger:         log.New(os.Stdout, "[dashboard] ", log.LstdFlags),
	})

	var fetcher remote.WorkbookFetcher
	if cfg.driveFileID != "" {
		fetcher = remote.NewDriveClient(cfg.driveFileID)
	}

	server := httpapi.NewServer(httpapi.Options{
		Store:     dataset.NewStore(),
		Planner:   pivot.NewPlanner(),
		Exporter:  export.New(),
		Dashboard: manager,
		Fetcher:   fetcher,
		Metrics:   metrics,
		Hub:       hub,
		Logger:    logger,
		SyncToken: cfg.driveSyncToken,
	})

	if fetcher != nil && cfg.driveBootSync {
		bootSync(ctx, logger, fetcher, manager, metrics)
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Println("shutting down...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancelShutdown()
	return httpServer.Shutdown(shutdownCtx)
}

// bootSync seeds the dashboard from the remote workbook. Failures only log:
// the portal still serves uploads without the remote copy.
func bootSync(ctx context.Context, logger *log.Logger, fetcher remote.WorkbookFetcher, manager *dashboard.Manager, metrics *observability.Metrics) {
	logger.Println("fetching remote workbook...")
	wb, err := fetcher.Fetch(ctx)
	if err != nil {
		metrics.RecordDriveRefresh(err)
		logger.Printf("boot sync failed: %v", err)
		return
	}

	table, err := loader.Load(wb.Name+".xlsx", wb.Data)
	if err == nil {
		_, err = manager.Upload(wb.Name, table)
	}
	metrics.RecordDriveRefresh(err)
	if err != nil {
		logger.Printf("boot sync failed: %v", err)
		return
	}
	metrics.DashboardDatasets.Set(float64(manager.Count()))
	logger.Println("boot sync complete")
}

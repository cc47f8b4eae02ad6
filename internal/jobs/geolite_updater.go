package jobs

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/karloscodes/cartridge"

	"hayzedd/internal/config"
	"hayzedd/internal/pkg/geoip"
	"hayzedd/internal/settings"
)

// GeoLite database is updated weekly by MaxMind
const GeoLiteUpdateInterval = 7 * 24 * time.Hour

// GeoLiteUpdaterJob handles automatic GeoLite database updates
type GeoLiteUpdaterJob struct {
	dbManager cartridge.DBManager
	logger    *slog.Logger
	cfg       *config.Config
	client    *http.Client
}

func NewGeoLiteUpdaterJob(dbManager cartridge.DBManager, cfg *config.Config, logger *slog.Logger) *GeoLiteUpdaterJob {
	return &GeoLiteUpdaterJob{
		dbManager: dbManager,
		logger:    logger,
		cfg:       cfg,
		client:    &http.Client{Timeout: 5 * time.Minute},
	}
}

func (j *GeoLiteUpdaterJob) Name() string { return "geolite_updater" }

// Run downloads a fresh database when a license key is configured and the
// current copy is older than GeoLiteUpdateInterval.
func (j *GeoLiteUpdaterJob) Run(ctx context.Context) error {
	if j.cfg.GeoLiteLicenseKey == "" {
		j.logger.Debug("GeoLite license key not configured, skipping update")
		return nil
	}

	db := j.dbManager.GetConnection()
	lastUpdate, err := settings.GetTime(db, settings.KeyGeoLiteLastUpdate)
	if err != nil {
		j.logger.Warn("Unreadable GeoLite update time, forcing update", slog.Any("error", err))
	}
	if time.Since(lastUpdate) < GeoLiteUpdateInterval && j.dbExists() {
		j.logger.Debug("GeoLite database is up to date",
			slog.Time("last_update", lastUpdate),
			slog.Duration("age", time.Since(lastUpdate)))
		return nil
	}

	j.logger.Info("Starting GeoLite database update", slog.Time("last_update", lastUpdate))

	if err := j.downloadAndUpdate(ctx); err != nil {
		return fmt.Errorf("failed to update GeoLite database: %w", err)
	}

	// New sessions pick up the new file immediately.
	geoip.ReloadGeoDB()

	if err := settings.SetTime(db, j.logger, settings.KeyGeoLiteLastUpdate, time.Now()); err != nil {
		j.logger.Error("Failed to update last update time", slog.Any("error", err))
	}

	j.logger.Info("GeoLite database updated successfully", slog.String("path", j.dbPath()))
	return nil
}

func (j *GeoLiteUpdaterJob) dbPath() string {
	if j.cfg.GeoDBPath == "" {
		return filepath.Join("storage", "GeoLite2-City.mmdb")
	}
	return j.cfg.GeoDBPath
}

func (j *GeoLiteUpdaterJob) dbExists() bool {
	_, err := os.Stat(j.dbPath())
	return err == nil
}

// downloadAndUpdate downloads the archive and swaps the .mmdb into place.
func (j *GeoLiteUpdaterJob) downloadAndUpdate(ctx context.Context) error {
	geoDBPath := j.dbPath()
	if err := os.MkdirAll(filepath.Dir(geoDBPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	downloadURL := j.cfg.GeoLiteDownloadURL
	if strings.Contains(downloadURL, "%s") {
		downloadURL = fmt.Sprintf(downloadURL, j.cfg.GeoLiteLicenseKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build download request: %w", err)
	}
	resp, err := j.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download GeoLite database: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	// Extract next to the target and rename, so readers never see a partial file.
	tmpPath := geoDBPath + ".download"
	if err := extractMMDB(resp.Body, tmpPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to extract database: %w", err)
	}
	if err := os.Rename(tmpPath, geoDBPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to install database: %w", err)
	}
	return nil
}

// extractMMDB writes the first .mmdb entry of a tar.gz stream to destPath.
func extractMMDB(r io.Reader, destPath string) error {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read tar: %w", err)
		}
		if !strings.HasSuffix(header.Name, ".mmdb") {
			continue
		}

		outFile, err := os.Create(destPath)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		if _, err := io.Copy(outFile, tr); err != nil {
			outFile.Close()
			return fmt.Errorf("failed to extract file: %w", err)
		}
		return outFile.Close()
	}

	return fmt.Errorf("no .mmdb file found in archive")
}

package geoip

import (
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/oschwald/geoip2-golang"

	"hayzedd/internal/config"
)

var (
	geoDB  *geoip2.Reader
	once   sync.Once
	mu     sync.RWMutex
	logger *slog.Logger
)

// InitLogger sets the logger for the geoip package.
func InitLogger(l *slog.Logger) {
	logger = l
}

func log() *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

// InitGeoDB opens the GeoLite2 City database.
// Returns nil if the database is not configured or not found (GeoIP is optional).
func InitGeoDB() *geoip2.Reader {
	cfg := config.GetConfig()
	if cfg.GeoDBPath == "" {
		log().Debug("GeoIP database path not configured - local lookups disabled")
		return nil
	}

	if _, err := os.Stat(cfg.GeoDBPath); os.IsNotExist(err) {
		log().Info("GeoLite2 database not found - local lookups disabled",
			slog.String("path", cfg.GeoDBPath),
			slog.String("hint", "set HAYZEDD_GEOLITE_LICENSE_KEY to download it automatically"))
		return nil
	} else if err != nil {
		log().Warn("Error checking GeoLite2 database file",
			slog.String("path", cfg.GeoDBPath),
			slog.Any("error", err))
		return nil
	}

	db, err := geoip2.Open(cfg.GeoDBPath)
	if err != nil {
		log().Error("Failed to open GeoLite2 database",
			slog.String("path", cfg.GeoDBPath),
			slog.Any("error", err))
		return nil
	}

	if city, err := db.City(net.ParseIP("8.8.8.8")); err != nil {
		log().Warn("Database opened but test lookup failed", slog.Any("error", err))
	} else {
		log().Debug("Test lookup successful", slog.String("country", city.Country.IsoCode))
	}

	log().Info("GeoLite2 database initialized", slog.String("path", cfg.GeoDBPath))
	return db
}

// GetGeoDB returns the GeoLite2 database reader, initializing it if necessary.
func GetGeoDB() *geoip2.Reader {
	once.Do(func() {
		mu.Lock()
		geoDB = InitGeoDB()
		mu.Unlock()
	})
	mu.RLock()
	defer mu.RUnlock()
	return geoDB
}

// ReloadGeoDB reloads the GeoLite2 database from disk.
// Call this after downloading a new database file.
func ReloadGeoDB() {
	// Make sure a later GetGeoDB does not run the lazy init over the reload.
	once.Do(func() {})

	mu.Lock()
	defer mu.Unlock()

	if geoDB != nil {
		geoDB.Close()
	}
	geoDB = InitGeoDB()

	if geoDB != nil {
		log().Info("GeoLite2 database reloaded")
	}
}

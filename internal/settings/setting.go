package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/karloscodes/cartridge/cache"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// Keys of the operational settings.
const (
	KeyExcludedIPs       = "excluded_ips"
	KeyGeoLiteLastUpdate = "geolite_last_update"
	KeyLastFinalizerRun  = "finalizer_last_run"
)

// Setting is a key/value row for operational state.
type Setting struct {
	ID        uint      `gorm:"primaryKey"`
	Key       string    `gorm:"uniqueIndex;not null"`
	Value     string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime:milli"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:milli"`
}

var excludedIPsCache *cache.Cache[string, []string]

// SetupDefaultSettings inserts missing defaults and primes the excluded IP cache.
func SetupDefaultSettings(dbConn *gorm.DB, logger *slog.Logger) error {
	defaults := []Setting{
		{Key: KeyExcludedIPs, Value: ""},
	}
	err := sqlite.PerformWrite(logger, dbConn, func(tx *gorm.DB) error {
		now := time.Now().UTC()
		for _, setting := range defaults {
			err := tx.Exec(`
                INSERT INTO settings (key, value, created_at, updated_at)
                VALUES (?, ?, ?, ?)
                ON CONFLICT(key) DO NOTHING
            `, setting.Key, setting.Value, now, now).Error
			if err != nil {
				return fmt.Errorf("failed to upsert setting %s: %w", setting.Key, err)
			}
		}
		return nil
	})

	loadCache(dbConn, logger)
	return err
}

// IsIPExcluded reports whether session init from ip should be refused.
// Before SetupDefaultSettings runs nothing is excluded.
func IsIPExcluded(ip string) (bool, error) {
	if excludedIPsCache == nil {
		return false, nil
	}

	excludedIPs, err := excludedIPsCache.Get(KeyExcludedIPs)
	if err != nil {
		return false, fmt.Errorf("failed to check excluded IPs: %w", err)
	}

	for _, excludedIP := range excludedIPs {
		if excludedIP != "" && excludedIP == ip {
			return true, nil
		}
	}
	return false, nil
}

// GetSetting returns the value for key, or gorm.ErrRecordNotFound.
func GetSetting(dbConn *gorm.DB, key string) (string, error) {
	var setting Setting
	if err := dbConn.Where("key = ?", key).First(&setting).Error; err != nil {
		return "", err
	}
	return setting.Value, nil
}

// CreateOrUpdateSetting upserts key.
func CreateOrUpdateSetting(dbConn *gorm.DB, logger *slog.Logger, key, value string) error {
	err := sqlite.PerformWrite(logger, dbConn, func(tx *gorm.DB) error {
		now := time.Now().UTC()
		return tx.Exec(`
            INSERT INTO settings (key, value, created_at, updated_at)
            VALUES (?, ?, ?, ?)
            ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
        `, key, value, now, now).Error
	})
	if err != nil {
		return fmt.Errorf("failed to save setting %s: %w", key, err)
	}

	if key == KeyExcludedIPs && excludedIPsCache != nil {
		excludedIPsCache.Clear()
		loadCache(dbConn, logger)
	}
	return nil
}

// GetTime reads an RFC3339 timestamp setting. Missing keys yield the zero time.
func GetTime(dbConn *gorm.DB, key string) (time.Time, error) {
	value, err := GetSetting(dbConn, key)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("setting %s is not a timestamp: %w", key, err)
	}
	return t, nil
}

// SetTime stores t as RFC3339.
func SetTime(dbConn *gorm.DB, logger *slog.Logger, key string, t time.Time) error {
	return CreateOrUpdateSetting(dbConn, logger, key, t.UTC().Format(time.RFC3339))
}

func loadCache(dbConn *gorm.DB, logger *slog.Logger) {
	fetchFunc := func(key string) ([]string, error) {
		var value string
		err := dbConn.WithContext(context.Background()).Raw("SELECT value FROM settings WHERE key = ? LIMIT 1", key).Scan(&value).Error
		if err != nil {
			return nil, err
		}
		ips := strings.Split(value, ",")
		for i, ip := range ips {
			ips[i] = strings.TrimSpace(ip)
		}
		return ips, nil
	}
	excludedIPsCache = cache.NewCache[string, []string](logger, 5*time.Minute, fetchFunc)
}

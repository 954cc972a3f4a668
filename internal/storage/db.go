package storage

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB wraps the GORM handle the Settings Store and Network Diagnostics
// components share. Grounded on the teacher's own db_test.go helper
// (gorm.Open + AutoMigrate against AppSetting/DownloadLocation), which is
// the only storage path the teacher's go.mod actually declares a driver
// for (its db.go reaches for dgraph-io/badger, a dependency absent from
// go.mod entirely, so it is not a usable reference here; see DESIGN.md).
type DB struct {
	gorm *gorm.DB
}

// Open creates (or reuses) the sqlite file at dir/tachyon.db and migrates
// the tables this core owns.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "tachyon.db")

	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	gdb.Exec("PRAGMA journal_mode=WAL;")

	if err := gdb.AutoMigrate(&AppSetting{}, &InstallPath{}, &SpeedTestHistory{}); err != nil {
		return nil, err
	}
	return &DB{gorm: gdb}, nil
}

// OpenInMemory opens an ephemeral in-memory database, for tests and for a
// cmd/ entrypoint running without a persistent profile.
func OpenInMemory() (*DB, error) {
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := gdb.AutoMigrate(&AppSetting{}, &InstallPath{}, &SpeedTestHistory{}); err != nil {
		return nil, err
	}
	return &DB{gorm: gdb}, nil
}

// GetString reads a single AppSetting value, like the teacher's own
// Storage.GetString. Returns "" with no error if the key is unset.
func (d *DB) GetString(key string) (string, error) {
	var row AppSetting
	err := d.gorm.First(&row, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return row.Value, nil
}

// SetString upserts a single AppSetting value.
func (d *DB) SetString(key, value string) error {
	return d.gorm.Save(&AppSetting{Key: key, Value: value}).Error
}

// GetInstallDir looks up the directory recorded for an install id.
func (d *DB) GetInstallDir(installID string) (string, error) {
	var row InstallPath
	err := d.gorm.First(&row, "install_id = ?", installID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrInstallNotFound
	}
	if err != nil {
		return "", err
	}
	return row.Dir, nil
}

// SetInstallDir upserts the directory for an install id.
func (d *DB) SetInstallDir(installID, dir string) error {
	return d.gorm.Save(&InstallPath{InstallID: installID, Dir: dir}).Error
}

// SaveSpeedTestResult records one Network Diagnostics measurement.
func (d *DB) SaveSpeedTestResult(row SpeedTestHistory) error {
	return d.gorm.Create(&row).Error
}

// RecentSpeedTestResults returns the most recent n speed test rows,
// newest first.
func (d *DB) RecentSpeedTestResults(n int) ([]SpeedTestHistory, error) {
	var rows []SpeedTestHistory
	err := d.gorm.Order("id desc").Limit(n).Find(&rows).Error
	return rows, err
}

// ErrInstallNotFound is returned by GetInstallDir for an unknown install.
var ErrInstallNotFound = errors.New("storage: install has no recorded directory")

// Close releases the underlying sqlite connection.
func (d *DB) Close() error {
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

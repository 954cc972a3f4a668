// Package settings implements the Settings Store adapter (spec.md §4.J).
// The core is only ever allowed to read/write the two things §1 scopes to
// it: where an install lives on disk, and the global bandwidth cap. Every
// other setting (themes, accounts, UI prefs, ...) belongs to the launcher
// shell and never passes through this package.
package settings

import (
	"strconv"

	"github.com/Minlor/TwintailLauncher/internal/storage"
)

const keyGlobalBandwidthCapBytesPerSec = "global_bandwidth_cap_bps"

// Store is the interface the rest of the core depends on, grounded on the
// teacher's config.ConfigManager shape (storage-backed getter/setter
// pairs with sane defaults on read failure).
type Store interface {
	InstallDir(installID string) (string, error)
	SetInstallDir(installID, dir string) error
	GlobalBandwidthCapBytesPerSec() (int, error)
	SetGlobalBandwidthCapBytesPerSec(bytesPerSec int) error
}

// gormStore is the SQLite-backed Store implementation.
type gormStore struct {
	db *storage.DB
}

// NewStore wraps an opened storage.DB as a Store.
func NewStore(db *storage.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) InstallDir(installID string) (string, error) {
	return s.db.GetInstallDir(installID)
}

func (s *gormStore) SetInstallDir(installID, dir string) error {
	return s.db.SetInstallDir(installID, dir)
}

// GlobalBandwidthCapBytesPerSec returns 0 (unlimited) if unset or
// unparsable, matching the teacher's ConfigManager default-on-error
// pattern rather than surfacing a parse error to every caller.
func (s *gormStore) GlobalBandwidthCapBytesPerSec() (int, error) {
	valStr, err := s.db.GetString(keyGlobalBandwidthCapBytesPerSec)
	if err != nil || valStr == "" {
		return 0, nil
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return 0, nil
	}
	return val, nil
}

func (s *gormStore) SetGlobalBandwidthCapBytesPerSec(bytesPerSec int) error {
	return s.db.SetString(keyGlobalBandwidthCapBytesPerSec, strconv.Itoa(bytesPerSec))
}
